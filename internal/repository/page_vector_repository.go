package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"

	"pdf-rag-go/internal/model"
	"pdf-rag-go/pkg/es"
	"pdf-rag-go/pkg/log"
)

// PageVectorRepository 是页面多向量的持久化与检索接口。
// 相似度为 late interaction 的 max-sim：查询每个子向量与页面子向量的最大相似度之和。
type PageVectorRepository interface {
	Backend() string
	EnsureCollection(ctx context.Context) error
	// Upsert 用一次批量调用写入一个文档的全部页面，点 ID 相同则覆盖。
	Upsert(ctx context.Context, points []model.PagePoint) error
	// Search 按得分降序返回最多 limit 个命中。
	Search(ctx context.Context, query [][]float32, limit int) ([]model.PageHit, error)
}

// esPageDocument 是写入 Elasticsearch 的文档：载荷字段加上 rank_vectors 字段。
type esPageDocument struct {
	model.PagePayload
	Vector [][]float32 `json:"vector"`
}

type esPageVectorRepository struct {
	client *elasticsearch.Client
	index  string
	dims   int
}

// NewESPageVectorRepository 创建基于 Elasticsearch rank_vectors 的实现。
func NewESPageVectorRepository(client *elasticsearch.Client, index string, dims int) PageVectorRepository {
	return &esPageVectorRepository{client: client, index: index, dims: dims}
}

func (r *esPageVectorRepository) Backend() string { return "elasticsearch" }

func (r *esPageVectorRepository) mapping() string {
	return fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"document_hash": { "type": "keyword" },
				"page_number": { "type": "integer" },
				"text": { "type": "text" },
				"tables_text": { "type": "text" },
				"figure_captions": { "type": "text" },
				"blocks": { "type": "object", "enabled": false },
				"metadata": { "type": "object", "enabled": false },
				"device_used": { "type": "keyword" },
				"table_weirdness": { "type": "float" },
				"vector": { "type": "rank_vectors", "dims": %d }
			}
		}
	}`, r.dims)
}

func (r *esPageVectorRepository) EnsureCollection(ctx context.Context) error {
	return es.EnsureIndex(ctx, r.client, r.index, r.mapping())
}

func (r *esPageVectorRepository) Upsert(ctx context.Context, points []model.PagePoint) error {
	items := make([]es.BulkItem, 0, len(points))
	for _, p := range points {
		items = append(items, es.BulkItem{ID: p.ID, Doc: esPageDocument{PagePayload: p.Payload, Vector: p.Vector}})
	}
	if err := es.BulkIndex(ctx, r.client, r.index, items); err != nil {
		return fmt.Errorf("写入页面向量失败: %w", err)
	}
	log.Infof("[VectorStore] 已写入 %d 个页面向量到索引 %s", len(points), r.index)
	return nil
}

func (r *esPageVectorRepository) Search(ctx context.Context, query [][]float32, limit int) ([]model.PageHit, error) {
	// script_score 要求得分非负
	q := map[string]any{
		"size":    limit,
		"_source": map[string]any{"excludes": []string{"vector"}},
		"query": map[string]any{
			"script_score": map[string]any{
				"query": map[string]any{"match_all": map[string]any{}},
				"script": map[string]any{
					"source": "Math.max(0, maxSimDotProduct(params.query_vector, 'vector'))",
					"params": map[string]any{"query_vector": query},
				},
			},
		},
	}
	hits, err := es.Search(ctx, r.client, r.index, q)
	if err != nil {
		return nil, fmt.Errorf("页面向量检索失败: %w", err)
	}

	out := make([]model.PageHit, 0, len(hits))
	for _, h := range hits {
		var payload model.PagePayload
		if err := json.Unmarshal(h.Source, &payload); err != nil {
			return nil, fmt.Errorf("解析命中 %s 的载荷失败: %w", h.ID, err)
		}
		out = append(out, model.PageHit{ID: h.ID, Score: h.Score, Payload: payload})
	}
	return out, nil
}

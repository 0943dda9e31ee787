package repository

import (
	"context"
	"encoding/json"
	"fmt"

	qc "github.com/qdrant/go-client/qdrant"

	"pdf-rag-go/internal/model"
	qdrantdb "pdf-rag-go/pkg/qdrant"
	"pdf-rag-go/pkg/log"
)

// QdrantVectorName 是集合中唯一的命名多向量字段。
const QdrantVectorName = "colbert"

type qdrantPageVectorRepository struct {
	client     *qc.Client
	collection string
	dims       int
}

// NewQdrantPageVectorRepository 创建基于 Qdrant 多向量（MAX_SIM）的实现。
func NewQdrantPageVectorRepository(client *qc.Client, collection string, dims int) PageVectorRepository {
	return &qdrantPageVectorRepository{client: client, collection: collection, dims: dims}
}

func (r *qdrantPageVectorRepository) Backend() string { return "qdrant" }

func (r *qdrantPageVectorRepository) EnsureCollection(ctx context.Context) error {
	return qdrantdb.EnsureMultiVectorCollection(ctx, r.client, r.collection, QdrantVectorName, r.dims)
}

func (r *qdrantPageVectorRepository) Upsert(ctx context.Context, points []model.PagePoint) error {
	if len(points) == 0 {
		return nil
	}
	structs := make([]*qc.PointStruct, 0, len(points))
	for _, p := range points {
		payload, err := toQdrantPayload(p.Payload)
		if err != nil {
			return fmt.Errorf("转换点 %s 的载荷失败: %w", p.ID, err)
		}
		structs = append(structs, &qc.PointStruct{
			Id: qc.NewID(p.ID),
			Vectors: qc.NewVectorsMap(map[string]*qc.Vector{
				QdrantVectorName: qc.NewVectorMulti(p.Vector),
			}),
			Payload: payload,
		})
	}

	_, err := r.client.Upsert(ctx, &qc.UpsertPoints{
		CollectionName: r.collection,
		Wait:           qc.PtrOf(true),
		Points:         structs,
	})
	if err != nil {
		return fmt.Errorf("写入页面向量失败: %w", err)
	}
	log.Infof("[VectorStore] 已写入 %d 个页面向量到集合 %s", len(points), r.collection)
	return nil
}

func (r *qdrantPageVectorRepository) Search(ctx context.Context, query [][]float32, limit int) ([]model.PageHit, error) {
	res, err := r.client.Query(ctx, &qc.QueryPoints{
		CollectionName: r.collection,
		Query:          qc.NewQueryMulti(query),
		Using:          qc.PtrOf(QdrantVectorName),
		WithPayload:    qc.NewWithPayload(true),
		Limit:          qc.PtrOf(uint64(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("页面向量检索失败: %w", err)
	}

	out := make([]model.PageHit, 0, len(res))
	for _, sp := range res {
		payload, err := fromQdrantPayload(sp.GetPayload())
		if err != nil {
			return nil, fmt.Errorf("解析命中载荷失败: %w", err)
		}
		out = append(out, model.PageHit{
			ID:      sp.GetId().GetUuid(),
			Score:   float64(sp.GetScore()),
			Payload: payload,
		})
	}
	return out, nil
}

// toQdrantPayload 通过 JSON 把载荷转换为 Qdrant 的 Value 映射，字段名与 JSON 标签一致。
func toQdrantPayload(p model.PagePayload) (map[string]*qc.Value, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return qc.TryValueMap(m)
}

func fromQdrantPayload(values map[string]*qc.Value) (model.PagePayload, error) {
	m := make(map[string]any, len(values))
	for k, v := range values {
		m[k] = plainValue(v)
	}
	var p model.PagePayload
	b, err := json.Marshal(m)
	if err != nil {
		return p, err
	}
	err = json.Unmarshal(b, &p)
	return p, err
}

// plainValue 把 Qdrant 的 Value 还原为普通的 Go 值。
func plainValue(v *qc.Value) any {
	if v == nil {
		return nil
	}
	switch k := v.GetKind().(type) {
	case *qc.Value_StringValue:
		return k.StringValue
	case *qc.Value_IntegerValue:
		return k.IntegerValue
	case *qc.Value_DoubleValue:
		return k.DoubleValue
	case *qc.Value_BoolValue:
		return k.BoolValue
	case *qc.Value_StructValue:
		out := make(map[string]any, len(k.StructValue.GetFields()))
		for name, f := range k.StructValue.GetFields() {
			out[name] = plainValue(f)
		}
		return out
	case *qc.Value_ListValue:
		vals := k.ListValue.GetValues()
		out := make([]any, 0, len(vals))
		for _, item := range vals {
			out = append(out, plainValue(item))
		}
		return out
	default:
		return nil
	}
}

package service

import (
	"context"
	"fmt"
	"strings"

	"pdf-rag-go/internal/llmcontext"
	"pdf-rag-go/internal/model"
	"pdf-rag-go/internal/repository"
	"pdf-rag-go/pkg/log"
)

// UnknownFilename 在命中页面找不到对应文档记录时使用。
const UnknownFilename = "unknown file"

// TextEmbedder 把查询文本编码为多向量。
type TextEmbedder interface {
	EmbedText(ctx context.Context, text string) ([][]float32, error)
}

// SearchService 接口定义了检索操作。
type SearchService interface {
	Search(ctx context.Context, req model.SearchRequest) (*model.SearchResponse, error)
}

type searchService struct {
	embedder TextEmbedder
	vectors  repository.PageVectorRepository
	docs     repository.DocumentRepository
	limits   llmcontext.Limits
}

// NewSearchService 创建一个新的 SearchService 实例。
func NewSearchService(embedder TextEmbedder, vectors repository.PageVectorRepository, docs repository.DocumentRepository, limits llmcontext.Limits) SearchService {
	return &searchService{embedder: embedder, vectors: vectors, docs: docs, limits: limits}
}

// SourceHeader 返回单个上下文块的来源行。
func SourceHeader(filename string, page int) string {
	return fmt.Sprintf("--- SOURCE: %s (Page %d) ---\n", filename, page)
}

// Search 对查询文本向量化，在向量库中按 MaxSim 检索页面，并为每个命中页拼装上下文块。
func (s *searchService) Search(ctx context.Context, req model.SearchRequest) (*model.SearchResponse, error) {
	limit := req.EffectiveLimit()
	log.Infof("[SearchService] 开始检索, query: '%s', limit: %d", req.Text, limit)

	query, err := s.embedder.EmbedText(ctx, req.Text)
	if err != nil {
		return nil, fmt.Errorf("查询向量化失败: %w", err)
	}

	hits, err := s.vectors.Search(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("向量检索失败: %w", err)
	}
	log.Infof("[SearchService] 向量检索返回 %d 个页面", len(hits))

	hashes := make([]string, 0, len(hits))
	for _, h := range hits {
		hashes = append(hashes, h.Payload.DocumentHash)
	}
	docs, err := s.docs.FindByHashes(ctx, hashes)
	if err != nil {
		// 文件名只用于展示，查询失败时继续
		log.Warnf("[SearchService] 查询文档记录失败: %v", err)
		docs = nil
	}

	resp := &model.SearchResponse{Query: req.Text, Results: make([]model.SearchResult, 0, len(hits))}
	blocks := make([]string, 0, len(hits))
	for _, h := range hits {
		p := h.Payload
		filename := UnknownFilename
		if d, ok := docs[p.DocumentHash]; ok && d != nil {
			filename = d.Filename
		}
		block := SourceHeader(filename, p.PageNumber) + llmcontext.Assemble(p, req.Text, s.limits)
		blocks = append(blocks, block)
		resp.Results = append(resp.Results, model.SearchResult{
			PageNumber:       p.PageNumber,
			DocumentHash:     p.DocumentHash,
			Filename:         filename,
			Score:            h.Score,
			Content:          p.Text,
			FormattedContext: block,
		})
	}
	resp.FullPromptContext = strings.Join(blocks, "\n")
	return resp, nil
}

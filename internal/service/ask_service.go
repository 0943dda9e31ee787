package service

import (
	"context"
	"fmt"
	"strings"

	"pdf-rag-go/internal/config"
	"pdf-rag-go/internal/model"
	"pdf-rag-go/pkg/llm"
	"pdf-rag-go/pkg/log"
)

// AskService 基于检索结果调用大模型回答问题，答案以流式分块写出。
type AskService interface {
	Ask(ctx context.Context, req model.AskRequest, writer llm.ChunkWriter) (*model.SearchResponse, error)
}

type askService struct {
	search SearchService
	llm    llm.Client
	prompt config.LLMPromptConfig
	gen    *llm.GenerationParams
}

// NewAskService 创建一个新的 AskService 实例。
func NewAskService(search SearchService, client llm.Client, cfg config.LLMConfig) AskService {
	return &askService{
		search: search,
		llm:    client,
		prompt: cfg.Prompt,
		gen:    llm.ParamsFromConfig(cfg.Generation),
	}
}

// Ask 先检索再生成。返回的检索结果可用于展示引用来源。
func (s *askService) Ask(ctx context.Context, req model.AskRequest, writer llm.ChunkWriter) (*model.SearchResponse, error) {
	found, err := s.search.Search(ctx, model.SearchRequest{Text: req.Question, Limit: req.Limit})
	if err != nil {
		return nil, err
	}

	messages := []llm.Message{
		{Role: "system", Content: s.buildSystemMessage(found.FullPromptContext)},
		{Role: "user", Content: req.Question},
	}
	log.Infof("[AskService] 调用大模型, 命中页数: %d, 上下文长度: %d", len(found.Results), len(found.FullPromptContext))

	if err := s.llm.StreamChatMessages(ctx, messages, s.gen, writer); err != nil {
		return found, fmt.Errorf("大模型调用失败: %w", err)
	}
	return found, nil
}

// buildSystemMessage 组合规则与参考资料，无检索结果时写入占位文本。
func (s *askService) buildSystemMessage(contextText string) string {
	refStart := s.prompt.RefStart
	if refStart == "" {
		refStart = "<<REF>>"
	}
	refEnd := s.prompt.RefEnd
	if refEnd == "" {
		refEnd = "<<END>>"
	}

	var sb strings.Builder
	if s.prompt.Rules != "" {
		sb.WriteString(s.prompt.Rules)
		sb.WriteString("\n\n")
	}
	sb.WriteString(refStart)
	sb.WriteString("\n")
	if contextText != "" {
		sb.WriteString(contextText)
	} else {
		noResult := s.prompt.NoResultText
		if noResult == "" {
			noResult = "（本轮无检索结果）"
		}
		sb.WriteString(noResult)
	}
	sb.WriteString("\n")
	sb.WriteString(refEnd)
	return sb.String()
}

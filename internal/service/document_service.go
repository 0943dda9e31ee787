package service

import (
	"context"

	"pdf-rag-go/internal/model"
	"pdf-rag-go/internal/repository"
)

// DocumentService 接口定义了文档记录的查询操作。
type DocumentService interface {
	List(ctx context.Context) ([]model.DocumentDTO, error)
}

type documentService struct {
	docs repository.DocumentRepository
}

// NewDocumentService 创建一个新的 DocumentService 实例。
func NewDocumentService(docs repository.DocumentRepository) DocumentService {
	return &documentService{docs: docs}
}

// List 返回全部文档记录。
func (s *documentService) List(ctx context.Context) ([]model.DocumentDTO, error) {
	docs, err := s.docs.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.DocumentDTO, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].ToDTO())
	}
	return out, nil
}

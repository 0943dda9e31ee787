// Package repository 定义了与数据库、向量库进行数据交换的接口和实现。
package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pdf-rag-go/internal/model"
)

// ErrDocumentNotFound 表示内容指纹没有对应的文档记录。
var ErrDocumentNotFound = errors.New("文档记录不存在")

// DocumentRepository 是文档元数据的持久化接口，以内容指纹为唯一键。
type DocumentRepository interface {
	FindByHash(ctx context.Context, hash string) (*model.Document, error)
	FindByHashes(ctx context.Context, hashes []string) (map[string]*model.Document, error)
	// CreateIfAbsent 插入一条未索引的记录；指纹已存在时不做修改，并把已有记录读回 doc。
	// 返回值表示本次调用是否真正插入了记录。
	CreateIfAbsent(ctx context.Context, doc *model.Document) (bool, error)
	UpdatePath(ctx context.Context, hash, path string) error
	MarkIndexed(ctx context.Context, hash string) error
	List(ctx context.Context) ([]model.Document, error)
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) FindByHash(ctx context.Context, hash string) (*model.Document, error) {
	var doc model.Document
	err := r.db.WithContext(ctx).Where("doc_hash = ?", hash).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询文档记录失败: %w", err)
	}
	return &doc, nil
}

// FindByHashes 批量查询，用于检索结果回填文件名。
func (r *documentRepository) FindByHashes(ctx context.Context, hashes []string) (map[string]*model.Document, error) {
	out := make(map[string]*model.Document, len(hashes))
	if len(hashes) == 0 {
		return out, nil
	}
	var docs []*model.Document
	if err := r.db.WithContext(ctx).Where("doc_hash IN ?", hashes).Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("批量查询文档记录失败: %w", err)
	}
	for _, d := range docs {
		out[d.DocHash] = d
	}
	return out, nil
}

func (r *documentRepository) CreateIfAbsent(ctx context.Context, doc *model.Document) (bool, error) {
	var inserted bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		doc.Indexed = false
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "doc_hash"}},
			DoNothing: true,
		}).Create(doc)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			inserted = true
			return nil
		}
		// 并发插入时唯一约束生效，读回胜出的那一条
		return tx.Where("doc_hash = ?", doc.DocHash).First(doc).Error
	})
	if err != nil {
		return false, fmt.Errorf("创建文档记录失败: %w", err)
	}
	return inserted, nil
}

func (r *documentRepository) UpdatePath(ctx context.Context, hash, path string) error {
	res := r.db.WithContext(ctx).Model(&model.Document{}).Where("doc_hash = ?", hash).Update("upload_path", path)
	if res.Error != nil {
		return fmt.Errorf("更新文档路径失败: %w", res.Error)
	}
	return nil
}

// MarkIndexed 只执行 false -> true 的转换，已索引的记录保持不变。
func (r *documentRepository) MarkIndexed(ctx context.Context, hash string) error {
	res := r.db.WithContext(ctx).Model(&model.Document{}).
		Where("doc_hash = ? AND indexed = ?", hash, false).
		Update("indexed", true)
	if res.Error != nil {
		return fmt.Errorf("标记文档已索引失败: %w", res.Error)
	}
	return nil
}

func (r *documentRepository) List(ctx context.Context) ([]model.Document, error) {
	var docs []model.Document
	if err := r.db.WithContext(ctx).Order("created_at DESC, id DESC").Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("查询文档列表失败: %w", err)
	}
	return docs, nil
}

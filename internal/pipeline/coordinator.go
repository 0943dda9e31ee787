// Package pipeline 定义了文档入库的核心流程：去重、元数据登记、逐页抽取与向量化、批量写入向量库、标记已索引。
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"pdf-rag-go/internal/layout"
	"pdf-rag-go/internal/model"
	"pdf-rag-go/internal/repository"
	"pdf-rag-go/pkg/lock"
	"pdf-rag-go/pkg/log"
	"pdf-rag-go/pkg/pdfdoc"
	"pdf-rag-go/pkg/storage"
)

// Document 是一个已打开、待入库的 PDF，页码从 0 开始。
type Document interface {
	Hash() string
	Path() string
	Filename() string
	TotalPages() int
	Metadata() map[string]string
	Layout(page int) (pdfdoc.PageLayout, error)
	Render(page int) ([]byte, error)
}

// Embedder 把页面图像编码为多向量。
type Embedder interface {
	EmbedImage(ctx context.Context, png []byte) ([][]float32, error)
	Device() string
}

// Coordinator 负责单个文档的入库，并维护元数据库与向量库之间的一致性：
// 只有全部页面写入向量库之后，文档记录才会被标记为已索引。
type Coordinator struct {
	docs        repository.DocumentRepository
	vectors     repository.PageVectorRepository
	artifacts   storage.ArtifactStore
	embedder    Embedder
	locker      lock.Locker
	samplePages int
}

// NewCoordinator 创建入库协调器。artifacts 为 nil 时不保存页面渲染图；locker 为 nil 时使用进程内锁。
func NewCoordinator(
	docs repository.DocumentRepository,
	vectors repository.PageVectorRepository,
	artifacts storage.ArtifactStore,
	embedder Embedder,
	locker lock.Locker,
	samplePages int,
) *Coordinator {
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}
	return &Coordinator{
		docs:        docs,
		vectors:     vectors,
		artifacts:   artifacts,
		embedder:    embedder,
		locker:      locker,
		samplePages: samplePages,
	}
}

// Ingest 入库一个文档。同一内容指纹的入库在锁内串行执行。
// 出错时返回 Status=error 的结果以及错误本身，文档记录保持未索引，重试会重新处理全部页面。
func (c *Coordinator) Ingest(ctx context.Context, doc Document) (model.IngestResult, error) {
	hash := doc.Hash()
	result := model.IngestResult{Filename: doc.Filename(), Hash: hash}
	fail := func(err error) (model.IngestResult, error) {
		log.Errorf("[Coordinator] 文档入库失败, hash: %s, file: %s, error: %v", hash, doc.Filename(), err)
		result.Status = model.StatusError
		result.Message = err.Error()
		return result, err
	}

	unlock, err := c.locker.Lock(ctx, hash)
	if err != nil {
		return fail(fmt.Errorf("获取文档锁失败: %w", err))
	}
	defer unlock()

	log.Infof("[Coordinator] 开始入库, hash: %s, file: %s, pages: %d", hash, doc.Filename(), doc.TotalPages())

	// 1. 按内容指纹查找已有记录
	rec, err := c.docs.FindByHash(ctx, hash)
	switch {
	case err == nil:
		if rec.UploadPath != doc.Path() {
			log.Infof("[Coordinator] 文件位置变化, 更新路径: %s -> %s", rec.UploadPath, doc.Path())
			if err := c.docs.UpdatePath(ctx, hash, doc.Path()); err != nil {
				return fail(err)
			}
		}
		if rec.Indexed {
			log.Infof("[Coordinator] 文档已索引, 跳过, hash: %s", hash)
			result.Status = model.StatusAlreadyProcessed
			result.Message = "文档已处理过"
			return result, nil
		}
		log.Warnf("[Coordinator] 发现未完成的入库记录, 重新处理全部页面, hash: %s", hash)

	case errors.Is(err, repository.ErrDocumentNotFound):
		rec = &model.Document{
			DocHash:    hash,
			Filename:   doc.Filename(),
			UploadPath: doc.Path(),
			TotalPages: doc.TotalPages(),
			Metadata:   model.EncodeMetadata(doc.Metadata()),
		}
		inserted, err := c.docs.CreateIfAbsent(ctx, rec)
		if err != nil {
			return fail(err)
		}
		if !inserted && rec.UploadPath != doc.Path() {
			log.Infof("[Coordinator] 记录已由其他进程创建, 更新路径: %s -> %s", rec.UploadPath, doc.Path())
			if err := c.docs.UpdatePath(ctx, hash, doc.Path()); err != nil {
				return fail(err)
			}
		}
		if !inserted && rec.Indexed {
			// 其他进程已经完成了同一内容的入库
			result.Status = model.StatusAlreadyProcessed
			result.Message = "文档已处理过"
			return result, nil
		}

	default:
		return fail(err)
	}

	// 2. 逐页抽取、渲染、向量化
	points, err := c.processPages(ctx, doc)
	if err != nil {
		return fail(err)
	}

	// 3. 一次批量写入向量库
	if err := c.vectors.Upsert(ctx, points); err != nil {
		return fail(err)
	}

	// 4. 全部页面可检索之后再标记已索引
	if err := c.docs.MarkIndexed(ctx, hash); err != nil {
		return fail(err)
	}

	log.Infof("[Coordinator] 文档入库完成, hash: %s, pages: %d", hash, len(points))
	result.Status = model.StatusIngested
	result.Message = fmt.Sprintf("成功入库 %d 页", len(points))
	return result, nil
}

func (c *Coordinator) processPages(ctx context.Context, doc Document) ([]model.PagePoint, error) {
	hash := doc.Hash()
	total := doc.TotalPages()
	session := layout.NewSession(pageSource{doc: doc}, c.samplePages)
	device := c.embedder.Device()
	metadata := doc.Metadata()

	points := make([]model.PagePoint, 0, total)
	for i := 0; i < total; i++ {
		extracted, err := session.Extract(i)
		if err != nil {
			return nil, fmt.Errorf("抽取第 %d 页失败: %w", i, err)
		}

		png, err := doc.Render(i)
		if err != nil {
			return nil, fmt.Errorf("渲染第 %d 页失败: %w", i, err)
		}
		log.Debugf("[Coordinator] 第 %d 页渲染完成, PNG %d 字节", i, len(png))

		vec, err := c.embedder.EmbedImage(ctx, png)
		if err != nil {
			return nil, fmt.Errorf("第 %d 页向量化失败: %w", i, err)
		}

		if c.artifacts != nil {
			key := storage.PagesPrefix + model.PageImageName(hash, i, total)
			if err := c.artifacts.Put(ctx, key, png, "image/png"); err != nil {
				return nil, fmt.Errorf("保存第 %d 页渲染图失败: %w", i, err)
			}
		}

		points = append(points, model.PagePoint{
			ID:     model.PagePointID(hash, i, total),
			Vector: vec,
			Payload: model.PagePayload{
				DocumentHash:   hash,
				PageNumber:     i,
				Text:           extracted.Text,
				Blocks:         extracted.Blocks,
				TablesText:     extracted.TablesText,
				FigureCaptions: extracted.FigureCaptions,
				Metadata:       metadata,
				DeviceUsed:     device,
			},
		})
		log.Infof("[Coordinator] 第 %d/%d 页处理完成, 子向量数: %d", i+1, total, len(vec))
	}
	return points, nil
}

// pageSource 把 Document 适配为版面抽取的页面来源。
type pageSource struct {
	doc Document
}

func (s pageSource) PageCount() int { return s.doc.TotalPages() }

func (s pageSource) Layout(i int) (layout.Page, error) {
	pl, err := s.doc.Layout(i)
	if err != nil {
		return layout.Page{}, err
	}
	page := layout.Page{Width: pl.Width, Height: pl.Height, Blocks: make([]layout.RawBlock, 0, len(pl.Blocks))}
	for _, b := range pl.Blocks {
		page.Blocks = append(page.Blocks, layout.RawBlock{X0: b.X0, Y0: b.Y0, X1: b.X1, Y1: b.Y1, Text: b.Text})
	}
	return page, nil
}

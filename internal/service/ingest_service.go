// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"time"

	"pdf-rag-go/internal/model"
	"pdf-rag-go/internal/pipeline"
	"pdf-rag-go/pkg/hasher"
	"pdf-rag-go/pkg/log"
	"pdf-rag-go/pkg/pdfdoc"
	"pdf-rag-go/pkg/storage"
	"pdf-rag-go/pkg/tasks"
	"pdf-rag-go/pkg/tika"
)

// UploadFile 是一个待入库的上传文件。
type UploadFile struct {
	Filename string
	Open     func() (io.ReadCloser, error)
}

// FromMultipart 把 multipart 表单中的文件转换为 UploadFile。
func FromMultipart(fh *multipart.FileHeader) UploadFile {
	return UploadFile{
		Filename: fh.Filename,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

// OpenedDocument 是一个可以交给入库协调器、用完需要关闭的文档。
type OpenedDocument interface {
	pipeline.Document
	Close() error
}

// DocumentOpener 打开位于 path 的 PDF。
type DocumentOpener func(path string, opts pdfdoc.Options) (OpenedDocument, error)

// OpenPDF 是默认的 DocumentOpener。
func OpenPDF(path string, opts pdfdoc.Options) (OpenedDocument, error) {
	doc, err := pdfdoc.Open(path, opts)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// TaskPublisher 把入库任务发送到异步队列。
type TaskPublisher func(ctx context.Context, task tasks.IngestionTask) error

// Ingester 是入库协调器的抽象。
type Ingester interface {
	Ingest(ctx context.Context, doc pipeline.Document) (model.IngestResult, error)
}

// IngestOptions 是 IngestService 的可选依赖。
type IngestOptions struct {
	TempDir string
	DPI     float64
	// Archive 非空时额外把 PDF 原件归档到对象存储。
	Archive storage.ArtifactStore
	Tika    *tika.Client
	Open    DocumentOpener
	Publish TaskPublisher
}

// IngestService 接口定义了文档上传与入库相关的业务操作。
type IngestService interface {
	// IngestBatch 同步入库一批上传文件，单个文件失败不影响其他文件。
	IngestBatch(ctx context.Context, files []UploadFile) model.BatchIngestResponse
	// EnqueueBatch 保存文件后把入库任务投递到队列。
	EnqueueBatch(ctx context.Context, files []UploadFile) model.BatchIngestResponse
	// Process 处理一个队列中的入库任务。
	Process(ctx context.Context, task tasks.IngestionTask) error
}

type ingestService struct {
	ingester Ingester
	files    *storage.LocalStore
	opts     IngestOptions
}

// NewIngestService 创建一个新的 IngestService 实例。files 是按内容寻址保存 PDF 原件的本地目录。
func NewIngestService(ingester Ingester, files *storage.LocalStore, opts IngestOptions) IngestService {
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if opts.Open == nil {
		opts.Open = OpenPDF
	}
	return &ingestService{ingester: ingester, files: files, opts: opts}
}

func elapsed(start time.Time) string {
	return fmt.Sprintf("%.6f", time.Since(start).Seconds())
}

func errorResult(name string, err error, start time.Time) model.IngestResult {
	return model.IngestResult{
		Filename:       name,
		Status:         model.StatusError,
		Message:        err.Error(),
		ProcessingTime: elapsed(start),
	}
}

func (s *ingestService) IngestBatch(ctx context.Context, files []UploadFile) model.BatchIngestResponse {
	startAll := time.Now()
	results := make([]model.IngestResult, 0, len(files))
	for _, f := range files {
		start := time.Now()
		res, err := s.ingestOne(ctx, f)
		if err != nil {
			log.Errorf("[IngestService] 文件入库失败, file: %s, error: %v", f.Filename, err)
			res = errorResult(f.Filename, err, start)
		}
		res.Filename = f.Filename
		res.ProcessingTime = elapsed(start)
		results = append(results, res)
	}
	log.Infof("[IngestService] 批量入库完成, 文件数: %d, 总耗时: %s", len(files), time.Since(startAll))
	return model.BatchIngestResponse{TotalProcessingTime: elapsed(startAll), Results: results}
}

func (s *ingestService) ingestOne(ctx context.Context, f UploadFile) (model.IngestResult, error) {
	path, _, err := s.stage(ctx, f)
	if err != nil {
		return model.IngestResult{}, err
	}
	return s.ingestPath(ctx, path, f.Filename, "")
}

// ingestPath 打开并入库 path 处的 PDF。wantHash 非空时要求文件内容指纹与之一致。
func (s *ingestService) ingestPath(ctx context.Context, path, filename, wantHash string) (model.IngestResult, error) {
	doc, err := s.opts.Open(path, pdfdoc.Options{
		Filename: filename,
		DPI:      s.opts.DPI,
		Metadata: s.metadata(ctx, path, filename),
	})
	if err != nil {
		return model.IngestResult{}, err
	}
	defer func() {
		if cerr := doc.Close(); cerr != nil {
			log.Warnf("[IngestService] 关闭文档失败: %v", cerr)
		}
	}()
	if wantHash != "" && doc.Hash() != wantHash {
		return model.IngestResult{}, fmt.Errorf("文件内容与任务不符: 期望 %s, 实际 %s", wantHash, doc.Hash())
	}
	return s.ingester.Ingest(ctx, doc)
}

// metadata 优先从 Tika 读取元数据，失败或未配置时返回 nil，使用 PDF 自带的元数据。
func (s *ingestService) metadata(ctx context.Context, path, filename string) map[string]string {
	if s.opts.Tika == nil {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	meta, err := s.opts.Tika.Metadata(ctx, f, filename)
	if err != nil {
		log.Warnf("[IngestService] Tika 读取元数据失败, 使用 PDF 自带元数据: %v", err)
		return nil
	}
	return meta
}

// stage 把上传内容写入临时文件并校验，然后移动到 {hash}.pdf。
// 同内容的文件已存在时丢弃临时文件。任何一步失败都会清理临时文件。
func (s *ingestService) stage(ctx context.Context, f UploadFile) (path, hash string, err error) {
	if err := pdfdoc.ValidateName(f.Filename); err != nil {
		return "", "", err
	}
	if err := os.MkdirAll(s.opts.TempDir, 0o755); err != nil {
		return "", "", fmt.Errorf("创建临时目录失败: %w", err)
	}
	tmp, err := os.CreateTemp(s.opts.TempDir, "upload-*.pdf")
	if err != nil {
		return "", "", fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpPath := tmp.Name()
	adopted := false
	defer func() {
		if !adopted {
			if rmErr := os.Remove(tmpPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				log.Warnf("[IngestService] 清理临时文件失败: %v", rmErr)
			}
		}
	}()

	if err := copyUpload(tmp, f); err != nil {
		return "", "", err
	}
	if err := pdfdoc.Validate(tmpPath); err != nil {
		return "", "", err
	}
	hash, err = hasher.SumFile(tmpPath)
	if err != nil {
		return "", "", fmt.Errorf("计算文件指纹失败: %w", err)
	}

	path, existed, err := s.files.Adopt(tmpPath, model.DocumentFileName(hash))
	if err != nil {
		return "", "", err
	}
	adopted = true
	if existed {
		log.Infof("[IngestService] 同内容文件已存在, 丢弃临时文件, hash: %s", hash)
	}
	s.archive(ctx, hash, path)
	return path, hash, nil
}

func copyUpload(dst *os.File, f UploadFile) error {
	defer dst.Close()
	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("读取上传文件失败: %w", err)
	}
	defer src.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("写入临时文件失败: %w", err)
	}
	return dst.Close()
}

// archive 把 PDF 原件归档到对象存储，失败只记录日志。
func (s *ingestService) archive(ctx context.Context, hash, path string) {
	if s.opts.Archive == nil {
		return
	}
	key := storage.DocumentsPrefix + model.DocumentFileName(hash)
	if ok, err := s.opts.Archive.Exists(ctx, key); err == nil && ok {
		return
	}
	if err := s.opts.Archive.PutFile(ctx, key, path, "application/pdf"); err != nil {
		log.Warnf("[IngestService] 归档 PDF 失败, key: %s, error: %v", key, err)
		return
	}
	log.Infof("[IngestService] PDF 已归档到 %s", s.opts.Archive.Location(key))
}

func (s *ingestService) EnqueueBatch(ctx context.Context, files []UploadFile) model.BatchIngestResponse {
	startAll := time.Now()
	results := make([]model.IngestResult, 0, len(files))
	for _, f := range files {
		start := time.Now()
		res, err := s.enqueueOne(ctx, f)
		if err != nil {
			log.Errorf("[IngestService] 投递入库任务失败, file: %s, error: %v", f.Filename, err)
			res = errorResult(f.Filename, err, start)
		}
		res.ProcessingTime = elapsed(start)
		results = append(results, res)
	}
	return model.BatchIngestResponse{TotalProcessingTime: elapsed(startAll), Results: results}
}

func (s *ingestService) enqueueOne(ctx context.Context, f UploadFile) (model.IngestResult, error) {
	if s.opts.Publish == nil {
		return model.IngestResult{}, errors.New("异步入库未启用")
	}
	path, hash, err := s.stage(ctx, f)
	if err != nil {
		return model.IngestResult{}, err
	}
	task := tasks.IngestionTask{DocHash: hash, Path: path, FileName: f.Filename}
	if err := s.opts.Publish(ctx, task); err != nil {
		return model.IngestResult{}, fmt.Errorf("发送入库任务失败: %w", err)
	}
	log.Infof("[IngestService] 入库任务已投递, hash: %s, file: %s", hash, f.Filename)
	return model.IngestResult{
		Filename: f.Filename,
		Status:   model.StatusQueued,
		Hash:     hash,
		Message:  "已加入入库队列",
	}, nil
}

func (s *ingestService) Process(ctx context.Context, task tasks.IngestionTask) error {
	res, err := s.ingestPath(ctx, task.Path, task.FileName, task.DocHash)
	if err != nil {
		return err
	}
	log.Infof("[IngestService] 异步入库完成, hash: %s, status: %s", task.DocHash, res.Status)
	return nil
}

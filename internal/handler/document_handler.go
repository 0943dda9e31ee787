// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pdf-rag-go/internal/service"
	"pdf-rag-go/pkg/log"
)

// DocumentHandler 负责处理所有与文档上传和查询相关的 API 请求。
type DocumentHandler struct {
	ingestService service.IngestService
	docService    service.DocumentService
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(ingestService service.IngestService, docService service.DocumentService) *DocumentHandler {
	return &DocumentHandler{
		ingestService: ingestService,
		docService:    docService,
	}
}

func uploadedFiles(c *gin.Context) ([]service.UploadFile, bool) {
	form, err := c.MultipartForm()
	if err != nil {
		log.Warnf("[DocumentHandler] 解析 multipart 表单失败: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "请求必须是 multipart/form-data", "data": nil})
		return nil, false
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "缺少上传文件 files", "data": nil})
		return nil, false
	}
	files := make([]service.UploadFile, 0, len(headers))
	for _, fh := range headers {
		files = append(files, service.FromMultipart(fh))
	}
	return files, true
}

// Upload 同步入库上传的 PDF，每个文件单独报告结果。
func (h *DocumentHandler) Upload(c *gin.Context) {
	files, ok := uploadedFiles(c)
	if !ok {
		return
	}
	log.Infof("[DocumentHandler] 收到上传请求, 文件数: %d", len(files))
	resp := h.ingestService.IngestBatch(c.Request.Context(), files)
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": resp})
}

// UploadAsync 保存上传的 PDF 并投递异步入库任务。
func (h *DocumentHandler) UploadAsync(c *gin.Context) {
	files, ok := uploadedFiles(c)
	if !ok {
		return
	}
	log.Infof("[DocumentHandler] 收到异步上传请求, 文件数: %d", len(files))
	resp := h.ingestService.EnqueueBatch(c.Request.Context(), files)
	c.JSON(http.StatusAccepted, gin.H{"code": http.StatusAccepted, "message": "success", "data": resp})
}

// List 返回所有文档记录。
func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.docService.List(c.Request.Context())
	if err != nil {
		log.Error("[DocumentHandler] 获取文档列表失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "获取文档列表失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": docs})
}

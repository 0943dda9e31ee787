package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"pdf-rag-go/internal/model"
	"pdf-rag-go/internal/service"
	"pdf-rag-go/pkg/llm"
	"pdf-rag-go/pkg/log"
)

// AskHandler 以 Server-Sent Events 流式返回大模型的回答。
type AskHandler struct {
	askService service.AskService
}

// NewAskHandler 创建一个新的 AskHandler。
func NewAskHandler(askService service.AskService) *AskHandler {
	return &AskHandler{askService: askService}
}

// sseWriter 把模型分块写成 SSE 事件，第一次写入时才发送响应头。
type sseWriter struct {
	c       *gin.Context
	started bool
}

func (w *sseWriter) start() {
	if w.started {
		return
	}
	w.started = true
	h := w.c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.c.Status(http.StatusOK)
}

// WriteChunk 满足 llm.ChunkWriter 接口。
func (w *sseWriter) WriteChunk(content string) error {
	if err := w.c.Request.Context().Err(); err != nil {
		return err
	}
	w.start()
	w.c.SSEvent("message", gin.H{"chunk": content})
	w.c.Writer.Flush()
	return nil
}

var _ llm.ChunkWriter = (*sseWriter)(nil)

// Ask 处理问答请求：检索相关页面，再把上下文交给大模型生成回答。
func (h *AskHandler) Ask(c *gin.Context) {
	var req model.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Question) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "问题不能为空", "data": nil})
		return
	}
	log.Infof("[AskHandler] 收到问答请求, question: %s", req.Question)

	w := &sseWriter{c: c}
	found, err := h.askService.Ask(c.Request.Context(), req, w)
	if err != nil {
		log.Errorf("[AskHandler] 问答失败: %v", err)
		if !w.started {
			c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": err.Error(), "data": nil})
			return
		}
		c.SSEvent("error", gin.H{"message": err.Error()})
		c.Writer.Flush()
		return
	}

	w.start()
	sources := make([]gin.H, 0, len(found.Results))
	for _, r := range found.Results {
		sources = append(sources, gin.H{"filename": r.Filename, "page_number": r.PageNumber, "score": r.Score})
	}
	c.SSEvent("completion", gin.H{
		"status":    "finished",
		"sources":   sources,
		"timestamp": time.Now().UnixMilli(),
	})
	c.Writer.Flush()
}

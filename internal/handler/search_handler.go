package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"pdf-rag-go/internal/model"
	"pdf-rag-go/internal/service"
	"pdf-rag-go/pkg/log"
)

// SearchHandler 结构体定义了搜索相关的处理器。
type SearchHandler struct {
	searchService service.SearchService
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(searchService service.SearchService) *SearchHandler {
	return &SearchHandler{
		searchService: searchService,
	}
}

// Search 处理页面检索请求。
func (h *SearchHandler) Search(c *gin.Context) {
	var req model.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		log.Warnf("[SearchHandler] 搜索请求失败: text 为空或请求体无效")
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的查询参数", "data": nil})
		return
	}
	log.Infof("[SearchHandler] 收到搜索请求, text: %s", req.Text)

	resp, err := h.searchService.Search(c.Request.Context(), req)
	if err != nil {
		log.Errorf("[SearchHandler] 搜索服务返回错误, error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": err.Error(), "data": nil})
		return
	}

	log.Infof("[SearchHandler] 搜索成功, text: '%s', 返回 %d 条结果", req.Text, len(resp.Results))
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": resp})
}

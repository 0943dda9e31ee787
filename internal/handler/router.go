package handler

import (
	"github.com/gin-gonic/gin"

	"pdf-rag-go/internal/middleware"
)

// Handlers 汇总所有需要注册的处理器。
type Handlers struct {
	Documents *DocumentHandler
	Search    *SearchHandler
	Ask       *AskHandler
	Health    HealthInfo
}

// NewRouter 创建 Gin 引擎并注册 /api/v1 下的全部路由。
func NewRouter(h Handlers, maxUploadMB int64) *gin.Engine {
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	if maxUploadMB > 0 {
		r.MaxMultipartMemory = maxUploadMB << 20
	}
	r.Use(middleware.RequestLogger(), gin.Recovery())

	apiV1 := r.Group("/api/v1")
	{
		apiV1.GET("/health", Health(h.Health))

		documents := apiV1.Group("/documents")
		{
			documents.GET("", h.Documents.List)
			documents.POST("/upload", h.Documents.Upload)
			documents.POST("/upload/async", h.Documents.UploadAsync)
		}

		apiV1.POST("/search", h.Search.Search)
		apiV1.POST("/ask", h.Ask.Ask)
	}
	return r
}

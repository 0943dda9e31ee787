package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthInfo 描述服务当前使用的模型与各后端。
type HealthInfo struct {
	Model          string `json:"model"`
	Device         string `json:"device"`
	VectorBackend  string `json:"vector_backend"`
	StorageBackend string `json:"storage_backend"`
	LockBackend    string `json:"lock_backend"`
	AsyncIngestion bool   `json:"async_ingestion"`
}

// Health 返回健康检查处理函数。
func Health(info HealthInfo) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "ok", "data": info})
	}
}

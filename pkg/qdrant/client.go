// Package qdrant 负责 Qdrant 向量库的连接与多向量集合的创建。
package qdrant

import (
	"context"
	"fmt"

	qc "github.com/qdrant/go-client/qdrant"

	"pdf-rag-go/internal/config"
	"pdf-rag-go/pkg/log"
)

// NewClient 创建 Qdrant gRPC 客户端。
func NewClient(cfg config.QdrantConfig) (*qc.Client, error) {
	port := cfg.Port
	if port == 0 {
		port = 6334
	}
	client, err := qc.NewClient(&qc.Config{
		Host:   cfg.Host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("连接 Qdrant 失败: %w", err)
	}
	log.Infof("[Qdrant] 客户端初始化成功, %s:%d", cfg.Host, port)
	return client, nil
}

// EnsureMultiVectorCollection 确保集合存在：一个命名多向量字段，余弦距离，MAX_SIM 聚合。
func EnsureMultiVectorCollection(ctx context.Context, client *qc.Client, name, vectorName string, dims int) error {
	exists, err := client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("检查集合 %s 失败: %w", name, err)
	}
	if exists {
		log.Infof("[Qdrant] 集合 '%s' 已存在", name)
		return nil
	}

	err = client.CreateCollection(ctx, &qc.CreateCollection{
		CollectionName: name,
		VectorsConfig: qc.NewVectorsConfigMap(map[string]*qc.VectorParams{
			vectorName: {
				Size:     uint64(dims),
				Distance: qc.Distance_Cosine,
				MultivectorConfig: &qc.MultiVectorConfig{
					Comparator: qc.MultiVectorComparator_MaxSim,
				},
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("创建集合 %s 失败: %w", name, err)
	}
	log.Infof("[Qdrant] 集合 '%s' 创建成功, dims: %d", name, dims)
	return nil
}

package repository

import (
	"context"
	"sort"
	"sync"

	"pdf-rag-go/internal/model"
	"pdf-rag-go/pkg/vectormath"
)

// MemoryPageVectorRepository 是进程内的实现，用于本地开发和测试，重启后数据丢失。
type MemoryPageVectorRepository struct {
	mu      sync.RWMutex
	points  map[string]model.PagePoint
	upserts int
}

// NewMemoryPageVectorRepository 创建一个空的内存向量库。
func NewMemoryPageVectorRepository() *MemoryPageVectorRepository {
	return &MemoryPageVectorRepository{points: map[string]model.PagePoint{}}
}

func (r *MemoryPageVectorRepository) Backend() string { return "memory" }

func (r *MemoryPageVectorRepository) EnsureCollection(context.Context) error { return nil }

func (r *MemoryPageVectorRepository) Upsert(_ context.Context, points []model.PagePoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range points {
		r.points[p.ID] = p
	}
	r.upserts++
	return nil
}

func (r *MemoryPageVectorRepository) Search(_ context.Context, query [][]float32, limit int) ([]model.PageHit, error) {
	r.mu.RLock()
	hits := make([]model.PageHit, 0, len(r.points))
	for id, p := range r.points {
		hits = append(hits, model.PageHit{ID: id, Score: vectormath.MaxSim(query, p.Vector), Payload: p.Payload})
	}
	r.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if limit >= 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Len 返回当前保存的点数。
func (r *MemoryPageVectorRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.points)
}

// Upserts 返回批量写入被调用的次数。
func (r *MemoryPageVectorRepository) Upserts() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.upserts
}

// Points 返回全部点的副本，按 (文档指纹, 页码) 排序。
func (r *MemoryPageVectorRepository) Points() []model.PagePoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.PagePoint, 0, len(r.points))
	for _, p := range r.points {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Payload.DocumentHash != out[j].Payload.DocumentHash {
			return out[i].Payload.DocumentHash < out[j].Payload.DocumentHash
		}
		return out[i].Payload.PageNumber < out[j].Payload.PageNumber
	})
	return out
}

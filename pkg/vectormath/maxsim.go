// Package vectormath 提供多向量（late interaction）相似度计算。
package vectormath

import "math"

// Dot 返回两个向量的点积，长度不同时只计算公共部分。
func Dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var s float64
	for i := 0; i < n; i++ {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

// MaxSim 对查询的每个子向量取与文档子向量的最大点积，再求和。
// 与 Elasticsearch 的 maxSimDotProduct、Qdrant 的 MAX_SIM 比较方式一致。
func MaxSim(query, doc [][]float32) float64 {
	if len(doc) == 0 {
		return 0
	}
	var total float64
	for _, q := range query {
		best := math.Inf(-1)
		for _, d := range doc {
			if s := Dot(q, d); s > best {
				best = s
			}
		}
		total += best
	}
	return total
}

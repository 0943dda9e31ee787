// Package embedding 是多向量 Embedding 模型的网关。
// 模型由独立的推理服务加载（GPU/CPU），这里持有一个显式的模型句柄：进程启动时 Load 一次，
// 所有请求共享，退出时 Close。
package embedding

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"pdf-rag-go/internal/config"
	"pdf-rag-go/pkg/log"
)

// ErrModelClosed 表示模型句柄已经释放。
var ErrModelClosed = errors.New("embedding 模型已关闭")

// Model 是已加载模型的句柄，可被多个 goroutine 并发使用。
type Model struct {
	baseURL string
	apiKey  string
	client  *http.Client

	name   string
	device string
	dim    int

	mu     sync.RWMutex
	closed bool
}

type healthResponse struct {
	Model  string `json:"model"`
	Device string `json:"device"`
	Dim    int    `json:"dim"`
}

type embedImagesRequest struct {
	Model  string   `json:"model"`
	Images []string `json:"images"`
}

type embedQueriesRequest struct {
	Model   string   `json:"model"`
	Queries []string `json:"queries"`
}

type embedResponse struct {
	Embeddings [][][]float32 `json:"embeddings"`
	Device     string        `json:"device"`
}

// Load 探测推理服务的 /health 并获取模型句柄，服务不可用时返回错误。
func Load(ctx context.Context, cfg config.EmbeddingConfig) (*Model, error) {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	m := &Model{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
		name:    cfg.Model,
	}

	log.Infof("[Embedding] 开始加载模型句柄, url: %s, model: %s", m.baseURL, cfg.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("创建健康检查请求失败: %w", err)
	}
	m.setAuth(req)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("连接 embedding 服务失败: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embedding 服务未就绪: %s %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var h healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return nil, fmt.Errorf("解析健康检查响应失败: %w", err)
	}
	if m.name == "" {
		m.name = h.Model
	} else if h.Model != "" && h.Model != m.name {
		log.Warnf("[Embedding] 配置的模型 %s 与服务加载的模型 %s 不一致, 以服务为准", m.name, h.Model)
		m.name = h.Model
	}
	m.device = h.Device
	if m.device == "" {
		m.device = "unknown"
	}
	m.dim = h.Dim

	log.Infof("[Embedding] 模型已就绪, model: %s, device: %s, dim: %d", m.name, m.device, m.dim)
	return m, nil
}

func (m *Model) setAuth(req *http.Request) {
	if m.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
	}
}

// Name 返回模型名称。
func (m *Model) Name() string { return m.name }

// Device 返回推理所在的设备（cuda / mps / cpu）。
func (m *Model) Device() string { return m.device }

// Dim 返回每个子向量的维度，服务未报告时为 0。
func (m *Model) Dim() int { return m.dim }

// EmbedImage 把一张 PNG 页面图像编码为多向量。
func (m *Model) EmbedImage(ctx context.Context, png []byte) ([][]float32, error) {
	if len(png) == 0 {
		return nil, errors.New("页面图像为空")
	}
	return m.embed(ctx, "/embed/images", embedImagesRequest{
		Model:  m.name,
		Images: []string{base64.StdEncoding.EncodeToString(png)},
	})
}

// EmbedText 把查询文本编码为多向量。
func (m *Model) EmbedText(ctx context.Context, text string) ([][]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("查询文本为空")
	}
	return m.embed(ctx, "/embed/queries", embedQueriesRequest{Model: m.name, Queries: []string{text}})
}

func (m *Model) embed(ctx context.Context, path string, payload any) ([][]float32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrModelClosed
	}

	reqBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("序列化 embedding 请求失败: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+path, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("创建 embedding 请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	m.setAuth(req)

	resp, err := m.client.Do(req)
	if err != nil {
		log.Errorf("[Embedding] 调用 %s 失败, error: %v", path, err)
		return nil, fmt.Errorf("调用 embedding 服务失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Errorf("[Embedding] %s 返回非 200 状态码: %s", path, resp.Status)
		return nil, fmt.Errorf("embedding 服务返回 %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var er embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, fmt.Errorf("解析 embedding 响应失败: %w", err)
	}
	if len(er.Embeddings) != 1 {
		return nil, fmt.Errorf("embedding 响应数量异常: 期望 1, 实际 %d", len(er.Embeddings))
	}
	vecs := er.Embeddings[0]
	if err := m.checkShape(vecs); err != nil {
		return nil, err
	}
	return vecs, nil
}

// checkShape 校验多向量非空且每个子向量维度一致。
func (m *Model) checkShape(vecs [][]float32) error {
	if len(vecs) == 0 {
		return errors.New("embedding 服务返回了空的多向量")
	}
	width := len(vecs[0])
	if m.dim > 0 {
		width = m.dim
	}
	if width == 0 {
		return errors.New("embedding 子向量维度为 0")
	}
	for i, v := range vecs {
		if len(v) != width {
			return fmt.Errorf("第 %d 个子向量维度为 %d, 期望 %d", i, len(v), width)
		}
	}
	return nil
}

// Close 释放模型句柄，等待进行中的调用结束。之后的调用返回 ErrModelClosed。
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.client.CloseIdleConnections()
	log.Infof("[Embedding] 模型句柄已释放, model: %s", m.name)
	return nil
}

package layout

import (
	"fmt"
	"sync"

	"pdf-rag-go/internal/model"
)

// PageSource 是一个已打开文档的页面来源，页码从 0 开始。
type PageSource interface {
	PageCount() int
	Layout(page int) (Page, error)
}

type sessionState int

const (
	signaturesPending sessionState = iota
	signaturesReady
	signaturesFailed
)

// Session 在一次文档处理中缓存页眉/页脚签名：第一次抽取时计算，之后复用。
// 一个 Session 只对应一个文档，处理结束后丢弃。
type Session struct {
	src         PageSource
	samplePages int

	mu    sync.Mutex
	state sessionState
	sigs  Signatures
	err   error
}

// NewSession 创建一个抽取会话，samplePages <= 0 时使用 DefaultSamplePages。
func NewSession(src PageSource, samplePages int) *Session {
	if samplePages <= 0 {
		samplePages = DefaultSamplePages
	}
	return &Session{src: src, samplePages: samplePages}
}

// Signatures 返回文档的页眉/页脚签名，只会计算一次；计算失败时之后的调用返回同一个错误。
func (s *Session) Signatures() (Signatures, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case signaturesReady:
		return s.sigs, nil
	case signaturesFailed:
		return Signatures{}, s.err
	}

	n := s.src.PageCount()
	if n > s.samplePages {
		n = s.samplePages
	}
	pages := make([]Page, 0, n)
	for i := 0; i < n; i++ {
		p, err := s.src.Layout(i)
		if err != nil {
			s.state = signaturesFailed
			s.err = fmt.Errorf("采样第 %d 页计算页眉页脚签名失败: %w", i, err)
			return Signatures{}, s.err
		}
		pages = append(pages, p)
	}
	s.sigs = ComputeSignatures(pages)
	s.state = signaturesReady
	return s.sigs, nil
}

// Extract 抽取第 page 页（从 0 开始）的载荷内容。
func (s *Session) Extract(page int) (model.ExtractedPage, error) {
	sigs, err := s.Signatures()
	if err != nil {
		return model.ExtractedPage{}, err
	}
	p, err := s.src.Layout(page)
	if err != nil {
		return model.ExtractedPage{}, fmt.Errorf("读取第 %d 页版面失败: %w", page, err)
	}
	return ExtractPage(p, sigs), nil
}

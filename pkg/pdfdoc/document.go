// Package pdfdoc 封装对单个 PDF 的访问：校验、内容指纹、带坐标的文本块以及页面栅格化。
// 文本坐标来自 github.com/ledongthuc/pdf，渲染与文档元数据来自 MuPDF（go-fitz）。
package pdfdoc

import (
	"bytes"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"sync"

	"github.com/gen2brain/go-fitz"
	"github.com/ledongthuc/pdf"

	"pdf-rag-go/pkg/hasher"
)

// DefaultDPI 是页面渲染的默认分辨率。
const DefaultDPI = 300

// US Letter，页面缺少 MediaBox 时使用
const (
	defaultPageWidth  = 612
	defaultPageHeight = 792
)

// Options 控制文档的打开方式。
type Options struct {
	// Filename 是用户上传时的原始文件名，为空时使用路径中的文件名。
	Filename string
	DPI      float64
	// Metadata 非空时替换 PDF 自带的元数据（例如来自 Tika 的结果）。
	Metadata map[string]string
}

// Document 是一个已打开的 PDF。MuPDF 句柄不是并发安全的，渲染调用内部串行化。
type Document struct {
	path     string
	filename string
	hash     string
	dpi      float64
	total    int
	metadata map[string]string

	file   *os.File
	text   *pdf.Reader
	mu     sync.Mutex
	raster *fitz.Document
}

// Open 校验并打开 PDF，计算内容指纹，读取总页数与元数据。
func Open(path string, opts Options) (*Document, error) {
	if err := Validate(path); err != nil {
		return nil, err
	}

	hash, err := hasher.SumFile(path)
	if err != nil {
		return nil, fmt.Errorf("计算文件指纹失败: %w", err)
	}

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, &ValidationError{Path: path, Reason: "无法解析 PDF 结构", Err: err}
	}

	raster, err := fitz.New(path)
	if err != nil {
		f.Close()
		return nil, &ValidationError{Path: path, Reason: "无法加载 PDF 渲染器", Err: err}
	}

	d := &Document{
		path:     path,
		filename: opts.Filename,
		hash:     hash,
		dpi:      opts.DPI,
		total:    raster.NumPage(),
		file:     f,
		text:     r,
		raster:   raster,
	}
	if d.filename == "" {
		d.filename = filepath.Base(path)
	}
	if d.dpi <= 0 {
		d.dpi = DefaultDPI
	}
	if opts.Metadata != nil {
		d.metadata = opts.Metadata
	} else {
		d.metadata = nonEmpty(raster.Metadata())
	}
	return d, nil
}

func nonEmpty(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

func (d *Document) Path() string                { return d.path }
func (d *Document) Filename() string            { return d.filename }
func (d *Document) Hash() string                { return d.hash }
func (d *Document) TotalPages() int             { return d.total }
func (d *Document) Metadata() map[string]string { return d.metadata }

func (d *Document) checkPage(i int) error {
	if i < 0 || i >= d.total {
		return fmt.Errorf("第 %d 页（共 %d 页）: %w", i, d.total, ErrPageOutOfRange)
	}
	return nil
}

// Layout 返回第 i 页（从 0 开始）的带坐标文本块。
func (d *Document) Layout(i int) (PageLayout, error) {
	if err := d.checkPage(i); err != nil {
		return PageLayout{}, err
	}
	p := d.text.Page(i + 1)
	if p.V.IsNull() {
		return PageLayout{}, fmt.Errorf("第 %d 页对象缺失: %w", i, ErrPageOutOfRange)
	}

	box := mediaBox(p.V)
	glyphs, err := pageGlyphs(p)
	if err != nil {
		return PageLayout{}, fmt.Errorf("解析第 %d 页内容流失败: %w", i, err)
	}
	return PageLayout{
		Width:  box.Width,
		Height: box.Height,
		Blocks: groupBlocks(groupLines(box.shift(glyphs)), box.Height),
	}, nil
}

// pageGlyphs 读取内容流中的文字。ledongthuc/pdf 在遇到损坏的内容流时会 panic，这里转换为错误。
func pageGlyphs(p pdf.Page) (glyphs []glyph, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("内容流损坏: %v", r)
		}
	}()
	for _, t := range p.Content().Text {
		glyphs = append(glyphs, glyph{X: t.X, Y: t.Y, W: t.W, Size: t.FontSize, S: t.S})
	}
	return glyphs, nil
}

// mediaBox 沿 Parent 链查找可继承的 MediaBox。
func mediaBox(v pdf.Value) pageBox {
	node := v
	for depth := 0; depth < 32 && !node.IsNull(); depth++ {
		box := node.Key("MediaBox")
		if box.Kind() == pdf.Array && box.Len() == 4 {
			b := boxFromCorners(box.Index(0).Float64(), box.Index(1).Float64(), box.Index(2).Float64(), box.Index(3).Float64())
			if b.Width > 0 && b.Height > 0 {
				return b
			}
		}
		node = node.Key("Parent")
	}
	return pageBox{Width: defaultPageWidth, Height: defaultPageHeight}
}

// Render 把第 i 页渲染为 PNG。
func (d *Document) Render(i int) ([]byte, error) {
	if err := d.checkPage(i); err != nil {
		return nil, err
	}

	d.mu.Lock()
	if d.raster == nil {
		d.mu.Unlock()
		return nil, ErrClosed
	}
	img, err := d.raster.ImageDPI(i, d.dpi)
	d.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("渲染第 %d 页失败: %w", i, err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("编码第 %d 页 PNG 失败: %w", i, err)
	}
	return buf.Bytes(), nil
}

// Close 释放文本读取器与渲染器持有的资源。
func (d *Document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var firstErr error
	if d.raster != nil {
		firstErr = d.raster.Close()
		d.raster = nil
	}
	if d.file != nil {
		if err := d.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		d.file = nil
	}
	return firstErr
}

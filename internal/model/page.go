package model

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// BlockKind 是页面文本块的分类。
type BlockKind string

const (
	BlockText      BlockKind = "text"
	BlockCaption   BlockKind = "caption"
	BlockTableLike BlockKind = "table_like"
)

// Block 是页面中一个经过清洗的文本块，BBox 为 [x0, y0, x1, y1]，y 轴自上而下。
type Block struct {
	BBox [4]float64 `json:"bbox"`
	Text string     `json:"text"`
	Kind BlockKind  `json:"kind"`
}

// ExtractedPage 是单页抽取结果，只在构建向量点载荷时短暂存在，不持久化。
type ExtractedPage struct {
	Text           string
	Blocks         []Block
	TablesText     string
	FigureCaptions []string
}

// PagePayload 是随页面向量一起存入向量库的载荷。
type PagePayload struct {
	DocumentHash   string            `json:"document_hash"`
	PageNumber     int               `json:"page_number"`
	Text           string            `json:"text"`
	Blocks         []Block           `json:"blocks"`
	TablesText     string            `json:"tables_text"`
	FigureCaptions []string          `json:"figure_captions"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	DeviceUsed     string            `json:"device_used"`
	// TableWeirdness 由外部打分写入（可选），>= 0.6 时检索端优先使用表格文本。
	TableWeirdness *float64 `json:"table_weirdness,omitempty"`
}

// PagePoint 是一页的多向量表示，ID 只由 (内容指纹, 页码) 决定，重复入库会覆盖而不是新增。
type PagePoint struct {
	ID      string
	Vector  [][]float32
	Payload PagePayload
}

// PageHit 是一次向量检索的命中结果。
type PageHit struct {
	ID      string
	Score   float64
	Payload PagePayload
}

// PadPageNumber 用前导零把页码补齐到总页数的位数，保证文件名的字典序与页码顺序一致。
// 例如 PadPageNumber(3, 120) == "003"。
func PadPageNumber(page, totalPages int) string {
	s := strconv.Itoa(page)
	if totalPages <= 0 {
		return s
	}
	width := len(strconv.Itoa(totalPages))
	if len(s) >= width {
		return s
	}
	return fmt.Sprintf("%0*d", width, page)
}

// PagePointKey 返回页面的确定性键：{hash}_{补零页码}。
func PagePointKey(docHash string, page, totalPages int) string {
	return docHash + "_" + PadPageNumber(page, totalPages)
}

// PagePointID 基于 PagePointKey 生成 UUIDv5 (DNS 命名空间)，Qdrant 等后端要求点 ID 为 UUID。
func PagePointID(docHash string, page, totalPages int) string {
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(PagePointKey(docHash, page, totalPages))).String()
}

// PageImageName 返回页面渲染图的文件名 {hash}_p{补零页码}.png。
func PageImageName(docHash string, page, totalPages int) string {
	return fmt.Sprintf("%s_p%s.png", docHash, PadPageNumber(page, totalPages))
}

// DocumentFileName 返回按内容寻址的 PDF 文件名 {hash}.pdf。
func DocumentFileName(docHash string) string {
	return docHash + ".pdf"
}

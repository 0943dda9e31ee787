// Package layout 把页面上带坐标的原始文本块转换为干净的载荷内容：
// 过滤重复的页眉页脚与页码，识别图表标题和表格样式的文本，并按阅读顺序拼接正文。
//
// 启发式规则针对 Word 导出的单栏 PDF，不支持多栏排版。
package layout

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"pdf-rag-go/internal/model"
)

const (
	// DefaultSamplePages 是计算页眉页脚签名时最多采样的页数。
	DefaultSamplePages = 12
	// EdgeFraction 是页面顶部/底部条带占页面高度的比例。
	EdgeFraction = 0.10
	// SignatureRatio 与 MinSignatureCount 共同决定签名阈值 max(2, int(0.3*采样页数))。
	SignatureRatio    = 0.30
	MinSignatureCount = 2
	// MaxCaptionLen 超过该长度（字符数）的块不视为标题。
	MaxCaptionLen = 300
)

var (
	// Figura 3: / Fig. 2.1 - / Table 4. / Tabla 1: / Ilustración 5 – ...
	captionRe = regexp.MustCompile(`(?i)^\s*(Figura|Figure|Fig\.|Ilustración|Ilustracion|Ilus\.|Illustration|Table|Tabla)\s*\d+(\.\d+)*\s*[:.\-–]`)
	// Página 3 de 20 / Page 3 of 20 / 3/20，必须匹配整个块。
	pageNumberRe = regexp.MustCompile(`(?i)^\s*(p[áa]gina|page)?\s*\d+\s*(de|of|/)\s*\d+\s*$`)
)

// RawBlock 是页面上的一个原始文本块，坐标以页面左上角为原点，y 轴向下。
type RawBlock struct {
	X0, Y0, X1, Y1 float64
	Text           string
}

// Page 是一页的尺寸与原始文本块。
type Page struct {
	Width  float64
	Height float64
	Blocks []RawBlock
}

// Signatures 是一个文档的页眉/页脚签名集合（小写、空白已归一化）。
type Signatures struct {
	Header map[string]struct{}
	Footer map[string]struct{}
}

// IsHeader 判断归一化后的小写文本是否为页眉签名。
func (s Signatures) IsHeader(low string) bool {
	_, ok := s.Header[low]
	return ok
}

// IsFooter 判断归一化后的小写文本是否为页脚签名。
func (s Signatures) IsFooter(low string) bool {
	_, ok := s.Footer[low]
	return ok
}

// NormalizeWhitespace 把连续空白折叠为单个空格并去掉首尾空白。
func NormalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// IsPageNumber 判断整个块是否是分页标记。
func IsPageNumber(s string) bool {
	return pageNumberRe.MatchString(s)
}

// IsCaption 判断块是否为图/表标题。
func IsCaption(s string) bool {
	return captionRe.MatchString(s) && utf8.RuneCountInString(s) <= MaxCaptionLen
}

// LooksTabular 判断块是否像表格行：包含制表符、竖线，或至少两处连续双空格。
// 需要传入归一化之前的文本，否则列对齐信息已经丢失。
func LooksTabular(raw string) bool {
	return strings.Contains(raw, "\t") || strings.Contains(raw, "|") || strings.Count(raw, "  ") >= 2
}

// Classify 返回块的类型，raw 为原始文本，normalized 为归一化后的文本。
func Classify(raw, normalized string) model.BlockKind {
	if IsCaption(normalized) {
		return model.BlockCaption
	}
	if LooksTabular(raw) {
		return model.BlockTableLike
	}
	return model.BlockText
}

type stripTexts struct {
	top    []string
	bottom []string
}

// edgeTexts 收集页面顶部/底部条带中的归一化小写文本，同一页内去重。
func edgeTexts(p Page) stripTexts {
	var out stripTexts
	if p.Height <= 0 {
		return out
	}
	seenTop := map[string]bool{}
	seenBottom := map[string]bool{}
	for _, b := range p.Blocks {
		txt := strings.ToLower(NormalizeWhitespace(b.Text))
		if txt == "" {
			continue
		}
		if inTopStrip(b, p.Height) && !seenTop[txt] {
			seenTop[txt] = true
			out.top = append(out.top, txt)
		}
		if inBottomStrip(b, p.Height) && !seenBottom[txt] {
			seenBottom[txt] = true
			out.bottom = append(out.bottom, txt)
		}
	}
	return out
}

func inTopStrip(b RawBlock, height float64) bool {
	return height > 0 && b.Y1 <= EdgeFraction*height
}

func inBottomStrip(b RawBlock, height float64) bool {
	return height > 0 && b.Y0 >= (1-EdgeFraction)*height
}

// SignatureThreshold 返回采样 n 页时成为签名所需的最少出现页数。
func SignatureThreshold(n int) int {
	thr := int(SignatureRatio * float64(n))
	if thr < MinSignatureCount {
		thr = MinSignatureCount
	}
	return thr
}

// ComputeSignatures 根据采样页计算页眉/页脚签名。
// 某个文本在顶部条带出现的页数达到阈值即为页眉签名，底部同理。少于两页时返回空集合。
func ComputeSignatures(pages []Page) Signatures {
	sigs := Signatures{Header: map[string]struct{}{}, Footer: map[string]struct{}{}}
	n := len(pages)
	if n <= 1 {
		return sigs
	}

	topCount := map[string]int{}
	bottomCount := map[string]int{}
	for _, p := range pages {
		texts := edgeTexts(p)
		for _, t := range texts.top {
			topCount[t]++
		}
		for _, t := range texts.bottom {
			bottomCount[t]++
		}
	}

	thr := SignatureThreshold(n)
	for t, c := range topCount {
		if c >= thr {
			sigs.Header[t] = struct{}{}
		}
	}
	for t, c := range bottomCount {
		if c >= thr {
			sigs.Footer[t] = struct{}{}
		}
	}
	return sigs
}

// ExtractPage 过滤并分类一页的文本块，按 (上边缘, 左边缘) 排序后拼接正文。
// 没有可抽取的块时返回空结果，而不是错误。
func ExtractPage(p Page, sigs Signatures) model.ExtractedPage {
	blocks := make([]model.Block, 0, len(p.Blocks))
	for _, rb := range p.Blocks {
		txt := NormalizeWhitespace(rb.Text)
		if txt == "" {
			continue
		}
		low := strings.ToLower(txt)

		// 过滤重复的页眉页脚以及典型的分页标记
		if inTopStrip(rb, p.Height) && sigs.IsHeader(low) {
			continue
		}
		if inBottomStrip(rb, p.Height) && (sigs.IsFooter(low) || IsPageNumber(txt)) {
			continue
		}

		blocks = append(blocks, model.Block{
			BBox: [4]float64{rb.X0, rb.Y0, rb.X1, rb.Y1},
			Text: txt,
			Kind: Classify(strings.TrimSpace(rb.Text), txt),
		})
	}

	// 单栏假设：自上而下、自左向右
	sort.SliceStable(blocks, func(i, j int) bool {
		if blocks[i].BBox[1] != blocks[j].BBox[1] {
			return blocks[i].BBox[1] < blocks[j].BBox[1]
		}
		return blocks[i].BBox[0] < blocks[j].BBox[0]
	})

	var (
		parts    []string
		captions []string
		tables   []string
		last     string
	)
	for i, b := range blocks {
		switch b.Kind {
		case model.BlockCaption:
			captions = append(captions, b.Text)
		case model.BlockTableLike:
			tables = append(tables, b.Text)
		}
		// 跳过与上一块完全相同的文本
		if i > 0 && b.Text == last {
			continue
		}
		last = b.Text
		parts = append(parts, b.Text)
	}

	return model.ExtractedPage{
		Text:           strings.TrimSpace(strings.Join(parts, "\n\n")),
		Blocks:         blocks,
		TablesText:     strings.TrimSpace(strings.Join(tables, "\n")),
		FigureCaptions: captions,
	}
}

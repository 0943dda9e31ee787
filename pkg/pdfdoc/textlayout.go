package pdfdoc

import (
	"math"
	"sort"
	"strings"
)

const (
	// 基线差小于 字号*lineTolerance 的字形视为同一行
	lineTolerance = 0.5
	// 字形间距超过 字号*spaceGap 插入一个空格，超过 字号*columnGap 插入两个空格（列间距）
	spaceGap  = 0.15
	columnGap = 1.5
	// 行间距不超过 行高*blockGap 的相邻行合并为一个块
	blockGap = 0.8
)

// TextBlock 是一个带坐标的文本块，坐标原点在页面左上角，y 轴向下。
type TextBlock struct {
	X0, Y0, X1, Y1 float64
	Text           string
}

// PageLayout 是一页的尺寸与文本块。
type PageLayout struct {
	Width  float64
	Height float64
	Blocks []TextBlock
}

// glyph 是内容流中的一个文字片段，X/Y 为 PDF 坐标（原点左下，Y 为基线）。
type glyph struct {
	X, Y, W, Size float64
	S             string
}

// pageBox 是页面的 MediaBox，原点 (X0, Y0) 不一定是 (0, 0)。
type pageBox struct {
	X0, Y0        float64
	Width, Height float64
}

// boxFromCorners 按 [llx lly urx ury] 构造，两个角的顺序颠倒时自动纠正。
func boxFromCorners(llx, lly, urx, ury float64) pageBox {
	x0, x1 := math.Min(llx, urx), math.Max(llx, urx)
	y0, y1 := math.Min(lly, ury), math.Max(lly, ury)
	return pageBox{X0: x0, Y0: y0, Width: x1 - x0, Height: y1 - y0}
}

// shift 把字形坐标平移到以 MediaBox 左下角为原点。
func (b pageBox) shift(glyphs []glyph) []glyph {
	if b.X0 == 0 && b.Y0 == 0 {
		return glyphs
	}
	out := make([]glyph, len(glyphs))
	for i, g := range glyphs {
		g.X -= b.X0
		g.Y -= b.Y0
		out[i] = g
	}
	return out
}

type textLine struct {
	x0, x1   float64
	baseline float64
	size     float64
	text     string
}

// groupLines 按基线把字形聚合成行，并按自上而下的顺序返回。
func groupLines(glyphs []glyph) []textLine {
	gs := make([]glyph, 0, len(glyphs))
	for _, g := range glyphs {
		if g.S == "" {
			continue
		}
		if g.Size <= 0 {
			g.Size = 1
		}
		gs = append(gs, g)
	}
	sort.SliceStable(gs, func(i, j int) bool {
		if gs[i].Y != gs[j].Y {
			return gs[i].Y > gs[j].Y
		}
		return gs[i].X < gs[j].X
	})

	var (
		lines []textLine
		cur   []glyph
	)
	flush := func() {
		if len(cur) == 0 {
			return
		}
		lines = append(lines, buildLine(cur))
		cur = nil
	}
	for _, g := range gs {
		if len(cur) > 0 && math.Abs(g.Y-cur[0].Y) > lineTolerance*math.Max(g.Size, cur[0].Size) {
			flush()
		}
		cur = append(cur, g)
	}
	flush()

	sort.SliceStable(lines, func(i, j int) bool { return lines[i].baseline > lines[j].baseline })
	return lines
}

func buildLine(gs []glyph) textLine {
	sort.SliceStable(gs, func(i, j int) bool { return gs[i].X < gs[j].X })

	var sb strings.Builder
	line := textLine{x0: gs[0].X, baseline: gs[0].Y}
	end := gs[0].X
	for i, g := range gs {
		if i > 0 {
			gap := g.X - end
			prev := sb.String()
			switch {
			case gap > columnGap*g.Size:
				sb.WriteString(strings.Repeat(" ", 2-trailingSpaces(prev, 2)))
			case gap > spaceGap*g.Size && !strings.HasSuffix(prev, " ") && !strings.HasPrefix(g.S, " "):
				sb.WriteString(" ")
			}
		}
		sb.WriteString(g.S)
		end = math.Max(end, g.X+g.W)
		line.size = math.Max(line.size, g.Size)
	}
	line.x1 = end
	line.text = sb.String()
	return line
}

func trailingSpaces(s string, max int) int {
	n := 0
	for n < max && n < len(s) && s[len(s)-1-n] == ' ' {
		n++
	}
	return n
}

// groupBlocks 把相邻的行合并为块，并把坐标转换为以左上角为原点。
func groupBlocks(lines []textLine, pageHeight float64) []TextBlock {
	var blocks []TextBlock
	var (
		cur      *TextBlock
		parts    []string
		prevBase float64
		prevSize float64
	)
	flush := func() {
		if cur == nil {
			return
		}
		cur.Text = strings.Join(parts, "\n")
		blocks = append(blocks, *cur)
		cur, parts = nil, nil
	}
	for _, l := range lines {
		if strings.TrimSpace(l.text) == "" {
			continue
		}
		top := pageHeight - l.baseline - l.size
		bottom := pageHeight - l.baseline + 0.2*l.size
		if cur != nil {
			// 上一行的下边缘到本行的上边缘
			gap := top - (pageHeight - prevBase + 0.2*prevSize)
			if gap > blockGap*math.Max(l.size, prevSize) || math.Abs(l.size-prevSize) > 0.3*prevSize {
				flush()
			}
		}
		if cur == nil {
			cur = &TextBlock{X0: l.x0, Y0: top, X1: l.x1, Y1: bottom}
		} else {
			cur.X0 = math.Min(cur.X0, l.x0)
			cur.X1 = math.Max(cur.X1, l.x1)
			cur.Y1 = bottom
		}
		parts = append(parts, l.text)
		prevBase, prevSize = l.baseline, l.size
	}
	flush()
	return blocks
}

// Package llmcontext 在检索阶段根据问题意图，从命中页面的载荷中挑选、排序并裁剪内容，
// 组装成给大模型使用的有界上下文。只用词法规则，不额外调用模型。
package llmcontext

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"pdf-rag-go/internal/model"
)

// WeirdnessThreshold 表格异常分达到该值时强制优先使用表格文本。
const WeirdnessThreshold = 0.6

const (
	sectionSeparator = "\n\n---\n\n"
	ellipsis         = "…"
	softCutRatio     = 0.6
)

// 关键词边界：两侧都不能是 Unicode 字母或数字（RE2 的 \b 只认 ASCII，"costó" 会命中 "cost"）。
const (
	wordStart = `(?:^|[^\p{L}\p{N}_])`
	wordEnd   = `(?:$|[^\p{L}\p{N}_])`
)

var (
	numericHints = regexp.MustCompile(`(?i)` + wordStart + `(` +
		`presupuesto|budget|coste|costo|cost|importe|amount|total|subtotal|` +
		`euros?|€|usd|\$|` +
		`precio|price|tarifa|fee|` +
		`n[uú]mero|number|valor|value|` +
		`porcentaje|percent|percentage|%|` +
		`media|average|promedio|` +
		`ratio|tasa|rate|` +
		`incremento|decremento|variaci[oó]n|change|` +
		`comparar|compare|` +
		`202\d|203\d` +
		`)` + wordEnd)

	figureHints = regexp.MustCompile(`(?i)` + wordStart + `(` +
		`figura|fig\.|figure|gr[aá]fico|chart|plot|` +
		`imagen|image|capt(ion|i[oó]n)|` +
		`diagrama|diagram|` +
		`esquema|schema` +
		`)` + wordEnd)

	tableHints = regexp.MustCompile(`(?i)` + wordStart + `(tabla|table|cuadro|matriz|matrix)` + wordEnd)

	hasDigit = regexp.MustCompile(`\d`)
)

// Limits 是各部分的字符预算（按 rune 计）。
type Limits struct {
	MaxChars        int
	MaxTableChars   int
	MaxCaptionChars int
	MaxTextChars    int
}

// DefaultLimits 返回默认预算：总计 9000，表格 3500，标题 1200，正文 6500。
func DefaultLimits() Limits {
	return Limits{MaxChars: 9000, MaxTableChars: 3500, MaxCaptionChars: 1200, MaxTextChars: 6500}
}

// orDefault 用默认值补齐未配置（<= 0）的预算。
func (l Limits) orDefault() Limits {
	d := DefaultLimits()
	if l.MaxChars <= 0 {
		l.MaxChars = d.MaxChars
	}
	if l.MaxTableChars <= 0 {
		l.MaxTableChars = d.MaxTableChars
	}
	if l.MaxCaptionChars <= 0 {
		l.MaxCaptionChars = d.MaxCaptionChars
	}
	if l.MaxTextChars <= 0 {
		l.MaxTextChars = d.MaxTextChars
	}
	return l
}

// Intent 是从问题文本推断出的意图。
type Intent struct {
	Numeric bool
	Figures bool
	Tables  bool
}

// DetectIntent 对问题做大小写不敏感的词法分类，问题中出现任意数字即视为数值意图。
func DetectIntent(question string) Intent {
	q := strings.TrimSpace(question)
	numeric := numericHints.MatchString(q) || hasDigit.MatchString(q)
	return Intent{
		Numeric: numeric,
		Figures: figureHints.MatchString(q),
		Tables:  numeric || tableHints.MatchString(q),
	}
}

// Clip 把文本裁剪到最多 max 个字符，截断时追加一个 "…"。
// 优先在 max 之前最后一个换行处截断，其次在最后一个 ". " 处（保留句点）；
// 软边界落在预算 60% 之前时直接硬截断。
func Clip(text string, max int) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	if max <= 0 {
		return ""
	}

	runes := []rune(text)
	head := string(runes[:max])
	floor := int(float64(max) * softCutRatio)

	cut := runeIndex(head, strings.LastIndex(head, "\n"))
	if cut < floor {
		cut = runeIndex(head, strings.LastIndex(head, ". "))
		if cut >= 0 {
			cut++
		}
	}
	if cut < floor {
		cut = max
	}
	return strings.TrimRightFunc(string(runes[:cut]), unicode.IsSpace) + ellipsis
}

// runeIndex 把字节下标转换为 rune 下标，-1 保持不变。
func runeIndex(s string, byteIdx int) int {
	if byteIdx < 0 {
		return -1
	}
	return utf8.RuneCountInString(s[:byteIdx])
}

// Header 返回可追溯的简短头部，例如 "[Page: 3 | Doc: 0123456789ab]"。
func Header(p model.PagePayload) string {
	bits := []string{fmt.Sprintf("Page: %d", p.PageNumber)}
	if p.DocumentHash != "" {
		h := p.DocumentHash
		if len(h) > 12 {
			h = h[:12]
		}
		bits = append(bits, "Doc: "+h)
	}
	return "[" + strings.Join(bits, " | ") + "]"
}

func joinCaptions(captions []string) string {
	parts := make([]string, 0, len(captions))
	for _, c := range captions {
		if c = strings.TrimSpace(c); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, "\n")
}

// Assemble 按问题意图组装单个命中页面的上下文，结果长度不超过 limits.MaxChars。
//   - 只有图表意图：标题、正文、表格（低优先级）
//   - 表格/数值意图：表格、标题、正文
//   - 其他：正文、标题、表格
//
// 内容为空的部分整段省略。
func Assemble(p model.PagePayload, question string, limits Limits) string {
	limits = limits.orDefault()

	text := strings.TrimSpace(p.Text)
	tables := strings.TrimSpace(p.TablesText)
	captions := joinCaptions(p.FigureCaptions)

	intent := DetectIntent(question)
	wantsTables := intent.Tables
	if p.TableWeirdness != nil && *p.TableWeirdness >= WeirdnessThreshold {
		wantsTables = true
	}

	sections := []string{Header(p)}
	add := func(label, body string, max int) {
		if body == "" {
			return
		}
		sections = append(sections, label+"\n"+Clip(body, max))
	}

	switch {
	case intent.Figures && !wantsTables:
		add("FIGURES / CAPTIONS:", captions, limits.MaxCaptionChars)
		add("TEXT:", text, limits.MaxTextChars)
		add("TABLES (low priority):", tables, limits.MaxTableChars)
	case wantsTables:
		add("TABLES:", tables, limits.MaxTableChars)
		add("FIGURES / CAPTIONS:", captions, limits.MaxCaptionChars)
		add("TEXT:", text, limits.MaxTextChars)
	default:
		add("TEXT:", text, limits.MaxTextChars)
		add("FIGURES / CAPTIONS:", captions, limits.MaxCaptionChars)
		add("TABLES:", tables, limits.MaxTableChars)
	}

	context := strings.TrimSpace(strings.Join(sections, sectionSeparator))
	if utf8.RuneCountInString(context) <= limits.MaxChars {
		return context
	}
	// 省略号本身占一个字符
	return Clip(context, limits.MaxChars-1)
}

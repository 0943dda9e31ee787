package llmcontext

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-rag-go/internal/model"
)

func samplePayload() model.PagePayload {
	return model.PagePayload{
		DocumentHash:   "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef",
		PageNumber:     2,
		Text:           "El proyecto describe la arquitectura general.",
		TablesText:     "Partida Importe\nPersonal 1.200",
		FigureCaptions: []string{"Figura 1: Arquitectura", "  ", "Tabla 2: Costes"},
	}
}

func sectionOrder(t *testing.T, ctx string) []string {
	t.Helper()
	var labels []string
	for _, part := range strings.Split(ctx, sectionSeparator)[1:] {
		labels = append(labels, strings.SplitN(part, "\n", 2)[0])
	}
	return labels
}

func TestDetectIntent(t *testing.T) {
	cases := []struct {
		q       string
		numeric bool
		figures bool
		tables  bool
	}{
		{"presupuesto total 2024", true, false, true},
		{"¿Qué muestra el diagrama de despliegue?", false, true, false},
		{"Enséñame la tabla de riesgos", false, false, true},
		{"What does chart 3 show?", true, true, true},
		{"¿Quién es el responsable?", false, false, false},
		{"what is the TOTAL cost", true, false, true},
		// 关键词后面紧跟重音字母时不是同一个词
		{"¿Cuánto costó el proyecto?", false, false, false},
		{"¿Quién valoró el informe?", false, false, false},
		{"¿Cuál es el costo?", true, false, true},
		{"ÉTABLE", false, false, false},
		{"gráfico de ventas", false, true, false},
	}
	for _, c := range cases {
		got := DetectIntent(c.q)
		assert.Equal(t, c.numeric, got.Numeric, c.q)
		assert.Equal(t, c.figures, got.Figures, c.q)
		assert.Equal(t, c.tables, got.Tables, c.q)
	}
}

func TestAssembleNumericQuestionPutsTablesFirst(t *testing.T) {
	ctx := Assemble(samplePayload(), "presupuesto total 2024", DefaultLimits())

	assert.True(t, strings.HasPrefix(ctx, "[Page: 2 | Doc: 0123456789ab]"))
	assert.Equal(t, []string{"TABLES:", "FIGURES / CAPTIONS:", "TEXT:"}, sectionOrder(t, ctx))
	assert.Contains(t, ctx, "Figura 1: Arquitectura\nTabla 2: Costes")
}

func TestAssembleFigureOnlyOrder(t *testing.T) {
	ctx := Assemble(samplePayload(), "explica el diagrama", DefaultLimits())
	assert.Equal(t, []string{"FIGURES / CAPTIONS:", "TEXT:", "TABLES (low priority):"}, sectionOrder(t, ctx))
}

func TestAssembleNeutralOrder(t *testing.T) {
	ctx := Assemble(samplePayload(), "¿De qué trata el proyecto?", DefaultLimits())
	assert.Equal(t, []string{"TEXT:", "FIGURES / CAPTIONS:", "TABLES:"}, sectionOrder(t, ctx))
}

func TestAssembleWeirdnessForcesTables(t *testing.T) {
	p := samplePayload()
	w := 0.6
	p.TableWeirdness = &w
	ctx := Assemble(p, "explica el diagrama", DefaultLimits())
	assert.Equal(t, []string{"TABLES:", "FIGURES / CAPTIONS:", "TEXT:"}, sectionOrder(t, ctx))

	low := 0.59
	p.TableWeirdness = &low
	ctx = Assemble(p, "explica el diagrama", DefaultLimits())
	assert.Equal(t, "FIGURES / CAPTIONS:", sectionOrder(t, ctx)[0])
}

func TestAssembleOmitsEmptySections(t *testing.T) {
	p := samplePayload()
	p.TablesText = "  "
	p.FigureCaptions = nil
	ctx := Assemble(p, "presupuesto 2024", DefaultLimits())
	assert.Equal(t, []string{"TEXT:"}, sectionOrder(t, ctx))

	p.Text = ""
	p.DocumentHash = ""
	assert.Equal(t, "[Page: 2]", Assemble(p, "", DefaultLimits()))
}

func TestAssembleRespectsOverallBudget(t *testing.T) {
	p := samplePayload()
	p.Text = strings.Repeat("palabra ", 2000)
	p.TablesText = strings.Repeat("1 | 2 | 3\n", 800)

	limits := Limits{MaxChars: 500, MaxTableChars: 300, MaxCaptionChars: 100, MaxTextChars: 300}
	ctx := Assemble(p, "total", limits)
	assert.LessOrEqual(t, utf8.RuneCountInString(ctx), 500)
	assert.True(t, strings.HasSuffix(ctx, ellipsis))
	assert.True(t, strings.HasPrefix(ctx, "[Page: 2"))
}

func TestAssembleZeroLimitsUseDefaults(t *testing.T) {
	p := samplePayload()
	p.Text = strings.Repeat("x", 7000)
	ctx := Assemble(p, "", Limits{})
	assert.LessOrEqual(t, utf8.RuneCountInString(ctx), DefaultLimits().MaxChars)
	assert.Contains(t, ctx, ellipsis)
}

func TestClipShortTextUnchanged(t *testing.T) {
	assert.Equal(t, "hola", Clip("  hola \n", 10))
	assert.Equal(t, "", Clip("", 10))
}

func TestClipLongTextBound(t *testing.T) {
	long := strings.Repeat("a", 10000)
	got := Clip(long, 100)
	assert.LessOrEqual(t, utf8.RuneCountInString(got), 101)
	assert.Equal(t, strings.Repeat("a", 100)+ellipsis, got)

	// 多字节字符按字符计数
	accents := strings.Repeat("ñ", 10000)
	got = Clip(accents, 100)
	assert.Equal(t, 101, utf8.RuneCountInString(got))
}

func TestClipPrefersNewline(t *testing.T) {
	text := strings.Repeat("a", 80) + "\n" + strings.Repeat("b", 50)
	assert.Equal(t, strings.Repeat("a", 80)+ellipsis, Clip(text, 100))
}

func TestClipFallsBackToSentence(t *testing.T) {
	// 换行位于 60% 之前，退回到句子边界
	text := "aa\n" + strings.Repeat("a", 70) + ". " + strings.Repeat("b", 60)
	got := Clip(text, 100)
	require.True(t, strings.HasSuffix(got, "."+ellipsis))
	assert.Equal(t, 75, utf8.RuneCountInString(got))
}

func TestClipHardCutWhenBoundaryTooEarly(t *testing.T) {
	text := "a. b\n" + strings.Repeat("c", 200)
	got := Clip(text, 100)
	assert.Equal(t, 101, utf8.RuneCountInString(got))
}

func TestClipNonPositiveBudget(t *testing.T) {
	assert.Equal(t, "", Clip("abc", 0))
}

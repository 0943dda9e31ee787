package repository

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-rag-go/internal/config"
	"pdf-rag-go/internal/model"
	"pdf-rag-go/pkg/es"
)

func point(hash string, page int, vec [][]float32) model.PagePoint {
	return model.PagePoint{
		ID:     model.PagePointID(hash, page, 10),
		Vector: vec,
		Payload: model.PagePayload{
			DocumentHash: hash,
			PageNumber:   page,
			Text:         "texto",
			Blocks:       []model.Block{{BBox: [4]float64{1, 2, 3, 4}, Text: "texto", Kind: model.BlockText}},
		},
	}
}

func TestMemoryRepositoryUpsertOverwrites(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryPageVectorRepository()
	h := hashOf("a")

	require.NoError(t, repo.Upsert(ctx, []model.PagePoint{point(h, 0, [][]float32{{1, 0}}), point(h, 1, [][]float32{{0, 1}})}))
	require.NoError(t, repo.Upsert(ctx, []model.PagePoint{point(h, 0, [][]float32{{1, 0}}), point(h, 1, [][]float32{{0, 1}})}))
	assert.Equal(t, 2, repo.Len())
	assert.Equal(t, 2, repo.Upserts())
}

func TestMemoryRepositorySearchOrdersByMaxSim(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryPageVectorRepository()
	h := hashOf("b")
	require.NoError(t, repo.Upsert(ctx, []model.PagePoint{
		point(h, 0, [][]float32{{0, 1}}),
		point(h, 1, [][]float32{{1, 0}, {0.2, 0.2}}),
		point(h, 2, [][]float32{{0.5, 0.5}}),
	}))

	hits, err := repo.Search(ctx, [][]float32{{1, 0}}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, 1, hits[0].Payload.PageNumber)
	assert.Equal(t, 2, hits[1].Payload.PageNumber)
	assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)
}

// fakeES 模拟 Elasticsearch 的 _bulk 与 _search 接口。
type fakeES struct {
	mu         sync.Mutex
	docs       map[string]json.RawMessage
	bulkCalls  int
	lastSearch map[string]any
	created    string
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodHead:
		w.WriteHeader(http.StatusNotFound)
	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.created = string(body)
		_, _ = w.Write([]byte(`{"acknowledged":true}`))
	case strings.HasSuffix(r.URL.Path, "/_bulk"):
		f.bulkCalls++
		sc := bufio.NewScanner(r.Body)
		sc.Buffer(make([]byte, 1024*1024), 1024*1024)
		var id string
		for sc.Scan() {
			line := sc.Bytes()
			if id == "" {
				var action map[string]map[string]string
				_ = json.Unmarshal(line, &action)
				id = action["index"]["_id"]
				continue
			}
			f.docs[id] = append(json.RawMessage(nil), line...)
			id = ""
		}
		_, _ = w.Write([]byte(`{"errors":false,"items":[]}`))
	case strings.HasSuffix(r.URL.Path, "/_search"):
		f.lastSearch = map[string]any{}
		_ = json.NewDecoder(r.Body).Decode(&f.lastSearch)
		var hits []map[string]any
		for id, src := range f.docs {
			hits = append(hits, map[string]any{"_id": id, "_score": 1.5, "_source": src})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"hits": map[string]any{"hits": hits}})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newFakeESRepo(t *testing.T) (*fakeES, PageVectorRepository) {
	t.Helper()
	f := &fakeES{docs: map[string]json.RawMessage{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	client, err := es.NewClient(config.ElasticsearchConfig{Addresses: srv.URL})
	require.NoError(t, err)
	return f, NewESPageVectorRepository(client, "pages", 4)
}

func TestESRepositoryEnsureCollection(t *testing.T) {
	f, repo := newFakeESRepo(t)
	require.NoError(t, repo.EnsureCollection(context.Background()))
	assert.Contains(t, f.created, `"rank_vectors"`)
	assert.Contains(t, f.created, `"dims": 4`)
}

func TestESRepositoryUpsertAndSearch(t *testing.T) {
	ctx := context.Background()
	f, repo := newFakeESRepo(t)
	h := hashOf("c")
	pts := []model.PagePoint{point(h, 0, [][]float32{{1, 0, 0, 0}}), point(h, 1, [][]float32{{0, 1, 0, 0}})}

	require.NoError(t, repo.Upsert(ctx, pts))
	require.NoError(t, repo.Upsert(ctx, pts))
	assert.Equal(t, 2, f.bulkCalls)
	assert.Len(t, f.docs, 2)

	var stored map[string]any
	require.NoError(t, json.Unmarshal(f.docs[pts[0].ID], &stored))
	assert.Equal(t, h, stored["document_hash"])
	assert.NotNil(t, stored["vector"])

	hits, err := repo.Search(ctx, [][]float32{{1, 0, 0, 0}}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, 1.5, hits[0].Score)
	assert.Equal(t, h, hits[0].Payload.DocumentHash)

	script := f.lastSearch["query"].(map[string]any)["script_score"].(map[string]any)["script"].(map[string]any)
	assert.Contains(t, script["source"], "maxSimDotProduct")
	assert.Equal(t, float64(5), f.lastSearch["size"])
}

func TestQdrantPayloadConversion(t *testing.T) {
	w := 0.7
	p := model.PagePayload{
		DocumentHash:   hashOf("d"),
		PageNumber:     7,
		Text:           "Texto limpio",
		Blocks:         []model.Block{{BBox: [4]float64{10.5, 20, 30, 40}, Text: "Tabla 1: Costes", Kind: model.BlockCaption}},
		TablesText:     "a | b",
		FigureCaptions: []string{"Tabla 1: Costes"},
		Metadata:       map[string]string{"title": "Informe"},
		DeviceUsed:     "cuda",
		TableWeirdness: &w,
	}
	values, err := toQdrantPayload(p)
	require.NoError(t, err)
	assert.Equal(t, "cuda", values["device_used"].GetStringValue())

	back, err := fromQdrantPayload(values)
	require.NoError(t, err)
	assert.Equal(t, p, back)
}

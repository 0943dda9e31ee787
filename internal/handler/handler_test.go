package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-rag-go/internal/model"
	"pdf-rag-go/internal/service"
	"pdf-rag-go/pkg/llm"
	"pdf-rag-go/pkg/tasks"
)

type fakeIngest struct {
	names []string
}

func (f *fakeIngest) IngestBatch(_ context.Context, files []service.UploadFile) model.BatchIngestResponse {
	resp := model.BatchIngestResponse{TotalProcessingTime: "0.000001"}
	for _, file := range files {
		rc, _ := file.Open()
		b, _ := io.ReadAll(rc)
		rc.Close()
		f.names = append(f.names, file.Filename+":"+string(b))
		resp.Results = append(resp.Results, model.IngestResult{Filename: file.Filename, Status: model.StatusIngested})
	}
	return resp
}

func (f *fakeIngest) EnqueueBatch(_ context.Context, files []service.UploadFile) model.BatchIngestResponse {
	resp := model.BatchIngestResponse{}
	for _, file := range files {
		resp.Results = append(resp.Results, model.IngestResult{Filename: file.Filename, Status: model.StatusQueued})
	}
	return resp
}

func (f *fakeIngest) Process(context.Context, tasks.IngestionTask) error { return nil }

type fakeDocs struct{}

func (fakeDocs) List(context.Context) ([]model.DocumentDTO, error) {
	return []model.DocumentDTO{{ID: 1, Filename: "informe.pdf", Indexed: true}}, nil
}

type fakeSearch struct {
	err  error
	last model.SearchRequest
}

func (f *fakeSearch) Search(_ context.Context, req model.SearchRequest) (*model.SearchResponse, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &model.SearchResponse{
		Query:             req.Text,
		Results:           []model.SearchResult{{PageNumber: 2, Filename: "informe.pdf", Score: 0.9}},
		FullPromptContext: "--- SOURCE: informe.pdf (Page 2) ---\n[Page: 2]",
	}, nil
}

type fakeAsk struct {
	chunks []string
	err    error
}

func (f *fakeAsk) Ask(_ context.Context, _ model.AskRequest, w llm.ChunkWriter) (*model.SearchResponse, error) {
	for _, c := range f.chunks {
		if err := w.WriteChunk(c); err != nil {
			return nil, err
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &model.SearchResponse{Results: []model.SearchResult{{Filename: "informe.pdf", PageNumber: 2}}}, nil
}

func newTestRouter(ingest *fakeIngest, search *fakeSearch, ask *fakeAsk) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(Handlers{
		Documents: NewDocumentHandler(ingest, fakeDocs{}),
		Search:    NewSearchHandler(search),
		Ask:       NewAskHandler(ask),
		Health:    HealthInfo{Model: "vidore/colpali-v1.3", Device: "cpu", VectorBackend: "memory"},
	}, 8)
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func multipartBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for name, content := range files {
		part, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func TestUpload(t *testing.T) {
	ingest := &fakeIngest{}
	r := newTestRouter(ingest, &fakeSearch{}, &fakeAsk{})

	body, ct := multipartBody(t, map[string]string{"informe.pdf": "%PDF-1.4"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/upload", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	env := decode(t, w)
	assert.Equal(t, http.StatusOK, env.Code)
	var resp model.BatchIngestResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, model.StatusIngested, resp.Results[0].Status)
	assert.Equal(t, []string{"informe.pdf:%PDF-1.4"}, ingest.names)
}

func TestUploadWithoutFiles(t *testing.T) {
	r := newTestRouter(&fakeIngest{}, &fakeSearch{}, &fakeAsk{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/upload", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body, ct := multipartBody(t, nil)
	req = httptest.NewRequest(http.MethodPost, "/api/v1/documents/upload/async", body)
	req.Header.Set("Content-Type", ct)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadAsync(t *testing.T) {
	r := newTestRouter(&fakeIngest{}, &fakeSearch{}, &fakeAsk{})

	body, ct := multipartBody(t, map[string]string{"cola.pdf": "%PDF-1.4"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/upload/async", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	var resp model.BatchIngestResponse
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &resp))
	assert.Equal(t, model.StatusQueued, resp.Results[0].Status)
}

func TestSearch(t *testing.T) {
	search := &fakeSearch{}
	r := newTestRouter(&fakeIngest{}, search, &fakeAsk{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(`{"text":"presupuesto","limit":3}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp model.SearchResponse
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &resp))
	assert.Equal(t, "presupuesto", resp.Query)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "informe.pdf", resp.Results[0].Filename)
	require.NotNil(t, search.last.Limit)
	assert.Equal(t, 3, *search.last.Limit)
}

func TestSearchErrors(t *testing.T) {
	r := newTestRouter(&fakeIngest{}, &fakeSearch{err: errors.New("vector store down")}, &fakeAsk{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(`{"text":"  "}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(`{"text":"hola"}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "vector store down", decode(t, w).Message)
}

func TestAskStreamsEvents(t *testing.T) {
	r := newTestRouter(&fakeIngest{}, &fakeSearch{}, &fakeAsk{chunks: []string{"Hola", " mundo"}})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ask", strings.NewReader(`{"question":"¿qué?"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	out := w.Body.String()
	assert.Contains(t, out, "event:message")
	assert.Contains(t, out, `"chunk":"Hola"`)
	assert.Contains(t, out, `"chunk":" mundo"`)
	assert.Contains(t, out, "event:completion")
	assert.Less(t, strings.Index(out, "Hola"), strings.Index(out, "completion"))
}

func TestAskFailsBeforeStreaming(t *testing.T) {
	r := newTestRouter(&fakeIngest{}, &fakeSearch{}, &fakeAsk{err: errors.New("llm unavailable")})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ask", strings.NewReader(`{"question":"hola"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "llm unavailable", decode(t, w).Message)
}

func TestListAndHealth(t *testing.T) {
	r := newTestRouter(&fakeIngest{}, &fakeSearch{}, &fakeAsk{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var docs []model.DocumentDTO
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &docs))
	require.Len(t, docs, 1)
	assert.True(t, docs[0].Indexed)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var info HealthInfo
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &info))
	assert.Equal(t, "cpu", info.Device)
	assert.Equal(t, "memory", info.VectorBackend)
}

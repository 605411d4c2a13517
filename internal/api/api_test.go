package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyvault-io/skyvault/internal/blob"
	"github.com/skyvault-io/skyvault/internal/bytesize"
	"github.com/skyvault-io/skyvault/internal/cryptostream"
	"github.com/skyvault-io/skyvault/internal/engine"
	"github.com/skyvault-io/skyvault/internal/events"
	"github.com/skyvault-io/skyvault/internal/share"
	"github.com/skyvault-io/skyvault/internal/store"
	"github.com/skyvault-io/skyvault/internal/store/models"
	"github.com/skyvault-io/skyvault/pkg/config"
)

const userHeader = "X-User-ID"

type apiEnv struct {
	router http.Handler
	engine *engine.Engine
	store  *store.Store
	userID string
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	st, err := store.New(&store.Config{
		Type:   store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{Path: ":memory:"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	blobs, err := blob.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	cipher, err := cryptostream.New("test-secret")
	require.NoError(t, err)

	broker := events.NewBroker()
	t.Cleanup(broker.Close)

	cfg := &config.Config{}
	cfg.Storage.StorageLimit = bytesize.ByteSize(0)
	cfg.Server.RequestTimeout = 5 * time.Second

	eng := engine.New(engine.Options{
		Store:    st,
		Blobs:    blobs,
		Cipher:   cipher,
		Recorder: events.NewMemoryRecorder(),
		Broker:   broker,
		Config:   cfg,
	})

	user := &models.User{Email: "api@example.com"}
	require.NoError(t, st.CreateUser(context.Background(), user, "password"))

	srv := New(eng, share.NewService(st), broker, HeaderResolver{Header: userHeader}, &cfg.Server)
	return &apiEnv{
		router: srv.Router(),
		engine: eng,
		store:  st,
		userID: user.ID,
	}
}

func (env *apiEnv) do(t *testing.T, method, target string, body io.Reader, opts ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	req.Header.Set(userHeader, env.userID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func (env *apiEnv) postJSON(t *testing.T, target string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return env.do(t, http.MethodPost, target, bytes.NewReader(body))
}

func (env *apiEnv) upload(t *testing.T, name, content string) *models.File {
	t.Helper()
	row, err := env.engine.Upload(context.Background(), env.userID, name, "",
		int64(len(content)), strings.NewReader(content), nil)
	require.NoError(t, err)
	return row
}

func decodeFiles(t *testing.T, rec *httptest.ResponseRecorder) []*models.File {
	t.Helper()
	var resp struct {
		Files []*models.File `json:"files"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Files
}

func TestHealth(t *testing.T) {
	env := newAPIEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRequiresUser(t *testing.T) {
	env := newAPIEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/files/", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListFiles(t *testing.T) {
	env := newAPIEnv(t)

	env.upload(t, "a.txt", "x")
	env.upload(t, "b.txt", "y")

	rec := env.do(t, http.MethodGet, "/api/files/?sortBy=name&order=asc", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	files := decodeFiles(t, rec)
	require.Len(t, files, 2)
	assert.Equal(t, "a.txt", files[0].Name)
	assert.Equal(t, "b.txt", files[1].Name)
}

func TestCreateFolderEndpoint(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.postJSON(t, "/api/files/folder", map[string]any{"name": "Documents"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		File *models.File `json:"file"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Documents", resp.File.Name)
	assert.True(t, resp.File.IsFolder())

	// Missing name is rejected before the engine sees it.
	rec = env.postJSON(t, "/api/files/folder", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadEndpoint(t *testing.T) {
	env := newAPIEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "hello.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("hello over http"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	rec := env.do(t, http.MethodPost, "/api/files/upload", &buf, func(r *http.Request) {
		r.Header.Set("Content-Type", mw.FormDataContentType())
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		File *models.File `json:"file"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "hello.txt", resp.File.Name)
	assert.Equal(t, int64(len("hello over http")), resp.File.Size)
}

func TestDownloadFile(t *testing.T) {
	env := newAPIEnv(t)

	row := env.upload(t, "dl.txt", "downloaded bytes")

	rec := env.do(t, http.MethodGet, "/api/files/"+row.ID+"/download", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "downloaded bytes", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="dl.txt"`)

	rec = env.do(t, http.MethodGet, "/api/files/0000000000000000/download", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDownloadFolderAsZip(t *testing.T) {
	env := newAPIEnv(t)
	ctx := context.Background()

	docs, err := env.engine.CreateFolder(ctx, env.userID, "docs", nil)
	require.NoError(t, err)
	_, err = env.engine.Upload(ctx, env.userID, "in.txt", "",
		1, strings.NewReader("x"), &docs.ID)
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/api/files/"+docs.ID+"/download", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "docs.zip")
}

func TestRenameEndpoint(t *testing.T) {
	env := newAPIEnv(t)

	env.upload(t, "taken.txt", "a")
	row := env.upload(t, "old.txt", "b")

	rec := env.postJSON(t, "/api/files/rename", map[string]any{"id": row.ID, "name": "new.txt"})
	require.Equal(t, http.StatusOK, rec.Code)

	// A sibling collision surfaces as 409.
	rec = env.postJSON(t, "/api/files/rename", map[string]any{"id": row.ID, "name": "taken.txt"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestMoveEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	ctx := context.Background()

	docs, err := env.engine.CreateFolder(ctx, env.userID, "docs", nil)
	require.NoError(t, err)
	row := env.upload(t, "loose.txt", "x")

	rec := env.postJSON(t, "/api/files/move", map[string]any{
		"ids": []string{row.ID}, "parentId": docs.ID,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := env.engine.Get(ctx, env.userID, row.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ParentID)
	assert.Equal(t, docs.ID, *got.ParentID)
}

func TestTrashLifecycleEndpoints(t *testing.T) {
	env := newAPIEnv(t)

	row := env.upload(t, "cycle.txt", "x")

	rec := env.postJSON(t, "/api/files/delete", map[string]any{"ids": []string{row.ID}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/files/trash", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeFiles(t, rec), 1)

	rec = env.postJSON(t, "/api/files/trash/restore", map[string]any{"ids": []string{row.ID}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.postJSON(t, "/api/files/delete", map[string]any{"ids": []string{row.ID}})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.postJSON(t, "/api/files/trash/delete", map[string]any{"ids": []string{row.ID}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/files/"+row.ID+"/download", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStarEndpoint(t *testing.T) {
	env := newAPIEnv(t)

	row := env.upload(t, "fav.txt", "x")

	rec := env.postJSON(t, "/api/files/star", map[string]any{
		"ids": []string{row.ID}, "starred": true,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/files/starred", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	files := decodeFiles(t, rec)
	require.Len(t, files, 1)
	assert.Equal(t, row.ID, files[0].ID)
}

func TestShareAndPublicView(t *testing.T) {
	env := newAPIEnv(t)

	row := env.upload(t, "shared.txt", "x")

	rec := env.postJSON(t, "/api/files/share", map[string]any{
		"ids": []string{row.ID}, "shared": true,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Links map[string]string `json:"links"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	token := resp.Links[row.ID]
	require.NotEmpty(t, token)

	// The public surface needs no user header.
	req := httptest.NewRequest(http.MethodGet, "/s/"+token, nil)
	pub := httptest.NewRecorder()
	env.router.ServeHTTP(pub, req)
	require.Equal(t, http.StatusOK, pub.Code)
	files := decodeFiles(t, pub)
	require.Len(t, files, 1)
	assert.Equal(t, row.ID, files[0].ID)

	req = httptest.NewRequest(http.MethodGet, "/s/not-a-token", nil)
	pub = httptest.NewRecorder()
	env.router.ServeHTTP(pub, req)
	assert.Equal(t, http.StatusNotFound, pub.Code)
}

func TestSearchEndpoint(t *testing.T) {
	env := newAPIEnv(t)

	env.upload(t, "invoice-2026.pdf", "x")
	env.upload(t, "photo.jpg", "y")

	rec := env.do(t, http.MethodGet, "/api/files/search?q=invoice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeFiles(t, rec), 1)

	rec = env.do(t, http.MethodGet, "/api/files/search", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/files/search?q=x&limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatsAndStorageEndpoints(t *testing.T) {
	env := newAPIEnv(t)

	env.upload(t, "a.bin", strings.Repeat("x", 42))

	rec := env.do(t, http.MethodGet, "/api/files/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/files/storage", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var usage map[string]int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &usage))
	assert.Equal(t, int64(42), usage["used"])
}

func TestMalformedBodyRejected(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodPost, "/api/files/move", strings.NewReader("{not json"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown fields are rejected too.
	rec = env.do(t, http.MethodPost, "/api/files/move",
		strings.NewReader(`{"ids":["x"],"bogus":1}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestContentDisposition(t *testing.T) {
	assert.Equal(t,
		`attachment; filename="plain.txt"; filename*=UTF-8''plain.txt`,
		contentDisposition("plain.txt"))

	// Non-ASCII names keep a safe fallback plus the encoded form.
	got := contentDisposition(`résumé "final".pdf`)
	assert.NotContains(t, got, `"résumé`)
	assert.Contains(t, got, "filename*=UTF-8''")
	assert.Contains(t, got, "%C3%A9")
}

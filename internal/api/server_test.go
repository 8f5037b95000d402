package api

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfmark/shelfmark-server/internal/api/dto"
	"github.com/shelfmark/shelfmark-server/internal/auth"
	"github.com/shelfmark/shelfmark-server/internal/cache"
	"github.com/shelfmark/shelfmark-server/internal/cleanup"
	"github.com/shelfmark/shelfmark-server/internal/media/images"
	"github.com/shelfmark/shelfmark-server/internal/ratelimit"
	"github.com/shelfmark/shelfmark-server/internal/search"
	"github.com/shelfmark/shelfmark-server/internal/service"
	"github.com/shelfmark/shelfmark-server/internal/store"
)

const testPublicURL = "http://books.test"

// testServer wraps the API server with the pieces tests inspect.
type testServer struct {
	*Server
	api    humatest.TestAPI
	st     *store.Store
	covers *images.Storage
}

type testOptions struct {
	config    Config
	rateLimit float64
	burst     int
}

// setupTestServer builds a fully wired server on temp directories.
func setupTestServer(t *testing.T, opts ...func(*testOptions)) *testServer {
	t.Helper()

	o := testOptions{
		config:    Config{Version: "test", PublicURL: testPublicURL},
		rateLimit: 600,
		burst:     100,
	}
	for _, opt := range opts {
		opt(&o)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	st, err := store.New(t.TempDir(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	index, err := search.NewSearchIndex(search.Options{DataPath: t.TempDir(), Logger: logger})
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })
	st.SetSearchIndexer(index)

	covers, err := images.NewStorage(t.TempDir())
	require.NoError(t, err)

	queue := cleanup.NewQueue(covers, cleanup.Config{Workers: 1, QueueSize: 16}, logger)
	queue.Start()
	t.Cleanup(func() { _ = queue.Shutdown() })

	key := make([]byte, 32)
	_, err = rand.Read(key)
	require.NoError(t, err)
	issuer, err := auth.NewPasetoIssuer(key, time.Hour)
	require.NoError(t, err)

	limiter := ratelimit.New(o.rateLimit, o.burst)
	t.Cleanup(limiter.Stop)

	services := &Services{
		Auth:    service.NewAuthService(st, issuer, 4, logger),
		Catalog: service.NewCatalogService(st, queue, cache.NewMemory(time.Minute), index, logger),
	}
	storage := &StorageServices{Covers: covers, Cleaner: queue}

	srv := NewServer(st, index, services, storage, limiter, o.config, logger)

	return &testServer{
		Server: srv,
		api:    humatest.Wrap(t, srv.API()),
		st:     st,
		covers: covers,
	}
}

func withUploadLimit(n int64) func(*testOptions) {
	return func(o *testOptions) { o.config.MaxUploadBytes = n }
}

func withRateLimit(perMinute float64, burst int) func(*testOptions) {
	return func(o *testOptions) {
		o.rateLimit = perMinute
		o.burst = burst
	}
}

// signup registers a user and returns its token and ID.
func (ts *testServer) signup(t *testing.T, email string) (string, string) {
	t.Helper()

	resp := ts.api.Post("/api/auth/signup", map[string]any{
		"email":    email,
		"password": "correct horse battery staple",
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	body := decode[dto.SignupResponse](t, resp)
	return body.Token, body.UserID
}

// createBook posts a book with a small PNG cover.
func (ts *testServer) createBook(t *testing.T, token, title, genre string, year int) dto.Book {
	t.Helper()

	resp := ts.multipart(t, http.MethodPost, "/api/books", token, map[string]any{
		"title":  title,
		"author": "Author of " + title,
		"genre":  genre,
		"year":   year,
	}, testPNG(t), "cover.png")
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	return decode[dto.BookMessageResponse](t, resp).Book
}

// multipart sends a multipart request straight to the router. A nil book or
// image leaves that part out.
func (ts *testServer) multipart(
	t *testing.T,
	method, path, token string,
	book any,
	img []byte,
	filename string,
) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if book != nil {
		data, err := json.Marshal(book)
		require.NoError(t, err)
		require.NoError(t, mw.WriteField("book", string(data)))
	}
	if img != nil {
		part, err := mw.CreateFormFile("image", filename)
		require.NoError(t, err)
		_, err = part.Write(img)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	return ts.send(t, method, path, token, mw.FormDataContentType(), &buf)
}

func (ts *testServer) send(t *testing.T, method, path, token, contentType string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, req)
	return rec
}

// uploadCount returns the number of files in the uploads directory.
func (ts *testServer) uploadCount(t *testing.T) int {
	t.Helper()

	entries, err := os.ReadDir(ts.covers.Dir())
	require.NoError(t, err)
	return len(entries)
}

func bearer(token string) string {
	return "Authorization: Bearer " + token
}

func decode[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &v), resp.Body.String())
	return v
}

type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details"`
}

// assertError checks status and code of an error response.
func assertError(t *testing.T, resp *httptest.ResponseRecorder, status int, code string) errorBody {
	t.Helper()

	require.Equal(t, status, resp.Code, resp.Body.String())
	body := decode[errorBody](t, resp)
	assert.Equal(t, code, body.Code)
	assert.NotEmpty(t, body.Message)
	return body
}

func testPNG(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := range 8 {
		for y := range 8 {
			img.Set(x, y, color.RGBA{R: uint8(x * 30), G: uint8(y * 30), B: 120, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestHealthCheck(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/")
	require.Equal(t, http.StatusOK, resp.Code)

	body := decode[HealthResponse](t, resp)
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "Shelfmark API is running", body.Message)
	assert.Equal(t, "healthy", body.Components["database"].Status)
	assert.Equal(t, "0 books indexed", body.Components["search"].Message)
}

func TestHealthCheck_DegradedWithoutDependencies(t *testing.T) {
	srv := NewServer(nil, nil, &Services{}, &StorageServices{}, nil, Config{}, nil)
	api := humatest.Wrap(t, srv.API())

	resp := api.Get("/")
	require.Equal(t, http.StatusOK, resp.Code)

	body := decode[HealthResponse](t, resp)
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "degraded", body.Components["database"].Status)
}

func TestCORS_Preflight(t *testing.T) {
	ts := setupTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/books", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization, Content-Type")

	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
}

func TestUnknownRoute(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/api/nothing-here")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestOpenAPI_DocumentsBookRoutes(t *testing.T) {
	ts := setupTestServer(t)

	paths := ts.API().OpenAPI().Paths
	assert.Contains(t, paths, "/api/books/{id}/rating")
	assert.Contains(t, paths, "/api/auth/signup")
	assert.Contains(t, ts.API().OpenAPI().Components.SecuritySchemes, "bearer")
}

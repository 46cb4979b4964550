package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"go-library-catalog/internal/core/auth"
	"go-library-catalog/internal/domain"
	"go-library-catalog/internal/library"
	"go-library-catalog/internal/transport/http/handler"
	resp "go-library-catalog/internal/transport/http/response"
	"go-library-catalog/internal/transport/http/router"
	"go-library-catalog/pkg/utils"
)

type memStore struct {
	mu    sync.Mutex
	saves int
	last  *domain.Snapshot
}

func (m *memStore) Save(_ context.Context, s *domain.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	m.last = s
	return nil
}

type env struct {
	t     *testing.T
	r     *gin.Engine
	store *memStore
	token string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	log := zaptest.NewLogger(t)
	reg := prometheus.NewRegistry()
	lib, err := library.New(library.Options{Logger: log, Metrics: library.NewMetrics(reg)})
	require.NoError(t, err)

	hash, err := utils.HashPassword("pw")
	require.NoError(t, err)
	jwter := &auth.JWTer{Secret: []byte("test"), Issuer: "library-catalog", TTL: time.Hour}
	store := &memStore{}
	h := handler.NewLibraryHandler(lib, jwter, handler.Librarian{Username: "librarian", PasswordHash: hash}, store, log)
	h.Now = func() time.Time { return time.Date(2024, 5, 1, 15, 30, 0, 0, time.Local) }

	e := &env{t: t, store: store, r: router.NewAPIEngine(router.Deps{
		Log: log, Mode: gin.TestMode, Handler: h, JWT: jwter, Registry: reg,
	})}

	out := e.do(http.MethodPost, "/api/v1/auth/login", map[string]string{"username": "librarian", "password": "pw"})
	require.Equal(t, resp.CodeOK, out.Code, out.Msg)
	var tok struct {
		Token string `json:"token"`
	}
	e.decode(out, &tok)
	e.token = tok.Token
	return e
}

func (e *env) raw(method, path string, body any, token string) resp.Resp {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	require.Equal(e.t, http.StatusOK, w.Code)
	var out resp.Resp
	require.NoError(e.t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func (e *env) do(method, path string, body any) resp.Resp {
	e.t.Helper()
	return e.raw(method, path, body, e.token)
}

func (e *env) decode(r resp.Resp, v any) {
	e.t.Helper()
	b, err := json.Marshal(r.Data)
	require.NoError(e.t, err)
	require.NoError(e.t, json.Unmarshal(b, v))
}

func TestAPI_LoginRejectsBadPassword(t *testing.T) {
	e := newEnv(t)
	out := e.raw(http.MethodPost, "/api/v1/auth/login", map[string]string{"username": "librarian", "password": "nope"}, "")
	assert.Equal(t, resp.CodeUnauthorized, out.Code)

	out = e.raw(http.MethodPost, "/api/v1/books", map[string]string{"isbn": "1", "title": "T", "author": "A"}, "")
	assert.Equal(t, resp.CodeUnauthorized, out.Code)
}

func TestAPI_CatalogFlow(t *testing.T) {
	e := newEnv(t)

	out := e.do(http.MethodPost, "/api/v1/books", map[string]string{"isbn": "1111", "title": "Война и мир", "author": "Л. Толстой"})
	require.Equal(t, resp.CodeOK, out.Code, out.Msg)
	out = e.do(http.MethodPost, "/api/v1/books", map[string]string{"isbn": "2222", "title": "Анна Каренина", "author": "Л. Толстой"})
	require.Equal(t, resp.CodeOK, out.Code, out.Msg)

	out = e.do(http.MethodPost, "/api/v1/books", map[string]string{"isbn": "2222", "title": "X", "author": "Y"})
	assert.Equal(t, resp.CodeConflict, out.Code)
	out = e.do(http.MethodPost, "/api/v1/books", map[string]string{"isbn": "3333", "title": "", "author": "Y"})
	assert.Equal(t, resp.CodeBadRequest, out.Code)

	out = e.raw(http.MethodGet, "/api/v1/books?author=%D0%BB.%20%D1%82%D0%BE%D0%BB%D1%81%D1%82%D0%BE%D0%B9", nil, "")
	var books []domain.Book
	e.decode(out, &books)
	require.Len(t, books, 2)
	assert.Equal(t, "1111", books[0].ISBN)
	assert.Equal(t, "2222", books[1].ISBN)

	out = e.do(http.MethodDelete, "/api/v1/books/2222", nil)
	require.Equal(t, resp.CodeOK, out.Code)
	out = e.raw(http.MethodGet, "/api/v1/books/2222", nil, "")
	assert.Equal(t, resp.CodeNotFound, out.Code)

	assert.Equal(t, 3, e.store.saves)
	require.NotNil(t, e.store.last)
	assert.Len(t, e.store.last.Books, 1)
}

func TestAPI_LoanFlow(t *testing.T) {
	e := newEnv(t)
	require.Equal(t, resp.CodeOK, e.do(http.MethodPost, "/api/v1/books", map[string]string{"isbn": "42", "title": "Dune", "author": "Herbert"}).Code)
	require.Equal(t, resp.CodeOK, e.do(http.MethodPost, "/api/v1/books", map[string]string{"isbn": "43", "title": "Emma", "author": "Austen"}).Code)
	out := e.do(http.MethodPost, "/api/v1/users", map[string]string{"id": "g1", "name": "Sasha", "role": "Guest"})
	require.Equal(t, resp.CodeOK, out.Code, out.Msg)

	out = e.do(http.MethodPost, "/api/v1/users", map[string]string{"id": "x", "name": "X", "role": "admin"})
	assert.Equal(t, resp.CodeBadRequest, out.Code)

	out = e.do(http.MethodPost, "/api/v1/loans", map[string]string{"userId": "g1", "isbn": "42", "today": "2024-04-01"})
	require.Equal(t, resp.CodeOK, out.Code, out.Msg)
	var rec domain.BorrowRecord
	e.decode(out, &rec)
	assert.Equal(t, "2024-04-08", rec.DueAt.Format("2006-01-02"))

	out = e.do(http.MethodPost, "/api/v1/loans", map[string]string{"userId": "g1", "isbn": "43"})
	assert.Equal(t, resp.CodeUnprocessable, out.Code)
	assert.Equal(t, map[string]any{"rule": "limit_exceeded"}, out.Data)

	out = e.do(http.MethodPost, "/api/v1/loans", map[string]string{"userId": "g1", "isbn": "43", "today": "01/04/2024"})
	assert.Equal(t, resp.CodeBadRequest, out.Code)

	out = e.do(http.MethodDelete, "/api/v1/books/42", nil)
	assert.Equal(t, resp.CodeConflict, out.Code)
	out = e.do(http.MethodDelete, "/api/v1/users/g1", nil)
	assert.Equal(t, resp.CodeConflict, out.Code)

	out = e.do(http.MethodGet, "/api/v1/users/g1", nil)
	require.Equal(t, resp.CodeOK, out.Code)
	var u struct {
		ID          string        `json:"id"`
		Policy      domain.Policy `json:"policy"`
		ActiveLoans int           `json:"activeLoans"`
	}
	e.decode(out, &u)
	assert.Equal(t, 1, u.Policy.MaxLoans)
	assert.Equal(t, 1, u.ActiveLoans)

	// handler clock is 2024-05-01, past the due date
	out = e.do(http.MethodGet, "/api/v1/loans/overdue", nil)
	var over []domain.BorrowRecord
	e.decode(out, &over)
	require.Len(t, over, 1)
	assert.Equal(t, "42", over[0].ISBN)

	out = e.do(http.MethodGet, "/api/v1/loans/overdue?today=2024-04-08", nil)
	e.decode(out, &over)
	assert.Empty(t, over)

	out = e.do(http.MethodGet, "/api/v1/users/g1/overdue", nil)
	e.decode(out, &over)
	assert.Len(t, over, 1)

	out = e.do(http.MethodPost, "/api/v1/loans/42/return", map[string]string{"today": "2024-04-05"})
	require.Equal(t, resp.CodeOK, out.Code, out.Msg)
	out = e.do(http.MethodPost, "/api/v1/loans/42/return", nil)
	assert.Equal(t, resp.CodeNotFound, out.Code)

	out = e.do(http.MethodGet, "/api/v1/users/g1/loans", nil)
	var hist []domain.BorrowRecord
	e.decode(out, &hist)
	require.Len(t, hist, 1)
	assert.False(t, hist[0].Active())

	out = e.raw(http.MethodGet, "/api/v1/books/42", nil, "")
	var b domain.Book
	e.decode(out, &b)
	assert.True(t, b.Available)
}

func TestAPI_ReturnReadsChunkedBody(t *testing.T) {
	e := newEnv(t)
	require.Equal(t, resp.CodeOK, e.do(http.MethodPost, "/api/v1/books", map[string]string{"isbn": "42", "title": "Dune", "author": "Herbert"}).Code)
	require.Equal(t, resp.CodeOK, e.do(http.MethodPost, "/api/v1/users", map[string]string{"id": "s1", "name": "Ann", "role": "student"}).Code)
	require.Equal(t, resp.CodeOK, e.do(http.MethodPost, "/api/v1/loans", map[string]string{"userId": "s1", "isbn": "42", "today": "2024-04-01"}).Code)

	send := func(body io.Reader) resp.Resp {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/loans/42/return", body)
		req.ContentLength = -1
		req.TransferEncoding = []string{"chunked"}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+e.token)
		w := httptest.NewRecorder()
		e.r.ServeHTTP(w, req)
		var out resp.Resp
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
		return out
	}

	// body is honored: a date before the issue date is rejected
	out := send(io.MultiReader(strings.NewReader(`{"today":"2024-03-01"}`)))
	assert.Equal(t, resp.CodeBadRequest, out.Code, out.Msg)

	out = send(io.MultiReader(strings.NewReader(`{"today":`)))
	assert.Equal(t, resp.CodeBadRequest, out.Code)

	out = send(io.MultiReader(strings.NewReader(`{"today":"2024-04-03"}`)))
	require.Equal(t, resp.CodeOK, out.Code, out.Msg)
	var rec domain.BorrowRecord
	e.decode(out, &rec)
	require.NotNil(t, rec.ReturnedAt)
	assert.Equal(t, "2024-04-03", rec.ReturnedAt.Format("2006-01-02"))
}

func TestAPI_ReturnWithoutBodyUsesClock(t *testing.T) {
	e := newEnv(t)
	require.Equal(t, resp.CodeOK, e.do(http.MethodPost, "/api/v1/books", map[string]string{"isbn": "42", "title": "Dune", "author": "Herbert"}).Code)
	require.Equal(t, resp.CodeOK, e.do(http.MethodPost, "/api/v1/users", map[string]string{"id": "s1", "name": "Ann", "role": "student"}).Code)
	require.Equal(t, resp.CodeOK, e.do(http.MethodPost, "/api/v1/loans", map[string]string{"userId": "s1", "isbn": "42", "today": "2024-04-01"}).Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/loans/42/return", nil)
	req.Header.Set("Authorization", "Bearer "+e.token)
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	var out resp.Resp
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Equal(t, resp.CodeOK, out.Code, out.Msg)
	var rec domain.BorrowRecord
	e.decode(out, &rec)
	assert.Equal(t, "2024-05-01", rec.ReturnedAt.Format("2006-01-02"))
}

func TestAPI_HealthAndMetrics(t *testing.T) {
	e := newEnv(t)
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "library_books")
	assert.Contains(t, w.Body.String(), "library_http_requests_total")

	w = httptest.NewRecorder()
	e.r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.JSONEq(t, `{"ok":1}`, w.Body.String())
}

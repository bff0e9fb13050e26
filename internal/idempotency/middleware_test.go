package idempotency

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memStore struct {
	mu      sync.Mutex
	records map[string]*Record
	err     error
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]*Record)}
}

func (s *memStore) Claim(_ context.Context, key, fingerprint string) (bool, *Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, nil, s.err
	}
	if rec, ok := s.records[key]; ok {
		return false, rec, nil
	}
	s.records[key] = &Record{Fingerprint: fingerprint}
	return true, nil, nil
}

func (s *memStore) Complete(_ context.Context, key string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Done = true
	s.records[key] = &rec
	return nil
}

func (s *memStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

func newRouter(store Store, status *int, calls *int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/orders", Middleware(store, zap.NewNop()), func(c *gin.Context) {
		*calls++
		c.JSON(*status, gin.H{"call": *calls})
	})
	return r
}

func post(r http.Handler, key string) *httptest.ResponseRecorder {
	return postBody(r, key, `{"items":[1]}`)
}

func postBody(r http.Handler, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
	if key != "" {
		req.Header.Set(HeaderKey, key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMiddleware_ReplaysCompletedResponse(t *testing.T) {
	status, calls := http.StatusOK, 0
	r := newRouter(newMemStore(), &status, &calls)

	first := post(r, "abc")
	require.Equal(t, http.StatusOK, first.Code)
	assert.Empty(t, first.Header().Get(HeaderReplay))

	second := post(r, "abc")
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "true", second.Header().Get(HeaderReplay))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, calls)
}

func TestMiddleware_ClientErrorsAreReplayed(t *testing.T) {
	status, calls := http.StatusBadRequest, 0
	r := newRouter(newMemStore(), &status, &calls)

	post(r, "k")
	w := post(r, "k")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 1, calls)
}

func TestMiddleware_ServerErrorReleasesKey(t *testing.T) {
	status, calls := http.StatusInternalServerError, 0
	r := newRouter(newMemStore(), &status, &calls)

	post(r, "k")
	status = http.StatusOK
	w := post(r, "k")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get(HeaderReplay))
	assert.Equal(t, 2, calls)
}

func TestMiddleware_InProgressConflict(t *testing.T) {
	store := newMemStore()
	store.records["busy"] = &Record{}
	status, calls := http.StatusOK, 0
	r := newRouter(store, &status, &calls)

	w := post(r, "busy")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"error":"Request with this Idempotency-Key is in progress"}`, w.Body.String())
	assert.Zero(t, calls)
}

func TestMiddleware_WithoutKeyOrStore(t *testing.T) {
	store := newMemStore()
	status, calls := http.StatusOK, 0
	r := newRouter(store, &status, &calls)

	post(r, "")
	post(r, "")
	assert.Equal(t, 2, calls)

	store.err = errors.New("redis down")
	post(r, "x")
	post(r, "x")
	assert.Equal(t, 4, calls)
}

func TestMiddleware_KeyReusedWithDifferentBody(t *testing.T) {
	status, calls := http.StatusOK, 0
	r := newRouter(newMemStore(), &status, &calls)

	first := postBody(r, "k", `{"items":[1]}`)
	require.Equal(t, http.StatusOK, first.Code)

	w := postBody(r, "k", `{"items":[2]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.JSONEq(t, `{"error":"Idempotency-Key was used with a different request"}`, w.Body.String())
	assert.Empty(t, w.Header().Get(HeaderReplay))
	assert.Equal(t, 1, calls)

	w = postBody(r, "k", `{"items":[1]}`)
	assert.Equal(t, "true", w.Header().Get(HeaderReplay))
}

func TestMiddleware_HandlerSeesBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var got string
	r := gin.New()
	r.POST("/orders", Middleware(newMemStore(), zap.NewNop()), func(c *gin.Context) {
		raw, _ := c.GetRawData()
		got = string(raw)
		c.Status(http.StatusOK)
	})

	postBody(r, "k", `{"name":"Ada"}`)
	assert.Equal(t, `{"name":"Ada"}`, got)
}

func TestMiddleware_PanicReleasesKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := newMemStore()
	calls := 0
	r := gin.New()
	r.Use(gin.Recovery())
	r.POST("/orders", Middleware(store, zap.NewNop()), func(c *gin.Context) {
		calls++
		if calls == 1 {
			panic("boom")
		}
		c.JSON(http.StatusOK, gin.H{"call": calls})
	})

	w := post(r, "k")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, store.records, "k")

	w = post(r, "k")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, calls)
}

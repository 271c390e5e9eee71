package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const testActorHeader = "X-Test-Actor"

// newIdempotentRouter mounts the middleware in front of a handler that
// counts its invocations. The actor comes from testActorHeader.
func newIdempotentRouter(t *testing.T, mr *miniredis.Miniredis, handler gin.HandlerFunc) *gin.Engine {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(ActorKey, c.GetHeader(testActorHeader))
		c.Next()
	})
	router.Use(IdempotencyMiddleware(client, zap.NewNop()))
	router.POST("/trips", handler)
	router.POST("/user-trips", handler)
	router.GET("/trips", handler)
	router.DELETE("/trips/:id", handler)
	return router
}

func countingHandler(calls *int32, code int) gin.HandlerFunc {
	return func(c *gin.Context) {
		n := atomic.AddInt32(calls, 1)
		if code == http.StatusNoContent {
			c.Status(code)
			return
		}
		c.JSON(code, gin.H{"call": n})
	}
}

func sendIdempotent(router *gin.Engine, method, path, actor, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set(testActorHeader, actor)
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestIdempotency_ReplaysStoredResponse(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	var calls int32
	router := newIdempotentRouter(t, mr, countingHandler(&calls, http.StatusCreated))

	first := sendIdempotent(router, http.MethodPost, "/trips", testUser1, "key-1")
	second := sendIdempotent(router, http.MethodPost, "/trips", testUser1, "key-1")

	if calls != 1 {
		t.Fatalf("expected handler to run once, ran %d times", calls)
	}
	if second.Code != http.StatusCreated {
		t.Errorf("expected replayed 201, got %d", second.Code)
	}
	if second.Body.String() != first.Body.String() {
		t.Errorf("expected replayed body %s, got %s", first.Body.String(), second.Body.String())
	}
	if ct := second.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("expected replayed content type, got %q", ct)
	}

	key := "idempotency:" + testUser1 + ":POST:/trips:key-1"
	if ttl := mr.TTL(key); ttl != idempotencyTTL {
		t.Errorf("expected stored response to live %v, got %v", idempotencyTTL, ttl)
	}
}

func TestIdempotency_ReplaysClientErrors(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	var calls int32
	router := newIdempotentRouter(t, mr, countingHandler(&calls, http.StatusBadRequest))

	sendIdempotent(router, http.MethodPost, "/trips", testUser1, "key-1")
	second := sendIdempotent(router, http.MethodPost, "/trips", testUser1, "key-1")

	if calls != 1 {
		t.Errorf("expected handler to run once, ran %d times", calls)
	}
	if second.Code != http.StatusBadRequest {
		t.Errorf("expected replayed 400, got %d", second.Code)
	}
}

func TestIdempotency_ReplaysEmptyBody(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	var calls int32
	router := newIdempotentRouter(t, mr, countingHandler(&calls, http.StatusNoContent))

	sendIdempotent(router, http.MethodDelete, "/trips/42", testUser1, "key-1")
	second := sendIdempotent(router, http.MethodDelete, "/trips/42", testUser1, "key-1")

	if calls != 1 {
		t.Errorf("expected handler to run once, ran %d times", calls)
	}
	if second.Code != http.StatusNoContent {
		t.Errorf("expected replayed 204, got %d", second.Code)
	}
}

func TestIdempotency_ServerErrorsAreNotReplayed(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	var calls int32
	router := newIdempotentRouter(t, mr, func(c *gin.Context) {
		if atomic.AddInt32(&calls, 1) == 1 {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"ok": true})
	})

	first := sendIdempotent(router, http.MethodPost, "/trips", testUser1, "key-1")
	if first.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", first.Code)
	}
	if mr.Exists("idempotency:" + testUser1 + ":POST:/trips:key-1") {
		t.Error("expected the key to be released after a server error")
	}

	second := sendIdempotent(router, http.MethodPost, "/trips", testUser1, "key-1")
	if second.Code != http.StatusCreated {
		t.Errorf("expected retry to run, got %d", second.Code)
	}
	if calls != 2 {
		t.Errorf("expected handler to run twice, ran %d times", calls)
	}
}

func TestIdempotency_InFlightDuplicateIsConflict(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	if err := mr.Set("idempotency:"+testUser1+":POST:/trips:key-1", idempotencyPending); err != nil {
		t.Fatalf("seed pending claim: %v", err)
	}
	var calls int32
	router := newIdempotentRouter(t, mr, countingHandler(&calls, http.StatusCreated))

	w := sendIdempotent(router, http.MethodPost, "/trips", testUser1, "key-1")

	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
	if calls != 0 {
		t.Errorf("expected handler not to run, ran %d times", calls)
	}
}

func TestIdempotency_KeyScope(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		method string
		path   string
		actor  string
		key    string
		want   int32 // handler calls after the original request and this one
	}{
		{"same request", http.MethodPost, "/trips", testUser1, "key-1", 1},
		{"other actor", http.MethodPost, "/trips", testUser2, "key-1", 2},
		{"other path", http.MethodPost, "/user-trips", testUser1, "key-1", 2},
		{"other key", http.MethodPost, "/trips", testUser1, "key-2", 2},
		{"no key", http.MethodPost, "/trips", testUser1, "", 2},
		{"safe method", http.MethodGet, "/trips", testUser1, "key-1", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mr := miniredis.RunT(t)
			var calls int32
			router := newIdempotentRouter(t, mr, countingHandler(&calls, http.StatusCreated))

			sendIdempotent(router, http.MethodPost, "/trips", testUser1, "key-1")
			w := sendIdempotent(router, tt.method, tt.path, tt.actor, tt.key)

			if calls != tt.want {
				t.Errorf("expected %d handler calls, got %d", tt.want, calls)
			}
			if tt.want == 2 && w.Body.String() != `{"call":2}` {
				t.Errorf("expected a fresh response, got %s", w.Body.String())
			}
		})
	}
}

func TestIdempotency_StoreUnavailablePassesThrough(t *testing.T) {
	t.Parallel()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start redis: %v", err)
	}
	var calls int32
	router := newIdempotentRouter(t, mr, countingHandler(&calls, http.StatusCreated))
	mr.Close()

	for range 2 {
		if w := sendIdempotent(router, http.MethodPost, "/trips", testUser1, "key-1"); w.Code != http.StatusCreated {
			t.Errorf("expected 201, got %d", w.Code)
		}
	}
	if calls != 2 {
		t.Errorf("expected handler to run twice, ran %d times", calls)
	}
}

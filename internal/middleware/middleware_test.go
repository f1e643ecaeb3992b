package middleware

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-ojt-placements/internal/errors"
	"github.com/pesio-ai/be-ojt-placements/internal/identity"
)

type stubParser map[string]identity.Actor

func (p stubParser) Parse(token string) (identity.Actor, error) {
	a, ok := p[token]
	if !ok {
		return identity.Actor{}, stderrors.New("bad token")
	}
	return a, nil
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Error
}

func TestAuth(t *testing.T) {
	var seen identity.Actor
	h := Auth(stubParser{"good": {ID: "stu-1", Role: identity.RoleStudent}}, "/health")(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen, _ = identity.FromContext(r.Context())
			w.WriteHeader(http.StatusNoContent)
		}))

	tests := []struct {
		name   string
		path   string
		header string
		status int
	}{
		{"public path", "/health", "", http.StatusNoContent},
		{"missing header", "/api/v1/companies", "", http.StatusUnauthorized},
		{"wrong scheme", "/api/v1/companies", "Basic abc", http.StatusUnauthorized},
		{"unknown token", "/api/v1/companies", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "/api/v1/companies", "bearer good", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusUnauthorized {
				assert.Equal(t, errors.ErrCodeUnauthorized, decodeError(t, rec).Code)
			}
		})
	}
	assert.Equal(t, "stu-1", seen.ID)
}

func TestRequestIDPropagates(t *testing.T) {
	var got string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = RequestIDFrom(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, got)
	assert.Equal(t, got, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", got)
}

func TestRecoveryWritesInternalError(t *testing.T) {
	log := zerolog.Nop()
	h := Recovery(&log)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, errors.ErrCodeInternal, decodeError(t, rec).Code)
}

func TestCORSPreflight(t *testing.T) {
	called := false
	h := CORS([]string{"https://portal.example.edu"})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/companies", nil)
	req.Header.Set("Origin", "https://portal.example.edu")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://portal.example.edu", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.False(t, called)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/companies", nil)
	req.Header.Set("Origin", "https://elsewhere.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.True(t, called)
}

func TestTimeoutSetsDeadline(t *testing.T) {
	var ok bool
	h := Timeout(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok = r.Context().Deadline()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, ok)
}

func TestRateLimitThrottlesWrites(t *testing.T) {
	limiter := NewRateLimiter()
	h := RateLimit(limiter, ActorOrIP, 2, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	post := func(actor string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/applications", nil)
		req = req.WithContext(identity.WithActor(req.Context(), identity.Actor{ID: actor, Role: identity.RoleStudent}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, post("stu-1"))
	assert.Equal(t, http.StatusOK, post("stu-1"))
	assert.Equal(t, http.StatusTooManyRequests, post("stu-1"))
	assert.Equal(t, http.StatusOK, post("stu-2"), "limits are per actor")

	for range 5 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/applications", nil))
		assert.Equal(t, http.StatusOK, rec.Code, "reads are not limited")
	}
}

func TestRateLimiterWindowResets(t *testing.T) {
	now := time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)
	l := NewRateLimiter()
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("k", 1, time.Second))
	assert.False(t, l.Allow("k", 1, time.Second))
	now = now.Add(2 * time.Second)
	assert.True(t, l.Allow("k", 1, time.Second))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.7:5123"
	assert.Equal(t, "10.0.0.7", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", ClientIP(req))
}

func TestRedisLimiterFailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	l := NewRedisLimiter(client, zerolog.Nop())
	assert.True(t, l.Allow("stu-1", 1, time.Minute))
	assert.True(t, l.Allow("stu-1", 1, time.Minute))

	var nilLimiter *RedisLimiter
	assert.True(t, nilLimiter.Allow("stu-1", 1, time.Minute))
}

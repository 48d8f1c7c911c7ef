package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"jam3a/internal/authz"
	"jam3a/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestProperty_RateLimitingBlocksExcessiveRequests(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("excessive requests are blocked with 429", prop.ForAll(
		func(requestsPerWindow int, excessRequests int) bool {
			mr, err := miniredis.Run()
			if err != nil {
				t.Fatalf("Failed to start miniredis: %v", err)
				return false
			}
			defer mr.Close()

			redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			defer redisClient.Close()

			handler := RateLimitMiddleware(redisClient, RateLimitConfig{
				RequestsPerWindow: requestsPerWindow,
				Window:            time.Minute,
				KeyPrefix:         "test_rate_limit",
			}, zap.NewNop())(okHandler())

			successCount := 0
			blockedCount := 0
			for i := 0; i < requestsPerWindow+excessRequests; i++ {
				req := httptest.NewRequest("POST", "/api/deals/x/join", nil)
				req.RemoteAddr = "192.168.1.100:5555"
				w := httptest.NewRecorder()
				handler.ServeHTTP(w, req)

				switch w.Code {
				case http.StatusOK:
					successCount++
				case http.StatusTooManyRequests:
					blockedCount++
				}
			}

			return successCount == requestsPerWindow && blockedCount == excessRequests
		},
		gen.IntRange(1, 20),
		gen.IntRange(1, 10),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestRateLimitIsPerActorAndResetsAfterWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer redisClient.Close()

	handler := RateLimitMiddleware(redisClient, RateLimitConfig{
		RequestsPerWindow: 1,
		Window:            time.Minute,
		KeyPrefix:         "join",
	}, zap.NewNop())(okHandler())

	send := func(actor authz.Actor) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/api/deals/x/join", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		req = req.WithContext(WithActor(req.Context(), actor))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	alice := authz.Actor{ID: uuid.New(), Role: domain.RoleCustomer}
	bob := authz.Actor{ID: uuid.New(), Role: domain.RoleCustomer}

	assert.Equal(t, http.StatusOK, send(alice).Code)
	limited := send(alice)
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "0", limited.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, limited.Header().Get("Retry-After"))

	// same IP, different actor
	assert.Equal(t, http.StatusOK, send(bob).Code)

	mr.FastForward(time.Minute + time.Second)
	assert.Equal(t, http.StatusOK, send(alice).Code)
}

func TestRateLimitFailsOpenWhenRedisIsDown(t *testing.T) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer redisClient.Close()
	mr.Close()

	handler := RateLimitMiddleware(redisClient, RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute, KeyPrefix: "join"}, zap.NewNop())(okHandler())

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

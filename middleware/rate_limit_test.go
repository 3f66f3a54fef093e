package middleware

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KOMKZ/go-fabric/testutil"
)

func newRateLimitEngine(cfg RateLimitConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(RateLimit(cfg))
	engine.GET("/api", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return engine
}

func TestRateLimit(t *testing.T) {
	t.Run("桶容量内放行", func(t *testing.T) {
		cfg := DefaultRateLimitConfig()
		cfg.Rate = 1
		cfg.Burst = 3
		engine := newRateLimitEngine(cfg)

		for i := 0; i < 3; i++ {
			resp := testutil.GET("/api").Do(engine)
			assert.Equal(t, http.StatusOK, resp.Status())
		}
	})

	t.Run("超出桶容量返回 429", func(t *testing.T) {
		cfg := DefaultRateLimitConfig()
		cfg.Rate = 0.001
		cfg.Burst = 2
		engine := newRateLimitEngine(cfg)

		testutil.GET("/api").Do(engine)
		testutil.GET("/api").Do(engine)
		resp := testutil.GET("/api").Do(engine)

		require.Equal(t, http.StatusTooManyRequests, resp.Status())
		assert.Contains(t, resp.Body(), "Rate limit exceeded")
	})

	t.Run("跳过路径不限流", func(t *testing.T) {
		cfg := DefaultRateLimitConfig()
		cfg.Rate = 0.001
		cfg.Burst = 1
		cfg.SkipPaths = []string{"/health"}
		engine := newRateLimitEngine(cfg)

		for i := 0; i < 5; i++ {
			resp := testutil.GET("/health").Do(engine)
			assert.Equal(t, http.StatusOK, resp.Status())
		}
	})

	t.Run("不同资源键互不影响", func(t *testing.T) {
		cfg := DefaultRateLimitConfig()
		cfg.Rate = 0.001
		cfg.Burst = 1
		engine := newRateLimitEngine(cfg)

		require.Equal(t, http.StatusOK, testutil.GET("/api").Do(engine).Status())
		require.Equal(t, http.StatusTooManyRequests, testutil.GET("/api").Do(engine).Status())
		// /health 有自己的令牌桶
		assert.Equal(t, http.StatusOK, testutil.GET("/health").Do(engine).Status())
	})
}

func TestRateLimitKeyFuncs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(nil)
	c.Request, _ = http.NewRequest("GET", "/api/orders", nil)

	assert.Contains(t, RateLimitKeyByIP(c), "ip:")
	assert.Contains(t, RateLimitKeyByPathAndIP(c), "/api/orders")
}

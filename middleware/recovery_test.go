package middleware

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KOMKZ/go-fabric/testutil"
)

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(Recovery())
	engine.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})
	engine.GET("/ok", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	t.Run("panic 返回统一 500", func(t *testing.T) {
		resp := testutil.GET("/panic").Do(engine)

		require.Equal(t, http.StatusInternalServerError, resp.Status())

		var body map[string]string
		require.NoError(t, resp.JSON(&body))
		assert.Equal(t, "Internal Server Error", body["error"])
		assert.Equal(t, "boom", body["message"])
		// 不暴露堆栈
		assert.NotContains(t, resp.Body(), "runtime/debug")
	})

	t.Run("正常请求不受影响", func(t *testing.T) {
		resp := testutil.GET("/ok").Do(engine)
		assert.Equal(t, http.StatusOK, resp.Status())
	})
}

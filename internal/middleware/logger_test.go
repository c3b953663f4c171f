package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerLevelsAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Logger(zap.New(core)))
	r.GET("/sessions/:id", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": 1}) })
	r.GET("/boom", func(c *gin.Context) { c.AbortWithStatus(http.StatusInternalServerError) })
	r.GET("/nope", func(c *gin.Context) { c.AbortWithStatus(http.StatusNotFound) })

	for _, path := range []string{"/sessions/abc?fields=status", "/boom", "/nope"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}

	entries := logs.All()
	require.Len(t, entries, 3)

	okLine := entries[0]
	assert.Equal(t, zapcore.InfoLevel, okLine.Level)
	fields := okLine.ContextMap()
	assert.Equal(t, "/sessions/abc?fields=status", fields["path"])
	assert.Equal(t, "abc", fields["resource_id"])
	assert.EqualValues(t, http.StatusOK, fields["status"])

	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
}

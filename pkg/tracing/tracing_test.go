package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/sma-schedule-engine/pkg/config"
)

func TestNewDisabledReturnsUsableProvider(t *testing.T) {
	p, err := New(context.Background(), config.TracingConfig{Enabled: false}, "test", nil)
	require.NoError(t, err)

	ctx, span := p.StartSpan(context.Background(), "run")
	AddEvent(ctx, "phase")
	SetError(ctx, errors.New("x"))
	span.End()

	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNilProviderIsSafe(t *testing.T) {
	var p *Provider
	_, span := p.StartSpan(context.Background(), "run")
	span.End()
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestGinMiddlewareAttachesSpan(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware(Noop()))
	var valid bool
	r.GET("/runs/:id", func(c *gin.Context) {
		valid = trace.SpanFromContext(c.Request.Context()).SpanContext().IsValid()
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/runs/1", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, valid)
}

package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/celerix-dev/celerix-records/pkg/engine"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestResult(t *testing.T) {
	assert.Equal(t, "ok", Result(nil))
	assert.Equal(t, "RecordNotFound", Result(engine.ErrRecordNotFound))
	assert.Equal(t, "InvalidTitle", Result(fmt.Errorf("wrap: %w", engine.ErrInvalidTitle)))
	assert.Equal(t, "error", Result(errors.New("io")))
}

func TestObserveOperation(t *testing.T) {
	before := testutil.ToFloat64(operationsTotal.WithLabelValues("store_record", "RecordAlreadyExists"))
	ObserveOperation("store_record", engine.ErrRecordAlreadyExists)
	after := testutil.ToFloat64(operationsTotal.WithLabelValues("store_record", "RecordAlreadyExists"))
	assert.Equal(t, before+1, after)
}

func TestGinMiddleware_UsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/api/records/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/api/records/:id", "204"))
	for _, id := range []string{"1", "2", "3"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/records/"+id, nil))
	}
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/api/records/:id", "204"))
	assert.Equal(t, before+3, after)
}

func TestObserveCommand_BoundsCardinality(t *testing.T) {
	ObserveCommand("store", nil)
	series := testutil.CollectAndCount(tcpCommandsTotal)

	for i := 0; i < 50; i++ {
		ObserveCommand(fmt.Sprintf("JUNK%d", i), errors.New("unknown command"))
	}
	// Junk verbs share one "unknown" series.
	assert.LessOrEqual(t, testutil.CollectAndCount(tcpCommandsTotal), series+1)
	assert.GreaterOrEqual(t, testutil.ToFloat64(tcpCommandsTotal.WithLabelValues("unknown", "error")), float64(50))

	assert.Equal(t, "STORE", CommandLabel("store"))
	assert.Equal(t, "GET_HASH", CommandLabel("GET_HASH"))
	assert.Equal(t, "unknown", CommandLabel("DROP_TABLE"))
}

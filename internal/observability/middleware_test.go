package observability

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danmuck/armlink/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func newTestRouter(out *bytes.Buffer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := zerolog.New(out).Level(zerolog.InfoLevel)
	r := gin.New()
	r.Use(RequestLogger(logger))
	r.Use(RequestMetricsMiddleware())
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/state", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func serve(r *gin.Engine, path string) int {
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr.Code
}

func TestRequestLoggerQuietsProbes(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	var out bytes.Buffer
	r := newTestRouter(&out)

	serve(r, "/health")
	if out.Len() != 0 {
		t.Fatalf("probe logged at info: %s", out.String())
	}
	serve(r, "/state")
	if !strings.Contains(out.String(), `"path":"/state"`) {
		t.Fatalf("request not logged: %s", out.String())
	}
}

func TestUnmatchedPathsShareOneLabel(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	var out bytes.Buffer
	r := newTestRouter(&out)

	counter := httpRequests.WithLabelValues("GET", "unmatched", "404")
	before := testutil.ToFloat64(counter)
	if code := serve(r, "/no/such/route"); code != http.StatusNotFound {
		t.Fatalf("status: got=%d", code)
	}
	serve(r, "/another")
	if got := testutil.ToFloat64(counter) - before; got != 2 {
		t.Fatalf("unmatched delta: got=%v want=2", got)
	}
	if !strings.Contains(out.String(), `"raw_path":"/no/such/route"`) {
		t.Fatalf("raw path not logged: %s", out.String())
	}
}

package exporters

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/smazurov/watchnode/internal/metrics"
)

func TestHTTPHandlerExportsCameraMetrics(t *testing.T) {
	id := "http-export-cam"
	metrics.SetCameraState(id, "streaming")
	metrics.IncCameraFrames(id)
	t.Cleanup(func() { metrics.DeleteCameraMetrics(id) })

	rec := httptest.NewRecorder()
	HTTPHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`watchnode_camera_state{camera_id="http-export-cam",state="streaming"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("response missing %q", want)
		}
	}
}

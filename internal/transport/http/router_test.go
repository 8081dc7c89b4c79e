package httptransport_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ErlanBelekov/pipeline-scheduler/internal/domain"
	"github.com/ErlanBelekov/pipeline-scheduler/internal/infrastructure/memory"
	"github.com/ErlanBelekov/pipeline-scheduler/internal/scheduler"
	httptransport "github.com/ErlanBelekov/pipeline-scheduler/internal/transport/http"
	"github.com/ErlanBelekov/pipeline-scheduler/internal/transport/http/handler"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testKey = "router-test-secret-at-least-32-chars"

func init() {
	gin.SetMode(gin.TestMode)
}

type nopTrigger struct{}

func (nopTrigger) Trigger(_ context.Context, jobID string) (domain.Firing, error) {
	return domain.Firing{JobID: jobID}, nil
}

func newRouter(jwtKey []byte) *gin.Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := scheduler.NewRegistry()
	return httptransport.NewRouter(
		logger,
		handler.NewScheduleHandler(reg, nopTrigger{}, logger),
		handler.NewRunHandler(memory.NewRunRepository(10), logger),
		jwtKey,
	)
}

func TestRouter_OpenWithoutKey(t *testing.T) {
	w := httptest.NewRecorder()
	newRouter(nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/schedules", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("request id header missing")
	}
}

func TestRouter_RequiresTokenWithKey(t *testing.T) {
	r := newRouter([]byte(testKey))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/runs", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "ops",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testKey))
	if err != nil {
		t.Fatal(err)
	}

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/schedules/orders/trigger", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", w.Code)
	}
}

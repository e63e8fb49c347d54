package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestServerEndpoints(t *testing.T) {
	notReady := errors.New("store down")
	var readyErr error
	s := NewServer(":0", func(ctx context.Context) error { return readyErr })

	tests := []struct {
		path  string
		ready error
		want  int
	}{
		{"/healthz", notReady, http.StatusOK},
		{"/readyz", nil, http.StatusOK},
		{"/readyz", notReady, http.StatusServiceUnavailable},
		{"/metrics", nil, http.StatusOK},
	}
	for _, tt := range tests {
		readyErr = tt.ready
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.want {
			t.Errorf("%s (ready=%v) = %d, want %d", tt.path, tt.ready, rec.Code, tt.want)
		}
	}
}

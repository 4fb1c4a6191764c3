package utils

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func corsRouter(origins ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Cors(origins...))
	r.GET("/api/session/photo", func(c *gin.Context) {
		c.Header("Content-Disposition", "inline; filename=photo.jpg")
		c.Data(http.StatusOK, "image/jpeg", []byte{0xff, 0xd8})
	})
	return r
}

func TestCorsAnyOrigin(t *testing.T) {
	r := corsRouter()
	req := httptest.NewRequest(http.MethodOptions, "/api/session/photo", nil)
	req.Header.Set("Origin", "http://viewer.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodDelete)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight status %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow origin %q", got)
	}
	if !strings.Contains(w.Header().Get("Access-Control-Allow-Methods"), http.MethodDelete) {
		t.Fatalf("allow methods %q", w.Header().Get("Access-Control-Allow-Methods"))
	}
}

func TestCorsExposesDownloadHeaders(t *testing.T) {
	r := corsRouter("http://viewer.local")
	req := httptest.NewRequest(http.MethodGet, "/api/session/photo", nil)
	req.Header.Set("Origin", "http://viewer.local")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://viewer.local" {
		t.Fatalf("allow origin %q", got)
	}
	if !strings.Contains(w.Header().Get("Access-Control-Expose-Headers"), "Content-Disposition") {
		t.Fatalf("expose headers %q", w.Header().Get("Access-Control-Expose-Headers"))
	}
}

func TestCorsRejectsUnknownOrigin(t *testing.T) {
	r := corsRouter("http://viewer.local")
	req := httptest.NewRequest(http.MethodGet, "/api/session/photo", nil)
	req.Header.Set("Origin", "http://elsewhere.local")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status %d", w.Code)
	}
}

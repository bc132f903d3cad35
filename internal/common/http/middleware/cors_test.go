package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"judgecore/internal/common/http/middleware"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestCORSMiddleware(t *testing.T) {
	cases := []struct {
		name        string
		config      middleware.CORSConfig
		method      string
		origin      string
		wantStatus  int
		wantOrigin  string
		wantMaxAge  string
		wantMethods string
	}{
		{
			name:       "disabled passes through",
			config:     middleware.CORSConfig{Enabled: false},
			method:     http.MethodGet,
			origin:     "https://example.com",
			wantStatus: http.StatusOK,
		},
		{
			name: "allowed preflight",
			config: middleware.CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"https://example.com"},
				AllowedMethods: []string{"GET", "POST"},
				AllowedHeaders: []string{"Content-Type"},
				MaxAgeSeconds:  600,
			},
			method:      http.MethodOptions,
			origin:      "https://example.com",
			wantStatus:  http.StatusNoContent,
			wantOrigin:  "https://example.com",
			wantMaxAge:  "600",
			wantMethods: "GET,POST",
		},
		{
			name: "blocked preflight",
			config: middleware.CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"https://allowed.com"},
			},
			method:     http.MethodOptions,
			origin:     "https://denied.com",
			wantStatus: http.StatusForbidden,
		},
		{
			name: "wildcard origin",
			config: middleware.CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
			},
			method:     http.MethodGet,
			origin:     "https://anywhere.example",
			wantStatus: http.StatusOK,
			wantOrigin: "*",
		},
		{
			name: "no origin header skips cors",
			config: middleware.CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"https://example.com"},
			},
			method:     http.MethodGet,
			wantStatus: http.StatusOK,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := gin.New()
			router.Use(middleware.CORSMiddleware(tc.config))
			router.GET("/resource", func(c *gin.Context) {
				c.Status(http.StatusOK)
			})

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(tc.method, "/resource", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			router.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tc.wantOrigin {
				t.Errorf("Allow-Origin = %q, want %q", got, tc.wantOrigin)
			}
			if tc.wantMaxAge != "" && rec.Header().Get("Access-Control-Max-Age") != tc.wantMaxAge {
				t.Errorf("Max-Age = %q, want %q", rec.Header().Get("Access-Control-Max-Age"), tc.wantMaxAge)
			}
			if tc.wantMethods != "" && rec.Header().Get("Access-Control-Allow-Methods") != tc.wantMethods {
				t.Errorf("Allow-Methods = %q, want %q", rec.Header().Get("Access-Control-Allow-Methods"), tc.wantMethods)
			}
		})
	}
}

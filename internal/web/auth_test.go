package web

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/runixer/tubegrab/internal/config"
	"github.com/runixer/tubegrab/internal/testutil"
)

func TestBasicAuthMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		authEnabled    bool
		requestPath    string
		requestUser    string
		requestPass    string
		expectedStatus int
	}{
		{
			name:           "Auth Disabled - API Route",
			authEnabled:    false,
			requestPath:    "/api/stats",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Auth Enabled - API Route - No Credentials",
			authEnabled:    true,
			requestPath:    "/api/stats",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Auth Enabled - API Route - Wrong Credentials",
			authEnabled:    true,
			requestPath:    "/api/downloads",
			requestUser:    "admin",
			requestPass:    "wrong",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Auth Enabled - API Route - Correct Credentials",
			authEnabled:    true,
			requestPath:    "/api/stats",
			requestUser:    "admin",
			requestPass:    "secret",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Auth Enabled - Healthz",
			authEnabled:    true,
			requestPath:    "/healthz",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Auth Enabled - Webhook",
			authEnabled:    true,
			requestPath:    "/telegram/abc",
			expectedStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{}
			cfg.Server.Auth.Enabled = tt.authEnabled
			cfg.Server.Auth.Username = "admin"
			cfg.Server.Auth.Password = "secret"

			server := &Server{
				cfg:    cfg,
				logger: testutil.TestLogger(),
			}

			nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})

			middleware := server.basicAuthMiddleware(nextHandler)

			req := httptest.NewRequest(http.MethodGet, tt.requestPath, nil)
			if tt.requestUser != "" || tt.requestPass != "" {
				req.SetBasicAuth(tt.requestUser, tt.requestPass)
			}

			rr := httptest.NewRecorder()
			middleware.ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedStatus, rr.Code)
			if tt.expectedStatus == http.StatusUnauthorized {
				assert.Equal(t, `Basic realm="Restricted"`, rr.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

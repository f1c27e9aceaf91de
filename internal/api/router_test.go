package api_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ndewijer/brokerage-sync/internal/api"
	"github.com/ndewijer/brokerage-sync/internal/config"
	"github.com/ndewijer/brokerage-sync/internal/service"
	"github.com/ndewijer/brokerage-sync/internal/testutil"
)

func TestNewRouter(t *testing.T) {
	db := testutil.SetupTestDB(t)
	syncService := testutil.NewTestSyncService(t, db)
	src := testutil.NewFakeSource().WithAccounts(testutil.AccountRecord("acc-1", "ca_tfsa"))
	coordinator := service.NewCoordinator(syncService, testutil.NewFakeAuthenticator(src), nil, false, testutil.TestLogger(t))
	t.Cleanup(coordinator.Wait)

	cfg := &config.Config{}
	cfg.Server.APIKey = "secret"
	cfg.CORS.AllowedOrigins = []string{"http://localhost:3000"}

	router := api.NewRouter(testutil.NewTestSystemService(t, db), syncService, coordinator, cfg, testutil.TestLogger(t))
	run := testutil.NewSyncRun().Build(t, db)

	tests := []struct {
		name   string
		method string
		path   string
		apiKey string
		want   int
	}{
		{"health", http.MethodGet, "/api/system/health", "", http.StatusOK},
		{"version", http.MethodGet, "/api/system/version", "", http.StatusOK},
		{"latest run", http.MethodGet, "/api/sync/latest", "", http.StatusOK},
		{"history", http.MethodGet, "/api/sync/history?limit=5", "", http.StatusOK},
		{"run by id", http.MethodGet, "/api/sync/" + run.ID, "", http.StatusOK},
		{"malformed run id", http.MethodGet, "/api/sync/not-a-uuid", "", http.StatusBadRequest},
		{"trigger without key", http.MethodPost, "/api/sync", "", http.StatusUnauthorized},
		{"trigger with key", http.MethodPost, "/api/sync", "secret", http.StatusAccepted},
		{"unknown route", http.MethodGet, "/api/portfolio", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.apiKey != "" {
				req.Header.Set("X-API-Key", tt.apiKey)
			}
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndewijer/brokerage-sync/internal/brokerage"
	"github.com/ndewijer/brokerage-sync/internal/database"
	"github.com/ndewijer/brokerage-sync/internal/model"
	"github.com/ndewijer/brokerage-sync/internal/service"
	"github.com/ndewijer/brokerage-sync/internal/testutil"
)

func setupSyncHandler(t *testing.T, auth brokerage.Authenticator) (*SyncHandler, *service.Coordinator, *database.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	syncService := testutil.NewTestSyncService(t, db)
	coordinator := service.NewCoordinator(syncService, auth, nil, false, testutil.TestLogger(t))
	return NewSyncHandler(syncService, coordinator), coordinator, db
}

func oneAccountAuthenticator() *testutil.FakeAuthenticator {
	src := testutil.NewFakeSource().
		WithAccounts(testutil.AccountRecord("acc-1", "ca_tfsa")).
		WithPositions("acc-1", testutil.PositionRecord("XEQT", "900", "1000"))
	return testutil.NewFakeAuthenticator(src)
}

func TestSyncHandler_Latest(t *testing.T) {
	t.Run("returns 404 before any run", func(t *testing.T) {
		handler, _, _ := setupSyncHandler(t, oneAccountAuthenticator())

		w := httptest.NewRecorder()
		handler.Latest(w, httptest.NewRequest(http.MethodGet, "/api/sync/latest", nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("returns the newest run", func(t *testing.T) {
		handler, _, db := setupSyncHandler(t, oneAccountAuthenticator())
		testutil.NewSyncRun().StartedAt(time.Now().Add(-2 * time.Hour)).Build(t, db)
		newest := testutil.NewSyncRun().Failed("login failed").Build(t, db)

		w := httptest.NewRecorder()
		handler.Latest(w, httptest.NewRequest(http.MethodGet, "/api/sync/latest", nil))

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var run model.SyncRun
		testutil.DecodeJSON(t, w, &run)
		assert.Equal(t, newest.ID, run.ID)
		assert.Equal(t, model.SyncError, run.Status)
		require.NotNil(t, run.Error)
		assert.Equal(t, "login failed", *run.Error)
	})
}

func TestSyncHandler_History(t *testing.T) {
	t.Run("applies the limit newest first", func(t *testing.T) {
		handler, _, db := setupSyncHandler(t, oneAccountAuthenticator())
		base := time.Now().Add(-time.Hour)
		for i := 0; i < 3; i++ {
			testutil.NewSyncRun().StartedAt(base.Add(time.Duration(i) * time.Minute)).Build(t, db)
		}

		req := testutil.NewRequestWithQueryParams(http.MethodGet, "/api/sync/history", map[string]string{"limit": "2"})
		w := httptest.NewRecorder()
		handler.History(w, req)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var runs []model.SyncRun
		testutil.DecodeJSON(t, w, &runs)
		require.Len(t, runs, 2)
		assert.True(t, runs[0].StartedAt.After(runs[1].StartedAt))
	})

	t.Run("empty history is an empty list", func(t *testing.T) {
		handler, _, _ := setupSyncHandler(t, oneAccountAuthenticator())

		w := httptest.NewRecorder()
		handler.History(w, httptest.NewRequest(http.MethodGet, "/api/sync/history", nil))

		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, "[]", w.Body.String())
	})

	t.Run("rejects an invalid limit", func(t *testing.T) {
		handler, _, _ := setupSyncHandler(t, oneAccountAuthenticator())

		for _, limit := range []string{"abc", "0", "101"} {
			req := testutil.NewRequestWithQueryParams(http.MethodGet, "/api/sync/history", map[string]string{"limit": limit})
			w := httptest.NewRecorder()
			handler.History(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code, "limit %q", limit)
		}
	})
}

func TestSyncHandler_Run(t *testing.T) {
	t.Run("returns the run", func(t *testing.T) {
		handler, _, db := setupSyncHandler(t, oneAccountAuthenticator())
		created := testutil.NewSyncRun().WithCounts(model.SyncCounts{Accounts: 1}).Build(t, db)

		req := testutil.NewRequestWithURLParams(http.MethodGet, "/api/sync/"+created.ID, map[string]string{"uuid": created.ID})
		w := httptest.NewRecorder()
		handler.Run(w, req)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var run model.SyncRun
		testutil.DecodeJSON(t, w, &run)
		assert.Equal(t, created.ID, run.ID)
		assert.Equal(t, 1, run.Counts.Accounts)
	})

	t.Run("returns 404 for an unknown run", func(t *testing.T) {
		handler, _, _ := setupSyncHandler(t, oneAccountAuthenticator())
		id := testutil.MakeID()

		req := testutil.NewRequestWithURLParams(http.MethodGet, "/api/sync/"+id, map[string]string{"uuid": id})
		w := httptest.NewRecorder()
		handler.Run(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestSyncHandler_Trigger(t *testing.T) {
	t.Run("starts a background run", func(t *testing.T) {
		handler, coordinator, db := setupSyncHandler(t, oneAccountAuthenticator())

		w := httptest.NewRecorder()
		handler.Trigger(w, httptest.NewRequest(http.MethodPost, "/api/sync", nil))
		coordinator.Wait()

		require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
		assert.JSONEq(t, `{"status":"started"}`, w.Body.String())

		latest, err := testutil.NewTestSyncService(t, db).LatestRun(context.Background())
		require.NoError(t, err)
		assert.Equal(t, model.SyncSuccess, latest.Status)
		assert.Equal(t, 1, latest.Counts.Positions)
	})

	t.Run("returns 409 while a run is in flight", func(t *testing.T) {
		auth := &gatedAuthenticator{entered: make(chan struct{}, 1), release: make(chan struct{})}
		handler, coordinator, _ := setupSyncHandler(t, auth)
		require.NoError(t, coordinator.Start(context.Background()))
		<-auth.entered

		w := httptest.NewRecorder()
		handler.Trigger(w, httptest.NewRequest(http.MethodPost, "/api/sync", nil))

		close(auth.release)
		coordinator.Wait()

		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

// gatedAuthenticator holds a run open until release is closed, then fails it.
type gatedAuthenticator struct {
	entered chan struct{}
	release chan struct{}
}

func (a *gatedAuthenticator) Authenticate(ctx context.Context) (brokerage.Source, error) {
	a.entered <- struct{}{}
	<-a.release
	return nil, context.Canceled
}

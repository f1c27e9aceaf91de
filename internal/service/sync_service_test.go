package service_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fernet/fernet-go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndewijer/brokerage-sync/internal/apperrors"
	"github.com/ndewijer/brokerage-sync/internal/brokerage"
	"github.com/ndewijer/brokerage-sync/internal/model"
	"github.com/ndewijer/brokerage-sync/internal/service"
	"github.com/ndewijer/brokerage-sync/internal/testutil"
)

// recordingPublisher captures published runs.
type recordingPublisher struct {
	mu   sync.Mutex
	runs []model.SyncRun
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, run model.SyncRun) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.runs = append(p.runs, run)
	return p.err
}

// twoAccountSource returns a source with two accounts, each holding data for
// every phase.
func twoAccountSource() *testutil.FakeSource {
	return testutil.NewFakeSource().
		WithAccounts(
			testutil.AccountRecord("acc-a", "ca_tfsa"),
			testutil.AccountRecord("acc-b", "ca_rrsp"),
		).
		WithPositions("acc-a",
			testutil.PositionRecord("XEQT", "1000", "1250"),
			testutil.PositionRecord("VFV", "500", "450"),
		).
		WithPositions("acc-b", testutil.PositionRecord("ZAG", "200", "210")).
		WithHistory("acc-a",
			testutil.SnapshotRecord("2024-01-01", "1400"),
			testutil.SnapshotRecord("2024-01-02", "1410"),
		).
		WithHistory("acc-b", testutil.SnapshotRecord("2024-01-01", "210")).
		WithActivities("acc-a",
			testutil.ActivityRecord("act-1", "diy_buy", "XEQT", "-1000", "2023-12-01T15:00:00Z"),
			testutil.DividendRecord("div-1", "XEQT", "3.10", "2024-01-01"),
			testutil.DividendRecord("div-2", "XEQT", "3.20", "2024-01-31"),
			testutil.DividendRecord("div-3", "XEQT", "3.30", "2024-02-28"),
		).
		WithActivities("acc-b",
			testutil.DividendRecord("div-4", "ZAG", "1.00", "2024-03-28"),
		)
}

// TestSyncService_Run tests a full reconciliation against a fake brokerage.
//
// WHY: This is the main contract of the service: every phase writes its
// entity kind, the counts on the run row match what was written, and the run
// reaches exactly one terminal state.
func TestSyncService_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("syncs every phase for every account", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		publisher := &recordingPublisher{}
		svc := testutil.NewTestSyncServiceWith(t, db, publisher, service.SyncOptions{FetchConcurrency: 2})
		src := twoAccountSource()

		// Execute
		run, err := svc.Run(ctx, src)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, model.SyncSuccess, run.Status)
		assert.Equal(t, model.SyncCounts{Accounts: 2, Positions: 3, Snapshots: 3, Activities: 5, Dividends: 4}, run.Counts)
		assert.NotNil(t, run.CompletedAt)
		assert.Nil(t, run.Error)

		testutil.AssertRowCount(t, db, "accounts", 2)
		testutil.AssertRowCount(t, db, "positions", 3)
		testutil.AssertRowCount(t, db, "account_snapshots", 3)
		testutil.AssertRowCount(t, db, "activities", 5)
		testutil.AssertRowCount(t, db, "dividends", 4)
		testutil.AssertRowCount(t, db, "sync_runs", 1)

		stored, err := svc.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, model.SyncSuccess, stored.Status)
		assert.Equal(t, run.Counts, stored.Counts)

		require.Len(t, publisher.runs, 1)
		assert.Equal(t, run.ID, publisher.runs[0].ID)
		assert.Equal(t, brokerage.DefaultHistoryRange, src.Ranges["acc-a"])
	})

	t.Run("normalizes account types and position gains", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestSyncService(t, db)

		_, err := svc.Run(ctx, twoAccountSource())
		require.NoError(t, err)

		store := testutil.NewTestStore(t, db)
		account, err := store.Accounts.Get(ctx, "acc-a")
		require.NoError(t, err)
		assert.Equal(t, model.AccountTypeTFSA, account.Type)
		assert.True(t, account.NetLiquidation.Equal(decimal.NewFromInt(1000)))

		positions, err := store.Positions.ListByAccount(ctx, "acc-a")
		require.NoError(t, err)
		require.Len(t, positions, 2)
		for _, p := range positions {
			if p.Symbol == "XEQT" {
				assert.True(t, p.GainLoss.Equal(decimal.NewFromInt(250)))
				assert.True(t, p.GainLossPct.Equal(decimal.NewFromInt(25)))
			}
		}
	})

	t.Run("infers dividend frequencies after activities", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestSyncService(t, db)

		_, err := svc.Run(ctx, twoAccountSource())
		require.NoError(t, err)

		dividends, err := testutil.NewTestStore(t, db).Dividends.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, dividends, 4)
		for _, d := range dividends {
			switch d.Symbol {
			case "XEQT":
				require.NotNil(t, d.Frequency, "XEQT paid three times about a month apart")
				assert.Equal(t, model.FrequencyMonthly, *d.Frequency)
				assert.True(t, d.Amount.IsPositive())
			case "ZAG":
				assert.Nil(t, d.Frequency, "a single payment has no frequency")
			}
		}
	})

	t.Run("running twice is idempotent", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestSyncService(t, db)
		src := twoAccountSource()

		first, err := svc.Run(ctx, src)
		require.NoError(t, err)
		positionsBefore, err := testutil.NewTestStore(t, db).Positions.ListByAccount(ctx, "acc-a")
		require.NoError(t, err)

		// Execute
		second, err := svc.Run(ctx, src)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, first.Counts, second.Counts)
		testutil.AssertRowCount(t, db, "positions", 3)
		testutil.AssertRowCount(t, db, "account_snapshots", 3)
		testutil.AssertRowCount(t, db, "activities", 5)
		testutil.AssertRowCount(t, db, "dividends", 4)
		testutil.AssertRowCount(t, db, "sync_runs", 2)

		positionsAfter, err := testutil.NewTestStore(t, db).Positions.ListByAccount(ctx, "acc-a")
		require.NoError(t, err)
		require.Len(t, positionsAfter, len(positionsBefore))
		for i := range positionsBefore {
			assert.Equal(t, positionsBefore[i].ID, positionsAfter[i].ID)
		}
	})

	t.Run("records without identifying keys are skipped", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestSyncService(t, db)
		src := testutil.NewFakeSource().
			WithAccounts(
				testutil.AccountRecord("acc-a", "ca_tfsa"),
				brokerage.RawRecord{"nickname": "no id"},
			).
			WithHistory("acc-a",
				testutil.SnapshotRecord("2024-01-01", "10"),
				brokerage.RawRecord{"value": "11"},
			).
			WithActivities("acc-a",
				brokerage.RawRecord{"type": "deposit", "amount": "50"},
			)

		run, err := svc.Run(ctx, src)

		require.NoError(t, err)
		assert.Equal(t, model.SyncSuccess, run.Status)
		assert.Equal(t, 1, run.Counts.Accounts)
		assert.Equal(t, 1, run.Counts.Snapshots)
		assert.Equal(t, 0, run.Counts.Activities)
	})

	t.Run("publish failure does not fail the run", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		publisher := &recordingPublisher{err: errors.New("redis down")}
		svc := testutil.NewTestSyncServiceWith(t, db, publisher, service.SyncOptions{})

		run, err := svc.Run(ctx, twoAccountSource())

		require.NoError(t, err)
		assert.Equal(t, model.SyncSuccess, run.Status)
		assert.Len(t, publisher.runs, 1)
	})
}

// TestSyncService_Run_PartialFailure tests per-account isolation.
//
// WHY: One misbehaving account must not block the others. A failed fetch or
// write rolls back that account's unit for that phase only, and the run
// still ends in success.
func TestSyncService_Run_PartialFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("positions fetch failure for one account", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestSyncService(t, db)
		src := twoAccountSource().WithPositionsError("acc-a", errors.New("timeout"))

		// Execute
		run, err := svc.Run(ctx, src)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, model.SyncSuccess, run.Status)
		assert.Equal(t, 1, run.Counts.Positions)

		store := testutil.NewTestStore(t, db)
		a, err := store.Positions.ListByAccount(ctx, "acc-a")
		require.NoError(t, err)
		assert.Empty(t, a)
		b, err := store.Positions.ListByAccount(ctx, "acc-b")
		require.NoError(t, err)
		assert.Len(t, b, 1)

		// Later phases still ran for the failed account.
		assert.Equal(t, 3, run.Counts.Snapshots)
	})

	t.Run("panic in one account is contained", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestSyncService(t, db)
		src := twoAccountSource().WithPanic("ListActivities", "acc-b")

		run, err := svc.Run(ctx, src)

		require.NoError(t, err)
		assert.Equal(t, model.SyncSuccess, run.Status)
		assert.Equal(t, 4, run.Counts.Activities)
		assert.Equal(t, 3, run.Counts.Dividends)
	})

	t.Run("write failure rolls back only that account", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestSyncService(t, db)

		// acc-a writes XEQT before VFV is rejected, so the unit has
		// something to roll back.
		_, err := db.Exec(`
			CREATE TRIGGER reject_vfv BEFORE INSERT ON positions
			WHEN NEW.symbol = 'VFV'
			BEGIN SELECT RAISE(ABORT, 'rejected'); END
		`)
		require.NoError(t, err)

		// Execute
		run, err := svc.Run(ctx, twoAccountSource())

		// Assert
		require.NoError(t, err)
		assert.Equal(t, model.SyncSuccess, run.Status)
		assert.Equal(t, 1, run.Counts.Positions)

		store := testutil.NewTestStore(t, db)
		a, err := store.Positions.ListByAccount(ctx, "acc-a")
		require.NoError(t, err)
		assert.Empty(t, a, "XEQT must be rolled back with the failed unit")
		b, err := store.Positions.ListByAccount(ctx, "acc-b")
		require.NoError(t, err)
		assert.Len(t, b, 1)
	})
}

// TestSyncService_Run_AccountsFailure tests escalation from the accounts phase.
//
// WHY: Without the account list there is nothing to reconcile. The run must
// end in error with the message recorded, and nothing may be written.
func TestSyncService_Run_AccountsFailure(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	publisher := &recordingPublisher{}
	svc := testutil.NewTestSyncServiceWith(t, db, publisher, service.SyncOptions{})
	src := twoAccountSource().WithAccountsError(errors.New("502 from brokerage"))

	run, err := svc.Run(ctx, src)

	require.Error(t, err)
	assert.Equal(t, model.SyncError, run.Status)
	require.NotNil(t, run.Error)
	assert.Contains(t, *run.Error, "502 from brokerage")
	assert.Equal(t, 0, run.Counts.Accounts)
	testutil.AssertRowCount(t, db, "accounts", 0)
	assert.Equal(t, 0, src.CallCount("ListPositions"))

	latest, err := svc.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, run.ID, latest.ID)
	assert.Equal(t, model.SyncError, latest.Status)
	require.Len(t, publisher.runs, 1)
	assert.Equal(t, model.SyncError, publisher.runs[0].Status)
}

// TestSyncService_Execute tests authentication before the run starts.
//
// WHY: A login failure is a startup failure. It must surface as
// ErrAuthentication and must not leave a run row behind.
func TestSyncService_Execute(t *testing.T) {
	ctx := context.Background()

	t.Run("authentication failure creates no run", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestSyncService(t, db)
		auth := testutil.NewFakeAuthenticator(nil).WithError(errors.New("connection refused"))

		_, err := svc.Execute(ctx, auth)

		assert.ErrorIs(t, err, apperrors.ErrAuthentication)
		testutil.AssertRowCount(t, db, "sync_runs", 0)
	})

	t.Run("rejected credentials keep the sentinel", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestSyncService(t, db)

		_, err := svc.Execute(ctx, testutil.NewFakeAuthenticator(nil).Rejected())

		assert.ErrorIs(t, err, apperrors.ErrAuthentication)
		testutil.AssertRowCount(t, db, "sync_runs", 0)
	})

	t.Run("revoked cached session falls back to login before the run", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestSyncService(t, db)

		var logins atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/auth/login" {
				logins.Add(1)
			}
			w.WriteHeader(http.StatusUnauthorized)
		}))
		t.Cleanup(srv.Close)

		var key fernet.Key
		require.NoError(t, key.Generate())
		cache, err := brokerage.NewTokenCache(filepath.Join(t.TempDir(), "session.tok"), key.Encode())
		require.NoError(t, err)
		require.NoError(t, cache.Save(brokerage.Session{AccessToken: "revoked", ExpiresAt: time.Now().Add(time.Hour)}))

		auth := &brokerage.SessionAuthenticator{
			Client: brokerage.NewClient(brokerage.ClientConfig{
				BaseURL:       srv.URL,
				Timeout:       2 * time.Second,
				RatePerSecond: 1000,
				MaxAttempts:   1,
			}, zerolog.Nop()),
			Cache:       cache,
			Credentials: brokerage.Credentials{Email: "a@b.c", Password: "secret"},
			Log:         zerolog.Nop(),
		}

		_, err = svc.Execute(ctx, auth)

		assert.ErrorIs(t, err, apperrors.ErrAuthentication)
		assert.Equal(t, int32(1), logins.Load())
		testutil.AssertRowCount(t, db, "sync_runs", 0)
		_, ok := cache.Load()
		assert.False(t, ok)
	})

	t.Run("authenticated run", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestSyncService(t, db)
		auth := testutil.NewFakeAuthenticator(twoAccountSource())

		run, err := svc.Execute(ctx, auth)

		require.NoError(t, err)
		assert.Equal(t, model.SyncSuccess, run.Status)
		assert.Equal(t, 1, auth.Calls())
	})
}

// TestSyncService_RunHistory tests the run log queries.
func TestSyncService_RunHistory(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	svc := testutil.NewTestSyncService(t, db)

	_, err := svc.LatestRun(ctx)
	assert.ErrorIs(t, err, apperrors.ErrSyncRunNotFound)

	testutil.NewSyncRun().Failed("login failed").Build(t, db)
	_, err = svc.Run(ctx, twoAccountSource())
	require.NoError(t, err)

	runs, err := svc.RunHistory(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	_, err = svc.RunHistory(ctx, -1)
	assert.ErrorIs(t, err, apperrors.ErrInvalidLimit)

	_, err = svc.GetRun(ctx, "does-not-exist")
	assert.ErrorIs(t, err, apperrors.ErrSyncRunNotFound)
}

package notify_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndewijer/brokerage-sync/internal/model"
	"github.com/ndewijer/brokerage-sync/internal/notify"
)

func TestNewRunEvent(t *testing.T) {
	completed := time.Date(2024, 3, 1, 6, 5, 0, 0, time.UTC)
	msg := "listing failed"
	run := model.SyncRun{
		ID:          "run-1",
		StartedAt:   time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC),
		Status:      model.SyncError,
		Counts:      model.SyncCounts{Accounts: 2},
		Error:       &msg,
		CompletedAt: &completed,
	}

	data, err := json.Marshal(notify.NewRunEvent(run))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "run-1", got["runId"])
	assert.Equal(t, "error", got["status"])
	assert.Equal(t, "listing failed", got["error"])
	assert.Equal(t, float64(2), got["counts"].(map[string]any)["accounts"])
}

func TestNop(t *testing.T) {
	var p notify.Publisher = notify.Nop{}
	assert.NoError(t, p.Publish(context.Background(), model.SyncRun{}))
}

func TestNewRedisPublisher_BadURL(t *testing.T) {
	_, err := notify.NewRedisPublisher("http://not-redis", "")
	assert.Error(t, err)
}

// TestRedisPublisher_Unreachable verifies a dead server surfaces as an error.
//
// WHY: the sync service only logs publish failures; the publisher itself must
// still report them.
func TestRedisPublisher_Unreachable(t *testing.T) {
	p, err := notify.NewRedisPublisher("redis://127.0.0.1:1/0", "")
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	assert.Error(t, p.Publish(ctx, model.SyncRun{ID: "run-1", Status: model.SyncSuccess}))
}

package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agent-of-empires/aoe/internal/status"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordAndRecent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	ev := &status.MatchEvidence{Rule: status.RulePermission, Pattern: "Do you want", Line: "Do you want to proceed?"}
	require.NoError(t, store.Record(ctx, "aoe_demo", status.ToolClaudeCode, status.StatusRunning, status.StatusWaitingPermission, ev))
	require.NoError(t, store.Record(ctx, "aoe_demo", status.ToolClaudeCode, status.StatusWaitingPermission, status.StatusRunning, nil))

	got, err := store.Recent(ctx, "aoe_demo", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Newest first.
	assert.Equal(t, status.StatusRunning, got[0].To)
	assert.Nil(t, got[0].Evidence)

	assert.Equal(t, status.StatusWaitingPermission, got[1].To)
	require.NotNil(t, got[1].Evidence)
	assert.Equal(t, status.RulePermission, got[1].Evidence.Rule)
	assert.Equal(t, "Do you want", got[1].Evidence.Pattern)
}

func TestRecent_AllSessions(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, "aoe_a", status.ToolOpenCode, status.StatusIdle, status.StatusRunning, nil))
	require.NoError(t, store.Record(ctx, "aoe_b", status.ToolGeminiCli, status.StatusIdle, status.StatusError, nil))

	all, err := store.Recent(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyA, err := store.Recent(ctx, "aoe_a", 10)
	require.NoError(t, err)
	require.Len(t, onlyA, 1)
	assert.Equal(t, "aoe_a", onlyA[0].Session)
}

func TestRecent_Limit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for range 5 {
		require.NoError(t, store.Record(ctx, "aoe_demo", status.ToolCodexCli, status.StatusIdle, status.StatusRunning, nil))
	}

	got, err := store.Recent(ctx, "aoe_demo", 3)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestRecent_Empty(t *testing.T) {
	store := openTestStore(t)
	got, err := store.Recent(context.Background(), "aoe_nothing", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPrune(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, "aoe_demo", status.ToolClaudeCode, status.StatusIdle, status.StatusRunning, nil))

	// Nothing is older than an hour yet.
	n, err := store.Prune(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	// A negative cutoff puts the threshold in the future, sweeping everything.
	n, err = store.Prune(ctx, -time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := store.Recent(ctx, "aoe_demo", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

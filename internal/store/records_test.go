package store

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"grading-assistant-core/internal/model"
	"grading-assistant-core/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecords(t *testing.T) (*Records, *MemoryKV) {
	t.Helper()
	kv := NewMemoryKV(0)
	return NewRecords(kv, DefaultKeys()), kv
}

func TestMemoryKV_ZeroValue(t *testing.T) {
	ctx := context.Background()
	var kv MemoryKV

	_, ok, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Set(ctx, "k", []byte("v")))
	got, ok, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	recs := NewRecords(&kv, DefaultKeys())
	_, err = recs.Append(ctx, model.GradingRecord{QuestionKey: "Q1", StudentName: "Ana"})
	require.NoError(t, err)
}

func TestRecords_EmptyStoreReturnsEmptySlice(t *testing.T) {
	recs, _ := newTestRecords(t)

	all, err := recs.GetAll(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)
}

func TestRecords_SaveAllReplacesCollection(t *testing.T) {
	ctx := context.Background()
	recs, _ := newTestRecords(t)

	require.NoError(t, recs.SaveAll(ctx, []model.GradingRecord{{ID: "a"}, {ID: "b"}}))
	require.NoError(t, recs.SaveAll(ctx, []model.GradingRecord{{ID: "c"}}))

	all, err := recs.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "c", all[0].ID)
}

func TestRecords_AppendAssignsIDAndTimestamp(t *testing.T) {
	ctx := context.Background()
	recs, _ := newTestRecords(t)

	added, err := recs.Append(ctx, model.GradingRecord{StudentName: "Ana", Score: 7})
	require.NoError(t, err)
	require.Len(t, added, 1)
	assert.NotEmpty(t, added[0].ID)
	assert.NotZero(t, added[0].Timestamp)

	all, err := recs.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, added, all)
}

func TestRecords_HideIsSoftDelete(t *testing.T) {
	ctx := context.Background()
	recs, _ := newTestRecords(t)
	require.NoError(t, recs.SaveAll(ctx, []model.GradingRecord{{ID: "a"}, {ID: "b"}}))

	n, err := recs.Hide(ctx, "a", "missing")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	all, err := recs.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.True(t, all[0].IsHidden)
	assert.False(t, all[1].IsHidden)
	assert.Len(t, Visible(all), 1)
}

func TestRecords_DeleteByQuestionRemovesOutright(t *testing.T) {
	ctx := context.Background()
	recs, _ := newTestRecords(t)
	require.NoError(t, recs.SaveAll(ctx, []model.GradingRecord{
		{ID: "a", QuestionKey: "Q1"},
		{ID: "b", QuestionKey: "Q2"},
		{ID: "c", QuestionNo: "3"},
		{ID: "d", QuestionKey: "Q1", IsHidden: true},
	}))

	n, err := recs.DeleteByQuestion(ctx, model.QuestionFilter{QuestionKey: "Q1"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = recs.DeleteByQuestion(ctx, model.QuestionFilter{})
	require.NoError(t, err)
	assert.Zero(t, n)

	all, err := recs.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "b", all[0].ID)
	assert.Equal(t, "c", all[1].ID)
}

func TestRecords_StorageFullLeavesPriorState(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV(0)
	recs := NewRecords(kv, DefaultKeys())
	require.NoError(t, recs.SaveAll(ctx, []model.GradingRecord{
		{ID: "a", IsHidden: true, Comment: strings.Repeat("x", 200), Timestamp: 1},
		{ID: "b", Timestamp: 2},
	}))

	before, _, err := kv.Get(ctx, DefaultKeys().Records)
	require.NoError(t, err)
	kv.QuotaBytes = int64(len(before))

	_, err = recs.Append(ctx, model.GradingRecord{ID: "c", Comment: "does not fit", Timestamp: 3})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrStorageFull)

	all, err := recs.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// remediation: drop hidden records, then the write fits
	pruned, err := recs.PruneHidden(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	_, err = recs.Append(ctx, model.GradingRecord{ID: "c", Timestamp: 3})
	require.NoError(t, err)
}

func TestRecords_LastSyncTimeOnlyMovesForward(t *testing.T) {
	ctx := context.Background()
	recs, _ := newTestRecords(t)

	ts, err := recs.LastSyncTime(ctx)
	require.NoError(t, err)
	assert.Zero(t, ts)

	require.NoError(t, recs.SetLastSyncTime(ctx, 2000))
	require.NoError(t, recs.SetLastSyncTime(ctx, 1000))

	ts, err = recs.LastSyncTime(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), ts)
}

func TestRecords_PendingPushRoundTrip(t *testing.T) {
	ctx := context.Background()
	recs, _ := newTestRecords(t)

	p, err := recs.PendingPush(ctx)
	require.NoError(t, err)
	assert.Nil(t, p)

	require.NoError(t, recs.SetPendingPush(ctx, PendingPush{Key: "k1", Fingerprint: "f"}))
	p, err = recs.PendingPush(ctx)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "k1", p.Key)

	require.NoError(t, recs.ClearPendingPush(ctx))
	p, err = recs.PendingPush(ctx)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestMigrateLegacy_CopiesOnceAndKeepsLegacy(t *testing.T) {
	ctx := context.Background()
	recs, kv := newTestRecords(t)
	keys := DefaultKeys()

	legacy := `[{"id":"old-1","questionNo":3,"studentName":"Ana","score":4,"maxScore":5,"timestamp":1000},
	            {"questionKey":"Q9","studentName":"Bo","score":2,"maxScore":5,"timestamp":2000}]`
	require.NoError(t, kv.Set(ctx, keys.Legacy, []byte(legacy)))

	n, err := recs.MigrateLegacy(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = recs.MigrateLegacy(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	all, err := recs.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "old-1", all[0].ID)
	assert.Equal(t, "3", all[0].QuestionNo)
	assert.NotEmpty(t, all[1].ID)
	assert.Equal(t, "Q9", all[1].QuestionKey)

	raw, ok, err := kv.Get(ctx, keys.Legacy)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, legacy, string(raw))
}

func TestMigrateLegacy_NoopWhenCanonicalNonEmpty(t *testing.T) {
	ctx := context.Background()
	recs, kv := newTestRecords(t)
	keys := DefaultKeys()

	require.NoError(t, recs.SaveAll(ctx, []model.GradingRecord{{ID: "current"}}))
	legacy, err := json.Marshal([]model.GradingRecord{{ID: "old"}})
	require.NoError(t, err)
	require.NoError(t, kv.Set(ctx, keys.Legacy, legacy))

	n, err := recs.MigrateLegacy(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	all, err := recs.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "current", all[0].ID)
}

func TestMigrateLegacy_EmptyLegacy(t *testing.T) {
	recs, _ := newTestRecords(t)

	n, err := recs.MigrateLegacy(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

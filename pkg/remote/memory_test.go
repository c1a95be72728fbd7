package remote

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/verdant/pkg/types"
)

func testGoal(id string) *types.Goal {
	return &types.Goal{
		ID: id, Title: "Goal " + id, Level: types.GoalLevelFocus, Status: types.GoalStatusNotStarted,
		Priority: types.PriorityMedium, Month: 2, Year: 2025, CreatedAt: "2025-03-01",
	}
}

func TestMemoryBackend(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryBackend()

	data, err := m.LoadAll(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, m.SaveGoal(ctx, "u1", testGoal("g1")))
	require.NoError(t, m.SaveGoal(ctx, "u1", testGoal("g2")))
	updated := testGoal("g1")
	updated.Progress = 50
	require.NoError(t, m.SaveGoal(ctx, "u1", updated))
	require.NoError(t, m.DeleteGoal(ctx, "u1", "g2"))

	require.NoError(t, m.SaveBrainDump(ctx, "u1", &types.BrainDumpEntry{ID: "b1", Text: "idea", CreatedAt: "2025-03-01"}))
	require.NoError(t, m.SavePreferences(ctx, "u1", types.PreferencesBundle{
		Preferences: &types.Preferences{FocusMode: true},
		Streak:      &types.Streak{Count: 2},
	}))

	data, err = m.LoadAll(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, data)
	require.Len(t, data.Goals, 1)
	assert.Equal(t, 50, data.Goals[0].Progress)
	assert.Len(t, data.BrainDump, 1)
	assert.True(t, data.Preferences.FocusMode)
	assert.Equal(t, 2, data.Streak.Count)

	require.NoError(t, m.DeleteBrainDump(ctx, "u1", "b1"))
	assert.Empty(t, m.Get("u1").BrainDump)
	assert.Equal(t, 3, m.Calls("save_goal"))
}

func TestMemoryBackendIsolatesCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryBackend()

	in := &types.AppData{Goals: []types.Goal{*testGoal("g1")}, CreatedAt: "2025-01-01", Version: 3}
	require.NoError(t, m.SaveAll(ctx, "u1", in))
	in.Goals[0].Title = "mutated"

	out, err := m.LoadAll(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Goal g1", out.Goals[0].Title)

	out.Goals[0].Title = "mutated again"
	assert.Equal(t, "Goal g1", m.Get("u1").Goals[0].Title)
}

func TestMemoryBackendFail(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryBackend()
	boom := errors.New("503")

	m.Fail(boom)
	assert.ErrorIs(t, m.SaveGoal(ctx, "u1", testGoal("g1")), boom)
	assert.ErrorIs(t, m.Ping(ctx), boom)
	_, err := m.LoadAll(ctx, "u1")
	assert.ErrorIs(t, err, boom)

	m.Fail(nil)
	assert.NoError(t, m.Ping(ctx))
	assert.Equal(t, 4, m.TotalCalls())
}

func TestInstrumentDelegates(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryBackend()
	b := Instrument(m)

	require.NoError(t, b.SaveGoal(ctx, "u1", testGoal("g1")))
	require.NoError(t, b.Ping(ctx))
	data, err := b.LoadAll(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, data.Goals, 1)
	assert.Equal(t, 1, m.Calls("load_all"))
}

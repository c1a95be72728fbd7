package datastore

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/verdant/pkg/types"
)

func marshal(t *testing.T, v any) string {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return string(raw)
}

func TestEnsureShapeRepairsOnlyMissingSubtree(t *testing.T) {
	d := CreateDefaultData(testNow)
	d.Preferences.FocusMode = true
	d.Preferences.Layout.ShowHeader = types.Bool(false)
	d.Preferences.Sidebar.Width = 320
	d.Preferences.ND = nil

	layoutBefore := marshal(t, d.Preferences.Layout)
	sidebarBefore := marshal(t, d.Preferences.Sidebar)
	streakBefore := marshal(t, d.Streak)

	assert.True(t, EnsureShape(d, testNow))

	require.NotNil(t, d.Preferences.ND)
	assert.Equal(t, defaultND(), d.Preferences.ND)
	assert.Equal(t, layoutBefore, marshal(t, d.Preferences.Layout))
	assert.Equal(t, sidebarBefore, marshal(t, d.Preferences.Sidebar))
	assert.Equal(t, streakBefore, marshal(t, d.Streak))
	assert.True(t, d.Preferences.FocusMode)

	assert.False(t, EnsureShape(d, testNow), "second pass is a no-op")
}

func TestEnsureShapeNormalisesLegacyStatus(t *testing.T) {
	d := CreateDefaultData(testNow)
	d.Goals = []types.Goal{
		{ID: "g1", Status: types.GoalStatusLegacyCompleted},
		{ID: "g2", Status: types.GoalStatusInProgress},
	}

	assert.True(t, EnsureShape(d, testNow))
	assert.Equal(t, types.GoalStatusDone, d.Goals[0].Status)
	assert.Equal(t, types.GoalStatusInProgress, d.Goals[1].Status)
	assert.False(t, EnsureShape(d, testNow))
}

func TestEnsureShapeMergesPartialGroups(t *testing.T) {
	d := &types.AppData{
		Preferences: &types.Preferences{
			Theme:   types.ThemeDark,
			Layout:  &types.LayoutPreferences{ShowSidebar: types.Bool(false)},
			Sidebar: &types.SidebarPreferences{Collapsed: true},
			ND:      &types.NDPreferences{ReducedMotion: true, BreakReminderMinutes: 0},
		},
	}

	assert.True(t, EnsureShape(d, testNow))

	p := d.Preferences
	assert.Equal(t, types.ThemeDark, p.Theme)
	assert.Equal(t, types.ViewMonth, p.DefaultView)
	assert.False(t, *p.Layout.ShowSidebar)
	assert.True(t, *p.Layout.ShowHeader)
	assert.Equal(t, "comfortable", p.Layout.TimelineDensity)
	assert.True(t, p.Sidebar.Collapsed)
	assert.Equal(t, 280, p.Sidebar.Width)
	assert.True(t, p.ND.ReducedMotion)
	assert.Equal(t, 0, p.ND.BreakReminderMinutes, "zero is a real setting")
	assert.Equal(t, types.AccentSage, p.ND.AccentTheme)

	assert.NotNil(t, d.Goals)
	assert.NotNil(t, d.Streak)
	assert.NotNil(t, d.Analytics)
	assert.Equal(t, "2025-03-14T09:30:00Z", d.CreatedAt)
	assert.Equal(t, 1, d.Version)
}

func TestStoreEnsureDataShape(t *testing.T) {
	s := newTestStore()
	assert.False(t, s.EnsureDataShape(), "nothing loaded")

	d := CreateDefaultData(testNow)
	d.Analytics = nil
	s.SetData(d)

	notified := 0
	s.Subscribe(func(*types.AppData) { notified++ })

	assert.True(t, s.EnsureDataShape())
	assert.NotNil(t, s.Data().Analytics)
	assert.Equal(t, 1, notified)

	assert.False(t, s.EnsureDataShape())
	assert.Equal(t, 1, notified)
}

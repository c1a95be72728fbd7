package datastore

import (
	"time"

	"github.com/cuemby/verdant/pkg/types"
)

// CreateDefaultData returns a complete snapshot with default preferences
func CreateDefaultData(now time.Time) *types.AppData {
	return &types.AppData{
		Goals:             []types.Goal{},
		Events:            []types.CalendarEvent{},
		Streak:            defaultStreak(),
		Achievements:      []string{},
		WeeklyReviews:     []types.WeeklyReview{},
		BrainDump:         []types.BrainDumpEntry{},
		BodyDoubleHistory: []types.BodyDoubleSession{},
		Preferences:       DefaultPreferences(),
		Analytics:         defaultAnalytics(),
		CreatedAt:         types.FormatTimestamp(now),
		Version:           types.CurrentVersion,
	}
}

// DefaultPreferences returns the preferences of a new user
func DefaultPreferences() *types.Preferences {
	return &types.Preferences{
		FocusMode:   false,
		Theme:       types.ThemeSystem,
		DefaultView: types.ViewMonth,
		Layout:      defaultLayout(),
		Sidebar:     defaultSidebar(),
		ND:          defaultND(),
	}
}

func defaultLayout() *types.LayoutPreferences {
	return &types.LayoutPreferences{
		ShowHeader:      types.Bool(true),
		ShowControlBar:  types.Bool(true),
		ShowSidebar:     types.Bool(true),
		ShowNowPanel:    types.Bool(true),
		TimelineDensity: "comfortable",
	}
}

func defaultSidebar() *types.SidebarPreferences {
	return &types.SidebarPreferences{
		Collapsed:        false,
		Width:            280,
		ShowAchievements: types.Bool(true),
		ShowBrainDump:    types.Bool(true),
	}
}

func defaultND() *types.NDPreferences {
	return &types.NDPreferences{
		ReducedMotion:         false,
		AccentTheme:           types.AccentSage,
		MaxVisibleTasks:       5,
		BreakReminderMinutes:  25,
		SimplifiedView:        false,
		DyslexiaFont:          false,
		ShowInitiationPrompts: types.Bool(true),
	}
}

func defaultStreak() *types.Streak {
	return &types.Streak{}
}

func defaultAnalytics() *types.Analytics {
	return &types.Analytics{}
}

// EnsureShape fills every missing subtree of d from the defaults. Present
// values win; absent ones inherit the default. Legacy goal statuses are
// normalised. It reports whether d changed.
func EnsureShape(d *types.AppData, now time.Time) bool {
	changed := NormalizeGoalStatuses(d)

	if d.Goals == nil {
		d.Goals, changed = []types.Goal{}, true
	}
	if d.Events == nil {
		d.Events, changed = []types.CalendarEvent{}, true
	}
	if d.Achievements == nil {
		d.Achievements, changed = []string{}, true
	}
	if d.WeeklyReviews == nil {
		d.WeeklyReviews, changed = []types.WeeklyReview{}, true
	}
	if d.BrainDump == nil {
		d.BrainDump, changed = []types.BrainDumpEntry{}, true
	}
	if d.BodyDoubleHistory == nil {
		d.BodyDoubleHistory, changed = []types.BodyDoubleSession{}, true
	}

	if d.Streak == nil {
		d.Streak, changed = defaultStreak(), true
	}
	if d.Analytics == nil {
		d.Analytics, changed = defaultAnalytics(), true
	}

	if d.Preferences == nil {
		d.Preferences, changed = DefaultPreferences(), true
	} else if mergePreferences(d.Preferences) {
		changed = true
	}

	if d.CreatedAt == "" {
		d.CreatedAt, changed = types.FormatTimestamp(now), true
	}
	if d.Version < 1 {
		d.Version, changed = 1, true
	}
	return changed
}

func mergePreferences(p *types.Preferences) bool {
	def := DefaultPreferences()
	changed := false

	if p.Theme == "" {
		p.Theme, changed = def.Theme, true
	}
	if p.DefaultView == "" {
		p.DefaultView, changed = def.DefaultView, true
	}

	if p.Layout == nil {
		p.Layout, changed = def.Layout, true
	} else if mergeLayout(p.Layout, def.Layout) {
		changed = true
	}

	if p.Sidebar == nil {
		p.Sidebar, changed = def.Sidebar, true
	} else if mergeSidebar(p.Sidebar, def.Sidebar) {
		changed = true
	}

	if p.ND == nil {
		p.ND, changed = def.ND, true
	} else if mergeND(p.ND, def.ND) {
		changed = true
	}
	return changed
}

func mergeBool(dst **bool, def *bool) bool {
	if *dst != nil {
		return false
	}
	*dst = types.Bool(*def)
	return true
}

func mergeLayout(l, def *types.LayoutPreferences) bool {
	changed := mergeBool(&l.ShowHeader, def.ShowHeader)
	changed = mergeBool(&l.ShowControlBar, def.ShowControlBar) || changed
	changed = mergeBool(&l.ShowSidebar, def.ShowSidebar) || changed
	changed = mergeBool(&l.ShowNowPanel, def.ShowNowPanel) || changed
	if l.TimelineDensity == "" {
		l.TimelineDensity, changed = def.TimelineDensity, true
	}
	return changed
}

func mergeSidebar(s, def *types.SidebarPreferences) bool {
	changed := false
	if s.Width == 0 {
		s.Width, changed = def.Width, true
	}
	changed = mergeBool(&s.ShowAchievements, def.ShowAchievements) || changed
	changed = mergeBool(&s.ShowBrainDump, def.ShowBrainDump) || changed
	return changed
}

func mergeND(n, def *types.NDPreferences) bool {
	changed := false
	if n.AccentTheme == "" {
		n.AccentTheme, changed = def.AccentTheme, true
	}
	if n.MaxVisibleTasks == 0 {
		n.MaxVisibleTasks, changed = def.MaxVisibleTasks, true
	}
	changed = mergeBool(&n.ShowInitiationPrompts, def.ShowInitiationPrompts) || changed
	return changed
}

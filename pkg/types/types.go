package types

import (
	"encoding/json"
	"time"
)

const (
	// CurrentVersion is the AppData schema version written by this build
	CurrentVersion = 3

	// StorageKey is the fixed key the local snapshot is stored under
	StorageKey = "verdant-data"
)

// AppData is the authoritative application snapshot
type AppData struct {
	Goals             []Goal              `json:"goals" validate:"omitempty,max=5000,dive"`
	Events            []CalendarEvent     `json:"events" validate:"omitempty,max=5000,dive"`
	Streak            *Streak             `json:"streak" validate:"omitempty"`
	Achievements      []string            `json:"achievements" validate:"omitempty,max=500,dive,required,max=64"`
	WeeklyReviews     []WeeklyReview      `json:"weeklyReviews" validate:"omitempty,max=1000,dive"`
	BrainDump         []BrainDumpEntry    `json:"brainDump" validate:"omitempty,max=5000,dive"`
	BodyDoubleHistory []BodyDoubleSession `json:"bodyDoubleHistory" validate:"omitempty,max=5000,dive"`
	Preferences       *Preferences        `json:"preferences" validate:"omitempty"`
	Analytics         *Analytics          `json:"analytics" validate:"omitempty"`
	CreatedAt         string              `json:"createdAt" validate:"required,isodate"`
	Version           int                 `json:"version" validate:"min=1"`
}

// GoalLevel is the planning horizon a goal belongs to
type GoalLevel string

const (
	GoalLevelVision    GoalLevel = "vision"
	GoalLevelMilestone GoalLevel = "milestone"
	GoalLevelFocus     GoalLevel = "focus"
	GoalLevelIntention GoalLevel = "intention"
)

// GoalStatus represents where a goal is in its lifecycle
type GoalStatus string

const (
	GoalStatusNotStarted GoalStatus = "not-started"
	GoalStatusInProgress GoalStatus = "in-progress"
	GoalStatusDone       GoalStatus = "done"
	GoalStatusBlocked    GoalStatus = "blocked"

	// GoalStatusLegacyCompleted is accepted on read and rewritten to
	// GoalStatusDone by the v3 migration
	GoalStatusLegacyCompleted GoalStatus = "completed"
)

// GoalStatuses lists the statuses a current snapshot may contain
var GoalStatuses = []GoalStatus{
	GoalStatusNotStarted,
	GoalStatusInProgress,
	GoalStatusDone,
	GoalStatusBlocked,
}

// Priority of a goal
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Goal is a single tracked goal or task
type Goal struct {
	ID                  string     `json:"id" validate:"required,max=64"`
	Title               string     `json:"title" validate:"required,max=200"`
	Description         string     `json:"description,omitempty" validate:"max=2000"`
	Level               GoalLevel  `json:"level" validate:"required,oneof=vision milestone focus intention"`
	Status              GoalStatus `json:"status" validate:"required,goalstatus"`
	Priority            Priority   `json:"priority" validate:"required,oneof=low medium high urgent"`
	Category            string     `json:"category,omitempty" validate:"max=50"`
	Month               int        `json:"month" validate:"min=0,max=11"`
	Year                int        `json:"year" validate:"min=1900,max=2100"`
	Progress            int        `json:"progress" validate:"min=0,max=100"`
	TimeEstimateMinutes *int       `json:"timeEstimate,omitempty" validate:"omitempty,min=0,max=1440"`
	DueDate             string     `json:"dueDate,omitempty" validate:"omitempty,isodate"`
	Tags                []string   `json:"tags,omitempty" validate:"omitempty,max=20,dive,required,max=40"`
	Subtasks            []Subtask  `json:"subtasks,omitempty" validate:"omitempty,max=100,dive"`
	ParentID            string     `json:"parentId,omitempty" validate:"max=64"`
	CreatedAt           string     `json:"createdAt" validate:"required,isodate"`
	UpdatedAt           string     `json:"updatedAt,omitempty" validate:"omitempty,isodate"`
	CompletedAt         string     `json:"completedAt,omitempty" validate:"omitempty,isodate"`
}

// Subtask is a checklist item inside a goal
type Subtask struct {
	ID    string `json:"id" validate:"required,max=64"`
	Title string `json:"title" validate:"required,max=200"`
	Done  bool   `json:"done"`
}

// CalendarEvent is a time-boxed entry on the calendar
type CalendarEvent struct {
	ID              string `json:"id" validate:"required,max=64"`
	Title           string `json:"title" validate:"required,max=200"`
	Date            string `json:"date" validate:"required,isodate"`
	StartTime       string `json:"startTime,omitempty" validate:"omitempty,clocktime"`
	DurationMinutes int    `json:"duration" validate:"min=0,max=1440"`
	GoalID          string `json:"goalId,omitempty" validate:"max=64"`
	CreatedAt       string `json:"createdAt" validate:"required,isodate"`
}

// Streak tracks consecutive days with activity
type Streak struct {
	Count    int    `json:"count" validate:"min=0"`
	LastDate string `json:"lastDate,omitempty" validate:"omitempty,isodate"`
}

// WeeklyReview is a saved end-of-week reflection
type WeeklyReview struct {
	ID            string   `json:"id" validate:"required,max=64"`
	WeekStart     string   `json:"weekStart" validate:"required,isodate"`
	Wins          []string `json:"wins,omitempty" validate:"omitempty,max=20,dive,max=500"`
	Challenges    string   `json:"challenges,omitempty" validate:"max=2000"`
	NextWeekFocus string   `json:"nextWeekFocus,omitempty" validate:"max=2000"`
	Rating        int      `json:"rating" validate:"min=0,max=5"`
	CreatedAt     string   `json:"createdAt" validate:"required,isodate"`
}

// BrainDumpEntry is a quick captured thought awaiting processing
type BrainDumpEntry struct {
	ID          string `json:"id" validate:"required,max=64"`
	Text        string `json:"text" validate:"required,max=2000"`
	Processed   bool   `json:"processed"`
	CreatedAt   string `json:"createdAt" validate:"required,isodate"`
	ProcessedAt string `json:"processedAt,omitempty" validate:"omitempty,isodate"`
}

// BodyDoubleSession records a focus session run with a virtual companion
type BodyDoubleSession struct {
	ID              string `json:"id" validate:"required,max=64"`
	StartedAt       string `json:"startedAt" validate:"required,isodate"`
	DurationMinutes int    `json:"duration" validate:"min=0,max=1440"`
	Focus           string `json:"focus,omitempty" validate:"max=200"`
	Completed       bool   `json:"completed"`
}

// Theme is the colour scheme
type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

// ViewMode is a calendar zoom level
type ViewMode string

const (
	ViewYear  ViewMode = "year"
	ViewMonth ViewMode = "month"
	ViewWeek  ViewMode = "week"
	ViewDay   ViewMode = "day"
)

// AccentTheme is the accent palette used by the neurodivergent-friendly settings
type AccentTheme string

const (
	AccentSage     AccentTheme = "sage"
	AccentLavender AccentTheme = "lavender"
	AccentOcean    AccentTheme = "ocean"
	AccentSunset   AccentTheme = "sunset"
	AccentSlate    AccentTheme = "slate"
)

// Preferences holds persisted user settings. Nested groups are pointers so a
// missing group can be told apart from a zero one.
type Preferences struct {
	FocusMode   bool                `json:"focusMode"`
	Theme       Theme               `json:"theme,omitempty" validate:"omitempty,oneof=light dark system"`
	DefaultView ViewMode            `json:"defaultView,omitempty" validate:"omitempty,oneof=year month week day"`
	Layout      *LayoutPreferences  `json:"layout,omitempty" validate:"omitempty"`
	Sidebar     *SidebarPreferences `json:"sidebar,omitempty" validate:"omitempty"`
	ND          *NDPreferences      `json:"nd,omitempty" validate:"omitempty"`
}

// LayoutPreferences controls which chrome is visible
type LayoutPreferences struct {
	ShowHeader      *bool  `json:"showHeader,omitempty"`
	ShowControlBar  *bool  `json:"showControlBar,omitempty"`
	ShowSidebar     *bool  `json:"showSidebar,omitempty"`
	ShowNowPanel    *bool  `json:"showNowPanel,omitempty"`
	TimelineDensity string `json:"timelineDensity,omitempty" validate:"omitempty,oneof=compact comfortable spacious"`
}

// SidebarPreferences controls the sidebar
type SidebarPreferences struct {
	Collapsed        bool  `json:"collapsed"`
	Width            int   `json:"width,omitempty" validate:"omitempty,min=160,max=480"`
	ShowAchievements *bool `json:"showAchievements,omitempty"`
	ShowBrainDump    *bool `json:"showBrainDump,omitempty"`
}

// NDPreferences are the neurodivergent-friendly display settings
type NDPreferences struct {
	ReducedMotion         bool        `json:"reducedMotion"`
	AccentTheme           AccentTheme `json:"accentTheme,omitempty" validate:"omitempty,oneof=sage lavender ocean sunset slate"`
	MaxVisibleTasks       int         `json:"maxVisibleTasks,omitempty" validate:"omitempty,min=1,max=50"`
	BreakReminderMinutes  int         `json:"breakReminderMinutes" validate:"min=0,max=240"`
	SimplifiedView        bool        `json:"simplifiedView"`
	DyslexiaFont          bool        `json:"dyslexiaFont"`
	ShowInitiationPrompts *bool       `json:"showInitiationPrompts,omitempty"`
}

// Analytics are lifetime counters
type Analytics struct {
	GoalsCreated   int `json:"goalsCreated" validate:"min=0"`
	GoalsCompleted int `json:"goalsCompleted" validate:"min=0"`
	TotalTimeSpent int `json:"totalTimeSpent" validate:"min=0"`
	StreakBest     int `json:"streakBest" validate:"min=0"`
}

// PreferencesBundle is the slice of AppData sent on the preferences-only sync path
type PreferencesBundle struct {
	Preferences *Preferences `json:"preferences"`
	Analytics   *Analytics   `json:"analytics"`
	Streak      *Streak      `json:"streak"`
}

// Patch is a partial update of AppData. A nil field is left untouched.
type Patch struct {
	Goals             *[]Goal
	Events            *[]CalendarEvent
	Streak            *Streak
	Achievements      *[]string
	WeeklyReviews     *[]WeeklyReview
	BrainDump         *[]BrainDumpEntry
	BodyDoubleHistory *[]BodyDoubleSession
	Preferences       *Preferences
	Analytics         *Analytics
}

// TouchesPreferences reports whether the patch changes anything carried by the
// preferences-only sync path
func (p Patch) TouchesPreferences() bool {
	return p.Preferences != nil || p.Analytics != nil || p.Streak != nil
}

// TouchesEntities reports whether the patch changes any record collection
func (p Patch) TouchesEntities() bool {
	return p.Goals != nil || p.Events != nil || p.Achievements != nil ||
		p.WeeklyReviews != nil || p.BrainDump != nil || p.BodyDoubleHistory != nil
}

// IsEmpty reports whether the patch changes nothing
func (p Patch) IsEmpty() bool {
	return !p.TouchesPreferences() && !p.TouchesEntities()
}

// Backup is the export file envelope
type Backup struct {
	ExportedAt string   `json:"exportedAt"`
	StorageKey string   `json:"storageKey"`
	Data       *AppData `json:"data"`
}

// User is an authenticated remote identity
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// PreferencesBundle extracts the preferences-only sync payload
func (d *AppData) PreferencesBundle() PreferencesBundle {
	return PreferencesBundle{
		Preferences: d.Preferences,
		Analytics:   d.Analytics,
		Streak:      d.Streak,
	}
}

// FindGoal returns the index of the goal with id, or -1
func (d *AppData) FindGoal(id string) int {
	for i := range d.Goals {
		if d.Goals[i].ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy of the snapshot. The copy goes through the same JSON
// codec used for persistence, so nil and empty collections survive as they would
// on disk.
func (d *AppData) Clone() *AppData {
	if d == nil {
		return nil
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return nil
	}
	var out AppData
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return &out
}

// Bool returns a pointer to b
func Bool(b bool) *bool {
	return &b
}

// Int returns a pointer to n
func Int(n int) *int {
	return &n
}

// FormatDate renders t as an ISO-8601 date
func FormatDate(t time.Time) string {
	return t.Format(time.DateOnly)
}

// FormatTimestamp renders t as an ISO-8601 date-time in UTC
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

/*
Package types defines the data model shared by every Verdant package.

The central type is AppData, the single snapshot of a user's goals, calendar
events, reviews, brain-dump entries, focus-session history, preferences and
lifetime analytics. The snapshot is serialized as JSON everywhere it leaves
memory: the local bbolt snapshot, the backup file and the in-memory clone used
by the data store all share the json tags declared here.

# Shape

	AppData
	├── goals[]             Goal (+ subtasks[])
	├── events[]            CalendarEvent
	├── streak              {count, lastDate}
	├── achievements[]      achievement ids
	├── weeklyReviews[]     WeeklyReview
	├── brainDump[]         BrainDumpEntry
	├── bodyDoubleHistory[] BodyDoubleSession
	├── preferences         {focusMode, theme, defaultView, layout{}, sidebar{}, nd{}}
	├── analytics           {goalsCreated, goalsCompleted, totalTimeSpent, streakBest}
	├── createdAt           ISO-8601
	└── version             schema version, never decreases

Preference groups and the streak/analytics subtrees are pointers. A nil
pointer means the subtree is missing from the stored document and must be
repaired from defaults; a non-nil pointer with zero fields is a real value.
Boolean settings whose default is true are *bool for the same reason.

# Validation Rules

Struct tags carry the closed value sets and ranges enforced by package schema:

  - month in [0,11], year in [1900,2100], progress in [0,100]
  - durations in minutes in [0,1440]
  - enumerations (level, status, priority, theme, view, accent) are closed sets
  - free text has maximum lengths
  - dates are ISO-8601 date or date-time strings ("isodate")

The legacy goal status "completed" is still accepted so old snapshots load;
the v3 migration rewrites it to "done".

# Partial Updates

Patch carries one pointer per top-level field. TouchesPreferences reports
whether a patch only needs the cheap preferences-only sync path (preferences,
analytics or streak) instead of a full snapshot upload.
*/
package types

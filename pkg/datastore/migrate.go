package datastore

import (
	"github.com/cuemby/verdant/pkg/types"
)

// migration upgrades a snapshot older than version to version
type migration struct {
	version int
	apply   func(d *types.AppData)
}

var migrations = []migration{
	{
		// v2 introduced weekly reviews and lifetime analytics
		version: 2,
		apply: func(d *types.AppData) {
			if d.WeeklyReviews == nil {
				d.WeeklyReviews = []types.WeeklyReview{}
			}
			if d.Analytics == nil {
				d.Analytics = defaultAnalytics()
			}
		},
	},
	{
		// v3 retired the "completed" goal status
		version: 3,
		apply: func(d *types.AppData) {
			NormalizeGoalStatuses(d)
		},
	},
}

// NormalizeGoalStatuses rewrites the legacy "completed" status to done and
// reports whether any goal changed. Snapshots written by older clients can
// carry it under any version number.
func NormalizeGoalStatuses(d *types.AppData) bool {
	changed := false
	for i := range d.Goals {
		if d.Goals[i].Status == types.GoalStatusLegacyCompleted {
			d.Goals[i].Status, changed = types.GoalStatusDone, true
		}
	}
	return changed
}

// Migrate applies every migration newer than d.Version in order and reports
// whether any ran. The version never decreases.
func Migrate(d *types.AppData) bool {
	changed := false
	for _, m := range migrations {
		if d.Version >= m.version {
			continue
		}
		m.apply(d)
		d.Version = m.version
		changed = true
	}
	return changed
}

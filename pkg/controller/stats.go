package controller

import (
	"fmt"
	"maps"
	"slices"

	"github.com/cuemby/verdant/pkg/cache"
	"github.com/cuemby/verdant/pkg/types"
)

// Stats is the aggregated summary shown on the dashboard
type Stats struct {
	TotalGoals      int                      `json:"totalGoals"`
	ByStatus        map[types.GoalStatus]int `json:"byStatus"`
	ByLevel         map[types.GoalLevel]int  `json:"byLevel"`
	CompletionRate  float64                  `json:"completionRate"`
	AverageProgress float64                  `json:"averageProgress"`
	Streak          int                      `json:"streak"`
	BestStreak      int                      `json:"bestStreak"`
	OpenBrainDump   int                      `json:"openBrainDump"`
	FocusSessions   int                      `json:"focusSessions"`
	FocusMinutes    int                      `json:"focusMinutes"`
	Analytics       types.Analytics          `json:"analytics"`
}

// GoalsForMonth returns the goals scheduled in month (0-based) of year,
// served from the cache while fresh
func (c *Controller) GoalsForMonth(year, month int) []types.Goal {
	key := fmt.Sprintf("goals:%04d-%02d", year, month+1)
	if goals, ok := cache.GetAs[[]types.Goal](c.deps.Cache, key); ok {
		return slices.Clone(goals)
	}

	data := c.deps.Store.Data()
	goals := []types.Goal{}
	if data != nil {
		for _, g := range data.Goals {
			if g.Year == year && g.Month == month {
				goals = append(goals, g)
			}
		}
	}

	c.deps.Cache.Set(key, goals, 0)
	return slices.Clone(goals)
}

// Stats returns the dashboard summary, served from the cache while fresh.
// The returned maps belong to the caller.
func (c *Controller) Stats() Stats {
	s, ok := cache.GetAs[Stats](c.deps.Cache, statsKey)
	if !ok {
		s = computeStats(c.deps.Store.Data())
		c.deps.Cache.Set(statsKey, s, 0)
	}
	return s.clone()
}

func (s Stats) clone() Stats {
	s.ByStatus = maps.Clone(s.ByStatus)
	s.ByLevel = maps.Clone(s.ByLevel)
	return s
}

func computeStats(d *types.AppData) Stats {
	s := Stats{
		ByStatus: make(map[types.GoalStatus]int),
		ByLevel:  make(map[types.GoalLevel]int),
	}
	if d == nil {
		return s
	}

	progress := 0
	for _, g := range d.Goals {
		s.ByStatus[g.Status]++
		s.ByLevel[g.Level]++
		progress += g.Progress
	}
	s.TotalGoals = len(d.Goals)
	if s.TotalGoals > 0 {
		s.CompletionRate = float64(s.ByStatus[types.GoalStatusDone]) / float64(s.TotalGoals) * 100
		s.AverageProgress = float64(progress) / float64(s.TotalGoals)
	}

	for _, e := range d.BrainDump {
		if !e.Processed {
			s.OpenBrainDump++
		}
	}
	for _, b := range d.BodyDoubleHistory {
		s.FocusSessions++
		s.FocusMinutes += b.DurationMinutes
	}

	if d.Streak != nil {
		s.Streak = d.Streak.Count
	}
	if d.Analytics != nil {
		s.Analytics = *d.Analytics
		s.BestStreak = max(d.Analytics.StreakBest, s.Streak)
	}
	return s
}

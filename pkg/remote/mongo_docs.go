package remote

import (
	"time"

	"github.com/cuemby/verdant/pkg/types"
)

// Remote documents use snake_case field names and carry the owning user id.
// The _id of an entity document is "<user id>:<entity id>" so entity ids only
// need to be unique per user.

func docID(userID, entityID string) string {
	return userID + ":" + entityID
}

type subtaskDoc struct {
	ID    string `bson:"id"`
	Title string `bson:"title"`
	Done  bool   `bson:"done"`
}

type goalDoc struct {
	ID           string       `bson:"_id"`
	UserID       string       `bson:"user_id"`
	GoalID       string       `bson:"goal_id"`
	Title        string       `bson:"title"`
	Description  string       `bson:"description,omitempty"`
	Level        string       `bson:"level"`
	Status       string       `bson:"status"`
	Priority     string       `bson:"priority"`
	Category     string       `bson:"category,omitempty"`
	Month        int          `bson:"month"`
	Year         int          `bson:"year"`
	Progress     int          `bson:"progress"`
	TimeEstimate *int         `bson:"time_estimate,omitempty"`
	DueDate      string       `bson:"due_date,omitempty"`
	Tags         []string     `bson:"tags,omitempty"`
	Subtasks     []subtaskDoc `bson:"subtasks,omitempty"`
	ParentID     string       `bson:"parent_id,omitempty"`
	CreatedAt    string       `bson:"created_at"`
	UpdatedAt    string       `bson:"updated_at,omitempty"`
	CompletedAt  string       `bson:"completed_at,omitempty"`
}

func toGoalDoc(userID string, g *types.Goal) goalDoc {
	var subtasks []subtaskDoc
	for _, s := range g.Subtasks {
		subtasks = append(subtasks, subtaskDoc{ID: s.ID, Title: s.Title, Done: s.Done})
	}
	return goalDoc{
		ID:           docID(userID, g.ID),
		UserID:       userID,
		GoalID:       g.ID,
		Title:        g.Title,
		Description:  g.Description,
		Level:        string(g.Level),
		Status:       string(g.Status),
		Priority:     string(g.Priority),
		Category:     g.Category,
		Month:        g.Month,
		Year:         g.Year,
		Progress:     g.Progress,
		TimeEstimate: g.TimeEstimateMinutes,
		DueDate:      g.DueDate,
		Tags:         g.Tags,
		Subtasks:     subtasks,
		ParentID:     g.ParentID,
		CreatedAt:    g.CreatedAt,
		UpdatedAt:    g.UpdatedAt,
		CompletedAt:  g.CompletedAt,
	}
}

func (d goalDoc) toGoal() types.Goal {
	var subtasks []types.Subtask
	for _, s := range d.Subtasks {
		subtasks = append(subtasks, types.Subtask{ID: s.ID, Title: s.Title, Done: s.Done})
	}
	return types.Goal{
		ID:                  d.GoalID,
		Title:               d.Title,
		Description:         d.Description,
		Level:               types.GoalLevel(d.Level),
		Status:              types.GoalStatus(d.Status),
		Priority:            types.Priority(d.Priority),
		Category:            d.Category,
		Month:               d.Month,
		Year:                d.Year,
		Progress:            d.Progress,
		TimeEstimateMinutes: d.TimeEstimate,
		DueDate:             d.DueDate,
		Tags:                d.Tags,
		Subtasks:            subtasks,
		ParentID:            d.ParentID,
		CreatedAt:           d.CreatedAt,
		UpdatedAt:           d.UpdatedAt,
		CompletedAt:         d.CompletedAt,
	}
}

type eventDoc struct {
	ID        string `bson:"_id"`
	UserID    string `bson:"user_id"`
	EventID   string `bson:"event_id"`
	Title     string `bson:"title"`
	Date      string `bson:"date"`
	StartTime string `bson:"start_time,omitempty"`
	Duration  int    `bson:"duration_minutes"`
	GoalID    string `bson:"goal_id,omitempty"`
	CreatedAt string `bson:"created_at"`
}

func toEventDoc(userID string, e *types.CalendarEvent) eventDoc {
	return eventDoc{
		ID:        docID(userID, e.ID),
		UserID:    userID,
		EventID:   e.ID,
		Title:     e.Title,
		Date:      e.Date,
		StartTime: e.StartTime,
		Duration:  e.DurationMinutes,
		GoalID:    e.GoalID,
		CreatedAt: e.CreatedAt,
	}
}

func (d eventDoc) toEvent() types.CalendarEvent {
	return types.CalendarEvent{
		ID:              d.EventID,
		Title:           d.Title,
		Date:            d.Date,
		StartTime:       d.StartTime,
		DurationMinutes: d.Duration,
		GoalID:          d.GoalID,
		CreatedAt:       d.CreatedAt,
	}
}

type reviewDoc struct {
	ID            string   `bson:"_id"`
	UserID        string   `bson:"user_id"`
	ReviewID      string   `bson:"review_id"`
	WeekStart     string   `bson:"week_start"`
	Wins          []string `bson:"wins,omitempty"`
	Challenges    string   `bson:"challenges,omitempty"`
	NextWeekFocus string   `bson:"next_week_focus,omitempty"`
	Rating        int      `bson:"rating"`
	CreatedAt     string   `bson:"created_at"`
}

func toReviewDoc(userID string, r *types.WeeklyReview) reviewDoc {
	return reviewDoc{
		ID:            docID(userID, r.ID),
		UserID:        userID,
		ReviewID:      r.ID,
		WeekStart:     r.WeekStart,
		Wins:          r.Wins,
		Challenges:    r.Challenges,
		NextWeekFocus: r.NextWeekFocus,
		Rating:        r.Rating,
		CreatedAt:     r.CreatedAt,
	}
}

func (d reviewDoc) toReview() types.WeeklyReview {
	return types.WeeklyReview{
		ID:            d.ReviewID,
		WeekStart:     d.WeekStart,
		Wins:          d.Wins,
		Challenges:    d.Challenges,
		NextWeekFocus: d.NextWeekFocus,
		Rating:        d.Rating,
		CreatedAt:     d.CreatedAt,
	}
}

type brainDumpDoc struct {
	ID          string `bson:"_id"`
	UserID      string `bson:"user_id"`
	EntryID     string `bson:"entry_id"`
	Text        string `bson:"text"`
	Processed   bool   `bson:"processed"`
	CreatedAt   string `bson:"created_at"`
	ProcessedAt string `bson:"processed_at,omitempty"`
}

func toBrainDumpDoc(userID string, e *types.BrainDumpEntry) brainDumpDoc {
	return brainDumpDoc{
		ID:          docID(userID, e.ID),
		UserID:      userID,
		EntryID:     e.ID,
		Text:        e.Text,
		Processed:   e.Processed,
		CreatedAt:   e.CreatedAt,
		ProcessedAt: e.ProcessedAt,
	}
}

func (d brainDumpDoc) toEntry() types.BrainDumpEntry {
	return types.BrainDumpEntry{
		ID:          d.EntryID,
		Text:        d.Text,
		Processed:   d.Processed,
		CreatedAt:   d.CreatedAt,
		ProcessedAt: d.ProcessedAt,
	}
}

type bodyDoubleDoc struct {
	ID        string `bson:"_id"`
	UserID    string `bson:"user_id"`
	SessionID string `bson:"session_id"`
	StartedAt string `bson:"started_at"`
	Duration  int    `bson:"duration_minutes"`
	Focus     string `bson:"focus,omitempty"`
	Completed bool   `bson:"completed"`
}

func toBodyDoubleDoc(userID string, s *types.BodyDoubleSession) bodyDoubleDoc {
	return bodyDoubleDoc{
		ID:        docID(userID, s.ID),
		UserID:    userID,
		SessionID: s.ID,
		StartedAt: s.StartedAt,
		Duration:  s.DurationMinutes,
		Focus:     s.Focus,
		Completed: s.Completed,
	}
}

func (d bodyDoubleDoc) toSession() types.BodyDoubleSession {
	return types.BodyDoubleSession{
		ID:              d.SessionID,
		StartedAt:       d.StartedAt,
		DurationMinutes: d.Duration,
		Focus:           d.Focus,
		Completed:       d.Completed,
	}
}

// profileDoc holds everything that is not a record collection
type profileDoc struct {
	ID           string             `bson:"_id"`
	Preferences  *types.Preferences `bson:"preferences,omitempty"`
	Analytics    *types.Analytics   `bson:"analytics,omitempty"`
	Streak       *types.Streak      `bson:"streak,omitempty"`
	Achievements []string           `bson:"achievements,omitempty"`
	CreatedAt    string             `bson:"created_at,omitempty"`
	Version      int                `bson:"version"`
	UpdatedAt    time.Time          `bson:"updated_at"`
}

func toProfileDoc(userID string, d *types.AppData, now time.Time) profileDoc {
	return profileDoc{
		ID:           userID,
		Preferences:  d.Preferences,
		Analytics:    d.Analytics,
		Streak:       d.Streak,
		Achievements: d.Achievements,
		CreatedAt:    d.CreatedAt,
		Version:      d.Version,
		UpdatedAt:    now,
	}
}

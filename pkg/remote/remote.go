package remote

import (
	"context"

	"github.com/cuemby/verdant/pkg/metrics"
	"github.com/cuemby/verdant/pkg/types"
)

// Backend is the remote copy of a user's data. Implementations translate
// between types.AppData and their own storage shape.
type Backend interface {
	// LoadAll returns nil with no error when the user has no remote data
	LoadAll(ctx context.Context, userID string) (*types.AppData, error)
	SaveAll(ctx context.Context, userID string, data *types.AppData) error
	SavePreferences(ctx context.Context, userID string, bundle types.PreferencesBundle) error
	SaveGoal(ctx context.Context, userID string, goal *types.Goal) error
	DeleteGoal(ctx context.Context, userID, goalID string) error
	SaveBrainDump(ctx context.Context, userID string, entry *types.BrainDumpEntry) error
	DeleteBrainDump(ctx context.Context, userID, entryID string) error
	Ping(ctx context.Context) error
}

// SessionSource resolves the signed-in user
type SessionSource interface {
	// CurrentUser returns nil with no error when nobody is signed in
	CurrentUser(ctx context.Context) (*types.User, error)
}

// Instrument wraps b so every call is timed in the remote request histogram
func Instrument(b Backend) Backend {
	return &instrumented{next: b}
}

type instrumented struct {
	next Backend
}

func (i *instrumented) LoadAll(ctx context.Context, userID string) (*types.AppData, error) {
	defer metrics.NewTimer().ObserveDurationVec(metrics.RemoteRequestDuration, "load_all")
	return i.next.LoadAll(ctx, userID)
}

func (i *instrumented) SaveAll(ctx context.Context, userID string, data *types.AppData) error {
	defer metrics.NewTimer().ObserveDurationVec(metrics.RemoteRequestDuration, "save_all")
	return i.next.SaveAll(ctx, userID, data)
}

func (i *instrumented) SavePreferences(ctx context.Context, userID string, bundle types.PreferencesBundle) error {
	defer metrics.NewTimer().ObserveDurationVec(metrics.RemoteRequestDuration, "save_preferences")
	return i.next.SavePreferences(ctx, userID, bundle)
}

func (i *instrumented) SaveGoal(ctx context.Context, userID string, goal *types.Goal) error {
	defer metrics.NewTimer().ObserveDurationVec(metrics.RemoteRequestDuration, "save_goal")
	return i.next.SaveGoal(ctx, userID, goal)
}

func (i *instrumented) DeleteGoal(ctx context.Context, userID, goalID string) error {
	defer metrics.NewTimer().ObserveDurationVec(metrics.RemoteRequestDuration, "delete_goal")
	return i.next.DeleteGoal(ctx, userID, goalID)
}

func (i *instrumented) SaveBrainDump(ctx context.Context, userID string, entry *types.BrainDumpEntry) error {
	defer metrics.NewTimer().ObserveDurationVec(metrics.RemoteRequestDuration, "save_brain_dump")
	return i.next.SaveBrainDump(ctx, userID, entry)
}

func (i *instrumented) DeleteBrainDump(ctx context.Context, userID, entryID string) error {
	defer metrics.NewTimer().ObserveDurationVec(metrics.RemoteRequestDuration, "delete_brain_dump")
	return i.next.DeleteBrainDump(ctx, userID, entryID)
}

func (i *instrumented) Ping(ctx context.Context) error {
	defer metrics.NewTimer().ObserveDurationVec(metrics.RemoteRequestDuration, "ping")
	return i.next.Ping(ctx)
}

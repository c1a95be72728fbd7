package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/verdant/pkg/events"
	"github.com/cuemby/verdant/pkg/types"
)

const (
	MinZoom     = 50
	MaxZoom     = 200
	DefaultZoom = 100
)

// UIState is the navigation state of the calendar. It is never persisted;
// focus mode and the default view are seeded from preferences.
type UIState struct {
	View        types.ViewMode `json:"view"`
	Zoom        int            `json:"zoom"`
	FocusMode   bool           `json:"focusMode"`
	Selected    string         `json:"selected,omitempty"`
	ViewingDate time.Time      `json:"viewingDate"`
	Year        int            `json:"year"`
	// Month is 0-based to match Goal.Month
	Month int `json:"month"`
	// Week is the ISO-8601 week number of ViewingDate
	Week int `json:"week"`
}

func newUIState(now time.Time) UIState {
	ui := UIState{View: types.ViewMonth, Zoom: DefaultZoom}
	ui.setDate(now)
	return ui
}

func deriveUIState(prefs *types.Preferences, now time.Time) UIState {
	ui := newUIState(now)
	if prefs == nil {
		return ui
	}
	ui.FocusMode = prefs.FocusMode
	if validView(prefs.DefaultView) {
		ui.View = prefs.DefaultView
	}
	return ui
}

func (u *UIState) setDate(t time.Time) {
	u.ViewingDate = t
	u.Year = t.Year()
	u.Month = int(t.Month()) - 1
	_, u.Week = t.ISOWeek()
}

func validView(v types.ViewMode) bool {
	switch v {
	case types.ViewYear, types.ViewMonth, types.ViewWeek, types.ViewDay:
		return true
	}
	return false
}

// UI returns the current navigation state
func (c *Controller) UI() UIState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ui
}

// SetView switches the calendar zoom level
func (c *Controller) SetView(view types.ViewMode) error {
	if !validView(view) {
		return fmt.Errorf("unknown view %q", view)
	}
	c.changeUI(func(u *UIState) { u.View = view })
	return nil
}

// GoToDate moves the calendar to t
func (c *Controller) GoToDate(t time.Time) {
	c.changeUI(func(u *UIState) { u.setDate(t) })
}

// Today moves the calendar to the current date
func (c *Controller) Today() {
	c.GoToDate(c.deps.Clock.Now())
}

// Navigate moves the calendar by steps units of the current view. Negative
// steps move backwards.
func (c *Controller) Navigate(steps int) {
	c.changeUI(func(u *UIState) {
		d := u.ViewingDate
		switch u.View {
		case types.ViewYear:
			d = time.Date(d.Year()+steps, d.Month(), 1, 0, 0, 0, 0, d.Location())
		case types.ViewMonth:
			// Anchor on the 1st so Jan 31 + 1 month is February, not March
			d = time.Date(d.Year(), d.Month()+time.Month(steps), 1, 0, 0, 0, 0, d.Location())
		case types.ViewWeek:
			d = d.AddDate(0, 0, 7*steps)
		default:
			d = d.AddDate(0, 0, steps)
		}
		u.setDate(d)
	})
}

// SetZoom sets the zoom level, clamped to [MinZoom, MaxZoom], and returns
// the level applied
func (c *Controller) SetZoom(level int) int {
	level = min(max(level, MinZoom), MaxZoom)
	c.changeUI(func(u *UIState) { u.Zoom = level })
	return level
}

// Select marks a goal as the active selection; "" clears it
func (c *Controller) Select(id string) {
	c.changeUI(func(u *UIState) { u.Selected = id })
}

// ToggleFocusMode flips focus mode and persists it as a preference
func (c *Controller) ToggleFocusMode(ctx context.Context) (bool, error) {
	var on bool
	c.changeUI(func(u *UIState) {
		u.FocusMode = !u.FocusMode
		on = u.FocusMode
	})

	data := c.deps.Store.Data()
	if data == nil || data.Preferences == nil {
		return on, nil
	}
	prefs := *data.Preferences
	prefs.FocusMode = on
	return on, c.UpdateData(ctx, types.Patch{Preferences: &prefs})
}

func (c *Controller) changeUI(fn func(*UIState)) {
	c.mu.Lock()
	fn(&c.ui)
	ui := c.ui
	c.mu.Unlock()

	c.publishView(ui)
}

func (c *Controller) publishView(ui UIState) {
	if c.deps.Broker == nil {
		return
	}
	c.deps.Broker.Publish(&events.Event{
		Type:    events.EventViewChanged,
		Message: fmt.Sprintf("%s %04d-%02d", ui.View, ui.Year, ui.Month+1),
		Metadata: map[string]string{
			"view": string(ui.View),
			"date": types.FormatDate(ui.ViewingDate),
		},
		Payload: ui,
	})
}

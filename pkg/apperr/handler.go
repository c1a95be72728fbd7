package apperr

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/cuemby/verdant/pkg/events"
	"github.com/cuemby/verdant/pkg/log"
	"github.com/cuemby/verdant/pkg/metrics"
)

// DefaultLogSize is the number of entries kept by the error log
const DefaultLogSize = 50

// Entry is one handled error
type Entry struct {
	Time     time.Time
	Category Category
	Severity Severity
	Message  string
	Context  map[string]string
}

// Reporter forwards errors to external monitoring
type Reporter interface {
	Report(entry Entry)
}

// ReporterFunc adapts a function to Reporter
type ReporterFunc func(Entry)

// Report calls f
func (f ReporterFunc) Report(entry Entry) { f(entry) }

// HandlerOptions configure a Handler
type HandlerOptions struct {
	LogSize     int
	Reporter    Reporter
	MinSeverity Severity
	Exclude     []Category
	Clock       clockwork.Clock
	// Broker, when set, receives an error.reported event for every handled
	// error
	Broker *events.Broker
}

// Handler records handled errors in a bounded log and forwards the
// reportable ones
type Handler struct {
	mu       sync.Mutex
	entries  []Entry
	next     int
	full     bool
	reporter Reporter
	minSev   Severity
	exclude  map[Category]bool
	clock    clockwork.Clock
	broker   *events.Broker
	logger   zerolog.Logger
}

// NewHandler creates an error handler
func NewHandler(opts HandlerOptions) *Handler {
	if opts.LogSize <= 0 {
		opts.LogSize = DefaultLogSize
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	exclude := make(map[Category]bool, len(opts.Exclude))
	for _, c := range opts.Exclude {
		exclude[c] = true
	}

	return &Handler{
		entries:  make([]Entry, opts.LogSize),
		reporter: opts.Reporter,
		minSev:   opts.MinSeverity,
		exclude:  exclude,
		clock:    opts.Clock,
		broker:   opts.Broker,
		logger:   log.WithComponent("errors"),
	}
}

// Handle classifies err, records it and reports it when it passes the filter.
// It returns the classified error.
func (h *Handler) Handle(err error, context map[string]string) *Error {
	ae := Classify(err)
	if ae == nil {
		return nil
	}

	entry := Entry{
		Time:     h.clock.Now(),
		Category: ae.Category,
		Severity: ae.Severity,
		Message:  ae.Error(),
		Context:  context,
	}

	h.mu.Lock()
	h.entries[h.next] = entry
	h.next = (h.next + 1) % len(h.entries)
	if h.next == 0 {
		h.full = true
	}
	h.mu.Unlock()

	metrics.ErrorsTotal.WithLabelValues(string(ae.Category), ae.Severity.String()).Inc()

	ev := h.logger.Warn()
	if ae.Severity >= SeverityHigh {
		ev = h.logger.Error()
	}
	ev.Err(ae.Err).
		Str("category", string(ae.Category)).
		Str("severity", ae.Severity.String()).
		Str("op", ae.Op).
		Msg("Handled error")

	if h.broker != nil {
		h.broker.Publish(&events.Event{
			Type:    events.EventErrorReported,
			Message: UserMessage(ae),
			Metadata: map[string]string{
				"category": string(ae.Category),
				"severity": ae.Severity.String(),
				"op":       ae.Op,
			},
			Payload: entry,
		})
	}
	if h.shouldReport(ae) {
		h.reporter.Report(entry)
	}
	return ae
}

func (h *Handler) shouldReport(ae *Error) bool {
	if h.reporter == nil {
		return false
	}
	if IsOffline(ae) {
		return false
	}
	if h.exclude[ae.Category] {
		return false
	}
	return ae.Severity >= h.minSev
}

// Recent returns the logged entries, oldest first
func (h *Handler) Recent() []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.full {
		out := make([]Entry, h.next)
		copy(out, h.entries[:h.next])
		return out
	}

	out := make([]Entry, 0, len(h.entries))
	out = append(out, h.entries[h.next:]...)
	out = append(out, h.entries[:h.next]...)
	return out
}

// Clear empties the log
func (h *Handler) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = make([]Entry, len(h.entries))
	h.next = 0
	h.full = false
}

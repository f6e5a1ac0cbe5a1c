package status

import (
	"sync"
	"time"

	"github.com/shehryarbajwa/whatsapp-sender/internal/sender"
	"github.com/shehryarbajwa/whatsapp-sender/pkg/models"
)

// Event types pushed to live subscribers
const (
	EventSnapshot   = "snapshot"
	EventState      = "state"
	EventProcessing = "processing"
	EventResult     = "result"
	EventFinished   = "finished"
)

// Event is one update of the live status stream
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Counts is the running tally sent with every result
type Counts struct {
	Total   int `json:"total"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// ResultEvent carries one result plus the tally after it
type ResultEvent struct {
	Result models.RunResult `json:"result"`
	Counts Counts           `json:"counts"`
}

// Tracker keeps the summary of the latest run and forwards every change
// to the hub. It never blocks the send loop. Events are published under
// the tracker lock, so Attach can hand out a snapshot with no gap or
// overlap against the event stream.
type Tracker struct {
	mu      sync.RWMutex
	summary *models.RunSummary
	hub     *Hub
	now     func() time.Time
}

var _ sender.Reporter = (*Tracker)(nil)

// NewTracker creates a tracker publishing to hub; hub may be nil
func NewTracker(hub *Hub) *Tracker {
	return &Tracker{hub: hub, now: time.Now}
}

// RunStarted resets the tracker for a new run
func (t *Tracker) RunStarted(info sender.RunInfo) {
	t.mu.Lock()
	t.summary = &models.RunSummary{
		RunID:     info.ID,
		Source:    info.Source,
		State:     models.RunOpening,
		Delay:     info.Delay.Seconds(),
		Total:     info.Total,
		Results:   make([]models.RunResult, 0, info.Total),
		StartedAt: t.now(),
	}
	snap := t.snapshotLocked()
	t.publish(Event{Type: EventSnapshot, Data: snap})
	t.mu.Unlock()
}

// SessionReady marks the switch from logging in to sending
func (t *Tracker) SessionReady() {
	t.mu.Lock()
	if t.summary == nil {
		t.mu.Unlock()
		return
	}
	t.summary.State = models.RunSending
	t.publish(Event{Type: EventState, Data: models.RunSending})
	t.mu.Unlock()
}

// Processing records the row whose send is in flight
func (t *Tracker) Processing(row models.Row) {
	t.mu.Lock()
	if t.summary == nil {
		t.mu.Unlock()
		return
	}
	current := row
	t.summary.Current = &current
	t.publish(Event{Type: EventProcessing, Data: row})
	t.mu.Unlock()
}

// Recorded appends a result and updates the tally
func (t *Tracker) Recorded(result models.RunResult) {
	t.mu.Lock()
	if t.summary == nil {
		t.mu.Unlock()
		return
	}
	t.summary.Results = append(t.summary.Results, result)
	t.summary.Count(result.Status)
	t.summary.Current = nil
	counts := t.countsLocked()
	t.publish(Event{Type: EventResult, Data: ResultEvent{Result: result, Counts: counts}})
	t.mu.Unlock()
}

// RunFinished stores the terminal state and any fatal error
func (t *Tracker) RunFinished(state models.RunState, err error) {
	t.mu.Lock()
	if t.summary == nil {
		t.mu.Unlock()
		return
	}
	now := t.now()
	t.summary.State = state
	t.summary.Current = nil
	t.summary.FinishedAt = &now
	if err != nil {
		t.summary.Error = err.Error()
	}
	snap := t.snapshotLocked()
	t.publish(Event{Type: EventFinished, Data: snap})
	t.mu.Unlock()
}

// Attach calls join with the current snapshot (nil before the first run)
// while no event can be published. join must not call back into the
// tracker.
func (t *Tracker) Attach(join func(initial *Event)) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.summary == nil {
		join(nil)
		return
	}
	join(&Event{Type: EventSnapshot, Data: t.snapshotLocked()})
}

// Snapshot returns a copy of the latest run summary; ok is false before
// the first run
func (t *Tracker) Snapshot() (models.RunSummary, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.summary == nil {
		return models.RunSummary{}, false
	}
	return t.snapshotLocked(), true
}

func (t *Tracker) snapshotLocked() models.RunSummary {
	snap := *t.summary
	snap.Results = append([]models.RunResult(nil), t.summary.Results...)
	if t.summary.Current != nil {
		current := *t.summary.Current
		snap.Current = &current
	}
	return snap
}

func (t *Tracker) countsLocked() Counts {
	return Counts{
		Total:   t.summary.Total,
		Sent:    t.summary.Sent,
		Failed:  t.summary.Failed,
		Skipped: t.summary.Skipped,
	}
}

func (t *Tracker) publish(ev Event) {
	if t.hub != nil {
		t.hub.Publish(ev)
	}
}

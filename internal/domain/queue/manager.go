package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/triage/triage/internal/domain/triage"
)

// Manager owns the waiting queue. Every mutating operation takes one mutex,
// applies its write, then recomputes the whole ordering from the store:
// positions are never patched incrementally. The store is authoritative;
// nothing is cached across calls. Wait estimates are fixed at check-in from
// the queue composition at that moment.
type Manager struct {
	mu   sync.Mutex
	repo Repository
	log  zerolog.Logger
	now  func() time.Time
}

func NewManager(repo Repository, log zerolog.Logger) *Manager {
	return &Manager{repo: repo, log: log, now: time.Now}
}

// Enqueue inserts a new waiting entry and reorders the queue around it.
// The entry's Position and EstimatedWaitMin are filled in before return.
// The wait estimate counts only patients of strictly higher priority present
// at check-in: a critical arrival waits behind nobody.
func (m *Manager) Enqueue(ctx context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e.Priority = triage.PriorityForLevel(e.Level)
	e.SymptomSummary = Summarize(e.SymptomSummary)
	waiting, err := m.repo.ListWaiting(ctx)
	if err != nil {
		return err
	}
	e.EstimatedWaitMin = EstimateWait(e.Level, AheadOf(e.Level, waiting))
	if err := m.repo.Create(ctx, e); err != nil {
		return err
	}
	entries, err := m.requeueLocked(ctx)
	if err != nil {
		return err
	}
	for _, w := range entries {
		if w.ID == e.ID {
			e.Position = w.Position
			break
		}
	}
	m.log.Info().
		Str("visit_id", e.VisitID.String()).
		Str("level", string(e.Level)).
		Int("position", e.Position).
		Msg("patient enqueued")
	return nil
}

// SeverityUpdate reports what a severity change did to a queued patient.
// Level and priority can change independently of each other (a score move
// within one band changes neither).
type SeverityUpdate struct {
	Entry           *Entry `json:"entry"`
	LevelChanged    bool   `json:"level_changed"`
	PriorityChanged bool   `json:"priority_changed"`
}

// UpdateSeverity applies a reassessed score/level to a queued visit and
// reorders the queue. Ties between the moved entry and existing entries of
// its new priority resolve by original check-in time.
func (m *Manager) UpdateSeverity(ctx context.Context, visitID uuid.UUID, score int, level triage.SeverityLevel) (*SeverityUpdate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.repo.GetByVisit(ctx, visitID)
	if err != nil {
		return nil, err
	}
	priority := triage.PriorityForLevel(level)
	upd := &SeverityUpdate{
		LevelChanged:    e.Level != level,
		PriorityChanged: e.Priority != priority,
	}
	if err := m.repo.SetSeverity(ctx, visitID, score, level, priority); err != nil {
		return nil, err
	}
	if _, err := m.requeueLocked(ctx); err != nil {
		return nil, err
	}
	e, err = m.repo.GetByVisit(ctx, visitID)
	if err != nil {
		return nil, err
	}
	upd.Entry = e
	return upd, nil
}

// CallPatient hands the queued visit to a doctor: the entry leaves the
// waiting set and everyone behind moves up.
func (m *Manager) CallPatient(ctx context.Context, visitID, doctorID uuid.UUID) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.repo.MarkCalled(ctx, visitID, doctorID); err != nil {
		return nil, err
	}
	if _, err := m.requeueLocked(ctx); err != nil {
		return nil, err
	}
	return m.repo.GetByVisit(ctx, visitID)
}

// Complete removes the visit from the queue entirely.
func (m *Manager) Complete(ctx context.Context, visitID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.repo.Remove(ctx, visitID); err != nil {
		return err
	}
	_, err := m.requeueLocked(ctx)
	return err
}

// Waiting returns the ordered waiting set as currently persisted.
func (m *Manager) Waiting(ctx context.Context) ([]*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repo.ListWaiting(ctx)
}

// Statistics recomputes the ordering first so the summary never reflects a
// stale snapshot, then aggregates the waiting set.
func (m *Manager) Statistics(ctx context.Context) (*Statistics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := m.requeueLocked(ctx)
	if err != nil {
		return nil, err
	}
	stats := &Statistics{TotalWaiting: len(entries), Queue: entries}
	now := m.now()
	totalEstimated := 0
	for _, e := range entries {
		switch e.Level {
		case triage.LevelCritical:
			stats.CriticalCount++
		case triage.LevelModerate:
			stats.ModerateCount++
		default:
			stats.NormalCount++
		}
		totalEstimated += e.EstimatedWaitMin
		if waited := e.WaitedMinutes(now); waited > stats.LongestWaitMin {
			stats.LongestWaitMin = waited
		}
	}
	if len(entries) > 0 {
		stats.AverageWaitMin = float64(totalEstimated) / float64(len(entries))
	}
	return stats, nil
}

// LongWaiting returns the waiting entries whose time since check-in exceeds
// the threshold for their severity level, each with the minutes waited and
// the minutes over threshold.
func (m *Manager) LongWaiting(ctx context.Context) ([]LongWait, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := m.repo.ListWaiting(ctx)
	if err != nil {
		return nil, err
	}
	now := m.now()
	var over []LongWait
	for _, e := range entries {
		waited := e.WaitedMinutes(now)
		if threshold := longWaitMin[e.Level]; waited > threshold {
			over = append(over, LongWait{Entry: e, WaitedMin: waited, OverdueMin: waited - threshold})
		}
	}
	return over, nil
}

// requeueLocked refetches the waiting set and reassigns positions 1..N,
// persisting only the placements that changed. Wait estimates are left
// alone: they are a check-in snapshot, not a live countdown. Caller holds
// the mutex.
func (m *Manager) requeueLocked(ctx context.Context) ([]*Entry, error) {
	entries, err := m.repo.ListWaiting(ctx)
	if err != nil {
		return nil, err
	}
	var changed []Placement
	for i, e := range entries {
		position := i + 1
		if e.Position != position {
			changed = append(changed, Placement{EntryID: e.ID, Position: position})
		}
		e.Position = position
	}
	if err := m.repo.SetPlacements(ctx, changed); err != nil {
		return nil, err
	}
	return entries, nil
}

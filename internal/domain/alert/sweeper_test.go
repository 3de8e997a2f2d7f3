package alert

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/triage/triage/internal/domain/queue"
	"github.com/triage/triage/internal/domain/triage"
)

type stubLongWaiter struct {
	overdue []queue.LongWait
	err     error
}

func (s *stubLongWaiter) LongWaiting(_ context.Context) ([]queue.LongWait, error) {
	return s.overdue, s.err
}

func overdueEntry(name string, level triage.SeverityLevel, position, waitedMin int) queue.LongWait {
	return queue.LongWait{
		Entry: &queue.Entry{
			ID:          uuid.New(),
			VisitID:     uuid.New(),
			PatientID:   uuid.New(),
			PatientName: name,
			Level:       level,
			Position:    position,
			Status:      queue.StatusWaiting,
			CheckedInAt: time.Now().Add(-time.Duration(waitedMin) * time.Minute),
		},
		WaitedMin:  waitedMin,
		OverdueMin: waitedMin - queue.LongWaitThreshold(level),
	}
}

func TestSweepRaisesOneAlertPerEntry(t *testing.T) {
	svc, repo, rt := newTestService(nil, "")
	waiter := &stubLongWaiter{overdue: []queue.LongWait{
		overdueEntry("Jane Roe", triage.LevelCritical, 1, 12),
		overdueEntry("John Doe", triage.LevelModerate, 2, 45),
	}}

	sw := NewSweeper(waiter, svc, rt, time.Minute, zerolog.Nop())
	sw.Sweep(context.Background())

	active, _ := repo.ListActive(context.Background(), 100)
	if len(active) != 2 {
		t.Fatalf("active alerts = %d, want 2", len(active))
	}
	janeSeen := false
	for _, a := range active {
		if a.Type != TypeLongWait {
			t.Errorf("alert type = %s, want long_wait", a.Type)
		}
		if strings.Contains(a.Message, "Jane Roe") {
			janeSeen = true
			if !strings.Contains(a.Message, "12 minutes") {
				t.Errorf("alert message lost the waited minutes: %q", a.Message)
			}
		}
	}
	if !janeSeen {
		t.Error("no alert for Jane Roe")
	}
	if rt.count("queue") != 1 {
		t.Errorf("queue topic refreshed %d times, want 1", rt.count("queue"))
	}
}

func TestSweepNoDedupAcrossSweeps(t *testing.T) {
	svc, repo, rt := newTestService(nil, "")
	waiter := &stubLongWaiter{overdue: []queue.LongWait{
		overdueEntry("Jane Roe", triage.LevelCritical, 1, 12),
	}}

	sw := NewSweeper(waiter, svc, rt, time.Minute, zerolog.Nop())
	sw.Sweep(context.Background())
	sw.Sweep(context.Background())

	active, _ := repo.ListActive(context.Background(), 100)
	if len(active) != 2 {
		t.Errorf("active alerts = %d, want 2 (one per sweep)", len(active))
	}
}

func TestSweepEmptyQueueIsQuiet(t *testing.T) {
	svc, repo, rt := newTestService(nil, "")
	sw := NewSweeper(&stubLongWaiter{}, svc, rt, time.Minute, zerolog.Nop())
	sw.Sweep(context.Background())

	active, _ := repo.ListActive(context.Background(), 100)
	if len(active) != 0 {
		t.Errorf("active alerts = %d, want 0", len(active))
	}
	if rt.count("queue") != 0 {
		t.Error("queue topic refreshed with nothing to report")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	svc, _, rt := newTestService(nil, "")
	sw := NewSweeper(&stubLongWaiter{}, svc, rt, time.Hour, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sw.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on context cancel")
	}
}

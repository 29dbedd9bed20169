package scheduling

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

var day9 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newTestQueue() *Queue {
	return &Queue{
		ID:         uuid.New(),
		ProviderID: uuid.New(),
		Date:       time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
	}
}

func admitN(t *testing.T, q *Queue, n int) []uuid.UUID {
	t.Helper()
	ids := make([]uuid.UUID, 0, n)
	for i := 0; i < n; i++ {
		id := uuid.New()
		start := day9.Add(time.Duration(i) * 15 * time.Minute)
		if _, err := q.AddEntry(id, start, start.Add(15*time.Minute)); err != nil {
			t.Fatalf("admit %d: %v", i, err)
		}
		ids = append(ids, id)
	}
	return ids
}

func TestAddEntryTicketsAreSequential(t *testing.T) {
	q := newTestQueue()
	admitN(t, q, 5)

	for i, e := range q.Entries {
		if e.Ticket != i+1 {
			t.Errorf("entry %d ticket = %d, want %d", i, e.Ticket, i+1)
		}
	}
	if q.LastTicket != 5 {
		t.Errorf("last ticket = %d, want 5", q.LastTicket)
	}
	if q.CurrentTicket != 1 {
		t.Errorf("current ticket = %d, want 1", q.CurrentTicket)
	}
}

func TestAddEntryRejectsDuplicate(t *testing.T) {
	q := newTestQueue()
	id := uuid.New()

	if _, err := q.AddEntry(id, day9, day9.Add(15*time.Minute)); err != nil {
		t.Fatalf("first admit: %v", err)
	}
	if _, err := q.AddEntry(id, day9, day9.Add(15*time.Minute)); !errors.Is(err, ErrDuplicateEntry) {
		t.Fatalf("second admit err = %v, want ErrDuplicateEntry", err)
	}
}

func TestAddEntryChainsAfterOpenEntries(t *testing.T) {
	q := newTestQueue()

	// Both admissions ask for the same 09:00 slot; the second gets pushed
	// behind the first but keeps its 20 minute duration.
	first := uuid.New()
	if _, err := q.AddEntry(first, day9, day9.Add(15*time.Minute)); err != nil {
		t.Fatal(err)
	}
	adm, err := q.AddEntry(uuid.New(), day9, day9.Add(20*time.Minute))
	if err != nil {
		t.Fatal(err)
	}

	wantStart := day9.Add(15 * time.Minute)
	if !adm.EstimatedStart.Equal(wantStart) {
		t.Errorf("estimated start = %s, want %s", adm.EstimatedStart, wantStart)
	}
	if !adm.EstimatedEnd.Equal(wantStart.Add(20 * time.Minute)) {
		t.Errorf("estimated end = %s, want %s", adm.EstimatedEnd, wantStart.Add(20*time.Minute))
	}
}

func TestAddEntryIgnoresClosedEntriesWhenChaining(t *testing.T) {
	q := newTestQueue()
	ids := admitN(t, q, 1)

	if _, err := q.StartEntry(ids[0], day9); err != nil {
		t.Fatal(err)
	}
	if _, err := q.CompleteEntry(ids[0], day9.Add(10*time.Minute)); err != nil {
		t.Fatal(err)
	}

	// With the only earlier entry completed, a fresh admission keeps its
	// requested time.
	adm, err := q.AddEntry(uuid.New(), day9.Add(time.Hour), day9.Add(time.Hour+15*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if !adm.EstimatedStart.Equal(day9.Add(time.Hour)) {
		t.Errorf("estimated start = %s, want requested time", adm.EstimatedStart)
	}
}

func TestRemoveEntryRestoresCounters(t *testing.T) {
	q := newTestQueue()
	ids := admitN(t, q, 3)

	q.RemoveEntry(ids[2])

	if q.LastTicket != 2 {
		t.Errorf("last ticket = %d, want 2", q.LastTicket)
	}
	if len(q.Entries) != 2 {
		t.Errorf("entries = %d, want 2", len(q.Entries))
	}

	// The next admission reuses the freed ticket number.
	adm, err := q.AddEntry(uuid.New(), day9, day9.Add(15*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if adm.Ticket != 3 {
		t.Errorf("ticket = %d, want 3", adm.Ticket)
	}
}

func TestRemoveEntryEmptiesQueue(t *testing.T) {
	q := newTestQueue()
	ids := admitN(t, q, 1)

	q.RemoveEntry(ids[0])

	if q.LastTicket != 0 || q.CurrentTicket != 0 {
		t.Errorf("counters = (%d, %d), want (0, 0)", q.CurrentTicket, q.LastTicket)
	}
}

func TestStartEntryEnforcesFIFO(t *testing.T) {
	q := newTestQueue()
	ids := admitN(t, q, 3)

	// Ticket 2 cannot start while ticket 1 waits.
	_, err := q.StartEntry(ids[1], day9)
	var oot *OutOfTurnError
	if !errors.As(err, &oot) {
		t.Fatalf("err = %v, want OutOfTurnError", err)
	}
	if oot.Expected != 1 {
		t.Errorf("expected ticket = %d, want 1", oot.Expected)
	}

	if _, err := q.StartEntry(ids[0], day9); err != nil {
		t.Fatalf("start ticket 1: %v", err)
	}
	if q.CurrentTicket != 1 {
		t.Errorf("current ticket = %d, want 1", q.CurrentTicket)
	}
}

func TestStartEntryFIFOWithGaps(t *testing.T) {
	q := newTestQueue()
	ids := admitN(t, q, 5)

	// Close tickets 1 and 4, leaving {2, 3, 5} waiting.
	if _, err := q.StartEntry(ids[0], day9); err != nil {
		t.Fatal(err)
	}
	if _, err := q.CompleteEntry(ids[0], day9.Add(10*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if err := q.MarkNoShow(ids[3]); err != nil {
		t.Fatal(err)
	}

	var oot *OutOfTurnError
	if _, err := q.StartEntry(ids[2], day9); !errors.As(err, &oot) || oot.Expected != 2 {
		t.Errorf("start ticket 3: err = %v, want OutOfTurn expecting 2", err)
	}
	oot = nil
	if _, err := q.StartEntry(ids[4], day9); !errors.As(err, &oot) || oot.Expected != 2 {
		t.Errorf("start ticket 5: err = %v, want OutOfTurn expecting 2", err)
	}

	if _, err := q.StartEntry(ids[1], day9); err != nil {
		t.Errorf("start ticket 2: %v", err)
	}
}

func TestStartEntryRejectsSecondInProgress(t *testing.T) {
	q := newTestQueue()
	ids := admitN(t, q, 2)

	if _, err := q.StartEntry(ids[0], day9); err != nil {
		t.Fatal(err)
	}

	_, err := q.StartEntry(ids[1], day9)
	var oot *OutOfTurnError
	if !errors.As(err, &oot) {
		t.Fatalf("err = %v, want OutOfTurnError", err)
	}
	if oot.Expected != 1 {
		t.Errorf("expected ticket = %d, want the in-progress ticket 1", oot.Expected)
	}
}

func TestStartEntrySkipsNoShows(t *testing.T) {
	q := newTestQueue()
	ids := admitN(t, q, 2)

	if err := q.MarkNoShow(ids[0]); err != nil {
		t.Fatal(err)
	}
	if q.CurrentTicket != 2 {
		t.Errorf("current ticket after no-show = %d, want 2", q.CurrentTicket)
	}

	if _, err := q.StartEntry(ids[1], day9); err != nil {
		t.Fatalf("ticket 2 should start after ticket 1 no-show: %v", err)
	}
}

func TestStartEntryInvalidStates(t *testing.T) {
	q := newTestQueue()
	ids := admitN(t, q, 1)

	if _, err := q.StartEntry(uuid.New(), day9); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("unknown appointment err = %v, want ErrEntryNotFound", err)
	}

	if _, err := q.StartEntry(ids[0], day9); err != nil {
		t.Fatal(err)
	}
	if _, err := q.CompleteEntry(ids[0], day9.Add(5*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if _, err := q.StartEntry(ids[0], day9); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("restart completed err = %v, want ErrInvalidTransition", err)
	}
}

func TestCompleteEntryRecordsFlooredMinutes(t *testing.T) {
	q := newTestQueue()
	ids := admitN(t, q, 1)

	if _, err := q.StartEntry(ids[0], day9); err != nil {
		t.Fatal(err)
	}
	e, err := q.CompleteEntry(ids[0], day9.Add(17*time.Minute+30*time.Second))
	if err != nil {
		t.Fatal(err)
	}

	if e.ActualMinutes == nil || *e.ActualMinutes != 17 {
		t.Errorf("actual minutes = %v, want 17", e.ActualMinutes)
	}
	if e.Status != EntryCompleted {
		t.Errorf("status = %s, want completed", e.Status)
	}
}

func TestCompleteEntryStreamsAverage(t *testing.T) {
	q := newTestQueue()
	ids := admitN(t, q, 3)

	durations := []time.Duration{10 * time.Minute, 20 * time.Minute, 30 * time.Minute}
	wantAvgs := []int{10, 15, 20}

	clock := day9
	for i, id := range ids {
		if _, err := q.StartEntry(id, clock); err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
		clock = clock.Add(durations[i])
		if _, err := q.CompleteEntry(id, clock); err != nil {
			t.Fatalf("complete %d: %v", i, err)
		}
		if q.Metrics.AvgConsultationMinutes != wantAvgs[i] {
			t.Errorf("after %d completions avg = %d, want %d",
				i+1, q.Metrics.AvgConsultationMinutes, wantAvgs[i])
		}
	}
	if q.Metrics.TotalCompleted != 3 {
		t.Errorf("total completed = %d, want 3", q.Metrics.TotalCompleted)
	}
}

func TestCompleteEntryAdvancesCurrentTicket(t *testing.T) {
	q := newTestQueue()
	ids := admitN(t, q, 2)

	if _, err := q.StartEntry(ids[0], day9); err != nil {
		t.Fatal(err)
	}
	if _, err := q.CompleteEntry(ids[0], day9.Add(10*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if q.CurrentTicket != 2 {
		t.Errorf("current ticket = %d, want 2", q.CurrentTicket)
	}
	if q.NextWaitingTicket() != 2 {
		t.Errorf("next waiting = %d, want 2", q.NextWaitingTicket())
	}
}

func TestCompleteEntryLastPatientKeepsTicket(t *testing.T) {
	q := newTestQueue()
	ids := admitN(t, q, 1)

	if _, err := q.StartEntry(ids[0], day9); err != nil {
		t.Fatal(err)
	}
	if _, err := q.CompleteEntry(ids[0], day9.Add(10*time.Minute)); err != nil {
		t.Fatal(err)
	}

	// Nobody waiting: the ticket stays on the patient just served.
	if q.CurrentTicket != 1 {
		t.Errorf("current ticket = %d, want 1", q.CurrentTicket)
	}
}

func TestCompleteEntryRequiresInProgress(t *testing.T) {
	q := newTestQueue()
	ids := admitN(t, q, 1)

	if _, err := q.CompleteEntry(ids[0], day9); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("complete waiting err = %v, want ErrInvalidTransition", err)
	}
}

func TestMarkNoShowOnlyWaiting(t *testing.T) {
	q := newTestQueue()
	ids := admitN(t, q, 1)

	if _, err := q.StartEntry(ids[0], day9); err != nil {
		t.Fatal(err)
	}
	if err := q.MarkNoShow(ids[0]); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("no-show in-progress err = %v, want ErrInvalidTransition", err)
	}
}

func TestRetimeWaitingPreservesDurations(t *testing.T) {
	q := newTestQueue()

	a, b := uuid.New(), uuid.New()
	if _, err := q.AddEntry(a, day9, day9.Add(15*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if _, err := q.AddEntry(b, day9.Add(15*time.Minute), day9.Add(45*time.Minute)); err != nil {
		t.Fatal(err)
	}

	now := day9.Add(2 * time.Hour)
	q.RetimeWaiting(now)

	if !q.Entries[0].EstimatedStart.Equal(now) {
		t.Errorf("first start = %s, want %s", q.Entries[0].EstimatedStart, now)
	}
	if !q.Entries[0].EstimatedEnd.Equal(now.Add(15 * time.Minute)) {
		t.Errorf("first end = %s", q.Entries[0].EstimatedEnd)
	}
	if !q.Entries[1].EstimatedStart.Equal(now.Add(15 * time.Minute)) {
		t.Errorf("second start = %s", q.Entries[1].EstimatedStart)
	}
	if !q.Entries[1].EstimatedEnd.Equal(now.Add(45 * time.Minute)) {
		t.Errorf("second end = %s, want 30 minute duration kept", q.Entries[1].EstimatedEnd)
	}
}

func TestRetimeWaitingIsIdempotent(t *testing.T) {
	q := newTestQueue()
	admitN(t, q, 3)

	now := day9.Add(time.Hour)
	q.RetimeWaiting(now)
	first := make([]QueueEntry, len(q.Entries))
	copy(first, q.Entries)

	q.RetimeWaiting(now)
	for i := range q.Entries {
		if !q.Entries[i].EstimatedStart.Equal(first[i].EstimatedStart) ||
			!q.Entries[i].EstimatedEnd.Equal(first[i].EstimatedEnd) {
			t.Errorf("entry %d moved on second retime", i)
		}
	}
}

func TestRetimeWaitingSkipsClosedEntries(t *testing.T) {
	q := newTestQueue()
	ids := admitN(t, q, 2)

	if _, err := q.StartEntry(ids[0], day9); err != nil {
		t.Fatal(err)
	}
	inProgressStart := q.Entries[0].EstimatedStart

	q.RetimeWaiting(day9.Add(time.Hour))

	if !q.Entries[0].EstimatedStart.Equal(inProgressStart) {
		t.Errorf("in-progress entry was retimed")
	}
	if !q.Entries[1].EstimatedStart.Equal(day9.Add(time.Hour)) {
		t.Errorf("waiting entry start = %s, want %s", q.Entries[1].EstimatedStart, day9.Add(time.Hour))
	}
}

func TestQueueStats(t *testing.T) {
	q := newTestQueue()
	ids := admitN(t, q, 4)

	if _, err := q.StartEntry(ids[0], day9); err != nil {
		t.Fatal(err)
	}
	if _, err := q.CompleteEntry(ids[0], day9.Add(10*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if _, err := q.StartEntry(ids[1], day9.Add(10*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if err := q.MarkNoShow(ids[3]); err != nil {
		t.Fatal(err)
	}

	s := q.Stats()
	if s.Total != 4 || s.Waiting != 1 || s.InProgress != 1 || s.Completed != 1 || s.NoShow != 1 {
		t.Errorf("stats = %+v", s)
	}
	if s.TotalCompleted != 1 || s.AvgConsultationMinutes != 10 {
		t.Errorf("metrics in stats = (%d, %d)", s.TotalCompleted, s.AvgConsultationMinutes)
	}
}

package scheduling

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Aggregate mutations. Every method here must only run inside the
// per-queue lock held by the service; the methods themselves are plain
// in-memory operations and the caller persists the whole aggregate
// afterwards.

func (q *Queue) entryIndex(appointmentID uuid.UUID) int {
	for i := range q.Entries {
		if q.Entries[i].AppointmentID == appointmentID {
			return i
		}
	}
	return -1
}

// EntryFor returns the entry tracking an appointment, if any.
func (q *Queue) EntryFor(appointmentID uuid.UUID) (*QueueEntry, bool) {
	i := q.entryIndex(appointmentID)
	if i < 0 {
		return nil, false
	}
	return &q.Entries[i], true
}

func (q *Queue) inProgressTicket() (int, bool) {
	for i := range q.Entries {
		if q.Entries[i].Status == EntryInProgress {
			return q.Entries[i].Ticket, true
		}
	}
	return 0, false
}

// NextWaitingTicket is the minimum ticket among waiting entries, 0 when
// nobody is waiting. Entries are in ticket order so the first waiting
// entry wins.
func (q *Queue) NextWaitingTicket() int {
	for i := range q.Entries {
		if q.Entries[i].Status == EntryWaiting {
			return q.Entries[i].Ticket
		}
	}
	return 0
}

// recomputeCurrentTicket applies the single authoritative rule: the
// in-progress ticket, else the minimum waiting ticket, else the last
// completed ticket in entry order, else unchanged (0 for an empty queue).
func (q *Queue) recomputeCurrentTicket() {
	if t, ok := q.inProgressTicket(); ok {
		q.CurrentTicket = t
		return
	}
	if t := q.NextWaitingTicket(); t != 0 {
		q.CurrentTicket = t
		return
	}
	for i := len(q.Entries) - 1; i >= 0; i-- {
		if q.Entries[i].Status == EntryCompleted {
			q.CurrentTicket = q.Entries[i].Ticket
			return
		}
	}
	if len(q.Entries) == 0 {
		q.CurrentTicket = 0
	}
}

// AddEntry admits an appointment: assigns the next ticket and chains the
// estimated timing after the latest still-open entry so admissions never
// overlap. The requested duration is preserved even when the start is
// pushed back.
func (q *Queue) AddEntry(appointmentID uuid.UUID, reqStart, reqEnd time.Time) (Admission, error) {
	if q.entryIndex(appointmentID) >= 0 {
		return Admission{}, ErrDuplicateEntry
	}

	ticket := q.LastTicket + 1

	start := reqStart
	for i := len(q.Entries) - 1; i >= 0; i-- {
		e := q.Entries[i]
		if e.Status == EntryWaiting || e.Status == EntryInProgress {
			if e.EstimatedEnd.After(start) {
				start = e.EstimatedEnd
			}
			break
		}
	}
	end := start.Add(reqEnd.Sub(reqStart))

	q.Entries = append(q.Entries, QueueEntry{
		ID:             uuid.New(),
		AppointmentID:  appointmentID,
		Ticket:         ticket,
		Status:         EntryWaiting,
		EstimatedStart: start,
		EstimatedEnd:   end,
	})
	q.LastTicket = ticket
	q.recomputeCurrentTicket()

	return Admission{Ticket: ticket, EstimatedStart: start, EstimatedEnd: end}, nil
}

// RemoveEntry rolls an admission back. Counters are restored so that a
// failed admission leaves the queue exactly as it was before the call.
func (q *Queue) RemoveEntry(appointmentID uuid.UUID) {
	i := q.entryIndex(appointmentID)
	if i < 0 {
		return
	}
	q.Entries = append(q.Entries[:i], q.Entries[i+1:]...)

	if len(q.Entries) == 0 {
		q.LastTicket = 0
		q.CurrentTicket = 0
		return
	}

	maxTicket := 0
	for i := range q.Entries {
		if q.Entries[i].Ticket > maxTicket {
			maxTicket = q.Entries[i].Ticket
		}
	}
	q.LastTicket = maxTicket
	q.recomputeCurrentTicket()
}

// StartEntry begins the consultation for an appointment. Strict FIFO: the
// entry must hold the minimum waiting ticket, and nothing else may be in
// progress.
func (q *Queue) StartEntry(appointmentID uuid.UUID, now time.Time) (*QueueEntry, error) {
	i := q.entryIndex(appointmentID)
	if i < 0 {
		return nil, ErrEntryNotFound
	}
	e := &q.Entries[i]

	if t, ok := q.inProgressTicket(); ok {
		return nil, &OutOfTurnError{Expected: t}
	}
	if e.Status != EntryWaiting {
		return nil, ErrInvalidTransition
	}
	if next := q.NextWaitingTicket(); e.Ticket != next {
		return nil, &OutOfTurnError{Expected: next}
	}

	started := now
	e.Status = EntryInProgress
	e.ActualStart = &started
	q.CurrentTicket = e.Ticket

	return e, nil
}

// CompleteEntry finishes an in-progress consultation, records the actual
// duration in whole minutes and folds it into the running average.
func (q *Queue) CompleteEntry(appointmentID uuid.UUID, now time.Time) (*QueueEntry, error) {
	i := q.entryIndex(appointmentID)
	if i < 0 {
		return nil, ErrEntryNotFound
	}
	e := &q.Entries[i]

	if e.Status != EntryInProgress || e.ActualStart == nil {
		return nil, ErrInvalidTransition
	}

	ended := now
	minutes := int(now.Sub(*e.ActualStart).Minutes())

	e.Status = EntryCompleted
	e.ActualEnd = &ended
	e.ActualMinutes = &minutes

	n := q.Metrics.TotalCompleted + 1
	prev := q.Metrics.AvgConsultationMinutes
	q.Metrics.TotalCompleted = n
	q.Metrics.AvgConsultationMinutes = int(math.Round(
		(float64(prev)*float64(n-1) + float64(minutes)) / float64(n),
	))

	// If nobody is waiting the current ticket stays on the entry just
	// completed.
	if t := q.NextWaitingTicket(); t != 0 {
		q.CurrentTicket = t
	}

	return e, nil
}

// MarkNoShow moves a waiting entry to its no-show terminal state. Driven
// by cancellation, which lives outside the coordinator proper.
func (q *Queue) MarkNoShow(appointmentID uuid.UUID) error {
	i := q.entryIndex(appointmentID)
	if i < 0 {
		return ErrEntryNotFound
	}
	e := &q.Entries[i]

	if e.Status != EntryWaiting {
		return ErrInvalidTransition
	}
	e.Status = EntryNoShow
	q.recomputeCurrentTicket()
	return nil
}

// RetimeWaiting re-chains every waiting entry sequentially from now,
// keeping each entry's admission-time duration. Entries in other states
// are untouched. Idempotent for a fixed now.
func (q *Queue) RetimeWaiting(now time.Time) {
	last := now
	for i := range q.Entries {
		e := &q.Entries[i]
		if e.Status != EntryWaiting {
			continue
		}
		dur := e.EstimatedEnd.Sub(e.EstimatedStart)
		e.EstimatedStart = last
		e.EstimatedEnd = last.Add(dur)
		last = e.EstimatedEnd
	}
}

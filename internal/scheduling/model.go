package scheduling

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentScheduled  AppointmentStatus = "scheduled"
	AppointmentInProgress AppointmentStatus = "in-progress"
	AppointmentCompleted  AppointmentStatus = "completed"
	AppointmentCancelled  AppointmentStatus = "cancelled"
)

type EntryStatus string

const (
	EntryWaiting    EntryStatus = "waiting"
	EntryInProgress EntryStatus = "in-progress"
	EntryCompleted  EntryStatus = "completed"
	EntryNoShow     EntryStatus = "no-show"
)

type Provider struct {
	ID                     uuid.UUID
	Name                   string
	Specialty              string
	ConsultationMinutes    int
	MaxPatientsPerDay      int
	TotalConsultations     int
	AvgConsultationMinutes int
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AvailabilityWindow is one weekly working window. Start and end are
// times of day in "HH:MM" 24h form.
type AvailabilityWindow struct {
	Weekday   time.Weekday
	StartTime string
	EndTime   string
	Available bool
}

type AvailabilityTemplate struct {
	Windows []AvailabilityWindow
}

// WindowFor returns the active window for a weekday, if any. At most one
// window per weekday is considered.
func (t AvailabilityTemplate) WindowFor(d time.Weekday) (AvailabilityWindow, bool) {
	for _, w := range t.Windows {
		if w.Weekday == d && w.Available && w.StartTime != "" && w.EndTime != "" {
			return w, true
		}
	}
	return AvailabilityWindow{}, false
}

// Slot is a bookable candidate produced by GenerateSlots. It is never
// persisted; generation is re-run against current bookings on every
// booking attempt.
type Slot struct {
	Label string
	Start time.Time
	End   time.Time
}

type Appointment struct {
	ID             uuid.UUID
	PatientID      uuid.UUID
	ProviderID     uuid.UUID
	Date           time.Time // calendar day
	Department     string
	Reason         string
	TimeSlot       string
	EstimatedStart time.Time
	EstimatedEnd   time.Time
	Status         AppointmentStatus
	Ticket         *int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type QueueEntry struct {
	ID             uuid.UUID
	AppointmentID  uuid.UUID
	Ticket         int
	Status         EntryStatus
	EstimatedStart time.Time
	EstimatedEnd   time.Time
	ActualStart    *time.Time
	ActualEnd      *time.Time
	ActualMinutes  *int
}

type QueueMetrics struct {
	TotalCompleted         int
	AvgConsultationMinutes int
}

// Queue is the per-(provider, day) aggregate. Entries are kept in
// admission order, which is also ticket order.
type Queue struct {
	ID            uuid.UUID
	ProviderID    uuid.UUID
	Date          time.Time
	Entries       []QueueEntry
	CurrentTicket int
	LastTicket    int
	Metrics       QueueMetrics
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Admission is what AddEntry hands back to the booking flow.
type Admission struct {
	Ticket         int
	EstimatedStart time.Time
	EstimatedEnd   time.Time
}

type QueueStats struct {
	Total                  int
	Waiting                int
	InProgress             int
	Completed              int
	NoShow                 int
	CurrentTicket          int
	LastTicket             int
	TotalCompleted         int
	AvgConsultationMinutes int
}

func (q *Queue) Stats() QueueStats {
	s := QueueStats{
		Total:                  len(q.Entries),
		CurrentTicket:          q.CurrentTicket,
		LastTicket:             q.LastTicket,
		TotalCompleted:         q.Metrics.TotalCompleted,
		AvgConsultationMinutes: q.Metrics.AvgConsultationMinutes,
	}
	for _, e := range q.Entries {
		switch e.Status {
		case EntryWaiting:
			s.Waiting++
		case EntryInProgress:
			s.InProgress++
		case EntryCompleted:
			s.Completed++
		case EntryNoShow:
			s.NoShow++
		}
	}
	return s
}

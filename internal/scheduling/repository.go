package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrProviderNotFound    = errors.New("provider not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrQueueNotFound       = errors.New("queue not found")
	ErrEntryNotFound       = errors.New("appointment not in queue")

	ErrDuplicateEntry    = errors.New("appointment already in queue")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNoAvailability    = errors.New("no available slots for this date")
	ErrPastDate          = errors.New("cannot book appointments for past dates")
	ErrAlreadyBookedDay  = errors.New("patient already has an active appointment with this provider that day")
	ErrWrongDay          = errors.New("consultation can only run on the appointment date")

	// ErrCompletionFailed means the appointment was marked completed but
	// the queue-side completion could not be persisted; the appointment
	// has been compensated back to in-progress. Callers should retry
	// completion, ticket numbering is unaffected.
	ErrCompletionFailed = errors.New("failed to complete consultation")
)

// OutOfTurnError rejects a FIFO violation on start; Expected is the
// ticket that is actually up next.
type OutOfTurnError struct {
	Expected int
}

func (e *OutOfTurnError) Error() string {
	return fmt.Sprintf("cannot start consultation, current ticket is %d", e.Expected)
}

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error)
	GetAvailabilityTemplate(ctx context.Context, providerID uuid.UUID) (AvailabilityTemplate, error)
	UpdateProviderMetrics(ctx context.Context, id uuid.UUID, totalConsultations, avgMinutes int) error

	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// FindActiveAppointment reports a scheduled or in-progress appointment
	// for the (patient, provider, day) triple, used by the same-day
	// duplicate booking guard.
	FindActiveAppointment(ctx context.Context, patientID, providerID uuid.UUID, day time.Time) (*Appointment, error)
	// ListBookedLabels returns the slot labels reserved for the day;
	// cancelled and completed bookings do not reserve theirs.
	ListBookedLabels(ctx context.Context, providerID uuid.UUID, day time.Time) ([]string, error)
	ListAppointmentsForDay(ctx context.Context, providerID uuid.UUID, day time.Time) ([]Appointment, error)
	SetAppointmentStatus(ctx context.Context, id uuid.UUID, status AppointmentStatus) error
	SetAppointmentTicket(ctx context.Context, id uuid.UUID, ticket int) error

	// FindOrCreateQueue is idempotent against the (provider, day)
	// uniqueness constraint.
	FindOrCreateQueue(ctx context.Context, providerID uuid.UUID, day time.Time) (*Queue, error)
	LoadQueue(ctx context.Context, providerID uuid.UUID, day time.Time) (*Queue, error)
	LoadQueueByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Queue, error)
	SaveQueue(ctx context.Context, q *Queue) error
	ListQueuesForDay(ctx context.Context, day time.Time) ([]Queue, error)
}

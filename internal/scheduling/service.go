package scheduling

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/careflow/opd-queueing/internal/redis"
)

var (
	ErrQueueBusy = errors.New("queue is being updated, please retry")
)

type Service struct {
	repo   Repository
	locker redisclient.Locker
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		logger: logger.With().Str("component", "scheduling").Logger(),
		now:    time.Now,
	}
}

type BookingRequest struct {
	PatientID  uuid.UUID
	ProviderID uuid.UUID
	Date       time.Time
	Department string
	Reason     string
}

type BookingResult struct {
	Appointment    *Appointment
	Ticket         int
	EstimatedStart time.Time
	EstimatedEnd   time.Time
}

// AvailableSlots lists the bookable slots for a provider on a date.
func (s *Service) AvailableSlots(ctx context.Context, providerID uuid.UUID, date time.Time) ([]Slot, error) {
	provider, err := s.repo.GetProviderByID(ctx, providerID)
	if err != nil {
		return nil, err
	}

	day := dayOf(date)
	tmpl, err := s.repo.GetAvailabilityTemplate(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("load availability: %w", err)
	}
	booked, err := s.repo.ListBookedLabels(ctx, providerID, day)
	if err != nil {
		return nil, fmt.Errorf("load booked labels: %w", err)
	}

	return GenerateSlots(tmpl, day, booked, provider.ConsultationMinutes, provider.MaxPatientsPerDay, s.now()), nil
}

// BookAppointment runs the full booking flow: slot generation, appointment
// creation at the first free slot, and admission into the day's queue.
// The duplicate-day check, the booked-label read, and appointment creation
// all happen inside the per-queue lock; the lock key scopes the day's
// label namespace, so a label can never be consumed twice without an
// intervening cancellation. A failed admission cancels the appointment so
// booking is all-or-nothing from the caller's point of view.
func (s *Service) BookAppointment(ctx context.Context, req BookingRequest) (*BookingResult, error) {
	if _, err := s.repo.GetPatientByID(ctx, req.PatientID); err != nil {
		return nil, err
	}
	provider, err := s.repo.GetProviderByID(ctx, req.ProviderID)
	if err != nil {
		return nil, err
	}

	day := dayOf(req.Date)
	today := dayOf(s.now())
	if day.Before(today) {
		return nil, ErrPastDate
	}

	tmpl, err := s.repo.GetAvailabilityTemplate(ctx, req.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("load availability: %w", err)
	}

	var appt *Appointment
	var adm Admission
	err = s.locker.WithQueueLock(ctx, req.ProviderID, day, func(lockCtx context.Context) error {
		existing, err := s.repo.FindActiveAppointment(lockCtx, req.PatientID, req.ProviderID, day)
		if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
			return fmt.Errorf("check existing appointment: %w", err)
		}
		if existing != nil {
			return ErrAlreadyBookedDay
		}

		booked, err := s.repo.ListBookedLabels(lockCtx, req.ProviderID, day)
		if err != nil {
			return fmt.Errorf("load booked labels: %w", err)
		}

		slots := GenerateSlots(tmpl, day, booked, provider.ConsultationMinutes, provider.MaxPatientsPerDay, s.now())
		if len(slots) == 0 {
			return ErrNoAvailability
		}
		first := slots[0]

		appt, err = s.repo.CreateAppointment(lockCtx, &Appointment{
			PatientID:      req.PatientID,
			ProviderID:     req.ProviderID,
			Date:           day,
			Department:     req.Department,
			Reason:         req.Reason,
			TimeSlot:       first.Label,
			EstimatedStart: first.Start,
			EstimatedEnd:   first.End,
			Status:         AppointmentScheduled,
		})
		if err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}

		queue, err := s.repo.FindOrCreateQueue(lockCtx, req.ProviderID, day)
		if err != nil {
			return fmt.Errorf("find or create queue: %w", err)
		}

		adm, err = queue.AddEntry(appt.ID, first.Start, first.End)
		if err != nil {
			return err
		}
		if err := s.repo.SaveQueue(lockCtx, queue); err != nil {
			return fmt.Errorf("save queue: %w", err)
		}

		if err := s.repo.SetAppointmentTicket(lockCtx, appt.ID, adm.Ticket); err != nil {
			// Admission is all-or-nothing: undo the entry and restore
			// the counters before surfacing the failure.
			queue.RemoveEntry(appt.ID)
			if rbErr := s.repo.SaveQueue(lockCtx, queue); rbErr != nil {
				s.logger.Error().Err(rbErr).
					Str("appointment_id", appt.ID.String()).
					Msg("admission rollback failed")
			}
			return fmt.Errorf("assign ticket: %w", err)
		}
		return nil
	})
	if err != nil {
		if appt != nil {
			s.cancelAfterFailedAdmission(ctx, appt.ID)
		}
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrQueueBusy
		}
		return nil, err
	}

	ticket := adm.Ticket
	appt.Ticket = &ticket
	return &BookingResult{
		Appointment:    appt,
		Ticket:         adm.Ticket,
		EstimatedStart: adm.EstimatedStart,
		EstimatedEnd:   adm.EstimatedEnd,
	}, nil
}

// cancelAfterFailedAdmission compensates a booking whose queue admission
// failed; best effort, the appointment holds no ticket either way.
func (s *Service) cancelAfterFailedAdmission(ctx context.Context, appointmentID uuid.UUID) {
	if err := s.repo.SetAppointmentStatus(ctx, appointmentID, AppointmentCancelled); err != nil {
		s.logger.Error().Err(err).
			Str("appointment_id", appointmentID.String()).
			Msg("failed to cancel appointment after admission failure")
	}
}

type ConsultationState struct {
	Appointment   *Appointment
	Entry         QueueEntry
	CurrentTicket int
	NextTicket    int
	Metrics       QueueMetrics
}

// StartConsultation begins serving an appointment. Only valid on the
// appointment's own calendar day and only for the minimum waiting ticket.
func (s *Service) StartConsultation(ctx context.Context, appointmentID uuid.UUID) (*ConsultationState, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if !sameDay(s.now(), appt.Date) {
		return nil, ErrWrongDay
	}

	var state ConsultationState
	err = s.locker.WithQueueLock(ctx, appt.ProviderID, dayOf(appt.Date), func(lockCtx context.Context) error {
		queue, err := s.repo.LoadQueueByAppointment(lockCtx, appointmentID)
		if err != nil {
			return err
		}

		entry, err := queue.StartEntry(appointmentID, s.now())
		if err != nil {
			return err
		}
		if err := s.repo.SaveQueue(lockCtx, queue); err != nil {
			return fmt.Errorf("save queue: %w", err)
		}

		// Coupled write: the appointment mirrors its entry status.
		if err := s.repo.SetAppointmentStatus(lockCtx, appointmentID, AppointmentInProgress); err != nil {
			return fmt.Errorf("update appointment status: %w", err)
		}

		state.Entry = *entry
		state.CurrentTicket = queue.CurrentTicket
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrQueueBusy
		}
		return nil, err
	}

	appt.Status = AppointmentInProgress
	state.Appointment = appt
	return &state, nil
}

// CompleteConsultation finishes an in-progress appointment. The
// appointment write lands first (mirroring the entry transition), then
// the queue side; if the queue side fails the appointment is compensated
// back to in-progress. A pure persistence failure after the appointment
// write surfaces as ErrCompletionFailed; the queue mutation, once
// committed, is never rolled back and ticket numbering is unaffected.
func (s *Service) CompleteConsultation(ctx context.Context, appointmentID uuid.UUID) (*ConsultationState, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if !sameDay(s.now(), appt.Date) {
		return nil, ErrWrongDay
	}
	if appt.Status != AppointmentInProgress {
		return nil, ErrInvalidTransition
	}

	if err := s.repo.SetAppointmentStatus(ctx, appointmentID, AppointmentCompleted); err != nil {
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	var state ConsultationState
	err = s.locker.WithQueueLock(ctx, appt.ProviderID, dayOf(appt.Date), func(lockCtx context.Context) error {
		queue, err := s.repo.LoadQueueByAppointment(lockCtx, appointmentID)
		if err != nil {
			return err
		}

		entry, err := queue.CompleteEntry(appointmentID, s.now())
		if err != nil {
			return err
		}
		if err := s.repo.SaveQueue(lockCtx, queue); err != nil {
			return fmt.Errorf("save queue: %w", err)
		}

		s.updateProviderMetrics(lockCtx, appt.ProviderID, *entry.ActualMinutes)

		state.Entry = *entry
		state.CurrentTicket = queue.CurrentTicket
		state.NextTicket = queue.NextWaitingTicket()
		state.Metrics = queue.Metrics
		return nil
	})
	if err != nil {
		// Compensating rollback: the appointment goes back to
		// in-progress so completion can be retried.
		if rbErr := s.repo.SetAppointmentStatus(ctx, appointmentID, AppointmentInProgress); rbErr != nil {
			s.logger.Error().Err(rbErr).
				Str("appointment_id", appointmentID.String()).
				Msg("completion compensation failed")
		}
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrQueueBusy
		}
		if errors.Is(err, ErrEntryNotFound) || errors.Is(err, ErrQueueNotFound) ||
			errors.Is(err, ErrInvalidTransition) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrCompletionFailed, err)
	}

	appt.Status = AppointmentCompleted
	state.Appointment = appt
	return &state, nil
}

// updateProviderMetrics feeds a finished consultation into the provider's
// running totals. Best effort; a failure here never fails the completion.
func (s *Service) updateProviderMetrics(ctx context.Context, providerID uuid.UUID, minutes int) {
	provider, err := s.repo.GetProviderByID(ctx, providerID)
	if err != nil {
		s.logger.Warn().Err(err).Str("provider_id", providerID.String()).
			Msg("skipping provider metrics update")
		return
	}

	n := provider.TotalConsultations + 1
	avg := int(math.Round(
		(float64(provider.AvgConsultationMinutes)*float64(n-1) + float64(minutes)) / float64(n),
	))
	if err := s.repo.UpdateProviderMetrics(ctx, providerID, n, avg); err != nil {
		s.logger.Warn().Err(err).Str("provider_id", providerID.String()).
			Msg("failed to update provider metrics")
	}
}

// CancelAppointment is the direct cancellation path, outside the
// consultation state machine. A still-waiting queue entry is marked
// no-show so the FIFO chain skips it; the freed slot label becomes
// bookable again.
func (s *Service) CancelAppointment(ctx context.Context, appointmentID uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.Status != AppointmentScheduled {
		return nil, ErrInvalidTransition
	}

	if err := s.repo.SetAppointmentStatus(ctx, appointmentID, AppointmentCancelled); err != nil {
		return nil, fmt.Errorf("update appointment status: %w", err)
	}
	appt.Status = AppointmentCancelled

	err = s.locker.WithQueueLock(ctx, appt.ProviderID, dayOf(appt.Date), func(lockCtx context.Context) error {
		queue, err := s.repo.LoadQueueByAppointment(lockCtx, appointmentID)
		if err != nil {
			return err
		}
		if err := queue.MarkNoShow(appointmentID); err != nil {
			return err
		}
		return s.repo.SaveQueue(lockCtx, queue)
	})
	if err != nil && !errors.Is(err, ErrQueueNotFound) && !errors.Is(err, ErrEntryNotFound) {
		// The appointment is cancelled either way; the entry stays
		// where it was if the queue side could not be updated.
		s.logger.Warn().Err(err).
			Str("appointment_id", appointmentID.String()).
			Msg("could not mark queue entry no-show on cancellation")
	}

	return appt, nil
}

// RetimeQueue re-chains the waiting entries of a (provider, day) queue
// from now, preserving each entry's admitted duration.
func (s *Service) RetimeQueue(ctx context.Context, providerID uuid.UUID, date time.Time) (*Queue, error) {
	day := dayOf(date)

	var queue *Queue
	err := s.locker.WithQueueLock(ctx, providerID, day, func(lockCtx context.Context) error {
		q, err := s.repo.LoadQueue(lockCtx, providerID, day)
		if err != nil {
			return err
		}
		q.RetimeWaiting(s.now())
		if err := s.repo.SaveQueue(lockCtx, q); err != nil {
			return fmt.Errorf("save queue: %w", err)
		}
		queue = q
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrQueueBusy
		}
		return nil, err
	}

	return queue, nil
}

// GetAppointment returns one appointment with its queue entry, when the
// appointment has been admitted.
func (s *Service) GetAppointment(ctx context.Context, appointmentID uuid.UUID) (*Appointment, *QueueEntry, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, nil, err
	}

	queue, err := s.repo.LoadQueueByAppointment(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, ErrQueueNotFound) {
			return appt, nil, nil
		}
		return nil, nil, err
	}
	entry, ok := queue.EntryFor(appointmentID)
	if !ok {
		return appt, nil, nil
	}
	return appt, entry, nil
}

// QueueSnapshot is the read-only projection of one (provider, day) queue.
func (s *Service) QueueSnapshot(ctx context.Context, providerID uuid.UUID, date time.Time) (*Queue, error) {
	return s.repo.LoadQueue(ctx, providerID, dayOf(date))
}

type DaySchedule struct {
	Provider     *Provider
	Appointments []Appointment
	Queue        *Queue
}

// ProviderDaySchedule returns a provider's appointments for a date along
// with the day's queue, when one exists.
func (s *Service) ProviderDaySchedule(ctx context.Context, providerID uuid.UUID, date time.Time) (*DaySchedule, error) {
	provider, err := s.repo.GetProviderByID(ctx, providerID)
	if err != nil {
		return nil, err
	}

	day := dayOf(date)
	appts, err := s.repo.ListAppointmentsForDay(ctx, providerID, day)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	queue, err := s.repo.LoadQueue(ctx, providerID, day)
	if err != nil && !errors.Is(err, ErrQueueNotFound) {
		return nil, err
	}

	return &DaySchedule{Provider: provider, Appointments: appts, Queue: queue}, nil
}

// TodayQueues lists every queue running today.
func (s *Service) TodayQueues(ctx context.Context) ([]Queue, error) {
	return s.repo.ListQueuesForDay(ctx, dayOf(s.now()))
}

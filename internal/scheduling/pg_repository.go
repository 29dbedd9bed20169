package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Specialty,
		&p.ConsultationMinutes,
		&p.MaxPatientsPerDay,
		&p.TotalConsultations,
		&p.AvgConsultationMinutes,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}

	return &p, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.Email = email
	return &p, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var ticket *int

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.ProviderID,
		&a.Date,
		&a.Department,
		&a.Reason,
		&a.TimeSlot,
		&a.EstimatedStart,
		&a.EstimatedEnd,
		&a.Status,
		&ticket,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Ticket = ticket
	return &a, nil
}

const appointmentColumns = `id, patient_id, provider_id, appointment_date, department, reason,
	time_slot, estimated_start, estimated_end, status, ticket, created_at, updated_at`

const queueColumns = `id, provider_id, queue_date, current_ticket, last_ticket,
	total_completed, avg_consultation_minutes, created_at, updated_at`

func scanQueueHeader(row pgx.Row) (*Queue, error) {
	var q Queue

	err := row.Scan(
		&q.ID,
		&q.ProviderID,
		&q.Date,
		&q.CurrentTicket,
		&q.LastTicket,
		&q.Metrics.TotalCompleted,
		&q.Metrics.AvgConsultationMinutes,
		&q.CreatedAt,
		&q.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQueueNotFound
		}
		return nil, err
	}

	return &q, nil
}

func (r *PgRepository) loadEntries(ctx context.Context, q *Queue) error {
	rows, err := r.pool.Query(ctx, `
		SELECT id, appointment_id, ticket, status, estimated_start, estimated_end,
		       actual_start, actual_end, actual_minutes
		FROM queue_entries
		WHERE queue_id = $1
		ORDER BY position
	`, q.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var e QueueEntry
		if err := rows.Scan(
			&e.ID,
			&e.AppointmentID,
			&e.Ticket,
			&e.Status,
			&e.EstimatedStart,
			&e.EstimatedEnd,
			&e.ActualStart,
			&e.ActualEnd,
			&e.ActualMinutes,
		); err != nil {
			return err
		}
		q.Entries = append(q.Entries, e)
	}

	return rows.Err()
}

// Interface methods

func (r *PgRepository) GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, consultation_minutes, max_patients_per_day,
		       total_consultations, avg_consultation_minutes, created_at, updated_at
		FROM providers
		WHERE id = $1
	`, id)
	return scanProvider(row)
}

func (r *PgRepository) GetAvailabilityTemplate(ctx context.Context, providerID uuid.UUID) (AvailabilityTemplate, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT weekday, start_time, end_time, available
		FROM provider_availability
		WHERE provider_id = $1
		ORDER BY weekday
	`, providerID)
	if err != nil {
		return AvailabilityTemplate{}, err
	}
	defer rows.Close()

	var tmpl AvailabilityTemplate
	for rows.Next() {
		var w AvailabilityWindow
		var weekday int
		if err := rows.Scan(&weekday, &w.StartTime, &w.EndTime, &w.Available); err != nil {
			return AvailabilityTemplate{}, err
		}
		w.Weekday = time.Weekday(weekday)
		tmpl.Windows = append(tmpl.Windows, w)
	}

	return tmpl, rows.Err()
}

func (r *PgRepository) UpdateProviderMetrics(ctx context.Context, id uuid.UUID, totalConsultations, avgMinutes int) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE providers
		SET total_consultations = $2,
		    avg_consultation_minutes = $3,
		    updated_at = now()
		WHERE id = $1
	`, id, totalConsultations, avgMinutes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProviderNotFound
	}
	return nil
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	id := uuid.New()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, provider_id, appointment_date, department,
			reason, time_slot, estimated_start, estimated_end, status, ticket, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULL, now(), now())
		RETURNING `+appointmentColumns+`
	`, id, a.PatientID, a.ProviderID, a.Date, a.Department,
		a.Reason, a.TimeSlot, a.EstimatedStart, a.EstimatedEnd, a.Status)

	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) FindActiveAppointment(ctx context.Context, patientID, providerID uuid.UUID, day time.Time) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		  AND provider_id = $2
		  AND appointment_date = $3
		  AND status IN ('scheduled', 'in-progress')
		LIMIT 1
	`, patientID, providerID, day)
	return scanAppointment(row)
}

func (r *PgRepository) ListBookedLabels(ctx context.Context, providerID uuid.UUID, day time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT time_slot
		FROM appointments
		WHERE provider_id = $1
		  AND appointment_date = $2
		  AND status NOT IN ('cancelled', 'completed')
	`, providerID, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var labels []string
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, err
		}
		labels = append(labels, label)
	}

	return labels, rows.Err()
}

func (r *PgRepository) ListAppointmentsForDay(ctx context.Context, providerID uuid.UUID, day time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1
		  AND appointment_date = $2
		ORDER BY estimated_start
	`, providerID, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	return result, rows.Err()
}

func (r *PgRepository) SetAppointmentStatus(ctx context.Context, id uuid.UUID, status AppointmentStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) SetAppointmentTicket(ctx context.Context, id uuid.UUID, ticket int) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET ticket = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, ticket)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) FindOrCreateQueue(ctx context.Context, providerID uuid.UUID, day time.Time) (*Queue, error) {
	// Insert-then-select rides on the (provider_id, queue_date) uniqueness
	// constraint so concurrent callers converge on the same row.
	_, err := r.pool.Exec(ctx, `
		INSERT INTO queues (id, provider_id, queue_date, current_ticket, last_ticket,
			total_completed, avg_consultation_minutes, created_at, updated_at)
		VALUES ($1, $2, $3, 0, 0, 0, 0, now(), now())
		ON CONFLICT (provider_id, queue_date) DO NOTHING
	`, uuid.New(), providerID, day)
	if err != nil {
		return nil, fmt.Errorf("create queue: %w", err)
	}

	return r.LoadQueue(ctx, providerID, day)
}

func (r *PgRepository) LoadQueue(ctx context.Context, providerID uuid.UUID, day time.Time) (*Queue, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+queueColumns+`
		FROM queues
		WHERE provider_id = $1 AND queue_date = $2
	`, providerID, day)

	q, err := scanQueueHeader(row)
	if err != nil {
		return nil, err
	}
	if err := r.loadEntries(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

func (r *PgRepository) LoadQueueByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Queue, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT q.id, q.provider_id, q.queue_date, q.current_ticket, q.last_ticket,
		       q.total_completed, q.avg_consultation_minutes, q.created_at, q.updated_at
		FROM queues q
		JOIN queue_entries e ON e.queue_id = q.id
		WHERE e.appointment_id = $1
	`, appointmentID)

	q, err := scanQueueHeader(row)
	if err != nil {
		return nil, err
	}
	if err := r.loadEntries(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

// SaveQueue writes the whole aggregate in one transaction: header update,
// entry upserts, and removal of entries rolled back in memory.
func (r *PgRepository) SaveQueue(ctx context.Context, q *Queue) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE queues
		SET current_ticket = $2,
		    last_ticket = $3,
		    total_completed = $4,
		    avg_consultation_minutes = $5,
		    updated_at = now()
		WHERE id = $1
	`, q.ID, q.CurrentTicket, q.LastTicket, q.Metrics.TotalCompleted, q.Metrics.AvgConsultationMinutes)
	if err != nil {
		return fmt.Errorf("update queue: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrQueueNotFound
	}

	kept := make([]uuid.UUID, 0, len(q.Entries))
	for i := range q.Entries {
		kept = append(kept, q.Entries[i].AppointmentID)
	}
	_, err = tx.Exec(ctx, `
		DELETE FROM queue_entries
		WHERE queue_id = $1
		  AND NOT (appointment_id = ANY($2))
	`, q.ID, kept)
	if err != nil {
		return fmt.Errorf("prune queue entries: %w", err)
	}

	for i := range q.Entries {
		e := &q.Entries[i]
		_, err = tx.Exec(ctx, `
			INSERT INTO queue_entries (id, queue_id, appointment_id, ticket, status,
				estimated_start, estimated_end, actual_start, actual_end, actual_minutes, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (queue_id, appointment_id) DO UPDATE
			SET status = EXCLUDED.status,
			    estimated_start = EXCLUDED.estimated_start,
			    estimated_end = EXCLUDED.estimated_end,
			    actual_start = EXCLUDED.actual_start,
			    actual_end = EXCLUDED.actual_end,
			    actual_minutes = EXCLUDED.actual_minutes,
			    position = EXCLUDED.position
		`, e.ID, q.ID, e.AppointmentID, e.Ticket, e.Status,
			e.EstimatedStart, e.EstimatedEnd, e.ActualStart, e.ActualEnd, e.ActualMinutes, i)
		if err != nil {
			return fmt.Errorf("upsert queue entry: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (r *PgRepository) ListQueuesForDay(ctx context.Context, day time.Time) ([]Queue, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+queueColumns+`
		FROM queues
		WHERE queue_date = $1
		ORDER BY created_at
	`, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var headers []Queue
	for rows.Next() {
		q, err := scanQueueHeader(rows)
		if err != nil {
			return nil, err
		}
		headers = append(headers, *q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range headers {
		if err := r.loadEntries(ctx, &headers[i]); err != nil {
			return nil, err
		}
	}

	return headers, nil
}

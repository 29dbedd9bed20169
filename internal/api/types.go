package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/careflow/opd-queueing/internal/scheduling"
)

type BookAppointmentRequest struct {
	PatientID  string `json:"patient_id"`
	ProviderID string `json:"provider_id"`
	Date       string `json:"date"` // YYYY-MM-DD
	Department string `json:"department"`
	Reason     string `json:"reason"`
}

type AppointmentResponse struct {
	ID             uuid.UUID `json:"id"`
	PatientID      uuid.UUID `json:"patient_id"`
	ProviderID     uuid.UUID `json:"provider_id"`
	Date           string    `json:"date"`
	Department     string    `json:"department"`
	Reason         string    `json:"reason"`
	TimeSlot       string    `json:"time_slot"`
	EstimatedStart time.Time `json:"estimated_start"`
	EstimatedEnd   time.Time `json:"estimated_end"`
	Status         string    `json:"status"`
	Ticket         *int      `json:"ticket,omitempty"`
}

type BookAppointmentResponse struct {
	Appointment    AppointmentResponse `json:"appointment"`
	Ticket         int                 `json:"ticket"`
	EstimatedStart time.Time           `json:"estimated_start"`
	EstimatedEnd   time.Time           `json:"estimated_end"`
}

type SlotResponse struct {
	Label string    `json:"label"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type SlotsResponse struct {
	ProviderID uuid.UUID      `json:"provider_id"`
	Date       string         `json:"date"`
	Slots      []SlotResponse `json:"slots"`
}

type QueueEntryResponse struct {
	AppointmentID  uuid.UUID  `json:"appointment_id"`
	Ticket         int        `json:"ticket"`
	Status         string     `json:"status"`
	EstimatedStart time.Time  `json:"estimated_start"`
	EstimatedEnd   time.Time  `json:"estimated_end"`
	ActualStart    *time.Time `json:"actual_start,omitempty"`
	ActualEnd      *time.Time `json:"actual_end,omitempty"`
	ActualMinutes  *int       `json:"actual_minutes,omitempty"`
	IsCurrent      bool       `json:"is_current"`
}

type QueueStatsResponse struct {
	Total                  int `json:"total"`
	Waiting                int `json:"waiting"`
	InProgress             int `json:"in_progress"`
	Completed              int `json:"completed"`
	NoShow                 int `json:"no_show"`
	TotalCompleted         int `json:"total_completed"`
	AvgConsultationMinutes int `json:"avg_consultation_minutes"`
}

type QueueResponse struct {
	ID            uuid.UUID            `json:"id"`
	ProviderID    uuid.UUID            `json:"provider_id"`
	Date          string               `json:"date"`
	CurrentTicket int                  `json:"current_ticket"`
	LastTicket    int                  `json:"last_ticket"`
	Stats         QueueStatsResponse   `json:"stats"`
	Entries       []QueueEntryResponse `json:"entries"`
}

type ConsultationResponse struct {
	Appointment   AppointmentResponse `json:"appointment"`
	Ticket        int                 `json:"ticket"`
	CurrentTicket int                 `json:"current_ticket"`
	NextTicket    int                 `json:"next_ticket,omitempty"`
	ActualStart   *time.Time          `json:"actual_start,omitempty"`
	ActualEnd     *time.Time          `json:"actual_end,omitempty"`
	ActualMinutes *int                `json:"actual_minutes,omitempty"`
}

type ScheduleResponse struct {
	ProviderID   uuid.UUID                        `json:"provider_id"`
	ProviderName string                           `json:"provider_name"`
	Date         string                           `json:"date"`
	Appointments map[string][]AppointmentResponse `json:"appointments"` // grouped by status
	QueueStats   *QueueStatsResponse              `json:"queue_stats,omitempty"`
}

type TodayQueueSummary struct {
	QueueID       uuid.UUID          `json:"queue_id"`
	ProviderID    uuid.UUID          `json:"provider_id"`
	CurrentTicket int                `json:"current_ticket"`
	Stats         QueueStatsResponse `json:"stats"`
}

type TodayQueuesResponse struct {
	Date            string              `json:"date"`
	TotalQueues     int                 `json:"total_queues"`
	TotalWaiting    int                 `json:"total_waiting"`
	TotalInProgress int                 `json:"total_in_progress"`
	TotalCompleted  int                 `json:"total_completed"`
	Queues          []TodayQueueSummary `json:"queues"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

const dateLayout = "2006-01-02"

func toAppointmentResponse(a *scheduling.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:             a.ID,
		PatientID:      a.PatientID,
		ProviderID:     a.ProviderID,
		Date:           a.Date.Format(dateLayout),
		Department:     a.Department,
		Reason:         a.Reason,
		TimeSlot:       a.TimeSlot,
		EstimatedStart: a.EstimatedStart,
		EstimatedEnd:   a.EstimatedEnd,
		Status:         string(a.Status),
		Ticket:         a.Ticket,
	}
}

func toQueueStatsResponse(s scheduling.QueueStats) QueueStatsResponse {
	return QueueStatsResponse{
		Total:                  s.Total,
		Waiting:                s.Waiting,
		InProgress:             s.InProgress,
		Completed:              s.Completed,
		NoShow:                 s.NoShow,
		TotalCompleted:         s.TotalCompleted,
		AvgConsultationMinutes: s.AvgConsultationMinutes,
	}
}

func toQueueResponse(q *scheduling.Queue) QueueResponse {
	resp := QueueResponse{
		ID:            q.ID,
		ProviderID:    q.ProviderID,
		Date:          q.Date.Format(dateLayout),
		CurrentTicket: q.CurrentTicket,
		LastTicket:    q.LastTicket,
		Stats:         toQueueStatsResponse(q.Stats()),
	}
	for _, e := range q.Entries {
		resp.Entries = append(resp.Entries, QueueEntryResponse{
			AppointmentID:  e.AppointmentID,
			Ticket:         e.Ticket,
			Status:         string(e.Status),
			EstimatedStart: e.EstimatedStart,
			EstimatedEnd:   e.EstimatedEnd,
			ActualStart:    e.ActualStart,
			ActualEnd:      e.ActualEnd,
			ActualMinutes:  e.ActualMinutes,
			IsCurrent:      e.Ticket == q.CurrentTicket,
		})
	}
	return resp
}

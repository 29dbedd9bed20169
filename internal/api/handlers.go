package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	redisclient "github.com/careflow/opd-queueing/internal/redis"
	"github.com/careflow/opd-queueing/internal/scheduling"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// parseDateParam reads ?date=YYYY-MM-DD, defaulting to today.
func parseDateParam(r *http.Request) (time.Time, bool) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return time.Now(), true
	}
	d, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

func pathUUID(r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	return id, err == nil
}

func availableSlotsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := pathUUID(r, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "id must be a valid UUID")
			return
		}
		date, ok := parseDateParam(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		slots, err := svc.AvailableSlots(r.Context(), providerID, date)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		resp := SlotsResponse{ProviderID: providerID, Date: date.Format(dateLayout)}
		for _, s := range slots {
			resp.Slots = append(resp.Slots, SlotResponse{Label: s.Label, Start: s.Start, End: s.End})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func bookAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		providerID, err := uuid.Parse(req.ProviderID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}
		date, err := time.Parse(dateLayout, req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		if req.Reason == "" || req.Department == "" {
			writeError(w, http.StatusBadRequest, "missing_fields", "department and reason are required")
			return
		}

		result, err := svc.BookAppointment(r.Context(), scheduling.BookingRequest{
			PatientID:  patientID,
			ProviderID: providerID,
			Date:       date,
			Department: req.Department,
			Reason:     req.Reason,
		})
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, BookAppointmentResponse{
			Appointment:    toAppointmentResponse(result.Appointment),
			Ticket:         result.Ticket,
			EstimatedStart: result.EstimatedStart,
			EstimatedEnd:   result.EstimatedEnd,
		})
	}
}

func getAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(r, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, entry, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		resp := ConsultationResponse{Appointment: toAppointmentResponse(appt)}
		if entry != nil {
			resp.Ticket = entry.Ticket
			resp.ActualStart = entry.ActualStart
			resp.ActualEnd = entry.ActualEnd
			resp.ActualMinutes = entry.ActualMinutes
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func startConsultationHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(r, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		state, err := svc.StartConsultation(r.Context(), id)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, ConsultationResponse{
			Appointment:   toAppointmentResponse(state.Appointment),
			Ticket:        state.Entry.Ticket,
			CurrentTicket: state.CurrentTicket,
			ActualStart:   state.Entry.ActualStart,
		})
	}
}

func completeConsultationHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(r, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		state, err := svc.CompleteConsultation(r.Context(), id)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, ConsultationResponse{
			Appointment:   toAppointmentResponse(state.Appointment),
			Ticket:        state.Entry.Ticket,
			CurrentTicket: state.CurrentTicket,
			NextTicket:    state.NextTicket,
			ActualStart:   state.Entry.ActualStart,
			ActualEnd:     state.Entry.ActualEnd,
			ActualMinutes: state.Entry.ActualMinutes,
		})
	}
}

func cancelAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(r, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.CancelAppointment(r.Context(), id)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func providerQueueHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := pathUUID(r, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "id must be a valid UUID")
			return
		}
		date, ok := parseDateParam(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		queue, err := svc.QueueSnapshot(r.Context(), providerID, date)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toQueueResponse(queue))
	}
}

func retimeQueueHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := pathUUID(r, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "id must be a valid UUID")
			return
		}
		date, ok := parseDateParam(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		queue, err := svc.RetimeQueue(r.Context(), providerID, date)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toQueueResponse(queue))
	}
}

func providerScheduleHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := pathUUID(r, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "id must be a valid UUID")
			return
		}
		date, ok := parseDateParam(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		sched, err := svc.ProviderDaySchedule(r.Context(), providerID, date)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		grouped := map[string][]AppointmentResponse{}
		for i := range sched.Appointments {
			a := toAppointmentResponse(&sched.Appointments[i])
			grouped[a.Status] = append(grouped[a.Status], a)
		}

		resp := ScheduleResponse{
			ProviderID:   sched.Provider.ID,
			ProviderName: sched.Provider.Name,
			Date:         date.Format(dateLayout),
			Appointments: grouped,
		}
		if sched.Queue != nil {
			stats := toQueueStatsResponse(sched.Queue.Stats())
			resp.QueueStats = &stats
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func todayQueuesHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		queues, err := svc.TodayQueues(r.Context())
		if err != nil {
			handleDomainError(w, err)
			return
		}

		resp := TodayQueuesResponse{
			Date:        time.Now().Format(dateLayout),
			TotalQueues: len(queues),
		}
		for i := range queues {
			q := &queues[i]
			stats := toQueueStatsResponse(q.Stats())
			resp.TotalWaiting += stats.Waiting
			resp.TotalInProgress += stats.InProgress
			resp.TotalCompleted += stats.Completed
			resp.Queues = append(resp.Queues, TodayQueueSummary{
				QueueID:       q.ID,
				ProviderID:    q.ProviderID,
				CurrentTicket: q.CurrentTicket,
				Stats:         stats,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleDomainError(w http.ResponseWriter, err error) {
	var outOfTurn *scheduling.OutOfTurnError
	switch {
	case errors.Is(err, scheduling.ErrProviderNotFound):
		writeError(w, http.StatusNotFound, "provider_not_found", err.Error())
	case errors.Is(err, scheduling.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, scheduling.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, scheduling.ErrQueueNotFound):
		writeError(w, http.StatusNotFound, "queue_not_found", err.Error())
	case errors.Is(err, scheduling.ErrEntryNotFound):
		writeError(w, http.StatusNotFound, "entry_not_found", err.Error())
	case errors.As(err, &outOfTurn):
		writeError(w, http.StatusConflict, "out_of_turn", outOfTurn.Error())
	case errors.Is(err, scheduling.ErrDuplicateEntry):
		writeError(w, http.StatusConflict, "duplicate_entry", err.Error())
	case errors.Is(err, scheduling.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, scheduling.ErrQueueBusy),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "queue_busy", "queue is currently being updated, please retry shortly")
	case errors.Is(err, scheduling.ErrNoAvailability):
		writeError(w, http.StatusBadRequest, "no_availability", err.Error())
	case errors.Is(err, scheduling.ErrPastDate):
		writeError(w, http.StatusBadRequest, "past_date", err.Error())
	case errors.Is(err, scheduling.ErrAlreadyBookedDay):
		writeError(w, http.StatusBadRequest, "already_booked", err.Error())
	case errors.Is(err, scheduling.ErrWrongDay):
		writeError(w, http.StatusBadRequest, "wrong_day", err.Error())
	case errors.Is(err, scheduling.ErrCompletionFailed):
		writeError(w, http.StatusInternalServerError, "completion_failed",
			"retry completion; queue ticket numbering is unaffected")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

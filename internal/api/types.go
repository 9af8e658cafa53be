package api

import (
	"time"

	"github.com/clinicore/clinic-scheduling/internal/appointment"
)

type CreateAppointmentRequest struct {
	PatientID int64   `json:"patient_id"`
	DoctorID  int64   `json:"doctor_id"`
	Date      string  `json:"date"` // "2006-01-02"
	Time      string  `json:"time"` // "15:04"
	Notes     *string `json:"notes,omitempty"`
	Type      string  `json:"type,omitempty"` // standard (default) or emergency
}

type TransitionRequest struct {
	Status string `json:"status"`
}

type UpdateAppointmentRequest struct {
	DoctorID *int64  `json:"doctor_id,omitempty"`
	Date     *string `json:"date,omitempty"`
	Time     *string `json:"time,omitempty"`
	Notes    *string `json:"notes,omitempty"`
}

type AppointmentResponse struct {
	ID        int64     `json:"id"`
	PatientID int64     `json:"patient_id"`
	DoctorID  int64     `json:"doctor_id"`
	StartsAt  time.Time `json:"starts_at"`
	Status    string    `json:"status"`
	Type      string    `json:"type"`
	Notes     *string   `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        a.ID,
		PatientID: a.PatientID,
		DoctorID:  a.DoctorID,
		StartsAt:  a.StartsAt,
		Status:    string(a.Status),
		Type:      string(a.Type),
		Notes:     a.Notes,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func toAppointmentList(appts []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, len(appts))
	for i := range appts {
		out[i] = toAppointmentResponse(&appts[i])
	}
	return out
}

type SlotsResponse struct {
	DoctorID int64    `json:"doctor_id"`
	Date     string   `json:"date"`
	Slots    []string `json:"slots"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

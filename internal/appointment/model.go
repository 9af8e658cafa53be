package appointment

import (
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal statuses accept no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type Type string

const (
	TypeStandard  Type = "standard"
	TypeEmergency Type = "emergency"
)

type Appointment struct {
	ID        int64
	PatientID int64
	DoctorID  int64
	StartsAt  time.Time
	Status    Status
	Type      Type
	Notes     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewAppointment carries the fields of an appointment about to be inserted.
type NewAppointment struct {
	PatientID int64
	DoctorID  int64
	StartsAt  time.Time
	Status    Status
	Type      Type
	Notes     *string
}

// Examination is the visit record created when an appointment completes.
// Diagnosis and treatment are filled in later through the examination CRUD
// surface, which lives outside this service.
type Examination struct {
	ID            int64
	AppointmentID int64
	DoctorID      int64
	PatientID     int64
	CreatedAt     time.Time
}

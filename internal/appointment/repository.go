package appointment

import (
	"context"
	"errors"
	"time"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrSlotTaken is returned by Create when the (doctor, time) pair is
	// already held by a non-cancelled appointment, either observed during the
	// availability check or enforced by the storage uniqueness constraint.
	ErrSlotTaken = errors.New("slot already taken")
)

// Repository is the booking ledger: every read and write of appointment rows
// needed by the service.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Appointment, error)

	// ListByDoctorAndDay returns the doctor's appointments whose start time
	// falls within the local calendar day of `day`, regardless of status.
	ListByDoctorAndDay(ctx context.Context, doctorID int64, day time.Time) ([]Appointment, error)

	ListAll(ctx context.Context) ([]Appointment, error)
	ListByPatient(ctx context.Context, patientID int64) ([]Appointment, error)
	ListByDoctor(ctx context.Context, doctorID int64) ([]Appointment, error)

	// Create inserts a new appointment. Implementations must surface a
	// uniqueness violation on (doctor, start time) as ErrSlotTaken.
	Create(ctx context.Context, na NewAppointment) (*Appointment, error)

	// UpdateStatus performs a compare-and-swap: the row is updated only if it
	// still has status `from`. A miss reports ErrAppointmentNotFound.
	UpdateStatus(ctx context.Context, id int64, from, to Status) (*Appointment, error)

	// UpdatePending rewrites doctor, start time and notes of an appointment
	// that is still pending. A miss reports ErrAppointmentNotFound.
	UpdatePending(ctx context.Context, id int64, doctorID int64, startsAt time.Time, notes *string) (*Appointment, error)
}

// ExaminationRecorder creates the visit record when an appointment completes.
type ExaminationRecorder interface {
	RecordExamination(ctx context.Context, appointmentID, doctorID, patientID int64) (*Examination, error)
}

// PatientDirectory persists the patient's continuity-of-care doctor.
type PatientDirectory interface {
	SetPatientDoctor(ctx context.Context, patientID, doctorID int64) error
}

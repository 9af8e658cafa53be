package appointment

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PgExaminationRecorder writes the skeleton examination row created when an
// appointment completes. The insert is idempotent per appointment: a
// completion retried after a partial failure reuses the existing row instead
// of tripping the unique index on appointment_id.
type PgExaminationRecorder struct {
	pool *pgxpool.Pool
}

func NewPgExaminationRecorder(pool *pgxpool.Pool) *PgExaminationRecorder {
	return &PgExaminationRecorder{pool: pool}
}

func (r *PgExaminationRecorder) RecordExamination(ctx context.Context, appointmentID, doctorID, patientID int64) (*Examination, error) {
	var ex Examination

	err := r.pool.QueryRow(ctx, `
		INSERT INTO examinations (appointment_id, doctor_id, patient_id, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (appointment_id) DO UPDATE
		SET doctor_id = EXCLUDED.doctor_id
		RETURNING id, appointment_id, doctor_id, patient_id, created_at
	`, appointmentID, doctorID, patientID).Scan(
		&ex.ID,
		&ex.AppointmentID,
		&ex.DoctorID,
		&ex.PatientID,
		&ex.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert examination: %w", err)
	}

	return &ex, nil
}

// PgPatientDirectory updates the patient's continuity-of-care doctor.
type PgPatientDirectory struct {
	pool *pgxpool.Pool
}

func NewPgPatientDirectory(pool *pgxpool.Pool) *PgPatientDirectory {
	return &PgPatientDirectory{pool: pool}
}

func (d *PgPatientDirectory) SetPatientDoctor(ctx context.Context, patientID, doctorID int64) error {
	tag, err := d.pool.Exec(ctx, `
		UPDATE patients
		SET doctor_id = $2,
		    updated_at = now()
		WHERE id = $1
	`, patientID, doctorID)
	if err != nil {
		return fmt.Errorf("set patient doctor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("patient %d not found", patientID)
	}
	return nil
}

package availability

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrDoctorNotFound = errors.New("doctor not found")

// Directory provides read access to a doctor's current availability rules.
type Directory interface {
	GetDoctorRules(ctx context.Context, doctorID int64) (Rules, error)
}

type PgDirectory struct {
	pool *pgxpool.Pool
}

func NewPgDirectory(pool *pgxpool.Pool) *PgDirectory {
	return &PgDirectory{pool: pool}
}

func (d *PgDirectory) GetDoctorRules(ctx context.Context, doctorID int64) (Rules, error) {
	var (
		workingDays []int32
		hourStart   *string
		hourEnd     *string
		duration    *int32
		dailySlots  []string
	)

	err := d.pool.QueryRow(ctx, `
		SELECT working_days, working_hour_start, working_hour_end, appointment_duration, daily_slots
		FROM doctors
		WHERE id = $1
	`, doctorID).Scan(&workingDays, &hourStart, &hourEnd, &duration, &dailySlots)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rules{}, ErrDoctorNotFound
		}
		return Rules{}, err
	}

	rules := Rules{DailySlots: dailySlots}
	for _, d := range workingDays {
		rules.WorkingDays = append(rules.WorkingDays, int(d))
	}
	if hourStart != nil {
		rules.WorkingHourStart = *hourStart
	}
	if hourEnd != nil {
		rules.WorkingHourEnd = *hourEnd
	}
	if duration != nil {
		rules.AppointmentDuration = int(*duration)
	}

	return rules, nil
}

package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinic-scheduling/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(context.Background(), pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedDoctors(context.Background(), pool, 50); err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	if err := seedPatients(context.Background(), pool, 2000); err != nil {
		log.Fatalf("seed patients: %v", err)
	}

	log.Println("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d doctors", count)

	specialities := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		name := "Dr. " + gofakeit.Name()
		spec := specialities[gofakeit.Number(0, len(specialities)-1)]
		days, start, end, duration, dailySlots := fakeAvailability()

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors
				(name, speciality, working_days, working_hour_start, working_hour_end,
				 appointment_duration, daily_slots, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		`, name, spec, days, start, end, duration, dailySlots)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("doctors seeded")
	return nil
}

// fakeAvailability produces a realistic mix of rule shapes: most doctors get a
// weekday hour window, some publish an explicit slot list instead, and a few
// never set anything up at all.
func fakeAvailability() (days []int32, start, end *string, duration *int32, dailySlots []string) {
	switch gofakeit.Number(0, 9) {
	case 0:
		// Unconfigured doctor, admission falls back to policy.
		return []int32{}, nil, nil, nil, nil

	case 1, 2:
		// Explicit slot list, a short clinic session.
		days = []int32{1, 3, 5}
		slots := []string{"10:00", "10:30", "11:00", "14:00", "14:30"}
		return days, nil, nil, nil, slots

	default:
		// Hour window across the working week.
		days = []int32{1, 2, 3, 4, 5}
		s := "09:00"
		e := []string{"16:00", "17:00", "18:00"}[gofakeit.Number(0, 2)]
		d := []int32{15, 20, 30}[gofakeit.Number(0, 2)]
		return days, &s, &e, &d, nil
	}
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			name := gofakeit.Name()
			email := gofakeit.Email()

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (name, email, created_at, updated_at)
				VALUES ($1, $2, now(), now())
			`, name, email)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return nil
}

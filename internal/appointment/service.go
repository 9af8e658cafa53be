package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicore/clinic-scheduling/internal/auth"
	"github.com/clinicore/clinic-scheduling/internal/availability"
	redisclient "github.com/clinicore/clinic-scheduling/internal/redis"
)

var (
	// ErrUnauthorized means the caller's role may not perform the operation.
	ErrUnauthorized = errors.New("role not permitted for this operation")

	// ErrSlotUnavailable means the requested time is not among the doctor's
	// candidate slots (day off, outside hours, not in the explicit list).
	ErrSlotUnavailable = errors.New("slot unavailable")

	// ErrSlotConflict means the requested time collides with an existing
	// non-cancelled appointment.
	ErrSlotConflict = errors.New("slot conflict")

	// ErrInvalidTransition means the status change is not legal from the
	// appointment's current state.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrBookingContended means another booking for the same doctor and day
	// holds the lock; the caller should retry shortly.
	ErrBookingContended = errors.New("booking in progress for this doctor, please retry")
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// Policy holds the admission-control knobs.
type Policy struct {
	// AllowUnconfiguredDoctors admits standard bookings at any time for a
	// doctor with no availability rules at all.
	AllowUnconfiguredDoctors bool
}

type Service struct {
	repo     Repository
	doctors  availability.Directory
	locker   redisclient.Locker
	exams    ExaminationRecorder
	patients PatientDirectory
	policy   Policy
	log      zerolog.Logger
}

func NewService(
	repo Repository,
	doctors availability.Directory,
	locker redisclient.Locker,
	exams ExaminationRecorder,
	patients PatientDirectory,
	policy Policy,
	log zerolog.Logger,
) *Service {
	return &Service{
		repo:     repo,
		doctors:  doctors,
		locker:   locker,
		exams:    exams,
		patients: patients,
		policy:   policy,
		log:      log,
	}
}

type CreateRequest struct {
	PatientID int64
	DoctorID  int64
	Date      string // "2006-01-02"
	Time      string // "15:04"
	Notes     *string
	Type      Type // empty means standard
}

// Create admits a booking request against the doctor's availability rules and
// existing appointments, then persists it. Standard bookings must land on a
// free generated slot; emergency bookings only need the exact time to be free.
// The check-then-insert section runs under a per doctor-day lock, and the
// ledger's uniqueness constraint backstops the same invariant.
func (s *Service) Create(ctx context.Context, actor auth.Actor, req CreateRequest) (*Appointment, error) {
	if !actor.Role.Valid() {
		return nil, ErrUnauthorized
	}

	aptType := req.Type
	if aptType == "" {
		aptType = TypeStandard
	}
	if aptType != TypeStandard && aptType != TypeEmergency {
		return nil, fmt.Errorf("unknown appointment type %q", req.Type)
	}

	startsAt, err := parseDateTime(req.Date, req.Time)
	if err != nil {
		return nil, err
	}
	clock := startsAt.Format(timeLayout)

	rules, err := s.doctors.GetDoctorRules(ctx, req.DoctorID)
	if err != nil {
		return nil, err
	}

	status := StatusPending
	if aptType == TypeEmergency && actor.Role == auth.RoleDoctor && actor.UserID == req.DoctorID {
		// The treating doctor books emergencies directly as confirmed.
		status = StatusConfirmed
	}

	var created *Appointment

	err = s.locker.WithBookingLock(ctx, req.DoctorID, startsAt, func(lockCtx context.Context) error {
		existing, err := s.repo.ListByDoctorAndDay(lockCtx, req.DoctorID, startsAt)
		if err != nil {
			return fmt.Errorf("list bookings: %w", err)
		}

		taken := takenTimes(existing, 0)

		if aptType == TypeEmergency {
			if _, occupied := taken[clock]; occupied {
				return ErrSlotConflict
			}
		} else {
			if err := s.admitStandard(rules, startsAt, clock, taken); err != nil {
				return err
			}
		}

		appt, err := s.repo.Create(lockCtx, NewAppointment{
			PatientID: req.PatientID,
			DoctorID:  req.DoctorID,
			StartsAt:  startsAt,
			Status:    status,
			Type:      aptType,
			Notes:     req.Notes,
		})
		if err != nil {
			if errors.Is(err, ErrSlotTaken) {
				return ErrSlotConflict
			}
			return err
		}

		created = appt
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrBookingContended
		}
		return nil, err
	}

	s.log.Info().
		Int64("appointment_id", created.ID).
		Int64("doctor_id", created.DoctorID).
		Int64("patient_id", created.PatientID).
		Time("starts_at", created.StartsAt).
		Str("type", string(created.Type)).
		Str("status", string(created.Status)).
		Msg("appointment created")

	return created, nil
}

// admitStandard checks that the requested time is a free candidate slot.
// excludeID (via takenTimes) lets a pending edit keep its own slot.
func (s *Service) admitStandard(rules availability.Rules, startsAt time.Time, clock string, taken map[string]int64) error {
	if !rules.Configured() {
		if !s.policy.AllowUnconfiguredDoctors {
			return fmt.Errorf("%w: doctor is not accepting appointments", ErrSlotUnavailable)
		}
		// Lenient default: no venue restriction configured, admit anything
		// that does not collide.
		if _, occupied := taken[clock]; occupied {
			return ErrSlotConflict
		}
		return nil
	}

	if !rules.WorksOn(availability.ISOWeekday(startsAt)) {
		return fmt.Errorf("%w: doctor does not work on this day", ErrSlotUnavailable)
	}

	candidates := availability.SlotsForDate(rules, startsAt)
	if !containsSlot(candidates, clock) {
		if rules.WorkingHourStart != "" && rules.WorkingHourEnd != "" {
			return fmt.Errorf("%w: outside working hours %s-%s",
				ErrSlotUnavailable, rules.WorkingHourStart, rules.WorkingHourEnd)
		}
		return fmt.Errorf("%w: time is not a bookable slot", ErrSlotUnavailable)
	}

	if _, occupied := taken[clock]; occupied {
		return ErrSlotConflict
	}

	return nil
}

// AvailableSlots returns the doctor's free slots for a date: generated
// candidates minus times held by non-cancelled appointments.
func (s *Service) AvailableSlots(ctx context.Context, doctorID int64, date string) ([]string, error) {
	day, err := time.ParseInLocation(dateLayout, date, time.Local)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", date, err)
	}

	rules, err := s.doctors.GetDoctorRules(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	candidates := availability.SlotsForDate(rules, day)
	if len(candidates) == 0 {
		return nil, nil
	}

	existing, err := s.repo.ListByDoctorAndDay(ctx, doctorID, day)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	taken := takenTimes(existing, 0)

	free := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if _, occupied := taken[c]; !occupied {
			free = append(free, c)
		}
	}
	return free, nil
}

// Transition moves an appointment through the status state machine. Reaching
// completed records the examination and binds the patient to the treating
// doctor.
func (s *Service) Transition(ctx context.Context, actor auth.Actor, id int64, target Status) (*Appointment, error) {
	if !actor.Role.Valid() {
		return nil, ErrUnauthorized
	}
	if !target.Valid() {
		return nil, fmt.Errorf("unknown status %q", target)
	}

	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if actor.Role == auth.RolePatient {
		// Patients may only touch their own pending appointments.
		if appt.PatientID != actor.UserID || appt.Status != StatusPending {
			return nil, ErrUnauthorized
		}
	}
	if !RoleMayTransition(actor.Role, appt.Status, target) {
		return nil, ErrUnauthorized
	}
	if !CanTransition(appt.Status, target) {
		return nil, ErrInvalidTransition
	}

	updated, err := s.repo.UpdateStatus(ctx, id, appt.Status, target)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// The status moved underneath us; the transition we validated no
			// longer applies.
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("update status: %w", err)
	}

	s.log.Info().
		Int64("appointment_id", updated.ID).
		Str("from", string(appt.Status)).
		Str("to", string(target)).
		Str("role", string(actor.Role)).
		Msg("appointment transitioned")

	if target == StatusCompleted {
		if err := s.onCompleted(ctx, updated); err != nil {
			// An appointment must not sit in completed without its
			// examination. Roll the status back so the completion can be
			// retried once the collaborator recovers.
			if _, rbErr := s.repo.UpdateStatus(ctx, id, StatusCompleted, appt.Status); rbErr != nil {
				s.log.Error().
					Err(rbErr).
					Int64("appointment_id", id).
					Msg("status rollback after failed completion side effects")
			}
			return nil, err
		}
	}

	return updated, nil
}

// onCompleted runs the completion side effects. The compare-and-swap in
// Transition guarantees only one caller ever reaches this for an appointment.
func (s *Service) onCompleted(ctx context.Context, appt *Appointment) error {
	ex, err := s.exams.RecordExamination(ctx, appt.ID, appt.DoctorID, appt.PatientID)
	if err != nil {
		return fmt.Errorf("record examination: %w", err)
	}

	if err := s.patients.SetPatientDoctor(ctx, appt.PatientID, appt.DoctorID); err != nil {
		return fmt.Errorf("set patient doctor: %w", err)
	}

	s.log.Info().
		Int64("appointment_id", appt.ID).
		Int64("examination_id", ex.ID).
		Int64("patient_id", appt.PatientID).
		Int64("doctor_id", appt.DoctorID).
		Msg("appointment completed")

	return nil
}

type UpdatePendingRequest struct {
	DoctorID *int64
	Date     *string // "2006-01-02"
	Time     *string // "15:04"
	Notes    *string
}

// UpdatePending lets a patient (for their own appointment) or a secretary
// re-request a pending appointment: new doctor, date or time re-runs the
// standard admission check before committing.
func (s *Service) UpdatePending(ctx context.Context, actor auth.Actor, id int64, req UpdatePendingRequest) (*Appointment, error) {
	switch actor.Role {
	case auth.RolePatient, auth.RoleSecretary:
	default:
		return nil, ErrUnauthorized
	}

	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == auth.RolePatient && appt.PatientID != actor.UserID {
		return nil, ErrUnauthorized
	}
	if appt.Status != StatusPending {
		return nil, ErrInvalidTransition
	}

	doctorID := appt.DoctorID
	if req.DoctorID != nil {
		doctorID = *req.DoctorID
	}

	startsAt := appt.StartsAt
	date := startsAt.Format(dateLayout)
	clock := startsAt.Format(timeLayout)
	if req.Date != nil {
		date = *req.Date
	}
	if req.Time != nil {
		clock = *req.Time
	}
	startsAt, err = parseDateTime(date, clock)
	if err != nil {
		return nil, err
	}
	clock = startsAt.Format(timeLayout)

	notes := appt.Notes
	if req.Notes != nil {
		notes = req.Notes
	}

	rescheduled := doctorID != appt.DoctorID || !startsAt.Equal(appt.StartsAt)

	var updated *Appointment

	commit := func(commitCtx context.Context) error {
		if rescheduled {
			rules, err := s.doctors.GetDoctorRules(commitCtx, doctorID)
			if err != nil {
				return err
			}
			existing, err := s.repo.ListByDoctorAndDay(commitCtx, doctorID, startsAt)
			if err != nil {
				return fmt.Errorf("list bookings: %w", err)
			}
			taken := takenTimes(existing, appt.ID)
			if err := s.admitStandard(rules, startsAt, clock, taken); err != nil {
				return err
			}
		}

		a, err := s.repo.UpdatePending(commitCtx, id, doctorID, startsAt, notes)
		if err != nil {
			if errors.Is(err, ErrSlotTaken) {
				return ErrSlotConflict
			}
			if errors.Is(err, ErrAppointmentNotFound) {
				return ErrInvalidTransition
			}
			return err
		}
		updated = a
		return nil
	}

	if rescheduled {
		err = s.locker.WithBookingLock(ctx, doctorID, startsAt, commit)
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrBookingContended
		}
	} else {
		err = commit(ctx)
	}
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("appointment_id", updated.ID).
		Bool("rescheduled", rescheduled).
		Msg("pending appointment updated")

	return updated, nil
}

// Get fetches one appointment. Patients may only see their own.
func (s *Service) Get(ctx context.Context, actor auth.Actor, id int64) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == auth.RolePatient && appt.PatientID != actor.UserID {
		return nil, ErrUnauthorized
	}
	return appt, nil
}

// ListAll returns every appointment; staff only.
func (s *Service) ListAll(ctx context.Context, actor auth.Actor) ([]Appointment, error) {
	if !actor.Role.Staff() {
		return nil, ErrUnauthorized
	}
	return s.repo.ListAll(ctx)
}

// ListForPatient returns a patient's appointments: the patient themselves or
// staff.
func (s *Service) ListForPatient(ctx context.Context, actor auth.Actor, patientID int64) ([]Appointment, error) {
	if actor.Role == auth.RolePatient && actor.UserID != patientID {
		return nil, ErrUnauthorized
	}
	if !actor.Role.Valid() {
		return nil, ErrUnauthorized
	}
	return s.repo.ListByPatient(ctx, patientID)
}

// ListForDoctor returns a doctor's schedule: the doctor themselves or a
// secretary.
func (s *Service) ListForDoctor(ctx context.Context, actor auth.Actor, doctorID int64) ([]Appointment, error) {
	if actor.Role == auth.RoleDoctor && actor.UserID == doctorID {
		return s.repo.ListByDoctor(ctx, doctorID)
	}
	if actor.Role == auth.RoleSecretary {
		return s.repo.ListByDoctor(ctx, doctorID)
	}
	return nil, ErrUnauthorized
}

// takenTimes maps "15:04" clock strings of non-cancelled appointments to the
// holding appointment id. Cancelled appointments free their slot. excludeID
// skips one appointment, used when it is being rescheduled.
func takenTimes(appts []Appointment, excludeID int64) map[string]int64 {
	taken := make(map[string]int64, len(appts))
	for _, a := range appts {
		if a.Status == StatusCancelled {
			continue
		}
		if excludeID != 0 && a.ID == excludeID {
			continue
		}
		taken[a.StartsAt.Format(timeLayout)] = a.ID
	}
	return taken
}

func containsSlot(slots []string, clock string) bool {
	for _, s := range slots {
		if s == clock {
			return true
		}
	}
	return false
}

func parseDateTime(date, clock string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout+" "+timeLayout, date+" "+clock, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date/time %q %q: %w", date, clock, err)
	}
	return t, nil
}

package appointment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/clinic-scheduling/internal/auth"
	"github.com/clinicore/clinic-scheduling/internal/availability"
)

// ---------- fakes ----------

type fakeRepo struct {
	mu     sync.Mutex
	nextID int64
	appts  map[int64]*Appointment
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{appts: make(map[int64]*Appointment)}
}

func (r *fakeRepo) GetByID(_ context.Context, id int64) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *fakeRepo) ListByDoctorAndDay(_ context.Context, doctorID int64, day time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	nextDay := dayStart.AddDate(0, 0, 1)

	var out []Appointment
	for _, a := range r.appts {
		if a.DoctorID == doctorID && !a.StartsAt.Before(dayStart) && a.StartsAt.Before(nextDay) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListAll(_ context.Context) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.appts {
		out = append(out, *a)
	}
	return out, nil
}

func (r *fakeRepo) ListByPatient(_ context.Context, patientID int64) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.appts {
		if a.PatientID == patientID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListByDoctor(_ context.Context, doctorID int64) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.appts {
		if a.DoctorID == doctorID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *fakeRepo) Create(_ context.Context, na NewAppointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Mirror of the partial unique index on (doctor_id, starts_at).
	for _, a := range r.appts {
		if a.DoctorID == na.DoctorID && a.StartsAt.Equal(na.StartsAt) && a.Status != StatusCancelled {
			return nil, ErrSlotTaken
		}
	}

	r.nextID++
	now := time.Now()
	a := &Appointment{
		ID:        r.nextID,
		PatientID: na.PatientID,
		DoctorID:  na.DoctorID,
		StartsAt:  na.StartsAt,
		Status:    na.Status,
		Type:      na.Type,
		Notes:     na.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.appts[a.ID] = a
	cp := *a
	return &cp, nil
}

func (r *fakeRepo) UpdateStatus(_ context.Context, id int64, from, to Status) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (r *fakeRepo) UpdatePending(_ context.Context, id int64, doctorID int64, startsAt time.Time, notes *string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok || a.Status != StatusPending {
		return nil, ErrAppointmentNotFound
	}
	for _, other := range r.appts {
		if other.ID != id && other.DoctorID == doctorID && other.StartsAt.Equal(startsAt) && other.Status != StatusCancelled {
			return nil, ErrSlotTaken
		}
	}
	a.DoctorID = doctorID
	a.StartsAt = startsAt
	a.Notes = notes
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

type fakeDirectory struct {
	mu    sync.Mutex
	rules map[int64]availability.Rules
	calls int
}

func (d *fakeDirectory) GetDoctorRules(_ context.Context, doctorID int64) (availability.Rules, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	r, ok := d.rules[doctorID]
	if !ok {
		return availability.Rules{}, availability.ErrDoctorNotFound
	}
	return r, nil
}

// fakeLocker serializes all critical sections, like the Redis lock does for a
// single doctor-day.
type fakeLocker struct {
	mu sync.Mutex
}

func (l *fakeLocker) WithBookingLock(ctx context.Context, _ int64, _ time.Time, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(ctx)
}

type fakeRecorder struct {
	mu       sync.Mutex
	calls    int
	failNext error
}

func (f *fakeRecorder) RecordExamination(_ context.Context, appointmentID, doctorID, patientID int64) (*Examination, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return nil, err
	}
	f.calls++
	return &Examination{
		ID:            int64(f.calls),
		AppointmentID: appointmentID,
		DoctorID:      doctorID,
		PatientID:     patientID,
		CreatedAt:     time.Now(),
	}, nil
}

type fakePatients struct {
	mu       sync.Mutex
	calls    int
	doctorOf map[int64]int64
}

func (f *fakePatients) SetPatientDoctor(_ context.Context, patientID, doctorID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.doctorOf == nil {
		f.doctorOf = make(map[int64]int64)
	}
	f.doctorOf[patientID] = doctorID
	return nil
}

type fixture struct {
	svc      *Service
	repo     *fakeRepo
	dir      *fakeDirectory
	recorder *fakeRecorder
	patients *fakePatients
}

func newFixture(policy Policy) *fixture {
	repo := newFakeRepo()
	dir := &fakeDirectory{rules: make(map[int64]availability.Rules)}
	recorder := &fakeRecorder{}
	patients := &fakePatients{}
	svc := NewService(repo, dir, &fakeLocker{}, recorder, patients, policy, zerolog.Nop())
	return &fixture{svc: svc, repo: repo, dir: dir, recorder: recorder, patients: patients}
}

var (
	patient   = auth.Actor{UserID: 10, Role: auth.RolePatient}
	doctor    = auth.Actor{UserID: 1, Role: auth.RoleDoctor}
	secretary = auth.Actor{UserID: 20, Role: auth.RoleSecretary}

	officeHours = availability.Rules{
		WorkingHourStart:    "09:00",
		WorkingHourEnd:      "10:00",
		AppointmentDuration: 15,
	}
)

func standardRequest(clock string) CreateRequest {
	return CreateRequest{
		PatientID: 10,
		DoctorID:  1,
		Date:      "2024-05-01", // a Wednesday
		Time:      clock,
	}
}

// ---------- admission ----------

func TestCreateAdmitsFreeSlot(t *testing.T) {
	f := newFixture(Policy{AllowUnconfiguredDoctors: true})
	f.dir.rules[1] = officeHours

	appt, err := f.svc.Create(context.Background(), patient, standardRequest("09:15"))
	require.NoError(t, err)

	assert.Equal(t, StatusPending, appt.Status)
	assert.Equal(t, TypeStandard, appt.Type)
	assert.Equal(t, "09:15", appt.StartsAt.Format("15:04"))
}

func TestCreateRejectsTimeOutsideHours(t *testing.T) {
	f := newFixture(Policy{AllowUnconfiguredDoctors: true})
	f.dir.rules[1] = officeHours

	_, err := f.svc.Create(context.Background(), patient, standardRequest("11:00"))
	require.ErrorIs(t, err, ErrSlotUnavailable)
	assert.Contains(t, err.Error(), "09:00-10:00")
}

func TestCreateRejectsDayOff(t *testing.T) {
	f := newFixture(Policy{AllowUnconfiguredDoctors: true})
	rules := officeHours
	rules.WorkingDays = []int{1, 2} // Monday, Tuesday only
	f.dir.rules[1] = rules

	_, err := f.svc.Create(context.Background(), patient, standardRequest("09:00"))
	require.ErrorIs(t, err, ErrSlotUnavailable)
	assert.Contains(t, err.Error(), "does not work")
}

func TestCreateLenientDefaultForUnconfiguredDoctor(t *testing.T) {
	f := newFixture(Policy{AllowUnconfiguredDoctors: true})
	f.dir.rules[1] = availability.Rules{}

	// No generated slots...
	slots, err := f.svc.AvailableSlots(context.Background(), 1, "2024-05-01")
	require.NoError(t, err)
	assert.Empty(t, slots)

	// ...yet a standard booking at any time is admitted.
	appt, err := f.svc.Create(context.Background(), patient, standardRequest("03:30"))
	require.NoError(t, err)
	assert.Equal(t, StatusPending, appt.Status)
}

func TestCreateUnconfiguredDoctorRejectedWhenPolicyDisabled(t *testing.T) {
	f := newFixture(Policy{AllowUnconfiguredDoctors: false})
	f.dir.rules[1] = availability.Rules{}

	_, err := f.svc.Create(context.Background(), patient, standardRequest("09:00"))
	require.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestCreateConflictFreedByCancellation(t *testing.T) {
	f := newFixture(Policy{AllowUnconfiguredDoctors: true})
	f.dir.rules[1] = officeHours

	first, err := f.svc.Create(context.Background(), patient, standardRequest("09:00"))
	require.NoError(t, err)

	// Same slot is rejected while the first booking stands.
	other := standardRequest("09:00")
	other.PatientID = 11
	_, err = f.svc.Create(context.Background(), auth.Actor{UserID: 11, Role: auth.RolePatient}, other)
	require.ErrorIs(t, err, ErrSlotConflict)

	// Cancelling frees the slot.
	_, err = f.svc.Transition(context.Background(), patient, first.ID, StatusCancelled)
	require.NoError(t, err)

	_, err = f.svc.Create(context.Background(), auth.Actor{UserID: 11, Role: auth.RolePatient}, other)
	require.NoError(t, err)
}

func TestCreateUnknownRoleRejectedBeforeSlotWork(t *testing.T) {
	f := newFixture(Policy{AllowUnconfiguredDoctors: true})
	f.dir.rules[1] = officeHours

	_, err := f.svc.Create(context.Background(), auth.Actor{UserID: 99, Role: "admin"}, standardRequest("09:00"))
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Zero(t, f.dir.calls, "directory must not be consulted for rejected callers")
}

func TestCreateUnknownDoctor(t *testing.T) {
	f := newFixture(Policy{AllowUnconfiguredDoctors: true})

	_, err := f.svc.Create(context.Background(), patient, standardRequest("09:00"))
	require.ErrorIs(t, err, availability.ErrDoctorNotFound)
}

// ---------- emergency path ----------

func TestEmergencyBypassesSlotMembership(t *testing.T) {
	f := newFixture(Policy{AllowUnconfiguredDoctors: true})
	f.dir.rules[1] = officeHours

	req := standardRequest("22:45") // far outside the 09:00-10:00 window
	req.Type = TypeEmergency

	appt, err := f.svc.Create(context.Background(), doctor, req)
	require.NoError(t, err)
	assert.Equal(t, TypeEmergency, appt.Type)
	assert.Equal(t, StatusConfirmed, appt.Status, "treating doctor's emergency starts confirmed")
}

func TestEmergencyByDoctorForColleagueStaysPending(t *testing.T) {
	f := newFixture(Policy{AllowUnconfiguredDoctors: true})
	f.dir.rules[1] = officeHours

	req := standardRequest("22:45")
	req.Type = TypeEmergency

	otherDoctor := auth.Actor{UserID: 2, Role: auth.RoleDoctor}
	appt, err := f.svc.Create(context.Background(), otherDoctor, req)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, appt.Status)
}

func TestEmergencyStillChecksExactOccupancy(t *testing.T) {
	f := newFixture(Policy{AllowUnconfiguredDoctors: true})
	f.dir.rules[1] = officeHours

	_, err := f.svc.Create(context.Background(), patient, standardRequest("09:30"))
	require.NoError(t, err)

	req := standardRequest("09:30")
	req.Type = TypeEmergency
	_, err = f.svc.Create(context.Background(), doctor, req)
	require.ErrorIs(t, err, ErrSlotConflict)
}

// ---------- available slots ----------

func TestAvailableSlotsWindowAndSubtraction(t *testing.T) {
	f := newFixture(Policy{AllowUnconfiguredDoctors: true})
	f.dir.rules[1] = officeHours

	slots, err := f.svc.AvailableSlots(context.Background(), 1, "2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "09:15", "09:30", "09:45"}, slots)

	// Idempotent with no intervening bookings.
	again, err := f.svc.AvailableSlots(context.Background(), 1, "2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, slots, again)

	_, err = f.svc.Create(context.Background(), patient, standardRequest("09:15"))
	require.NoError(t, err)

	slots, err = f.svc.AvailableSlots(context.Background(), 1, "2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "09:30", "09:45"}, slots)
}

func TestAvailableSlotsEmptyOffDay(t *testing.T) {
	f := newFixture(Policy{AllowUnconfiguredDoctors: true})
	rules := officeHours
	rules.WorkingDays = []int{6, 7}
	f.dir.rules[1] = rules

	slots, err := f.svc.AvailableSlots(context.Background(), 1, "2024-05-01")
	require.NoError(t, err)
	assert.Empty(t, slots)
}

// ---------- transitions ----------

func TestPatientMayCancelOwnPendingOnly(t *testing.T) {
	f := newFixture(Policy{AllowUnconfiguredDoctors: true})
	f.dir.rules[1] = officeHours

	appt, err := f.svc.Create(context.Background(), patient, standardRequest("09:00"))
	require.NoError(t, err)

	// A different patient may not cancel it.
	stranger := auth.Actor{UserID: 77, Role: auth.RolePatient}
	_, err = f.svc.Transition(context.Background(), stranger, appt.ID, StatusCancelled)
	require.ErrorIs(t, err, ErrUnauthorized)

	// The owner may.
	got, err := f.svc.Transition(context.Background(), patient, appt.ID, StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
}

func TestPatientMayNotTouchConfirmed(t *testing.T) {
	f := newFixture(Policy{AllowUnconfiguredDoctors: true})
	f.dir.rules[1] = officeHours

	appt, err := f.svc.Create(context.Background(), patient, standardRequest("09:00"))
	require.NoError(t, err)
	_, err = f.svc.Transition(context.Background(), doctor, appt.ID, StatusConfirmed)
	require.NoError(t, err)

	_, err = f.svc.Transition(context.Background(), patient, appt.ID, StatusCancelled)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestStaffTransitionsAndTerminalStates(t *testing.T) {
	f := newFixture(Policy{AllowUnconfiguredDoctors: true})
	f.dir.rules[1] = officeHours

	appt, err := f.svc.Create(context.Background(), secretary, standardRequest("09:00"))
	require.NoError(t, err)

	_, err = f.svc.Transition(context.Background(), secretary, appt.ID, StatusCompleted)
	require.ErrorIs(t, err, ErrInvalidTransition, "pending cannot jump to completed")

	confirmed, err := f.svc.Transition(context.Background(), secretary, appt.ID, StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)

	cancelled, err := f.svc.Transition(context.Background(), doctor, appt.ID, StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	_, err = f.svc.Transition(context.Background(), doctor, appt.ID, StatusConfirmed)
	require.ErrorIs(t, err, ErrInvalidTransition, "cancelled is terminal")
}

func TestTransitionNotFound(t *testing.T) {
	f := newFixture(Policy{AllowUnconfiguredDoctors: true})

	_, err := f.svc.Transition(context.Background(), doctor, 404, StatusConfirmed)
	require.ErrorIs(t, err, ErrAppointmentNotFound)
}

// ---------- completion side effects ----------

func TestCompletionRecordsExaminationAndContinuityOnce(t *testing.T) {
	f := newFixture(Policy{AllowUnconfiguredDoctors: true})
	f.dir.rules[1] = officeHours

	appt, err := f.svc.Create(context.Background(), patient, standardRequest("09:00"))
	require.NoError(t, err)
	_, err = f.svc.Transition(context.Background(), doctor, appt.ID, StatusConfirmed)
	require.NoError(t, err)

	done, err := f.svc.Transition(context.Background(), doctor, appt.ID, StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)

	assert.Equal(t, 1, f.recorder.calls)
	assert.Equal(t, 1, f.patients.calls)
	assert.Equal(t, int64(1), f.patients.doctorOf[10], "continuity field set to treating doctor")

	// Retrying the completion must fail and trigger nothing further.
	_, err = f.svc.Transition(context.Background(), doctor, appt.ID, StatusCompleted)
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, 1, f.recorder.calls)
	assert.Equal(t, 1, f.patients.calls)
}

func TestCompletionSideEffectFailureRollsStatusBack(t *testing.T) {
	f := newFixture(Policy{AllowUnconfiguredDoctors: true})
	f.dir.rules[1] = officeHours

	appt, err := f.svc.Create(context.Background(), patient, standardRequest("09:00"))
	require.NoError(t, err)
	_, err = f.svc.Transition(context.Background(), doctor, appt.ID, StatusConfirmed)
	require.NoError(t, err)

	f.recorder.failNext = errors.New("examination store unavailable")
	_, err = f.svc.Transition(context.Background(), doctor, appt.ID, StatusCompleted)
	require.Error(t, err)

	// The appointment must not sit in completed without its examination.
	got, err := f.repo.GetByID(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)
	assert.Zero(t, f.recorder.calls)
	assert.Zero(t, f.patients.calls)

	// Retrying once the collaborator recovers completes and records once.
	done, err := f.svc.Transition(context.Background(), doctor, appt.ID, StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.Equal(t, 1, f.recorder.calls)
	assert.Equal(t, 1, f.patients.calls)
}

// ---------- pending edits ----------

func TestUpdatePendingReschedulesWithAdmission(t *testing.T) {
	f := newFixture(Policy{AllowUnconfiguredDoctors: true})
	f.dir.rules[1] = officeHours

	appt, err := f.svc.Create(context.Background(), patient, standardRequest("09:00"))
	require.NoError(t, err)

	// Rescheduling to a non-slot is rejected.
	badTime := "11:00"
	_, err = f.svc.UpdatePending(context.Background(), patient, appt.ID, UpdatePendingRequest{Time: &badTime})
	require.ErrorIs(t, err, ErrSlotUnavailable)

	// Rescheduling to a free slot succeeds.
	goodTime := "09:45"
	updated, err := f.svc.UpdatePending(context.Background(), patient, appt.ID, UpdatePendingRequest{Time: &goodTime})
	require.NoError(t, err)
	assert.Equal(t, "09:45", updated.StartsAt.Format("15:04"))
}

func TestUpdatePendingNotesOnlyKeepsOwnSlot(t *testing.T) {
	f := newFixture(Policy{AllowUnconfiguredDoctors: true})
	f.dir.rules[1] = officeHours

	appt, err := f.svc.Create(context.Background(), patient, standardRequest("09:00"))
	require.NoError(t, err)

	notes := "bring previous scans"
	updated, err := f.svc.UpdatePending(context.Background(), patient, appt.ID, UpdatePendingRequest{Notes: &notes})
	require.NoError(t, err)
	require.NotNil(t, updated.Notes)
	assert.Equal(t, notes, *updated.Notes)
	assert.Equal(t, appt.StartsAt, updated.StartsAt)
}

func TestUpdatePendingRejectsTakenTarget(t *testing.T) {
	f := newFixture(Policy{AllowUnconfiguredDoctors: true})
	f.dir.rules[1] = officeHours

	appt, err := f.svc.Create(context.Background(), patient, standardRequest("09:00"))
	require.NoError(t, err)

	other := standardRequest("09:30")
	other.PatientID = 11
	_, err = f.svc.Create(context.Background(), auth.Actor{UserID: 11, Role: auth.RolePatient}, other)
	require.NoError(t, err)

	takenTime := "09:30"
	_, err = f.svc.UpdatePending(context.Background(), patient, appt.ID, UpdatePendingRequest{Time: &takenTime})
	require.ErrorIs(t, err, ErrSlotConflict)
}

func TestUpdatePendingGuards(t *testing.T) {
	f := newFixture(Policy{AllowUnconfiguredDoctors: true})
	f.dir.rules[1] = officeHours

	appt, err := f.svc.Create(context.Background(), patient, standardRequest("09:00"))
	require.NoError(t, err)

	notes := "n"

	// Doctors do not edit pending appointments.
	_, err = f.svc.UpdatePending(context.Background(), doctor, appt.ID, UpdatePendingRequest{Notes: &notes})
	require.ErrorIs(t, err, ErrUnauthorized)

	// Other patients do not either.
	stranger := auth.Actor{UserID: 77, Role: auth.RolePatient}
	_, err = f.svc.UpdatePending(context.Background(), stranger, appt.ID, UpdatePendingRequest{Notes: &notes})
	require.ErrorIs(t, err, ErrUnauthorized)

	// Once confirmed, the appointment is no longer editable.
	_, err = f.svc.Transition(context.Background(), doctor, appt.ID, StatusConfirmed)
	require.NoError(t, err)
	_, err = f.svc.UpdatePending(context.Background(), patient, appt.ID, UpdatePendingRequest{Notes: &notes})
	require.ErrorIs(t, err, ErrInvalidTransition)
}

// ---------- reads ----------

func TestReadAuthorization(t *testing.T) {
	f := newFixture(Policy{AllowUnconfiguredDoctors: true})
	f.dir.rules[1] = officeHours

	appt, err := f.svc.Create(context.Background(), patient, standardRequest("09:00"))
	require.NoError(t, err)

	_, err = f.svc.Get(context.Background(), patient, appt.ID)
	require.NoError(t, err)

	stranger := auth.Actor{UserID: 77, Role: auth.RolePatient}
	_, err = f.svc.Get(context.Background(), stranger, appt.ID)
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.svc.ListAll(context.Background(), patient)
	require.ErrorIs(t, err, ErrUnauthorized)

	all, err := f.svc.ListAll(context.Background(), secretary)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = f.svc.ListForPatient(context.Background(), stranger, 10)
	require.ErrorIs(t, err, ErrUnauthorized)

	mine, err := f.svc.ListForPatient(context.Background(), patient, 10)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	_, err = f.svc.ListForDoctor(context.Background(), auth.Actor{UserID: 2, Role: auth.RoleDoctor}, 1)
	require.ErrorIs(t, err, ErrUnauthorized)

	sched, err := f.svc.ListForDoctor(context.Background(), doctor, 1)
	require.NoError(t, err)
	assert.Len(t, sched, 1)
}

// ---------- concurrency ----------

func TestConcurrentIdenticalBookingsAdmitExactlyOne(t *testing.T) {
	f := newFixture(Policy{AllowUnconfiguredDoctors: true})
	f.dir.rules[1] = officeHours

	const attempts = 16
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			req := standardRequest("09:00")
			req.PatientID = int64(100 + n)
			actor := auth.Actor{UserID: req.PatientID, Role: auth.RolePatient}
			_, err := f.svc.Create(context.Background(), actor, req)
			results <- err
		}(i)
	}

	wg.Wait()
	close(results)

	var successes, conflicts int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrSlotConflict), errors.Is(err, ErrSlotUnavailable), errors.Is(err, ErrBookingContended):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, conflicts)
}

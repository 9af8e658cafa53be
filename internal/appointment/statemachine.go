package appointment

import "github.com/clinicore/clinic-scheduling/internal/auth"

// transitions is the full status graph. Completed and cancelled are terminal.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether the status graph allows from -> to.
func CanTransition(from, to Status) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// RoleMayTransition reports whether the role is allowed to trigger from -> to,
// assuming the transition itself is legal. Doctors and secretaries may drive
// every legal transition; a patient may only cancel a pending appointment.
// Ownership of the appointment is checked by the service, not here.
func RoleMayTransition(role auth.Role, from, to Status) bool {
	switch role {
	case auth.RoleDoctor, auth.RoleSecretary:
		return true
	case auth.RolePatient:
		return from == StatusPending && to == StatusCancelled
	}
	return false
}

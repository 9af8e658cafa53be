package auth

// Role is the caller's position in the clinic. Roles are assigned by the
// identity provider; this service only verifies and consumes them.
type Role string

const (
	RolePatient   Role = "patient"
	RoleDoctor    Role = "doctor"
	RoleSecretary Role = "secretary"
)

func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleDoctor, RoleSecretary:
		return true
	}
	return false
}

// Staff reports whether the role belongs to clinic personnel.
func (r Role) Staff() bool {
	return r == RoleDoctor || r == RoleSecretary
}

// Actor identifies who is performing an operation. For patients UserID is the
// patient id, for doctors the doctor id.
type Actor struct {
	UserID int64
	Role   Role
}

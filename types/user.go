package types

// Role is the authorization level of a user.
type Role string

const (
	RoleAdmin    Role = "Admin"
	RoleManager  Role = "Manager"
	RoleStandard Role = "Standard"
)

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleStandard:
		return true
	}
	return false
}

// User represents an account in the system.
// It contains identity, role, and department assignment.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Username is the unique login name chosen by the user.
	Username string `json:"username" db:"username"`

	// Role indicates the user's authorization level
	// within the system (Admin, Manager or Standard).
	Role Role `json:"role" db:"role"`

	// DepartmentID is the department the user belongs to, if any.
	// Admins may have no department.
	DepartmentID *int `json:"department_id" db:"department_id"`

	// DepartmentName is the resolved department name, populated on reads.
	DepartmentName string `json:"department_name,omitempty" db:"department_name"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`
}

// Department is a named partition owner. Each department owns one
// shard of orders and scans.
type Department struct {
	ID   int    `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

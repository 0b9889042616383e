package types

// Session is the authenticated caller's identity, passed explicitly to
// every operation. There is no ambient "current user" anywhere in the
// system; concurrent operator sessions each carry their own Session.
type Session struct {
	UserID         int    `json:"user_id"`
	Username       string `json:"username"`
	Role           Role   `json:"role"`
	DepartmentID   *int   `json:"department_id"`
	DepartmentName string `json:"department_name,omitempty"`
}

// HasDepartment reports whether the caller is assigned to a department.
func (s Session) HasDepartment() bool {
	return s.DepartmentName != ""
}

// IsAdmin reports whether the caller holds the Admin role.
func (s Session) IsAdmin() bool {
	return s.Role == RoleAdmin
}

// CanManageOrders reports whether the caller may create orders and
// edit or delete scans.
func (s Session) CanManageOrders() bool {
	return s.Role == RoleAdmin || s.Role == RoleManager
}

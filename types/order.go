package types

import "time"

// Order is a manufacturing order. An order lives in exactly one
// department shard, fixed at creation time by the creator's department.
type Order struct {
	ID          int       `json:"id" db:"id"`
	OrderNumber string    `json:"order_number" db:"order_number"`
	Description string    `json:"description,omitempty" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	CreatedBy   int       `json:"created_by_user_id" db:"created_by_user_id"`

	// CreatorUsername and DepartmentName are display annotations resolved
	// against the identity partition at read time, never stored in the shard.
	CreatorUsername string `json:"creator_username,omitempty" db:"-"`
	DepartmentName  string `json:"department_name,omitempty" db:"-"`
}

package types

import "time"

// ScanStatus is the recorded test outcome for a board.
type ScanStatus string

const (
	ScanPass ScanStatus = "Pass"
	ScanFail ScanStatus = "Fail"
)

// Valid reports whether the status is Pass or Fail.
func (s ScanStatus) Valid() bool {
	return s == ScanPass || s == ScanFail
}

// Scan is one pass/fail test result recorded against a board barcode.
// A scan always belongs to the same shard as its order; (barcode, order)
// pairs are unique within a shard.
type Scan struct {
	ID        int        `json:"id" db:"id"`
	Barcode   string     `json:"barcode" db:"barcode"`
	Status    ScanStatus `json:"status" db:"status"`
	Notes     string     `json:"notes,omitempty" db:"notes"`
	Timestamp time.Time  `json:"timestamp" db:"timestamp"`
	UserID    int        `json:"user_id" db:"user_id"`
	OrderID   int        `json:"order_id" db:"order_id"`

	// Read-time annotations.
	Username       string `json:"username,omitempty" db:"-"`
	OrderNumber    string `json:"order_number,omitempty" db:"-"`
	DepartmentName string `json:"department_name,omitempty" db:"-"`
}

// ScanFilter narrows a scan listing. Zero values mean "no filter".
type ScanFilter struct {
	OrderID      int
	UserID       int
	DepartmentID int
}

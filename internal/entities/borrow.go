package entities

import "time"

type BorrowStatus string

const (
	BorrowStatusPending   BorrowStatus = "pending"
	BorrowStatusActive    BorrowStatus = "active"
	BorrowStatusOverdue   BorrowStatus = "overdue"
	BorrowStatusReturned  BorrowStatus = "returned"
	BorrowStatusCancelled BorrowStatus = "cancelled"
	BorrowStatusRejected  BorrowStatus = "rejected"
)

// OpenBorrowStatuses are the non-terminal states.
var OpenBorrowStatuses = []BorrowStatus{BorrowStatusPending, BorrowStatusActive, BorrowStatusOverdue}

func (s BorrowStatus) Valid() bool {
	switch s {
	case BorrowStatusPending, BorrowStatusActive, BorrowStatusOverdue,
		BorrowStatusReturned, BorrowStatusCancelled, BorrowStatusRejected:
		return true
	}
	return false
}

func (s BorrowStatus) IsTerminal() bool {
	switch s {
	case BorrowStatusReturned, BorrowStatusCancelled, BorrowStatusRejected:
		return true
	}
	return false
}

// Borrow is one lending transaction for one Copy. CopyHeld is true while
// the borrow keeps the copy in the borrowed state.
type Borrow struct {
	ID           uint         `gorm:"primaryKey" json:"id"`
	CopyID       uint         `gorm:"index;not null" json:"copy_id"`
	Copy         *Copy        `gorm:"foreignKey:CopyID" json:"-"`
	WorkID       uint         `gorm:"index;not null" json:"work_id"`
	Work         *Work        `gorm:"foreignKey:WorkID" json:"-"`
	BorrowerID   uint         `gorm:"index;not null" json:"borrower_id"`
	Borrower     *Person      `gorm:"foreignKey:BorrowerID" json:"-"`
	StaffID      *uint        `gorm:"index" json:"staff_id,omitempty"`
	Staff        *Person      `gorm:"foreignKey:StaffID" json:"-"`
	DurationDays int          `gorm:"not null" json:"duration_days"`
	Status       BorrowStatus `gorm:"index;size:20;not null" json:"status"`
	CopyHeld     bool         `gorm:"not null" json:"copy_held"`
	Note         string       `gorm:"size:500" json:"note,omitempty"`
	BorrowDate   *time.Time   `json:"borrow_date,omitempty"`
	DueDate      *time.Time   `gorm:"index" json:"due_date,omitempty"`
	ReturnDate   *time.Time   `json:"return_date,omitempty"`
	DecidedAt    *time.Time   `json:"decided_at,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// BorrowView is a borrow joined with the names a client needs to display it.
type BorrowView struct {
	Borrow
	WorkTitle    string `json:"work_title"`
	CopyBarcode  string `json:"copy_barcode,omitempty"`
	BorrowerName string `json:"borrower_name"`
	StaffName    string `json:"staff_name,omitempty"`
}

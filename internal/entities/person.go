package entities

import "time"

type Role string

const (
	RoleBorrower Role = "borrower"
	RoleStaff    Role = "staff"
	RoleAdmin    Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleBorrower, RoleStaff, RoleAdmin:
		return true
	}
	return false
}

// Includes reports whether r grants the privileges of other.
// Admin includes staff, staff includes borrower.
func (r Role) Includes(other Role) bool {
	return roleRank(r) >= roleRank(other) && roleRank(other) > 0
}

func roleRank(r Role) int {
	switch r {
	case RoleBorrower:
		return 1
	case RoleStaff:
		return 2
	case RoleAdmin:
		return 3
	}
	return 0
}

// Person is a borrower or a staff member. Persons referenced by borrows are
// deactivated rather than deleted.
type Person struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	Username         string     `gorm:"uniqueIndex;size:100;not null" json:"username"`
	Email            string     `gorm:"index;size:255" json:"email,omitempty"`
	FullName         string     `gorm:"size:256" json:"full_name,omitempty"`
	Phone            string     `gorm:"size:32" json:"phone,omitempty"`
	Role             Role       `gorm:"index;size:20;not null" json:"role"`
	Active           bool       `gorm:"index;not null" json:"active"`
	PasswordHash     string     `gorm:"size:255" json:"-"`
	TokenHash        string     `gorm:"index;size:64" json:"-"`
	TokenCreatedAt   *time.Time `json:"-"`
	FailedLoginCount int        `json:"-"`
	LockedUntil      *time.Time `json:"-"`
	LastLoginAt      *time.Time `json:"last_login_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (Person) TableName() string {
	return "persons"
}

func (p *Person) IsStaff() bool {
	return p.Role.Includes(RoleStaff)
}

func (p *Person) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// FaceEncoding stores one face embedding per person, serialized as a JSON
// array of floats.
type FaceEncoding struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PersonID  uint      `gorm:"uniqueIndex;not null" json:"person_id"`
	Person    *Person   `gorm:"foreignKey:PersonID" json:"-"`
	Vector    string    `gorm:"type:text;not null" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

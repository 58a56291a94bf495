package entities

import "time"

type Author struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"index;size:256;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Publisher struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"index;size:256;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Category struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;size:128;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Bookshelf is a physical location copies are shelved at.
type Bookshelf struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:128;not null" json:"name"`
	Location  string    `gorm:"size:256" json:"location,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Bookshelf) TableName() string {
	return "bookshelves"
}

// Work is a catalogued title. Copies are the lendable units of a Work.
type Work struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Title           string     `gorm:"index;size:512;not null" json:"title"`
	ISBN            string     `gorm:"index;size:20" json:"isbn,omitempty"`
	Summary         string     `gorm:"type:text" json:"summary,omitempty"`
	PublicationYear int        `json:"publication_year,omitempty"`
	CoverLabel      string     `gorm:"index;size:128" json:"cover_label,omitempty"` // classifier class name
	AuthorID        *uint      `gorm:"index" json:"author_id,omitempty"`
	Author          *Author    `gorm:"foreignKey:AuthorID" json:"-"`
	PublisherID     *uint      `gorm:"index" json:"publisher_id,omitempty"`
	Publisher       *Publisher `gorm:"foreignKey:PublisherID" json:"-"`
	CategoryID      *uint      `gorm:"index" json:"category_id,omitempty"`
	Category        *Category  `gorm:"foreignKey:CategoryID" json:"-"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type CopyStatus string

const (
	CopyStatusAvailable CopyStatus = "available"
	CopyStatusBorrowed  CopyStatus = "borrowed"
	CopyStatusReserved  CopyStatus = "reserved" // set aside by staff, never lent out
	CopyStatusLost      CopyStatus = "lost"
)

func (s CopyStatus) Valid() bool {
	switch s {
	case CopyStatusAvailable, CopyStatusBorrowed, CopyStatusReserved, CopyStatusLost:
		return true
	}
	return false
}

// Copy is one physical lending unit of a Work. Status is only moved
// between available and borrowed by the circulation service.
type Copy struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	WorkID      uint       `gorm:"index;not null" json:"work_id"`
	Work        *Work      `gorm:"foreignKey:WorkID" json:"-"`
	BookshelfID *uint      `gorm:"index" json:"bookshelf_id,omitempty"`
	Bookshelf   *Bookshelf `gorm:"foreignKey:BookshelfID" json:"-"`
	Barcode     string     `gorm:"index;size:64" json:"barcode,omitempty"`
	Status      CopyStatus `gorm:"index;size:20;not null" json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// WorkView is the flat read projection of a Work with its reference names
// and copy counts resolved by a single joined query.
type WorkView struct {
	ID              uint   `json:"id"`
	Title           string `json:"title"`
	ISBN            string `json:"isbn,omitempty"`
	Summary         string `json:"summary,omitempty"`
	PublicationYear int    `json:"publication_year,omitempty"`
	CoverLabel      string `json:"cover_label,omitempty"`
	AuthorID        *uint  `json:"author_id,omitempty"`
	AuthorName      string `json:"author_name,omitempty"`
	PublisherID     *uint  `json:"publisher_id,omitempty"`
	PublisherName   string `json:"publisher_name,omitempty"`
	CategoryID      *uint  `json:"category_id,omitempty"`
	CategoryName    string `json:"category_name,omitempty"`
	TotalCopies     int64  `json:"total_copies"`
	AvailableCopies int64  `json:"available_copies"`
}

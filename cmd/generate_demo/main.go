// Command generate_demo creates a demo library database with public domain
// works, a few persons and borrows in every open state.
// Usage: go run cmd/generate_demo/main.go [-db path/to/demo.db]
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/circulation"
	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/database"
	"github.com/mrlokans/librarian/internal/database/borrows"
	"github.com/mrlokans/librarian/internal/database/catalog"
	"github.com/mrlokans/librarian/internal/database/persons"
	"github.com/mrlokans/librarian/internal/entities"
)

const (
	defaultDemoDatabasePath = "./demo/demo.db"
	demoPassword            = "demo-password-123"
)

// demoWork describes one catalog entry and how many copies to shelve.
type demoWork struct {
	Title      string
	Author     string
	Category   string
	Year       int
	CoverLabel string
	Copies     int
}

var demoWorks = []demoWork{
	{Title: "Meditations", Author: "Marcus Aurelius", Category: "Philosophy", Year: 180, CoverLabel: "meditations", Copies: 2},
	{Title: "Pride and Prejudice", Author: "Jane Austen", Category: "Fiction", Year: 1813, CoverLabel: "pride_and_prejudice", Copies: 3},
	{Title: "Moby-Dick", Author: "Herman Melville", Category: "Fiction", Year: 1851, CoverLabel: "moby_dick", Copies: 1},
	{Title: "On the Origin of Species", Author: "Charles Darwin", Category: "Science", Year: 1859, CoverLabel: "origin_of_species", Copies: 1},
	{Title: "The Art of War", Author: "Sun Tzu", Category: "Philosophy", Year: -500, CoverLabel: "art_of_war", Copies: 2},
	{Title: "Frankenstein", Author: "Mary Shelley", Category: "Fiction", Year: 1818, CoverLabel: "frankenstein", Copies: 2},
}

func main() {
	dbPath := flag.String("db", defaultDemoDatabasePath, "path to the demo database file")
	flag.Parse()

	log.Printf("Generating demo database at %s...", *dbPath)

	// Delete existing demo database to start fresh
	if err := os.Remove(*dbPath); err != nil && !os.IsNotExist(err) {
		log.Fatalf("Failed to remove existing demo database: %v", err)
	}

	db, err := database.NewDatabase(*dbPath)
	if err != nil {
		log.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	catalogRepo := catalog.NewRepository(db.DB)
	personRepo := persons.NewRepository(db.DB)

	workIDs := createCatalog(ctx, catalogRepo)
	people := createPersons(db)

	svc := circulation.NewService(
		borrows.NewRepository(db.DB),
		personRepo,
		circulation.Policy{RequiresApproval: true, StaffBypassesApproval: true, MaxLoanDays: 60},
		circulation.SystemClock{},
	)
	createBorrows(ctx, svc, workIDs, people)

	log.Println("Demo database generated successfully!")
	log.Printf("Accounts: admin, staff, ana, ben (password %q)", demoPassword)
}

func createCatalog(ctx context.Context, repo *catalog.Repository) map[string]uint {
	shelf, err := repo.CreateBookshelf(ctx, "Main hall", "Ground floor, left wing")
	if err != nil {
		log.Fatalf("Failed to create bookshelf: %v", err)
	}

	authors := make(map[string]uint)
	categories := make(map[string]uint)
	workIDs := make(map[string]uint)

	for _, w := range demoWorks {
		if _, ok := authors[w.Author]; !ok {
			a, err := repo.CreateAuthor(ctx, w.Author)
			if err != nil {
				log.Fatalf("Failed to create author %s: %v", w.Author, err)
			}
			authors[w.Author] = a.ID
		}
		if _, ok := categories[w.Category]; !ok {
			c, err := repo.CreateCategory(ctx, w.Category)
			if err != nil {
				log.Fatalf("Failed to create category %s: %v", w.Category, err)
			}
			categories[w.Category] = c.ID
		}

		authorID, categoryID := authors[w.Author], categories[w.Category]
		view, err := repo.CreateWork(ctx, catalog.WorkInput{
			Title:           w.Title,
			PublicationYear: w.Year,
			CoverLabel:      w.CoverLabel,
			AuthorID:        &authorID,
			CategoryID:      &categoryID,
		})
		if err != nil {
			log.Printf("Failed to save work %s: %v", w.Title, err)
			continue
		}
		workIDs[w.Title] = view.ID

		for i := 0; i < w.Copies; i++ {
			if _, err := repo.AddCopy(ctx, view.ID, &shelf.ID, ""); err != nil {
				log.Printf("Failed to add copy of %s: %v", w.Title, err)
			}
		}
		log.Printf("Saved: %s by %s (%d copies)", w.Title, w.Author, w.Copies)
	}
	return workIDs
}

func createPersons(db *database.Database) map[string]*entities.Person {
	accounts := auth.NewService(db.DB, config.Auth{BcryptCost: 10})

	inputs := []auth.AccountInput{
		{Username: "admin", FullName: "Demo Administrator", Role: entities.RoleAdmin, Password: demoPassword},
		{Username: "staff", FullName: "Front Desk", Role: entities.RoleStaff, Password: demoPassword},
		{Username: "ana", FullName: "Ana Reader", Email: "ana@example.com", Role: entities.RoleBorrower, Password: demoPassword},
		{Username: "ben", FullName: "Ben Borrower", Role: entities.RoleBorrower, Password: demoPassword},
	}

	people := make(map[string]*entities.Person)
	for _, in := range inputs {
		p, err := accounts.CreateAccount(in)
		if err != nil {
			log.Fatalf("Failed to create %s: %v", in.Username, err)
		}
		people[in.Username] = p
	}
	return people
}

func createBorrows(ctx context.Context, svc *circulation.Service, workIDs map[string]uint, people map[string]*entities.Person) {
	staffID := people["staff"].ID

	// Checked out at the desk
	if _, err := svc.CreateBorrow(ctx, circulation.CreateBorrowRequest{
		WorkID: workIDs["Moby-Dick"], BorrowerID: people["ana"].ID, StaffID: &staffID, DurationDays: 14,
	}); err != nil {
		log.Printf("Failed to check out Moby-Dick: %v", err)
	}

	// Waiting for staff approval
	if _, err := svc.CreateBorrow(ctx, circulation.CreateBorrowRequest{
		WorkID: workIDs["Meditations"], BorrowerID: people["ben"].ID, DurationDays: 21, Note: "For the reading group",
	}); err != nil {
		log.Printf("Failed to request Meditations: %v", err)
	}

	// Approved then returned
	b, err := svc.CreateBorrow(ctx, circulation.CreateBorrowRequest{
		WorkID: workIDs["Frankenstein"], BorrowerID: people["ben"].ID, DurationDays: 7,
	})
	if err != nil {
		log.Printf("Failed to request Frankenstein: %v", err)
		return
	}
	if _, err := svc.ApproveBorrow(ctx, b.ID, staffID); err != nil {
		log.Printf("Failed to approve borrow %d: %v", b.ID, err)
		return
	}
	if _, err := svc.ReturnBorrow(ctx, b.ID); err != nil {
		log.Printf("Failed to return borrow %d: %v", b.ID, err)
	}
}

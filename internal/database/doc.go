// Package database provides the data access layer for the application.
//
// # Architecture
//
// The database layer is organized into domain-specific sub-packages:
//
//	database/
//	├── database.go      # Connection setup (SQLite or Postgres), migrations
//	├── errors.go        # Driver error classification (conflicts, constraints)
//	├── catalog/         # Works, copies and reference data
//	├── persons/         # Borrowers and staff, identity lookups
//	├── borrows/         # Transactional borrow ledger storage
//	├── faces/           # Stored face encodings, optionally sealed
//	└── audit/           # Audit trail
//
// # Using Sub-packages
//
// Each sub-package provides a Repository type with domain-specific operations:
//
//	db, err := database.NewDatabase("./librarian.db")
//
//	catalogRepo := catalog.NewRepository(db.DB)
//	borrowRepo := borrows.NewRepository(db.DB)
//
//	work, err := catalogRepo.GetWork(ctx, 42)
//
// # Interface Implementations
//
//   - borrows.Repository: implements circulation.Repository
//   - persons.Repository: implements circulation.IdentityProvider
//   - catalog.Repository: implements http.CatalogStore
//   - faces.Repository: implements recognition.EncodingStore
//   - audit.Repository: implements audit.Repository
//
// # Concurrency
//
// SQLite connections are opened with _txlock=immediate so write transactions
// serialize at BEGIN; on Postgres the borrows repository takes row locks
// with SELECT ... FOR UPDATE. Both drivers' lost-race errors are classified
// by IsConflict.
package database

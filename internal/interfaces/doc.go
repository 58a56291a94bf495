// Package interfaces documents the core abstractions used throughout the application.
//
// # Interface Categories
//
// ## Circulation Ports
//
//   - circulation.Repository: transactional borrow storage (internal/database/borrows)
//   - circulation.Tx: row-level operations inside one transaction
//   - circulation.IdentityProvider: person lookup and role checks (internal/database/persons)
//   - circulation.Clock: time source; fixed clocks in tests
//
// ## HTTP Stores
//
// Each controller in internal/http declares the narrow interface it needs
// (see internal/http/stores.go): BorrowService, CatalogStore, PersonStore,
// AccountCreator, FaceRegistry, CoverIdentifier, ReportsStore, AuditReader,
// Auditor, OverdueSweeper, SweepStatus and TaskQueue.
//
// ## Recognition
//
//   - recognition.FaceEncoder / CoverClassifier: inference backends (remote HTTP by default)
//   - recognition.EncodingStore: persisted face encodings (internal/database/faces)
//
// ## Background Work
//
//   - tasks.Sweeper, tasks.SweepRecorder, tasks.AuditEventCleaner: task processor dependencies
//   - scheduler.Enqueuer: hands scheduled work to the task queue
//
// # Adding a New Inference Backend
//
//  1. Implement FaceEncoder or CoverClassifier in internal/recognition/
//
//     type LocalEncoder struct{ model *Model }
//
//     func (e *LocalEncoder) Encode(ctx context.Context, image []byte) ([]float64, error)
//
//     var _ FaceEncoder = (*LocalEncoder)(nil)
//
//  2. Pass it to recognition.NewService in entrypoint.go
//
// # Adding a New Database Domain
//
//  1. Create sub-package: internal/database/holds/
//
//  2. Define repository:
//
//     type Repository struct { db *gorm.DB }
//
//     func NewRepository(db *gorm.DB) *Repository
//
//  3. Declare the consumer's interface next to the consumer (e.g. internal/http/stores.go)
//
//  4. Add compile-time check here:
//
//     var _ http.HoldStore = (*holds.Repository)(nil)
//
// # Compile-Time Interface Checks
//
// All implementations should include compile-time checks to ensure they satisfy
// their interfaces. This catches missing methods at compile time rather than runtime:
//
//	var _ SomeInterface = (*MyImplementation)(nil)
//
// See checks.go for the full list.
package interfaces

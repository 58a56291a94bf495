package interfaces

// This file contains compile-time interface implementation checks.
// These ensure that concrete types satisfy their interfaces at compile time,
// catching missing methods before runtime.
//
// To verify all checks pass: go build ./internal/interfaces/...

import (
	"github.com/mrlokans/librarian/internal/audit"
	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/circulation"
	"github.com/mrlokans/librarian/internal/database/borrows"
	"github.com/mrlokans/librarian/internal/database/catalog"
	"github.com/mrlokans/librarian/internal/database/faces"
	"github.com/mrlokans/librarian/internal/database/persons"
	"github.com/mrlokans/librarian/internal/http"
	"github.com/mrlokans/librarian/internal/recognition"
	"github.com/mrlokans/librarian/internal/reports"
	"github.com/mrlokans/librarian/internal/scheduler"
	"github.com/mrlokans/librarian/internal/tasks"
)

// =============================================================================
// Circulation Ports
// =============================================================================

var _ circulation.Repository = (*borrows.Repository)(nil)
var _ circulation.IdentityProvider = (*persons.Repository)(nil)
var _ circulation.Clock = circulation.SystemClock{}

// =============================================================================
// HTTP Stores
// =============================================================================

var _ http.BorrowService = (*circulation.Service)(nil)
var _ http.CatalogStore = (*catalog.Repository)(nil)
var _ http.PersonStore = (*persons.Repository)(nil)
var _ http.AccountCreator = (*auth.Service)(nil)
var _ http.FaceRegistry = (*recognition.Service)(nil)
var _ http.CoverIdentifier = (*recognition.Service)(nil)
var _ http.ReportsStore = (*reports.Repository)(nil)
var _ http.AuditReader = (*audit.Service)(nil)
var _ http.Auditor = (*audit.Service)(nil)
var _ http.OverdueSweeper = (*scheduler.OverdueSweepScheduler)(nil)
var _ http.SweepStatus = (*scheduler.OverdueSweepScheduler)(nil)
var _ http.TaskQueue = (*tasks.Client)(nil)

// =============================================================================
// Authentication
// =============================================================================

var _ auth.FaceIdentifier = (*recognition.Service)(nil)
var _ auth.EventRecorder = (*audit.Service)(nil)
var _ auth.TokenValidator = (*auth.Service)(nil)

// =============================================================================
// Recognition
// =============================================================================

var _ recognition.EncodingStore = (*faces.Repository)(nil)
var _ recognition.PersonResolver = (*persons.Repository)(nil)
var _ recognition.WorkResolver = (*catalog.Repository)(nil)
var _ recognition.FaceEncoder = (*recognition.RemoteFaceEncoder)(nil)
var _ recognition.CoverClassifier = (*recognition.RemoteCoverClassifier)(nil)

// =============================================================================
// Background Work
// =============================================================================

var _ tasks.Sweeper = (*circulation.Service)(nil)
var _ tasks.SweepRecorder = (*audit.Service)(nil)
var _ tasks.AuditEventCleaner = (*audit.Service)(nil)
var _ scheduler.Enqueuer = (*tasks.Client)(nil)

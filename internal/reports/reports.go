// Package reports computes read-only library statistics.
//
// Queries are built with goqu for the configured dialect and scanned with
// sqlx over the same connection pool gorm uses.
//
// # Usage
//
//	r, err := reports.NewRepository(db.DB, db.Driver)
//	summary, err := r.Summary(ctx)
package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"  // dialect registration
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"
	"gorm.io/gorm"

	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/entities"
)

const (
	dialectSQLite   = "sqlite3"
	dialectPostgres = "postgres"
	driverPgx       = "pgx"

	sqliteTimeFormat = "2006-01-02 15:04:05"

	colCount   = "count"
	colMonth   = "month"
	colWorkID  = "work_id"
	colTitle   = "title"
	aliasTotal = "total"

	DefaultMonths   = 6
	MaxMonths       = 36
	DefaultTopLimit = 10
	MaxTopLimit     = 100
)

// Summary is the headline library statistics.
type Summary struct {
	TotalWorks      int64 `json:"total_works"`
	TotalCopies     int64 `json:"total_copies"`
	AvailableCopies int64 `json:"available_copies"`
	TotalBorrows    int64 `json:"total_borrows"`
	CurrentlyLent   int64 `json:"currently_lent"`
	OverdueBorrows  int64 `json:"overdue_borrows"`
	PendingRequests int64 `json:"pending_requests"`
	ActivePersons   int64 `json:"active_persons"`
}

// MonthlyCount is the number of borrows opened in one calendar month (YYYY-MM).
type MonthlyCount struct {
	Month string `db:"month" json:"month"`
	Count int64  `db:"count" json:"count"`
}

// TopWork is a work ranked by how often it was borrowed.
type TopWork struct {
	WorkID  uint   `db:"work_id" json:"work_id"`
	Title   string `db:"title" json:"title"`
	Borrows int64  `db:"total" json:"borrows"`
}

// Repository runs report queries.
type Repository struct {
	db      *sqlx.DB
	dialect goqu.DialectWrapper
	name    string
}

// NewRepository shares gorm's connection pool. driver is config.DriverSQLite
// or config.DriverPostgres.
func NewRepository(gdb *gorm.DB, driver string) (*Repository, error) {
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	switch driver {
	case "", config.DriverSQLite:
		return &Repository{db: sqlx.NewDb(sqlDB, dialectSQLite), dialect: goqu.Dialect(dialectSQLite), name: dialectSQLite}, nil
	case config.DriverPostgres:
		return &Repository{db: sqlx.NewDb(sqlDB, driverPgx), dialect: goqu.Dialect(dialectPostgres), name: dialectPostgres}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Summary returns the headline counts.
func (r *Repository) Summary(ctx context.Context) (*Summary, error) {
	var s Summary
	queries := []countQuery{
		{&s.TotalWorks, r.dialect.From("works")},
		{&s.TotalCopies, r.dialect.From("copies")},
		{&s.AvailableCopies, r.dialect.From("copies").Where(goqu.C("status").Eq(string(entities.CopyStatusAvailable)))},
		{&s.TotalBorrows, r.dialect.From("borrows")},
		{&s.CurrentlyLent, r.dialect.From("borrows").Where(goqu.C("status").In(string(entities.BorrowStatusActive), string(entities.BorrowStatusOverdue)))},
		{&s.OverdueBorrows, r.dialect.From("borrows").Where(goqu.C("status").Eq(string(entities.BorrowStatusOverdue)))},
		{&s.PendingRequests, r.dialect.From("borrows").Where(goqu.C("status").Eq(string(entities.BorrowStatusPending)))},
		{&s.ActivePersons, r.dialect.From("persons").Where(goqu.C("active").Eq(true))},
	}

	for _, q := range queries {
		query, _, err := q.ds.Select(goqu.COUNT(goqu.Star()).As(colCount)).ToSQL()
		if err != nil {
			return nil, fmt.Errorf("failed to build count query: %w", err)
		}
		if err := r.db.GetContext(ctx, q.dst, query); err != nil {
			return nil, fmt.Errorf("failed to run count query: %w", err)
		}
	}
	return &s, nil
}

type countQuery struct {
	dst *int64
	ds  *goqu.SelectDataset
}

// MonthlyBorrows returns borrow counts per month for the last months
// calendar months including the current one, oldest first. Months without
// borrows are included with a zero count.
func (r *Repository) MonthlyBorrows(ctx context.Context, months int, now time.Time) ([]MonthlyCount, error) {
	months = clamp(months, DefaultMonths, MaxMonths)
	now = now.UTC()
	since := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(months - 1), 0)

	query, _, err := r.monthlyQuery(since).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build monthly query: %w", err)
	}

	var rows []MonthlyCount
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to run monthly query: %w", err)
	}

	byMonth := make(map[string]int64, len(rows))
	for _, row := range rows {
		byMonth[row.Month] = row.Count
	}

	out := make([]MonthlyCount, 0, months)
	for i := 0; i < months; i++ {
		key := since.AddDate(0, i, 0).Format("2006-01")
		out = append(out, MonthlyCount{Month: key, Count: byMonth[key]})
	}
	return out, nil
}

func (r *Repository) monthlyQuery(since time.Time) *goqu.SelectDataset {
	month := r.monthExpr("created_at")
	return r.dialect.From("borrows").
		Select(month.As(colMonth), goqu.COUNT(goqu.Star()).As(colCount)).
		Where(goqu.C("created_at").Gte(r.timeValue(since))).
		GroupBy(month).
		Order(goqu.I(colMonth).Asc())
}

// TopWorks returns the most borrowed works, most borrowed first.
func (r *Repository) TopWorks(ctx context.Context, limit int) ([]TopWork, error) {
	limit = clamp(limit, DefaultTopLimit, MaxTopLimit)

	query, _, err := r.topWorksQuery(limit).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build top works query: %w", err)
	}

	rows := []TopWork{}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to run top works query: %w", err)
	}
	return rows, nil
}

func (r *Repository) topWorksQuery(limit int) *goqu.SelectDataset {
	return r.dialect.From(goqu.T("borrows").As("b")).
		Join(goqu.T("works").As("w"), goqu.On(goqu.I("w.id").Eq(goqu.I("b.work_id")))).
		Select(goqu.I("w.id").As(colWorkID), goqu.I("w.title").As(colTitle), goqu.COUNT(goqu.I("b.id")).As(aliasTotal)).
		Where(goqu.I("b.status").Neq(string(entities.BorrowStatusRejected))).
		GroupBy(goqu.I("w.id"), goqu.I("w.title")).
		Order(goqu.I(aliasTotal).Desc(), goqu.I("w.id").Asc()).
		Limit(uint(limit))
}

// monthExpr formats a timestamp column as YYYY-MM. SQLite stores gorm
// timestamps as text starting with the date.
func (r *Repository) monthExpr(col string) exp.LiteralExpression {
	if r.name == dialectPostgres {
		return goqu.L("to_char(?, 'YYYY-MM')", goqu.I(col))
	}
	return goqu.L("substr(?, 1, 7)", goqu.I(col))
}

// timeValue renders t the way the dialect compares timestamps.
func (r *Repository) timeValue(t time.Time) any {
	if r.name == dialectPostgres {
		return t.UTC()
	}
	return t.UTC().Format(sqliteTimeFormat)
}

func clamp(v, def, max int) int {
	if v <= 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}

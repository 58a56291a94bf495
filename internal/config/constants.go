package config

const (
	// DefaultDatabasePath is the default path for the main application database
	DefaultDatabasePath = "./librarian.db"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	// DefaultFaceTolerance is the largest encoding distance still accepted as
	// the same person.
	DefaultFaceTolerance = 0.5
)

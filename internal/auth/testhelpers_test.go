package auth

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/database"
	"github.com/mrlokans/librarian/internal/entities"
)

const testPassword = "correct-horse-battery"

func testAuthConfig() config.Auth {
	return config.Auth{
		Mode:            config.AuthModeLocal,
		SessionLifetime: time.Hour,
		TokenExpiry:     24 * time.Hour,
		BcryptCost:      bcrypt.MinCost,
		LockoutDuration: 30 * time.Minute,
	}
}

func setupTestDB(t *testing.T) (*gorm.DB, *sql.DB) {
	t.Helper()
	db, err := database.Open(database.Options{
		Driver:   config.DriverSQLite,
		Path:     filepath.Join(t.TempDir(), "auth.db"),
		LogLevel: logger.Silent,
	})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	sqlDB, err := db.DB.DB()
	if err != nil {
		t.Fatalf("failed to get SQL DB: %v", err)
	}
	return db.DB, sqlDB
}

func createTestPerson(t *testing.T, svc *Service, username string, role entities.Role) *entities.Person {
	t.Helper()
	person, err := svc.CreateAccount(AccountInput{
		Username: username,
		Email:    username + "@example.com",
		Password: testPassword,
		Role:     role,
	})
	if err != nil {
		t.Fatalf("failed to create %s: %v", username, err)
	}
	return person
}

func init() {
	gin.SetMode(gin.TestMode)
}

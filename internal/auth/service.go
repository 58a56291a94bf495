package auth

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/database"
	"github.com/mrlokans/librarian/internal/entities"
)

// Validation patterns
var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]{3,64}$`)
	emailPattern    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

var (
	ErrPersonNotFound   = errors.New("person not found")
	ErrPersonExists     = errors.New("person already exists")
	ErrPersonInactive   = errors.New("person is deactivated")
	ErrInvalidToken     = errors.New("invalid token")
	ErrTokenExpired     = errors.New("token expired")
	ErrAuthRequired     = errors.New("authentication required")
	ErrInvalidRole      = errors.New("invalid role")
	ErrUsernameRequired = errors.New("username is required")
	ErrPasswordRequired = errors.New("password is required for staff and admin accounts")
	ErrNoPassword       = errors.New("account has no password")
	ErrAccountLocked    = errors.New("account is locked due to too many failed login attempts")
	ErrUsernameInvalid  = errors.New("username must be 3-64 characters, alphanumeric and ._- only")
	ErrEmailInvalid     = errors.New("invalid email format")
)

// failedLoginThreshold locks an account after this many consecutive failures.
const failedLoginThreshold = 5

// AccountInput describes a new person account.
type AccountInput struct {
	Username string
	Email    string
	FullName string
	Phone    string
	Password string
	Role     entities.Role
}

// Service handles credentials, API tokens and account lockout for persons.
type Service struct {
	db     *gorm.DB
	config config.Auth
	now    func() time.Time
}

// NewService creates a new authentication service.
func NewService(db *gorm.DB, cfg config.Auth) *Service {
	return &Service{
		db:     db,
		config: cfg,
		now:    time.Now,
	}
}

// CreateAccount creates a person with optional password credentials.
// Staff and admin accounts must have a password; borrowers may be created
// without one and identified by staff or by face.
func (s *Service) CreateAccount(in AccountInput) (*entities.Person, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if in.Username == "" {
		return nil, ErrUsernameRequired
	}
	if !usernamePattern.MatchString(in.Username) {
		return nil, ErrUsernameInvalid
	}
	// RFC 5321 caps addresses at 254 bytes
	if in.Email != "" && (len(in.Email) > 254 || !emailPattern.MatchString(in.Email)) {
		return nil, ErrEmailInvalid
	}
	if in.Role == "" {
		in.Role = entities.RoleBorrower
	}
	if !in.Role.Valid() {
		return nil, ErrInvalidRole
	}
	if in.Password == "" && in.Role.Includes(entities.RoleStaff) {
		return nil, ErrPasswordRequired
	}

	var existing int64
	if err := s.db.Model(&entities.Person{}).Where("username = ?", in.Username).Count(&existing).Error; err != nil {
		return nil, fmt.Errorf("failed to check existing person: %w", err)
	}
	if existing > 0 {
		return nil, ErrPersonExists
	}

	person := &entities.Person{
		Username: in.Username,
		Email:    in.Email,
		FullName: strings.TrimSpace(in.FullName),
		Phone:    strings.TrimSpace(in.Phone),
		Role:     in.Role,
		Active:   true,
	}
	if in.Password != "" {
		hash, err := HashPassword(in.Password, s.config.BcryptCost)
		if err != nil {
			return nil, err
		}
		person.PasswordHash = hash
	}

	if err := s.db.Create(person).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrPersonExists
		}
		return nil, fmt.Errorf("failed to create person: %w", err)
	}
	return person, nil
}

// Authenticate validates credentials and returns the person.
// Accounts are locked after repeated failures.
func (s *Service) Authenticate(username, password string) (*entities.Person, error) {
	var person entities.Person
	err := s.db.Where("username = ? OR (email <> '' AND email = ?)", username, username).First(&person).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPersonNotFound
		}
		return nil, fmt.Errorf("failed to find person: %w", err)
	}

	if !person.Active {
		return nil, ErrPersonInactive
	}
	if person.LockedUntil != nil && s.now().Before(*person.LockedUntil) {
		return nil, ErrAccountLocked
	}
	if person.PasswordHash == "" {
		return nil, ErrNoPassword
	}

	if err := CheckPassword(password, person.PasswordHash); err != nil {
		s.recordFailedLogin(&person)
		return nil, err
	}

	s.RecordLogin(&person)
	return &person, nil
}

// RecordLogin resets the failure counter and stamps the last login time.
func (s *Service) RecordLogin(person *entities.Person) {
	now := s.now()
	person.LastLoginAt = &now
	person.FailedLoginCount = 0
	person.LockedUntil = nil
	s.db.Model(person).Updates(map[string]any{
		"last_login_at":      now,
		"failed_login_count": 0,
		"locked_until":       nil,
	})
}

// recordFailedLogin increments the failure counter and locks the account
// once the threshold is reached.
func (s *Service) recordFailedLogin(person *entities.Person) {
	person.FailedLoginCount++

	updates := map[string]any{
		"failed_login_count": person.FailedLoginCount,
	}
	if person.FailedLoginCount >= failedLoginThreshold {
		lockout := s.config.LockoutDuration
		if lockout == 0 {
			lockout = 30 * time.Minute
		}
		updates["locked_until"] = s.now().Add(lockout)
	}

	s.db.Model(person).Updates(updates)
}

// GetPersonByID retrieves an active person by ID.
func (s *Service) GetPersonByID(id uint) (*entities.Person, error) {
	var person entities.Person
	err := s.db.First(&person, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPersonNotFound
		}
		return nil, err
	}
	if !person.Active {
		return nil, ErrPersonInactive
	}
	return &person, nil
}

// ValidateToken checks a plaintext API token and returns its owner.
func (s *Service) ValidateToken(token string) (*entities.Person, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	var person entities.Person
	err := s.db.Where("token_hash = ?", HashToken(token)).First(&person).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if !person.Active {
		return nil, ErrInvalidToken
	}
	if s.config.TokenExpiry > 0 && person.TokenCreatedAt != nil {
		if s.now().Sub(*person.TokenCreatedAt) > s.config.TokenExpiry {
			return nil, ErrTokenExpired
		}
	}
	return &person, nil
}

// GenerateToken issues a new API token, replacing any previous one.
// Only the hash is stored; the plaintext is returned once.
func (s *Service) GenerateToken(personID uint) (string, error) {
	plaintext, hash, err := GenerateAPIToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	result := s.db.Model(&entities.Person{}).Where("id = ?", personID).Updates(map[string]any{
		"token_hash":       hash,
		"token_created_at": s.now(),
	})
	if result.Error != nil {
		return "", fmt.Errorf("failed to save token: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return "", ErrPersonNotFound
	}
	return plaintext, nil
}

// RevokeToken removes a person's API token.
func (s *Service) RevokeToken(personID uint) error {
	result := s.db.Model(&entities.Person{}).Where("id = ?", personID).Updates(map[string]any{
		"token_hash":       "",
		"token_created_at": nil,
	})
	if result.Error != nil {
		return fmt.Errorf("failed to revoke token: %w", result.Error)
	}
	return nil
}

// ChangePassword updates a password after verifying the old one.
func (s *Service) ChangePassword(personID uint, oldPassword, newPassword string) error {
	person, err := s.GetPersonByID(personID)
	if err != nil {
		return err
	}
	if person.PasswordHash != "" {
		if err := CheckPassword(oldPassword, person.PasswordHash); err != nil {
			return err
		}
	}
	return s.SetPassword(personID, newPassword)
}

// SetPassword replaces a password without checking the old one.
func (s *Service) SetPassword(personID uint, password string) error {
	hash, err := HashPassword(password, s.config.BcryptCost)
	if err != nil {
		return err
	}
	result := s.db.Model(&entities.Person{}).Where("id = ?", personID).Update("password_hash", hash)
	if result.Error != nil {
		return fmt.Errorf("failed to set password: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrPersonNotFound
	}
	return nil
}

// HasStaff reports whether any active staff or admin account exists.
func (s *Service) HasStaff() (bool, error) {
	var count int64
	err := s.db.Model(&entities.Person{}).
		Where("active = ? AND role IN ?", true, []entities.Role{entities.RoleStaff, entities.RoleAdmin}).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// IsAuthEnabled returns true if authentication is required.
func (s *Service) IsAuthEnabled() bool {
	return s.config.Mode == config.AuthModeLocal
}

// GetAuthMode returns the current authentication mode.
func (s *Service) GetAuthMode() config.AuthMode {
	return s.config.Mode
}

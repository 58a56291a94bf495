package auth

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  error
	}{
		{"valid password", "validpassword123", nil},
		{"too short", "short", ErrPasswordTooShort},
		{"minimum length", "123456789012", nil},
		{"multibyte runes count as characters", strings.Repeat("é", 12), nil},
		{"too long", strings.Repeat("a", 73), ErrPasswordTooLong},
		{"maximum length", strings.Repeat("a", 72), nil},
		{"only whitespace", strings.Repeat(" ", 14), ErrPasswordBlank},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := HashPassword(tt.password, bcrypt.MinCost)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("HashPassword() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && hash == "" {
				t.Error("HashPassword() returned empty hash for valid password")
			}
		})
	}
}

func TestHashPassword_CostFallback(t *testing.T) {
	hash, err := HashPassword("validpassword123", 0)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		t.Fatalf("bcrypt.Cost() error = %v", err)
	}
	if cost != bcrypt.DefaultCost {
		t.Errorf("cost = %d, want %d", cost, bcrypt.DefaultCost)
	}
}

func TestCheckPassword(t *testing.T) {
	password := "testpassword123"
	hash, err := HashPassword(password, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}

	tests := []struct {
		name     string
		password string
		wantErr  error
	}{
		{"correct password", password, nil},
		{"incorrect password", "wrongpassword", ErrInvalidPassword},
		{"empty password", "", ErrInvalidPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := CheckPassword(tt.password, hash); err != tt.wantErr {
				t.Errorf("CheckPassword() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if err := CheckPassword(password, "not-a-bcrypt-hash"); err == nil || err == ErrInvalidPassword {
		t.Errorf("CheckPassword() with malformed hash = %v, want a decode error", err)
	}
}

func TestGenerateAPIToken(t *testing.T) {
	plaintext, hash, err := GenerateAPIToken()
	if err != nil {
		t.Fatalf("GenerateAPIToken() error = %v", err)
	}
	if len(plaintext) != 64 {
		t.Errorf("Token length = %d, want 64", len(plaintext))
	}
	if HashToken(plaintext) != hash {
		t.Error("HashToken(plaintext) does not match returned hash")
	}

	plaintext2, _, err := GenerateAPIToken()
	if err != nil {
		t.Fatalf("Second GenerateAPIToken() error = %v", err)
	}
	if plaintext == plaintext2 {
		t.Error("Generated tokens should be unique")
	}
}

func TestGenerateSessionSecret(t *testing.T) {
	secret, err := GenerateSessionSecret()
	if err != nil {
		t.Fatalf("GenerateSessionSecret() error = %v", err)
	}
	if len(secret) != 64 {
		t.Errorf("Secret length = %d, want 64", len(secret))
	}
}

package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	ROLE_OWNER      = "owner"
	ROLE_ADMIN      = "admin"
	ROLE_SUPERVISOR = "supervisor"
	ROLE_BUYER      = "buyer"

	STATUS_ACTIVE   = "active"
	STATUS_INACTIVE = "inactive"
	STATUS_DISABLED = "disabled"
)

type User struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	FactoryID        uint           `gorm:"not null;index" json:"factory_id"`
	Name             string         `gorm:"type:varchar(150)" json:"name" validate:"required,min=3,max=150"`
	Email            string         `gorm:"uniqueIndex;type:varchar(200)" json:"email" validate:"required,email,min=5,max=200"`
	Password         string         `gorm:"type:text" json:"-" validate:"required,min=6"`
	Role             string         `gorm:"type:varchar(50);default:'supervisor'" json:"role" validate:"oneof=owner admin supervisor buyer"`
	Status           string         `gorm:"type:varchar(50);default:'active'" json:"status" validate:"oneof=active inactive disabled"`
	APITokenHash     string         `gorm:"type:varchar(64);default:'';index" json:"-"`
	APITokenPrefix   string         `gorm:"type:varchar(20);default:''" json:"api_token_prefix"`
	TokenIssuedAt    *time.Time     `gorm:"type:timestamp;default:null" json:"-"`
	TokenLastUsedAt  *time.Time     `gorm:"type:timestamp;default:null" json:"-"`
	LastLoginAt      *time.Time     `gorm:"type:timestamp;default:null" json:"last_login_at"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

// IsFactoryAdmin reports whether the user may manage the factory (billing, users).
func (u *User) IsFactoryAdmin() bool {
	return u.Role == ROLE_OWNER || u.Role == ROLE_ADMIN
}

func CreateUser(factoryID uint, name, email, password, role string) (*User, error) {
	pw, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	u := &User{
		FactoryID: factoryID,
		Name:      name,
		Email:     email,
		Password:  pw,
		Role:      role,
		Status:    STATUS_ACTIVE,
	}

	if err := u.Validate(); err != nil {
		return nil, err
	}

	return u, nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)

	return string(bytes), err
}

// CheckPasswordHash compares the given password with the stored hash.
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))

	return err == nil
}

var apiTokenEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

const apiTokenPrefix = "stk_"

// IssueAPIToken generates a new API token, persists metadata on the struct, and
// returns the raw secret. Callers must save the struct afterwards.
func (u *User) IssueAPIToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	raw := apiTokenPrefix + strings.ToLower(apiTokenEncoding.EncodeToString(b))
	if len(raw) < 12 {
		return "", fmt.Errorf("api token generation failed: token too short")
	}
	now := time.Now()
	u.APITokenHash = HashAPIToken(raw)
	u.APITokenPrefix = raw[:16]
	u.TokenIssuedAt = &now
	u.TokenLastUsedAt = nil
	return raw, nil
}

// RevokeAPIToken clears the stored token metadata without deleting the user.
func (u *User) RevokeAPIToken() {
	u.APITokenHash = ""
	u.APITokenPrefix = ""
	u.TokenIssuedAt = nil
	u.TokenLastUsedAt = nil
}

// HasActiveAPIToken reports whether a usable token hash is stored.
func (u *User) HasActiveAPIToken() bool {
	return u.APITokenHash != ""
}

// HashAPIToken returns the SHA-256 hash for the provided API token.
func HashAPIToken(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}

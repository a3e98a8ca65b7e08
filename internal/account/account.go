// Package account stores the exchange credentials of local users.
package account

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"binance-dip-bot-go/internal/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	// MinPasswordLength is the minimum password length
	MinPasswordLength = 8
	// MaxPasswordLength is the bcrypt input limit
	MaxPasswordLength = 72
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrMissingKey         = errors.New("account encryption key is not set")
)

// Credentials are the decrypted exchange keys of an account.
type Credentials struct {
	APIKey    string
	SecretKey string
}

// Service creates and authenticates accounts.
type Service struct {
	db         *gorm.DB
	gcm        cipher.AEAD
	bcryptCost int
}

// NewService creates an account service. encryptionKey may be any non-empty
// passphrase; it is stretched to an AES-256 key.
func NewService(db *gorm.DB, encryptionKey string, bcryptCost int) (*Service, error) {
	if encryptionKey == "" {
		return nil, ErrMissingKey
	}
	if bcryptCost < bcrypt.MinCost {
		bcryptCost = bcrypt.DefaultCost
	}

	key := sha256.Sum256([]byte(encryptionKey))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Service{db: db, gcm: gcm, bcryptCost: bcryptCost}, nil
}

// CreateAccount stores a new user with a hashed password and encrypted keys.
func (s *Service) CreateAccount(ctx context.Context, username, password string, creds Credentials) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return errors.New("username is required")
	}
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	if len(password) > MaxPasswordLength {
		return fmt.Errorf("password must be at most %d characters", MaxPasswordLength)
	}
	if creds.APIKey == "" || creds.SecretKey == "" {
		return errors.New("api key and secret key are required")
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to look up username: %w", err)
	}
	if count > 0 {
		return ErrUsernameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	apiKey, err := s.encrypt(creds.APIKey)
	if err != nil {
		return err
	}
	secretKey, err := s.encrypt(creds.SecretKey)
	if err != nil {
		return err
	}

	user := models.User{
		Username:           username,
		PasswordHash:       string(hash),
		EncryptedAPIKey:    apiKey,
		EncryptedSecretKey: secretKey,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// Authenticate checks the password of username and returns its decrypted keys.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*Credentials, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	apiKey, err := s.decrypt(user.EncryptedAPIKey)
	if err != nil {
		return nil, err
	}
	secretKey, err := s.decrypt(user.EncryptedSecretKey)
	if err != nil {
		return nil, err
	}
	return &Credentials{APIKey: apiKey, SecretKey: secretKey}, nil
}

func (s *Service) encrypt(plaintext string) (string, error) {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := s.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (s *Service) decrypt(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode key: %w", err)
	}
	n := s.gcm.NonceSize()
	if len(data) < n {
		return "", errors.New("encrypted key is too short")
	}
	plaintext, err := s.gcm.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt key: %w", err)
	}
	return string(plaintext), nil
}

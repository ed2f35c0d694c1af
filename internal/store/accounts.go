package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/fitx/internal/models"
	"github.com/desertthunder/fitx/internal/shared"
)

// AccountStore persists platform credentials with passwords encrypted at
// rest. One account per platform.
type AccountStore struct {
	db  *sql.DB
	key *[32]byte
}

// NewAccountStore creates a new AccountStore with the given database
// connection and encryption key.
func NewAccountStore(db *sql.DB, key *[32]byte) *AccountStore {
	return &AccountStore{db: db, key: key}
}

// Save upserts the account for a platform, encrypting the password.
func (s *AccountStore) Save(account *models.Account) error {
	if account.Platform == "" || account.Email == "" || account.Password == "" {
		return fmt.Errorf("%w: platform, email and password required", shared.ErrValidation)
	}

	encrypted, err := shared.EncryptSecret(s.key, account.Password)
	if err != nil {
		return fmt.Errorf("failed to encrypt password: %w", err)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO accounts (platform, email, password_encrypted, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(platform) DO UPDATE SET
			email = excluded.email,
			password_encrypted = excluded.password_encrypted,
			updated_at = excluded.updated_at
	`

	_, err = s.db.Exec(query, account.Platform, account.Email, encrypted, now, now)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}

	return nil
}

// Get retrieves and decrypts the account for a platform.
func (s *AccountStore) Get(platform string) (*models.Account, error) {
	query := `
		SELECT platform, email, password_encrypted, created_at, updated_at
		FROM accounts
		WHERE platform = ?
	`

	var (
		account   models.Account
		encrypted string
	)
	err := s.db.QueryRow(query, platform).Scan(
		&account.Platform, &account.Email, &encrypted, &account.CreatedAt, &account.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", shared.ErrAccountNotFound, platform)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}

	account.Password, err = shared.DecryptSecret(s.key, encrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt password for %s: %w", platform, err)
	}

	return &account, nil
}

// List retrieves all accounts without decrypting passwords.
func (s *AccountStore) List() ([]*models.Account, error) {
	rows, err := s.db.Query(`
		SELECT platform, email, created_at, updated_at
		FROM accounts
		ORDER BY platform ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		var account models.Account
		if err := rows.Scan(&account.Platform, &account.Email, &account.CreatedAt, &account.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, &account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return accounts, nil
}

// Delete removes the account for a platform.
func (s *AccountStore) Delete(platform string) error {
	result, err := s.db.Exec(`DELETE FROM accounts WHERE platform = ?`, platform)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrAccountNotFound, platform)
	}

	return nil
}

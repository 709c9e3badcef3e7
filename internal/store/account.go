package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/foodshare/apiserver/types"
	"github.com/google/uuid"
)

const accountColumns = `id, email, role, contact_person, phone, address_line, city, state, country,
		profile, password_hash, created_at, updated_at`

// AccountRepository handles persistence for accounts.
type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func scanAccount(row rowScanner) (types.Account, error) {
	var account types.Account
	var role string
	var profileJSON []byte
	if err := row.Scan(
		&account.ID,
		&account.Email,
		&role,
		&account.ContactPerson,
		&account.Phone,
		&account.Address.Line,
		&account.Address.City,
		&account.Address.State,
		&account.Address.Country,
		&profileJSON,
		&account.PasswordHash,
		&account.CreatedAt,
		&account.UpdatedAt,
	); err != nil {
		return types.Account{}, err
	}
	profile, err := types.DecodeProfile(types.Role(role), profileJSON)
	if err != nil {
		return types.Account{}, err
	}
	account.Profile = profile
	return account, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (types.Account, error) {
	if !validID(id) {
		return types.Account{}, ErrNotFound
	}
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	account, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Account{}, ErrNotFound
		}
		return types.Account{}, err
	}
	return account, nil
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (types.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	account, err := scanAccount(r.db.QueryRowContext(ctx, query, strings.ToLower(strings.TrimSpace(email))))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Account{}, ErrNotFound
		}
		return types.Account{}, err
	}
	return account, nil
}

func (r *AccountRepository) Create(ctx context.Context, account types.Account) (types.Account, error) {
	if account.Profile == nil {
		return types.Account{}, errors.New("account profile is required")
	}
	now := time.Now().UTC()
	account.ID = uuid.NewString()
	account.Email = strings.ToLower(strings.TrimSpace(account.Email))
	account.CreatedAt = now
	account.UpdatedAt = now

	profileJSON, err := json.Marshal(account.Profile)
	if err != nil {
		return types.Account{}, err
	}

	query := `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		account.ID,
		account.Email,
		string(account.Role()),
		account.ContactPerson,
		account.Phone,
		account.Address.Line,
		account.Address.City,
		account.Address.State,
		account.Address.Country,
		profileJSON,
		account.PasswordHash,
		account.CreatedAt,
		account.UpdatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return types.Account{}, ErrDuplicate
		}
		return types.Account{}, err
	}
	return account, nil
}

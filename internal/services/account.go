package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/foodshare/apiserver/internal/store"
	"github.com/foodshare/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

// AccountRepository defines persistence operations for accounts.
type AccountRepository interface {
	GetByID(ctx context.Context, id string) (types.Account, error)
	GetByEmail(ctx context.Context, email string) (types.Account, error)
	Create(ctx context.Context, account types.Account) (types.Account, error)
}

// AccountService encapsulates registration and login.
type AccountService struct {
	repo     AccountRepository
	hashCost int
}

func NewAccountService(repo AccountRepository) *AccountService {
	return &AccountService{repo: repo, hashCost: bcrypt.DefaultCost}
}

// WithHashCost returns a copy of the service hashing with cost. Tests use
// bcrypt.MinCost.
func (s *AccountService) WithHashCost(cost int) *AccountService {
	cp := *s
	cp.hashCost = cost
	return &cp
}

// RegisterInput is the data needed to open an account. Profile selects
// the role.
type RegisterInput struct {
	Email         string
	Password      string
	ContactPerson string
	Phone         string
	Address       types.Address
	Profile       types.Profile
}

// Register validates the input, hashes the password and stores the account.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (types.Account, error) {
	account := types.Account{
		Email:         strings.ToLower(strings.TrimSpace(in.Email)),
		ContactPerson: strings.TrimSpace(in.ContactPerson),
		Phone:         strings.TrimSpace(in.Phone),
		Address: types.Address{
			Line:    strings.TrimSpace(in.Address.Line),
			City:    strings.TrimSpace(in.Address.City),
			State:   strings.TrimSpace(in.Address.State),
			Country: strings.TrimSpace(in.Address.Country),
		},
		Profile: in.Profile,
	}
	if err := account.Validate(); err != nil {
		return types.Account{}, fromFieldsError(err)
	}
	if _, err := mail.ParseAddress(account.Email); err != nil {
		return types.Account{}, invalid("email is not a valid address", "email")
	}
	if in.Password == "" {
		return types.Account{}, invalid("password is required", "password")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return types.Account{}, invalid("password is too long", "password")
		}
		return types.Account{}, fmt.Errorf("hash password: %w", err)
	}
	account.PasswordHash = string(hashed)

	created, err := s.repo.Create(ctx, account)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return types.Account{}, ErrDuplicateEmail
		}
		return types.Account{}, fmt.Errorf("create account: %w", err)
	}
	return created, nil
}

// Authenticate returns the account matching email and password.
func (s *AccountService) Authenticate(ctx context.Context, email, password string) (types.Account, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return types.Account{}, invalid("missing credentials", "email", "password")
	}

	account, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Account{}, ErrInvalidCredentials
		}
		return types.Account{}, fmt.Errorf("load account: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return types.Account{}, ErrInvalidCredentials
	}
	return account, nil
}

func (s *AccountService) GetByID(ctx context.Context, id string) (types.Account, error) {
	account, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.Account{}, translate(err, "get account")
	}
	return account, nil
}

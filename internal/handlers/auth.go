package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/foodshare/apiserver/internal/services"
	"github.com/foodshare/apiserver/types"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const defaultTokenTTL = time.Hour

// AuthHandler provides JWT authentication endpoints.
type AuthHandler struct {
	accounts *services.AccountService
	secret   []byte
	tokenTTL time.Duration
	log      *zap.Logger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(accounts *services.AccountService, jwtSecret string, tokenTTL time.Duration, log *zap.Logger) *AuthHandler {
	if tokenTTL <= 0 {
		tokenTTL = defaultTokenTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{
		accounts: accounts,
		secret:   []byte(jwtSecret),
		tokenTTL: tokenTTL,
		log:      log,
	}
}

// AuthRouter registers auth routes on the given router. limit, when set,
// guards the credential endpoints.
func AuthRouter(r chi.Router, handler *AuthHandler, limit func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		if limit != nil {
			r.Use(limit)
		}
		r.Post("/register", handler.Register)
		r.Post("/login", handler.Login)
	})
	r.With(handler.RequireAuth).Get("/me", handler.Me)
}

// RequireAuth enforces JWT authentication and injects the principal into context.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return RequireAuth(string(h.secret))(next)
}

// RequireAuth constructs auth middleware for other routers.
func RequireAuth(jwtSecret string) func(http.Handler) http.Handler {
	secret := []byte(jwtSecret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			principal, err := parseToken(tokenString, secret)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), principal)))
		})
	}
}

// Register creates a new NGO or canteen account and returns a JWT.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	profile, err := req.profile()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	account, err := h.accounts.Register(r.Context(), services.RegisterInput{
		Email:         req.Email,
		Password:      req.Password,
		ContactPerson: req.ContactPerson,
		Phone:         req.Phone,
		Address: types.Address{
			Line:    req.Address,
			City:    req.City,
			State:   req.State,
			Country: req.Country,
		},
		Profile: profile,
	})
	if err != nil {
		writeServiceError(w, h.log, err, "failed to register account")
		return
	}

	token, err := issueToken(account.Principal(), h.secret, h.tokenTTL)
	if err != nil {
		writeServiceError(w, h.log, err, "failed to create token")
		return
	}

	h.log.Info("account registered", zap.String("account_id", account.ID), zap.String("role", string(account.Role())))
	writeJSON(w, http.StatusCreated, AuthResponse{Token: token, Account: account})
}

// Login verifies credentials and returns a JWT.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	account, err := h.accounts.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, h.log, err, "failed to authenticate")
		return
	}

	token, err := issueToken(account.Principal(), h.secret, h.tokenTTL)
	if err != nil {
		writeServiceError(w, h.log, err, "failed to create token")
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{Token: token, Account: account})
}

// Me returns the current authenticated account.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal, err := PrincipalFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	account, err := h.accounts.GetByID(r.Context(), principal.ID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		writeServiceError(w, h.log, err, "failed to load account")
		return
	}

	writeJSON(w, http.StatusOK, account)
}

// RegisterRequest is the flat registration form. AccountType selects which
// of the profile fields apply.
type RegisterRequest struct {
	AccountType      string `json:"account_type"`
	Email            string `json:"email"`
	Password         string `json:"password"`
	ContactPerson    string `json:"contact_person"`
	Phone            string `json:"phone"`
	Address          string `json:"address"`
	City             string `json:"city"`
	State            string `json:"state"`
	Country          string `json:"country"`
	OrgName          string `json:"org_name,omitempty"`
	RegNumber        string `json:"reg_number,omitempty"`
	About            string `json:"about,omitempty"`
	CanteenName      string `json:"canteen_name,omitempty"`
	SurplusCapacity  int    `json:"surplus_capacity,omitempty"`
	OperationalHours string `json:"operational_hours,omitempty"`
}

func (req RegisterRequest) profile() (types.Profile, error) {
	role, ok := types.ParseRole(strings.TrimSpace(req.AccountType))
	if !ok {
		return nil, errors.New("account_type must be NGO or Canteen")
	}
	if role == types.RoleNGO {
		return types.NGOProfile{
			OrgName:   strings.TrimSpace(req.OrgName),
			RegNumber: strings.TrimSpace(req.RegNumber),
			About:     strings.TrimSpace(req.About),
		}, nil
	}
	return types.CanteenProfile{
		CanteenName:      strings.TrimSpace(req.CanteenName),
		SurplusCapacity:  req.SurplusCapacity,
		OperationalHours: strings.TrimSpace(req.OperationalHours),
	}, nil
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token   string        `json:"token"`
	Account types.Account `json:"account"`
}

// tokenClaims carries the account ID in sub and its role.
type tokenClaims struct {
	Role types.Role `json:"role"`
	jwt.RegisteredClaims
}

func issueToken(principal types.Principal, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		Role: principal.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func parseToken(tokenString string, secret []byte) (types.Principal, error) {
	claims := tokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return types.Principal{}, err
	}
	if !token.Valid {
		return types.Principal{}, errors.New("invalid token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return types.Principal{}, errors.New("missing subject")
	}
	role, ok := types.ParseRole(string(claims.Role))
	if !ok {
		return types.Principal{}, errors.New("invalid role")
	}
	return types.Principal{ID: claims.Subject, Role: role}, nil
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}

func writeDecodeError(w http.ResponseWriter, err error) {
	if isBodyTooLarge(err) {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	writeError(w, http.StatusBadRequest, "invalid request")
}

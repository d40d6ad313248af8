package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidCredentials is returned for every failed login attempt. The
// message is deliberately generic so it never reveals which field was wrong.
var ErrInvalidCredentials = errors.New("invalid credentials")

var ErrInvalidToken = errors.New("invalid admin token")

// Admin authenticates the single configured admin account and issues
// short-lived bearer tokens for the admin panel.
type Admin struct {
	identifier string
	phone      string
	password   string
	secret     []byte
	tokenTTL   time.Duration
	now        func() time.Time
}

type adminClaims struct {
	jwt.RegisteredClaims
	Admin bool `json:"admin"`
}

// NewAdmin builds the authenticator. identifier is an email address matched
// case-insensitively; phone is an optional second identifier matched exactly.
func NewAdmin(identifier, phone, password, secret string, tokenTTL time.Duration) *Admin {
	if tokenTTL <= 0 {
		tokenTTL = 12 * time.Hour
	}
	return &Admin{
		identifier: strings.ToLower(strings.TrimSpace(identifier)),
		phone:      strings.TrimSpace(phone),
		password:   password,
		secret:     []byte(secret),
		tokenTTL:   tokenTTL,
		now:        time.Now,
	}
}

// SetClock overrides the time source for tests.
func (a *Admin) SetClock(now func() time.Time) { a.now = now }

// Enabled reports whether an admin account is configured at all.
func (a *Admin) Enabled() bool {
	return a.identifier != "" && a.password != "" && len(a.secret) > 0
}

// Login checks an identifier (email or phone) and password and issues a
// token. Every failure path returns the same generic error.
func (a *Admin) Login(identifier, password string) (string, error) {
	if !a.Enabled() {
		return "", ErrInvalidCredentials
	}

	identifier = strings.TrimSpace(identifier)
	emailMatch := strings.ToLower(identifier) == a.identifier
	phoneMatch := a.phone != "" && identifier == a.phone
	if !emailMatch && !phoneMatch {
		return "", ErrInvalidCredentials
	}
	if subtle.ConstantTimeCompare([]byte(password), []byte(a.password)) != 1 {
		return "", ErrInvalidCredentials
	}

	now := a.now()
	claims := adminClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "admin",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.tokenTTL)),
		},
		Admin: true,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// Verify checks a bearer token issued by Login.
func (a *Admin) Verify(tokenString string) error {
	if !a.Enabled() {
		return ErrInvalidToken
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}))
	claims := &adminClaims{}
	parsed, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil || !parsed.Valid || !claims.Admin {
		return ErrInvalidToken
	}
	return nil
}

// Middleware rejects requests without a valid admin bearer token.
func (a *Admin) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || a.Verify(strings.TrimSpace(token)) != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

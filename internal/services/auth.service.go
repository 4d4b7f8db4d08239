package services

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"os"
	"strings"
	"time"

	"emperror.dev/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

const (
	tokenIssuer        = "metricwatch"
	minSecretKeyLength = 32
	defaultTokenExpiry = 24 * time.Hour
)

// ErrInvalidCredentials is returned by Login for a wrong username or password.
const ErrInvalidCredentials = errors.Sentinel("invalid credentials")

// AuthService issues and validates dashboard session tokens.
type AuthService struct {
	secretKey   []byte
	tokenExpiry time.Duration
	username    string
	password    string
	now         func() time.Time
}

// CustomClaims represents the JWT claims structure
type CustomClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// AuthConfig carries the inputs needed to build an AuthService.
type AuthConfig struct {
	Secret      string
	SecretFile  string
	TokenExpiry time.Duration
	Username    string
	Password    string
}

// NewAuthService resolves the signing key: the configured secret, else the
// contents of SecretFile, else a random key that is written to SecretFile
// when one is configured.
func NewAuthService(cfg AuthConfig, logger zerolog.Logger) (*AuthService, error) {
	secret := strings.TrimSpace(cfg.Secret)

	if secret == "" && cfg.SecretFile != "" {
		if data, err := os.ReadFile(cfg.SecretFile); err == nil && len(strings.TrimSpace(string(data))) > 0 {
			secret = strings.TrimSpace(string(data))
			logger.Info().Str("file", cfg.SecretFile).Msg("Loaded persisted secret key")
		}
	}

	if secret == "" {
		randomBytes := make([]byte, minSecretKeyLength)
		if _, err := rand.Read(randomBytes); err != nil {
			return nil, errors.Wrap(err, "generate secret key")
		}
		secret = hex.EncodeToString(randomBytes)

		if cfg.SecretFile != "" {
			if err := os.WriteFile(cfg.SecretFile, []byte(secret), 0600); err != nil {
				logger.Warn().Err(err).Str("file", cfg.SecretFile).Msg("Could not persist secret key")
			} else {
				logger.Info().Str("file", cfg.SecretFile).Msg("Generated and persisted secret key")
			}
		} else {
			logger.Warn().Msg("No secret configured, tokens will not survive a restart")
		}
	}

	if len(secret) < minSecretKeyLength {
		logger.Warn().Int("length", len(secret)).Msg("Secret key is shorter than 32 bytes")
	}

	expiry := cfg.TokenExpiry
	if expiry <= 0 {
		expiry = defaultTokenExpiry
	}

	return &AuthService{
		secretKey:   []byte(secret),
		tokenExpiry: expiry,
		username:    cfg.Username,
		password:    cfg.Password,
		now:         time.Now,
	}, nil
}

// Login checks the configured credentials and returns a signed token.
// An empty configured password disables login.
func (a *AuthService) Login(username, password string) (string, time.Time, error) {
	if a.password == "" {
		return "", time.Time{}, ErrInvalidCredentials
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(a.password)) == 1
	if !userOK || !passOK {
		return "", time.Time{}, ErrInvalidCredentials
	}
	return a.GenerateToken(username)
}

// GenerateToken creates a signed token for username.
func (a *AuthService) GenerateToken(username string) (string, time.Time, error) {
	now := a.now()
	expiresAt := now.Add(a.tokenExpiry)

	claims := CustomClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   username,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secretKey)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "sign token")
	}
	return signed, expiresAt, nil
}

// ValidateToken verifies and parses a JWT token
func (a *AuthService) ValidateToken(tokenString string) (*CustomClaims, error) {
	claims := &CustomClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secretKey, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

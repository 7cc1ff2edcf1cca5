package auth

import (
	"github.com/rs/zerolog"

	"regime-trading-bot/config"
)

// Service authenticates the single configured operator account.
type Service struct {
	enabled  bool
	user     string
	passHash string
	jwt      *JWTManager
	logger   zerolog.Logger
}

func NewService(cfg config.AuthConfig, logger zerolog.Logger) *Service {
	return &Service{
		enabled:  cfg.Enabled,
		user:     cfg.OperatorUser,
		passHash: cfg.OperatorPassHash,
		jwt:      NewJWTManager(cfg.JWTSecret, cfg.AccessTokenDuration),
		logger:   logger.With().Str("component", "Auth").Logger(),
	}
}

// Enabled reports whether routes require a token.
func (s *Service) Enabled() bool { return s.enabled }

// JWT exposes the token manager for the middleware.
func (s *Service) JWT() *JWTManager { return s.jwt }

// Login checks the operator credentials and issues an access token.
func (s *Service) Login(username, password string) (TokenResponse, error) {
	if s.user == "" || s.passHash == "" {
		return TokenResponse{}, ErrNotConfigured
	}
	// always run bcrypt so a wrong username costs the same as a wrong password
	ok := VerifyPassword(password, s.passHash)
	if !sameUser(username, s.user) || !ok {
		s.logger.Warn().Str("username", username).Msg("Operator login failed")
		return TokenResponse{}, ErrInvalidCredentials
	}
	tok, err := s.jwt.GenerateAccessToken(OperatorClaims{Operator: s.user, Role: RoleOperator})
	if err != nil {
		return TokenResponse{}, err
	}
	s.logger.Info().Str("operator", s.user).Msg("Operator logged in")
	return tok, nil
}

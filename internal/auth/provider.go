package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/nordbak/jotta-rest-proxy/internal/config"
)

var (
	ErrNoPassword = errors.New("no password available for backend auth")
)

// Credentials is the single fixed credential pair the backend accepts.
type Credentials struct {
	Username string
	Password string
}

// BasicAuth renders the Authorization header value. It is built once at
// client construction and reused for every outbound call.
func (c Credentials) BasicAuth() string {
	pair := c.Username + ":" + c.Password
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(pair))
}

// Provider abstracts how we acquire the backend credentials.
// NOTE: This package never initializes logging; main() does via logx.InitFromEnv().
type Provider interface {
	Acquire(ctx context.Context) (Credentials, error)
}

// New selects the provider based on which config fields are set: an
// inline password wins, otherwise a password file is read per Acquire.
func New(cfg config.Config) (Provider, error) {
	username := strings.TrimSpace(cfg.Jotta.Username)
	if username == "" {
		return nil, errors.New("auth: username is empty")
	}

	if pw := strings.TrimSpace(cfg.Jotta.Password); pw != "" {
		log.Debug().
			Str("action", "auth_new").
			Str("method", "static").
			Msg("auth provider selected")
		return &staticProvider{username: username, password: pw}, nil
	}

	log.Debug().
		Str("action", "auth_new").
		Str("method", "file").
		Str("path", cfg.Jotta.PasswordFile).
		Msg("auth provider selected")
	return newFileProvider(username, cfg.Jotta.PasswordFile)
}

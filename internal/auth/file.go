package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
)

// fileProvider reads the password from a file on each Acquire, so a
// rotated mounted secret is picked up without a restart.
type fileProvider struct {
	username string
	path     string
}

func newFileProvider(username, path string) (*fileProvider, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("file auth requires a password file path")
	}
	return &fileProvider{username: username, path: path}, nil
}

func (p *fileProvider) Acquire(ctx context.Context) (Credentials, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return Credentials{}, fmt.Errorf("read password file: %w", err)
	}
	pw := strings.TrimSpace(string(data))
	if pw == "" {
		log.Debug().
			Str("action", "auth_acquire").
			Str("method", "file").
			Str("path", p.path).
			Msg("password file is empty")
		return Credentials{}, ErrNoPassword
	}
	log.Debug().
		Str("action", "auth_acquire").
		Str("method", "file").
		Msg("credentials acquired")
	return Credentials{Username: p.username, Password: pw}, nil
}

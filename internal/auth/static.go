package auth

import (
	"context"

	"github.com/rs/zerolog/log"
)

type staticProvider struct {
	username string
	password string
}

func (p *staticProvider) Acquire(ctx context.Context) (Credentials, error) {
	// Never log the password content.
	if p.password == "" {
		log.Debug().
			Str("action", "auth_acquire").
			Str("method", "static").
			Msg("missing password")
		return Credentials{}, ErrNoPassword
	}
	log.Debug().
		Str("action", "auth_acquire").
		Str("method", "static").
		Msg("credentials acquired")
	return Credentials{Username: p.username, Password: p.password}, nil
}

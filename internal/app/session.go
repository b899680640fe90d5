package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/VideoRoom/internal/core"
	"github.com/rs/zerolog/log"
)

// EngineInit prepares process-wide media state. It must be idempotent.
type EngineInit func() error

// OpenSession initializes the media engine, then opens a gateway session on
// the first reachable server.
func OpenSession(ctx context.Context, engine EngineInit, gw core.Gateway, servers []string) (core.Session, error) {
	if engine != nil {
		if err := engine(); err != nil {
			return nil, fmt.Errorf("%w: media engine: %w", core.ErrConnection, err)
		}
	}
	s, err := gw.OpenSession(ctx, servers)
	if err != nil {
		if errors.Is(err, core.ErrConnection) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", core.ErrConnection, err)
	}
	log.Info().Str("module", "app.session").Uint64("session", s.ID()).Strs("servers", servers).Msg("session opened")
	return s, nil
}

// CloseSession destroys the session on the gateway.
func CloseSession(ctx context.Context, s core.Session) error {
	if err := s.Destroy(ctx); err != nil {
		return fmt.Errorf("%w: destroy session %d: %w", core.ErrTeardown, s.ID(), err)
	}
	log.Info().Str("module", "app.session").Uint64("session", s.ID()).Msg("session closed")
	return nil
}

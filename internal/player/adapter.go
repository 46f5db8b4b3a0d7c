// SPDX-License-Identifier: MIT

// Package player binds an acquired media URL to a playback engine and owns
// the engine's lifecycle.
package player

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tenantcast/tenantcast/internal/log"
	"github.com/tenantcast/tenantcast/internal/metrics"
	"github.com/tenantcast/tenantcast/internal/signer"
)

// Media error codes, matching the HTML media element numbering.
const (
	CodeAborted         = 1
	CodeNetwork         = 2
	CodeDecode          = 3
	CodeSrcNotSupported = 4
)

// PlaybackError is an engine runtime error surfaced to the session layer.
type PlaybackError struct {
	Code    int
	Message string
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("playback error %d: %s", e.Code, e.Message)
}

// ErrPlaybackLocked is returned when a prior engine error has locked the
// adapter; only re-authentication (Reset) unlocks it. This prevents retry
// storms against an expired or invalid credential.
var ErrPlaybackLocked = errors.New("player: locked after playback error, re-authenticate to retry")

// Source is the binding input: a media URL plus the credential transport.
// For token mode the token travels as the "token" query parameter of every
// media request; the other modes read the shared cookie jar.
type Source struct {
	MediaURL string
	Mode     signer.TransportMode
	Token    string
}

// Engine is the playback engine contract. Open performs the source load and
// returns a *PlaybackError when the media cannot be played; Close releases
// the engine and must be safe to call more than once.
type Engine interface {
	Open(ctx context.Context, src Source) error
	Close() error
}

// EngineFactory creates a fresh engine per binding.
type EngineFactory func() Engine

// Adapter owns at most one live engine. Rebinding disposes the previous
// engine before creating the next, so no two engines are ever alive for the
// same mount point.
type Adapter struct {
	mu       sync.Mutex
	factory  EngineFactory
	engine   Engine
	src      Source
	hasError bool
	onError  func(PlaybackError)
	logger   zerolog.Logger
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithOnError registers a callback for engine errors.
func WithOnError(fn func(PlaybackError)) AdapterOption {
	return func(a *Adapter) { a.onError = fn }
}

// WithAdapterLogger overrides the component logger.
func WithAdapterLogger(l zerolog.Logger) AdapterOption {
	return func(a *Adapter) { a.logger = l }
}

// NewAdapter creates an adapter around the given engine factory.
func NewAdapter(factory EngineFactory, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		factory: factory,
		logger:  log.WithComponent("player"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Bind points the adapter at a media source. An existing engine bound to a
// different source is disposed first; binding the same source again is a
// no-op. After a playback error Bind refuses until Reset is called.
func (a *Adapter) Bind(ctx context.Context, src Source) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.hasError {
		return ErrPlaybackLocked
	}
	if a.engine != nil {
		if a.src == src {
			return nil
		}
		if err := a.engine.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("disposing previous engine failed")
		}
		a.engine = nil
		a.src = Source{}
	}

	engine := a.factory()
	if err := engine.Open(ctx, src); err != nil {
		_ = engine.Close()
		pe := asPlaybackError(err)
		a.hasError = true
		metrics.IncPlaybackError(pe.Code)
		a.logger.Warn().
			Str(log.FieldEvent, "player.engine_error").
			Str(log.FieldMediaURL, src.MediaURL).
			Int("code", pe.Code).
			Msg(pe.Message)
		if a.onError != nil {
			a.onError(pe)
		}
		return &pe
	}

	a.engine = engine
	a.src = src
	a.logger.Info().
		Str(log.FieldEvent, "player.bound").
		Str(log.FieldMediaURL, src.MediaURL).
		Str("mode", src.Mode.String()).
		Msg("media source bound")
	return nil
}

// Dispose releases the engine unconditionally. Safe to call when no engine
// exists.
func (a *Adapter) Dispose() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.engine == nil {
		return
	}
	if err := a.engine.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("disposing engine failed")
	}
	a.engine = nil
	a.src = Source{}
}

// Reset clears the error lockout. The session machine calls this when the
// user re-authenticates; nothing else may.
func (a *Adapter) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hasError = false
}

// Live reports whether an engine instance is currently bound.
func (a *Adapter) Live() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.engine != nil
}

func asPlaybackError(err error) PlaybackError {
	var pe *PlaybackError
	if errors.As(err, &pe) {
		return *pe
	}
	return PlaybackError{Code: CodeNetwork, Message: err.Error()}
}

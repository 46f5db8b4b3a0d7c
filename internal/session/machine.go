// SPDX-License-Identifier: MIT

package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tenantcast/tenantcast/internal/activity"
	"github.com/tenantcast/tenantcast/internal/log"
	"github.com/tenantcast/tenantcast/internal/metrics"
	"github.com/tenantcast/tenantcast/internal/player"
	"github.com/tenantcast/tenantcast/internal/signer"
)

var (
	// ErrSubmitInFlight rejects a submit while a credential request is outstanding.
	ErrSubmitInFlight = errors.New("session: authentication already in flight")

	// ErrAlreadyAuthenticated rejects a submit once the session is authenticated.
	ErrAlreadyAuthenticated = errors.New("session: already authenticated")
)

// User-facing guidance chosen by matching the failure reason.
const (
	guidanceCookies = "The backend could not establish signed cookies. Check that the tenant domain matches the cookie domain, then re-authenticate."
	guidanceURL     = "Signed URL generation failed. Check the API key and account type ID, then re-authenticate."
	guidanceGeneric = "Authentication failed. Please check credentials and try again."
)

// Acquirer obtains a playback credential. *signer.Client implements it.
type Acquirer interface {
	Acquire(ctx context.Context, req signer.Request, strategy signer.Strategy) (*signer.Credential, error)
}

// Binder is the playback adapter surface the machine drives.
type Binder interface {
	Bind(ctx context.Context, src player.Source) error
	Dispose()
	Reset()
}

// Form is one submit of the authentication form.
type Form struct {
	APIKey           string
	AccountTypeID    string
	TenantDomain     string
	Path             string
	PlaylistFile     string
	ExpiresInSeconds int
	Strategy         signer.Strategy
}

// State is an immutable view of the session for display.
type State struct {
	Phase        Phase
	TenantDomain string
	MediaURL     string
	Message      string
	ErrorDetail  string
	ExpiresAt    time.Time
}

// Machine is the session state machine. At most one credential request is in
// flight; re-submission is rejected while authenticating and once
// authenticated. MediaURL is non-empty exactly in the authenticated phase.
type Machine struct {
	mu           sync.Mutex
	phase        Phase
	tenantDomain string
	mediaURL     string
	message      string
	errDetail    string
	expiresAt    time.Time

	acquirer Acquirer
	binder   Binder
	trail    *activity.Log
	logger   zerolog.Logger
}

// New creates an idle session machine.
func New(acquirer Acquirer, binder Binder, trail *activity.Log) *Machine {
	return &Machine{
		phase:    PhaseIdle,
		acquirer: acquirer,
		binder:   binder,
		trail:    trail,
		logger:   log.WithComponent("session"),
	}
}

// Snapshot returns the current session state.
func (m *Machine) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{
		Phase:        m.phase,
		TenantDomain: m.tenantDomain,
		MediaURL:     m.mediaURL,
		Message:      m.message,
		ErrorDetail:  m.errDetail,
		ExpiresAt:    m.expiresAt,
	}
}

// Submit runs one authentication attempt: it acquires a credential with the
// form's strategy and, on success, binds the playback adapter to the derived
// media URL. It blocks until the flow finishes or ctx is done. Returns nil
// only when authentication succeeded and playback started.
func (m *Machine) Submit(ctx context.Context, form Form) error {
	m.mu.Lock()
	switch m.phase {
	case PhaseAuthenticating:
		m.mu.Unlock()
		return ErrSubmitInFlight
	case PhaseAuthenticated:
		m.mu.Unlock()
		return ErrAlreadyAuthenticated
	}
	attemptID := uuid.NewString()
	m.setPhaseLocked(PhaseAuthenticating)
	m.tenantDomain = form.TenantDomain
	m.mediaURL = ""
	m.errDetail = ""
	m.expiresAt = time.Time{}
	m.message = "Starting authentication for tenant: " + form.TenantDomain
	m.mu.Unlock()

	// Re-authentication is the one action that clears a playback lockout.
	m.binder.Reset()

	m.trail.Append("Starting authentication for tenant: " + form.TenantDomain)
	m.trail.Append("Calling authentication endpoint with API key")
	m.logger.Info().
		Str(log.FieldEvent, "session.submit").
		Str(log.FieldAttemptID, attemptID).
		Str(log.FieldTenant, form.TenantDomain).
		Str(log.FieldStrategy, form.Strategy.String()).
		Msg("authentication attempt started")

	ctx = log.ContextWithAttemptID(ctx, attemptID)
	cred, err := m.acquirer.Acquire(ctx, signer.Request{
		APIKey:           form.APIKey,
		AccountTypeID:    form.AccountTypeID,
		TenantDomain:     form.TenantDomain,
		Path:             form.Path,
		ExpiresInSeconds: form.ExpiresInSeconds,
		PlaylistFile:     form.PlaylistFile,
	}, form.Strategy)
	return m.applyResult(ctx, cred, err)
}

func (m *Machine) applyResult(ctx context.Context, cred *signer.Credential, err error) error {
	if err != nil {
		reason := signer.FailureReason(err)
		m.mu.Lock()
		m.setPhaseLocked(PhaseFailed)
		m.message = guidanceFor(reason)
		m.errDetail = err.Error()
		m.mu.Unlock()
		m.trail.Append("Authentication failed: " + reason)
		return err
	}

	m.mu.Lock()
	m.setPhaseLocked(PhaseAuthenticated)
	m.mediaURL = cred.MediaURL
	m.expiresAt = cred.ExpiresAt
	m.message = fmt.Sprintf("Authenticated successfully. Credential expires at %s.",
		cred.ExpiresAt.Format(time.RFC3339))
	m.mu.Unlock()
	m.trail.Append("Authentication successful. Credential received.")

	src := player.Source{MediaURL: cred.MediaURL, Mode: cred.Mode, Token: cred.Token}
	if bindErr := m.binder.Bind(ctx, src); bindErr != nil {
		m.trail.Append("Playback failed to start: " + bindErr.Error())
		m.mu.Lock()
		m.errDetail = bindErr.Error()
		m.mu.Unlock()
		return bindErr
	}
	m.trail.Append("Ready to start HLS streaming")
	return nil
}

// HandlePlaybackError records an engine runtime error. The session stays
// authenticated but playback remains locked until the user re-authenticates.
func (m *Machine) HandlePlaybackError(pe player.PlaybackError) {
	m.mu.Lock()
	m.errDetail = pe.Error()
	m.mu.Unlock()
	m.trail.Append("Playback error: " + pe.Message)
	m.logger.Warn().
		Str(log.FieldEvent, "session.playback_error").
		Int("code", pe.Code).
		Msg(pe.Message)
}

// Close disposes the playback binding.
func (m *Machine) Close() {
	m.binder.Dispose()
}

func (m *Machine) setPhaseLocked(next Phase) {
	old := m.phase
	if old == "" {
		old = PhaseIdle
	}
	m.phase = next
	metrics.IncTransition(old.String(), next.String())
	m.logger.Debug().
		Str(log.FieldEvent, "session.transition").
		Str(log.FieldOldPhase, old.String()).
		Str(log.FieldNewPhase, next.String()).
		Msg("phase transition")
}

// guidanceFor maps a failure reason to the user-facing guidance message by
// substring match. The raw reason stays available as ErrorDetail.
func guidanceFor(reason string) string {
	lower := strings.ToLower(reason)
	switch {
	case strings.Contains(lower, "signed cookies"):
		return guidanceCookies
	case strings.Contains(lower, "signed url"):
		return guidanceURL
	default:
		return guidanceGeneric
	}
}

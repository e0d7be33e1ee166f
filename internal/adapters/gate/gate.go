// Package gate authenticates inbound connections and enforces admission
// limits before any session logic runs.
package gate

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/calmbridge/televisit/internal/core"
	"github.com/calmbridge/televisit/internal/domain"
)

type Options struct {
	Secret          string
	Issuer          string
	AllowedOrigins  []string
	RequireTLS      bool
	AdmissionLimit  int
	AdmissionWindow time.Duration
}

// Gatekeeper screens a handshake in three stages: admission (per-address
// rate limit), transport/origin policy, then credential authentication.
type Gatekeeper struct {
	verifier  *TokenVerifier
	users     core.IdentityStore
	admission *AdmissionLimiter
	opts      Options
	sink      core.EventSink
}

func New(opts Options, users core.IdentityStore, sink core.EventSink) *Gatekeeper {
	if sink == nil {
		sink = core.NopSink{}
	}
	if opts.AdmissionLimit <= 0 {
		opts.AdmissionLimit = 10
	}
	if opts.AdmissionWindow <= 0 {
		opts.AdmissionWindow = time.Minute
	}
	return &Gatekeeper{
		verifier:  NewTokenVerifier(opts.Secret, opts.Issuer),
		users:     users,
		admission: NewAdmissionLimiter(opts.AdmissionLimit, opts.AdmissionWindow),
		opts:      opts,
		sink:      sink,
	}
}

// Admit checks the per-address sliding window. It runs before
// authentication is even attempted.
func (g *Gatekeeper) Admit(remoteAddr string) error {
	if !g.admission.Allow(remoteAddr) {
		g.sink.ConnectionRejected(core.ErrorCode(core.ErrRateLimited))
		return core.ErrRateLimited
	}
	return nil
}

// Screen applies hardened-mode transport checks: encrypted transport
// confirmation and the origin allow-list.
func (g *Gatekeeper) Screen(r *http.Request) error {
	if g.opts.RequireTLS && r.TLS == nil && r.Header.Get("X-Forwarded-Proto") != "https" {
		g.sink.ConnectionRejected(core.ErrorCode(core.ErrInsecureTransport))
		return core.ErrInsecureTransport
	}
	if origin := r.Header.Get("Origin"); origin != "" || len(g.opts.AllowedOrigins) > 0 {
		if !OriginAllowed(origin, g.opts.AllowedOrigins) {
			g.sink.ConnectionRejected(core.ErrorCode(core.ErrOriginForbidden))
			return core.ErrOriginForbidden
		}
	}
	return nil
}

// Authenticate verifies the bearer credential and resolves it to an
// immutable identity attached to the connection for its lifetime.
func (g *Gatekeeper) Authenticate(ctx context.Context, credential string) (domain.Identity, error) {
	userID, err := g.verifier.Verify(credential)
	if err != nil {
		g.sink.ConnectionRejected(core.ErrorCode(err))
		return domain.Identity{}, err
	}

	profile, err := g.users.FindUser(ctx, userID)
	if err != nil {
		if errors.Is(err, core.ErrUnknownUser) {
			g.sink.ConnectionRejected(core.ErrorCode(core.ErrUnknownUser))
			return domain.Identity{}, core.ErrUnknownUser
		}
		g.sink.ConnectionRejected(core.ErrorCode(core.ErrInternal))
		return domain.Identity{}, core.ErrInternal
	}

	id, err := domain.NewIdentity(profile.ID, profile.DisplayName, profile.Role)
	if err != nil {
		log.Error().Err(err).Str("module", "gate").Str("user", string(userID)).Msg("malformed directory record")
		g.sink.ConnectionRejected(core.ErrorCode(core.ErrInternal))
		return domain.Identity{}, core.ErrInternal
	}
	g.sink.ConnectionAccepted(id.UserID)
	return id, nil
}

// CredentialFromRequest extracts the bearer token from the Authorization
// header or, for browser WebSocket clients that cannot set headers, the
// token query parameter.
func CredentialFromRequest(r *http.Request) string {
	const prefix = "Bearer "
	if h := r.Header.Get("Authorization"); len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return r.URL.Query().Get("token")
}

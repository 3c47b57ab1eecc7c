package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"chatllm/internal/log"
)

// IdentityHeader is the header the gateway sets after authenticating the
// caller. The service trusts it; it must never be reachable without the
// gateway in front.
const IdentityHeader = "X-User-ID"

// ErrUnauthenticated is returned when a request carries no usable identity.
var ErrUnauthenticated = errors.New("unauthenticated")

// Authenticator resolves the owner identity of a request.
type Authenticator interface {
	Authenticate(r *http.Request) (uuid.UUID, error)
}

// HeaderAuthenticator reads the owner id from a trusted gateway header.
type HeaderAuthenticator struct {
	// Header overrides IdentityHeader when set.
	Header string
}

// Authenticate implements Authenticator.
func (a HeaderAuthenticator) Authenticate(r *http.Request) (uuid.UUID, error) {
	header := a.Header
	if header == "" {
		header = IdentityHeader
	}
	raw := r.Header.Get(header)
	if raw == "" {
		return uuid.Nil, ErrUnauthenticated
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errors.Join(ErrUnauthenticated, err)
	}
	return id, nil
}

type ownerKey struct{}

// requireAuth rejects unauthenticated requests and stores the owner id in
// the request context for handlers.
func requireAuth(auth Authenticator, next http.Handler, logger log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner, err := auth.Authenticate(r)
		if err != nil {
			logger.Debug("rejected unauthenticated request", "path", r.URL.Path)
			writeError(w, http.StatusUnauthorized, "unauthenticated", "missing or invalid identity")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerKey{}, owner)))
	})
}

// ownerFrom returns the authenticated owner stored by requireAuth.
func ownerFrom(ctx context.Context) uuid.UUID {
	owner, _ := ctx.Value(ownerKey{}).(uuid.UUID)
	return owner
}

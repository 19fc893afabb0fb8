// Package apikey implements the ApiKey half of C9: bearer-token extraction
// and Site resolution for endpoints that authenticate with an API key
// (the goals endpoint, and the shared cron-secret check) rather than the
// ingest endpoint's domain/server-key model.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"github.com/lanternmetrics/ingest-core/internal/models"
	"github.com/lanternmetrics/ingest-core/internal/repository"
)

// ErrMissingToken is returned when the request carries no bearer token.
var ErrMissingToken = errors.New("apikey: missing bearer token")

// ErrNotFound is returned when no Site matches the presented key.
var ErrNotFound = errors.New("apikey: no site for this key")

// ExtractBearer pulls the token out of an Authorization: Bearer <token>
// header, tolerating a bare token with no "Bearer " prefix.
func ExtractBearer(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", ErrMissingToken
	}
	token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// Hash returns the SHA-256 hex digest of an API key, the form Site.APIKeyHash
// is stored as.
func Hash(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Resolver looks up the Site that issued a bearer token.
type Resolver struct {
	sites repository.SiteRepository
}

// NewResolver constructs a Resolver backed by sites.
func NewResolver(sites repository.SiteRepository) *Resolver {
	return &Resolver{sites: sites}
}

// Resolve extracts the bearer token from r and returns the Site it
// authenticates, or ErrMissingToken / ErrNotFound.
func (res *Resolver) Resolve(ctx context.Context, r *http.Request) (*models.Site, error) {
	token, err := ExtractBearer(r)
	if err != nil {
		return nil, err
	}

	site, err := res.sites.GetByAPIKeyHash(ctx, Hash(token))
	if errors.Is(err, repository.ErrSiteNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return site, nil
}

// ExtractCronSecret pulls a shared-secret value from the three forms §6
// allows a cron invocation to authenticate with: an Authorization: Bearer
// header, the x-cron-secret header, or a ?secret= query parameter, in that
// order of preference.
func ExtractCronSecret(r *http.Request) string {
	if auth := strings.TrimSpace(r.Header.Get("Authorization")); auth != "" {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	if h := strings.TrimSpace(r.Header.Get("x-cron-secret")); h != "" {
		return h
	}
	return strings.TrimSpace(r.URL.Query().Get("secret"))
}

// MatchesCronSecret reports whether r carries a value matching configured
// via any of the ExtractCronSecret forms, compared in constant time.
// configured == "" never matches, so cron endpoints fail closed when unset.
func MatchesCronSecret(r *http.Request, configured string) bool {
	if configured == "" {
		return false
	}
	presented := ExtractCronSecret(r)
	if presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(configured)) == 1
}

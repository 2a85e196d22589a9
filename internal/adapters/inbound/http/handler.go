// handler.go provides the read-only REST API over the identity and directory caches.
//
//   - GET /health
//   - GET /v1/networks/{network}/identities/{address}
//   - GET /v1/networks/{network}/avatars/{address}
//   - GET /v1/networks/{network}/verifications/{address}
//   - GET /v1/networks/{network}/users/{key}
//   - GET /v1/networks/{network}/search?prefix=
//
// {network} is a network name ("rinkeby") or a numeric id. {key} is an address
// or a username.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/keymesh/socialproof/internal/domain/entity"
	"github.com/keymesh/socialproof/internal/ports/inbound"
)

// refreshTimeout bounds a background re-check started by the verifications endpoint.
const refreshTimeout = 30 * time.Second

// Handler implements HTTP handlers for the API.
type Handler struct {
	identities inbound.IdentityService
	directory  inbound.DirectoryService
	rechecker  inbound.RecheckService
	health     inbound.HealthChecker
	logger     *slog.Logger

	refreshes singleflight.Group
	inflight  sync.WaitGroup
}

// NewHandler creates a new HTTP handler. rechecker and health may be nil.
func NewHandler(identities inbound.IdentityService, directory inbound.DirectoryService, rechecker inbound.RecheckService, health inbound.HealthChecker, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		identities: identities,
		directory:  directory,
		rechecker:  rechecker,
		health:     health,
		logger:     logger.With("component", "http-handler"),
	}
}

// RegisterRoutes registers the HTTP routes with the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /v1/networks/{network}/identities/{address}", h.GetIdentity)
	mux.HandleFunc("GET /v1/networks/{network}/avatars/{address}", h.GetAvatarHash)
	mux.HandleFunc("GET /v1/networks/{network}/verifications/{address}", h.GetVerifications)
	mux.HandleFunc("GET /v1/networks/{network}/users/{key}", h.LookupUsers)
	mux.HandleFunc("GET /v1/networks/{network}/search", h.SearchUsers)
}

// Wait blocks until background refreshes have finished.
func (h *Handler) Wait() {
	h.inflight.Wait()
}

// Health handles the health check endpoint.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.Ping(r.Context()); err != nil {
			h.logger.Warn("health check failed", "error", err)
			h.respondError(w, http.StatusServiceUnavailable, "service unhealthy")
			return
		}
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) GetIdentity(w http.ResponseWriter, r *http.Request) {
	network, ok := h.network(w, r)
	if !ok {
		return
	}
	identity, err := h.identities.GetIdentity(r.Context(), network, r.PathValue("address"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, identity)
}

func (h *Handler) GetAvatarHash(w http.ResponseWriter, r *http.Request) {
	network, ok := h.network(w, r)
	if !ok {
		return
	}
	hash, err := h.identities.GetAvatarHash(r.Context(), network, r.PathValue("address"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"avatarHash": hash})
}

// GetVerifications returns the cached state immediately and re-checks stale
// entries in the background.
func (h *Handler) GetVerifications(w http.ResponseWriter, r *http.Request) {
	network, ok := h.network(w, r)
	if !ok {
		return
	}
	address := r.PathValue("address")
	verifications, err := h.identities.GetVerifications(r.Context(), network, address)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.refreshInBackground(r.Context(), network, address)
	h.respondJSON(w, http.StatusOK, verifications)
}

func (h *Handler) refreshInBackground(ctx context.Context, network entity.NetworkID, address string) {
	if h.rechecker == nil {
		return
	}
	key := entity.NewRecordKey(network, address).String()
	bg := context.WithoutCancel(ctx)

	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		_, _, _ = h.refreshes.Do(key, func() (any, error) {
			ctx, cancel := context.WithTimeout(bg, refreshTimeout)
			defer cancel()
			platforms, err := h.rechecker.RefreshStale(ctx, network, address)
			if err != nil {
				h.logger.Warn("background re-check failed", "key", key, "error", err)
			} else if len(platforms) > 0 {
				h.logger.Debug("background re-check done", "key", key, "platforms", platforms)
			}
			return nil, err
		})
	}()
}

func (h *Handler) LookupUsers(w http.ResponseWriter, r *http.Request) {
	network, ok := h.network(w, r)
	if !ok {
		return
	}
	profiles, err := h.directory.Lookup(r.Context(), network, r.PathValue("key"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, profiles)
}

func (h *Handler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	network, ok := h.network(w, r)
	if !ok {
		return
	}
	prefix := r.URL.Query().Get("prefix")
	if prefix == "" {
		h.respondError(w, http.StatusBadRequest, "prefix is required")
		return
	}
	profiles, err := h.directory.Search(r.Context(), network, prefix)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, profiles)
}

func (h *Handler) network(w http.ResponseWriter, r *http.Request) (entity.NetworkID, bool) {
	network, err := entity.ParseNetworkID(r.PathValue("network"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return 0, false
	}
	return network, true
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, entity.ErrNotFound), errors.Is(err, entity.ErrUnverified):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrAlreadyExists), errors.Is(err, entity.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, entity.ErrTransientIO), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "status", status, "error", err)
		h.respondError(w, status, http.StatusText(status))
		return
	}
	h.respondError(w, status, err.Error())
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

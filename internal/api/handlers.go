package api

import (
	"context"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"govdash/internal/domain/account"
	"govdash/internal/domain/proxy"
	"govdash/internal/domain/topic"
	"govdash/internal/events"
	pgrepo "govdash/internal/repository/postgres"
	"govdash/internal/services/proxysetup"
	"govdash/internal/services/timeline"
	"govdash/pkg/errors"
	"govdash/pkg/logger"
	"govdash/pkg/pagination"
)

// TopicsFetcher triggers a topic fetch
type TopicsFetcher interface {
	FetchTopics(ctx context.Context, network topic.Network) (topic.Topics, error)
}

// TopicsReader exposes the folded topics state
type TopicsReader interface {
	Get(network topic.Network) (events.TopicsState, bool)
}

// SnapshotHistory lists archived fetches
type SnapshotHistory interface {
	History(ctx context.Context, network topic.Network, beforeID int64, limit int) ([]pgrepo.TopicSnapshot, error)
}

// TimelineBuilder renders the timeline page model
type TimelineBuilder interface {
	Build(ctx context.Context, network topic.Network, voter *common.Address) (*timeline.Page, error)
}

// ProxySetup drives proxy setup sessions
type ProxySetup interface {
	Open(ctx context.Context, network topic.Network) (*proxy.Session, error)
	View(ctx context.Context, id uuid.UUID) (*proxysetup.View, error)
	Advance(ctx context.Context, id uuid.UUID, to proxy.Step, p proxy.Payload) (*proxy.Session, error)
	Reset(ctx context.Context, id uuid.UUID) (*proxy.Session, error)
	Dismiss(ctx context.Context, id uuid.UUID) error
	Close(ctx context.Context, id uuid.UUID) error
}

// AccountRegistry is the registry as the wallet bridge sees it
type AccountRegistry interface {
	account.Registry
	Register(ctx context.Context, acc account.Account) error
	SetActive(ctx context.Context, address common.Address) error
}

// Handlers serves the dashboard's JSON API
type Handlers struct {
	topics   TopicsFetcher
	store    TopicsReader
	history  SnapshotHistory
	timeline TimelineBuilder
	proxy    ProxySetup
	accounts AccountRegistry
	tracker  errors.Tracker
	log      *logger.Logger
}

func networkParam(r *http.Request) (topic.Network, error) {
	raw := r.URL.Query().Get("network")
	if raw == "" {
		return topic.Mainnet, nil
	}
	return topic.ParseNetwork(raw)
}

func sessionID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		return uuid.Nil, errors.Wrapf(errors.ErrInvalidInput, "session id: %v", err)
	}
	return id, nil
}

func (h *Handlers) breadcrumb(r *http.Request, message string, data map[string]interface{}) {
	if h.tracker != nil {
		h.tracker.AddBreadcrumb(r.Context(), message, "api", errors.LevelInfo, data)
	}
}

// Topics

func (h *Handlers) getTopics(w http.ResponseWriter, r *http.Request) {
	network, err := networkParam(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	state, _ := h.store.Get(network)
	writeJSON(w, http.StatusOK, state)
}

func (h *Handlers) getTopic(w http.ResponseWriter, r *http.Request) {
	network, err := networkParam(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	key := mux.Vars(r)["key"]
	state, _ := h.store.Get(network)
	t, ok := state.Topics.ByKey(key)
	if !ok {
		writeError(w, r, h.log, errors.Wrapf(errors.ErrNotFound, "topic %q on %s", key, network))
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handlers) refreshTopics(w http.ResponseWriter, r *http.Request) {
	network, err := networkParam(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	h.breadcrumb(r, "topics refresh", map[string]interface{}{"network": network.String()})

	if _, err := h.topics.FetchTopics(r.Context(), network); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	state, _ := h.store.Get(network)
	writeJSON(w, http.StatusOK, state)
}

func (h *Handlers) topicsHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, r, h.log, errors.Wrap(errors.ErrUnavailable, "snapshot archive not configured"))
		return
	}

	network, err := networkParam(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	page, err := pagination.ParseParams(r.URL.Query().Get("limit"), r.URL.Query().Get("after"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	before, _ := page.BeforeID()

	snaps, err := h.history.History(r.Context(), network, before, page.Limit+1)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	type entry struct {
		ID        int64  `json:"-"`
		RequestID int64  `json:"requestId"`
		FetchedAt string `json:"fetchedAt"`
	}
	out := make([]entry, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, entry{ID: s.ID, RequestID: s.RequestID, FetchedAt: s.FetchedAt.UTC().Format("2006-01-02T15:04:05.000Z")})
	}
	writeJSON(w, http.StatusOK, pagination.NewPage(out, page.Limit, func(e entry) int64 { return e.ID }))
}

func (h *Handlers) getTimeline(w http.ResponseWriter, r *http.Request) {
	network, err := networkParam(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	var voter *common.Address
	if raw := r.URL.Query().Get("account"); raw != "" {
		if !common.IsHexAddress(raw) {
			writeError(w, r, h.log, errors.NewValidationError("account", "not a hex address", raw))
			return
		}
		addr := common.HexToAddress(raw)
		voter = &addr
	}

	page, err := h.timeline.Build(r.Context(), network, voter)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Proxy setup

type openRequest struct {
	Network topic.Network `json:"network"`
}

type advanceRequest struct {
	To      proxy.Step    `json:"to"`
	Payload proxy.Payload `json:"payload"`
}

func (h *Handlers) openProxy(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	session, err := h.proxy.Open(r.Context(), req.Network)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (h *Handlers) getProxy(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	view, err := h.proxy.View(r.Context(), id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handlers) advanceProxy(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	var req advanceRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	h.breadcrumb(r, "proxy advance", map[string]interface{}{
		"session_id": id.String(),
		"to":         req.To.String(),
	})

	session, err := h.proxy.Advance(r.Context(), id, req.To, req.Payload)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handlers) resetProxy(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	session, err := h.proxy.Reset(r.Context(), id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handlers) dismissProxy(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	if err := h.proxy.Dismiss(r.Context(), id); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) closeProxy(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	if err := h.proxy.Close(r.Context(), id); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Accounts

type activeRequest struct {
	Address common.Address `json:"address"`
}

func (h *Handlers) listAccounts(w http.ResponseWriter, r *http.Request) {
	accs, err := h.accounts.List(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, accs)
}

func (h *Handlers) registerAccount(w http.ResponseWriter, r *http.Request) {
	var acc account.Account
	if err := decodeBody(w, r, &acc); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	if err := h.accounts.Register(r.Context(), acc); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, acc)
}

func (h *Handlers) activeAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := h.accounts.Active(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (h *Handlers) setActiveAccount(w http.ResponseWriter, r *http.Request) {
	var req activeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	if err := h.accounts.SetActive(r.Context(), req.Address); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	acc, err := h.accounts.Get(r.Context(), req.Address)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

// Package handlers implements the wire protocol endpoints: batchGet,
// commit, beginTransaction and rollback.
package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/firelite/firelite-backend/internal/document"
	"github.com/firelite/firelite-backend/internal/events"
	"github.com/firelite/firelite-backend/internal/store"
	"github.com/firelite/firelite-backend/internal/transaction"
	"github.com/firelite/firelite-backend/internal/utils/errors"
	httputils "github.com/firelite/firelite-backend/internal/utils/http"
	"github.com/firelite/firelite-backend/internal/writes"
)

// Handler carries the engine state all endpoints share. One Handler per
// emulated database; no module-level singletons, so tests get a fresh
// world each.
type Handler struct {
	store   store.Storer
	manager *transaction.Manager
	engine  *writes.Engine
	events  events.EventPublisher

	now func() time.Time
}

// NewHandler wires a handler over the given store. publisher receives one
// event per committed write; pass events.NopPublisher without a watch
// subsystem.
func NewHandler(st store.Storer, publisher events.EventPublisher) *Handler {
	return &Handler{
		store:   st,
		manager: transaction.NewManager(st),
		engine:  writes.NewEngine(st),
		events:  publisher,
		now:     time.Now,
	}
}

// Manager exposes the transaction manager, for wiring and tests.
func (h *Handler) Manager() *transaction.Manager {
	return h.manager
}

// NewRouter mounts the four endpoints under
// /v1/projects/{projectId}/databases/{databaseId}/documents:{method}.
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/v1/projects/{projectId}/databases/{databaseId}/{target}", h.dispatch).Methods("POST")
	return r
}

func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	if err := document.ValidateDatabase(vars["projectId"], vars["databaseId"]); err != nil {
		httputils.SendErrorResponse(w, r, err)
		return
	}

	switch vars["target"] {
	case "documents:batchGet":
		h.BatchGet(w, r)
	case "documents:commit":
		h.Commit(w, r)
	case "documents:beginTransaction":
		h.BeginTransaction(w, r)
	case "documents:rollback":
		h.Rollback(w, r)
	default:
		httputils.SendErrorResponse(w, r, &errors.NotFoundError{Msg: fmt.Sprintf("Unknown method %q", vars["target"])})
	}
}

type transactionOptions struct {
	ReadOnly  *readOnlyOptions  `json:"readOnly,omitempty"`
	ReadWrite *readWriteOptions `json:"readWrite,omitempty"`
}

type readOnlyOptions struct {
	// ReadTime is accepted for wire compatibility; the engine serves a
	// single point in time and ignores it.
	ReadTime string `json:"readTime,omitempty"`
}

type readWriteOptions struct {
	RetryTransaction string `json:"retryTransaction,omitempty"`
}

package handlers

import (
	"net/http"

	"github.com/firelite/firelite-backend/internal/document"
	"github.com/firelite/firelite-backend/internal/logging"
	"github.com/firelite/firelite-backend/internal/utils/errors"
	httputils "github.com/firelite/firelite-backend/internal/utils/http"
	"github.com/firelite/firelite-backend/internal/writes"
)

type commitRequest struct {
	Writes      []writes.Write `json:"writes" validate:"max=500"`
	Transaction string         `json:"transaction,omitempty"`
}

type commitResponse struct {
	WriteResults []writes.WriteResult `json:"writeResults"`
	CommitTime   string               `json:"commitTime"`
}

//Commit Handler
func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	var ctx = r.Context()
	logger := logging.FromContext(ctx)

	var request commitRequest
	if !httputils.DecodeJSONOrReportError(w, r, &request) {
		return
	}

	logger.Debugf("Handling Commit request: %d writes, transaction %q", len(request.Writes), request.Transaction)

	// One commit at a time. Conflict detection, validation and application
	// must all see the same live store, and no transaction snapshot may be
	// taken while a batch is half applied.
	lock := h.manager.StoreLock()
	lock.Lock()
	defer lock.Unlock()

	commitTime := h.now()

	if request.Transaction != "" {
		state, err := h.manager.Active(request.Transaction)
		if err != nil {
			httputils.SendErrorResponse(w, r, err)
			return
		}
		if state.ReadOnly && len(request.Writes) > 0 {
			h.manager.Abort(request.Transaction)
			httputils.SendErrorResponse(w, r, &errors.MalformedRequestError{Msg: "Cannot write in a read-only transaction"})
			return
		}
		if err := h.manager.DetectConflicts(request.Transaction); err != nil {
			// A conflicting commit attempt is terminal for the transaction.
			h.manager.Abort(request.Transaction)
			logger.Debugf("Commit of transaction %q aborted: %v", request.Transaction, err)
			httputils.SendErrorResponse(w, r, err)
			return
		}
	}

	results, applied, err := h.engine.ApplyAll(request.Writes, commitTime)
	if err != nil {
		if request.Transaction != "" {
			h.manager.Abort(request.Transaction)
		}
		httputils.SendErrorResponse(w, r, err)
		return
	}

	if request.Transaction != "" {
		if err := h.manager.Commit(request.Transaction); err != nil {
			httputils.SendErrorResponse(w, r, err)
			return
		}
	}

	for _, change := range applied {
		h.events.Publish(change.Path, change.Doc)
	}

	if results == nil {
		results = []writes.WriteResult{}
	}
	httputils.SendResponse(w, r, commitResponse{
		WriteResults: results,
		CommitTime:   document.FormatTimestamp(commitTime),
	})
}

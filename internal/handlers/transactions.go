package handlers

import (
	"net/http"

	"github.com/firelite/firelite-backend/internal/logging"
	httputils "github.com/firelite/firelite-backend/internal/utils/http"
)

type beginTransactionRequest struct {
	Options *transactionOptions `json:"options,omitempty"`
}

type beginTransactionResponse struct {
	Transaction string `json:"transaction"`
}

//BeginTransaction Handler
func (h *Handler) BeginTransaction(w http.ResponseWriter, r *http.Request) {
	var ctx = r.Context()
	logger := logging.FromContext(ctx)

	var request beginTransactionRequest
	if !httputils.DecodeJSONOrReportError(w, r, &request) {
		return
	}

	readOnly := request.Options != nil && request.Options.ReadOnly != nil
	state := h.manager.Create(readOnly)

	logger.Debugf("Started transaction %q (readOnly=%v)", state.ID, readOnly)

	httputils.SendResponse(w, r, beginTransactionResponse{Transaction: state.ID})
}

type rollbackRequest struct {
	Transaction string `json:"transaction" validate:"required"`
}

//Rollback Handler
func (h *Handler) Rollback(w http.ResponseWriter, r *http.Request) {
	var ctx = r.Context()
	logger := logging.FromContext(ctx)

	var request rollbackRequest
	if !httputils.DecodeJSONOrReportError(w, r, &request) {
		return
	}

	if err := h.manager.Rollback(request.Transaction); err != nil {
		httputils.SendErrorResponse(w, r, err)
		return
	}

	logger.Debugf("Rolled back transaction %q", request.Transaction)

	httputils.SendEmptyResponse(w, r)
}

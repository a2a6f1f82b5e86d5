package handlers

import (
	"net/http"

	"github.com/firelite/firelite-backend/internal/document"
	"github.com/firelite/firelite-backend/internal/logging"
	"github.com/firelite/firelite-backend/internal/utils/errors"
	httputils "github.com/firelite/firelite-backend/internal/utils/http"
	"github.com/firelite/firelite-backend/internal/writes"
)

type batchGetRequest struct {
	Documents      []string             `json:"documents" validate:"required,min=1,max=100"`
	Mask           *writes.DocumentMask `json:"mask,omitempty"`
	Transaction    string               `json:"transaction,omitempty"`
	NewTransaction *transactionOptions  `json:"newTransaction,omitempty"`
	ReadTime       string               `json:"readTime,omitempty"`
}

type batchGetResponseEntry struct {
	Found       *document.Document `json:"found,omitempty"`
	Missing     string             `json:"missing,omitempty"`
	ReadTime    string             `json:"readTime"`
	Transaction string             `json:"transaction,omitempty"`
}

//BatchGet Handler
func (h *Handler) BatchGet(w http.ResponseWriter, r *http.Request) {
	var ctx = r.Context()
	logger := logging.FromContext(ctx)

	var request batchGetRequest
	if !httputils.DecodeJSONOrReportError(w, r, &request) {
		return
	}

	logger.Debugf("Handling BatchGet request for %d documents", len(request.Documents))

	if request.Transaction != "" && request.NewTransaction != nil {
		httputils.SendErrorResponse(w, r, &errors.MalformedRequestError{Msg: "transaction and newTransaction are mutually exclusive"})
		return
	}

	// Every path must be valid before any read happens.
	for _, name := range request.Documents {
		if _, err := document.ParseName(name); err != nil {
			httputils.SendErrorResponse(w, r, err)
			return
		}
	}

	txnID := request.Transaction
	createdID := ""
	readTime := document.FormatTimestamp(h.now())

	if request.NewTransaction != nil {
		readOnly := request.NewTransaction.ReadOnly != nil
		state := h.manager.Create(readOnly)
		txnID = state.ID
		createdID = state.ID
		readTime = document.FormatTimestamp(state.StartTime)
	} else if txnID != "" {
		state, err := h.manager.Active(txnID)
		if err != nil {
			httputils.SendErrorResponse(w, r, err)
			return
		}
		readTime = document.FormatTimestamp(state.StartTime)
	}

	var maskPaths []string
	if request.Mask != nil {
		maskPaths = request.Mask.FieldPaths
	}

	// Direct reads run against the live store; take the read side of the
	// store lock so a multi-document read never interleaves with a commit.
	// Transactional reads are served from the snapshot and need no lock.
	if txnID == "" {
		lock := h.manager.StoreLock()
		lock.RLock()
		defer lock.RUnlock()
	}

	response := make([]batchGetResponseEntry, 0, len(request.Documents))
	for _, name := range request.Documents {
		var doc *document.Document
		if txnID != "" {
			snapshotted, err := h.manager.Read(txnID, name)
			if err != nil {
				httputils.SendErrorResponse(w, r, err)
				return
			}
			doc = snapshotted
		} else if live, ok := h.store.Get(name); ok {
			doc = live
		}

		entry := batchGetResponseEntry{ReadTime: readTime}
		if doc != nil {
			entry.Found = &document.Document{
				Name:       doc.Name,
				Fields:     document.ProjectMask(doc.Fields, maskPaths),
				CreateTime: doc.CreateTime,
				UpdateTime: doc.UpdateTime,
			}
		} else {
			entry.Missing = name
		}
		response = append(response, entry)
	}

	// A transaction opened by this call is announced on the first entry.
	if createdID != "" && len(response) > 0 {
		response[0].Transaction = createdID
	}

	httputils.SendResponse(w, r, response)
}

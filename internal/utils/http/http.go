package http

import (
	"encoding/json"
	ers "errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/firelite/firelite-backend/internal/logging"
	"github.com/firelite/firelite-backend/internal/utils"
	"github.com/firelite/firelite-backend/internal/utils/errors"
	"github.com/golang/gddo/httputil/header"
	rpccode "google.golang.org/genproto/googleapis/rpc/code"
)

// copied from https://www.alexedwards.net/blog/how-to-properly-parse-a-json-request-body
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	if r.Header.Get("Content-Type") != "" {
		value, _ := header.ParseValueAndParams(r.Header, "Content-Type")
		if value != "application/json" {
			msg := "Content-Type header is not application/json"
			return &errors.MalformedRequestError{Status: http.StatusUnsupportedMediaType, Msg: msg}
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, 10485760)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(&dst)
	if err != nil {
		var syntaxError *json.SyntaxError
		var unmarshalTypeError *json.UnmarshalTypeError

		switch {
		case ers.As(err, &syntaxError):
			msg := fmt.Sprintf("Request body contains badly-formed JSON (at position %d)", syntaxError.Offset)
			return &errors.MalformedRequestError{Status: http.StatusBadRequest, Msg: msg}

		case ers.Is(err, io.ErrUnexpectedEOF):
			msg := "Request body contains badly-formed JSON"
			return &errors.MalformedRequestError{Status: http.StatusBadRequest, Msg: msg}

		case ers.As(err, &unmarshalTypeError):
			msg := fmt.Sprintf("Request body contains an invalid value for the %q field (at position %d)", unmarshalTypeError.Field, unmarshalTypeError.Offset)
			return &errors.MalformedRequestError{Status: http.StatusBadRequest, Msg: msg}

		case strings.HasPrefix(err.Error(), "json: unknown field "):
			fieldName := strings.TrimPrefix(err.Error(), "json: unknown field ")
			msg := fmt.Sprintf("Request body contains unknown field %s", fieldName)
			return &errors.MalformedRequestError{Status: http.StatusBadRequest, Msg: msg}

		case ers.Is(err, io.EOF):
			msg := "Request body must not be empty"
			return &errors.MalformedRequestError{Status: http.StatusBadRequest, Msg: msg}

		case err.Error() == "http: request body too large":
			msg := "Request body must not be larger than 10MB"
			return &errors.MalformedRequestError{Status: http.StatusRequestEntityTooLarge, Msg: msg}

		default:
			// Value decoding failures (multi-tag objects etc.) surface here.
			return &errors.MalformedRequestError{Status: http.StatusBadRequest, Msg: err.Error()}
		}
	}

	err = dec.Decode(&struct{}{})
	if err != io.EOF {
		msg := "Request body must only contain a single JSON object"
		return &errors.MalformedRequestError{Status: http.StatusBadRequest, Msg: msg}
	}

	err = utils.Validate.Struct(dst)
	if err != nil {
		msg := fmt.Sprintf("Validation of the request has failed: %v", err.Error())
		return &errors.MalformedRequestError{Status: http.StatusBadRequest, Msg: msg}
	}

	return nil
}

//DecodeJSONOrReportError Decodes the request body into dst; on failure writes the error response and returns false.
func DecodeJSONOrReportError(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := DecodeJSONBody(w, r, dst); err != nil {
		SendErrorResponse(w, r, err)
		return false
	}
	return true
}

type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

//SendResponse Sends a 200 response with the given JSON body.
func SendResponse(w http.ResponseWriter, r *http.Request, response interface{}) {
	logger := logging.FromContext(r.Context())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.Warnf("Could not write response: %v", err)
	}
}

//SendEmptyResponse Sends a 200 response with an empty JSON object body.
func SendEmptyResponse(w http.ResponseWriter, r *http.Request) {
	SendResponse(w, r, struct{}{})
}

//SendErrorResponse Sends the error body for the given error, mapping its rpc code to an HTTP status.
func SendErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	logger := logging.FromContext(r.Context())

	code := rpccode.Code_INTERNAL
	var fe errors.FireliteError
	if ers.As(err, &fe) {
		code = fe.Code()
	}

	status := errors.HTTPStatus(code)
	var mr *errors.MalformedRequestError
	if ers.As(err, &mr) && mr.Status != 0 {
		status = mr.Status
	}

	body := errorResponse{Error: errorBody{
		Code:    status,
		Message: err.Error(),
		Status:  code.String(),
	}}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encodeErr := json.NewEncoder(w).Encode(body); encodeErr != nil {
		logger.Warnf("Could not write error response: %v", encodeErr)
	}
}

package errors

import (
	"net/http"

	rpccode "google.golang.org/genproto/googleapis/rpc/code"
)

//FireliteError Error with code.
type FireliteError interface {
	Code() rpccode.Code
	Error() string
}

//UnknownError Unknown error
type UnknownError struct {
	Msg string
}

func (e *UnknownError) Error() string {
	return e.Msg
}

//Code Code of the error.
func (e *UnknownError) Code() rpccode.Code {
	return rpccode.Code_INTERNAL
}

//MalformedRequestError Error for malformed request
type MalformedRequestError struct {
	Status int
	Msg    string
}

func (mr *MalformedRequestError) Error() string {
	return mr.Msg
}

//Code Code of the error.
func (mr *MalformedRequestError) Code() rpccode.Code {
	return rpccode.Code_INVALID_ARGUMENT
}

//NotFoundError Error for unknown paths and databases
type NotFoundError struct {
	Msg string
}

func (e *NotFoundError) Error() string {
	return e.Msg
}

//Code Code of the error.
func (e *NotFoundError) Code() rpccode.Code {
	return rpccode.Code_NOT_FOUND
}

//PreconditionError A write precondition did not hold against the current document.
type PreconditionError struct {
	Msg string
}

func (e *PreconditionError) Error() string {
	return e.Msg
}

//Code Code of the error.
func (e *PreconditionError) Code() rpccode.Code {
	return rpccode.Code_FAILED_PRECONDITION
}

//AlreadyExistsError An exists=false precondition met an existing document.
type AlreadyExistsError struct {
	Msg string
}

func (e *AlreadyExistsError) Error() string {
	return e.Msg
}

//Code Code of the error.
func (e *AlreadyExistsError) Code() rpccode.Code {
	return rpccode.Code_ALREADY_EXISTS
}

//ConflictError A transactional read was observed to have changed; the commit was discarded.
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string {
	return e.Msg
}

//Code Code of the error.
func (e *ConflictError) Code() rpccode.Code {
	return rpccode.Code_ABORTED
}

//HTTPStatus Maps an rpc code to the HTTP status the wire protocol uses.
func HTTPStatus(code rpccode.Code) int {
	switch code {
	case rpccode.Code_OK:
		return http.StatusOK
	case rpccode.Code_INVALID_ARGUMENT, rpccode.Code_FAILED_PRECONDITION:
		return http.StatusBadRequest
	case rpccode.Code_NOT_FOUND:
		return http.StatusNotFound
	case rpccode.Code_ALREADY_EXISTS, rpccode.Code_ABORTED:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

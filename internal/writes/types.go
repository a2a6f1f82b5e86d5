// Package writes validates and applies batches of write operations:
// preconditions, update masks and the field transform algebra.
package writes

import (
	"github.com/firelite/firelite-backend/internal/document"
	"github.com/firelite/firelite-backend/internal/value"
)

// ServerValueRequestTime is the only supported setToServerValue sentinel;
// the field becomes the commit timestamp.
const ServerValueRequestTime = "REQUEST_TIME"

//Precondition A condition that must hold on the current document for a write to be accepted.
type Precondition struct {
	Exists     *bool   `json:"exists,omitempty"`
	UpdateTime *string `json:"updateTime,omitempty"`
}

//DocumentMask A list of dot-separated field paths.
type DocumentMask struct {
	FieldPaths []string `json:"fieldPaths"`
}

//ArrayValue Wire shape of a bare value list, as carried by array transforms.
type ArrayValue struct {
	Values []value.Value `json:"values"`
}

// FieldTransform is one server-computed field mutation. Exactly one of the
// operation fields must be set.
type FieldTransform struct {
	FieldPath             string       `json:"fieldPath"`
	SetToServerValue      string       `json:"setToServerValue,omitempty"`
	Increment             *value.Value `json:"increment,omitempty"`
	Maximum               *value.Value `json:"maximum,omitempty"`
	Minimum               *value.Value `json:"minimum,omitempty"`
	AppendMissingElements *ArrayValue  `json:"appendMissingElements,omitempty"`
	RemoveAllFromArray    *ArrayValue  `json:"removeAllFromArray,omitempty"`
}

//DocumentTransform A standalone transform write: transforms applied to one document.
type DocumentTransform struct {
	Document        string           `json:"document"`
	FieldTransforms []FieldTransform `json:"fieldTransforms"`
}

// Write is one operation in a commit batch. Exactly one of Update, Delete
// and Transform must be set; UpdateMask and UpdateTransforms only apply to
// Update writes.
type Write struct {
	Update           *document.Document `json:"update,omitempty"`
	Delete           string             `json:"delete,omitempty"`
	Transform        *DocumentTransform `json:"transform,omitempty"`
	UpdateMask       *DocumentMask      `json:"updateMask,omitempty"`
	UpdateTransforms []FieldTransform   `json:"updateTransforms,omitempty"`
	CurrentDocument  *Precondition      `json:"currentDocument,omitempty"`
}

//WriteResult The per-write commit result. TransformResults is positional per transform.
type WriteResult struct {
	UpdateTime       string        `json:"updateTime,omitempty"`
	TransformResults []value.Value `json:"transformResults,omitempty"`
}

// AppliedWrite is what a write did to the store, for the commit event
// boundary. Doc is nil when the write deleted the document.
type AppliedWrite struct {
	Path string
	Doc  *document.Document
}

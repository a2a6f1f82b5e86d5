// Package document holds the document model shared by the storage,
// transaction and write layers: the document wire struct, the resource
// path grammar and dotted field path navigation.
package document

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/firelite/firelite-backend/internal/utils/errors"
	"github.com/firelite/firelite-backend/internal/value"
)

// DefaultDatabase is the only database id the engine serves. Anything else
// resolves to not-found, same as the real service without extra databases.
const DefaultDatabase = "(default)"

var projectIDPattern = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// Document is a stored document in its wire shape. UpdateTime carries the
// commit timestamp of the last write to this path and never decreases.
type Document struct {
	Name       string                 `json:"name"`
	Fields     map[string]value.Value `json:"fields,omitempty"`
	CreateTime string                 `json:"createTime,omitempty"`
	UpdateTime string                 `json:"updateTime,omitempty"`
}

// Copy deep-copies a document. nil stays nil, so snapshot code can copy
// read-as-missing entries without special cases.
func Copy(doc *Document) *Document {
	if doc == nil {
		return nil
	}
	out := *doc
	out.Fields = value.CopyFields(doc.Fields)
	return &out
}

// Equal reports full structural equality: name, both timestamps and deep
// field equality. Used by commit-time conflict detection, which must catch
// any external mutation, not just updateTime changes.
func Equal(a *Document, b *Document) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Name != b.Name || a.CreateTime != b.CreateTime || a.UpdateTime != b.UpdateTime {
		return false
	}
	return value.DeepEqual(value.MapOf(a.Fields), value.MapOf(b.Fields))
}

// Name is a parsed document resource path.
type Name struct {
	ProjectID string
	Database  string
	// Path holds the segments below /documents, alternating collection id
	// and document id.
	Path []string
}

// ParseName validates a full document resource path against the grammar
// projects/{projectId}/databases/{database}/documents/{collection}/{docId}(/{collection}/{docId})*.
// A malformed path is an invalid-argument error, an unsupported database a
// not-found error.
func ParseName(name string) (*Name, error) {
	segments := strings.Split(name, "/")
	if len(segments) < 7 {
		return nil, &errors.MalformedRequestError{Msg: fmt.Sprintf("Invalid document path: %q", name)}
	}
	for _, seg := range segments {
		if seg == "" {
			return nil, &errors.MalformedRequestError{Msg: fmt.Sprintf("Invalid document path: %q", name)}
		}
	}
	if segments[0] != "projects" || segments[2] != "databases" || segments[4] != "documents" {
		return nil, &errors.MalformedRequestError{Msg: fmt.Sprintf("Invalid document path: %q", name)}
	}
	if !projectIDPattern.MatchString(segments[1]) {
		return nil, &errors.MalformedRequestError{Msg: fmt.Sprintf("Invalid project id: %q", segments[1])}
	}
	if segments[3] != DefaultDatabase {
		return nil, &errors.NotFoundError{Msg: fmt.Sprintf("Database %q not found", segments[3])}
	}

	path := segments[5:]
	if len(path)%2 != 0 {
		return nil, &errors.MalformedRequestError{Msg: fmt.Sprintf("Document path must have an even number of segments: %q", name)}
	}

	return &Name{
		ProjectID: segments[1],
		Database:  segments[3],
		Path:      path,
	}, nil
}

// ValidateDatabase checks a project id and database id pair the way
// ParseName does, for callers that route on them without a full document
// path.
func ValidateDatabase(projectID string, database string) error {
	if !projectIDPattern.MatchString(projectID) {
		return &errors.MalformedRequestError{Msg: fmt.Sprintf("Invalid project id: %q", projectID)}
	}
	if database != DefaultDatabase {
		return &errors.NotFoundError{Msg: fmt.Sprintf("Database %q not found", database)}
	}
	return nil
}

// FormatTimestamp renders a commit or read timestamp the way the wire
// expects it, RFC3339 in UTC with millisecond precision.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(value.TimestampFormat)
}

// GetField resolves a dot-separated field path against a field map,
// descending through nested map values.
func GetField(fields map[string]value.Value, fieldPath string) (value.Value, bool) {
	parts := strings.Split(fieldPath, ".")
	current := fields
	for i, part := range parts {
		v, ok := current[part]
		if !ok {
			return value.Value{}, false
		}
		if i == len(parts)-1 {
			return v, true
		}
		if v.Kind != value.Map {
			return value.Value{}, false
		}
		current = v.Obj
	}
	return value.Value{}, false
}

// SetField writes v at a dot-separated field path, creating intermediate
// maps as needed and replacing non-map intermediates. Returns the
// (possibly newly allocated) root map.
func SetField(fields map[string]value.Value, fieldPath string, v value.Value) map[string]value.Value {
	if fields == nil {
		fields = map[string]value.Value{}
	}

	parts := strings.Split(fieldPath, ".")
	current := fields
	for i, part := range parts {
		if i == len(parts)-1 {
			current[part] = v
			return fields
		}
		next, ok := current[part]
		if !ok || next.Kind != value.Map || next.Obj == nil {
			next = value.MapOf(map[string]value.Value{})
			current[part] = next
		}
		current = next.Obj
	}
	return fields
}

// DeleteField removes the field at a dot-separated path if present.
func DeleteField(fields map[string]value.Value, fieldPath string) {
	parts := strings.Split(fieldPath, ".")
	current := fields
	for i, part := range parts {
		if current == nil {
			return
		}
		if i == len(parts)-1 {
			delete(current, part)
			return
		}
		next, ok := current[part]
		if !ok || next.Kind != value.Map {
			return
		}
		current = next.Obj
	}
}

// ProjectMask returns a copy of fields restricted to the given mask paths,
// the projection batchGet applies to read results. A nil mask means all
// fields.
func ProjectMask(fields map[string]value.Value, maskPaths []string) map[string]value.Value {
	if maskPaths == nil {
		return value.CopyFields(fields)
	}
	out := map[string]value.Value{}
	for _, fieldPath := range maskPaths {
		if v, ok := GetField(fields, fieldPath); ok {
			out = SetField(out, fieldPath, value.Copy(v))
		}
	}
	return out
}

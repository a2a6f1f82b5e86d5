package writes

import (
	"fmt"
	"time"

	"github.com/firelite/firelite-backend/internal/document"
	"github.com/firelite/firelite-backend/internal/store"
	"github.com/firelite/firelite-backend/internal/utils/errors"
	"github.com/firelite/firelite-backend/internal/value"
)

// Engine applies write batches against a store. Batches are atomic: every
// write is validated against the live store before any write mutates it,
// and application after a fully successful validation cannot fail.
type Engine struct {
	store store.Storer
}

// NewEngine creates an engine over the given store.
func NewEngine(st store.Storer) *Engine {
	return &Engine{store: st}
}

// ApplyAll runs the two-phase batch protocol: validate every write, then
// apply them in input order at commitTime. If any write fails validation,
// no write is applied and the store is untouched.
func (e *Engine) ApplyAll(batch []Write, commitTime time.Time) ([]WriteResult, []AppliedWrite, error) {
	for i := range batch {
		if err := e.validate(&batch[i]); err != nil {
			return nil, nil, err
		}
	}

	results := make([]WriteResult, 0, len(batch))
	applied := make([]AppliedWrite, 0, len(batch))
	for i := range batch {
		result, change := e.apply(&batch[i], commitTime)
		results = append(results, result)
		applied = append(applied, change)
	}
	return results, applied, nil
}

// validate checks one write against the live store without mutating
// anything. Preconditions deliberately read the current committed state,
// never a transaction snapshot.
func (e *Engine) validate(w *Write) error {
	path, err := e.writePath(w)
	if err != nil {
		return err
	}

	if w.Update == nil && (w.UpdateMask != nil || len(w.UpdateTransforms) > 0) {
		return &errors.MalformedRequestError{Msg: "updateMask and updateTransforms are only valid on update writes"}
	}
	if w.Transform != nil && len(w.Transform.FieldTransforms) == 0 {
		return &errors.MalformedRequestError{Msg: "transform write carries no field transforms"}
	}

	transforms := w.UpdateTransforms
	if w.Transform != nil {
		transforms = w.Transform.FieldTransforms
	}
	for i := range transforms {
		if err := validateTransform(&transforms[i]); err != nil {
			return err
		}
	}

	if w.CurrentDocument != nil {
		current, ok := e.store.Get(path)
		if w.CurrentDocument.Exists != nil {
			if *w.CurrentDocument.Exists && !ok {
				return &errors.PreconditionError{Msg: fmt.Sprintf("No document to update: %s", path)}
			}
			if !*w.CurrentDocument.Exists && ok {
				return &errors.AlreadyExistsError{Msg: fmt.Sprintf("Document already exists: %s", path)}
			}
		}
		if w.CurrentDocument.UpdateTime != nil {
			if !ok {
				return &errors.PreconditionError{Msg: fmt.Sprintf("No document to update: %s", path)}
			}
			if current.UpdateTime != *w.CurrentDocument.UpdateTime {
				return &errors.PreconditionError{Msg: fmt.Sprintf("Document %s has changed: expected updateTime %s", path, *w.CurrentDocument.UpdateTime)}
			}
		}
	}

	return nil
}

// writePath resolves the single operation of a write to its validated
// document path.
func (e *Engine) writePath(w *Write) (string, error) {
	var name string
	ops := 0
	if w.Update != nil {
		ops++
		name = w.Update.Name
	}
	if w.Delete != "" {
		ops++
		name = w.Delete
	}
	if w.Transform != nil {
		ops++
		name = w.Transform.Document
	}
	if ops != 1 {
		return "", &errors.MalformedRequestError{Msg: "write must contain exactly one of update, delete or transform"}
	}

	if _, err := document.ParseName(name); err != nil {
		return "", err
	}
	return name, nil
}

func validateTransform(t *FieldTransform) error {
	if t.FieldPath == "" {
		return &errors.MalformedRequestError{Msg: "field transform is missing fieldPath"}
	}

	ops := 0
	if t.SetToServerValue != "" {
		if t.SetToServerValue != ServerValueRequestTime {
			return &errors.MalformedRequestError{Msg: fmt.Sprintf("unsupported setToServerValue %q", t.SetToServerValue)}
		}
		ops++
	}
	for _, operand := range []*value.Value{t.Increment, t.Maximum, t.Minimum} {
		if operand != nil {
			if !operand.IsNumber() {
				return &errors.MalformedRequestError{Msg: fmt.Sprintf("numeric transform on field %q requires an integer or double operand", t.FieldPath)}
			}
			ops++
		}
	}
	if t.AppendMissingElements != nil {
		ops++
	}
	if t.RemoveAllFromArray != nil {
		ops++
	}

	if ops != 1 {
		return &errors.MalformedRequestError{Msg: fmt.Sprintf("field transform on %q must contain exactly one operation", t.FieldPath)}
	}
	return nil
}

// apply executes one validated write. It cannot fail: every failure mode
// was ruled out during validation.
func (e *Engine) apply(w *Write, commitTime time.Time) (WriteResult, AppliedWrite) {
	ts := document.FormatTimestamp(commitTime)

	switch {
	case w.Delete != "":
		e.store.Delete(w.Delete)
		return WriteResult{UpdateTime: ts}, AppliedWrite{Path: w.Delete}

	case w.Update != nil:
		path := w.Update.Name
		existing, exists := e.store.Get(path)

		var fields map[string]value.Value
		if w.UpdateMask != nil {
			if exists {
				fields = value.CopyFields(existing.Fields)
			} else {
				fields = map[string]value.Value{}
			}
			fields = applyUpdateMask(fields, w.Update.Fields, w.UpdateMask.FieldPaths)
		} else {
			fields = value.CopyFields(w.Update.Fields)
		}

		var transformResults []value.Value
		fields, transformResults = applyFieldTransforms(fields, w.UpdateTransforms, commitTime)

		doc := &document.Document{
			Name:       path,
			Fields:     fields,
			CreateTime: ts,
			UpdateTime: ts,
		}
		if exists {
			doc.CreateTime = existing.CreateTime
		}
		e.store.Set(path, doc)
		return WriteResult{UpdateTime: ts, TransformResults: transformResults}, AppliedWrite{Path: path, Doc: doc}

	default:
		path := w.Transform.Document
		existing, exists := e.store.Get(path)

		fields := map[string]value.Value{}
		if exists {
			fields = value.CopyFields(existing.Fields)
		}

		var transformResults []value.Value
		fields, transformResults = applyFieldTransforms(fields, w.Transform.FieldTransforms, commitTime)

		doc := &document.Document{
			Name:       path,
			Fields:     fields,
			CreateTime: ts,
			UpdateTime: ts,
		}
		if exists {
			doc.CreateTime = existing.CreateTime
		}
		e.store.Set(path, doc)
		return WriteResult{UpdateTime: ts, TransformResults: transformResults}, AppliedWrite{Path: path, Doc: doc}
	}
}

// applyUpdateMask merges the masked field paths of update into base. A
// masked path absent from the update document deletes that field; fields
// outside the mask are left untouched.
func applyUpdateMask(base map[string]value.Value, update map[string]value.Value, maskPaths []string) map[string]value.Value {
	for _, fieldPath := range maskPaths {
		if v, ok := document.GetField(update, fieldPath); ok {
			base = document.SetField(base, fieldPath, value.Copy(v))
		} else {
			document.DeleteField(base, fieldPath)
		}
	}
	return base
}

// applyFieldTransforms runs each transform in input order against an
// evolving copy of the fields, producing one transform result per
// transform.
func applyFieldTransforms(fields map[string]value.Value, transforms []FieldTransform, commitTime time.Time) (map[string]value.Value, []value.Value) {
	if len(transforms) == 0 {
		return fields, nil
	}

	results := make([]value.Value, 0, len(transforms))
	for i := range transforms {
		t := &transforms[i]
		current, present := document.GetField(fields, t.FieldPath)

		switch {
		case t.SetToServerValue == ServerValueRequestTime:
			v := value.TimeOf(commitTime)
			fields = document.SetField(fields, t.FieldPath, v)
			results = append(results, v)

		case t.Increment != nil:
			v := increment(current, present, *t.Increment)
			fields = document.SetField(fields, t.FieldPath, v)
			results = append(results, v)

		case t.Maximum != nil:
			v := pickExtremum(current, present, *t.Maximum, true)
			fields = document.SetField(fields, t.FieldPath, v)
			results = append(results, v)

		case t.Minimum != nil:
			v := pickExtremum(current, present, *t.Minimum, false)
			fields = document.SetField(fields, t.FieldPath, v)
			results = append(results, v)

		case t.AppendMissingElements != nil:
			v := appendMissing(current, t.AppendMissingElements.Values)
			fields = document.SetField(fields, t.FieldPath, v)
			results = append(results, value.NullValue())

		case t.RemoveAllFromArray != nil:
			v := removeAll(current, t.RemoveAllFromArray.Values)
			fields = document.SetField(fields, t.FieldPath, v)
			results = append(results, value.NullValue())
		}
	}
	return fields, results
}

// increment adds the operand to the current field value. A missing or
// non-numeric field counts as integer zero. The result is integer-typed
// only if both operands are integral.
func increment(current value.Value, present bool, operand value.Value) value.Value {
	if !present || !current.IsNumber() {
		current = value.IntOf(0)
	}
	if current.Kind == value.Integer && operand.Kind == value.Integer {
		return value.IntOf(current.Int + operand.Int)
	}
	return value.DoubleOf(current.Float() + operand.Float())
}

// pickExtremum implements maximum and minimum. A missing field compares as
// the opposite-infinity sentinel, so the operand always wins.
func pickExtremum(current value.Value, present bool, operand value.Value, wantMax bool) value.Value {
	if !present || !current.IsNumber() {
		return value.Copy(operand)
	}

	var winner value.Value
	if wantMax == (operand.Float() > current.Float()) && operand.Float() != current.Float() {
		winner = operand
	} else {
		winner = current
	}

	if current.Kind == value.Integer && operand.Kind == value.Integer {
		return value.IntOf(winner.Int)
	}
	return value.DoubleOf(winner.Float())
}

// appendMissing appends each incoming element unless the pre-existing
// array already holds a deep-equal element. Incoming duplicates are only
// checked against the pre-existing array, not against each other, so
// duplicates within one call are all appended. That mirrors the service.
func appendMissing(current value.Value, incoming []value.Value) value.Value {
	var existing []value.Value
	if current.Kind == value.Array {
		existing = current.Arr
	}

	out := make([]value.Value, 0, len(existing)+len(incoming))
	for _, el := range existing {
		out = append(out, value.Copy(el))
	}
	for _, el := range incoming {
		if !containsDeepEqual(existing, el) {
			out = append(out, value.Copy(el))
		}
	}
	return value.ArrayOf(out...)
}

// removeAll filters out every element deep-equal to any element of values.
func removeAll(current value.Value, values []value.Value) value.Value {
	var existing []value.Value
	if current.Kind == value.Array {
		existing = current.Arr
	}

	out := make([]value.Value, 0, len(existing))
	for _, el := range existing {
		if !containsDeepEqual(values, el) {
			out = append(out, value.Copy(el))
		}
	}
	return value.ArrayOf(out...)
}

func containsDeepEqual(haystack []value.Value, needle value.Value) bool {
	for _, el := range haystack {
		if value.DeepEqual(el, needle) {
			return true
		}
	}
	return false
}

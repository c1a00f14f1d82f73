package collection

import (
	"fmt"
	"strings"

	"github.com/felmond13/novusdb-doc/bson"
)

// ApplyUpdate mutates doc in place according to spec's operators and
// reports whether anything actually changed. Supported operators are
// $set, $unset, and $inc; each operand must itself be a document
// mapping dotted field paths to values.
func ApplyUpdate(doc *bson.Document, spec *bson.Document) (bool, error) {
	modified := false
	for _, op := range spec.Keys() {
		opVal, _ := spec.Get(op)
		opDoc, ok := opVal.AsDocument()
		if !ok {
			return modified, fmt.Errorf("update: %s requires a document operand", op)
		}
		switch op {
		case "$set":
			for _, k := range opDoc.Keys() {
				v, _ := opDoc.Get(k)
				path := strings.Split(k, ".")
				old, existed := doc.GetPath(path)
				if !existed || bson.Compare(old, v) != 0 {
					doc.SetPath(path, v)
					modified = true
				}
			}
		case "$unset":
			for _, k := range opDoc.Keys() {
				path := strings.Split(k, ".")
				if _, existed := doc.GetPath(path); existed {
					deletePath(doc, path)
					modified = true
				}
			}
		case "$inc":
			for _, k := range opDoc.Keys() {
				v, _ := opDoc.Get(k)
				delta, ok := v.AsFloat64()
				if !ok {
					return modified, fmt.Errorf("update: $inc operand for %q is not numeric", k)
				}
				path := strings.Split(k, ".")
				old, existed := doc.GetPath(path)
				var base float64
				if existed {
					base, ok = old.AsFloat64()
					if !ok {
						return modified, fmt.Errorf("update: existing field %q is not numeric", k)
					}
				}
				nv := incrementedValue(old, existed, base+delta)
				if !existed || bson.Compare(old, nv) != 0 {
					doc.SetPath(path, nv)
					modified = true
				}
			}
		default:
			return modified, fmt.Errorf("update: unsupported operator %q", op)
		}
	}
	return modified, nil
}

// incrementedValue preserves the original numeric kind where the result
// still fits it exactly, falling back to a double otherwise.
func incrementedValue(old bson.Value, existed bool, result float64) bson.Value {
	if existed {
		switch old.Kind() {
		case bson.KindInt32:
			if result == float64(int32(result)) {
				return bson.Int32(int32(result))
			}
		case bson.KindInt64:
			if result == float64(int64(result)) {
				return bson.Int64(int64(result))
			}
		}
	}
	return bson.Double(result)
}

// deletePath removes the field named by the last path segment from the
// document reached by walking every segment before it.
func deletePath(doc *bson.Document, path []string) {
	if len(path) == 0 {
		return
	}
	if len(path) == 1 {
		doc.Delete(path[0])
		return
	}
	v, ok := doc.Get(path[0])
	if !ok {
		return
	}
	sub, ok := v.AsDocument()
	if !ok {
		return
	}
	deletePath(sub, path[1:])
}

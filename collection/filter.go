package collection

import (
	"strings"

	"github.com/felmond13/novusdb-doc/bson"
)

// Matches reports whether doc satisfies filter. Each top-level field of
// filter is matched against the same dotted path in doc. A plain value
// means equality; a document whose keys are all operators ($eq, $ne,
// $gt, $gte, $lt, $lte, $in) is evaluated field by field. A nil filter
// matches every document.
func Matches(doc *bson.Document, filter *bson.Document) bool {
	if filter == nil {
		return true
	}
	for _, key := range filter.Keys() {
		fv, _ := filter.Get(key)
		docVal, present := doc.GetPath(strings.Split(key, "."))
		if !present {
			docVal = bson.Null()
		}
		if !matchField(docVal, present, fv) {
			return false
		}
	}
	return true
}

func matchField(docVal bson.Value, present bool, filterVal bson.Value) bool {
	if sub, ok := filterVal.AsDocument(); ok && isOperatorDoc(sub) {
		for _, op := range sub.Keys() {
			opVal, _ := sub.Get(op)
			if !evalOp(op, docVal, present, opVal) {
				return false
			}
		}
		return true
	}
	return present && bson.Compare(docVal, filterVal) == 0
}

func isOperatorDoc(d *bson.Document) bool {
	keys := d.Keys()
	if len(keys) == 0 {
		return false
	}
	for _, k := range keys {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}
	return true
}

func evalOp(op string, docVal bson.Value, present bool, opVal bson.Value) bool {
	switch op {
	case "$eq":
		return present && bson.Compare(docVal, opVal) == 0
	case "$ne":
		return !present || bson.Compare(docVal, opVal) != 0
	case "$gt":
		return present && bson.Compare(docVal, opVal) > 0
	case "$gte":
		return present && bson.Compare(docVal, opVal) >= 0
	case "$lt":
		return present && bson.Compare(docVal, opVal) < 0
	case "$lte":
		return present && bson.Compare(docVal, opVal) <= 0
	case "$in":
		if !present {
			return false
		}
		arr, ok := opVal.AsArray()
		if !ok {
			return false
		}
		for _, v := range arr {
			if bson.Compare(docVal, v) == 0 {
				return true
			}
		}
		return false
	default:
		return false
	}
}

package bson

import "errors"

// ErrTruncated is wrapped into a more specific message when a document
// buffer ends before the field it claims to hold.
var ErrTruncated = errors.New("truncated document data")

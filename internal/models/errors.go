package models

import "errors"

// ErrRecordNotFound is returned by stores when a lookup matches no row.
var ErrRecordNotFound = errors.New("record not found")

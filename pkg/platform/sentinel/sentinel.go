package sentinel

import "errors"

// ErrNotFound is returned (optionally wrapped) by KV backends and chain
// adapters when a key, list or account does not exist. Callers translate it
// into a domain outcome; it never counts as a backend failure.
var ErrNotFound = errors.New("not found")

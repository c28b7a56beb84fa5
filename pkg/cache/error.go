package cache

import "errors"

// ErrMiss is returned by Get when a key is absent, expired, or the backend
// is unreachable. Callers treat all three identically.
var ErrMiss = errors.New("cache miss")

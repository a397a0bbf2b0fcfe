package sentinel

import "errors"

// Sentinel errors for storage facts. Stores return these (optionally wrapped)
// and services translate them into domain error codes:
//   - ErrNotFound: the group, rule, moderator or intent does not exist
//   - ErrConflict: the record is not in a state that admits the write
//   - ErrExpired: a pending intent outlived its confirmation window
//   - ErrUnavailable: the backing store cannot be reached
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrExpired     = errors.New("expired")
	ErrUnavailable = errors.New("unavailable")
)

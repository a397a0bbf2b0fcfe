// Package models defines rate limit classes and check results.
package models

import "time"

// EndpointClass groups endpoints that share a budget.
type EndpointClass string

const (
	// ClassStandard covers every authenticated API call.
	ClassStandard EndpointClass = "standard"
	// ClassSensitive covers the destructive gate and the system export.
	ClassSensitive EndpointClass = "sensitive"
)

// Limit is a sliding-window budget.
type Limit struct {
	Requests int
	Window   time.Duration
}

// Result is the outcome of one check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Key scopes a counter to one class and one caller.
func Key(class EndpointClass, caller string) string {
	return "rl:" + string(class) + ":" + caller
}

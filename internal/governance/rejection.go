package governance

import (
	"errors"
	"fmt"
)

// ErrRejected is the sentinel every guard rejection unwraps to.
var ErrRejected = errors.New("rejected by policy")

// Rejection reports which guard rule refused an input.
type Rejection struct {
	Rule   string
	Reason string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Rule, r.Reason)
}

func (r *Rejection) Unwrap() error { return ErrRejected }

func reject(rule, format string, args ...any) error {
	return &Rejection{Rule: rule, Reason: fmt.Sprintf(format, args...)}
}

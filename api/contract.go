// File: api/contract.go
// Author: momentics <momentics@gmail.com>
//
// Programming-contract violations. These are never returned as errors: they
// panic, because correct callers cannot trigger them.

package api

import "fmt"

// ContractError is the panic value raised on a contract violation.
type ContractError struct {
	Op     string
	Reason string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("contract violation in %s: %s", e.Op, e.Reason)
}

// Violation panics with a *ContractError.
func Violation(op, format string, args ...any) {
	panic(&ContractError{Op: op, Reason: fmt.Sprintf(format, args...)})
}

// Package kernels holds the kernel registry: the table mapping an (OpID, BackendID) pair
// to the function that executes the op on that backend, plus the gradient configuration
// of every differentiable op.
//
// The registry is a pure lookup table with no dependency on engine state. Backends
// register their kernels once per process; the engine looks them up on every dispatch.
package kernels

import "fmt"

// OpID identifies an operation independently of the backend that runs it.
type OpID int

const (
	OpInvalid OpID = iota
	OpIdentity
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpNeg
	OpExp
	OpSquare
	OpSum
	OpReshape
	OpCast
	OpFill
	OpOnesLike
	OpZerosLike

	// OpCustom marks tape nodes recorded for user-supplied gradients (CustomGrad).
	// No kernel is ever registered for it.
	OpCustom

	// OpLast is the number of ops, not a valid op.
	OpLast
)

var opNames = [...]string{
	OpInvalid:   "Invalid",
	OpIdentity:  "Identity",
	OpAdd:       "Add",
	OpSub:       "Sub",
	OpMul:       "Mul",
	OpDiv:       "Div",
	OpNeg:       "Neg",
	OpExp:       "Exp",
	OpSquare:    "Square",
	OpSum:       "Sum",
	OpReshape:   "Reshape",
	OpCast:      "Cast",
	OpFill:      "Fill",
	OpOnesLike:  "OnesLike",
	OpZerosLike: "ZerosLike",
	OpCustom:    "Custom",
	OpLast:      "Last",
}

// String implements fmt.Stringer.
func (op OpID) String() string {
	if op < 0 || int(op) >= len(opNames) {
		return fmt.Sprintf("OpID(%d)", int(op))
	}
	return opNames[op]
}

// OpIDString returns the OpID named s, matching String's output.
func OpIDString(s string) (OpID, error) {
	for i, name := range opNames {
		if name == s && OpID(i) != OpLast {
			return OpID(i), nil
		}
	}
	return OpInvalid, fmt.Errorf("%q is not a valid OpID", s)
}

// BackendID names the backend a kernel was written for, e.g. "cpu".
type BackendID string

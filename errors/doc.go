// Package errors provides structured error types for the host bridge.
//
// Errors are categorized by Phase (which bridge operation failed) and Kind
// (error category). The Error type carries the Go and embedded-runtime type
// names involved, an operation path and the cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseMarshal, errors.KindTypeMismatch).
//		GoType("float64").
//		RuntimeType("Array{Int64, 1}").
//		Detail("cannot unbox an array").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.NullHandle(errors.PhaseInvoke, "callable")
//	err := errors.Evaluation("UndefVarError", "`f` not defined")
//
// Sentinels such as ErrEvaluation have no phase and match every error of
// their kind:
//
//	if errors.Is(err, errors.ErrEvaluation) { ... }
//
// Is is provided here so callers do not need a second import.
package errors

// Package errors provides structured error types for the native-bridge library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: field path, Go/native type names, and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseEncode, errors.KindTypeMismatch).
//		Path("rect", "width").
//		GoType("string").
//		NativeType("int32").
//		Detail("cannot convert string to integer").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.TypeMismatch(errors.PhaseEncode, path, "string", "int32")
//	err := errors.FieldUnknown(path, "color")
//
// All errors implement the standard error interface and support errors.Is/As.
package errors

package invoke

import "fmt"

// NativeError is a failure the callee reported through the error slot.
// It travels on Result rather than as a Go error: the call itself worked,
// the native operation did not.
type NativeError struct {
	Code    int32
	Message string
}

func (e *NativeError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("native error %d", e.Code)
	}
	return fmt.Sprintf("native error %d: %s", e.Code, e.Message)
}

// Result is the outcome of one dispatched call. OK distinguishes a
// completed call with values from one the callee failed: exactly one of
// Values and Err is meaningful.
type Result struct {
	OK     bool
	Values []any
	Err    *NativeError
}

// Value returns the first result value, or nil when the call produced none.
func (r *Result) Value() any {
	if r == nil || len(r.Values) == 0 {
		return nil
	}
	return r.Values[0]
}

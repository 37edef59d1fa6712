package upstream

import "fmt"

// StatusError reports a non-success backend status. AuthFailure
// distinguishes credential problems, which callers feed back into pool
// health, from other upstream faults.
type StatusError struct {
	Status int
	Op     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream %s returned status %d", e.Op, e.Status)
}

// AuthFailure reports whether the status indicates a rejected credential.
func (e *StatusError) AuthFailure() bool {
	return e.Status == 401 || e.Status == 403
}

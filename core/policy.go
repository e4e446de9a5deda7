package core

// FailurePolicy decides what a check does when the shared store is unreachable.
// The zero value is FailOpen.
type FailurePolicy int

const (
	// FailOpen allows the operation and logs the store error.
	FailOpen FailurePolicy = iota
	// FailClosed denies the operation.
	FailClosed
)

func (p FailurePolicy) String() string {
	if p == FailClosed {
		return "fail_closed"
	}
	return "fail_open"
}

// ParseFailurePolicy maps "fail_closed"/"closed" to FailClosed and anything else to FailOpen.
func ParseFailurePolicy(s string) FailurePolicy {
	switch s {
	case "fail_closed", "closed":
		return FailClosed
	default:
		return FailOpen
	}
}

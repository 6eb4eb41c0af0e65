package runner

// Status is the result Status
type Status int

// Result Status for program runner
const (
	StatusInvalid Status = iota // 0 not initialized

	// Normal termination
	StatusExited // 1 exited voluntarily

	// Resource Limit Exceeded
	StatusTimeLimitExceeded   // 2 tle
	StatusMemoryLimitExceeded // 3 mle

	// Runtime Error
	StatusSignalled // 4 signalled

	// Programmer Runner Error
	StatusRunnerError // 5 runner error
)

var statusString = []string{
	"Invalid",
	"Exited",
	"Time Limit Exceeded",
	"Memory Limit Exceeded",
	"Signalled",
	"Runner Error",
}

func (t Status) String() string {
	i := int(t)
	if i >= 0 && i < len(statusString) {
		return statusString[i]
	}
	return statusString[0]
}

func (t Status) Error() string {
	return t.String()
}

// LimitExceeded reports whether the status was caused by limit enforcement
func (t Status) LimitExceeded() bool {
	return t == StatusTimeLimitExceeded || t == StatusMemoryLimitExceeded
}

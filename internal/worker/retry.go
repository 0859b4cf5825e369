package worker

// Decision is what happens to a task after a failed attempt.
type Decision int

const (
	Retry Decision = iota + 1
	Fail
)

func (d Decision) String() string {
	switch d {
	case Retry:
		return "retry"
	case Fail:
		return "fail"
	}
	return "unknown"
}

// Decide takes the retry count after it was incremented for the attempt that
// just failed. A task fails for good once it has failed maxRetries times.
func Decide(retryCount, maxRetries int) Decision {
	if retryCount < maxRetries {
		return Retry
	}
	return Fail
}

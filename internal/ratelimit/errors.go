package ratelimit

import (
	"fmt"
	"time"
)

// ExceededLimitError rejects a request because the sliding window filled.
// The key is blocked for the full block duration.
type ExceededLimitError struct {
	RequestsMade int
	Limit        int
	RetryAfter   time.Duration
}

func (e *ExceededLimitError) Error() string {
	return fmt.Sprintf("ratelimit: %d/%d requests in window, retry after %s", e.RequestsMade, e.Limit, e.RetryAfter)
}

// BurstExceededError rejects a request because too many arrived inside the
// burst interval. The request is not recorded and no block is started.
type BurstExceededError struct {
	BurstCount int
	BurstLimit int
	RetryAfter time.Duration
}

func (e *BurstExceededError) Error() string {
	return fmt.Sprintf("ratelimit: burst %d/%d requests in %s, retry after %s", e.BurstCount, e.BurstLimit, burstWindow, e.RetryAfter)
}

// BlockedError rejects a request because the key is inside an active block.
type BlockedError struct {
	RetryAfter time.Duration
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("ratelimit: blocked, retry after %s", e.RetryAfter)
}

// RetryAfter extracts the retry-after hint from a limiter rejection.
func RetryAfter(err error) (time.Duration, bool) {
	switch e := err.(type) {
	case *ExceededLimitError:
		return e.RetryAfter, true
	case *BurstExceededError:
		return e.RetryAfter, true
	case *BlockedError:
		return e.RetryAfter, true
	}
	return 0, false
}

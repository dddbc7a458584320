package usage

import "errors"

// ErrLimitReached indicates the caller exhausted their analysis allowance.
var ErrLimitReached = errors.New("limit reached")

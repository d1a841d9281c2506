package domain

import "errors"

// ErrJobNotFound indicates the requested job does not exist, or does not
// satisfy the precondition of the operation that looked it up (for example,
// RetryFailed called against a row that is not currently failed).
var ErrJobNotFound = errors.New("job not found")

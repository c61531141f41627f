package mqtt

import "errors"

// ErrPublishTimeout indicates the broker did not accept a write in time.
var ErrPublishTimeout = errors.New("mqtt publish timeout")

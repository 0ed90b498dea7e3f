package policy

import "errors"

// ErrDenied is returned by repositories when a predicate rejects an
// operation. Handlers surface it exactly like a missing row so that a
// denied caller cannot learn the row exists.
var ErrDenied = errors.New("access denied")

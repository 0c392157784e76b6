package repos

import (
	"errors"
)

// ErrVersionConflict is returned by Save when the aggregate's expected
// version no longer matches the stored row. Callers re-read and retry.
var ErrVersionConflict = errors.New("aggregate version conflict")

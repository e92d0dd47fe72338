package types

import (
	"errors"
	"fmt"
)

// Domain policy errors shared across packages.
var (
	ErrEmptyPaths         = errors.New("paths cannot be empty")
	ErrIndexingInProgress = errors.New("indexing already in progress")
	ErrUnsupported        = errors.New("unsupported")

	// ErrPlatformMissingAPIKey matches every MissingAPIKeyError.
	ErrPlatformMissingAPIKey = errors.New("missing API key configuration")
)

// MissingAPIKeyError reports a media-analysis platform with no API key.
type MissingAPIKeyError struct {
	Platform string
}

func (e *MissingAPIKeyError) Error() string {
	return fmt.Sprintf("Model platform '%s' is missing API key configuration", e.Platform)
}

// Is makes errors.Is(err, ErrPlatformMissingAPIKey) hold.
func (e *MissingAPIKeyError) Is(target error) bool {
	return target == ErrPlatformMissingAPIKey
}

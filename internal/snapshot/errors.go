package snapshot

import "fmt"

// Build failure reasons.
const (
	ReasonUpstream        = "upstream unavailable"
	ReasonMalformed       = "malformed upstream payload"
	ReasonBrokenReference = "broken reference"
)

// BuildError reports why a snapshot could not be built. Err, when set, is
// the underlying cause (often an *upstream.UpstreamError).
type BuildError struct {
	Key    WatchKey
	Reason string
	Err    error
}

func (e *BuildError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("build %s: %s: %v", e.Key, e.Reason, e.Err)
	}
	return fmt.Sprintf("build %s: %s", e.Key, e.Reason)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

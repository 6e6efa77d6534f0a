package schema

import (
	"errors"
	"fmt"
)

// Error taxonomy for the retrieval pipeline. Components wrap these sentinels
// with fmt.Errorf("...: %w", ...) so callers can branch with errors.Is.
var (
	// ErrUnsupportedFormat reports a file whose extension is unrecognized and
	// whose bytes are not valid UTF-8 text either.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrInvalidConfiguration reports configuration the pipeline cannot run
	// with, e.g. a chunk overlap that is not smaller than the chunk size.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrUpstreamFailure reports an embedding or completion provider failure
	// (network, auth, or provider-side error).
	ErrUpstreamFailure = errors.New("upstream provider failure")

	// ErrIndexUnavailable reports that the search engine was unreachable at
	// call time.
	ErrIndexUnavailable = errors.New("search index unavailable")
)

func recordID(documentID string, chunkIndex int) string {
	return fmt.Sprintf("%s_%d", documentID, chunkIndex)
}

package nutrition

import "errors"

// Domain errors for analysis input validation. These represent caller
// mistakes and are surfaced directly instead of being absorbed by the
// fallback ladder.

var (
	ErrEmptyImage        = errors.New("image payload is empty")
	ErrImageNotDecodable = errors.New("image payload is not valid base64")
	ErrImageTooSmall     = errors.New("decoded image is below the minimum size of 1KB")
	ErrImageTooLarge     = errors.New("decoded image exceeds the maximum size of 10MB")
	ErrEmptyDescription  = errors.New("meal description is empty")
)

package extract

import (
	"errors"
	"fmt"
)

// ErrExtraction matches every page level extraction failure.
var ErrExtraction = errors.New("extraction error")

var (
	// ErrScriptNotFound is returned when the page has no state script.
	ErrScriptNotFound = fmt.Errorf("%w: state script not found", ErrExtraction)

	// ErrStateParse is returned when the embedded state is not valid JSON.
	ErrStateParse = fmt.Errorf("%w: failed to parse embedded state", ErrExtraction)

	// ErrUnexpectedShape is returned when the document lacks the expected path
	// to the slot list.
	ErrUnexpectedShape = fmt.Errorf("%w: unexpected document shape", ErrExtraction)
)

package journal

import "errors"

var (
	ErrMetadataMissing = errors.New("journal metadata tables not present yet")
	ErrSchemaMismatch  = errors.New("journal metadata does not match physical layout")
)

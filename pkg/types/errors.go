package types

import "errors"

var (
	ErrMissingTimeColumn = errors.New("table has no s_time column")
	ErrUnknownTable      = errors.New("table not present in schema")
	ErrUnknownColumn     = errors.New("column not present in table metadata")
)

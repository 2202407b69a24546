package showfor

import "errors"

var (
	ErrUnknownProduct = errors.New("showfor: unknown product")
	ErrUnknownVersion = errors.New("showfor: unknown version")
	ErrInvalidOption  = errors.New("showfor: invalid option value")
	ErrInvalidCatalog = errors.New("showfor: invalid catalog")
)

package markup

import "errors"

var (
	ErrUnknownButton    = errors.New("markup: unknown button")
	ErrInvalidSelection = errors.New("markup: selection out of range")
	ErrMissingTarget    = errors.New("markup: link target is required")
	ErrInvalidURL       = errors.New("markup: external links need an http or https url")
	ErrMissingMedia     = errors.New("markup: media name is required")
	ErrUnknownResponse  = errors.New("markup: unknown canned response")
)

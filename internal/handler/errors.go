package handler

import "errors"

// Rejection reasons reported for a request. Their text is the reason logged
// for the hub and must stay stable.
var (
	ErrBadSchoolID        = errors.New("BAD SCHOOL ID")
	ErrBadHubID           = errors.New("BAD HUB ID")
	ErrInvalidService     = errors.New("INVALID SERVICE")
	ErrInvalidRequestType = errors.New("INVALID REQUEST TYPE")
	ErrNoTranslations     = errors.New("NO TRANSLATIONS")
	ErrRestRequest        = errors.New("REST REQUEST ERROR")
	ErrUnimplemented      = errors.New("UNIMPLEMENTED")
	ErrUnrecognised       = errors.New("UNRECOGNISED REQUEST TYPE")
)

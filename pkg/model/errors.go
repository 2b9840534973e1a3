package model

import "errors"

const (
	FlagNotFoundErrorCode = "FLAG_NOT_FOUND"
	TypeMismatchErrorCode = "TYPE_MISMATCH"
	ParseErrorCode        = "PARSE_ERROR"
	GeneralErrorCode      = "GENERAL"
)

const (
	StaticReason         = "STATIC"
	TargetingMatchReason = "TARGETING_MATCH"
	ErrorReason          = "ERROR"
)

// Sentinel errors carrying the error codes above. Use errors.Is to test for them,
// the returned errors are usually wrapped with more detail.
var (
	ErrFlagNotFound = errors.New(FlagNotFoundErrorCode)
	ErrTypeMismatch = errors.New(TypeMismatchErrorCode)
	ErrParse        = errors.New(ParseErrorCode)
)

// ErrorCode maps an error to its code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrFlagNotFound):
		return FlagNotFoundErrorCode
	case errors.Is(err, ErrTypeMismatch):
		return TypeMismatchErrorCode
	case errors.Is(err, ErrParse):
		return ParseErrorCode
	default:
		return GeneralErrorCode
	}
}

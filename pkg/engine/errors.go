package engine

import (
	"errors"
	"fmt"
)

// Code is the numeric identifier of a domain error. The values are stable and
// travel over the wire.
type Code int

const (
	CodeNotAuthorized        Code = 100
	CodeInvalidRecordHash    Code = 101
	CodeInvalidTitle         Code = 102
	CodeInvalidTimestamp     Code = 103
	CodeRecordAlreadyExists  Code = 104
	CodeRecordNotFound       Code = 105
	CodeInvalidMetadata      Code = 106
	CodeInvalidCategory      Code = 107
	CodeInvalidSize          Code = 108
	CodeInvalidStatus        Code = 109
	CodeMaxRecordsExceeded   Code = 110
	CodeInvalidEncryptionKey Code = 111
	CodeInvalidAuthority     Code = 112
	CodeInvalidVersion       Code = 113
)

// Error is a domain rejection. Every value is a permanent rejection of the
// call that produced it; nothing was written.
type Error struct {
	Code    Code
	Name    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

var (
	ErrNotAuthorized        = &Error{CodeNotAuthorized, "NotAuthorized", "caller not authorized"}
	ErrInvalidRecordHash    = &Error{CodeInvalidRecordHash, "InvalidRecordHash", "record hash must be 32 bytes"}
	ErrInvalidTitle         = &Error{CodeInvalidTitle, "InvalidTitle", "title must be 1 to 100 characters"}
	ErrInvalidTimestamp     = &Error{CodeInvalidTimestamp, "InvalidTimestamp", "timestamp is behind the current height"}
	ErrRecordAlreadyExists  = &Error{CodeRecordAlreadyExists, "RecordAlreadyExists", "record hash already registered"}
	ErrRecordNotFound       = &Error{CodeRecordNotFound, "RecordNotFound", "record not found"}
	ErrInvalidMetadata      = &Error{CodeInvalidMetadata, "InvalidMetadata", "description exceeds 500 characters"}
	ErrInvalidCategory      = &Error{CodeInvalidCategory, "InvalidCategory", "unknown category"}
	ErrInvalidSize          = &Error{CodeInvalidSize, "InvalidSize", "size exceeds 1048576"}
	ErrInvalidStatus        = &Error{CodeInvalidStatus, "InvalidStatus", "invalid status"}
	ErrMaxRecordsExceeded   = &Error{CodeMaxRecordsExceeded, "MaxRecordsExceeded", "store is at capacity"}
	ErrInvalidEncryptionKey = &Error{CodeInvalidEncryptionKey, "InvalidEncryptionKey", "encryption key must be 32 bytes"}
	ErrInvalidAuthority     = &Error{CodeInvalidAuthority, "InvalidAuthority", "authority rejected"}
	ErrInvalidVersion       = &Error{CodeInvalidVersion, "InvalidVersion", "version exceeds 100"}
)

var byCode = map[Code]*Error{}

func init() {
	for _, e := range []*Error{
		ErrNotAuthorized, ErrInvalidRecordHash, ErrInvalidTitle, ErrInvalidTimestamp,
		ErrRecordAlreadyExists, ErrRecordNotFound, ErrInvalidMetadata, ErrInvalidCategory,
		ErrInvalidSize, ErrInvalidStatus, ErrMaxRecordsExceeded, ErrInvalidEncryptionKey,
		ErrInvalidAuthority, ErrInvalidVersion,
	} {
		byCode[e.Code] = e
	}
}

// ErrorFromCode returns the sentinel for code, or nil if the code is unknown.
func ErrorFromCode(code Code) *Error {
	return byCode[code]
}

// CodeOf extracts the domain code from err. ok is false for non-domain errors.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return 0, false
}

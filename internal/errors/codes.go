// Package errors classifies failures of the aggregate handlers and the booking
// write path, and maps them to gRPC status codes and localized messages.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	CodeUnknown Code = "UNKNOWN"

	// Store errors
	CodeStoreUnavailable Code = "STORE_UNAVAILABLE"
	CodeNotFound         Code = "NOT_FOUND"
	CodeAlreadyExists    Code = "ALREADY_EXISTS"

	// Handler errors
	CodeIdentityNotFound  Code = "IDENTITY_NOT_FOUND"
	CodeIdentityCollision Code = "IDENTITY_COLLISION"
	CodeInvalidDocument   Code = "INVALID_DOCUMENT"
	CodeInvalidFieldPath  Code = "INVALID_FIELD_PATH"

	// Transport errors
	CodeFeedUnavailable Code = "FEED_UNAVAILABLE"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeInvalidDocument,
		CodeInvalidFieldPath:
		return codes.InvalidArgument

	case CodeNotFound,
		CodeIdentityNotFound:
		return codes.NotFound

	case CodeAlreadyExists,
		CodeIdentityCollision:
		return codes.AlreadyExists

	case CodeStoreUnavailable,
		CodeFeedUnavailable:
		return codes.Unavailable

	default:
		return codes.Internal
	}
}

package errors

import (
	"golang.org/x/text/language"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ToStatus converts err into a gRPC status for a caller in front of the
// booking write path. The status message is the localized user message.
func ToStatus(err error, tag language.Tag) error {
	if err == nil {
		return nil
	}

	msg := UserMessage(err, tag)
	code := GetCode(err)
	if code == CodeUnknown {
		return status.Error(codes.Internal, msg)
	}
	return status.Error(code.GRPCCode(), msg)
}

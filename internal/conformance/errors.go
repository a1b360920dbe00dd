package conformance

import (
	"errors"

	"github.com/aws/smithy-go"
)

// errorCode returns the S3 error code carried by err, or "" when err is
// not a service error.
func errorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// isCode reports whether err carries one of the given S3 error codes.
func isCode(err error, codes ...string) bool {
	got := errorCode(err)
	if got == "" {
		return false
	}
	for _, code := range codes {
		if got == code {
			return true
		}
	}
	return false
}

package log

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

const (
	ErrAttrKey        = "error"
	StacktraceAttrKey = "stacktrace"
)

// splitFields separates a leading error from the key/value pairs that follow
// it. A trailing key without a value is dropped.
func splitFields(fields []any) (error, []any) {
	var lead error
	if len(fields)%2 == 1 {
		if err, ok := fields[0].(error); ok {
			lead = err
			fields = fields[1:]
		} else {
			fields = fields[:len(fields)-1]
		}
	}
	return lead, fields
}

func fieldKey(k any) string {
	if s, ok := k.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", k)
}

// extractStacktrace returns the first stack trace recorded by
// cockroachdb/errors in err's chain, or "" when there is none.
func extractStacktrace(err error) string {
	safeDetails := errors.GetSafeDetails(err).SafeDetails
	if len(safeDetails) > 0 {
		return safeDetails[0]
	}
	return ""
}

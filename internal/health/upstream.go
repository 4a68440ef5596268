package health

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// MaxSharedMessageLen bounds upstream messages that may be shown to callers.
const MaxSharedMessageLen = 200

var shareableCode = regexp.MustCompile(`^[A-Z][A-Z0-9_]{1,63}$`)

// IsShareableCode reports whether an upstream error code is safe to surface.
func IsShareableCode(code string) bool {
	return shareableCode.MatchString(code)
}

// ParseUpstreamError builds a StatusError from a non-2xx upstream answer.
//
// The code is read from error.code or code and kept only when it looks like a
// machine code. The message is read from error.message, message or reason and
// kept only for 4xx answers, and only when it is short and single-line.
func ParseUpstreamError(statusCode int, body []byte) *StatusError {
	se := &StatusError{StatusCode: statusCode}
	if !gjson.ValidBytes(body) {
		return se
	}

	if code := firstString(body, "error.code", "code"); IsShareableCode(code) {
		se.Code = code
	}

	if statusCode >= 400 && statusCode < 500 {
		msg := strings.TrimSpace(firstString(body, "error.message", "message", "reason"))
		if msg != "" && len(msg) <= MaxSharedMessageLen && !strings.ContainsAny(msg, "\r\n") {
			se.Message = msg
		}
	}
	return se
}

func firstString(body []byte, paths ...string) string {
	for _, r := range gjson.GetManyBytes(body, paths...) {
		if r.Type == gjson.String && r.Str != "" {
			return r.Str
		}
	}
	return ""
}

// Package logger holds the PII rules for log output. Recipient addresses
// appear in send paths, provider payloads, and error strings; anything that
// logs one goes through RedactEmail or RedactEmailsIn first.
package logger

import (
	"regexp"
	"strings"
)

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

// RedactEmail masks the local part of an address, keeping enough to
// correlate log lines: "dana.dev@acme.com" becomes "da***@acme.com".
// Anything that does not look like an address masks completely.
func RedactEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "***@***"
	}
	local, domain := email[:at], email[at+1:]
	if len(local) <= 2 {
		return "***@" + domain
	}
	return local[:2] + "***@" + domain
}

// RedactEmailsIn masks every address embedded in free-form text. Used for
// provider error strings and payload fragments whose shape we don't control.
func RedactEmailsIn(s string) string {
	return emailPattern.ReplaceAllStringFunc(s, RedactEmail)
}

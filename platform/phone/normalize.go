// Package phone normalizes phone numbers so every layer keys leads on the
// same canonical form.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// Numbers without a country code are assumed Brazilian.
const defaultRegion = "BR"

// NormalizeE164 canonicalizes a phone number to E.164 ("+5511988887777").
// Unparseable or invalid input is returned trimmed but otherwise untouched,
// so callers still get a stable key for whatever the gateway sent.
func NormalizeE164(input string) string {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return raw
	}

	parsed, err := phonenumbers.Parse(raw, defaultRegion)
	if err != nil || !phonenumbers.IsValidNumber(parsed) {
		return raw
	}
	return phonenumbers.Format(parsed, phonenumbers.E164)
}

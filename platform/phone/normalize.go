// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const defaultRegion = "US"

// nonUSAreaCodes are NANP area codes that dial like +1 but terminate outside
// the United States (Canada and the Caribbean).
var nonUSAreaCodes = toSet(
	// Canada
	"204", "226", "236", "249", "250", "263", "289", "306", "343", "354",
	"365", "367", "368", "382", "403", "416", "418", "428", "431", "437",
	"438", "450", "460", "468", "474", "506", "514", "519", "548", "579",
	"581", "584", "587", "604", "613", "639", "647", "672", "683", "705",
	"709", "742", "753", "778", "780", "782", "807", "819", "825", "867",
	"873", "879", "902", "905",
	// Caribbean
	"242", "246", "268", "284", "340", "345", "441", "473", "649", "664",
	"721", "758", "767", "784", "809", "829", "849", "868", "869", "876",
)

// nonNANPPrefixes are dialing prefixes always treated as international.
var nonNANPPrefixes = []string{"+41", "+44"}

// NormalizeE164 formats a phone number to E.164. If parsing fails, it returns the trimmed input.
func NormalizeE164(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed
	}

	number, err := phonenumbers.Parse(trimmed, defaultRegion)
	if err != nil {
		return trimmed
	}

	if !phonenumbers.IsValidNumber(number) {
		return trimmed
	}

	return phonenumbers.Format(number, phonenumbers.E164)
}

// IsInternational reports whether a number should be contacted by email only.
// The prefix and area-code tables decide first; numbers with an explicit
// country code outside NANP are international as well.
func IsInternational(input string) bool {
	compact := compactNumber(input)
	if compact == "" {
		return false
	}

	for _, prefix := range nonNANPPrefixes {
		if strings.HasPrefix(compact, prefix) {
			return true
		}
	}

	if strings.HasPrefix(compact, "+1") {
		if len(compact) >= 5 {
			_, ok := nonUSAreaCodes[compact[2:5]]
			return ok
		}
		return false
	}

	if !strings.HasPrefix(compact, "+") {
		return false
	}

	number, err := phonenumbers.Parse(compact, defaultRegion)
	if err != nil {
		return false
	}
	return number.GetCountryCode() != 1
}

func compactNumber(input string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '(', ')', '-', '\t':
			return -1
		}
		return r
	}, strings.TrimSpace(input))
}

func toSet(values ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

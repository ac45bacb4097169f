// Package phone converts Bulgarian phone numbers between the national format
// people type ("0898 788 555") and the international format we store
// ("+359898788555").
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const (
	CountryCode = "359"
	Region      = "BG"

	trunkPrefix         = "0"
	internationalPrefix = "00"
)

var punctuation = strings.NewReplacer(" ", "", "\t", "", "(", "", ")", "", "-", "")

func clean(s string) string {
	return punctuation.Replace(strings.TrimSpace(s))
}

// ToInternational turns a national number into +359 form. A leading 00 is
// replaced by +, a leading trunk 0 by +359. Anything else is returned cleaned.
func ToInternational(s string) string {
	c := clean(s)
	if c == "" {
		return ""
	}

	switch {
	case strings.HasPrefix(c, internationalPrefix):
		return "+" + strings.TrimPrefix(c, internationalPrefix)
	case strings.HasPrefix(c, trunkPrefix):
		return "+" + CountryCode + strings.TrimPrefix(c, trunkPrefix)
	default:
		return c
	}
}

// ToNational replaces a +359 prefix with the trunk 0. Numbers from other
// countries pass through cleaned but otherwise unchanged.
func ToNational(s string) string {
	c := clean(s)
	if c == "" {
		return ""
	}

	if strings.HasPrefix(c, "+"+CountryCode) {
		return trunkPrefix + strings.TrimPrefix(c, "+"+CountryCode)
	}

	return c
}

// Valid reports whether s is a dialable number for the BG numbering plan.
// Empty input is treated as valid since phone fields are optional.
func Valid(s string) bool {
	c := clean(s)
	if c == "" {
		return true
	}

	num, err := phonenumbers.Parse(ToInternational(c), Region)
	if err != nil {
		return false
	}

	return phonenumbers.IsValidNumber(num)
}

// Package identity normalizes caller-supplied contact references into
// canonical identifiers that can be matched against the message store.
package identity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// ErrInvalidPhoneNumber indicates a phone-shaped reference that failed
// parsing or validity checks.
var ErrInvalidPhoneNumber = errors.New("invalid phone number")

// Kind classifies a canonical identity.
type Kind string

const (
	KindPhone Kind = "phone"
	KindEmail Kind = "email"
	KindGroup Kind = "group"
)

// Canonical is the normalized form of a contact reference: an E.164 phone
// number, a lowercased email address, or a group display name.
type Canonical struct {
	Kind  Kind
	Value string
}

// Normalize converts a raw contact reference into canonical form. region is
// the default country context for phone numbers without a country code.
func Normalize(reference, region string) (Canonical, error) {
	ref := strings.TrimSpace(reference)
	if ref == "" {
		return Canonical{}, errors.New("empty contact reference")
	}

	if strings.Contains(ref, "@") {
		return Canonical{Kind: KindEmail, Value: strings.ToLower(ref)}, nil
	}

	if looksLikePhone(ref) {
		e164, err := NormalizePhone(ref, region)
		if err != nil {
			return Canonical{}, err
		}
		return Canonical{Kind: KindPhone, Value: e164}, nil
	}

	return Canonical{Kind: KindGroup, Value: ref}, nil
}

// NormalizePhone parses a phone number and returns its E.164 form. The same
// function normalizes store-side handle identifiers so that legacy formats
// compare equal to caller input.
func NormalizePhone(raw, region string) (string, error) {
	num, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidPhoneNumber, raw, err)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhoneNumber, raw)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// looksLikePhone reports whether a reference is phone-shaped: after
// stripping common separators, only digits remain (with an optional
// leading +). Anything else is treated as a group display name.
func looksLikePhone(s string) bool {
	stripped := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.', '/':
			return -1
		}
		return r
	}, s)

	stripped = strings.TrimPrefix(stripped, "+")
	if stripped == "" {
		return false
	}
	for _, r := range stripped {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

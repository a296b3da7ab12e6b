/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package phone normalizes chat participant identifiers into subscriber numbers.
package phone

import (
	"strings"
)

// LocalLength is the number of digits of a local subscriber number.
const LocalLength = 9

// transport suffixes appended to user and group identifiers.
var suffixes = []string{"@c.us", "@g.us", "@s.whatsapp.net", "@lid"}

// StripSuffix removes the transport suffix of an identifier.
func StripSuffix(id string) string {
	for _, s := range suffixes {
		id = strings.TrimSuffix(id, s)
	}
	return id
}

// Digits keeps only the ASCII digits of s.
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// LocalNumber reduces a sender identifier to its 9-digit subscriber number.
// Legacy "<number>-<timestamp>" identifiers keep only the number part and a
// duplicated country code ("258258...") is collapsed.
func LocalNumber(id, countryCode string) string {
	id = StripSuffix(id)
	if i := strings.Index(id, "-"); i >= 0 {
		id = id[:i]
	}
	id = Digits(id)
	if countryCode != "" && strings.HasPrefix(id, countryCode+countryCode) {
		id = id[len(countryCode):]
	}
	if len(id) > LocalLength {
		id = id[len(id)-LocalLength:]
	}
	return id
}

// E164 returns the "+<cc><local>" form used as the ledger key.
func E164(id, countryCode string) string {
	return "+" + countryCode + LocalNumber(id, countryCode)
}

// HasCountryCode reports whether id is a full number of the given country:
// it starts with the country code and carries a complete subscriber number.
func HasCountryCode(id, countryCode string) bool {
	digits := Digits(StripSuffix(id))
	return strings.HasPrefix(digits, countryCode) && len(digits) >= len(countryCode)+LocalLength
}

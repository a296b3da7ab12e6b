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

package reference

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// invisible removes format characters (zero-width spaces, joiners, BOM, soft hyphens).
var invisible = runes.Remove(runes.In(unicode.Cf))

// NormalizeReference produces the store key of a reference: invisible
// characters removed, whitespace runs collapsed to one space, and every
// leading and trailing dot stripped. Case is preserved. The function is
// idempotent.
func NormalizeReference(ref string) string {
	cleaned, _, err := transform.String(invisible, ref)
	if err != nil {
		cleaned = ref
	}
	collapsed := strings.Join(strings.Fields(cleaned), " ")
	return strings.Trim(collapsed, ". ")
}

// NormalizeText lowercases text and collapses whitespace runs. It is used to
// compare chat messages, not references.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

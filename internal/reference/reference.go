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

// Package reference extracts and normalizes payment references and purchased
// quantities from free-form receipt and confirmation texts.
package reference

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/blnkfinance/payrecon/model"
)

// NotFound is the answer OCR collaborators give when an image holds no reference.
const NotFound = "NOT_FOUND"

// legacy sentinel still produced by older OCR prompts.
const notFoundLegacy = "NAO_ENCONTRADA"

// emolaPrefix is the fixed prefix of network B references.
const emolaPrefix = "PP"

// Reference is a transaction reference found in a message.
type Reference struct {
	Value string              // normalized key
	Raw   string              // text as captured
	Type  model.ReferenceType // issuing network
}

// Parser applies an ordered set of grammars to message texts.
// A Parser is immutable after construction and safe for concurrent use.
type Parser struct {
	grammars  []Grammar
	amounts   []*regexp.Regexp
	fallbacks []*regexp.Regexp
	maxAmount int64
}

var defaultParser = mustDefault()

func mustDefault() *Parser {
	p, err := Parse(defaultGrammars)
	if err != nil {
		panic(err)
	}
	return p
}

// Default returns the parser built from the embedded grammars.
func Default() *Parser {
	return defaultParser
}

// ExtractReference runs the default grammars over text.
func ExtractReference(text string) (Reference, bool) {
	return defaultParser.ExtractReference(text)
}

// ExtractAmount runs the default quantity patterns over text.
func ExtractAmount(text string) (int64, bool) {
	return defaultParser.ExtractAmount(text)
}

// ExtractReference returns the first capture, network by network and pattern
// by pattern, that passes its network validator once normalized.
func (p *Parser) ExtractReference(text string) (Reference, bool) {
	for _, g := range p.grammars {
		for _, re := range g.Patterns {
			match := re.FindStringSubmatch(text)
			if len(match) < 2 {
				continue
			}
			value := NormalizeReference(match[1])
			if g.Validate(value) {
				return Reference{Value: value, Raw: match[1], Type: g.Network}, true
			}
		}
	}
	return Reference{}, false
}

// ExtractConfirmationReference behaves like ExtractReference and, when no
// grammar matches, falls back to the longest match of the fallback patterns.
func (p *Parser) ExtractConfirmationReference(text string) (Reference, bool) {
	if ref, ok := p.ExtractReference(text); ok {
		return ref, true
	}

	longest := ""
	for _, re := range p.fallbacks {
		for _, m := range re.FindAllString(text, -1) {
			if len(m) > len(longest) {
				longest = m
			}
		}
	}
	if longest == "" {
		return Reference{}, false
	}
	value := NormalizeReference(longest)
	return Reference{Value: value, Raw: longest, Type: Classify(value)}, true
}

// FromExtractedText turns the answer of an OCR collaborator into a reference.
// The sentinel answer and answers failing validation yield no reference.
func (p *Parser) FromExtractedText(text string) (Reference, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || strings.EqualFold(trimmed, NotFound) || strings.EqualFold(trimmed, notFoundLegacy) {
		return Reference{}, false
	}

	value := NormalizeReference(trimmed)
	if kind := Classify(value); kind != model.ReferenceUnknown {
		return Reference{Value: value, Raw: trimmed, Type: kind}, true
	}
	return p.ExtractReference(trimmed)
}

// ExtractAmount returns the first quantity in (0, maxAmount] found by the
// ordered quantity patterns. Out-of-range integers are skipped.
func (p *Parser) ExtractAmount(text string) (int64, bool) {
	for _, re := range p.amounts {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			n, err := strconv.ParseInt(m[1], 10, 64)
			if err != nil {
				continue
			}
			if n > 0 && n <= p.maxAmount {
				return n, true
			}
		}
	}
	return 0, false
}

// Classify reports which network's validator accepts ref.
func Classify(ref string) model.ReferenceType {
	switch {
	case IsEmolaReference(ref):
		return model.ReferenceEmola
	case IsMpesaReference(ref):
		return model.ReferenceMpesa
	default:
		return model.ReferenceUnknown
	}
}

// IsMpesaReference validates a network A reference: 8 to 20 characters from
// [A-Za-z0-9.-_] holding at least one letter and one digit. References shaped
// like network B are rejected so they fall through to that grammar.
func IsMpesaReference(ref string) bool {
	if len(ref) < 8 || len(ref) > 20 || !allowedCharset(ref) || hasEmolaShape(ref) {
		return false
	}
	var letter, digit bool
	for _, r := range ref {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return letter && digit
}

// IsEmolaReference validates a network B reference: the PP prefix followed
// by a digit, at least 4 characters from [A-Za-z0-9.-_].
func IsEmolaReference(ref string) bool {
	return len(ref) >= 4 && allowedCharset(ref) && hasEmolaShape(ref)
}

func hasEmolaShape(ref string) bool {
	return len(ref) > len(emolaPrefix) &&
		strings.EqualFold(ref[:len(emolaPrefix)], emolaPrefix) &&
		ref[len(emolaPrefix)] >= '0' && ref[len(emolaPrefix)] <= '9'
}

func allowedCharset(ref string) bool {
	for _, r := range ref {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

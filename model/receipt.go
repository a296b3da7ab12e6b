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
package model

import "time"

// ReferenceType identifies the payment network that issued a transaction reference.
type ReferenceType string

const (
	ReferenceMpesa   ReferenceType = "MPESA"
	ReferenceEmola   ReferenceType = "EMOLA"
	ReferenceUnknown ReferenceType = "UNKNOWN"
)

// PendingReceipt is a captured receipt waiting for its confirmation.
// It is keyed by NormalizedReference across the whole process, not per group.
type PendingReceipt struct {
	NormalizedReference string        `json:"normalized_reference"`
	RawReference        string        `json:"raw_reference"`
	ReferenceType       ReferenceType `json:"reference_type"`
	SenderID            string        `json:"sender_id"`
	DisplayName         string        `json:"display_name"`
	GroupID             string        `json:"group_id"`
	MessageID           string        `json:"message_id,omitempty"`
	CapturedAt          time.Time     `json:"captured_at"`
}

// Age returns how long the receipt has been waiting at the given instant.
func (p PendingReceipt) Age(now time.Time) time.Duration {
	return now.Sub(p.CapturedAt)
}

// Phone returns the buyer key used by the ledger for this receipt's sender.
func (p PendingReceipt) Phone(countryCode string) string {
	return "+" + countryCode + p.SenderID
}

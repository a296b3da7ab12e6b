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

// PrivateGroupID is the ledger key used for direct (non-group) chats.
const PrivateGroupID = "private"

// DayLayout is the layout of the keys in Buyer.DailyPurchaseLog.
const DayLayout = "2006-01-02"

// PurchaseEntry is one confirmed purchase inside a day bucket.
type PurchaseEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Amount    int64     `json:"amount"`
}

// Buyer holds the purchase history of one phone number inside one group.
type Buyer struct {
	DisplayName              string                     `json:"display_name"`
	CurrentPurchaseAmount    int64                      `json:"current_purchase_amount"`
	CumulativePurchaseAmount int64                      `json:"cumulative_purchase_amount"`
	LastPurchaseAt           *time.Time                 `json:"last_purchase_at"`
	DailyPurchaseLog         map[string][]PurchaseEntry `json:"daily_purchase_log,omitempty"`
}

// GroupLedger is the purchase ledger of a single group.
type GroupLedger struct {
	Name               string            `json:"name,omitempty"`
	Buyers             map[string]*Buyer `json:"buyers"`
	TotalPurchaseCount int64             `json:"total_purchase_count"`
	TotalAmount        int64             `json:"total_amount"`
	CreatedAt          time.Time         `json:"created_at"`
}

// RankedBuyer is a row of the group leaderboard.
type RankedBuyer struct {
	Phone       string `json:"phone"`
	DisplayName string `json:"display_name"`
	Total       int64  `json:"total"`
	Position    int    `json:"position"`
}

// InactiveBuyer is a buyer that has not purchased for a while.
type InactiveBuyer struct {
	Phone        string `json:"phone"`
	DisplayName  string `json:"display_name"`
	DaysInactive int    `json:"days_inactive"`
	Total        int64  `json:"total"`
}

// MemberWithoutPurchase is a group member that never completed a purchase.
type MemberWithoutPurchase struct {
	Phone       string `json:"phone"`
	DisplayName string `json:"display_name"`
	HasRecord   bool   `json:"has_record"`
}

// PurchaseOutcome describes the ledger state right after a purchase was recorded.
type PurchaseOutcome struct {
	Phone                 string `json:"phone"`
	DisplayName           string `json:"display_name"`
	Amount                int64  `json:"amount"`
	CumulativeTotal       int64  `json:"cumulative_total"`
	Rank                  int    `json:"rank"`
	PurchasesToday        int    `json:"purchases_today"`
	DaysSincePrevious     int    `json:"days_since_previous"`
	HadPreviousPurchase   bool   `json:"had_previous_purchase"`
	LeaderTotal           int64  `json:"leader_total"`
	LeaderPhone           string `json:"leader_phone"`
	GroupID               string `json:"group_id"`
	ConfirmationReference string `json:"confirmation_reference,omitempty"`
}

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

package payrecon

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/wacul/ptr"

	"github.com/blnkfinance/payrecon/internal/phone"
	"github.com/blnkfinance/payrecon/model"
)

// DefaultInactiveAfterDays is the idle period after which a buyer is listed as inactive.
const DefaultInactiveAfterDays = 15

// LedgerBook owns the purchase ledger of every group. Group ledgers are
// created by the first purchase; read views never create them.
type LedgerBook struct {
	mu            sync.RWMutex
	groups        map[string]*model.GroupLedger
	loc           *time.Location
	inactiveAfter int
	now           func() time.Time
}

// NewLedgerBook returns an empty book bucketing days in loc.
func NewLedgerBook(loc *time.Location, inactiveAfterDays int) *LedgerBook {
	if loc == nil {
		loc = time.UTC
	}
	if inactiveAfterDays <= 0 {
		inactiveAfterDays = DefaultInactiveAfterDays
	}
	return &LedgerBook{
		groups:        make(map[string]*model.GroupLedger),
		loc:           loc,
		inactiveAfter: inactiveAfterDays,
		now:           time.Now,
	}
}

// RecordPurchase adds amount to the buyer's totals and returns the ledger
// state after the purchase, including the buyer's new rank.
func (l *LedgerBook) RecordPurchase(groupID, buyerPhone, displayName string, amount int64) model.PurchaseOutcome {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	group := l.groupLocked(groupID, now)

	buyer, ok := group.Buyers[buyerPhone]
	if !ok {
		buyer = &model.Buyer{DailyPurchaseLog: make(map[string][]model.PurchaseEntry)}
		group.Buyers[buyerPhone] = buyer
	}
	if buyer.DailyPurchaseLog == nil {
		buyer.DailyPurchaseLog = make(map[string][]model.PurchaseEntry)
	}
	if displayName != "" {
		buyer.DisplayName = displayName
	}

	outcome := model.PurchaseOutcome{
		Phone:       buyerPhone,
		DisplayName: buyer.DisplayName,
		Amount:      amount,
		GroupID:     groupID,
	}
	if buyer.LastPurchaseAt != nil {
		outcome.HadPreviousPurchase = true
		outcome.DaysSincePrevious = calendarDays(*buyer.LastPurchaseAt, now, l.loc)
	}

	buyer.CurrentPurchaseAmount = amount
	buyer.CumulativePurchaseAmount += amount
	buyer.LastPurchaseAt = ptr.Time(now)

	day := now.In(l.loc).Format(model.DayLayout)
	buyer.DailyPurchaseLog[day] = append(buyer.DailyPurchaseLog[day], model.PurchaseEntry{Timestamp: now, Amount: amount})

	group.TotalPurchaseCount++
	group.TotalAmount += amount

	ranked := rank(group)
	outcome.CumulativeTotal = buyer.CumulativePurchaseAmount
	outcome.PurchasesToday = len(buyer.DailyPurchaseLog[day])
	outcome.Rank = positionOf(ranked, buyerPhone)
	outcome.LeaderPhone = ranked[0].Phone
	outcome.LeaderTotal = ranked[0].Total
	return outcome
}

// Ranking returns the group leaderboard. A positive limit truncates it.
func (l *LedgerBook) Ranking(groupID string, limit int) []model.RankedBuyer {
	l.mu.RLock()
	defer l.mu.RUnlock()

	group, ok := l.groups[groupID]
	if !ok {
		return nil
	}
	ranked := rank(group)
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// RankOf returns the 1-based position of buyerPhone, or 0 when unknown.
func (l *LedgerBook) RankOf(groupID, buyerPhone string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	group, ok := l.groups[groupID]
	if !ok {
		return 0
	}
	return positionOf(rank(group), buyerPhone)
}

// TopBuyer returns the leader of the group.
func (l *LedgerBook) TopBuyer(groupID string) (model.RankedBuyer, bool) {
	ranked := l.Ranking(groupID, 1)
	if len(ranked) == 0 {
		return model.RankedBuyer{}, false
	}
	return ranked[0], true
}

// Totals returns the group-wide purchase count and amount.
func (l *LedgerBook) Totals(groupID string) (count, amount int64) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if group, ok := l.groups[groupID]; ok {
		return group.TotalPurchaseCount, group.TotalAmount
	}
	return 0, 0
}

// Inactive lists buyers whose last purchase is more than the inactivity
// period old, longest idle first.
func (l *LedgerBook) Inactive(groupID string) []model.InactiveBuyer {
	l.mu.RLock()
	defer l.mu.RUnlock()

	group, ok := l.groups[groupID]
	if !ok {
		return nil
	}

	now := l.now()
	var out []model.InactiveBuyer
	for phoneNumber, buyer := range group.Buyers {
		if buyer.LastPurchaseAt == nil {
			continue
		}
		days := int(now.Sub(*buyer.LastPurchaseAt) / (24 * time.Hour))
		if days > l.inactiveAfter {
			out = append(out, model.InactiveBuyer{
				Phone:        phoneNumber,
				DisplayName:  buyer.DisplayName,
				DaysInactive: days,
				Total:        buyer.CumulativePurchaseAmount,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DaysInactive != out[j].DaysInactive {
			return out[i].DaysInactive > out[j].DaysInactive
		}
		return out[i].Phone < out[j].Phone
	})
	return out
}

// ZeroPurchase diffs the group members against the ledger and returns the
// members that never bought anything, in membership order.
func (l *LedgerBook) ZeroPurchase(groupID string, participants []model.Participant) []model.MemberWithoutPurchase {
	l.mu.RLock()
	defer l.mu.RUnlock()

	group := l.groups[groupID]
	var out []model.MemberWithoutPurchase
	for _, p := range participants {
		digits := phone.Digits(phone.StripSuffix(p.ID))
		key := "+" + digits

		var buyer *model.Buyer
		if group != nil {
			buyer = group.Buyers[key]
		}
		if buyer != nil && buyer.CumulativePurchaseAmount > 0 {
			continue
		}

		name := p.Name
		if name == "" && buyer != nil {
			name = buyer.DisplayName
		}
		if name == "" {
			name = digits
		}
		out = append(out, model.MemberWithoutPurchase{Phone: key, DisplayName: name, HasRecord: buyer != nil})
	}
	return out
}

// Groups returns the IDs of every group holding a ledger.
func (l *LedgerBook) Groups() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := make([]string, 0, len(l.groups))
	for id := range l.groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Snapshot encodes every group ledger as a JSON object keyed by group ID.
func (l *LedgerBook) Snapshot() ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return json.Marshal(l.groups)
}

// Restore replaces the book content with a snapshot.
func (l *LedgerBook) Restore(data []byte) error {
	groups := make(map[string]*model.GroupLedger)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &groups); err != nil {
			return err
		}
	}
	for id, group := range groups {
		if group == nil {
			delete(groups, id)
			continue
		}
		if group.Buyers == nil {
			group.Buyers = make(map[string]*model.Buyer)
		}
	}

	l.mu.Lock()
	l.groups = groups
	l.mu.Unlock()
	return nil
}

func (l *LedgerBook) groupLocked(groupID string, now time.Time) *model.GroupLedger {
	group, ok := l.groups[groupID]
	if !ok {
		group = &model.GroupLedger{
			Buyers:    make(map[string]*model.Buyer),
			CreatedAt: now,
		}
		l.groups[groupID] = group
	}
	return group
}

// rank orders buyers by cumulative total, highest first. Equal totals are
// ordered by phone number so the leaderboard is stable between calls.
func rank(group *model.GroupLedger) []model.RankedBuyer {
	out := make([]model.RankedBuyer, 0, len(group.Buyers))
	for phoneNumber, buyer := range group.Buyers {
		out = append(out, model.RankedBuyer{
			Phone:       phoneNumber,
			DisplayName: buyer.DisplayName,
			Total:       buyer.CumulativePurchaseAmount,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Phone < out[j].Phone
	})
	for i := range out {
		out[i].Position = i + 1
	}
	return out
}

func positionOf(ranked []model.RankedBuyer, buyerPhone string) int {
	for _, r := range ranked {
		if r.Phone == buyerPhone {
			return r.Position
		}
	}
	return 0
}

// calendarDays counts the midnights between from and to in loc.
func calendarDays(from, to time.Time, loc *time.Location) int {
	fy, fm, fd := from.In(loc).Date()
	ty, tm, td := to.In(loc).Date()
	start := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	end := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	days := int(end.Sub(start).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

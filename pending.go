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

	"github.com/blnkfinance/payrecon/internal/reference"
	"github.com/blnkfinance/payrecon/model"
)

// PendingStore holds captured receipts until a confirmation claims them or
// they expire. Keys are normalized references shared by every group: the
// same reference captured in two groups collides and the last capture wins.
type PendingStore struct {
	mu      sync.Mutex
	entries map[string]model.PendingReceipt
}

func NewPendingStore() *PendingStore {
	return &PendingStore{entries: make(map[string]model.PendingReceipt)}
}

// Put stores a receipt, replacing any receipt with the same key.
func (s *PendingStore) Put(receipt model.PendingReceipt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[receipt.NormalizedReference] = receipt
}

// TakeExact removes and returns the receipt stored under key.
func (s *PendingStore) TakeExact(key string) (model.PendingReceipt, bool) {
	return s.Consume(func(view *PendingView) (string, bool) {
		return key, view.Has(key)
	})
}

// All returns the pending receipts, oldest capture first.
func (s *PendingStore) All() []model.PendingReceipt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked()
}

func (s *PendingStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// PendingView is the locked store as seen by a Consume selector. It is only
// valid while the selector runs.
type PendingView struct {
	store  *PendingStore
	sorted []model.PendingReceipt
}

// Has reports whether a receipt is stored under key.
func (v *PendingView) Has(key string) bool {
	_, ok := v.store.entries[key]
	return ok
}

// Candidates returns the live receipts, oldest first. The list is built on
// first use.
func (v *PendingView) Candidates() []model.PendingReceipt {
	if v.sorted == nil {
		v.sorted = v.store.sortedLocked()
	}
	return v.sorted
}

// Consume hands the locked store to selector and removes the key it picks
// before the store is released. Nothing else can observe or sweep the
// entries while selector runs.
func (s *PendingStore) Consume(selector func(view *PendingView) (string, bool)) (model.PendingReceipt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) == 0 {
		return model.PendingReceipt{}, false
	}
	key, ok := selector(&PendingView{store: s})
	if !ok {
		return model.PendingReceipt{}, false
	}
	receipt, ok := s.entries[key]
	if !ok {
		return model.PendingReceipt{}, false
	}
	delete(s.entries, key)
	return receipt, true
}

// SweepExpired drops receipts captured more than maxAge before now and
// reports how many were removed.
func (s *PendingStore) SweepExpired(now time.Time, maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, receipt := range s.entries {
		if receipt.Age(now) > maxAge {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Snapshot encodes the store as a JSON object keyed by reference.
func (s *PendingStore) Snapshot() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return json.Marshal(s.entries)
}

// Restore replaces the store content with a snapshot. Keys written by older
// releases are normalized on the way in.
func (s *PendingStore) Restore(data []byte) error {
	entries := make(map[string]model.PendingReceipt)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &entries); err != nil {
			return err
		}
	}

	restored := make(map[string]model.PendingReceipt, len(entries))
	for key, receipt := range entries {
		key = reference.NormalizeReference(key)
		if key == "" {
			continue
		}
		receipt.NormalizedReference = key
		if receipt.ReferenceType == "" {
			receipt.ReferenceType = reference.Classify(key)
		}
		restored[key] = receipt
	}

	s.mu.Lock()
	s.entries = restored
	s.mu.Unlock()
	return nil
}

func (s *PendingStore) sortedLocked() []model.PendingReceipt {
	out := make([]model.PendingReceipt, 0, len(s.entries))
	for _, receipt := range s.entries {
		out = append(out, receipt)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CapturedAt.Equal(out[j].CapturedAt) {
			return out[i].CapturedAt.Before(out[j].CapturedAt)
		}
		return out[i].NormalizedReference < out[j].NormalizedReference
	})
	return out
}

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
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/payrecon/internal/phone"
	"github.com/blnkfinance/payrecon/internal/reference"
	"github.com/blnkfinance/payrecon/model"
)

const (
	DefaultSpamThreshold = 5
	DefaultSpamWindow    = 60 * time.Second
	DefaultSpamMinLength = 10
)

// AdminChecker reports whether a user administers a group.
type AdminChecker interface {
	IsAdmin(ctx context.Context, groupID, userID string) (bool, error)
}

// Lockdown is the escalation run when a group is flooded.
type Lockdown interface {
	Lockdown(ctx context.Context, ev SpamEvent) error
}

// SpamEvent describes a detected flood.
type SpamEvent struct {
	GroupID      string    `json:"group_id"`
	SenderID     string    `json:"sender_id"`
	SenderNumber string    `json:"sender_number"`
	SenderName   string    `json:"sender_name"`
	Count        int       `json:"count"`
	At           time.Time `json:"at"`
}

// SpamTracker is the per-group, per-sender window store.
type SpamTracker interface {
	// Put appends text to the sender's window and returns how many entries
	// of the window hold the same text.
	Put(groupID, senderID, text string, at time.Time) int
	// Prune drops expired entries and idle windows. It returns the number of
	// windows removed.
	Prune(now time.Time) int
	// Evaluate runs an inbound message through the detector and reports
	// whether it triggered a lockdown.
	Evaluate(ctx context.Context, msg model.Message) bool
}

type spamEntry struct {
	text string
	at   time.Time
}

type spamWindow struct {
	entries  []spamEntry
	lastSeen time.Time
}

// SpamDetector counts identical messages per sender inside a sliding window
// and escalates to a lockdown once the threshold is reached. State for a
// group is discarded after each lockdown.
type SpamDetector struct {
	mu        sync.Mutex
	groups    map[string]map[string]*spamWindow
	threshold int
	window    time.Duration
	minLength int
	prefix    string
	admins    AdminChecker
	lockdown  Lockdown
	now       func() time.Time
}

var _ SpamTracker = (*SpamDetector)(nil)

// NewSpamDetector builds a detector. Zero values select the defaults.
func NewSpamDetector(threshold int, window time.Duration, minLength int, commandPrefix string, admins AdminChecker, lockdown Lockdown) *SpamDetector {
	if threshold <= 0 {
		threshold = DefaultSpamThreshold
	}
	if window <= 0 {
		window = DefaultSpamWindow
	}
	if minLength <= 0 {
		minLength = DefaultSpamMinLength
	}
	return &SpamDetector{
		groups:    make(map[string]map[string]*spamWindow),
		threshold: threshold,
		window:    window,
		minLength: minLength,
		prefix:    commandPrefix,
		admins:    admins,
		lockdown:  lockdown,
		now:       time.Now,
	}
}

// eligible reports whether a message takes part in flood detection.
func (d *SpamDetector) eligible(msg model.Message) bool {
	if !msg.IsGroup() {
		return false
	}
	if msg.Type != "" && msg.Type != model.MessageTypeChat {
		return false
	}
	text := strings.TrimSpace(msg.Body)
	if utf8.RuneCountInString(text) < d.minLength {
		return false
	}
	return d.prefix == "" || !strings.HasPrefix(text, d.prefix)
}

func (d *SpamDetector) Evaluate(ctx context.Context, msg model.Message) bool {
	if !d.eligible(msg) {
		return false
	}

	sender := phone.StripSuffix(msg.SenderID)
	if d.admins != nil {
		admin, err := d.admins.IsAdmin(ctx, msg.GroupID, msg.SenderID)
		if err != nil {
			logrus.WithError(err).WithField("group", msg.GroupID).Warn("admin lookup failed, skipping spam check")
			return false
		}
		if admin {
			return false
		}
	}

	now := d.now()
	count := d.Put(msg.GroupID, sender, reference.NormalizeText(msg.Body), now)
	if count < d.threshold {
		return false
	}

	logrus.WithFields(logrus.Fields{
		"group":  msg.GroupID,
		"sender": sender,
		"count":  count,
	}).Warn("spam detected")

	if d.lockdown != nil {
		ev := SpamEvent{
			GroupID:      msg.GroupID,
			SenderID:     msg.SenderID,
			SenderNumber: phone.Digits(sender),
			SenderName:   msg.SenderName,
			Count:        count,
			At:           now,
		}
		// The lockdown outlives the inbound request that triggered it.
		if err := d.lockdown.Lockdown(context.WithoutCancel(ctx), ev); err != nil {
			logrus.WithError(err).WithField("group", msg.GroupID).Error("group lockdown failed")
		}
	}
	d.Reset(msg.GroupID)
	return true
}

func (d *SpamDetector) Put(groupID, senderID, text string, at time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	senders, ok := d.groups[groupID]
	if !ok {
		senders = make(map[string]*spamWindow)
		d.groups[groupID] = senders
	}
	w, ok := senders[senderID]
	if !ok {
		w = &spamWindow{}
		senders[senderID] = w
	}

	w.entries = d.live(w.entries, at)
	w.entries = append(w.entries, spamEntry{text: text, at: at})
	w.lastSeen = at

	count := 0
	for _, e := range w.entries {
		if e.text == text {
			count++
		}
	}
	return count
}

func (d *SpamDetector) Prune(now time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	removed := 0
	for groupID, senders := range d.groups {
		for senderID, w := range senders {
			w.entries = d.live(w.entries, now)
			if len(w.entries) == 0 && now.Sub(w.lastSeen) > 2*d.window {
				delete(senders, senderID)
				removed++
			}
		}
		if len(senders) == 0 {
			delete(d.groups, groupID)
		}
	}
	return removed
}

// Reset forgets every window of a group.
func (d *SpamDetector) Reset(groupID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.groups, groupID)
}

// Tracked returns the number of groups and sender windows held in memory.
func (d *SpamDetector) Tracked() (groups, windows int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, senders := range d.groups {
		windows += len(senders)
	}
	return len(d.groups), windows
}

// live keeps the entries younger than the window at now.
func (d *SpamDetector) live(entries []spamEntry, now time.Time) []spamEntry {
	kept := entries[:0]
	for _, e := range entries {
		if now.Sub(e.at) < d.window {
			kept = append(kept, e)
		}
	}
	return kept
}

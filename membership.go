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
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/payrecon/internal/phone"
	"github.com/blnkfinance/payrecon/model"
)

type cleanupKind string

const (
	cleanupNoPurchase cleanupKind = "no_purchase"
	cleanupForeign    cleanupKind = "foreign_number"

	joinTypeAdd      = "add"
	joinRemovalCause = "entrada automática"
)

func (k cleanupKind) texts() cleanupTexts {
	if k == cleanupForeign {
		return numberCleanupTexts
	}
	return purchaseCleanupTexts
}

type cleanupCandidate struct {
	ID     string
	Number string
	Name   string
}

type pendingCleanup struct {
	kind        cleanupKind
	groupID     string
	requestedBy string
	candidates  []cleanupCandidate
	expiresAt   time.Time
}

type claimResult int

const (
	claimNone claimResult = iota
	claimForeignRequester
	claimOK
)

// cleanupRegistry holds the cleanups waiting for their confirmation, one per
// group and kind. Entries lapse at their expiry.
type cleanupRegistry struct {
	mu      sync.Mutex
	entries map[string]pendingCleanup
	now     func() time.Time
}

func newCleanupRegistry() *cleanupRegistry {
	return &cleanupRegistry{entries: make(map[string]pendingCleanup), now: time.Now}
}

func cleanupKey(kind cleanupKind, groupID string) string {
	return string(kind) + "|" + groupID
}

func (c *cleanupRegistry) put(p pendingCleanup) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cleanupKey(p.kind, p.groupID)] = p
}

// claim removes the pending cleanup when requester is the admin who asked for it.
func (c *cleanupRegistry) claim(kind cleanupKind, groupID, requester string) (pendingCleanup, claimResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cleanupKey(kind, groupID)
	p, ok := c.entries[key]
	if !ok {
		return pendingCleanup{}, claimNone
	}
	if !c.now().Before(p.expiresAt) {
		delete(c.entries, key)
		return pendingCleanup{}, claimNone
	}
	if p.requestedBy != requester {
		return pendingCleanup{}, claimForeignRequester
	}
	delete(c.entries, key)
	return p, claimOK
}

func sameUser(a, b string) bool {
	da, db := phone.Digits(phone.StripSuffix(a)), phone.Digits(phone.StripSuffix(b))
	return da != "" && da == db
}

// botIsAdmin reports whether the bot account administers the group.
func (r *Recon) botIsAdmin(ctx context.Context, participants []model.Participant) (string, bool, error) {
	self, err := r.transport.SelfID(ctx)
	if err != nil {
		return "", false, err
	}
	for _, p := range participants {
		if sameUser(p.ID, self) {
			return self, p.IsAdmin, nil
		}
	}
	return self, false, nil
}

// cleanupCandidates lists the non-admin members a cleanup of kind would remove.
func (r *Recon) cleanupCandidates(kind cleanupKind, groupID, self string, participants []model.Participant) []cleanupCandidate {
	cc := r.cfg.Membership.CountryCode

	var eligible []model.Participant
	for _, p := range participants {
		if p.IsAdmin || sameUser(p.ID, self) {
			continue
		}
		eligible = append(eligible, p)
	}

	var out []cleanupCandidate
	switch kind {
	case cleanupNoPurchase:
		byKey := make(map[string]model.Participant, len(eligible))
		for _, p := range eligible {
			byKey["+"+phone.Digits(phone.StripSuffix(p.ID))] = p
		}
		for _, m := range r.ledgers.ZeroPurchase(groupID, eligible) {
			out = append(out, cleanupCandidate{
				ID:     byKey[m.Phone].ID,
				Number: m.Phone[1:],
				Name:   m.DisplayName,
			})
		}
	case cleanupForeign:
		for _, p := range eligible {
			if phone.HasCountryCode(p.ID, cc) {
				continue
			}
			number := phone.Digits(phone.StripSuffix(p.ID))
			name := p.Name
			if name == "" {
				name = number
			}
			out = append(out, cleanupCandidate{ID: p.ID, Number: number, Name: name})
		}
	}
	return out
}

// startCleanup lists the members a cleanup would remove and asks the
// requesting admin to confirm.
func (r *Recon) startCleanup(ctx context.Context, msg model.Message, kind cleanupKind) error {
	texts := kind.texts()
	if !msg.IsGroup() {
		return r.reply(ctx, msg, msgGroupOnly)
	}

	participants, err := r.transport.GetParticipants(ctx, msg.GroupID)
	if err != nil {
		_ = r.reply(ctx, msg, texts.prepareError)
		return err
	}

	requesterIsAdmin := false
	for _, p := range participants {
		if sameUser(p.ID, msg.SenderID) {
			requesterIsAdmin = p.IsAdmin
			break
		}
	}
	if !requesterIsAdmin {
		return r.reply(ctx, msg, texts.accessDenied)
	}

	self, ok, err := r.botIsAdmin(ctx, participants)
	if err != nil {
		_ = r.reply(ctx, msg, texts.prepareError)
		return err
	}
	if !ok {
		return r.reply(ctx, msg, msgBotNotAdmin)
	}

	candidates := r.cleanupCandidates(kind, msg.GroupID, self, participants)
	if len(candidates) == 0 {
		return r.reply(ctx, msg, texts.unnecessary)
	}

	if err := r.reply(ctx, msg, texts.confirmation(candidates, r.cfg.Membership.CountryCode)); err != nil {
		return err
	}

	r.cleanups.put(pendingCleanup{
		kind:        kind,
		groupID:     msg.GroupID,
		requestedBy: phone.Digits(phone.StripSuffix(msg.SenderID)),
		candidates:  candidates,
		expiresAt:   r.now().Add(time.Duration(r.cfg.Membership.CleanupConfirmSec) * time.Second),
	})
	logrus.WithFields(logrus.Fields{
		"group":      msg.GroupID,
		"kind":       kind,
		"candidates": len(candidates),
	}).Info("cleanup awaiting confirmation")
	return nil
}

// confirmCleanup removes the members listed by the pending cleanup, one at
// a time, and reports the result.
func (r *Recon) confirmCleanup(ctx context.Context, msg model.Message, kind cleanupKind) error {
	texts := kind.texts()

	p, res := r.cleanups.claim(kind, msg.GroupKey(), phone.Digits(phone.StripSuffix(msg.SenderID)))
	switch res {
	case claimNone:
		return r.reply(ctx, msg, texts.noPending)
	case claimForeignRequester:
		return r.reply(ctx, msg, msgOnlyRequester)
	}

	if err := r.reply(ctx, msg, fmt.Sprintf(texts.starting, len(p.candidates))); err != nil {
		return err
	}

	delay := time.Duration(0)
	if r.cfg.Membership.RemovalDelayMs != nil {
		delay = time.Duration(*r.cfg.Membership.RemovalDelayMs) * time.Millisecond
	}

	removed, failed := 0, 0
	for _, m := range p.candidates {
		if err := r.transport.RemoveParticipant(ctx, p.groupID, m.ID); err != nil {
			failed++
			logrus.WithError(err).WithField("member", m.Number).Warn("removing member failed")
			continue
		}
		removed++
		logrus.WithFields(logrus.Fields{"group": p.groupID, "member": m.Number}).Info("member removed")

		if err := sleepCtx(ctx, delay); err != nil {
			_ = r.reply(context.Background(), msg, texts.runError)
			return err
		}
	}

	logrus.WithFields(logrus.Fields{
		"group":   p.groupID,
		"kind":    kind,
		"removed": removed,
		"failed":  failed,
	}).Info("cleanup finished")
	return r.reply(ctx, msg, texts.report(removed, failed, len(p.candidates)))
}

// HandleGroupJoin removes members added to a group whose number does not
// carry the configured country code.
func (r *Recon) HandleGroupJoin(ctx context.Context, join model.GroupJoin) error {
	if join.Type != joinTypeAdd {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, span := tracer.Start(ctx, "HandleGroupJoin")
	defer span.End()

	cc := r.cfg.Membership.CountryCode
	for _, id := range join.ParticipantIDs {
		if phone.HasCountryCode(id, cc) {
			continue
		}
		if _, err := r.removeForeignNumber(ctx, join.GroupID, id, joinRemovalCause); err != nil {
			span.RecordError(err)
			logrus.WithError(err).WithField("group", join.GroupID).Error("removing foreign number")
		}
	}
	return nil
}

func (r *Recon) removeForeignNumber(ctx context.Context, groupID, userID, cause string) (bool, error) {
	participants, err := r.transport.GetParticipants(ctx, groupID)
	if err != nil {
		return false, err
	}
	_, admin, err := r.botIsAdmin(ctx, participants)
	if err != nil {
		return false, err
	}
	number := phone.Digits(phone.StripSuffix(userID))
	if !admin {
		logrus.WithFields(logrus.Fields{"group": groupID, "number": number}).Warn("bot is not admin, cannot remove foreign number")
		return false, nil
	}

	name := number
	for _, p := range participants {
		if sameUser(p.ID, userID) && p.Name != "" {
			name = p.Name
		}
	}

	if err := r.transport.RemoveParticipant(ctx, groupID, userID); err != nil {
		return false, err
	}
	if err := r.transport.SendMessage(ctx, groupID, ForeignRemovalNotice(name, number, cause, r.cfg.Membership.CountryCode), nil); err != nil {
		logrus.WithError(err).WithField("group", groupID).Warn("sending removal notice")
	}

	logrus.WithFields(logrus.Fields{"group": groupID, "number": number}).Info("foreign number removed")
	return true, nil
}

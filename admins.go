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
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/payrecon/internal/cache"
	"github.com/blnkfinance/payrecon/internal/phone"
)

const adminCachePrefix = "admins:"

// adminRoster answers admin lookups from the transport, caching each
// group's admin list for ttl.
type adminRoster struct {
	transport Transport
	cache     cache.Cache
	ttl       time.Duration
}

func newAdminRoster(transport Transport, c cache.Cache, ttl time.Duration) *adminRoster {
	return &adminRoster{transport: transport, cache: c, ttl: ttl}
}

func (r *adminRoster) IsAdmin(ctx context.Context, groupID, userID string) (bool, error) {
	admins, err := r.admins(ctx, groupID)
	if err != nil {
		return false, err
	}
	user := phone.Digits(phone.StripSuffix(userID))
	for _, a := range admins {
		if a == user {
			return true, nil
		}
	}
	return false, nil
}

// Invalidate drops the cached admin list of a group.
func (r *adminRoster) Invalidate(ctx context.Context, groupID string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Delete(ctx, adminCachePrefix+groupID); err != nil {
		logrus.WithError(err).Debug("dropping cached admins")
	}
}

func (r *adminRoster) admins(ctx context.Context, groupID string) ([]string, error) {
	key := adminCachePrefix + groupID
	if r.cache != nil && r.ttl > 0 {
		var cached []string
		err := r.cache.Get(ctx, key, &cached)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			logrus.WithError(err).Debug("reading cached admins")
		}
	}

	set, err := r.transport.GetChatAdmins(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("fetching admins of %s: %w", groupID, err)
	}
	admins := make([]string, 0, len(set))
	for id, isAdmin := range set {
		if isAdmin {
			admins = append(admins, phone.Digits(phone.StripSuffix(id)))
		}
	}

	if r.cache != nil && r.ttl > 0 {
		if err := r.cache.Set(ctx, key, admins, r.ttl); err != nil {
			logrus.WithError(err).Debug("caching admins")
		}
	}
	return admins, nil
}

// groupLockdown announces a flood, closes the group to non-admins and
// announces the closure.
type groupLockdown struct {
	transport Transport
	webhooks  *webhookSender
	delay     time.Duration
	loc       *time.Location
}

func (g *groupLockdown) Lockdown(ctx context.Context, ev SpamEvent) error {
	if err := g.transport.SendMessage(ctx, ev.GroupID, SpamNotice(ev, g.loc), nil); err != nil {
		logrus.WithError(err).WithField("group", ev.GroupID).Error("sending spam notice")
	}

	if err := sleepCtx(ctx, g.delay); err != nil {
		return err
	}

	if err := g.transport.SetAdminsOnly(ctx, ev.GroupID, true); err != nil {
		return fmt.Errorf("closing group %s: %w", ev.GroupID, err)
	}
	if err := g.transport.SendMessage(ctx, ev.GroupID, GroupClosedNotice(), nil); err != nil {
		return fmt.Errorf("announcing closed group %s: %w", ev.GroupID, err)
	}

	g.webhooks.send(EventGroupLocked, ev)
	logrus.WithFields(logrus.Fields{
		"group":  ev.GroupID,
		"sender": ev.SenderNumber,
	}).Info("group closed after spam")
	return nil
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

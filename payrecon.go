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

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/blnkfinance/payrecon/config"
	"github.com/blnkfinance/payrecon/database"
	"github.com/blnkfinance/payrecon/internal/cache"
	"github.com/blnkfinance/payrecon/internal/notification"
	redis_db "github.com/blnkfinance/payrecon/internal/redis-db"
	"github.com/blnkfinance/payrecon/internal/reference"
	"github.com/blnkfinance/payrecon/model"
)

var tracer = otel.Tracer("payrecon")

// Transport is the chat session the bot acts through.
type Transport interface {
	SendMessage(ctx context.Context, chatID, text string, mentions []string) error
	// GetChatAdmins returns the IDs of the group members mapped to their admin flag.
	GetChatAdmins(ctx context.Context, groupID string) (map[string]bool, error)
	GetParticipants(ctx context.Context, groupID string) ([]model.Participant, error)
	RemoveParticipant(ctx context.Context, groupID, userID string) error
	SetAdminsOnly(ctx context.Context, groupID string, adminsOnly bool) error
	// SelfID returns the user ID of the bot account.
	SelfID(ctx context.Context) (string, error)
}

// TextExtractor reads the transaction reference printed on a receipt image.
// It answers reference.NotFound when the image holds none.
type TextExtractor interface {
	ExtractText(ctx context.Context, image []byte, mimeType string) (string, error)
}

// Recon is the reconciliation bot: it captures receipts, matches them with
// confirmations, keeps the per-group ledgers and guards groups against
// floods and foreign numbers.
type Recon struct {
	cfg        *config.Configuration
	datasource database.IDataSource
	transport  Transport
	ocr        TextExtractor
	parser     *reference.Parser
	cache      cache.Cache
	pending    *PendingStore
	matcher    *Matcher
	ledgers    *LedgerBook
	spam       *SpamDetector
	roster     *adminRoster
	cleanups   *cleanupRegistry
	webhooks   *webhookSender
	loc        *time.Location

	// mu serializes message handling.
	mu       sync.Mutex
	// saveMu keeps snapshots and their writes in order.
	saveMu   sync.Mutex
	sweepers []*Sweeper
	now      func() time.Time
}

// NewRecon wires a bot from the loaded configuration. ocr may be nil, in
// which case image receipts are dropped.
func NewRecon(db database.IDataSource, transport Transport, ocr TextExtractor) (*Recon, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	parser, err := reference.Load(cfg.Reconciliation.GrammarFile)
	if err != nil {
		return nil, err
	}

	var client redis.UniversalClient
	if cfg.Redis.Dns != "" {
		rc, err := redis_db.NewRedisClient([]string{cfg.Redis.Dns}, cfg.Redis.SkipTLSVerify)
		if err != nil {
			return nil, err
		}
		client = rc.Client()
	}
	adminTTL := time.Duration(cfg.Spam.AdminCacheSec) * time.Second
	return newRecon(cfg, db, transport, ocr, parser, cache.NewCache(client, adminTTL)), nil
}

func newRecon(cfg *config.Configuration, db database.IDataSource, transport Transport, ocr TextExtractor, parser *reference.Parser, c cache.Cache) *Recon {
	loc := cfg.Location()
	pending := NewPendingStore()

	r := &Recon{
		cfg:        cfg,
		datasource: db,
		transport:  transport,
		ocr:        ocr,
		parser:     parser,
		cache:      c,
		pending:    pending,
		matcher:    NewMatcher(pending, cfg.Reconciliation.SimilarityThreshold),
		ledgers:    NewLedgerBook(loc, cfg.Reconciliation.InactiveAfterDays),
		roster:     newAdminRoster(transport, c, time.Duration(cfg.Spam.AdminCacheSec)*time.Second),
		cleanups:   newCleanupRegistry(),
		webhooks:   newWebhookSender(cfg.Notification.Webhook),
		loc:        loc,
		now:        time.Now,
	}

	lockdownDelay := 2 * time.Second
	if cfg.Spam.LockdownDelayMs != nil {
		lockdownDelay = time.Duration(*cfg.Spam.LockdownDelayMs) * time.Millisecond
	}
	r.spam = NewSpamDetector(
		cfg.Spam.Threshold,
		time.Duration(cfg.Spam.WindowSec)*time.Second,
		cfg.Spam.MinLength,
		cfg.Spam.CommandPrefix,
		r.roster,
		&groupLockdown{transport: transport, webhooks: r.webhooks, delay: lockdownDelay, loc: loc},
	)
	return r
}

// setClock replaces the time source of the bot and its stores.
func (r *Recon) setClock(now func() time.Time) {
	r.now = now
	r.ledgers.now = now
	r.spam.now = now
	r.cleanups.now = now
}

// Load restores the ledgers and the pending receipts from the datasource.
// Undecodable blobs are logged and replaced by empty state.
func (r *Recon) Load(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Load")
	defer span.End()

	ledgers, err := r.datasource.LoadBlob(ctx, database.LedgersKey)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("loading ledgers: %w", err)
	}
	if err := r.ledgers.Restore(ledgers); err != nil {
		logrus.WithError(err).Error("ledger blob is corrupt, starting with empty ledgers")
	}

	pending, err := r.datasource.LoadBlob(ctx, database.PendingKey)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("loading pending receipts: %w", err)
	}
	if err := r.pending.Restore(pending); err != nil {
		logrus.WithError(err).Error("pending blob is corrupt, starting with no pending receipts")
	}

	logrus.WithFields(logrus.Fields{
		"groups":  len(r.ledgers.Groups()),
		"pending": r.pending.Len(),
	}).Info("state loaded")
	return nil
}

// Flush writes both stores to the datasource.
func (r *Recon) Flush(ctx context.Context) {
	r.flushLedgers(ctx)
	r.flushPending(ctx)
}

func (r *Recon) flushLedgers(ctx context.Context) {
	r.saveSnapshot(ctx, database.LedgersKey, r.ledgers.Snapshot)
}

func (r *Recon) flushPending(ctx context.Context) {
	r.saveSnapshot(ctx, database.PendingKey, r.pending.Snapshot)
}

// saveSnapshot writes one blob through. Failures leave the in-memory state
// serving and are reported to the operator.
func (r *Recon) saveSnapshot(ctx context.Context, key string, snapshot func() ([]byte, error)) {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	data, err := snapshot()
	if err == nil {
		err = r.datasource.SaveBlob(ctx, key, data)
	}
	if err != nil {
		notification.NotifyError(fmt.Errorf("saving %s: %w", key, err))
	}
}

func (r *Recon) Ledgers() *LedgerBook { return r.ledgers }

func (r *Recon) Pending() *PendingStore { return r.pending }

func (r *Recon) Spam() *SpamDetector { return r.spam }

// Config returns the configuration the bot was built with.
func (r *Recon) Config() *config.Configuration { return r.cfg }

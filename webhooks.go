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
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/payrecon/config"
	"github.com/blnkfinance/payrecon/internal/request"
)

const (
	EventPurchaseConfirmed = "purchase.confirmed"
	EventGroupLocked       = "group.locked"

	webhookTimeout = 10 * time.Second
)

// NewWebhook is the body posted to the configured webhook URL.
type NewWebhook struct {
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"data"`
}

// webhookSender posts bot events to an external URL. Deliveries run in the
// background and are awaited by wait.
type webhookSender struct {
	conf   config.WebhookConfig
	client *http.Client
	now    func() time.Time
	wg     sync.WaitGroup
}

func newWebhookSender(conf config.WebhookConfig) *webhookSender {
	return &webhookSender{
		conf:   conf,
		client: &http.Client{Timeout: webhookTimeout},
		now:    time.Now,
	}
}

// send delivers event without blocking the caller. It is a no-op when no
// URL is configured.
func (w *webhookSender) send(event string, payload interface{}) {
	if w == nil || w.conf.Url == "" {
		return
	}
	hook := NewWebhook{Event: event, Timestamp: w.now().UTC(), Payload: payload}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.processHTTP(context.Background(), hook); err != nil {
			logrus.WithError(err).WithField("event", event).Error("webhook delivery failed")
		}
	}()
}

func (w *webhookSender) processHTTP(ctx context.Context, hook NewWebhook) error {
	body, err := request.ToJsonReq(hook)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.conf.Url, body)
	if err != nil {
		return err
	}
	for key, value := range w.conf.Headers {
		req.Header.Set(key, value)
	}

	if _, err := request.Call(w.client, req, nil); err != nil {
		return err
	}
	logrus.WithField("event", hook.Event).Debug("webhook notification sent")
	return nil
}

// wait blocks until every pending delivery finished.
func (w *webhookSender) wait() {
	if w == nil {
		return
	}
	w.wg.Wait()
}

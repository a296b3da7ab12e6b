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

// Package gateway talks to the HTTP chat gateway that owns the messaging
// session. It implements the bot's Transport.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/payrecon/config"
	"github.com/blnkfinance/payrecon/internal/request"
	"github.com/blnkfinance/payrecon/model"
)

const defaultInitialInterval = 500 * time.Millisecond

// Client is a Transport over the gateway's REST API.
type Client struct {
	baseURL         string
	token           string
	http            *http.Client
	maxRetries      uint64
	initialInterval time.Duration
}

type sendMessageRequest struct {
	ChatID   string   `json:"chat_id"`
	Text     string   `json:"text"`
	Mentions []string `json:"mentions,omitempty"`
}

type settingsRequest struct {
	AdminsOnly bool `json:"admins_only"`
}

type participantsResponse struct {
	Participants []model.Participant `json:"participants"`
}

type meResponse struct {
	ID string `json:"id"`
}

func New(cfg config.GatewayConfig) *Client {
	return newClient(cfg, &http.Client{Timeout: time.Duration(cfg.TimeoutSec) * time.Second}, defaultInitialInterval)
}

func newClient(cfg config.GatewayConfig, httpClient *http.Client, initial time.Duration) *Client {
	return &Client{
		baseURL:         cfg.BaseURL,
		token:           cfg.Token,
		http:            httpClient,
		maxRetries:      cfg.MaxRetries,
		initialInterval: initial,
	}
}

// do sends one JSON request, retrying network failures and retryable
// statuses with exponential backoff.
func (c *Client) do(ctx context.Context, method, path string, payload, response interface{}) error {
	op := func() error {
		var body io.Reader
		if payload != nil {
			buf, err := request.ToJsonReq(payload)
			if err != nil {
				return backoff.Permanent(err)
			}
			body = buf
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return backoff.Permanent(err)
		}
		if c.token != "" {
			req.Header.Set("Authorization", request.Bearer(c.token))
		}

		_, err = request.Call(c.http, req, response)
		if err == nil {
			return nil
		}
		var statusErr *request.StatusError
		if errors.As(err, &statusErr) && !statusErr.Retryable() {
			return backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.initialInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, c.maxRetries), ctx)

	notify := func(err error, wait time.Duration) {
		logrus.WithError(err).WithFields(logrus.Fields{
			"method": method,
			"path":   path,
			"wait":   wait,
		}).Warn("gateway request failed, retrying")
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return fmt.Errorf("gateway %s %s: %w", method, path, err)
	}
	return nil
}

func groupPath(groupID string, parts ...string) string {
	p := "/groups/" + url.PathEscape(groupID)
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

func (c *Client) SendMessage(ctx context.Context, chatID, text string, mentions []string) error {
	return c.do(ctx, http.MethodPost, "/messages", sendMessageRequest{ChatID: chatID, Text: text, Mentions: mentions}, nil)
}

func (c *Client) GetParticipants(ctx context.Context, groupID string) ([]model.Participant, error) {
	var resp participantsResponse
	if err := c.do(ctx, http.MethodGet, groupPath(groupID, "participants"), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Participants, nil
}

// GetChatAdmins maps every participant ID to its admin flag.
func (c *Client) GetChatAdmins(ctx context.Context, groupID string) (map[string]bool, error) {
	participants, err := c.GetParticipants(ctx, groupID)
	if err != nil {
		return nil, err
	}
	admins := make(map[string]bool, len(participants))
	for _, p := range participants {
		admins[p.ID] = p.IsAdmin
	}
	return admins, nil
}

func (c *Client) RemoveParticipant(ctx context.Context, groupID, userID string) error {
	return c.do(ctx, http.MethodDelete, groupPath(groupID, "participants", userID), nil, nil)
}

func (c *Client) SetAdminsOnly(ctx context.Context, groupID string, adminsOnly bool) error {
	return c.do(ctx, http.MethodPut, groupPath(groupID, "settings"), settingsRequest{AdminsOnly: adminsOnly}, nil)
}

// SelfID returns the account the gateway is logged in as.
func (c *Client) SelfID(ctx context.Context) (string, error) {
	var resp meResponse
	if err := c.do(ctx, http.MethodGet, "/me", nil, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", errors.New("gateway returned an empty account id")
	}
	return resp.ID, nil
}

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

package notification

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/payrecon/config"
)

func TestSlackMessage(t *testing.T) {
	at := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)
	msg := slackMessage("Payrecon", errors.New("flush failed"), at)

	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Error From Payrecon")
	assert.Contains(t, string(data), `*Error:*\nflush failed`)
	assert.Contains(t, string(data), at.Format(time.RFC822))
}

func TestSlackNotification_Posts(t *testing.T) {
	received := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		body, _ := io.ReadAll(r.Body)
		received <- string(body)
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	cnf := config.Defaults()
	cnf.Notification.Slack.WebhookUrl = server.URL
	config.MockConfig(cnf)

	err := SlackNotification(context.Background(), errors.New("ledger save failed"))
	require.NoError(t, err)

	body := <-received
	assert.True(t, strings.Contains(body, "ledger save failed"))
}

func TestSlackNotification_NoWebhook(t *testing.T) {
	config.MockConfig(config.Defaults())
	assert.NoError(t, SlackNotification(context.Background(), errors.New("ignored")))
}

func TestSlackNotification_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cnf := config.Defaults()
	cnf.Notification.Slack.WebhookUrl = server.URL
	config.MockConfig(cnf)

	assert.Error(t, SlackNotification(context.Background(), errors.New("boom")))
}

func TestNotifyError_Nil(t *testing.T) {
	assert.NotPanics(t, func() { NotifyError(nil) })
}

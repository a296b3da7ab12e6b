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

package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/payrecon/config"
	"github.com/blnkfinance/payrecon/model"
)

const (
	baseURL = "http://gateway.test"
	group   = "120363000000000001@g.us"
)

func newTestClient(t *testing.T, retries uint64) (*Client, *httpmock.MockTransport) {
	t.Helper()
	mt := httpmock.NewMockTransport()
	cfg := config.GatewayConfig{BaseURL: baseURL, Token: "tok", MaxRetries: retries}
	c := newClient(cfg, &http.Client{Transport: mt}, time.Millisecond)
	return c, mt
}

func TestSendMessage(t *testing.T) {
	c, mt := newTestClient(t, 2)

	var got sendMessageRequest
	mt.RegisterResponder(http.MethodPost, baseURL+"/messages", func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "Bearer tok", req.Header.Get("Authorization"))
		assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
		raw, _ := io.ReadAll(req.Body)
		require.NoError(t, json.Unmarshal(raw, &got))
		return httpmock.NewStringResponse(http.StatusCreated, `{}`), nil
	})

	err := c.SendMessage(context.Background(), group, "olá", []string{"258841234567@c.us"})
	require.NoError(t, err)
	assert.Equal(t, sendMessageRequest{ChatID: group, Text: "olá", Mentions: []string{"258841234567@c.us"}}, got)
}

func TestParticipantsAndAdmins(t *testing.T) {
	c, mt := newTestClient(t, 0)
	mt.RegisterResponder(http.MethodGet, baseURL+"/groups/"+group+"/participants",
		httpmock.NewJsonResponderOrPanic(http.StatusOK, participantsResponse{Participants: []model.Participant{
			{ID: "258840000000@c.us", IsAdmin: true},
			{ID: "258841111111@c.us", Name: "Ana"},
		}}))

	ps, err := c.GetParticipants(context.Background(), group)
	require.NoError(t, err)
	require.Len(t, ps, 2)
	assert.Equal(t, "Ana", ps[1].Name)

	admins, err := c.GetChatAdmins(context.Background(), group)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"258840000000@c.us": true, "258841111111@c.us": false}, admins)
}

func TestRetriesServerErrors(t *testing.T) {
	c, mt := newTestClient(t, 3)

	calls := 0
	mt.RegisterResponder(http.MethodDelete, baseURL+"/groups/"+group+"/participants/258841111111@c.us",
		func(*http.Request) (*http.Response, error) {
			calls++
			if calls < 3 {
				return httpmock.NewStringResponse(http.StatusServiceUnavailable, "busy"), nil
			}
			return httpmock.NewStringResponse(http.StatusNoContent, ""), nil
		})

	require.NoError(t, c.RemoveParticipant(context.Background(), group, "258841111111@c.us"))
	assert.Equal(t, 3, calls)
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	c, mt := newTestClient(t, 3)
	mt.RegisterResponder(http.MethodPut, baseURL+"/groups/"+group+"/settings",
		httpmock.NewStringResponder(http.StatusForbidden, `{"error":"not admin"}`))

	err := c.SetAdminsOnly(context.Background(), group, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 403")
	assert.Equal(t, 1, mt.GetTotalCallCount())
}

func TestRetriesExhausted(t *testing.T) {
	c, mt := newTestClient(t, 2)
	mt.RegisterResponder(http.MethodGet, baseURL+"/me", httpmock.NewStringResponder(http.StatusBadGateway, "down"))

	_, err := c.SelfID(context.Background())
	require.Error(t, err)
	assert.Equal(t, 3, mt.GetTotalCallCount())
}

func TestSelfID(t *testing.T) {
	c, mt := newTestClient(t, 0)
	mt.RegisterResponder(http.MethodGet, baseURL+"/me", httpmock.NewStringResponder(http.StatusOK, `{"id":"258840000000@c.us"}`))

	id, err := c.SelfID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "258840000000@c.us", id)

	mt.RegisterResponder(http.MethodGet, baseURL+"/me", httpmock.NewStringResponder(http.StatusOK, `{}`))
	_, err = c.SelfID(context.Background())
	assert.Error(t, err)
}

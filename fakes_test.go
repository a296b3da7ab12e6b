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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/blnkfinance/payrecon/config"
	"github.com/blnkfinance/payrecon/database/mocks"
	"github.com/blnkfinance/payrecon/internal/cache"
	"github.com/blnkfinance/payrecon/internal/reference"
	"github.com/blnkfinance/payrecon/model"
)

const (
	testGroup = "120363000000000001@g.us"
	testBot   = "258840000000@c.us"
	testAdmin = "258849999999@c.us"
)

type sentMessage struct {
	chatID   string
	text     string
	mentions []string
}

// fakeTransport records every outbound call.
type fakeTransport struct {
	mu           sync.Mutex
	sent         []sentMessage
	participants map[string][]model.Participant
	adminCalls   int
	adminErr     error
	removed      []string
	removeErr    map[string]error
	adminsOnly   map[string]bool
	selfID       string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		participants: map[string][]model.Participant{
			testGroup: {
				{ID: testBot, IsAdmin: true},
				{ID: testAdmin, Name: "Admin", IsAdmin: true},
			},
		},
		removeErr:  map[string]error{},
		adminsOnly: map[string]bool{},
		selfID:     testBot,
	}
}

func (f *fakeTransport) addMember(groupID string, p model.Participant) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.participants[groupID] = append(f.participants[groupID], p)
}

func (f *fakeTransport) SendMessage(_ context.Context, chatID, text string, mentions []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text, mentions: mentions})
	return nil
}

func (f *fakeTransport) GetChatAdmins(_ context.Context, groupID string) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adminCalls++
	if f.adminErr != nil {
		return nil, f.adminErr
	}
	out := map[string]bool{}
	for _, p := range f.participants[groupID] {
		out[p.ID] = p.IsAdmin
	}
	return out, nil
}

func (f *fakeTransport) GetParticipants(_ context.Context, groupID string) ([]model.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ps, ok := f.participants[groupID]
	if !ok {
		return nil, errors.New("unknown group")
	}
	return append([]model.Participant(nil), ps...), nil
}

func (f *fakeTransport) RemoveParticipant(_ context.Context, groupID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.removeErr[userID]; err != nil {
		return err
	}
	f.removed = append(f.removed, userID)
	kept := f.participants[groupID][:0]
	for _, p := range f.participants[groupID] {
		if p.ID != userID {
			kept = append(kept, p)
		}
	}
	f.participants[groupID] = kept
	return nil
}

func (f *fakeTransport) SetAdminsOnly(_ context.Context, groupID string, adminsOnly bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adminsOnly[groupID] = adminsOnly
	return nil
}

func (f *fakeTransport) SelfID(context.Context) (string, error) {
	return f.selfID, nil
}

func (f *fakeTransport) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func (f *fakeTransport) last() sentMessage {
	msgs := f.messages()
	if len(msgs) == 0 {
		return sentMessage{}
	}
	return msgs[len(msgs)-1]
}

type fakeOCR struct {
	answer string
	err    error
	calls  int
}

func (o *fakeOCR) ExtractText(context.Context, []byte, string) (string, error) {
	o.calls++
	return o.answer, o.err
}

func testConfig() *config.Configuration {
	cfg := config.Defaults()
	zero := 0
	cfg.Spam.LockdownDelayMs = &zero
	cfg.Membership.RemovalDelayMs = &zero
	config.MockConfig(cfg)
	return cfg
}

// newTestRecon builds a bot over a mocked datasource that accepts every save.
func newTestRecon(t *testing.T, transport *fakeTransport, ocr TextExtractor) (*Recon, *mocks.MockDataSource, *fakeClock) {
	t.Helper()
	db := &mocks.MockDataSource{}
	db.On("SaveBlob", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	r := newRecon(testConfig(), db, transport, ocr, reference.Default(), cache.NewCache(nil, time.Minute))
	clock := &fakeClock{t: time.Date(2025, 3, 10, 9, 0, 0, 0, r.loc)}
	r.setClock(clock.Now)
	return r, db, clock
}

func groupMessage(sender, body string) model.Message {
	return model.Message{
		ID:       model.GenerateUUIDWithSuffix("msg"),
		ChatID:   testGroup,
		GroupID:  testGroup,
		SenderID: sender,
		Body:     body,
		Type:     model.MessageTypeChat,
	}
}

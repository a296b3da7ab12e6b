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

package model

import (
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/blnkfinance/payrecon/model"
)

var joinTypes = []interface{}{"add", "remove", "leave", "invite", "promote", "demote"}

// InboundMessage is the chat event posted by the gateway.
type InboundMessage struct {
	ID         string       `json:"id"`
	ChatID     string       `json:"chat_id"`
	GroupID    string       `json:"group_id"`
	SenderID   string       `json:"sender_id"`
	SenderName string       `json:"sender_name"`
	Body       string       `json:"body"`
	Type       string       `json:"type"`
	HasMedia   bool         `json:"has_media"`
	Media      *model.Media `json:"media"`
	FromMe     bool         `json:"from_me"`
	Timestamp  *time.Time   `json:"timestamp"`
}

// GroupJoinEvent is posted when members join or are added to a group.
type GroupJoinEvent struct {
	GroupID        string   `json:"group_id"`
	Type           string   `json:"type"`
	ParticipantIDs []string `json:"participant_ids"`
}

func mediaValidation(m *InboundMessage) validation.RuleFunc {
	return func(value interface{}) error {
		if m.Media == nil {
			return nil
		}
		if len(m.Media.Data) == 0 {
			return errors.New("media data is required when media is attached")
		}
		if strings.TrimSpace(m.Media.MIMEType) == "" {
			return errors.New("media mime_type is required when media is attached")
		}
		return nil
	}
}

func (m *InboundMessage) ValidateInboundMessage() error {
	return validation.ValidateStruct(m,
		validation.Field(&m.ChatID, validation.Required),
		validation.Field(&m.SenderID, validation.Required),
		validation.Field(&m.Media, validation.By(mediaValidation(m))),
	)
}

// ToMessage converts the event to the bot's message type. A missing
// timestamp is set to now.
func (m *InboundMessage) ToMessage() model.Message {
	msg := model.Message{
		ID:         m.ID,
		ChatID:     m.ChatID,
		GroupID:    m.GroupID,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Body:       m.Body,
		Type:       m.Type,
		HasMedia:   m.HasMedia || m.Media != nil,
		Media:      m.Media,
		FromMe:     m.FromMe,
		Timestamp:  time.Now(),
	}
	if m.Timestamp != nil {
		msg.Timestamp = *m.Timestamp
	}
	if msg.ID == "" {
		msg.ID = model.GenerateUUIDWithSuffix("msg")
	}
	if msg.Type == "" {
		msg.Type = model.MessageTypeChat
	}
	return msg
}

func (g *GroupJoinEvent) ValidateGroupJoin() error {
	return validation.ValidateStruct(g,
		validation.Field(&g.GroupID, validation.Required),
		validation.Field(&g.Type, validation.Required, validation.In(joinTypes...)),
		validation.Field(&g.ParticipantIDs, validation.Required),
	)
}

func (g *GroupJoinEvent) ToGroupJoin() model.GroupJoin {
	return model.GroupJoin{
		GroupID:        g.GroupID,
		Type:           g.Type,
		ParticipantIDs: g.ParticipantIDs,
	}
}

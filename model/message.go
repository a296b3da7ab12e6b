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
	"strings"
	"time"
)

// MessageTypeChat is the transport type of a plain text message.
const MessageTypeChat = "chat"

// Media is an attachment downloaded by the transport.
type Media struct {
	Data     []byte `json:"data"`
	MIMEType string `json:"mime_type"`
}

// IsImage reports whether the attachment is an image.
func (m *Media) IsImage() bool {
	return m != nil && strings.HasPrefix(m.MIMEType, "image/")
}

// Message is one inbound chat event.
type Message struct {
	ID         string    `json:"id"`
	ChatID     string    `json:"chat_id"`
	GroupID    string    `json:"group_id,omitempty"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name,omitempty"`
	Body       string    `json:"body"`
	Type       string    `json:"type"`
	HasMedia   bool      `json:"has_media"`
	Media      *Media    `json:"media,omitempty"`
	FromMe     bool      `json:"from_me,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// GroupKey returns the ledger key of the chat the message belongs to.
func (m Message) GroupKey() string {
	if m.GroupID == "" {
		return PrivateGroupID
	}
	return m.GroupID
}

// IsGroup reports whether the message was posted in a group chat.
func (m Message) IsGroup() bool {
	return m.GroupID != ""
}

// Participant is a group member as reported by the transport.
type Participant struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	IsAdmin bool   `json:"is_admin"`
}

// GroupJoin is emitted by the transport when members are added to a group.
type GroupJoin struct {
	GroupID        string   `json:"group_id"`
	Type           string   `json:"type"`
	ParticipantIDs []string `json:"participant_ids"`
}

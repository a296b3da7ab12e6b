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
	"strings"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/blnkfinance/payrecon/internal/phone"
	"github.com/blnkfinance/payrecon/internal/reference"
	"github.com/blnkfinance/payrecon/model"
)

// MessageAction is what HandleMessage did with a message.
type MessageAction string

const (
	ActionIgnored    MessageAction = "ignored"
	ActionSpam       MessageAction = "spam"
	ActionCommand    MessageAction = "command"
	ActionConfirmed  MessageAction = "confirmed"
	ActionUnresolved MessageAction = "unresolved"
	ActionCaptured   MessageAction = "captured"
	ActionDropped    MessageAction = "dropped"
	ActionNone       MessageAction = "none"
)

// MessageResult reports the handling of one inbound message.
type MessageResult struct {
	Action    MessageAction          `json:"action"`
	Reference string                 `json:"reference,omitempty"`
	Strategy  string                 `json:"strategy,omitempty"`
	Outcome   *model.PurchaseOutcome `json:"outcome,omitempty"`
	Reason    string                 `json:"reason,omitempty"`
}

func dropped(reason string) MessageResult {
	return MessageResult{Action: ActionDropped, Reason: reason}
}

// HandleMessage routes one inbound chat event: own and automated messages
// are ignored, floods trigger a lockdown, commands are answered,
// confirmations claim their pending receipt and receipts are captured.
// Messages are handled one at a time; a failure inside one message never
// affects the next.
func (r *Recon) HandleMessage(ctx context.Context, msg model.Message) (result MessageResult, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, span := tracer.Start(ctx, "HandleMessage")
	defer span.End()
	span.SetAttributes(
		attribute.String("message.id", msg.ID),
		attribute.String("message.group", msg.GroupKey()),
	)

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic while handling message %s: %v", msg.ID, rec)
			span.RecordError(err)
			span.SetStatus(codes.Error, "panic")
			logrus.Error(err)
			result = dropped("internal error")
		}
		span.SetAttributes(attribute.String("message.action", string(result.Action)))
	}()

	if msg.FromMe {
		return MessageResult{Action: ActionIgnored}, nil
	}
	if tag := r.cfg.Reconciliation.IgnoredSenderTag; tag != "" && strings.Contains(msg.SenderName, tag) {
		logrus.Debugf("ignoring message from automated sender %s", msg.SenderName)
		return MessageResult{Action: ActionIgnored}, nil
	}

	if r.spam.Evaluate(ctx, msg) {
		return MessageResult{Action: ActionSpam}, nil
	}

	if prefix := r.cfg.Spam.CommandPrefix; prefix != "" && strings.HasPrefix(strings.TrimSpace(msg.Body), prefix) {
		if err := r.handleCommand(ctx, msg); err != nil {
			span.RecordError(err)
			logrus.WithError(err).Error("command failed")
		}
		return MessageResult{Action: ActionCommand}, nil
	}

	if marker := r.cfg.Reconciliation.ConfirmationMarker; marker != "" && strings.Contains(msg.Body, marker) {
		return r.handleConfirmation(ctx, msg)
	}

	if _, ok := r.parser.ExtractReference(msg.Body); ok || msg.HasMedia {
		return r.captureReceipt(ctx, msg)
	}
	return MessageResult{Action: ActionNone}, nil
}

// captureReceipt stores the reference of a receipt message as pending.
func (r *Recon) captureReceipt(ctx context.Context, msg model.Message) (MessageResult, error) {
	ctx, span := tracer.Start(ctx, "CaptureReceipt")
	defer span.End()

	ref, ok, err := r.receiptReference(ctx, msg)
	if err != nil {
		span.RecordError(err)
		logrus.WithError(err).WithField("message", msg.ID).Warn("reading receipt failed")
		return dropped("text extraction failed"), nil
	}
	if !ok {
		logrus.WithField("message", msg.ID).Info("no reference found in receipt")
		return dropped("no reference"), nil
	}

	sender := phone.LocalNumber(msg.SenderID, r.cfg.Membership.CountryCode)
	name := msg.SenderName
	if name == "" {
		name = sender
	}

	receipt := model.PendingReceipt{
		NormalizedReference: ref.Value,
		RawReference:        ref.Raw,
		ReferenceType:       ref.Type,
		SenderID:            sender,
		DisplayName:         name,
		GroupID:             msg.GroupKey(),
		MessageID:           msg.ID,
		CapturedAt:          r.now(),
	}
	r.pending.Put(receipt)
	r.flushPending(ctx)

	logrus.WithFields(logrus.Fields{
		"reference": ref.Value,
		"type":      ref.Type,
		"sender":    sender,
		"group":     receipt.GroupID,
	}).Info("receipt captured")
	return MessageResult{Action: ActionCaptured, Reference: ref.Value}, nil
}

// receiptReference reads the reference from the image of a message when it
// carries one and OCR is available, otherwise from its text.
func (r *Recon) receiptReference(ctx context.Context, msg model.Message) (reference.Reference, bool, error) {
	if msg.HasMedia {
		if !msg.Media.IsImage() {
			return reference.Reference{}, false, nil
		}
		if r.ocr == nil {
			ref, ok := r.parser.ExtractReference(msg.Body)
			return ref, ok, nil
		}
		text, err := r.ocr.ExtractText(ctx, msg.Media.Data, msg.Media.MIMEType)
		if err != nil {
			return reference.Reference{}, false, err
		}
		ref, ok := r.parser.FromExtractedText(text)
		return ref, ok, nil
	}
	ref, ok := r.parser.ExtractReference(msg.Body)
	return ref, ok, nil
}

// handleConfirmation claims the receipt announced by a confirmation,
// records the purchase in the receipt's group and thanks the buyer.
func (r *Recon) handleConfirmation(ctx context.Context, msg model.Message) (MessageResult, error) {
	ctx, span := tracer.Start(ctx, "HandleConfirmation")
	defer span.End()

	ref, ok := r.parser.ExtractConfirmationReference(msg.Body)
	if !ok {
		logrus.WithField("message", msg.ID).Warn("no reference found in confirmation")
		return dropped("no reference"), nil
	}
	amount, ok := r.parser.ExtractAmount(msg.Body)
	if !ok {
		logrus.WithField("reference", ref.Value).Warn("no quantity found in confirmation")
		return MessageResult{Action: ActionDropped, Reference: ref.Value, Reason: "no quantity"}, nil
	}

	match, ok := r.matcher.Resolve(ref.Value, ref.Raw)
	if !ok {
		logrus.WithFields(logrus.Fields{
			"reference": ref.Value,
			"pending":   r.pending.Len(),
		}).Warn("confirmation has no pending receipt")
		return MessageResult{Action: ActionUnresolved, Reference: ref.Value}, nil
	}
	span.SetAttributes(attribute.String("match.strategy", match.Strategy))

	receipt := match.Receipt
	buyer := receipt.Phone(r.cfg.Membership.CountryCode)
	outcome := r.ledgers.RecordPurchase(receipt.GroupID, buyer, receipt.DisplayName, amount)
	outcome.ConfirmationReference = ref.Value

	r.flushLedgers(ctx)
	r.flushPending(ctx)
	r.webhooks.send(EventPurchaseConfirmed, outcome)

	mention := strings.TrimPrefix(buyer, "+") + "@c.us"
	if err := r.transport.SendMessage(ctx, msg.ChatID, PurchaseMessage(outcome), []string{mention}); err != nil {
		span.RecordError(err)
		logrus.WithError(err).WithField("chat", msg.ChatID).Error("sending purchase message")
	}

	logrus.WithFields(logrus.Fields{
		"buyer":     buyer,
		"amount":    amount,
		"rank":      outcome.Rank,
		"group":     receipt.GroupID,
		"reference": ref.Value,
		"matched":   receipt.NormalizedReference,
		"strategy":  match.Strategy,
	}).Info("purchase recorded")

	return MessageResult{
		Action:    ActionConfirmed,
		Reference: receipt.NormalizedReference,
		Strategy:  match.Strategy,
		Outcome:   &outcome,
	}, nil
}

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
	"strings"

	"github.com/blnkfinance/payrecon/model"
)

// Command names, without the command prefix.
const (
	CommandRanking        = "ranking"
	CommandInactive       = "inativos"
	CommandZeroPurchase   = "semregistro"
	CommandCleanup        = "limpeza"
	CommandConfirm        = "confirmar"
	CommandNumberCleanup  = "limpar.numeros"
	CommandNumbersConfirm = "confirmar.numeros"
)

func (r *Recon) handleCommand(ctx context.Context, msg model.Message) error {
	ctx, span := tracer.Start(ctx, "HandleCommand")
	defer span.End()

	command := strings.ToLower(strings.TrimSpace(msg.Body))
	command = strings.TrimPrefix(command, r.cfg.Spam.CommandPrefix)

	switch command {
	case CommandRanking:
		return r.reply(ctx, msg, r.RankingText(msg.GroupKey()))
	case CommandInactive:
		return r.reply(ctx, msg, InactiveMessage(r.ledgers.Inactive(msg.GroupKey()), r.cfg.Membership.CountryCode))
	case CommandZeroPurchase:
		return r.sendZeroPurchase(ctx, msg)
	case CommandCleanup:
		return r.startCleanup(ctx, msg, cleanupNoPurchase)
	case CommandConfirm:
		return r.confirmCleanup(ctx, msg, cleanupNoPurchase)
	case CommandNumberCleanup:
		return r.startCleanup(ctx, msg, cleanupForeign)
	case CommandNumbersConfirm:
		return r.confirmCleanup(ctx, msg, cleanupForeign)
	default:
		return nil
	}
}

// RankingText renders the leaderboard of a group.
func (r *Recon) RankingText(groupID string) string {
	count, amount := r.ledgers.Totals(groupID)
	return RankingMessage(r.ledgers.Ranking(groupID, rankingLimit), count, amount, r.cfg.Membership.CountryCode)
}

func (r *Recon) sendZeroPurchase(ctx context.Context, msg model.Message) error {
	if !msg.IsGroup() {
		return r.reply(ctx, msg, msgZeroPurchaseGroups)
	}
	participants, err := r.transport.GetParticipants(ctx, msg.GroupID)
	if err != nil {
		_ = r.reply(ctx, msg, msgMembersError)
		return err
	}
	members := r.ledgers.ZeroPurchase(msg.GroupID, participants)
	return r.reply(ctx, msg, ZeroPurchaseMessage(members, len(participants)))
}

func (r *Recon) reply(ctx context.Context, msg model.Message, text string) error {
	return r.transport.SendMessage(ctx, msg.ChatID, text, nil)
}

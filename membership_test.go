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
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/payrecon/model"
)

func setupCleanupGroup(t *testing.T) (*Recon, *fakeTransport, *fakeClock) {
	t.Helper()
	transport := newFakeTransport()
	transport.addMember(testGroup, model.Participant{ID: "258841111111@c.us", Name: "Ana"})
	transport.addMember(testGroup, model.Participant{ID: "258842222222@c.us", Name: "Beto"})
	transport.addMember(testGroup, model.Participant{ID: "5511999998888@c.us", Name: "Carla"})
	r, _, clock := newTestRecon(t, transport, nil)
	r.Ledgers().RecordPurchase(testGroup, "+258841111111", "Ana", 500)
	return r, transport, clock
}

func TestCleanup_RequiresAdmin(t *testing.T) {
	r, transport, _ := setupCleanupGroup(t)

	_, err := r.HandleMessage(context.Background(), groupMessage("258841111111@c.us", ".limpeza"))
	require.NoError(t, err)
	assert.Equal(t, purchaseCleanupTexts.accessDenied, transport.last().text)
}

func TestCleanup_RequiresBotAdmin(t *testing.T) {
	r, transport, _ := setupCleanupGroup(t)
	transport.participants[testGroup][0].IsAdmin = false

	_, err := r.HandleMessage(context.Background(), groupMessage(testAdmin, ".limpeza"))
	require.NoError(t, err)
	assert.Equal(t, msgBotNotAdmin, transport.last().text)
}

func TestCleanup_PrivateChat(t *testing.T) {
	r, transport, _ := setupCleanupGroup(t)

	_, err := r.HandleMessage(context.Background(), model.Message{ChatID: testAdmin, SenderID: testAdmin, Body: ".limpeza"})
	require.NoError(t, err)
	assert.Equal(t, msgGroupOnly, transport.last().text)
}

func TestCleanup_NoPurchaseFlow(t *testing.T) {
	r, transport, _ := setupCleanupGroup(t)
	ctx := context.Background()

	_, err := r.HandleMessage(ctx, groupMessage(testAdmin, ".limpeza"))
	require.NoError(t, err)
	confirm := transport.last().text
	assert.True(t, strings.HasPrefix(confirm, "🧹 *CONFIRMAÇÃO DE LIMPEZA* 🧹\n\n⚠️ Será removido 2 membro(s) sem compras:\n\n• Beto\n• Carla"))
	assert.Contains(t, confirm, "Para confirmar, responda com: *.confirmar*")

	_, err = r.HandleMessage(ctx, groupMessage("258841111111@c.us", ".confirmar"))
	require.NoError(t, err)
	assert.Equal(t, msgOnlyRequester, transport.last().text)

	_, err = r.HandleMessage(ctx, groupMessage(testAdmin, ".confirmar"))
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"258842222222@c.us", "5511999998888@c.us"}, transport.removed)
	msgs := transport.messages()
	assert.Equal(t, "🧹 *INICIANDO LIMPEZA...*\n\nRemoção de 2 membro(s) em andamento...", msgs[len(msgs)-2].text)
	assert.Contains(t, transport.last().text, "🗑️ **Removidos:** 2 membro(s)\n❌ **Erros:** 0\n📊 **Total processado:** 2")

	_, err = r.HandleMessage(ctx, groupMessage(testAdmin, ".confirmar"))
	require.NoError(t, err)
	assert.Equal(t, purchaseCleanupTexts.noPending, transport.last().text)
}

func TestCleanup_CountsFailures(t *testing.T) {
	r, transport, _ := setupCleanupGroup(t)
	transport.removeErr["258842222222@c.us"] = errors.New("not allowed")
	ctx := context.Background()

	_, err := r.HandleMessage(ctx, groupMessage(testAdmin, ".limpeza"))
	require.NoError(t, err)
	_, err = r.HandleMessage(ctx, groupMessage(testAdmin, ".confirmar"))
	require.NoError(t, err)

	assert.Contains(t, transport.last().text, "🗑️ **Removidos:** 1 membro(s)\n❌ **Erros:** 1\n")
}

func TestCleanup_ConfirmationExpires(t *testing.T) {
	r, transport, clock := setupCleanupGroup(t)
	ctx := context.Background()

	_, err := r.HandleMessage(ctx, groupMessage(testAdmin, ".limpeza"))
	require.NoError(t, err)

	clock.Advance(2*time.Minute + time.Second)
	_, err = r.HandleMessage(ctx, groupMessage(testAdmin, ".confirmar"))
	require.NoError(t, err)
	assert.Equal(t, purchaseCleanupTexts.noPending, transport.last().text)
	assert.Empty(t, transport.removed)
}

func TestCleanup_ForeignNumbers(t *testing.T) {
	r, transport, _ := setupCleanupGroup(t)
	ctx := context.Background()

	_, err := r.HandleMessage(ctx, groupMessage(testAdmin, ".limpeza"))
	require.NoError(t, err)

	_, err = r.HandleMessage(ctx, groupMessage(testAdmin, ".limpar.numeros"))
	require.NoError(t, err)
	confirm := transport.last().text
	assert.Contains(t, confirm, "• Carla (+5511999998888)")
	assert.Contains(t, confirm, "🇲🇿 *CRITÉRIO:* Apenas números +258 são aceites\n\nPara confirmar, responda com: *.confirmar.numeros*")

	_, err = r.HandleMessage(ctx, groupMessage(testAdmin, ".confirmar.numeros"))
	require.NoError(t, err)
	assert.Equal(t, []string{"5511999998888@c.us"}, transport.removed)
	assert.Contains(t, transport.last().text, "✅ *LIMPEZA DE NÚMEROS CONCLUÍDA* ✅")

	// the purchase cleanup requested earlier is still pending on its own
	_, err = r.HandleMessage(ctx, groupMessage(testAdmin, ".confirmar"))
	require.NoError(t, err)
	assert.Contains(t, transport.removed, "258842222222@c.us")
}

func TestCleanup_Unnecessary(t *testing.T) {
	transport := newFakeTransport()
	r, _, _ := newTestRecon(t, transport, nil)

	_, err := r.HandleMessage(context.Background(), groupMessage(testAdmin, ".limpar.numeros"))
	require.NoError(t, err)
	assert.Equal(t, numberCleanupTexts.unnecessary, transport.last().text)
}

func TestHandleGroupJoin(t *testing.T) {
	transport := newFakeTransport()
	transport.addMember(testGroup, model.Participant{ID: "447700900123@c.us", Name: "Dave"})
	transport.addMember(testGroup, model.Participant{ID: "258843333333@c.us"})
	r, _, _ := newTestRecon(t, transport, nil)

	err := r.HandleGroupJoin(context.Background(), model.GroupJoin{
		GroupID:        testGroup,
		Type:           "add",
		ParticipantIDs: []string{"447700900123@c.us", "258843333333@c.us"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"447700900123@c.us"}, transport.removed)
	notice := transport.last()
	assert.Equal(t, testGroup, notice.chatID)
	assert.Equal(t, "🚫 *NÚMERO ESTRANGEIRO REMOVIDO* 🚫\n\n"+
		"👤 **Usuário:** Dave\n"+
		"📱 **Número:** +447700900123\n"+
		"🌍 **Motivo:** Número não moçambicano\n"+
		"⚡ **Ação:** entrada automática\n\n"+
		"🇲🇿 *Este grupo aceita apenas números de Moçambique (+258)*", notice.text)
}

func TestHandleGroupJoin_SkipsWithoutAdminRights(t *testing.T) {
	transport := newFakeTransport()
	transport.participants[testGroup][0].IsAdmin = false
	r, _, _ := newTestRecon(t, transport, nil)

	require.NoError(t, r.HandleGroupJoin(context.Background(), model.GroupJoin{
		GroupID:        testGroup,
		Type:           "add",
		ParticipantIDs: []string{"447700900123@c.us"},
	}))
	assert.Empty(t, transport.removed)

	require.NoError(t, r.HandleGroupJoin(context.Background(), model.GroupJoin{
		GroupID:        testGroup,
		Type:           "leave",
		ParticipantIDs: []string{"447700900123@c.us"},
	}))
	assert.Empty(t, transport.messages())
}

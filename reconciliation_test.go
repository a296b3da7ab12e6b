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
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/payrecon/database"
	"github.com/blnkfinance/payrecon/model"
)

const confirmationText = "Transação Concluída Com Sucesso. Reference: ABC12345... 1024 MB..."

func TestHandleMessage_EndToEnd(t *testing.T) {
	transport := newFakeTransport()
	r, db, _ := newTestRecon(t, transport, nil)
	ctx := context.Background()

	receipt := groupMessage("258841234567@c.us", "Confirmed ABC12345")
	receipt.SenderName = "Ana"
	res, err := r.HandleMessage(ctx, receipt)
	require.NoError(t, err)
	assert.Equal(t, ActionCaptured, res.Action)
	assert.Equal(t, "ABC12345", res.Reference)

	pending := r.Pending().All()
	require.Len(t, pending, 1)
	assert.Equal(t, "ABC12345", pending[0].NormalizedReference)
	assert.Equal(t, "841234567", pending[0].SenderID)
	assert.Equal(t, testGroup, pending[0].GroupID)

	confirmation := groupMessage("258847777777@c.us", confirmationText)
	res, err = r.HandleMessage(ctx, confirmation)
	require.NoError(t, err)
	assert.Equal(t, ActionConfirmed, res.Action)
	assert.Equal(t, StrategyExact, res.Strategy)
	require.NotNil(t, res.Outcome)
	assert.Equal(t, "+258841234567", res.Outcome.Phone)
	assert.Equal(t, int64(1024), res.Outcome.Amount)
	assert.Equal(t, 1, res.Outcome.Rank)

	assert.Equal(t, 0, r.Pending().Len())
	ranked := r.Ledgers().Ranking(testGroup, 0)
	require.Len(t, ranked, 1)
	assert.Equal(t, "+258841234567", ranked[0].Phone)
	assert.Equal(t, int64(1024), ranked[0].Total)

	reply := transport.last()
	assert.Equal(t, testGroup, reply.chatID)
	assert.Equal(t, []string{"258841234567@c.us"}, reply.mentions)
	assert.True(t, strings.HasPrefix(reply.text, "🎉 Obrigado, @258841234567, Você está fazendo a sua 1ª compra do dia!"))
	assert.Contains(t, reply.text, "Foram adicionados 1.0 GB, totalizando 1.0 GB comprados.")

	db.AssertCalled(t, "SaveBlob", mock.Anything, database.LedgersKey, mock.Anything)
	db.AssertCalled(t, "SaveBlob", mock.Anything, database.PendingKey, mock.Anything)
}

func TestHandleMessage_ConfirmationRecordsInReceiptGroup(t *testing.T) {
	transport := newFakeTransport()
	r, _, _ := newTestRecon(t, transport, nil)
	ctx := context.Background()

	receipt := groupMessage("258841234567@c.us", "Confirmed ABC12345")
	_, err := r.HandleMessage(ctx, receipt)
	require.NoError(t, err)

	confirmation := model.Message{ID: "c1", ChatID: "258847777777@c.us", SenderID: "258847777777@c.us", Body: confirmationText}
	res, err := r.HandleMessage(ctx, confirmation)
	require.NoError(t, err)
	require.Equal(t, ActionConfirmed, res.Action)

	assert.Len(t, r.Ledgers().Ranking(testGroup, 0), 1)
	assert.Empty(t, r.Ledgers().Ranking(model.PrivateGroupID, 0))
	assert.Equal(t, "258847777777@c.us", transport.last().chatID)
}

func TestHandleMessage_SimilarConfirmation(t *testing.T) {
	transport := newFakeTransport()
	r, _, _ := newTestRecon(t, transport, nil)
	ctx := context.Background()

	_, err := r.HandleMessage(ctx, groupMessage("258841234567@c.us", "Confirmado CHK3H5PQ2L. Transferiste 50.00MT"))
	require.NoError(t, err)

	res, err := r.HandleMessage(ctx, groupMessage("258847777777@c.us", "Transação Concluída Com Sucesso Confirmado CHK3H5PQ2I megas: 500 MB"))
	require.NoError(t, err)
	assert.Equal(t, ActionConfirmed, res.Action)
	assert.Equal(t, StrategySimilarity, res.Strategy)
	assert.Equal(t, "CHK3H5PQ2L", res.Reference)
	assert.Equal(t, int64(500), res.Outcome.Amount)
}

func TestHandleMessage_UnresolvedAndDropped(t *testing.T) {
	transport := newFakeTransport()
	r, _, _ := newTestRecon(t, transport, nil)
	ctx := context.Background()

	res, err := r.HandleMessage(ctx, groupMessage("258847777777@c.us", confirmationText))
	require.NoError(t, err)
	assert.Equal(t, ActionUnresolved, res.Action)
	assert.Equal(t, "ABC12345", res.Reference)

	res, err = r.HandleMessage(ctx, groupMessage("258847777777@c.us", "Transação Concluída Com Sucesso. Reference: ABC12345"))
	require.NoError(t, err)
	assert.Equal(t, ActionDropped, res.Action)
	assert.Equal(t, "no quantity", res.Reason)

	res, err = r.HandleMessage(ctx, groupMessage("258847777777@c.us", "Transação Concluída Com Sucesso 1024 MB"))
	require.NoError(t, err)
	assert.Equal(t, ActionDropped, res.Action)
	assert.Equal(t, "no reference", res.Reason)

	assert.Empty(t, transport.messages())
}

func TestHandleMessage_Ignored(t *testing.T) {
	transport := newFakeTransport()
	r, _, _ := newTestRecon(t, transport, nil)
	ctx := context.Background()

	own := groupMessage(testBot, "Confirmed ABC12345")
	own.FromMe = true
	res, err := r.HandleMessage(ctx, own)
	require.NoError(t, err)
	assert.Equal(t, ActionIgnored, res.Action)

	bot := groupMessage("258841234567@c.us", "Confirmed ABC12345")
	bot.SenderName = "Loja AutoBot"
	res, err = r.HandleMessage(ctx, bot)
	require.NoError(t, err)
	assert.Equal(t, ActionIgnored, res.Action)
	assert.Equal(t, 0, r.Pending().Len())

	res, err = r.HandleMessage(ctx, groupMessage("258841234567@c.us", "bom dia a todos"))
	require.NoError(t, err)
	assert.Equal(t, ActionNone, res.Action)
}

func TestHandleMessage_ImageReceipt(t *testing.T) {
	transport := newFakeTransport()
	ocr := &fakeOCR{answer: "PP250101.1234.A12345."}
	r, _, _ := newTestRecon(t, transport, ocr)

	msg := groupMessage("258841234567@c.us", "")
	msg.HasMedia = true
	msg.Media = &model.Media{Data: []byte{0x89, 0x50}, MIMEType: "image/png"}

	res, err := r.HandleMessage(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, ActionCaptured, res.Action)
	assert.Equal(t, "PP250101.1234.A12345", res.Reference)
	assert.Equal(t, 1, ocr.calls)

	pending := r.Pending().All()
	require.Len(t, pending, 1)
	assert.Equal(t, model.ReferenceEmola, pending[0].ReferenceType)
}

func TestHandleMessage_ImageWithoutReference(t *testing.T) {
	transport := newFakeTransport()
	ocr := &fakeOCR{answer: "NOT_FOUND"}
	r, _, _ := newTestRecon(t, transport, ocr)

	msg := groupMessage("258841234567@c.us", "")
	msg.HasMedia = true
	msg.Media = &model.Media{Data: []byte{1}, MIMEType: "image/jpeg"}

	res, err := r.HandleMessage(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, ActionDropped, res.Action)

	ocr.answer, ocr.err = "", errors.New("vision service down")
	res, err = r.HandleMessage(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, ActionDropped, res.Action)
	assert.Equal(t, "text extraction failed", res.Reason)

	doc := groupMessage("258841234567@c.us", "")
	doc.HasMedia = true
	doc.Media = &model.Media{Data: []byte{1}, MIMEType: "application/pdf"}
	res, err = r.HandleMessage(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, ActionDropped, res.Action)
	assert.Equal(t, 0, r.Pending().Len())
}

func TestHandleMessage_PersistenceFailureKeepsServing(t *testing.T) {
	transport := newFakeTransport()
	r, _, _ := newTestRecon(t, transport, nil)

	db := r.datasource
	r.datasource = &failingStore{}
	defer func() { r.datasource = db }()

	ctx := context.Background()
	_, err := r.HandleMessage(ctx, groupMessage("258841234567@c.us", "Confirmed ABC12345"))
	require.NoError(t, err)

	res, err := r.HandleMessage(ctx, groupMessage("258847777777@c.us", confirmationText))
	require.NoError(t, err)
	assert.Equal(t, ActionConfirmed, res.Action)
	assert.Equal(t, 1, r.Ledgers().RankOf(testGroup, "+258841234567"))
}

func TestHandleMessage_RecoversFromPanic(t *testing.T) {
	transport := newFakeTransport()
	r, _, _ := newTestRecon(t, transport, &panickingOCR{})

	msg := groupMessage("258841234567@c.us", "")
	msg.HasMedia = true
	msg.Media = &model.Media{Data: []byte{1}, MIMEType: "image/png"}

	res, err := r.HandleMessage(context.Background(), msg)
	assert.Error(t, err)
	assert.Equal(t, ActionDropped, res.Action)

	res, err = r.HandleMessage(context.Background(), groupMessage("258841234567@c.us", "Confirmed ABC12345"))
	require.NoError(t, err)
	assert.Equal(t, ActionCaptured, res.Action)
}

func TestLoad(t *testing.T) {
	transport := newFakeTransport()
	r, db, _ := newTestRecon(t, transport, nil)

	db.On("LoadBlob", mock.Anything, database.LedgersKey).
		Return([]byte(`{"G@g.us": {"buyers": {"+258841234567": {"display_name": "Ana", "cumulative_purchase_amount": 700}}, "total_amount": 700, "total_purchase_count": 1}}`), nil)
	db.On("LoadBlob", mock.Anything, database.PendingKey).
		Return([]byte(`{"ABC12345": {"sender_id": "841234567", "group_id": "G@g.us", "captured_at": "2025-03-10T08:00:00Z"}}`), nil)

	require.NoError(t, r.Load(context.Background()))
	assert.Equal(t, 1, r.Ledgers().RankOf("G@g.us", "+258841234567"))
	assert.Equal(t, 1, r.Pending().Len())
}

func TestLoad_CorruptBlobStartsEmpty(t *testing.T) {
	transport := newFakeTransport()
	r, db, _ := newTestRecon(t, transport, nil)

	db.On("LoadBlob", mock.Anything, database.LedgersKey).Return([]byte("{oops"), nil)
	db.On("LoadBlob", mock.Anything, database.PendingKey).Return(nil, nil)

	require.NoError(t, r.Load(context.Background()))
	assert.Empty(t, r.Ledgers().Groups())
}

func TestLoad_DatasourceError(t *testing.T) {
	transport := newFakeTransport()
	r, db, _ := newTestRecon(t, transport, nil)

	db.On("LoadBlob", mock.Anything, database.LedgersKey).Return(nil, errors.New("connection refused"))
	assert.ErrorContains(t, r.Load(context.Background()), "loading ledgers")
}

type failingStore struct{}

func (failingStore) LoadBlob(context.Context, string) ([]byte, error) { return nil, nil }

func (failingStore) SaveBlob(context.Context, string, []byte) error {
	return errors.New("disk full")
}

func (failingStore) Close() error { return nil }

type panickingOCR struct{}

func (panickingOCR) ExtractText(context.Context, []byte, string) (string, error) {
	panic("decoder crashed")
}

func TestSweepPending(t *testing.T) {
	transport := newFakeTransport()
	r, db, clock := newTestRecon(t, transport, nil)
	ctx := context.Background()

	_, err := r.HandleMessage(ctx, groupMessage("258841234567@c.us", "Confirmed ABC12345"))
	require.NoError(t, err)
	saves := len(db.Calls)

	clock.Advance(29 * time.Minute)
	assert.Equal(t, 0, r.SweepPending(ctx))
	assert.Len(t, db.Calls, saves)

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, r.SweepPending(ctx))
	assert.Equal(t, 0, r.Pending().Len())
	assert.Greater(t, len(db.Calls), saves)
}

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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/payrecon/model"
)

func pendingAt(ref string, at time.Time) model.PendingReceipt {
	return model.PendingReceipt{
		NormalizedReference: ref,
		RawReference:        ref,
		ReferenceType:       model.ReferenceMpesa,
		SenderID:            "841234567",
		GroupID:             "G@g.us",
		CapturedAt:          at,
	}
}

func TestPendingStore_PutAndTakeExact(t *testing.T) {
	store := NewPendingStore()
	now := time.Now()

	store.Put(pendingAt("ABC12345", now))
	assert.Equal(t, 1, store.Len())

	got, ok := store.TakeExact("ABC12345")
	require.True(t, ok)
	assert.Equal(t, "ABC12345", got.NormalizedReference)

	_, ok = store.TakeExact("ABC12345")
	assert.False(t, ok)
	assert.Equal(t, 0, store.Len())
}

func TestPendingStore_LastWriteWins(t *testing.T) {
	store := NewPendingStore()
	now := time.Now()

	first := pendingAt("ABC12345", now)
	second := pendingAt("ABC12345", now.Add(time.Second))
	second.SenderID = "849999999"
	second.GroupID = "H@g.us"

	store.Put(first)
	store.Put(second)

	all := store.All()
	require.Len(t, all, 1)
	assert.Equal(t, "849999999", all[0].SenderID)
	assert.Equal(t, "H@g.us", all[0].GroupID)
}

func TestPendingStore_AllOrdersByCapture(t *testing.T) {
	store := NewPendingStore()
	now := time.Now()

	store.Put(pendingAt("CCC12345", now.Add(2*time.Minute)))
	store.Put(pendingAt("AAA12345", now))
	store.Put(pendingAt("BBB12345", now.Add(time.Minute)))

	var keys []string
	for _, p := range store.All() {
		keys = append(keys, p.NormalizedReference)
	}
	assert.Equal(t, []string{"AAA12345", "BBB12345", "CCC12345"}, keys)
}

func TestPendingStore_SweepExpired(t *testing.T) {
	store := NewPendingStore()
	now := time.Now()

	store.Put(pendingAt("OLD12345", now.Add(-31*time.Minute)))
	store.Put(pendingAt("NEW12345", now.Add(-5*time.Minute)))

	removed := store.SweepExpired(now, 30*time.Minute)
	assert.Equal(t, 1, removed)

	_, ok := store.TakeExact("OLD12345")
	assert.False(t, ok)
	_, ok = store.TakeExact("NEW12345")
	assert.True(t, ok)
}

func TestPendingStore_SnapshotRestore(t *testing.T) {
	store := NewPendingStore()
	now := time.Now().UTC().Truncate(time.Second)
	store.Put(pendingAt("ABC12345", now))

	data, err := store.Snapshot()
	require.NoError(t, err)

	restored := NewPendingStore()
	require.NoError(t, restored.Restore(data))

	got, ok := restored.TakeExact("ABC12345")
	require.True(t, ok)
	assert.True(t, now.Equal(got.CapturedAt))
	assert.Equal(t, "G@g.us", got.GroupID)
}

func TestPendingStore_RestoreNormalizesLegacyKeys(t *testing.T) {
	legacy := []byte(`{"XYZ98765AB.": {"sender_id": "841234567", "group_id": "G@g.us", "captured_at": "2025-01-01T10:00:00Z"}}`)

	store := NewPendingStore()
	require.NoError(t, store.Restore(legacy))

	got, ok := store.TakeExact("XYZ98765AB")
	require.True(t, ok)
	assert.Equal(t, "XYZ98765AB", got.NormalizedReference)
	assert.Equal(t, model.ReferenceMpesa, got.ReferenceType)
}

func TestPendingStore_RestoreEmpty(t *testing.T) {
	store := NewPendingStore()
	store.Put(pendingAt("ABC12345", time.Now()))

	require.NoError(t, store.Restore(nil))
	assert.Equal(t, 0, store.Len())
	assert.Error(t, store.Restore([]byte("{broken")))
}

func TestPendingStore_ConsumeRejected(t *testing.T) {
	store := NewPendingStore()
	store.Put(pendingAt("ABC12345", time.Now()))

	_, ok := store.Consume(func(*PendingView) (string, bool) { return "", false })
	assert.False(t, ok)

	_, ok = store.Consume(func(*PendingView) (string, bool) { return "MISSING1", true })
	assert.False(t, ok)
	assert.Equal(t, 1, store.Len())
}

func TestPendingStore_ConsumeView(t *testing.T) {
	store := NewPendingStore()
	now := time.Now()
	store.Put(pendingAt("NEW12345", now))
	store.Put(pendingAt("OLD12345", now.Add(-time.Minute)))

	got, ok := store.Consume(func(view *PendingView) (string, bool) {
		assert.True(t, view.Has("NEW12345"))
		assert.False(t, view.Has("MISSING1"))
		candidates := view.Candidates()
		require.Len(t, candidates, 2)
		assert.Equal(t, "OLD12345", candidates[0].NormalizedReference)
		return candidates[0].NormalizedReference, true
	})
	require.True(t, ok)
	assert.Equal(t, "OLD12345", got.NormalizedReference)
	assert.Equal(t, 1, store.Len())
}

package store_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"meetgogo/backend/internal/store"
)

func snap(id, body string) store.Snapshot {
	return store.Snapshot{ID: id, Data: json.RawMessage(body)}
}

// TestFilterEq covers equality including JSON number normalization.
func TestFilterEq(t *testing.T) {
	doc := snap("d1", `{"status":"active","count":2}`)

	assert.True(t, store.Where("status", store.OpEq, "active").Matches(doc))
	assert.False(t, store.Where("status", store.OpEq, "ended").Matches(doc))
	assert.True(t, store.Where("count", store.OpEq, 2).Matches(doc), "typed int should match decoded number")
}

// TestFilterNeq verifies inequality requires the field to be present.
func TestFilterNeq(t *testing.T) {
	doc := snap("d1", `{"uid":"alice"}`)

	assert.True(t, store.Where("uid", store.OpNeq, "bob").Matches(doc))
	assert.False(t, store.Where("uid", store.OpNeq, "alice").Matches(doc))
	assert.False(t, store.Where("missing", store.OpNeq, "x").Matches(doc), "absent field should not satisfy Neq")
}

// TestFilterContains verifies array membership.
func TestFilterContains(t *testing.T) {
	doc := snap("d1", `{"participants":["alice","bob"]}`)

	assert.True(t, store.Where("participants", store.OpContains, "alice").Matches(doc))
	assert.False(t, store.Where("participants", store.OpContains, "carol").Matches(doc))
	assert.False(t, store.Where("participants", store.OpContains, "alice").Matches(snap("d2", `{"participants":"alice"}`)), "non-array field never contains")
}

// TestFilterDottedPath verifies nested field addressing.
func TestFilterDottedPath(t *testing.T) {
	doc := snap("d1", `{"typing":{"alice":true}}`)

	assert.True(t, store.Where("typing.alice", store.OpEq, true).Matches(doc))
	assert.False(t, store.Where("typing.bob", store.OpEq, true).Matches(doc))
}

// TestFilterIDField verifies the document id is addressable as "id".
func TestFilterIDField(t *testing.T) {
	doc := snap("room-1", `{"status":"active"}`)

	assert.True(t, store.Where("id", store.OpEq, "room-1").Matches(doc))
	assert.False(t, store.Where("id", store.OpEq, "room-2").Matches(doc))
}

// TestFilterCompound verifies conditions AND together and nil matches all.
func TestFilterCompound(t *testing.T) {
	doc := snap("d1", `{"status":"active","mode":"text"}`)

	both := store.Where("status", store.OpEq, "active").Where("mode", store.OpEq, "text")
	assert.True(t, both.Matches(doc))

	mixed := store.Where("status", store.OpEq, "active").Where("mode", store.OpEq, "video")
	assert.False(t, mixed.Matches(doc))

	var empty store.Filter
	assert.True(t, empty.Matches(doc))
}

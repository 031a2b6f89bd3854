package collection

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusportal/internal/store"
)

type slot struct {
	SlotID string `json:"slot_id"`
	Name   string `json:"name"`
	Time   string `json:"time"`
}

type slotPatch struct {
	Name *string `json:"name,omitempty"`
	Time *string `json:"time,omitempty"`
}

type recordedEntry struct{ action, details string }

type fakeAuditor struct {
	entries []recordedEntry
	err     error
}

func (f *fakeAuditor) Record(_ context.Context, action, details string) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, recordedEntry{action, details})
	return nil
}

var slotConfig = Config[slot]{
	Name:    "slots",
	Label:   "Slots",
	IDField: "slot_id",
	ID:      func(s slot) string { return s.SlotID },
	SetID:   func(s *slot, id string) { s.SlotID = id },
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func newSlots(t *testing.T) (*Collection[slot], *fakeAuditor, *store.Store) {
	t.Helper()
	s := store.New(store.NewMemory(), "test")
	a := &fakeAuditor{}
	return New(s, slotConfig, WithAuditor(a), WithIDFunc(sequentialIDs())), a, s
}

func strPtr(s string) *string { return &s }

func TestCollection_AddAssignsRetrievableID(t *testing.T) {
	c, a, _ := newSlots(t)
	ctx := context.Background()

	added, err := c.Add(ctx, slot{Name: "Period 4", Time: "11:40–12:30"})
	require.NoError(t, err)
	assert.Equal(t, "id-1", added.SlotID)
	assert.Equal(t, "Period 4", added.Name)

	got, err := c.GetByID(ctx, added.SlotID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, added, *got)

	require.Len(t, a.entries, 1)
	assert.Equal(t, "Added Slots", a.entries[0].action)
	assert.Equal(t, "Added slots with ID id-1", a.entries[0].details)
}

func TestCollection_AddOverwritesCallerID(t *testing.T) {
	c, _, _ := newSlots(t)

	added, err := c.Add(context.Background(), slot{SlotID: "mine", Name: "P"})
	require.NoError(t, err)
	assert.Equal(t, "id-1", added.SlotID)
}

func TestCollection_DefaultIDsAreUnique(t *testing.T) {
	c := New(store.New(store.NewMemory(), "test"), slotConfig)
	ctx := context.Background()

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		added, err := c.Add(ctx, slot{Name: "P"})
		require.NoError(t, err)
		require.NotEmpty(t, added.SlotID)
		assert.False(t, seen[added.SlotID], "duplicate id %s", added.SlotID)
		seen[added.SlotID] = true
	}
}

func TestCollection_GetAllKeepsInsertionOrder(t *testing.T) {
	c, _, _ := newSlots(t)
	ctx := context.Background()

	for _, name := range []string{"c", "a", "b"} {
		_, err := c.Add(ctx, slot{Name: name})
		require.NoError(t, err)
	}
	all, err := c.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].Name)
	assert.Equal(t, "a", all[1].Name)
	assert.Equal(t, "b", all[2].Name)
}

func TestCollection_UpdatePreservesUntouchedFields(t *testing.T) {
	c, a, _ := newSlots(t)
	ctx := context.Background()

	first, err := c.Add(ctx, slot{Name: "Period 3", Time: "10:50–11:40 AM"})
	require.NoError(t, err)
	second, err := c.Add(ctx, slot{Name: "Period 4", Time: "11:40–12:30 PM"})
	require.NoError(t, err)

	updated, err := c.Update(ctx, second.SlotID, &slotPatch{Time: strPtr("11:00–11:50 AM")})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, "Period 4", updated.Name)
	assert.Equal(t, "11:00–11:50 AM", updated.Time)
	assert.Equal(t, second.SlotID, updated.SlotID)

	all, err := c.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, first, all[0])
	assert.Equal(t, *updated, all[1], "position must be preserved")

	require.Len(t, a.entries, 3)
	assert.Equal(t, "Updated Slots", a.entries[2].action)
	assert.Contains(t, a.entries[2].details, second.SlotID)
}

func TestCollection_UpdateCannotChangeID(t *testing.T) {
	c, _, _ := newSlots(t)
	ctx := context.Background()
	added, err := c.Add(ctx, slot{Name: "P"})
	require.NoError(t, err)

	updated, err := c.Update(ctx, added.SlotID, map[string]any{"slot_id": "hijack", "name": "Q"})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, added.SlotID, updated.SlotID)
	assert.Equal(t, "Q", updated.Name)
}

func TestCollection_UpdateKeepsUnknownStoredFields(t *testing.T) {
	c, _, s := newSlots(t)
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, "slots", nil))
	require.NoError(t, c.RawAppend(ctx, slot{SlotID: "1", Name: "P"}))

	_, err := c.Update(ctx, "1", map[string]any{"room": "B-12"})
	require.NoError(t, err)
	_, err = c.Update(ctx, "1", &slotPatch{Name: strPtr("Q")})
	require.NoError(t, err)

	raws, err := s.Read(ctx, "slots")
	require.NoError(t, err)
	require.Len(t, raws, 1)
	assert.JSONEq(t, `{"slot_id":"1","name":"Q","time":"","room":"B-12"}`, string(raws[0]))
}

func TestCollection_UpdateMissingIsNoop(t *testing.T) {
	c, a, _ := newSlots(t)
	ctx := context.Background()
	_, err := c.Add(ctx, slot{Name: "P"})
	require.NoError(t, err)

	updated, err := c.Update(ctx, "nope", &slotPatch{Name: strPtr("X")})
	require.NoError(t, err)
	assert.Nil(t, updated)
	assert.Len(t, a.entries, 1)
}

func TestCollection_Delete(t *testing.T) {
	c, a, _ := newSlots(t)
	ctx := context.Background()
	keep, err := c.Add(ctx, slot{Name: "keep"})
	require.NoError(t, err)
	drop, err := c.Add(ctx, slot{Name: "drop"})
	require.NoError(t, err)

	t.Run("missing id returns false and changes nothing", func(t *testing.T) {
		before, err := c.GetAll(ctx)
		require.NoError(t, err)
		auditsBefore := len(a.entries)

		ok, err := c.Delete(ctx, "does-not-exist")
		require.NoError(t, err)
		assert.False(t, ok)

		after, err := c.GetAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, before, after)
		assert.Len(t, a.entries, auditsBefore)
	})

	t.Run("existing id is removed and audited", func(t *testing.T) {
		ok, err := c.Delete(ctx, drop.SlotID)
		require.NoError(t, err)
		assert.True(t, ok)

		all, err := c.GetAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, []slot{keep}, all)

		last := a.entries[len(a.entries)-1]
		assert.Equal(t, "Deleted Slots", last.action)
		assert.Equal(t, "Deleted slots with ID "+drop.SlotID, last.details)
	})
}

func TestCollection_GetByIDMissing(t *testing.T) {
	c, _, _ := newSlots(t)

	got, err := c.GetByID(context.Background(), "x")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCollection_RawAppendAndReplaceDoNotAudit(t *testing.T) {
	c, a, _ := newSlots(t)
	ctx := context.Background()

	require.NoError(t, c.Replace(ctx, []slot{{SlotID: "1", Name: "Period 1"}}))
	require.NoError(t, c.RawAppend(ctx, slot{SlotID: "2", Name: "Period 2"}))

	all, err := c.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Empty(t, a.entries)

	removed, err := c.RawRemove(ctx, "1")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = c.RawRemove(ctx, "1")
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Empty(t, a.entries)

	require.NoError(t, c.Clear(ctx))
	all, err = c.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCollection_ValidationRejectsBeforeWrite(t *testing.T) {
	s := store.New(store.NewMemory(), "test")
	a := &fakeAuditor{}
	cfg := slotConfig
	cfg.Validate = func(s slot) error {
		if s.Name == "" {
			return errors.New("name required")
		}
		return nil
	}
	c := New(s, cfg, WithAuditor(a))
	ctx := context.Background()

	_, err := c.Add(ctx, slot{})
	require.EqualError(t, err, "name required")

	added, err := c.Add(ctx, slot{Name: "ok"})
	require.NoError(t, err)
	updated, err := c.Update(ctx, added.SlotID, map[string]any{"name": ""})
	require.EqualError(t, err, "name required")
	assert.Nil(t, updated)

	got, err := c.GetByID(ctx, added.SlotID)
	require.NoError(t, err)
	assert.Equal(t, "ok", got.Name)
	assert.Len(t, a.entries, 1)
}

func TestCollection_AuditFailurePropagates(t *testing.T) {
	s := store.New(store.NewMemory(), "test")
	c := New(s, slotConfig, WithAuditor(&fakeAuditor{err: errors.New("disk full")}))

	_, err := c.Add(context.Background(), slot{Name: "P"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestCollection_CorruptRecord(t *testing.T) {
	mem := store.NewMemory()
	s := store.New(mem, "test")
	c := New(s, slotConfig)
	ctx := context.Background()
	require.NoError(t, mem.Set(ctx, "test_slots", []byte(`[{"slot_id":1}]`)))

	_, err := c.GetAll(ctx)
	assert.ErrorIs(t, err, store.ErrCorrupt)
}

func TestCollection_Find(t *testing.T) {
	c, _, _ := newSlots(t)
	ctx := context.Background()
	for _, n := range []string{"Period 1", "Lab", "Period 2"} {
		_, err := c.Add(ctx, slot{Name: n})
		require.NoError(t, err)
	}

	got, err := c.Find(ctx, func(s slot) bool { return s.Name != "Lab" })
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Period 1", got[0].Name)
	assert.Equal(t, "Period 2", got[1].Name)
}

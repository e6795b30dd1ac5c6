package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(Record{ID: "a", Status: StatusPending}, Record{ID: "b", Status: StatusCompleted})

	got, err := s.GetByID(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = s.Save(ctx, Record{ID: "a", Status: StatusRejected, Subject: Subject{PrimaryCrops: []string{"Maize"}}})
	require.NoError(t, err)
	_, err = s.Save(ctx, Record{ID: "c"})
	require.NoError(t, err)

	all, err := s.List(ctx, FilterSpec{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{all[0].ID, all[1].ID, all[2].ID}, "replacing keeps insertion order")

	done, err := s.List(ctx, FilterSpec{Status: "completed"})
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, "b", done[0].ID)

	all[0].Subject.PrimaryCrops[0] = "changed"
	again, err := s.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Maize", again.Subject.PrimaryCrops[0], "callers get copies")

	_, err = s.Save(ctx, Record{})
	assert.True(t, IsValidation(err))
}

func TestMemoryStore_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemoryStore().List(ctx, FilterSpec{})
	assert.ErrorIs(t, err, context.Canceled)
}

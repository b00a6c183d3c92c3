package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koa-cli/koa/pkg/errors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", DefaultFileName))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_AddAndList(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"100", "101", "102"} {
		r := &Record{
			JobID:       id,
			Host:        "koa",
			User:        "alice",
			Script:      "train.slurm",
			Partition:   "kill-shared",
			Gres:        "gpu:nvidia_h100:2",
			CommandLine: []string{"sbatch", "--partition=kill-shared"},
			SubmittedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, s.Add(ctx, r))
		_, err := uuid.Parse(r.ID)
		assert.NoError(t, err)
	}

	records, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "102", records[0].JobID)
	assert.Equal(t, "101", records[1].JobID)
	assert.Equal(t, []string{"sbatch", "--partition=kill-shared"}, records[0].CommandLine)
	assert.True(t, base.Add(2*time.Minute).Equal(records[0].SubmittedAt))

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStore_FindByJobID(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.Add(ctx, &Record{JobID: "7", Host: "koa", User: "alice", Script: "a.slurm"}))
	require.NoError(t, s.Add(ctx, &Record{JobID: "7", Host: "other", User: "alice", Script: "b.slurm"}))

	r, err := s.FindByJobID(ctx, "koa", "7")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, "a.slurm", r.Script)
	assert.False(t, r.SubmittedAt.IsZero())

	r, err = s.FindByJobID(ctx, "koa", "8")
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestStore_Errors(t *testing.T) {
	s := openTestStore(t)

	err := s.Add(context.Background(), &Record{Host: "koa"})
	assert.Equal(t, errors.ErrCodeInvalidRequest, errors.CodeOf(err))

	_, err = Open(context.Background(), "")
	assert.Equal(t, errors.ErrCodeInvalidRequest, errors.CodeOf(err))
}

func TestStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), DefaultFileName)

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Add(ctx, &Record{JobID: "1", Host: "koa", User: "alice"}))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	records, err := s.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

package journal

import (
	"context"
	"testing"
	"time"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	"github.com/raulk/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tf "github.com/filecoin-project/venus-ipc/pkg/testhelpers/testflags"
)

func newTestJournal() (*SubmissionJournal, *clock.Mock) {
	clk := clock.NewMock()
	return NewSubmissionJournal(dssync.MutexWrap(datastore.NewMapDatastore()), clk, time.Minute), clk
}

func TestSubmissionJournalRecent(t *testing.T) {
	tf.UnitTest(t)
	ctx := context.Background()
	j, clk := newTestJournal()
	digest := [32]byte{1, 2, 3}

	recent, err := j.Recent(ctx, 100, digest)
	require.NoError(t, err)
	assert.False(t, recent)

	require.NoError(t, j.Record(ctx, 100, digest))
	recent, err = j.Recent(ctx, 100, digest)
	require.NoError(t, err)
	assert.True(t, recent)

	// a different digest at the same height is a different checkpoint
	recent, err = j.Recent(ctx, 100, [32]byte{9})
	require.NoError(t, err)
	assert.False(t, recent)

	clk.Add(time.Minute)
	recent, err = j.Recent(ctx, 100, digest)
	require.NoError(t, err)
	assert.False(t, recent)
}

func TestSubmissionJournalPrune(t *testing.T) {
	tf.UnitTest(t)
	ctx := context.Background()
	j, _ := newTestJournal()

	for _, h := range []int64{10, 20, 30} {
		require.NoError(t, j.Record(ctx, abi.ChainEpoch(h), [32]byte{byte(h)}))
	}

	removed, err := j.Prune(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	recent, err := j.Recent(ctx, 10, [32]byte{10})
	require.NoError(t, err)
	assert.False(t, recent)
	recent, err = j.Recent(ctx, 30, [32]byte{30})
	require.NoError(t, err)
	assert.True(t, recent)
}

func TestOpenSubmissionJournalOnDisk(t *testing.T) {
	tf.IntegrationTest(t)
	ctx := context.Background()
	path := t.TempDir()

	j, err := OpenSubmissionJournal(path, time.Hour)
	require.NoError(t, err)
	require.NoError(t, j.Record(ctx, 7, [32]byte{7}))
	require.NoError(t, j.Close())

	j, err = OpenSubmissionJournal(path, time.Hour)
	require.NoError(t, err)
	defer j.Close() // nolint: errcheck
	recent, err := j.Recent(ctx, 7, [32]byte{7})
	require.NoError(t, err)
	assert.True(t, recent)
}

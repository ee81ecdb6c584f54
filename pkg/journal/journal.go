package journal

import (
	"context"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/query"
	dssync "github.com/ipfs/go-datastore/sync"
	badgerds "github.com/ipfs/go-ds-badger2"
	logging "github.com/ipfs/go-log/v2"
	"github.com/raulk/clock"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/venus-ipc/pkg/encoding"
)

var log = logging.Logger("journal")

var submittedPrefix = datastore.NewKey("/submitted")

type entry struct {
	_           struct{} `cbor:",toarray"`
	SubmittedAt int64
}

// SubmissionJournal remembers when this node submitted its signature for a
// checkpoint, keyed by height and digest.
type SubmissionJournal struct {
	ds       datastore.Batching
	clock    clock.Clock
	interval time.Duration
}

// NewSubmissionJournal journals to ds. A submission younger than interval
// counts as recent.
func NewSubmissionJournal(ds datastore.Batching, clk clock.Clock, interval time.Duration) *SubmissionJournal {
	return &SubmissionJournal{ds: ds, clock: clk, interval: interval}
}

// OpenSubmissionJournal opens a badger journal at path, or an in-memory one
// when path is empty.
func OpenSubmissionJournal(path string, interval time.Duration) (*SubmissionJournal, error) {
	if path == "" {
		return NewSubmissionJournal(dssync.MutexWrap(datastore.NewMapDatastore()), clock.New(), interval), nil
	}
	opts := badgerds.DefaultOptions
	ds, err := badgerds.NewDatastore(path, &opts)
	if err != nil {
		return nil, xerrors.Errorf("opening journal at %s: %w", path, err)
	}
	log.Infow("opened submission journal", "path", path)
	return NewSubmissionJournal(ds, clock.New(), interval), nil
}

func submissionKey(height abi.ChainEpoch, digest [32]byte) datastore.Key {
	return submittedPrefix.ChildString(strconv.FormatInt(int64(height), 10)).ChildString(hex.EncodeToString(digest[:]))
}

// Recent reports whether the checkpoint was submitted within the interval.
func (j *SubmissionJournal) Recent(ctx context.Context, height abi.ChainEpoch, digest [32]byte) (bool, error) {
	raw, err := j.ds.Get(ctx, submissionKey(height, digest))
	if err == datastore.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var e entry
	if err := encoding.Decode(raw, &e); err != nil {
		return false, xerrors.Errorf("decoding journal entry: %w", err)
	}
	return j.clock.Since(time.Unix(0, e.SubmittedAt)) < j.interval, nil
}

// Record marks the checkpoint as submitted now.
func (j *SubmissionJournal) Record(ctx context.Context, height abi.ChainEpoch, digest [32]byte) error {
	raw, err := encoding.Encode(&entry{SubmittedAt: j.clock.Now().UnixNano()})
	if err != nil {
		return err
	}
	return j.ds.Put(ctx, submissionKey(height, digest), raw)
}

// Prune drops the entries of checkpoints below height and returns how many
// were removed.
func (j *SubmissionJournal) Prune(ctx context.Context, below abi.ChainEpoch) (int, error) {
	res, err := j.ds.Query(ctx, query.Query{Prefix: submittedPrefix.String(), KeysOnly: true})
	if err != nil {
		return 0, err
	}
	entries, err := res.Rest()
	if err != nil {
		return 0, err
	}

	batch, err := j.ds.Batch(ctx)
	if err != nil {
		return 0, err
	}
	var removed int
	for _, e := range entries {
		k := datastore.NewKey(e.Key)
		h, err := strconv.ParseInt(k.Parent().BaseNamespace(), 10, 64)
		if err != nil {
			log.Warnw("skipping malformed journal key", "key", e.Key)
			continue
		}
		if abi.ChainEpoch(h) >= below {
			continue
		}
		if err := batch.Delete(ctx, k); err != nil {
			return 0, err
		}
		removed++
	}
	if err := batch.Commit(ctx); err != nil {
		return 0, err
	}
	return removed, nil
}

func (j *SubmissionJournal) Close() error {
	return j.ds.Close()
}

package checkpoint

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/gammazero/workerpool"
	"github.com/hashicorp/go-multierror"
	"go.opencensus.io/trace"
	"golang.org/x/sync/singleflight"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/venus-ipc/pkg/crypto"
	"github.com/filecoin-project/venus-ipc/pkg/gateway"
	"github.com/filecoin-project/venus-ipc/pkg/journal"
	"github.com/filecoin-project/venus-ipc/pkg/metrics"
	"github.com/filecoin-project/venus-ipc/pkg/net"
	"github.com/filecoin-project/venus-ipc/pkg/types"
)

var (
	signaturesSubmitted = metrics.NewInt64Counter("checkpoint_signatures_submitted", "Number of checkpoint signatures accepted by the mempool")
	signaturesSkipped   = metrics.NewInt64Counter("checkpoint_signatures_skipped", "Number of checkpoint signatures not sent because they were submitted recently")
	signatureFailures   = metrics.NewInt64Counter("checkpoint_signature_failures", "Number of checkpoint signatures that could not be submitted")
)

// RejectedError is returned when the mempool refused a signature transaction.
type RejectedError struct {
	Height   abi.ChainEpoch
	ExitCode exitcode.ExitCode
	Info     string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("signature for checkpoint %d rejected with exit code %d: %s", e.Height, e.ExitCode, e.Info)
}

// BroadcasterConfig tunes signature submission.
type BroadcasterConfig struct {
	Workers       int
	SubmitRetries uint64
	RetryInterval time.Duration
	GasLimit      int64
	GasFeeCap     abi.TokenAmount
	GasPremium    abi.TokenAmount
	// MaxFee bounds what one signature may cost. Zero leaves the fee cap as
	// configured.
	MaxFee abi.TokenAmount
}

// Broadcaster submits this validator's signatures of incomplete checkpoints
// off the block execution path. Tasks run on a worker pool and own copies of
// everything they touch.
type Broadcaster struct {
	client    net.Client
	validator *crypto.ValidatorContext
	gw        *gateway.Caller
	journal   *journal.SubmissionJournal
	cfg       BroadcasterConfig

	pool *workerpool.WorkerPool
	// one submission per (height, digest) at a time across workers
	inflight singleflight.Group
	// held from nonce read to broadcast
	sendLk sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

func NewBroadcaster(client net.Client, validator *crypto.ValidatorContext, gw *gateway.Caller, j *journal.SubmissionJournal, cfg BroadcasterConfig) *Broadcaster {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.GasFeeCap.Int == nil {
		cfg.GasFeeCap = big.Zero()
	}
	if cfg.GasPremium.Int == nil {
		cfg.GasPremium = big.Zero()
	}
	if cfg.MaxFee.Int == nil {
		cfg.MaxFee = big.Zero()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Broadcaster{
		client:    client,
		validator: validator,
		gw:        gw,
		journal:   j,
		cfg:       cfg,
		pool:      workerpool.New(cfg.Workers),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Validator is the identity signatures are submitted under.
func (b *Broadcaster) Validator() *crypto.ValidatorContext {
	return b.validator
}

// Client is the node connection signatures are submitted through.
func (b *Broadcaster) Client() net.Client {
	return b.client
}

// Dispatch queues the submission of signatures for checkpoints and returns
// immediately. Failures are logged, never returned. It must not be called
// after Stop.
func (b *Broadcaster) Dispatch(height abi.ChainEpoch, checkpoints []types.Checkpoint) {
	cps := append([]types.Checkpoint(nil), checkpoints...)
	if b.pool.WaitingQueueSize() > b.pool.Size() {
		log.Warnw("queuing signature broadcast", "waiting", b.pool.WaitingQueueSize(), "height", height)
	}
	b.pool.Submit(func() {
		if err := b.BroadcastIncompleteSignatures(b.ctx, cps); err != nil {
			log.Errorw("failed to broadcast checkpoint signatures", "height", height, "error", err)
		}
	})
}

// Stop waits for queued broadcasts to finish and releases the journal.
func (b *Broadcaster) Stop() error {
	b.pool.StopWait()
	b.cancel()
	return b.journal.Close()
}

// BroadcastIncompleteSignatures signs every checkpoint in height order and
// submits the signatures. One failed checkpoint does not stop the others; the
// returned error aggregates all failures.
func (b *Broadcaster) BroadcastIncompleteSignatures(ctx context.Context, checkpoints []types.Checkpoint) error {
	ctx, span := trace.StartSpan(ctx, "Broadcaster.BroadcastIncompleteSignatures")
	defer span.End()

	if len(checkpoints) == 0 {
		return nil
	}
	checkpoints = append([]types.Checkpoint(nil), checkpoints...)
	sort.SliceStable(checkpoints, func(i, j int) bool {
		return checkpoints[i].BlockHeight < checkpoints[j].BlockHeight
	})

	var result *multierror.Error
	for i := range checkpoints {
		cp := &checkpoints[i]
		if err := b.submit(ctx, cp); err != nil {
			signatureFailures.Inc(ctx, 1)
			log.Warnw("failed to submit checkpoint signature", "height", cp.BlockHeight, "error", err)
			result = multierror.Append(result, xerrors.Errorf("checkpoint at height %d: %w", cp.BlockHeight, err))
		}
	}

	// Checkpoints below the lowest incomplete one can never be signed again.
	if removed, err := b.journal.Prune(ctx, checkpoints[0].BlockHeight); err != nil {
		log.Warnw("failed to prune submission journal", "error", err)
	} else if removed > 0 {
		log.Debugw("pruned submission journal", "removed", removed)
	}

	return result.ErrorOrNil()
}

func (b *Broadcaster) submit(ctx context.Context, cp *types.Checkpoint) error {
	digest, err := cp.Digest()
	if err != nil {
		return xerrors.Errorf("computing digest: %w", err)
	}

	key := fmt.Sprintf("%d/%x", cp.BlockHeight, digest)
	_, err, shared := b.inflight.Do(key, func() (interface{}, error) {
		return nil, b.submitDigest(ctx, cp, digest)
	})
	if shared {
		log.Debugw("joined in-flight checkpoint signature", "height", cp.BlockHeight)
	}
	return err
}

func (b *Broadcaster) submitDigest(ctx context.Context, cp *types.Checkpoint, digest [32]byte) error {
	recent, err := b.journal.Recent(ctx, cp.BlockHeight, digest)
	if err != nil {
		return xerrors.Errorf("reading journal: %w", err)
	}
	if recent {
		signaturesSkipped.Inc(ctx, 1)
		log.Debugw("checkpoint signature submitted recently", "height", cp.BlockHeight)
		return nil
	}

	sig, err := b.validator.SignBytes(ctx, digest[:])
	if err != nil {
		return xerrors.Errorf("signing checkpoint: %w", err)
	}
	params := &gateway.AddCheckpointSignatureParams{
		Height:    int64(cp.BlockHeight),
		PublicKey: b.validator.PublicKey(),
		Signature: sig.Data,
	}

	var res *net.TxResult
	send := func() error {
		b.sendLk.Lock()
		defer b.sendLk.Unlock()

		nonce, err := b.client.StateNonce(ctx, b.validator.Address())
		if err != nil {
			return xerrors.Errorf("reading nonce: %w", err)
		}
		msg, err := b.gw.AddCheckpointSignatureMessage(b.validator.Address(), nonce, params)
		if err != nil {
			return backoff.Permanent(err)
		}
		msg.GasLimit = b.cfg.GasLimit
		msg.GasFeeCap = b.cfg.GasFeeCap
		msg.GasPremium = b.cfg.GasPremium
		capGasFee(msg, b.cfg.MaxFee)

		smsg, err := types.NewSignedMessage(ctx, *msg, b.validator)
		if err != nil {
			return backoff.Permanent(err)
		}
		res, err = b.client.BroadcastTx(ctx, smsg)
		if err != nil {
			return xerrors.Errorf("broadcasting: %w", err)
		}
		if res.ExitCode != exitcode.Ok {
			rejected := &RejectedError{Height: cp.BlockHeight, ExitCode: res.ExitCode, Info: res.Info}
			// A nonce race with another transaction of ours resolves on the
			// next attempt.
			if res.ExitCode == exitcode.SysErrSenderStateInvalid {
				return rejected
			}
			return backoff.Permanent(rejected)
		}
		return nil
	}
	if err := backoff.Retry(send, b.retryPolicy(ctx)); err != nil {
		return err
	}

	if err := b.journal.Record(ctx, cp.BlockHeight, digest); err != nil {
		log.Warnw("failed to journal checkpoint signature", "height", cp.BlockHeight, "error", err)
	}
	signaturesSubmitted.Inc(ctx, 1)
	log.Infow("submitted checkpoint signature", "height", cp.BlockHeight, "tx", res.Cid)
	return nil
}

// capGasFee lowers the fee cap, and the premium with it, so that the most
// msg can cost stays within maxFee. A zero maxFee leaves msg untouched.
func capGasFee(msg *types.Message, maxFee abi.TokenAmount) {
	if maxFee.IsZero() || msg.GasLimit <= 0 {
		return
	}
	required := msg.RequiredFunds()
	if required.LessThanEqual(maxFee) {
		return
	}
	msg.GasFeeCap = big.Div(maxFee, big.NewInt(msg.GasLimit))
	msg.GasPremium = big.Min(msg.GasFeeCap, msg.GasPremium)
}

func (b *Broadcaster) retryPolicy(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = b.cfg.RetryInterval
	bo.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(bo, b.cfg.SubmitRetries), ctx)
}

package checkpoint

import (
	"bytes"
	"context"
	"sort"

	"golang.org/x/xerrors"

	"github.com/filecoin-project/venus-ipc/pkg/gateway"
	"github.com/filecoin-project/venus-ipc/pkg/types"
	"github.com/filecoin-project/venus-ipc/pkg/vm"
)

// UnsignedCheckpoints filters the incomplete checkpoints of the gateway down
// to those pubKey has not signed, in height order.
func UnsignedCheckpoints(ctx context.Context, gw *gateway.Caller, st vm.ExecState, pubKey []byte) ([]types.Checkpoint, error) {
	incomplete, err := gw.IncompleteCheckpoints(ctx, st)
	if err != nil {
		return nil, xerrors.Errorf("reading incomplete checkpoints: %w", err)
	}

	var unsigned []types.Checkpoint
	for _, ic := range incomplete {
		if !signedBy(ic.Signatories, pubKey) {
			unsigned = append(unsigned, ic.Checkpoint)
		}
	}
	sort.Slice(unsigned, func(i, j int) bool {
		return unsigned[i].BlockHeight < unsigned[j].BlockHeight
	})
	return unsigned, nil
}

func signedBy(signatories [][]byte, pubKey []byte) bool {
	for _, s := range signatories {
		if bytes.Equal(s, pubKey) {
			return true
		}
	}
	return false
}

// Contains reports whether cps holds a checkpoint equal to cp.
func Contains(cps []types.Checkpoint, cp *types.Checkpoint) bool {
	for i := range cps {
		if cps[i].Equals(cp) {
			return true
		}
	}
	return false
}

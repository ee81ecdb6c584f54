package fork

import (
	"context"
	"fmt"
	"sort"

	"github.com/filecoin-project/go-state-types/abi"
	logging "github.com/ipfs/go-log/v2"
	xerrors "github.com/pkg/errors"
	"go.opencensus.io/trace"

	"github.com/filecoin-project/venus-ipc/pkg/vm"
)

var log = logging.Logger("fork")

// MigrationFunc is a migration run against the state of the upgrade height,
// before any message of that block is applied. A migration that finds the
// state violating its invariants must return an error.
type MigrationFunc func(ctx context.Context, st vm.ExecState) error

type Upgrade struct {
	ChainID uint64
	Height  abi.ChainEpoch
	// AppVersion is the application version in force after the upgrade. Zero
	// leaves the version unchanged.
	AppVersion uint64
	Migration  MigrationFunc
}

// UpgradeError reports a failed migration. It is always fatal for the block.
type UpgradeError struct {
	ChainID uint64
	Height  abi.ChainEpoch
	Err     error
}

func (e *UpgradeError) Error() string {
	return fmt.Sprintf("upgrade at height %d on chain %d failed: %s", e.Height, e.ChainID, e.Err)
}

func (e *UpgradeError) Unwrap() error {
	return e.Err
}

// Execute runs the migration and returns the new application version, if the
// upgrade sets one.
func (u Upgrade) Execute(ctx context.Context, st vm.ExecState) (*uint64, error) {
	ctx, span := trace.StartSpan(ctx, "Upgrade.Execute")
	defer span.End()
	span.AddAttributes(trace.Int64Attribute("height", int64(u.Height)))

	if u.Migration != nil {
		if err := u.Migration(ctx, st); err != nil {
			return nil, &UpgradeError{ChainID: u.ChainID, Height: u.Height, Err: err}
		}
	}
	if u.AppVersion == 0 {
		return nil, nil
	}
	v := u.AppVersion
	return &v, nil
}

// Scheduler looks up the upgrade scheduled for a chain at a height.
type Scheduler interface {
	Get(chainID uint64, height abi.ChainEpoch) (Upgrade, bool)
}

var _ Scheduler = UpgradeSchedule(nil)

type UpgradeSchedule []Upgrade

// NewUpgradeSchedule sorts and validates the given upgrades.
func NewUpgradeSchedule(upgrades ...Upgrade) (UpgradeSchedule, error) {
	us := append(UpgradeSchedule(nil), upgrades...)
	sort.SliceStable(us, func(i, j int) bool {
		if us[i].ChainID != us[j].ChainID {
			return us[i].ChainID < us[j].ChainID
		}
		return us[i].Height < us[j].Height
	})
	if err := us.Validate(); err != nil {
		return nil, err
	}
	for _, u := range us {
		log.Infow("scheduled upgrade", "chain", u.ChainID, "height", u.Height, "app_version", u.AppVersion)
	}
	return us, nil
}

// Validate checks a sorted schedule: one upgrade per chain and height, and an
// application version that never goes backwards.
func (us UpgradeSchedule) Validate() error {
	for i := range us {
		if us[i].Height < 0 {
			return xerrors.Errorf("upgrade %d has negative height %d", i, us[i].Height)
		}
		if i == 0 || us[i-1].ChainID != us[i].ChainID {
			continue
		}
		prev := &us[i-1]
		curr := &us[i]
		if !(prev.Height < curr.Height) {
			return xerrors.Errorf("upgrade heights must be strictly increasing: upgrade %d was at height %d, followed by upgrade %d at height %d", i-1, prev.Height, i, curr.Height)
		}
		if curr.AppVersion != 0 && curr.AppVersion < prev.AppVersion {
			return xerrors.Errorf("cannot downgrade app version from %d to %d at height %d", prev.AppVersion, curr.AppVersion, curr.Height)
		}
	}
	return nil
}

// Get implements Scheduler.
func (us UpgradeSchedule) Get(chainID uint64, height abi.ChainEpoch) (Upgrade, bool) {
	for _, u := range us {
		if u.ChainID == chainID && u.Height == height {
			return u, true
		}
	}
	return Upgrade{}, false
}

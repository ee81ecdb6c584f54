package fork

import (
	"github.com/filecoin-project/go-state-types/abi"
)

var _ = Scheduler((*MockFork)(nil))

// MockFork never schedules an upgrade.
type MockFork struct{}

func NewMockFork() *MockFork {
	return &MockFork{}
}

func (mockFork *MockFork) Get(uint64, abi.ChainEpoch) (Upgrade, bool) {
	return Upgrade{}, false
}

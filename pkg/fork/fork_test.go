package fork_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/venus-ipc/pkg/fork"
	tf "github.com/filecoin-project/venus-ipc/pkg/testhelpers/testflags"
	"github.com/filecoin-project/venus-ipc/pkg/vm"
)

func TestUpgradeScheduleGet(t *testing.T) {
	tf.UnitTest(t)

	us, err := fork.NewUpgradeSchedule(
		fork.Upgrade{ChainID: 2, Height: 50, AppVersion: 1},
		fork.Upgrade{ChainID: 1, Height: 100, AppVersion: 2},
		fork.Upgrade{ChainID: 1, Height: 10, AppVersion: 1},
	)
	require.NoError(t, err)

	u, ok := us.Get(1, 100)
	require.True(t, ok)
	assert.Equal(t, uint64(2), u.AppVersion)

	_, ok = us.Get(2, 100)
	assert.False(t, ok)

	_, ok = fork.NewMockFork().Get(1, 100)
	assert.False(t, ok)
}

func TestUpgradeScheduleValidate(t *testing.T) {
	tf.UnitTest(t)

	_, err := fork.NewUpgradeSchedule(
		fork.Upgrade{ChainID: 1, Height: 10},
		fork.Upgrade{ChainID: 1, Height: 10},
	)
	assert.Error(t, err)

	_, err = fork.NewUpgradeSchedule(
		fork.Upgrade{ChainID: 1, Height: 10, AppVersion: 3},
		fork.Upgrade{ChainID: 1, Height: 20, AppVersion: 2},
	)
	assert.Error(t, err)

	_, err = fork.NewUpgradeSchedule(fork.Upgrade{ChainID: 1, Height: -1})
	assert.Error(t, err)
}

func TestUpgradeExecute(t *testing.T) {
	tf.UnitTest(t)
	ctx := context.Background()

	t.Run("returns the new app version", func(t *testing.T) {
		ran := false
		u := fork.Upgrade{ChainID: 1, Height: 10, AppVersion: 7, Migration: func(context.Context, vm.ExecState) error {
			ran = true
			return nil
		}}
		v, err := u.Execute(ctx, nil)
		require.NoError(t, err)
		require.NotNil(t, v)
		assert.Equal(t, uint64(7), *v)
		assert.True(t, ran)
	})

	t.Run("no version change", func(t *testing.T) {
		v, err := fork.Upgrade{ChainID: 1, Height: 10}.Execute(ctx, nil)
		require.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("migration failure", func(t *testing.T) {
		boom := errors.New("invariant violated")
		u := fork.Upgrade{ChainID: 1, Height: 10, AppVersion: 7, Migration: func(context.Context, vm.ExecState) error {
			return boom
		}}
		v, err := u.Execute(ctx, nil)
		assert.Nil(t, v)

		var uerr *fork.UpgradeError
		require.True(t, errors.As(err, &uerr))
		assert.EqualValues(t, 10, uerr.Height)
		assert.True(t, errors.Is(err, boom))
	})
}

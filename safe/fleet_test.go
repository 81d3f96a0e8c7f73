package safe

import (
	"testing"

	"github.com/michaelpento.lv/bracketbot/utils/testutils"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// stubFleetBackend satisfies FleetBackend for code paths that never touch the chain
type stubFleetBackend struct {
	FleetBackend
}

func TestParseFleetDeployed(t *testing.T) {
	factory := testutils.Address(0xfa)
	owner := testutils.Address(0x1)
	fleet := []common.Address{testutils.Address(0xb1), testutils.Address(0xb2)}

	deployer, err := NewFleetDeployer(stubFleetBackend{}, factory, zaptest.NewLogger(t))
	require.NoError(t, err)

	event := fleetFactoryABI.Events["FleetDeployed"]
	data, err := event.Inputs.NonIndexed().Pack(fleet)
	require.NoError(t, err)

	deployed := &ethtypes.Log{
		Address: factory,
		Topics:  []common.Hash{event.ID, common.BytesToHash(owner.Bytes())},
		Data:    data,
	}
	unrelated := &ethtypes.Log{
		Address: testutils.Address(0xee),
		Topics:  []common.Hash{event.ID, common.BytesToHash(owner.Bytes())},
		Data:    data,
	}

	parsed, err := deployer.ParseFleetDeployed([]*ethtypes.Log{unrelated, deployed})
	require.NoError(t, err)
	assert.Equal(t, owner, parsed.Owner)
	assert.Equal(t, fleet, parsed.Fleet)

	_, err = deployer.ParseFleetDeployed([]*ethtypes.Log{unrelated})
	assert.Error(t, err)

	_, err = NewFleetDeployer(nil, factory, zaptest.NewLogger(t))
	assert.Error(t, err)
	_, err = NewFleetDeployer(stubFleetBackend{}, factory, nil)
	assert.Error(t, err)
}

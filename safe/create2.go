package safe

import (
	"context"
	"fmt"
	"math/big"

	bmath "github.com/michaelpento.lv/bracketbot/utils/math"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// emptyInitializerHash is keccak256 of the empty setup call the fleet
// factory passes to every proxy.
var emptyInitializerHash = crypto.Keccak256(nil)

// PredictAddress computes the CREATE2 address of the index-th proxy the fleet
// factory deploys for saltNonce.
func PredictAddress(proxyFactory, template common.Address, creationCode []byte, saltNonce *big.Int, index int) common.Address {
	inner := crypto.Keccak256(bmath.Pad32(saltNonce), bmath.Pad32(big.NewInt(int64(index))))
	salt := crypto.Keccak256(emptyInitializerHash, inner)

	initCode := make([]byte, 0, len(creationCode)+32)
	initCode = append(initCode, creationCode...)
	initCode = append(initCode, common.LeftPadBytes(template.Bytes(), 32)...)

	var salt32 [32]byte
	copy(salt32[:], salt)
	return crypto.CreateAddress2(proxyFactory, salt32, crypto.Keccak256(initCode))
}

// PredictFleet returns the addresses of the count proxies that
// deployFleetWithNonce(owner, count, template, saltNonce) will create.
// The prediction does not depend on the owner.
func PredictFleet(ctx context.Context, caller ethereum.ContractCaller, fleetFactory, template common.Address, saltNonce *big.Int, count int) ([]common.Address, error) {
	if caller == nil {
		return nil, fmt.Errorf("contract caller cannot be nil")
	}
	if count < 0 {
		return nil, fmt.Errorf("invalid fleet size %d", count)
	}

	out, err := callABI(ctx, caller, fleetFactoryABI, fleetFactory, "proxyFactory")
	if err != nil {
		return nil, err
	}
	proxyFactory := out[0].(common.Address)

	out, err = callABI(ctx, caller, proxyFactoryABI, proxyFactory, "proxyCreationCode")
	if err != nil {
		return nil, err
	}
	creationCode := out[0].([]byte)

	fleet := make([]common.Address, count)
	for i := range fleet {
		fleet[i] = PredictAddress(proxyFactory, template, creationCode, saltNonce, i)
	}
	return fleet, nil
}

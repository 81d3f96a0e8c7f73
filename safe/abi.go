package safe

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// GnosisSafeABI covers the Safe methods used to execute, sign and inspect transactions
const GnosisSafeABI = `[
	{"inputs":[
		{"name":"to","type":"address"},
		{"name":"value","type":"uint256"},
		{"name":"data","type":"bytes"},
		{"name":"operation","type":"uint8"},
		{"name":"safeTxGas","type":"uint256"},
		{"name":"baseGas","type":"uint256"},
		{"name":"gasPrice","type":"uint256"},
		{"name":"gasToken","type":"address"},
		{"name":"refundReceiver","type":"address"},
		{"name":"signatures","type":"bytes"}],
	 "name":"execTransaction","outputs":[{"name":"success","type":"bool"}],"stateMutability":"payable","type":"function"},
	{"inputs":[
		{"name":"to","type":"address"},
		{"name":"value","type":"uint256"},
		{"name":"data","type":"bytes"},
		{"name":"operation","type":"uint8"},
		{"name":"safeTxGas","type":"uint256"},
		{"name":"baseGas","type":"uint256"},
		{"name":"gasPrice","type":"uint256"},
		{"name":"gasToken","type":"address"},
		{"name":"refundReceiver","type":"address"},
		{"name":"_nonce","type":"uint256"}],
	 "name":"getTransactionHash","outputs":[{"name":"","type":"bytes32"}],"stateMutability":"view","type":"function"},
	{"inputs":[
		{"name":"to","type":"address"},
		{"name":"value","type":"uint256"},
		{"name":"data","type":"bytes"},
		{"name":"operation","type":"uint8"}],
	 "name":"requiredTxGas","outputs":[{"name":"","type":"uint256"}],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[],"name":"nonce","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"getOwners","outputs":[{"name":"","type":"address[]"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"getThreshold","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"getModules","outputs":[{"name":"","type":"address[]"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"owner","type":"address"}],"name":"isOwner","outputs":[{"name":"","type":"bool"}],"stateMutability":"view","type":"function"}
]`

// MultiSendABI is the batch execution contract
const MultiSendABI = `[
	{"inputs":[{"name":"transactions","type":"bytes"}],"name":"multiSend","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

// ProxyFactoryABI is the Safe proxy factory
const ProxyFactoryABI = `[
	{"inputs":[],"name":"proxyCreationCode","outputs":[{"name":"","type":"bytes"}],"stateMutability":"pure","type":"function"},
	{"inputs":[{"name":"masterCopy","type":"address"},{"name":"data","type":"bytes"}],"name":"createProxy","outputs":[{"name":"proxy","type":"address"}],"stateMutability":"nonpayable","type":"function"},
	{"anonymous":false,"inputs":[{"indexed":false,"name":"proxy","type":"address"}],"name":"ProxyCreation","type":"event"}
]`

// FleetFactoryABI is the deterministic fleet factory deploying one proxy per bracket
const FleetFactoryABI = `[
	{"inputs":[],"name":"proxyFactory","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[
		{"name":"owner","type":"address"},
		{"name":"size","type":"uint256"},
		{"name":"template","type":"address"},
		{"name":"saltNonce","type":"uint256"}],
	 "name":"deployFleetWithNonce","outputs":[{"name":"","type":"address[]"}],"stateMutability":"nonpayable","type":"function"},
	{"anonymous":false,"inputs":[
		{"indexed":true,"name":"owner","type":"address"},
		{"indexed":false,"name":"fleet","type":"address[]"}],
	 "name":"FleetDeployed","type":"event"}
]`

var (
	safeABI         = mustParseABI("GnosisSafe", GnosisSafeABI)
	multiSendABI    = mustParseABI("MultiSend", MultiSendABI)
	proxyFactoryABI = mustParseABI("ProxyFactory", ProxyFactoryABI)
	fleetFactoryABI = mustParseABI("FleetFactory", FleetFactoryABI)
)

func mustParseABI(name, definition string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic(fmt.Sprintf("failed to parse %s ABI: %v", name, err))
	}
	return parsed
}

// ABIs returns the contract ABIs of this package, e.g. for call decoding
func ABIs() []abi.ABI {
	return []abi.ABI{safeABI, multiSendABI, proxyFactoryABI, fleetFactoryABI}
}

package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ParseABI 解析 ABI JSON。
func ParseABI(abiJSON string) (*abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func mustParseABI(abiJSON string) *abi.ABI {
	parsed, err := ParseABI(abiJSON)
	if err != nil {
		panic(err)
	}
	return parsed
}

// ARMABI 只包含定价机器人用到的函数。
var ARMABI = mustParseABI(`[
	{"inputs":[],"name":"traderate0","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"traderate1","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"crossPrice","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"liquidityAsset","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"baseAsset","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"activeMarket","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"vault","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"withdrawsQueued","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"withdrawsClaimed","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"buyT1","type":"uint256"},{"name":"sellT1","type":"uint256"}],"name":"setPrices","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`)

var ERC20ABI = mustParseABI(`[
	{"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`)

var ERC4626ABI = mustParseABI(`[
	{"inputs":[{"name":"shares","type":"uint256"}],"name":"convertToAssets","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`)

// CurvePoolABI stable-swap 池。
var CurvePoolABI = mustParseABI(`[
	{"inputs":[{"name":"i","type":"int128"},{"name":"j","type":"int128"},{"name":"dx","type":"uint256"}],"name":"get_dy","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`)

// MarketWrapperABI ARM 借贷市场适配器。
var MarketWrapperABI = mustParseABI(`[
	{"inputs":[],"name":"market","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`)

// VaultABI 流动性代币的赎回 vault。
var VaultABI = mustParseABI(`[
	{"inputs":[],"name":"withdrawalQueueMetadata","outputs":[{"name":"queued","type":"uint128"},{"name":"claimable","type":"uint128"},{"name":"claimed","type":"uint128"},{"name":"nextWithdrawalIndex","type":"uint128"}],"stateMutability":"view","type":"function"}
]`)

package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arm-pricer-go/fixedpoint"
	"arm-pricer-go/reference"
)

var (
	armAddr   = common.HexToAddress("0x85B78AcA6Deae198fBF201c82DAF6Ca21942acc6")
	vaultAddr = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	wethAddr  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	stethAddr = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	poolAddr  = common.HexToAddress("0x00000000000000000000000000000000000000c1")
)

var allABIs = []*abi.ABI{ARMABI, ERC20ABI, ERC4626ABI, CurvePoolABI, MarketWrapperABI, VaultABI}

// fakeBackend 按 (合约地址, 方法名) 返回预设结果，同时实现 bind.ContractBackend。
type fakeBackend struct {
	mu      sync.Mutex
	results map[common.Address]map[string][]any
	calls   []string
	sent    []*types.Transaction
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{results: make(map[common.Address]map[string][]any)}
}

func (f *fakeBackend) set(addr common.Address, method string, vals ...any) {
	if f.results[addr] == nil {
		f.results[addr] = make(map[string][]any)
	}
	f.results[addr][method] = vals
}

func (f *fakeBackend) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range allABIs {
		m, err := a.MethodById(call.Data[:4])
		if err != nil {
			continue
		}
		f.calls = append(f.calls, m.Name)
		vals, ok := f.results[*call.To][m.Name]
		if !ok {
			return nil, fmt.Errorf("execution reverted: %s", m.Name)
		}
		return m.Outputs.Pack(vals...)
	}
	return nil, errors.New("unknown selector")
}

func (f *fakeBackend) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{1}, nil
}
func (f *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(1)}, nil
}
func (f *fakeBackend) PendingCodeAt(context.Context, common.Address) ([]byte, error) {
	return []byte{1}, nil
}
func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 7, nil
}
func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}
func (f *fakeBackend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}
func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 100000, nil
}
func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return nil
}
func (f *fakeBackend) FilterLogs(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}
func (f *fakeBackend) SubscribeFilterLogs(context.Context, ethereum.FilterQuery, chan<- types.Log) (ethereum.Subscription, error) {
	return nil, errors.New("not supported")
}

func e36(s string) *big.Int {
	p, err := fixedpoint.Parse(s, fixedpoint.PriceScale)
	if err != nil {
		panic(err)
	}
	return p.Int()
}

func TestARMReadsPrices(t *testing.T) {
	b := newFakeBackend()
	// traderate0 = 1/1.0005，取倒数后卖价为 1.0005（截断）
	rate0, _ := fixedpoint.Invert(e36("1.0005"), 72)
	b.set(armAddr, "traderate0", rate0)
	b.set(armAddr, "traderate1", e36("0.9995"))
	b.set(armAddr, "crossPrice", e36("0.9998"))
	b.set(armAddr, "liquidityAsset", wethAddr)
	b.set(armAddr, "baseAsset", stethAddr)

	arm := NewARM(armAddr, b)
	ctx := context.Background()

	sell, err := arm.SellPrice(ctx)
	require.NoError(t, err)
	assert.Equal(t, fixedpoint.PriceScale, sell.Scale())
	diff := sell.AbsDiff(fixedpoint.New(e36("1.0005"), fixedpoint.PriceScale))
	assert.True(t, diff.Cmp(fixedpoint.New(big.NewInt(2), fixedpoint.PriceScale)) <= 0, "sell %s", sell)

	buy, err := arm.BuyPrice(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0.9995", buy.String())

	cross, err := arm.CrossPrice(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0.9998", cross.String())

	liq, err := arm.LiquidityAsset(ctx)
	require.NoError(t, err)
	assert.Equal(t, wethAddr, liq)
	base, err := arm.BaseAsset(ctx)
	require.NoError(t, err)
	assert.Equal(t, stethAddr, base)
}

func TestARMZeroTraderate(t *testing.T) {
	b := newFakeBackend()
	b.set(armAddr, "traderate0", big.NewInt(0))
	_, err := NewARM(armAddr, b).SellPrice(context.Background())
	assert.ErrorIs(t, err, fixedpoint.ErrDivideByZero)
}

func TestARMSubmitPrices(t *testing.T) {
	b := newFakeBackend()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	opts, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(1))
	require.NoError(t, err)
	opts.GasPrice = big.NewInt(1)
	opts.GasLimit = 200000

	arm := NewARM(armAddr, b)
	_, err = arm.SubmitPrices(context.Background(), fixedpoint.Price{}, fixedpoint.Price{})
	assert.ErrorIs(t, err, ErrNoSigner)

	arm.WithSigner(b, opts)
	buy := fixedpoint.New(e36("0.9995"), fixedpoint.PriceScale)
	sell, _ := fixedpoint.Parse("1.0005", fixedpoint.TokenScale)
	tx, err := arm.SubmitPrices(context.Background(), buy, sell)
	require.NoError(t, err)
	require.Len(t, b.sent, 1)
	assert.Equal(t, armAddr, *tx.To())
	assert.Equal(t, uint64(7), tx.Nonce())

	args, err := ARMABI.Methods["setPrices"].Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, 0, args[0].(*big.Int).Cmp(e36("0.9995")))
	assert.Equal(t, 0, args[1].(*big.Int).Cmp(e36("1.0005")), "sell rescaled to 36 digits")
}

func TestCurvePool(t *testing.T) {
	b := newFakeBackend()
	b.set(poolAddr, "get_dy", big.NewInt(995))
	pool := NewCurvePool(poolAddr, b, map[common.Address]int64{wethAddr: 0, stethAddr: 1})

	out, err := pool.QuoteSwap(context.Background(), wethAddr, stethAddr, big.NewInt(1000))
	require.NoError(t, err)
	assert.Equal(t, int64(995), out.Int64())

	_, err = pool.QuoteSwap(context.Background(), vaultAddr, stethAddr, big.NewInt(1))
	assert.ErrorIs(t, err, reference.ErrQuoteUnavailable)
}

func TestERC4626AndWrapper(t *testing.T) {
	b := newFakeBackend()
	wrapped := common.HexToAddress("0x7f39C581F595B53c5cb19bD0b3f8dA6c935E2Ca0")
	b.set(wrapped, "convertToAssets", big.NewInt(1210000000000000000))
	rate, err := NewERC4626(wrapped, b).ExchangeRate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.21", rate.String())

	b.set(vaultAddr, "market", poolAddr)
	m, err := NewMarketWrapper(vaultAddr, b).Market(context.Background())
	require.NoError(t, err)
	assert.Equal(t, poolAddr, m)
}

func TestVaultLiquidity(t *testing.T) {
	b := newFakeBackend()
	b.set(wethAddr, "balanceOf", big.NewInt(100))
	b.set(vaultAddr, "withdrawalQueueMetadata", big.NewInt(50), big.NewInt(40), big.NewInt(30), big.NewInt(9))
	b.set(stethAddr, "balanceOf", big.NewInt(500))
	b.set(armAddr, "withdrawsQueued", big.NewInt(80))
	b.set(armAddr, "withdrawsClaimed", big.NewInt(60))

	arm := NewARM(armAddr, b)
	liq, err := NewVaultLiquidity(arm, vaultAddr, wethAddr, stethAddr, b).Liquidity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(100), liq.Available.Int64())
	assert.Equal(t, int64(20), liq.PendingClaims.Int64())
	assert.Equal(t, int64(480), liq.Required.Int64())
	assert.Equal(t, int64(400), liq.Needed().Int64())
}

func TestCallRevert(t *testing.T) {
	_, err := NewARM(armAddr, newFakeBackend()).CrossPrice(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crossPrice")
}

package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"strings"
	"time"

	"gridmarket-go/internal/models"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

// Compile-time check: *LiveClient must satisfy SettlementClient.
var _ SettlementClient = (*LiveClient)(nil)

// escrowABI covers the contract surface this service calls. The contract's
// internals are out of scope; only the call/return shape matters here.
const escrowABI = `[
	{"name":"escrowDeposit","type":"function","inputs":[{"name":"seller","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"name":"escrowRelease","type":"function","inputs":[{"name":"buyer","type":"address"},{"name":"seller","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"name":"escrowRefund","type":"function","inputs":[{"name":"seller","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"name":"grantEnergy","type":"function","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"name":"energyOf","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

const escrowGasLimit = 200_000

// LiveClient settles against the escrow contract over JSON-RPC, signing
// transactions with the operator key.
type LiveClient struct {
	client   *ethclient.Client
	contract common.Address
	abi      abi.ABI
	key      *ecdsa.PrivateKey
	from     common.Address
	chainId  *big.Int
	decimals int32
	timeout  time.Duration
}

func NewLiveClient(ctx context.Context, cfg models.ChainConfig, market models.MarketConfig) (*LiveClient, error) {
	if cfg.RpcUrl == "" {
		return nil, fmt.Errorf("chain rpc url cannot be empty")
	}
	if !common.IsHexAddress(market.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address: %s", market.ContractAddress)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.OperatorKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid operator key: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(escrowABI))
	if err != nil {
		return nil, fmt.Errorf("unable to parse escrow abi: %w", err)
	}

	httpClient, err := createCustomHttpClient()
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}

	rpcClient, err := rpc.DialOptions(ctx, cfg.RpcUrl, rpc.WithHTTPClient(&httpClient))
	if err != nil {
		return nil, fmt.Errorf("unable to dial chain rpc: %w", err)
	}

	zap.L().Info("Live settlement client initialized",
		zap.String("contract", market.ContractAddress),
		zap.Int64("chain_id", market.ChainId))

	return &LiveClient{
		client:   ethclient.NewClient(rpcClient),
		contract: common.HexToAddress(market.ContractAddress),
		abi:      parsed,
		key:      key,
		from:     crypto.PubkeyToAddress(key.PublicKey),
		chainId:  big.NewInt(market.ChainId),
		decimals: market.TokenDecimals,
		timeout:  cfg.CallTimeout,
	}, nil
}

func createCustomHttpClient() (http.Client, error) {
	tr := &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   15 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return http.Client{}, err
	}

	return http.Client{
		Transport: tr,
		Timeout:   60 * time.Second,
	}, nil
}

func (c *LiveClient) Mode() string {
	return ModeLive
}

// tokenUnits converts a kWh decimal to the contract's integer representation.
func (c *LiveClient) tokenUnits(amount decimal.Decimal) *big.Int {
	return amount.Shift(c.decimals).BigInt()
}

// sendContractTx packs, signs and broadcasts one contract call, returning the
// transaction hash as the settlement reference.
func (c *LiveClient) sendContractTx(ctx context.Context, method string, args ...interface{}) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return "", fmt.Errorf("unable to pack %s call: %w", method, err)
	}

	nonce, err := c.client.PendingNonceAt(ctx, c.from)
	if err != nil {
		return "", fmt.Errorf("%w: nonce query failed: %v", ErrUnavailable, err)
	}

	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: gas price query failed: %v", ErrUnavailable, err)
	}

	tx := types.NewTransaction(nonce, c.contract, big.NewInt(0), escrowGasLimit, gasPrice, data)
	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(c.chainId), c.key)
	if err != nil {
		return "", fmt.Errorf("unable to sign %s transaction: %w", method, err)
	}

	if err := c.client.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("%w: broadcast failed: %v", ErrUnavailable, err)
	}

	hash := signedTx.Hash().Hex()
	zap.L().Info("Settlement transaction sent",
		zap.String("method", method),
		zap.String("tx_hash", hash))
	return hash, nil
}

func (c *LiveClient) EscrowDeposit(ctx context.Context, sellerWallet string, amountKWh decimal.Decimal) (string, error) {
	return c.sendContractTx(ctx, "escrowDeposit", common.HexToAddress(sellerWallet), c.tokenUnits(amountKWh))
}

func (c *LiveClient) EscrowRelease(ctx context.Context, buyerWallet, sellerWallet string, amountKWh decimal.Decimal) (string, error) {
	return c.sendContractTx(ctx, "escrowRelease", common.HexToAddress(buyerWallet), common.HexToAddress(sellerWallet), c.tokenUnits(amountKWh))
}

func (c *LiveClient) EscrowRefund(ctx context.Context, sellerWallet string, amountKWh decimal.Decimal) (string, error) {
	return c.sendContractTx(ctx, "escrowRefund", common.HexToAddress(sellerWallet), c.tokenUnits(amountKWh))
}

func (c *LiveClient) GrantEnergy(ctx context.Context, wallet string, amountKWh decimal.Decimal) (string, error) {
	return c.sendContractTx(ctx, "grantEnergy", common.HexToAddress(wallet), c.tokenUnits(amountKWh))
}

// Balances reads the wallet's native balance and its energy holding from the
// contract.
func (c *LiveClient) Balances(ctx context.Context, wallet string) (decimal.Decimal, decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	addr := common.HexToAddress(wallet)

	wei, err := c.client.BalanceAt(ctx, addr, nil)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: balance query failed: %v", ErrUnavailable, err)
	}

	data, err := c.abi.Pack("energyOf", addr)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("unable to pack energyOf call: %w", err)
	}

	out, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &c.contract, Data: data}, nil)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: energyOf call failed: %v", ErrUnavailable, err)
	}

	unpacked, err := c.abi.Unpack("energyOf", out)
	if err != nil || len(unpacked) != 1 {
		return decimal.Zero, decimal.Zero, fmt.Errorf("unable to decode energyOf result: %v", err)
	}
	units, ok := unpacked[0].(*big.Int)
	if !ok {
		return decimal.Zero, decimal.Zero, fmt.Errorf("unexpected energyOf result type %T", unpacked[0])
	}

	eth := decimal.NewFromBigInt(wei, -18)
	energy := decimal.NewFromBigInt(units, -c.decimals)
	return eth, energy, nil
}

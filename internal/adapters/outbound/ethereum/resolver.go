// Package ethereum reads identities from the on-chain Identities contract and
// signs or verifies claims with secp256k1 keys.
package ethereum

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/keymesh/socialproof/internal/domain/entity"
	"github.com/keymesh/socialproof/internal/ports/outbound"
)

// Compile-time check that IdentityResolver implements outbound.IdentityResolver
var _ outbound.IdentityResolver = (*IdentityResolver)(nil)

// IdentitiesABI is the subset of the Identities contract used here.
const IdentitiesABI = `[{
	"constant": true,
	"inputs": [{"name": "userAddress", "type": "address"}],
	"name": "getIdentity",
	"outputs": [
		{"name": "publicKey", "type": "bytes"},
		{"name": "blockNumber", "type": "uint256"}
	],
	"stateMutability": "view",
	"type": "function"
}]`

// ContractCaller executes read-only contract calls. *ethclient.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// HeaderReader fetches block headers. *ethclient.Client satisfies it.
type HeaderReader interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// IdentityResolver reads registered identities and block hashes from one network.
type IdentityResolver struct {
	caller   ContractCaller
	headers  HeaderReader
	contract common.Address
	abi      abi.ABI
	logger   *slog.Logger
}

// NewIdentityResolver creates a resolver for the Identities contract at contract.
func NewIdentityResolver(caller ContractCaller, headers HeaderReader, contract string, logger *slog.Logger) (*IdentityResolver, error) {
	if caller == nil || headers == nil {
		return nil, fmt.Errorf("contract caller and header reader are required")
	}
	if !common.IsHexAddress(contract) {
		return nil, fmt.Errorf("%w: invalid identities contract address %q", entity.ErrInvalidInput, contract)
	}
	parsed, err := abi.JSON(strings.NewReader(IdentitiesABI))
	if err != nil {
		return nil, fmt.Errorf("parsing identities ABI: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IdentityResolver{
		caller:   caller,
		headers:  headers,
		contract: common.HexToAddress(contract),
		abi:      parsed,
		logger:   logger.With("component", "identity-resolver"),
	}, nil
}

// Dial connects to an Ethereum JSON-RPC endpoint and returns a resolver for contract.
// The caller is responsible for closing the returned client.
func Dial(ctx context.Context, rpcURL, contract string, logger *slog.Logger) (*IdentityResolver, *ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to ethereum node: %w", err)
	}
	resolver, err := NewIdentityResolver(client, client, contract, logger)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return resolver, client, nil
}

// GetIdentity calls getIdentity(userAddress). An unregistered address yields an
// all-zero or empty public key.
func (r *IdentityResolver) GetIdentity(ctx context.Context, userAddress string) (outbound.ChainIdentity, error) {
	if !common.IsHexAddress(userAddress) {
		return outbound.ChainIdentity{}, fmt.Errorf("%w: invalid ethereum address %q", entity.ErrInvalidInput, userAddress)
	}

	data, err := r.abi.Pack("getIdentity", common.HexToAddress(userAddress))
	if err != nil {
		return outbound.ChainIdentity{}, fmt.Errorf("packing getIdentity: %w", err)
	}

	out, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &r.contract, Data: data}, nil)
	if err != nil {
		return outbound.ChainIdentity{}, fmt.Errorf("%w: calling getIdentity: %v", entity.ErrTransientIO, err)
	}

	values, err := r.abi.Unpack("getIdentity", out)
	if err != nil {
		return outbound.ChainIdentity{}, fmt.Errorf("unpacking getIdentity: %w", err)
	}
	if len(values) != 2 {
		return outbound.ChainIdentity{}, fmt.Errorf("unexpected getIdentity output length %d", len(values))
	}
	publicKey, ok := values[0].([]byte)
	if !ok {
		return outbound.ChainIdentity{}, fmt.Errorf("unexpected publicKey type %T", values[0])
	}
	blockNumber, ok := values[1].(*big.Int)
	if !ok || !blockNumber.IsUint64() {
		return outbound.ChainIdentity{}, fmt.Errorf("unexpected blockNumber %v", values[1])
	}

	return outbound.ChainIdentity{
		PublicKey:   hexutil.Encode(publicKey),
		BlockNumber: blockNumber.Uint64(),
	}, nil
}

// BlockHash returns the hash of the block at blockNumber.
func (r *IdentityResolver) BlockHash(ctx context.Context, blockNumber uint64) (string, error) {
	header, err := r.headers.HeaderByNumber(ctx, new(big.Int).SetUint64(blockNumber))
	if errors.Is(err, ethereum.NotFound) {
		return "", fmt.Errorf("block %d: %w", blockNumber, entity.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("%w: fetching block %d: %v", entity.ErrTransientIO, blockNumber, err)
	}
	return header.Hash().Hex(), nil
}

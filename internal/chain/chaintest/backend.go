// Package chaintest provides an in-memory contract backend for tests that
// exercise chain reads and transaction execution without a node.
package chaintest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// HandlerFunc answers a decoded contract call with output values.
type HandlerFunc func(args []any, msg ethereum.CallMsg) ([]any, error)

type handlerKey struct {
	to       common.Address
	selector [4]byte
}

type handler struct {
	method abi.Method
	fn     HandlerFunc
}

// Backend satisfies both the read backend and the transaction backend.
type Backend struct {
	mu sync.Mutex

	chainID  *big.Int
	handlers map[handlerKey]handler
	balances map[common.Address]*big.Int
	nonces   map[common.Address]uint64
	receipts map[common.Hash]*types.Receipt

	sent      []*types.Transaction
	calls     int
	GasLimit  uint64
	BaseFee   *big.Int
	TipCap    *big.Int
	SendErr   error
	Unreached error
}

func New(chainID int64) *Backend {
	return &Backend{
		chainID:  big.NewInt(chainID),
		handlers: map[handlerKey]handler{},
		balances: map[common.Address]*big.Int{},
		nonces:   map[common.Address]uint64{},
		receipts: map[common.Hash]*types.Receipt{},
		GasLimit: 100_000,
		BaseFee:  big.NewInt(1_000_000_000),
		TipCap:   big.NewInt(1_500_000_000),
	}
}

// Handle registers fn for calls of method on contract at to.
func (b *Backend) Handle(to common.Address, contract abi.ABI, method string, fn HandlerFunc) {
	m, ok := contract.Methods[method]
	if !ok {
		panic(fmt.Sprintf("chaintest: unknown method %s", method))
	}
	var sel [4]byte
	copy(sel[:], m.ID)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[handlerKey{to: to, selector: sel}] = handler{method: m, fn: fn}
}

// Returns is a HandlerFunc answering with fixed values.
func Returns(values ...any) HandlerFunc {
	return func([]any, ethereum.CallMsg) ([]any, error) { return values, nil }
}

// Reverts is a HandlerFunc that reverts with an Error(string) reason.
func Reverts(reason string) HandlerFunc {
	return func([]any, ethereum.CallMsg) ([]any, error) { return nil, NewRevertError(reason) }
}

// ServeMulticall answers Multicall3 aggregate3 at addr by dispatching each
// sub-call to the registered handlers.
func (b *Backend) ServeMulticall(addr common.Address, multicall abi.ABI) {
	m := multicall.Methods["aggregate3"]
	var sel [4]byte
	copy(sel[:], m.ID)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[handlerKey{to: addr, selector: sel}] = handler{method: m, fn: func(args []any, msg ethereum.CallMsg) ([]any, error) {
		var calls []struct {
			Target       common.Address
			AllowFailure bool
			CallData     []byte
		}
		abi.ConvertType(args[0], &calls)
		type result struct {
			Success    bool
			ReturnData []byte
		}
		results := make([]result, 0, len(calls))
		for _, call := range calls {
			target := call.Target
			out, err := b.dispatch(ethereum.CallMsg{From: msg.From, To: &target, Data: call.CallData})
			if err != nil {
				if !call.AllowFailure {
					return nil, err
				}
				results = append(results, result{Success: false})
				continue
			}
			results = append(results, result{Success: true, ReturnData: out})
		}
		return []any{results}, nil
	}}
}

func (b *Backend) SetBalance(addr common.Address, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[addr] = new(big.Int).Set(amount)
}

// SetReceipt overrides the receipt returned for hash.
func (b *Backend) SetReceipt(hash common.Hash, receipt *types.Receipt) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.receipts[hash] = receipt
}

// Sent returns broadcast transactions in order.
func (b *Backend) Sent() []*types.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*types.Transaction, len(b.sent))
	copy(out, b.sent)
	return out
}

// CallCount is the number of eth_call requests served.
func (b *Backend) CallCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func (b *Backend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	return b.dispatch(msg)
}

func (b *Backend) dispatch(msg ethereum.CallMsg) ([]byte, error) {
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, errors.New("chaintest: call without target or selector")
	}
	var sel [4]byte
	copy(sel[:], msg.Data[:4])
	b.mu.Lock()
	h, ok := b.handlers[handlerKey{to: *msg.To, selector: sel}]
	b.mu.Unlock()
	if !ok {
		if b.Unreached != nil {
			return nil, b.Unreached
		}
		// Calls to addresses without code return empty data.
		return []byte{}, nil
	}
	args, err := h.method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, fmt.Errorf("chaintest: decode %s args: %w", h.method.Name, err)
	}
	values, err := h.fn(args, msg)
	if err != nil {
		return nil, err
	}
	return h.method.Outputs.Pack(values...)
}

func (b *Backend) BalanceAt(_ context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if bal, ok := b.balances[account]; ok {
		return new(big.Int).Set(bal), nil
	}
	return new(big.Int), nil
}

func (b *Backend) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(b.chainID), nil
}

func (b *Backend) EstimateGas(_ context.Context, msg ethereum.CallMsg) (uint64, error) {
	if _, err := b.dispatch(msg); err != nil {
		return 0, err
	}
	return b.GasLimit, nil
}

func (b *Backend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return new(big.Int).Set(b.TipCap), nil
}

func (b *Backend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(1), BaseFee: new(big.Int).Set(b.BaseFee)}, nil
}

func (b *Backend) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nonces[account], nil
}

func (b *Backend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	if b.SendErr != nil {
		return b.SendErr
	}
	from, err := types.Sender(types.LatestSignerForChainID(b.chainID), tx)
	if err != nil {
		return fmt.Errorf("chaintest: recover sender: %w", err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if tx.Nonce() != b.nonces[from] {
		return fmt.Errorf("nonce too low: have %d want %d", tx.Nonce(), b.nonces[from])
	}
	b.nonces[from]++
	b.sent = append(b.sent, tx)
	if _, ok := b.receipts[tx.Hash()]; !ok {
		b.receipts[tx.Hash()] = &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: tx.Hash(), BlockNumber: big.NewInt(2)}
	}
	return nil
}

func (b *Backend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r, ok := b.receipts[hash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

// RevertError mimics the JSON-RPC error a node returns for a reverted call.
type RevertError struct {
	Reason string
}

func NewRevertError(reason string) RevertError {
	return RevertError{Reason: reason}
}

func (e RevertError) Error() string { return "execution reverted: " + e.Reason }

func (e RevertError) ErrorCode() int { return 3 }

func (e RevertError) ErrorData() interface{} {
	stringTy, _ := abi.NewType("string", "", nil)
	encoded, _ := abi.Arguments{{Type: stringTy}}.Pack(e.Reason)
	return hexutil.Encode(append(common.FromHex("0x08c379a0"), encoded...))
}

package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// Backend is the read-only slice of an RPC client the reader needs.
// *ethclient.Client satisfies it.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// MetaSink receives token metadata whenever it is read from chain.
type MetaSink interface {
	UpsertTokenMeta(ctx context.Context, tokenAddress, symbol string, decimals uint8) error
}

// Quote is an oracle price at the current supply point, in currency base units.
type Quote struct {
	Price *big.Int
	Fee   *big.Int
}

// Total is the amount a wrap at this quote costs.
func (q Quote) Total() *big.Int {
	return new(big.Int).Add(bigOrZero(q.Price), bigOrZero(q.Fee))
}

// Net is the amount an unwrap at this quote returns. It never goes negative.
func (q Quote) Net() *big.Int {
	out := new(big.Int).Sub(bigOrZero(q.Price), bigOrZero(q.Fee))
	if out.Sign() < 0 {
		return new(big.Int)
	}
	return out
}

type Strategy struct {
	App            common.Address
	Currency       common.Address
	BasePremium    *big.Int
	FeeRecipient   common.Address
	MintFeePercent uint16
	BurnFeePercent uint16
	AttributeData  []byte
}

// IsNative reports whether the agency settles in the chain's native asset.
func (s Strategy) IsNative() bool {
	return s.Currency == (common.Address{})
}

type TokenMeta struct {
	Address  common.Address
	Symbol   string
	Decimals uint8
}

// ApprovalState is the per-token and operator-wide approval view of an app.
type ApprovalState struct {
	Approved         common.Address
	OperatorApproved bool
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

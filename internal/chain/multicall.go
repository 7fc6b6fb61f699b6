package chain

import (
	"context"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/ggonzalez94/agencybot/internal/errors"
)

type Call3 struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

type Call3Result struct {
	Success    bool
	ReturnData []byte
}

// Aggregate3 executes calls in a single Multicall3 eth_call.
func (r *Reader) Aggregate3(ctx context.Context, calls []Call3) ([]Call3Result, error) {
	data, err := MulticallABI.Pack("aggregate3", calls)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack aggregate3", err)
	}
	raw, err := r.backend.CallContract(ctx, ethereum.CallMsg{To: &r.multicall, Data: data}, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeChainRead, "call aggregate3", err)
	}
	out, err := MulticallABI.Unpack("aggregate3", raw)
	if err != nil || len(out) != 1 {
		return nil, clierr.Wrap(clierr.CodeChainRead, "decode aggregate3", err)
	}
	var results []Call3Result
	if err := convertType(out[0], &results); err != nil {
		return nil, clierr.Wrap(clierr.CodeChainRead, "decode aggregate3 results", err)
	}
	return results, nil
}

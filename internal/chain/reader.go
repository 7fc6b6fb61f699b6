package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	clierr "github.com/ggonzalez94/agencybot/internal/errors"
	"github.com/ggonzalez94/agencybot/internal/registry"
)

const nativeDecimals = 18

// Reader performs typed, read-only contract queries. All RPC failures are
// returned as CodeChainRead errors with the underlying cause preserved.
type Reader struct {
	backend   Backend
	multicall common.Address
	sink      MetaSink
	chainID   int64
	log       zerolog.Logger
}

func NewReader(backend Backend, chainID int64, multicall common.Address, sink MetaSink, log zerolog.Logger) *Reader {
	if multicall == (common.Address{}) {
		multicall = common.HexToAddress(registry.Multicall3)
	}
	return &Reader{backend: backend, multicall: multicall, sink: sink, chainID: chainID, log: log}
}

func (r *Reader) TotalSupply(ctx context.Context, app common.Address) (*big.Int, error) {
	out, err := r.call(ctx, app, AppABI, "totalSupply")
	if err != nil {
		return nil, err
	}
	return firstBig(out, "totalSupply")
}

func (r *Reader) MaxSupply(ctx context.Context, app common.Address) (*big.Int, error) {
	out, err := r.call(ctx, app, AppABI, "getMaxSupply")
	if err != nil {
		return nil, err
	}
	return firstBig(out, "getMaxSupply")
}

// WrapQuote reads the wrap oracle at the app's current supply point.
func (r *Reader) WrapQuote(ctx context.Context, agency, app common.Address) (Quote, error) {
	return r.oracle(ctx, "getWrapOracle", agency, app)
}

// UnwrapQuote reads the unwrap oracle at the app's current supply point.
func (r *Reader) UnwrapQuote(ctx context.Context, agency, app common.Address) (Quote, error) {
	return r.oracle(ctx, "getUnwrapOracle", agency, app)
}

func (r *Reader) oracle(ctx context.Context, method string, agency, app common.Address) (Quote, error) {
	supply, err := r.TotalSupply(ctx, app)
	if err != nil {
		return Quote{}, err
	}
	point := common.BigToHash(supply)
	out, err := r.call(ctx, agency, AgencyABI, method, point.Bytes())
	if err != nil {
		return Quote{}, err
	}
	if len(out) != 2 {
		return Quote{}, clierr.New(clierr.CodeChainRead, fmt.Sprintf("decode %s: unexpected output", method))
	}
	price, ok1 := out[0].(*big.Int)
	fee, ok2 := out[1].(*big.Int)
	if !ok1 || !ok2 {
		return Quote{}, clierr.New(clierr.CodeChainRead, fmt.Sprintf("decode %s: unexpected output types", method))
	}
	return Quote{Price: price, Fee: fee}, nil
}

type strategyAsset struct {
	Currency       common.Address
	BasePremium    *big.Int
	FeeRecipient   common.Address
	MintFeePercent uint16
	BurnFeePercent uint16
}

func (r *Reader) Strategy(ctx context.Context, agency common.Address) (Strategy, error) {
	out, err := r.call(ctx, agency, AgencyABI, "getStrategy")
	if err != nil {
		return Strategy{}, err
	}
	if len(out) != 3 {
		return Strategy{}, clierr.New(clierr.CodeChainRead, "decode getStrategy: unexpected output")
	}
	app, ok := out[0].(common.Address)
	if !ok {
		return Strategy{}, clierr.New(clierr.CodeChainRead, "decode getStrategy: app is not an address")
	}
	var asset strategyAsset
	if err := convertType(out[1], &asset); err != nil {
		return Strategy{}, clierr.Wrap(clierr.CodeChainRead, "decode getStrategy asset", err)
	}
	attr, _ := out[2].([]byte)
	return Strategy{
		App:            app,
		Currency:       asset.Currency,
		BasePremium:    asset.BasePremium,
		FeeRecipient:   asset.FeeRecipient,
		MintFeePercent: asset.MintFeePercent,
		BurnFeePercent: asset.BurnFeePercent,
		AttributeData:  attr,
	}, nil
}

func (r *Reader) Name(ctx context.Context, contract common.Address) (string, error) {
	out, err := r.call(ctx, contract, AppABI, "name")
	if err != nil {
		return "", err
	}
	return firstString(out, "name")
}

func (r *Reader) Symbol(ctx context.Context, contract common.Address) (string, error) {
	out, err := r.call(ctx, contract, AppABI, "symbol")
	if err != nil {
		return "", err
	}
	return firstString(out, "symbol")
}

func (r *Reader) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	if token == (common.Address{}) {
		return nativeDecimals, nil
	}
	out, err := r.call(ctx, token, ERC20ABI, "decimals")
	if err != nil {
		return 0, err
	}
	if len(out) != 1 {
		return 0, clierr.New(clierr.CodeChainRead, "decode decimals: unexpected output")
	}
	v, ok := out[0].(uint8)
	if !ok {
		return 0, clierr.New(clierr.CodeChainRead, "decode decimals: unexpected output type")
	}
	return v, nil
}

// ERC20Name returns the token name, or the native symbol for the zero address.
func (r *Reader) ERC20Name(ctx context.Context, token common.Address) (string, error) {
	if token == (common.Address{}) {
		return registry.NativeSymbol(r.chainID), nil
	}
	out, err := r.call(ctx, token, ERC20ABI, "name")
	if err != nil {
		return "", err
	}
	return firstString(out, "name")
}

func (r *Reader) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	out, err := r.call(ctx, token, ERC20ABI, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return firstBig(out, "allowance")
}

// Balance returns the owner's balance of token, or its native balance for the
// zero address.
func (r *Reader) Balance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	if token == (common.Address{}) {
		bal, err := r.backend.BalanceAt(ctx, owner, nil)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeChainRead, "read native balance", err)
		}
		return bal, nil
	}
	out, err := r.call(ctx, token, ERC20ABI, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return firstBig(out, "balanceOf")
}

// OwnerOf returns found=false when the token does not exist (the call reverts
// or resolves to the zero address). Other failures are ChainRead errors.
func (r *Reader) OwnerOf(ctx context.Context, app common.Address, tokenID *big.Int) (common.Address, bool, error) {
	out, err := r.call(ctx, app, AppABI, "ownerOf", tokenID)
	if err != nil {
		if IsRevert(err) {
			return common.Address{}, false, nil
		}
		return common.Address{}, false, err
	}
	if len(out) != 1 {
		return common.Address{}, false, clierr.New(clierr.CodeChainRead, "decode ownerOf: unexpected output")
	}
	owner, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, false, clierr.New(clierr.CodeChainRead, "decode ownerOf: unexpected output type")
	}
	if owner == (common.Address{}) {
		return common.Address{}, false, nil
	}
	return owner, true, nil
}

// ApprovalState batches getApproved and isApprovedForAll into one aggregate3
// call. A failed getApproved sub-call reads as no token approval.
func (r *Reader) ApprovalState(ctx context.Context, app common.Address, tokenID *big.Int, owner, operator common.Address) (ApprovalState, error) {
	getApproved, err := AppABI.Pack("getApproved", tokenID)
	if err != nil {
		return ApprovalState{}, clierr.Wrap(clierr.CodeInternal, "pack getApproved", err)
	}
	forAll, err := AppABI.Pack("isApprovedForAll", owner, operator)
	if err != nil {
		return ApprovalState{}, clierr.Wrap(clierr.CodeInternal, "pack isApprovedForAll", err)
	}
	results, err := r.Aggregate3(ctx, []Call3{
		{Target: app, AllowFailure: true, CallData: getApproved},
		{Target: app, AllowFailure: true, CallData: forAll},
	})
	if err != nil {
		return ApprovalState{}, err
	}
	if len(results) != 2 {
		return ApprovalState{}, clierr.New(clierr.CodeChainRead, "approval batch returned unexpected result count")
	}

	var state ApprovalState
	if results[0].Success {
		out, err := AppABI.Unpack("getApproved", results[0].ReturnData)
		if err == nil && len(out) == 1 {
			state.Approved, _ = out[0].(common.Address)
		}
	}
	if !results[1].Success {
		return ApprovalState{}, clierr.New(clierr.CodeChainRead, "isApprovedForAll failed inside approval batch")
	}
	out, err := AppABI.Unpack("isApprovedForAll", results[1].ReturnData)
	if err != nil || len(out) != 1 {
		return ApprovalState{}, clierr.New(clierr.CodeChainRead, "decode isApprovedForAll")
	}
	state.OperatorApproved, _ = out[0].(bool)
	return state, nil
}

// NameExists reports whether name is already registered under the app.
// The name is checked exactly as given; callers normalize first.
func (r *Reader) NameExists(ctx context.Context, app common.Address, name string) (bool, error) {
	symbol, err := r.Symbol(ctx, app)
	if err != nil {
		return false, err
	}
	node := NameNode(symbol, name)
	out, err := r.call(ctx, app, AppABI, "isRecordExists", node)
	if err != nil {
		return false, err
	}
	if len(out) != 1 {
		return false, clierr.New(clierr.CodeChainRead, "decode isRecordExists: unexpected output")
	}
	exists, ok := out[0].(bool)
	if !ok {
		return false, clierr.New(clierr.CodeChainRead, "decode isRecordExists: unexpected output type")
	}
	return exists, nil
}

// TokenMeta reads symbol and decimals and records them in the metadata sink.
// Sink failures are logged and do not fail the read.
func (r *Reader) TokenMeta(ctx context.Context, token common.Address) (TokenMeta, error) {
	meta := TokenMeta{Address: token}
	if token == (common.Address{}) {
		meta.Symbol = registry.NativeSymbol(r.chainID)
		meta.Decimals = nativeDecimals
		return meta, nil
	}
	symbol, err := r.Symbol(ctx, token)
	if err != nil {
		return TokenMeta{}, err
	}
	decimals, err := r.Decimals(ctx, token)
	if err != nil {
		return TokenMeta{}, err
	}
	meta.Symbol = symbol
	meta.Decimals = decimals
	if r.sink != nil {
		if err := r.sink.UpsertTokenMeta(ctx, token.Hex(), symbol, decimals); err != nil {
			r.log.Warn().Err(err).Str("token", token.Hex()).Msg("token metadata upsert failed")
		}
	}
	return meta, nil
}

func (r *Reader) call(ctx context.Context, to common.Address, contract abi.ABI, method string, args ...any) ([]any, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack "+method, err)
	}
	raw, err := r.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeChainRead, fmt.Sprintf("call %s on %s", method, to.Hex()), err)
	}
	out, err := contract.Unpack(method, raw)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeChainRead, fmt.Sprintf("decode %s from %s", method, to.Hex()), err)
	}
	return out, nil
}

func firstBig(out []any, method string) (*big.Int, error) {
	if len(out) != 1 {
		return nil, clierr.New(clierr.CodeChainRead, "decode "+method+": unexpected output")
	}
	v, ok := out[0].(*big.Int)
	if !ok || v == nil {
		return nil, clierr.New(clierr.CodeChainRead, "decode "+method+": unexpected output type")
	}
	return v, nil
}

func firstString(out []any, method string) (string, error) {
	if len(out) != 1 {
		return "", clierr.New(clierr.CodeChainRead, "decode "+method+": unexpected output")
	}
	v, ok := out[0].(string)
	if !ok {
		return "", clierr.New(clierr.CodeChainRead, "decode "+method+": unexpected output type")
	}
	return v, nil
}

// convertType copies an abi-decoded anonymous tuple into dst by field name.
func convertType(in any, dst any) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("convert abi tuple: %v", rec)
		}
	}()
	abi.ConvertType(in, dst)
	return nil
}

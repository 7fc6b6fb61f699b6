package execution

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/ggonzalez94/agencybot/internal/chain"
	clierr "github.com/ggonzalez94/agencybot/internal/errors"
	"github.com/ggonzalez94/agencybot/internal/execution/signer"
)

// TxBackend is the RPC surface needed to simulate, price, sign and broadcast.
// *ethclient.Client satisfies it.
type TxBackend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	ChainID(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

type ExecuteOptions struct {
	PollInterval time.Duration
	// ConfirmTimeout bounds the receipt wait. Zero returns right after broadcast.
	ConfirmTimeout     time.Duration
	GasMultiplier      float64
	MaxFeeGwei         string
	MaxPriorityFeeGwei string
}

func DefaultExecuteOptions() ExecuteOptions {
	return ExecuteOptions{
		PollInterval:  2 * time.Second,
		GasMultiplier: 1.2,
	}
}

type Executor struct {
	backend  TxBackend
	recorder Recorder
	opts     ExecuteOptions
	log      zerolog.Logger
}

func NewExecutor(backend TxBackend, recorder Recorder, opts ExecuteOptions, log zerolog.Logger) *Executor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.GasMultiplier <= 1 {
		opts.GasMultiplier = 1.2
	}
	return &Executor{backend: backend, recorder: recorder, opts: opts, log: log}
}

// Execute runs every pending step of action in order. Each step is simulated
// with eth_call first; a failed simulation aborts before anything is signed.
// Nothing is retried.
func (e *Executor) Execute(ctx context.Context, action *Action, txSigner signer.Signer) error {
	if action == nil {
		return clierr.New(clierr.CodeInternal, "missing action")
	}
	if txSigner == nil {
		return clierr.New(clierr.CodeSigner, "missing signer")
	}
	if len(action.Steps) == 0 {
		return clierr.New(clierr.CodeUsage, "action has no executable steps")
	}
	action.Status = ActionStatusRunning
	action.FromAddress = txSigner.Address().Hex()
	action.Touch()
	e.record(action)

	for i := range action.Steps {
		step := &action.Steps[i]
		if step.Status == StepStatusConfirmed || step.Status == StepStatusSubmitted {
			continue
		}
		if strings.TrimSpace(step.Target) == "" || !common.IsHexAddress(step.Target) {
			markStepFailed(action, step, "invalid target")
			e.record(action)
			return clierr.New(clierr.CodeInputValidation, "invalid target for action step")
		}
		if err := e.executeStep(ctx, txSigner, step); err != nil {
			markStepFailed(action, step, err.Error())
			e.record(action)
			e.log.Warn().Err(err).Str("action_id", action.ActionID).Str("step", step.StepID).Msg("step failed")
			return err
		}
		action.Touch()
		e.record(action)
	}

	action.Status = ActionStatusCompleted
	for _, step := range action.Steps {
		if step.Status != StepStatusConfirmed {
			action.Status = ActionStatusSubmitted
			break
		}
	}
	action.Touch()
	e.record(action)
	return nil
}

func (e *Executor) executeStep(ctx context.Context, txSigner signer.Signer, step *ActionStep) error {
	chainID, err := e.backend.ChainID(ctx)
	if err != nil {
		return clierr.Wrap(clierr.CodeUnavailable, "read chain id", err)
	}
	if step.ChainID != "" {
		expected := fmt.Sprintf("eip155:%d", chainID.Int64())
		if !strings.EqualFold(strings.TrimSpace(step.ChainID), expected) {
			return clierr.New(clierr.CodeInputValidation, fmt.Sprintf("step chain mismatch: expected %s, got %s", expected, step.ChainID))
		}
	}
	target := common.HexToAddress(step.Target)
	data, err := decodeHex(step.Data)
	if err != nil {
		return clierr.Wrap(clierr.CodeInputValidation, "decode step calldata", err)
	}
	value, ok := new(big.Int).SetString(strings.TrimSpace(step.Value), 10)
	if !ok || value.Sign() < 0 {
		return clierr.New(clierr.CodeInputValidation, "invalid step value")
	}
	if err := validateStepPolicy(step, txSigner.Address(), data); err != nil {
		return err
	}
	msg := ethereum.CallMsg{From: txSigner.Address(), To: &target, Value: value, Data: data}

	out, err := e.backend.CallContract(ctx, msg, nil)
	if err != nil {
		return wrapEVMExecutionError(clierr.CodeSimulationRevert, "simulate step (eth_call)", err)
	}
	step.Status = StepStatusSimulated
	step.SimulatedOutput = "0x" + hex.EncodeToString(out)

	gasLimit, err := e.backend.EstimateGas(ctx, msg)
	if err != nil {
		return wrapEVMExecutionError(clierr.CodeSimulationRevert, "estimate gas", err)
	}
	gasLimit = uint64(float64(gasLimit) * e.opts.GasMultiplier)

	tipCap, err := e.resolveTipCap(ctx)
	if err != nil {
		return err
	}
	header, err := e.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return clierr.Wrap(clierr.CodeUnavailable, "fetch latest header", err)
	}
	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(1_000_000_000)
	}
	feeCap, err := resolveFeeCap(baseFee, tipCap, e.opts.MaxFeeGwei)
	if err != nil {
		return err
	}

	signed, err := e.signAndSend(ctx, chainID, txSigner, &types.DynamicFeeTx{
		ChainID:   chainID,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &target,
		Value:     value,
		Data:      data,
	})
	if err != nil {
		return err
	}
	step.Status = StepStatusSubmitted
	step.TxHash = signed.Hash().Hex()
	e.log.Info().Str("step", step.StepID).Str("tx_hash", step.TxHash).Uint64("nonce", signed.Nonce()).Msg("transaction broadcast")

	if e.opts.ConfirmTimeout <= 0 {
		return nil
	}
	return e.waitForReceipt(ctx, step, signed.Hash())
}

// signAndSend holds the signer's nonce lock from nonce read through broadcast.
func (e *Executor) signAndSend(ctx context.Context, chainID *big.Int, txSigner signer.Signer, tx *types.DynamicFeeTx) (*types.Transaction, error) {
	unlock := acquireSignerNonceLock(chainID, txSigner.Address())
	defer unlock()

	nonce, err := e.backend.PendingNonceAt(ctx, txSigner.Address())
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "fetch nonce", err)
	}
	tx.Nonce = nonce
	signed, err := txSigner.SignTx(chainID, types.NewTx(tx))
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSigner, "sign transaction", err)
	}
	if err := e.backend.SendTransaction(ctx, signed); err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "broadcast transaction", err)
	}
	return signed, nil
}

func (e *Executor) waitForReceipt(ctx context.Context, step *ActionStep, hash common.Hash) error {
	waitCtx, cancel := context.WithTimeout(ctx, e.opts.ConfirmTimeout)
	defer cancel()
	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()
	for {
		receipt, err := e.backend.TransactionReceipt(waitCtx, hash)
		if err == nil && receipt != nil {
			if receipt.BlockNumber != nil {
				step.BlockNumber = receipt.BlockNumber.Uint64()
			}
			if receipt.Status == types.ReceiptStatusSuccessful {
				step.Status = StepStatusConfirmed
				return nil
			}
			return clierr.New(clierr.CodeUnavailable, "transaction reverted on-chain")
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			e.log.Debug().Err(err).Str("tx_hash", hash.Hex()).Msg("receipt poll failed")
		}
		select {
		case <-waitCtx.Done():
			return clierr.Wrap(clierr.CodeTimeout, "timed out waiting for receipt", waitCtx.Err())
		case <-ticker.C:
		}
	}
}

func (e *Executor) resolveTipCap(ctx context.Context) (*big.Int, error) {
	if strings.TrimSpace(e.opts.MaxPriorityFeeGwei) != "" {
		v, err := parseGwei(e.opts.MaxPriorityFeeGwei)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "parse max priority fee", err)
		}
		return v, nil
	}
	tipCap, err := e.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return big.NewInt(2_000_000_000), nil // 2 gwei fallback
	}
	return tipCap, nil
}

func (e *Executor) record(action *Action) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.Save(*action); err != nil {
		e.log.Error().Err(err).Str("action_id", action.ActionID).Msg("persist action")
	}
}

func resolveFeeCap(baseFee, tipCap *big.Int, overrideGwei string) (*big.Int, error) {
	if strings.TrimSpace(overrideGwei) != "" {
		v, err := parseGwei(overrideGwei)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "parse max fee", err)
		}
		if v.Cmp(tipCap) < 0 {
			return nil, clierr.New(clierr.CodeUsage, "max fee must be >= max priority fee")
		}
		return v, nil
	}
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(2))
	feeCap.Add(feeCap, tipCap)
	return feeCap, nil
}

func parseGwei(v string) (*big.Int, error) {
	clean := strings.TrimSpace(v)
	if clean == "" {
		return nil, fmt.Errorf("empty gwei value")
	}
	rat, ok := new(big.Rat).SetString(clean)
	if !ok {
		return nil, fmt.Errorf("invalid numeric value %q", v)
	}
	if rat.Sign() < 0 {
		return nil, fmt.Errorf("value must be non-negative")
	}
	rat.Mul(rat, big.NewRat(1_000_000_000, 1))
	if !rat.IsInt() {
		return nil, fmt.Errorf("value must resolve to an integer wei amount")
	}
	return new(big.Int).Set(rat.Num()), nil
}

// wrapEVMExecutionError attaches the decoded revert reason, when present.
func wrapEVMExecutionError(code clierr.Code, message string, err error) error {
	if reason := chain.RevertReason(err); reason != "" {
		return clierr.Wrap(code, fmt.Sprintf("%s: %s", message, reason), err)
	}
	return clierr.Wrap(code, message, err)
}

func markStepFailed(action *Action, step *ActionStep, msg string) {
	step.Status = StepStatusFailed
	step.Error = msg
	action.Status = ActionStatusFailed
	action.Touch()
}

func decodeHex(v string) ([]byte, error) {
	clean := strings.TrimSpace(v)
	clean = strings.TrimPrefix(clean, "0x")
	if clean == "" {
		return []byte{}, nil
	}
	if len(clean)%2 != 0 {
		clean = "0" + clean
	}
	buf, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return buf, nil
}

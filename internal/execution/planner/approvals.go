package planner

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/ggonzalez94/agencybot/internal/chain"
	clierr "github.com/ggonzalez94/agencybot/internal/errors"
	"github.com/ggonzalez94/agencybot/internal/execution"
	"github.com/ggonzalez94/agencybot/internal/id"
)

type ApprovalRequest struct {
	Chain   id.Chain
	Token   common.Address
	Symbol  string
	Amount  *big.Int
	Sender  common.Address
	Spender common.Address
}

func BuildApprovalAction(req ApprovalRequest) (execution.Action, error) {
	if req.Sender == (common.Address{}) {
		return execution.Action{}, clierr.New(clierr.CodeUsage, "approval requires sender address")
	}
	if req.Spender == (common.Address{}) {
		return execution.Action{}, clierr.New(clierr.CodeUsage, "approval requires spender address")
	}
	if req.Token == (common.Address{}) {
		return execution.Action{}, clierr.New(clierr.CodeInputValidation, "approval requires ERC20 token address")
	}
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return execution.Action{}, clierr.New(clierr.CodeInputValidation, "approval amount must be a positive integer in base units")
	}

	approveData, err := chain.ERC20ABI.Pack("approve", req.Spender, req.Amount)
	if err != nil {
		return execution.Action{}, clierr.Wrap(clierr.CodeInternal, "pack approval calldata", err)
	}
	action := execution.NewAction(execution.NewActionID(), execution.IntentApprove, req.Chain.CAIP2, execution.Constraints{})
	action.FromAddress = req.Sender.Hex()
	action.ToAddress = req.Spender.Hex()
	action.InputAmount = req.Amount.String()
	action.Metadata = map[string]any{
		"token":   req.Token.Hex(),
		"spender": req.Spender.Hex(),
	}
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		symbol = "token"
	}
	action.Steps = append(action.Steps, execution.ActionStep{
		StepID:          "approve-token",
		Type:            execution.StepTypeApproval,
		Status:          execution.StepStatusPending,
		ChainID:         req.Chain.CAIP2,
		Description:     fmt.Sprintf("Approve %s for spender", symbol),
		Target:          req.Token.Hex(),
		Data:            hexutil.Encode(approveData),
		Value:           "0",
		ExpectedOutputs: map[string]string{"spender": req.Spender.Hex()},
	})
	return action, nil
}

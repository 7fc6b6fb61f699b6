package planner

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/ggonzalez94/agencybot/internal/chain"
	clierr "github.com/ggonzalez94/agencybot/internal/errors"
	"github.com/ggonzalez94/agencybot/internal/execution"
	"github.com/ggonzalez94/agencybot/internal/id"
)

const (
	RouteAgency = "agency"
	RouteRouter = "router"
)

type WrapRequest struct {
	Chain  id.Chain
	Sender common.Address
	Agency common.Address
	// Router is required when Native is false.
	Router  common.Address
	Native  bool
	Name    string
	MaxCost *big.Int
}

// BuildWrapAction plans a single wrap step. Native agencies are called
// directly with value = MaxCost; ERC-20 agencies go through the Router which
// pulls MaxCost under a standing allowance. MaxCost is also the on-chain
// slippage price on both paths.
func BuildWrapAction(req WrapRequest) (execution.Action, error) {
	if req.MaxCost == nil || req.MaxCost.Sign() <= 0 {
		return execution.Action{}, clierr.New(clierr.CodeInputValidation, "wrap max cost must be positive")
	}
	if req.Sender == (common.Address{}) {
		return execution.Action{}, clierr.New(clierr.CodeInputValidation, "wrap requires sender address")
	}
	if req.Agency == (common.Address{}) {
		return execution.Action{}, clierr.New(clierr.CodeInputValidation, "wrap requires agency address")
	}
	if err := chain.ValidateName(req.Name); err != nil {
		return execution.Action{}, err
	}

	action := execution.NewAction(execution.NewActionID(), execution.IntentWrap, req.Chain.CAIP2, execution.Constraints{MaxCost: req.MaxCost.String()})
	action.FromAddress = req.Sender.Hex()
	action.ToAddress = req.Agency.Hex()
	action.InputAmount = req.MaxCost.String()
	action.Metadata = map[string]any{"name": req.Name, "agency": req.Agency.Hex()}

	step := execution.ActionStep{
		StepID:          "wrap",
		Type:            execution.StepTypeWrap,
		Status:          execution.StepStatusPending,
		ChainID:         req.Chain.CAIP2,
		Description:     fmt.Sprintf("Wrap %q on agency %s", req.Name, req.Agency.Hex()),
		ExpectedOutputs: map[string]string{"agency": req.Agency.Hex()},
	}

	if req.Native {
		nameArgs, err := EncodeNameArgs(req.Name)
		if err != nil {
			return execution.Action{}, clierr.Wrap(clierr.CodeInternal, "pack wrap name", err)
		}
		args, err := EncodeAgencyArgs(req.MaxCost, nameArgs)
		if err != nil {
			return execution.Action{}, clierr.Wrap(clierr.CodeInternal, "pack wrap args", err)
		}
		data, err := chain.AgencyABI.Pack("wrap", req.Sender, args)
		if err != nil {
			return execution.Action{}, clierr.Wrap(clierr.CodeInternal, "pack wrap calldata", err)
		}
		action.Route = RouteAgency
		step.Target = req.Agency.Hex()
		step.Data = hexutil.Encode(data)
		step.Value = req.MaxCost.String()
	} else {
		if req.Router == (common.Address{}) {
			return execution.Action{}, clierr.New(clierr.CodeUsage, "no agency router configured for this chain")
		}
		data, err := chain.RouterABI.Pack("wrap", req.Agency, req.MaxCost, req.Name)
		if err != nil {
			return execution.Action{}, clierr.Wrap(clierr.CodeInternal, "pack router wrap calldata", err)
		}
		action.Route = RouteRouter
		step.Target = req.Router.Hex()
		step.Data = hexutil.Encode(data)
		step.Value = "0"
	}
	action.Steps = append(action.Steps, step)
	return action, nil
}

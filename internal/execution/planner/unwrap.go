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

type UnwrapRequest struct {
	Chain   id.Chain
	Sender  common.Address
	Agency  common.Address
	TokenID *big.Int
	// MinProceeds is passed as the unwrap slippage price. Nil or zero means
	// no bound.
	MinProceeds *big.Int
}

func BuildUnwrapAction(req UnwrapRequest) (execution.Action, error) {
	if req.TokenID == nil || req.TokenID.Sign() < 0 {
		return execution.Action{}, clierr.New(clierr.CodeInputValidation, "token id must be non-negative")
	}
	if req.Sender == (common.Address{}) {
		return execution.Action{}, clierr.New(clierr.CodeInputValidation, "unwrap requires sender address")
	}
	if req.Agency == (common.Address{}) {
		return execution.Action{}, clierr.New(clierr.CodeInputValidation, "unwrap requires agency address")
	}
	minProceeds := new(big.Int)
	if req.MinProceeds != nil {
		if req.MinProceeds.Sign() < 0 {
			return execution.Action{}, clierr.New(clierr.CodeInputValidation, "min proceeds must be non-negative")
		}
		minProceeds.Set(req.MinProceeds)
	}

	args, err := EncodeAgencyArgs(minProceeds, nil)
	if err != nil {
		return execution.Action{}, clierr.Wrap(clierr.CodeInternal, "pack unwrap args", err)
	}
	data, err := chain.AgencyABI.Pack("unwrap", req.Sender, req.TokenID, args)
	if err != nil {
		return execution.Action{}, clierr.Wrap(clierr.CodeInternal, "pack unwrap calldata", err)
	}

	action := execution.NewAction(execution.NewActionID(), execution.IntentUnwrap, req.Chain.CAIP2, execution.Constraints{MinProceeds: minProceeds.String()})
	action.Route = RouteAgency
	action.FromAddress = req.Sender.Hex()
	action.ToAddress = req.Agency.Hex()
	action.Metadata = map[string]any{"token_id": req.TokenID.String(), "agency": req.Agency.Hex()}
	action.Steps = append(action.Steps, execution.ActionStep{
		StepID:      "unwrap",
		Type:        execution.StepTypeUnwrap,
		Status:      execution.StepStatusPending,
		ChainID:     req.Chain.CAIP2,
		Description: fmt.Sprintf("Unwrap token #%s on agency %s", req.TokenID.String(), req.Agency.Hex()),
		Target:      req.Agency.Hex(),
		Data:        hexutil.Encode(data),
		Value:       "0",
	})
	return action, nil
}

package txrouter

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ggonzalez94/agencybot/internal/chain"
	clierr "github.com/ggonzalez94/agencybot/internal/errors"
	"github.com/ggonzalez94/agencybot/internal/events"
	"github.com/ggonzalez94/agencybot/internal/execution"
	"github.com/ggonzalez94/agencybot/internal/execution/planner"
	"github.com/ggonzalez94/agencybot/internal/policy"
)

type WrapRequest struct {
	Name       string
	MaxCost    *big.Int
	Agency     common.Address
	ExternalID int64
}

type WrapResult struct {
	TokenID     *big.Int
	TxHash      string
	ActionID    string
	Route       string
	Quote       chain.Quote
	ExplorerURL string
}

// Wrap mints a wrapper token named req.Name for the user. The quote is read
// after MaxCost is known and MaxCost is also the on-chain slippage price, so a
// price that moves past it reverts in simulation instead of overspending.
func (r *Router) Wrap(ctx context.Context, req WrapRequest) (WrapResult, error) {
	start := time.Now()
	var action *execution.Action
	res, err := r.wrap(ctx, req, &action)
	route := ""
	if action != nil {
		route = action.Route
	}
	r.metrics.ObserveOperation(execution.IntentWrap, route, err, time.Since(start))
	if err != nil {
		r.publish(ctx, r.event(events.TypeWrapFailed, req.ExternalID, action, err))
		return WrapResult{}, err
	}
	ev := r.event(events.TypeWrapSubmitted, req.ExternalID, action, nil)
	ev.TokenID = res.TokenID.String()
	r.publish(ctx, ev)
	return res, nil
}

func (r *Router) wrap(ctx context.Context, req WrapRequest, planned **execution.Action) (WrapResult, error) {
	name := chain.NormalizeName(req.Name)
	if err := chain.ValidateName(name); err != nil {
		return WrapResult{}, err
	}
	if req.MaxCost == nil || req.MaxCost.Sign() <= 0 {
		return WrapResult{}, clierr.New(clierr.CodeInputValidation, "max cost must be positive")
	}
	if err := requireAddress(req.Agency, "agency"); err != nil {
		return WrapResult{}, err
	}

	strategy, err := r.reader.Strategy(ctx, req.Agency)
	if err != nil {
		return WrapResult{}, typedChainErr("read agency strategy", err)
	}
	exists, err := r.reader.NameExists(ctx, strategy.App, name)
	if err != nil {
		return WrapResult{}, typedChainErr("check name", err)
	}
	if exists {
		return WrapResult{}, clierr.New(clierr.CodeInputValidation, fmt.Sprintf("name %q is already taken", name))
	}
	quote, err := r.reader.WrapQuote(ctx, req.Agency, strategy.App)
	if err != nil {
		return WrapResult{}, typedChainErr("read wrap quote", err)
	}
	if err := policy.CheckSlippage(req.MaxCost, quote); err != nil {
		return WrapResult{}, err
	}

	sender, err := r.keys.ResolveAddress(ctx, req.ExternalID)
	if err != nil {
		return WrapResult{}, err
	}
	native := strategy.IsNative()
	if !native {
		allowance, err := r.reader.Allowance(ctx, strategy.Currency, sender, r.cfg.Router)
		if err != nil {
			return WrapResult{}, typedChainErr("read router allowance", err)
		}
		if allowance.Cmp(req.MaxCost) < 0 {
			return WrapResult{}, clierr.New(clierr.CodeInputValidation, "router allowance does not cover max cost; approve the router first")
		}
	}

	action, err := planner.BuildWrapAction(planner.WrapRequest{
		Chain:   r.cfg.Chain,
		Sender:  sender,
		Agency:  req.Agency,
		Router:  r.cfg.Router,
		Native:  native,
		Name:    name,
		MaxCost: req.MaxCost,
	})
	if err != nil {
		return WrapResult{}, err
	}
	*planned = &action
	r.log.Info().Str("action_id", action.ActionID).Str("route", action.Route).Str("agency", req.Agency.Hex()).
		Str("name", name).Str("max_cost", req.MaxCost.String()).Str("quote", quote.Total().String()).Msg("wrap planned")

	if err := r.run(ctx, req.ExternalID, &action); err != nil {
		return WrapResult{}, err
	}
	tokenID, err := simulatedTokenID(action)
	if err != nil {
		return WrapResult{}, err
	}
	hash := action.LastTxHash()
	return WrapResult{
		TokenID:     tokenID,
		TxHash:      hash,
		ActionID:    action.ActionID,
		Route:       action.Route,
		Quote:       quote,
		ExplorerURL: r.explorerURL(hash),
	}, nil
}

// simulatedTokenID decodes the token id returned by the simulated wrap call.
func simulatedTokenID(action execution.Action) (*big.Int, error) {
	if len(action.Steps) == 0 {
		return nil, clierr.New(clierr.CodeInternal, "wrap action has no steps")
	}
	raw := common.FromHex(action.Steps[len(action.Steps)-1].SimulatedOutput)
	contract := chain.AgencyABI
	if action.Route == planner.RouteRouter {
		contract = chain.RouterABI
	}
	out, err := contract.Unpack("wrap", raw)
	if err != nil || len(out) == 0 {
		return nil, clierr.Wrap(clierr.CodeChainRead, "decode simulated token id", err)
	}
	tokenID, ok := out[0].(*big.Int)
	if !ok {
		return nil, clierr.New(clierr.CodeChainRead, "unexpected simulated wrap output")
	}
	return tokenID, nil
}

package txrouter

import (
	"context"
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

type UnwrapRequest struct {
	TokenID    *big.Int
	Agency     common.Address
	ExternalID int64
	// MinProceeds bounds the net redemption. Nil or zero disables the check.
	MinProceeds *big.Int
}

type UnwrapResult struct {
	TxHash      string
	ActionID    string
	Quote       chain.Quote
	ExplorerURL string
}

func (r *Router) Unwrap(ctx context.Context, req UnwrapRequest) (UnwrapResult, error) {
	start := time.Now()
	var action *execution.Action
	res, err := r.unwrap(ctx, req, &action)
	r.metrics.ObserveOperation(execution.IntentUnwrap, planner.RouteAgency, err, time.Since(start))
	kind := events.TypeUnwrapSubmitted
	if err != nil {
		kind = events.TypeUnwrapFailed
	}
	ev := r.event(kind, req.ExternalID, action, err)
	if req.TokenID != nil {
		ev.TokenID = req.TokenID.String()
	}
	r.publish(ctx, ev)
	if err != nil {
		return UnwrapResult{}, err
	}
	return res, nil
}

func (r *Router) unwrap(ctx context.Context, req UnwrapRequest, planned **execution.Action) (UnwrapResult, error) {
	if req.TokenID == nil || req.TokenID.Sign() < 0 {
		return UnwrapResult{}, clierr.New(clierr.CodeInputValidation, "token id must be non-negative")
	}
	if err := requireAddress(req.Agency, "agency"); err != nil {
		return UnwrapResult{}, err
	}
	strategy, err := r.reader.Strategy(ctx, req.Agency)
	if err != nil {
		return UnwrapResult{}, typedChainErr("read agency strategy", err)
	}
	allowed, err := r.auth.IsApproveOrOwner(ctx, strategy.App, req.TokenID, req.ExternalID)
	if err != nil {
		return UnwrapResult{}, typedChainErr("check token authorization", err)
	}
	if !allowed {
		return UnwrapResult{}, clierr.New(clierr.CodeAuthorizationDenied, "you are not the owner or an approved operator of this token")
	}
	quote, err := r.reader.UnwrapQuote(ctx, req.Agency, strategy.App)
	if err != nil {
		return UnwrapResult{}, typedChainErr("read unwrap quote", err)
	}
	if err := policy.CheckProceeds(req.MinProceeds, quote); err != nil {
		return UnwrapResult{}, err
	}

	sender, err := r.keys.ResolveAddress(ctx, req.ExternalID)
	if err != nil {
		return UnwrapResult{}, err
	}
	action, err := planner.BuildUnwrapAction(planner.UnwrapRequest{
		Chain:       r.cfg.Chain,
		Sender:      sender,
		Agency:      req.Agency,
		TokenID:     req.TokenID,
		MinProceeds: req.MinProceeds,
	})
	if err != nil {
		return UnwrapResult{}, err
	}
	*planned = &action
	r.log.Info().Str("action_id", action.ActionID).Str("agency", req.Agency.Hex()).
		Str("token_id", req.TokenID.String()).Str("quote_net", quote.Net().String()).Msg("unwrap planned")

	if err := r.run(ctx, req.ExternalID, &action); err != nil {
		return UnwrapResult{}, err
	}
	hash := action.LastTxHash()
	return UnwrapResult{
		TxHash:      hash,
		ActionID:    action.ActionID,
		Quote:       quote,
		ExplorerURL: r.explorerURL(hash),
	}, nil
}

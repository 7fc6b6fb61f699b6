package txrouter

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"

	clierr "github.com/ggonzalez94/agencybot/internal/errors"
	"github.com/ggonzalez94/agencybot/internal/events"
	"github.com/ggonzalez94/agencybot/internal/execution"
	"github.com/ggonzalez94/agencybot/internal/execution/planner"
)

type ApproveResult struct {
	// AlreadyApproved is set when the allowance was already unlimited and
	// nothing was sent.
	AlreadyApproved bool
	TxHash          string
	ActionID        string
	ExplorerURL     string
}

// Approve grants the Router an unlimited allowance on token.
func (r *Router) Approve(ctx context.Context, token common.Address, externalID int64) (ApproveResult, error) {
	start := time.Now()
	var action *execution.Action
	res, err := r.approve(ctx, token, externalID, &action)
	if res.AlreadyApproved {
		return res, nil
	}
	r.metrics.ObserveOperation(execution.IntentApprove, planner.RouteRouter, err, time.Since(start))
	kind := events.TypeApproveSubmitted
	if err != nil {
		kind = events.TypeApproveFailed
	}
	r.publish(ctx, r.event(kind, externalID, action, err))
	if err != nil {
		return ApproveResult{}, err
	}
	return res, nil
}

func (r *Router) approve(ctx context.Context, token common.Address, externalID int64, planned **execution.Action) (ApproveResult, error) {
	if err := requireAddress(token, "token"); err != nil {
		return ApproveResult{}, clierr.New(clierr.CodeInputValidation, "native currency does not need an approval")
	}
	if err := requireAddress(r.cfg.Router, "router"); err != nil {
		return ApproveResult{}, clierr.New(clierr.CodeUsage, "no agency router configured for this chain")
	}
	owner, err := r.keys.ResolveAddress(ctx, externalID)
	if err != nil {
		return ApproveResult{}, err
	}
	approved, err := r.IsRouterApproved(ctx, token, owner)
	if err != nil {
		return ApproveResult{}, typedChainErr("read router allowance", err)
	}
	if approved {
		return ApproveResult{AlreadyApproved: true}, nil
	}

	symbol := ""
	if meta, err := r.reader.TokenMeta(ctx, token); err == nil {
		symbol = meta.Symbol
	}
	action, err := planner.BuildApprovalAction(planner.ApprovalRequest{
		Chain:   r.cfg.Chain,
		Token:   token,
		Symbol:  symbol,
		Amount:  math.MaxBig256,
		Sender:  owner,
		Spender: r.cfg.Router,
	})
	if err != nil {
		return ApproveResult{}, err
	}
	action.Route = planner.RouteRouter
	*planned = &action
	if err := r.run(ctx, externalID, &action); err != nil {
		return ApproveResult{}, err
	}
	hash := action.LastTxHash()
	return ApproveResult{TxHash: hash, ActionID: action.ActionID, ExplorerURL: r.explorerURL(hash)}, nil
}

package policy

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ggonzalez94/agencybot/internal/chain"
	clierr "github.com/ggonzalez94/agencybot/internal/errors"
)

type AddressResolver interface {
	ResolveAddress(ctx context.Context, externalID int64) (common.Address, error)
}

type TokenAuthReader interface {
	OwnerOf(ctx context.Context, app common.Address, tokenID *big.Int) (common.Address, bool, error)
	ApprovalState(ctx context.Context, app common.Address, tokenID *big.Int, owner, operator common.Address) (chain.ApprovalState, error)
}

type Authorizer struct {
	accounts AddressResolver
	reader   TokenAuthReader
}

func NewAuthorizer(accounts AddressResolver, reader TokenAuthReader) *Authorizer {
	return &Authorizer{accounts: accounts, reader: reader}
}

// IsApproveOrOwner reports whether the user may act on tokenID: they own it,
// are approved for it, or are an approved operator of the owner. A token that
// does not exist is never authorized. Any read failure returns false with
// the error.
func (a *Authorizer) IsApproveOrOwner(ctx context.Context, app common.Address, tokenID *big.Int, externalID int64) (bool, error) {
	if tokenID == nil || tokenID.Sign() < 0 {
		return false, clierr.New(clierr.CodeInputValidation, "token id must be non-negative")
	}
	caller, err := a.accounts.ResolveAddress(ctx, externalID)
	if err != nil {
		return false, err
	}
	owner, found, err := a.reader.OwnerOf(ctx, app, tokenID)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	if owner == caller {
		return true, nil
	}
	state, err := a.reader.ApprovalState(ctx, app, tokenID, owner, caller)
	if err != nil {
		return false, err
	}
	return state.OperatorApproved || state.Approved == caller, nil
}

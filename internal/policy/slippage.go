package policy

import (
	"fmt"
	"math/big"

	"github.com/ggonzalez94/agencybot/internal/chain"
	clierr "github.com/ggonzalez94/agencybot/internal/errors"
)

// CheckSlippage passes when the user's ceiling covers price plus fee.
// Equality passes.
func CheckSlippage(maxCost *big.Int, quote chain.Quote) error {
	if maxCost == nil || maxCost.Sign() < 0 {
		return clierr.New(clierr.CodeInputValidation, "max cost must be a non-negative amount")
	}
	total := quote.Total()
	if maxCost.Cmp(total) < 0 {
		return clierr.New(clierr.CodeSlippageExceeded, fmt.Sprintf("quoted cost %s exceeds max cost %s", total, maxCost))
	}
	return nil
}

// CheckProceeds passes when minProceeds is zero or the quoted net proceeds
// (price minus fee) reach it.
func CheckProceeds(minProceeds *big.Int, quote chain.Quote) error {
	if minProceeds == nil || minProceeds.Sign() == 0 {
		return nil
	}
	if minProceeds.Sign() < 0 {
		return clierr.New(clierr.CodeInputValidation, "min proceeds must be non-negative")
	}
	net := quote.Net()
	if net.Cmp(minProceeds) < 0 {
		return clierr.New(clierr.CodeSlippageExceeded, fmt.Sprintf("quoted proceeds %s below minimum %s", net, minProceeds))
	}
	return nil
}

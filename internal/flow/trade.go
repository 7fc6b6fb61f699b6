package flow

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ggonzalez94/agencybot/internal/chain"
	clierr "github.com/ggonzalez94/agencybot/internal/errors"
	"github.com/ggonzalez94/agencybot/internal/id"
	"github.com/ggonzalez94/agencybot/internal/session"
	"github.com/ggonzalez94/agencybot/internal/txrouter"
)

// beginWrap starts Idle -> AwaitingMaxCost for the agency named by arg or
// the session's selected one.
func (e *Engine) beginWrap(ctx context.Context, sess session.Session, arg string) (Reply, error) {
	agency, err := resolveAgency(sess, arg)
	if err != nil {
		return Reply{}, err
	}
	meta, err := e.currencyMeta(ctx, agency)
	if err != nil {
		return Reply{}, err
	}
	setAgency(&sess, agency)
	var fields []Field
	if last, ok := parseBase(sess.WrapPrice); ok {
		fields = append(fields, Field{Label: "Last quoted total", Value: formatAmount(last, meta)})
	}
	if err := e.beginFlow(ctx, &sess, session.FlowWrap, session.StepAwaitingMaxCost); err != nil {
		return Reply{}, err
	}
	return prompt("Send the most you are willing to pay in "+meta.Symbol+".", fields...), nil
}

// submitMaxCost moves AwaitingMaxCost -> AwaitingName. The quote is not read
// here; the router reads it once the name is known.
func (e *Engine) submitMaxCost(ctx context.Context, sess session.Session, text string) (Reply, error) {
	meta, err := e.currencyMeta(ctx, common.HexToAddress(sess.AgencyAddress))
	if err != nil {
		return e.fail(ctx, sess, err)
	}
	maxCost, err := id.ParseUnits(text, int(meta.Decimals))
	if err != nil {
		return e.fail(ctx, sess, err)
	}
	if maxCost.Sign() == 0 {
		return e.fail(ctx, sess, clierr.New(clierr.CodeInputValidation, "max cost must be greater than zero"))
	}
	sess.MaxCost = maxCost.String()
	sess.Step = session.StepAwaitingName
	if err := e.saveSession(ctx, sess); err != nil {
		return e.fail(ctx, sess, err)
	}
	return prompt("Send the name for your new token.", Field{Label: "Max cost", Value: formatAmount(maxCost, meta)}), nil
}

// submitName runs NameCheck -> SlippageCheck -> Execute through the router.
func (e *Engine) submitName(ctx context.Context, sess session.Session, text string) (Reply, error) {
	maxCost, ok := parseBase(sess.MaxCost)
	if !ok {
		return e.fail(ctx, sess, clierr.New(clierr.CodeInternal, "session lost the max cost"))
	}
	name := chain.NormalizeName(text)
	if err := chain.ValidateName(name); err != nil {
		return e.fail(ctx, sess, err)
	}
	agency := common.HexToAddress(sess.AgencyAddress)
	meta, err := e.currencyMeta(ctx, agency)
	if err != nil {
		return e.fail(ctx, sess, err)
	}

	res, err := e.txs.Wrap(ctx, txrouter.WrapRequest{Name: name, MaxCost: maxCost, Agency: agency, ExternalID: sess.ExternalID})
	if err != nil {
		return e.fail(ctx, sess, err)
	}
	e.finish(ctx, sess)

	tokenID := "pending"
	buttons := []Button{{Label: "My tokens", Action: ActionTokens, Arg: agency.Hex()}}
	if res.TokenID != nil {
		tokenID = res.TokenID.String()
		buttons = append([]Button{{Label: "Unwrap", Action: ActionUnwrap, Arg: tokenID}}, buttons...)
	}
	return Reply{
		Kind: KindResult,
		Text: "Wrap submitted.",
		Fields: []Field{
			{Label: "Token ID", Value: tokenID},
			{Label: "Name", Value: name},
			{Label: "Cost", Value: formatAmount(res.Quote.Total(), meta)},
		},
		Buttons:     buttons,
		TxHash:      res.TxHash,
		ExplorerURL: res.ExplorerURL,
	}, nil
}

// beginUnwrap starts Idle -> AwaitingTokenID on the selected agency. The net
// proceeds quoted here are the minimum this flow accepts. A token id in arg
// answers the prompt straight away.
func (e *Engine) beginUnwrap(ctx context.Context, sess session.Session, arg string) (Reply, error) {
	agency, err := resolveAgency(sess, "")
	if err != nil {
		return Reply{}, err
	}
	strategy, err := e.reader.Strategy(ctx, agency)
	if err != nil {
		return Reply{}, err
	}
	quote, err := e.reader.UnwrapQuote(ctx, agency, strategy.App)
	if err != nil {
		return Reply{}, err
	}
	meta, err := e.reader.TokenMeta(ctx, strategy.Currency)
	if err != nil {
		return Reply{}, err
	}
	setAgency(&sess, agency)
	sess.UnwrapProceeds = quote.Net().String()
	if err := e.beginFlow(ctx, &sess, session.FlowUnwrap, session.StepAwaitingTokenID); err != nil {
		return Reply{}, err
	}
	if arg != "" {
		return e.submitTokenID(ctx, sess, arg)
	}
	return prompt("Send the id of the token to unwrap.", Field{Label: "Quoted proceeds", Value: formatAmount(quote.Net(), meta)}), nil
}

// submitTokenID runs AuthCheck -> Execute through the router, bounded by the
// proceeds quoted when the flow began.
func (e *Engine) submitTokenID(ctx context.Context, sess session.Session, text string) (Reply, error) {
	tokenID, err := id.ParseTokenID(text)
	if err != nil {
		return e.fail(ctx, sess, err)
	}
	agency := common.HexToAddress(sess.AgencyAddress)
	meta, err := e.currencyMeta(ctx, agency)
	if err != nil {
		return e.fail(ctx, sess, err)
	}
	minProceeds, _ := parseBase(sess.UnwrapProceeds)

	res, err := e.txs.Unwrap(ctx, txrouter.UnwrapRequest{TokenID: tokenID, Agency: agency, ExternalID: sess.ExternalID, MinProceeds: minProceeds})
	if err != nil {
		return e.fail(ctx, sess, err)
	}
	e.finish(ctx, sess)

	return Reply{
		Kind: KindResult,
		Text: "Unwrap submitted.",
		Fields: []Field{
			{Label: "Token ID", Value: tokenID.String()},
			{Label: "Proceeds", Value: formatAmount(res.Quote.Net(), meta)},
		},
		TxHash:      res.TxHash,
		ExplorerURL: res.ExplorerURL,
	}, nil
}

// currencyMeta returns display metadata for the agency's settlement currency.
func (e *Engine) currencyMeta(ctx context.Context, agency common.Address) (chain.TokenMeta, error) {
	strategy, err := e.reader.Strategy(ctx, agency)
	if err != nil {
		return chain.TokenMeta{}, err
	}
	return e.reader.TokenMeta(ctx, strategy.Currency)
}

func parseBase(v string) (*big.Int, bool) {
	if v == "" {
		return nil, false
	}
	n, ok := new(big.Int).SetString(v, 10)
	if !ok || n.Sign() < 0 {
		return nil, false
	}
	return n, true
}

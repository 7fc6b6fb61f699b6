package flow

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ggonzalez94/agencybot/internal/chain"
	clierr "github.com/ggonzalez94/agencybot/internal/errors"
	"github.com/ggonzalez94/agencybot/internal/id"
	"github.com/ggonzalez94/agencybot/internal/session"
	"github.com/ggonzalez94/agencybot/internal/store"
)

func (e *Engine) beginAddAgency(ctx context.Context, sess session.Session) (Reply, error) {
	if err := e.beginFlow(ctx, &sess, session.FlowAddAgency, session.StepAwaitingAddress); err != nil {
		return Reply{}, err
	}
	return prompt("Send the agency contract address."), nil
}

// submitAgencyAddress validates the address against the indexer and, when
// the agency exists, adds it to the user's list.
func (e *Engine) submitAgencyAddress(ctx context.Context, sess session.Session, text string) (Reply, error) {
	agency, err := id.ParseAddress(text)
	if err != nil {
		return e.fail(ctx, sess, err)
	}
	found, ok, err := e.indexer.QueryDotAgency(ctx, agency)
	if err != nil {
		return e.fail(ctx, sess, err)
	}
	if !ok {
		e.abort(ctx, sess, "not_found")
		return info("Agency not found. Check the address and start again."), nil
	}

	acct, err := e.account(ctx, sess.ExternalID)
	if err != nil {
		return e.fail(ctx, sess, err)
	}
	owner, err := e.keys.ResolveAddress(ctx, sess.ExternalID)
	if err != nil {
		return e.fail(ctx, sess, err)
	}

	currency := common.HexToAddress(found.Currency.Address)
	meta := chain.TokenMeta{Address: currency, Symbol: found.Currency.Symbol, Decimals: found.Currency.Decimals}
	if currency == (common.Address{}) || meta.Symbol == "" {
		meta, err = e.reader.TokenMeta(ctx, currency)
		if err != nil {
			return e.fail(ctx, sess, err)
		}
	} else if err := e.store.UpsertTokenMeta(ctx, currency.Hex(), meta.Symbol, meta.Decimals); err != nil {
		return e.fail(ctx, sess, err)
	}
	balance, err := e.reader.Balance(ctx, currency, owner)
	if err != nil {
		return e.fail(ctx, sess, err)
	}

	sub := store.AgencySubscription{
		AccountID:     acct.ID,
		AgencyAddress: agency.Hex(),
		AgentAddress:  found.AppAddress,
		AgencyName:    found.AppName,
		TokenAddress:  currency.Hex(),
	}
	if err := e.store.AddAgency(ctx, sub); err != nil {
		return e.fail(ctx, sess, err)
	}
	setAgency(&sess, agency)
	e.finish(ctx, sess)

	return Reply{
		Kind: KindResult,
		Text: "Agency added.",
		Fields: []Field{
			{Label: "Name", Value: found.AppName},
			{Label: "TVL", Value: formatAmount(found.TVL, meta)},
			{Label: "Mint fee", Value: id.FormatPercent(found.MintFeePercent)},
			{Label: "Burn fee", Value: id.FormatPercent(found.BurnFeePercent)},
			{Label: "Balance", Value: formatAmount(balance, meta)},
		},
		Buttons: []Button{
			{Label: "Open", Action: ActionSelect, Arg: agency.Hex()},
			{Label: "Agencies", Action: ActionAgencies},
		},
	}, nil
}

func (e *Engine) listAgencies(ctx context.Context, externalID int64) (Reply, error) {
	acct, err := e.account(ctx, externalID)
	if err != nil {
		return Reply{}, err
	}
	subs, err := e.store.ListAgencies(ctx, acct.ID)
	if err != nil {
		return Reply{}, err
	}
	if len(subs) == 0 {
		return Reply{
			Kind:    KindInfo,
			Text:    "You have not added any agency yet.",
			Buttons: []Button{{Label: "Add agency", Action: ActionAddAgency}},
		}, nil
	}
	buttons := make([]Button, 0, len(subs)+1)
	for _, sub := range subs {
		label := sub.AgencyName
		if strings.TrimSpace(label) == "" {
			label = sub.AgencyAddress
		}
		buttons = append(buttons, Button{Label: label, Action: ActionSelect, Arg: sub.AgencyAddress})
	}
	buttons = append(buttons, Button{Label: "Add agency", Action: ActionAddAgency})
	return Reply{Kind: KindMenu, Text: "Your agencies", Buttons: buttons}, nil
}

// selectAgency makes agency the session's current agency and shows fresh
// wrap and unwrap quotes for it.
func (e *Engine) selectAgency(ctx context.Context, sess session.Session, arg string) (Reply, error) {
	agency, err := resolveAgency(sess, arg)
	if err != nil {
		return Reply{}, err
	}
	acct, err := e.account(ctx, sess.ExternalID)
	if err != nil {
		return Reply{}, err
	}
	sub, ok, err := e.store.GetAgency(ctx, acct.ID, agency.Hex())
	if err != nil {
		return Reply{}, err
	}
	if !ok {
		return Reply{}, clierr.New(clierr.CodeInputValidation, "agency is not in your list, add it first")
	}
	owner, err := e.keys.ResolveAddress(ctx, sess.ExternalID)
	if err != nil {
		return Reply{}, err
	}
	strategy, err := e.reader.Strategy(ctx, agency)
	if err != nil {
		return Reply{}, err
	}
	wrapQuote, err := e.reader.WrapQuote(ctx, agency, strategy.App)
	if err != nil {
		return Reply{}, err
	}
	unwrapQuote, err := e.reader.UnwrapQuote(ctx, agency, strategy.App)
	if err != nil {
		return Reply{}, err
	}
	meta, err := e.reader.TokenMeta(ctx, strategy.Currency)
	if err != nil {
		return Reply{}, err
	}
	balance, err := e.reader.Balance(ctx, strategy.Currency, owner)
	if err != nil {
		return Reply{}, err
	}
	approved := true
	if !strategy.IsNative() {
		approved, err = e.txs.IsRouterApproved(ctx, strategy.Currency, owner)
		if err != nil {
			return Reply{}, err
		}
	}

	if sess.Active() {
		e.endFlow(sess.ExternalID, sess.Flow, "superseded")
		sess.Finish()
	}
	setAgency(&sess, agency)
	sess.WrapPrice = wrapQuote.Total().String()
	if err := e.saveSession(ctx, sess); err != nil {
		return Reply{}, err
	}

	fields := []Field{
		{Label: "Agency", Value: sub.AgencyName},
		{Label: "Wrap price", Value: formatAmount(wrapQuote.Price, meta)},
		{Label: "Wrap fee", Value: formatAmount(wrapQuote.Fee, meta)},
		{Label: "Wrap total", Value: formatAmount(wrapQuote.Total(), meta)},
		{Label: "Unwrap proceeds", Value: formatAmount(unwrapQuote.Net(), meta)},
		{Label: "Balance", Value: formatAmount(balance, meta)},
	}
	if !strategy.IsNative() {
		fields = append(fields, Field{Label: "Router approved", Value: yesNo(approved)})
	}

	affordable := balance.Cmp(wrapQuote.Total()) >= 0
	text := sub.AgencyName
	var buttons []Button
	switch {
	case !affordable:
		text = "Your balance does not cover the wrap total."
	case !approved:
		text = "Approve the Router before wrapping."
		buttons = append(buttons, Button{Label: "Approve", Action: ActionApprove, Arg: agency.Hex()})
	default:
		buttons = append(buttons, Button{Label: "Wrap", Action: ActionWrap, Arg: agency.Hex()})
	}
	buttons = append(buttons,
		Button{Label: "Unwrap", Action: ActionUnwrap},
		Button{Label: "My tokens", Action: ActionTokens, Arg: agency.Hex()},
		Button{Label: "Details", Action: ActionCheck, Arg: agency.Hex()},
		Button{Label: "Delete", Action: ActionDelete, Arg: agency.Hex()},
	)
	return Reply{Kind: KindMenu, Text: text, Fields: fields, Buttons: buttons}, nil
}

func (e *Engine) deleteAgency(ctx context.Context, sess session.Session, arg string) (Reply, error) {
	agency, err := resolveAgency(sess, arg)
	if err != nil {
		return Reply{}, err
	}
	acct, err := e.account(ctx, sess.ExternalID)
	if err != nil {
		return Reply{}, err
	}
	removed, err := e.store.DeleteAgency(ctx, acct.ID, agency.Hex())
	if err != nil {
		return Reply{}, err
	}
	if !removed {
		return Reply{}, clierr.New(clierr.CodeInputValidation, "agency is not in your list")
	}
	if strings.EqualFold(sess.AgencyAddress, agency.Hex()) {
		if sess.Active() {
			e.endFlow(sess.ExternalID, sess.Flow, "cancelled")
			sess.Finish()
		}
		sess.AgencyAddress, sess.WrapPrice, sess.UnwrapProceeds = "", "", ""
		if err := e.saveSession(ctx, sess); err != nil {
			return Reply{}, err
		}
	}
	return Reply{Kind: KindResult, Text: "Agency deleted.", Buttons: []Button{{Label: "Agencies", Action: ActionAgencies}}}, nil
}

// approve grants the Router an unlimited allowance on the agency's currency.
func (e *Engine) approve(ctx context.Context, sess session.Session, arg string) (Reply, error) {
	agency, err := resolveAgency(sess, arg)
	if err != nil {
		return Reply{}, err
	}
	strategy, err := e.reader.Strategy(ctx, agency)
	if err != nil {
		return Reply{}, err
	}
	res, err := e.txs.Approve(ctx, strategy.Currency, sess.ExternalID)
	if err != nil {
		return Reply{}, err
	}
	if res.AlreadyApproved {
		return info("The Router is already approved for this currency."), nil
	}
	return Reply{
		Kind:        KindResult,
		Text:        "Approval sent.",
		TxHash:      res.TxHash,
		ExplorerURL: res.ExplorerURL,
		Buttons:     []Button{{Label: "Open agency", Action: ActionSelect, Arg: agency.Hex()}},
	}, nil
}

// check describes an agency's on-chain strategy. The agency does not need to
// be in the user's list.
func (e *Engine) check(ctx context.Context, sess session.Session, arg string) (Reply, error) {
	agency, err := resolveAgency(sess, arg)
	if err != nil {
		return Reply{}, err
	}
	strategy, err := e.reader.Strategy(ctx, agency)
	if err != nil {
		return Reply{}, err
	}
	name, err := e.reader.Name(ctx, strategy.App)
	if err != nil {
		return Reply{}, err
	}
	currencyName, err := e.reader.ERC20Name(ctx, strategy.Currency)
	if err != nil {
		return Reply{}, err
	}
	meta, err := e.reader.TokenMeta(ctx, strategy.Currency)
	if err != nil {
		return Reply{}, err
	}
	maxSupply, err := e.reader.MaxSupply(ctx, strategy.App)
	if err != nil {
		return Reply{}, err
	}
	return info("Agency details",
		Field{Label: "Agency name", Value: name},
		Field{Label: "Currency", Value: currencyName},
		Field{Label: "Currency address", Value: strategy.Currency.Hex()},
		Field{Label: "Base premium", Value: formatAmount(strategy.BasePremium, meta)},
		Field{Label: "Mint fee", Value: id.FormatPercent(strategy.MintFeePercent)},
		Field{Label: "Burn fee", Value: id.FormatPercent(strategy.BurnFeePercent)},
		Field{Label: "Max supply", Value: maxSupply.String()},
	), nil
}

func (e *Engine) heldTokens(ctx context.Context, sess session.Session, arg string) (Reply, error) {
	agency, err := resolveAgency(sess, arg)
	if err != nil {
		return Reply{}, err
	}
	owner, err := e.keys.ResolveAddress(ctx, sess.ExternalID)
	if err != nil {
		return Reply{}, err
	}
	tokens, err := e.indexer.QueryAccountTokens(ctx, owner, agency)
	if err != nil {
		return Reply{}, err
	}
	// The unwrap buttons below act on the session's agency.
	if !strings.EqualFold(sess.AgencyAddress, agency.Hex()) {
		setAgency(&sess, agency)
		if err := e.saveSession(ctx, sess); err != nil {
			return Reply{}, err
		}
	}
	if len(tokens) == 0 {
		return info("You hold no tokens of this agency."), nil
	}
	fields := make([]Field, 0, len(tokens))
	buttons := make([]Button, 0, len(tokens))
	for _, tok := range tokens {
		fields = append(fields, Field{Label: "#" + tok.TokenID.String(), Value: tok.Name})
		buttons = append(buttons, Button{Label: fmt.Sprintf("Unwrap %s", tok.Name), Action: ActionUnwrap, Arg: tok.TokenID.String()})
	}
	return Reply{Kind: KindMenu, Text: "Your tokens", Fields: fields, Buttons: buttons}, nil
}

// setAgency switches the session's agency, dropping quotes taken for another.
func setAgency(sess *session.Session, agency common.Address) {
	if strings.EqualFold(sess.AgencyAddress, agency.Hex()) {
		return
	}
	sess.AgencyAddress = agency.Hex()
	sess.WrapPrice = ""
	sess.UnwrapProceeds = ""
}

func formatAmount(v *big.Int, meta chain.TokenMeta) string {
	out := id.FormatUnits(v, int(meta.Decimals))
	if meta.Symbol == "" {
		return out
	}
	return out + " " + meta.Symbol
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

// Package flow runs the per-user conversation state machines (add agency,
// wrap, unwrap) and the one-shot menu actions around them. Each input is
// answered with a Reply; transports only parse input and render replies.
package flow

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/ggonzalez94/agencybot/internal/chain"
	clierr "github.com/ggonzalez94/agencybot/internal/errors"
	"github.com/ggonzalez94/agencybot/internal/id"
	"github.com/ggonzalez94/agencybot/internal/indexer"
	"github.com/ggonzalez94/agencybot/internal/metrics"
	"github.com/ggonzalez94/agencybot/internal/session"
	"github.com/ggonzalez94/agencybot/internal/store"
	"github.com/ggonzalez94/agencybot/internal/txrouter"
)

type Store interface {
	EnsureAccount(ctx context.Context, externalID int64) (store.Account, error)
	AddAgency(ctx context.Context, sub store.AgencySubscription) error
	GetAgency(ctx context.Context, accountID int64, agency string) (store.AgencySubscription, bool, error)
	ListAgencies(ctx context.Context, accountID int64) ([]store.AgencySubscription, error)
	DeleteAgency(ctx context.Context, accountID int64, agency string) (bool, error)
	UpsertTokenMeta(ctx context.Context, tokenAddress, symbol string, decimals uint8) error
}

type Keys interface {
	ResolveAddress(ctx context.Context, externalID int64) (common.Address, error)
	ExportPrivateKey(ctx context.Context, externalID int64) (string, error)
}

type Reader interface {
	Strategy(ctx context.Context, agency common.Address) (chain.Strategy, error)
	WrapQuote(ctx context.Context, agency, app common.Address) (chain.Quote, error)
	UnwrapQuote(ctx context.Context, agency, app common.Address) (chain.Quote, error)
	Balance(ctx context.Context, token, owner common.Address) (*big.Int, error)
	TokenMeta(ctx context.Context, token common.Address) (chain.TokenMeta, error)
	Name(ctx context.Context, contract common.Address) (string, error)
	ERC20Name(ctx context.Context, token common.Address) (string, error)
	MaxSupply(ctx context.Context, app common.Address) (*big.Int, error)
}

type Indexer interface {
	QueryDotAgency(ctx context.Context, agency common.Address) (indexer.AgencyInfo, bool, error)
	QueryAccountTokens(ctx context.Context, owner, agency common.Address) ([]indexer.HeldToken, error)
}

type Transactions interface {
	Wrap(ctx context.Context, req txrouter.WrapRequest) (txrouter.WrapResult, error)
	Unwrap(ctx context.Context, req txrouter.UnwrapRequest) (txrouter.UnwrapResult, error)
	Approve(ctx context.Context, token common.Address, externalID int64) (txrouter.ApproveResult, error)
	IsRouterApproved(ctx context.Context, token, owner common.Address) (bool, error)
}

type Engine struct {
	store    Store
	keys     Keys
	reader   Reader
	indexer  Indexer
	txs      Transactions
	sessions session.Store
	metrics  *metrics.Metrics
	log      zerolog.Logger
	now      func() time.Time

	locksMu sync.Mutex
	locks   map[int64]*userLock

	// live tracks flows this process started so an expired one can be
	// counted when the user next shows up.
	liveMu sync.Mutex
	live   map[int64]session.Flow
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

type Option func(*Engine)

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(st Store, keys Keys, reader Reader, idx Indexer, txs Transactions, sessions session.Store, opts ...Option) *Engine {
	e := &Engine{
		store:    st,
		keys:     keys,
		reader:   reader,
		indexer:  idx,
		txs:      txs,
		sessions: sessions,
		log:      zerolog.Nop(),
		now:      time.Now,
		locks:    map[int64]*userLock{},
		live:     map[int64]session.Flow{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Handle processes one input. Inputs from the same user are handled one at a
// time; different users proceed concurrently.
func (e *Engine) Handle(ctx context.Context, in Input) Reply {
	unlock := e.lockUser(in.ExternalID)
	defer unlock()

	log := e.log.With().Int64("external_id", in.ExternalID).Str("action", string(in.Action)).Logger()
	reply, err := e.dispatch(ctx, in)
	if err != nil {
		log.Warn().Err(err).Msg("input failed")
		return errorReply(err)
	}
	return reply
}

func (e *Engine) dispatch(ctx context.Context, in Input) (Reply, error) {
	sess, err := e.loadSession(ctx, in.ExternalID)
	if err != nil {
		return Reply{}, err
	}

	switch in.Action {
	case "":
		return e.answer(ctx, sess, in.Text)
	case ActionStart:
		return e.start(ctx, in.ExternalID)
	case ActionWallet:
		return e.wallet(ctx, in.ExternalID)
	case ActionExportKey:
		return e.exportKey(ctx, in.ExternalID)
	case ActionAgencies:
		return e.listAgencies(ctx, in.ExternalID)
	case ActionAddAgency:
		return e.beginAddAgency(ctx, sess)
	case ActionSelect:
		return e.selectAgency(ctx, sess, in.Arg)
	case ActionDelete:
		return e.deleteAgency(ctx, sess, in.Arg)
	case ActionApprove:
		return e.approve(ctx, sess, in.Arg)
	case ActionCheck:
		return e.check(ctx, sess, in.Arg)
	case ActionTokens:
		return e.heldTokens(ctx, sess, in.Arg)
	case ActionWrap:
		return e.beginWrap(ctx, sess, in.Arg)
	case ActionUnwrap:
		return e.beginUnwrap(ctx, sess, in.Arg)
	case ActionCancel:
		return e.cancel(ctx, sess)
	default:
		return Reply{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("unknown command %q, send /start for the menu", in.Action))
	}
}

// answer feeds free text to the flow waiting for it.
func (e *Engine) answer(ctx context.Context, sess session.Session, text string) (Reply, error) {
	if !sess.Active() {
		return Reply{}, clierr.New(clierr.CodeUsage, "nothing is waiting for input, send /start for the menu")
	}
	switch sess.Step {
	case session.StepAwaitingAddress:
		return e.submitAgencyAddress(ctx, sess, text)
	case session.StepAwaitingMaxCost:
		return e.submitMaxCost(ctx, sess, text)
	case session.StepAwaitingName:
		return e.submitName(ctx, sess, text)
	case session.StepAwaitingTokenID:
		return e.submitTokenID(ctx, sess, text)
	default:
		e.abort(ctx, sess, "invalid")
		return Reply{}, clierr.New(clierr.CodeInternal, fmt.Sprintf("session in unknown step %q", sess.Step))
	}
}

func (e *Engine) start(ctx context.Context, externalID int64) (Reply, error) {
	addr, err := e.keys.ResolveAddress(ctx, externalID)
	if err != nil {
		return Reply{}, err
	}
	return Reply{
		Kind:   KindMenu,
		Text:   "Welcome. Your custodial account is ready.",
		Fields: []Field{{Label: "Address", Value: addr.Hex()}},
		Buttons: []Button{
			{Label: "Wallet", Action: ActionWallet},
			{Label: "Agencies", Action: ActionAgencies},
			{Label: "Add agency", Action: ActionAddAgency},
		},
	}, nil
}

func (e *Engine) wallet(ctx context.Context, externalID int64) (Reply, error) {
	addr, err := e.keys.ResolveAddress(ctx, externalID)
	if err != nil {
		return Reply{}, err
	}
	meta, err := e.reader.TokenMeta(ctx, common.Address{})
	if err != nil {
		return Reply{}, err
	}
	bal, err := e.reader.Balance(ctx, common.Address{}, addr)
	if err != nil {
		return Reply{}, err
	}
	return Reply{
		Kind: KindInfo,
		Text: "Wallet",
		Fields: []Field{
			{Label: "Address", Value: addr.Hex()},
			{Label: "Balance", Value: formatAmount(bal, meta)},
		},
		Buttons: []Button{{Label: "Show private key", Action: ActionExportKey}},
	}, nil
}

func (e *Engine) exportKey(ctx context.Context, externalID int64) (Reply, error) {
	key, err := e.keys.ExportPrivateKey(ctx, externalID)
	if err != nil {
		return Reply{}, err
	}
	return Reply{
		Kind:   KindSecret,
		Text:   "Anyone holding this key controls your funds. Delete this message once saved.",
		Fields: []Field{{Label: "Private key", Value: key}},
	}, nil
}

func (e *Engine) cancel(ctx context.Context, sess session.Session) (Reply, error) {
	if sess.Active() {
		e.endFlow(sess.ExternalID, sess.Flow, "cancelled")
		sess.Finish()
		if err := e.saveSession(ctx, sess); err != nil {
			return Reply{}, err
		}
	}
	return info("Cancelled."), nil
}

// loadSession returns the user's live session or a fresh one.
func (e *Engine) loadSession(ctx context.Context, externalID int64) (session.Session, error) {
	sess, ok, err := e.sessions.Get(ctx, externalID)
	if err != nil {
		return session.Session{}, clierr.Wrap(clierr.CodePersistence, "load session", err)
	}
	if !ok {
		e.expireLive(externalID)
		return session.Session{ExternalID: externalID}, nil
	}
	return sess, nil
}

func (e *Engine) saveSession(ctx context.Context, sess session.Session) error {
	if err := e.sessions.Put(ctx, sess); err != nil {
		return clierr.Wrap(clierr.CodePersistence, "save session", err)
	}
	return nil
}

// beginFlow supersedes any flow in progress and stores the new one.
func (e *Engine) beginFlow(ctx context.Context, sess *session.Session, flow session.Flow, step session.Step) error {
	if sess.Active() {
		e.endFlow(sess.ExternalID, sess.Flow, "superseded")
	}
	sess.Begin(flow, step, e.now())
	if err := e.saveSession(ctx, *sess); err != nil {
		return err
	}
	e.liveMu.Lock()
	e.live[sess.ExternalID] = flow
	e.liveMu.Unlock()
	e.metrics.SessionStarted()
	return nil
}

// finish ends the flow successfully. The selected agency and last quotes
// stay in the session for the next menu action.
func (e *Engine) finish(ctx context.Context, sess session.Session) {
	e.endFlow(sess.ExternalID, sess.Flow, "done")
	sess.Finish()
	if err := e.sessions.Put(ctx, sess); err != nil {
		e.log.Warn().Err(err).Int64("external_id", sess.ExternalID).Msg("save finished session")
	}
}

// abort discards the whole session after a failed step.
func (e *Engine) abort(ctx context.Context, sess session.Session, outcome string) {
	e.endFlow(sess.ExternalID, sess.Flow, outcome)
	if err := e.sessions.Delete(ctx, sess.ExternalID); err != nil {
		e.log.Warn().Err(err).Int64("external_id", sess.ExternalID).Msg("discard session")
	}
}

// fail aborts the flow and passes err through with its outcome recorded.
func (e *Engine) fail(ctx context.Context, sess session.Session, err error) (Reply, error) {
	e.abort(ctx, sess, metrics.Outcome(err))
	return Reply{}, err
}

func (e *Engine) endFlow(externalID int64, flow session.Flow, outcome string) {
	e.liveMu.Lock()
	_, tracked := e.live[externalID]
	delete(e.live, externalID)
	e.liveMu.Unlock()
	if tracked {
		e.metrics.SessionEnded()
	}
	e.metrics.ObserveFlow(string(flow), outcome)
}

func (e *Engine) expireLive(externalID int64) {
	e.liveMu.Lock()
	flow, ok := e.live[externalID]
	delete(e.live, externalID)
	e.liveMu.Unlock()
	if ok {
		e.metrics.SessionEnded()
		e.metrics.ObserveFlow(string(flow), "expired")
	}
}

func (e *Engine) lockUser(externalID int64) func() {
	e.locksMu.Lock()
	l, ok := e.locks[externalID]
	if !ok {
		l = &userLock{}
		e.locks[externalID] = l
	}
	l.refs++
	e.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		e.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.locks, externalID)
		}
		e.locksMu.Unlock()
	}
}

func (e *Engine) account(ctx context.Context, externalID int64) (store.Account, error) {
	return e.store.EnsureAccount(ctx, externalID)
}

// resolveAgency picks the agency named by arg, falling back to the one
// selected in the session.
func resolveAgency(sess session.Session, arg string) (common.Address, error) {
	raw := strings.TrimSpace(arg)
	if raw == "" {
		raw = sess.AgencyAddress
	}
	if raw == "" {
		return common.Address{}, clierr.New(clierr.CodeInputValidation, "select an agency first")
	}
	return id.ParseAddress(raw)
}

// Package txrouter builds, simulates, signs and broadcasts wrap, unwrap and
// approve transactions on behalf of a custodial user.
package txrouter

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/rs/zerolog"

	"github.com/ggonzalez94/agencybot/internal/chain"
	clierr "github.com/ggonzalez94/agencybot/internal/errors"
	"github.com/ggonzalez94/agencybot/internal/events"
	"github.com/ggonzalez94/agencybot/internal/execution"
	"github.com/ggonzalez94/agencybot/internal/execution/signer"
	"github.com/ggonzalez94/agencybot/internal/id"
	"github.com/ggonzalez94/agencybot/internal/metrics"
	"github.com/ggonzalez94/agencybot/internal/registry"
)

// Reader is the chain state the router consults before planning.
type Reader interface {
	Strategy(ctx context.Context, agency common.Address) (chain.Strategy, error)
	WrapQuote(ctx context.Context, agency, app common.Address) (chain.Quote, error)
	UnwrapQuote(ctx context.Context, agency, app common.Address) (chain.Quote, error)
	NameExists(ctx context.Context, app common.Address, name string) (bool, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	TokenMeta(ctx context.Context, token common.Address) (chain.TokenMeta, error)
}

type Keys interface {
	ResolveAddress(ctx context.Context, externalID int64) (common.Address, error)
	WithSigner(ctx context.Context, externalID int64, fn func(signer.Signer) error) error
}

type Authorizer interface {
	IsApproveOrOwner(ctx context.Context, app common.Address, tokenID *big.Int, externalID int64) (bool, error)
}

type Executor interface {
	Execute(ctx context.Context, action *execution.Action, txSigner signer.Signer) error
}

type Config struct {
	Chain  id.Chain
	Router common.Address
	// ExecutionTimeout bounds simulate through broadcast. The sequence runs
	// on a context detached from the caller so it cannot be abandoned halfway.
	ExecutionTimeout time.Duration
	ExplorerTxURL    string
}

type Router struct {
	cfg      Config
	reader   Reader
	keys     Keys
	auth     Authorizer
	executor Executor
	events   events.Publisher
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

type Option func(*Router)

func WithEvents(p events.Publisher) Option {
	return func(r *Router) { r.events = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

func WithLogger(log zerolog.Logger) Option {
	return func(r *Router) { r.log = log }
}

func New(cfg Config, reader Reader, keys Keys, auth Authorizer, executor Executor, opts ...Option) *Router {
	if cfg.ExecutionTimeout <= 0 {
		cfg.ExecutionTimeout = 2 * time.Minute
	}
	r := &Router{
		cfg:      cfg,
		reader:   reader,
		keys:     keys,
		auth:     auth,
		executor: executor,
		events:   events.Nop(),
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IsMaxAllowance reports whether allowance is exactly the unlimited sentinel.
func IsMaxAllowance(allowance *big.Int) bool {
	return allowance != nil && allowance.Cmp(math.MaxBig256) == 0
}

// IsRouterApproved reports whether owner has granted the Router an unlimited
// allowance on token.
func (r *Router) IsRouterApproved(ctx context.Context, token, owner common.Address) (bool, error) {
	allowance, err := r.reader.Allowance(ctx, token, owner, r.cfg.Router)
	if err != nil {
		return false, err
	}
	return IsMaxAllowance(allowance), nil
}

func (r *Router) RouterAddress() common.Address {
	return r.cfg.Router
}

// run signs and executes action under a detached, time-bounded context.
func (r *Router) run(ctx context.Context, externalID int64, action *execution.Action) error {
	action.ExternalID = externalID
	execCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.ExecutionTimeout)
	defer cancel()
	return r.keys.WithSigner(execCtx, externalID, func(s signer.Signer) error {
		return r.executor.Execute(execCtx, action, s)
	})
}

func (r *Router) publish(ctx context.Context, event events.Event) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.events.Publish(pubCtx, event); err != nil {
		r.log.Warn().Err(err).Str("event_type", string(event.Type)).Msg("publish event")
	}
}

func (r *Router) explorerURL(hash string) string {
	return registry.ExplorerTxURL(r.cfg.ExplorerTxURL, r.cfg.Chain.EVMChainID, hash)
}

func (r *Router) event(kind events.Type, externalID int64, action *execution.Action, err error) events.Event {
	ev := events.New(kind, externalID, r.cfg.Chain.EVMChainID)
	if action != nil {
		ev.ActionID = action.ActionID
		ev.Route = action.Route
		ev.Agency = action.ToAddress
		ev.TxHash = action.LastTxHash()
	}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}

func requireAddress(addr common.Address, what string) error {
	if addr == (common.Address{}) {
		return clierr.New(clierr.CodeInputValidation, what+" address is required")
	}
	return nil
}

// typedChainErr keeps typed errors and wraps anything else as a chain read.
func typedChainErr(message string, err error) error {
	var typed *clierr.Error
	if errors.As(err, &typed) {
		return err
	}
	return clierr.Wrap(clierr.CodeChainRead, message, err)
}

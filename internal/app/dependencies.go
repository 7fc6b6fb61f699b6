package app

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/ggonzalez94/agencybot/internal/chain"
	"github.com/ggonzalez94/agencybot/internal/config"
	clierr "github.com/ggonzalez94/agencybot/internal/errors"
	"github.com/ggonzalez94/agencybot/internal/events"
	"github.com/ggonzalez94/agencybot/internal/execution"
	"github.com/ggonzalez94/agencybot/internal/flow"
	"github.com/ggonzalez94/agencybot/internal/httpx"
	"github.com/ggonzalez94/agencybot/internal/id"
	"github.com/ggonzalez94/agencybot/internal/indexer"
	"github.com/ggonzalez94/agencybot/internal/keyvault"
	"github.com/ggonzalez94/agencybot/internal/logging"
	"github.com/ggonzalez94/agencybot/internal/metrics"
	"github.com/ggonzalez94/agencybot/internal/policy"
	"github.com/ggonzalez94/agencybot/internal/registry"
	"github.com/ggonzalez94/agencybot/internal/session"
	"github.com/ggonzalez94/agencybot/internal/store"
	"github.com/ggonzalez94/agencybot/internal/txrouter"
)

// dependencies opens collaborators on first use so that commands only pay
// for what they touch. Everything opened is released by Close.
type dependencies struct {
	settings config.Settings
	closers  []func()

	repo     *store.Repository
	client   *ethclient.Client
	reader   *chain.Reader
	vault    *keyvault.Vault
	actions  *execution.Store
	sessions session.Store
	pinger   func(context.Context) error
	events   events.Publisher
	metrics  *metrics.Metrics
	router   *txrouter.Router
	indexer  *indexer.Client
	engine   *flow.Engine
}

func newDependencies(settings config.Settings) *dependencies {
	return &dependencies{settings: settings}
}

func (d *dependencies) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}

func (d *dependencies) Repository(ctx context.Context) (*store.Repository, error) {
	if d.repo != nil {
		return d.repo, nil
	}
	repo, err := store.Open(ctx, d.settings.StoreDriver, d.settings.StoreDSN)
	if err != nil {
		return nil, err
	}
	d.repo = repo
	d.closers = append(d.closers, func() { _ = repo.Close() })
	return repo, nil
}

func (d *dependencies) ethClient(ctx context.Context) (*ethclient.Client, error) {
	if d.client != nil {
		return d.client, nil
	}
	rpcURL, err := registry.ResolveRPCURL(d.settings.RPCURL, d.settings.ChainID)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "resolve rpc url", err)
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "connect rpc", err)
	}
	d.client = client
	d.closers = append(d.closers, client.Close)
	return client, nil
}

func (d *dependencies) Reader(ctx context.Context) (*chain.Reader, error) {
	if d.reader != nil {
		return d.reader, nil
	}
	client, err := d.ethClient(ctx)
	if err != nil {
		return nil, err
	}
	repo, err := d.Repository(ctx)
	if err != nil {
		return nil, err
	}
	multicall, err := id.ParseAddress(d.settings.Multicall)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "invalid multicall address", err)
	}
	d.reader = chain.NewReader(client, d.settings.ChainID, multicall, repo, logging.Component("chain"))
	return d.reader, nil
}

func (d *dependencies) Vault(ctx context.Context) (*keyvault.Vault, error) {
	if d.vault != nil {
		return d.vault, nil
	}
	if strings.TrimSpace(d.settings.Mnemonic) == "" {
		return nil, clierr.New(clierr.CodeUsage, "master mnemonic is not set; export "+d.settings.MnemonicEnv)
	}
	repo, err := d.Repository(ctx)
	if err != nil {
		return nil, err
	}
	vault, err := keyvault.New(repo, d.settings.Mnemonic, keyvault.Options{
		Passphrase:     d.settings.Passphrase,
		ExportInterval: d.settings.ExportKeyInterval,
	}, logging.Component("keyvault"))
	if err != nil {
		return nil, err
	}
	d.vault = vault
	d.closers = append(d.closers, vault.Close)
	return vault, nil
}

func (d *dependencies) ActionStore() (*execution.Store, error) {
	if d.actions != nil {
		return d.actions, nil
	}
	st, err := execution.OpenStore(d.settings.ActionStorePath, d.settings.ActionLockPath)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodePersistence, "open action store", err)
	}
	d.actions = st
	d.closers = append(d.closers, func() { _ = st.Close() })
	return st, nil
}

func (d *dependencies) Sessions(ctx context.Context) (session.Store, error) {
	if d.sessions != nil {
		return d.sessions, nil
	}
	switch d.settings.SessionBackend {
	case "redis":
		st, err := session.OpenRedis(ctx, session.RedisConfig{
			Address:  d.settings.RedisAddr,
			Password: d.settings.RedisPassword,
			DB:       d.settings.RedisDB,
			TTL:      d.settings.SessionTTL,
		})
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUnavailable, "open redis session store", err)
		}
		d.sessions = st
		d.pinger = st.Ping
	default:
		st, err := session.OpenSQLite(d.settings.SessionPath, d.settings.SessionLockPath, d.settings.SessionTTL)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodePersistence, "open session store", err)
		}
		d.sessions = st
	}
	sessions := d.sessions
	d.closers = append(d.closers, func() { _ = sessions.Close() })
	return d.sessions, nil
}

func (d *dependencies) Events() events.Publisher {
	if d.events != nil {
		return d.events
	}
	log := logging.Component("events")
	d.events = events.NewLogPublisher(log)
	if d.settings.AMQPURL != "" {
		publisher, err := events.NewAMQPPublisher(events.AMQPConfig{URL: d.settings.AMQPURL, Exchange: d.settings.AMQPExchange})
		if err != nil {
			log.Warn().Err(err).Msg("amqp unavailable, events go to the log only")
		} else {
			d.events = publisher
		}
	}
	publisher := d.events
	d.closers = append(d.closers, func() { _ = publisher.Close() })
	return d.events
}

func (d *dependencies) Metrics() *metrics.Metrics {
	if d.metrics == nil {
		d.metrics = metrics.New()
	}
	return d.metrics
}

func (d *dependencies) Router(ctx context.Context) (*txrouter.Router, error) {
	if d.router != nil {
		return d.router, nil
	}
	reader, err := d.Reader(ctx)
	if err != nil {
		return nil, err
	}
	vault, err := d.Vault(ctx)
	if err != nil {
		return nil, err
	}
	actions, err := d.ActionStore()
	if err != nil {
		return nil, err
	}
	client, err := d.ethClient(ctx)
	if err != nil {
		return nil, err
	}
	var routerAddr common.Address
	if strings.TrimSpace(d.settings.Router) != "" {
		routerAddr, err = id.ParseAddress(d.settings.Router)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "invalid router address", err)
		}
	}

	executor := execution.NewExecutor(client, actions, execution.ExecuteOptions{
		PollInterval:       d.settings.PollInterval,
		ConfirmTimeout:     d.settings.ConfirmTimeout,
		GasMultiplier:      d.settings.GasMultiplier,
		MaxFeeGwei:         d.settings.MaxFeeGwei,
		MaxPriorityFeeGwei: d.settings.MaxPriorityGwei,
	}, logging.Component("executor"))
	d.router = txrouter.New(txrouter.Config{
		Chain:            id.ChainFromID(d.settings.ChainID),
		Router:           routerAddr,
		ExecutionTimeout: d.settings.ExecutionTimeout,
		ExplorerTxURL:    d.settings.ExplorerTxURL,
	}, reader, vault, policy.NewAuthorizer(vault, reader), executor,
		txrouter.WithEvents(d.Events()),
		txrouter.WithMetrics(d.Metrics()),
		txrouter.WithLogger(logging.Component("txrouter")),
	)
	return d.router, nil
}

func (d *dependencies) Indexer() *indexer.Client {
	if d.indexer == nil {
		d.indexer = indexer.New(httpx.New(d.settings.Timeout, d.settings.Retries, httpx.WithLogger(logging.Component("indexer"))), d.settings.IndexerURL)
	}
	return d.indexer
}

func (d *dependencies) Engine(ctx context.Context) (*flow.Engine, error) {
	if d.engine != nil {
		return d.engine, nil
	}
	repo, err := d.Repository(ctx)
	if err != nil {
		return nil, err
	}
	vault, err := d.Vault(ctx)
	if err != nil {
		return nil, err
	}
	reader, err := d.Reader(ctx)
	if err != nil {
		return nil, err
	}
	router, err := d.Router(ctx)
	if err != nil {
		return nil, err
	}
	sessions, err := d.Sessions(ctx)
	if err != nil {
		return nil, err
	}
	d.engine = flow.New(repo, vault, reader, d.Indexer(), router, sessions,
		flow.WithMetrics(d.Metrics()),
		flow.WithLogger(logging.Component("flow")),
	)
	return d.engine, nil
}

// HealthChecks are the readiness probes for whatever has been opened.
func (d *dependencies) HealthChecks() map[string]metrics.HealthFunc {
	checks := map[string]metrics.HealthFunc{}
	if d.repo != nil {
		checks["store"] = d.repo.Ping
	}
	if d.pinger != nil {
		checks["sessions"] = d.pinger
	}
	if d.client != nil {
		client := d.client
		checks["rpc"] = func(ctx context.Context) error {
			_, err := client.ChainID(ctx)
			return err
		}
	}
	return checks
}

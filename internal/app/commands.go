package app

import (
	"context"
	"math/big"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	clierr "github.com/ggonzalez94/agencybot/internal/errors"
	"github.com/ggonzalez94/agencybot/internal/execution"
	"github.com/ggonzalez94/agencybot/internal/id"
	"github.com/ggonzalez94/agencybot/internal/logging"
	"github.com/ggonzalez94/agencybot/internal/metrics"
	"github.com/ggonzalez94/agencybot/internal/model"
)

func (s *runtimeState) newChatCommand() *cobra.Command {
	var user int64
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the bot on stdin as a single user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if user <= 0 {
				return clierr.New(clierr.CodeUsage, "--user must be a positive external id")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			engine, err := s.deps.Engine(ctx)
			if err != nil {
				return err
			}
			if err := engine.Serve(ctx, newConsoleTransport(cmd.InOrStdin(), cmd.OutOrStdout(), user)); err != nil && ctx.Err() == nil {
				return clierr.Wrap(clierr.CodeUnavailable, "chat", err)
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&user, "user", 0, "External user id to chat as")
	return cmd
}

func (s *runtimeState) newServeCommand() *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve \"<user id> <message>\" lines from stdin with metrics and health endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			engine, err := s.deps.Engine(ctx)
			if err != nil {
				return err
			}
			s.reportInFlight()
			addr := strings.TrimSpace(metricsAddr)
			if addr == "" {
				addr = s.settings.MetricsAddr
			}

			serveCtx, cancelServe := context.WithCancel(ctx)
			defer cancelServe()
			serverErr := make(chan error, 1)
			if addr != "" {
				server := metrics.NewServer(addr, s.deps.Metrics(), s.deps.HealthChecks(), logging.Component("http"))
				go func() {
					err := server.Run(serveCtx)
					if err != nil {
						cancelServe()
					}
					serverErr <- err
				}()
			} else {
				close(serverErr)
			}

			err = engine.Serve(serveCtx, newConsoleTransport(cmd.InOrStdin(), cmd.OutOrStdout(), 0))
			cancelServe()
			if srvErr := <-serverErr; srvErr != nil {
				return clierr.Wrap(clierr.CodeUnavailable, "metrics server", srvErr)
			}
			if err != nil && ctx.Err() == nil {
				return clierr.Wrap(clierr.CodeUnavailable, "serve", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Listen address for /metrics, /healthz and /ready")
	return cmd
}

func (s *runtimeState) newAccountCommand() *cobra.Command {
	root := &cobra.Command{Use: "account", Short: "Custodial account commands"}
	var user int64

	address := &cobra.Command{
		Use:   "address",
		Short: "Print the deposit address of a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if user <= 0 {
				return clierr.New(clierr.CodeUsage, "--user must be a positive external id")
			}
			ctx, cancel := s.commandContext(cmd)
			defer cancel()
			vault, err := s.deps.Vault(ctx)
			if err != nil {
				return err
			}
			addr, err := vault.ResolveAddress(ctx, user)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), model.AccountAddress{
				ExternalID: user,
				Address:    addr.Hex(),
				ChainID:    s.settings.ChainID,
			})
		},
	}

	exportKey := &cobra.Command{
		Use:   "export-key",
		Short: "Print the private key of a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if user <= 0 {
				return clierr.New(clierr.CodeUsage, "--user must be a positive external id")
			}
			ctx, cancel := s.commandContext(cmd)
			defer cancel()
			vault, err := s.deps.Vault(ctx)
			if err != nil {
				return err
			}
			addr, err := vault.ResolveAddress(ctx, user)
			if err != nil {
				return err
			}
			key, err := vault.ExportPrivateKey(ctx, user)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), model.ExportedKey{
				ExternalID: user,
				Address:    addr.Hex(),
				PrivateKey: key,
			})
		},
	}

	root.PersistentFlags().Int64Var(&user, "user", 0, "External user id")
	root.AddCommand(address)
	root.AddCommand(exportKey)
	return root
}

func (s *runtimeState) newAgencyCommand() *cobra.Command {
	root := &cobra.Command{Use: "agency", Short: "Agency inspection commands"}

	quote := &cobra.Command{
		Use:   "quote <agency>",
		Short: "Read strategy and wrap/unwrap prices from chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			agency, err := id.ParseAddress(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := s.commandContext(cmd)
			defer cancel()
			data, err := s.agencyQuote(ctx, agency)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data)
		},
	}

	info := &cobra.Command{
		Use:   "info <agency>",
		Short: "Describe an agency from the indexer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			agency, err := id.ParseAddress(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := s.commandContext(cmd)
			defer cancel()
			found, ok, err := s.deps.Indexer().QueryDotAgency(ctx, agency)
			if err != nil {
				return err
			}
			if !ok {
				return clierr.New(clierr.CodeInputValidation, "agency not found in the indexer")
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), model.AgencyInfo{
				Agency:         found.AgencyAddress,
				App:            found.AppAddress,
				AppName:        found.AppName,
				Currency:       found.Currency.Address,
				Symbol:         found.Currency.Symbol,
				Decimals:       found.Currency.Decimals,
				TVL:            id.FormatUnits(found.TVL, int(found.Currency.Decimals)),
				MintPrice:      id.FormatUnits(found.MintPrice, int(found.Currency.Decimals)),
				MintFeePercent: id.FormatPercent(found.MintFeePercent),
				BurnFeePercent: id.FormatPercent(found.BurnFeePercent),
				TotalSupply:    bigString(found.TotalSupply),
			})
		},
	}

	var owner string
	tokens := &cobra.Command{
		Use:   "tokens <agency>",
		Short: "List wrapper tokens an address holds for an agency",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			agency, err := id.ParseAddress(args[0])
			if err != nil {
				return err
			}
			holder, err := id.ParseAddress(owner)
			if err != nil {
				return err
			}
			ctx, cancel := s.commandContext(cmd)
			defer cancel()
			held, err := s.deps.Indexer().QueryAccountTokens(ctx, holder, agency)
			if err != nil {
				return err
			}
			data := make([]model.HeldToken, 0, len(held))
			for _, t := range held {
				data = append(data, model.HeldToken{TokenID: bigString(t.TokenID), Name: t.Name})
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data)
		},
	}
	tokens.Flags().StringVar(&owner, "owner", "", "Holder address")
	_ = tokens.MarkFlagRequired("owner")

	root.AddCommand(quote)
	root.AddCommand(info)
	root.AddCommand(tokens)
	return root
}

func (s *runtimeState) agencyQuote(ctx context.Context, agency common.Address) (model.AgencyQuote, error) {
	reader, err := s.deps.Reader(ctx)
	if err != nil {
		return model.AgencyQuote{}, err
	}
	strategy, err := reader.Strategy(ctx, agency)
	if err != nil {
		return model.AgencyQuote{}, err
	}
	meta, err := reader.TokenMeta(ctx, strategy.Currency)
	if err != nil {
		return model.AgencyQuote{}, err
	}
	name, err := reader.Name(ctx, strategy.App)
	if err != nil {
		return model.AgencyQuote{}, err
	}
	supply, err := reader.TotalSupply(ctx, strategy.App)
	if err != nil {
		return model.AgencyQuote{}, err
	}
	maxSupply, err := reader.MaxSupply(ctx, strategy.App)
	if err != nil {
		return model.AgencyQuote{}, err
	}
	wrap, err := reader.WrapQuote(ctx, agency, strategy.App)
	if err != nil {
		return model.AgencyQuote{}, err
	}
	unwrap, err := reader.UnwrapQuote(ctx, agency, strategy.App)
	if err != nil {
		return model.AgencyQuote{}, err
	}
	decimals := int(meta.Decimals)
	return model.AgencyQuote{
		Agency:         agency.Hex(),
		App:            strategy.App.Hex(),
		Name:           name,
		Currency:       strategy.Currency.Hex(),
		Symbol:         meta.Symbol,
		Decimals:       meta.Decimals,
		BasePremium:    id.FormatUnits(strategy.BasePremium, decimals),
		MintFeePercent: id.FormatPercent(strategy.MintFeePercent),
		BurnFeePercent: id.FormatPercent(strategy.BurnFeePercent),
		TotalSupply:    bigString(supply),
		MaxSupply:      bigString(maxSupply),
		WrapPrice:      id.FormatUnits(wrap.Price, decimals),
		WrapFee:        id.FormatUnits(wrap.Fee, decimals),
		WrapTotal:      id.FormatUnits(wrap.Total(), decimals),
		UnwrapPrice:    id.FormatUnits(unwrap.Price, decimals),
		UnwrapFee:      id.FormatUnits(unwrap.Fee, decimals),
		UnwrapNet:      id.FormatUnits(unwrap.Net(), decimals),
	}, nil
}

func (s *runtimeState) newActionsCommand() *cobra.Command {
	root := &cobra.Command{Use: "actions", Short: "Inspect recorded wrap, unwrap and approve actions"}

	var status string
	var user int64
	var limit int
	var inFlight bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List recorded actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := s.deps.ActionStore()
			if err != nil {
				return err
			}
			var items []execution.Action
			switch {
			case inFlight:
				items, err = st.ListInFlight(limit)
			case user > 0:
				items, err = st.ListByUser(user, limit)
			default:
				items, err = st.List(status, limit)
			}
			if err != nil {
				return clierr.Wrap(clierr.CodePersistence, "list actions", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), items)
		},
	}
	list.Flags().StringVar(&status, "status", "", "Filter by status (planned, running, submitted, completed, failed)")
	list.Flags().Int64Var(&user, "user", 0, "Filter by external user id")
	list.Flags().IntVar(&limit, "limit", 20, "Maximum actions to return")
	list.Flags().BoolVar(&inFlight, "in-flight", false, "Only actions still running or awaiting confirmation")

	show := &cobra.Command{
		Use:   "show <action id>",
		Short: "Show one recorded action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := s.deps.ActionStore()
			if err != nil {
				return err
			}
			action, err := st.Get(strings.TrimSpace(args[0]))
			if err != nil {
				return clierr.Wrap(clierr.CodePersistence, "read action", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), action)
		},
	}

	root.AddCommand(list)
	root.AddCommand(show)
	return root
}

// reportInFlight warns about actions a previous process left without a known
// outcome. Their transactions may still confirm, so nothing is retried.
func (s *runtimeState) reportInFlight() {
	st, err := s.deps.ActionStore()
	if err != nil {
		return
	}
	log := logging.Component("app")
	pending, err := st.ListInFlight(0)
	if err != nil {
		log.Warn().Err(err).Msg("list in-flight actions")
		return
	}
	for _, action := range pending {
		log.Warn().
			Str("action_id", action.ActionID).
			Str("intent", action.IntentType).
			Str("status", string(action.Status)).
			Int64("external_id", action.ExternalID).
			Str("tx_hash", action.LastTxHash()).
			Msg("action from a previous run has no recorded outcome")
	}
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

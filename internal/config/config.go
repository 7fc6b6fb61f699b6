package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ggonzalez94/agencybot/internal/registry"
)

const (
	DefaultChainID     int64 = 11155111
	DefaultMnemonicEnv       = "AGENCYBOT_MNEMONIC"
)

type GlobalFlags struct {
	ConfigPath     string
	JSON           bool
	Plain          bool
	Select         string
	ResultsOnly    bool
	EnableCommands string
	Timeout        string
	Retries        int
	ChainID        int64
	RPCURL         string
	LogLevel       string
	LogFormat      string
}

type Settings struct {
	OutputMode     string
	SelectFields   []string
	ResultsOnly    bool
	EnableCommands []string
	Timeout        time.Duration
	Retries        int

	ChainID       int64
	RPCURL        string
	Router        string
	Multicall     string
	IndexerURL    string
	ExplorerTxURL string

	MnemonicEnv string
	Mnemonic    string
	Passphrase  string

	StoreDriver string
	StoreDSN    string

	ActionStorePath string
	ActionLockPath  string

	SessionBackend  string
	SessionPath     string
	SessionLockPath string
	SessionTTL      time.Duration
	RedisAddr       string
	RedisPassword   string
	RedisDB         int

	AMQPURL      string
	AMQPExchange string
	MetricsAddr  string

	ExecutionTimeout time.Duration
	ConfirmTimeout   time.Duration
	PollInterval     time.Duration
	GasMultiplier    float64
	MaxFeeGwei       string
	MaxPriorityGwei  string

	LogLevel  string
	LogFormat string

	ExportKeyInterval time.Duration
}

type fileConfig struct {
	Output  string `yaml:"output"`
	Timeout string `yaml:"timeout"`
	Retries *int   `yaml:"retries"`
	Chain   struct {
		ID          int64  `yaml:"id"`
		RPCURL      string `yaml:"rpc_url"`
		Router      string `yaml:"router"`
		Multicall   string `yaml:"multicall"`
		ExplorerURL string `yaml:"explorer_tx_url"`
	} `yaml:"chain"`
	Indexer struct {
		URL string `yaml:"url"`
	} `yaml:"indexer"`
	Vault struct {
		MnemonicEnv       string `yaml:"mnemonic_env"`
		PassphraseEnv     string `yaml:"passphrase_env"`
		ExportKeyInterval string `yaml:"export_key_interval"`
	} `yaml:"vault"`
	Store struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
		DSNEnv string `yaml:"dsn_env"`
	} `yaml:"store"`
	Session struct {
		Backend  string `yaml:"backend"`
		TTL      string `yaml:"ttl"`
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
		Redis    struct {
			Addr        string `yaml:"addr"`
			PasswordEnv string `yaml:"password_env"`
			DB          *int   `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"session"`
	Events struct {
		AMQPURL  string `yaml:"amqp_url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"events"`
	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
	Execution struct {
		ActionsPath     string   `yaml:"actions_path"`
		ActionsLockPath string   `yaml:"actions_lock_path"`
		Timeout         string   `yaml:"timeout"`
		ConfirmTimeout  string   `yaml:"confirm_timeout"`
		PollInterval    string   `yaml:"poll_interval"`
		GasMultiplier   *float64 `yaml:"gas_multiplier"`
		MaxFeeGwei      string   `yaml:"max_fee_gwei"`
		MaxPriorityGwei string   `yaml:"max_priority_fee_gwei"`
	} `yaml:"execution"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}

	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	if err := applyEnv(&settings); err != nil {
		return Settings{}, err
	}

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 10 * time.Second
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	if settings.SessionTTL <= 0 {
		settings.SessionTTL = 10 * time.Minute
	}
	if settings.ExecutionTimeout <= 0 {
		settings.ExecutionTimeout = 2 * time.Minute
	}
	if settings.GasMultiplier <= 1 {
		settings.GasMultiplier = 1.2
	}
	if settings.Router == "" {
		if router, ok := registry.AgencyRouter(settings.ChainID); ok {
			settings.Router = router
		}
	}
	if settings.Multicall == "" {
		settings.Multicall = registry.Multicall3
	}
	settings.Mnemonic = strings.TrimSpace(os.Getenv(settings.MnemonicEnv))

	return settings, nil
}

func defaultSettings() (Settings, error) {
	dataDir, err := defaultDataDir()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		OutputMode:        "json",
		Timeout:           10 * time.Second,
		Retries:           2,
		ChainID:           DefaultChainID,
		MnemonicEnv:       DefaultMnemonicEnv,
		StoreDriver:       "sqlite",
		StoreDSN:          filepath.Join(dataDir, "agencybot.db"),
		ActionStorePath:   filepath.Join(dataDir, "actions.db"),
		ActionLockPath:    filepath.Join(dataDir, "actions.lock"),
		SessionBackend:    "sqlite",
		SessionPath:       filepath.Join(dataDir, "sessions.db"),
		SessionLockPath:   filepath.Join(dataDir, "sessions.lock"),
		SessionTTL:        10 * time.Minute,
		AMQPExchange:      "agencybot.events",
		ExecutionTimeout:  2 * time.Minute,
		ConfirmTimeout:    0,
		PollInterval:      2 * time.Second,
		GasMultiplier:     1.2,
		LogLevel:          "info",
		LogFormat:         "console",
		ExportKeyInterval: time.Minute,
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "agencybot", "config.yaml"), nil
}

func defaultDataDir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "agencybot"), nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if err := setDuration(cfg.Timeout, "timeout", &settings.Timeout); err != nil {
		return err
	}
	if cfg.Retries != nil {
		settings.Retries = *cfg.Retries
	}
	if cfg.Chain.ID != 0 {
		settings.ChainID = cfg.Chain.ID
	}
	setString(cfg.Chain.RPCURL, &settings.RPCURL)
	setString(cfg.Chain.Router, &settings.Router)
	setString(cfg.Chain.Multicall, &settings.Multicall)
	setString(cfg.Chain.ExplorerURL, &settings.ExplorerTxURL)
	setString(cfg.Indexer.URL, &settings.IndexerURL)

	setString(cfg.Vault.MnemonicEnv, &settings.MnemonicEnv)
	if cfg.Vault.PassphraseEnv != "" {
		settings.Passphrase = os.Getenv(cfg.Vault.PassphraseEnv)
	}
	if err := setDuration(cfg.Vault.ExportKeyInterval, "vault.export_key_interval", &settings.ExportKeyInterval); err != nil {
		return err
	}

	setString(strings.ToLower(cfg.Store.Driver), &settings.StoreDriver)
	setString(cfg.Store.DSN, &settings.StoreDSN)
	if cfg.Store.DSNEnv != "" {
		settings.StoreDSN = os.Getenv(cfg.Store.DSNEnv)
	}

	setString(strings.ToLower(cfg.Session.Backend), &settings.SessionBackend)
	if err := setDuration(cfg.Session.TTL, "session.ttl", &settings.SessionTTL); err != nil {
		return err
	}
	setString(cfg.Session.Path, &settings.SessionPath)
	setString(cfg.Session.LockPath, &settings.SessionLockPath)
	setString(cfg.Session.Redis.Addr, &settings.RedisAddr)
	if cfg.Session.Redis.PasswordEnv != "" {
		settings.RedisPassword = os.Getenv(cfg.Session.Redis.PasswordEnv)
	}
	if cfg.Session.Redis.DB != nil {
		settings.RedisDB = *cfg.Session.Redis.DB
	}

	setString(cfg.Events.AMQPURL, &settings.AMQPURL)
	setString(cfg.Events.Exchange, &settings.AMQPExchange)
	setString(cfg.Metrics.Addr, &settings.MetricsAddr)

	setString(cfg.Execution.ActionsPath, &settings.ActionStorePath)
	setString(cfg.Execution.ActionsLockPath, &settings.ActionLockPath)
	if err := setDuration(cfg.Execution.Timeout, "execution.timeout", &settings.ExecutionTimeout); err != nil {
		return err
	}
	if err := setDuration(cfg.Execution.ConfirmTimeout, "execution.confirm_timeout", &settings.ConfirmTimeout); err != nil {
		return err
	}
	if err := setDuration(cfg.Execution.PollInterval, "execution.poll_interval", &settings.PollInterval); err != nil {
		return err
	}
	if cfg.Execution.GasMultiplier != nil {
		settings.GasMultiplier = *cfg.Execution.GasMultiplier
	}
	setString(cfg.Execution.MaxFeeGwei, &settings.MaxFeeGwei)
	setString(cfg.Execution.MaxPriorityGwei, &settings.MaxPriorityGwei)

	setString(strings.ToLower(cfg.Log.Level), &settings.LogLevel)
	setString(strings.ToLower(cfg.Log.Format), &settings.LogFormat)

	return nil
}

func applyEnv(settings *Settings) error {
	if v := os.Getenv("AGENCYBOT_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("AGENCYBOT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := os.Getenv("AGENCYBOT_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.Retries = n
		}
	}
	if v := os.Getenv("AGENCYBOT_CHAIN_ID"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("parse AGENCYBOT_CHAIN_ID: %w", err)
		}
		settings.ChainID = n
	}
	setString(os.Getenv("AGENCYBOT_RPC_URL"), &settings.RPCURL)
	setString(os.Getenv("AGENCYBOT_ROUTER"), &settings.Router)
	setString(os.Getenv("AGENCYBOT_MULTICALL"), &settings.Multicall)
	setString(os.Getenv("AGENCYBOT_INDEXER_URL"), &settings.IndexerURL)
	setString(os.Getenv("AGENCYBOT_EXPLORER_TX_URL"), &settings.ExplorerTxURL)
	setString(os.Getenv("AGENCYBOT_MNEMONIC_ENV"), &settings.MnemonicEnv)
	setString(os.Getenv("AGENCYBOT_PASSPHRASE"), &settings.Passphrase)
	setString(strings.ToLower(os.Getenv("AGENCYBOT_STORE_DRIVER")), &settings.StoreDriver)
	setString(os.Getenv("AGENCYBOT_STORE_DSN"), &settings.StoreDSN)
	setString(os.Getenv("AGENCYBOT_ACTIONS_PATH"), &settings.ActionStorePath)
	setString(os.Getenv("AGENCYBOT_ACTIONS_LOCK_PATH"), &settings.ActionLockPath)
	setString(strings.ToLower(os.Getenv("AGENCYBOT_SESSION_BACKEND")), &settings.SessionBackend)
	setString(os.Getenv("AGENCYBOT_SESSION_PATH"), &settings.SessionPath)
	if v := os.Getenv("AGENCYBOT_SESSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.SessionTTL = d
		}
	}
	setString(os.Getenv("AGENCYBOT_REDIS_ADDR"), &settings.RedisAddr)
	setString(os.Getenv("AGENCYBOT_REDIS_PASSWORD"), &settings.RedisPassword)
	setString(os.Getenv("AGENCYBOT_AMQP_URL"), &settings.AMQPURL)
	setString(os.Getenv("AGENCYBOT_AMQP_EXCHANGE"), &settings.AMQPExchange)
	setString(os.Getenv("AGENCYBOT_METRICS_ADDR"), &settings.MetricsAddr)
	if v := os.Getenv("AGENCYBOT_CONFIRM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.ConfirmTimeout = d
		}
	}
	setString(strings.ToLower(os.Getenv("AGENCYBOT_LOG_LEVEL")), &settings.LogLevel)
	setString(strings.ToLower(os.Getenv("AGENCYBOT_LOG_FORMAT")), &settings.LogFormat)
	return nil
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if strings.TrimSpace(flags.Select) != "" {
		settings.SelectFields = splitList(flags.Select)
	}
	settings.ResultsOnly = flags.ResultsOnly

	if strings.TrimSpace(flags.EnableCommands) != "" {
		settings.EnableCommands = splitList(flags.EnableCommands)
	}

	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	if flags.Retries >= 0 {
		settings.Retries = flags.Retries
	}
	if flags.ChainID > 0 {
		settings.ChainID = flags.ChainID
	}
	setString(flags.RPCURL, &settings.RPCURL)
	setString(strings.ToLower(flags.LogLevel), &settings.LogLevel)
	setString(strings.ToLower(flags.LogFormat), &settings.LogFormat)

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}
	switch settings.StoreDriver {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("store driver must be sqlite or mysql")
	}
	switch settings.SessionBackend {
	case "sqlite", "redis":
	default:
		return fmt.Errorf("session backend must be sqlite or redis")
	}
	if settings.SessionBackend == "redis" && strings.TrimSpace(settings.RedisAddr) == "" {
		return fmt.Errorf("session backend redis requires a redis address")
	}
	if !registry.IsAllowedIndexerURL(settings.IndexerURL) {
		return fmt.Errorf("indexer url must use https unless it points at a loopback host")
	}

	return nil
}

func setString(value string, target *string) {
	if v := strings.TrimSpace(value); v != "" {
		*target = v
	}
}

func setDuration(value, field string, target *time.Duration) error {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("config %s: %w", field, err)
	}
	*target = d
	return nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

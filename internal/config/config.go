package config

import (
	"errors"
	"fmt"
	"maps"
	"math/big"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/jessevdk/go-flags"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/comit-network/swapharness/internal/bitcoin"
	"github.com/comit-network/swapharness/internal/ethereum"
	"github.com/comit-network/swapharness/internal/lnd"
	"github.com/comit-network/swapharness/internal/logger"
	"github.com/comit-network/swapharness/internal/scenario"
	"github.com/comit-network/swapharness/internal/utils"
)

var ErrHelp = errors.New("help requested")

type helpOptions struct {
	ShowHelp    bool `short:"h" long:"help" description:"Display this help message"`
	ShowVersion bool `short:"v" long:"version" description:"Display version and exit"`
}

// ActorOptions configure one party of the swap.
type ActorOptions struct {
	Cnd           string `long:"cnd" description:"URL of the cnd HTTP API" toml:"cnd"`
	BitcoinWallet string `long:"bitcoin.wallet" description:"Name of the bitcoind wallet of the actor" toml:"bitcoinwallet"`
	EthereumKey   string `long:"ethereum.key" description:"Hex encoded private key of the actor, generated if empty" toml:"ethereumkey"`
	FeePerByte    uint64 `long:"feeperbyte" description:"Fee rate used for bitcoin transactions the actor asks cnd for" toml:"feeperbyte"`

	LndDir string  `long:"lnddir" description:"Data directory of the lnd of the actor; macaroon and certificate default to it" toml:"lnddir"`
	Lnd    lnd.LND `group:"LND Options" toml:"lnd"`
	// Spawn starts an lnd for the actor instead of connecting to Lnd.
	Spawn lnd.InstanceConfig `group:"LND Instance Options" toml:"spawn"`
}

// HasLightning is true if the actor has an lnd configured or spawns one.
func (options *ActorOptions) HasLightning() bool {
	return options.SpawnsLnd() || options.Lnd.Host != ""
}

func (options *ActorOptions) SpawnsLnd() bool {
	return options.Spawn.Binary != ""
}

type ScenarioOptions struct {
	Name          string `long:"name" description:"Scenario to run" toml:"name"`
	Bitcoin       int64  `long:"bitcoin" description:"Satoshis alice swaps" toml:"bitcoin"`
	Beta          string `long:"beta" description:"Quantity of the beta asset bob swaps, in its smallest unit" toml:"beta"`
	MaxBitcoinFee int64  `long:"maxbitcoinfee" description:"How many satoshis less than the swapped amount bob may receive" toml:"maxbitcoinfee"`
	MaxBetaFee    string `long:"maxbetafee" description:"How much less than the beta quantity alice may receive" toml:"maxbetafee"`
}

// Amounts of the scenario, token is the erc20 contract or empty for ether.
func (options *ScenarioOptions) Amounts(token string) (scenario.Amounts, error) {
	amounts := scenario.DefaultAmounts(token)
	if options.Bitcoin > 0 {
		amounts.Bitcoin = big.NewInt(options.Bitcoin)
	}
	if options.MaxBitcoinFee > 0 {
		amounts.MaxBitcoinFee = big.NewInt(options.MaxBitcoinFee)
	}
	for _, value := range []struct {
		raw    string
		target **big.Int
	}{{options.Beta, &amounts.Beta}, {options.MaxBetaFee, &amounts.MaxBetaFee}} {
		if value.raw == "" {
			continue
		}
		parsed, ok := new(big.Int).SetString(value.raw, 10)
		if !ok || parsed.Sign() < 0 {
			return amounts, fmt.Errorf("invalid quantity: %s", value.raw)
		}
		*value.target = parsed
	}
	return amounts, nil
}

type Config struct {
	DataDir string `short:"d" long:"datadir" description:"Data directory of the harness"`

	ConfigFile string `short:"c" long:"configfile" description:"Path to configuration file"`

	LogFile    string `short:"l" long:"logfile" description:"Path to the log file"`
	LogLevel   string `long:"loglevel" description:"Log level (fatal, error, warn, info, debug, silly)"`
	LogMaxSize int    `long:"logmaxsize" description:"Maximum size of the log file in megabytes before it gets rotated"`
	LogMaxAge  int    `long:"logmaxage" description:"Maximum age of old log files in days before they get deleted"`

	Log logger.Options `toml:"-" no-flag:"true"`

	Network string `long:"network" description:"Network all ledgers run on"`

	RequestTimeout time.Duration `long:"requesttimeout" description:"Timeout of a single request to cnd" toml:"requesttimeout"`

	Alice ActorOptions `group:"Alice Options" namespace:"alice" toml:"alice"`
	Bob   ActorOptions `group:"Bob Options" namespace:"bob" toml:"bob"`

	Bitcoin  bitcoin.Config    `group:"Bitcoin Options" toml:"bitcoin"`
	Ethereum ethereum.Config   `group:"Ethereum Options" toml:"ethereum"`
	Timeouts scenario.Timeouts `group:"Timeout Options" toml:"timeouts"`
	Scenario ScenarioOptions   `group:"Scenario Options" namespace:"scenario" toml:"scenario"`

	Help helpOptions `group:"Help Options" toml:"-"`
}

func defaultConfig(dataDir string) Config {
	return Config{
		DataDir: dataDir,

		LogLevel:   "info",
		LogMaxSize: 5,
		LogMaxAge:  30,

		Network: "regtest",

		RequestTimeout: 30 * time.Second,

		Alice: ActorOptions{
			Cnd:           "http://127.0.0.1:8000",
			BitcoinWallet: "alice",
			Lnd:           lnd.LND{Port: 10009},
			Spawn:         lnd.InstanceConfig{P2pPort: 9735, RpcPort: 10009, RestPort: 8080},
		},
		Bob: ActorOptions{
			Cnd:           "http://127.0.0.1:8010",
			BitcoinWallet: "bob",
			Lnd:           lnd.LND{Port: 10010},
			Spawn:         lnd.InstanceConfig{P2pPort: 9736, RpcPort: 10010, RestPort: 8081},
		},

		Bitcoin: bitcoin.Config{
			Host: "127.0.0.1",
			Port: 18443,
			User: "bitcoin",
		},
		Ethereum: ethereum.Config{
			RpcUrl: "http://127.0.0.1:8545",
		},
		Timeouts: scenario.DefaultTimeouts(),
		Scenario: ScenarioOptions{Name: "bitcoin-for-erc20"},
	}
}

// LoadConfig parses args, then the config file and then args again so that
// flags take precedence over the file.
func LoadConfig(dataDir string, args []string) (*Config, error) {
	cfg := defaultConfig(dataDir)

	parser := flags.NewParser(&cfg, flags.IgnoreUnknown)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, fmt.Errorf("could not parse arguments: %w", err)
	}

	if cfg.Help.ShowHelp {
		parser.WriteHelp(os.Stdout)
		return nil, ErrHelp
	}
	if cfg.Help.ShowVersion {
		return &cfg, nil
	}

	cfg.DataDir = utils.ExpandHomeDir(cfg.DataDir)
	cfg.ConfigFile = utils.ExpandDefaultPath(cfg.DataDir, cfg.ConfigFile, "swapharness.toml")

	if cfg.ConfigFile != "" && utils.FileExists(cfg.ConfigFile) {
		if _, err := toml.DecodeFile(cfg.ConfigFile, &cfg); err != nil {
			return nil, fmt.Errorf("could not read config file: %w", err)
		}
		if _, err := parser.ParseArgs(args); err != nil {
			return nil, fmt.Errorf("could not parse arguments: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.Bitcoin.Network == "" {
		cfg.Bitcoin.Network = cfg.Network
	}
	if cfg.Ethereum.Network == "" {
		cfg.Ethereum.Network = cfg.Network
	}
	cfg.Bitcoin.DataDir = utils.ExpandHomeDir(cfg.Bitcoin.DataDir)

	cfg.expandLnd("alice", &cfg.Alice)
	cfg.expandLnd("bob", &cfg.Bob)

	cfg.LogFile = utils.ExpandDefaultPath(cfg.DataDir, cfg.LogFile, "swapharness.log")
	cfg.Log = logger.Options{
		Level: cfg.LogLevel,
		Logger: &lumberjack.Logger{
			Filename: cfg.LogFile,
			MaxAge:   cfg.LogMaxAge,
			MaxSize:  cfg.LogMaxSize,
		},
	}

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("could not create data directory: %w", err)
	}

	return &cfg, nil
}

func (cfg *Config) expandLnd(name string, actor *ActorOptions) {
	actor.Spawn.Name = name
	actor.Spawn.Binary = utils.ExpandHomeDir(actor.Spawn.Binary)
	if actor.Spawn.BitcoindDir == "" {
		actor.Spawn.BitcoindDir = cfg.Bitcoin.DataDir
	}

	actor.Lnd.Macaroon = utils.ExpandHomeDir(actor.Lnd.Macaroon)
	actor.Lnd.Certificate = utils.ExpandHomeDir(actor.Lnd.Certificate)

	if actor.LndDir != "" {
		actor.LndDir = utils.ExpandHomeDir(actor.LndDir)
		defaultMacaroon := fmt.Sprintf("./data/chain/bitcoin/%s/admin.macaroon", cfg.Network)
		actor.Lnd.Macaroon = utils.ExpandDefaultPath(actor.LndDir, actor.Lnd.Macaroon, defaultMacaroon)
		actor.Lnd.Certificate = utils.ExpandDefaultPath(actor.LndDir, actor.Lnd.Certificate, "tls.cert")
		if actor.Lnd.Host == "" {
			actor.Lnd.Host = "127.0.0.1"
		}
	}
}

func (cfg *Config) validate() error {
	if _, ok := scenario.Library[cfg.Scenario.Name]; !ok {
		names := slices.Sorted(maps.Keys(scenario.Library))
		return fmt.Errorf("unknown scenario %q, available: %s", cfg.Scenario.Name, strings.Join(names, ", "))
	}
	if _, err := cfg.Scenario.Amounts(""); err != nil {
		return err
	}
	if cfg.Network == "" {
		return errors.New("network must be set")
	}
	for name, actor := range map[string]ActorOptions{"alice": cfg.Alice, "bob": cfg.Bob} {
		if actor.Cnd == "" {
			return fmt.Errorf("cnd url of %s must be set", name)
		}
	}
	if cfg.Alice.Cnd == cfg.Bob.Cnd {
		return errors.New("alice and bob need their own cnd")
	}
	return nil
}

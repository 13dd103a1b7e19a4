// Command bpd is the block-provider indexing daemon: it accepts
// blocks from a trusted provider, maintains the UTXO-aware index
// described by internal/blockproc, and serves subscription queries to
// RPC clients. Shaped after cmd/kcn/main.go's cli.v1 app construction,
// trimmed to this daemon's two subcommands.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gopkg.in/urfave/cli.v1"

	"github.com/bp-node/bpd/internal/config"
	"github.com/bp-node/bpd/internal/dbkv"
	"github.com/bp-node/bpd/internal/log"
	"github.com/bp-node/bpd/internal/service"
)

// Exit codes, spec.md §6.4.
const (
	exitOK               = 0
	exitDataDirFailure    = 1
	exitDbAlreadyExists   = 2
	exitCreateDirFailure  = 3
	exitDbCreateFailure   = 4
)

var (
	logger = log.NewModuleLogger(log.ModuleCLI)

	dataDirFlag = cli.StringFlag{
		Name:  "datadir",
		Usage: "Data directory for the index database",
	}
	configFlag = cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file path",
	}
	networkFlag = cli.StringFlag{
		Name:  "network",
		Usage: "Bitcoin network expected from block providers (mainnet, testnet4, regtest, signet)",
	}
	providerAddrFlag = cli.StringFlag{
		Name:  "provider-addr",
		Usage: "Listen address for block-provider connections",
	}
	rpcAddrFlag = cli.StringFlag{
		Name:  "rpc-addr",
		Usage: "Listen address for RPC clients",
	}
	metricsAddrFlag = cli.StringFlag{
		Name:  "metrics-addr",
		Usage: "Listen address for the Prometheus /metrics endpoint (empty disables it)",
	}
	dbTypeFlag = cli.StringFlag{
		Name:  "db-type",
		Usage: "Embedded key/value backend: badger or leveldb",
	}
	kafkaBrokersFlag = cli.StringFlag{
		Name:  "kafka-brokers",
		Usage: "Comma-separated Kafka broker list for optional Mined-event republish (empty disables it)",
	}
	verbosityFlag = cli.StringFlag{
		Name:  "verbosity",
		Usage: "Log verbosity: trace, debug, info, warn, error, crit",
	}

	commonFlags = []cli.Flag{
		dataDirFlag, configFlag, networkFlag, providerAddrFlag, rpcAddrFlag,
		metricsAddrFlag, dbTypeFlag, kafkaBrokersFlag, verbosityFlag,
	}
)

func loadConfigFromContext(ctx *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(ctx.GlobalString(configFlag.Name))
	if err != nil {
		return nil, err
	}
	if v := ctx.GlobalString(dataDirFlag.Name); v != "" {
		cfg.DataDir = v
	}
	if v := ctx.GlobalString(networkFlag.Name); v != "" {
		cfg.Network = v
	}
	if v := ctx.GlobalString(providerAddrFlag.Name); v != "" {
		cfg.ProviderListenAddr = v
	}
	if v := ctx.GlobalString(rpcAddrFlag.Name); v != "" {
		cfg.RpcListenAddr = v
	}
	if ctx.IsSet(metricsAddrFlag.Name) {
		cfg.MetricsListenAddr = ctx.GlobalString(metricsAddrFlag.Name)
	}
	if v := ctx.GlobalString(dbTypeFlag.Name); v != "" {
		cfg.DbType = config.DbType(v)
	}
	if ctx.IsSet(kafkaBrokersFlag.Name) {
		cfg.KafkaBrokers = splitNonEmpty(ctx.GlobalString(kafkaBrokersFlag.Name), ',')
	}
	if v := ctx.GlobalString(verbosityFlag.Name); v != "" {
		cfg.Verbosity = v
	}
	return cfg, nil
}

func splitNonEmpty(s string, sep rune) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i, r := range s {
		if r == sep {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

func runInit(ctx *cli.Context) error {
	cfg, err := loadConfigFromContext(ctx)
	if err != nil {
		return cli.NewExitError(err.Error(), exitDataDirFailure)
	}
	if cfg.DataDir == "" {
		return cli.NewExitError("datadir is required", exitDataDirFailure)
	}

	indexDir := cfg.IndexDir()
	if _, err := os.Stat(indexDir); err == nil {
		return cli.NewExitError(fmt.Sprintf("index database already exists at %s", indexDir), exitDbAlreadyExists)
	}
	if err := os.MkdirAll(indexDir, 0o755); err != nil {
		return cli.NewExitError(err.Error(), exitCreateDirFailure)
	}

	var store dbkv.Store
	switch cfg.DbType {
	case config.DbTypeLevelDB:
		store, err = dbkv.OpenLevelDB(indexDir, true)
	default:
		store, err = dbkv.OpenBadger(indexDir, true)
	}
	if err != nil {
		return cli.NewExitError(err.Error(), exitDbCreateFailure)
	}
	store.Close()

	logger.Info("index database initialized", "dir", indexDir)
	return nil
}

func runDaemon(ctx *cli.Context) error {
	cfg, err := loadConfigFromContext(ctx)
	if err != nil {
		return cli.NewExitError(err.Error(), exitDataDirFailure)
	}
	if err := cfg.Validate(); err != nil {
		return cli.NewExitError(err.Error(), exitDataDirFailure)
	}
	log.ChangeGlobalLogLevel(cfg.Verbosity)

	n, err := service.New(cfg)
	if err != nil {
		return cli.NewExitError(err.Error(), exitDataDirFailure)
	}
	n.Start()
	logger.Info("bpd started", "provider-addr", cfg.ProviderListenAddr, "rpc-addr", cfg.RpcListenAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	n.Stop()
	return nil
}

func main() {
	app := cli.NewApp()
	app.Name = "bpd"
	app.Usage = "block-provider indexing daemon"
	app.Flags = commonFlags
	app.Action = runDaemon
	app.Commands = []cli.Command{
		{
			Name:   "init",
			Usage:  "create the index database and exit",
			Flags:  commonFlags,
			Action: runInit,
		},
	}

	if err := app.Run(os.Args); err != nil {
		if exitErr, ok := err.(*cli.ExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.Error())
			os.Exit(exitErr.ExitCode())
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

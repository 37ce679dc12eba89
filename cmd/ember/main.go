package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"

	"github.com/emberchain/ember/internal/api"
	"github.com/emberchain/ember/internal/bridge"
	"github.com/emberchain/ember/internal/chain"
	"github.com/emberchain/ember/internal/ledger"
	"github.com/emberchain/ember/internal/nft"
	"github.com/emberchain/ember/internal/primitives"
	"github.com/emberchain/ember/pkg/db/pebble"
	"github.com/emberchain/ember/pkg/log"
)

func main() {
	app := &cli.App{
		Name:  "ember",
		Usage: "NFT marketplace chain node with an Ethereum bridge",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "run the node",
				Action: run,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "config",
						Usage: "path to config file",
					},
					&cli.StringFlag{
						Name:  "data-dir",
						Usage: "database directory",
						Value: "data",
					},
					&cli.StringFlag{
						Name:  "listen",
						Usage: "API listen address",
						Value: ":8080",
					},
					&cli.StringFlag{
						Name:  "log-level",
						Usage: "trace, debug, info, warn or error",
						Value: "info",
					},
				},
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) error {
	viper.SetDefault("data_dir", c.String("data-dir"))
	viper.SetDefault("api.listen", c.String("listen"))
	viper.SetDefault("log.level", c.String("log-level"))
	viper.SetDefault("chain.block_time", "6s")
	viper.SetDefault("chain.session_length", 100)
	viper.SetDefault("chain.sessions_per_era", 6)
	// the Ethereum endpoint is local node configuration, never chain state
	viper.SetDefault("bridge.eth_endpoint", "")
	viper.SetDefault("bridge.authority_key", "")
	viper.SetDefault("bridge.poll_interval", "30s")
	viper.SetEnvPrefix("EMBER")
	viper.AutomaticEnv()

	if path := c.String("config"); path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

func run(c *cli.Context) error {
	if err := loadConfig(c); err != nil {
		return err
	}
	level, err := log.ParseLogLevel(viper.GetString("log.level"))
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	log.Init(log.Options{LogLevel: level, Type: log.ConsoleLogger})

	dataDir := viper.GetString("data_dir")
	nftKV, err := pebble.NewPersistentKVStore(filepath.Join(dataDir, "nft"))
	if err != nil {
		return fmt.Errorf("open nft store: %w", err)
	}
	defer nftKV.Close()
	ledgerKV, err := pebble.NewPersistentKVStore(filepath.Join(dataDir, "ledger"))
	if err != nil {
		return fmt.Errorf("open ledger store: %w", err)
	}
	defer ledgerKV.Close()
	bridgeKV, err := pebble.NewPersistentKVStore(filepath.Join(dataDir, "bridge"))
	if err != nil {
		return fmt.Errorf("open bridge store: %w", err)
	}
	defer bridgeKV.Close()

	sys := chain.NewSystem()
	sessions := chain.NewSessions(
		sys,
		primitives.BlockNumber(viper.GetUint64("chain.session_length")),
		viper.GetUint32("chain.sessions_per_era"),
	)
	nftMod := nft.NewModule(nftKV, ledger.New(ledgerKV), sys, nft.DefaultConfig(), log.NFT)
	bridgeMod := bridge.NewModule(bridgeKV, sys, bridge.DefaultConfig(), sessions, log.Bridge)
	sys.RegisterHook(nftMod)
	sys.RegisterHook(bridgeMod)
	sessions.RegisterHandler(bridgeMod)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:              viper.GetString("api.listen"),
		Handler:           api.NewServer(nftMod, bridgeMod, log.API).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.API.Info().Str("listen", server.Addr).Msg("api server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.API.Error().Err(err).Msg("api server stopped")
			stop()
		}
	}()

	if endpoint := viper.GetString("bridge.eth_endpoint"); endpoint != "" {
		key, err := parseAuthorityKey(viper.GetString("bridge.authority_key"))
		if err != nil {
			return err
		}
		worker := bridge.NewWorker(
			bridgeMod,
			bridge.NewJSONRPCClient(endpoint),
			localSubmitter{mod: bridgeMod},
			key,
			viper.GetDuration("bridge.poll_interval"),
			log.Offchain,
		)
		go worker.Run(ctx)
		log.Offchain.Info().Str("endpoint", endpoint).Msg("offchain worker started")
	}

	blockTime := viper.GetDuration("chain.block_time")
	go produceBlocks(ctx, sys, sessions, blockTime)

	log.Root.Info().Str("data_dir", dataDir).Msg("node started")
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.API.Warn().Err(err).Msg("api shutdown")
	}
	log.Root.Info().Msg("node stopped")
	return nil
}

// produceBlocks drives the sequential block loop: bump the number, run
// module hooks, rotate sessions on their boundaries.
func produceBlocks(ctx context.Context, sys *chain.System, sessions *chain.Sessions, blockTime time.Duration) {
	ticker := time.NewTicker(blockTime)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			before := sessions.SessionIndex()
			sys.ResetEvents()
			weight := sys.InitializeBlock(sys.BlockNumber() + 1)
			if sessions.SessionIndex() != before {
				sessions.EndSession()
			}
			log.Root.Debug().
				Uint64("block", uint64(sys.BlockNumber())).
				Uint64("weight", weight).
				Int("events", len(sys.Events())).
				Msg("block initialized")
		}
	}
}

func parseAuthorityKey(raw string) (bridge.AuthorityID, error) {
	var key bridge.AuthorityID
	decoded, err := hex.DecodeString(raw)
	if err != nil {
		return key, fmt.Errorf("decode authority key: %w", err)
	}
	if len(decoded) != len(key) {
		return key, fmt.Errorf("authority key must be %d bytes, got %d", len(key), len(decoded))
	}
	copy(key[:], decoded)
	return key, nil
}

// localSubmitter dispatches worker votes straight into the module. A
// networked node would wrap the vote in a pooled transaction instead.
type localSubmitter struct {
	mod *bridge.Module
}

func (s localSubmitter) SubmitNotarization(notary bridge.AuthorityID, claimID bridge.EventClaimID, result bridge.NotarizationResult) error {
	return s.mod.SubmitNotarization(notary, claimID, result)
}

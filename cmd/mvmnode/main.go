package main

// cmd/mvmnode is the node's entrypoint: start the chain, or generate a
// keypair. Grounded on the teacher's cmd/synnergy/main.go cobra root
// command pattern (one subcommand per operator action, flags bound
// directly on each leaf command).

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"mvmnode/core"
	"mvmnode/internal/config"
	"mvmnode/internal/server"
)

func main() {
	root := &cobra.Command{Use: "mvmnode", Short: "MVM single-chain ledger node"}
	root.AddCommand(startCmd())
	root.AddCommand(keygenCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func startCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start the node: genesis, block producer, HTTP/websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file (defaults omitted)")
	return cmd
}

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "generate a new Ed25519 keypair and print its address and mnemonic",
		RunE: func(cmd *cobra.Command, args []string) error {
			kp, mnemonic, err := core.GenerateKeypair()
			if err != nil {
				return err
			}
			fmt.Printf("address:  %s\n", kp.Address)
			fmt.Printf("mnemonic: %s\n", mnemonic)
			fmt.Println("record the mnemonic now — it is not shown again")
			return nil
		},
	}
}

func runStart(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.JSONFormatter{})
	log := logrus.WithField("component", "main")

	store, err := core.OpenStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	nodeAddr, err := ensureNodeIdentity(store, cfg)
	if err != nil {
		return fmt.Errorf("node identity: %w", err)
	}
	if cfg.ValidatorAddress == "" {
		cfg.ValidatorAddress = nodeAddr
	}

	pool := core.NewMempool()
	tokens := core.NewTokenLedger(store)
	mvm := core.NewMVM(store, tokens)

	engine := core.NewEngine(store, pool, mvm, tokens, core.EngineConfig{
		ChainID:          cfg.ChainID,
		BlockTime:        cfg.BlockTime,
		GasLimit:         cfg.GasLimit,
		MaxTxsPerBlock:   cfg.MaxTxsPerBlock,
		BlockReward:      cfg.BlockReward,
		ValidatorPercent: cfg.ValidatorPercent,
		ValidatorAddress: cfg.ValidatorAddress,
		MasterAddress:    cfg.MasterAddress,
		MasterBalance:    cfg.MasterBalance,
	})

	registry := prometheus.NewRegistry()
	engine.SetMetrics(core.NewMetrics(registry))

	var star *core.StarTransport
	switch cfg.NetworkMode {
	case "mesh":
		engine.SetTransport(core.NewMeshTransport())
	default:
		star = core.NewStarTransport()
		engine.SetTransport(star)
	}

	if err := engine.Genesis(time.Now().Unix()); err != nil {
		return fmt.Errorf("genesis: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/", server.New(store, engine, mvm, tokens, star, cfg.FaucetAmount, cfg.FaucetCooldownSeconds))

	addr := fmt.Sprintf("%s:%d", cfg.HTTPHost, cfg.HTTPPort)
	httpSrv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		log.WithField("addr", addr).Info("http server listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("http server stopped")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// ensureNodeIdentity loads the node's persisted keypair seed, generating and
// persisting a fresh one on first run, and returns its address.
func ensureNodeIdentity(store *core.Store, cfg *config.Config) (string, error) {
	seed, ok, err := store.GetKeypairSeed()
	if err != nil {
		return "", err
	}
	if ok {
		kp, err := core.KeypairFromSeed(seed)
		if err != nil {
			return "", err
		}
		logrus.WithField("address", kp.Address).Info("loaded node identity")
		return kp.Address, nil
	}
	kp, mnemonic, err := core.GenerateKeypair()
	if err != nil {
		return "", err
	}
	if err := store.SetKeypairSeed(kp.Seed()); err != nil {
		return "", err
	}
	logrus.WithField("address", kp.Address).Info("generated new node identity")
	fmt.Printf("node identity mnemonic (record this now): %s\n", mnemonic)
	return kp.Address, nil
}

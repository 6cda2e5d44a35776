// Command pocmanager runs the Proof-of-Coverage Challenge Manager as a
// standalone validator companion process.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cosmos/cosmos-sdk/client"
	"github.com/cosmos/cosmos-sdk/crypto/keyring"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"poc-challenge-manager/adminapi"
	"poc-challenge-manager/blockevents"
	"poc-challenge-manager/config"
	"poc-challenge-manager/keycache"
	"poc-challenge-manager/ledger"
	"poc-challenge-manager/logging"
	"poc-challenge-manager/manager"
	"poc-challenge-manager/onion"
	"poc-challenge-manager/pocstore"
	"poc-challenge-manager/txsubmit"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "pocmanager",
		Short: "Run the Proof-of-Coverage Challenge Manager",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "pocmanager.yaml", "path to config file")
	return cmd
}

func run(ctx context.Context, configPath string) error {
	logging.SetOutput(zerolog.New(os.Stdout).With().Timestamp().Logger())

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := pocstore.Open(cfg.Store.Dir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	keyCache := keycache.New()

	vars := ledger.ChainVars{
		PocAddrHashByteCount:       cfg.AddrFilter.ByteCount,
		PocChallengeInterval:       360,
		PocTargetPoolSize:          100,
		PocTargetHexParentRes:      7,
		PocTargetProbRandomnessWt:  1,
		PocWitnessConsiderationLim: 16,
		Hip17InteractivityBlocks:   28800,
		PocActivityFilterEnabled:   true,
		PocPerHopMaxWitnesses:      manager.PerHopMaxWitnessesDefault,
		PocVersion:                 10,
	}
	chain := ledger.NewMemLedger(vars)

	builder := onion.NewBoxBuilder()

	kr, err := keyring.New("pocmanager", cfg.ChainNode.KeyringBackend, cfg.ChainNode.KeyringDir, os.Stdin, nil)
	if err != nil {
		return fmt.Errorf("open keyring: %w", err)
	}
	clientCtx := client.Context{}.WithKeyring(kr).WithChainID(cfg.ChainNode.GrpcUrl)
	var txConfig client.TxConfig
	submitter := txsubmit.NewCosmosSubmitter(clientCtx, kr, cfg.Challenger.SignerName, txConfig)

	mgrCfg := manager.Config{
		KeyCacheGCEveryBlocks:  cfg.GC.KeyCacheEveryBlocks,
		PublicPocGCEveryBlocks: cfg.GC.PublicPocEveryBlocks,
		BootstrapRetryBackoff:  cfg.GC.BootstrapRetryBackoff,
	}
	mgr := manager.New(mgrCfg, keyCache, store, chain, builder, submitter, cfg.Challenger.PubKeyHex)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go mgr.Run(runCtx)

	src, err := blockevents.NewSource(blockevents.Config{
		URL:              fmt.Sprintf("nats://%s:%d", cfg.Nats.Host, cfg.Nats.Port),
		Subject:          "chain.blocks",
		DurableName:      "pocmanager",
		BlockEventStream: cfg.Nats.BlockEventStream,
	})
	if err != nil {
		logging.Warn("nats unavailable at startup, block events will not be consumed", logging.ModuleChain, "err", err)
	} else {
		go mgr.Bootstrap(runCtx, src)
	}

	admin := adminapi.New(mgr)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Admin.Port)
		if err := admin.Start(addr); err != nil {
			logging.Warn("admin api stopped", logging.ModulePoC, "err", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	cancel()
	mgr.Wait()
	if src != nil {
		src.Close()
	}
	return nil
}

// Copyright 2025 Certen Protocol
//
// cmd/executor is the on-chain execution orchestrator binary: it loads
// a YAML configuration, wires the chain gateway, proof engine,
// artifact store and decryptor, registers every configured contract
// with the orchestrator, and serves the status/registration HTTP API
// until it receives a shutdown signal.
package main

import (
	"context"
	"flag"
	"log"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/certen/exec-orchestrator/pkg/artifactstore"
	"github.com/certen/exec-orchestrator/pkg/chaingateway"
	"github.com/certen/exec-orchestrator/pkg/config"
	"github.com/certen/exec-orchestrator/pkg/decryptor"
	"github.com/certen/exec-orchestrator/pkg/ethereum"
	"github.com/certen/exec-orchestrator/pkg/listener"
	"github.com/certen/exec-orchestrator/pkg/orchestrator"
	"github.com/certen/exec-orchestrator/pkg/proofengine"
	"github.com/certen/exec-orchestrator/pkg/server"
	"github.com/certen/exec-orchestrator/pkg/status"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the executor's YAML configuration")
	flag.Parse()

	logger := log.New(os.Stderr, "[executor] ", log.LstdFlags)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid config: %v", err)
	}

	chaingateway.DefaultGasLimit = cfg.Gas.GasLimit
	chaingateway.DefaultGasPrice = new(big.Int).Mul(big.NewInt(cfg.Gas.GasPriceGwei), big.NewInt(1_000_000_000))

	gateway, err := buildGateway(cfg)
	if err != nil {
		logger.Fatalf("build chain gateway: %v", err)
	}

	decrypt, err := buildDecryptor(cfg)
	if err != nil {
		logger.Fatalf("build decryptor: %v", err)
	}

	metrics := status.NewMetrics(prometheus.DefaultRegisterer)

	orch := orchestrator.New(orchestrator.Deps{
		Gateway:     gateway,
		ProofEngine: proofengine.NewExec(cfg.Proving.BinaryPath),
		Artifacts:   artifactstore.New(),
		Decryptor:   decrypt,
		Paths: listener.Paths{
			ABIDir:        cfg.Paths.ABIDir,
			ProvingKeyDir: cfg.Paths.ProvingKeyDir,
			VariablesDir:  cfg.Paths.VariablesDir,
			CodeDir:       cfg.Paths.CodeDir,
			WorkingDir:    cfg.Paths.WorkingDir,
		},
		UseExistingData:   anyUseExistingData(cfg),
		PollInterval:      cfg.Scheduling.PollInterval.Duration(),
		WorkerSpacing:     cfg.Scheduling.WorkerSpacing.Duration(),
		SettlementRetries: cfg.Scheduling.SettlementRetries,
		SettlementBackoff: cfg.Scheduling.SettlementBackoff.Duration(),
		Metrics:           metrics,
		Logger:            log.New(os.Stderr, "[orchestrator] ", log.LstdFlags),
	})

	for _, c := range cfg.Contracts {
		if ok := orch.RegisterContract(c.Address, map[string]interface{}{
			"use_existing_data": c.UseExistingData,
		}); !ok {
			logger.Printf("skipping startup registration of %s: already registered", c.Address)
		}
	}

	httpServer := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: server.NewMux(orch),
	}

	go func() {
		logger.Printf("listening on %s", cfg.Server.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Printf("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("http server shutdown error: %v", err)
	}

	orch.Stop()
	logger.Printf("stopped")
}

// buildGateway constructs the EVM ChainGateway from the configured RPC
// endpoint. The per-contract calling ABI is served from paths.abi_dir,
// falling back to the embedded protocol ABI for any contract without a
// local override.
func buildGateway(cfg *config.Config) (chaingateway.ChainGateway, error) {
	client, err := ethereum.NewClient(cfg.Chain.RPCURL, cfg.Chain.ChainID)
	if err != nil {
		return nil, err
	}
	abiSource := chaingateway.LocalABIDirectory{Dir: cfg.Paths.ABIDir}
	return chaingateway.NewEVM(client, abiSource, cfg.Chain.PrivateKey), nil
}

// buildDecryptor selects the RSA decryptor when a private key path is
// configured, otherwise the identity decryptor.
func buildDecryptor(cfg *config.Config) (decryptor.Decryptor, error) {
	if cfg.Decryption.RSAPrivateKeyPath == "" {
		return decryptor.Null{}, nil
	}
	return decryptor.NewRSA(cfg.Decryption.RSAPrivateKeyPath)
}

// anyUseExistingData reports whether any configured contract asks to
// skip artifact re-download, the one UseExistingData flag the
// orchestrator's Deps applies to every Listener it constructs.
func anyUseExistingData(cfg *config.Config) bool {
	for _, c := range cfg.Contracts {
		if c.UseExistingData {
			return true
		}
	}
	return false
}

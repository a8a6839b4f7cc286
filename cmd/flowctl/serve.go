// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"axonflow/flowgraph/blocks"
	"axonflow/flowgraph/config"
	"axonflow/flowgraph/llm/bedrock"
	"axonflow/flowgraph/metrics"
	"axonflow/flowgraph/service"
	"axonflow/flowgraph/shared/logger"
	"axonflow/flowgraph/workflow"
)

func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the flowgraph HTTP API",
		Long: `Start the HTTP API for storing, validating and executing workflows.

Configuration comes from the file given with --config, FLOWGRAPH_* environment
variables and a .env file in the working directory.

Examples:
  flowctl serve --config flowgraph.yaml
  FLOWGRAPH_STORAGE_EXECUTIONS=redis FLOWGRAPH_STORAGE_REDIS_URL=redis://localhost:6379/0 flowctl serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	return cmd
}

// serve runs the API server until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config) error {
	l := logger.New("flowgraph")
	l.SetLevel(logger.ParseLevel(cfg.LogLevel))

	if cfg.HasSecretRefs() {
		sm, err := config.NewAWSSecretsManager(ctx, config.AWSSecretsManagerOptions{
			Region:   cfg.Secrets.Region,
			CacheTTL: cfg.Secrets.CacheTTL,
		})
		if err != nil {
			return err
		}
		if err := cfg.ResolveSecrets(ctx, sm); err != nil {
			return err
		}
	}

	st, err := openStores(ctx, cfg, l)
	if err != nil {
		return fmt.Errorf("failed to open stores: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			l.Warn("", "", "Failed to close stores", map[string]interface{}{"error": err.Error()})
		}
	}()

	promReg := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(promReg)
	if err != nil {
		return err
	}

	svc, err := newService(ctx, cfg, st, l, collector)
	if err != nil {
		return err
	}

	handler := service.NewHandler(svc, metrics.Handler(promReg), log.New(os.Stderr, "", log.LstdFlags))
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler.Router(cfg.Server.CORSOrigins),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		l.Info("", "", "flowgraph API listening", map[string]interface{}{
			"addr":        cfg.Server.Addr,
			"definitions": cfg.Storage.Definitions,
			"executions":  cfg.Storage.Executions,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	l.Info("", "", "Shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// modelDeps returns the llm_chat and rerank backends named by cfg. Without
// a backend the blocks still build, so definitions using them load, but
// running them fails.
func modelDeps(ctx context.Context, cfg config.ModelsConfig) (blocks.Deps, error) {
	if cfg.Provider != config.ModelsBedrock {
		return offlineDeps, nil
	}
	client, err := bedrock.New(ctx, bedrock.Options{Region: cfg.Region, Model: cfg.Model})
	if err != nil {
		return blocks.Deps{}, err
	}
	return blocks.Deps{Provider: client, Reranker: client}, nil
}

// newService wires the block registry, executor and stores into a service
// and loads the definitions directory.
func newService(ctx context.Context, cfg *config.Config, st *stores, l *logger.Logger, observers ...workflow.Observer) (*service.Service, error) {
	deps, err := modelDeps(ctx, cfg.Models)
	if err != nil {
		return nil, err
	}
	deps.HTTPClient = &http.Client{Timeout: cfg.Blocks.HTTPTimeout}
	deps.AllowPrivateIPs = cfg.Blocks.AllowPrivateIPs
	reg, err := newRegistry(deps)
	if err != nil {
		return nil, err
	}

	opts := []workflow.ExecutorOption{
		workflow.WithLogger(l),
		workflow.WithObserver(workflow.NewLogObserver(l)),
		workflow.WithMaxParallel(cfg.Executor.MaxParallel),
		workflow.WithFailurePolicy(workflow.FailurePolicy(cfg.Executor.FailurePolicy)),
	}
	for _, o := range observers {
		opts = append(opts, workflow.WithObserver(o))
	}

	svc, err := service.New(service.Options{
		Registry:         reg,
		Executor:         workflow.NewExecutor(opts...),
		Definitions:      st.definitions,
		Executions:       st.executions,
		Logger:           l,
		ExecutionTimeout: cfg.Server.ExecutionTimeout,
	})
	if err != nil {
		return nil, err
	}

	if cfg.DefinitionsDir != "" {
		n, err := svc.LoadDirectory(ctx, cfg.DefinitionsDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load definitions: %w", err)
		}
		l.Info("", "", "Loaded workflow definitions", map[string]interface{}{
			"count":  n,
			"dir":    cfg.DefinitionsDir,
			"models": cfg.Models.Provider,
		})
	}
	return svc, nil
}

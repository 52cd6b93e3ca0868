// Command taskd serves the task REST API the sync client talks to.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"todo-sync/app/config"
	"todo-sync/app/controllers"
	"todo-sync/app/logging"
	"todo-sync/app/models"
	"todo-sync/app/routes"
	"todo-sync/app/services"
)

var (
	configPath string
	storeFlag  string
	addrFlag   string
	seedPath   string
)

var rootCmd = &cobra.Command{
	Use:           "taskd",
	Short:         "Serve the task API",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "config file (default ./todo.yaml)")
	rootCmd.Flags().StringVar(&storeFlag, "store", "", "task store: neo4j or memory (overrides server.store)")
	rootCmd.Flags().StringVar(&addrFlag, "addr", "", "listen address (overrides server.addr)")
	rootCmd.Flags().StringVar(&seedPath, "seed", "", "JSON file of tasks to load into the memory store")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if storeFlag != "" {
		cfg.Server.Store = storeFlag
	}
	if addrFlag != "" {
		cfg.Server.Addr = addrFlag
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log, os.Stderr, "taskd")
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	repo, closeRepo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	taskController := controllers.NewTaskController(repo, logger)
	router := mux.NewRouter()
	routes.RegisterRoutes(router, taskController, cfg.Server.Token)

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr, "store", cfg.Server.Store)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// openRepository builds the configured store. The returned func releases it.
func openRepository(ctx context.Context, cfg *config.Config, logger *log.Logger) (services.Repository, func(), error) {
	if cfg.Server.Store == "memory" {
		repo := services.NewMemoryRepository()
		if seedPath != "" {
			if err := seed(repo, seedPath); err != nil {
				return nil, nil, err
			}
			logger.Info("seeded memory store", "file", seedPath)
		}
		return repo, func() {}, nil
	}

	if seedPath != "" {
		return nil, nil, errors.New("--seed requires --store memory")
	}
	driver, err := config.InitNeo4j(cfg.Neo4j)
	if err != nil {
		return nil, nil, fmt.Errorf("init neo4j: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(context.Background())
		return nil, nil, fmt.Errorf("connect neo4j at %s: %w", cfg.Neo4j.URI, err)
	}
	return services.NewTaskService(driver, cfg.Neo4j.Database), func() {
		driver.Close(context.Background())
	}, nil
}

func seed(repo *services.MemoryRepository, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed: %w", err)
	}
	var tasks []models.Task
	if err := json.Unmarshal(b, &tasks); err != nil {
		return fmt.Errorf("parse seed %s: %w", path, err)
	}
	return repo.Import(tasks)
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"w24fs/internal/config"
	"w24fs/internal/logger"
	"w24fs/internal/metrics"
	"w24fs/internal/mirror"
	"w24fs/internal/network"
	"w24fs/internal/query"
	"w24fs/internal/transaction"
	"w24fs/internal/types"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:           "w24server",
		Short:         "Serve file queries over the w24 protocol as a primary or mirror node",
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := config.New(cfgPath)
			if err != nil {
				return err
			}
			if err := bindFlags(cmd, v); err != nil {
				return err
			}
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			quiet, _ := cmd.Flags().GetBool("quiet")
			return run(cfg, quiet)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfgPath, "config", "", "YAML config file")
	f.String("role", "", "node role: primary or mirror")
	f.Int("port", 0, "port to listen on")
	f.String("home", "", "root of the served tree (default $HOME)")
	f.String("workdir", "", "directory for archives (default <home>/w24project)")
	f.String("mirror1", "", "Mirror1 address (primary only)")
	f.String("mirror2", "", "Mirror2 address (primary only)")
	f.Duration("dial-timeout", 0, "timeout for connecting to a mirror")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address")
	f.String("log-level", "", "error, info or debug")
	f.Bool("quiet", false, "Disable info logging (log only errors)")
	return cmd
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	bindings := map[string]string{
		"role":         "node.role",
		"port":         "node.port",
		"home":         "node.home",
		"workdir":      "node.workdir",
		"mirror1":      "mirrors.mirror1",
		"mirror2":      "mirrors.mirror2",
		"dial-timeout": "mirrors.dial_timeout",
		"metrics-addr": "metrics.addr",
		"log-level":    "logging.level",
	}
	for flag, key := range bindings {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("bind --%s: %w", flag, err)
		}
	}
	return nil
}

func run(cfg *config.Config, quiet bool) error {
	node := cfg.NodeConfig()

	// 1. Storage for archives and logs
	engine, err := query.NewEngine(node.Home, node.WorkDir)
	if err != nil {
		return err
	}

	// 2. Logging Setup
	logPath := cfg.Logging.File
	if logPath != "" && !filepath.IsAbs(logPath) {
		logPath = filepath.Join(engine.WorkDir, logPath)
	}
	var out io.Writer = os.Stdout
	if logPath != "" {
		logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer logFile.Close()
		out = io.MultiWriter(os.Stdout, logFile)
	}
	logger.Setup(out)
	defer logger.Sync()
	if quiet {
		logger.SetLevel(logger.LevelError)
	} else {
		logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	}

	logger.Info("----------------------------------------")
	logger.Info("w24 %s node initializing (home %s, workdir %s)", node.Role, engine.Home, engine.WorkDir)

	// 3. Transaction Manager
	txMgr := transaction.NewManager(engine)
	txMgr.Start()
	defer txMgr.Stop()

	// 4. Mirrors
	var proxy *mirror.Proxy
	if node.Role == types.RolePrimary {
		proxy = mirror.NewProxy(node.Mirror1, node.Mirror2, cfg.Mirrors.DialTimeout)
		logger.Info("Routing to Mirror1=%s Mirror2=%s", node.Mirror1, node.Mirror2)
	}

	// 5. Server
	server := network.NewServer(node.Port, txMgr, proxy)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr); err != nil {
				logger.Error("Metrics server error: %v", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()
	logger.Info("Server started on port %d. Press Ctrl+C to stop.", node.Port)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal("Server error: %v", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

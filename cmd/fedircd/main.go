// Command fedircd runs one node of the federated chat network: it loads
// configuration and persisted state, wires the registry, transfer
// broker, metrics, admin HTTP surface and hub together, and serves
// client and server-link connections until told to stop.
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/corvidnet/fedircd/internal/adminhttp"
	"github.com/corvidnet/fedircd/internal/config"
	"github.com/corvidnet/fedircd/internal/hub"
	"github.com/corvidnet/fedircd/internal/metrics"
	"github.com/corvidnet/fedircd/internal/registry"
	"github.com/corvidnet/fedircd/internal/store"
	"github.com/corvidnet/fedircd/internal/transfer"
)

// version is set at build time via -ldflags; "dev" otherwise.
var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "fedircd",
		Short: "A federated IRC-style chat server",
	}
	root.AddCommand(newServeCmd(), newVersionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the server version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version)
			return nil
		},
	}
}

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the server and block until shutdown",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Path to the TOML configuration file")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func serve(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := newLogger(cfg.Log)
	entry := log.WithField("server", cfg.ServerName)

	st := store.NewFileStore()
	reg := registry.New(cfg.MaxNickLength, cfg.MaxChannelsPerUser)

	var admins []store.AdminCredential
	if cfg.UsersFilePath != "" {
		_, admins, err = st.LoadConfig(cfg.UsersFilePath)
		if err != nil {
			return fmt.Errorf("loading admin credentials: %w", err)
		}
		persisted, err := st.LoadUsers(cfg.UsersFilePath)
		if err != nil {
			return fmt.Errorf("loading persisted accounts: %w", err)
		}
		for _, u := range persisted {
			reg.SeedAccount(u.Nickname, []byte(u.Password))
		}
		entry.WithField("accounts", len(persisted)).Info("fedircd: loaded persisted accounts")
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	offerTTL := time.Duration(cfg.FileTransferOfferTTL) * time.Second
	tr := transfer.New(cfg.FileTransferChunkSize, offerTTL, m, entry)

	h := hub.New(cfg, reg, st, m, tr, entry)
	if err := h.SeedAdmins(admins); err != nil {
		return fmt.Errorf("seeding admin credentials: %w", err)
	}

	var admin *adminhttp.Server
	if cfg.Admin.Enabled {
		admin = adminhttp.New(cfg.Admin.Address, h, entry)
		go func() {
			if err := admin.Serve(); err != nil {
				entry.WithError(err).Error("fedircd: admin HTTP server stopped")
			}
		}()
	}

	ln, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Address, err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() { serveErr <- h.Serve(ln) }()
	h.ConnectConfiguredLinks()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serving: %w", err)
		}
	case s := <-sig:
		entry.WithField("signal", s.String()).Info("fedircd: shutting down")
		_ = ln.Close()
		h.Shutdown()
		if admin != nil {
			admin.Shutdown()
		}
	}

	entry.Info("fedircd: shutdown complete")
	return nil
}

func newLogger(cfg config.LogConfig) *logrus.Logger {
	log := logrus.New()
	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		log.SetLevel(level)
	}
	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}

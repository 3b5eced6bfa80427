// Command barehubd indexes bare Git repositories under a scan root into a
// bbolt-backed store and serves the resulting query surface over the
// minimal HTTP stub, per spec.md §6.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/vcsindex/barehub/internal/gitcache"
	"github.com/vcsindex/barehub/internal/index"
	"github.com/vcsindex/barehub/internal/query"
	"github.com/vcsindex/barehub/internal/store"
	"github.com/vcsindex/barehub/internal/webstub"
)

const (
	flagDBStore         = "db-store"
	flagBindAddress     = "bind-address"
	flagScanPath        = "scan-path"
	flagRefreshInterval = "refresh-interval"
	flagRequestTimeout  = "request-timeout"
	flagRepoList        = "repo-list"

	cacheSize = 256
	cacheTTL  = 10 * time.Minute
)

type flags struct {
	dbStore         string
	bindAddress     string
	scanPath        string
	refreshInterval string
	requestTimeout  time.Duration
	repoList        string
}

func (f *flags) bind(fs *pflag.FlagSet) {
	fs.StringVar(&f.dbStore, flagDBStore, "./barehub.db", "directory holding the indexed store")
	fs.StringVar(&f.bindAddress, flagBindAddress, "127.0.0.1:8080", "address the query HTTP surface listens on")
	fs.StringVar(&f.scanPath, flagScanPath, ".", "root directory the discoverer walks for bare repositories")
	fs.StringVar(&f.refreshInterval, flagRefreshInterval, "5m", `interval between indexing cycles, or "never" to index once and wait for SIGHUP`)
	fs.DurationVar(&f.requestTimeout, flagRequestTimeout, 30*time.Second, "per-request timeout enforced by the HTTP surface")
	fs.StringVar(&f.repoList, flagRepoList, "", "file of newline-delimited repository paths; when set, discovery uses List mode instead of walking scan-path")
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	f := &flags{}
	cmd := &cobra.Command{
		Use:           "barehubd",
		Short:         "Index bare Git repositories and serve their query surface",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), f)
		},
	}
	f.bind(cmd.Flags())
	return cmd
}

func run(ctx context.Context, f *flags) error {
	log, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("barehubd: build logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	interval, hasInterval, err := index.ParseRefreshInterval(f.refreshInterval)
	if err != nil {
		return fmt.Errorf("barehubd: invalid %s: %w", flagRefreshInterval, err)
	}

	s, err := store.Open(f.dbStore, log)
	if err != nil {
		return fmt.Errorf("barehubd: open store: %w", err)
	}
	defer s.Close()

	driver := &index.Driver{
		Store:    s,
		Log:      log.With(zap.String("component", "indexer")),
		ScanRoot: f.scanPath,
		ListFile: f.repoList,
		Cache:    gitcache.New(cacheSize, cacheTTL),
	}
	scheduler := index.NewScheduler(driver, log.With(zap.String("component", "scheduler")), interval, hasInterval)
	go scheduler.Run()

	webLog := log.With(zap.String("component", "webstub"))
	srv := webstub.New(f.bindAddress, f.requestTimeout, query.New(s), webLog)
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe() }()
	log.Info("barehubd started", zap.String("bind_address", f.bindAddress), zap.String("scan_path", f.scanPath))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, unix.SIGHUP, unix.SIGINT, unix.SIGTERM)
	defer signal.Stop(sigCh)

	for {
		select {
		case sig := <-sigCh:
			switch sig {
			case unix.SIGHUP:
				log.Info("SIGHUP received, triggering immediate indexing cycle")
				scheduler.Wake()
			case unix.SIGINT, unix.SIGTERM:
				log.Info("shutdown signal received")
				return shutdown(log, scheduler, srv)
			}
		case err := <-serveErr:
			if err != nil {
				log.Error("web surface exited unexpectedly", zap.Error(err))
				return shutdown(log, scheduler, srv)
			}
		case <-ctx.Done():
			return shutdown(log, scheduler, srv)
		}
	}
}

func shutdown(log *zap.Logger, scheduler *index.Scheduler, srv *webstub.Server) error {
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("web surface did not shut down cleanly", zap.Error(err))
	}

	<-scheduler.Done()
	return nil
}

package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teranos/shelf/am"
	"github.com/teranos/shelf/analyzer"
	"github.com/teranos/shelf/errors"
	"github.com/teranos/shelf/internal/util"
	"github.com/teranos/shelf/logger"
	"github.com/teranos/shelf/server"
	"github.com/teranos/shelf/version"
)

// ServerCmd starts the shelf HTTP API
var ServerCmd = &cobra.Command{
	Use:     "server",
	Aliases: []string{"serve"},
	Short:   "Start the shelf HTTP API",
	Long: `Serve the bookmark store, the unit registry and the import pipeline over
HTTP. Configuration changes to the active am.toml are applied to the units
without a restart.`,
	Args: cobra.NoArgs,
	RunE: runServer,
}

var (
	serverDBPath string
	serverPort   int
)

func init() {
	ServerCmd.Flags().StringVar(&serverDBPath, "db-path", "", "Custom database path (overrides config)")
	ServerCmd.Flags().IntVar(&serverPort, "port", 0, "Listen port (overrides config)")
}

func runServer(cmd *cobra.Command, args []string) error {
	a, err := newApp(appOptions{withStore: true, dbPath: serverDBPath})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	if serverPort != 0 {
		a.cfg.Server.Port = util.Ptr(serverPort)
		if err := a.cfg.Validate(); err != nil {
			return err
		}
	}
	log := logger.ComponentLogger("server")

	stopWatchers, err := startWatchers(a, log)
	if err != nil {
		return err
	}
	defer stopWatchers()

	srv := server.New(a.cfg, a.registry, a.orchestrator, a.store,
		server.WithLogger(log),
		server.WithGatherer(a.metrics))

	ctx, stop := signal.NotifyContext(contextOf(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pterm.Info.Printfln("shelf %s listening on http://%s (database %s)",
		version.Get().Version, a.cfg.GetServerAddress(), a.dbPath)
	return srv.ListenAndServe(ctx)
}

// startWatchers starts the config watcher on the highest-precedence
// am.toml that exists, and the taxonomy watcher when enabled.
func startWatchers(a *app, log *zap.SugaredLogger) (func(), error) {
	var stops []func()
	stopAll := func() {
		for _, stop := range stops {
			stop()
		}
	}

	if path := activeConfigFile(); path != "" {
		cw, err := am.NewConfigWatcher(path, log.Named("config"))
		if err != nil {
			return nil, err
		}
		cw.OnReload(func(cfg *am.Config) error {
			return applyUnitConfig(a.registry, cfg)
		})
		am.SetGlobalWatcher(cw)
		cw.Start()
		stops = append(stops, func() {
			am.SetGlobalWatcher(nil)
			if err := cw.Stop(); err != nil {
				log.Warnw("Failed to stop config watcher", logger.FieldError, err)
			}
		})
		log.Infow("Watching config file", logger.FieldFile, path)
	}

	if a.cfg.Analyzer.WatchTaxonomy {
		tw, err := analyzer.NewTaxonomyWatcher(a.cfg.Analyzer.TaxonomyFile,
			analyzer.ConfigureThrough(a.registry, analyzer.Name), log.Named("taxonomy"))
		if err != nil {
			stopAll()
			return nil, errors.Wrap(err, "failed to watch taxonomy")
		}
		tw.Start()
		stops = append(stops, func() {
			if err := tw.Stop(); err != nil {
				log.Warnw("Failed to stop taxonomy watcher", logger.FieldError, err)
			}
		})
		log.Infow("Watching taxonomy file", logger.FieldFile, a.cfg.Analyzer.TaxonomyFile)
	}
	return stopAll, nil
}

// activeConfigFile returns the existing config file with the highest
// precedence, or "".
func activeConfigFile() string {
	paths := am.ConfigPaths()
	for i := len(paths) - 1; i >= 0; i-- {
		if _, err := os.Stat(paths[i].Path); err == nil {
			return paths[i].Path
		}
	}
	return ""
}

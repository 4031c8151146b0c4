package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/getmockd/interceptd/pkg/config"
	"github.com/getmockd/interceptd/pkg/logging"
	"github.com/getmockd/interceptd/pkg/server"
)

// shutdownTimeout bounds graceful shutdown after a signal.
const shutdownTimeout = server.DefaultShutdownTimeout

// serveFlags holds the flags of the serve command. Zero values mean the
// configuration file (or its defaults) decides.
type serveFlags struct {
	configFile    string
	port          int
	target        string
	apiPrefix     string
	rulesDir      string
	recordingsDir string
	logLevel      string
	logFormat     string
	logFile       string
	debug         bool
}

var sf serveFlags

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the intercepting proxy",
	Long: `Start the intercepting proxy.

Configuration is read from --config (JSON or YAML). Flags override the file.
When the file does not exist the defaults are used and the file is created on
the first change made through the management API.`,
	Example: `  interceptd serve
  interceptd serve --target http://localhost:3000 --port 8079
  interceptd serve --config proxy.yaml --debug`,
	RunE: runServe,
}

func init() {
	bindServeFlags(serveCmd, &sf)
	rootCmd.AddCommand(serveCmd)
}

func bindServeFlags(cmd *cobra.Command, f *serveFlags) {
	cmd.Flags().StringVarP(&f.configFile, "config", "c", config.DefaultConfigFile, "Path to the proxy configuration file")
	cmd.Flags().IntVarP(&f.port, "port", "p", config.DefaultProxyPort, "Proxy listen port")
	cmd.Flags().StringVarP(&f.target, "target", "t", "", "Upstream URL for the active config set")
	cmd.Flags().StringVar(&f.apiPrefix, "api-prefix", config.DefaultAPIPrefix, "Path prefix of the management API")
	cmd.Flags().StringVar(&f.rulesDir, "rules-dir", config.DefaultRulesDir, "Directory holding rule set documents")
	cmd.Flags().StringVar(&f.recordingsDir, "recordings-dir", config.DefaultRecordingsDir, "Directory holding recordings")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&f.logFormat, "log-format", "text", "Log format (text, json)")
	cmd.Flags().StringVar(&f.logFile, "log-file", "", "Also write JSON logs to this rotated file")
	cmd.Flags().BoolVar(&f.debug, "debug", false, "Enable verbose relay logging")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadServeConfig(cmd, sf)
	if err != nil {
		return err
	}

	log := newLogger(cfg, cmd.ErrOrStderr())
	srv, err := server.New(server.Options{
		Config:     cfg,
		ConfigPath: sf.configFile,
		Version:    Version,
		Logger:     log,
	})
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}

	set, _ := cfg.ActiveSet()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "interceptd %s listening on %s\n", displayVersion(Version), srv.Addr())
	fmt.Fprintf(out, "  upstream:  %s (%s)\n", set.TargetURL, set.ID)
	fmt.Fprintf(out, "  api:       %s\n", cfg.APIPrefix)
	fmt.Fprintf(out, "  websocket: %t\n", cfg.WebSocket.Enabled)

	return runMainLoop(cmd.Context(), out, srv)
}

// runMainLoop blocks until SIGINT, SIGTERM or ctx cancellation, then shuts
// the server down.
func runMainLoop(ctx context.Context, out io.Writer, srv *server.Server) error {
	if ctx == nil {
		ctx = context.Background()
	}
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-sigChan:
	case <-ctx.Done():
	}
	fmt.Fprintln(out, "\nShutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// loadServeConfig reads the configuration file and applies the flags the
// user set explicitly.
func loadServeConfig(cmd *cobra.Command, f serveFlags) (*config.ProxyConfig, error) {
	cfg, err := config.LoadOrDefault(f.configFile)
	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("port") {
		cfg.ProxyPort = f.port
	}
	if changed("api-prefix") {
		cfg.APIPrefix = f.apiPrefix
	}
	if changed("rules-dir") {
		cfg.RulesDir = f.rulesDir
	}
	if changed("recordings-dir") {
		cfg.RecordingsDir = f.recordingsDir
	}
	if changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if changed("log-format") {
		cfg.Log.Format = f.logFormat
	}
	if changed("log-file") {
		cfg.Log.File = f.logFile
	}
	if f.debug {
		cfg.DebugLogs = true
	}
	if f.target != "" {
		setActiveTarget(cfg, f.target)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setActiveTarget points the active config set at target, creating the
// default set when none exists.
func setActiveTarget(cfg *config.ProxyConfig, target string) {
	active, ok := cfg.ActiveSet()
	if !ok {
		cfg.ConfigSets = []config.ConfigSet{{
			ID:             config.DefaultConfigSetID,
			Name:           "Default",
			TargetURL:      target,
			RequestHeaders: map[string]string{},
		}}
		cfg.ActiveConfigSet = config.DefaultConfigSetID
		return
	}
	for i := range cfg.ConfigSets {
		if cfg.ConfigSets[i].ID == active.ID {
			cfg.ConfigSets[i].TargetURL = target
		}
	}
}

// newLogger builds the process logger from the configuration. DebugLogs
// forces the debug level.
func newLogger(cfg *config.ProxyConfig, w io.Writer) *slog.Logger {
	level := logging.ParseLevel(cfg.Log.Level)
	if cfg.DebugLogs {
		level = logging.LevelDebug
	}
	return logging.New(logging.Config{
		Level:  level,
		Format: logging.ParseFormat(cfg.Log.Format),
		Output: w,
		File:   cfg.Log.File,
	})
}

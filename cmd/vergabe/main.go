package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"vergabeflow/internal/config"
	"vergabeflow/internal/export"
	"vergabeflow/internal/generation"
	"vergabeflow/internal/logging"
	"vergabeflow/internal/session"
	"vergabeflow/internal/store"
	"vergabeflow/internal/types"
	"vergabeflow/internal/wizard"
)

var (
	// Global flags
	verbose    bool
	apiKey     string
	workspace  string
	configPath string
	timeout    time.Duration

	// Logger
	logger *zap.Logger

	// Loaded in PersistentPreRunE
	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "vergabe",
	Short: "Vergabebausteine - Bedarfsanalyse für Ihren Vergabeprozess",
	Long: `vergabe guides you through a requirements analysis for a public procurement.

Describe the project, answer the generated questions and receive a
requirements description that can be exported as PDF.

Run without arguments to start the interactive wizard.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ws, err := resolveWorkspace()
		if err != nil {
			return err
		}
		// .env is optional
		_ = godotenv.Load(filepath.Join(ws, ".env"))

		cfg, err = loadConfig(ws)
		if err != nil {
			return err
		}

		// The interactive wizard owns the terminal; it logs to file only.
		if cmd == cmd.Root() {
			return logging.Initialize(ws, cfg.Logging)
		}

		zc := zap.NewProductionConfig()
		zc.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		lc := cfg.Logging
		lc.DebugMode = lc.DebugMode || verbose
		logging.Use(logger, lc)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		_ = logging.Close()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInteractive(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "OpenRouter API key (or set OPENROUTER_API_KEY env)")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: <workspace>/.vergabe/config.yaml)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Per-request timeout for the generation service")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func resolveWorkspace() (string, error) {
	if workspace != "" {
		return filepath.Abs(workspace)
	}
	return os.Getwd()
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(ws string) (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath(ws)
	}
	c, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if apiKey != "" {
		c.Service.APIKey = apiKey
	}
	if timeout > 0 {
		c.Service.Timeout = timeout.String()
	}
	c.Resolve(ws)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return c, nil
}

// signalContext cancels on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// app holds the wired components shared by the commands.
type app struct {
	cfg     *config.Config
	gate    *session.Gate
	history *store.HistoryStore
	ctrl    *wizard.Controller
}

// newApp wires gate, generator, history and wizard from c.
// Notices from the generator and the wizard go to notifier.
func newApp(c *config.Config, notifier types.Notifier) (*app, error) {
	identity := session.NewIdentityClient(session.IdentityConfig{
		BaseURL:    c.Identity.BaseURL,
		Collection: c.Identity.Collection,
		Timeout:    c.GetIdentityTimeout(),
	})
	gate := session.NewGate(identity, session.NewFileStore(c.Identity.AuthFile))
	if strings.TrimSpace(c.Service.APIKey) != "" {
		if err := gate.SetAPIKey(c.Service.APIKey); err != nil {
			return nil, err
		}
	}

	client := generation.NewClient(generation.Config{
		BaseURL: c.Service.BaseURL,
		Timeout: c.GetServiceTimeout(),
	})

	opts := []wizard.Option{
		wizard.WithNotifier(notifier),
		wizard.WithTimeout(c.GetServiceTimeout()),
	}

	a := &app{cfg: c, gate: gate}
	if c.Store.Enabled {
		h, err := store.OpenHistory(c.Store.DatabasePath)
		if err != nil {
			return nil, err
		}
		a.history = h
		opts = append(opts, wizard.WithObserver(store.NewRecorder(h)))
	}

	a.ctrl = wizard.New(generation.NewFailSoft(client, notifier), gate, opts...)
	return a, nil
}

// restore loads a persisted login. Failures only cost the session.
func (a *app) restore(ctx context.Context) {
	if err := a.gate.Restore(ctx); err != nil {
		logging.Get(logging.CategorySession).Warnw("session restore failed", "error", err)
	}
}

func (a *app) Close() error {
	if a.history == nil {
		return nil
	}
	return a.history.Close()
}

// writePDF renders r and writes it to path.
func writePDF(r export.Report, path string) error {
	doc, err := export.Render(r)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}
	return doc.WriteFile(path)
}

// exporter writes finished analyses to the configured export path and
// records the export in the history.
func (a *app) exporter() func(wizard.State) (string, error) {
	return func(st wizard.State) (string, error) {
		if st.Stage != wizard.StageFinalDescription {
			return "", errors.New("analysis not finished")
		}
		r := export.NewReport(st.ProcurementType, st.Description, st.Questions, st.Answers, st.FinalDescription)
		r.AnalysisID = st.AnalysisID
		path := a.cfg.ExportPath()
		if err := writePDF(r, path); err != nil {
			return "", err
		}
		if a.history != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := a.history.MarkExported(ctx, st.AnalysisID, path); err != nil {
				logging.Get(logging.CategoryStore).Warnw("failed to record export", "id", st.AnalysisID, "error", err)
			}
		}
		return path, nil
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/medsim/osce/internal/api"
	appI18n "github.com/medsim/osce/internal/i18n"
	"github.com/medsim/osce/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		if errors.Is(err, api.ErrAuthRequired) {
			fmt.Fprintln(os.Stderr, "session expired or not logged in: run `osce login`")
		}
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "osce",
		Short:        "Client for the OSCE simulation platform",
		SilenceUsage: true,
	}
	root.AddCommand(
		loginCmd(),
		logoutCmd(),
		whoamiCmd(),
		competitionsCmd(),
		competeCmd(),
		practiceCmd(),
		checkCaseCmd(),
		stationsCmd(),
		studentsCmd(),
		sessionsCmd(),
		reportCmd(),
		historyCmd(),
	)
	return root
}

// commonFlags registers the flags every command understands.
func commonFlags(f *pflag.FlagSet) {
	f.StringP("server", "s", "", "OSCE server URL (defaults to the last one used)")
	f.String("db", defaultDBPath(), "Local SQLite journal path")
	f.StringP("lang", "l", "en", "UI language (en, fr)")
	f.Duration("request-timeout", 0, "Per-request timeout (default 10s)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func defaultDBPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "osce.db"
	}
	return filepath.Join(dir, "osce", "osce.db")
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("OSCE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("osce")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/osce")
	v.AddConfigPath("/etc/osce")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// env is what most commands need: the journal, a logged-in client and the
// translated labels.
type env struct {
	v      *viper.Viper
	db     *store.Store
	client *api.Client
	lang   string
	forget bool // drop the session instead of saving it on Close
}

// openEnv opens the journal, resolves the server and restores its cookies.
func openEnv(cmd *cobra.Command) (*env, error) {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return nil, fmt.Errorf("init i18n: %w", err)
	}

	dbPath := v.GetString("db")
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}
	db, err := store.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	server := v.GetString("server")
	if server == "" {
		server, err = db.LastServer()
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("read last server: %w", err)
		}
	}
	if server == "" {
		db.Close()
		return nil, errors.New("no server configured: pass --server or set OSCE_SERVER")
	}

	var opts []api.Option
	if d := v.GetDuration("request-timeout"); d > 0 {
		opts = append(opts, api.WithTimeout(d))
	}
	client, err := api.New(server, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	cookies, err := db.LoadCookies(client.BaseURL())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load cookies: %w", err)
	}
	client.SetCookies(cookies)
	slog.Debug("client ready", "server", client.BaseURL(), "cookies", len(cookies))

	return &env{v: v, db: db, client: client, lang: lang}, nil
}

// Close stores the session cookies the server may have refreshed and closes
// the journal.
func (e *env) Close() {
	if e.forget {
		if err := e.db.DeleteCookies(e.client.BaseURL()); err != nil {
			slog.Warn("failed to delete cookies", "error", err)
		}
	} else if err := e.db.SaveCookies(e.client.BaseURL(), e.client.Cookies()); err != nil {
		slog.Warn("failed to save cookies", "error", err)
	}
	if err := e.db.Close(); err != nil {
		slog.Warn("failed to close database", "error", err)
	}
}

// ctx returns a context carrying the localizer for the configured language.
func (e *env) ctx(parent context.Context) context.Context {
	return appI18n.WithLocalizer(parent, appI18n.NewLocalizer(e.lang))
}

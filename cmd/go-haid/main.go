package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/tartampluch/go-haid/internal/calendar"
	"github.com/tartampluch/go-haid/internal/config"
	"github.com/tartampluch/go-haid/internal/contact"
	"github.com/tartampluch/go-haid/internal/i18n"
	"github.com/tartampluch/go-haid/internal/observability/metrics"
	"github.com/tartampluch/go-haid/internal/server"
	"github.com/tartampluch/go-haid/internal/store"
	"github.com/tartampluch/go-haid/internal/tracker"
	"github.com/tartampluch/go-haid/internal/ws"
)

// main is the application entry point.
// It delegates execution to runMain so that deferred calls (like closing the
// log file) run before the process terminates; os.Exit skips defers.
func main() {
	os.Exit(runMain())
}

// runMain manages the application lifecycle, argument parsing, and exit codes.
func runMain() int {
	// -------------------------------------------------------------------------
	// 1. CLI Argument Parsing
	// -------------------------------------------------------------------------
	showVersion := flag.Bool(config.FlagVersion, false, config.FlagDescVersion)
	debugMode := flag.Bool(config.FlagDebug, false, config.FlagDescDebug)
	configPath := flag.String(config.FlagConfig, config.DefaultConfigPath, config.FlagDescConfig)
	setRedisPass := flag.Bool(config.FlagSetRedisPass, false, config.FlagDescSetRedis)
	flag.Parse()

	if *showVersion {
		printVersion()
		return config.ExitCodeSuccess
	}

	// -------------------------------------------------------------------------
	// 2. Logging Initialization
	// -------------------------------------------------------------------------
	logCloser := setupLogging(*debugMode)
	if logCloser != nil {
		defer func() {
			_ = logCloser.Close()
		}()
	}

	settings, err := config.Load(*configPath)
	if err == nil {
		err = settings.Validate()
	}
	if err != nil {
		slog.Error(config.ErrAppFailed,
			config.LogKeyComponent, config.CompSettings,
			config.LogKeyError, err,
		)
		return config.ExitCodeError
	}

	if *setRedisPass {
		if err := storeSecret(os.Stdin, settings.Redis.Addr); err != nil {
			slog.Error(config.ErrAppFailed,
				config.LogKeyComponent, config.CompMain,
				config.LogKeyError, err,
			)
			return config.ExitCodeError
		}
		fmt.Printf(config.MsgSecretStored, settings.Redis.Addr)
		return config.ExitCodeSuccess
	}

	if !*debugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	// -------------------------------------------------------------------------
	// 3. Context & Signal Handling
	// -------------------------------------------------------------------------
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logStartupInfo()

	// -------------------------------------------------------------------------
	// 4. Application Logic
	// -------------------------------------------------------------------------
	if err := run(ctx, settings, *configPath); err != nil {
		slog.Error(config.ErrAppFailed,
			config.LogKeyComponent, config.CompMain,
			config.LogKeyError, err,
		)
		return config.ExitCodeError
	}

	slog.Info(config.MsgAppStop, config.LogKeyComponent, config.CompMain)
	return config.ExitCodeSuccess
}

// run wires dependencies and blocks until ctx is cancelled or a component fails.
func run(ctx context.Context, settings *config.Settings, configPath string) error {
	shutdownMetrics, err := metrics.Setup(ctx, config.AppID, config.Version)
	if err != nil {
		return fmt.Errorf("%s: %w", config.ErrMetricsInit, err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
		defer cancel()
		_ = shutdownMetrics(shutdownCtx)
	}()

	classMetrics, err := metrics.NewClassificationMetrics(nil)
	if err != nil {
		return fmt.Errorf("%s: %w", config.ErrMetricsInit, err)
	}

	st, err := openStore(ctx, settings)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	catalog, err := i18n.NewCatalog(settings.Language)
	if err != nil {
		return err
	}

	loader := contact.NewLoader(contact.NewHTTPFetcher())

	svc := tracker.New(tracker.Options{
		Store:    st,
		Catalog:  catalog,
		Calendar: calendar.NewGenerator(calendar.RealClock{}),
		Metrics:  classMetrics,
		Language: settings.Language,
		Endpoint: consultEndpoint(ctx, loader, settings),
	})

	hub := ws.New(func(ctx context.Context, user string) (any, error) {
		return svc.Table(ctx, user, "")
	})
	srv := server.NewAPIServer(settings.ListenAddr, svc, hub)
	svc.Attach(hub, srv)

	go hub.Run(ctx)

	if configPath != "" {
		go func() {
			err := config.Watch(ctx, configPath, func(s *config.Settings) {
				reconfigure(ctx, svc, srv, loader, s)
			})
			if err != nil {
				slog.Error(config.ErrWatcher,
					config.LogKeyComponent, config.CompSettings,
					config.LogKeyError, err,
				)
			}
		}()
	}

	errs := make(chan error, 2)
	go func() { errs <- svc.Run(ctx) }()
	go func() { errs <- srv.Start(ctx) }()

	// The first component to return decides the outcome; the other one is
	// stopped through ctx by the deferred cancel in runMain.
	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		slog.Info(config.MsgCtxCancel, config.LogKeyComponent, config.CompMain)
		// Let the server drain before the store closes.
		for i := 0; i < cap(errs); i++ {
			if err := <-errs; err != nil {
				return err
			}
		}
		return nil
	}
}

// reconfigure applies reloaded settings and re-renders every cached calendar
// so feeds pick up the new consultation links and language.
func reconfigure(ctx context.Context, svc *tracker.Service, srv *server.APIServer, loader *contact.Loader, s *config.Settings) {
	svc.Configure(s.Language, consultEndpoint(ctx, loader, s))
	for _, user := range srv.CachedUsers() {
		svc.Refresh(ctx, user)
	}
}

// openStore builds the record store selected by the settings.
func openStore(ctx context.Context, settings *config.Settings) (store.Store, error) {
	log := slog.With(config.LogKeyComponent, config.CompStore, config.LogKeyMode, settings.Store)

	if settings.Store != config.StoreModeRedis {
		log.Info(config.MsgStoreReady)
		return store.NewMemory(), nil
	}

	if err := settings.ResolveRedisPassword(); err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:     settings.Redis.Addr,
		Password: settings.Redis.Password,
		DB:       settings.Redis.DB,
	})

	if err := redisotel.InstrumentTracing(client); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%s: %w", config.ErrRedisInstrument, err)
	}
	if err := redisotel.InstrumentMetrics(client); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%s: %w", config.ErrRedisInstrument, err)
	}

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%s: %w", config.ErrRedisConnect, err)
	}

	log.Info(config.MsgRedisConnected, config.LogKeyAddr, settings.Redis.Addr)
	return store.NewRedis(client), nil
}

// consultEndpoint returns the consultation endpoint, preferring the phone of
// the configured consultant card. A card that fails to load is logged and the
// plain endpoint is kept.
func consultEndpoint(ctx context.Context, loader *contact.Loader, settings *config.Settings) string {
	if settings.Consult.VCard == "" {
		return settings.Consult.Endpoint
	}

	consultant, err := loader.Load(ctx, settings.Consult.VCard)
	if err != nil {
		slog.Warn(config.ErrConsultantLoad,
			config.LogKeyComponent, config.CompContact,
			config.LogKeyFile, settings.Consult.VCard,
			config.LogKeyError, err,
		)
		return settings.Consult.Endpoint
	}
	return consultant.Endpoint()
}

// storeSecret reads one line from r and saves it in the OS keyring.
func storeSecret(r io.Reader, addr string) error {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%s: %w", config.ErrSecretInput, err)
	}
	pass := strings.TrimRight(line, "\r\n")
	if pass == "" {
		return errors.New(config.ErrSecretInput)
	}
	return config.StoreRedisPassword(addr, pass)
}

// printVersion outputs the build information to stdout.
func printVersion() {
	fmt.Printf(config.MsgVersionOutput,
		config.AppName,
		config.Version,
		config.Commit,
		config.Date,
		runtime.GOOS,
		runtime.GOARCH,
	)
}

// logStartupInfo logs environment details useful for debugging.
func logStartupInfo() {
	slog.Info(config.MsgAppStarting,
		config.LogKeyComponent, config.CompMain,
		slog.Group(config.LogKeyBuild,
			slog.String(config.LogKeyApp, config.AppName),
			slog.String(config.LogKeyVersion, config.Version),
			slog.String(config.LogKeyCommit, config.Commit),
			slog.String(config.LogKeyDate, config.Date),
			slog.String(config.LogKeyGoVer, runtime.Version()),
		),
		slog.Group(config.LogKeyEnv,
			slog.String(config.LogKeyOS, runtime.GOOS),
			slog.String(config.LogKeyArch, runtime.GOARCH),
			slog.Int(config.LogKeyPID, os.Getpid()),
		),
	)
}

// setupLogging configures the default slog logger.
func setupLogging(debugMode bool) io.Closer {
	var writers []io.Writer
	var logFile *os.File

	writers = append(writers, os.Stdout)

	if logPath, err := getLogFilePath(); err == nil {
		// O_TRUNC resets logs on restart to prevent indefinite growth.
		f, err := os.OpenFile(logPath, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, config.FilePermUserRW)
		if err == nil {
			writers = append(writers, f)
			logFile = f
		} else {
			fmt.Fprintf(os.Stderr, config.MsgLogWarning, config.ErrLogFile, logPath, err)
		}
	}

	level := slog.LevelInfo
	if debugMode {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: debugMode,
	}

	logger := slog.New(slog.NewJSONHandler(io.MultiWriter(writers...), opts))
	slog.SetDefault(logger)

	if logFile == nil {
		return nil
	}
	return logFile
}

// getLogFilePath determines the platform-specific cache directory for logs.
func getLogFilePath() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("%s: %w", config.ErrCacheDir, err)
	}

	appDir := filepath.Join(cacheDir, config.AppID)

	if err := os.MkdirAll(appDir, config.DirPermUserRWX); err != nil {
		return "", fmt.Errorf("%s: %w", config.ErrCreateDir, err)
	}

	return filepath.Join(appDir, config.LogFileName), nil
}

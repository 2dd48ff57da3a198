package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"chat-client/internal/api"
	"chat-client/internal/chat"
	"chat-client/internal/config"
	"chat-client/internal/console"
	"chat-client/internal/db"
	"chat-client/internal/handlers"
	"chat-client/internal/models"
	"chat-client/internal/presence"
	"chat-client/internal/rabbitmq"
	"chat-client/internal/repositories"
	"chat-client/internal/telemetry"
	"chat-client/internal/tui"
	"chat-client/internal/ws"
)

var rootCmd = &cobra.Command{
	Use:          "chat-client",
	Short:        "Terminal client for the forum's private messages",
	RunE:         runClient,
	SilenceUsage: true,
}

var (
	flagServerURL       string
	flagSession         string
	flagWSPath          string
	flagHeadless        bool
	flagLogLevel        string
	flagLogFile         string
	flagDebugAddr       string
	flagReconnectPolicy string
	flagCacheDSN        string
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagServerURL, "server-url", "", "forum base URL (env CHAT_SERVER_URL)")
	flags.StringVar(&flagSession, "session", "", "forum session_id cookie value (env CHAT_SESSION_ID)")
	flags.StringVar(&flagWSPath, "ws-path", "", "live channel path (env CHAT_WS_PATH)")
	flags.BoolVar(&flagHeadless, "headless", false, "line-oriented console instead of the full-screen UI")
	flags.StringVar(&flagLogLevel, "log-level", "", "trace, debug, info, warn or error (env LOG_LEVEL)")
	flags.StringVar(&flagLogFile, "log-file", "", "write logs to this file (env LOG_FILE)")
	flags.StringVar(&flagDebugAddr, "debug-addr", "", "serve /metrics and /debug/state on this address (env DEBUG_ADDR)")
	flags.StringVar(&flagReconnectPolicy, "reconnect-policy", "", "fixed or exponential (env CHAT_RECONNECT_POLICY)")
	flags.StringVar(&flagCacheDSN, "cache-dsn", "", "last message time cache DSN (env CHAT_CACHE_DSN)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("chat-client")
	}
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	set := func(name string, dst *string, val string) {
		if cmd.Flags().Changed(name) {
			*dst = val
		}
	}
	set("server-url", &cfg.Server.BaseURL, flagServerURL)
	set("session", &cfg.Server.SessionID, flagSession)
	set("ws-path", &cfg.Server.WSPath, flagWSPath)
	set("log-level", &cfg.Log.Level, flagLogLevel)
	set("log-file", &cfg.Log.File, flagLogFile)
	set("debug-addr", &cfg.Debug.Addr, flagDebugAddr)
	set("reconnect-policy", &cfg.Chat.ReconnectPolicy, flagReconnectPolicy)
	set("cache-dsn", &cfg.Cache.DSN, flagCacheDSN)
}

func newLogger(cfg config.LogConfig, headless bool) (zerolog.Logger, func(), error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("log level: %w", err)
	}

	var out io.Writer
	closeFn := func() {}
	switch {
	case cfg.File != "":
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
		closeFn = func() { _ = f.Close() }
	case headless:
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	default:
		// the full-screen UI owns the terminal
		out = io.Discard
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	log.Logger = logger
	return logger, closeFn, nil
}

func reconnectPolicy(cfg config.ChatConfig) ws.ReconnectPolicy {
	if cfg.ReconnectPolicy == config.PolicyExponential {
		return ws.NewExponential(cfg.ReconnectDelay, time.Minute, cfg.ReconnectMaxRetries)
	}
	return ws.FixedDelay{Delay: cfg.ReconnectDelay}
}

func runClient(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closeLog, err := newLogger(cfg.Log, flagHeadless)
	if err != nil {
		return err
	}
	defer closeLog()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.ServiceName, cfg.Telemetry.Environment)
	if err != nil {
		logger.Warn().Err(err).Msg("[main] tracing disabled")
		shutdownTracer = func(context.Context) error { return nil }
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		_ = shutdownTracer(sctx)
	}()

	publisher := rabbitmq.NewPublisher(cfg.Telemetry.AMQPURL, cfg.Telemetry.AMQPExchange, logger)
	defer publisher.Close()
	logger.Info().
		Str("mode", rabbitmq.PublisherMode(publisher)).
		Str("noop_reason", rabbitmq.PublisherNoopReason(publisher)).
		Msg("[main] event publisher ready")
	emitter := telemetry.NewEmitter(publisher, cfg.Telemetry.ServiceName, cfg.Telemetry.Environment, logger)

	client, err := api.NewClient(cfg.Server.BaseURL, cfg.Server.SessionID, cfg.Server.RequestTimeout, logger)
	if err != nil {
		return err
	}
	self, err := client.Profile(ctx)
	if err != nil {
		return fmt.Errorf("log in at %s and pass the session_id cookie with --session: %w", cfg.Server.BaseURL, err)
	}
	emitter.SetUser(self)
	logger.Info().Int("user_id", self).Msg("[main] authenticated")

	var cache presence.LastMessageStore
	if cfg.Cache.DSN != "" {
		conn, err := db.Connect(ctx, cfg.Cache.Driver, cfg.Cache.DSN, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("[main] last message cache disabled")
		} else {
			defer conn.Close()
			cache = repositories.NewLastMessageRepo(conn, self)
		}
	}

	tracker := presence.NewTracker(client, presence.Options{
		Interval: cfg.Chat.PollInterval,
		Timeout:  cfg.Server.RequestTimeout,
		Store:    cache,
		Logger:   logger,
	})
	if err := tracker.Seed(ctx); err != nil {
		logger.Warn().Err(err).Msg("[main] could not seed last message times")
	}

	var (
		renderer chat.Renderer
		ui       *tui.App
		term     *console.Console
	)
	if flagHeadless {
		term = console.New(os.Stdout)
		renderer = term
	} else {
		ui = tui.New(logger)
		renderer = ui
	}

	var ctrl *chat.Controller
	channel := ws.NewChannel(ws.Options{
		URL:       cfg.WebSocketURL(),
		Header:    client.SessionHeader(),
		Policy:    reconnectPolicy(cfg.Chat),
		Telemetry: emitter,
		Logger:    logger,
		OnEvent:   func(ev models.Event) { ctrl.HandleEvent(ev) },
		OnState:   func(s ws.State) { ctrl.SetConnected(s == ws.StateOpen) },
	})
	ctrl = chat.NewController(chat.Options{
		Self:           self,
		History:        client,
		Channel:        channel,
		Roster:         tracker,
		Renderer:       renderer,
		TypingIdle:     cfg.Chat.TypingIdle,
		RequestTimeout: cfg.Server.RequestTimeout,
		Telemetry:      emitter,
		Logger:         logger,
	})
	tracker.OnChange(ctrl.HandleRoster)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ctrl.Run(gctx)
		return nil
	})
	g.Go(func() error {
		tracker.Run(gctx)
		return nil
	})
	g.Go(func() error {
		err := channel.Run(gctx)
		if errors.Is(err, ws.ErrReconnectExhausted) {
			logger.Error().Err(err).Msg("[main] live channel stopped, restart to reconnect")
			return nil
		}
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if cfg.Debug.Addr != "" {
		srv := &http.Server{
			Addr:              cfg.Debug.Addr,
			Handler:           handlers.NewRouter(handlers.NewDebugHandler(ctrl, tracker, channel), cfg.Telemetry.ServiceName, cfg.Debug.Token),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info().Str("addr", cfg.Debug.Addr).Msg("[main] debug server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn().Err(err).Msg("[main] debug server stopped")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			return srv.Shutdown(sctx)
		})
	}

	g.Go(func() error {
		defer cancel()
		if term != nil {
			return term.Run(gctx, os.Stdin, ctrl)
		}
		return ui.Run(gctx, ctrl)
	})

	err = g.Wait()
	logger.Info().Msg("[main] shutdown complete")
	return err
}

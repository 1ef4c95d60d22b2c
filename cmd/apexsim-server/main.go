// Command apexsim-server runs the authoritative racing server: it loads
// content and configuration, binds the reliable and datagram channels,
// and drives the fixed-timestep tick loop until told to shut down.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/gdoct/apexsim-sub001/internal/codec"
	"github.com/gdoct/apexsim-sub001/internal/config"
	"github.com/gdoct/apexsim-sub001/internal/content"
	"github.com/gdoct/apexsim-sub001/internal/health"
	"github.com/gdoct/apexsim-sub001/internal/model"
	"github.com/gdoct/apexsim-sub001/internal/registry"
	"github.com/gdoct/apexsim-sub001/internal/replay"
	"github.com/gdoct/apexsim-sub001/internal/router"
	"github.com/gdoct/apexsim-sub001/internal/scheduler"
	"github.com/gdoct/apexsim-sub001/internal/transport"
)

const serverVersion = "1.0.0"

func main() {
	cfg, err := config.Load(os.Getenv("APEXSIM_CONFIG_FILE"), os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "apexsim-server: config:", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("apexsim-server exited")
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	store := content.NewStore()
	if err := loadContent(cfg, store, logger); err != nil {
		return err
	}

	healthState := health.NewState()
	healthSrv := health.NewServer(cfg.ProbeBindAddr, healthState)

	reg := registry.New(store, registry.Settings{
		TickPeriodMs:         cfg.TickPeriodMs(),
		CountdownTicks:       cfg.CountdownSeconds * cfg.TickRateHz,
		RaceTimeCeilingTicks: int64(cfg.RaceTimeCeilingSeconds) * int64(cfg.TickRateHz),
		FinishedGraceTicks:   int64(cfg.SessionCleanupGraceSeconds) * int64(cfg.TickRateHz),
		MaxSessionsSoftCap:   cfg.MaxSessionsSoftCap,
		ServerVersion:        serverVersion,
	}, logger)

	replayMgr := replay.NewManager(fileSink{dir: cfg.ReplayOutputDir}, logger)
	defer replayMgr.Close()

	connMgr := transport.NewManager(logger)
	addresses := transport.NewAddressRegistry()

	datagramSocket, err := transport.NewDatagramSocket(cfg.DatagramBindAddr, addresses, logger)
	if err != nil {
		return fmt.Errorf("binding datagram socket: %w", err)
	}

	rt := router.New(reg, connMgr, datagramSocket, addresses, router.Settings{
		HeartbeatTimeout:       time.Duration(cfg.HeartbeatTimeoutMs) * time.Millisecond,
		MalformedThreshold:     cfg.MalformedMessageThreshold,
		MalformedWindowSeconds: cfg.MalformedMessageWindowSeconds,
	}, logger)

	listener := transport.NewListener(cfg.ReliableBindAddr, transport.TLSConfig{
		CertPath: cfg.TLSCertPath,
		KeyPath:  cfg.TLSKeyPath,
		Required: cfg.TLSRequired,
	}, logger)
	if err := listener.Start(); err != nil {
		return fmt.Errorf("starting reliable listener: %w", err)
	}

	datagramStop := make(chan struct{})

	sched := scheduler.New(scheduler.Dependencies{
		Registry:     reg,
		Router:       rt,
		Replay:       replayMgr,
		TickPeriod:   time.Duration(cfg.TickPeriodMs() * float64(time.Millisecond)),
		TickPeriodMs: cfg.TickPeriodMs(),
		Log:          logger,
		OnSessionDone: func(id model.SessionID) {
			logger.Info().Str("session_id", id.String()).Msg("session removed")
		},
	})

	// Every long-lived loop runs under one errgroup so shutdown can wait
	// for all of them to actually exit before the process does, instead
	// of firing off unjoined goroutines.
	var eg errgroup.Group
	eg.Go(func() error {
		listener.Accept(rt.HandleConnect)
		return nil
	})
	eg.Go(func() error {
		datagramSocket.ReceiveLoop(datagramStop)
		return nil
	})
	eg.Go(func() error {
		sched.Run()
		return nil
	})
	eg.Go(func() error {
		if err := healthSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("probe server: %w", err)
		}
		return nil
	})

	healthState.SetReady(true)
	logger.Info().
		Str("reliable_addr", cfg.ReliableBindAddr).
		Str("datagram_addr", cfg.DatagramBindAddr).
		Str("probe_addr", cfg.ProbeBindAddr).
		Int("tick_rate_hz", cfg.TickRateHz).
		Msg("apexsim-server ready")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdown(cfg, logger, healthState, listener, connMgr, datagramSocket, datagramStop, healthSrv, sched)

	if err := eg.Wait(); err != nil {
		return err
	}
	return nil
}

// shutdown implements §4.7's graceful drain: stop accepting, mark
// draining, tell every connected client, wait out the grace period, then
// tear down the tick loop and sockets.
func shutdown(cfg *config.Config, logger zerolog.Logger, healthState *health.State, listener *transport.Listener, connMgr *transport.Manager, datagramSocket *transport.DatagramSocket, datagramStop chan struct{}, healthSrv *http.Server, sched *scheduler.Scheduler) {
	logger.Info().Msg("shutdown signal received, draining")
	healthState.SetDraining(true)

	if err := listener.Close(); err != nil {
		logger.Warn().Err(err).Msg("error closing reliable listener")
	}

	grace := time.Duration(cfg.ShutdownGraceSeconds) * time.Second
	transport.BroadcastShutdown(connMgr.All(), shuttingDownMessage(), grace)

	sched.Stop()
	close(datagramStop)
	if err := datagramSocket.Close(); err != nil {
		logger.Warn().Err(err).Msg("error closing datagram socket")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := healthSrv.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("error shutting down probe server")
	}

	logger.Info().Msg("apexsim-server shut down cleanly")
}

func shuttingDownMessage() codec.Message {
	return codec.Error{Code: codec.ErrCodeShuttingDown, Message: "server shutting down"}
}

func loadContent(cfg *config.Config, store *content.Store, logger zerolog.Logger) error {
	cars, err := content.LoadCarsFromDir(cfg.CarsDir)
	if err != nil {
		return fmt.Errorf("loading cars: %w", err)
	}
	for _, car := range cars {
		store.AddCar(car)
	}

	tracks, err := content.LoadTracksFromDir(cfg.TracksDir)
	if err != nil {
		return fmt.Errorf("loading tracks: %w", err)
	}
	for _, track := range tracks {
		store.AddTrack(track)
	}

	logger.Info().Int("cars", len(cars)).Int("tracks", len(tracks)).Msg("content loaded")
	return nil
}

// fileSink persists one finished session's replay as a single file named
// after its session id and start timestamp (§6), under the configured
// output directory.
type fileSink struct {
	dir string
}

func (f fileSink) Open(sessionID model.SessionID, startedAtUnix int64) (io.WriteCloser, error) {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return nil, err
	}
	name := fmt.Sprintf("%s-%d.replay", sessionID.String(), startedAtUnix)
	return os.Create(filepath.Join(f.dir, name))
}

// Command flagduel runs one player's engine: it searches the lobby for an
// opponent, runs the match session against the pub/sub substrate, and serves
// the local UI over WebSocket until the match finishes.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/flagduel/go/internal/gateway"
	"github.com/mcdev12/flagduel/go/internal/match"
	"github.com/mcdev12/flagduel/go/internal/match/events"
	"github.com/mcdev12/flagduel/go/internal/matchmaking"
	"github.com/mcdev12/flagduel/go/internal/realtime/natsbus"
	"github.com/mcdev12/flagduel/go/internal/results"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}
	cfg := loadConfig()
	setupLogging(cfg)

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("flagduel exited with error")
	}
}

func setupLogging(cfg Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.PrettyLog {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func run(cfg Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()

	busCfg := natsbus.DefaultConfig()
	busCfg.URL = cfg.NATSURL
	busCfg.SubjectPrefix = cfg.SubjectPrefix
	bus, err := natsbus.Connect(busCfg)
	if err != nil {
		return err
	}
	defer bus.Close()
	log.Info().Str("client_id", bus.ClientID()).Str("url", cfg.NATSURL).Msg("connected to NATS")

	store, err := results.NewKVStore(ctx, bus.JetStream())
	if err != nil {
		return err
	}

	// The session the UI submits answers into; set once matchmaking commits.
	var sessions sessionRegistry

	cm := gateway.NewConnectionManager(gateway.DefaultConnectionConfig(), func(ctx context.Context, roomID string, cmd gateway.ClientCommand) error {
		if cmd.Type != gateway.CommandTypeAnswer {
			return nil
		}
		session := sessions.get(roomID)
		if session == nil {
			return errors.New("no active session for room")
		}
		return session.SubmitAnswer(ctx, cmd.Label)
	})
	go cm.Start(ctx)

	server := setupServer(cfg, gateway.NewWebSocketHandler(cm))
	go func() {
		log.Info().Str("addr", server.Addr).Msg("gateway listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("gateway server failed")
		}
	}()
	defer shutdownServer(server)

	opts := []matchmaking.Option{matchmaking.WithTimeout(cfg.SearchTimeout)}
	if cfg.WalletAddress != "" {
		opts = append(opts, matchmaking.WithWallet(cfg.WalletAddress))
	}
	coordinator := matchmaking.New(bus, clock, opts...)

	found, err := coordinator.FindMatch(ctx)
	if err != nil {
		if errors.Is(err, matchmaking.ErrNoMatchFound) {
			log.Info().Msg("no match found; try again")
			return nil
		}
		return err
	}

	session := match.NewSession(bus, clock, store)
	defer session.Close()
	sessions.set(found.RoomID, session)

	finished := make(chan struct{})
	session.OnChange(func(snap match.Snapshot) {
		evt, err := gateway.NewStateSyncEvent(snap)
		if err != nil {
			log.Error().Err(err).Msg("failed to build state sync event")
		} else {
			cm.BroadcastToRoom(snap.RoomID, evt)
		}
		if snap.Phase == match.PhaseFinished {
			select {
			case finished <- struct{}{}:
			default:
			}
		}
	})

	if err := session.Start(events.MatchStartPayload{
		RoomID:  found.RoomID,
		Seed:    found.Seed,
		Players: found.Players,
	}); err != nil {
		return err
	}

	select {
	case <-finished:
		standings, err := store.Load(ctx, found.RoomID)
		if err != nil {
			log.Warn().Err(err).Msg("could not read final standings back")
			return nil
		}
		for _, p := range standings {
			log.Info().
				Str("player", p.DisplayName).
				Str("id", p.ID).
				Int("score", p.Score).
				Msg("final standing")
		}
		return nil
	case <-ctx.Done():
		log.Info().Msg("shutting down mid-match")
		return nil
	}
}

func shutdownServer(server *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("gateway shutdown failed")
	}
}

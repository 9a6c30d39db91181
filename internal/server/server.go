package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"fourkind-server/internal/database"
	"fourkind-server/internal/fourkind"
)

const inactiveTimeout = 2 * time.Minute

type Server struct {
	cfg      Config
	log      *logrus.Logger
	db       database.Service // nil with the in-memory store
	store    RoomStore
	notifier Notifier
	games    *GameManager
	sessions *SessionManager
	hub      *Hub
	limiter  *RateLimiter
	cron     *cron.Cron

	cancel context.CancelFunc
	done   chan struct{}
}

// NewServer wires the server from cfg. Postgres and Redis are used when
// configured, otherwise rooms and notifications stay in process.
func NewServer(ctx context.Context, cfg Config, log *logrus.Logger) (*Server, error) {
	s := &Server{
		cfg:      cfg,
		log:      log,
		sessions: NewSessionManager(cfg.JWTSecret, cfg.SessionTTL),
		limiter:  NewRateLimiter(cfg.PassRateLimit, time.Second),
		done:     make(chan struct{}),
	}

	if cfg.DatabaseURL != "" {
		db, err := database.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		s.db = db
		s.store = NewPostgresStore(db)
		log.Info("Using Postgres room store")
	} else {
		s.store = NewMemoryStore()
		log.Warn("DATABASE_URL not set, rooms are kept in memory")
	}

	if cfg.RedisAddr != "" {
		notifier, err := NewRedisNotifier(ctx, cfg, log)
		if err != nil {
			s.closeStore()
			return nil, err
		}
		s.notifier = notifier
		log.WithField("addr", cfg.RedisAddr).Info("Using Redis room notifications")
	} else {
		s.notifier = NewLocalNotifier(log)
	}

	dealer := fourkind.NewDealer(nil, cfg.DealMaxAttempts)
	s.games = NewGameManager(s.store, s.notifier, dealer, log)
	s.hub = NewHub(s.games, s.limiter, log)
	return s, nil
}

// Start subscribes the hub to room events and schedules background jobs.
func (s *Server) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	events, err := s.notifier.Subscribe(ctx)
	if err != nil {
		s.cancel()
		return err
	}
	go func() {
		defer close(s.done)
		s.hub.Run(ctx, events)
	}()

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.cfg.CleanupSchedule, func() { s.cleanupRooms(ctx) }); err != nil {
		s.cancel()
		return fmt.Errorf("invalid CLEANUP_SCHEDULE %q: %w", s.cfg.CleanupSchedule, err)
	}
	if _, err := s.cron.AddFunc("@every 1m", s.sweepConnections); err != nil {
		s.cancel()
		return err
	}
	s.cron.Start()
	return nil
}

func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// cleanupRooms deletes abandoned lobbies. Finished games are kept for the
// leaderboard and player history.
func (s *Server) cleanupRooms(ctx context.Context) {
	deleted, err := s.games.CleanupRooms(ctx, s.cfg.RoomRetention)
	if err != nil {
		s.log.WithError(err).Error("Room cleanup failed")
		return
	}
	if deleted > 0 {
		s.log.WithField("deleted", deleted).Info("Deleted idle waiting rooms")
	}
}

func (s *Server) sweepConnections() {
	if closed := s.hub.CloseInactive(inactiveTimeout); closed > 0 {
		s.log.WithField("closed", closed).Info("Closed inactive websockets")
	}
	s.limiter.Cleanup()
}

// Shutdown stops background jobs, closes websockets and releases the
// store and notifier.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cron != nil {
		select {
		case <-s.cron.Stop().Done():
		case <-ctx.Done():
		}
	}

	s.hub.CloseAll("Server shutting down")

	if s.cancel != nil {
		s.cancel()
		select {
		case <-s.done:
		case <-ctx.Done():
		}
	}

	err := s.notifier.Close()
	s.closeStore()
	if err != nil {
		return fmt.Errorf("failed to close notifier: %w", err)
	}
	return nil
}

func (s *Server) closeStore() {
	if s.db != nil {
		s.db.Close()
	}
}

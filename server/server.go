package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"

	"barn/builtins"
	"barn/db"
	"barn/interp"
	"barn/logging"
	"barn/types"
)

// Server represents the MOO server
type Server struct {
	store       *db.Store
	database    *db.Database
	scheduler   *Scheduler
	connManager *ConnectionManager
	checkpoints *db.CheckpointManager
	cfg         Config
	running     bool
	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	log         zerolog.Logger
}

// NewServer creates a new MOO server from a fully resolved Config.
func NewServer(cfg Config) (*Server, error) {
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		log:    logging.Named("server"),
	}, nil
}

// LoadDatabase loads the database from disk
func (s *Server) LoadDatabase() error {
	database, err := db.LoadDatabase(s.cfg.DBPath)
	if err != nil {
		return fmt.Errorf("load database: %w", err)
	}

	s.database = database
	s.store = database.NewStoreFromDatabase()
	s.scheduler = NewScheduler(s.store)
	s.scheduler.SetDefaultTickQuota(s.cfg.DefaultTickQuota)
	s.scheduler.SetMaxTasksPerPlayer(s.cfg.MaxTasksPerPlayer)
	s.connManager = NewConnectionManager(s, s.cfg.Port)

	s.checkpoints = db.NewCheckpointManager(s.cfg.CheckpointPath(), s.store, s.cfg.CheckpointInterval())
	s.checkpoints.SetTaskSource(s.scheduler)

	// Wire scheduler to connection manager for output flushing
	s.scheduler.SetConnectionManager(s.connManager)

	// Wire notify() builtin to connection manager
	builtins.SetConnectionManager(s.connManager)

	// Wire dump_database() builtin to server checkpoint
	builtins.SetDumpFunc(func() error { return s.checkpoint(DumpCheckpointReason) })

	s.log.Info().
		Int("version", database.Version).
		Int("objects", len(database.Objects)).
		Msg("database loaded")
	return nil
}

// GetStore returns the object store
func (s *Server) GetStore() *db.Store {
	return s.store
}

// GetEvaluator returns the evaluator from the scheduler
func (s *Server) GetEvaluator() *interp.Evaluator {
	return s.scheduler.GetEvaluator()
}

// Start starts the server
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.mu.Unlock()

	// Start scheduler
	s.scheduler.Start()

	// Call #0:server_started()
	if err := s.callServerStarted(); err != nil {
		s.log.Warn().Err(err).Msg("#0:server_started() failed")
	}

	// Start listening for connections
	if err := s.connManager.Listen(); err != nil {
		return fmt.Errorf("listen failed: %w", err)
	}

	// Set up signal handling
	go s.handleSignals()

	// Start periodic checkpoints
	s.checkpoints.Start()

	// Main loop
	return s.mainLoop()
}

// mainLoop is the main server loop; it simply waits for shutdown, since
// periodic checkpointing now runs entirely inside the checkpoint manager.
func (s *Server) mainLoop() error {
	<-s.ctx.Done()
	return s.shutdown()
}

// handleSignals handles OS signals
func (s *Server) handleSignals() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		s.log.Info().Msg("received shutdown signal")
		s.Shutdown()
	case <-s.ctx.Done():
		return
	}
}

// DumpCheckpointReason is the reason recorded for an explicit/on-demand
// checkpoint triggered via dump_database() or the -dump flag's periodic path.
const DumpCheckpointReason = db.DumpCheckpoint

// checkpoint saves the database to disk via the checkpoint manager, calling
// the #0 hooks around it the way ToastStunt calls checkpoint_started/finished.
func (s *Server) checkpoint(reason db.DumpReason) error {
	if err := s.callCheckpointStarted(); err != nil {
		s.log.Warn().Err(err).Msg("#0:checkpoint_started() failed")
	}

	err := s.checkpoints.Checkpoint(reason)

	if hookErr := s.callCheckpointFinished(err == nil); hookErr != nil {
		s.log.Warn().Err(hookErr).Msg("#0:checkpoint_finished() failed")
	}

	return err
}

// Shutdown initiates graceful shutdown
func (s *Server) Shutdown() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.log.Info().Msg("initiating shutdown")
	s.cancel()
}

// shutdown performs the actual shutdown sequence
func (s *Server) shutdown() error {
	s.log.Info().Msg("shutting down server")

	// Call #0:shutdown_started()
	if err := s.callShutdownStarted("Server shutdown"); err != nil {
		s.log.Warn().Err(err).Msg("#0:shutdown_started() failed")
	}

	// Stop scheduler
	s.scheduler.Stop()
	s.checkpoints.Stop()

	// Final checkpoint (unless checkpointing was explicitly disabled)
	if s.cfg.CheckpointIntervalSec > 0 {
		s.log.Info().Msg("performing final checkpoint")
		if err := s.checkpoint(db.DumpShutdown); err != nil {
			s.log.Warn().Err(err).Msg("final checkpoint failed")
		}
	} else {
		s.log.Info().Msg("final checkpoint skipped (checkpointing disabled)")
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.log.Info().Msg("server shutdown complete")
	return nil
}

// Panic performs emergency shutdown
func (s *Server) Panic(message string) {
	s.log.Error().Str("reason", message).Msg("PANIC")

	s.log.Info().Msg("attempting emergency database dump")
	if err := s.checkpoint(db.DumpPanic); err != nil {
		s.log.Error().Err(err).Msg("emergency dump failed")
	}

	os.Exit(1)
}

// callServerStarted calls #0:server_started()
func (s *Server) callServerStarted() error {
	return s.callSystemHook("server_started", nil)
}

// callCheckpointStarted calls #0:checkpoint_started()
func (s *Server) callCheckpointStarted() error {
	return s.callSystemHook("checkpoint_started", nil)
}

// callCheckpointFinished calls #0:checkpoint_finished(success)
func (s *Server) callCheckpointFinished(success bool) error {
	return s.callSystemHook("checkpoint_finished", []types.Value{types.NewBool(success)})
}

// callShutdownStarted calls #0:shutdown_started(message)
func (s *Server) callShutdownStarted(message string) error {
	return s.callSystemHook("shutdown_started", []types.Value{types.NewStr(message)})
}

// callSystemHook runs a #0 verb synchronously if defined, skipping silently
// when it isn't (these hooks are all optional in a fresh core).
func (s *Server) callSystemHook(verbName string, args []types.Value) error {
	systemObj := s.store.Get(0)
	if systemObj == nil {
		return fmt.Errorf("system object not found")
	}
	if systemObj.Verbs[verbName] == nil {
		return nil
	}

	s.scheduler.Acquire()
	result := s.scheduler.CallVerb(0, verbName, args, 0)
	s.scheduler.Yield()

	if result.Flow == types.FlowException && result.Error != types.E_VERBNF {
		return fmt.Errorf("%s raised %s", verbName, result.Error)
	}
	return nil
}

// DumpDatabase triggers an immediate checkpoint
func (s *Server) DumpDatabase() error {
	return s.checkpoint(db.DumpCheckpoint)
}

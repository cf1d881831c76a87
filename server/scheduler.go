package server

import (
	"barn/builtins"
	"barn/db"
	"barn/interp"
	"barn/logging"
	"barn/parser"
	"barn/task"
	"barn/trace"
	"barn/types"
	"container/heap"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// InputEvent represents a line of input (or disconnect) from a connection.
// Connection goroutines enqueue these; the scheduler processes them.
type InputEvent struct {
	ConnID       int64
	Player       types.ObjID // negative = pre-login, positive = logged-in
	Line         string
	IsDisconnect bool
	Done         chan struct{} // Closed when processing is complete
}

// Scheduler manages task execution. Every task's statement list runs on its
// own goroutine (see QueueTask/CreateForkedTask); execToken is a one-token
// channel that only the currently-running task/hook call holds, so MOO
// execution stays single-threaded across the store even though many
// goroutines may be parked in suspend/read at once.
type Scheduler struct {
	tasks             map[int64]*task.Task
	mgr               *task.Manager
	waiting           *TaskQueue
	nextTaskID        int64
	evaluator         *interp.Evaluator
	registry          *builtins.Registry
	store             *db.Store
	connManager       *ConnectionManager
	inputQueue        chan InputEvent
	execToken         chan struct{}
	maxTasksPerPlayer int
	defaultTickQuota  int64
	mu                sync.Mutex
	ctx               context.Context
	cancel            context.CancelFunc
	wg                sync.WaitGroup
	log               zerolog.Logger
}

// NewScheduler creates a new task scheduler
func NewScheduler(store *db.Store) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	evaluator := interp.NewEvaluatorFull(store)

	s := &Scheduler{
		tasks:             make(map[int64]*task.Task),
		mgr:               task.NewManager(),
		waiting:           NewTaskQueue(),
		nextTaskID:        1,
		evaluator:         evaluator,
		registry:          evaluator.Registry(),
		store:             store,
		inputQueue:        make(chan InputEvent, 256),
		execToken:         make(chan struct{}, 1),
		maxTasksPerPlayer: 10,
		defaultTickQuota:  300000,
		ctx:               ctx,
		cancel:            cancel,
		log:               logging.Named("scheduler"),
	}
	s.execToken <- struct{}{} // token starts available

	// Builtins like create()/recycle() need verb callbacks.
	// Route builtin CallVerb() through scheduler CallVerb().
	s.registry.SetVerbCaller(s.verbCallHook)

	return s
}

// verbCallHook lets any builtins.Registry reach Scheduler.CallVerb, so it
// can be reapplied to the fresh registry every per-task evaluator gets.
func (s *Scheduler) verbCallHook(objID types.ObjID, verbName string, args []types.Value, tc *types.TaskContext) types.Result {
	player := types.ObjNothing
	if tc != nil {
		player = tc.Player
		if player == types.ObjNothing {
			player = tc.Programmer
		}
	}
	return s.CallVerb(objID, verbName, args, player)
}

// newTaskEvaluator builds a task-scoped evaluator over env. Each task gets
// its own Evaluator (and therefore its own builtins.Registry), so the
// verb-call hook has to be reapplied explicitly rather than inherited.
func (s *Scheduler) newTaskEvaluator(env *interp.Environment) *interp.Evaluator {
	ev := interp.NewEvaluatorFullWithEnv(s.store, env)
	ev.Registry().SetVerbCaller(s.verbCallHook)
	return ev
}

// SetMaxTasksPerPlayer configures the per-player concurrent task cap
// (spec's max_tasks_per_player). 0 or negative disables the limit.
func (s *Scheduler) SetMaxTasksPerPlayer(n int) {
	s.maxTasksPerPlayer = n
}

// SetDefaultTickQuota configures the per-task tick budget new tasks get.
func (s *Scheduler) SetDefaultTickQuota(n int64) {
	if n > 0 {
		s.defaultTickQuota = n
	}
}

// Yield implements task.SchedulerHooks: release the execution token.
func (s *Scheduler) Yield() {
	s.execToken <- struct{}{}
}

// Acquire implements task.SchedulerHooks: take the execution token, blocking
// until whoever holds it releases it.
func (s *Scheduler) Acquire() {
	<-s.execToken
}

// Start begins the scheduler loop
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.run()
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

// GetEvaluator returns the scheduler's evaluator
func (s *Scheduler) GetEvaluator() *interp.Evaluator {
	return s.evaluator
}

// SetConnectionManager sets the connection manager for output flushing
func (s *Scheduler) SetConnectionManager(cm *ConnectionManager) {
	s.connManager = cm
}

// EnqueueInput sends an input event to the scheduler for processing.
// The caller should wait on evt.Done to know when processing is complete.
func (s *Scheduler) EnqueueInput(evt InputEvent) {
	s.inputQueue <- evt
}

// run is the main scheduler loop
func (s *Scheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case input := <-s.inputQueue:
			s.processInput(input)
		case <-ticker.C:
			s.processReadyTasks()
		}
	}
}

// processInput handles an input event from a connection.
// All MOO verb execution (login, command dispatch, disconnect hooks) happens here,
// on the scheduler goroutine, matching Toast's single-threaded execution model.
func (s *Scheduler) processInput(input InputEvent) {
	defer func() {
		if input.Done != nil {
			close(input.Done)
		}
	}()

	if input.IsDisconnect {
		s.processDisconnect(input)
		return
	}

	// Check if a task is read()ing from this player — if so, route input there
	if s.deliverToReadingTask(input.Player, input.Line) {
		return
	}

	if input.Player < 0 {
		s.processPreLogin(input)
		return
	}

	s.processCommand(input)
}

// deliverToReadingTask checks whether any suspended task is read()ing from the
// given player. If found, clears the reading flag and resumes the task with the
// input line. Returns true if delivered.
func (s *Scheduler) deliverToReadingTask(player types.ObjID, line string) bool {
	t := s.mgr.FindReadingTask(player)
	if t == nil {
		return false
	}
	t.ReadingPlayer = types.ObjNothing
	t.Resume(types.NewStr(line))
	return true
}

// ForceInput implements builtins.InputForcer.
// It injects a line of input for the given player. If a task is currently
// read()ing from that player, the line resumes it directly. Otherwise the
// line is enqueued as a normal InputEvent.
func (s *Scheduler) ForceInput(player types.ObjID, line string, atFront bool) {
	// Try to deliver to a reading task first
	if s.deliverToReadingTask(player, line) {
		return
	}

	// No reading task — enqueue as normal input
	connID := int64(0)
	if s.connManager != nil {
		if conn := s.connManager.GetConnection(player); conn != nil {
			if c, ok := conn.(*Connection); ok {
				connID = c.ID
			}
		}
	}
	evt := InputEvent{
		ConnID: connID,
		Player: player,
		Line:   line,
	}
	s.inputQueue <- evt
}

// processDisconnect handles a disconnect event.
func (s *Scheduler) processDisconnect(input InputEvent) {
	cm := s.connManager
	if cm == nil {
		return
	}

	cm.mu.Lock()
	conn := cm.connections[input.ConnID]
	if conn == nil {
		cm.mu.Unlock()
		return
	}

	wasLoggedIn := conn.IsLoggedIn()
	player := conn.GetPlayer()

	delete(cm.connections, conn.ID)
	if wasLoggedIn {
		delete(cm.playerConns, player)
	} else {
		// Remove pre-login negative ID mapping
		delete(cm.playerConns, types.ObjID(-conn.ID))
	}
	cm.mu.Unlock()

	// Trace disconnect event
	if wasLoggedIn {
		trace.Connection("DISCONNECT", conn.ID, player, "")
	} else {
		trace.Connection("DISCONNECT", conn.ID, types.ObjID(-conn.ID), "unlogged")
	}

	// Call user_disconnected hook on the scheduler goroutine
	if wasLoggedIn {
		s.callUserDisconnected(player)
	}

	s.log.Info().Msgf("Connection %d closed", conn.ID)
}

// processPreLogin handles input from an unauthenticated connection.
func (s *Scheduler) processPreLogin(input InputEvent) {
	cm := s.connManager
	if cm == nil {
		return
	}

	conn := cm.getConnectionByConnID(input.ConnID)
	if conn == nil {
		return
	}

	if !s.shouldCallDoLoginCommand(conn, input.Line) {
		return
	}

	player, _ := s.callDoLoginCommand(conn, input.Line)
	if player > 0 {
		s.loginPlayer(conn, player)
	}
}

// processCommand handles input from an authenticated (logged-in) connection.
func (s *Scheduler) processCommand(input InputEvent) {
	cm := s.connManager
	if cm == nil {
		return
	}

	conn := cm.getConnectionByConnID(input.ConnID)
	if conn == nil {
		return
	}

	player := conn.GetPlayer()
	playerObj := s.store.Get(player)
	if playerObj == nil {
		return
	}
	location := playerObj.Location

	// Parse the command
	cmd := ParseCommand(input.Line)
	if cmd.Verb == "" {
		return
	}

	// Handle intrinsic commands (PREFIX, SUFFIX, OUTPUTPREFIX, OUTPUTSUFFIX, EVAL)
	verbUpper := strings.ToUpper(cmd.Verb)
	switch verbUpper {
	case "PREFIX", "OUTPUTPREFIX":
		conn.mu.Lock()
		conn.outputPrefix = cmd.Argstr
		conn.mu.Unlock()
		return
	case "SUFFIX", "OUTPUTSUFFIX":
		conn.mu.Lock()
		conn.outputSuffix = cmd.Argstr
		conn.mu.Unlock()
		return
	case "EVAL":
		code := strings.TrimSpace(cmd.Argstr)
		if code == "" {
			return
		}
		// Try database verb dispatch first (matches Toast behavior).
		// In Toast, eval is NOT an intrinsic — it goes through normal
		// verb dispatch. This lets database-defined eval verbs (e.g.
		// #2:eval in mongoose.db) handle formatting and set_task_perms.
		match := FindVerb(s.store, player, location, cmd)
		if match != nil {
			if match.Verb.Program == nil && len(match.Verb.Code) > 0 {
				program, errors := db.CompileVerb(match.Verb.Code)
				if len(errors) > 0 {
					conn.Send(fmt.Sprintf("Verb compile error: %s", errors[0]))
					return
				}
				match.Verb.Program = program
			}
			if match.Verb.Program != nil {
				// Send PREFIX/SUFFIX framing around verb dispatch,
				// matching Toast's output buffer flush behavior.
				outputPrefix := conn.GetOutputPrefix()
				outputSuffix := conn.GetOutputSuffix()
				if outputPrefix != "" {
					_ = conn.Send(outputPrefix)
				}
				s.executeVerbTaskSync(player, match, cmd, outputSuffix)
				return
			}
		}
		// Fallback for databases without an eval verb
		s.EvalCommand(player, code, conn)
		return
	}

	// Raw command response framing for conformance transport.
	outputPrefix := conn.GetOutputPrefix()
	outputSuffix := conn.GetOutputSuffix()
	if outputPrefix != "" {
		_ = conn.Send(outputPrefix)
	}

	// Invoke #0:do_command for normal commands
	handled, _ := s.callDoCommand(player, input.Line)
	if handled {
		if outputSuffix != "" {
			_ = conn.Send(outputSuffix)
		}
		return
	}

	// Resolve direct object
	if cmd.Dobjstr != "" {
		cmd.Dobj = MatchObject(s.store, player, location, cmd.Dobjstr)
	}

	// Resolve indirect object
	if cmd.Iobjstr != "" {
		cmd.Iobj = MatchObject(s.store, player, location, cmd.Iobjstr)
	}

	// Find the verb
	match := FindVerb(s.store, player, location, cmd)
	if match == nil {
		if hasVerbNameMatch(s.store, player, location, cmd) {
			conn.Send("I couldn't understand that.")
			if outputSuffix != "" {
				_ = conn.Send(outputSuffix)
			}
			return
		}

		// Try player.location:huh fallback
		if huhVerb, huhVerbLoc, err := s.store.FindVerb(location, "huh"); err == nil && huhVerb != nil {
			huhMatch := &VerbMatch{
				Verb:    huhVerb,
				This:    location,
				VerbLoc: huhVerbLoc,
			}

			if huhMatch.Verb.Program == nil && len(huhMatch.Verb.Code) > 0 {
				program, errors := db.CompileVerb(huhMatch.Verb.Code)
				if len(errors) > 0 {
					conn.Send(fmt.Sprintf("Verb compile error: %s", errors[0]))
					if outputSuffix != "" {
						_ = conn.Send(outputSuffix)
					}
					return
				}
				huhMatch.Verb.Program = program
			}

			if huhMatch.Verb.Program == nil || len(huhMatch.Verb.Program.Statements) == 0 {
				conn.Send("I couldn't understand that.")
				if outputSuffix != "" {
					_ = conn.Send(outputSuffix)
				}
				return
			}

			// Execute huh() synchronously on the scheduler goroutine
			s.executeVerbTaskSync(player, huhMatch, cmd, outputSuffix)
			return
		}
		conn.Send("I couldn't understand that.")
		if outputSuffix != "" {
			_ = conn.Send(outputSuffix)
		}
		return
	}

	// Compile verb if needed (lazy compilation)
	if match.Verb.Program == nil && len(match.Verb.Code) > 0 {
		program, errors := db.CompileVerb(match.Verb.Code)
		if len(errors) > 0 {
			conn.Send(fmt.Sprintf("Verb compile error: %s", errors[0]))
			if outputSuffix != "" {
				_ = conn.Send(outputSuffix)
			}
			return
		}
		match.Verb.Program = program
	}

	// Execute the verb
	if match.Verb.Program == nil || len(match.Verb.Program.Statements) == 0 {
		conn.Send(fmt.Sprintf("[%s has no code]", match.Verb.Name))
		if outputSuffix != "" {
			_ = conn.Send(outputSuffix)
		}
		return
	}

	// Execute verb synchronously on the scheduler goroutine
	s.executeVerbTaskSync(player, match, cmd, outputSuffix)
}

// executeVerbTaskSync creates a verb task and dispatches it from the
// scheduler goroutine. runTask blocks only until the task finishes or
// reaches its first suspend/read() -- a verb that suspends hands control
// back here immediately and keeps running on its own goroutine, so one
// player calling suspend() never stalls command dispatch for everyone else.
func (s *Scheduler) executeVerbTaskSync(player types.ObjID, match *VerbMatch, cmd *ParsedCommand, outputSuffix string) {
	taskID := atomic.AddInt64(&s.nextTaskID, 1)
	t := task.NewTaskFull(taskID, player, match.Verb.Program.Statements, s.defaultTickQuota, 5.0)
	t.StartTime = time.Now()
	t.Programmer = match.Verb.Owner
	t.Context.Programmer = match.Verb.Owner
	t.Context.IsWizard = s.isWizard(match.Verb.Owner)

	t.VerbName = cmd.Verb
	t.VerbLoc = match.VerbLoc
	t.This = match.This
	t.Caller = player
	t.Argstr = cmd.Argstr
	t.Args = cmd.Args
	t.Dobjstr = cmd.Dobjstr
	t.Dobj = cmd.Dobj
	t.Prepstr = cmd.Prepstr
	t.Iobjstr = cmd.Iobjstr
	t.Iobj = cmd.Iobj
	t.CommandOutputSuffix = outputSuffix
	t.Sched = s

	if s.taskLimitExceeded(t.Owner) {
		if s.connManager != nil {
			if conn := s.connManager.GetConnection(t.Owner); conn != nil {
				conn.Send("Too many tasks already running; command dropped.")
			}
		}
		return
	}

	t.SetState(task.TaskQueued)
	s.mu.Lock()
	s.tasks[t.ID] = t
	s.mu.Unlock()
	s.mgr.RegisterTask(t)

	if err := s.runTask(t); err != nil {
		s.log.Error().Msgf("Task %d (#%d:%s) error: %v", t.ID, t.This, t.VerbName, err)
	}
}

// shouldCallDoLoginCommand checks whether do_login_command should be called
// for the given input. Trusted proxy blank lines route through do_blank_command first.
func (s *Scheduler) shouldCallDoLoginCommand(conn *Connection, line string) bool {
	if line != "" || !s.isTrustedProxyConnection(conn) {
		return true
	}

	allowLogin, err := s.callDoBlankCommand(conn, line)
	if err != nil {
		s.log.Error().Msgf("do_blank_command failed: %v", err)
		return false
	}
	return allowLogin
}

// callDoLoginCommand calls #0:do_login_command with the given line.
// Returns the player ObjID if login succeeded, or a negative value on failure.
func (s *Scheduler) callDoLoginCommand(conn *Connection, line string) (types.ObjID, error) {
	systemObj := s.store.Get(0)
	if systemObj == nil {
		return types.ObjID(-1), fmt.Errorf("system object not found")
	}

	verb := systemObj.Verbs["do_login_command"]
	if verb == nil {
		conn.Send("Welcome! (No login handler defined)")
		return types.ObjID(2), nil
	}

	connID := types.ObjID(-conn.ID)

	words := strings.Fields(line)
	args := make([]types.Value, len(words))
	for i, word := range words {
		args[i] = types.NewStr(word)
	}

	s.Acquire()
	result := s.CallVerb(0, "do_login_command", args, connID)
	s.Yield()

	if result.Flow == types.FlowException {
		var stack []task.ActivationFrame
		if result.CallStack != nil {
			if st, ok := result.CallStack.([]task.ActivationFrame); ok {
				stack = st
			}
		}
		lines := task.FormatTraceback(stack, result.Error, connID)
		for _, line := range lines {
			conn.Send(line)
		}
		return types.ObjID(-1), nil
	}

	if objVal, ok := result.Val.(types.ObjValue); ok {
		playerID := objVal.ID()
		if playerID > 0 {
			obj := s.store.Get(playerID)
			if obj != nil && obj.Flags.Has(db.FlagUser) {
				return playerID, nil
			}
		}
	}

	// Check if switch_player was called during the verb execution
	currentPlayer := conn.GetPlayer()
	if currentPlayer > 0 {
		return currentPlayer, nil
	}

	return types.ObjID(-1), nil
}

// callDoBlankCommand calls #0:do_blank_command and returns whether login should proceed.
func (s *Scheduler) callDoBlankCommand(conn *Connection, line string) (bool, error) {
	words := strings.Fields(line)
	args := make([]types.Value, len(words))
	for i, word := range words {
		args[i] = types.NewStr(word)
	}

	connID := types.ObjID(-conn.ID)
	s.Acquire()
	result := s.CallVerb(0, "do_blank_command", args, connID)
	s.Yield()
	if result.Flow == types.FlowException {
		if result.Error == types.E_VERBNF {
			return false, nil
		}

		var stack []task.ActivationFrame
		if result.CallStack != nil {
			if st, ok := result.CallStack.([]task.ActivationFrame); ok {
				stack = st
			}
		}
		lines := task.FormatTraceback(stack, result.Error, connID)
		for _, line := range lines {
			conn.Send(line)
		}
		return false, nil
	}

	if result.Val == nil {
		return false, nil
	}
	return result.Val.Truthy(), nil
}

// callDoCommand calls #0:do_command(command) and returns whether command was handled.
func (s *Scheduler) callDoCommand(player types.ObjID, line string) (bool, error) {
	args := []types.Value{types.NewStr(line)}
	s.Acquire()
	result := s.CallVerb(0, "do_command", args, player)
	s.Yield()
	if result.Flow == types.FlowException {
		if result.Error == types.E_VERBNF {
			return false, nil
		}

		s.log.Error().Msgf("do_command error: %v", result.Error)
		var stack []task.ActivationFrame
		if result.CallStack != nil {
			if st, ok := result.CallStack.([]task.ActivationFrame); ok {
				stack = st
			}
		}
		s.sendTracebackToPlayer(player, result.Error, stack)
		return true, nil
	}

	if result.Val == nil {
		return false, nil
	}
	return result.Val.Truthy(), nil
}

// callUserConnected calls #0:user_connected(player)
func (s *Scheduler) callUserConnected(player types.ObjID) {
	args := []types.Value{types.NewObj(player)}
	s.Acquire()
	result := s.CallVerb(0, "user_connected", args, player)
	s.Yield()
	if result.Flow == types.FlowException {
		if result.Error == types.E_VERBNF {
			return
		}
		s.log.Error().Msgf("user_connected error: %v", result.Error)
		var stack []task.ActivationFrame
		if result.CallStack != nil {
			if st, ok := result.CallStack.([]task.ActivationFrame); ok {
				stack = st
			}
		}
		s.sendTracebackToPlayer(player, result.Error, stack)
	}
}

// callUserReconnected calls #0:user_reconnected(player)
func (s *Scheduler) callUserReconnected(player types.ObjID) {
	args := []types.Value{types.NewObj(player)}
	s.Acquire()
	result := s.CallVerb(0, "user_reconnected", args, player)
	s.Yield()
	if result.Flow == types.FlowException {
		if result.Error == types.E_VERBNF {
			return
		}
		s.log.Error().Msgf("user_reconnected error: %v", result.Error)
		var stack []task.ActivationFrame
		if result.CallStack != nil {
			if st, ok := result.CallStack.([]task.ActivationFrame); ok {
				stack = st
			}
		}
		s.sendTracebackToPlayer(player, result.Error, stack)
	}
}

// callUserDisconnected calls #0:user_disconnected(player)
func (s *Scheduler) callUserDisconnected(player types.ObjID) {
	args := []types.Value{types.NewObj(player)}
	s.Acquire()
	result := s.CallVerb(0, "user_disconnected", args, player)
	s.Yield()
	if result.Flow == types.FlowException {
		if result.Error == types.E_VERBNF {
			return
		}
		s.log.Error().Msgf("user_disconnected error: %v", result.Error)
		var stack []task.ActivationFrame
		if result.CallStack != nil {
			if st, ok := result.CallStack.([]task.ActivationFrame); ok {
				stack = st
			}
		}
		s.sendTracebackToPlayer(player, result.Error, stack)
	}
}

// connectMessage returns the server_options.connect_msg value,
// falling back to "*** Connected ***" if not set.
func (s *Scheduler) connectMessage() string {
	if val, ok := s.getServerOption(0, "connect_msg"); ok {
		if strVal, ok := val.(types.StrValue); ok && strVal.Value() != "" {
			return strVal.Value()
		}
	}
	return "*** Connected ***"
}

// loginPlayer associates a connection with a player.
// Called on the scheduler goroutine after a successful do_login_command.
func (s *Scheduler) loginPlayer(conn *Connection, player types.ObjID) {
	cm := s.connManager
	if cm == nil {
		return
	}

	cm.mu.Lock()

	// Remove negative ID mapping (used for pre-login notify())
	delete(cm.playerConns, types.ObjID(-conn.ID))

	// Check if player already connected
	alreadyLoggedIn := false
	reconnection := false
	var existingConn *Connection
	if ec, exists := cm.playerConns[player]; exists {
		if ec == conn {
			alreadyLoggedIn = true
		} else {
			existingConn = ec
			reconnection = true
		}
	}

	if !alreadyLoggedIn {
		conn.SetPlayer(player)
		conn.ConnectionTime = time.Now()
		cm.playerConns[player] = conn
	}

	cm.mu.Unlock()

	// Trace login event
	if reconnection {
		trace.Connection("RECONNECT", conn.ID, player, "")
	} else {
		trace.Connection("LOGIN", conn.ID, player, "")
	}

	// Call hooks on the scheduler goroutine
	if alreadyLoggedIn {
		// Ensure ConnectionTime is set even if switch_player handled login
		if conn.ConnectionTime.IsZero() {
			conn.ConnectionTime = time.Now()
		}
		s.log.Info().Msgf("Connection %d already logged in as player %d via switch_player", conn.ID, player)
		_ = conn.Send(s.connectMessage())
		s.callUserConnected(player)
		return
	}

	if reconnection {
		existingConn.Send("You have been disconnected (reconnected elsewhere)")
		existingConn.Close()
		s.callUserReconnected(player)
	} else {
		_ = conn.Send(s.connectMessage())
		s.callUserConnected(player)
	}

	s.log.Info().Msgf("Connection %d logged in as player %d", conn.ID, player)
}

// sendTracebackToPlayer sends a formatted traceback to the player's connection
func (s *Scheduler) sendTracebackToPlayer(player types.ObjID, err types.ErrorCode, stack []task.ActivationFrame) {
	if s.connManager == nil {
		return
	}

	// Format traceback first
	lines := task.FormatTraceback(stack, err, player)

	conn := s.connManager.GetConnection(player)
	if conn == nil {
		s.log.Info().Msgf("Traceback for player %v (connection not found):", player)
		for _, line := range lines {
			s.log.Info().Msgf("  %s", line)
		}
		return
	}

	for _, line := range lines {
		conn.Send(line)
	}
}

// isTrustedProxyConnection checks if a connection's IP is in the trusted proxies list.
func (s *Scheduler) isTrustedProxyConnection(conn *Connection) bool {
	trustedProxies, ok := s.getServerOption(0, "trusted_proxies")
	if !ok {
		return false
	}

	addr := conn.RemoteAddr()
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	ip := strings.Trim(host, "[]")
	if ip == "" {
		return false
	}

	return listContainsString(trustedProxies, ip)
}

// getServerOption looks up a server option from the server_options property.
func (s *Scheduler) getServerOption(listener types.ObjID, name string) (types.Value, bool) {
	serverOptions := s.findPropertyInherited(listener, "server_options")
	if serverOptions == nil && listener != 0 {
		serverOptions = s.findPropertyInherited(0, "server_options")
	}
	if serverOptions == nil {
		return nil, false
	}

	serverOptionsObj, ok := serverOptions.Value.(types.ObjValue)
	if !ok {
		return nil, false
	}

	prop := s.findPropertyInherited(serverOptionsObj.ID(), name)
	if prop == nil {
		return nil, false
	}
	return prop.Value, true
}

// findPropertyInherited walks the single-inheritance parent chain to find a property.
func (s *Scheduler) findPropertyInherited(objID types.ObjID, name string) *db.Property {
	visited := make(map[types.ObjID]bool)
	currentID := objID

	for currentID != types.ObjNothing && !visited[currentID] {
		visited[currentID] = true

		current := s.store.Get(currentID)
		if current == nil {
			break
		}

		if prop, ok := current.Properties[name]; ok {
			return prop
		}

		currentID = current.Parent
	}

	return nil
}

// processReadyTasks dispatches first-run tasks whose start time has arrived.
// Timed suspends wake themselves (BlockForSuspend holds its own timer) and
// explicit resume()s deliver straight through Task.Resume's channel, so this
// only needs to look at the waiting heap, not scan every live task.
func (s *Scheduler) processReadyTasks() {
	s.mu.Lock()

	now := time.Now()
	var readyTasks []*task.Task

	for s.waiting.Len() > 0 {
		t := s.waiting.Peek()
		if t.StartTime.After(now) {
			break // Tasks are ordered by start time
		}
		heap.Pop(s.waiting)
		if t.GetState() != task.TaskQueued {
			// Ignore tasks killed before their delay elapsed.
			continue
		}
		readyTasks = append(readyTasks, t)
	}

	s.mu.Unlock()

	// Dispatch ready tasks one at a time on the scheduler goroutine. runTask
	// only blocks until each task finishes or hits its first suspend, so a
	// forked task that suspends immediately doesn't stall the others.
	for _, t := range readyTasks {
		if err := s.runTask(t); err != nil {
			s.log.Error().Msgf("Task %d (#%d:%s) error: %v", t.ID, t.This, t.VerbName, err)
		}
	}
}

// runTask spawns the goroutine that runs a task's statement list (first run
// only -- a task that already started is driven purely by Resume()/Kill()
// from here on) and waits for it to either finish or park on its first
// suspend/read(). Either way it then flushes the task owner's connection
// output, matching Toast's per-command output framing.
func (s *Scheduler) runTask(t *task.Task) (retErr error) {
	if t.Started() {
		return nil
	}

	ctx := t.Context
	if ctx == nil {
		t.SetState(task.TaskKilled)
		return errors.New("task has no context")
	}

	ctx.Task = t
	ctx.TaskID = t.ID
	t.Mgr = s.mgr
	if t.Sched == nil {
		t.Sched = s
	}

	code, _ := t.Code.([]parser.Stmt)
	anonGCFloor := s.store.NextID()

	t.Start(func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error().Msgf("PANIC in task %d (#%d:%s): %v", t.ID, t.This, t.VerbName, r)
				s.Yield()
				t.Finish(types.Err(types.E_NONE))
			}
		}()

		s.Acquire()

		env, _ := t.Evaluator.(*interp.Environment)
		if env == nil {
			env = interp.NewEnvironment()
		}
		ev := s.newTaskEvaluator(env)

		if t.VerbName != "" {
			if len(t.CallStack) == 0 {
				ctx.Player = t.Owner
				ctx.Programmer = t.Programmer
				ctx.IsWizard = s.isWizard(t.Programmer)
				ctx.ThisObj = t.This
				ctx.Verb = t.VerbName
				bindVerbLocals(env, t)
				t.PushFrame(task.ActivationFrame{
					This:       t.This,
					Player:     t.Owner,
					Programmer: t.Programmer,
					Caller:     t.Caller,
					Verb:       t.VerbName,
					VerbLoc:    t.VerbLoc,
					LineNumber: 1,
				})
			}
		}

		result := ev.EvalStatements(code, ctx)
		t.Result = result

		if result.Flow == types.FlowException {
			s.logTraceback(t, result.Error)
			s.sendTraceback(t, result.Error)
			for len(t.CallStack) > 0 {
				t.PopFrame()
			}
		}

		// Match Toast lifecycle semantics: orphan anonymous objects are
		// collected once the task completes and its locals go out of scope.
		s.store.RecycleOrphanAnonymousSince(anonGCFloor)

		s.Yield()
		t.Finish(result)
	})

	select {
	case <-t.Done:
	case <-t.SuspendCh():
	}

	if s.connManager != nil {
		if conn := s.connManager.GetConnection(t.Owner); conn != nil {
			conn.Flush()
			if t.CommandOutputSuffix != "" {
				_ = conn.Send(t.CommandOutputSuffix)
			}
		}
	}

	return nil
}

// bindVerbLocals seeds env with the standard verb-call locals (this, player,
// caller, verb, args, and the command-parser placeholders).
func bindVerbLocals(env *interp.Environment, t *task.Task) {
	args := make([]types.Value, len(t.Args))
	for i, a := range t.Args {
		args[i] = types.NewStr(a)
	}
	env.Set("this", types.NewObj(t.This))
	env.Set("player", types.NewObj(t.Owner))
	env.Set("caller", types.NewObj(t.Caller))
	env.Set("verb", types.NewStr(t.VerbName))
	env.Set("args", types.NewList(args))
	env.Set("argstr", types.NewStr(t.Argstr))
	env.Set("dobjstr", types.NewStr(t.Dobjstr))
	env.Set("iobjstr", types.NewStr(t.Iobjstr))
	env.Set("prepstr", types.NewStr(t.Prepstr))
	env.Set("dobj", types.NewObj(t.Dobj))
	env.Set("iobj", types.NewObj(t.Iobj))
}

// taskLimitExceeded reports whether owner already has max_tasks_per_player
// non-terminal tasks in the table. A limit of 0 or less disables the check.
func (s *Scheduler) taskLimitExceeded(owner types.ObjID) bool {
	if s.maxTasksPerPlayer <= 0 {
		return false
	}
	return s.mgr.CountActiveByOwner(owner) >= s.maxTasksPerPlayer
}

// QueueTask adds a task to the scheduler's waiting heap. Rejects the task
// (returning 0, leaving it killed) if owner is already at max_tasks_per_player.
func (s *Scheduler) QueueTask(t *task.Task) int64 {
	if s.taskLimitExceeded(t.Owner) {
		t.SetState(task.TaskKilled)
		close(t.Done)
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t.SetState(task.TaskQueued)
	s.tasks[t.ID] = t
	heap.Push(s.waiting, t)
	s.mgr.RegisterTask(t)

	return t.ID
}

// CreateForegroundTask creates a foreground task (user command)
func (s *Scheduler) CreateForegroundTask(player types.ObjID, code []parser.Stmt) int64 {
	taskID := atomic.AddInt64(&s.nextTaskID, 1)
	t := task.NewTaskFull(taskID, player, code, s.defaultTickQuota, 5.0)
	t.StartTime = time.Now()
	t.Sched = s
	t.Context.IsWizard = s.isWizard(player)
	return s.QueueTask(t)
}

// CreateBackgroundTask creates a background task (fork)
func (s *Scheduler) CreateBackgroundTask(player types.ObjID, code []parser.Stmt, delay time.Duration) int64 {
	taskID := atomic.AddInt64(&s.nextTaskID, 1)
	t := task.NewTaskFull(taskID, player, code, s.defaultTickQuota, 3.0)
	t.StartTime = time.Now().Add(delay)
	t.Sched = s
	t.Context.IsWizard = s.isWizard(player)
	return s.QueueTask(t)
}

// Fork creates a forked task with a delay
func (s *Scheduler) Fork(ctx *types.TaskContext, code []parser.Stmt, delay time.Duration) int64 {
	return s.CreateBackgroundTask(ctx.Player, code, delay)
}

// CreateForkedTask creates a forked child task from a fork statement.
// Implements task.SchedulerHooks. A fork never suspends the parent: this
// just queues the child and returns its id right away.
func (s *Scheduler) CreateForkedTask(parent *task.Task, forkInfo *types.ForkInfo) int64 {
	taskID := atomic.AddInt64(&s.nextTaskID, 1)

	body, ok := forkInfo.Body.([]parser.Stmt)
	if !ok {
		return 0
	}

	t := task.NewTaskFull(taskID, forkInfo.Player, body, s.defaultTickQuota, 3.0)

	childEnv := interp.NewEnvironment()
	for k, v := range forkInfo.Variables {
		childEnv.Set(k, v)
	}
	if forkInfo.VarName != "" {
		childEnv.Set(forkInfo.VarName, types.NewInt(taskID))
	}
	t.Evaluator = childEnv

	t.StartTime = time.Now().Add(forkInfo.Delay)
	t.Kind = task.TaskForked
	t.IsForked = true
	t.ForkInfo = forkInfo
	t.Programmer = parent.Programmer // Inherit permissions
	t.This = forkInfo.ThisObj
	t.Caller = forkInfo.Caller
	t.VerbName = forkInfo.Verb
	t.VerbLoc = forkInfo.VerbLoc
	t.Sched = s                         // Give child access to scheduler for nested forks
	t.TaskLocal = parent.GetTaskLocal() // Copy parent's task_local to child

	// Set up child's context
	t.Context.ThisObj = forkInfo.ThisObj
	t.Context.Player = forkInfo.Player
	t.Context.Programmer = parent.Programmer
	t.Context.Verb = forkInfo.Verb
	t.Context.IsWizard = s.isWizard(parent.Programmer)
	t.Context.Task = t // Attach task to context for task_local access

	// Push initial activation frame for the fork body.
	// This matches Toast: forked tasks include a frame for the verb
	// context in which the fork statement appeared.
	t.PushFrame(task.ActivationFrame{
		This:       forkInfo.ThisObj,
		Player:     forkInfo.Player,
		Programmer: parent.Programmer,
		Caller:     forkInfo.Caller,
		Verb:       forkInfo.Verb,
		VerbLoc:    forkInfo.VerbLoc,
		LineNumber: 1,
	})

	return s.QueueTask(t)
}

// CallVerb synchronously executes a verb on an object and returns the result.
// Used for server hooks (do_login_command, user_connected, ...) and for
// nested verb calls reached through verbCallHook. Callers that are not
// already running inside a task goroutine must hold the execution token
// around this call (see the wrapped call sites in callDoLoginCommand etc).
// Returns a Result with a call stack for traceback formatting.
func (s *Scheduler) CallVerb(objID types.ObjID, verbName string, args []types.Value, player types.ObjID) (result types.Result) {
	// Recover from panics in compile/execute to avoid crashing the server
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Msgf("PANIC in CallVerb(%v:%s): %v", objID, verbName, r)
			result = types.Err(types.E_NONE)
		}
	}()

	// Trace verb call
	trace.VerbCall(objID, verbName, args, player, player)

	// Create a lightweight task FIRST for call stack tracking
	// This ensures we have a stack even if verb lookup fails
	t := &task.Task{
		Owner:      player,
		Programmer: player, // Will be updated to verb owner if verb found
		CallStack:  make([]task.ActivationFrame, 0),
		TaskLocal:  types.NewEmptyMap(), // Initialize task_local to empty map
		Sched:      s,                   // Enable fork support in server hooks
		Mgr:        s.mgr,
	}

	// Look up the verb to get its owner for programmer permissions
	verb, defObjID, err := s.store.FindVerb(objID, verbName)
	if err != nil || verb == nil {
		// Verb not found. Don't log E_VERBNF for optional hooks.
		return types.Result{Flow: types.FlowException, Error: types.E_VERBNF}
	}

	// Update programmer to verb owner now that we found the verb
	t.Programmer = verb.Owner

	if verb.Program == nil && len(verb.Code) > 0 {
		prog, compileErrs := db.CompileVerb(verb.Code)
		if len(compileErrs) > 0 {
			s.log.Error().Msgf("[COMPILE ERROR] Failed to compile verb %s on #%d: %v", verbName, defObjID, compileErrs[0])
			return types.Result{Flow: types.FlowException, Error: types.E_VERBNF}
		}
		verb.Program = prog
	}
	if verb.Program == nil {
		return types.Result{Flow: types.FlowException, Error: types.E_VERBNF}
	}

	thisVal := types.Value(types.NewObj(objID))
	var frameThisValue types.Value
	if target := s.store.Get(objID); target != nil && target.Anonymous {
		anon := types.NewAnon(objID)
		thisVal = anon
		frameThisValue = anon
	}

	ctx := types.NewTaskContext()
	ctx.Player = player
	ctx.Programmer = verb.Owner           // Programmer is verb owner, not player
	ctx.IsWizard = s.isWizard(verb.Owner) // Set wizard flag based on verb owner
	ctx.ThisObj = objID
	ctx.ThisValue = frameThisValue
	ctx.Verb = verbName
	ctx.ServerInitiated = true // Mark as server-initiated
	ctx.Task = t               // Attach task so the evaluator can track frames
	ctx.TaskID = 0

	// Push activation frame for traceback support
	t.PushFrame(task.ActivationFrame{
		This:            objID,
		ThisValue:       frameThisValue,
		Player:          player,
		Programmer:      verb.Owner,
		Caller:          player, // For server hooks, caller is the player
		Verb:            verbName,
		VerbLoc:         defObjID,
		Args:            args,
		LineNumber:      1,
		ServerInitiated: true,
	})

	env := interp.NewEnvironment()
	env.Set("this", thisVal)
	env.Set("player", types.NewObj(player))
	env.Set("caller", types.NewObj(player))
	env.Set("verb", types.NewStr(verbName))
	env.Set("args", types.NewList(args))
	ev := s.newTaskEvaluator(env)

	result = ev.EvalStatements(verb.Program.Statements, ctx)

	// Extract call stack BEFORE popping frames
	if result.Flow == types.FlowException {
		stack := t.GetCallStack()
		if result.CallStack != nil {
			if captured, ok := result.CallStack.([]task.ActivationFrame); ok {
				stack = captured
			}
		}
		result.CallStack = stack
		// Log traceback to server log
		s.logCallVerbTraceback(objID, verbName, result.Error, stack, player)
		// Trace exception
		trace.Exception(objID, verbName, result.Error)
	} else {
		// Trace return value
		trace.VerbReturn(objID, verbName, result.Val)
	}

	// Clean up call stack
	if len(t.CallStack) > 0 {
		t.PopFrame()
	}

	return result
}

// evalConnection is the interface needed for eval command output
type evalConnection interface {
	Send(string) error
	GetOutputPrefix() string
	GetOutputSuffix() string
}

// EvalCommand evaluates MOO code directly (for ; commands)
// Executes synchronously and sends the result back to the connection
func (s *Scheduler) EvalCommand(player types.ObjID, code string, conn interface{}) {
	// Type assert to get full eval connection interface
	c, ok := conn.(evalConnection)
	if !ok {
		return // Can't send output without proper connection
	}

	// Recover from panics in compile/execute to avoid crashing the server
	defer func() {
		if r := recover(); r != nil {
			prefix := c.GetOutputPrefix()
			suffix := c.GetOutputSuffix()
			if prefix != "" {
				c.Send(prefix)
			}
			c.Send(fmt.Sprintf("{0, {\"Internal error: %v\"}}", r))
			if suffix != "" {
				c.Send(suffix)
			}
			s.log.Error().Msgf("PANIC in EvalCommand: %v", r)
		}
	}()

	// Parse the code
	p := parser.NewParser(code)
	stmts, err := p.ParseProgram()

	// Get prefix/suffix for response framing
	prefix := c.GetOutputPrefix()
	suffix := c.GetOutputSuffix()

	if err != nil {
		// Send parse error in ToastStunt eval format: {0, {"error message"}}
		if prefix != "" {
			c.Send(prefix)
		}
		errMsg := fmt.Sprintf("{0, {\"Parse error: %s\"}}", err)
		c.Send(errMsg)
		if suffix != "" {
			c.Send(suffix)
		}
		return
	}

	// Execute the code synchronously
	ctx := types.NewTaskContext()
	ctx.Player = player
	ctx.Programmer = player
	ctx.IsWizard = s.isWizard(player)

	// Create and register a real task so task_id()/resume()/task_local()
	// semantics match normal task execution. Eval runs on its own goroutine
	// like any other task -- a suspend()/fork() inside it is driven by the
	// task's own machinery, not a busy-wait here.
	t := s.mgr.CreateTask(player, s.defaultTickQuota, 5.0)
	defer s.mgr.RemoveTask(t.ID)
	t.Programmer = player
	t.Sched = s
	t.Mgr = s.mgr
	t.Code = stmts
	t.Context = ctx
	ctx.Task = t
	ctx.TaskID = t.ID

	anonGCFloor := s.store.NextID()

	t.Start(func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error().Msgf("PANIC in eval task %d: %v", t.ID, r)
				s.Yield()
				t.Finish(types.Err(types.E_NONE))
			}
		}()

		s.Acquire()

		env := interp.NewEnvironment()
		env.Set("this", types.NewObj(types.ObjNothing))
		env.Set("player", types.NewObj(player))
		env.Set("caller", types.NewObj(player))
		env.Set("verb", types.NewStr(""))
		env.Set("args", types.NewList([]types.Value{}))
		env.Set("argstr", types.NewStr(""))
		env.Set("dobjstr", types.NewStr(""))
		env.Set("iobjstr", types.NewStr(""))
		env.Set("prepstr", types.NewStr(""))
		env.Set("dobj", types.NewObj(types.ObjNothing))
		env.Set("iobj", types.NewObj(types.ObjNothing))
		ev := s.newTaskEvaluator(env)

		result := ev.EvalStatements(stmts, ctx)
		t.Result = result

		s.store.RecycleOrphanAnonymousSince(anonGCFloor)

		s.Yield()
		t.Finish(result)
	})

	<-t.Done
	result := t.Result

	// Send result wrapped with prefix/suffix in ToastStunt eval format:
	// Success: {1, value}
	// Runtime error: {2, {E_TYPE, "message", value}}
	if prefix != "" {
		c.Send(prefix)
	}
	var resultStr string
	if result.Flow == types.FlowException {
		// Runtime error: {2, {E_TYPE, "message", value}}
		errCode := types.NewErr(result.Error).String()
		errMsg := result.Error.Message()
		resultStr = fmt.Sprintf("{2, {%s, \"%s\", 0}}", errCode, errMsg)
	} else if result.Val != nil {
		// Success: {1, value}
		resultStr = fmt.Sprintf("{1, %s}", result.Val.String())
	} else {
		// Success with no return value: {1, 0}
		resultStr = "{1, 0}"
	}
	c.Send(resultStr)
	if suffix != "" {
		c.Send(suffix)
	}
}

// ResumeTask resumes a suspended task
func (s *Scheduler) ResumeTask(taskID int64, value types.Value) error {
	s.mu.Lock()
	t, exists := s.tasks[taskID]
	s.mu.Unlock()

	if !exists {
		return ErrNotSuspended
	}

	if !t.Resume(value) {
		return ErrNotSuspended
	}
	return nil
}

// KillTask kills a running task
func (s *Scheduler) KillTask(taskID int64, killerID types.ObjID) error {
	s.mu.Lock()
	t, exists := s.tasks[taskID]
	s.mu.Unlock()

	if !exists {
		return ErrNotSuspended
	}

	// Permission check
	if t.Owner != killerID && !s.isWizard(killerID) {
		return ErrPermission
	}

	t.Kill()
	return nil
}

// GetTask retrieves a task by ID
func (s *Scheduler) GetTask(taskID int64) *task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks[taskID]
}

// QueuedTasks returns list of queued tasks
func (s *Scheduler) QueuedTasks() []*task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks := make([]*task.Task, 0)
	for _, t := range s.tasks {
		if t.GetState() == task.TaskQueued {
			tasks = append(tasks, t)
		}
	}
	return tasks
}

// SuspendedTasks returns list of suspended tasks
func (s *Scheduler) SuspendedTasks() []*task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks := make([]*task.Task, 0)
	for _, t := range s.tasks {
		if t.GetState() == task.TaskSuspended {
			tasks = append(tasks, t)
		}
	}
	return tasks
}

// isWizard checks if an object has wizard permissions
func (s *Scheduler) isWizard(objID types.ObjID) bool {
	obj := s.store.Get(objID)
	if obj == nil {
		return false
	}
	return obj.Flags.Has(db.FlagWizard)
}

// logTraceback logs a formatted traceback to the server log for a task
func (s *Scheduler) logTraceback(t *task.Task, err types.ErrorCode) {
	stack := t.GetCallStack()
	lines := task.FormatTraceback(stack, err, t.Owner)
	s.log.Error().Msgf("TRACEBACK: Task %d (#%d:%s) uncaught exception %s",
		t.ID, t.This, t.VerbName, types.NewErr(err).String())
	for _, line := range lines {
		s.log.Error().Msgf("TRACEBACK:   %s", line)
	}
	s.logTracebackSource(stack)
}

// logCallVerbTraceback logs a formatted traceback to the server log for a synchronous verb call
// E_VERBNF is not logged because it's the normal case for optional hook verbs
func (s *Scheduler) logCallVerbTraceback(objID types.ObjID, verbName string, err types.ErrorCode, stack []task.ActivationFrame, player types.ObjID) {
	if err == types.E_VERBNF {
		return // Verb not found is expected for optional hooks
	}
	lines := task.FormatTraceback(stack, err, player)
	s.log.Error().Msgf("TRACEBACK: #%d:%s uncaught exception %s (player #%d)",
		objID, verbName, types.NewErr(err).String(), player)
	for _, line := range lines {
		s.log.Error().Msgf("TRACEBACK:   %s", line)
	}
	s.logTracebackSource(stack)
}

func (s *Scheduler) logTracebackSource(stack []task.ActivationFrame) {
	for i := len(stack) - 1; i >= 0; i-- {
		frame := stack[i]
		if frame.SourceLine == "" {
			continue
		}
		s.log.Info().Msgf("TRACEBACK:     #%d:%s line %d => %s",
			frame.VerbLoc, frame.Verb, frame.LineNumber, frame.SourceLine)
	}
}

// sendTraceback sends a formatted traceback to the player
func (s *Scheduler) sendTraceback(t *task.Task, err types.ErrorCode) {
	if s.connManager == nil {
		return
	}

	conn := s.connManager.GetConnection(t.Owner)
	if conn == nil {
		return
	}

	// Format and send the traceback
	lines := task.FormatTraceback(t.GetCallStack(), err, t.Owner)
	for _, line := range lines {
		conn.Send(line)
	}
}

// TaskQueue is a priority queue for tasks ordered by start time
type TaskQueue []*task.Task

func NewTaskQueue() *TaskQueue {
	tq := make(TaskQueue, 0)
	heap.Init(&tq)
	return &tq
}

func (tq TaskQueue) Len() int { return len(tq) }

func (tq TaskQueue) Less(i, j int) bool {
	return tq[i].StartTime.Before(tq[j].StartTime)
}

func (tq TaskQueue) Swap(i, j int) {
	tq[i], tq[j] = tq[j], tq[i]
}

func (tq *TaskQueue) Push(x interface{}) {
	*tq = append(*tq, x.(*task.Task))
}

func (tq *TaskQueue) Pop() interface{} {
	old := *tq
	n := len(old)
	item := old[n-1]
	*tq = old[0 : n-1]
	return item
}

func (tq TaskQueue) Peek() *task.Task {
	if len(tq) == 0 {
		return nil
	}
	return tq[0]
}

// Error definitions
var (
	ErrTicksExceeded = errors.New("tick limit exceeded")
	ErrNotSuspended  = errors.New("task not suspended")
	ErrResumeFailed  = errors.New("failed to resume task")
	ErrPermission    = errors.New("permission denied")
)

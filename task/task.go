package task

import (
	"barn/types"
	"context"
	"sync"
	"time"
)

// TaskState represents the current state of a task
type TaskState int

const (
	TaskCreated TaskState = iota
	TaskQueued
	TaskRunning
	TaskSuspended
	TaskCompleted
	TaskKilled
)

// TaskKind represents the type/origin of a task
type TaskKind int

const (
	TaskInput         TaskKind = iota // User command input task
	TaskForked                        // Background forked task
	TaskSuspendedTask                 // Suspended task (for resume)
)

// SchedulerHooks is the seam a Task uses to reach back into its owning
// Scheduler without task importing server (which would cycle back through
// interp -> task -> server -> interp). CreateForkedTask lets fork statements
// spawn children directly; Yield/Acquire serialize actual MOO execution onto
// a single logical thread even though each task runs on its own goroutine.
type SchedulerHooks interface {
	CreateForkedTask(parent *Task, info *types.ForkInfo) int64
	Yield()
	Acquire()
}

func (s TaskState) String() string {
	switch s {
	case TaskCreated:
		return "created"
	case TaskQueued:
		return "queued"
	case TaskRunning:
		return "running"
	case TaskSuspended:
		return "suspended"
	case TaskCompleted:
		return "completed"
	case TaskKilled:
		return "killed"
	default:
		return "unknown"
	}
}

// ActivationFrame represents a single verb call on the call stack
// This is what callers() returns
type ActivationFrame struct {
	This            types.ObjID   // Object this verb is called on (prototype for primitives)
	ThisValue       types.Value   // For primitive prototype calls: the actual primitive value
	Player          types.ObjID   // Player who initiated this task
	Programmer      types.ObjID   // Programmer (for permissions)
	Caller          types.ObjID   // Object that called this verb
	Verb            string        // Verb name
	VerbLoc         types.ObjID   // Object where verb is defined
	Args            []types.Value // Arguments passed to verb
	LineNumber      int           // Current line number in verb
	ServerInitiated bool          // True if this is a server-invoked call (do_login_command, etc.)
}

// ToList converts an activation frame to a MOO list for callers()
// Format: {this, verb_name, programmer, verb_loc, player, line_number}
// For primitive/anonymous targets, ThisValue carries the real "this" value.
func (a *ActivationFrame) ToList() types.Value {
	thisVal := types.Value(types.NewObj(a.This))
	if a.ThisValue != nil {
		thisVal = a.ThisValue
	}

	return types.NewList([]types.Value{
		thisVal,
		types.NewStr(a.Verb),
		types.NewObj(a.Programmer),
		types.NewObj(a.VerbLoc),
		types.NewObj(a.Player),
		types.NewInt(int64(a.LineNumber)),
	})
}

// ToMap converts an activation frame to a MOO map for task_stack()
// Keys: "this", "verb", "programmer", "verb_loc", "player", "line_number"
// Note: For primitive prototype calls, 'this' is #-1 (matching Toast).
func (a *ActivationFrame) ToMap() types.Value {
	return types.NewMap([][2]types.Value{
		{types.NewStr("this"), types.NewObj(a.This)}, // Always use object ID (#-1 for primitives)
		{types.NewStr("verb"), types.NewStr(a.Verb)},
		{types.NewStr("programmer"), types.NewObj(a.Programmer)},
		{types.NewStr("verb_loc"), types.NewObj(a.VerbLoc)},
		{types.NewStr("player"), types.NewObj(a.Player)},
		{types.NewStr("line_number"), types.NewInt(int64(a.LineNumber))},
	})
}

// Task represents a MOO task (unit of execution)
type Task struct {
	ID           int64
	Owner        types.ObjID
	Kind         TaskKind // Type of task (input, forked, suspended)
	State        TaskState
	StartTime    time.Time
	QueueTime    time.Time // When task was queued
	TicksUsed    int64
	TicksLimit   int64
	SecondsUsed  float64
	SecondsLimit float64
	CallStack    []ActivationFrame
	TaskLocal    types.Value // Task-local storage (set_task_local/task_local)

	// For suspension/resumption
	WakeTime        time.Time
	WakeValue       types.Value // Value to return when resumed
	IsExecSuspended bool        // True if suspended by exec() (can't resume, only kill)

	// For forked tasks
	ForkInfo *types.ForkInfo // Fork information (only for forked tasks)
	IsForked bool            // True if this is a forked task

	// Execution fields (use interface{} to avoid a dependency cycle with interp)
	Code          interface{}        // []parser.Stmt - actual code to execute
	Evaluator     interface{}        // *interp.Environment seeded for a forked task (nil for a fresh one)
	Context       *types.TaskContext // Task execution context
	Result        types.Result       // Last execution result
	Sched         SchedulerHooks     // Scheduler seam: forking and execution turn-taking
	Mgr           *Manager           // Task table this task is registered in
	CancelFunc    context.CancelFunc // For cancellation (exported for scheduler)
	StmtIndex     int                // Current statement index (for suspend/resume)
	ReadingPlayer types.ObjID        // Player this task is read()-blocked on, or ObjNothing

	// Goroutine lifecycle. A task's statement list runs on a single
	// goroutine for its entire life; suspend()/read() park that goroutine on
	// runCh instead of unwinding it, so resuming never re-executes anything.
	started    bool
	startOnce  sync.Once
	runCh      chan types.Value // delivers resume()'s value (or a read() line) to a parked goroutine
	suspendCh  chan struct{}    // goroutine -> scheduler: "I just parked on runCh"
	doneCh     chan types.Result // goroutine -> scheduler: final result, sent exactly once
	killCh     chan struct{}    // closed by Kill() to wake a parked goroutine early
	killOnce   sync.Once
	Done       chan struct{} // closed when the task's output has been flushed (callers may wait on this)

	// Verb context (set for verb tasks)
	VerbName            string
	VerbLoc             types.ObjID // Object where verb is defined (for traceback)
	This                types.ObjID // Object this verb is called on
	Caller              types.ObjID // Object that invoked the verb
	Argstr              string      // Full argument string
	Args                []string    // Arguments as word list
	Dobjstr             string      // Direct object string
	Dobj                types.ObjID // Direct object
	Prepstr             string      // Preposition string
	Iobjstr             string      // Indirect object string
	Iobj                types.ObjID // Indirect object
	CommandOutputSuffix string      // Connection output suffix for raw command framing

	// For compatibility with old server.Task
	Programmer types.ObjID // Permission context (usually same as Owner)

	mu sync.RWMutex
}

// NewTask creates a new task
func NewTask(id int64, owner types.ObjID, tickLimit int64, secondsLimit float64) *Task {
	now := time.Now()
	return &Task{
		ID:           id,
		Owner:        owner,
		Programmer:   owner,     // Default programmer is owner
		Kind:         TaskInput, // Default to input task
		State:        TaskCreated,
		StartTime:    now,
		QueueTime:    now,
		TicksUsed:    0,
		TicksLimit:   tickLimit,
		SecondsUsed:  0,
		SecondsLimit: secondsLimit,
		CallStack:    make([]ActivationFrame, 0),
		TaskLocal:    types.NewEmptyMap(), // Default task_local is empty map (matches ToastStunt)
		WakeValue:    types.NewInt(0),     // Default wake value is 0 (matches LambdaMOO)
		runCh:        make(chan types.Value, 1),
		suspendCh:    make(chan struct{}, 1),
		doneCh:       make(chan types.Result, 1),
		killCh:       make(chan struct{}),
		Done:         make(chan struct{}),
	}
}

// NewTaskFull creates a task with full context (code, evaluator, etc)
func NewTaskFull(id int64, owner types.ObjID, code interface{}, tickLimit int64, secondsLimit float64) *Task {
	ctx := types.NewTaskContext()
	ctx.Player = owner
	ctx.Programmer = owner
	ctx.TicksRemaining = tickLimit

	now := time.Now()
	t := &Task{
		ID:           id,
		Owner:        owner,
		Programmer:   owner,
		Kind:         TaskInput,
		State:        TaskCreated,
		StartTime:    now,
		QueueTime:    now,
		TicksUsed:    0,
		TicksLimit:   tickLimit,
		SecondsUsed:  0,
		SecondsLimit: secondsLimit,
		CallStack:    make([]ActivationFrame, 0),
		TaskLocal:    types.NewEmptyMap(), // Default task_local is empty map (matches ToastStunt)
		WakeValue:    types.NewInt(0),
		Code:         code,
		Context:      ctx,
		runCh:        make(chan types.Value, 1),
		suspendCh:    make(chan struct{}, 1),
		doneCh:       make(chan types.Result, 1),
		killCh:       make(chan struct{}),
		Done:         make(chan struct{}),
	}
	// Set ctx.Task to this task so builtins can access it
	if ctx != nil {
		ctx.Task = t
	}
	return t
}

// GetState returns the current state (thread-safe)
func (t *Task) GetState() TaskState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.State
}

// SetState sets the state (thread-safe)
func (t *Task) SetState(state TaskState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.State = state
}

// PushFrame pushes an activation frame onto the call stack
func (t *Task) PushFrame(frame ActivationFrame) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.CallStack = append(t.CallStack, frame)
}

// PopFrame pops an activation frame from the call stack
func (t *Task) PopFrame() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.CallStack) > 0 {
		t.CallStack = t.CallStack[:len(t.CallStack)-1]
	}
}

// GetCallStack returns a copy of the call stack (thread-safe)
func (t *Task) GetCallStack() []ActivationFrame {
	t.mu.RLock()
	defer t.mu.RUnlock()
	// Make a copy
	stack := make([]ActivationFrame, len(t.CallStack))
	copy(stack, t.CallStack)
	return stack
}

// GetTopFrame returns the top frame (current verb being executed)
func (t *Task) GetTopFrame() *ActivationFrame {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.CallStack) == 0 {
		return nil
	}
	return &t.CallStack[len(t.CallStack)-1]
}

// UpdateLineNumber updates the line number of the top activation frame
func (t *Task) UpdateLineNumber(line int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.CallStack) > 0 {
		t.CallStack[len(t.CallStack)-1].LineNumber = line
	}
}

// TicksLeft returns remaining ticks
func (t *Task) TicksLeft() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.TicksLimit - t.TicksUsed
}

// SecondsLeft returns remaining seconds
func (t *Task) SecondsLeft() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.SecondsLimit - t.SecondsUsed
}

// ConsumeTick increments tick count and returns true if ticks remain
func (t *Task) ConsumeTick() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.TicksUsed++
	return t.TicksUsed < t.TicksLimit
}

// GetTaskLocal returns the task-local value
func (t *Task) GetTaskLocal() types.Value {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.TaskLocal
}

// SetTaskLocal sets the task-local value
func (t *Task) SetTaskLocal(val types.Value) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.TaskLocal = val
}

// Suspend marks the task suspended for bookkeeping/introspection purposes
// (queued_tasks(), suspended_tasks()). The actual parking happens in
// BlockForSuspend, which a builtin calls from the task's own goroutine.
func (t *Task) Suspend(duration time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.State = TaskSuspended
	if duration > 0 {
		t.WakeTime = time.Now().Add(duration)
	} else {
		t.WakeTime = time.Time{}
	}
}

// Resume delivers a value to a task parked in BlockForSuspend and marks it
// ready to run again. Returns false if the task isn't suspended, is
// exec-suspended (can't resume, only kill), or its runCh is already full
// (a resume already pending).
func (t *Task) Resume(value types.Value) bool {
	t.mu.Lock()
	if t.State != TaskSuspended || t.IsExecSuspended {
		t.mu.Unlock()
		return false
	}
	t.State = TaskQueued
	t.mu.Unlock()
	select {
	case t.runCh <- value:
		return true
	default:
		return false
	}
}

// WakeDue reports whether a suspended task has a timed wake deadline due.
// Kept for introspection (suspended_tasks()); BlockForSuspend's own timer,
// not this, is what actually wakes a timed suspend.
func (t *Task) WakeDue(now time.Time) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.State == TaskSuspended && !t.WakeTime.IsZero() && !t.WakeTime.After(now)
}

// Kill marks the task killed and wakes it if it is parked in BlockForSuspend.
// Idempotent: killCh is closed at most once.
func (t *Task) Kill() {
	t.mu.Lock()
	t.State = TaskKilled
	t.mu.Unlock()
	t.killOnce.Do(func() {
		close(t.killCh)
	})
}

// Start runs fn on a new goroutine exactly once; subsequent calls are no-ops.
// fn is expected to run the task's statement list to completion (including
// any BlockForSuspend calls along the way) and end by calling t.Finish.
func (t *Task) Start(fn func()) {
	t.startOnce.Do(func() {
		t.mu.Lock()
		t.started = true
		t.State = TaskRunning
		t.mu.Unlock()
		go fn()
	})
}

// Started reports whether the task's goroutine has been spawned.
func (t *Task) Started() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.started
}

// DoneCh delivers the task's final Result exactly once, after Finish runs.
func (t *Task) DoneCh() <-chan types.Result {
	return t.doneCh
}

// SuspendCh fires once, the first time this task's goroutine parks in
// BlockForSuspend, letting a dispatcher wait for "finished OR suspended"
// instead of only "finished".
func (t *Task) SuspendCh() <-chan struct{} {
	return t.suspendCh
}

// Finish records a task's terminal result, marks it completed (unless it was
// killed), and closes Done so anything waiting on task completion unblocks.
// Must be called exactly once, from the task's own goroutine, right before
// it exits.
func (t *Task) Finish(result types.Result) {
	t.mu.Lock()
	if t.State != TaskKilled {
		t.State = TaskCompleted
	}
	t.Result = result
	t.mu.Unlock()
	select {
	case t.doneCh <- result:
	default:
	}
	close(t.Done)
}

// BlockForSuspend parks the calling goroutine (which must be the task's own)
// until it is resumed, its timer fires, or it is killed. It yields the
// execution token while parked and reacquires it before returning, so only
// one task is ever actually running MOO code at a time. Returns the wake
// value and whether the task was killed while parked.
func (t *Task) BlockForSuspend(delay time.Duration) (types.Value, bool) {
	t.Suspend(delay)

	select {
	case t.suspendCh <- struct{}{}:
	default:
	}
	if t.Sched != nil {
		t.Sched.Yield()
	}

	var timerCh <-chan time.Time
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		timerCh = timer.C
	}

	var wake types.Value
	killed := false
	select {
	case wake = <-t.runCh:
	case <-timerCh:
		wake = types.NewInt(0)
	case <-t.killCh:
		killed = true
	}

	if t.Sched != nil {
		t.Sched.Acquire()
	}
	t.mu.Lock()
	if killed {
		t.State = TaskKilled
	} else {
		t.State = TaskRunning
		t.WakeValue = wake
	}
	t.mu.Unlock()
	return wake, killed
}

// ToQueuedTaskInfo returns task info for queued_tasks()
// Format: {task_id, start_time, clock_id, bg_ticks, programmer, verb_loc, verb_name, line, this, bytes}
// Note: For primitive prototype calls, 'this' is #-1 (matching Toast).
func (t *Task) ToQueuedTaskInfo() types.Value {
	t.mu.RLock()
	defer t.mu.RUnlock()

	// Get information from the top frame if call stack exists
	var verbName string
	var verbLoc types.ObjID
	var lineNumber int
	var thisObj types.ObjID
	var programmer types.ObjID

	if len(t.CallStack) > 0 {
		topFrame := t.CallStack[len(t.CallStack)-1]
		verbName = topFrame.Verb
		verbLoc = topFrame.VerbLoc
		lineNumber = topFrame.LineNumber
		programmer = topFrame.Programmer
		thisObj = topFrame.This // Always use object ID (#-1 for primitives)
	} else {
		// Fallback if no call stack
		verbName = t.VerbName
		verbLoc = t.VerbLoc
		lineNumber = 1
		programmer = t.Owner
		thisObj = t.This
	}

	// Estimate bytes (0 for now, can be calculated later if needed)
	bytes := int64(0)

	return types.NewList([]types.Value{
		types.NewInt(t.ID),               // [1] task_id
		types.NewInt(t.QueueTime.Unix()), // [2] start_time
		types.NewInt(0),                  // [3] obsolete clock ID
		types.NewInt(30000),              // [4] DEFAULT_BG_TICKS (obsolete)
		types.NewObj(programmer),         // [5] programmer
		types.NewObj(verbLoc),            // [6] verb_loc
		types.NewStr(verbName),           // [7] verb_name
		types.NewInt(int64(lineNumber)),  // [8] line_number
		types.NewObj(thisObj),            // [9] this (always OBJ, #-1 for primitives)
		types.NewInt(bytes),              // [10] bytes
	})
}

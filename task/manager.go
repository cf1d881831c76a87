package task

import (
	"barn/types"
	"sync"
	"sync/atomic"
	"time"
)

// Manager owns the task table for a single Scheduler. One is created per
// server instance (see Scheduler.NewScheduler) and reached from a running
// task via Task.Mgr rather than through any package-level state.
type Manager struct {
	tasks      map[int64]*Task
	nextTaskID int64
	mu         sync.RWMutex
}

// NewManager creates an empty task manager.
func NewManager() *Manager {
	return &Manager{
		tasks:      make(map[int64]*Task),
		nextTaskID: 1,
	}
}

// CreateTask creates a new task and adds it to the manager
func (m *Manager) CreateTask(owner types.ObjID, tickLimit int64, secondsLimit float64) *Task {
	id := atomic.AddInt64(&m.nextTaskID, 1)
	task := NewTask(id, owner, tickLimit, secondsLimit)

	m.mu.Lock()
	m.tasks[id] = task
	m.mu.Unlock()

	return task
}

// GetTask retrieves a task by ID
func (m *Manager) GetTask(id int64) *Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tasks[id]
}

// RegisterTask registers an externally created task with the manager
// This allows builtins to find tasks created by the scheduler
func (m *Manager) RegisterTask(t *Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ID] = t
}

// RemoveTask removes a task from the manager
func (m *Manager) RemoveTask(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, id)
}

// GetAllTasks returns all tasks (for debugging)
func (m *Manager) GetAllTasks() []*Task {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tasks := make([]*Task, 0, len(m.tasks))
	for _, task := range m.tasks {
		tasks = append(tasks, task)
	}
	return tasks
}

// GetQueuedTasks returns all queued (waiting) tasks
func (m *Manager) GetQueuedTasks() []*Task {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tasks := make([]*Task, 0)
	for _, task := range m.tasks {
		state := task.GetState()
		if state == TaskQueued || state == TaskSuspended {
			tasks = append(tasks, task)
		}
	}
	return tasks
}

// FindReadingTask returns a task that is parked in read() waiting on input
// from the given player, or nil if none.
func (m *Manager) FindReadingTask(player types.ObjID) *Task {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, t := range m.tasks {
		if t.GetState() == TaskSuspended && t.ReadingPlayer == player {
			return t
		}
	}
	return nil
}

// CountActiveByOwner returns how many non-terminal tasks a given owner
// currently has in the table, used to enforce a per-player task limit.
func (m *Manager) CountActiveByOwner(owner types.ObjID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, t := range m.tasks {
		if t.Owner != owner {
			continue
		}
		switch t.GetState() {
		case TaskCompleted, TaskKilled:
		default:
			count++
		}
	}
	return count
}

// KillTask kills a task by ID
// Returns ErrorCode if task doesn't exist, already killed, or caller doesn't have permission
func (m *Manager) KillTask(taskID int64, killerID types.ObjID, isWizard bool) types.ErrorCode {
	task := m.GetTask(taskID)
	if task == nil {
		return types.E_INVARG
	}

	// Check if task is already killed
	if task.GetState() == TaskKilled {
		return types.E_INVARG
	}

	// Permission check: must be task owner or wizard
	if task.Owner != killerID && !isWizard {
		return types.E_PERM
	}

	task.Kill()
	return types.E_NONE
}

// ResumeTask resumes a suspended task with a value
func (m *Manager) ResumeTask(taskID int64, value types.Value, resumerID types.ObjID, isWizard bool) types.ErrorCode {
	task := m.GetTask(taskID)
	if task == nil {
		return types.E_INVARG
	}

	// Permission check: must be task owner or wizard
	if task.Owner != resumerID && !isWizard {
		return types.E_PERM
	}

	if task.GetState() != TaskSuspended {
		return types.E_INVARG
	}

	if !task.Resume(value) {
		return types.E_INVARG
	}

	return types.E_NONE
}

// SuspendTask suspends a task for a duration
func (m *Manager) SuspendTask(task *Task, seconds float64) {
	duration := time.Duration(seconds * float64(time.Second))
	task.Suspend(duration)
}

// CleanupCompletedTasks removes completed and killed tasks
// Should be called periodically
func (m *Manager) CleanupCompletedTasks() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, task := range m.tasks {
		state := task.GetState()
		if state == TaskCompleted || state == TaskKilled {
			// Keep tasks for a while for debugging, but eventually remove them
			// For now, remove immediately
			delete(m.tasks, id)
		}
	}
}

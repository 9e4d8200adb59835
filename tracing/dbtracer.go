package tracing

import (
	"sync"

	"github.com/tebeka/atexit"

	"github.com/sarchlab/octacore/datarecording"
	"github.com/sarchlab/octacore/sim"
)

type taskTableEntry struct {
	ID       string
	ParentID string
	Kind     string
	What     string

	// Location holds Task.Where; WHERE cannot be a bare column name.
	Location  string
	StartTime float64
	EndTime   float64
}

// A DBTracer stores completed tasks through a data recorder, so a run's
// traces can be queried after the fact.
type DBTracer struct {
	mu         sync.Mutex
	timeTeller sim.TimeTeller
	backend    datarecording.DataRecorder

	startTime, endTime sim.VTimeInSec

	tracingTasks map[string]Task
}

// NewDBTracer creates a DBTracer.
func NewDBTracer(
	timeTeller sim.TimeTeller,
	backend datarecording.DataRecorder,
) *DBTracer {
	backend.CreateTable("trace", taskTableEntry{})

	t := &DBTracer{
		timeTeller:   timeTeller,
		backend:      backend,
		tracingTasks: make(map[string]Task),
	}

	atexit.Register(func() { t.Terminate() })

	return t
}

// SetTimeRange restricts recording to tasks alive inside the range.
func (t *DBTracer) SetTimeRange(startTime, endTime sim.VTimeInSec) {
	t.startTime = startTime
	t.endTime = endTime
}

// StartTask marks the start of a task.
func (t *DBTracer) StartTask(task Task) {
	t.mu.Lock()
	defer t.mu.Unlock()

	task.StartTime = t.timeTeller.CurrentTime()
	if t.endTime > 0 && task.StartTime > t.endTime {
		return
	}

	t.tracingTasks[task.ID] = task
}

// StepTask does nothing for now.
func (t *DBTracer) StepTask(_ Task) {
}

// EndTask writes the completed task to the backend.
func (t *DBTracer) EndTask(task Task) {
	t.mu.Lock()
	defer t.mu.Unlock()

	endTime := t.timeTeller.CurrentTime()
	if t.startTime > 0 && endTime < t.startTime {
		delete(t.tracingTasks, task.ID)
		return
	}

	original, ok := t.tracingTasks[task.ID]
	if !ok {
		return
	}
	delete(t.tracingTasks, task.ID)

	t.backend.InsertData("trace", taskTableEntry{
		ID:        original.ID,
		ParentID:  original.ParentID,
		Kind:      original.Kind,
		What:      original.What,
		Location:  original.Where,
		StartTime: float64(original.StartTime),
		EndTime:   float64(endTime),
	})
}

// Terminate drops unfinished tasks and flushes the backend.
func (t *DBTracer) Terminate() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.tracingTasks = nil
	t.backend.Flush()
}

package domain

import "time"

// Phase is the pipeline step a batch is currently in.
type Phase string

const (
	PhasePlanning   Phase = "planning"
	PhaseValidating Phase = "validating"
	PhaseImaging    Phase = "imaging"
	PhaseStoring    Phase = "storing"
	PhasePersisting Phase = "persisting"
	PhaseDone       Phase = "done"
	PhaseFailed     Phase = "failed"
	PhaseCancelled  Phase = "cancelled"
)

// Terminal reports whether the phase ends the progress stream.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseFailed || p == PhaseCancelled
}

// AgentName identifies a pipeline worker.
type AgentName string

const (
	AgentConcept     AgentName = "concept"
	AgentValidation  AgentName = "validation"
	AgentMedia       AgentName = "media"
	AgentStorage     AgentName = "storage"
	AgentPersistence AgentName = "persistence"
)

// AgentNames lists agents in pipeline order.
var AgentNames = []AgentName{AgentConcept, AgentValidation, AgentMedia, AgentStorage, AgentPersistence}

// AgentState is the coarse state of an agent inside one batch.
type AgentState string

const (
	AgentIdle     AgentState = "idle"
	AgentWorking  AgentState = "working"
	AgentComplete AgentState = "complete"
	AgentError    AgentState = "error"
)

// AgentStatus is reported per agent in every snapshot.
type AgentStatus struct {
	State           AgentState `json:"state"`
	LastOperationAt *time.Time `json:"lastOperationAt,omitempty"`
	Error           string     `json:"error,omitempty"`
}

// ChunkState tracks a chunk through the pipeline.
type ChunkState string

const (
	ChunkPending   ChunkState = "pending"
	ChunkRunning   ChunkState = "running"
	ChunkPersisted ChunkState = "persisted"
	ChunkFailed    ChunkState = "failed"
	ChunkSkipped   ChunkState = "skipped"
)

// ChunkProgress is the per-chunk view in a snapshot.
type ChunkProgress struct {
	Index     int        `json:"index"`
	Size      int        `json:"size"`
	State     ChunkState `json:"state"`
	Persisted int        `json:"persisted"`
	Failed    int        `json:"failed"`
}

// ErrorEntry is one recorded failure with enough context to audit partial success.
type ErrorEntry struct {
	Stage      Phase     `json:"stage"`
	ChunkIndex int       `json:"chunkIndex"`
	ItemIndex  int       `json:"itemIndex"`
	ItemName   string    `json:"itemName,omitempty"`
	Message    string    `json:"message"`
	At         time.Time `json:"at"`
}

// ProgressSnapshot is a point-in-time report for a batch.
type ProgressSnapshot struct {
	BatchID        string                    `json:"batchId"`
	Status         BatchStatus               `json:"status"`
	Phase          Phase                     `json:"phase"`
	CurrentChunk   int                       `json:"currentChunk"`
	TotalChunks    int                       `json:"totalChunks"`
	ItemsCompleted int                       `json:"itemsCompleted"`
	ItemsFailed    int                       `json:"itemsFailed"`
	ItemsDegraded  int                       `json:"itemsDegraded"`
	TotalItems     int                       `json:"totalItems"`
	Agents         map[AgentName]AgentStatus `json:"agents"`
	Chunks         []ChunkProgress           `json:"chunks"`
	Errors         []ErrorEntry              `json:"errors"`
	StartedAt      time.Time                 `json:"startedAt"`
	UpdatedAt      time.Time                 `json:"updatedAt"`
	CompletedAt    *time.Time                `json:"completedAt,omitempty"`
	Version        int64                     `json:"version"`
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s ProgressSnapshot) Clone() ProgressSnapshot {
	out := s
	if s.Agents != nil {
		out.Agents = make(map[AgentName]AgentStatus, len(s.Agents))
		for k, v := range s.Agents {
			if v.LastOperationAt != nil {
				at := *v.LastOperationAt
				v.LastOperationAt = &at
			}
			out.Agents[k] = v
		}
	}
	out.Chunks = append([]ChunkProgress(nil), s.Chunks...)
	out.Errors = append([]ErrorEntry(nil), s.Errors...)
	if s.CompletedAt != nil {
		at := *s.CompletedAt
		out.CompletedAt = &at
	}
	return out
}

// AgentMetrics are process-lifetime counters for one agent type.
type AgentMetrics struct {
	OperationCount  int64         `json:"operationCount"`
	AttemptCount    int64         `json:"attemptCount"`
	ErrorCount      int64         `json:"errorCount"`
	TotalDuration   time.Duration `json:"totalDurationNs"`
	AverageDuration time.Duration `json:"averageDurationNs"`
	LastError       string        `json:"lastError,omitempty"`
	LastOperationAt *time.Time    `json:"lastOperationAt,omitempty"`
	// Batch counters cover fan-out entry points that process many items at once.
	BatchCount    int64         `json:"batchCount,omitempty"`
	BatchItems    int64         `json:"batchItems,omitempty"`
	BatchDuration time.Duration `json:"batchDurationNs,omitempty"`
}

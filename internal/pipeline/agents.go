package pipeline

import (
	"net/http"
	"time"

	"mealgen/internal/agents"
	"mealgen/internal/domain"
	"mealgen/internal/infra"
	"mealgen/internal/providers/image"
	"mealgen/internal/providers/planner"
)

// Agents are the workers a coordinator drives. Every field is required.
type Agents struct {
	Concept     *agents.ConceptAgent
	Drafter     planner.Drafter
	Validation  *agents.ValidationAgent
	Media       *agents.MediaAgent
	Storage     *agents.StorageAgent
	Persistence *agents.PersistenceAgent
}

// Deps collects what NewAgents needs to build the standard worker set.
type Deps struct {
	Metrics          *agents.MetricsRegistry
	Policy           agents.RetryPolicy
	Logger           infra.Logger
	Source           planner.Source
	Drafter          planner.Drafter
	Images           image.Generator
	Objects          domain.ObjectStore
	Items            domain.ItemStore
	HTTPClient       *http.Client
	PlaceholderBase  string
	MediaConcurrency int
	UploadTimeout    time.Duration
}

// NewAgents wires one worker per agent type around a shared metrics registry.
func NewAgents(d Deps) Agents {
	worker := func(name domain.AgentName) *agents.Worker {
		return agents.NewWorker(name, d.Policy, d.Metrics, d.Logger)
	}
	drafter := d.Drafter
	if drafter == nil {
		drafter = planner.NewStaticDrafter()
	}
	return Agents{
		Concept:     agents.NewConceptAgent(worker(domain.AgentConcept), d.Source),
		Drafter:     drafter,
		Validation:  agents.NewValidationAgent(worker(domain.AgentValidation)),
		Media:       agents.NewMediaAgent(worker(domain.AgentMedia), d.Images, d.PlaceholderBase, d.MediaConcurrency),
		Storage:     agents.NewStorageAgent(worker(domain.AgentStorage), d.Objects, d.HTTPClient, d.UploadTimeout, d.MediaConcurrency),
		Persistence: agents.NewPersistenceAgent(worker(domain.AgentPersistence), d.Items),
	}
}

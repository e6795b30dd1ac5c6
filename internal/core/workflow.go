package core

// workflow.go holds the workflow definition: the ordered, dependency-annotated
// list of stages the engine consults for every legal transition.

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// StageDescriptor describes one stage of the pipeline.
type StageDescriptor struct {
	Name              Stage    `json:"name"`
	Order             int      `json:"order"`
	Required          bool     `json:"required"`
	EstimatedDuration int      `json:"estimatedDuration"` // days
	Actions           []string `json:"actions"`
	Dependencies      []Stage  `json:"dependencies"`
}

// WorkflowDefinition is the ordered list of stages. It is loaded once and
// never mutated afterwards.
type WorkflowDefinition struct {
	Stages []StageDescriptor `json:"stages"`

	index map[Stage]int
}

// DefaultWorkflow returns the standard five-stage farmer onboarding pipeline.
func DefaultWorkflow() *WorkflowDefinition {
	def, err := NewWorkflowDefinition([]StageDescriptor{
		{
			Name: StageRegistration, Order: 1, Required: true, EstimatedDuration: 1,
			Actions: []string{"Collect farmer details", "Verify phone number", "Assign field agent"},
		},
		{
			Name: StageDocumentation, Order: 2, Required: true, EstimatedDuration: 3,
			Actions:      []string{"Upload ID card", "Upload land document", "Upload bank statement", "Capture photo"},
			Dependencies: []Stage{StageRegistration},
		},
		{
			Name: StageTraining, Order: 3, Required: true, EstimatedDuration: 7,
			Actions:      []string{"Complete platform orientation", "Complete good agricultural practices module", "Issue training certificate"},
			Dependencies: []Stage{StageDocumentation},
		},
		{
			Name: StageVerification, Order: 4, Required: true, EstimatedDuration: 3,
			Actions:      []string{"Field visit", "Verify documents", "Confirm farm size"},
			Dependencies: []Stage{StageTraining},
		},
		{
			Name: StageActivation, Order: 5, Required: true, EstimatedDuration: 1,
			Actions:      []string{"Activate marketplace account", "Send welcome pack"},
			Dependencies: []Stage{StageVerification},
		},
	})
	if err != nil {
		panic(fmt.Sprintf("default workflow: %v", err))
	}
	return def
}

// NewWorkflowDefinition validates and indexes a stage list. Stages are sorted
// by Order; names must be unique and dependencies must refer to earlier stages.
func NewWorkflowDefinition(stages []StageDescriptor) (*WorkflowDefinition, error) {
	if len(stages) == 0 {
		return nil, ValidationErrorf("workflow definition has no stages")
	}

	sorted := make([]StageDescriptor, len(stages))
	copy(sorted, stages)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	index := make(map[Stage]int, len(sorted))
	for i, s := range sorted {
		if s.Name == "" {
			return nil, ValidationErrorf("stage at order %d has no name", s.Order)
		}
		if _, dup := index[s.Name]; dup {
			return nil, ValidationErrorf("duplicate stage %q", s.Name)
		}
		for _, dep := range s.Dependencies {
			if _, ok := index[dep]; !ok {
				return nil, ValidationErrorf("stage %q depends on %q which is not an earlier stage", s.Name, dep)
			}
		}
		index[s.Name] = i
	}

	return &WorkflowDefinition{Stages: sorted, index: index}, nil
}

// Index returns the zero-based position of s, or -1 if unknown.
func (w *WorkflowDefinition) Index(s Stage) int {
	if i, ok := w.index[s]; ok {
		return i
	}
	return -1
}

// Has reports whether s is part of the definition.
func (w *WorkflowDefinition) Has(s Stage) bool {
	_, ok := w.index[s]
	return ok
}

// Descriptor returns the descriptor for s.
func (w *WorkflowDefinition) Descriptor(s Stage) (StageDescriptor, bool) {
	i, ok := w.index[s]
	if !ok {
		return StageDescriptor{}, false
	}
	return w.Stages[i], true
}

// First returns the entry stage.
func (w *WorkflowDefinition) First() Stage { return w.Stages[0].Name }

// Last returns the terminal stage.
func (w *WorkflowDefinition) Last() Stage { return w.Stages[len(w.Stages)-1].Name }

// Names returns the stage names in order.
func (w *WorkflowDefinition) Names() []Stage {
	out := make([]Stage, len(w.Stages))
	for i, s := range w.Stages {
		out[i] = s.Name
	}
	return out
}

// CheckAdvance validates a forward move of r to target.
//
// The target must come after the current stage, every declared dependency of
// the target must already be passed (the current stage counts, since it is
// left by the move), and no required stage between current and target may be
// skipped.
func (w *WorkflowDefinition) CheckAdvance(r Record, target Stage) error {
	ti := w.Index(target)
	if ti < 0 {
		return ValidationErrorf("unknown stage %q", target)
	}
	ci := w.Index(r.Stage)
	if ci < 0 {
		return IllegalTransitionErrorf("record %s is at unknown stage %q", r.ID, r.Stage)
	}
	if ti <= ci {
		return withHint(
			IllegalTransitionErrorf("cannot move record %s from %s back to %s", r.ID, r.Stage, target),
			"Use a stage override to move a record backwards",
		)
	}

	passed := func(s Stage) bool { return s == r.Stage || r.HasPassed(s) }

	desc := w.Stages[ti]
	for _, dep := range desc.Dependencies {
		if !passed(dep) {
			return withHint(
				IllegalTransitionErrorf("cannot move record %s to %s: prerequisite %s not completed", r.ID, target, dep),
				fmt.Sprintf("Complete the %s stage first", dep),
			)
		}
	}
	for _, between := range w.Stages[ci+1 : ti] {
		if between.Required && !passed(between.Name) {
			return withHint(
				IllegalTransitionErrorf("cannot move record %s to %s: required stage %s would be skipped", r.ID, target, between.Name),
				fmt.Sprintf("Complete the %s stage first", between.Name),
			)
		}
	}
	return nil
}

// ProgressPercent returns (index+1)/len*100 rounded to the nearest integer.
func (w *WorkflowDefinition) ProgressPercent(s Stage) int {
	i := w.Index(s)
	if i < 0 {
		return 0
	}
	return int(math.Round(float64(i+1) * 100 / float64(len(w.Stages))))
}

// EstimatedCompletion sums the estimated durations of the stages from s
// onwards, starting at from.
func (w *WorkflowDefinition) EstimatedCompletion(s Stage, from time.Time) time.Time {
	i := w.Index(s)
	if i < 0 {
		return from
	}
	days := 0
	for _, d := range w.Stages[i:] {
		days += d.EstimatedDuration
	}
	return from.AddDate(0, 0, days)
}

// nextActions is the fixed recommendation table keyed by current stage.
var nextActions = map[Stage][]string{
	StageRegistration: {
		"Verify farmer contact details",
		"Collect identification documents",
		"Schedule documentation visit",
	},
	StageDocumentation: {
		"Review uploaded documents",
		"Request missing land or bank documents",
		"Enroll farmer in training",
	},
	StageTraining: {
		"Track module completion",
		"Issue training certificate",
		"Schedule verification visit",
	},
	StageVerification: {
		"Conduct field verification",
		"Confirm farm size and crops",
		"Approve for activation",
	},
	StageActivation: {
		"Activate marketplace account",
		"Send welcome message",
		"Schedule first follow-up",
	},
}

// NextActions returns the recommended actions for a record at stage s.
func NextActions(s Stage) []string {
	return append([]string(nil), nextActions[s]...)
}

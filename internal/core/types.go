package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stage is a record's position in the onboarding pipeline.
type Stage string

const (
	StageRegistration  Stage = "registration"
	StageDocumentation Stage = "documentation"
	StageTraining      Stage = "training"
	StageVerification  Stage = "verification"
	StageActivation    Stage = "activation"
)

// Status describes the overall health of a record, independent of its stage.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusRejected   Status = "rejected"
	StatusOnHold     Status = "on_hold"
)

// AllStatuses lists every valid status in display order.
var AllStatuses = []Status{StatusPending, StatusInProgress, StatusCompleted, StatusRejected, StatusOnHold}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, v := range AllStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Terminal reports whether no further follow-up is expected for the status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

// Priority orders records for field agents.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

// DocumentKind identifies a supporting document.
type DocumentKind string

const (
	DocumentIDCard        DocumentKind = "id_card"
	DocumentLand          DocumentKind = "land_document"
	DocumentBankStatement DocumentKind = "bank_statement"
	DocumentPhoto         DocumentKind = "photo"
)

// Valid reports whether k is a known document kind.
func (k DocumentKind) Valid() bool {
	switch k {
	case DocumentIDCard, DocumentLand, DocumentBankStatement, DocumentPhoto:
		return true
	}
	return false
}

// Subject holds the farmer's identity and farm attributes.
// The engine treats it as an opaque value apart from presence checks.
type Subject struct {
	Name              string          `json:"name" validate:"required"`
	Email             string          `json:"email,omitempty" validate:"omitempty,email"`
	Phone             string          `json:"phone,omitempty"`
	Location          string          `json:"location,omitempty"`
	State             string          `json:"state,omitempty"`
	LGA               string          `json:"lga,omitempty"`
	Village           string          `json:"village,omitempty"`
	FarmSize          decimal.Decimal `json:"farmSize"`
	FarmSizeUnit      string          `json:"farmSizeUnit,omitempty"`
	PrimaryCrops      []string        `json:"primaryCrops,omitempty"`
	FarmingExperience int             `json:"farmingExperience,omitempty"`
	EducationLevel    string          `json:"educationLevel,omitempty"`
	HouseholdSize     int             `json:"householdSize,omitempty"`
	AnnualIncome      decimal.Decimal `json:"annualIncome"`
	IncomeSource      string          `json:"incomeSource,omitempty"`
}

// Training tracks a record's training progress.
type Training struct {
	CompletedModules []string   `json:"completedModules"`
	CurrentModule    string     `json:"currentModule,omitempty"`
	Progress         int        `json:"progress"`
	Certificates     []string   `json:"certificates"`
	LastTrainingAt   *time.Time `json:"lastTrainingAt,omitempty"`
}

// Note is one entry of a record's append-only audit trail.
type Note struct {
	Text      string    `json:"text"`
	Author    string    `json:"author,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Record is one farmer moving through onboarding.
// Records are only mutated through Service operations.
type Record struct {
	ID              string                  `json:"id"`
	Subject         Subject                 `json:"subject"`
	Documents       map[DocumentKind]string `json:"documents"`
	Training        Training                `json:"training"`
	Status          Status                  `json:"status"`
	Stage           Stage                   `json:"stage"`
	PassedStages    []Stage                 `json:"passedStages"`
	AssignedPartner string                  `json:"assignedPartner"`
	AssignedAgent   string                  `json:"assignedAgent,omitempty"`
	Priority        Priority                `json:"priority"`
	Notes           []Note                  `json:"notes"`

	CreatedAt               time.Time  `json:"createdAt"`
	UpdatedAt               time.Time  `json:"updatedAt"`
	CompletedAt             *time.Time `json:"completedAt,omitempty"`
	NextFollowUp            *time.Time `json:"nextFollowUp,omitempty"`
	EstimatedCompletionDate *time.Time `json:"estimatedCompletionDate,omitempty"`
}

// Clone returns a deep copy so stores and caches never share mutable state.
func (r Record) Clone() Record {
	out := r
	out.Subject.PrimaryCrops = cloneStrings(r.Subject.PrimaryCrops)
	out.Training.CompletedModules = cloneStrings(r.Training.CompletedModules)
	out.Training.Certificates = cloneStrings(r.Training.Certificates)
	out.Training.LastTrainingAt = cloneTime(r.Training.LastTrainingAt)
	out.PassedStages = append([]Stage(nil), r.PassedStages...)
	out.Notes = append([]Note(nil), r.Notes...)
	if r.Documents != nil {
		out.Documents = make(map[DocumentKind]string, len(r.Documents))
		for k, v := range r.Documents {
			out.Documents[k] = v
		}
	}
	out.CompletedAt = cloneTime(r.CompletedAt)
	out.NextFollowUp = cloneTime(r.NextFollowUp)
	out.EstimatedCompletionDate = cloneTime(r.EstimatedCompletionDate)
	return out
}

// HasPassed reports whether the record has already left stage s.
func (r Record) HasPassed(s Stage) bool {
	for _, p := range r.PassedStages {
		if p == s {
			return true
		}
	}
	return false
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Progress is the computed position of a record in the pipeline.
type Progress struct {
	RecordID        string   `json:"recordId"`
	CurrentStage    Stage    `json:"currentStage"`
	OverallProgress int      `json:"overallProgress"`
	CompletedStages []string `json:"completedStages"`
	PendingStages   []string `json:"pendingStages"`
	NextActions     []string `json:"nextActions"`
}

// FilterSpec selects records. Empty fields and "all" impose no constraint.
// Field order is fixed so the JSON encoding doubles as a cache key.
type FilterSpec struct {
	Search        string     `json:"search,omitempty"`
	Status        string     `json:"status,omitempty"`
	Stage         string     `json:"stage,omitempty"`
	Region        string     `json:"region,omitempty"`
	Priority      string     `json:"priority,omitempty"`
	AssignedAgent string     `json:"assignedAgent,omitempty"`
	From          *time.Time `json:"from,omitempty"`
	To            *time.Time `json:"to,omitempty"`
}

// RowIssue is a row-level diagnostic produced by bulk import.
type RowIssue struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
}

// ImportSummary splits successful rows by outcome.
type ImportSummary struct {
	NewFarmers     int `json:"newFarmers"`
	UpdatedFarmers int `json:"updatedFarmers"`
	SkippedFarmers int `json:"skippedFarmers"`
}

// ImportResult is the aggregated outcome of a bulk import.
// Total always equals Successful + Failed.
type ImportResult struct {
	ImportID   string        `json:"importId"`
	DryRun     bool          `json:"dryRun"`
	Total      int           `json:"total"`
	Successful int           `json:"successful"`
	Failed     int           `json:"failed"`
	Errors     []RowIssue    `json:"errors"`
	Warnings   []RowIssue    `json:"warnings"`
	Summary    ImportSummary `json:"summary"`
	Duration   time.Duration `json:"duration"`
}

// ImportOptions controls a bulk import.
type ImportOptions struct {
	AssignedPartner string
	DryRun          bool
}

// Statistics aggregates the full record set.
type Statistics struct {
	Total                 int            `json:"total"`
	Pending               int            `json:"pending"`
	InProgress            int            `json:"inProgress"`
	Completed             int            `json:"completed"`
	Rejected              int            `json:"rejected"`
	OnHold                int            `json:"onHold"`
	ThisWeek              int            `json:"thisWeek"`
	ThisMonth             int            `json:"thisMonth"`
	AverageCompletionTime float64        `json:"averageCompletionTime"`
	SuccessRate           float64        `json:"successRate"`
	RegionalDistribution  map[string]int `json:"regionalDistribution"`
	CropDistribution      map[string]int `json:"cropDistribution"`
}

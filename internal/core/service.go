package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/agrionboard/internal/logging"
	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// DefaultStoreTimeout bounds a single store call.
const DefaultStoreTimeout = 5 * time.Second

// Config holds engine settings. Zero values fall back to defaults.
type Config struct {
	CacheTTL             time.Duration
	CacheCleanupInterval time.Duration
	StoreTimeout         time.Duration
	ImportChunkSize      int
	MaxImportSize        int64
	MaxConcurrentImports int
	ImportMaxWait        time.Duration
}

// Service is the onboarding workflow engine. It is the only component that
// mutates records; every mutation runs under one lock and clears the read
// cache once the store has accepted it.
type Service struct {
	store      Store
	workflow   *WorkflowDefinition
	cache      *QueryCache
	dispatcher *Dispatcher
	limiter    *ImportLimiter
	cfg        Config
	validate   *validator.Validate
	now        func() time.Time

	mu sync.Mutex
}

// Option customizes a Service.
type Option func(*Service)

// WithWorkflow replaces the default workflow definition.
func WithWorkflow(def *WorkflowDefinition) Option {
	return func(s *Service) { s.workflow = def }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service over store. dispatcher may be nil when
// messaging is not needed.
func NewService(store Store, dispatcher *Dispatcher, cfg Config, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("core: nil store")
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}
	if cfg.ImportChunkSize <= 0 {
		cfg.ImportChunkSize = DefaultImportChunkSize
	}
	if cfg.MaxImportSize <= 0 {
		cfg.MaxImportSize = DefaultMaxImportSize
	}

	s := &Service{
		store:      store,
		workflow:   DefaultWorkflow(),
		cache:      NewQueryCache(cfg.CacheTTL, cfg.CacheCleanupInterval),
		dispatcher: dispatcher,
		limiter:    NewImportLimiter(cfg.MaxConcurrentImports, cfg.ImportMaxWait),
		cfg:        cfg,
		validate:   validator.New(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Workflow returns the workflow definition in use.
func (s *Service) Workflow() *WorkflowDefinition { return s.workflow }

// Cache returns the read cache.
func (s *Service) Cache() *QueryCache { return s.cache }

// Dispatcher returns the communication dispatcher, or nil.
func (s *Service) Dispatcher() *Dispatcher { return s.dispatcher }

// ImportLimiter returns the limiter bounding concurrent imports.
func (s *Service) ImportLimiter() *ImportLimiter { return s.limiter }

// CreateRecordRequest is the input for CreateRecord.
type CreateRecordRequest struct {
	Subject         *Subject   `json:"subject" validate:"required"`
	AssignedPartner string     `json:"assignedPartner" validate:"required"`
	AssignedAgent   string     `json:"assignedAgent"`
	Priority        Priority   `json:"priority" validate:"omitempty,oneof=low medium high"`
	NextFollowUp    *time.Time `json:"nextFollowUp"`
}

// CreateRecord starts a new record at the first stage with status pending.
func (s *Service) CreateRecord(ctx context.Context, req CreateRecordRequest) (Record, error) {
	req.AssignedPartner = strings.TrimSpace(req.AssignedPartner)
	if req.Subject != nil {
		subject := *req.Subject
		subject.Name = strings.TrimSpace(subject.Name)
		req.Subject = &subject
	}
	if err := s.validate.Struct(req); err != nil {
		return Record{}, validationFromStruct(err)
	}

	now := s.now()
	priority := req.Priority
	if priority == "" {
		priority = PriorityMedium
	}
	eta := s.workflow.EstimatedCompletion(s.workflow.First(), now)

	r := Record{
		ID:                      uuid.New().String(),
		Subject:                 *req.Subject,
		Documents:               map[DocumentKind]string{},
		Training:                Training{CompletedModules: []string{}, Certificates: []string{}},
		Status:                  StatusPending,
		Stage:                   s.workflow.First(),
		PassedStages:            []Stage{},
		AssignedPartner:         req.AssignedPartner,
		AssignedAgent:           strings.TrimSpace(req.AssignedAgent),
		Priority:                priority,
		Notes:                   []Note{},
		CreatedAt:               now,
		UpdatedAt:               now,
		NextFollowUp:            cloneTime(req.NextFollowUp),
		EstimatedCompletionDate: &eta,
	}
	r.Subject.PrimaryCrops = cloneStrings(r.Subject.PrimaryCrops)

	s.mu.Lock()
	defer s.mu.Unlock()

	saved, err := s.save(ctx, r)
	if err != nil {
		return Record{}, err
	}
	s.cache.Clear()

	logging.WithFields(ctx, "record_id", saved.ID).Info("record created",
		"partner", saved.AssignedPartner,
		"stage", saved.Stage,
	)
	return saved, nil
}

// GetRecord returns the record with the given id.
func (s *Service) GetRecord(ctx context.Context, id string) (Record, error) {
	return s.load(ctx, id)
}

// AdvanceStage moves a record forward to target. The target's prerequisites
// must all be passed; note is appended when non-empty.
func (s *Service) AdvanceStage(ctx context.Context, id string, target Stage, note string) (Record, error) {
	var from Stage
	r, err := s.mutate(ctx, id, func(r *Record) error {
		if err := s.workflow.CheckAdvance(*r, target); err != nil {
			return err
		}
		from = r.Stage
		s.leaveStage(r, target)
		eta := s.workflow.EstimatedCompletion(target, s.now())
		r.EstimatedCompletionDate = &eta
		if note = strings.TrimSpace(note); note != "" {
			s.appendNote(ctx, r, note)
		}
		return nil
	})
	if err != nil {
		return Record{}, err
	}

	logging.WithFields(ctx, "record_id", id).Info("stage advanced", "from", from, "to", target)
	return r, nil
}

// OverrideStage moves a record to any stage, bypassing dependency checks.
// It is an administrative operation: a reason is required and an audit note
// naming the actor is appended.
func (s *Service) OverrideStage(ctx context.Context, id string, target Stage, reason string) (Record, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Record{}, withHint(ValidationErrorf("override reason is required"), "Explain why the stage is being overridden")
	}
	if !s.workflow.Has(target) {
		return Record{}, ValidationErrorf("unknown stage %q", target)
	}
	actor := ActorFromContext(ctx)
	if actor == "" {
		actor = "unknown"
	}

	var from Stage
	r, err := s.mutate(ctx, id, func(r *Record) error {
		if r.Stage == target {
			return IllegalTransitionErrorf("record %s is already at %s", r.ID, target)
		}
		from = r.Stage
		ti := s.workflow.Index(target)
		if ti > s.workflow.Index(r.Stage) {
			s.leaveStage(r, target)
		} else {
			r.PassedStages = lo.Filter(r.PassedStages, func(p Stage, _ int) bool {
				return s.workflow.Index(p) < ti
			})
			r.Stage = target
		}
		if r.Status == StatusCompleted && target != s.workflow.Last() {
			r.Status = StatusInProgress
			r.CompletedAt = nil
		}
		eta := s.workflow.EstimatedCompletion(target, s.now())
		r.EstimatedCompletionDate = &eta
		r.Notes = append(r.Notes, Note{
			Text:      fmt.Sprintf("Stage override from %s to %s by %s: %s", from, target, actor, reason),
			Author:    actor,
			CreatedAt: s.now(),
		})
		return nil
	})
	if err != nil {
		return Record{}, err
	}

	logging.WithFields(ctx, "record_id", id).Warn("stage overridden",
		"from", from,
		"to", target,
		"actor", actor,
		"ip", IPAddressFromContext(ctx),
		"reason", reason,
	)
	return r, nil
}

// UpdateStatus sets a record's status. Completed is only legal at the final
// stage and stamps CompletedAt; leaving completed clears it.
func (s *Service) UpdateStatus(ctx context.Context, id string, status Status) (Record, error) {
	if !status.Valid() {
		return Record{}, ValidationErrorf("unknown status %q", status)
	}
	var from Status
	r, err := s.mutate(ctx, id, func(r *Record) error {
		if status == StatusCompleted && r.Stage != s.workflow.Last() {
			return withHint(
				IllegalTransitionErrorf("record %s cannot be completed at stage %s", r.ID, r.Stage),
				fmt.Sprintf("Advance the record to %s first", s.workflow.Last()),
			)
		}
		from = r.Status
		r.Status = status
		switch {
		case status == StatusCompleted:
			now := s.now()
			r.CompletedAt = &now
		case from == StatusCompleted:
			r.CompletedAt = nil
		}
		return nil
	})
	if err != nil {
		return Record{}, err
	}

	logging.WithFields(ctx, "record_id", id).Info("status updated", "from", from, "to", status)
	return r, nil
}

// AppendNote adds a free-text entry to the record's audit trail.
func (s *Service) AppendNote(ctx context.Context, id, text string) (Record, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Record{}, ValidationErrorf("note text is required")
	}
	return s.mutate(ctx, id, func(r *Record) error {
		s.appendNote(ctx, r, text)
		return nil
	})
}

// AttachDocument stores a reference for a document kind.
func (s *Service) AttachDocument(ctx context.Context, id string, kind DocumentKind, ref string) (Record, error) {
	ref = strings.TrimSpace(ref)
	if !kind.Valid() {
		return Record{}, ValidationErrorf("unknown document kind %q", kind)
	}
	if ref == "" {
		return Record{}, ValidationErrorf("document reference is required")
	}
	return s.mutate(ctx, id, func(r *Record) error {
		if r.Documents == nil {
			r.Documents = map[DocumentKind]string{}
		}
		r.Documents[kind] = ref
		return nil
	})
}

// TrainingUpdate describes a change to a record's training state.
// Nil or empty fields leave the current value untouched.
type TrainingUpdate struct {
	CompletedModule string `json:"completedModule"`
	CurrentModule   string `json:"currentModule"`
	Progress        *int   `json:"progress"`
	Certificate     string `json:"certificate"`
}

// RecordTraining applies a training update. Progress is clamped to 0-100 and
// completed modules are kept unique.
func (s *Service) RecordTraining(ctx context.Context, id string, u TrainingUpdate) (Record, error) {
	return s.mutate(ctx, id, func(r *Record) error {
		t := &r.Training
		if m := strings.TrimSpace(u.CompletedModule); m != "" && !lo.Contains(t.CompletedModules, m) {
			t.CompletedModules = append(t.CompletedModules, m)
			if t.CurrentModule == m {
				t.CurrentModule = ""
			}
		}
		if m := strings.TrimSpace(u.CurrentModule); m != "" {
			t.CurrentModule = m
		}
		if u.Progress != nil {
			t.Progress = min(max(*u.Progress, 0), 100)
		}
		if c := strings.TrimSpace(u.Certificate); c != "" && !lo.Contains(t.Certificates, c) {
			t.Certificates = append(t.Certificates, c)
		}
		now := s.now()
		t.LastTrainingAt = &now
		return nil
	})
}

// AssignAgent sets the field agent and, when non-empty, the priority.
func (s *Service) AssignAgent(ctx context.Context, id, agent string, priority Priority) (Record, error) {
	if priority != "" && !priority.Valid() {
		return Record{}, ValidationErrorf("unknown priority %q", priority)
	}
	return s.mutate(ctx, id, func(r *Record) error {
		r.AssignedAgent = strings.TrimSpace(agent)
		if priority != "" {
			r.Priority = priority
		}
		return nil
	})
}

// ScheduleFollowUp sets the next follow-up time; nil clears it.
func (s *Service) ScheduleFollowUp(ctx context.Context, id string, at *time.Time) (Record, error) {
	return s.mutate(ctx, id, func(r *Record) error {
		r.NextFollowUp = cloneTime(at)
		return nil
	})
}

// ComputeProgress reports how far a record has moved through the pipeline.
func (s *Service) ComputeProgress(ctx context.Context, id string) (Progress, error) {
	r, err := s.load(ctx, id)
	if err != nil {
		return Progress{}, err
	}
	return s.progressOf(r), nil
}

func (s *Service) progressOf(r Record) Progress {
	done := func(st Stage) bool {
		return r.HasPassed(st) || (st == r.Stage && r.Status == StatusCompleted)
	}
	p := Progress{
		RecordID:        r.ID,
		CurrentStage:    r.Stage,
		OverallProgress: s.workflow.ProgressPercent(r.Stage),
		CompletedStages: []string{},
		PendingStages:   []string{},
		NextActions:     NextActions(r.Stage),
	}
	for _, st := range s.workflow.Names() {
		if done(st) {
			p.CompletedStages = append(p.CompletedStages, string(st))
		} else {
			p.PendingStages = append(p.PendingStages, string(st))
		}
	}
	return p
}

// ListRecords returns the records matching spec in insertion order.
// Results are cached per filter until the TTL expires or a write happens.
// Callers own the returned records; the cached snapshot is never shared.
func (s *Service) ListRecords(ctx context.Context, spec FilterSpec) ([]Record, error) {
	key := FilterCacheKey(spec)
	if v, ok := s.cache.Get(key); ok {
		return cloneRecords(v.([]Record)), nil
	}

	gen := s.cache.Generation()
	records, err := s.list(ctx, spec)
	if err != nil {
		return nil, err
	}
	result := Filter(records, spec)
	s.cache.SetIfGeneration(key, result, gen)
	return cloneRecords(result), nil
}

// Statistics aggregates the full record set, cached like ListRecords.
func (s *Service) Statistics(ctx context.Context) (Statistics, error) {
	if v, ok := s.cache.Get(StatisticsCacheKey); ok {
		return v.(Statistics).Clone(), nil
	}

	gen := s.cache.Generation()
	records, err := s.list(ctx, FilterSpec{})
	if err != nil {
		return Statistics{}, err
	}
	stats := ComputeStatistics(records, s.now())
	s.cache.SetIfGeneration(StatisticsCacheKey, stats, gen)
	return stats.Clone(), nil
}

// SendToRecord renders templateID with the record's standard variables
// (extra overrides them) and delivers it to the record's phone or email.
// A successful send is noted on the record.
func (s *Service) SendToRecord(ctx context.Context, id, templateID string, extra map[string]string) (RenderedMessage, error) {
	if s.dispatcher == nil {
		return RenderedMessage{}, errors.New("messaging is not configured")
	}
	r, err := s.load(ctx, id)
	if err != nil {
		return RenderedMessage{}, err
	}
	t, err := s.dispatcher.Templates().Get(templateID)
	if err != nil {
		return RenderedMessage{}, err
	}

	vars := RecordVariables(r)
	for k, v := range extra {
		vars[k] = v
	}
	msg, err := s.dispatcher.Send(ctx, templateID, vars, RecipientFor(t.Type, r.Subject))
	if err != nil {
		return msg, err
	}

	if _, err := s.AppendNote(ctx, id, fmt.Sprintf("Sent %s message %q", msg.Channel, templateID)); err != nil {
		slog.Warn("failed to note sent message", "record_id", id, "error", err)
	}
	return msg, nil
}

// mutate loads a record, applies fn, stamps UpdatedAt and saves it under the
// service lock. The cache is cleared only after the store accepts the write.
func (s *Service) mutate(ctx context.Context, id string, fn func(r *Record) error) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.load(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if err := fn(&r); err != nil {
		return Record{}, err
	}
	r.UpdatedAt = s.now()

	saved, err := s.save(ctx, r)
	if err != nil {
		return Record{}, err
	}
	s.cache.Clear()
	return saved, nil
}

func cloneRecords(in []Record) []Record {
	return lo.Map(in, func(r Record, _ int) Record { return r.Clone() })
}

// leaveStage marks the current stage passed and moves to target.
func (s *Service) leaveStage(r *Record, target Stage) {
	if !r.HasPassed(r.Stage) {
		r.PassedStages = append(r.PassedStages, r.Stage)
	}
	r.Stage = target
}

func (s *Service) appendNote(ctx context.Context, r *Record, text string) {
	r.Notes = append(r.Notes, Note{
		Text:      text,
		Author:    ActorFromContext(ctx),
		CreatedAt: s.now(),
	})
}

func (s *Service) load(ctx context.Context, id string) (Record, error) {
	if strings.TrimSpace(id) == "" {
		return Record{}, ValidationErrorf("record id is required")
	}
	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	r, err := s.store.GetByID(storeCtx, id)
	if err != nil {
		return Record{}, errors.Wrapf(err, "get record %s", id)
	}
	if r == nil {
		return Record{}, NotFoundErrorf("record %s not found", id)
	}
	return *r, nil
}

func (s *Service) list(ctx context.Context, spec FilterSpec) ([]Record, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	records, err := s.store.List(storeCtx, spec)
	if err != nil {
		return nil, errors.Wrap(err, "list records")
	}
	return records, nil
}

func (s *Service) save(ctx context.Context, r Record) (Record, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	saved, err := s.store.Save(storeCtx, r)
	if err != nil {
		return Record{}, errors.Wrapf(err, "save record %s", r.ID)
	}
	return saved, nil
}

// validationFromStruct converts validator errors into a single ErrValidation.
func validationFromStruct(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return ValidationErrorf("%v", err)
	}
	fields := lo.Map(verrs, func(fe validator.FieldError, _ int) string {
		if fe.Tag() == "required" {
			return fe.Namespace() + " is required"
		}
		return fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag())
	})
	return ValidationErrorf("%s", strings.Join(fields, "; "))
}

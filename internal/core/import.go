package core

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/JonMunkholm/agrionboard/internal/logging"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// DefaultImportChunkSize is how many rows are applied per lock hold.
	DefaultImportChunkSize = 100
	// DefaultMaxImportSize is the largest accepted import payload (10MB).
	DefaultMaxImportSize int64 = 10 * 1024 * 1024
	// ImportNote is appended to every record created by bulk import.
	ImportNote = "Imported via bulk upload"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// importRow is a parsed, validated row waiting to be applied.
type importRow struct {
	line      int
	raw       string
	id        string
	subject   Subject
	status    Status
	stage     Stage
	priority  Priority
	createdAt *time.Time
	estimated *time.Time
	followUp  *time.Time
}

// ImportRecords parses a CSV payload and creates or updates records.
//
// Row numbers in diagnostics are physical line numbers with the header on
// row 1. A row whose ID matches an existing record updates its subject and
// priority; a row whose email matches another record is skipped. Rows are
// applied in chunks so reads can interleave with a long import. With
// opts.DryRun nothing is written and the result describes what would happen.
// Imports that write must name an assigned partner.
func (s *Service) ImportRecords(ctx context.Context, payload []byte, opts ImportOptions) (*ImportResult, error) {
	start := s.now()
	result := &ImportResult{
		ImportID: uuid.New().String(),
		DryRun:   opts.DryRun,
		Errors:   []RowIssue{},
		Warnings: []RowIssue{},
	}
	logger := logging.WithFields(ctx, "import_id", result.ImportID)

	opts.AssignedPartner = strings.TrimSpace(opts.AssignedPartner)
	if opts.AssignedPartner == "" && !opts.DryRun {
		return nil, withHint(ValidationErrorf("assigned partner is required"), "Name the partner that owns the imported records")
	}
	if int64(len(payload)) > s.cfg.MaxImportSize {
		return nil, withHint(
			ValidationErrorf("file exceeds maximum size of %d bytes", s.cfg.MaxImportSize),
			"Split the file into smaller batches",
		)
	}
	payload = sanitizeUTF8(bytes.TrimPrefix(payload, utf8BOM))
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, withHint(ValidationErrorf("import file is empty"), "Upload a CSV file with a header row")
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	rows, err := s.parseImport(payload, result)
	if err != nil {
		return nil, err
	}

	batch := newImportIndex(0)
	for startIdx := 0; startIdx < len(rows); startIdx += s.cfg.ImportChunkSize {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "import cancelled")
		}
		end := min(startIdx+s.cfg.ImportChunkSize, len(rows))
		if err := s.applyChunk(ctx, rows[startIdx:end], opts, batch, result); err != nil {
			return nil, err
		}
	}

	result.Successful = result.Summary.NewFarmers + result.Summary.UpdatedFarmers + result.Summary.SkippedFarmers
	result.Total = result.Successful + result.Failed
	result.Duration = s.now().Sub(start)

	logger.Info("import finished",
		"dry_run", opts.DryRun,
		"total", result.Total,
		"new", result.Summary.NewFarmers,
		"updated", result.Summary.UpdatedFarmers,
		"skipped", result.Summary.SkippedFarmers,
		"failed", result.Failed,
		"duration", result.Duration,
	)
	return result, nil
}

// parseImport reads and validates every data row. Rows that fail are
// recorded on result; the rest are returned for applying.
func (s *Service) parseImport(payload []byte, result *ImportResult) ([]importRow, error) {
	r := csv.NewReader(bytes.NewReader(payload))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		return nil, withHint(ValidationErrorf("read header row: %v", err), "The first line must be the column header")
	}
	headerIdx, err := ValidateHeaders(header, RecordColumns)
	if err != nil {
		return nil, err
	}
	v := NewRowValidator(RecordColumns, headerIdx)

	var rows []importRow
	for {
		fields, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				return nil, errors.Wrap(err, "read csv")
			}
			s.failRow(result, RowIssue{Row: pe.StartLine, Field: "general", Message: "Malformed CSV row: " + pe.Err.Error()})
			continue
		}
		if isEmptyRow(fields) {
			continue
		}
		line, _ := r.FieldPos(0)
		raw := strings.Join(fields, ",")

		if len(fields) < len(header) {
			s.failRow(result, RowIssue{Row: line, Field: "general", Message: "Insufficient data columns", Value: raw})
			continue
		}

		row, issues, ok := s.buildImportRow(v, fields, line)
		for _, w := range issues {
			if w.Strict {
				continue
			}
			result.Warnings = append(result.Warnings, RowIssue{Row: line, Field: w.Field, Message: w.Message + "; value ignored", Value: w.Value})
		}
		if !ok {
			var first ValidationError
			for _, is := range issues {
				if is.Strict {
					first = is
					break
				}
			}
			s.failRow(result, RowIssue{Row: line, Field: first.Field, Message: first.Message, Value: first.Value})
			continue
		}
		row.raw = raw
		rows = append(rows, row)
	}
	return rows, nil
}

// buildImportRow converts validated cells into an importRow. ok is false when
// any strict check failed.
func (s *Service) buildImportRow(v *RowValidator, fields []string, line int) (importRow, []ValidationError, bool) {
	issues := v.ValidateRow(fields)
	bad := map[string]bool{}
	ok := true
	for _, is := range issues {
		bad[is.Field] = true
		if is.Strict {
			ok = false
		}
	}
	cell := func(name string) string {
		if bad[name] {
			return ""
		}
		return v.Cell(fields, name)
	}
	dec := func(name string) decimal.Decimal {
		d, _ := ParseDecimal(cell(name))
		return d
	}
	num := func(name string) int {
		n, _ := ParseInt(cell(name))
		return n
	}
	date := func(name string) *time.Time {
		if t, ok := ParseDate(cell(name)); ok {
			return &t
		}
		return nil
	}

	row := importRow{
		line: line,
		id:   cell(ColID),
		subject: Subject{
			Name:              cell(ColName),
			Email:             cell(ColEmail),
			Phone:             cell(ColPhone),
			Location:          cell(ColLocation),
			State:             cell(ColState),
			LGA:               cell(ColLGA),
			Village:           cell(ColVillage),
			FarmSize:          dec(ColFarmSize),
			FarmSizeUnit:      cell(ColFarmSizeUnit),
			PrimaryCrops:      SplitList(cell(ColPrimaryCrops)),
			FarmingExperience: num(ColFarmingExperience),
			EducationLevel:    cell(ColEducationLevel),
			HouseholdSize:     num(ColHouseholdSize),
			AnnualIncome:      dec(ColAnnualIncome),
			IncomeSource:      cell(ColIncomeSource),
		},
		status:    Status(NormalizeToken(cell(ColStatus))),
		stage:     Stage(NormalizeToken(cell(ColStage))),
		priority:  Priority(NormalizeToken(cell(ColPriority))),
		createdAt: date(ColCreatedDate),
		estimated: date(ColEstimatedDate),
		followUp:  date(ColNextFollowUp),
	}
	if row.status == "" {
		row.status = StatusPending
	}
	if row.stage == "" {
		row.stage = s.workflow.First()
	}
	if row.priority == "" {
		row.priority = PriorityMedium
	}
	if ok && !s.workflow.Has(row.stage) {
		issues = append(issues, ValidationError{Field: ColStage, Value: string(row.stage), Message: "unknown stage", Strict: true})
		ok = false
	}
	if ok && row.status == StatusCompleted && row.stage != s.workflow.Last() {
		issues = append(issues, ValidationError{
			Field:   ColStatus,
			Value:   string(row.status),
			Message: fmt.Sprintf("status completed requires stage %s", s.workflow.Last()),
			Strict:  true,
		})
		ok = false
	}
	return row, issues, ok
}

// importIndex maps record ids and lowercased emails to record ids.
type importIndex struct {
	ids    map[string]bool
	emails map[string]string
}

func newImportIndex(size int) *importIndex {
	return &importIndex{ids: make(map[string]bool, size), emails: make(map[string]string, size)}
}

func (idx *importIndex) add(id, email string) {
	idx.ids[id] = true
	if e := strings.ToLower(strings.TrimSpace(email)); e != "" {
		idx.emails[e] = id
	}
}

// importIndex snapshots the store. Callers hold s.mu so the snapshot stays
// current while the chunk is applied.
func (s *Service) importIndex(ctx context.Context) (*importIndex, error) {
	records, err := s.list(ctx, FilterSpec{})
	if err != nil {
		return nil, err
	}
	idx := newImportIndex(len(records))
	for _, r := range records {
		idx.add(r.ID, r.Subject.Email)
	}
	return idx, nil
}

// applyChunk writes one chunk of rows under the service lock. The store
// index is rebuilt under the lock for every chunk, so records written by
// other imports or by the engine since the last chunk are updated or
// skipped instead of overwritten. batch carries the ids and emails this
// import has claimed, which a dry run never writes to the store.
func (s *Service) applyChunk(ctx context.Context, rows []importRow, opts ImportOptions, batch *importIndex, result *ImportResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	known, err := s.importIndex(ctx)
	if err != nil {
		return err
	}
	for id := range batch.ids {
		known.ids[id] = true
	}
	for e, id := range batch.emails {
		if _, ok := known.emails[e]; !ok {
			known.emails[e] = id
		}
	}

	wrote := false
	defer func() {
		if wrote {
			s.cache.Clear()
		}
	}()

	for _, row := range rows {
		email := strings.ToLower(row.subject.Email)

		if row.id != "" && known.ids[row.id] {
			if s.applyUpdate(ctx, row, opts, result) {
				wrote = wrote || !opts.DryRun
				result.Summary.UpdatedFarmers++
				known.add(row.id, email)
				batch.add(row.id, email)
			}
			continue
		}

		if email != "" {
			if owner, dup := known.emails[email]; dup {
				result.Warnings = append(result.Warnings, RowIssue{
					Row:     row.line,
					Field:   ColEmail,
					Message: fmt.Sprintf("Duplicate email, matches record %s; row skipped", owner),
					Value:   row.subject.Email,
				})
				result.Summary.SkippedFarmers++
				continue
			}
		}

		id, ok := s.applyCreate(ctx, row, opts, result)
		if !ok {
			continue
		}
		wrote = wrote || !opts.DryRun
		known.add(id, email)
		batch.add(id, email)
		result.Summary.NewFarmers++
	}
	return nil
}

func (s *Service) applyCreate(ctx context.Context, row importRow, opts ImportOptions, result *ImportResult) (string, bool) {
	now := s.now()
	id := row.id
	if id == "" {
		id = uuid.New().String()
	}
	created := now
	if row.createdAt != nil {
		created = *row.createdAt
	}
	eta := row.estimated
	if eta == nil {
		t := s.workflow.EstimatedCompletion(row.stage, now)
		eta = &t
	}

	passed := []Stage{}
	for _, st := range s.workflow.Names() {
		if st == row.stage {
			break
		}
		passed = append(passed, st)
	}

	r := Record{
		ID:                      id,
		Subject:                 row.subject,
		Documents:               map[DocumentKind]string{},
		Training:                Training{CompletedModules: []string{}, Certificates: []string{}},
		Status:                  row.status,
		Stage:                   row.stage,
		PassedStages:            passed,
		AssignedPartner:         opts.AssignedPartner,
		Priority:                row.priority,
		Notes:                   []Note{{Text: ImportNote, Author: ActorFromContext(ctx), CreatedAt: now}},
		CreatedAt:               created,
		UpdatedAt:               now,
		EstimatedCompletionDate: eta,
		NextFollowUp:            row.followUp,
	}
	if r.Status == StatusCompleted {
		r.CompletedAt = &now
	}

	if opts.DryRun {
		return id, true
	}
	if _, err := s.save(ctx, r); err != nil {
		s.failRow(result, RowIssue{Row: row.line, Field: "general", Message: "Error processing row: " + err.Error(), Value: row.raw})
		return "", false
	}
	return id, true
}

func (s *Service) applyUpdate(ctx context.Context, row importRow, opts ImportOptions, result *ImportResult) bool {
	existing, err := s.load(ctx, row.id)
	if err != nil {
		if opts.DryRun && IsNotFound(err) {
			// created earlier in the same dry run
			return true
		}
		s.failRow(result, RowIssue{Row: row.line, Field: ColID, Message: "Error processing row: " + err.Error(), Value: row.id})
		return false
	}

	if row.stage != existing.Stage {
		result.Warnings = append(result.Warnings, RowIssue{
			Row: row.line, Field: ColStage, Value: string(row.stage),
			Message: fmt.Sprintf("Stage differs from record (%s); use a stage transition to change it", existing.Stage),
		})
	}
	if row.status != existing.Status {
		result.Warnings = append(result.Warnings, RowIssue{
			Row: row.line, Field: ColStatus, Value: string(row.status),
			Message: fmt.Sprintf("Status differs from record (%s); use a status update to change it", existing.Status),
		})
	}
	if opts.DryRun {
		return true
	}

	existing.Subject = row.subject
	existing.Priority = row.priority
	if row.followUp != nil {
		existing.NextFollowUp = row.followUp
	}
	existing.UpdatedAt = s.now()
	existing.Notes = append(existing.Notes, Note{Text: "Updated via bulk upload", Author: ActorFromContext(ctx), CreatedAt: existing.UpdatedAt})

	if _, err := s.save(ctx, existing); err != nil {
		s.failRow(result, RowIssue{Row: row.line, Field: "general", Message: "Error processing row: " + err.Error(), Value: row.raw})
		return false
	}
	return true
}

func (s *Service) failRow(result *ImportResult, issue RowIssue) {
	result.Failed++
	result.Errors = append(result.Errors, issue)
}

// sanitizeUTF8 replaces invalid byte sequences with U+FFFD.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('�')
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}

	return buf.Bytes()
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

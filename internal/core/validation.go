package core

// validation.go checks bulk import rows before they become records.
//
// Validation happens at two levels:
//  1. Header validation: required columns must be present
//  2. Cell validation: each cell is checked against its FieldSpec
//
// Strict fields reject the whole row when invalid. Lenient fields only
// produce a warning and the value is dropped.

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var cellValidator = validator.New()

// FieldType is the expected shape of a column.
type FieldType int

const (
	FieldText FieldType = iota
	FieldEnum
	FieldDate
	FieldNumeric
	FieldInt
	FieldEmail
	FieldList
)

// FieldSpec describes one import/export column.
type FieldSpec struct {
	Name       string
	Type       FieldType
	Required   bool
	Strict     bool
	EnumValues []string
}

// Column names of the import/export format, in file order.
const (
	ColID                = "ID"
	ColName              = "Farmer Name"
	ColEmail             = "Email"
	ColPhone             = "Phone"
	ColLocation          = "Location"
	ColState             = "State"
	ColLGA               = "LGA"
	ColVillage           = "Village"
	ColFarmSize          = "Farm Size"
	ColFarmSizeUnit      = "Farm Size Unit"
	ColPrimaryCrops      = "Primary Crops"
	ColFarmingExperience = "Farming Experience"
	ColEducationLevel    = "Education Level"
	ColHouseholdSize     = "Household Size"
	ColAnnualIncome      = "Annual Income"
	ColIncomeSource      = "Income Source"
	ColStatus            = "Status"
	ColStage             = "Stage"
	ColPriority          = "Priority"
	ColCreatedDate       = "Created Date"
	ColEstimatedDate     = "Estimated Completion"
	ColNextFollowUp      = "Next Follow Up"
)

// RecordColumns is the fixed column layout shared by import and export.
var RecordColumns = []FieldSpec{
	{Name: ColID, Type: FieldText},
	{Name: ColName, Type: FieldText, Required: true, Strict: true},
	{Name: ColEmail, Type: FieldEmail},
	{Name: ColPhone, Type: FieldText},
	{Name: ColLocation, Type: FieldText},
	{Name: ColState, Type: FieldText},
	{Name: ColLGA, Type: FieldText},
	{Name: ColVillage, Type: FieldText},
	{Name: ColFarmSize, Type: FieldNumeric},
	{Name: ColFarmSizeUnit, Type: FieldText},
	{Name: ColPrimaryCrops, Type: FieldList},
	{Name: ColFarmingExperience, Type: FieldInt},
	{Name: ColEducationLevel, Type: FieldText},
	{Name: ColHouseholdSize, Type: FieldInt},
	{Name: ColAnnualIncome, Type: FieldNumeric},
	{Name: ColIncomeSource, Type: FieldText},
	{Name: ColStatus, Type: FieldEnum, Strict: true, EnumValues: []string{"pending", "in_progress", "completed", "rejected", "on_hold"}},
	{Name: ColStage, Type: FieldEnum, Strict: true, EnumValues: []string{"registration", "documentation", "training", "verification", "activation"}},
	{Name: ColPriority, Type: FieldEnum, EnumValues: []string{"low", "medium", "high"}},
	{Name: ColCreatedDate, Type: FieldDate},
	{Name: ColEstimatedDate, Type: FieldDate},
	{Name: ColNextFollowUp, Type: FieldDate},
}

// ColumnNames returns the header row for RecordColumns.
func ColumnNames() []string {
	names := make([]string, len(RecordColumns))
	for i, c := range RecordColumns {
		names[i] = c.Name
	}
	return names
}

// ValidationError is a single problem with one cell.
type ValidationError struct {
	Field   string
	Value   string
	Message string
	Strict  bool
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// RowValidator validates rows against a column layout and a header index.
type RowValidator struct {
	specs     []FieldSpec
	headerIdx HeaderIndex
}

// NewRowValidator creates a validator for the given columns and header index.
func NewRowValidator(specs []FieldSpec, headerIdx HeaderIndex) *RowValidator {
	return &RowValidator{specs: specs, headerIdx: headerIdx}
}

// Cell returns the cleaned value of column name, or "" when absent.
func (v *RowValidator) Cell(row []string, name string) string {
	pos, ok := v.headerIdx[strings.ToLower(name)]
	if !ok || pos >= len(row) {
		return ""
	}
	return CleanCell(row[pos])
}

// ValidateRow checks every column and returns all problems found.
func (v *RowValidator) ValidateRow(row []string) []ValidationError {
	var errs []ValidationError
	for _, spec := range v.specs {
		raw := v.Cell(row, spec.Name)
		if raw == "" {
			if spec.Required {
				errs = append(errs, ValidationError{Field: spec.Name, Message: spec.Name + " is required", Strict: true})
			}
			continue
		}
		if err := ValidateCell(raw, spec); err != nil {
			errs = append(errs, ValidationError{
				Field:   spec.Name,
				Value:   raw,
				Message: err.Error(),
				Strict:  spec.Strict,
			})
		}
	}
	return errs
}

// ValidateCell validates a single non-empty cell against spec.
func ValidateCell(value string, spec FieldSpec) error {
	if value == "" {
		return nil
	}

	switch spec.Type {
	case FieldNumeric:
		if _, ok := ParseDecimal(value); !ok {
			return fmt.Errorf("invalid number format")
		}
	case FieldInt:
		if _, ok := ParseInt(value); !ok {
			return fmt.Errorf("invalid whole number")
		}
	case FieldDate:
		if _, ok := ParseDate(value); !ok {
			return fmt.Errorf("invalid date format (use YYYY-MM-DD)")
		}
	case FieldEmail:
		if cellValidator.Var(value, "email") != nil {
			return fmt.Errorf("invalid email address")
		}
	case FieldEnum:
		token := NormalizeToken(value)
		for _, ev := range spec.EnumValues {
			if ev == token {
				return nil
			}
		}
		return fmt.Errorf("value must be one of: %s", strings.Join(spec.EnumValues, ", "))
	}
	return nil
}

// ValidateHeaders checks that every required column exists in headers and
// returns the header index.
func ValidateHeaders(headers []string, specs []FieldSpec) (HeaderIndex, error) {
	idx := MakeHeaderIndex(headers)
	var missing []string
	for _, spec := range specs {
		if _, ok := idx[strings.ToLower(spec.Name)]; spec.Required && !ok {
			missing = append(missing, spec.Name)
		}
	}
	if len(missing) > 0 {
		return nil, withHint(
			ValidationErrorf("missing required columns: %s", strings.Join(missing, ", ")),
			"Download the export file for the expected column layout",
		)
	}
	return idx, nil
}

package core

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

// ExportRecords writes the records matching spec as CSV to w, using the same
// column layout ImportRecords reads. It returns the number of data rows.
//
// Dates are written as ISO-8601 calendar dates, so times of day do not
// survive a round trip.
func (s *Service) ExportRecords(ctx context.Context, w io.Writer, spec FilterSpec) (int, error) {
	records, err := s.ListRecords(ctx, spec)
	if err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(ColumnNames()); err != nil {
		return 0, errors.Wrap(err, "write header")
	}
	for _, r := range records {
		if err := cw.Write(RecordRow(r)); err != nil {
			return 0, errors.Wrapf(err, "write record %s", r.ID)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, errors.Wrap(err, "flush csv")
	}
	return len(records), nil
}

// RecordRow renders r in RecordColumns order.
func RecordRow(r Record) []string {
	sub := r.Subject
	return []string{
		r.ID,
		sub.Name,
		sub.Email,
		sub.Phone,
		sub.Location,
		sub.State,
		sub.LGA,
		sub.Village,
		formatDecimal(sub.FarmSize),
		sub.FarmSizeUnit,
		strings.Join(sub.PrimaryCrops, ListSeparator),
		formatInt(sub.FarmingExperience),
		sub.EducationLevel,
		formatInt(sub.HouseholdSize),
		formatDecimal(sub.AnnualIncome),
		sub.IncomeSource,
		string(r.Status),
		string(r.Stage),
		string(r.Priority),
		FormatDate(&r.CreatedAt),
		FormatDate(r.EstimatedCompletionDate),
		FormatDate(r.NextFollowUp),
	}
}

func formatDecimal(d decimal.Decimal) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}

func formatInt(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

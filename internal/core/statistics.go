package core

import (
	"math"
	"strings"
	"time"

	"github.com/samber/lo"
)

// Rolling windows used by ComputeStatistics.
const (
	weekWindow  = 7 * 24 * time.Hour
	monthWindow = 30 * 24 * time.Hour
)

// UnknownRegion labels records without a state.
const UnknownRegion = "Unknown"

// ComputeStatistics aggregates records as of now.
//
// ThisWeek and ThisMonth count records created in the trailing 7 and 30
// days. AverageCompletionTime is the mean number of days from creation to
// completion over completed records. SuccessRate is the completed share of
// all records as a percentage.
func ComputeStatistics(records []Record, now time.Time) Statistics {
	st := Statistics{
		Total:                len(records),
		RegionalDistribution: map[string]int{},
		CropDistribution:     map[string]int{},
	}

	var completionDays []float64
	for _, r := range records {
		switch r.Status {
		case StatusPending:
			st.Pending++
		case StatusInProgress:
			st.InProgress++
		case StatusCompleted:
			st.Completed++
			if r.CompletedAt != nil && !r.CompletedAt.Before(r.CreatedAt) {
				completionDays = append(completionDays, r.CompletedAt.Sub(r.CreatedAt).Hours()/24)
			}
		case StatusRejected:
			st.Rejected++
		case StatusOnHold:
			st.OnHold++
		}

		age := now.Sub(r.CreatedAt)
		if age <= weekWindow {
			st.ThisWeek++
		}
		if age <= monthWindow {
			st.ThisMonth++
		}

		region := strings.TrimSpace(r.Subject.State)
		if region == "" {
			region = UnknownRegion
		}
		st.RegionalDistribution[region]++

		for _, crop := range lo.Uniq(r.Subject.PrimaryCrops) {
			if crop = strings.TrimSpace(crop); crop != "" {
				st.CropDistribution[crop]++
			}
		}
	}

	if len(completionDays) > 0 {
		st.AverageCompletionTime = round1(lo.Sum(completionDays) / float64(len(completionDays)))
	}
	if st.Total > 0 {
		st.SuccessRate = round1(float64(st.Completed) / float64(st.Total) * 100)
	}
	return st
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Clone returns a copy whose distribution maps are not shared with s.
func (s Statistics) Clone() Statistics {
	out := s
	out.RegionalDistribution = cloneCounts(s.RegionalDistribution)
	out.CropDistribution = cloneCounts(s.CropDistribution)
	return out
}

func cloneCounts(in map[string]int) map[string]int {
	if in == nil {
		return nil
	}
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

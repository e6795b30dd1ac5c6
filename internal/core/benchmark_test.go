package core

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"testing"
	"time"
)

// ============================================================================
// Cell Conversion Benchmarks
// ============================================================================

func BenchmarkParseDecimal(b *testing.B) {
	inputs := []string{"2.5", "2.5 hectares", "₦1,250,000", "$1,234.56", "-42", ""}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, in := range inputs {
			ParseDecimal(in)
		}
	}
}

func BenchmarkParseDate_ISO(b *testing.B) {
	for i := 0; i < b.N; i++ {
		ParseDate("2025-03-10")
	}
}

func BenchmarkParseDate_US(b *testing.B) {
	for i := 0; i < b.N; i++ {
		ParseDate("03/10/2025")
	}
}

func BenchmarkParseDate_TwoDigitYear(b *testing.B) {
	for i := 0; i < b.N; i++ {
		ParseDate("3/10/25")
	}
}

func BenchmarkCleanCell(b *testing.B) {
	inputs := []string{"Ama Owusu", `="00123"`, `"Plot 4"`, "  padded  "}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, in := range inputs {
			CleanCell(in)
		}
	}
}

func BenchmarkSplitList(b *testing.B) {
	for i := 0; i < b.N; i++ {
		SplitList("Maize; Rice, Cassava;;Sorghum")
	}
}

// ============================================================================
// Validation Benchmarks
// ============================================================================

func BenchmarkValidateHeaders(b *testing.B) {
	header := ColumnNames()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ValidateHeaders(header, RecordColumns); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkRowValidator(b *testing.B) {
	idx := MakeHeaderIndex(ColumnNames())
	v := NewRowValidator(RecordColumns, idx)
	row := RecordRow(benchRecord(0))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		v.ValidateRow(row)
	}
}

// ============================================================================
// Engine Benchmarks
// ============================================================================

func BenchmarkFilter(b *testing.B) {
	records := benchRecords(5000)
	spec := FilterSpec{Status: "in_progress", Region: "Kaduna", Search: "maize"}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Filter(records, spec)
	}
}

func BenchmarkComputeStatistics(b *testing.B) {
	records := benchRecords(5000)
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ComputeStatistics(records, now)
	}
}

func BenchmarkImportRecords_DryRun(b *testing.B) {
	for _, rows := range []int{100, 1000} {
		payload := generateFarmerCSV(rows)
		b.Run(fmt.Sprintf("rows=%d", rows), func(b *testing.B) {
			svc, err := NewService(NewMemoryStore(), nil, Config{})
			if err != nil {
				b.Fatal(err)
			}
			b.SetBytes(int64(len(payload)))
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := svc.ImportRecords(context.Background(), payload, ImportOptions{AssignedPartner: "bench", DryRun: true}); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkListRecords_Cached(b *testing.B) {
	store := NewMemoryStore(benchRecords(2000)...)
	svc, err := NewService(store, nil, Config{})
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()
	spec := FilterSpec{Stage: "training"}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := svc.ListRecords(ctx, spec); err != nil {
			b.Fatal(err)
		}
	}
}

// ============================================================================
// Parallel Benchmarks
// ============================================================================

func BenchmarkParseDecimalParallel(b *testing.B) {
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			ParseDecimal("₦1,250,000")
		}
	})
}

func BenchmarkFilterParallel(b *testing.B) {
	records := benchRecords(2000)
	spec := FilterSpec{Search: "rice"}
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			Filter(records, spec)
		}
	})
}

// ============================================================================
// Helper Functions
// ============================================================================

var benchStates = []string{"Kaduna", "Kano", "Oyo", "Benue", ""}

func benchRecord(i int) Record {
	wf := DefaultWorkflow()
	stage := wf.Stages[i%len(wf.Stages)].Name
	status := AllStatuses[i%len(AllStatuses)]
	if status == StatusCompleted && stage != wf.Last() {
		status = StatusInProgress
	}
	created := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Hour)
	return Record{
		ID: fmt.Sprintf("rec-%05d", i),
		Subject: Subject{
			Name:         fmt.Sprintf("Farmer %d", i),
			Email:        fmt.Sprintf("farmer%d@example.com", i),
			Phone:        fmt.Sprintf("+23480%08d", i),
			State:        benchStates[i%len(benchStates)],
			PrimaryCrops: []string{"Maize", "Rice"}[:1+i%2],
		},
		Documents:    map[DocumentKind]string{},
		Status:       status,
		Stage:        stage,
		PassedStages: []Stage{},
		Priority:     PriorityMedium,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
}

func benchRecords(n int) []Record {
	out := make([]Record, n)
	for i := range out {
		out[i] = benchRecord(i)
	}
	return out
}

// generateFarmerCSV renders n distinct records in export layout.
func generateFarmerCSV(n int) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(ColumnNames())
	for i := 0; i < n; i++ {
		r := benchRecord(i)
		r.ID = ""
		_ = w.Write(RecordRow(r))
	}
	w.Flush()
	return buf.Bytes()
}

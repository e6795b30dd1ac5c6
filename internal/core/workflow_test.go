package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultWorkflow(t *testing.T) {
	wf := DefaultWorkflow()

	assert.Equal(t, []Stage{StageRegistration, StageDocumentation, StageTraining, StageVerification, StageActivation}, wf.Names())
	assert.Equal(t, StageRegistration, wf.First())
	assert.Equal(t, StageActivation, wf.Last())
	assert.Equal(t, -1, wf.Index("harvest"))

	d, ok := wf.Descriptor(StageTraining)
	require.True(t, ok)
	assert.Equal(t, []Stage{StageDocumentation}, d.Dependencies)
}

func TestProgressPercent(t *testing.T) {
	wf := DefaultWorkflow()
	tests := []struct {
		stage Stage
		want  int
	}{
		{StageRegistration, 20},
		{StageDocumentation, 40},
		{StageTraining, 60},
		{StageVerification, 80},
		{StageActivation, 100},
		{"unknown", 0},
	}
	for _, tt := range tests {
		t.Run(string(tt.stage), func(t *testing.T) {
			assert.Equal(t, tt.want, wf.ProgressPercent(tt.stage))
		})
	}
}

func TestProgressPercent_Rounds(t *testing.T) {
	wf, err := NewWorkflowDefinition([]StageDescriptor{
		{Name: "a", Order: 1}, {Name: "b", Order: 2}, {Name: "c", Order: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, 33, wf.ProgressPercent("a"))
	assert.Equal(t, 67, wf.ProgressPercent("b"))
}

func TestCheckAdvance(t *testing.T) {
	wf := DefaultWorkflow()
	at := func(stage Stage, passed ...Stage) Record {
		return Record{ID: "r1", Stage: stage, PassedStages: passed}
	}

	tests := []struct {
		name    string
		record  Record
		target  Stage
		wantErr func(error) bool
	}{
		{"next stage", at(StageRegistration), StageDocumentation, nil},
		{"skip required stage", at(StageDocumentation, StageRegistration), StageVerification, IsIllegalTransition},
		{"jump to end", at(StageDocumentation, StageRegistration), StageActivation, IsIllegalTransition},
		{"backwards", at(StageTraining, StageRegistration, StageDocumentation), StageDocumentation, IsIllegalTransition},
		{"same stage", at(StageTraining), StageTraining, IsIllegalTransition},
		{"unknown target", at(StageTraining), "harvest", IsValidation},
		{"unknown current", at("harvest"), StageTraining, IsIllegalTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := wf.CheckAdvance(tt.record, tt.target)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, tt.wantErr(err), "got %v", err)
		})
	}
}

func TestCheckAdvance_OptionalStage(t *testing.T) {
	wf, err := NewWorkflowDefinition([]StageDescriptor{
		{Name: "intake", Order: 1, Required: true},
		{Name: "survey", Order: 2, Required: false, Dependencies: []Stage{"intake"}},
		{Name: "approval", Order: 3, Required: true, Dependencies: []Stage{"intake"}},
	})
	require.NoError(t, err)

	assert.NoError(t, wf.CheckAdvance(Record{Stage: "intake"}, "approval"))
}

func TestNewWorkflowDefinition_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		stages []StageDescriptor
	}{
		{"empty", nil},
		{"duplicate", []StageDescriptor{{Name: "a", Order: 1}, {Name: "a", Order: 2}}},
		{"forward dependency", []StageDescriptor{{Name: "a", Order: 1, Dependencies: []Stage{"b"}}, {Name: "b", Order: 2}}},
		{"unnamed", []StageDescriptor{{Order: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWorkflowDefinition(tt.stages)
			assert.True(t, IsValidation(err), "got %v", err)
		})
	}
}

func TestNewWorkflowDefinition_SortsByOrder(t *testing.T) {
	wf, err := NewWorkflowDefinition([]StageDescriptor{
		{Name: "second", Order: 2, Dependencies: []Stage{"first"}},
		{Name: "first", Order: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, []Stage{"first", "second"}, wf.Names())
}

func TestEstimatedCompletion(t *testing.T) {
	wf := DefaultWorkflow()
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, from.AddDate(0, 0, 15), wf.EstimatedCompletion(StageRegistration, from))
	assert.Equal(t, from.AddDate(0, 0, 4), wf.EstimatedCompletion(StageVerification, from))
	assert.Equal(t, from, wf.EstimatedCompletion("unknown", from))
}

func TestNextActions_ReturnsCopy(t *testing.T) {
	a := NextActions(StageTraining)
	require.NotEmpty(t, a)
	a[0] = "changed"
	assert.NotEqual(t, "changed", NextActions(StageTraining)[0])
	assert.Empty(t, NextActions("unknown"))
}

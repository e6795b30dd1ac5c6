package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRecord(t *testing.T) {
	env := newTestEnv(t)
	r := env.create(t, "Ama")

	assert.NotEmpty(t, r.ID)
	assert.Equal(t, StageRegistration, r.Stage)
	assert.Equal(t, StatusPending, r.Status)
	assert.Equal(t, PriorityMedium, r.Priority)
	assert.Empty(t, r.PassedStages)
	assert.Equal(t, testNow, r.CreatedAt)
	require.NotNil(t, r.EstimatedCompletionDate)
	assert.Equal(t, testNow.AddDate(0, 0, 15), *r.EstimatedCompletionDate)
	assert.Equal(t, 1, env.store.Len())
}

func TestCreateRecord_LeavesRequestUntouched(t *testing.T) {
	env := newTestEnv(t)
	subject := &Subject{Name: "  Ama  ", PrimaryCrops: []string{"Maize"}}

	r, err := env.svc.CreateRecord(context.Background(), CreateRecordRequest{Subject: subject, AssignedPartner: "p1"})
	require.NoError(t, err)
	assert.Equal(t, "Ama", r.Subject.Name)
	assert.Equal(t, "  Ama  ", subject.Name)

	subject.PrimaryCrops[0] = "Rice"
	got, err := env.svc.GetRecord(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Maize"}, got.Subject.PrimaryCrops)
}

func TestCreateRecord_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  CreateRecordRequest
	}{
		{"missing subject", CreateRecordRequest{AssignedPartner: "p1"}},
		{"missing partner", CreateRecordRequest{Subject: &Subject{Name: "Ama"}}},
		{"blank name", CreateRecordRequest{Subject: &Subject{Name: "  "}, AssignedPartner: "p1"}},
		{"bad email", CreateRecordRequest{Subject: &Subject{Name: "Ama", Email: "not-an-email"}, AssignedPartner: "p1"}},
		{"bad priority", CreateRecordRequest{Subject: &Subject{Name: "Ama"}, AssignedPartner: "p1", Priority: "urgent"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.CreateRecord(ctx, tt.req)
			assert.True(t, IsValidation(err), "got %v", err)
		})
	}
	assert.Equal(t, 0, env.store.Len())
}

func TestOnboardingScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ama := env.create(t, "Ama")

	p, err := env.svc.ComputeProgress(ctx, ama.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, p.OverallProgress)

	ama, err = env.svc.AdvanceStage(ctx, ama.ID, StageDocumentation, "ID card received")
	require.NoError(t, err)
	assert.Equal(t, StageDocumentation, ama.Stage)
	assert.Equal(t, []Stage{StageRegistration}, ama.PassedStages)
	assert.Equal(t, StatusPending, ama.Status, "advancing never changes status")
	require.Len(t, ama.Notes, 1)
	assert.Equal(t, "ID card received", ama.Notes[0].Text)

	p, err = env.svc.ComputeProgress(ctx, ama.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, p.OverallProgress)
	assert.Equal(t, []string{"registration"}, p.CompletedStages)
	assert.Equal(t, []string{"documentation", "training", "verification", "activation"}, p.PendingStages)
	assert.NotEmpty(t, p.NextActions)

	_, err = env.svc.AdvanceStage(ctx, ama.ID, StageActivation, "")
	assert.True(t, IsIllegalTransition(err), "got %v", err)

	unchanged, err := env.svc.GetRecord(ctx, ama.ID)
	require.NoError(t, err)
	assert.Equal(t, StageDocumentation, unchanged.Stage)
	assert.Equal(t, ama.UpdatedAt, unchanged.UpdatedAt)
}

func TestAdvanceStage_Rules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	r := env.create(t, "Kofi")

	_, err := env.svc.AdvanceStage(ctx, r.ID, StageRegistration, "")
	assert.True(t, IsIllegalTransition(err), "same stage")

	_, err = env.svc.AdvanceStage(ctx, r.ID, "harvest", "")
	assert.True(t, IsValidation(err), "unknown stage")

	_, err = env.svc.AdvanceStage(ctx, "missing", StageDocumentation, "")
	assert.True(t, IsNotFound(err))

	for _, st := range []Stage{StageDocumentation, StageTraining, StageVerification, StageActivation} {
		r, err = env.svc.AdvanceStage(ctx, r.ID, st, "")
		require.NoError(t, err, st)
	}
	assert.Equal(t, []Stage{StageRegistration, StageDocumentation, StageTraining, StageVerification}, r.PassedStages)

	_, err = env.svc.AdvanceStage(ctx, r.ID, StageTraining, "")
	assert.True(t, IsIllegalTransition(err), "backwards needs an override")
	assert.NotEmpty(t, Hint(err))
}

func TestTrainingProgressIsSixty(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	r := env.create(t, "Esi")

	_, err := env.svc.AdvanceStage(ctx, r.ID, StageDocumentation, "")
	require.NoError(t, err)
	_, err = env.svc.AdvanceStage(ctx, r.ID, StageTraining, "")
	require.NoError(t, err)

	p, err := env.svc.ComputeProgress(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 60, p.OverallProgress)
}

func TestUpdateStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	r := env.create(t, "Yaw")

	_, err := env.svc.UpdateStatus(ctx, r.ID, StatusCompleted)
	assert.True(t, IsIllegalTransition(err), "completed before activation")

	_, err = env.svc.UpdateStatus(ctx, r.ID, "done")
	assert.True(t, IsValidation(err))

	r, err = env.svc.UpdateStatus(ctx, r.ID, StatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, r.Status)
	assert.Equal(t, StageRegistration, r.Stage, "status never moves the stage")

	for _, st := range []Stage{StageDocumentation, StageTraining, StageVerification, StageActivation} {
		_, err = env.svc.AdvanceStage(ctx, r.ID, st, "")
		require.NoError(t, err)
	}

	env.clock.Advance(time.Hour)
	r, err = env.svc.UpdateStatus(ctx, r.ID, StatusCompleted)
	require.NoError(t, err)
	require.NotNil(t, r.CompletedAt)
	assert.Equal(t, testNow.Add(time.Hour), *r.CompletedAt)

	p, err := env.svc.ComputeProgress(ctx, r.ID)
	require.NoError(t, err)
	assert.Empty(t, p.PendingStages)

	r, err = env.svc.UpdateStatus(ctx, r.ID, StatusOnHold)
	require.NoError(t, err)
	assert.Nil(t, r.CompletedAt)
}

func TestOverrideStage(t *testing.T) {
	env := newTestEnv(t)
	ctx := ContextWithActor(context.Background(), "admin@example.com")
	r := env.create(t, "Abena")

	_, err := env.svc.OverrideStage(ctx, r.ID, StageVerification, "")
	assert.True(t, IsValidation(err), "reason required")

	r, err = env.svc.OverrideStage(ctx, r.ID, StageVerification, "documents verified offline")
	require.NoError(t, err)
	assert.Equal(t, StageVerification, r.Stage)
	assert.Equal(t, []Stage{StageRegistration}, r.PassedStages, "skipped stages are not marked passed")
	p, err := env.svc.ComputeProgress(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"registration"}, p.CompletedStages)
	assert.Equal(t, []string{"documentation", "training", "verification", "activation"}, p.PendingStages)
	require.Len(t, r.Notes, 1)
	assert.Contains(t, r.Notes[0].Text, "admin@example.com")
	assert.Contains(t, r.Notes[0].Text, "documents verified offline")

	_, err = env.svc.AdvanceStage(ctx, r.ID, StageActivation, "")
	require.NoError(t, err)
	_, err = env.svc.UpdateStatus(ctx, r.ID, StatusCompleted)
	require.NoError(t, err)

	r, err = env.svc.OverrideStage(ctx, r.ID, StageDocumentation, "land document was forged")
	require.NoError(t, err)
	assert.Equal(t, StageDocumentation, r.Stage)
	assert.Equal(t, []Stage{StageRegistration}, r.PassedStages)
	assert.Equal(t, StatusInProgress, r.Status)
	assert.Nil(t, r.CompletedAt)

	_, err = env.svc.OverrideStage(ctx, r.ID, StageDocumentation, "again")
	assert.True(t, IsIllegalTransition(err))
}

func TestRecordMutations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	r := env.create(t, "Kwame")

	r, err := env.svc.AttachDocument(ctx, r.ID, DocumentIDCard, "s3://docs/id.png")
	require.NoError(t, err)
	assert.Equal(t, "s3://docs/id.png", r.Documents[DocumentIDCard])

	_, err = env.svc.AttachDocument(ctx, r.ID, "passport", "x")
	assert.True(t, IsValidation(err))

	progress := 140
	r, err = env.svc.RecordTraining(ctx, r.ID, TrainingUpdate{CompletedModule: "orientation", Progress: &progress, Certificate: "GAP-1"})
	require.NoError(t, err)
	r, err = env.svc.RecordTraining(ctx, r.ID, TrainingUpdate{CompletedModule: "orientation", CurrentModule: "soil"})
	require.NoError(t, err)
	assert.Equal(t, []string{"orientation"}, r.Training.CompletedModules)
	assert.Equal(t, "soil", r.Training.CurrentModule)
	assert.Equal(t, 100, r.Training.Progress)
	assert.Equal(t, []string{"GAP-1"}, r.Training.Certificates)

	r, err = env.svc.AssignAgent(ctx, r.ID, "agent-7", PriorityHigh)
	require.NoError(t, err)
	assert.Equal(t, "agent-7", r.AssignedAgent)
	assert.Equal(t, PriorityHigh, r.Priority)

	at := testNow.Add(48 * time.Hour)
	r, err = env.svc.ScheduleFollowUp(ctx, r.ID, &at)
	require.NoError(t, err)
	require.NotNil(t, r.NextFollowUp)
	assert.Equal(t, at, *r.NextFollowUp)

	_, err = env.svc.AppendNote(ctx, r.ID, "   ")
	assert.True(t, IsValidation(err))
	r, err = env.svc.AppendNote(ctx, r.ID, "called farmer")
	require.NoError(t, err)
	assert.Equal(t, "called farmer", r.Notes[len(r.Notes)-1].Text)
}

func TestListRecords_CacheAndInvalidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.create(t, "Ama")
	kofi := env.create(t, "Kofi")

	spec := FilterSpec{Search: "ama"}
	first, err := env.svc.ListRecords(ctx, spec)
	require.NoError(t, err)
	require.Len(t, first, 1)
	lists := env.store.Lists()

	second, err := env.svc.ListRecords(ctx, FilterSpec{Search: " ama ", Status: "all"})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, lists, env.store.Lists(), "identical filter is served from cache")

	_, err = env.svc.AdvanceStage(ctx, kofi.ID, StageDocumentation, "")
	require.NoError(t, err)
	assert.Equal(t, 0, env.svc.Cache().Len())

	all, err := env.svc.ListRecords(ctx, FilterSpec{Stage: "documentation"})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, kofi.ID, all[0].ID)
}

func TestListRecords_ReturnsCopies(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ama := env.create(t, "Ama")
	_, err := env.svc.AttachDocument(ctx, ama.ID, DocumentIDCard, "s3://docs/id.png")
	require.NoError(t, err)

	first, err := env.svc.ListRecords(ctx, FilterSpec{})
	require.NoError(t, err)
	require.Len(t, first, 1)
	first[0].Subject.Name = "Mallory"
	first[0].Documents[DocumentPhoto] = "evil"
	first[0].Notes = append(first[0].Notes, Note{Text: "forged"})

	second, err := env.svc.ListRecords(ctx, FilterSpec{})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "Ama", second[0].Subject.Name)
	assert.Equal(t, map[DocumentKind]string{DocumentIDCard: "s3://docs/id.png"}, second[0].Documents)
	assert.Empty(t, second[0].Notes)

	second[0].Subject.Name = "Eve"
	third, err := env.svc.ListRecords(ctx, FilterSpec{})
	require.NoError(t, err)
	assert.Equal(t, "Ama", third[0].Subject.Name, "cache hits are copies too")
}

func TestStatistics_ReturnsCopies(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.create(t, "Ama")

	st, err := env.svc.Statistics(ctx)
	require.NoError(t, err)
	st.RegionalDistribution["Kaduna"] = 99
	st.CropDistribution["Cocoa"] = 7

	again, err := env.svc.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Kaduna": 1}, again.RegionalDistribution)
	assert.NotContains(t, again.CropDistribution, "Cocoa")
}

func TestFailedSaveKeepsCache(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	r := env.create(t, "Ama")

	_, err := env.svc.Statistics(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, env.svc.Cache().Len())
	gen := env.svc.Cache().Generation()

	env.store.FailSaves(errStoreDown)
	_, err = env.svc.AdvanceStage(ctx, r.ID, StageDocumentation, "")
	require.Error(t, err)
	assert.Equal(t, "DB002", MapError(err).Code)
	assert.Equal(t, gen, env.svc.Cache().Generation())
	assert.Equal(t, 1, env.svc.Cache().Len())

	env.store.FailSaves(nil)
	got, err := env.svc.GetRecord(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StageRegistration, got.Stage)
}

func TestStatistics_Cached(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.create(t, "Ama")

	st, err := env.svc.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Total)
	assert.Equal(t, 1, st.Pending)

	env.create(t, "Kofi")
	st, err = env.svc.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Total, "writes invalidate cached statistics")
}

func TestSendToRecord(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	r := env.create(t, "Ama")

	msg, err := env.svc.SendToRecord(ctx, r.ID, "welcome", nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello Ama, welcome to the farmer network. Your partner partner-1 will contact you shortly.", msg.Body)

	sent := env.channel.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "+2348000000000", sent[0].Recipient)

	got, err := env.svc.GetRecord(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, got.Notes, 1)
	assert.Contains(t, got.Notes[0].Text, "welcome")

	_, err = env.svc.SendToRecord(ctx, r.ID, "documentation_reminder", nil)
	assert.True(t, IsMissingVariable(err))

	_, err = env.svc.SendToRecord(ctx, r.ID, "training_invite", map[string]string{"moduleName": "Soil", "trainingDate": "2025-04-01"})
	assert.True(t, IsValidation(err), "no email address for an email template")
}

func TestRunFollowUps(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	due := env.create(t, "Ama")
	later := env.create(t, "Kofi")

	past := testNow.Add(-time.Hour)
	future := testNow.Add(24 * time.Hour)
	_, err := env.svc.ScheduleFollowUp(ctx, due.ID, &past)
	require.NoError(t, err)
	_, err = env.svc.ScheduleFollowUp(ctx, later.ID, &future)
	require.NoError(t, err)

	sent, err := env.svc.RunFollowUps(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	got, err := env.svc.GetRecord(ctx, due.ID)
	require.NoError(t, err)
	assert.Nil(t, got.NextFollowUp)
	require.Len(t, env.channel.Sent(), 1)
	assert.Contains(t, env.channel.Sent()[0].Msg.Body, "registration")

	sent, err = env.svc.RunFollowUps(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
}

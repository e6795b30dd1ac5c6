package core

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests are most useful under -race.

func TestService_ConcurrentMutationsAndReads(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	shared := env.create(t, "Shared")

	const (
		workers = 8
		notes   = 5
	)
	ids := make([]string, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			r, err := env.svc.CreateRecord(ctx, CreateRecordRequest{
				Subject:         &Subject{Name: fmt.Sprintf("Farmer %d", i), State: "Kaduna"},
				AssignedPartner: "p1",
			})
			if !assert.NoError(t, err) {
				return
			}
			ids[i] = r.ID

			_, err = env.svc.AdvanceStage(ctx, r.ID, StageDocumentation, "documents requested")
			assert.NoError(t, err)

			for j := 0; j < notes; j++ {
				_, err = env.svc.AppendNote(ctx, shared.ID, fmt.Sprintf("worker %d note %d", i, j))
				assert.NoError(t, err)

				list, err := env.svc.ListRecords(ctx, FilterSpec{Region: "Kaduna"})
				assert.NoError(t, err)
				for k := range list {
					list[k].Subject.Name = "scribbled"
				}

				_, err = env.svc.Statistics(ctx)
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	got, err := env.svc.GetRecord(ctx, shared.ID)
	require.NoError(t, err)
	assert.Len(t, got.Notes, workers*notes, "no appended note is lost")

	records, err := env.svc.ListRecords(ctx, FilterSpec{Stage: "documentation"})
	require.NoError(t, err)
	assert.ElementsMatch(t, ids, lo.Map(records, func(r Record, _ int) string { return r.ID }))
	for _, r := range records {
		assert.NotEqual(t, "scribbled", r.Subject.Name)
		assert.Equal(t, []Stage{StageRegistration}, r.PassedStages)
		require.Len(t, r.Notes, 1)
	}

	st, err := env.svc.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, workers+1, st.Total)
}

func TestImportRecords_ConcurrentSameID(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	const imports = 6
	results := make([]*ImportResult, imports)

	var wg sync.WaitGroup
	for i := 0; i < imports; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload := csvOf(
				"ID,Farmer Name,Email",
				"farmer-1,Ama Owusu,ama@example.com",
				fmt.Sprintf(",Farmer %d,farmer%d@example.com", i, i),
			)
			res, err := env.svc.ImportRecords(ctx, payload, ImportOptions{AssignedPartner: fmt.Sprintf("p%d", i)})
			if assert.NoError(t, err) {
				results[i] = res
			}
		}(i)
	}
	wg.Wait()

	creator := -1
	var created, updated int
	for i, res := range results {
		require.NotNil(t, res)
		assert.Equal(t, 2, res.Successful)
		created += res.Summary.NewFarmers
		updated += res.Summary.UpdatedFarmers
		if res.Summary.NewFarmers == 2 {
			creator = i
		}
	}
	assert.Equal(t, imports+1, created)
	assert.Equal(t, imports-1, updated)
	require.NotEqual(t, -1, creator, "exactly one import creates farmer-1")

	got, err := env.svc.GetRecord(ctx, "farmer-1")
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("p%d", creator), got.AssignedPartner)
	require.Len(t, got.Notes, imports)
	assert.Equal(t, ImportNote, got.Notes[0].Text)
	assert.Equal(t, imports+1, env.store.Len())
}

func TestImportRecords_ConcurrentWithNotes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.ImportRecords(ctx, csvOf("ID,Farmer Name", "farmer-1,Ama"), ImportOptions{AssignedPartner: "p1"})
	require.NoError(t, err)

	const rounds = 4
	var wg sync.WaitGroup
	for i := 0; i < rounds; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := env.svc.AppendNote(ctx, "farmer-1", fmt.Sprintf("audit: call %d", i))
			assert.NoError(t, err)
		}(i)
		go func(i int) {
			defer wg.Done()
			_, err := env.svc.ImportRecords(ctx, csvOf("ID,Farmer Name", "farmer-1,Ama Owusu"), ImportOptions{AssignedPartner: fmt.Sprintf("p%d", i+2)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := env.svc.GetRecord(ctx, "farmer-1")
	require.NoError(t, err)
	assert.Equal(t, "p1", got.AssignedPartner)
	assert.Len(t, got.Notes, 1+2*rounds)
	audits := lo.Filter(got.Notes, func(n Note, _ int) bool { return len(n.Text) > 6 && n.Text[:6] == "audit:" })
	assert.Len(t, audits, rounds)
}

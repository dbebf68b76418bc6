package store_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixcuello/cp-server/internal/judge"
	"github.com/felixcuello/cp-server/internal/store"
)

func TestMemory_OrderedExamples(t *testing.T) {
	mem := store.NewMemory()
	mem.AddExample(judge.Example{ID: 2, ProblemID: 1, SortOrder: 2})
	mem.AddExample(judge.Example{ID: 3, ProblemID: 1, SortOrder: 3, IsHidden: true})
	mem.AddExample(judge.Example{ID: 1, ProblemID: 1, SortOrder: 1})
	mem.AddExample(judge.Example{ID: 9, ProblemID: 2, SortOrder: 1})

	examples, err := mem.OrderedExamples(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, examples, 3)
	assert.Equal(t, int64(1), examples[0].ID)
	assert.Equal(t, int64(2), examples[1].ID)
	assert.Equal(t, int64(3), examples[2].ID)
}

func TestMemory_HarnessLookupReturnsNilWhenAbsent(t *testing.T) {
	mem := store.NewMemory()

	template, err := mem.TemplateFor(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.Nil(t, template)

	tester, err := mem.TesterFor(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.Nil(t, tester)

	mem.SetTester(judge.Tester{ProblemID: 1, LanguageID: 1, TesterCode: "x"})
	tester, err = mem.TesterFor(context.Background(), 1, 1)
	require.NoError(t, err)
	require.NotNil(t, tester)
	assert.Equal(t, "x", tester.TesterCode)
}

func TestMemory_ClaimForJudging(t *testing.T) {
	mem := store.NewMemory()
	mem.AddSubmission(judge.Submission{ID: 1, Status: judge.StatusQueued})

	claimed, err := mem.ClaimForJudging(context.Background(), 1, judge.StatusRunning)
	require.NoError(t, err)
	assert.True(t, claimed)

	// A second claim on a non-pending submission must lose.
	claimed, err = mem.ClaimForJudging(context.Background(), 1, judge.StatusRunning)
	require.NoError(t, err)
	assert.False(t, claimed)

	_, err = mem.ClaimForJudging(context.Background(), 404, judge.StatusRunning)
	assert.Error(t, err)
}

func TestMemory_ClaimForJudging_OnlyOneWinnerUnderContention(t *testing.T) {
	mem := store.NewMemory()
	mem.AddSubmission(judge.Submission{ID: 1, Status: judge.StatusEnqueued})

	const workers = 16
	var wg sync.WaitGroup
	wins := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := mem.ClaimForJudging(context.Background(), 1, judge.StatusRunning)
			if err == nil && claimed {
				wins <- true
			}
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	assert.Equal(t, 1, count)
}

func TestMemory_CountForProblem(t *testing.T) {
	mem := store.NewMemory()
	mem.AddSubmission(judge.Submission{ID: 1, ProblemID: 1, Status: judge.StatusAccepted})
	mem.AddSubmission(judge.Submission{ID: 2, ProblemID: 1, Status: judge.WrongAnswerAt(1)})
	mem.AddSubmission(judge.Submission{ID: 3, ProblemID: 1, Status: judge.StatusQueued})
	mem.AddSubmission(judge.Submission{ID: 4, ProblemID: 2, Status: judge.StatusAccepted})

	total, accepted, err := mem.CountForProblem(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, 1, accepted)
}

func TestMemory_UpsertUserProblemStatus_Monotonic(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, mem.UpsertUserProblemStatus(ctx, 7, 1, false))
	st, ok := mem.GetUserProblemStatus(7, 1)
	require.True(t, ok)
	assert.False(t, st.Solved)
	assert.Equal(t, 1, st.Attempts)

	require.NoError(t, mem.UpsertUserProblemStatus(ctx, 7, 1, true))
	st, _ = mem.GetUserProblemStatus(7, 1)
	assert.True(t, st.Solved)
	assert.Equal(t, 2, st.Attempts)

	// A later failure never demotes solved.
	require.NoError(t, mem.UpsertUserProblemStatus(ctx, 7, 1, false))
	st, _ = mem.GetUserProblemStatus(7, 1)
	assert.True(t, st.Solved)
	assert.Equal(t, 3, st.Attempts)
}

func TestMemory_UpsertUserProblemStatus_Concurrent(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	const n = 32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(accepted bool) {
			defer wg.Done()
			_ = mem.UpsertUserProblemStatus(ctx, 7, 1, accepted)
		}(i%2 == 0)
	}
	wg.Wait()

	st, ok := mem.GetUserProblemStatus(7, 1)
	require.True(t, ok)
	assert.True(t, st.Solved)
	assert.Equal(t, n, st.Attempts)
}

func TestMemory_UpdateStatistics(t *testing.T) {
	mem := store.NewMemory()
	mem.AddProblem(judge.Problem{ID: 1, Title: "a plus b"})

	require.NoError(t, mem.UpdateStatistics(context.Background(), 1, 10, 4))

	prob, err := mem.GetProblem(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 10, prob.TotalSubmissions)
	assert.Equal(t, 4, prob.AcceptedSubmissions)
	assert.InDelta(t, 40.0, prob.AcceptanceRate(), 0.001)

	assert.Error(t, mem.UpdateStatistics(context.Background(), 404, 1, 1))
}

package judge_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixcuello/cp-server/internal/judge"
)

func TestEffectiveLimits_LanguageFloorWins(t *testing.T) {
	lang := judge.Language{TimeLimitSec: 10, MemoryLimitKB: 512 * 1024}
	prob := judge.Problem{TimeLimitSec: 1, MemoryLimitKB: 128 * 1024}

	assert.Equal(t, 10, judge.EffectiveTimeLimitSec(lang, prob))
	assert.Equal(t, 512, judge.EffectiveMemoryLimitMB(lang, prob))
}

func TestEffectiveLimits_ProblemFloorWins(t *testing.T) {
	lang := judge.Language{TimeLimitSec: 1, MemoryLimitKB: 128 * 1024}
	prob := judge.Problem{TimeLimitSec: 5, MemoryLimitKB: 256 * 1024}

	assert.Equal(t, 5, judge.EffectiveTimeLimitSec(lang, prob))
	assert.Equal(t, 256, judge.EffectiveMemoryLimitMB(lang, prob))
}

func TestLanguageValidate(t *testing.T) {
	compiled := judge.Language{Name: "c++", CompilerBinary: "g++"}
	require.NoError(t, compiled.Validate())
	assert.True(t, compiled.Compiled())

	interpreted := judge.Language{Name: "ruby", InterpreterBinary: "/usr/bin/ruby"}
	require.NoError(t, interpreted.Validate())
	assert.False(t, interpreted.Compiled())

	both := judge.Language{Name: "bad", CompilerBinary: "g++", InterpreterBinary: "ruby"}
	assert.Error(t, both.Validate())

	neither := judge.Language{Name: "bad"}
	assert.Error(t, neither.Validate())
}

func TestAcceptanceRate(t *testing.T) {
	p := judge.Problem{TotalSubmissions: 3, AcceptedSubmissions: 1}
	assert.InDelta(t, 33.3, p.AcceptanceRate(), 0.001)

	empty := judge.Problem{}
	assert.Zero(t, empty.AcceptanceRate())
}

func TestVisibleExamples(t *testing.T) {
	examples := []judge.Example{
		{ID: 1, IsHidden: false},
		{ID: 2, IsHidden: true},
		{ID: 3, IsHidden: false},
	}
	visible := judge.VisibleExamples(examples)
	require.Len(t, visible, 2)
	assert.Equal(t, int64(1), visible[0].ID)
	assert.Equal(t, int64(3), visible[1].ID)
}

func TestDifficultyString(t *testing.T) {
	assert.Equal(t, "easy", judge.DifficultyEasy.String())
	assert.Equal(t, "medium", judge.DifficultyMedium.String())
	assert.Equal(t, "hard", judge.DifficultyHard.String())
	assert.Equal(t, "unknown", judge.Difficulty(9).String())
}

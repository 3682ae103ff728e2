package app

import (
	"fmt"
	"math"
	"testing"
	"time"

	"exam-quiz-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestSize(t *testing.T) {
	cases := []struct {
		name     string
		category domain.Category
		want     int
	}{
		{name: "explicit per test", category: domain.Category{QuestionsPerTest: 40}, want: 40},
		{name: "fractional per test floors", category: domain.Category{QuestionsPerTest: 12.9}, want: 12},
		{name: "tiny per test clamps to one", category: domain.Category{QuestionsPerTest: 0.4}, want: 1},
		{name: "per test wins over max", category: domain.Category{QuestionsPerTest: 10, MaxQuestions: 200}, want: 10},
		{name: "large bank", category: domain.Category{MaxQuestions: 200}, want: 50},
		{name: "hundred bank", category: domain.Category{MaxQuestions: 100}, want: 30},
		{name: "negative per test ignored", category: domain.Category{QuestionsPerTest: -5}, want: 30},
		{name: "nan ignored", category: domain.Category{QuestionsPerTest: domain.Number(math.NaN()), MaxQuestions: 200}, want: 50},
		{name: "no hints", category: domain.Category{}, want: 30},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, TestSize(tc.category))
		})
	}
}

func TestPassingScore(t *testing.T) {
	assert.Equal(t, 18, PassingScore(30))
	assert.Equal(t, 28, PassingScore(50))
	assert.Equal(t, 6, PassingScore(10))
	assert.Equal(t, 25, PassingScore(41)) // ceil(24.6)
	assert.Equal(t, 1, PassingScore(1))
}

func TestThreshold(t *testing.T) {
	// short bank keeps the threshold of the requested size
	assert.Equal(t, 18, Threshold(domain.Category{}, 30, 10, false))
	assert.Equal(t, 18, Threshold(domain.Category{}, 30, 30, false))
	assert.Equal(t, 28, Threshold(domain.Category{}, 50, 12, false))
	assert.Equal(t, 20, Threshold(domain.Category{PassingScore: 20}, 30, 30, false))

	// clamping is opt-in
	assert.Equal(t, 10, Threshold(domain.Category{}, 30, 10, true))
	assert.Equal(t, 5, Threshold(domain.Category{PassingScore: 20}, 30, 5, true))
	assert.Equal(t, 18, Threshold(domain.Category{}, 30, 30, true))
}

func TestShortBankCannotPassByDefault(t *testing.T) {
	questions := makeBank(10)
	answers := make(map[int]string, len(questions))
	for i, q := range questions {
		answers[i] = q.CorrectAnswer
	}
	size := TestSize(domain.Category{})
	res := Score(questions, answers, Threshold(domain.Category{}, size, len(questions), false))
	assert.Equal(t, 10, res.Correct)
	assert.Equal(t, 18, res.PassingScore)
	assert.False(t, res.Passed)
}

func TestTimeLimit(t *testing.T) {
	assert.Equal(t, 90*time.Second, TimeLimit(domain.Category{TimeLimitSeconds: 90}, time.Hour))
	assert.Equal(t, time.Hour, TimeLimit(domain.Category{}, time.Hour))
	assert.Equal(t, DefaultTimeLimit, TimeLimit(domain.Category{}, 0))
	assert.Equal(t, 1500*time.Millisecond, TimeLimit(domain.Category{TimeLimitSeconds: 1.5}, time.Hour))
}

func TestSelectBoundsAndKeepsBank(t *testing.T) {
	bank := makeBank(40)
	original := make([]domain.Question, len(bank))
	copy(original, bank)
	shuffler := NewShuffler(42)

	picked := shuffler.Select(bank, 30)
	require.Len(t, picked, 30)
	assert.Equal(t, original, bank, "bank must not be mutated")

	seen := make(map[string]bool)
	for _, q := range picked {
		assert.False(t, seen[q.Prompt], "duplicate question %s", q.Prompt)
		seen[q.Prompt] = true
	}

	assert.Len(t, shuffler.Select(bank[:7], 30), 7)
	assert.Empty(t, shuffler.Select(nil, 30))
	assert.Empty(t, shuffler.Select(bank, 0))
}

func TestShuffleIsPermutation(t *testing.T) {
	bank := makeBank(25)
	shuffled := NewShuffler(7).Shuffle(bank)
	assert.ElementsMatch(t, bank, shuffled)
}

func TestScore(t *testing.T) {
	questions := []domain.Question{
		{Prompt: "a", CorrectAnswer: "1"},
		{Prompt: "b", CorrectAnswer: "2"},
		{Prompt: "c", CorrectAnswer: ""},
		{Prompt: "d", CorrectAnswer: "4"},
	}
	answers := map[int]string{0: "1", 1: "x", 2: "", 3: "4"}

	res := Score(questions, answers, 2)
	assert.Equal(t, 2, res.Correct)
	assert.Equal(t, 2, res.Incorrect)
	assert.True(t, res.Passed)
	assert.Equal(t, 4, res.Total)

	res = Score(questions, answers, 3)
	assert.False(t, res.Passed)

	res = Score(questions, nil, 0)
	assert.Equal(t, 0, res.Correct)
	assert.Equal(t, 4, res.Incorrect)
	assert.True(t, res.Passed)
}

func makeBank(n int) []domain.Question {
	bank := make([]domain.Question, n)
	for i := range bank {
		bank[i] = domain.Question{
			Prompt:        fmt.Sprintf("Q%d", i),
			Options:       []string{fmt.Sprintf("A%d", i), "other"},
			CorrectAnswer: fmt.Sprintf("A%d", i),
		}
	}
	return bank
}

package app

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"exam-quiz-service/internal/domain"
)

const (
	defaultTestSize   = 30
	largeBankSize     = 200
	largeBankTestSize = 50
	passRatio         = 0.6

	// DefaultTimeLimit applies when neither the category nor config set one.
	DefaultTimeLimit = 30 * time.Minute
	// DefaultRetention keeps finished attempts readable for late result polls.
	DefaultRetention = 5 * time.Minute
)

// passingTable holds the fixed thresholds for the common test sizes.
var passingTable = map[int]int{
	30: 18,
	50: 28,
}

// TestSize decides how many questions one test draws from the category.
func TestSize(c domain.Category) int {
	perTest := float64(c.QuestionsPerTest)
	if !math.IsNaN(perTest) && !math.IsInf(perTest, 0) && perTest > 0 {
		n := int(math.Floor(perTest))
		if n < 1 {
			n = 1
		}
		return n
	}
	if c.MaxQuestions == largeBankSize {
		return largeBankTestSize
	}
	return defaultTestSize
}

// PassingScore returns the default threshold for a test of the given size.
func PassingScore(size int) int {
	if p, ok := passingTable[size]; ok {
		return p
	}
	return int(math.Ceil(float64(size) * passRatio))
}

// Threshold resolves the passing score for an attempt. It comes from the
// requested size, so a bank shorter than the size can fail even when every
// answer is right. A positive category passingScore replaces the table.
// With clamp set the threshold is capped at the selected count.
func Threshold(c domain.Category, size, selected int, clamp bool) int {
	passing := PassingScore(size)
	if p := c.PassingScore.Int(); p > 0 {
		passing = p
	}
	if clamp && passing > selected {
		passing = selected
	}
	return passing
}

// TimeLimit returns the countdown duration for a category.
func TimeLimit(c domain.Category, fallback time.Duration) time.Duration {
	if secs := float64(c.TimeLimitSeconds); secs > 0 && !math.IsInf(secs, 0) {
		return time.Duration(secs * float64(time.Second))
	}
	if fallback > 0 {
		return fallback
	}
	return DefaultTimeLimit
}

// Shuffler draws random question subsets; safe for concurrent use.
type Shuffler struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewShuffler(seed int64) *Shuffler {
	return &Shuffler{rnd: rand.New(rand.NewSource(seed))}
}

// Shuffle returns a Fisher-Yates permutation of a copy of bank.
func (s *Shuffler) Shuffle(bank []domain.Question) []domain.Question {
	shuffled := make([]domain.Question, len(bank))
	copy(shuffled, bank)

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(shuffled) - 1; i > 0; i-- {
		j := s.rnd.Intn(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	return shuffled
}

// Select shuffles the bank and keeps at most limit questions.
func (s *Shuffler) Select(bank []domain.Question, limit int) []domain.Question {
	take := limit
	if take > len(bank) {
		take = len(bank)
	}
	if take <= 0 {
		return []domain.Question{}
	}
	return s.Shuffle(bank)[:take]
}

// Score counts answers matching each question's correct answer.
// Questions without a correct answer never score.
func Score(questions []domain.Question, answers map[int]string, passing int) domain.Result {
	correct := 0
	for i, q := range questions {
		if q.CorrectAnswer == "" {
			continue
		}
		if answer, ok := answers[i]; ok && answer == q.CorrectAnswer {
			correct++
		}
	}
	return domain.Result{
		Correct:      correct,
		Incorrect:    len(questions) - correct,
		Passed:       correct >= passing,
		Total:        len(questions),
		PassingScore: passing,
	}
}

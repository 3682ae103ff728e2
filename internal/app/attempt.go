package app

import (
	"sync"
	"time"

	"exam-quiz-service/internal/domain"
)

// AttemptSpec carries everything decided when an attempt starts.
type AttemptSpec struct {
	User      domain.User
	Category  domain.Category
	Questions []domain.Question
	Passing   int
	Deadline  time.Time
}

// Attempt is the in-memory state of one user's running test.
type Attempt struct {
	userID       string
	firstName    string
	lastName     string
	categoryID   string
	categoryName string
	questions    []domain.Question
	passing      int
	deadline     time.Time
	now          func() time.Time

	mu          sync.RWMutex
	answers     map[int]string
	current     int
	result      *domain.Result
	subscribers map[chan domain.AttemptEvent]struct{}

	stop     chan struct{}
	stopOnce sync.Once
}

// NewAttempt is exported for infrastructure layers and tests.
func NewAttempt(spec AttemptSpec, now func() time.Time) *Attempt {
	if now == nil {
		now = time.Now
	}
	return &Attempt{
		userID:       spec.User.ID,
		firstName:    spec.User.FirstName,
		lastName:     spec.User.LastName,
		categoryID:   spec.Category.ID,
		categoryName: spec.Category.Name,
		questions:    spec.Questions,
		passing:      spec.Passing,
		deadline:     spec.Deadline,
		now:          now,
		answers:      make(map[int]string),
		subscribers:  make(map[chan domain.AttemptEvent]struct{}),
		stop:         make(chan struct{}),
	}
}

func (a *Attempt) UserID() string { return a.userID }

func (a *Attempt) Deadline() time.Time { return a.deadline }

// Finished reports whether the attempt has a result.
func (a *Attempt) Finished() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.result != nil
}

func (a *Attempt) expired() bool {
	return !a.now().Before(a.deadline)
}

// timeLeft is the remaining time in whole seconds, rounded up.
func (a *Attempt) timeLeft() int {
	left := a.deadline.Sub(a.now())
	if left <= 0 {
		return 0
	}
	return int((left + time.Second - 1) / time.Second)
}

// answer records an answer for the current question and advances the cursor.
// last is true when the answered question was the final one.
func (a *Attempt) answer(value string) (view domain.AttemptView, last bool, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.result != nil {
		return domain.AttemptView{}, false, domain.ErrAttemptFinished
	}
	if len(a.questions) == 0 {
		return domain.AttemptView{}, false, domain.ErrNoQuestions
	}

	a.answers[a.current] = value
	next := a.current + 1
	if next < len(a.questions) {
		a.current = next
	} else {
		last = true
	}
	view = a.viewLocked()
	a.broadcastLocked(domain.AttemptEvent{Type: domain.EventState, TimeLeft: view.TimeLeft, View: &view})
	return view, last, nil
}

func (a *Attempt) seek(index int) (domain.AttemptView, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.result != nil {
		return domain.AttemptView{}, domain.ErrAttemptFinished
	}
	if index < 0 || index >= len(a.questions) {
		return domain.AttemptView{}, domain.ErrQuestionOutOfRange
	}
	a.current = index
	view := a.viewLocked()
	a.broadcastLocked(domain.AttemptEvent{Type: domain.EventState, TimeLeft: view.TimeLeft, View: &view})
	return view, nil
}

// finish scores the attempt once. first is true only for the call that
// produced the result; later calls get the stored result.
func (a *Attempt) finish() (res domain.Result, answers map[int]string, first bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.result != nil {
		return *a.result, copyAnswers(a.answers), false
	}

	scored := Score(a.questions, a.answers, a.passing)
	a.result = &scored
	a.stopCountdown()
	a.broadcastLocked(domain.AttemptEvent{Type: domain.EventResult, TimeLeft: a.timeLeft(), Result: &scored})
	return scored, copyAnswers(a.answers), true
}

func (a *Attempt) view() domain.AttemptView {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.viewLocked()
}

func (a *Attempt) viewLocked() domain.AttemptView {
	questions := make([]domain.QuestionView, len(a.questions))
	for i, q := range a.questions {
		questions[i] = domain.QuestionView{Index: i, Prompt: q.Prompt, Options: q.Options}
	}
	view := domain.AttemptView{
		UserID:       a.userID,
		FirstName:    a.firstName,
		LastName:     a.lastName,
		CategoryID:   a.categoryID,
		CategoryName: a.categoryName,
		Questions:    questions,
		Answers:      copyAnswers(a.answers),
		Current:      a.current,
		PassingScore: a.passing,
		TimeLeft:     a.timeLeft(),
		Deadline:     a.deadline,
	}
	if a.result != nil {
		res := *a.result
		view.Result = &res
	}
	return view
}

// runCountdown ticks subscribers every interval and calls expire once the
// deadline passes. It returns when the attempt finishes.
func (a *Attempt) runCountdown(interval time.Duration, expire func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-a.stop:
			return
		case <-ticker.C:
			if a.expired() {
				expire()
				return
			}
			a.mu.Lock()
			if a.result == nil {
				a.broadcastLocked(domain.AttemptEvent{Type: domain.EventTick, TimeLeft: a.timeLeft()})
			}
			a.mu.Unlock()
		}
	}
}

func (a *Attempt) stopCountdown() {
	a.stopOnce.Do(func() { close(a.stop) })
}

func (a *Attempt) subscribe() (<-chan domain.AttemptEvent, func()) {
	ch := make(chan domain.AttemptEvent, 8)

	a.mu.Lock()
	view := a.viewLocked()
	ch <- domain.AttemptEvent{Type: domain.EventState, TimeLeft: view.TimeLeft, View: &view}
	a.subscribers[ch] = struct{}{}
	a.mu.Unlock()

	cancel := func() {
		a.mu.Lock()
		if _, ok := a.subscribers[ch]; ok {
			delete(a.subscribers, ch)
			close(ch)
		}
		a.mu.Unlock()
	}
	return ch, cancel
}

func (a *Attempt) broadcastLocked(ev domain.AttemptEvent) {
	for ch := range a.subscribers {
		select {
		case ch <- ev:
		default:
			// slow subscriber: drop its oldest event
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

func copyAnswers(in map[int]string) map[int]string {
	out := make(map[int]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

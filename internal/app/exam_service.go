package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"exam-quiz-service/internal/domain"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// DocumentStore abstracts the remote document database (memory, Redis, Postgres, Mongo, SQLite).
type DocumentStore interface {
	List(ctx context.Context, collection string) ([]domain.Document, error)
	Get(ctx context.Context, collection, id string) (domain.Document, error)
	Add(ctx context.Context, collection string, fields map[string]any) (string, error)
	Set(ctx context.Context, collection, id string, fields map[string]any) error
	Update(ctx context.Context, collection, id string, fields map[string]any) error
}

// CategoryRepository loads categories (usually through a cache).
type CategoryRepository interface {
	ListCategories(ctx context.Context) ([]domain.CategorySummary, error)
	GetCategory(ctx context.Context, categoryID string) (domain.Category, error)
}

// AttemptRepository keeps running attempts addressable by user id.
type AttemptRepository interface {
	Put(attempt *Attempt)
	Get(userID string) (*Attempt, bool)
	DeleteIfFinished(userID string)
}

// Options tunes the exam service. Zero values pick defaults.
type Options struct {
	TimeLimit      time.Duration
	TickInterval   time.Duration
	PersistTimeout time.Duration

	// Retention is how long a finished attempt stays readable before it
	// is dropped from the attempt store.
	Retention time.Duration

	// ClampThreshold caps the passing score at the number of questions
	// actually drawn.
	ClampThreshold bool

	Shuffler *Shuffler
	Logger   *log.Logger
	Now      func() time.Time
}

// ExamService contains the exam use cases.
type ExamService struct {
	docs       DocumentStore
	categories CategoryRepository
	attempts   AttemptRepository

	timeLimit      time.Duration
	tick           time.Duration
	persistTimeout time.Duration
	retention      time.Duration
	clamp          bool
	shuffler       *Shuffler
	logger         *log.Logger
	now            func() time.Time

	starts singleflight.Group
}

func NewExamService(docs DocumentStore, categories CategoryRepository, attempts AttemptRepository, opts Options) *ExamService {
	s := &ExamService{
		docs:           docs,
		categories:     categories,
		attempts:       attempts,
		timeLimit:      opts.TimeLimit,
		tick:           opts.TickInterval,
		persistTimeout: opts.PersistTimeout,
		retention:      opts.Retention,
		clamp:          opts.ClampThreshold,
		shuffler:       opts.Shuffler,
		logger:         opts.Logger,
		now:            opts.Now,
	}
	if s.timeLimit <= 0 {
		s.timeLimit = DefaultTimeLimit
	}
	if s.tick <= 0 {
		s.tick = time.Second
	}
	if s.persistTimeout <= 0 {
		s.persistTimeout = 10 * time.Second
	}
	if s.retention <= 0 {
		s.retention = DefaultRetention
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.shuffler == nil {
		s.shuffler = NewShuffler(s.now().UnixNano())
	}
	if s.logger == nil {
		s.logger = log.New(os.Stderr, "[exam] ", log.LstdFlags)
	}
	return s
}

// ListCategories returns the categories a user can pick from.
func (s *ExamService) ListCategories(ctx context.Context) ([]domain.CategorySummary, error) {
	return s.categories.ListCategories(ctx)
}

// Register stores a new user document with zeroed counters and returns its id.
func (s *ExamService) Register(ctx context.Context, reg domain.Registration) (string, error) {
	if err := validate.Struct(reg); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidRegistration, err)
	}
	reg.SelectedCategory = strings.TrimSpace(reg.SelectedCategory)
	if _, err := s.categories.GetCategory(ctx, reg.SelectedCategory); err != nil {
		return "", err
	}

	id, err := s.docs.Add(ctx, domain.UsersCollection, map[string]any{
		"firstName":        reg.FirstName,
		"lastName":         reg.LastName,
		"selectedCategory": reg.SelectedCategory,
		"correct":          0,
		"incorrect":        0,
	})
	if err != nil {
		s.logger.Printf("save user failed: %v", err)
		return "", fmt.Errorf("save user: %w", err)
	}
	return id, nil
}

// Start draws the user's questions and starts the countdown.
// Calling it again while the attempt runs returns the same attempt.
func (s *ExamService) Start(ctx context.Context, userID string) (domain.AttemptView, error) {
	if attempt, ok := s.attempts.Get(userID); ok {
		if attempt.Finished() {
			return domain.AttemptView{}, domain.ErrAttemptFinished
		}
		return attempt.view(), nil
	}

	result, err, _ := s.starts.Do(userID, func() (interface{}, error) {
		if attempt, ok := s.attempts.Get(userID); ok {
			return attempt, nil
		}
		// collapsed callers share this load, so one cancelled request must not fail the rest
		return s.newAttempt(context.WithoutCancel(ctx), userID)
	})
	if err != nil {
		return domain.AttemptView{}, err
	}
	return result.(*Attempt).view(), nil
}

func (s *ExamService) newAttempt(ctx context.Context, userID string) (*Attempt, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.LastTestAt != "" {
		return nil, domain.ErrAttemptFinished
	}

	category, err := s.categories.GetCategory(ctx, user.SelectedCategory)
	if err != nil {
		s.logger.Printf("fetch category %s failed: %v", user.SelectedCategory, err)
		return nil, err
	}

	size := TestSize(category)
	questions := s.shuffler.Select(category.Tests, size)
	if len(questions) == 0 {
		return nil, domain.ErrNoQuestions
	}

	attempt := NewAttempt(AttemptSpec{
		User:      user,
		Category:  category,
		Questions: questions,
		Passing:   Threshold(category, size, len(questions), s.clamp),
		Deadline:  s.now().Add(TimeLimit(category, s.timeLimit)),
	}, s.now)
	s.attempts.Put(attempt)

	go attempt.runCountdown(s.tick, func() {
		s.logger.Printf("time is up for user %s, submitting", userID)
		s.finish(attempt)
	})
	return attempt, nil
}

// Attempt returns the current view, submitting first if time ran out.
func (s *ExamService) Attempt(_ context.Context, userID string) (domain.AttemptView, error) {
	attempt, err := s.lookup(userID)
	if err != nil {
		return domain.AttemptView{}, err
	}
	return attempt.view(), nil
}

// Answer records an answer for the current question and advances.
// Answering the last question submits the attempt.
func (s *ExamService) Answer(_ context.Context, userID, answer string) (domain.AttemptView, error) {
	attempt, err := s.lookup(userID)
	if err != nil {
		return domain.AttemptView{}, err
	}
	view, last, err := attempt.answer(answer)
	if err != nil {
		return domain.AttemptView{}, err
	}
	if last {
		s.finish(attempt)
		view = attempt.view()
	}
	return view, nil
}

// Goto moves the question cursor.
func (s *ExamService) Goto(_ context.Context, userID string, index int) (domain.AttemptView, error) {
	attempt, err := s.lookup(userID)
	if err != nil {
		return domain.AttemptView{}, err
	}
	return attempt.seek(index)
}

// Submit scores and persists the attempt. Repeated calls return the first result.
func (s *ExamService) Submit(_ context.Context, userID string) (domain.Result, error) {
	attempt, ok := s.attempts.Get(userID)
	if !ok {
		return domain.Result{}, domain.ErrAttemptNotFound
	}
	if len(attempt.questions) == 0 {
		return domain.Result{}, domain.ErrNoQuestions
	}
	return s.finish(attempt), nil
}

// Subscribe returns a channel of attempt events. The caller must invoke
// the returned cancel function to avoid leaks.
func (s *ExamService) Subscribe(_ context.Context, userID string) (<-chan domain.AttemptEvent, func(), error) {
	attempt, ok := s.attempts.Get(userID)
	if !ok {
		return nil, nil, domain.ErrAttemptNotFound
	}
	ch, cancel := attempt.subscribe()
	return ch, cancel, nil
}

// Release drops a finished attempt from the attempt store.
func (s *ExamService) Release(_ context.Context, userID string) {
	s.attempts.DeleteIfFinished(userID)
}

// lookup fetches an attempt and submits it if its deadline passed.
func (s *ExamService) lookup(userID string) (*Attempt, error) {
	attempt, ok := s.attempts.Get(userID)
	if !ok {
		return nil, domain.ErrAttemptNotFound
	}
	if attempt.expired() && !attempt.Finished() {
		s.finish(attempt)
	}
	return attempt, nil
}

// finish scores the attempt; only the first caller writes the result.
func (s *ExamService) finish(attempt *Attempt) domain.Result {
	res, answers, first := attempt.finish()
	if !first {
		return res
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.persistTimeout)
	defer cancel()
	if err := s.persistResult(ctx, attempt, res, answers); err != nil {
		// the result is still returned to the client
		s.logger.Printf("save result for user %s failed: %v", attempt.userID, err)
	}
	time.AfterFunc(s.retention, func() { s.attempts.DeleteIfFinished(attempt.userID) })
	return res
}

func (s *ExamService) persistResult(ctx context.Context, attempt *Attempt, res domain.Result, answers map[int]string) error {
	stored := make(map[string]string, len(answers))
	for i, a := range answers {
		stored[strconv.Itoa(i)] = a
	}
	return s.docs.Update(ctx, domain.UsersCollection, attempt.userID, map[string]any{
		"correct":    res.Correct,
		"incorrect":  res.Incorrect,
		"passed":     res.Passed,
		"answers":    stored,
		"lastTestAt": s.now().UTC().Format("2006-01-02T15:04:05.000Z"),
		"category":   attempt.categoryID,
	})
}

func (s *ExamService) loadUser(ctx context.Context, userID string) (domain.User, error) {
	doc, err := s.docs.Get(ctx, domain.UsersCollection, userID)
	if errors.Is(err, domain.ErrDocumentNotFound) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}
	var user domain.User
	if err := doc.Decode(&user); err != nil {
		return domain.User{}, err
	}
	user.ID = doc.ID
	return user, nil
}

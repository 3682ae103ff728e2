package app_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"exam-quiz-service/internal/app"
	"exam-quiz-service/internal/domain"
	"exam-quiz-service/internal/infra/memory"
)

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t, time.Minute)

	cases := []domain.Registration{
		{LastName: "Karimov", SelectedCategory: "math"},
		{FirstName: "Ali", SelectedCategory: "math"},
		{FirstName: "Ali", LastName: "Karimov"},
		{},
	}
	for _, reg := range cases {
		if _, err := service.Register(ctx, reg); !errors.Is(err, domain.ErrInvalidRegistration) {
			t.Fatalf("expected invalid registration for %+v, got %v", reg, err)
		}
	}

	if _, err := service.Register(ctx, domain.Registration{FirstName: "Ali", LastName: "Karimov", SelectedCategory: "nope"}); !errors.Is(err, domain.ErrCategoryNotFound) {
		t.Fatalf("expected category not found, got %v", err)
	}
}

func TestRegisterAcceptsBlankLookingNames(t *testing.T) {
	ctx := context.Background()
	service, docs := newTestService(t, time.Minute)

	id, err := service.Register(ctx, domain.Registration{FirstName: "  ", LastName: "Karimov", SelectedCategory: " math "})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	doc, err := docs.Get(ctx, domain.UsersCollection, id)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	var user domain.User
	if err := doc.Decode(&user); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if user.FirstName != "  " || user.SelectedCategory != "math" {
		t.Fatalf("unexpected user %+v", user)
	}
}

func TestRegisterStoresZeroedUser(t *testing.T) {
	ctx := context.Background()
	service, docs := newTestService(t, time.Minute)

	id := register(t, service, "math")
	doc, err := docs.Get(ctx, domain.UsersCollection, id)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	var user domain.User
	if err := doc.Decode(&user); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if user.FirstName != "Ali" || user.SelectedCategory != "math" || user.Correct != 0 || user.Incorrect != 0 {
		t.Fatalf("unexpected user %+v", user)
	}
}

func TestStartSelectsBoundedQuestions(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t, time.Minute)

	view, err := service.Start(ctx, register(t, service, "math"))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	// 40 in the bank, 30 per test by default
	if len(view.Questions) != 30 {
		t.Fatalf("expected 30 questions, got %d", len(view.Questions))
	}
	if view.PassingScore != 18 {
		t.Fatalf("expected passing score 18, got %d", view.PassingScore)
	}
	if view.CategoryName != "Mathematics" {
		t.Fatalf("expected category name, got %q", view.CategoryName)
	}
	if view.TimeLeft != 60 {
		t.Fatalf("expected 60s left, got %d", view.TimeLeft)
	}

	again, err := service.Start(ctx, view.UserID)
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if again.Questions[0].Prompt != view.Questions[0].Prompt {
		t.Fatalf("start must be idempotent while running")
	}
}

func TestStartShortBankKeepsRequestedThreshold(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t, time.Minute)

	view, err := service.Start(ctx, register(t, service, "short"))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	// 5 questions drawn for a 30 question test still need 18
	if len(view.Questions) != 5 || view.PassingScore != 18 {
		t.Fatalf("expected 5 questions and threshold 18, got %d/%d", len(view.Questions), view.PassingScore)
	}
}

func TestStartClampThresholdOption(t *testing.T) {
	ctx := context.Background()
	service := newServiceWithOptions(t, memory.NewDocumentStore(), app.Options{
		TimeLimit:      time.Minute,
		ClampThreshold: true,
	})

	view, err := service.Start(ctx, register(t, service, "short"))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if view.PassingScore != 5 {
		t.Fatalf("expected clamped threshold 5, got %d", view.PassingScore)
	}
}

func TestStartAcceptsStringNumbersInCategory(t *testing.T) {
	ctx := context.Background()
	service, docs := newTestService(t, time.Minute)
	err := docs.Set(ctx, domain.CategoriesCollection, "loose", map[string]any{
		"name":             "Loose",
		"maxQuestions":     "200",
		"questionsPerTest": "2",
		"tests": []any{
			map[string]any{"question": "Q0", "options": []any{1, 2}, "correctAnswer": 1},
			map[string]any{"question": "Q1", "options": []any{"yes", "no"}, "correctAnswer": "no"},
			map[string]any{"question": "Q2", "options": []any{3, 4}, "correctAnswer": 4},
		},
	})
	if err != nil {
		t.Fatalf("set category: %v", err)
	}

	userID := register(t, service, "loose")
	view, err := service.Start(ctx, userID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(view.Questions) != 2 || view.PassingScore != 2 {
		t.Fatalf("expected 2 questions with threshold 2, got %d/%d", len(view.Questions), view.PassingScore)
	}

	wanted := map[string]string{"Q0": "1", "Q1": "no", "Q2": "4"}
	for _, q := range view.Questions {
		if _, err := service.Answer(ctx, userID, wanted[q.Prompt]); err != nil {
			t.Fatalf("answer %s: %v", q.Prompt, err)
		}
	}
	res, err := service.Submit(ctx, userID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Correct != 2 || !res.Passed {
		t.Fatalf("numeric answers must score, got %+v", res)
	}
}

func TestStartSurvivesCancelledCallerContext(t *testing.T) {
	docs := &ctxStore{DocumentStore: memory.NewDocumentStore()}
	service := newServiceWithStore(t, docs, time.Minute, nil)
	userID := register(t, service, "short")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := service.Start(ctx, userID); err != nil {
		t.Fatalf("start with cancelled context: %v", err)
	}
}

func TestFinishedAttemptIsDroppedAfterRetention(t *testing.T) {
	ctx := context.Background()
	service := newServiceWithOptions(t, memory.NewDocumentStore(), app.Options{
		TimeLimit: time.Minute,
		Retention: 20 * time.Millisecond,
	})
	userID := register(t, service, "short")
	if _, err := service.Start(ctx, userID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := service.Submit(ctx, userID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if view, err := service.Attempt(ctx, userID); err != nil || view.Result == nil {
		t.Fatalf("expected result readable right after submit, got %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := service.Attempt(ctx, userID); errors.Is(err, domain.ErrAttemptNotFound) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("finished attempt was never dropped")
}

func TestStartEmptyBank(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t, time.Minute)

	if _, err := service.Start(ctx, register(t, service, "empty")); !errors.Is(err, domain.ErrNoQuestions) {
		t.Fatalf("expected no questions, got %v", err)
	}
	if _, err := service.Start(ctx, "ghost"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected user not found, got %v", err)
	}
}

func TestAnswerAllAndPersist(t *testing.T) {
	ctx := context.Background()
	service, docs := newTestService(t, time.Minute)
	userID := register(t, service, "short")

	view, err := service.Start(ctx, userID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	for i, q := range view.Questions {
		answer := correctFor(q.Prompt)
		if i == 0 {
			answer = "wrong"
		}
		view, err = service.Answer(ctx, userID, answer)
		if err != nil {
			t.Fatalf("answer %d: %v", i, err)
		}
	}
	if view.Result == nil {
		t.Fatalf("expected result after last answer")
	}
	if view.Result.Correct != 4 || view.Result.Incorrect != 1 || view.Result.Passed {
		t.Fatalf("unexpected result %+v", view.Result)
	}

	doc, err := docs.Get(ctx, domain.UsersCollection, userID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	var user domain.User
	if err := doc.Decode(&user); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if user.Correct != 4 || user.Incorrect != 1 || user.Passed == nil || *user.Passed {
		t.Fatalf("unexpected persisted user %+v", user)
	}
	if user.Category != "short" || user.LastTestAt == "" || len(user.Answers) != 5 {
		t.Fatalf("expected category, timestamp and answers, got %+v", user)
	}

	if _, err := service.Answer(ctx, userID, "late"); !errors.Is(err, domain.ErrAttemptFinished) {
		t.Fatalf("expected finished, got %v", err)
	}
	if _, err := service.Start(ctx, userID); !errors.Is(err, domain.ErrAttemptFinished) {
		t.Fatalf("expected finished on restart, got %v", err)
	}
}

func TestGotoAndChangeAnswer(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t, time.Minute)
	userID := register(t, service, "short")

	view, _ := service.Start(ctx, userID)
	if _, err := service.Answer(ctx, userID, "wrong"); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if _, err := service.Goto(ctx, userID, 0); err != nil {
		t.Fatalf("goto: %v", err)
	}
	view, err := service.Answer(ctx, userID, correctFor(view.Questions[0].Prompt))
	if err != nil {
		t.Fatalf("answer again: %v", err)
	}
	if view.Current != 1 {
		t.Fatalf("expected cursor on 1, got %d", view.Current)
	}

	if _, err := service.Goto(ctx, userID, 5); !errors.Is(err, domain.ErrQuestionOutOfRange) {
		t.Fatalf("expected out of range, got %v", err)
	}

	res, err := service.Submit(ctx, userID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Correct != 1 || res.Incorrect != 4 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestSubmitWritesOnce(t *testing.T) {
	ctx := context.Background()
	docs := &countingStore{DocumentStore: memory.NewDocumentStore()}
	service := newServiceWithStore(t, docs, time.Minute, nil)
	userID := register(t, service, "short")
	if _, err := service.Start(ctx, userID); err != nil {
		t.Fatalf("start: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := service.Submit(ctx, userID); err != nil {
				t.Errorf("submit: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := docs.updateCount(); got != 1 {
		t.Fatalf("expected one write, got %d", got)
	}
}

func TestSubmitPersistFailureStillReturnsResult(t *testing.T) {
	ctx := context.Background()
	var logs bytes.Buffer
	docs := &countingStore{DocumentStore: memory.NewDocumentStore(), failUpdates: true}
	service := newServiceWithStore(t, docs, time.Minute, log.New(&logs, "", 0))
	userID := register(t, service, "short")
	if _, err := service.Start(ctx, userID); err != nil {
		t.Fatalf("start: %v", err)
	}

	res, err := service.Submit(ctx, userID)
	if err != nil {
		t.Fatalf("submit must not fail on persistence error: %v", err)
	}
	if res.Total != 5 || res.Incorrect != 5 {
		t.Fatalf("unexpected result %+v", res)
	}
	if !strings.Contains(logs.String(), "save result") {
		t.Fatalf("expected persistence failure to be logged, got %q", logs.String())
	}
}

func TestCountdownSubmitsOnTimeout(t *testing.T) {
	ctx := context.Background()
	service, docs := newTestService(t, 50*time.Millisecond)
	userID := register(t, service, "short")
	if _, err := service.Start(ctx, userID); err != nil {
		t.Fatalf("start: %v", err)
	}

	updates, cancel, err := service.Subscribe(ctx, userID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-updates:
			if ev.Type == domain.EventState && ev.View != nil && ev.View.Result != nil {
				ev.Result = ev.View.Result
			} else if ev.Type != domain.EventResult {
				continue
			}
			if ev.Result == nil || ev.Result.Total != 5 {
				t.Fatalf("unexpected result event %+v", ev)
			}
			waitForPersist(t, docs, userID)
			return
		case <-timeout:
			t.Fatalf("timed out waiting for automatic submit")
		}
	}
}

func TestReleaseDropsFinishedAttempt(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t, time.Minute)
	userID := register(t, service, "short")
	if _, err := service.Start(ctx, userID); err != nil {
		t.Fatalf("start: %v", err)
	}

	service.Release(ctx, userID)
	if _, err := service.Attempt(ctx, userID); err != nil {
		t.Fatalf("running attempt must survive release: %v", err)
	}

	if _, err := service.Submit(ctx, userID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	service.Release(ctx, userID)
	if _, err := service.Attempt(ctx, userID); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected attempt released, got %v", err)
	}
}

func TestListCategories(t *testing.T) {
	service, _ := newTestService(t, time.Minute)
	categories, err := service.ListCategories(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(categories) != 3 {
		t.Fatalf("expected 3 categories, got %d", len(categories))
	}
}

func newTestService(t *testing.T, limit time.Duration) (*app.ExamService, *memory.DocumentStore) {
	t.Helper()
	docs := memory.NewDocumentStore()
	return newServiceWithStore(t, docs, limit, nil), docs
}

func newServiceWithStore(t *testing.T, docs app.DocumentStore, limit time.Duration, logger *log.Logger) *app.ExamService {
	t.Helper()
	return newServiceWithOptions(t, docs, app.Options{TimeLimit: limit, Logger: logger})
}

func newServiceWithOptions(t *testing.T, docs app.DocumentStore, opts app.Options) *app.ExamService {
	t.Helper()
	if err := app.SeedCategories(context.Background(), docs, testCategories()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if opts.Logger == nil {
		opts.Logger = log.New(&bytes.Buffer{}, "", 0)
	}
	if opts.TickInterval == 0 {
		opts.TickInterval = 10 * time.Millisecond
	}
	if opts.Shuffler == nil {
		opts.Shuffler = app.NewShuffler(1)
	}
	categories := memory.NewCategoryRepository(app.NewDocumentCategoryLoader(docs), time.Minute)
	return app.NewExamService(docs, categories, memory.NewAttemptStore(), opts)
}

func register(t *testing.T, service *app.ExamService, category string) string {
	t.Helper()
	id, err := service.Register(context.Background(), domain.Registration{
		FirstName:        "Ali",
		LastName:         "Karimov",
		SelectedCategory: category,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return id
}

func waitForPersist(t *testing.T, docs app.DocumentStore, userID string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		doc, err := docs.Get(context.Background(), domain.UsersCollection, userID)
		if err == nil {
			var user domain.User
			if doc.Decode(&user) == nil && user.LastTestAt != "" {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("result was not persisted")
}

func correctFor(prompt string) string {
	return "A" + strings.TrimPrefix(prompt, "Q")
}

func testCategories() []domain.Category {
	return []domain.Category{
		{ID: "math", Name: "Mathematics", Tests: bank(40)},
		{ID: "short", Name: "Short", Tests: bank(5)},
		{ID: "empty", Name: "Empty"},
	}
}

func bank(n int) []domain.Question {
	questions := make([]domain.Question, n)
	for i := range questions {
		questions[i] = domain.Question{
			Prompt:        fmt.Sprintf("Q%d", i),
			Options:       []string{fmt.Sprintf("A%d", i), "wrong"},
			CorrectAnswer: fmt.Sprintf("A%d", i),
		}
	}
	return questions
}

type countingStore struct {
	app.DocumentStore
	failUpdates bool

	mu      sync.Mutex
	updates int
}

func (s *countingStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	s.mu.Lock()
	s.updates++
	s.mu.Unlock()
	if s.failUpdates {
		return errors.New("document store unavailable")
	}
	return s.DocumentStore.Update(ctx, collection, id, fields)
}

func (s *countingStore) updateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

// ctxStore fails reads on a cancelled context like a network-backed store.
type ctxStore struct {
	app.DocumentStore
}

func (s *ctxStore) Get(ctx context.Context, collection, id string) (domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return domain.Document{}, err
	}
	return s.DocumentStore.Get(ctx, collection, id)
}

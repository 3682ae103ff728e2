package http

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"exam-quiz-service/internal/app"
	"exam-quiz-service/internal/auth"
	"exam-quiz-service/internal/domain"
	"exam-quiz-service/internal/infra/memory"
)

type testEnv struct {
	server *httptest.Server
	docs   *memory.DocumentStore
	tokens *auth.Tokens
}

// newTestEnv serves the API and websocket routes over in-memory stores.
// An empty secret disables bearer checks.
func newTestEnv(t *testing.T, secret string) *testEnv {
	t.Helper()
	docs := memory.NewDocumentStore()
	if err := app.SeedCategories(context.Background(), docs, testCategories()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	logger := log.New(&bytes.Buffer{}, "", 0)
	categories := memory.NewCategoryRepository(app.NewDocumentCategoryLoader(docs), time.Minute)
	service := app.NewExamService(docs, categories, memory.NewAttemptStore(), app.Options{
		TimeLimit:    time.Minute,
		TickInterval: time.Hour,
		Shuffler:     app.NewShuffler(1),
		Logger:       logger,
	})
	tokens := auth.NewTokens(secret, time.Hour)

	mux := http.NewServeMux()
	NewAPIHandler(service, tokens, logger).Register(mux)
	mux.HandleFunc("GET /ws", NewWSHandler(service, tokens, logger).ServeWS)
	server := httptest.NewServer(LoggingMiddleware(logger, mux))
	t.Cleanup(server.Close)

	return &testEnv{server: server, docs: docs, tokens: tokens}
}

func testCategories() []domain.Category {
	return []domain.Category{
		{ID: "math", Name: "Mathematics", Tests: bank(40)},
		{ID: "short", Name: "Short", Tests: bank(3), QuestionsPerTest: 3},
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

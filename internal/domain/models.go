package domain

import (
	"encoding/json"
	"time"

	"gopkg.in/yaml.v3"
)

// Collection names in the document store.
const (
	CategoriesCollection = "categories"
	UsersCollection      = "users"
)

// Question is a single multiple-choice item from a category's bank.
type Question struct {
	Prompt        string   `json:"question" yaml:"question"`
	Options       []string `json:"options" yaml:"options"`
	CorrectAnswer string   `json:"correctAnswer" yaml:"correctAnswer"`
}

// questionDoc accepts both the flat shape and the legacy shape where each
// bank item wraps its question in a "questions" array.
type questionDoc struct {
	Prompt        string `json:"question" yaml:"question"`
	Options       []text `json:"options" yaml:"options"`
	CorrectAnswer text   `json:"correctAnswer" yaml:"correctAnswer"`
	Questions     []struct {
		Prompt        string `json:"question" yaml:"question"`
		Options       []text `json:"options" yaml:"options"`
		CorrectAnswer text   `json:"correctAnswer" yaml:"correctAnswer"`
	} `json:"questions" yaml:"questions"`
}

// UnmarshalJSON prefers the first nested question and falls back to the
// top-level fields.
func (q *Question) UnmarshalJSON(data []byte) error {
	var doc questionDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	q.fromDoc(doc)
	return nil
}

// UnmarshalYAML accepts the same shapes as UnmarshalJSON in seed files.
func (q *Question) UnmarshalYAML(node *yaml.Node) error {
	var doc questionDoc
	if err := node.Decode(&doc); err != nil {
		return err
	}
	q.fromDoc(doc)
	return nil
}

func (q *Question) fromDoc(doc questionDoc) {
	*q = Question{Prompt: doc.Prompt, Options: texts(doc.Options), CorrectAnswer: string(doc.CorrectAnswer)}
	if len(doc.Questions) > 0 {
		inner := doc.Questions[0]
		if inner.Prompt != "" {
			q.Prompt = inner.Prompt
		}
		if len(inner.Options) > 0 {
			q.Options = texts(inner.Options)
		}
		if inner.CorrectAnswer != "" {
			q.CorrectAnswer = string(inner.CorrectAnswer)
		}
	}
}

// Category groups a question bank with optional sizing hints.
type Category struct {
	ID               string     `json:"-" yaml:"id"`
	Name             string     `json:"name" yaml:"name"`
	Tests            []Question `json:"tests" yaml:"tests"`
	QuestionsPerTest Number     `json:"questionsPerTest,omitempty" yaml:"questionsPerTest,omitempty"`
	MaxQuestions     Number     `json:"maxQuestions,omitempty" yaml:"maxQuestions,omitempty"`
	PassingScore     Number     `json:"passingScore,omitempty" yaml:"passingScore,omitempty"`
	TimeLimitSeconds Number     `json:"timeLimitSeconds,omitempty" yaml:"timeLimitSeconds,omitempty"`
}

// CategorySummary is what the category picker needs.
type CategorySummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Registration is the identifying input collected before a test.
type Registration struct {
	FirstName        string `json:"firstName" validate:"required"`
	LastName         string `json:"lastName" validate:"required"`
	SelectedCategory string `json:"selectedCategory" validate:"required"`
}

// User mirrors a document in the users collection.
type User struct {
	ID               string         `json:"-"`
	FirstName        string         `json:"firstName"`
	LastName         string         `json:"lastName"`
	SelectedCategory string         `json:"selectedCategory"`
	Correct          int            `json:"correct"`
	Incorrect        int            `json:"incorrect"`
	Passed           *bool          `json:"passed,omitempty"`
	Answers          map[int]string `json:"answers,omitempty"`
	LastTestAt       string         `json:"lastTestAt,omitempty"`
	Category         string         `json:"category,omitempty"`
}

// Result is the outcome of a finished attempt.
type Result struct {
	Correct      int  `json:"correct"`
	Incorrect    int  `json:"incorrect"`
	Passed       bool `json:"passed"`
	Total        int  `json:"total"`
	PassingScore int  `json:"passingScore"`
}

// QuestionView hides the correct answer from clients.
type QuestionView struct {
	Index   int      `json:"index"`
	Prompt  string   `json:"question"`
	Options []string `json:"options"`
}

// AttemptView is a client-safe snapshot of a running or finished attempt.
type AttemptView struct {
	UserID       string         `json:"userId"`
	FirstName    string         `json:"firstName"`
	LastName     string         `json:"lastName"`
	CategoryID   string         `json:"categoryId"`
	CategoryName string         `json:"categoryName"`
	Questions    []QuestionView `json:"questions"`
	Answers      map[int]string `json:"answers"`
	Current      int            `json:"current"`
	PassingScore int            `json:"passingScore"`
	TimeLeft     int            `json:"timeLeft"`
	Deadline     time.Time      `json:"deadline"`
	Result       *Result        `json:"result,omitempty"`
}

// Event types pushed to attempt subscribers.
const (
	EventState  = "state"
	EventTick   = "tick"
	EventResult = "result"
)

// AttemptEvent is a change notification for live clients.
type AttemptEvent struct {
	Type     string       `json:"type"`
	TimeLeft int          `json:"timeLeft"`
	View     *AttemptView `json:"view,omitempty"`
	Result   *Result      `json:"result,omitempty"`
}

package domain

import "errors"

var (
	// ErrDocumentNotFound is returned by document stores for unknown ids.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrCategoryNotFound indicates the selected category does not exist.
	ErrCategoryNotFound = errors.New("category not found")
	// ErrUserNotFound indicates the user document does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidRegistration is returned when a name or category is missing.
	ErrInvalidRegistration = errors.New("first name, last name and category are required")
	// ErrNoQuestions means the category bank is empty.
	ErrNoQuestions = errors.New("no questions available for this category")
	// ErrAttemptNotFound is returned when no attempt was started for the user.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrAttemptFinished is returned when acting on a submitted attempt.
	ErrAttemptFinished = errors.New("attempt already finished")
	// ErrQuestionOutOfRange indicates an invalid question index.
	ErrQuestionOutOfRange = errors.New("question index out of range")
	// ErrUnauthorized is returned when the attempt token is missing or does not match.
	ErrUnauthorized = errors.New("unauthorized")
)

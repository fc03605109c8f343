package domain

import "errors"

var (
	// ErrQuizNotFound indicates the quiz is missing, inactive, or not public.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a question ID does not belong to the attempt's quiz.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrAttemptNotFound indicates the referenced attempt does not exist.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrAttemptExists is returned when the (student, quiz) pair already has an attempt.
	ErrAttemptExists = errors.New("attempt already exists for this quiz")
	// ErrAttemptCompleted is returned when an operation targets a sealed attempt.
	ErrAttemptCompleted = errors.New("attempt already completed")
	// ErrAlreadyAnswered is returned on a second answer for the same question.
	ErrAlreadyAnswered = errors.New("question already answered")
	// ErrNotAttemptOwner is returned when the caller does not own the attempt.
	ErrNotAttemptOwner = errors.New("attempt belongs to another student")
	// ErrInvalidQuestionConfig indicates scoring cannot determine correctness
	// from the question's stored data.
	ErrInvalidQuestionConfig = errors.New("invalid question configuration")
)

// IsNotFound reports whether err maps to the NotFound taxonomy class.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrQuizNotFound) ||
		errors.Is(err, ErrQuestionNotFound) ||
		errors.Is(err, ErrAttemptNotFound)
}

// IsConflict reports whether err maps to the Conflict taxonomy class.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAttemptExists) ||
		errors.Is(err, ErrAttemptCompleted) ||
		errors.Is(err, ErrAlreadyAnswered)
}

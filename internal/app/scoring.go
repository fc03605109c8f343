package app

import "eduquiz-service/internal/domain"

// pointsPerQuestion is the effective business rule: every question awards a
// single point regardless of the Points field stored in the catalog.
const pointsPerQuestion = 1

// scoreQuestion validates a selection against the question's answer key and
// returns (correct, pointsAwarded).
func scoreQuestion(q domain.Question, optionID string) (bool, int, error) {
	switch q.Type {
	case domain.QuestionSingleChoice:
		correctOpt, ok := q.CorrectOption()
		if !ok {
			// A single-choice question with no answer key marks every
			// selection incorrect rather than failing the submission.
			return false, 0, nil
		}
		if optionID == correctOpt.ID {
			return true, pointsPerQuestion, nil
		}
		return false, 0, nil
	case domain.QuestionTrueFalse:
		// True/false correctness must come from explicit option data; a
		// missing answer key is a configuration error, never "always correct".
		correctOpt, ok := q.CorrectOption()
		if !ok {
			return false, 0, domain.ErrInvalidQuestionConfig
		}
		if optionID == correctOpt.ID {
			return true, pointsPerQuestion, nil
		}
		return false, 0, nil
	default:
		return false, 0, domain.ErrInvalidQuestionConfig
	}
}

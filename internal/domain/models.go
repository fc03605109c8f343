package domain

import (
	"sort"
	"time"
)

// QuestionType is a closed set; scoring rejects anything outside it.
type QuestionType string

const (
	QuestionSingleChoice QuestionType = "single_choice"
	QuestionTrueFalse    QuestionType = "true_false"
)

// Option represents a possible answer for a question.
type Option struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	Correct    bool   `json:"correct"`
	OrderIndex int    `json:"orderIndex"`
}

// Question models a catalog question with its ordered options.
type Question struct {
	ID         string       `json:"id"`
	QuizID     string       `json:"quizId"`
	Text       string       `json:"text"`
	Type       QuestionType `json:"type"`
	Points     int          `json:"points"` // stored but not honored by scoring; every question awards 1
	OrderIndex int          `json:"orderIndex"`
	Active     bool         `json:"active"`
	Options    []Option     `json:"options"`
}

// CorrectOption returns the option flagged correct, if any.
func (q Question) CorrectOption() (Option, bool) {
	for _, opt := range q.Options {
		if opt.Correct {
			return opt, true
		}
	}
	return Option{}, false
}

// Quiz is the read-only catalog view of a quiz and its questions.
type Quiz struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	CategoryID  string     `json:"categoryId"`
	Active      bool       `json:"active"`
	Public      bool       `json:"public"`
	MaxAttempts int        `json:"maxAttempts"`
	Questions   []Question `json:"questions"`
}

// ActiveQuestions returns the quiz's active questions ordered by index ascending.
func (qz Quiz) ActiveQuestions() []Question {
	questions := make([]Question, 0, len(qz.Questions))
	for _, q := range qz.Questions {
		if q.Active {
			questions = append(questions, q)
		}
	}
	sort.SliceStable(questions, func(i, j int) bool {
		return questions[i].OrderIndex < questions[j].OrderIndex
	})
	return questions
}

// Attempt is one student's single run through one quiz. At most one may
// exist per (student, quiz); the stores enforce that on create.
type Attempt struct {
	ID             string     `json:"id"`
	StudentID      string     `json:"studentId"`
	QuizID         string     `json:"quizId"`
	StartedAt      time.Time  `json:"startedAt"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	Score          int        `json:"score"`
	MaxScore       int        `json:"maxScore"`
	ElapsedSeconds int        `json:"elapsedSeconds"`
	Completed      bool       `json:"completed"`
}

// Percent returns the attempt's score as a percentage of its max score.
func (a Attempt) Percent() float64 {
	if a.MaxScore <= 0 {
		return 0
	}
	return float64(a.Score) / float64(a.MaxScore) * 100
}

// Answer records one submission for one question of an attempt. A second
// answer for the same (attempt, question) pair is a conflict, never an update.
type Answer struct {
	ID         string    `json:"id"`
	AttemptID  string    `json:"attemptId"`
	QuestionID string    `json:"questionId"`
	OptionID   string    `json:"optionId,omitempty"`
	Text       string    `json:"text,omitempty"`
	Correct    bool      `json:"correct"`
	Points     int       `json:"points"`
	AnsweredAt time.Time `json:"answeredAt"`
}

// AnswerSubmission models one submitted answer for one question.
type AnswerSubmission struct {
	QuestionID string `json:"questionId"`
	OptionID   string `json:"optionId,omitempty"`
	Text       string `json:"text,omitempty"`
}

// RankingEntry is the per-student-per-category aggregate derived from
// completed attempts. It is a materialized view, not a source of truth.
type RankingEntry struct {
	StudentID      string    `json:"studentId"`
	StudentName    string    `json:"studentName"`
	CategoryID     string    `json:"categoryId"`
	TotalScore     int       `json:"totalScore"`
	AttemptCount   int       `json:"attemptCount"`
	AveragePercent float64   `json:"averagePercent"`
	Rank           int       `json:"rank"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// RankedList is an ordered snapshot of one category's ranking table.
type RankedList struct {
	CategoryID string         `json:"categoryId"`
	Entries    []RankingEntry `json:"entries"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// RankEntries orders entries descending by (total score, average percentage)
// and assigns dense 1..N ranks. Remaining ties break on student ID so the
// ordering is deterministic across recomputes. Stores call this inside their
// atomic category rewrite.
func RankEntries(entries []RankingEntry) []RankingEntry {
	ranked := make([]RankingEntry, len(entries))
	copy(ranked, entries)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].TotalScore != ranked[j].TotalScore {
			return ranked[i].TotalScore > ranked[j].TotalScore
		}
		if ranked[i].AveragePercent != ranked[j].AveragePercent {
			return ranked[i].AveragePercent > ranked[j].AveragePercent
		}
		return ranked[i].StudentID < ranked[j].StudentID
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

// PerformanceReport is the append-only summary written once per completed attempt.
type PerformanceReport struct {
	ID             string    `json:"id"`
	StudentID      string    `json:"studentId"`
	QuizID         string    `json:"quizId"`
	AttemptID      string    `json:"attemptId"`
	TotalQuestions int       `json:"totalQuestions"`
	CorrectCount   int       `json:"correctCount"`
	IncorrectCount int       `json:"incorrectCount"`
	Percent        float64   `json:"percent"`
	ElapsedSeconds int       `json:"elapsedSeconds"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Progress is the read-only snapshot of how far an attempt has come.
type Progress struct {
	QuestionIndex  int     `json:"questionIndex"`
	TotalQuestions int     `json:"totalQuestions"`
	PercentDone    float64 `json:"percentDone"`
	CurrentScore   int     `json:"currentScore"`
	ElapsedSeconds int     `json:"elapsedSeconds"`
}

// OptionView is an option as shown to a student (no correctness flag).
type OptionView struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	OrderIndex int    `json:"orderIndex"`
}

// QuestionView is a question as shown to a student mid-attempt.
type QuestionView struct {
	ID         string       `json:"id"`
	Text       string       `json:"text"`
	Type       QuestionType `json:"type"`
	OrderIndex int          `json:"orderIndex"`
	Options    []OptionView `json:"options"`
}

// View strips answer keys so a question can be served to a student.
func (q Question) View() QuestionView {
	options := make([]OptionView, 0, len(q.Options))
	for _, opt := range q.Options {
		options = append(options, OptionView{ID: opt.ID, Text: opt.Text, OrderIndex: opt.OrderIndex})
	}
	return QuestionView{
		ID:         q.ID,
		Text:       q.Text,
		Type:       q.Type,
		OrderIndex: q.OrderIndex,
		Options:    options,
	}
}

// AttemptStarted is returned by Start: the first question plus an initial snapshot.
type AttemptStarted struct {
	AttemptID     string       `json:"attemptId"`
	QuizID        string       `json:"quizId"`
	QuizTitle     string       `json:"quizTitle"`
	FirstQuestion QuestionView `json:"firstQuestion"`
	Progress      Progress     `json:"progress"`
}

// Result is the sealed outcome of a completed attempt.
type Result struct {
	AttemptID      string    `json:"attemptId"`
	QuizID         string    `json:"quizId"`
	Score          int       `json:"score"`
	MaxScore       int       `json:"maxScore"`
	Percent        float64   `json:"percent"`
	TotalQuestions int       `json:"totalQuestions"`
	CorrectCount   int       `json:"correctCount"`
	IncorrectCount int       `json:"incorrectCount"`
	ElapsedSeconds int       `json:"elapsedSeconds"`
	CompletedAt    time.Time `json:"completedAt"`
}

// AnswerOutcome is returned by SubmitAnswer: either the next question or,
// when the answered question was the last one, the final result.
type AnswerOutcome struct {
	QuestionID        string        `json:"questionId"`
	Correct           bool          `json:"correct"`
	PointsAwarded     int           `json:"pointsAwarded"`
	CorrectOptionID   string        `json:"correctOptionId,omitempty"`
	CorrectOptionText string        `json:"correctOptionText,omitempty"`
	Completed         bool          `json:"completed"`
	NextQuestion      *QuestionView `json:"nextQuestion,omitempty"`
	FinalResult       *Result       `json:"finalResult,omitempty"`
}

// AnswerReview is the per-question breakdown of a whole-quiz submission.
type AnswerReview struct {
	QuestionID        string `json:"questionId"`
	SelectedOptionID  string `json:"selectedOptionId,omitempty"`
	SelectedText      string `json:"selectedText,omitempty"`
	CorrectOptionID   string `json:"correctOptionId,omitempty"`
	CorrectOptionText string `json:"correctOptionText,omitempty"`
	Correct           bool   `json:"correct"`
	PointsAwarded     int    `json:"pointsAwarded"`
}

// QuizResult is the consolidated outcome of the whole-quiz submission path.
type QuizResult struct {
	Result
	Reviews []AnswerReview `json:"reviews"`
}

// QuizStatus is the per-student availability view of a catalog quiz.
type QuizStatus struct {
	QuizID            string `json:"quizId"`
	Title             string `json:"title"`
	CategoryID        string `json:"categoryId"`
	TotalQuestions    int    `json:"totalQuestions"`
	MaxScore          int    `json:"maxScore"`
	Completed         bool   `json:"completed"`
	Available         bool   `json:"available"`
	AttemptsRemaining int    `json:"attemptsRemaining"`
}

// RecentQuiz is a dashboard line for a recently completed attempt.
type RecentQuiz struct {
	QuizID      string    `json:"quizId"`
	Title       string    `json:"title"`
	CategoryID  string    `json:"categoryId"`
	Percent     float64   `json:"percent"`
	CompletedAt time.Time `json:"completedAt"`
}

// Dashboard aggregates a student's standing across all categories.
type Dashboard struct {
	CompletedQuizzes int          `json:"completedQuizzes"`
	AveragePercent   float64      `json:"averagePercent"`
	RankPosition     int          `json:"rankPosition"`
	TotalPoints      int          `json:"totalPoints"`
	StreakDays       int          `json:"streakDays"`
	RecentQuizzes    []RecentQuiz `json:"recentQuizzes"`
}

// PerformanceRecord is one line of a student's performance history.
type PerformanceRecord struct {
	QuizID         string    `json:"quizId"`
	QuizTitle      string    `json:"quizTitle"`
	CategoryID     string    `json:"categoryId"`
	Percent        float64   `json:"percent"`
	Score          int       `json:"score"`
	MaxScore       int       `json:"maxScore"`
	ElapsedSeconds int       `json:"elapsedSeconds"`
	CompletedAt    time.Time `json:"completedAt"`
}

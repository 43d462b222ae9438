package app

import (
	"encoding/json"
	"fmt"
	"math"

	"campus-sync-service/internal/domain"
)

// GradeAttempt derives an attempt score from choice matches over item count.
// Missing answers count as wrong. The result is always within [0,100].
func GradeAttempt(quiz domain.Quiz, answers []int) int {
	total := len(quiz.Items)
	if total == 0 {
		return 0
	}
	correct := 0
	for i, item := range quiz.Items {
		if i < len(answers) && answers[i] == item.CorrectIndex {
			correct++
		}
	}
	score := int(math.Round(float64(correct) * 100 / float64(total)))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// ParseQuizItems decodes author-supplied item JSON and validates it before
// any write is attempted. Malformed input is rejected locally.
func ParseQuizItems(raw []byte) ([]domain.QuizItem, error) {
	var items []domain.QuizItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidQuizFormat, err)
	}
	if err := ValidateQuizItems(items); err != nil {
		return nil, err
	}
	return items, nil
}

// ValidateQuizItems checks each item has a question, at least two choices,
// and a correct index within range.
func ValidateQuizItems(items []domain.QuizItem) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: no items", domain.ErrInvalidQuizFormat)
	}
	for i, item := range items {
		if item.QuestionText == "" {
			return fmt.Errorf("%w: item %d has no question", domain.ErrInvalidQuizFormat, i)
		}
		if len(item.Choices) < 2 {
			return fmt.Errorf("%w: item %d needs at least two choices", domain.ErrInvalidQuizFormat, i)
		}
		if item.CorrectIndex < 0 || item.CorrectIndex >= len(item.Choices) {
			return fmt.Errorf("%w: item %d correct index out of range", domain.ErrInvalidQuizFormat, i)
		}
	}
	return nil
}

package memory

import (
	"context"
	"testing"
	"time"

	"quizroom-service/internal/domain"
)

func TestQuestionCacheCaches(t *testing.T) {
	loader := &countingLoader{
		QuestionLoader: NewStaticQuestionLoader(map[string][]domain.Question{
			"quiz-1": sampleQuestions(),
		}),
	}
	cache := NewQuestionCache(loader, time.Minute)

	if _, err := cache.GetQuestion(context.Background(), "quiz-1", 0); err != nil {
		t.Fatalf("get question: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}

	if _, err := cache.GetQuestion(context.Background(), "quiz-1", 1); err != nil {
		t.Fatalf("get question 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}
}

func TestQuestionCacheOrdinalOutOfRange(t *testing.T) {
	cache := NewQuestionCache(NewStaticQuestionLoader(map[string][]domain.Question{
		"quiz-1": sampleQuestions(),
	}), time.Minute)

	if _, err := cache.GetQuestion(context.Background(), "quiz-1", 99); err != domain.ErrQuestionNotFound {
		t.Fatalf("expected question not found, got %v", err)
	}
	if _, err := cache.GetQuestion(context.Background(), "quiz-1", -1); err != domain.ErrQuestionNotFound {
		t.Fatalf("expected question not found for negative ordinal, got %v", err)
	}
}

func TestQuestionCacheGapInOrdinals(t *testing.T) {
	// An authoring deletion can leave gaps in the ordinal sequence; resolution
	// must go by ordinal, not by slice position.
	cache := NewQuestionCache(NewStaticQuestionLoader(map[string][]domain.Question{
		"quiz-1": {
			{Ordinal: 0, CorrectOption: "A", Points: 1},
			{Ordinal: 2, CorrectOption: "C", Points: 3},
		},
	}), time.Minute)

	q, err := cache.GetQuestion(context.Background(), "quiz-1", 2)
	if err != nil {
		t.Fatalf("get question past gap: %v", err)
	}
	if q.Ordinal != 2 || q.CorrectOption != "C" {
		t.Fatalf("expected ordinal 2 with option C, got %+v", q)
	}

	if _, err := cache.GetQuestion(context.Background(), "quiz-1", 1); err != domain.ErrQuestionNotFound {
		t.Fatalf("expected question not found at gap, got %v", err)
	}
}

type countingLoader struct {
	QuestionLoader
	calls int
}

func (l *countingLoader) LoadQuestions(ctx context.Context, quizID string) ([]domain.Question, error) {
	l.calls++
	return l.QuestionLoader.LoadQuestions(ctx, quizID)
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{Ordinal: 0, Prompt: "What is 2 + 2?", Options: []string{"3", "4"}, CorrectOption: "4", Points: 1},
		{Ordinal: 1, Prompt: "Pick B", Options: []string{"A", "B"}, CorrectOption: "B", Points: 2},
	}
}

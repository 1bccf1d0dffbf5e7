package redis

import (
	"context"
	"math/rand"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quizroom-service/internal/domain"
)

// QuestionLoader fetches the question set for a quiz from a backing store.
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, quizID string) ([]domain.Question, error)
}

// QuestionCache caches correct options in Redis (hash per quiz, keyed by
// ordinal) and falls back to a loader on cache miss.
// Answers are stored as: HSET quiz:{quizID}:answers {ordinal} {correctOption}
// Points are stored as:  HSET quiz:{quizID}:points  {ordinal} {points}
type QuestionCache struct {
	client *redis.Client
	loader QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuestionCache(client *redis.Client, loader QuestionLoader, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// GetQuestion resolves a question by ordinal. Only the correctness data is
// cached; prompts and option texts live with the quiz authoring side and are
// not needed for scoring. Ordinals need not be contiguous, so the match is on
// the Ordinal field rather than slice position.
func (c *QuestionCache) GetQuestion(ctx context.Context, quizID string, ordinal int) (domain.Question, error) {
	questions, err := c.getQuestions(ctx, quizID)
	if err != nil {
		return domain.Question{}, err
	}
	for _, q := range questions {
		if q.Ordinal == ordinal {
			return q, nil
		}
	}
	return domain.Question{}, domain.ErrQuestionNotFound
}

func (c *QuestionCache) getQuestions(ctx context.Context, quizID string) ([]domain.Question, error) {
	answerKey := c.answersKey(quizID)
	pointKey := c.pointsKey(quizID)

	answers, err := c.client.HGetAll(ctx, answerKey).Result()
	if err == nil && len(answers) > 0 {
		pointsMap, _ := c.client.HGetAll(ctx, pointKey).Result()
		return questionsFromCache(answers, pointsMap), nil
	}

	result, err, _ := c.sf.Do(quizID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		answers, err := c.client.HGetAll(ctx, answerKey).Result()
		if err == nil && len(answers) > 0 {
			pointsMap, _ := c.client.HGetAll(ctx, pointKey).Result()
			return questionsFromCache(answers, pointsMap), nil
		}

		questions, err := c.loader.LoadQuestions(ctx, quizID)
		if err != nil {
			return nil, err
		}

		ttl := c.ttlWithJitter()
		pipe := c.client.Pipeline()
		for _, q := range questions {
			points := q.Points
			if points == 0 {
				points = 1
			}
			field := strconv.Itoa(q.Ordinal)
			pipe.HSet(ctx, answerKey, field, q.CorrectOption)
			pipe.HSet(ctx, pointKey, field, points)
		}
		if ttl > 0 {
			pipe.Expire(ctx, answerKey, ttl)
			pipe.Expire(ctx, pointKey, ttl)
		}
		_, _ = pipe.Exec(ctx)

		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (c *QuestionCache) answersKey(quizID string) string {
	return "quiz:" + quizID + ":answers"
}

func (c *QuestionCache) pointsKey(quizID string) string {
	return "quiz:" + quizID + ":points"
}

// questionsFromCache rebuilds the question set from the redis hashes. Only
// fields actually present in the hash become questions; a missing ordinal
// must stay missing so it resolves to not-found rather than a zero-valued
// question.
func questionsFromCache(answers map[string]string, pointsMap map[string]string) []domain.Question {
	questions := make([]domain.Question, 0, len(answers))
	for field, option := range answers {
		ordinal, err := strconv.Atoi(field)
		if err != nil || ordinal < 0 {
			continue
		}
		points := 1
		if pStr, ok := pointsMap[field]; ok {
			if p, err := strconv.Atoi(pStr); err == nil && p > 0 {
				points = p
			}
		}
		questions = append(questions, domain.Question{
			Ordinal:       ordinal,
			CorrectOption: option,
			Points:        points,
		})
	}
	sort.Slice(questions, func(i, j int) bool { return questions[i].Ordinal < questions[j].Ordinal })
	return questions
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

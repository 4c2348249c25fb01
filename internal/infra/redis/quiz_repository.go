package redis

import (
	"context"
	"math/rand"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quiz-room-service/internal/domain"
)

// QuizLoader fetches quiz content from a backing store (e.g., Postgres).
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizRepository caches the scoring/timing view of a quiz in Redis and
// falls back to a loader on cache miss. Layout, one hash per concern:
//
//	HSET quiz:{quizID}:answers {questionID} {correctOptionID}
//	HSET quiz:{quizID}:points  {questionID} {points}
//	HSET quiz:{quizID}:seconds {questionID} {seconds}
//	RPUSH quiz:{quizID}:order  {questionID}...
//
// The order list preserves question sequence, which the room engine
// depends on for index-based answering.
type QuizRepository struct {
	client *redis.Client
	loader QuizLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuizRepository(client *redis.Client, loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := r.fromCache(ctx, quizID); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(quizID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if quiz, ok := r.fromCache(ctx, quizID); ok {
			return quiz, nil
		}

		quiz, err := r.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}

		ttl := r.ttlWithJitter()
		pipe := r.client.Pipeline()
		for _, q := range quiz.Questions {
			points := q.Points
			if points == 0 {
				points = 1
			}
			pipe.RPush(ctx, r.orderKey(quizID), q.ID)
			pipe.HSet(ctx, r.answersKey(quizID), q.ID, q.CorrectOption())
			pipe.HSet(ctx, r.pointsKey(quizID), q.ID, points)
			pipe.HSet(ctx, r.secondsKey(quizID), q.ID, q.Seconds)
		}
		if ttl > 0 {
			for _, key := range r.keys(quizID) {
				pipe.Expire(ctx, key, ttl)
			}
		}
		_, _ = pipe.Exec(ctx)

		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (r *QuizRepository) fromCache(ctx context.Context, quizID string) (domain.Quiz, bool) {
	order, err := r.client.LRange(ctx, r.orderKey(quizID), 0, -1).Result()
	if err != nil || len(order) == 0 {
		return domain.Quiz{}, false
	}
	answers, err := r.client.HGetAll(ctx, r.answersKey(quizID)).Result()
	if err != nil || len(answers) == 0 {
		return domain.Quiz{}, false
	}
	points, _ := r.client.HGetAll(ctx, r.pointsKey(quizID)).Result()
	seconds, _ := r.client.HGetAll(ctx, r.secondsKey(quizID)).Result()
	return buildQuizFromCache(quizID, order, answers, points, seconds), true
}

func (r *QuizRepository) keys(quizID string) []string {
	return []string{r.orderKey(quizID), r.answersKey(quizID), r.pointsKey(quizID), r.secondsKey(quizID)}
}

func (r *QuizRepository) orderKey(quizID string) string   { return "quiz:" + quizID + ":order" }
func (r *QuizRepository) answersKey(quizID string) string { return "quiz:" + quizID + ":answers" }
func (r *QuizRepository) pointsKey(quizID string) string  { return "quiz:" + quizID + ":points" }
func (r *QuizRepository) secondsKey(quizID string) string { return "quiz:" + quizID + ":seconds" }

// buildQuizFromCache reconstructs the lightweight scoring view: each
// question keeps only its correct option. Prompts and distractors are
// presentation data the engine never needs.
func buildQuizFromCache(quizID string, order []string, answers, points, seconds map[string]string) domain.Quiz {
	questions := make([]domain.Question, 0, len(order))
	for _, questionID := range order {
		optionID, ok := answers[questionID]
		if !ok {
			continue
		}
		questions = append(questions, domain.Question{
			ID:      questionID,
			Options: []domain.Option{{ID: optionID, Correct: true}},
			Points:  atoiDefault(points[questionID], 1),
			Seconds: atoiDefault(seconds[questionID], 0),
		})
	}
	return domain.Quiz{ID: quizID, Questions: questions}
}

func atoiDefault(raw string, fallback int) int {
	if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
		return n
	}
	return fallback
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

package player

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Ricardolombre/acdn-elearning/internal/domain"
	"github.com/Ricardolombre/acdn-elearning/internal/errors"
	"github.com/Ricardolombre/acdn-elearning/internal/scoring"
)

const (
	defaultSessionTTL    = 24 * time.Hour
	defaultSubmitLockTTL = 30 * time.Second
)

var (
	refreshLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

type QuizLoader interface {
	LoadQuizForLesson(ctx context.Context, lessonID string) (*domain.Definition, error)
	LatestResult(ctx context.Context, quizID, userID string) (*domain.Result, error)
}

type Scorer interface {
	Submit(ctx context.Context, req scoring.SubmitRequest) (*scoring.SubmitResponse, error)
}

type Config struct {
	Quizzes       QuizLoader
	Scoring       Scorer
	Redis         redis.UniversalClient
	Prefix        string
	SessionTTL    time.Duration
	SubmitLockTTL time.Duration
	Policy        ResumePolicy
	Now           func() time.Time
}

// Service keeps one player per learner and quiz in Redis so any API instance can serve the next step.
type Service struct {
	quizzes       QuizLoader
	scoring       Scorer
	redis         redis.UniversalClient
	prefix        string
	sessionTTL    time.Duration
	submitLockTTL time.Duration
	policy        ResumePolicy
	now           func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		quizzes:       c.Quizzes,
		scoring:       c.Scoring,
		redis:         c.Redis,
		prefix:        c.Prefix,
		sessionTTL:    c.SessionTTL,
		submitLockTTL: c.SubmitLockTTL,
		policy:        c.Policy,
		now:           c.Now,
	}

	if s.sessionTTL <= 0 {
		s.sessionTTL = defaultSessionTTL
	}
	if s.submitLockTTL <= 0 {
		s.submitLockTTL = defaultSubmitLockTTL
	}
	if !s.policy.Valid() {
		s.policy = ResumeOnAnyResult
	}
	if s.now == nil {
		s.now = time.Now
	}

	return s
}

type Response struct {
	View View
	// Graded is set when the call submitted the attempt.
	Graded *scoring.SubmitResponse
}

type StartRequest struct {
	UserID   string
	LessonID string
}

// Start opens the quiz of a lesson for a learner, resuming the stored attempt when there is one.
func (s *Service) Start(ctx context.Context, req StartRequest) (*Response, error) {
	def, err := s.quizzes.LoadQuizForLesson(ctx, req.LessonID)
	if err != nil {
		return nil, err
	}
	if def == nil {
		return nil, errors.NotFound("lesson %q has no quiz", req.LessonID)
	}

	key := s.sessionKey(req.UserID, def.Quiz.QuizID)
	stored, err := s.load(ctx, s.redis, key)
	if err != nil && !errors.HasCode(err, errors.CodeNotFound) {
		return nil, err
	}
	if stored != nil && sameQuestions(stored.Definition(), *def) {
		return &Response{View: stored.View()}, nil
	}

	prior, err := s.quizzes.LatestResult(ctx, def.Quiz.QuizID, req.UserID)
	if err != nil {
		return nil, err
	}

	p := New(*def, prior, s.policy)
	if err := s.save(ctx, s.redis, key, p); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "player: quiz started",
		"quiz_id", def.Quiz.QuizID,
		"user_id", req.UserID,
		"state", p.State(),
	)

	return &Response{View: p.View()}, nil
}

type SessionRequest struct {
	UserID string
	QuizID string
}

// Get returns the stored attempt without changing it.
func (s *Service) Get(ctx context.Context, req SessionRequest) (*Response, error) {
	p, err := s.load(ctx, s.redis, s.sessionKey(req.UserID, req.QuizID))
	if err != nil {
		return nil, err
	}
	return &Response{View: p.View()}, nil
}

type SelectRequest struct {
	UserID     string
	QuizID     string
	QuestionID string
	OptionID   string
}

func (s *Service) Select(ctx context.Context, req SelectRequest) (*Response, error) {
	p, err := s.update(ctx, req.UserID, req.QuizID, func(p *Player) error {
		return p.Select(req.QuestionID, req.OptionID)
	})
	if err != nil {
		return nil, err
	}
	return &Response{View: p.View()}, nil
}

// Next moves to the next question. On the last answered question it submits the attempt.
func (s *Service) Next(ctx context.Context, req SessionRequest) (*Response, error) {
	p, err := s.update(ctx, req.UserID, req.QuizID, (*Player).Next)
	if stderrors.Is(err, ErrSubmitRequired) {
		return s.Submit(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	return &Response{View: p.View()}, nil
}

func (s *Service) Previous(ctx context.Context, req SessionRequest) (*Response, error) {
	p, err := s.update(ctx, req.UserID, req.QuizID, (*Player).Previous)
	if err != nil {
		return nil, err
	}
	return &Response{View: p.View()}, nil
}

func (s *Service) Retake(ctx context.Context, req SessionRequest) (*Response, error) {
	p, err := s.update(ctx, req.UserID, req.QuizID, (*Player).Retake)
	if err != nil {
		return nil, err
	}
	return &Response{View: p.View()}, nil
}

// Submit grades and stores the attempt. Only one submission per learner and quiz runs at a time; a concurrent
// one is refused as busy. When the result cannot be stored the attempt goes back to in progress with its
// selections and the storage error is returned.
//
// The attempt is graded against the quiz as currently saved. An attempt started on a quiz that was saved again
// or deleted since is dropped and the learner has to start over.
func (s *Service) Submit(ctx context.Context, req SessionRequest) (*Response, error) {
	release, err := s.acquireLock(ctx, s.lockKey(req.UserID, req.QuizID))
	if err != nil {
		return nil, err
	}
	defer release()

	def, err := s.currentDefinition(ctx, req)
	if err != nil {
		return nil, err
	}

	var submissions []domain.Submission
	p, err := s.update(ctx, req.UserID, req.QuizID, func(p *Player) error {
		var err error
		submissions, err = p.BeginSubmit()
		return err
	})
	if err != nil {
		return nil, err
	}

	graded, err := s.scoring.Submit(ctx, scoring.SubmitRequest{
		Definition:  *def,
		UserID:      req.UserID,
		Submissions: submissions,
		SubmitTime:  s.now(),
	})
	if err != nil {
		if _, ferr := s.update(ctx, req.UserID, req.QuizID, (*Player).FailSubmit); ferr != nil {
			return nil, stderrors.Join(err, ferr)
		}
		return nil, err
	}

	p, err = s.update(ctx, req.UserID, req.QuizID, func(p *Player) error {
		return p.CompleteSubmit(graded.Result)
	})
	if err != nil {
		return nil, err
	}

	return &Response{View: p.View(), Graded: graded}, nil
}

// currentDefinition loads the saved quiz of a stored attempt. A stale attempt is deleted.
func (s *Service) currentDefinition(ctx context.Context, req SessionRequest) (*domain.Definition, error) {
	key := s.sessionKey(req.UserID, req.QuizID)
	p, err := s.load(ctx, s.redis, key)
	if err != nil {
		return nil, err
	}

	def, err := s.quizzes.LoadQuizForLesson(ctx, p.Definition().Quiz.LessonID)
	if err != nil {
		return nil, err
	}
	if def != nil && def.Quiz.QuizID == req.QuizID && sameQuestions(p.Definition(), *def) {
		return def, nil
	}

	if err := s.redis.Del(ctx, key).Err(); err != nil {
		return nil, errors.Storage("drop stale player session", err)
	}

	slog.InfoContext(ctx, "player: stale attempt dropped",
		"quiz_id", req.QuizID,
		"user_id", req.UserID,
	)

	return nil, errors.New(errors.CodeFailedPrecondition,
		errors.WithMessagef("the quiz changed since the attempt started, start it again"))
}

// acquireLock takes the submit lock and keeps it alive until release is called, so a slow submission never
// looks abandoned to update.
func (s *Service) acquireLock(ctx context.Context, key string) (release func(), err error) {
	token := uuid.NewString()
	ok, err := s.redis.SetNX(ctx, key, token, s.submitLockTTL).Result()
	if err != nil {
		return nil, errors.Storage("acquire submit lock", err)
	}
	if !ok {
		return nil, busy()
	}

	var (
		done = make(chan struct{})
		wg   sync.WaitGroup
	)

	wg.Add(1)
	go func() {
		defer wg.Done()

		t := time.NewTicker(max(s.submitLockTTL/3, time.Millisecond))
		defer t.Stop()

		for {
			select {
			case <-done:
				return
			case <-t.C:
				err := refreshLock.Run(ctx, s.redis, []string{key}, token, s.submitLockTTL.Milliseconds()).Err()
				if err != nil {
					slog.ErrorContext(ctx, "player: refresh submit lock failed", "key", key, "error", err)
				}
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()

		if err := releaseLock.Run(context.WithoutCancel(ctx), s.redis, []string{key}, token).Err(); err != nil {
			slog.ErrorContext(ctx, "player: release submit lock failed", "key", key, "error", err)
		}
	}, nil
}

// update runs a transition on the stored player and saves it. The key is watched so two concurrent transitions
// on the same attempt cannot both be saved.
func (s *Service) update(ctx context.Context, userID, quizID string, fn func(p *Player) error) (*Player, error) {
	key := s.sessionKey(userID, quizID)

	var p *Player
	err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
		var err error
		if p, err = s.load(ctx, tx, key); err != nil {
			return err
		}

		if p.Busy() {
			n, err := tx.Exists(ctx, s.lockKey(userID, quizID)).Result()
			if err != nil {
				return errors.Storage("check submit lock", err)
			}
			// The submission that set this state is gone without completing.
			if n == 0 {
				_ = p.FailSubmit()
			}
		}

		if err := fn(p); err != nil {
			return err
		}

		b, err := json.Marshal(p)
		if err != nil {
			return errors.Internal(fmt.Errorf("encode player: %w", err))
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, b, s.sessionTTL)
			return nil
		})
		return err
	}, key)

	if stderrors.Is(err, redis.TxFailedErr) {
		return nil, busy()
	}
	if err != nil {
		return nil, asStorage("save player session", err)
	}

	return p, nil
}

func (s *Service) load(ctx context.Context, rc redis.Cmdable, key string) (*Player, error) {
	b, err := rc.Get(ctx, key).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, errors.NotFound("no attempt in progress, start the quiz first")
	}
	if err != nil {
		return nil, errors.Storage("load player session", err)
	}

	p := new(Player)
	if err := json.Unmarshal(b, p); err != nil {
		return nil, errors.Internal(fmt.Errorf("decode player session: %w", err))
	}
	return p, nil
}

func (s *Service) save(ctx context.Context, rc redis.Cmdable, key string, p *Player) error {
	b, err := json.Marshal(p)
	if err != nil {
		return errors.Internal(fmt.Errorf("encode player: %w", err))
	}

	if err := rc.Set(ctx, key, b, s.sessionTTL).Err(); err != nil {
		return errors.Storage("save player session", err)
	}
	return nil
}

func (s *Service) sessionKey(userID, quizID string) string {
	return fmt.Sprintf("%s:player:%s:%s", s.prefix, userID, quizID)
}

func (s *Service) lockKey(userID, quizID string) string {
	return fmt.Sprintf("%s:player:%s:%s:submit", s.prefix, userID, quizID)
}

func busy() error {
	return errors.New(errors.CodeAborted, errors.WithMessagef("busy: a submission is already in progress"))
}

func asStorage(op string, err error) error {
	var e *errors.Error
	if stderrors.As(err, &e) || stderrors.Is(err, ErrSubmitRequired) {
		return err
	}
	return errors.Storage(op, err)
}

// sameQuestions reports whether a stored attempt still matches the saved quiz. Saving a quiz replaces its
// question ids, which invalidates attempts started before.
func sameQuestions(a, b domain.Definition) bool {
	return slices.EqualFunc(a.Questions, b.Questions, func(x, y domain.Question) bool {
		return x.QuestionID == y.QuestionID
	})
}

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/Ricardolombre/acdn-elearning/internal/api"
	"github.com/Ricardolombre/acdn-elearning/internal/auth"
	"github.com/Ricardolombre/acdn-elearning/internal/authoring"
	"github.com/Ricardolombre/acdn-elearning/internal/event"
	"github.com/Ricardolombre/acdn-elearning/internal/player"
	"github.com/Ricardolombre/acdn-elearning/internal/progress"
	"github.com/Ricardolombre/acdn-elearning/internal/quiz"
	"github.com/Ricardolombre/acdn-elearning/internal/scoring"
	"github.com/Ricardolombre/acdn-elearning/internal/telemetry"
)

type Postgres struct {
	Addr string
	User string
	Pass string
	Name string
}

func (p Postgres) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s", p.User, p.Pass, p.Addr, p.Name)
}

type Redis struct {
	Addrs  []string
	Pass   string
	Prefix string
}

type Config struct {
	HTTP struct {
		Port int32
		CORS struct {
			AllowedOrigins []string
		}
	}

	GRPC struct {
		Port int32
	}

	Postgres Postgres

	Redis struct {
		Player Redis
		Pubsub Redis
	}

	Auth struct {
		Secret string
		Issuer string
		TTL    time.Duration
	}

	Player struct {
		SessionTTL    time.Duration
		SubmitLockTTL time.Duration
		ResumePolicy  string
	}

	Authoring struct {
		TrueLabel  string
		FalseLabel string
	}

	RateLimit struct {
		Requests int
		Window   time.Duration
	}
}

// DefaultConfig holds the values used for keys missing from the config file.
func DefaultConfig() Config {
	var c Config
	c.HTTP.Port = 8080
	c.HTTP.CORS.AllowedOrigins = []string{"http://localhost:3000"}
	c.GRPC.Port = 9090
	c.Redis.Player.Prefix = "elearning"
	c.Redis.Pubsub.Prefix = "elearning"
	c.Auth.Issuer = "acdn-elearning"
	c.Auth.TTL = 8 * time.Hour
	c.Player.SessionTTL = 24 * time.Hour
	c.Player.SubmitLockTTL = 30 * time.Second
	c.Player.ResumePolicy = string(player.ResumeOnAnyResult)
	c.Authoring.TrueLabel = authoring.DefaultTrueLabel
	c.Authoring.FalseLabel = authoring.DefaultFalseLabel
	c.RateLimit.Requests = 20
	c.RateLimit.Window = time.Second
	return c
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			player redis.UniversalClient
			pubsub redis.UniversalClient
		}

		postgres *pgxpool.Pool
	}

	service struct {
		quiz    *quiz.Repository
		scoring *scoring.Service
		player  *player.Service
		gate    *progress.Gate
		auth    *auth.JWT
	}

	http *http.Server
	grpc *grpc.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	db, err := ConnectPostgres(s.c.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	s.infra.postgres = db

	return nil
}

func (s *Server) initRedis() error {
	connect := func(name string, c Redis) (redis.UniversalClient, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    c.Addrs,
			Password: c.Pass,
		})

		if err := telemetry.MonitorRedis(r, name); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.player, err = connect("player", s.c.Redis.Player)
	if err != nil {
		return fmt.Errorf("player: %w", err)
	}

	s.infra.redis.pubsub, err = connect("pubsub", s.c.Redis.Pubsub)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	return nil
}

// ConnectPostgres opens a pool and checks the connection.
func ConnectPostgres(c Postgres) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cc, err := pgxpool.ParseConfig(c.DSN())
	if err != nil {
		return nil, err
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func (s *Server) initService() {
	s.service.quiz = quiz.NewRepository(quiz.Config{
		DB: s.infra.postgres,
	})

	s.service.scoring = scoring.NewService(scoring.Config{
		EventBus: s.eb,
		Results:  s.service.quiz,
	})

	s.service.player = player.NewService(player.Config{
		Quizzes:       s.service.quiz,
		Scoring:       s.service.scoring,
		Redis:         s.infra.redis.player,
		Prefix:        s.c.Redis.Player.Prefix,
		SessionTTL:    s.c.Player.SessionTTL,
		SubmitLockTTL: s.c.Player.SubmitLockTTL,
		Policy:        player.ResumePolicy(s.c.Player.ResumePolicy),
	})

	s.service.gate = progress.NewGate(progress.Config{
		Store:    progress.NewPostgresStore(s.infra.postgres),
		Quizzes:  s.service.quiz,
		EventBus: s.eb,
	})

	s.service.auth = auth.NewJWT(auth.Config{
		Secret: s.c.Auth.Secret,
		Issuer: s.c.Auth.Issuer,
		TTL:    s.c.Auth.TTL,
	})

	telemetry.NewMetrics(prometheus.DefaultRegisterer).Subscribe(s.eb)
}

func (s *Server) initAPI() {
	e := gin.New()
	e.Use(gin.Recovery())
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	e.GET("/healthz", s.healthz)
	pprof.Register(e, "/debug/pprof")

	s.grpc = grpc.NewServer(telemetry.GRPCServerInterceptor(telemetry.GRPCConfig{
		AuthFunc: s.service.auth.AuthFunc,
		Limiter:  telemetry.NewUserLimiter(s.c.RateLimit.Requests, s.c.RateLimit.Window),
	}))

	api.New(api.Config{
		GRPC:         s.grpc,
		EventBus:     s.eb,
		Auth:         s.service.auth,
		Quizzes:      s.service.quiz,
		Player:       s.service.player,
		Gate:         s.service.gate,
		Redis:        s.infra.redis.pubsub,
		PubsubPrefix: s.c.Redis.Pubsub.Prefix,
		Authoring: []authoring.Option{
			authoring.WithTrueFalseLabels(s.c.Authoring.TrueLabel, s.c.Authoring.FalseLabel),
		},
	})

	s.http = &http.Server{
		Addr: fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler: cors.Handler(cors.Options{
			AllowedOrigins: s.c.HTTP.CORS.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:         300,
		})(e),
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]error{
		"postgres":     s.infra.postgres.Ping(ctx),
		"redis_player": s.infra.redis.player.Ping(ctx).Err(),
		"redis_pubsub": s.infra.redis.pubsub.Ping(ctx).Err(),
	}

	status, body := http.StatusOK, gin.H{}
	for name, err := range checks {
		body[name] = "ok"
		if err != nil {
			status = http.StatusServiceUnavailable
			body[name] = err.Error()
		}
	}

	c.JSON(status, body)
}

func (s *Server) Start() {
	ctx := context.TODO()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		slog.ErrorContext(ctx, "grpc server: listen failed", "error", err)
		panic(err)
	}

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err = eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.eb.Stop()

	s.infra.postgres.Close()
	for _, r := range []redis.UniversalClient{s.infra.redis.player, s.infra.redis.pubsub} {
		if err := r.Close(); err != nil {
			slog.ErrorContext(ctx, "server: close redis failed", "error", err)
		}
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}

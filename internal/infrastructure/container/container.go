package container

import (
	"context"
	"fmt"

	"github.com/gdugdh24/pairprep-backend/internal/config"
	"github.com/gdugdh24/pairprep-backend/internal/delivery/http"
	"github.com/gdugdh24/pairprep-backend/internal/delivery/http/handler"
	"github.com/gdugdh24/pairprep-backend/internal/delivery/http/middleware"
	"github.com/gdugdh24/pairprep-backend/internal/infrastructure/collab"
	"github.com/gdugdh24/pairprep-backend/internal/infrastructure/database"
	"github.com/gdugdh24/pairprep-backend/internal/infrastructure/events"
	"github.com/gdugdh24/pairprep-backend/internal/infrastructure/server"
	"github.com/gdugdh24/pairprep-backend/internal/repository"
	"github.com/gdugdh24/pairprep-backend/internal/repository/memory"
	"github.com/gdugdh24/pairprep-backend/internal/repository/postgres"
	"github.com/gdugdh24/pairprep-backend/internal/usecase/auth"
	"github.com/gdugdh24/pairprep-backend/internal/usecase/matching"
	"github.com/gdugdh24/pairprep-backend/internal/usecase/matchmaking"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Container holds all application dependencies
type Container struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *sqlx.DB
	Redis  *redis.Client
	Events events.Publisher
	Server *server.Server
}

type stores struct {
	tickets   repository.TicketRepository
	pairs     repository.PairRepository
	pairing   repository.PairingRepository
	questions repository.QuestionRepository
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *config.Config, logger *zap.Logger) (_ *Container, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Container{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	st, err := c.initStorage()
	if err != nil {
		return nil, err
	}

	var redisClient redis.UniversalClient
	if cfg.RedisEnabled() {
		c.Redis, err = database.NewRedisClient(context.Background(), &cfg.Redis, logger.Named("redis"))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
		redisClient = c.Redis
	}

	c.Events, err = events.NewPublisher(&cfg.Events, redisClient, logger.Named("events"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize event publisher: %w", err)
	}

	var sessions matchmaking.SessionCreator
	if redisClient != nil {
		sessions = collab.NewRedisSessionCreator(redisClient, cfg.Collab.SessionTTL)
	} else {
		logger.Warn("redis is not configured, pairs will have no collaboration session")
	}

	engine := matching.NewEngine(matching.Options{
		CrossModeSameDifficulty: cfg.Matching.CrossModeSameDifficulty,
	})

	matchmakingUseCase := matchmaking.NewMatchmakingUseCase(
		st.tickets,
		st.pairs,
		st.pairing,
		engine,
		sessions,
		st.questions,
		c.Events,
		logger.Named("matchmaking"),
		matchmaking.Options{
			DefaultTimeout:     cfg.Matching.DefaultTimeout,
			StaleAfter:         cfg.Matching.StaleAfter,
			RecoveryGrace:      cfg.Matching.RecoveryGrace,
			DefaultExtend:      cfg.Matching.DefaultExtend,
			MaxExtend:          cfg.Matching.MaxExtend,
			CandidateLimit:     cfg.Matching.CandidateLimit,
			MaxPairingAttempts: cfg.Matching.MaxPairingAttempts,
		},
	)
	tokenUseCase := auth.NewTokenUseCase(cfg.JWT.AccessSecret)

	// Initialize handlers
	authHandler := handler.NewAuthHandler()
	matchHandler := handler.NewMatchHandler(matchmakingUseCase)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(tokenUseCase)

	router := http.NewRouter(
		authHandler,
		matchHandler,
		authMiddleware,
		logger.Named("http"),
	)

	c.Server = server.NewServer(&cfg.Server, router.Setup(), logger)
	return c, nil
}

func (c *Container) initStorage() (*stores, error) {
	cfg := c.Config
	if cfg.Storage.Type == config.StorageTypeMemory {
		c.Logger.Warn("using in-memory storage, state is lost on restart")
		store := memory.NewStore()
		return &stores{tickets: store, pairs: store.Pairs(), pairing: store, questions: store}, nil
	}

	db, err := database.NewPostgresDB(context.Background(), &cfg.Database, c.Logger.Named("postgres"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	c.DB = db

	if cfg.Database.AutoMigrate {
		if err := database.RunMigrations(db, cfg.Database.MigrationsPath, c.Logger.Named("migrate")); err != nil {
			return nil, err
		}
	}

	return &stores{
		tickets:   postgres.NewTicketRepository(db),
		pairs:     postgres.NewPairRepository(db),
		pairing:   postgres.NewPairingRepository(db),
		questions: postgres.NewQuestionRepository(db),
	}, nil
}

// Close closes all connections
func (c *Container) Close() error {
	if c.Events != nil {
		if err := c.Events.Close(); err != nil {
			c.Logger.Warn("error closing event publisher", zap.Error(err))
		}
	}

	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Logger.Warn("error closing redis", zap.Error(err))
		}
	}

	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}
	}

	return nil
}

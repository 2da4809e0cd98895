// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: выбирает хранилища по конфигурации, создаёт
// сервисы и собирает их в фасад Engine и планировщик.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/skillbarter/barter-engine/internal/bot"
	"github.com/skillbarter/barter-engine/internal/config"
	"github.com/skillbarter/barter-engine/internal/db/postgres"
	"github.com/skillbarter/barter-engine/internal/engine"
	"github.com/skillbarter/barter-engine/internal/features/barter"
	"github.com/skillbarter/barter-engine/internal/features/identity"
	"github.com/skillbarter/barter-engine/internal/features/ledger"
	"github.com/skillbarter/barter-engine/internal/features/matching"
	"github.com/skillbarter/barter-engine/internal/features/members"
	"github.com/skillbarter/barter-engine/internal/features/presence"
	"github.com/skillbarter/barter-engine/internal/features/quiz"
	"github.com/skillbarter/barter-engine/internal/jobs"
)

// App содержит все компоненты приложения.
type App struct {
	Engine    *engine.Engine
	Scheduler *jobs.Scheduler
	Notifier  *bot.Notifier // nil, если уведомления выключены
	Limiter   *identity.RateLimiter
	DB        *pgxpool.Pool // nil для STORE_BACKEND=memory
	Redis     *redis.Client // nil для PRESENCE_BACKEND=memory
}

// stores — хранилища выбранного бэкенда.
type stores struct {
	members  members.Repository
	ledger   ledger.Store
	sessions barter.Repository
	attempts quiz.AttemptStore
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен: компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{}

	// === 1. Хранилища ===
	st, err := a.openStores(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// === 2. Присутствие ===
	presenceStore, err := a.openPresence(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	// === 3. Сервисы ===
	people := members.NewService(st.members, nil)
	index := matching.NewSkillIndex()
	people.Subscribe(index)

	points := ledger.NewService(st.ledger, people, nil)
	online := presence.NewService(presenceStore, people, cfg.PresenceTTL, nil)
	matcher := matching.NewService(index, people, online, points, cfg.MatchDefaultLimit)

	// === 4. Каталог квизов, индекс навыков и бот — параллельно ===
	var (
		catalog  = quiz.NewCatalog()
		telegram *bot.Notifier
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return seedIndex(gctx, people, index)
	})
	if cfg.QuizCatalogPath != "" {
		g.Go(func() error {
			c, err := quiz.LoadCatalogFile(cfg.QuizCatalogPath)
			if err != nil {
				return err
			}
			catalog = c
			log.WithField("quizzes", len(c.List())).Info("Каталог квизов загружен")
			return nil
		})
	}
	if cfg.NotificationsEnabled() {
		g.Go(func() error {
			api, err := bot.New(cfg.TelegramBotToken)
			if err != nil {
				return err
			}
			me, err := api.GetMe(gctx)
			if err != nil {
				return fmt.Errorf("ошибка авторизации Telegram: %w", err)
			}
			log.Infof("Уведомления через @%s", me.Username)
			telegram = bot.NewNotifier(api, people, 16)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		a.Close()
		return nil, err
	}

	var notifier barter.Notifier = barter.NopNotifier{}
	if telegram != nil {
		notifier = telegram
		a.Notifier = telegram
	}

	grader := quiz.NewService(catalog, st.attempts, points, nil)
	coordinator := barter.NewCoordinator(st.sessions, people, online, points, notifier, nil)

	// === 5. Доступ ===
	a.Limiter = identity.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)
	verifier := identity.NewVerifier(people, cfg.AuthRequired, 5*time.Minute, nil)

	// === 6. Фасад ===
	a.Engine = engine.New(engine.Deps{
		Members:  people,
		Presence: online,
		Matching: matcher,
		Ledger:   points,
		Quiz:     grader,
		Sessions: coordinator,
		Verifier: verifier,
		Limiter:  a.Limiter,
	})

	// === 7. Планировщик задач ===
	a.Scheduler = jobs.NewScheduler(coordinator, online, jobs.Options{
		Schedule:   cfg.SweepSchedule,
		StaleAfter: cfg.SessionStaleAfter,
		Timezone:   cfg.AppTimezone,
	})

	log.WithFields(log.Fields{
		"store":    cfg.StoreBackend,
		"presence": cfg.PresenceBackend,
		"teachers": index.Len(),
	}).Info("Движок собран")
	return a, nil
}

func (a *App) openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pool, err := postgres.NewPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ошибка миграций: %w", err)
		}
		a.DB = pool
		return &stores{
			members:  members.NewPostgresRepository(pool),
			ledger:   ledger.NewPostgresStore(pool),
			sessions: barter.NewPostgresRepository(pool),
			attempts: quiz.NewPostgresAttempts(pool),
		}, nil
	default:
		ledgerStore := ledger.NewMemoryStore()
		return &stores{
			members:  members.NewMemoryRepository(),
			ledger:   ledgerStore,
			sessions: barter.NewMemoryRepository(ledgerStore),
			attempts: quiz.NewMemoryAttempts(),
		}, nil
	}
}

func (a *App) openPresence(ctx context.Context, cfg *config.Config) (presence.Store, error) {
	if cfg.PresenceBackend != config.BackendRedis {
		return presence.NewMemoryStore(), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis недоступен: %w", err)
	}
	a.Redis = client
	log.Info("Подключение к Redis установлено")
	return presence.NewRedisStore(client, 10*cfg.PresenceTTL), nil
}

// seedIndex заполняет индекс навыков из хранилища профилей.
func seedIndex(ctx context.Context, people *members.Service, index *matching.SkillIndex) error {
	users, err := people.List(ctx)
	if err != nil {
		return fmt.Errorf("ошибка загрузки профилей: %w", err)
	}
	teach := make(map[string][]string, len(users))
	for _, u := range users {
		teach[u.ID] = u.TeachSkills
	}
	index.Rebuild(teach)
	return nil
}

// Close освобождает ресурсы: ждёт уведомления, закрывает Redis и пул БД.
func (a *App) Close() {
	if a.Limiter != nil {
		a.Limiter.Close()
	}
	if a.Notifier != nil {
		a.Notifier.Wait()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			log.WithError(err).Warn("Ошибка закрытия Redis")
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

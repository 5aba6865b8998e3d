// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: создаёт БД-пул, репозитории, сервисы, обработчики,
// фильтры и собирает всё в один объект Bot.
package app

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"refloop.app/referral-bot/internal/bot"
	"refloop.app/referral-bot/internal/bot/filters"
	"refloop.app/referral-bot/internal/config"
	"refloop.app/referral-bot/internal/db/postgres"
	"refloop.app/referral-bot/internal/features/admin"
	"refloop.app/referral-bot/internal/features/claims"
	"refloop.app/referral-bot/internal/features/drafts"
	"refloop.app/referral-bot/internal/features/links"
	"refloop.app/referral-bot/internal/features/users"
	"refloop.app/referral-bot/internal/jobs"
)

// App содержит все компоненты приложения.
type App struct {
	Bot       *bot.Bot
	Scheduler *jobs.Scheduler
	DB        *pgxpool.Pool
	BotAPI    *tgbotapi.BotAPI
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен — компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// === 1. База данных ===
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}

	// Запускаем миграции
	if err := runMigrations(ctx, pool); err != nil {
		return nil, fmt.Errorf("ошибка миграций: %w", err)
	}

	// === 2. Telegram Bot API ===
	botAPI, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Telegram API: %w", err)
	}
	botAPI.Debug = cfg.AppEnv == "development"
	log.Infof("Авторизован как @%s", botAPI.Self.UserName)

	// === 3. Репозитории ===
	userRepo := users.NewRepository(pool)
	linkRepo := links.NewRepository(pool)
	claimRepo := claims.NewRepository(pool)
	draftRepo := drafts.NewRepository(pool)
	adminRepo := admin.NewRepository(pool)

	// === 4. Сервисы ===
	userService := users.NewService(userRepo, cfg.RewardClaimsPerCredit)
	linkService := links.NewService(linkRepo)
	claimService := claims.NewService(claimRepo, linkService, userService, cfg.AllowSelfClaim)
	draftService := drafts.NewService(draftRepo)
	adminService := admin.NewService(adminRepo, userRepo, linkRepo, claimRepo, cfg)

	// === 5. Обработчики ===
	linkHandler := links.NewHandler(linkService, userService, draftService, adminService, cfg, botAPI)
	claimHandler := claims.NewHandler(claimService, userService, draftService, cfg, botAPI)
	adminHandler := admin.NewHandler(adminService, claimService, linkService, botAPI)

	// === 6. Фильтры ===
	accessFilter := filters.NewAccessFilter(botAPI)

	// === 7. Собираем бота ===
	b := bot.New(
		botAPI, cfg,
		userService, draftService,
		linkHandler, claimHandler, adminHandler,
		accessFilter,
	)

	// === 8. Планировщик задач ===
	scheduler := jobs.NewScheduler(draftService, claimService, cfg, b.SendMessageToUser)

	return &App{
		Bot:       b,
		Scheduler: scheduler,
		DB:        pool,
		BotAPI:    botAPI,
	}, nil
}

// runMigrations выполняет все SQL-миграции.
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if err := postgres.EnsureMigrationsTable(ctx, pool); err != nil {
		return err
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migration001Users},
		{2, migration002Links},
		{3, migration003Claims},
		{4, migration004Drafts},
		{5, migration005Admin},
	}

	for _, m := range migrations {
		if err := postgres.ExecMigrationSQL(ctx, pool, m.version, m.sql); err != nil {
			return fmt.Errorf("миграция %d: %w", m.version, err)
		}
		log.Infof("Миграция %d применена", m.version)
	}

	return nil
}

// SQL-миграции встроены в код для упрощения деплоя.

var migration001Users = `
CREATE TABLE IF NOT EXISTS users (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT UNIQUE NOT NULL,
    username VARCHAR(255),
    verified_claims INTEGER NOT NULL DEFAULT 0 CHECK (verified_claims >= 0),
    free_credits INTEGER NOT NULL DEFAULT 0 CHECK (free_credits >= 0),
    created_at TIMESTAMP DEFAULT NOW(),
    updated_at TIMESTAMP DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_users_user_id ON users(user_id);
`

var migration002Links = `
CREATE TABLE IF NOT EXISTS referral_links (
    id BIGSERIAL PRIMARY KEY,
    owner_user_id BIGINT NOT NULL REFERENCES users(user_id),
    category VARCHAR(64) NOT NULL,
    service_name VARCHAR(255) NOT NULL,
    url TEXT NOT NULL,
    description VARCHAR(500) NOT NULL DEFAULT '',
    capacity INTEGER NOT NULL CHECK (capacity > 0),
    claimed_count INTEGER NOT NULL DEFAULT 0 CHECK (claimed_count >= 0 AND claimed_count <= capacity),
    paid_stars INTEGER NOT NULL DEFAULT 0 CHECK (paid_stars >= 0),
    created_at TIMESTAMP DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_links_category ON referral_links(category);
CREATE INDEX IF NOT EXISTS idx_links_owner ON referral_links(owner_user_id);
CREATE INDEX IF NOT EXISTS idx_links_available ON referral_links(created_at DESC) WHERE claimed_count < capacity;
`

var migration003Claims = `
CREATE TABLE IF NOT EXISTS claims (
    id BIGSERIAL PRIMARY KEY,
    claimant_user_id BIGINT NOT NULL REFERENCES users(user_id),
    link_id BIGINT NOT NULL,
    proof_file_id TEXT NOT NULL DEFAULT '',
    status VARCHAR(16) NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'approved', 'rejected')),
    rewarded BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP DEFAULT NOW(),
    decided_at TIMESTAMP
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_claims_claimant_link ON claims(claimant_user_id, link_id);
CREATE INDEX IF NOT EXISTS idx_claims_status ON claims(status) WHERE status = 'pending';
CREATE INDEX IF NOT EXISTS idx_claims_link ON claims(link_id);
`

var migration004Drafts = `
CREATE TABLE IF NOT EXISTS drafts (
    user_id BIGINT PRIMARY KEY,
    kind VARCHAR(16) NOT NULL,
    step VARCHAR(32) NOT NULL,
    plan VARCHAR(16) NOT NULL DEFAULT '',
    category VARCHAR(64) NOT NULL DEFAULT '',
    service_name VARCHAR(255) NOT NULL DEFAULT '',
    url TEXT NOT NULL DEFAULT '',
    description VARCHAR(500) NOT NULL DEFAULT '',
    link_id BIGINT NOT NULL DEFAULT 0,
    started_at TIMESTAMP DEFAULT NOW(),
    updated_at TIMESTAMP DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_drafts_updated_at ON drafts(updated_at);
`

var migration005Admin = `
CREATE TABLE IF NOT EXISTS admin_sessions (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL,
    session_token VARCHAR(255) UNIQUE,
    authenticated_at TIMESTAMP DEFAULT NOW(),
    expires_at TIMESTAMP,
    last_activity TIMESTAMP DEFAULT NOW(),
    is_active BOOLEAN DEFAULT TRUE
);
CREATE INDEX IF NOT EXISTS idx_admin_sessions_user_id ON admin_sessions(user_id);
CREATE TABLE IF NOT EXISTS admin_login_attempts (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL,
    attempt_time TIMESTAMP DEFAULT NOW(),
    success BOOLEAN DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_admin_attempts_user_time ON admin_login_attempts(user_id, attempt_time);
`

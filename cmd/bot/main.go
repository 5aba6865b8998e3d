// Package main — точка входа бота обмена реферальными ссылками.
// Загружает конфигурацию, собирает приложение и запускает polling.
// Завершается gracefully по SIGINT/SIGTERM.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"refloop.app/referral-bot/internal/app"
	"refloop.app/referral-bot/internal/config"
)

func main() {
	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Не удалось загрузить конфигурацию")
	}

	if level, err := log.ParseLevel(cfg.AppLogLevel); err == nil {
		log.SetLevel(level)
	} else {
		log.WithField("value", cfg.AppLogLevel).Warn("Неизвестный LOG_LEVEL, остаёмся на debug")
	}

	log.WithFields(log.Fields{
		"admins":    len(cfg.AdminIDs),
		"log_level": log.GetLevel().String(),
	}).Info("=== Бот запускается ===")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Сборка: БД-пул, миграции, репозитории, сервисы, обработчики
	application, err := app.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("Не удалось инициализировать приложение")
	}

	application.Scheduler.Start(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go application.Bot.Start(ctx)

	log.Info("=== Бот готов к работе ===")

	sig := <-quit
	log.Infof("Получен сигнал %s, останавливаемся...", sig)

	// Отменяем контекст — все горутины начнут завершаться
	cancel()
	application.Scheduler.Stop()
	application.DB.Close()

	log.Info("=== Бот остановлен ===")
}

// setupLogging настраивает формат логов.
func setupLogging() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.DebugLevel)
}

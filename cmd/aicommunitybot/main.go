// The aicommunitybot command runs the whole system in one process: the
// Telegram bot long-poll loop, the reminder scheduler, the registration
// session janitor, and the admin web server.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"

	"github.com/ntolkachev-gh/ai-community-bot/internal/bot"
	"github.com/ntolkachev-gh/ai-community-bot/internal/config"
	"github.com/ntolkachev-gh/ai-community-bot/internal/database"
	"github.com/ntolkachev-gh/ai-community-bot/internal/handler"
	"github.com/ntolkachev-gh/ai-community-bot/internal/registration"
	"github.com/ntolkachev-gh/ai-community-bot/internal/repository"
	"github.com/ntolkachev-gh/ai-community-bot/internal/scheduler"
	"github.com/ntolkachev-gh/ai-community-bot/internal/service"
)

const sessionPurgeInterval = 10 * time.Minute

func main() {
	cfg := config.Parse()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()
	if err := database.Migrate(ctx, pool); err != nil {
		log.Fatalf("database: %v", err)
	}
	log.Println("connected to PostgreSQL")

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Fatalf("telegram: %v", err)
	}

	// Wire up layers.
	users := repository.NewUserRepository(pool)
	events := repository.NewEventRepository(pool)
	regs := repository.NewRegistrationRepository(pool)
	sessions := repository.NewSessionRepository(pool, cfg.SessionTTL)

	reminders := scheduler.New(bot.NewMessenger(api), cfg.ReminderLead)
	defer reminders.Stop()

	flow := registration.NewFlow(sessions)
	userSvc := service.NewUserService(users)
	bookingSvc := service.NewBookingService(users, regs, reminders)
	eventSvc := service.NewEventService(events, regs, reminders)

	tgBot := bot.New(api, userSvc, bookingSvc, eventSvc, flow)
	admin := handler.NewAdminHandler(userSvc, eventSvc, cfg.APIExportKey)

	// Bot long-poll loop.
	go func() {
		if err := tgBot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Fatalf("bot: %v", err)
		}
	}()

	// Session janitor: expired dialog sessions are purged periodically so
	// abandoned registrations do not accumulate.
	go func() {
		ticker := time.NewTicker(sessionPurgeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := sessions.PurgeExpired(ctx); err != nil {
					log.Printf("session janitor: %v", err)
				} else if n > 0 {
					log.Printf("session janitor: purged %d expired sessions", n)
				}
			}
		}
	}()

	// Admin web server with graceful shutdown.
	srv := &http.Server{
		Addr:         cfg.WebAddr(),
		Handler:      admin.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		log.Printf("admin server listening on %s", cfg.WebAddr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Block until SIGINT or SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("graceful shutdown failed: %v", err)
	}
	log.Println("stopped")
}

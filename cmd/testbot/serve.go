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

	"github.com/spf13/cobra"

	apihttp "github.com/mind-engage/mindengage-testbot/internal/api/http"
	authmw "github.com/mind-engage/mindengage-testbot/internal/auth/middleware"
	"github.com/mind-engage/mindengage-testbot/internal/bot"
	"github.com/mind-engage/mindengage-testbot/internal/rbac"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot webhook and admin HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func runServe(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	admins := rbac.NewAdminSet(cfg.AdminIDs)
	b := bot.New(a.store, a.sessions, a.gate, admins, bot.Config{
		ChannelURL:   cfg.ChannelURL,
		AdminChannel: cfg.AdminChannel,
		Location:     a.loc,
	}, bot.WithGrader(a.grader), bot.WithSender(a.sender))

	if cfg.AdminPassHash == "" {
		log.Printf("warning: ADMIN_PASS_HASH is empty, /auth/login is disabled")
	}
	if cfg.BotSecret == "" {
		log.Printf("warning: BOT_SECRET is empty, /bot/updates accepts any caller")
	}

	router := apihttp.NewRouter(apihttp.Deps{
		Bot:           b,
		Store:         a.store,
		Grader:        a.grader,
		Blobs:         a.blobs,
		Events:        a.events,
		Auth:          authmw.NewAuthService(cfg.AuthHMACSecret),
		Admins:        admins,
		PassHash:      cfg.AdminPassHash,
		BotSecret:     cfg.BotSecret,
		Location:      a.loc,
		CORSOrigins:   cfg.CORSOrigins,
		EnableMetrics: cfg.EnableMetrics,
		Ready:         a.ready,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf("testbot %s listening on %s (mode=%s, db=%s, notify=%s)",
			version, cfg.HTTPAddr, cfg.Mode, cfg.DBDriver, cfg.NotifyDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

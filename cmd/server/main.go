package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"meliseller/internal/config"
	"meliseller/internal/domain"
	apphttp "meliseller/internal/http"
	"meliseller/internal/integrations/mailer"
	"meliseller/internal/integrations/telegram"
	"meliseller/internal/logging"
	"meliseller/internal/scheduler"
	"meliseller/internal/security/secretbox"
	"meliseller/internal/service/credentials"
	"meliseller/internal/service/digest"
	"meliseller/internal/service/marketplace"
	"meliseller/internal/service/oauth"
	"meliseller/internal/service/report"
	storepkg "meliseller/internal/store"
	"meliseller/internal/store/memory"
	"meliseller/internal/store/postgres"
	"meliseller/internal/store/redis"
	"meliseller/internal/tools"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		logrus.WithError(err).Warn("failed to load .env")
	}
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	sealer, err := secretbox.FromKey(cfg.OAuthEncryptionKey)
	if err != nil {
		log.WithError(err).Fatal("invalid OAUTH_ENCRYPTION_KEY")
	}
	tokens, closeStore := openStore(cfg, sealer, log)
	defer closeStore()

	grants := &oauth.Client{
		ClientID:     cfg.MeliClientID,
		ClientSecret: cfg.MeliClientSecret,
		AuthURL:      cfg.MeliAuthURL,
		TokenURL:     cfg.MeliTokenURL,
		RedirectURI:  cfg.MeliRedirectURI,
		HTTPClient:   &http.Client{Timeout: cfg.MeliRequestTimeout},
	}
	manager := credentials.NewManager(grants, tokens, log)
	restoreCtx, cancelRestore := context.WithTimeout(context.Background(), 10*time.Second)
	if err := manager.Restore(restoreCtx, domain.Credentials{
		AccessToken:  cfg.MeliAccessToken,
		RefreshToken: cfg.MeliRefreshToken,
	}); err != nil {
		log.WithError(err).Warn("restoring tokens failed")
	}
	cancelRestore()

	gateway := marketplace.NewGateway(manager, marketplace.Options{
		BaseURL: cfg.MeliAPIURL,
		Timeout: cfg.MeliRequestTimeout,
		MaxRPS:  cfg.MeliMaxRPS,
	}, log)
	engine := report.NewEngine(marketplace.NewClient(gateway, cfg.MeliUserID), log)
	renderer := report.NewRenderer(cfg.Locale, cfg.Currency, cfg.SellerName)

	var digests tools.DigestRunner
	if notifiers := buildNotifiers(cfg); len(notifiers) > 0 {
		digests = digest.NewService(engine, renderer, notifiers, log)
	} else {
		log.Info("no digest transport configured")
	}

	toolService := tools.NewService(manager, engine, renderer, digests, log)
	srv := apphttp.NewServer(cfg, manager, toolService, digests, log)

	sched, err := scheduler.New(manager, digests, scheduler.Options{
		RefreshInterval: cfg.RefreshInterval,
		DigestEnabled:   cfg.DigestEnabled,
		DigestWeekday:   time.Weekday(cfg.DigestWeekday),
		DigestHour:      cfg.DigestHour,
	}, log)
	if err != nil {
		log.WithError(err).Fatal("invalid schedule")
	}
	sched.Start()

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("seller tools API listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
	if err := sched.Stop(ctx); err != nil {
		log.WithError(err).Error("scheduler did not stop in time")
	}
}

type closableStore interface {
	storepkg.TokenStore
	Close() error
}

// openStore returns the configured token store, falling back to memory
// when the backend cannot be reached.
func openStore(cfg config.Config, sealer secretbox.Sealer, log logrus.FieldLogger) (storepkg.TokenStore, func()) {
	var (
		st  closableStore
		err error
	)
	switch cfg.StoreMode {
	case "postgres":
		var pg *postgres.Store
		pg, err = postgres.NewStore(cfg.DatabaseURL, sealer)
		if err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err = pg.EnsureSchema(ctx)
			cancel()
			if err != nil {
				_ = pg.Close()
			} else {
				st = pg
			}
		}
	case "redis":
		var rs *redis.Store
		rs, err = redis.NewStore(cfg.RedisURL, sealer)
		if err == nil {
			st = rs
		}
	default:
		return memory.NewStore(), func() {}
	}
	if err != nil {
		log.WithError(err).WithField("store_mode", cfg.StoreMode).Warn("token store unavailable, falling back to memory store")
		return memory.NewStore(), func() {}
	}
	log.WithField("store_mode", cfg.StoreMode).Info("token store ready")
	return st, func() { _ = st.Close() }
}

func buildNotifiers(cfg config.Config) digest.MultiNotifier {
	var out digest.MultiNotifier
	if cfg.MailEnabled() {
		out = append(out, mailer.NewClient(mailer.Config{
			URL:     cfg.MailAPIURL,
			APIKey:  cfg.MailAPIKey,
			From:    cfg.MailFrom,
			To:      cfg.MailTo,
			Timeout: cfg.MailTimeout,
		}))
	}
	if tg := telegram.NewNotifier("", cfg.TelegramBotToken, cfg.TelegramChatID); tg.Enabled() {
		out = append(out, tg)
	}
	return out
}

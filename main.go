package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"library_by_email/app"
	"library_by_email/config"
	"library_by_email/intent"
	"library_by_email/llm"
	"library_by_email/mail"
	"library_by_email/routes"
	"library_by_email/worker"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
)

func main() {
	mode := pflag.String("mode", "all", "what to run: all, api or worker")
	envFile := pflag.String("env-file", ".env", "dotenv file loaded before reading the environment")
	once := pflag.Bool("once", false, "poll the inbox once and exit")
	pflag.Parse()

	if err := config.LoadEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "load %s: %v\n", *envFile, err)
		os.Exit(1)
	}
	cfg := config.Load()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if err := run(cfg, logger, *mode, *once); err != nil {
		logger.Error("exit", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger, mode string, once bool) error {
	if once {
		mode = "worker"
	}
	runAPI := mode == "all" || mode == "api"
	runWorker := mode == "all" || mode == "worker"
	if !runAPI && !runWorker {
		return fmt.Errorf("unknown --mode %q", mode)
	}

	if strings.EqualFold(cfg.LogLevel, "debug") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	application, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application.BootstrapCatalog(ctx)

	if runWorker && !cfg.MailConfigured() {
		if mode == "worker" {
			return errors.New("EMAIL_ADDRESS and EMAIL_APP_PASSWORD are required by the worker")
		}
		logger.Warn("mail credentials missing, worker disabled")
		runWorker = false
	}

	if once {
		return newWorker(application).PollOnce(ctx)
	}

	var wg sync.WaitGroup
	errc := make(chan error, 2)
	if runAPI {
		routes.RegisterRoutes(application.Router, application)
		srv := &http.Server{Addr: ":" + cfg.Port, Handler: application.Router, ReadHeaderTimeout: 10 * time.Second}
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- err
				stop()
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}
	if runWorker {
		w := newWorker(application)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Run(ctx); err != nil {
				errc <- err
			}
		}()
	}

	<-ctx.Done()
	wg.Wait()
	select {
	case err := <-errc:
		return err
	default:
		logger.Info("shutdown complete")
		return nil
	}
}

func newWorker(a *app.App) *worker.Worker {
	cfg := a.Config

	var extractor intent.Extractor = intent.Rules{}
	if cfg.UseLLM {
		if cfg.OpenAIAPIKey == "" {
			a.Logger.Warn("USE_LLM set without OPENAI_API_KEY, using rules")
		} else {
			client := llm.New(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.LLMTimeout)
			extractor = intent.NewLLM(client, a.Logger.With("component", "llm"))
			a.Logger.Info("llm extraction enabled", "model", client.Model())
		}
	}

	imapCfg := mail.IMAPConfig{
		Host:     cfg.IMAPHost,
		Port:     cfg.IMAPPort,
		Username: cfg.EmailAddress,
		Password: cfg.EmailAppPassword,
		Timeout:  30 * time.Second,
	}
	outbox := mail.NewSMTPOutbox(mail.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.EmailAddress,
		Password: cfg.EmailAppPassword,
		CC:       cfg.CCMe,
		Timeout:  30 * time.Second,
	})

	return worker.New(worker.Config{
		PollInterval:   cfg.PollInterval,
		AllowedSenders: cfg.AllowedSenders,
		SubjectActions: cfg.SubjectActions,
		ReplySubject:   cfg.ReplySubject,
	}, worker.Deps{
		Catalog:   a.Repo,
		Extractor: extractor,
		Dial: func() (mail.Inbox, error) {
			inbox, err := mail.DialIMAP(imapCfg)
			if err != nil {
				return nil, err
			}
			return inbox, nil
		},
		Outbox: outbox,
		Ledger: a.Ledger(),
		Logger: a.Logger,
	})
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

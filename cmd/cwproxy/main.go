package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"cwproxy/pkg/account"
	"cwproxy/pkg/builder"
	"cwproxy/pkg/config"
	"cwproxy/pkg/logger"
	"cwproxy/pkg/messages"
	"cwproxy/pkg/notify"
	"cwproxy/pkg/pipeline"
	"cwproxy/pkg/session"
	"cwproxy/pkg/tui"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "show version")
	dashboard := flag.Bool("dashboard", false, "launch the read-only operator dashboard and exit")
	addCookie := flag.String("add-cookie", "", "register a new account from a Claude.ai session cookie, then exit")
	sendPrompt := flag.String("send", "", "run one prompt through the full pipeline as a diagnostic, print the raw event stream, then exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("cwproxy v%s\n", version)
		return
	}

	cfg, cfgPath, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()
	zlog := logger.GetLogger()
	zlog.Info("starting cwproxy", zap.String("config", cfgPath), zap.String("version", version))

	webClient := session.NewHTTPWebClient(cfg.ClaudeWebBaseURL)

	notifier := buildNotifier(cfg, zlog)
	pool := buildPool(cfg, webClient, notifier, zlog)
	pool.Load()

	if *addCookie != "" {
		acc, err := pool.AddAccount(context.Background(), *addCookie, nil, "")
		if err != nil {
			log.Fatalf("failed to add account: %v", err)
		}
		fmt.Printf("added account %s (%s)\n", acc.OrganizationUUID, acc.AuthType)
		return
	}

	if *dashboard {
		if err := tui.Run(pool, 2*time.Second); err != nil {
			log.Fatalf("dashboard exited with error: %v", err)
		}
		return
	}

	pl := buildPipeline(cfg, pool, webClient, zlog)

	if *sendPrompt != "" {
		runDiagnosticSend(pl, *sendPrompt)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx, time.Duration(cfg.AccountTaskInterval)*time.Second)

	zlog.Info("account pool background loop started; outer HTTP server is an external collaborator and is not started here",
		zap.Bool("pipeline_ready", pl != nil))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	zlog.Info("shutting down")
	pool.Stop()
}

func buildNotifier(cfg *config.Config, zlog *zap.Logger) notify.Notifier {
	tg, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChat, zlog)
	if err != nil {
		zlog.Warn("telegram notifier disabled", zap.Error(err))
		return notify.Noop{}
	}
	if tg == nil {
		return notify.Noop{}
	}
	return tg
}

func buildPool(cfg *config.Config, webClient *session.HTTPWebClient, notifier notify.Notifier, zlog *zap.Logger) *account.Pool {
	identity := account.NewIdentityHTTPClient(cfg.ClaudeWebBaseURL)
	oauth := account.NewOAuthClient()
	prober := account.NewProber(cfg.ClaudeAPIBaseURL, webClient)
	store := account.NewStore(cfg.AccountsFilePath(), zlog)

	return account.NewPool(cfg.MaxSessionsPerCookie, identity, oauth, prober, store, notifier, zlog)
}

// buildPipeline wires the request pipeline: this is the seam an outer HTTP
// server plugs into. cwproxy has no such server; "-send" below is a CLI
// diagnostic that exercises the same seam directly.
func buildPipeline(cfg *config.Config, pool *account.Pool, webClient *session.HTTPWebClient, zlog *zap.Logger) *pipeline.Pipeline {
	merger := builder.PlainTextMerger{}
	b := builder.New(merger, builder.Config{
		PadtxtLength: cfg.PadtxtLength,
		PadTokens:    cfg.PadTokens,
		CustomPrompt: cfg.CustomPrompt,
	}, zlog)

	registry := account.NewRegistry(0)
	sessions := session.NewManager()
	factory := func(sessionID string, acc *account.Account) *session.Session {
		return session.New(sessionID, acc, webClient)
	}

	return pipeline.New(pool, b, registry, sessions, factory, true, zlog)
}

func runDiagnosticSend(pl *pipeline.Pipeline, prompt string) {
	req := &messages.Request{
		Messages: []messages.Message{{Role: "user", Content: []messages.Content{{Type: messages.ContentText, Text: prompt}}}},
	}

	src, err := pl.Handle(context.Background(), "cli-diagnostic", req)
	if err != nil {
		log.Fatalf("pipeline error: %v", err)
	}

	for {
		ev, err := src.Next()
		if err != nil {
			fmt.Printf("stream ended: %v\n", err)
			return
		}
		raw, _ := json.Marshal(ev)
		fmt.Println(string(raw))
	}
}

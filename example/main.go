package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/t-webber/ntpnews"
	"github.com/t-webber/ntpnews/backend/mock"
	"github.com/t-webber/ntpnews/internal/logging"
	"github.com/t-webber/ntpnews/news"
)

func main() {
	logger := logging.NewDefault()
	defer func() { _ = logger.Sync() }()

	ctrl := mock.New(mock.DefaultFixture(), mock.WithLogger(logger.Named("mock")))

	page, err := ntpnews.New(
		ntpnews.WithController(ctrl),
		ntpnews.WithPort(8080),
		ntpnews.WithTitle("News Demo"),
		ntpnews.WithLogger(logger),
		ntpnews.WithStateCallback(func(s news.State) {
			if s.NewsUpdateAvailable {
				logger.Info("news update available", zap.Int("items", len(s.NewsFeedItems)))
			}
		}),
	)
	if err != nil {
		logger.Error("failed to create news page", zap.Error(err))
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════════════════╗")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   ntpnews Demo                                        ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   State:   http://localhost:8080/api/state            ║")
	fmt.Println("  ║   Stream:  http://localhost:8080/api/sse              ║")
	fmt.Println("  ║   Widget:  http://localhost:8080/api/widget           ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   A new feed version is published every 20-60s        ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Press Ctrl+C to stop                                ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ╚═══════════════════════════════════════════════════════╝")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go PublishFeedUpdates(ctx, ctrl, logger)

	// report news visible once the page has rendered
	time.AfterFunc(time.Second, page.Actions().OnNewsVisible)

	if err := page.Start(ctx); err != nil {
		logger.Error("news page error", zap.Error(err))
		os.Exit(1)
	}
}

package main

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/t-webber/ntpnews/backend/mock"
)

// PublishFeedUpdates announces a new feed version every 20-60 seconds
// until ctx is done, the way a news service signals fresh content.
func PublishFeedUpdates(ctx context.Context, ctrl *mock.Controller, logger *zap.Logger) {
	for version := 2; ; version++ {
		wait := time.Duration(20+rand.Intn(41)) * time.Second
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		hash := fmt.Sprintf("demo-%d", version)
		logger.Info("feed version published", zap.String("hash", hash))
		ctrl.PublishFeedHash(hash)
	}
}

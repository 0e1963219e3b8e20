package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestAccessLog_FlushesOnShutdown(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	a := NewAccessLog(2, 100, time.Hour, zap.New(core))
	a.Start(context.Background())

	for i := 0; i < 5; i++ {
		a.LogEntry(AccessLogEntry{Method: "GET", Route: "/api/audit", StatusCode: 200})
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	a.Shutdown(ctx)
	a.Shutdown(ctx)

	assert.Equal(t, 5, logs.Len())
}

func TestAccessLog_BatchBySize(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	a := NewAccessLog(1, 3, time.Hour, zap.New(core))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.Start(ctx)

	for i := 0; i < 3; i++ {
		a.LogEntry(AccessLogEntry{Method: "PUT", Route: "/api/products/{id}", StatusCode: 409})
	}

	assert.Eventually(t, func() bool { return logs.Len() == 3 }, time.Second, 5*time.Millisecond)
}

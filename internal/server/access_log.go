package server

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type AccessLogEntry struct {
	Timestamp  time.Time
	Method     string
	Route      string
	Path       string
	StatusCode int
	Bytes      int
	Duration   time.Duration
	Actor      string
	RecordID   string
}

// AccessLog moves request logging off the request path. An aggregator
// groups entries into batches by size or timeout and a small pool of
// workers writes them to the logger.
type AccessLog struct {
	workerCount int
	batchSize   int
	timeout     time.Duration
	logger      *zap.Logger

	inputChan  chan AccessLogEntry
	batchChan  chan []AccessLogEntry
	shutdownCh chan struct{}
	startOnce  sync.Once
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

func NewAccessLog(workerCount, batchSize int, timeout time.Duration, logger *zap.Logger) *AccessLog {
	return &AccessLog{
		workerCount: workerCount,
		batchSize:   batchSize,
		timeout:     timeout,
		logger:      logger,
		inputChan:   make(chan AccessLogEntry, workerCount*batchSize*2),
		batchChan:   make(chan []AccessLogEntry, workerCount*2),
		shutdownCh:  make(chan struct{}),
	}
}

func (a *AccessLog) Start(ctx context.Context) {
	a.startOnce.Do(func() {
		a.wg.Add(1)
		go a.runAggregator(ctx)

		for i := 0; i < a.workerCount; i++ {
			a.wg.Add(1)
			go a.runWorker(i)
		}
	})
}

// Shutdown flushes pending entries and waits for the workers, bounded by ctx.
func (a *AccessLog) Shutdown(ctx context.Context) {
	a.stopOnce.Do(func() {
		close(a.shutdownCh)

		done := make(chan struct{})
		go func() {
			a.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			a.logger.Warn("access log: shutdown interrupted")
		}
	})
}

// LogEntry never blocks the request. When the buffer is full the entry is
// written directly.
func (a *AccessLog) LogEntry(entry AccessLogEntry) {
	select {
	case a.inputChan <- entry:
	default:
		a.writeBatch(-1, []AccessLogEntry{entry})
	}
}

func (a *AccessLog) runAggregator(ctx context.Context) {
	defer a.wg.Done()

	var (
		batch    []AccessLogEntry
		timer    *time.Timer
		timeoutC <-chan time.Time
	)

	flush := func() {
		if len(batch) > 0 {
			a.batchChan <- batch
			batch = nil
		}
		if timer != nil {
			timer.Stop()
		}
		timeoutC = nil
	}

	defer func() {
		for {
			select {
			case entry := <-a.inputChan:
				batch = append(batch, entry)
				continue
			default:
			}
			break
		}
		flush()
		close(a.batchChan)
	}()

	for {
		select {
		case entry := <-a.inputChan:
			batch = append(batch, entry)
			if len(batch) >= a.batchSize {
				flush()
			} else if len(batch) == 1 {
				timer = time.NewTimer(a.timeout)
				timeoutC = timer.C
			}
		case <-timeoutC:
			flush()
		case <-ctx.Done():
			return
		case <-a.shutdownCh:
			return
		}
	}
}

func (a *AccessLog) runWorker(id int) {
	defer a.wg.Done()
	for batch := range a.batchChan {
		a.writeBatch(id, batch)
	}
}

func (a *AccessLog) writeBatch(workerID int, batch []AccessLogEntry) {
	for _, e := range batch {
		a.logger.Info("request",
			zap.Int("worker", workerID),
			zap.Time("ts", e.Timestamp),
			zap.String("method", e.Method),
			zap.String("route", e.Route),
			zap.String("path", e.Path),
			zap.Int("status", e.StatusCode),
			zap.Int("bytes", e.Bytes),
			zap.Duration("duration", e.Duration),
			zap.String("actor", e.Actor),
			zap.String("record_id", e.RecordID),
		)
	}
}

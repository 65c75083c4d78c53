// Package miner runs block production on a dedicated goroutine. Requests
// are queued and answered over one-shot result channels, and an optional
// interval mines whenever transactions are pending.
package miner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shruggr/rewardledger/block"
	"github.com/shruggr/rewardledger/wallet"
)

// ErrStopped is returned for requests made after Stop or before Start
var ErrStopped = errors.New("miner worker is not running")

// DefaultQueueSize bounds the number of waiting requests
const DefaultQueueSize = 16

// Producer mines pending transactions into a block
type Producer interface {
	MinePendingTransactions(ctx context.Context, minerAddress wallet.Address) (*block.Block, error)
	MempoolSize() int
}

// Config holds worker configuration
type Config struct {
	Interval  time.Duration // auto-mine period; zero disables auto-mining
	QueueSize int
}

// Result is the outcome of one mining request
type Result struct {
	Block *block.Block
	Err   error
}

type request struct {
	ctx     context.Context
	address wallet.Address
	result  chan Result
}

// Worker serialises mining requests onto one goroutine
type Worker struct {
	producer Producer
	config   Config
	logger   *slog.Logger

	requests chan request
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// NewWorker creates a stopped worker
func NewWorker(producer Producer, config Config, logger *slog.Logger) *Worker {
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Worker{
		producer: producer,
		config:   config,
		logger:   logger.With("component", "miner"),
		requests: make(chan request, config.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the worker goroutine
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.ctx.Err() != nil {
		return ErrStopped
	}
	if w.running {
		return nil
	}
	w.running = true

	w.wg.Add(1)
	go w.run()

	w.logger.Info("miner worker started", "interval", w.config.Interval)
	return nil
}

// Stop cancels any search in progress, fails queued requests and waits for
// the goroutine to exit. A stopped worker cannot be restarted.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.wg.Wait()

	for {
		select {
		case req := <-w.requests:
			req.result <- Result{Err: ErrStopped}
		default:
			return nil
		}
	}
}

// Submit queues a mining request. The returned channel receives exactly
// one Result. An empty address uses the ledger's configured miner.
func (w *Worker) Submit(ctx context.Context, address wallet.Address) <-chan Result {
	result := make(chan Result, 1)

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		result <- Result{Err: ErrStopped}
		return result
	}

	select {
	case w.requests <- request{ctx: ctx, address: address, result: result}:
	case <-ctx.Done():
		result <- Result{Err: ctx.Err()}
	case <-w.ctx.Done():
		result <- Result{Err: ErrStopped}
	}
	return result
}

// Mine submits a request and waits for its result
func (w *Worker) Mine(ctx context.Context, address wallet.Address) (*block.Block, error) {
	select {
	case res := <-w.Submit(ctx, address):
		return res.Block, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (w *Worker) run() {
	defer w.wg.Done()

	var tick <-chan time.Time
	if w.config.Interval > 0 {
		ticker := time.NewTicker(w.config.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-w.ctx.Done():
			return

		case req := <-w.requests:
			b, err := w.mine(req.ctx, req.address)
			req.result <- Result{Block: b, Err: err}

		case <-tick:
			if w.producer.MempoolSize() == 0 {
				continue
			}
			if _, err := w.mine(w.ctx, ""); err != nil && w.ctx.Err() == nil {
				w.logger.Warn("auto-mining failed", "error", err)
			}
		}
	}
}

// mine runs one production, cancelled by either the caller or Stop
func (w *Worker) mine(ctx context.Context, address wallet.Address) (*block.Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(w.ctx, cancel)
	defer stop()

	start := time.Now()
	b, err := w.producer.MinePendingTransactions(ctx, address)
	if err != nil {
		return nil, err
	}

	w.logger.Debug("block mined",
		"height", b.Index,
		"hash", b.HashHex(),
		"elapsed", time.Since(start))
	return b, nil
}

// Package scheduler runs analyses of a watch list on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/robfig/cron/v3"

	"marketlens/internal/analysis"
	"marketlens/internal/logger"
	"marketlens/internal/model"
)

// Analyzer runs one analysis.
type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request) (model.Report, error)
}

// Job is one watched symbol and timeframe.
type Job struct {
	Symbol    string
	Timeframe model.Timeframe
}

// Scheduler manages the periodic analysis task.
type Scheduler struct {
	cron     *cron.Cron
	analyzer Analyzer
	jobs     []Job
	ctx      context.Context

	mu      sync.Mutex
	running bool

	// OnRun is called after each job with its outcome (optional).
	OnRun func(job Job, rep model.Report, err error)
}

// New creates a scheduler. Specs use six fields, seconds first.
func New(ctx context.Context, analyzer Analyzer, jobs []Job) *Scheduler {
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.Recover(cron.PrintfLogger(log.Default()))),
		),
		analyzer: analyzer,
		jobs:     jobs,
		ctx:      ctx,
	}
}

// Register schedules the watch-list sweep.
func (s *Scheduler) Register(spec string) error {
	if len(s.jobs) == 0 {
		return fmt.Errorf("%w: empty watch list", model.ErrValidation)
	}
	if _, err := s.cron.AddFunc(spec, s.sweep); err != nil {
		return fmt.Errorf("%w: register analysis task %q: %v", model.ErrValidation, spec, err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Printf("[scheduler] started, %d jobs", len(s.jobs))
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Println("[scheduler] stopped")
}

// RunNow runs the sweep immediately.
func (s *Scheduler) RunNow() {
	s.sweep()
}

// sweep analyzes every job in order. A sweep that fires while the previous
// one is still running is skipped.
func (s *Scheduler) sweep() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		log.Println("[scheduler] previous sweep still running, skipping")
		return
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	for _, job := range s.jobs {
		if s.ctx.Err() != nil {
			return
		}
		ctx := logger.WithRequestID(s.ctx, logger.NewRequestID())
		rep, err := s.analyzer.Analyze(ctx, analysis.Request{
			Symbol:    job.Symbol,
			Timeframe: string(job.Timeframe),
			WithSetup: true,
		})
		if err != nil {
			log.Printf("[scheduler] %s %s: %v", job.Symbol, job.Timeframe, err)
		} else {
			log.Printf("[scheduler] %s %s: %s (%d%%), setup=%t",
				rep.Symbol, rep.Timeframe, rep.Trend.Direction, rep.Trend.Confidence, rep.Setup != nil)
		}
		if s.OnRun != nil {
			s.OnRun(job, rep, err)
		}
	}
}

package scheduler

import (
	"context"
	"log"
	"time"

	"mailpilot-backend/internal/pipeline/usecase"
)

// PipelineScheduler drives the periodic sync + classification cycle.
type PipelineScheduler struct {
	pipeline usecase.PipelineUsecase
	interval time.Duration
	stopChan chan struct{}
}

func NewPipelineScheduler(pipeline usecase.PipelineUsecase, interval time.Duration) *PipelineScheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &PipelineScheduler{
		pipeline: pipeline,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start begins the scheduler loop
func (s *PipelineScheduler) Start() {
	log.Printf("[Scheduler] Starting pipeline scheduler (interval: %s)", s.interval)

	go func() {
		// Run immediately on start
		s.runCycle()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.runCycle()
			case <-s.stopChan:
				log.Println("[Scheduler] Scheduler stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the scheduler
func (s *PipelineScheduler) Stop() {
	close(s.stopChan)
}

func (s *PipelineScheduler) runCycle() {
	ctx := context.Background()

	if err := s.pipeline.RunBatch(ctx); err != nil {
		log.Printf("[Scheduler] Pipeline batch failed: %v", err)
	}

	if err := s.pipeline.PruneLedger(ctx); err != nil {
		log.Printf("[Scheduler] Ledger prune failed: %v", err)
	}
}

package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/adebayo-oss/slotpay/internal/pkg/cache"
)

const (
	// Redis key prefixes
	JobKeyPrefix     = "job:"
	JobQueueKey      = "job_queue"
	JobProcessingKey = "job_processing"

	// Job settings
	DefaultMaxRetries = 3
	JobTTL            = 24 * time.Hour // Jobs expire after 24 hours
)

// Processor handles a single dequeued job.
type Processor interface {
	Process(ctx context.Context, job *Job) error
}

// Queue manages background verification jobs using Redis. Jobs are moved from
// the pending list to a processing list while a worker holds them, so a crash
// never silently drops one.
type Queue struct {
	client    *redis.Client
	processor Processor
	workers   int
	stopCh    chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	running   bool
}

// NewQueue creates a new job queue
func NewQueue(processor Processor, workers int) *Queue {
	if workers <= 0 {
		workers = 3 // Default number of workers
	}

	return &Queue{
		client:    cache.GetClient(),
		processor: processor,
		workers:   workers,
		stopCh:    make(chan struct{}),
	}
}

// Enqueue stores the job and pushes its id onto the pending list.
func (q *Queue) Enqueue(job *Job) error {
	ctx := context.Background()

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.Set(ctx, JobKeyPrefix+job.ID, data, JobTTL).Err(); err != nil {
		return fmt.Errorf("store job: %w", err)
	}
	if err := q.client.LPush(ctx, JobQueueKey, job.ID).Err(); err != nil {
		return fmt.Errorf("push job: %w", err)
	}

	log.Debugf("[JobQueue] Enqueued %s job %s (reference=%s)", job.Type, job.ID, job.ProviderReference)
	return nil
}

// Start starts the job queue workers
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return
	}

	q.running = true
	log.Infof("[JobQueue] Starting %d workers", q.workers)

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}

	// Recover jobs stuck in processing after a crash.
	q.wg.Add(1)
	go q.stuckSweeper(10*time.Minute, 1*time.Minute)
}

// Stop stops the job queue workers
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.running {
		return
	}

	log.Info("[JobQueue] Stopping workers...")
	close(q.stopCh)
	q.running = false
	q.wg.Wait()
	log.Info("[JobQueue] All workers stopped")
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()
	ctx := context.Background()

	for {
		select {
		case <-q.stopCh:
			return
		default:
		}

		jobID, err := q.client.LMove(ctx, JobQueueKey, JobProcessingKey, "RIGHT", "LEFT").Result()
		if err == redis.Nil {
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if err != nil {
			log.Errorf("[JobQueue] Worker %d dequeue error: %v", id, err)
			time.Sleep(1 * time.Second)
			continue
		}

		q.processJob(ctx, jobID)
	}
}

func (q *Queue) processJob(ctx context.Context, jobID string) {
	defer func() {
		if err := q.client.LRem(ctx, JobProcessingKey, 1, jobID).Err(); err != nil {
			log.Errorf("[JobQueue] Failed to remove job %s from processing list: %v", jobID, err)
		}
	}()

	job, err := q.loadJob(ctx, jobID)
	if err != nil {
		log.Errorf("[JobQueue] Failed to load job %s: %v", jobID, err)
		return
	}

	now := time.Now()
	job.Status = JobStatusProcessing
	job.ProcessedAt = &now
	q.saveJob(ctx, job)

	procCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = q.processor.Process(procCtx, job)
	cancel()

	if err != nil {
		job.RetryCount++
		job.ErrorMsg = err.Error()
		if job.RetryCount <= job.MaxRetries {
			job.Status = JobStatusRetrying
			q.saveJob(ctx, job)
			if pushErr := q.client.LPush(ctx, JobQueueKey, job.ID).Err(); pushErr != nil {
				log.Errorf("[JobQueue] Failed to requeue job %s: %v", job.ID, pushErr)
			}
			log.Warnf("[JobQueue] Job %s failed (retry %d/%d): %v", job.ID, job.RetryCount, job.MaxRetries, err)
			return
		}
		job.Status = JobStatusFailed
		q.saveJob(ctx, job)
		log.Errorf("[JobQueue] Job %s failed permanently: %v", job.ID, err)
		return
	}

	done := time.Now()
	job.Status = JobStatusCompleted
	job.CompletedAt = &done
	q.saveJob(ctx, job)
}

func (q *Queue) loadJob(ctx context.Context, jobID string) (*Job, error) {
	data, err := q.client.Get(ctx, JobKeyPrefix+jobID).Result()
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (q *Queue) saveJob(ctx context.Context, job *Job) {
	job.UpdatedAt = time.Now()
	data, err := json.Marshal(job)
	if err != nil {
		log.Errorf("[JobQueue] Failed to marshal job %s: %v", job.ID, err)
		return
	}
	if err := q.client.Set(ctx, JobKeyPrefix+job.ID, data, JobTTL).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to save job %s: %v", job.ID, err)
	}
}

// stuckSweeper periodically scans the processing list and requeues jobs stuck for longer than maxAge
func (q *Queue) stuckSweeper(maxAge time.Duration, interval time.Duration) {
	defer q.wg.Done()
	log.Infof("[JobQueue] Stuck sweeper running (maxAge=%s, interval=%s)", maxAge, interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	ctx := context.Background()
	for {
		select {
		case <-q.stopCh:
			log.Info("[JobQueue] Stuck sweeper stopping")
			return
		case <-ticker.C:
			ids, err := q.client.LRange(ctx, JobProcessingKey, 0, -1).Result()
			if err != nil {
				log.Errorf("[JobQueue] Sweeper LRange error: %v", err)
				continue
			}
			now := time.Now()
			for _, id := range ids {
				job, err := q.loadJob(ctx, id)
				if err != nil {
					// Job record expired; drop the dangling id.
					q.client.LRem(ctx, JobProcessingKey, 1, id)
					continue
				}
				if job.ProcessedAt == nil || now.Sub(*job.ProcessedAt) < maxAge {
					continue
				}
				log.Warnf("[JobQueue] Requeuing stuck job %s (processing since %s)", id, job.ProcessedAt)
				q.client.LRem(ctx, JobProcessingKey, 1, id)
				job.Status = JobStatusRetrying
				q.saveJob(ctx, job)
				q.client.LPush(ctx, JobQueueKey, id)
			}
		}
	}
}

package jobqueue

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/adebayo-oss/slotpay/internal/pkg/env"
	"github.com/adebayo-oss/slotpay/internal/pkg/payments"
)

var (
	managerOnce  sync.Once
	globalQueue  *Queue
	sweeperStop  chan struct{}
	sweeperGroup sync.WaitGroup
)

// InitWorkerSystem wires the verification queue to the payment orchestrator
// and starts the workers plus the pending-payment sweeper.
func InitWorkerSystem(paymentService *payments.Service) {
	managerOnce.Do(func() {
		workers, _ := strconv.Atoi(env.GetEnv("JOB_WORKERS", "3"))
		globalQueue = NewQueue(NewVerifyPaymentProcessor(paymentService), workers)
		globalQueue.Start()

		sweeperStop = make(chan struct{})
		sweeperGroup.Add(1)
		go pendingSweeper(paymentService, sweeperStop)
	})
}

// ShutdownWorkerSystem stops the sweeper and drains the workers.
func ShutdownWorkerSystem() {
	if sweeperStop != nil {
		close(sweeperStop)
		sweeperGroup.Wait()
	}
	if globalQueue != nil {
		globalQueue.Stop()
	}
}

// EnqueueVerifyPayment schedules a provider poll for the given reference.
func EnqueueVerifyPayment(providerReference string) error {
	if globalQueue == nil {
		log.Warnf("[JobQueue] Worker system not initialized; dropping verify for %s", providerReference)
		return nil
	}
	return globalQueue.Enqueue(NewVerifyPaymentJob(providerReference))
}

// pendingSweeper periodically enqueues verification jobs for payments that
// have sat in pending longer than the configured age. This is the safety net
// for webhook deliveries that never arrive.
func pendingSweeper(paymentService *payments.Service, stop chan struct{}) {
	defer sweeperGroup.Done()

	intervalMin, _ := strconv.Atoi(env.GetEnv("PENDING_SWEEP_INTERVAL_MINUTES", "5"))
	if intervalMin <= 0 {
		intervalMin = 5
	}
	minAgeMin, _ := strconv.Atoi(env.GetEnv("PENDING_SWEEP_MIN_AGE_MINUTES", "10"))

	log.Infof("[JobQueue] Pending sweeper running (interval=%dm, minAge=%dm)", intervalMin, minAgeMin)
	ticker := time.NewTicker(time.Duration(intervalMin) * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			log.Info("[JobQueue] Pending sweeper stopping")
			return
		case <-ticker.C:
			refs, err := paymentService.ListStalePendingReferences(context.Background(), minAgeMin, 100)
			if err != nil {
				log.Errorf("[JobQueue] Pending sweep query failed: %v", err)
				continue
			}
			for _, ref := range refs {
				if err := EnqueueVerifyPayment(ref); err != nil {
					log.Errorf("[JobQueue] Failed to enqueue verify for %s: %v", ref, err)
				}
			}
			if len(refs) > 0 {
				log.Infof("[JobQueue] Enqueued %d stale pending payments for verification", len(refs))
			}
		}
	}
}

package messaging

import (
	"log"
	"sync"
	"time"

	"capstation/config"
	"capstation/store"
)

const (
	drainBatchSize       = 50
	maxPublishAttempts   = 20
	defaultDrainInterval = 5 * time.Second
)

// OutboxDrainer moves queued measurement reports from the station database to
// the plant bus. Reports accumulate while the broker is unreachable; a report
// that keeps failing is discarded after maxPublishAttempts so one poison
// payload cannot jam the queue behind it.
type OutboxDrainer struct {
	db       *store.DB
	client   *Client
	interval time.Duration
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewOutboxDrainer creates a drainer over the report queue.
func NewOutboxDrainer(db *store.DB, client *Client, cfg *config.MessagingConfig) *OutboxDrainer {
	interval := cfg.OutboxDrainInterval
	if interval <= 0 {
		interval = defaultDrainInterval
	}
	return &OutboxDrainer{
		db:       db,
		client:   client,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start launches the drain loop. The first drain runs immediately so reports
// queued during downtime do not wait a full interval after restart.
func (d *OutboxDrainer) Start() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.drain()

		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		for {
			select {
			case <-d.stopChan:
				return
			case <-ticker.C:
				d.drain()
			}
		}
	}()
}

// Stop halts the drain loop and waits for an in-flight drain to finish.
func (d *OutboxDrainer) Stop() {
	select {
	case <-d.stopChan:
	default:
		close(d.stopChan)
	}
	d.wg.Wait()
}

func (d *OutboxDrainer) drain() {
	if !d.client.IsConnected() {
		return
	}

	reports, err := d.db.PendingReports(drainBatchSize)
	if err != nil {
		log.Printf("list pending reports: %v", err)
		return
	}

	for _, rep := range reports {
		if err := d.client.Publish(rep.Topic, rep.Payload); err != nil {
			log.Printf("publish report %d: %v", rep.ID, err)
			attempts, bumpErr := d.db.BumpReportAttempts(rep.ID)
			if bumpErr != nil {
				log.Printf("bump report %d attempts: %v", rep.ID, bumpErr)
				continue
			}
			if attempts >= maxPublishAttempts {
				log.Printf("discarding report %d after %d attempts", rep.ID, attempts)
				if err := d.db.DiscardReport(rep.ID); err != nil {
					log.Printf("discard report %d: %v", rep.ID, err)
				}
			}
			continue
		}
		if err := d.db.MarkReportPublished(rep.ID); err != nil {
			log.Printf("mark report %d published: %v", rep.ID, err)
		}
	}
}

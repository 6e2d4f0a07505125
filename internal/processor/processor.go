// Package processor drives inbound messages through ingest, aggregation and
// validation and publishes the resulting trip updates.
package processor

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"gtfsrt-tripupdater/internal/engine"
	"gtfsrt-tripupdater/internal/gtfs"
	"gtfsrt-tripupdater/internal/ingest"
	"gtfsrt-tripupdater/internal/transport"
	"gtfsrt-tripupdater/internal/tripid"
	"gtfsrt-tripupdater/internal/validate"
)

const (
	DefaultWorkers       = 4
	defaultQueueSize     = 256
	defaultHandleTimeout = 10 * time.Second
)

// Rejection reasons besides validator names.
const (
	ReasonDecode = "decode"
	ReasonIngest = "ingest"
	ReasonPanic  = "panic"
)

type Publisher interface {
	PublishTripUpdate(tripKey string, tu gtfs.TripUpdate) error
}

type Resolver interface {
	Resolve(ctx context.Context, c gtfs.TripCancellation) string
}

type Metrics interface {
	ConsumedInc(schema string)
	RejectedInc(reason string)
	ProcessObserve(d time.Duration)
}

type Config struct {
	Workers    int
	QueueSize  int
	Ingester   *ingest.Ingester
	Enricher   ingest.Enricher
	Engine     *engine.Engine
	Validators validate.Chain
	// Resolver is optional; without it cancellations lacking a trip id stay
	// keyed by their route descriptor.
	Resolver  Resolver
	Publisher Publisher
	Metrics   Metrics
	// HandleTimeout bounds the lookups made for one message. Queued messages
	// are still handled with this budget after the run context is cancelled.
	HandleTimeout time.Duration
}

type job struct {
	msg transport.Message
	rec ingest.Record
}

// Processor routes messages to a fixed set of workers by trip key so that all
// messages of one trip are handled in delivery order by the same worker.
type Processor struct {
	cfg    Config
	queues []chan job

	mu     sync.RWMutex
	closed bool
}

func New(cfg Config) *Processor {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.HandleTimeout <= 0 {
		cfg.HandleTimeout = defaultHandleTimeout
	}
	queues := make([]chan job, cfg.Workers)
	for i := range queues {
		queues[i] = make(chan job, cfg.QueueSize)
	}
	return &Processor{cfg: cfg, queues: queues}
}

// Run consumes src until it returns, then drains the worker queues.
func (p *Processor) Run(ctx context.Context, src transport.Source) error {
	var wg conc.WaitGroup
	for i, q := range p.queues {
		wg.Go(func() {
			log.Debug().Int("worker", i).Msg("worker started")
			for j := range q {
				p.handle(ctx, j)
			}
		})
	}
	log.Info().Int("workers", len(p.queues)).Msg("processor running")

	err := src.Consume(ctx, p.Dispatch)

	p.mu.Lock()
	p.closed = true
	for _, q := range p.queues {
		close(q)
	}
	p.mu.Unlock()

	wg.Wait()
	return err
}

// Dispatch decodes msg and queues it on its trip's worker. Undecodable
// messages are acknowledged and dropped here.
func (p *Processor) Dispatch(msg transport.Message) {
	schema := msg.Schema()
	p.consumed(schema)

	rec, err := ingest.Decode(schema, msg.Data())
	if err != nil {
		log.Warn().Err(err).Str("schema", schema).Msg("dropping undecodable message")
		p.rejected(ReasonDecode)
		p.ack(msg, "")
		return
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		// Left unacknowledged so the bus redelivers it.
		return
	}
	p.queues[p.shard(rec.TripKey())] <- job{msg: msg, rec: rec}
}

func (p *Processor) shard(key string) int {
	return int(xxhash.Sum64String(key) % uint64(len(p.queues)))
}

// handle processes and acknowledges one message. Lookups run detached from
// ctx, which shutdown cancels while queues are still draining.
func (p *Processor) handle(ctx context.Context, j job) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.HandleTimeout)
	defer cancel()

	var pc panics.Catcher
	pc.Try(func() { p.process(ctx, j.rec) })
	if r := pc.Recovered(); r != nil {
		log.Error().
			Str("trip", j.rec.TripKey()).
			Str("schema", j.msg.Schema()).
			Str("panic", r.String()).
			Msg("message processing failed")
		p.rejected(ReasonPanic)
	}
	p.ack(j.msg, j.rec.TripKey())
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.ProcessObserve(time.Since(start))
	}
}

func (p *Processor) process(ctx context.Context, rec ingest.Record) {
	switch r := rec.(type) {
	case *ingest.EstimateRecord:
		p.processEstimate(ctx, r)
	case *ingest.CancellationRecord:
		p.processCancellation(ctx, r)
	}
}

func (p *Processor) processEstimate(ctx context.Context, r *ingest.EstimateRecord) {
	if err := p.cfg.Enricher.Enrich(ctx, r); err != nil {
		log.Warn().Err(err).Str("trip", r.TripID).Msg("reference data lookup failed")
	}
	if !p.cfg.Ingester.ValidateEstimate(r) {
		p.rejected(ReasonIngest)
		return
	}
	ev := p.cfg.Ingester.TranslateEstimate(r)
	tu, ok := p.cfg.Engine.ApplyStopEstimate(ev)
	if !ok {
		log.Debug().Str("trip", ev.TripID).Msg("no trip update for estimate")
		return
	}
	p.emit(ev.TripID, tu)
}

func (p *Processor) processCancellation(ctx context.Context, r *ingest.CancellationRecord) {
	if !p.cfg.Ingester.ValidateCancellation(r) {
		p.rejected(ReasonIngest)
		return
	}
	c := p.cfg.Ingester.TranslateCancellation(r)
	if c.TripID == "" && p.cfg.Resolver != nil {
		if id := p.cfg.Resolver.Resolve(ctx, c); id != tripid.Unknown {
			c.TripID = id
		}
	}
	ts := r.Timestamp
	if ts <= 0 {
		ts = time.Now().UnixMilli()
	}
	key := c.Key()
	tu := p.cfg.Engine.ApplyCancellation(key, ts, c)
	log.Info().Str("trip", key).Stringer("status", c.Status).Msg("applied cancellation")
	p.emit(key, tu)
}

func (p *Processor) emit(key string, tu gtfs.TripUpdate) {
	if name := p.cfg.Validators.Validate(tu); name != "" {
		p.rejected(name)
		return
	}
	if err := p.cfg.Publisher.PublishTripUpdate(key, tu); err != nil {
		log.Error().Err(err).Str("trip", key).Msg("publish trip update")
	}
}

func (p *Processor) ack(msg transport.Message, key string) {
	if err := msg.Ack(); err != nil {
		log.Warn().Err(err).Str("trip", key).Msg("ack failed")
	}
}

func (p *Processor) consumed(schema string) {
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.ConsumedInc(schema)
	}
}

func (p *Processor) rejected(reason string) {
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.RejectedInc(reason)
	}
}

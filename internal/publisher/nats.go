package publisher

import (
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"gtfsrt-tripupdater/internal/gtfs"
)

const contentType = "application/x-protobuf"

// msgConn is the part of *nats.Conn the publisher uses.
type msgConn interface {
	PublishMsg(msg *nats.Msg) error
	Drain() error
	Close()
}

type NATSPublisher struct {
	nc          msgConn
	prefix      string
	logSubjects bool
	metrics     PublisherMetrics
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
}

func NewNATSPublisher(nc *nats.Conn, prefix string, logSubjects bool, m PublisherMetrics) *NATSPublisher {
	// a nil *nats.Conn stays a nil msgConn
	if nc == nil {
		return newPublisher(nil, prefix, logSubjects, m)
	}
	return newPublisher(nc, prefix, logSubjects, m)
}

func newPublisher(nc msgConn, prefix string, logSubjects bool, m PublisherMetrics) *NATSPublisher {
	return &NATSPublisher{nc: nc, prefix: prefix, logSubjects: logSubjects, metrics: m}
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		if err := p.nc.Drain(); err != nil {
			log.Warn().Err(err).Msg("nats drain")
		}
		p.nc.Close()
	}
}

// Subject returns the subject a trip update is published on.
func (p *NATSPublisher) Subject(routeID, tripKey string) string {
	return fmt.Sprintf("%s.%s.%s", p.prefix, subjectToken(routeID), subjectToken(tripKey))
}

// PublishTripUpdate sends tu as a single-entity GTFS-RT feed message.
func (p *NATSPublisher) PublishTripUpdate(tripKey string, tu gtfs.TripUpdate) error {
	b, err := gtfs.Marshal(tripKey, tu)
	if err != nil {
		return fmt.Errorf("encode trip update %s: %w", tripKey, err)
	}
	subject := p.Subject(tu.Trip.RouteID, tripKey)
	if p.logSubjects {
		log.Debug().Str("subject", subject).Msg("nats publish")
	}

	msg := nats.NewMsg(subject)
	msg.Header.Set("Content-Type", contentType)
	msg.Header.Set("trip-id", tripKey)
	msg.Data = b

	start := time.Now()
	err = p.nc.PublishMsg(msg)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	if err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}

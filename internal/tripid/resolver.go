// Package tripid resolves canonical trip ids for cancellations that arrive
// without one, using an external HTTP service.
package tripid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"

	"gtfsrt-tripupdater/internal/gtfs"
)

// Unknown is returned when the trip id cannot be resolved.
const Unknown = ""

const (
	DefaultCacheTTL   = 6 * time.Hour
	DefaultFailureTTL = 30 * time.Second
	defaultTimeout    = 300 * time.Millisecond
	defaultMaxWait    = time.Second
	maxRetries        = 2
)

var errNotFound = errors.New("trip not found")

type Options struct {
	BaseURL  string
	CacheTTL time.Duration
	// FailureTTL is how long a descriptor whose lookup failed is answered
	// with Unknown without asking the service again.
	FailureTTL time.Duration
	// Timeout bounds a single request, MaxWait a whole Resolve call
	// including retries.
	Timeout time.Duration
	MaxWait time.Duration
	// Client overrides the HTTP client, mainly for tests.
	Client *http.Client
}

// Resolver looks up trip ids by route descriptor. Successful lookups and
// definite misses are cached for CacheTTL, failed lookups for FailureTTL.
//
// Directions are sent in the source convention, 1 or 2, like every other
// external service the pipeline talks to.
type Resolver struct {
	base     *url.URL
	client   *http.Client
	cache    *expirable.LRU[string, string]
	failures *expirable.LRU[string, struct{}]
	timeout  time.Duration
	maxWait  time.Duration
	retries  uint64
	policy   func() backoff.BackOff
}

func New(opts Options) (*Resolver, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid trip id resolver url: %q", opts.BaseURL)
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.FailureTTL <= 0 {
		opts.FailureTTL = DefaultFailureTTL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = defaultMaxWait
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	maxWait := opts.MaxWait
	return &Resolver{
		base:     base,
		client:   client,
		cache:    expirable.NewLRU[string, string](0, nil, opts.CacheTTL),
		failures: expirable.NewLRU[string, struct{}](0, nil, opts.FailureTTL),
		timeout:  opts.Timeout,
		maxWait:  maxWait,
		retries:  maxRetries,
		policy: func() backoff.BackOff {
			return backoff.NewExponentialBackOff(
				backoff.WithInitialInterval(50*time.Millisecond),
				backoff.WithMaxElapsedTime(maxWait),
			)
		},
	}, nil
}

type response struct {
	TripID string `json:"tripId"`
}

// Resolve returns the canonical trip id for c, or Unknown. It never returns an
// error; failures are logged. A call takes at most MaxWait.
func (r *Resolver) Resolve(ctx context.Context, c gtfs.TripCancellation) string {
	if c.TripID != "" {
		return c.TripID
	}
	key := c.Key()
	if id, ok := r.cache.Get(key); ok {
		return id
	}
	if _, failed := r.failures.Get(key); failed {
		return Unknown
	}

	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, r.maxWait)
	defer cancel()
	b := backoff.WithContext(
		backoff.WithMaxRetries(r.policy(), r.retries),
		ctx,
	)
	id, err := backoff.RetryNotifyWithData(
		func() (string, error) {
			id, err := r.fetch(ctx, c)
			if errors.Is(err, errNotFound) {
				return Unknown, backoff.Permanent(err)
			}
			return id, err
		},
		b,
		func(err error, d time.Duration) {
			log.Debug().Err(err).Str("trip", key).Dur("backoff", d).Msg("retrying trip id lookup")
		},
	)
	switch {
	case errors.Is(err, errNotFound):
		r.cache.Add(key, Unknown)
		return Unknown
	case err != nil:
		log.Warn().Err(err).Str("trip", key).Msg("trip id lookup failed")
		if parent.Err() == nil {
			r.failures.Add(key, struct{}{})
		}
		return Unknown
	}
	r.cache.Add(key, id)
	return id
}

func (r *Resolver) fetch(ctx context.Context, c gtfs.TripCancellation) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	u := *r.base
	q := u.Query()
	q.Set("route", c.RouteID)
	q.Set("direction", strconv.FormatUint(uint64(c.DirectionID)+1, 10))
	q.Set("date", c.StartDate)
	q.Set("time", c.StartTime)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request trip id: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", errNotFound
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("trip id service: %s", resp.Status)
	case resp.StatusCode != http.StatusOK:
		return "", backoff.Permanent(fmt.Errorf("trip id service: %s", resp.Status))
	}

	var body response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", backoff.Permanent(fmt.Errorf("decode trip id: %w", err))
	}
	if body.TripID == "" {
		return "", errNotFound
	}
	return body.TripID, nil
}

// Len returns the number of cached lookups.
func (r *Resolver) Len() int { return r.cache.Len() }

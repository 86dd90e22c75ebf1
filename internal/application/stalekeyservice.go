// Package application contains use-case orchestration services.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/juju/clock"
	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/iamkeycheck/internal/domain/model"
	"github.com/ericfisherdev/iamkeycheck/internal/domain/port/driven"
)

// ErrNegativeThreshold is returned by CheckStale for a threshold below zero.
var ErrNegativeThreshold = errors.New("threshold hours must not be negative")

// StaleKeyService finds access keys older than a threshold by authenticating
// as every exported credential and listing the owner's keys.
type StaleKeyService struct {
	source      driven.CredentialSource
	identities  driven.IdentityClientFactory
	recorder    driven.CheckRecorder
	clock       clock.Clock
	logger      *slog.Logger
	concurrency int
	callTimeout time.Duration
}

// StaleKeyOption customizes a StaleKeyService.
type StaleKeyOption func(*StaleKeyService)

// WithClock sets the clock used to capture the reference time of a check.
func WithClock(c clock.Clock) StaleKeyOption {
	return func(s *StaleKeyService) { s.clock = c }
}

// WithConcurrency bounds the number of records looked up at once. Values
// below one are treated as one, i.e. sequential processing.
func WithConcurrency(n int) StaleKeyOption {
	return func(s *StaleKeyService) {
		if n < 1 {
			n = 1
		}
		s.concurrency = n
	}
}

// WithCallTimeout bounds the identity lookups of a single record.
func WithCallTimeout(d time.Duration) StaleKeyOption {
	return func(s *StaleKeyService) { s.callTimeout = d }
}

// WithRecorder reports every completed check to r.
func WithRecorder(r driven.CheckRecorder) StaleKeyOption {
	return func(s *StaleKeyService) { s.recorder = r }
}

// NewStaleKeyService creates a StaleKeyService with the required dependencies.
func NewStaleKeyService(
	source driven.CredentialSource,
	identities driven.IdentityClientFactory,
	logger *slog.Logger,
	opts ...StaleKeyOption,
) *StaleKeyService {
	s := &StaleKeyService{
		source:      source,
		identities:  identities,
		recorder:    nopRecorder{},
		clock:       clock.WallClock,
		logger:      logger,
		concurrency: 1,
		callTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadCredentials returns every credential record the source holds.
func (s *StaleKeyService) LoadCredentials(ctx context.Context) ([]model.CredentialRecord, error) {
	return s.source.LoadAll(ctx)
}

// CheckStale returns every managed key, reachable from any exported
// credential, whose age is strictly greater than thresholdHours.
//
// Records are independent: a record whose lookups fail is logged and
// contributes nothing. Results are ordered by record, then by the order the
// identity API lists each owner's keys. If ctx is canceled the results
// gathered so far are returned together with ctx.Err().
func (s *StaleKeyService) CheckStale(ctx context.Context, thresholdHours int) ([]model.StaleResult, error) {
	if thresholdHours < 0 {
		return nil, ErrNegativeThreshold
	}

	start := time.Now()

	records, err := s.source.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}

	now := s.clock.Now().UTC()
	threshold := time.Duration(thresholdHours) * time.Hour

	// One slot per record; each worker writes only its own slot.
	slots := make([][]model.StaleResult, len(records))
	failed := make([]bool, len(records))

	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for i, rec := range records {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results, err := s.checkRecord(ctx, rec, now, threshold)
			if err != nil {
				failed[i] = true
				s.logger.Warn("failed to check key", "key_id", rec.KeyID, "error", err)
				return nil
			}
			slots[i] = results
			return nil
		})
	}
	_ = g.Wait()

	stale := make([]model.StaleResult, 0)
	var failures int
	for i := range records {
		stale = append(stale, slots[i]...)
		if failed[i] {
			failures++
		}
	}

	s.recorder.RecordCheck(len(records), failures, len(stale), time.Since(start))
	s.logger.Info("stale key check complete",
		"threshold_hours", thresholdHours,
		"records", len(records),
		"failures", failures,
		"stale", len(stale),
		"duration", time.Since(start).Round(time.Millisecond),
	)

	if err := ctx.Err(); err != nil {
		return stale, err
	}
	return stale, nil
}

// checkRecord resolves the owner of rec and tests each of the owner's keys
// against the threshold. All calls share one timeout.
func (s *StaleKeyService) checkRecord(
	ctx context.Context,
	rec model.CredentialRecord,
	now time.Time,
	threshold time.Duration,
) ([]model.StaleResult, error) {
	if s.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.callTimeout)
		defer cancel()
	}

	client, err := s.identities.ForCredential(rec)
	if err != nil {
		return nil, fmt.Errorf("create identity client: %w", err)
	}

	owner, err := client.ResolveOwner(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve owner: %w", err)
	}

	creds, err := client.ListManagedCredentials(ctx, owner.Username)
	if err != nil {
		return nil, fmt.Errorf("list managed credentials: %w", err)
	}

	var results []model.StaleResult
	for _, c := range creds {
		if model.IsStale(now, c.CreatedAt, threshold) {
			results = append(results, model.StaleResult{
				OwnerID:      owner.Username,
				CredentialID: c.ID,
			})
		}
	}

	s.logger.Debug("key checked",
		"key_id", rec.KeyID,
		"owner", owner.Username,
		"managed_keys", len(creds),
		"stale", len(results),
	)

	return results, nil
}

// nopRecorder discards check summaries.
type nopRecorder struct{}

func (nopRecorder) RecordCheck(int, int, int, time.Duration) {}

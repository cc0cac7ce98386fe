package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/maltedev/storefront-sku-lookup/internal/browser"
	"github.com/maltedev/storefront-sku-lookup/internal/models"
	"github.com/maltedev/storefront-sku-lookup/internal/parser"
	"github.com/maltedev/storefront-sku-lookup/internal/policy"
)

const defaultNavigationTimeout = 30 * time.Second

type Options struct {
	// Workers is the number of identifiers looked up concurrently. Each
	// worker owns a browser session.
	Workers  int
	Messages policy.Messages
}

func DefaultOptions() Options {
	return Options{
		Workers:  1,
		Messages: policy.Default().Messages,
	}
}

// Crawler drives the search, visit, match loop for batches of identifiers.
type Crawler struct {
	launcher browser.Launcher
	search   *SearchScraper
	parser   parser.Parser
	nav      *Navigator
	opts     Options
	logger   *slog.Logger
}

func NewCrawler(launcher browser.Launcher, search *SearchScraper, p parser.Parser, opts Options, logger *slog.Logger) *Crawler {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Crawler{
		launcher: launcher,
		search:   search,
		parser:   p,
		nav:      search.nav,
		opts:     opts,
		logger:   logger.With("component", "crawler"),
	}
}

// worker holds the browser resources reused across the identifiers it
// handles.
type worker struct {
	id         int
	session    browser.Session
	searchPage browser.Page
	logger     *slog.Logger
}

// LookupBatch returns exactly one outcome per identifier, in input order.
// Failures while handling one identifier become an error outcome for it; the
// only batch-level error is ErrSessionUnavailable. Identifiers left over when
// ctx is cancelled are reported as failed with the context error.
func (c *Crawler) LookupBatch(ctx context.Context, ids []string) ([]models.Outcome, error) {
	agg := NewAggregator(ids)
	if len(ids) == 0 {
		return agg.Outcomes(), nil
	}

	batchID := BatchID(ctx)
	if batchID == "" {
		batchID = uuid.NewString()
		ctx = WithBatchID(ctx, batchID)
	}
	logger := c.logger.With("batch_id", batchID)

	workers := min(c.opts.Workers, len(ids))
	logger.Info("batch started", "identifiers", len(ids), "workers", workers)
	start := time.Now()

	var next atomic.Int64
	g, gctx := errgroup.WithContext(ctx)

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			return c.runWorker(gctx, w, ids, &next, agg, logger)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("batch aborted", "error", err)
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		agg.FillMissing(err)
	}

	outcomes := agg.Outcomes()
	summary := models.Summarize(outcomes)
	logger.Info("batch finished",
		"duration", time.Since(start),
		"matched", summary.Matched,
		"no_results", summary.NoResults,
		"no_match", summary.NoMatch,
		"errors", summary.Errors,
	)

	return outcomes, nil
}

func (c *Crawler) runWorker(ctx context.Context, id int, ids []string, next *atomic.Int64, agg *Aggregator, logger *slog.Logger) error {
	w, err := c.startWorker(ctx, id, logger)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer c.stopWorker(w)

	for {
		if ctx.Err() != nil {
			return nil
		}

		i := int(next.Add(1) - 1)
		if i >= len(ids) {
			return nil
		}

		agg.Set(i, c.lookupOne(ctx, w, ids[i]))
	}
}

func (c *Crawler) startWorker(ctx context.Context, id int, logger *slog.Logger) (*worker, error) {
	session, err := c.launcher.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}

	page, err := session.NewPage(ctx)
	if err != nil {
		if cerr := session.Close(); cerr != nil {
			logger.Warn("failed to close session", "error", cerr)
		}
		return nil, fmt.Errorf("%w: search page: %v", ErrSessionUnavailable, err)
	}

	return &worker{
		id:         id,
		session:    session,
		searchPage: page,
		logger:     logger.With("worker", id),
	}, nil
}

func (c *Crawler) stopWorker(w *worker) {
	if err := w.searchPage.Close(); err != nil {
		w.logger.Warn("failed to close search page", "error", err)
	}
	if err := w.session.Close(); err != nil {
		w.logger.Warn("failed to close session", "error", err)
	}
}

// lookupOne walks one identifier through search, candidate visits and
// matching. It never panics and never returns an error; both become an error
// outcome.
func (c *Crawler) lookupOne(ctx context.Context, w *worker, identifier string) (outcome models.Outcome) {
	logger := w.logger.With("identifier", identifier)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic during lookup", "panic", r, "stack", string(debug.Stack()))
			outcome = models.Failed(identifier, fmt.Errorf("%w: %v", ErrLookupPanic, r))
		}
	}()

	logger.Info("lookup started")

	candidates, err := c.search.ResolveCandidates(ctx, w.searchPage, identifier)
	if err != nil {
		logger.Warn("search failed", "error", err)
		return models.Failed(identifier, err)
	}

	if len(candidates) == 0 {
		logger.Info("lookup finished", "outcome", models.OutcomeNoResults.String())
		return models.NoResults(identifier, c.opts.Messages.NoResults)
	}

	for i, url := range candidates {
		logger.Debug("visiting candidate", "index", i, "of", len(candidates), "url", url)

		record, err := c.visitCandidate(ctx, w.session, url, identifier)
		if err != nil {
			logger.Warn("candidate visit failed", "url", url, "error", err)
			return models.Failed(identifier, err)
		}

		if record.Matched {
			logger.Info("lookup finished", "outcome", models.OutcomeMatched.String(), "url", url)
			return models.Matched(identifier, record)
		}
	}

	logger.Info("lookup finished", "outcome", models.OutcomeNoMatch.String(), "candidates", len(candidates))
	return models.NoMatch(identifier, c.opts.Messages.NoMatch)
}

// visitCandidate reads one product page in its own tab. The tab is closed
// before returning, including when extraction panics.
func (c *Crawler) visitCandidate(ctx context.Context, session browser.Session, url, identifier string) (*models.ProductRecord, error) {
	page, err := session.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open page for %s: %w", url, err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			c.logger.Debug("failed to close candidate page", "url", url, "error", err)
		}
	}()

	if err := c.nav.Open(ctx, page, url); err != nil {
		return nil, fmt.Errorf("failed to load candidate %s: %w", url, err)
	}

	record := c.parser.ReadProduct(ctx, page, url, identifier)

	// Extraction swallows engine errors, so a cancellation mid-read would
	// otherwise surface as a page full of placeholders.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if record == nil {
		return nil, errors.New("parser returned no record")
	}

	return record, nil
}

// Lookup is LookupBatch for a single identifier.
func (c *Crawler) Lookup(ctx context.Context, identifier string) (models.Outcome, error) {
	outcomes, err := c.LookupBatch(ctx, []string{identifier})
	if err != nil {
		return models.Outcome{}, err
	}
	return outcomes[0], nil
}

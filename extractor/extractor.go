package extractor

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"cotton-extractor/adapters"
	"cotton-extractor/internal/types"
	scrapeerrors "cotton-extractor/pkg/errors"
	"cotton-extractor/services/cache"
	"cotton-extractor/services/storage"
	"cotton-extractor/utils"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// RegionAll selects every configured region
const RegionAll = "ALL"

// Catalog is the retailer and region table the extractor plans jobs from
type Catalog interface {
	RegionCodes() []string
	Region(code string) (types.Region, error)
	Retailer(key string) (types.RetailerSpec, error)
	BaseURL(key, region string) (string, error)
}

// BrowserFactory acquires the browsing capability for one job
type BrowserFactory func(ctx context.Context) (types.Browser, error)

// AdapterFactory builds the adapter for one retailer in one region
type AdapterFactory func(spec types.RetailerSpec, region types.Region, opts adapters.Options) types.RetailerAdapter

// Options configures an Extractor
type Options struct {
	Config     *types.Config
	Logger     types.Logger
	Catalog    Catalog
	NewBrowser BrowserFactory
	// NewAdapter defaults to adapters.New
	NewAdapter AdapterFactory
	// Sink defaults to storage.Discard
	Sink       storage.Sink
	Rejections *cache.Rejections
}

// Request selects what one job scrapes. Empty Retailers means every retailer
// of the region, empty Genders means every gender.
type Request struct {
	Region    string         `json:"region"`
	Retailers []string       `json:"retailers"`
	Genders   []types.Gender `json:"genders"`
}

// Status is a point-in-time snapshot of the current or last job
type Status struct {
	Running         bool       `json:"running"`
	JobID           string     `json:"job_id,omitempty"`
	Region          string     `json:"region,omitempty"`
	CurrentRetailer string     `json:"current_retailer,omitempty"`
	ProgressPercent int        `json:"progress_percent"`
	TotalProducts   int        `json:"total_products"`
	Errors          []string   `json:"errors"`
	Log             []string   `json:"log"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

// Event types published to subscribers
const (
	EventLog    = "log"
	EventStatus = "status"
	EventDone   = "done"
)

// Event is a progress update for streaming clients
type Event struct {
	Type    string  `json:"type"`
	Message string  `json:"message,omitempty"`
	Status  *Status `json:"status,omitempty"`
}

// Result is the final aggregate of a job
type Result struct {
	JobID    string          `json:"job_id"`
	Region   string          `json:"region"`
	Products []types.Product `json:"products"`
	Errors   []string        `json:"errors"`
}

// job is one planned unit of work: a retailer in a region
type job struct {
	region types.Region
	spec   types.RetailerSpec
}

// Extractor runs at most one scrape job at a time and reports its progress
type Extractor struct {
	config     *types.Config
	logger     types.Logger
	catalog    Catalog
	newBrowser BrowserFactory
	newAdapter AdapterFactory
	sink       storage.Sink
	rejections *cache.Rejections

	stopping atomic.Bool

	mu          sync.Mutex
	busy        bool
	status      Status
	result      *Result
	done        chan struct{}
	cancel      context.CancelFunc
	subscribers map[int]chan Event
	nextSub     int
}

// NewExtractor creates a new extractor instance
func NewExtractor(opts Options) *Extractor {
	config := opts.Config
	if config == nil {
		config = types.DefaultConfig()
	}
	newAdapter := opts.NewAdapter
	if newAdapter == nil {
		newAdapter = adapters.New
	}
	sink := opts.Sink
	if sink == nil {
		sink = storage.Discard{}
	}

	return &Extractor{
		config:      config,
		logger:      opts.Logger,
		catalog:     opts.Catalog,
		newBrowser:  opts.NewBrowser,
		newAdapter:  newAdapter,
		sink:        sink,
		rejections:  opts.Rejections,
		status:      Status{Errors: []string{}, Log: []string{}},
		subscribers: make(map[int]chan Event),
	}
}

// Start validates the request, acquires the browser and runs the job in the
// background. It returns the job id, ErrAlreadyRunning while another job is
// in progress, or the startup failure.
func (e *Extractor) Start(ctx context.Context, req Request) (string, error) {
	e.mu.Lock()
	if e.busy {
		e.mu.Unlock()
		return "", scrapeerrors.ErrAlreadyRunning
	}
	e.busy = true
	e.mu.Unlock()

	jobs, genders, warnings, err := e.plan(req)
	if err != nil {
		e.release()
		return "", err
	}

	// The job outlives the caller's context; only Shutdown cancels it
	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	browser, err := e.newBrowser(jobCtx)
	if err != nil {
		cancel()
		e.release()
		return "", scrapeerrors.NewBrowser("failed to start browser", fmt.Errorf("%w: %v", scrapeerrors.ErrBrowserUnavailable, err))
	}

	jobID := uuid.New().String()
	region := strings.ToUpper(req.Region)
	startedAt := time.Now()

	e.stopping.Store(false)
	e.mu.Lock()
	e.status = Status{
		Running:   true,
		JobID:     jobID,
		Region:    region,
		Errors:    []string{},
		Log:       []string{},
		StartedAt: &startedAt,
	}
	e.done = make(chan struct{})
	e.cancel = cancel
	e.mu.Unlock()

	e.logf("Starting scrape for %s region", region)
	e.logf("Retailers: %s", strings.Join(jobKeys(jobs), ", "))
	e.logf("Genders: %s", joinGenders(genders))
	for _, warning := range warnings {
		e.recordError(warning)
	}

	go e.run(jobCtx, jobID, region, jobs, genders, browser)
	return jobID, nil
}

// Stop asks the running job to finish after the retailer in progress
func (e *Extractor) Stop() error {
	e.mu.Lock()
	running := e.status.Running
	e.mu.Unlock()
	if !running {
		return scrapeerrors.ErrNotRunning
	}

	e.stopping.Store(true)
	e.logf("Stop requested by user")
	return nil
}

// Shutdown cancels the running job, interrupting in-flight page loads, and
// waits for it to exit
func (e *Extractor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	if cancel == nil {
		return nil
	}
	e.stopping.Store(true)
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns a snapshot of the current or last job
func (e *Extractor) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot()
}

// Running reports whether a job is in progress
func (e *Extractor) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status.Running
}

// Wait blocks until the current job finishes and returns its result
func (e *Extractor) Wait(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()

	if done == nil {
		return nil, scrapeerrors.ErrNotRunning
	}

	select {
	case <-done:
		return e.Results(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Results returns the aggregate of the last finished job, or nil
func (e *Extractor) Results() *Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.result
}

// Subscribe returns a channel of progress events and a function that ends
// the subscription. Slow subscribers miss events rather than block the job.
func (e *Extractor) Subscribe() (<-chan Event, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextSub
	e.nextSub++
	events := make(chan Event, 64)
	e.subscribers[id] = events

	var once sync.Once
	return events, func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			delete(e.subscribers, id)
			close(events)
		})
	}
}

// plan resolves the request into retailer jobs in catalog order
func (e *Extractor) plan(req Request) ([]job, []types.Gender, []string, error) {
	genders, err := normalizeGenders(req.Genders)
	if err != nil {
		return nil, nil, nil, err
	}

	code := strings.ToUpper(strings.TrimSpace(req.Region))
	if code == "" {
		return nil, nil, nil, scrapeerrors.NewConfiguration("", "region is required", scrapeerrors.ErrUnknownRegion)
	}

	codes := []string{code}
	if code == RegionAll {
		codes = e.catalog.RegionCodes()
	}

	var regions []types.Region
	for _, c := range codes {
		region, err := e.catalog.Region(c)
		if err != nil {
			return nil, nil, nil, scrapeerrors.NewConfiguration("", "invalid region "+c, err)
		}
		regions = append(regions, region)
	}

	var jobs []job
	var warnings []string

	if len(req.Retailers) == 0 {
		for _, region := range regions {
			for _, key := range region.Retailers {
				spec, err := e.catalog.Retailer(key)
				if err != nil {
					warnings = append(warnings, scrapeerrors.NewConfiguration(key, "skipped", err).Error())
					continue
				}
				jobs = append(jobs, job{region: region, spec: spec})
			}
		}
		return jobs, genders, warnings, nil
	}

	for _, key := range dedupe(req.Retailers) {
		spec, err := e.catalog.Retailer(key)
		if err != nil {
			warnings = append(warnings, scrapeerrors.NewConfiguration(key, "skipped", err).Error())
			continue
		}

		planned := false
		var unsupported error
		for _, region := range regions {
			if _, err := e.catalog.BaseURL(spec.Key, region.Code); err != nil {
				unsupported = err
				continue
			}
			jobs = append(jobs, job{region: region, spec: spec})
			planned = true
		}
		if !planned {
			warnings = append(warnings, scrapeerrors.NewConfiguration(spec.Key, "not available in "+code, unsupported).Error())
		}
	}
	return jobs, genders, warnings, nil
}

// run executes the planned jobs and publishes the final aggregate
func (e *Extractor) run(ctx context.Context, jobID, region string, jobs []job, genders []types.Gender, browser types.Browser) {
	defer func() {
		if err := browser.Close(); err != nil {
			e.logger.Warnf("Failed to close browser: %v", err)
		}
	}()

	var collected [][]types.Product
	if e.config.Concurrent && len(jobs) > 1 {
		collected = e.runParallel(ctx, jobs, genders, browser)
	} else {
		collected = e.runSequential(ctx, jobs, genders, browser)
	}

	var allProducts []types.Product
	for _, products := range collected {
		allProducts = storage.MergeProducts(allProducts, products)
	}
	if allProducts == nil {
		allProducts = []types.Product{}
	}

	if len(allProducts) > 0 {
		label := storage.Label{Region: region, Time: time.Now()}
		if err := e.sink.Save(context.WithoutCancel(ctx), label, types.NewBatch(allProducts)); err != nil {
			e.recordError(fmt.Sprintf("Failed to save combined results: %v", err))
		} else {
			e.logf("Saved %d total products to %s", len(allProducts), label.FileName())
		}
	}

	e.finish(jobID, region, allProducts)
}

func (e *Extractor) runSequential(ctx context.Context, jobs []job, genders []types.Gender, browser types.Browser) [][]types.Product {
	collected := make([][]types.Product, 0, len(jobs))

	for i, j := range jobs {
		if e.stopping.Load() {
			e.logf("Scraping stopped by user")
			break
		}
		if ctx.Err() != nil {
			e.logf("Scraping cancelled")
			break
		}

		e.setCurrent(j.spec.Key, i*100/len(jobs))
		collected = append(collected, e.scrapeRetailer(ctx, j, genders, browser))
	}
	return collected
}

// runParallel scrapes up to MaxConcurrentRequests retailers at once, each on
// its own page
func (e *Extractor) runParallel(ctx context.Context, jobs []job, genders []types.Gender, browser types.Browser) [][]types.Product {
	collected := make([][]types.Product, len(jobs))
	var completed atomic.Int64

	limit := e.config.MaxConcurrentRequests
	if limit <= 0 {
		limit = 1
	}

	var g errgroup.Group
	g.SetLimit(limit)

	for i, j := range jobs {
		if e.stopping.Load() || ctx.Err() != nil {
			e.logf("Scraping stopped by user")
			break
		}

		g.Go(func() error {
			if e.stopping.Load() || ctx.Err() != nil {
				return nil
			}
			e.setCurrent(j.spec.Key, int(completed.Load())*100/len(jobs))
			collected[i] = e.scrapeRetailer(ctx, j, genders, browser)
			completed.Add(1)
			return nil
		})
	}

	_ = g.Wait()
	return collected
}

// scrapeRetailer runs every gender of one retailer on a dedicated page and
// flushes the retailer's batch. Failures are recorded, never returned.
func (e *Extractor) scrapeRetailer(ctx context.Context, j job, genders []types.Gender, browser types.Browser) (products []types.Product) {
	key := j.spec.Key
	defer func() {
		if r := recover(); r != nil {
			e.logger.Errorf("Panic while scraping %s: %v\n%s", key, r, debug.Stack())
			e.recordError(scrapeerrors.NewJob(key, fmt.Sprintf("panic: %v", r), nil).Error())
		}
	}()

	e.logf("Scraping %s (%s)...", j.spec.Name, j.region.Code)

	page, err := browser.NewPage(ctx)
	if err != nil {
		e.recordError(fmt.Sprintf("Error scraping %s: %v", key, scrapeerrors.NewBrowser("failed to open page", err)))
		return nil
	}
	defer page.Close()

	adapter := e.newAdapter(j.spec, j.region, adapters.Options{
		Config:     e.config,
		Logger:     e.logger,
		Rejections: e.rejections,
		OnError: func(err error) {
			e.logf("Skipped: %v", err)
		},
	})

	for _, gender := range genders {
		if ctx.Err() != nil {
			break
		}

		found, err := adapter.ScrapeCategory(ctx, page, gender)
		products = storage.MergeProducts(products, found)
		if err != nil {
			e.recordError(fmt.Sprintf("Error scraping %s %s: %v", key, gender, err))
			continue
		}
	}

	e.logf("Found %d products from %s", len(products), key)
	e.addProducts(len(products))

	if len(products) > 0 {
		label := storage.Label{Retailer: key, Region: j.region.Code, Time: time.Now()}
		if err := e.sink.Save(context.WithoutCancel(ctx), label, types.NewBatch(products)); err != nil {
			e.recordError(fmt.Sprintf("Failed to save %s results: %v", key, err))
		}
	}
	return products
}

func (e *Extractor) setCurrent(retailer string, progress int) {
	e.mu.Lock()
	e.status.CurrentRetailer = retailer
	if progress > e.status.ProgressPercent {
		e.status.ProgressPercent = progress
	}
	status := e.snapshot()
	e.mu.Unlock()

	e.publish(Event{Type: EventStatus, Status: &status})
}

func (e *Extractor) addProducts(n int) {
	e.mu.Lock()
	e.status.TotalProducts += n
	e.mu.Unlock()
}

func (e *Extractor) finish(jobID, region string, products []types.Product) {
	finishedAt := time.Now()

	e.mu.Lock()
	e.status.Running = false
	e.status.CurrentRetailer = ""
	e.status.ProgressPercent = 100
	e.status.TotalProducts = len(products)
	e.status.FinishedAt = &finishedAt
	e.result = &Result{
		JobID:    jobID,
		Region:   region,
		Products: products,
		Errors:   append([]string{}, e.status.Errors...),
	}
	e.mu.Unlock()

	e.logf("Scraping complete!")

	e.mu.Lock()
	status := e.snapshot()
	done, cancel := e.done, e.cancel
	e.cancel = nil
	e.busy = false
	e.mu.Unlock()

	cancel()
	e.publish(Event{Type: EventDone, Status: &status})
	close(done)
}

// release frees the reservation taken by a Start that failed before launching
func (e *Extractor) release() {
	e.mu.Lock()
	e.busy = false
	e.mu.Unlock()
}

// logf appends a timestamped line to the job log and publishes it
func (e *Extractor) logf(format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	e.logger.Info(message)
	e.appendLog(message, false)
}

// recordError adds a non-fatal failure to the job's error list and log
func (e *Extractor) recordError(message string) {
	e.logger.Warn(message)
	e.appendLog(message, true)
}

func (e *Extractor) appendLog(message string, failure bool) {
	entry := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), message)

	e.mu.Lock()
	if failure {
		e.status.Errors = append(e.status.Errors, message)
	}
	e.status.Log = append(e.status.Log, entry)
	e.mu.Unlock()

	e.publish(Event{Type: EventLog, Message: entry})
}

func (e *Extractor) publish(event Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, subscriber := range e.subscribers {
		select {
		case subscriber <- event:
		default:
		}
	}
}

// snapshot copies the status; callers hold e.mu
func (e *Extractor) snapshot() Status {
	status := e.status
	status.Errors = append([]string{}, e.status.Errors...)
	status.Log = append([]string{}, e.status.Log...)
	return status
}

func normalizeGenders(requested []types.Gender) ([]types.Gender, error) {
	if len(requested) == 0 {
		return types.AllGenders(), nil
	}

	var genders []types.Gender
	seen := make(map[types.Gender]bool)
	for _, label := range requested {
		gender, ok := utils.NormalizeGender(string(label))
		if !ok {
			return nil, scrapeerrors.NewConfiguration("", fmt.Sprintf("unknown gender %q", label), nil)
		}
		if !seen[gender] {
			seen[gender] = true
			genders = append(genders, gender)
		}
	}
	return genders, nil
}

func dedupe(keys []string) []string {
	var unique []string
	seen := make(map[string]bool)
	for _, key := range keys {
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, key)
	}
	return unique
}

func jobKeys(jobs []job) []string {
	keys := make([]string, 0, len(jobs))
	for _, j := range jobs {
		keys = append(keys, j.spec.Key)
	}
	return dedupe(keys)
}

func joinGenders(genders []types.Gender) string {
	labels := make([]string, 0, len(genders))
	for _, gender := range genders {
		labels = append(labels, string(gender))
	}
	return strings.Join(labels, ", ")
}

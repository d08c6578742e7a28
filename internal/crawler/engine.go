package crawler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/wikicrawler/internal/clock/system"
	"github.com/JakeFAU/wikicrawler/internal/metrics"
	"github.com/JakeFAU/wikicrawler/internal/progress"
)

// EngineConfig controls crawl admission.
type EngineConfig struct {
	// MaxDepth is the largest depth a caller may request.
	MaxDepth int
}

// Collaborators bundles the services the engine drives.
type Collaborators struct {
	Downloads  Executor
	Processing Executor
	Downloader Downloader
	Parser     Parser
	Storage    Storage
	Index      Indexer
	// InFlight is optional; a fresh set is created when nil.
	InFlight *InFlightSet
	// OnComplete receives every finished crawl task. Optional.
	OnComplete CompletionFunc
	// Progress receives lifecycle events. Optional.
	Progress progress.Emitter
	// IDs and Clock are optional.
	IDs   IDGenerator
	Clock Clock
}

// Engine runs recursive crawls. Downloads run on one executor; parsing,
// storage, indexing and link extraction run on the other. Pages are admitted
// through a global in-flight set so that each canonical article is processed
// at most once while it is live.
type Engine struct {
	cfg        EngineConfig
	downloads  Executor
	processing Executor
	downloader Downloader
	parser     Parser
	storage    Storage
	index      Indexer
	inFlight   *InFlightSet
	onComplete CompletionFunc
	progress   progress.Emitter
	ids        IDGenerator
	clock      Clock
	logger     *zap.Logger
}

// NewEngine wires an Engine.
func NewEngine(cfg EngineConfig, deps Collaborators, logger *zap.Logger) (*Engine, error) {
	if cfg.MaxDepth < 1 {
		return nil, fmt.Errorf("max depth must be positive, got %d", cfg.MaxDepth)
	}
	switch {
	case deps.Downloads == nil, deps.Processing == nil:
		return nil, errors.New("engine requires download and processing executors")
	case deps.Downloader == nil:
		return nil, errors.New("engine requires a downloader")
	case deps.Parser == nil:
		return nil, errors.New("engine requires a parser")
	case deps.Storage == nil:
		return nil, errors.New("engine requires storage")
	case deps.Index == nil:
		return nil, errors.New("engine requires an index")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	inFlight := deps.InFlight
	if inFlight == nil {
		inFlight = NewInFlightSet()
	}
	clock := deps.Clock
	if clock == nil {
		clock = system.New()
	}
	emitter := deps.Progress
	if emitter == nil {
		emitter = progress.Nop{}
	}
	return &Engine{
		cfg:        cfg,
		downloads:  deps.Downloads,
		processing: deps.Processing,
		downloader: deps.Downloader,
		parser:     deps.Parser,
		storage:    deps.Storage,
		index:      deps.Index,
		inFlight:   inFlight,
		onComplete: deps.OnComplete,
		progress:   emitter,
		ids:        deps.IDs,
		clock:      clock,
		logger:     logger,
	}, nil
}

// MaxDepth returns the configured depth ceiling.
func (e *Engine) MaxDepth() int {
	return e.cfg.MaxDepth
}

// InFlight returns the live admission set.
func (e *Engine) InFlight() *InFlightSet {
	return e.inFlight
}

// Submit validates the request and starts a crawl of rawURL down to depth.
// Validation failures are returned synchronously; every later failure is
// confined to the page it happened on. If the initial page is already being
// crawled the returned task completes immediately with total 1.
func (e *Engine) Submit(ctx context.Context, rawURL string, depth int) (*CrawlTask, error) {
	if depth < 1 || depth > e.cfg.MaxDepth {
		return nil, NewValidationError(fmt.Sprintf("Depth should be between [1,%d], but [%d] given", e.cfg.MaxDepth, depth))
	}
	opts := []TaskOption{WithTaskClock(e.clock)}
	if e.ids != nil {
		id, err := e.ids.NewID()
		if err != nil {
			return nil, fmt.Errorf("generate task id: %w", err)
		}
		opts = append(opts, WithTaskID(id))
	}
	task, err := NewCrawlTask(rawURL, depth, e.complete, opts...)
	if err != nil {
		e.logger.Warn("crawl rejected", zap.String("url", rawURL), zap.Int("depth", depth), zap.Error(err))
		return nil, err
	}
	e.logger.Info("crawl submitted",
		zap.String("task_id", task.ID()),
		zap.String("url", task.URL()),
		zap.Int("depth", depth),
	)
	e.progress.Emit(progress.Event{
		TaskID: task.ID(),
		TS:     e.clock.Now(),
		Stage:  progress.StageTaskStart,
		URL:    task.URL(),
		Depth:  depth,
	})
	page := InitialPage(task)
	if !e.admit(ctx, page) {
		task.Start()
		task.Finish()
	}
	return task, nil
}

func (e *Engine) complete(c Completion) {
	e.logger.Info("crawl completed",
		zap.String("task_id", c.TaskID),
		zap.String("url", c.URL),
		zap.Int64("total", c.Total),
		zap.Int64("failed", c.Failed),
		zap.Duration("elapsed", c.CompletedAt.Sub(c.SubmittedAt)),
	)
	metrics.ObserveTask(c.Failed)
	e.progress.Emit(progress.Event{
		TaskID: c.TaskID,
		TS:     c.CompletedAt,
		Stage:  progress.StageTaskDone,
		URL:    c.URL,
		Depth:  c.MaxDepth,
		Total:  c.Total,
		Failed: c.Failed,
		Dur:    max(c.CompletedAt.Sub(c.SubmittedAt), 0),
	})
	if e.onComplete != nil {
		e.onComplete(c)
	}
}

// admit registers page and schedules its download. It reports false when the
// page's key is already in flight, in which case nothing was touched.
func (e *Engine) admit(ctx context.Context, page *Page) bool {
	if !e.inFlight.TryAdd(page.Key()) {
		e.logger.Debug("page already in flight", zap.String("url", page.URL()), zap.String("key", page.Key()))
		return false
	}
	page.Task().Start()
	metrics.ObservePageStarted()
	if err := ctx.Err(); err != nil {
		e.fail(page, fmt.Errorf("admit: %w", err), 0)
		return true
	}
	err := e.downloads.Submit(func(poolCtx context.Context) {
		e.download(ctx, poolCtx, page)
	})
	if err != nil {
		e.fail(page, fmt.Errorf("schedule download: %w", err), 0)
	}
	return true
}

func (e *Engine) download(ctx, poolCtx context.Context, page *Page) {
	fetchCtx, cancel := stageContext(ctx, poolCtx)
	defer cancel()
	if err := canceled(ctx, poolCtx); err != nil {
		e.fail(page, RemoteError(page.URL(), err), 0)
		return
	}
	body, err := e.downloader.Fetch(fetchCtx, page.URL())
	if err != nil {
		if !errors.Is(err, ErrRemote) {
			err = RemoteError(page.URL(), err)
		}
		e.fail(page, err, 0)
		return
	}
	e.logger.Debug("page downloaded", zap.String("url", page.URL()), zap.Int("bytes", len(body)))
	err = e.processing.Submit(func(poolCtx context.Context) {
		e.process(ctx, poolCtx, page, body)
	})
	if err != nil {
		e.fail(page, fmt.Errorf("schedule processing: %w", err), len(body))
	}
}

func (e *Engine) process(ctx, poolCtx context.Context, page *Page, body []byte) {
	stageCtx, cancel := stageContext(ctx, poolCtx)
	defer cancel()
	if err := canceled(ctx, poolCtx); err != nil {
		e.fail(page, fmt.Errorf("process %s: %w", page.URL(), err), len(body))
		return
	}
	doc, err := e.parser.Parse(body)
	if err != nil {
		e.fail(page, MalformedContentError(page.URL(), err), len(body))
		return
	}
	relPath := page.RelativePath()
	if err := e.storage.Store(stageCtx, relPath, body); err != nil {
		e.fail(page, IOFailureError(relPath, err), len(body))
		return
	}
	e.index.Insert(relPath, ContentTexts(doc))

	children := ExtractLinks(doc, page, e.logger)
	admitted := 0
	for _, child := range children {
		if e.admit(ctx, child) {
			admitted++
		}
	}
	e.logger.Debug("page processed",
		zap.String("url", page.URL()),
		zap.String("path", relPath),
		zap.Int("depth", page.Depth()),
		zap.Int("links", len(children)),
		zap.Int("admitted", admitted),
	)
	metrics.ObservePage(page.Edition(), metrics.StatusSucceeded, len(body))
	e.emitPage(page, progress.StagePageDone, len(body), "")
	page.Task().Finish()
}

// fail releases the page's key so a later crawl may retry it and records the
// failure on the owning task.
func (e *Engine) fail(page *Page, err error, bytesFetched int) {
	e.inFlight.Remove(page.Key())
	e.logger.Error("page failed",
		zap.String("task_id", page.Task().ID()),
		zap.String("url", page.URL()),
		zap.Int("depth", page.Depth()),
		zap.Error(err),
	)
	metrics.ObservePage(page.Edition(), metrics.StatusFailed, bytesFetched)
	e.emitPage(page, progress.StagePageFailed, bytesFetched, err.Error())
	page.Task().FinishFailed()
}

func (e *Engine) emitPage(page *Page, stage progress.Stage, bytes int, note string) {
	e.progress.Emit(progress.Event{
		TaskID:  page.Task().ID(),
		TS:      e.clock.Now(),
		Stage:   stage,
		URL:     page.URL(),
		Edition: page.Edition(),
		Depth:   page.Depth(),
		Bytes:   int64(bytes),
		Note:    note,
	})
}

// stageContext derives a context canceled by either the crawl context or the
// pool context.
func stageContext(ctx, poolCtx context.Context) (context.Context, context.CancelFunc) {
	stageCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(poolCtx, cancel)
	return stageCtx, func() {
		stop()
		cancel()
	}
}

func canceled(ctx, poolCtx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return poolCtx.Err()
}

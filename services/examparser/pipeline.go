package examparser

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sahilchouksey/exam-parser/model"
	"github.com/sahilchouksey/exam-parser/services/llm"
	"github.com/sahilchouksey/exam-parser/utils"
)

// ErrNoQuestions is returned only when every chunk of every strategy recovered
// zero records
var ErrNoQuestions = errors.New("no questions could be extracted")

const (
	DefaultSinglePassMaxChars   = 15000
	DefaultQuestionsPerWorker   = 20
	DefaultMaxConcurrent        = 5
	DefaultFallbackWindowChars  = 10000
	DefaultFallbackOverlapChars = 1500
	DefaultDedupPrefixRunes     = 30
)

// Strategy names the path a run took
type Strategy string

const (
	StrategySinglePass Strategy = "single_pass"
	StrategySupervised Strategy = "supervised"
	StrategyFallback   Strategy = "fallback"
)

// Config holds configuration for the extraction pipeline
type Config struct {
	SinglePassMaxChars   int     // Texts up to this many characters go to one worker
	QuestionsPerWorker   int     // Target questions per supervised chunk
	MaxConcurrent        int     // Max parallel worker calls
	FallbackWindowChars  int     // Sliding window size in characters
	FallbackOverlapChars int     // Overlap between sliding windows
	DedupPrefixRunes     int     // Content prefix used to dedup fallback output
	MarkerSimilarity     float64 // Minimum fuzzy similarity for marker location

	SupervisorMaxTokens int
	WorkerMaxTokens     int
	Temperature         float64
	SupervisorTimeout   time.Duration
	WorkerTimeout       time.Duration
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		SinglePassMaxChars:   DefaultSinglePassMaxChars,
		QuestionsPerWorker:   DefaultQuestionsPerWorker,
		MaxConcurrent:        DefaultMaxConcurrent,
		FallbackWindowChars:  DefaultFallbackWindowChars,
		FallbackOverlapChars: DefaultFallbackOverlapChars,
		DedupPrefixRunes:     DefaultDedupPrefixRunes,
		MarkerSimilarity:     DefaultMarkerSimilarity,
		SupervisorMaxTokens:  2048,
		WorkerMaxTokens:      8192,
		Temperature:          0.1,
		SupervisorTimeout:    120 * time.Second,
		WorkerTimeout:        180 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SinglePassMaxChars <= 0 {
		c.SinglePassMaxChars = d.SinglePassMaxChars
	}
	if c.QuestionsPerWorker <= 0 {
		c.QuestionsPerWorker = d.QuestionsPerWorker
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = d.MaxConcurrent
	}
	if c.FallbackWindowChars <= 0 {
		c.FallbackWindowChars = d.FallbackWindowChars
	}
	if c.FallbackOverlapChars < 0 || c.FallbackOverlapChars >= c.FallbackWindowChars {
		c.FallbackOverlapChars = d.FallbackOverlapChars
	}
	if c.DedupPrefixRunes <= 0 {
		c.DedupPrefixRunes = d.DedupPrefixRunes
	}
	if c.MarkerSimilarity <= 0 || c.MarkerSimilarity > 1 {
		c.MarkerSimilarity = d.MarkerSimilarity
	}
	if c.SupervisorMaxTokens <= 0 {
		c.SupervisorMaxTokens = d.SupervisorMaxTokens
	}
	if c.WorkerMaxTokens <= 0 {
		c.WorkerMaxTokens = d.WorkerMaxTokens
	}
	if c.Temperature <= 0 {
		c.Temperature = d.Temperature
	}
	if c.SupervisorTimeout <= 0 {
		c.SupervisorTimeout = d.SupervisorTimeout
	}
	if c.WorkerTimeout <= 0 {
		c.WorkerTimeout = d.WorkerTimeout
	}
	return c
}

// ProgressUpdate is reported as a run moves through its phases
type ProgressUpdate struct {
	Phase           string
	Strategy        Strategy
	TotalChunks     int
	CompletedChunks int
	FailedChunks    int
	Message         string
}

// ProgressFunc receives progress updates; calls are serialized
type ProgressFunc func(ProgressUpdate)

// Run is one extraction request
type Run struct {
	ExamID   string // Used for debug artifact keys; empty disables artifacts
	Year     int
	Text     string
	Progress ProgressFunc
}

// Result is the outcome of a successful run
type Result struct {
	Questions    []model.Question
	Strategy     Strategy
	Plan         *SplitPlan
	ChunkCount   int
	FailedChunks int
	RecordCount  int
	Duration     time.Duration
}

// Parser drives the supervisor/worker extraction pipeline
type Parser struct {
	supervisor *Supervisor
	worker     *Worker
	locator    *MarkerLocator
	artifacts  ArtifactStore
	config     Config
}

// NewParser creates a parser; a nil artifact store discards debug artifacts
func NewParser(completer llm.Completer, artifacts ArtifactStore, config Config) *Parser {
	config = config.withDefaults()
	if artifacts == nil {
		artifacts = nopArtifactStore{}
	}

	return &Parser{
		supervisor: NewSupervisor(completer, config),
		worker:     NewWorker(completer, config),
		locator:    NewMarkerLocator(config.MarkerSimilarity),
		artifacts:  artifacts,
		config:     config,
	}
}

// chunkResult is one worker's outcome, stored at the chunk's order
type chunkResult struct {
	Records []utils.Record
	Err     error
}

// Parse extracts the question tree from run.Text. Short texts take one worker
// call; long texts are split by the supervisor, falling back to overlapping
// windows when the plan cannot be anchored. Failed chunks only reduce the
// result; ErrNoQuestions is returned when nothing at all was recovered.
func (p *Parser) Parse(ctx context.Context, run Run) (*Result, error) {
	startTime := time.Now()
	progress := newProgressReporter(run.Progress)
	debug := debugWriter{store: p.artifacts, examID: run.ExamID}

	if strings.TrimSpace(run.Text) == "" {
		return nil, fmt.Errorf("%w: empty text", ErrNoQuestions)
	}

	textLen := utf8.RuneCountInString(run.Text)
	log.Printf("ExamParser: Parsing exam %s (%d chars)", run.ExamID, textLen)

	result := &Result{}
	var batches [][]utils.Record

	if textLen <= p.config.SinglePassMaxChars {
		result.Strategy = StrategySinglePass
		chunks := []TextChunk{{Order: 0, StartOffset: 0, EndOffset: len(run.Text), RawText: run.Text}}
		batches = p.extract(ctx, chunks, "chunk", result, progress, debug)
	} else {
		batches = p.parseSupervised(ctx, run, result, progress, debug)
	}

	if recordCount(batches) == 0 {
		log.Printf("ExamParser: Exam %s: no records recovered from %d chunks", run.ExamID, result.ChunkCount)
		return nil, ErrNoQuestions
	}

	records := batches
	if result.Strategy == StrategyFallback {
		records = [][]utils.Record{DedupWindows(batches, p.config.DedupPrefixRunes)}
	}
	result.RecordCount = recordCount(records)

	progress.report(ProgressUpdate{Phase: model.PhaseAssembling, Strategy: result.Strategy})
	result.Questions = NewAssembler(run.Year).Assemble(records)
	if len(result.Questions) == 0 {
		return nil, fmt.Errorf("%w: %d records could not be converted", ErrNoQuestions, result.RecordCount)
	}

	result.Duration = time.Since(startTime)
	log.Printf("ExamParser: Exam %s parsed in %.2fs via %s - %d questions, %d/%d chunks failed",
		run.ExamID, result.Duration.Seconds(), result.Strategy, len(result.Questions), result.FailedChunks, result.ChunkCount)

	return result, nil
}

// parseSupervised runs the supervisor, then the planned chunks, degrading to
// sliding windows when the plan is missing, unanchorable, or yields nothing
func (p *Parser) parseSupervised(ctx context.Context, run Run, result *Result, progress *progressReporter, debug debugWriter) [][]utils.Record {
	progress.report(ProgressUpdate{Phase: model.PhasePlanning, Strategy: StrategySupervised})

	plan := p.supervisor.ProposeSplit(ctx, run.Text, p.config.QuestionsPerWorker)
	if plan != nil {
		result.Plan = plan
		debug.writeJSON(ctx, "supervisor_plan.json", plan)
		log.Printf("ExamParser: Supervisor estimated %d questions in %d splits",
			plan.TotalQuestionsEstimate, len(plan.Entries))

		chunks, err := ExtractChunks(run.Text, plan, p.locator)
		if err == nil {
			result.Strategy = StrategySupervised
			batches := p.extract(ctx, chunks, "chunk", result, progress, debug)
			if recordCount(batches) > 0 {
				return batches
			}
			log.Printf("ExamParser: Supervised chunks recovered no records, falling back to sliding windows")
		} else {
			log.Printf("ExamParser: %v, falling back to sliding windows", err)
		}
	} else {
		log.Printf("ExamParser: No split plan, falling back to sliding windows")
	}

	result.Strategy = StrategyFallback
	progress.report(ProgressUpdate{Phase: model.PhaseFallback, Strategy: StrategyFallback})
	windows := SlidingWindows(run.Text, p.config.FallbackWindowChars, p.config.FallbackOverlapChars)
	return p.extract(ctx, windows, "fallback", result, progress, debug)
}

// extract fans chunks out to workers under a semaphore and waits for all of
// them. Each worker writes only its own slot, so results keep chunk order
// regardless of completion order.
func (p *Parser) extract(ctx context.Context, chunks []TextChunk, artifactPrefix string, result *Result, progress *progressReporter, debug debugWriter) [][]utils.Record {
	results := make([]chunkResult, len(chunks))
	var wg sync.WaitGroup

	semaphore := make(chan struct{}, p.config.MaxConcurrent)
	progress.startChunks(len(chunks), result.Strategy)

	log.Printf("ExamParser: Processing %d chunks (max %d concurrent)", len(chunks), p.config.MaxConcurrent)

	for i, chunk := range chunks {
		debug.writeText(ctx, chunkArtifactName(artifactPrefix, chunk.Order), chunk.RawText)

		wg.Add(1)
		go func(idx int, chunk TextChunk) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			results[idx] = p.extractChunk(ctx, chunk, artifactPrefix, debug)
			progress.chunkDone(results[idx].Err != nil)
		}(i, chunk)
	}

	wg.Wait()

	batches := make([][]utils.Record, len(results))
	for i, r := range results {
		if r.Err != nil {
			result.FailedChunks++
			log.Printf("ExamParser: Chunk %d failed: %v", i+1, r.Err)
			continue
		}
		batches[i] = r.Records
	}
	result.ChunkCount += len(chunks)

	return batches
}

// extractChunk runs one worker; a panic is isolated to its chunk
func (p *Parser) extractChunk(ctx context.Context, chunk TextChunk, artifactPrefix string, debug debugWriter) (res chunkResult) {
	defer func() {
		if r := recover(); r != nil {
			res = chunkResult{Err: fmt.Errorf("worker panic: %v", r)}
		}
	}()

	if ctx.Err() != nil {
		return chunkResult{Err: ctx.Err()}
	}

	records, resp, err := p.worker.Extract(ctx, chunk.RawText)
	if err != nil {
		return chunkResult{Err: err}
	}

	if len(resp.Raw) > 0 {
		debug.writeJSON(ctx, responseArtifactName(artifactPrefix, chunk.Order), resp.Raw)
	} else {
		debug.writeJSON(ctx, responseArtifactName(artifactPrefix, chunk.Order), resp)
	}

	log.Printf("ExamParser: Chunk %d completed - %d records", chunk.Order+1, len(records))
	return chunkResult{Records: records}
}

func recordCount(batches [][]utils.Record) int {
	n := 0
	for _, b := range batches {
		n += len(b)
	}
	return n
}

// progressReporter serializes progress callbacks from concurrent workers
type progressReporter struct {
	mu        sync.Mutex
	fn        ProgressFunc
	strategy  Strategy
	total     int
	completed int
	failed    int
}

func newProgressReporter(fn ProgressFunc) *progressReporter {
	return &progressReporter{fn: fn}
}

func (r *progressReporter) report(update ProgressUpdate) {
	if r.fn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fn(update)
}

func (r *progressReporter) startChunks(total int, strategy Strategy) {
	r.mu.Lock()
	r.strategy = strategy
	r.total = total
	r.completed = 0
	r.failed = 0
	r.mu.Unlock()

	r.report(ProgressUpdate{
		Phase:       model.PhaseExtraction,
		Strategy:    strategy,
		TotalChunks: total,
		Message:     fmt.Sprintf("Extracting %d chunks", total),
	})
}

func (r *progressReporter) chunkDone(failed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.completed++
	if failed {
		r.failed++
	}
	if r.fn == nil {
		return
	}
	r.fn(ProgressUpdate{
		Phase:           model.PhaseExtraction,
		Strategy:        r.strategy,
		TotalChunks:     r.total,
		CompletedChunks: r.completed,
		FailedChunks:    r.failed,
		Message:         fmt.Sprintf("Chunk %d/%d done", r.completed, r.total),
	})
}

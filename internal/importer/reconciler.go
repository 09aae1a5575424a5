// Package importer pulls cards from a board service and stores them as
// ranked tasks for one owner.
package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/iter"

	"taskrank/internal/cardsource"
	"taskrank/internal/domain"
	"taskrank/internal/logging"
	"taskrank/internal/priority"
)

const DefaultBatchSize = 10

// TaskSink persists one batch of tasks atomically.
type TaskSink interface {
	InsertTasks(ctx context.Context, tasks []domain.Task) error
}

// AtomicSink persists several batches in a single transaction.
type AtomicSink interface {
	InsertTaskBatches(ctx context.Context, batches [][]domain.Task) error
}

// ExternalIDLister reports which cards an owner already imported from a source.
type ExternalIDLister interface {
	ExternalIDs(ctx context.Context, ownerID, source string) (map[string]struct{}, error)
}

// RunRecorder receives the outcome of every import run made for an owner.
type RunRecorder interface {
	Record(ctx context.Context, run domain.ImportRun) error
}

type Options struct {
	BatchSize  int
	Vocabulary Vocabulary
	Scorer     priority.Scorer
	Now        func() time.Time
	Logger     *logging.Logger
	Recorder   RunRecorder

	// Atomic writes all batches in one transaction; requires an AtomicSink.
	Atomic bool
	// SkipExisting drops cards already imported by the owner; requires an ExternalIDLister.
	SkipExisting bool
}

// Result counts what happened to the fetched cards.
type Result struct {
	Fetched    int `json:"fetched"`
	Skipped    int `json:"skipped"`
	Normalized int `json:"normalized"`
	Dropped    int `json:"dropped"`
	Written    int `json:"written"`
}

type Reconciler struct {
	source cardsource.CardSource
	sink   TaskSink
	opts   Options
}

func New(source cardsource.CardSource, sink TaskSink, opts Options) *Reconciler {
	if opts.BatchSize < 1 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Vocabulary.Prefix == "" && len(opts.Vocabulary.Short)+len(opts.Vocabulary.Medium)+len(opts.Vocabulary.Long) == 0 {
		opts.Vocabulary = DefaultVocabulary()
	}
	if opts.Scorer == (priority.Scorer{}) {
		opts.Scorer = priority.New(priority.DefaultConfig())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.Get()
	}
	return &Reconciler{source: source, sink: sink, opts: opts}
}

type cardResult struct {
	task domain.Task
	err  error
}

// Import fetches the owner's cards, normalizes and ranks them, and writes the
// survivors in batches. Writes are not atomic unless Options.Atomic is set: a
// store failure leaves earlier batches committed and reports them in
// Error.Written.
func (r *Reconciler) Import(ctx context.Context, ownerID string) (Result, error) {
	run := domain.ImportRun{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Source:    string(r.source.Info().Type),
		StartedAt: r.opts.Now().UTC().Format(time.RFC3339),
	}
	log := r.opts.Logger.WithOwner(ownerID).WithFields(map[string]interface{}{
		"run_id": run.ID,
		"source": run.Source,
	})
	log.Info("import started")

	res, err := r.run(ctx, ownerID, log)

	run.Fetched, run.Skipped, run.Normalized, run.Dropped, run.Written = res.Fetched, res.Skipped, res.Normalized, res.Dropped, res.Written
	if err != nil {
		var ie *Error
		if errors.As(err, &ie) {
			run.ErrorKind = string(ie.Kind)
			run.Written = ie.Written
		}
		run.Error = err.Error()
		log.WithError(err).Warn("import failed")
	} else {
		log.WithFields(map[string]interface{}{
			"fetched": res.Fetched,
			"skipped": res.Skipped,
			"dropped": res.Dropped,
			"written": res.Written,
		}).Info("import finished")
	}
	run.FinishedAt = r.opts.Now().UTC().Format(time.RFC3339)
	if r.opts.Recorder != nil && ownerID != "" {
		if rerr := r.opts.Recorder.Record(ctx, run); rerr != nil {
			log.WithError(rerr).Warn("record import run")
		}
	}
	return res, err
}

func (r *Reconciler) run(ctx context.Context, ownerID string, log *logging.Logger) (Result, error) {
	var res Result
	if ownerID == "" {
		return res, &Error{Kind: KindAuth, Msg: "sign in required"}
	}

	id, err := r.source.CheckIdentity(ctx)
	if err != nil {
		return res, &Error{Kind: KindFetch, Msg: "fetch failed", Err: err}
	}
	switch id.Status {
	case cardsource.IdentityUnauthorized:
		return res, &Error{Kind: KindAuth, Msg: "invalid credentials"}
	case cardsource.IdentityUnreachable:
		return res, &Error{Kind: KindFetch, Msg: "fetch failed: " + id.Detail}
	}

	cards, err := r.source.ListCards(ctx)
	if err != nil {
		if errors.Is(err, cardsource.ErrMalformedResponse) {
			return res, &Error{Kind: KindValidation, Msg: "invalid response shape", Err: err}
		}
		return res, &Error{Kind: KindFetch, Msg: "fetch failed", Err: err}
	}
	res.Fetched = len(cards)
	if len(cards) == 0 {
		return res, nil
	}

	if r.opts.SkipExisting {
		cards, err = r.dropExisting(ctx, ownerID, cards)
		if err != nil {
			return res, err
		}
		res.Skipped = res.Fetched - len(cards)
		if len(cards) == 0 {
			return res, nil
		}
	}

	n := normalizer{
		ownerID: ownerID,
		source:  string(r.source.Info().Type),
		now:     r.opts.Now(),
		vocab:   r.opts.Vocabulary,
		scorer:  r.opts.Scorer,
	}
	var tasks []domain.Task
	for _, batch := range chunk(cards, r.opts.BatchSize) {
		if err := ctx.Err(); err != nil {
			return res, &Error{Kind: KindFetch, Msg: "import cancelled", Err: err}
		}
		mapper := iter.Mapper[domain.ExternalCard, cardResult]{MaxGoroutines: len(batch)}
		results := mapper.Map(batch, func(card *domain.ExternalCard) cardResult {
			return normalizeCard(*card, n.normalize)
		})
		for _, cr := range results {
			if cr.err != nil {
				res.Dropped++
				log.WithError(cr.err).Warn("card dropped")
				continue
			}
			tasks = append(tasks, cr.task)
		}
	}
	res.Normalized = len(tasks)
	if len(tasks) == 0 {
		if res.Skipped > 0 {
			// The owner already holds the valid cards from earlier runs.
			return res, nil
		}
		return res, &Error{Kind: KindEmpty, Msg: "no valid tasks found"}
	}

	written, err := r.persist(ctx, tasks)
	res.Written = written
	if err != nil {
		return res, err
	}
	return res, nil
}

// normalizeCard isolates a single card: errors and panics become a CardError.
func normalizeCard(card domain.ExternalCard, normalize func(domain.ExternalCard) (domain.Task, error)) (cr cardResult) {
	defer func() {
		if p := recover(); p != nil {
			cr = cardResult{err: &CardError{CardID: card.ID, Err: fmt.Errorf("panic: %v", p)}}
		}
	}()
	task, err := normalize(card)
	if err != nil {
		return cardResult{err: &CardError{CardID: card.ID, Err: err}}
	}
	return cardResult{task: task}
}

func (r *Reconciler) dropExisting(ctx context.Context, ownerID string, cards []domain.ExternalCard) ([]domain.ExternalCard, error) {
	lister, ok := r.sink.(ExternalIDLister)
	if !ok {
		return nil, &Error{Kind: KindStore, Msg: "store cannot list imported cards"}
	}
	seen, err := lister.ExternalIDs(ctx, ownerID, string(r.source.Info().Type))
	if err != nil {
		return nil, &Error{Kind: KindStore, Msg: "list imported cards", Err: err}
	}
	kept := cards[:0:0]
	for _, c := range cards {
		if _, dup := seen[c.ID]; dup && c.ID != "" {
			continue
		}
		kept = append(kept, c)
	}
	return kept, nil
}

func (r *Reconciler) persist(ctx context.Context, tasks []domain.Task) (int, error) {
	batches := chunk(tasks, r.opts.BatchSize)
	if r.opts.Atomic {
		atomic, ok := r.sink.(AtomicSink)
		if !ok {
			return 0, &Error{Kind: KindStore, Msg: "store does not support atomic imports"}
		}
		if err := atomic.InsertTaskBatches(ctx, batches); err != nil {
			return 0, &Error{Kind: KindStore, Msg: "store failed", Err: err}
		}
		return len(tasks), nil
	}
	written := 0
	for _, batch := range batches {
		if err := r.sink.InsertTasks(ctx, batch); err != nil {
			return written, &Error{Kind: KindStore, Msg: "store failed", Err: err, Written: written}
		}
		written += len(batch)
	}
	return written, nil
}

func chunk[T any](items []T, size int) [][]T {
	var out [][]T
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}

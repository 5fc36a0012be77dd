package refindex

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/checksum"
	"github.com/starford/notegraph/internal/doc"
	"github.com/starford/notegraph/internal/models"
)

// DefaultDebounce is the quiet period after the last Touch before a rebuild.
const DefaultDebounce = time.Second

// Source is the part of the note store the index reads from.
type Source interface {
	AllNotes(ctx context.Context) (map[string]*models.Note, error)
}

// Option configures an Index.
type Option func(*Index)

// WithDebounce sets the debounce window used by Run.
func WithDebounce(d time.Duration) Option {
	return func(i *Index) {
		if d > 0 {
			i.debounce = d
		}
	}
}

// WithOnRebuild registers a callback invoked after every applied rebuild.
func WithOnRebuild(fn func()) Option {
	return func(i *Index) { i.onRebuild = fn }
}

// Index keeps backlink results for a snapshot of the corpus. Rebuilds are
// incremental: notes whose content did not change keep their entries.
type Index struct {
	src       Source
	logger    *slog.Logger
	debounce  time.Duration
	onRebuild func()
	touch     chan struct{}

	mu       sync.Mutex
	started  uint64
	entries  map[string]*entry
	unlinked map[string][]Backlink
	blocks   map[string]location
}

type entry struct {
	note  *models.Note
	sum   string
	links map[string][]Match // by target note id
	refs  map[string][]Match // by block id
}

type location struct {
	noteID string
	path   doc.Path
}

// Resolution is the live target of a block reference.
type Resolution struct {
	NoteID string
	Path   doc.Path
	Node   *doc.Node
}

// New returns an empty index over src. Call Refresh or Run to populate it.
func New(src Source, logger *slog.Logger, opts ...Option) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	i := &Index{
		src:      src,
		logger:   logger,
		debounce: DefaultDebounce,
		touch:    make(chan struct{}, 1),
		entries:  make(map[string]*entry),
		unlinked: make(map[string][]Backlink),
		blocks:   make(map[string]location),
	}
	for _, o := range opts {
		o(i)
	}
	return i
}

// Touch schedules a rebuild once the debounce window passes without another
// Touch. It never blocks.
func (i *Index) Touch() {
	select {
	case i.touch <- struct{}{}:
	default:
	}
}

// Run drives debounced rebuilds until ctx is cancelled. A rebuild that is
// still scanning when a newer one starts is discarded.
func (i *Index) Run(ctx context.Context) error {
	var timer *time.Timer
	var fire <-chan time.Time
	var wg sync.WaitGroup

	i.logger.Info("refindex: started", slog.Duration("debounce", i.debounce))
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			wg.Wait()
			i.logger.Info("refindex: stopped")
			return nil

		case <-i.touch:
			if timer == nil {
				timer = time.NewTimer(i.debounce)
				fire = timer.C
			} else {
				timer.Reset(i.debounce)
			}

		case <-fire:
			timer, fire = nil, nil
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := i.Refresh(ctx); err != nil && ctx.Err() == nil {
					i.logger.Warn("refindex: rebuild failed", slog.String("error", err.Error()))
				}
			}()
		}
	}
}

// Refresh rebuilds the index from a fresh snapshot of the store.
func (i *Index) Refresh(ctx context.Context) error {
	start := time.Now()

	i.mu.Lock()
	i.started++
	gen := i.started
	prev := i.entries
	i.mu.Unlock()

	notes, err := i.src.AllNotes(ctx)
	if err != nil {
		rebuildsTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("refindex: snapshot: %w", err)
	}

	next := make(map[string]*entry, len(notes))
	rescanned := 0
	for id, n := range notes {
		if n.Content == nil {
			n.Content = doc.New()
		}
		sum := noteSum(n)
		if e, ok := prev[id]; ok && e.sum == sum && sum != "" {
			next[id] = e
			continue
		}
		next[id] = scanNote(n, sum)
		rescanned++
	}

	i.mu.Lock()
	if gen != i.started {
		i.mu.Unlock()
		rebuildsTotal.WithLabelValues("discarded").Inc()
		i.logger.Debug("refindex: stale rebuild discarded", slog.Uint64("generation", gen))
		return nil
	}
	i.entries = next
	i.unlinked = make(map[string][]Backlink)
	i.mu.Unlock()

	rebuildsTotal.WithLabelValues("applied").Inc()
	notesRescanned.Add(float64(rescanned))
	rebuildDuration.Observe(time.Since(start).Seconds())
	i.logger.Debug("refindex: rebuilt",
		slog.Int("notes", len(next)),
		slog.Int("rescanned", rescanned),
		slog.Duration("took", time.Since(start)))

	if i.onRebuild != nil {
		i.onRebuild()
	}
	return nil
}

// Linked returns the linked backlinks of targetID from the last rebuild.
func (i *Index) Linked(targetID string) []Backlink {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.gather(func(e *entry) []Match { return e.links[targetID] })
}

// BlockRefs returns the notes embedding blockID as of the last rebuild.
func (i *Index) BlockRefs(blockID string) []Backlink {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.gather(func(e *entry) []Match { return e.refs[blockID] })
}

// Unlinked returns the unlinked mentions of title. Results are memoised per
// title until the next rebuild.
func (i *Index) Unlinked(title string) []Backlink {
	key := fold(title)
	i.mu.Lock()
	defer i.mu.Unlock()
	if bls, ok := i.unlinked[key]; ok {
		return bls
	}
	notes := make(map[string]*models.Note, len(i.entries))
	for id, e := range i.entries {
		notes[id] = e.note
	}
	bls := Unlinked(notes, title)
	i.unlinked[key] = bls
	return bls
}

func (i *Index) gather(pick func(*entry) []Match) []Backlink {
	var out []Backlink
	for _, e := range i.entries {
		if ms := pick(e); len(ms) > 0 {
			out = append(out, Backlink{SourceID: e.note.ID, SourceTitle: e.note.Title, Matches: slices.Clone(ms)})
		}
	}
	sortBacklinks(out)
	return out
}

// ResolveBlock finds the block carrying blockID. The cached location is
// trusted only while the node there still has that id; otherwise the
// snapshot and then the store are searched.
func (i *Index) ResolveBlock(ctx context.Context, blockID string) (Resolution, error) {
	if blockID == "" {
		return Resolution{}, fmt.Errorf("refindex: empty block id: %w", apperr.ErrUnresolvedReference)
	}

	i.mu.Lock()
	if loc, ok := i.blocks[blockID]; ok {
		if e := i.entries[loc.noteID]; e != nil {
			if n, err := e.note.Content.Get(loc.path); err == nil && n.ID == blockID {
				i.mu.Unlock()
				blockResolutions.WithLabelValues("hit").Inc()
				return Resolution{NoteID: loc.noteID, Path: loc.path.Copy(), Node: n.Clone()}, nil
			}
		}
		delete(i.blocks, blockID)
	}
	if r, ok := i.findLocked(blockID); ok {
		i.mu.Unlock()
		blockResolutions.WithLabelValues("scan").Inc()
		return r, nil
	}
	i.mu.Unlock()

	notes, err := i.src.AllNotes(ctx)
	if err != nil {
		return Resolution{}, fmt.Errorf("refindex: resolve block %s: %w", blockID, err)
	}
	for _, id := range sortedIDs(notes) {
		n := notes[id]
		if n.Content == nil {
			continue
		}
		if node, p, ok := n.Content.FindByID(blockID); ok {
			i.mu.Lock()
			i.blocks[blockID] = location{noteID: id, path: p}
			i.mu.Unlock()
			blockResolutions.WithLabelValues("store").Inc()
			return Resolution{NoteID: id, Path: p.Copy(), Node: node.Clone()}, nil
		}
	}

	blockResolutions.WithLabelValues("unresolved").Inc()
	i.logger.Warn("refindex: unresolved block reference", slog.String("block", blockID))
	return Resolution{}, fmt.Errorf("refindex: block %s: %w", blockID, apperr.ErrUnresolvedReference)
}

// LookupBlock resolves a block for rendering; it satisfies
// markdown.BlockResolver.
func (i *Index) LookupBlock(blockID string) (*doc.Node, bool) {
	r, err := i.ResolveBlock(context.Background(), blockID)
	if err != nil {
		return nil, false
	}
	return r.Node, true
}

func (i *Index) findLocked(blockID string) (Resolution, bool) {
	ids := make([]string, 0, len(i.entries))
	for id := range i.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		n, p, ok := i.entries[id].note.Content.FindByID(blockID)
		if ok {
			i.blocks[blockID] = location{noteID: id, path: p}
			return Resolution{NoteID: id, Path: p.Copy(), Node: n.Clone()}, true
		}
	}
	return Resolution{}, false
}

func scanNote(n *models.Note, sum string) *entry {
	e := &entry{
		note:  n,
		sum:   sum,
		links: make(map[string][]Match),
		refs:  make(map[string][]Match),
	}
	d := n.Content
	d.Walk(func(x *doc.Node, p doc.Path) bool {
		switch {
		case x.Type == doc.KindNoteLink:
			if x.NoteID != "" && x.PlainText() != "" {
				e.links[x.NoteID] = append(e.links[x.NoteID], matchAt(d, p))
			}
			return false
		case x.Type == doc.KindBlockReference:
			if x.BlockID != "" {
				e.refs[x.BlockID] = append(e.refs[x.BlockID], matchAt(d, p))
			}
			return false
		}
		return x.IsElement()
	})
	return e
}

// noteSum fingerprints a note's title and content. An empty sum forces a
// rescan.
func noteSum(n *models.Note) string {
	data, err := doc.Encode(n.Content)
	if err != nil {
		return ""
	}
	return checksum.Sum(append([]byte(n.Title+"\x00"), data...))
}

func sortedIDs(notes map[string]*models.Note) []string {
	ids := make([]string, 0, len(notes))
	for id := range notes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

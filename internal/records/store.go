package records

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/raphaelgruber/leadwatch/internal/models"
)

// Fetcher runs the persisted lead query.
type Fetcher interface {
	ListLeads(ctx context.Context, q models.LeadQuery) (*models.LeadPage, error)
}

// View is the state a lead table renders.
type View struct {
	Records  []models.Lead
	LiveOnly int // records not yet on the persisted page
	Live     int // size of the live set
	Total    int // persisted total across all pages
	Query    models.LeadQuery
	Pages    int
	Loading  bool
	Err      error // last persisted-query failure, cleared on success
}

// Store holds the live set of the current job and the current persisted
// page. The live set is only cleared by ResetLive; query changes and
// refreshes only replace the persisted page.
type Store struct {
	fetcher  Fetcher
	logger   *slog.Logger
	onChange func()

	mu        sync.RWMutex
	live      []models.Lead // most recent first; replaced, never mutated
	liveKeys  map[string]struct{}
	query     models.LeadQuery
	gen       uint64
	persisted []models.Lead
	total     int
	loading   bool
	err       error
	timer     *time.Timer

	group        singleflight.Group
	fetchTimeout time.Duration
}

// DefaultFetchTimeout bounds a shared persisted-query fetch.
const DefaultFetchTimeout = 30 * time.Second

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithFetchTimeout bounds each persisted-query fetch. A fetch is shared by
// every caller waiting on it, so it does not inherit any caller's
// cancellation.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.fetchTimeout = d
		}
	}
}

// WithOnChange registers a callback run after the view changed. It is called
// without the store lock held.
func WithOnChange(fn func()) Option {
	return func(s *Store) { s.onChange = fn }
}

// NewStore creates a store for the given initial query. Nothing is fetched
// until Refresh or SetQuery is called.
func NewStore(fetcher Fetcher, q models.LeadQuery, opts ...Option) *Store {
	s := &Store{
		fetcher:      fetcher,
		logger:       slog.Default(),
		liveKeys:     make(map[string]struct{}),
		query:        q.Normalize(),
		fetchTimeout: DefaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddLive records a lead from the stream. It reports false for leads without
// a key and for keys already in the live set.
func (s *Store) AddLive(lead models.Lead) bool {
	if !s.addLive(lead) {
		return false
	}
	s.changed()
	return true
}

// AddLiveBatch records leads delivered oldest first and returns how many
// were new.
func (s *Store) AddLiveBatch(leads []models.Lead) int {
	added := 0
	for _, l := range leads {
		if s.addLive(l) {
			added++
		}
	}
	if added > 0 {
		s.changed()
	}
	return added
}

func (s *Store) addLive(lead models.Lead) bool {
	key := lead.Key()
	if key == "" {
		s.logger.Debug("skipping live lead without key", "id", lead.ID)
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.liveKeys[key]; ok {
		return false
	}
	s.liveKeys[key] = struct{}{}

	live := make([]models.Lead, 0, len(s.live)+1)
	live = append(live, lead)
	s.live = append(live, s.live...)
	return true
}

// ResetLive clears the live set. Called when a new job starts.
func (s *Store) ResetLive() {
	s.mu.Lock()
	s.live = nil
	s.liveKeys = make(map[string]struct{})
	s.mu.Unlock()
	s.changed()
}

// LiveLen returns the size of the live set.
func (s *Store) LiveLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.live)
}

// Query returns the active query.
func (s *Store) Query() models.LeadQuery {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.query
}

// SetQuery replaces the active page/filter and fetches it. Responses for
// earlier queries that arrive afterwards are discarded.
func (s *Store) SetQuery(ctx context.Context, q models.LeadQuery) error {
	s.mu.Lock()
	s.query = q.Normalize()
	s.gen++
	s.mu.Unlock()
	return s.Refresh(ctx)
}

// Refresh re-runs the active query. Concurrent refreshes of the same query
// share one request; each caller stops waiting when its own ctx ends, while
// the shared request runs on until it completes or times out. On failure the
// previous page stays in place and the error is kept for the view.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	gen, q := s.gen, s.query
	s.loading = true
	s.mu.Unlock()
	s.changed()

	ch := s.group.DoChan(strconv.FormatUint(gen, 10), func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
		defer cancel()
		page, err := s.fetcher.ListLeads(fctx, q)
		s.apply(gen, page, err)
		return nil, err
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// forceRefresh re-runs the active query with a new request even if one is in
// flight. The in-flight response is then discarded as stale.
func (s *Store) forceRefresh(ctx context.Context) error {
	s.mu.Lock()
	s.gen++
	s.mu.Unlock()
	return s.Refresh(ctx)
}

// apply installs a fetch result unless a newer query superseded it.
func (s *Store) apply(gen uint64, page *models.LeadPage, err error) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		s.logger.Debug("discarding stale lead page", "generation", gen)
		return
	}
	s.loading = false
	if err != nil {
		s.err = err
		pageNo := s.query.Page
		s.mu.Unlock()
		s.logger.Warn("lead query failed, keeping previous page", "error", err, "page", pageNo)
		s.changed()
		return
	}
	s.err = nil
	s.persisted = page.Data
	s.total = page.Total
	s.mu.Unlock()
	s.changed()
}

// RefreshAfter schedules one fresh fetch after delay, replacing a pending
// one. Used to let the backend settle its writes after a job completes; it
// never joins a request sent before the delay expired.
func (s *Store) RefreshAfter(delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(delay, func() {
		if err := s.forceRefresh(context.Background()); err != nil {
			s.logger.Debug("settle refresh failed", "error", err)
		}
	})
}

// Close cancels a pending delayed refresh.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// View returns the merged display state.
func (s *Store) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := Merge(s.live, s.persisted)
	v := View{
		Records:  recs,
		LiveOnly: len(recs) - len(s.persisted),
		Live:     len(s.live),
		Total:    s.total,
		Query:    s.query,
		Loading:  s.loading,
		Err:      s.err,
	}
	if s.query.Limit > 0 {
		v.Pages = max(1, (s.total+s.query.Limit-1)/s.query.Limit)
	}
	return v
}

func (s *Store) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}

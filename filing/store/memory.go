// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/ssn-filing/filing"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu    sync.RWMutex
	txMu  sync.Mutex
	state *memState
}

type memState struct {
	seq         int
	submissions map[filing.SubmissionID]filing.Submission
	byPeriod    map[periodKey]filing.SubmissionID
	operations  map[string]opEntry
	stocks      map[string]stockEntry
	responses   map[responseKey]filing.Response
}

type periodKey struct {
	DeliveryType filing.DeliveryType
	Period       string
}

type responseKey struct {
	SubmissionID filing.SubmissionID
	Endpoint     string
}

type opEntry struct {
	seq int
	op  filing.Operation
}

type stockEntry struct {
	seq   int
	stock filing.Stock
}

var _ filing.TxStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{state: newMemState()}
}

func newMemState() *memState {
	return &memState{
		submissions: make(map[filing.SubmissionID]filing.Submission),
		byPeriod:    make(map[periodKey]filing.SubmissionID),
		operations:  make(map[string]opEntry),
		stocks:      make(map[string]stockEntry),
		responses:   make(map[responseKey]filing.Response),
	}
}

// clone copies maps; rows are immutable once stored (they are cloned on the
// way in and out), so sharing them is safe.
func (s *memState) clone() *memState {
	c := newMemState()
	c.seq = s.seq
	for k, v := range s.submissions {
		c.submissions[k] = v
	}
	for k, v := range s.byPeriod {
		c.byPeriod[k] = v
	}
	for k, v := range s.operations {
		c.operations[k] = v
	}
	for k, v := range s.stocks {
		c.stocks[k] = v
	}
	for k, v := range s.responses {
		c.responses[k] = v
	}
	return c
}

// WithTx runs fn against a private copy and publishes it only if fn succeeds.
func (m *Memory) WithTx(ctx context.Context, fn func(filing.Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.RLock()
	tx := &Memory{state: m.state.clone()}
	m.mu.RUnlock()

	if err := fn(tx); err != nil {
		return err
	}

	m.mu.Lock()
	m.state = tx.state
	m.mu.Unlock()
	return nil
}

// =============================================================================
// SUBMISSIONS
// =============================================================================

func (m *Memory) CreateSubmission(_ context.Context, s filing.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := periodKey{s.DeliveryType, s.Period}
	if _, ok := m.state.byPeriod[k]; ok {
		return filing.ErrDuplicateSubmission
	}
	m.state.submissions[s.ID] = s
	m.state.byPeriod[k] = s.ID
	return nil
}

func (m *Memory) UpdateSubmission(_ context.Context, s filing.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.state.submissions[s.ID]
	if !ok {
		return filing.ErrSubmissionNotFound
	}
	newKey := periodKey{s.DeliveryType, s.Period}
	if other, taken := m.state.byPeriod[newKey]; taken && other != s.ID {
		return filing.ErrDuplicateSubmission
	}
	delete(m.state.byPeriod, periodKey{old.DeliveryType, old.Period})
	m.state.byPeriod[newKey] = s.ID
	m.state.submissions[s.ID] = s
	return nil
}

func (m *Memory) DeleteSubmission(_ context.Context, id filing.SubmissionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.state.submissions[id]
	if !ok {
		return filing.ErrSubmissionNotFound
	}
	delete(m.state.submissions, id)
	delete(m.state.byPeriod, periodKey{s.DeliveryType, s.Period})
	for k, e := range m.state.operations {
		if e.op.Meta().SubmissionID == id {
			delete(m.state.operations, k)
		}
	}
	for k, e := range m.state.stocks {
		if e.stock.Meta().SubmissionID == id {
			delete(m.state.stocks, k)
		}
	}
	for k := range m.state.responses {
		if k.SubmissionID == id {
			delete(m.state.responses, k)
		}
	}
	return nil
}

func (m *Memory) GetSubmission(_ context.Context, id filing.SubmissionID) (filing.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.state.submissions[id]
	if !ok {
		return filing.Submission{}, filing.ErrSubmissionNotFound
	}
	return s, nil
}

func (m *Memory) FindSubmission(_ context.Context, dt filing.DeliveryType, period string) (filing.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.state.byPeriod[periodKey{dt, period}]
	if !ok {
		return filing.Submission{}, filing.ErrSubmissionNotFound
	}
	return m.state.submissions[id], nil
}

func (m *Memory) ListSubmissions(_ context.Context, f filing.SubmissionFilter) ([]filing.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	periods := toSet(f.Periods)
	states := make(map[filing.LocalState]bool, len(f.States))
	for _, st := range f.States {
		states[st] = true
	}
	var out []filing.Submission
	for _, s := range m.state.submissions {
		if f.DeliveryType != "" && s.DeliveryType != f.DeliveryType {
			continue
		}
		if len(periods) > 0 && !periods[s.Period] {
			continue
		}
		if len(states) > 0 && !states[s.State] {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Period != out[j].Period {
			return out[i].Period > out[j].Period
		}
		return out[i].DeliveryType < out[j].DeliveryType
	})
	return out, nil
}

func toSet(xs []string) map[string]bool {
	set := make(map[string]bool, len(xs))
	for _, x := range xs {
		set[x] = true
	}
	return set
}

// =============================================================================
// OPERATIONS
// =============================================================================

func (m *Memory) SaveOperation(_ context.Context, op filing.Operation) error {
	c, err := filing.CloneOperation(op)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := c.Meta().ID
	e, ok := m.state.operations[id]
	if !ok {
		m.state.seq++
		e.seq = m.state.seq
	}
	e.op = c
	m.state.operations[id] = e
	return nil
}

func (m *Memory) GetOperation(_ context.Context, id string) (filing.Operation, error) {
	m.mu.RLock()
	e, ok := m.state.operations[id]
	m.mu.RUnlock()
	if !ok {
		return nil, filing.ErrNotFound
	}
	return filing.CloneOperation(e.op)
}

func (m *Memory) DeleteOperation(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.state.operations[id]; !ok {
		return filing.ErrNotFound
	}
	delete(m.state.operations, id)
	return nil
}

func (m *Memory) ListOperations(_ context.Context, id filing.SubmissionID) ([]filing.Operation, error) {
	m.mu.RLock()
	var entries []opEntry
	for _, e := range m.state.operations {
		if e.op.Meta().SubmissionID == id {
			entries = append(entries, e)
		}
	}
	m.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([]filing.Operation, 0, len(entries))
	for _, e := range entries {
		c, err := filing.CloneOperation(e.op)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (m *Memory) DeleteOperationsCreatedAfter(_ context.Context, id filing.SubmissionID, t time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, e := range m.state.operations {
		meta := e.op.Meta()
		if meta.SubmissionID == id && meta.CreatedAt.After(t) {
			delete(m.state.operations, k)
			n++
		}
	}
	return n, nil
}

// =============================================================================
// STOCK
// =============================================================================

func (m *Memory) SaveStock(_ context.Context, s filing.Stock) error {
	c, err := filing.CloneStock(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putStockLocked(c)
	return nil
}

func (m *Memory) putStockLocked(s filing.Stock) {
	id := s.Meta().ID
	e, ok := m.state.stocks[id]
	if !ok {
		m.state.seq++
		e.seq = m.state.seq
	}
	e.stock = s
	m.state.stocks[id] = e
}

func (m *Memory) InsertStocks(_ context.Context, rows []filing.Stock) error {
	clones := make([]filing.Stock, 0, len(rows))
	for _, r := range rows {
		c, err := filing.CloneStock(r)
		if err != nil {
			return err
		}
		clones = append(clones, c)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range clones {
		m.putStockLocked(c)
	}
	return nil
}

func (m *Memory) GetStock(_ context.Context, id string) (filing.Stock, error) {
	m.mu.RLock()
	e, ok := m.state.stocks[id]
	m.mu.RUnlock()
	if !ok {
		return nil, filing.ErrNotFound
	}
	return filing.CloneStock(e.stock)
}

func (m *Memory) DeleteStock(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.state.stocks[id]; !ok {
		return filing.ErrNotFound
	}
	delete(m.state.stocks, id)
	return nil
}

func (m *Memory) ListStocks(_ context.Context, id filing.SubmissionID) ([]filing.Stock, error) {
	m.mu.RLock()
	var entries []stockEntry
	for _, e := range m.state.stocks {
		if e.stock.Meta().SubmissionID == id {
			entries = append(entries, e)
		}
	}
	m.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([]filing.Stock, 0, len(entries))
	for _, e := range entries {
		c, err := filing.CloneStock(e.stock)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (m *Memory) CountStocks(_ context.Context, id filing.SubmissionID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, e := range m.state.stocks {
		if e.stock.Meta().SubmissionID == id {
			n++
		}
	}
	return n, nil
}

func (m *Memory) DeleteStocks(ctx context.Context, id filing.SubmissionID) (int, error) {
	return m.deleteStocksWhere(id, func(filing.Stock) bool { return true })
}

func (m *Memory) DeleteStocksCreatedAfter(_ context.Context, id filing.SubmissionID, t time.Time) (int, error) {
	return m.deleteStocksWhere(id, func(s filing.Stock) bool { return s.Meta().CreatedAt.After(t) })
}

func (m *Memory) deleteStocksWhere(id filing.SubmissionID, match func(filing.Stock) bool) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, e := range m.state.stocks {
		if e.stock.Meta().SubmissionID == id && match(e.stock) {
			delete(m.state.stocks, k)
			n++
		}
	}
	return n, nil
}

// =============================================================================
// RESPONSES
// =============================================================================

func (m *Memory) UpsertResponse(_ context.Context, r filing.Response) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := responseKey{r.SubmissionID, r.Endpoint}
	old, exists := m.state.responses[k]
	if exists {
		r.CreatedAt = old.CreatedAt
	}
	m.state.responses[k] = r
	return !exists, nil
}

func (m *Memory) ListResponses(_ context.Context, id filing.SubmissionID) ([]filing.Response, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []filing.Response
	for k, r := range m.state.responses {
		if k.SubmissionID == id {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out, nil
}

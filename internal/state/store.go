// Package state holds the synchronized market and account state. Store is
// the only mutable owner of that state; every mutation runs under one write
// lock so observers never see a half-applied update.
package state

import (
	"sync"

	"github.com/alanyoungcy/quadscalp/internal/domain"
)

// Listener is called after a mutation has been applied and the lock released.
type Listener func(domain.StateEvent)

// Option configures a Store.
type Option func(*Store)

// WithBarRetention overrides the per-symbol bar cap.
func WithBarRetention(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.retention = n
		}
	}
}

// WithActiveSymbol sets the initially selected symbol.
func WithActiveSymbol(symbol string) Option {
	return func(s *Store) {
		s.activeSymbol = symbol
	}
}

// Store is the single source of truth for ticks, bars, depth, account,
// positions, trades and pending orders.
type Store struct {
	mu sync.RWMutex

	retention    int
	activeSymbol string
	conn         domain.ConnectionState
	symbols      map[string]domain.SymbolInfo
	ticks        map[string]domain.Tick
	bars         map[string][]domain.Bar
	depth        map[string]domain.Depth
	account      domain.Account
	positions    []domain.Position
	trades       []domain.Trade
	orders       []domain.OrderRecord

	listenerMu sync.RWMutex
	listeners  []Listener
}

// New creates an empty Store. The account starts at the default balance.
func New(opts ...Option) *Store {
	s := &Store{
		retention:    domain.DefaultBarRetention,
		activeSymbol: "ES",
		symbols:      make(map[string]domain.SymbolInfo),
		ticks:        make(map[string]domain.Tick),
		bars:         make(map[string][]domain.Bar),
		depth:        make(map[string]domain.Depth),
		account: domain.Account{
			Balance: domain.DefaultStartingBalance,
			Equity:  domain.DefaultStartingBalance,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers a listener for mutation events. Listeners run on the
// goroutine that performed the mutation and must not block.
func (s *Store) Subscribe(l Listener) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *Store) emit(kind domain.StateEventKind, symbol string) {
	s.listenerMu.RLock()
	listeners := s.listeners
	s.listenerMu.RUnlock()

	ev := domain.StateEvent{Kind: kind, Symbol: symbol}
	for _, l := range listeners {
		l(ev)
	}
}

// ── Mutations ──

// ApplyTick stores the tick for its symbol and derives change and changePct
// against the previously stored tick. Both are 0 on the first tick, and
// changePct is 0 when the previous price was 0.
func (s *Store) ApplyTick(t domain.Tick) {
	s.mu.Lock()
	prev, ok := s.ticks[t.Symbol]
	t.Change, t.ChangePct = 0, 0
	if ok {
		t.Change = t.Price - prev.Price
		if prev.Price != 0 {
			t.ChangePct = t.Change / prev.Price * 100
		}
	}
	s.ticks[t.Symbol] = t
	s.mu.Unlock()

	s.emit(domain.EventTick, t.Symbol)
}

// AppendBar appends a bar and truncates the oldest entries beyond retention.
func (s *Store) AppendBar(b domain.Bar) {
	s.mu.Lock()
	seq := append(s.bars[b.Symbol], b)
	if over := len(seq) - s.retention; over > 0 {
		// Copy so the dropped prefix is released instead of pinned by the slice header.
		trimmed := make([]domain.Bar, s.retention)
		copy(trimmed, seq[over:])
		seq = trimmed
	}
	s.bars[b.Symbol] = seq
	s.mu.Unlock()

	s.emit(domain.EventBar, b.Symbol)
}

// ReplaceBars discards any existing history for symbol and installs bars.
// Retention still applies, keeping the newest entries.
func (s *Store) ReplaceBars(symbol string, bars []domain.Bar) {
	if over := len(bars) - s.retention; over > 0 {
		bars = bars[over:]
	}
	seq := make([]domain.Bar, len(bars))
	copy(seq, bars)

	s.mu.Lock()
	s.bars[symbol] = seq
	s.mu.Unlock()

	s.emit(domain.EventBarsReplaced, symbol)
}

// UpdateDepth replaces both sides of the book for symbol.
func (s *Store) UpdateDepth(symbol string, bids, asks []domain.DepthLevel) {
	d := domain.Depth{
		Bids: append([]domain.DepthLevel(nil), bids...),
		Asks: append([]domain.DepthLevel(nil), asks...),
	}

	s.mu.Lock()
	s.depth[symbol] = d
	s.mu.Unlock()

	s.emit(domain.EventDepth, symbol)
}

// UpdateAccount merges the non-nil fields of u into the account snapshot.
func (s *Store) UpdateAccount(u domain.AccountUpdate) {
	s.mu.Lock()
	if u.Balance != nil {
		s.account.Balance = *u.Balance
	}
	if u.Equity != nil {
		s.account.Equity = *u.Equity
	}
	if u.DailyPnL != nil {
		s.account.DailyPnL = *u.DailyPnL
	}
	if u.UnrealizedPnL != nil {
		s.account.UnrealizedPnL = *u.UnrealizedPnL
	}
	if u.MarginUsed != nil {
		s.account.MarginUsed = *u.MarginUsed
	}
	s.mu.Unlock()

	s.emit(domain.EventAccount, "")
}

// SetPositions replaces the whole position list.
func (s *Store) SetPositions(list []domain.Position) {
	cp := make([]domain.Position, len(list))
	copy(cp, list)

	s.mu.Lock()
	s.positions = cp
	s.mu.Unlock()

	s.emit(domain.EventPositions, "")
}

// UpsertPosition replaces the position for p.Symbol in place, or appends it
// when the symbol has no open position.
func (s *Store) UpsertPosition(p domain.Position) {
	s.mu.Lock()
	replaced := false
	for i := range s.positions {
		if s.positions[i].Symbol == p.Symbol {
			s.positions[i] = p
			replaced = true
			break
		}
	}
	if !replaced {
		s.positions = append(s.positions, p)
	}
	s.mu.Unlock()

	s.emit(domain.EventPositions, p.Symbol)
}

// SetTrades replaces the trade list, keeping the given order.
func (s *Store) SetTrades(list []domain.Trade) {
	cp := make([]domain.Trade, len(list))
	copy(cp, list)

	s.mu.Lock()
	s.trades = cp
	s.mu.Unlock()

	s.emit(domain.EventTrades, "")
}

// AddTrade prepends t unless a trade with the same ID is already present.
// It reports whether the trade was inserted.
func (s *Store) AddTrade(t domain.Trade) bool {
	s.mu.Lock()
	for _, existing := range s.trades {
		if existing.ID == t.ID {
			s.mu.Unlock()
			return false
		}
	}
	next := make([]domain.Trade, 0, len(s.trades)+1)
	next = append(next, t)
	next = append(next, s.trades...)
	s.trades = next
	s.mu.Unlock()

	s.emit(domain.EventTrades, t.Symbol)
	return true
}

// SetOrders replaces the pending order list.
func (s *Store) SetOrders(list []domain.OrderRecord) {
	cp := make([]domain.OrderRecord, len(list))
	copy(cp, list)

	s.mu.Lock()
	s.orders = cp
	s.mu.Unlock()

	s.emit(domain.EventOrders, "")
}

// AddOrder prepends o unless an order with the same ID is already present.
func (s *Store) AddOrder(o domain.OrderRecord) bool {
	s.mu.Lock()
	for _, existing := range s.orders {
		if existing.ID == o.ID {
			s.mu.Unlock()
			return false
		}
	}
	next := make([]domain.OrderRecord, 0, len(s.orders)+1)
	next = append(next, o)
	next = append(next, s.orders...)
	s.orders = next
	s.mu.Unlock()

	s.emit(domain.EventOrders, o.Symbol)
	return true
}

// RemoveOrder drops the order with the given ID. It reports whether one was removed.
func (s *Store) RemoveOrder(id int64) bool {
	s.mu.Lock()
	idx := -1
	for i, o := range s.orders {
		if o.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	next := make([]domain.OrderRecord, 0, len(s.orders)-1)
	next = append(next, s.orders[:idx]...)
	next = append(next, s.orders[idx+1:]...)
	s.orders = next
	s.mu.Unlock()

	s.emit(domain.EventOrders, "")
	return true
}

// SetConnected sets the connected flag.
func (s *Store) SetConnected(connected bool) {
	s.mu.Lock()
	changed := s.conn.Connected != connected
	s.conn.Connected = connected
	s.mu.Unlock()

	if changed {
		s.emit(domain.EventConnection, "")
	}
}

// SetDemoMode sets the demo-mode flag.
func (s *Store) SetDemoMode(demo bool) {
	s.mu.Lock()
	changed := s.conn.DemoMode != demo
	s.conn.DemoMode = demo
	s.mu.Unlock()

	if changed {
		s.emit(domain.EventConnection, "")
	}
}

// SetActiveSymbol changes the symbol whose chart and bar history are tracked.
func (s *Store) SetActiveSymbol(symbol string) {
	s.mu.Lock()
	s.activeSymbol = symbol
	s.mu.Unlock()

	s.emit(domain.EventActiveSymbol, symbol)
}

// SetSymbols records per-symbol metadata announced by the upstream.
func (s *Store) SetSymbols(info map[string]domain.SymbolInfo) {
	s.mu.Lock()
	for sym, si := range info {
		s.symbols[sym] = si
	}
	s.mu.Unlock()

	s.emit(domain.EventSymbols, "")
}

// ── Read projection ──

// Tick returns the latest tick for symbol.
func (s *Store) Tick(symbol string) (domain.Tick, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.ticks[symbol]
	return t, ok
}

// Ticks returns a copy of the latest tick per symbol.
func (s *Store) Ticks() map[string]domain.Tick {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]domain.Tick, len(s.ticks))
	for k, v := range s.ticks {
		out[k] = v
	}
	return out
}

// Bars returns a copy of the bar sequence for symbol.
func (s *Store) Bars(symbol string) []domain.Bar {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Bar(nil), s.bars[symbol]...)
}

// Depth returns a copy of the book for symbol.
func (s *Store) Depth(symbol string) (domain.Depth, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.depth[symbol]
	if !ok {
		return domain.Depth{}, false
	}
	return copyDepth(d), true
}

// Account returns the account snapshot.
func (s *Store) Account() domain.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.account
}

// Positions returns a copy of the open positions.
func (s *Store) Positions() []domain.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Position(nil), s.positions...)
}

// Trades returns a copy of the trade list.
func (s *Store) Trades() []domain.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Trade(nil), s.trades...)
}

// Orders returns a copy of the pending order list.
func (s *Store) Orders() []domain.OrderRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.OrderRecord(nil), s.orders...)
}

// Connection returns the connection flags.
func (s *Store) Connection() domain.ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn
}

// ActiveSymbol returns the selected symbol.
func (s *Store) ActiveSymbol() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeSymbol
}

// Symbols returns a copy of the known symbol metadata.
func (s *Store) Symbols() map[string]domain.SymbolInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]domain.SymbolInfo, len(s.symbols))
	for k, v := range s.symbols {
		out[k] = v
	}
	return out
}

// Snapshot returns a deep copy of the entire state taken under one read lock.
func (s *Store) Snapshot() domain.MarketSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := domain.MarketSnapshot{
		Connection:   s.conn,
		ActiveSymbol: s.activeSymbol,
		Symbols:      make(map[string]domain.SymbolInfo, len(s.symbols)),
		Ticks:        make(map[string]domain.Tick, len(s.ticks)),
		Bars:         make(map[string][]domain.Bar, len(s.bars)),
		Depth:        make(map[string]domain.Depth, len(s.depth)),
		Account:      s.account,
		Positions:    append([]domain.Position(nil), s.positions...),
		Trades:       append([]domain.Trade(nil), s.trades...),
		Orders:       append([]domain.OrderRecord(nil), s.orders...),
	}
	for k, v := range s.symbols {
		snap.Symbols[k] = v
	}
	for k, v := range s.ticks {
		snap.Ticks[k] = v
	}
	for k, v := range s.bars {
		snap.Bars[k] = append([]domain.Bar(nil), v...)
	}
	for k, v := range s.depth {
		snap.Depth[k] = copyDepth(v)
	}
	return snap
}

func copyDepth(d domain.Depth) domain.Depth {
	return domain.Depth{
		Bids: append([]domain.DepthLevel(nil), d.Bids...),
		Asks: append([]domain.DepthLevel(nil), d.Asks...),
	}
}

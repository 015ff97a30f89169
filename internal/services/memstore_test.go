package services

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"order-placement-service/internal/domain"
	"order-placement-service/internal/repository"

	"github.com/shopspring/decimal"
)

// memStore is a transactional in-memory store. StockSnapshot takes a per-row
// mutex on every product it returns and holds it until commit or rollback,
// matching SELECT ... FOR UPDATE.
type memStore struct {
	mu       sync.Mutex
	rowLocks map[uint64]*sync.Mutex
	products map[uint64]domain.Product
	orders   []domain.Order
	carts    []domain.CartItem
	nextID   uint64

	// conflicts makes the next N snapshot reads fail with a conflict.
	conflicts int
	// failCart makes CreateCartItems fail with an infrastructure error.
	failCart bool
	// snapshotReads counts StockSnapshot calls across all transactions.
	snapshotReads int
}

func newMemStore(products ...domain.Product) *memStore {
	s := &memStore{
		rowLocks: make(map[uint64]*sync.Mutex),
		products: make(map[uint64]domain.Product),
	}
	for _, p := range products {
		s.products[p.ID] = p
		s.rowLocks[p.ID] = &sync.Mutex{}
	}
	return s
}

func product(id uint64, stock int64, price string) domain.Product {
	return domain.Product{
		ID:    id,
		Name:  fmt.Sprintf("P%d", id),
		Stock: stock,
		Price: decimal.RequireFromString(price),
	}
}

func (s *memStore) stock(id uint64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id].Stock
}

func (s *memStore) committedOrders() []domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.orders)
}

func (s *memStore) committedCarts() []domain.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.carts)
}

func (s *memStore) Begin(ctx context.Context) (repository.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &memTx{s: s, held: make(map[uint64]bool), staged: make(map[uint64]int64)}, nil
}

type memTx struct {
	s      *memStore
	held   map[uint64]bool
	staged map[uint64]int64
	orders []domain.Order
	carts  []domain.CartItem
	done   bool
}

func (t *memTx) StockSnapshot(ctx context.Context, ids []uint64) (map[uint64]domain.StockLevel, error) {
	t.s.mu.Lock()
	t.s.snapshotReads++
	if t.s.conflicts > 0 {
		t.s.conflicts--
		t.s.mu.Unlock()
		return nil, fmt.Errorf("%w: deadlock found", domain.ErrTransactionConflict)
	}
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	var toLock []*sync.Mutex
	for _, id := range sorted {
		if l, ok := t.s.rowLocks[id]; ok && !t.held[id] {
			toLock = append(toLock, l)
			t.held[id] = true
		}
	}
	t.s.mu.Unlock()

	for _, l := range toLock {
		l.Lock()
	}

	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	out := make(map[uint64]domain.StockLevel, len(ids))
	for _, id := range ids {
		p, ok := t.s.products[id]
		if !ok {
			continue
		}
		stock := p.Stock
		if staged, ok := t.staged[id]; ok {
			stock = staged
		}
		out[id] = domain.StockLevel{Stock: stock, Price: p.Price}
	}
	return out, nil
}

func (t *memTx) DecrementStock(ctx context.Context, productID uint64, qty int64) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if !t.held[productID] {
		return fmt.Errorf("decrement of unlocked product %d", productID)
	}
	cur, ok := t.staged[productID]
	if !ok {
		cur = t.s.products[productID].Stock
	}
	if cur < qty {
		return fmt.Errorf("%w: stock of product %d changed", domain.ErrTransactionConflict, productID)
	}
	t.staged[productID] = cur - qty
	return nil
}

func (t *memTx) CreateOrder(ctx context.Context, order *domain.Order) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.s.nextID++
	order.ID = t.s.nextID
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	t.orders = append(t.orders, *order)
	return nil
}

func (t *memTx) CreateCartItems(ctx context.Context, items []domain.CartItem) error {
	t.s.mu.Lock()
	fail := t.s.failCart
	t.s.mu.Unlock()
	if fail {
		return domain.Infrastructure(fmt.Errorf("write cart rows: connection reset"))
	}
	t.carts = append(t.carts, items...)
	return nil
}

func (t *memTx) Commit() error {
	if t.done {
		return nil
	}
	t.s.mu.Lock()
	for id, stock := range t.staged {
		p := t.s.products[id]
		p.Stock = stock
		t.s.products[id] = p
	}
	t.s.orders = append(t.s.orders, t.orders...)
	t.s.carts = append(t.s.carts, t.carts...)
	t.s.mu.Unlock()
	t.release()
	return nil
}

func (t *memTx) Rollback() error {
	if t.done {
		return nil
	}
	t.release()
	return nil
}

func (t *memTx) release() {
	t.done = true
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for id := range t.held {
		t.s.rowLocks[id].Unlock()
	}
	t.held = nil
}

package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"order-placement-service/internal/domain"
	"order-placement-service/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type store struct {
	db *gorm.DB
}

// NewStore returns a Store whose transactions run at READ COMMITTED and
// rely on SELECT ... FOR UPDATE row locks for stock consistency.
func NewStore(db *gorm.DB) repository.Store {
	return &store{db: db}
}

func (s *store) Begin(ctx context.Context) (repository.Tx, error) {
	tx := s.db.WithContext(ctx).Begin(&sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if tx.Error != nil {
		return nil, classify(tx.Error)
	}
	return &gormTx{tx: tx}, nil
}

type gormTx struct {
	tx   *gorm.DB
	done bool
}

func (t *gormTx) StockSnapshot(ctx context.Context, ids []uint64) (map[uint64]domain.StockLevel, error) {
	out := make(map[uint64]domain.StockLevel, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	// Rows are locked in primary key order so two placements over the same
	// products queue up instead of deadlocking.
	var products []domain.Product
	err := t.tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id", "stock", "price").
		Where("id IN ?", ids).
		Order("id").
		Find(&products).Error
	if err != nil {
		return nil, classify(err)
	}

	for _, p := range products {
		out[p.ID] = domain.StockLevel{Stock: p.Stock, Price: p.Price}
	}
	return out, nil
}

func (t *gormTx) DecrementStock(ctx context.Context, productID uint64, qty int64) error {
	res := t.tx.WithContext(ctx).
		Model(&domain.Product{}).
		Where("id = ? AND stock >= ?", productID, qty).
		UpdateColumn("stock", gorm.Expr("stock - ?", qty))
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected != 1 {
		// The locked snapshot said there was enough; someone bypassed the lock.
		return fmt.Errorf("%w: stock of product %d changed during placement", domain.ErrTransactionConflict, productID)
	}
	return nil
}

func (t *gormTx) CreateOrder(ctx context.Context, order *domain.Order) error {
	if err := t.tx.WithContext(ctx).Omit(clause.Associations).Create(order).Error; err != nil {
		return classify(err)
	}
	if order.ID == 0 {
		return domain.Infrastructure(errors.New("order id was not assigned"))
	}
	return nil
}

func (t *gormTx) CreateCartItems(ctx context.Context, items []domain.CartItem) error {
	if len(items) == 0 {
		return nil
	}
	if err := t.tx.WithContext(ctx).CreateInBatches(&items, 100).Error; err != nil {
		return classify(err)
	}
	return nil
}

func (t *gormTx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	return classify(t.tx.Commit().Error)
}

func (t *gormTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback().Error; err != nil && !errors.Is(err, gorm.ErrInvalidTransaction) && !errors.Is(err, sql.ErrTxDone) {
		return classify(err)
	}
	return nil
}

package mysql

import (
	"context"
	"errors"

	"order-placement-service/internal/domain"

	drv "github.com/go-sql-driver/mysql"
)

// InnoDB error numbers that mean a competing transaction won.
const (
	errLockWaitTimeout uint16 = 1205
	errLockDeadlock    uint16 = 1213
)

// classify maps driver errors onto the domain taxonomy. Context errors are
// returned unchanged so callers can tell a cancelled request from a fault.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var myErr *drv.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case errLockDeadlock, errLockWaitTimeout:
			return errors.Join(domain.ErrTransactionConflict, err)
		}
	}
	return domain.Infrastructure(err)
}

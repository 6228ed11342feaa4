package operation

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
)

var interruptSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// Uninterruptible runs fn while holding off SIGINT and SIGTERM. It reports
// whether one of them arrived in the meantime.
func Uninterruptible(fn func()) (interrupted bool) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, interruptSignals...)
	defer signal.Stop(ch)

	fn()

	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// Run executes fn as the body of the operation. On success the operation
// is closed. On error or panic it is aborted with interrupts held off so
// the rollback cannot itself be cut short. When the rollback was caused by
// an interrupt or by ctx being cancelled, the returned error also wraps
// ErrCancelled.
func (o *Operation) Run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			o.rollback()
			panic(r)
		}
	}()

	if err := fn(ctx); err != nil {
		interrupted := o.rollback()
		if interrupted || errors.Is(ctx.Err(), context.Canceled) {
			if errors.Is(err, ErrCancelled) {
				return err
			}
			return errors.Join(ErrCancelled, err)
		}
		return err
	}
	o.Close()
	return nil
}

func (o *Operation) rollback() bool {
	return Uninterruptible(func() {
		if err := o.Abort(nil); err != nil {
			logger.Error("rollback incomplete", "operation", o.name, "error", err)
		}
	})
}

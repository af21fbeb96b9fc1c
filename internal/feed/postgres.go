package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"concretesync/pkg/trace"
)

// PostgresFeed receives change events through LISTEN/NOTIFY on one channel.
// A trigger on each watched table is expected to NOTIFY the ChangeEvent JSON.
type PostgresFeed struct {
	pool    *pgxpool.Pool
	channel string
	logger  *zap.Logger
}

func NewPostgresFeed(pool *pgxpool.Pool, channel string, logger *zap.Logger) *PostgresFeed {
	return &PostgresFeed{pool: pool, channel: channel, logger: logger}
}

func (f *PostgresFeed) Subscribe(ctx context.Context, tables []string, onEvent Handler, onState StateFunc) (Subscription, error) {
	onState(StatePending, nil)

	conn, err := f.pool.Acquire(ctx)
	if err != nil {
		err = fmt.Errorf("acquire listen connection: %w", err)
		onState(StateError, err)
		return nil, err
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{f.channel}.Sanitize()); err != nil {
		conn.Release()
		err = fmt.Errorf("listen %s: %w", f.channel, err)
		onState(StateError, err)
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &pgSubscription{cancel: cancel, done: make(chan struct{})}
	sub.alive.Store(true)
	onState(StateSubscribed, nil)
	f.logger.Info("Listening for change events", zap.String("channel", f.channel))

	go func() {
		defer close(sub.done)
		defer conn.Release()
		defer sub.alive.Store(false)

		for {
			n, err := conn.Conn().WaitForNotification(subCtx)
			if err != nil {
				if subCtx.Err() != nil {
					f.unlisten(conn)
					onState(StateClosed, nil)
					return
				}
				f.logger.Warn("Change feed connection lost", zap.Error(err))
				onState(StateError, err)
				return
			}

			raw := []byte(n.Payload)
			if table, ok := tableOf(raw); ok && !watches(tables, table) {
				continue
			}
			if err := onEvent(trace.Ensure(subCtx), raw); err != nil && !errors.Is(err, context.Canceled) {
				f.logger.Warn("Change event handler failed", zap.Error(err))
			}
		}
	}()
	return sub, nil
}

// unlisten 尽力清理；连接在取消时可能已被关闭
func (f *PostgresFeed) unlisten(conn *pgxpool.Conn) {
	if conn.Conn().IsClosed() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, _ = conn.Exec(ctx, "UNLISTEN "+pgx.Identifier{f.channel}.Sanitize())
}

type pgSubscription struct {
	alive  atomic.Bool
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

func (s *pgSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
}

func (s *pgSubscription) Alive() bool {
	return s.alive.Load()
}

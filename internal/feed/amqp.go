package feed

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	mqcontracts "concretesync/contracts/mq"
	"concretesync/pkg/mq"
	"concretesync/pkg/trace"
)

// AMQPFeed consumes change events from a topic exchange. Every instance declares its own
// exclusive queue, so every instance sees every event.
type AMQPFeed struct {
	url      string
	exchange string
	logger   *zap.Logger
}

func NewAMQPFeed(url, exchange string, logger *zap.Logger) *AMQPFeed {
	if exchange == "" {
		exchange = mq.FeedExchange
	}
	return &AMQPFeed{url: url, exchange: exchange, logger: logger}
}

func (f *AMQPFeed) Subscribe(ctx context.Context, tables []string, onEvent Handler, onState StateFunc) (Subscription, error) {
	onState(StatePending, nil)

	keys := make([]string, len(tables))
	for i, t := range tables {
		keys[i] = mqcontracts.FeedRoutingKey(t, "")
	}

	consumer, err := mq.NewConsumer(f.url, f.exchange, mq.QueueOptions{Exclusive: true, AutoDelete: true}, keys, f.logger)
	if err != nil {
		onState(StateError, err)
		return nil, err
	}
	consumer.SetHandler(func(ctx context.Context, data json.RawMessage) error {
		return onEvent(trace.Ensure(ctx), data)
	})

	sub := &amqpSubscription{consumer: consumer, done: make(chan struct{})}
	onState(StateSubscribed, nil)

	go func() {
		defer close(sub.done)
		if err := consumer.StartConsuming(ctx); err != nil {
			f.logger.Warn("Change feed consumer stopped", zap.Error(err))
			onState(StateError, err)
			return
		}
		onState(StateClosed, nil)
	}()
	return sub, nil
}

type amqpSubscription struct {
	consumer *mq.Consumer
	once     sync.Once
	done     chan struct{}
}

func (s *amqpSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.consumer.Close()
		<-s.done
	})
}

func (s *amqpSubscription) Alive() bool {
	return s.consumer.IsConnected()
}

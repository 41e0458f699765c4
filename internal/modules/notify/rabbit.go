// README: Publishes confirmation events to a RabbitMQ topic exchange with publisher confirms.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"ridebid/internal/clock"
	"ridebid/internal/modules/auction"
)

var (
	ErrNotConfirmed = errors.New("auction has no accepted bid")
	ErrNacked       = errors.New("rabbitmq: publish not acknowledged")
)

const (
	PublishTimeout = 5 * time.Second
	// confirmGrace is how long a timed-out publish keeps waiting for its own
	// confirm so the stream does not back up behind it.
	confirmGrace  = 2 * time.Second
	confirmBuffer = 16
)

type publisher interface {
	GetNextPublishSeqNo() uint64
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type RabbitNotifier struct {
	ch       publisher
	confirms <-chan amqp.Confirmation
	exchange string
	timeout  time.Duration
	grace    time.Duration
	clock    clock.Clock

	// one publish in flight keeps confirms paired with their messages
	mu sync.Mutex
}

// NewRabbitNotifier expects ch to be in confirm mode already.
func NewRabbitNotifier(ch *amqp.Channel, exchange string, clk clock.Clock) *RabbitNotifier {
	confirms := ch.NotifyPublish(make(chan amqp.Confirmation, confirmBuffer))
	return newRabbitNotifier(ch, confirms, exchange, PublishTimeout, clk)
}

func newRabbitNotifier(ch publisher, confirms <-chan amqp.Confirmation, exchange string, timeout time.Duration, clk clock.Clock) *RabbitNotifier {
	if clk == nil {
		clk = clock.System{}
	}
	return &RabbitNotifier{ch: ch, confirms: confirms, exchange: exchange, timeout: timeout, grace: confirmGrace, clock: clk}
}

func (n *RabbitNotifier) NotifyPartiesOfConfirmation(ctx context.Context, a auction.Auction, code string) error {
	msg, err := NewConfirmationMessage(a, code, n.clock.Now())
	if err != nil {
		return err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	seq := n.ch.GetNextPublishSeqNo()
	err = n.ch.PublishWithContext(ctx, n.exchange, RoutingKey(a.ID), false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    string(a.ID),
		Timestamp:    msg.ConfirmedAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", a.ID, err)
	}

	err = n.awaitConfirm(ctx.Done(), seq)
	if !errors.Is(err, errConfirmWait) {
		return err
	}

	// keep the confirm stream aligned: give our own confirm a last chance
	// before reporting the timeout
	graceCtx, graceCancel := context.WithTimeout(context.Background(), n.grace)
	defer graceCancel()
	switch err := n.awaitConfirm(graceCtx.Done(), seq); {
	case err == nil:
		return nil
	case errors.Is(err, errConfirmWait):
		return ctx.Err()
	default:
		return fmt.Errorf("%w after timeout", err)
	}
}

var errConfirmWait = errors.New("rabbitmq: stopped waiting for confirm")

// awaitConfirm reads confirms until the one tagged seq arrives. Confirms left
// over from earlier publishes that timed out are discarded.
func (n *RabbitNotifier) awaitConfirm(stop <-chan struct{}, seq uint64) error {
	for {
		select {
		case c, ok := <-n.confirms:
			if !ok {
				return errors.New("rabbitmq: confirm channel closed")
			}
			if c.DeliveryTag < seq {
				continue
			}
			if !c.Ack {
				return ErrNacked
			}
			return nil
		case <-stop:
			return errConfirmWait
		}
	}
}

package refresh

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"thirdangle/domain"
)

// Refresher is satisfied by Reconciler.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Subscriber runs background refreshes. A refresh is requested by a message
// on the board updates channel, by the optional poll interval or by Trigger.
// Requests made while a refresh is running collapse into one follow-up.
type Subscriber struct {
	rc        *redis.Client
	channel   string
	refresher Refresher
	interval  time.Duration
	logger    *log.Logger
	retry     time.Duration

	kick chan struct{}
}

// NewSubscriber creates a subscriber. rc may be nil to run on polling and
// manual triggers only; interval may be zero to disable polling.
func NewSubscriber(rc *redis.Client, channel string, refresher Refresher, interval time.Duration, logger *log.Logger) *Subscriber {
	if refresher == nil {
		panic("refresh.NewSubscriber: refresher is required")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Subscriber{
		rc:        rc,
		channel:   channel,
		refresher: refresher,
		interval:  interval,
		logger:    logger,
		retry:     time.Second,
		kick:      make(chan struct{}, 1),
	}
}

// Trigger asks for a background refresh without waiting for it.
func (s *Subscriber) Trigger() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is done.
func (s *Subscriber) Run(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.refreshLoop(ctx)
	}()
	if s.rc != nil {
		s.listen(ctx)
	}
	<-done
}

func (s *Subscriber) refreshLoop(ctx context.Context) {
	var tick <-chan time.Time
	if s.interval > 0 {
		t := time.NewTicker(s.interval)
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.kick:
		case <-tick:
		}
		if err := s.refresher.Refresh(ctx); err != nil && ctx.Err() == nil {
			s.logger.WithError(err).Warn("background refresh failed")
		}
	}
}

func (s *Subscriber) listen(ctx context.Context) {
	for {
		sub := s.rc.Subscribe(ctx, s.channel)
		ch := sub.Channel()
	receive:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break receive
				}
				var upd domain.BoardUpdate
				if err := sonic.UnmarshalString(msg.Payload, &upd); err != nil {
					s.logger.WithError(err).Warn("unable to parse board update")
				} else {
					s.logger.WithFields(log.Fields{"task": upd.TaskID, "status": upd.Status}).Debug("board update received")
				}
				s.Trigger()
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("board updates channel closed, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.retry):
		}
	}
}

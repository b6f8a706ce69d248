package services

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"gorm.io/gorm"
)

const (
	listenRetryMin = time.Second
	listenRetryMax = 30 * time.Second
)

// listenConn is the part of a pgx connection the listen loop uses.
type listenConn interface {
	Exec(ctx context.Context, sql string) error
	WaitForPayload(ctx context.Context) (string, error)
	Close(ctx context.Context) error
}

type pgxListenConn struct{ conn *pgx.Conn }

func (c pgxListenConn) Exec(ctx context.Context, sql string) error {
	_, err := c.conn.Exec(ctx, sql)
	return err
}

func (c pgxListenConn) WaitForPayload(ctx context.Context) (string, error) {
	notification, err := c.conn.WaitForNotification(ctx)
	if err != nil {
		return "", err
	}
	return notification.Payload, nil
}

func (c pgxListenConn) Close(ctx context.Context) error { return c.conn.Close(ctx) }

// PGNotifier publishes registry changes with pg_notify so every API
// instance sharing the database sees them. A dedicated LISTEN connection
// feeds received payloads into the embedded LocalNotifier.
type PGNotifier struct {
	*LocalNotifier
	channel string
	logger  *slog.Logger

	notify func(ctx context.Context, channel, payload string) error
	dial   func(ctx context.Context) (listenConn, error)

	listening atomic.Bool
}

func NewPGNotifier(db *gorm.DB, dsn, channel string) *PGNotifier {
	return &PGNotifier{
		LocalNotifier: NewLocalNotifier(),
		channel:       channel,
		logger:        slog.Default().With("component", "registry.notify", "channel", channel),
		notify: func(ctx context.Context, channel, payload string) error {
			return db.WithContext(ctx).Exec("SELECT pg_notify(?, ?)", channel, payload).Error
		},
		dial: func(ctx context.Context) (listenConn, error) {
			conn, err := pgx.Connect(ctx, dsn)
			if err != nil {
				return nil, err
			}
			return pgxListenConn{conn: conn}, nil
		},
	}
}

// Listening reports whether the LISTEN connection is up.
func (n *PGNotifier) Listening() bool { return n.listening.Load() }

// Publish sends the owner id on the channel. While the LISTEN connection is
// up, local subscribers get the event when it comes back through Listen.
// Otherwise, or when the NOTIFY fails, it is delivered locally right away.
func (n *PGNotifier) Publish(ctx context.Context, ownerID uuid.UUID) {
	if err := n.notify(ctx, n.channel, ownerID.String()); err != nil {
		n.logger.Warn("pg_notify failed, delivering locally", "owner", ownerID, "error", err)
		n.LocalNotifier.Publish(ctx, ownerID)
		return
	}
	if !n.listening.Load() {
		n.LocalNotifier.Publish(ctx, ownerID)
	}
}

// Listen holds a LISTEN connection until ctx is cancelled, reconnecting
// with capped exponential backoff.
func (n *PGNotifier) Listen(ctx context.Context) {
	backoff := listenRetryMin
	for {
		err := n.listenOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		n.logger.Warn("LISTEN connection lost", "error", err, "retry_in", backoff)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > listenRetryMax {
			backoff = listenRetryMax
		}
	}
}

func (n *PGNotifier) listenOnce(ctx context.Context) error {
	conn, err := n.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close(context.Background())

	if err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{n.channel}.Sanitize()); err != nil {
		return err
	}
	n.listening.Store(true)
	defer n.listening.Store(false)
	n.logger.Info("Listening for registry changes")

	// Notifications sent by other instances while we were not listening are
	// gone; every subscriber resyncs once.
	n.LocalNotifier.PublishAll(ctx)

	for {
		payload, err := conn.WaitForPayload(ctx)
		if err != nil {
			return err
		}
		ownerID, err := uuid.Parse(payload)
		if err != nil {
			n.logger.Debug("Ignoring malformed notification", "payload", payload)
			continue
		}
		n.LocalNotifier.Publish(ctx, ownerID)
	}
}

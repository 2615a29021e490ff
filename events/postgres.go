package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const notifyChannel = "personal_events"

// how long to wait before re-acquiring a listen connection after it dies
const relistenBackoff = 2 * time.Second

// PostgresStore persists personal events and turns the table's
// pg_notify trigger into per-user live subscriptions.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresStore(pool *pgxpool.Pool, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

func (s *PostgresStore) List(ctx context.Context, userID string) ([]PersonalEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, event_date, start_period, period_count, location, organizer_name
		FROM personal_events
		WHERE user_id = $1
		ORDER BY event_date, start_period, id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var eventList []PersonalEvent
	for rows.Next() {
		var (
			id            pgtype.UUID
			title         string
			eventDate     pgtype.Date
			startPeriod   int32
			periodCount   int32
			location      pgtype.Text
			organizerName pgtype.Text
		)
		err := rows.Scan(&id, &title, &eventDate, &startPeriod, &periodCount, &location, &organizerName)
		if err != nil {
			return nil, err
		}
		event := PersonalEvent{
			Title:         title,
			StartPeriod:   int(startPeriod),
			PeriodCount:   int(periodCount),
			Location:      location.String,
			OrganizerName: organizerName.String,
		}
		if id.Valid {
			event.ID = uuid.UUID(id.Bytes).String()
		}
		if eventDate.Valid {
			event.Date = AsCalendarDate(eventDate.Time)
		}
		eventList = append(eventList, event)
	}
	return eventList, rows.Err()
}

func (s *PostgresStore) Put(ctx context.Context, userID string, event PersonalEvent) (string, error) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	event.Date = AsCalendarDate(event.Date)

	_, err := s.pool.Exec(ctx, `
		INSERT INTO personal_events
			(id, user_id, title, event_date, start_period, period_count, location, organizer_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			event_date = EXCLUDED.event_date,
			start_period = EXCLUDED.start_period,
			period_count = EXCLUDED.period_count,
			location = EXCLUDED.location,
			organizer_name = EXCLUDED.organizer_name,
			updated_at = now()`,
		event.ID,
		userID,
		event.Title,
		pgtype.Date{Time: event.Date, Valid: true},
		int32(event.StartPeriod),
		int32(event.PeriodCount),
		pgtype.Text{String: event.Location, Valid: event.Location != ""},
		pgtype.Text{String: event.OrganizerName, Valid: event.OrganizerName != ""},
	)
	if err != nil {
		return "", err
	}
	return event.ID, nil
}

func (s *PostgresStore) Delete(ctx context.Context, userID string, eventID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM personal_events WHERE id = $1 AND user_id = $2`,
		eventID, userID,
	)
	return err
}

// Subscribe holds a dedicated connection on LISTEN and re-queries the
// full list whenever the trigger fires for this user. The LISTEN is
// established before the initial snapshot is taken: a mutation landing
// between the two shows up as a notification, never a silent gap. The
// notification payload only carries the user id; the snapshot always
// comes from a fresh query so a missed notification at worst delays,
// never corrupts.
func (s *PostgresStore) Subscribe(
	ctx context.Context,
	userID string,
	onUpdate func([]PersonalEvent),
	onError func(error),
) (Unsubscribe, error) {
	subCtx, cancel := context.WithCancel(ctx)
	conn, initial, err := s.openListener(subCtx, userID)
	if err != nil {
		cancel()
		return nil, err
	}
	onUpdate(initial)

	go s.listen(subCtx, conn, userID, onUpdate, onError)

	var once sync.Once
	return func() {
		once.Do(cancel)
	}, nil
}

// openListener acquires a connection, runs LISTEN on it, and only then
// takes the full-list snapshot.
func (s *PostgresStore) openListener(
	ctx context.Context,
	userID string,
) (*pgxpool.Conn, []PersonalEvent, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		conn.Release()
		return nil, nil, err
	}
	snapshot, err := s.List(ctx, userID)
	if err != nil {
		conn.Release()
		return nil, nil, err
	}
	return conn, snapshot, nil
}

func (s *PostgresStore) listen(
	ctx context.Context,
	conn *pgxpool.Conn,
	userID string,
	onUpdate func([]PersonalEvent),
	onError func(error),
) {
	for {
		err := s.waitForNotifications(ctx, conn, userID, onUpdate)
		conn.Release()
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("personal event listen connection lost", "err", err)
		onError(err)

		for {
			select {
			case <-time.After(relistenBackoff):
			case <-ctx.Done():
				return
			}
			next, snapshot, err := s.openListener(ctx, userID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				onError(err)
				continue
			}
			conn = next
			// covers anything that changed while disconnected
			onUpdate(snapshot)
			break
		}
	}
}

func (s *PostgresStore) waitForNotifications(
	ctx context.Context,
	conn *pgxpool.Conn,
	userID string,
	onUpdate func([]PersonalEvent),
) error {
	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		if notification.Payload != userID {
			continue
		}
		snapshot, err := s.List(ctx, userID)
		if err != nil {
			return err
		}
		onUpdate(snapshot)
	}
}

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/starford/subtrack/internal/apperr"
	"github.com/starford/subtrack/internal/detection"
	"github.com/starford/subtrack/internal/models"
)

const subscriptionColumns = `id, vendor_key, vendor_display_name, interval, baseline_amount, status,
	next_expected, confidence, first_seen, last_seen, occurrences,
	lifecycle_owner, observation_owner, created_at, updated_at`

// ListSubscriptions returns every subscription ordered by vendor key.
func (db *DB) ListSubscriptions() ([]models.Subscription, error) {
	rows, err := db.conn.Query(`SELECT ` + subscriptionColumns + ` FROM subscriptions ORDER BY vendor_key`)
	if err != nil {
		return nil, fmt.Errorf("store: list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []models.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetSubscription returns the subscription with the given id or
// apperr.ErrNotFound.
func (db *DB) GetSubscription(id string) (*models.Subscription, error) {
	return db.getSubscription(`id`, id)
}

// GetSubscriptionByVendor returns the subscription for a vendor key or
// apperr.ErrNotFound.
func (db *DB) GetSubscriptionByVendor(key string) (*models.Subscription, error) {
	return db.getSubscription(`vendor_key`, key)
}

func (db *DB) getSubscription(column, value string) (*models.Subscription, error) {
	row := db.conn.QueryRow(`SELECT `+subscriptionColumns+` FROM subscriptions WHERE `+column+` = ?`, value)
	s, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ApplyUpserts persists a reconciliation result atomically. Created records
// get a fresh UUID. It returns the stored form of every upserted record.
func (db *DB) ApplyUpserts(ups []detection.Upsert) ([]models.Subscription, error) {
	if len(ups) == 0 {
		return nil, nil
	}
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	now := time.Now().UTC()
	out := make([]models.Subscription, 0, len(ups))
	for _, u := range ups {
		s := u.Subscription
		s.UpdatedAt = now
		switch u.Op {
		case detection.OpCreate:
			s.ID = uuid.NewString()
			s.CreatedAt = now
			if err := insertSubscription(tx, s); err != nil {
				return nil, err
			}
		case detection.OpUpdate:
			if err := updateSubscription(tx, `vendor_key`, s.VendorKey, s); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("store: unknown upsert op %q", u.Op)
		}
		out = append(out, s)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit: %w", err)
	}
	return out, nil
}

// SaveOverride writes a user edit of an existing subscription, matched by id.
func (db *DB) SaveOverride(sub models.Subscription) error {
	sub.UpdatedAt = time.Now().UTC()
	return updateSubscription(db.conn, `id`, sub.ID, sub)
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertSubscription(e execer, s models.Subscription) error {
	_, err := e.Exec(`
		INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.VendorKey, s.VendorDisplayName, string(s.Interval), s.BaselineAmount.String(),
		string(s.Status), formatDatePtr(s.NextExpected), s.Confidence,
		formatDate(s.FirstSeen), formatDate(s.LastSeen), s.Occurrences,
		string(s.Ownership.Lifecycle), string(s.Ownership.Observation), s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: insert subscription %s: %w", s.VendorKey, err)
	}
	return nil
}

func updateSubscription(e execer, column, value string, s models.Subscription) error {
	res, err := e.Exec(`
		UPDATE subscriptions SET
			vendor_display_name = ?,
			interval            = ?,
			baseline_amount     = ?,
			status              = ?,
			next_expected       = ?,
			confidence          = ?,
			first_seen          = ?,
			last_seen           = ?,
			occurrences         = ?,
			lifecycle_owner     = ?,
			observation_owner   = ?,
			updated_at          = ?
		WHERE `+column+` = ?
	`, s.VendorDisplayName, string(s.Interval), s.BaselineAmount.String(), string(s.Status),
		formatDatePtr(s.NextExpected), s.Confidence, formatDate(s.FirstSeen), formatDate(s.LastSeen),
		s.Occurrences, string(s.Ownership.Lifecycle), string(s.Ownership.Observation), s.UpdatedAt, value)
	if err != nil {
		return fmt.Errorf("store: update subscription %s: %w", value, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func scanSubscription(s scanner) (models.Subscription, error) {
	var (
		sub         models.Subscription
		interval    string
		baseline    string
		status      string
		next        sql.NullString
		firstSeen   string
		lastSeen    string
		lifecycle   string
		observation string
	)
	err := s.Scan(&sub.ID, &sub.VendorKey, &sub.VendorDisplayName, &interval, &baseline, &status,
		&next, &sub.Confidence, &firstSeen, &lastSeen, &sub.Occurrences,
		&lifecycle, &observation, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sub, err
		}
		return sub, fmt.Errorf("store: scan subscription: %w", err)
	}

	sub.Interval = models.Interval(interval)
	sub.Status = models.Status(status)
	sub.Ownership = models.Ownership{Lifecycle: models.Owner(lifecycle), Observation: models.Owner(observation)}
	if sub.BaselineAmount, err = decimal.NewFromString(baseline); err != nil {
		return sub, fmt.Errorf("store: subscription %s baseline: %w", sub.VendorKey, err)
	}
	if sub.FirstSeen, err = parseDate(firstSeen); err != nil {
		return sub, fmt.Errorf("store: subscription %s first_seen: %w", sub.VendorKey, err)
	}
	if sub.LastSeen, err = parseDate(lastSeen); err != nil {
		return sub, fmt.Errorf("store: subscription %s last_seen: %w", sub.VendorKey, err)
	}
	if next.Valid && next.String != "" {
		d, err := models.ParseDate(next.String)
		if err != nil {
			return sub, fmt.Errorf("store: subscription %s next_expected: %w", sub.VendorKey, err)
		}
		sub.NextExpected = &d
	}
	return sub, nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(models.DateLayout)
}

func formatDatePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(models.DateLayout)
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return models.ParseDate(s)
}

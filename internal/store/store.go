package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"citybrief/internal/core"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite-backed content, send-record, recipient, and feed store.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (creating if needed) the SQLite database at path.
func NewStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{
		db:   db,
		path: path,
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return store, nil
}

// initialize creates the necessary tables
func (s *Store) initialize() error {
	pragmas := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA busy_timeout=5000;`,
	}
	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	contentTable := `
	CREATE TABLE IF NOT EXISTS content_items (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		external_id TEXT NOT NULL,
		content_type TEXT NOT NULL,
		module_id TEXT NOT NULL,
		dedup_key TEXT NOT NULL,
		title TEXT NOT NULL,
		body TEXT,
		url TEXT,
		route_tags TEXT,
		urgency_class TEXT NOT NULL,
		priority_score INTEGER NOT NULL DEFAULT 0,
		severity TEXT NOT NULL DEFAULT '',
		actionable INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		starts_at DATETIME,
		ends_at DATETIME,
		version INTEGER NOT NULL DEFAULT 1,
		status_changed INTEGER NOT NULL DEFAULT 0,
		superseded INTEGER NOT NULL DEFAULT 0,
		UNIQUE (source, external_id)
	);`

	sendTable := `
	CREATE TABLE IF NOT EXISTS send_records (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		item_id TEXT NOT NULL,
		version INTEGER NOT NULL,
		slot TEXT NOT NULL,
		digest_id TEXT,
		sent_on TEXT NOT NULL,
		sent_at DATETIME NOT NULL,
		UNIQUE (user_id, item_id, version, sent_on)
	);`

	recipientsTable := `
	CREATE TABLE IF NOT EXISTS recipients (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		tier TEXT NOT NULL DEFAULT 'free',
		timezone TEXT NOT NULL DEFAULT 'America/New_York',
		modules TEXT,
		active INTEGER NOT NULL DEFAULT 1
	);`

	feedsTable := `
	CREATE TABLE IF NOT EXISTS feeds (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		url TEXT NOT NULL,
		content_type TEXT NOT NULL,
		module_id TEXT NOT NULL,
		trust_tier INTEGER NOT NULL DEFAULT 4,
		active INTEGER NOT NULL DEFAULT 1,
		added_at DATETIME NOT NULL
	);`

	digestsTable := `
	CREATE TABLE IF NOT EXISTS digests (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		slot TEXT NOT NULL,
		mode TEXT NOT NULL,
		subject TEXT,
		item_count INTEGER NOT NULL,
		sent_on TEXT NOT NULL,
		sent_at DATETIME NOT NULL
	);`

	tables := []string{contentTable, sendTable, recipientsTable, feedsTable, digestsTable}
	for _, table := range tables {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertByExternalID inserts a new item or, when (source, external_id)
// already exists, updates it in place. A material content change bumps the
// version and sets status_changed; an identical re-scrape is a no-op. The
// stored row is returned along with whether anything changed.
func (s *Store) UpsertByExternalID(item core.ContentItem) (core.ContentItem, bool, error) {
	existing, err := s.GetByExternalID(item.Source, item.ExternalID)
	if err != nil {
		return core.ContentItem{}, false, err
	}

	if existing == nil {
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		if item.Version == 0 {
			item.Version = 1
		}
		if err := s.insertItem(item); err != nil {
			return core.ContentItem{}, false, err
		}
		return item, true, nil
	}

	if !materialChange(*existing, item) {
		return *existing, false, nil
	}

	updated := *existing
	updated.Title = item.Title
	updated.Body = item.Body
	updated.URL = item.URL
	updated.DedupKey = item.DedupKey
	updated.RouteTags = item.RouteTags
	updated.UrgencyClass = item.UrgencyClass
	updated.Severity = item.Severity
	updated.Actionable = item.Actionable
	updated.StartsAt = item.StartsAt
	updated.EndsAt = item.EndsAt
	updated.Version = existing.Version + 1
	updated.StatusChanged = true

	tags, _ := json.Marshal(updated.RouteTags)
	query := `
	UPDATE content_items
	SET title = ?, body = ?, url = ?, dedup_key = ?, route_tags = ?,
		urgency_class = ?, severity = ?, actionable = ?, starts_at = ?,
		ends_at = ?, version = ?, status_changed = 1
	WHERE id = ?`

	_, err = s.db.Exec(query,
		updated.Title, updated.Body, updated.URL, updated.DedupKey, string(tags),
		string(updated.UrgencyClass), string(updated.Severity), updated.Actionable,
		nullableTime(updated.StartsAt), nullableTime(updated.EndsAt),
		updated.Version, updated.ID,
	)
	if err != nil {
		return core.ContentItem{}, false, fmt.Errorf("failed to update item: %w", err)
	}
	return updated, true, nil
}

// materialChange reports whether the re-scraped item differs in a way users
// care about. Scores and routing metadata churn constantly; only display
// content, severity, and the validity window count.
func materialChange(old, new core.ContentItem) bool {
	return old.Title != new.Title ||
		old.Body != new.Body ||
		old.Severity != new.Severity ||
		!timePtrEqual(old.StartsAt, new.StartsAt) ||
		!timePtrEqual(old.EndsAt, new.EndsAt)
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func (s *Store) insertItem(item core.ContentItem) error {
	tags, _ := json.Marshal(item.RouteTags)

	query := `
	INSERT INTO content_items
	(id, source, external_id, content_type, module_id, dedup_key, title, body, url,
	 route_tags, urgency_class, priority_score, severity, actionable, created_at,
	 starts_at, ends_at, version, status_changed, superseded)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.Exec(query,
		item.ID, item.Source, item.ExternalID, string(item.ContentType),
		string(item.ModuleID), item.DedupKey, item.Title, item.Body, item.URL,
		string(tags), string(item.UrgencyClass), item.PriorityScore,
		string(item.Severity), item.Actionable, item.CreatedAt.UTC(),
		nullableTime(item.StartsAt), nullableTime(item.EndsAt),
		item.Version, item.StatusChanged, item.Superseded,
	)
	if err != nil {
		return fmt.Errorf("failed to insert item: %w", err)
	}
	return nil
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

const itemColumns = `id, source, external_id, content_type, module_id, dedup_key,
	title, body, url, route_tags, urgency_class, priority_score, severity,
	actionable, created_at, starts_at, ends_at, version, status_changed, superseded`

func scanItem(row interface{ Scan(...interface{}) error }) (core.ContentItem, error) {
	var item core.ContentItem
	var contentType, moduleID, urgency, severity, tags string
	var startsAt, endsAt sql.NullTime

	err := row.Scan(
		&item.ID, &item.Source, &item.ExternalID, &contentType, &moduleID,
		&item.DedupKey, &item.Title, &item.Body, &item.URL, &tags, &urgency,
		&item.PriorityScore, &severity, &item.Actionable, &item.CreatedAt,
		&startsAt, &endsAt, &item.Version, &item.StatusChanged, &item.Superseded,
	)
	if err != nil {
		return core.ContentItem{}, err
	}

	item.ContentType = core.ContentType(contentType)
	item.ModuleID = core.ModuleID(moduleID)
	item.UrgencyClass = core.UrgencyClass(urgency)
	item.Severity = core.Severity(severity)
	if tags != "" {
		json.Unmarshal([]byte(tags), &item.RouteTags)
	}
	if startsAt.Valid {
		t := startsAt.Time
		item.StartsAt = &t
	}
	if endsAt.Valid {
		t := endsAt.Time
		item.EndsAt = &t
	}
	return item, nil
}

// GetByExternalID returns the item for (source, externalID), or nil on miss.
func (s *Store) GetByExternalID(source, externalID string) (*core.ContentItem, error) {
	query := `SELECT ` + itemColumns + ` FROM content_items WHERE source = ? AND external_id = ?`
	row := s.db.QueryRow(query, source, externalID)

	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil // Miss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan item: %w", err)
	}
	return &item, nil
}

// GetItem returns the item by id, or nil on miss.
func (s *Store) GetItem(id string) (*core.ContentItem, error) {
	query := `SELECT ` + itemColumns + ` FROM content_items WHERE id = ?`
	row := s.db.QueryRow(query, id)

	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil // Miss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan item: %w", err)
	}
	return &item, nil
}

// FindRecent returns non-superseded items of one content type created at or
// after since, newest first.
func (s *Store) FindRecent(contentType core.ContentType, since time.Time) ([]core.ContentItem, error) {
	query := `SELECT ` + itemColumns + `
	FROM content_items
	WHERE content_type = ? AND created_at >= ? AND superseded = 0
	ORDER BY created_at DESC`

	return s.queryItems(query, string(contentType), since.UTC())
}

// FindRecentAll returns non-superseded items of every content type created
// at or after since, newest first.
func (s *Store) FindRecentAll(since time.Time) ([]core.ContentItem, error) {
	query := `SELECT ` + itemColumns + `
	FROM content_items
	WHERE created_at >= ? AND superseded = 0
	ORDER BY created_at DESC`

	return s.queryItems(query, since.UTC())
}

func (s *Store) queryItems(query string, args ...interface{}) ([]core.ContentItem, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var items []core.ContentItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// SupersedeItem marks an item as displaced by a cross-source duplicate. It
// stays in the table for audit but leaves every read path.
func (s *Store) SupersedeItem(id string) error {
	_, err := s.db.Exec(`UPDATE content_items SET superseded = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to supersede item: %w", err)
	}
	return nil
}

// ClearStatusChanged consumes the escalation flag after it has justified one
// re-send.
func (s *Store) ClearStatusChanged(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	query := fmt.Sprintf(`UPDATE content_items SET status_changed = 0 WHERE id IN (%s)`, placeholders)
	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to clear status_changed: %w", err)
	}
	return nil
}

// MarkSent records delivered (item, version) pairs for the user and day.
// Replays of the same delivery are absorbed by the uniqueness constraint.
func (s *Store) MarkSent(userID string, slot core.Slot, digestID string, items []core.ContentItem, sentOn string, sentAt time.Time) error {
	query := `
	INSERT OR IGNORE INTO send_records
	(id, user_id, item_id, version, slot, digest_id, sent_on, sent_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	for _, item := range items {
		_, err := s.db.Exec(query,
			uuid.New().String(), userID, item.ID, item.Version,
			string(slot), digestID, sentOn, sentAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to record send for item %s: %w", item.ID, err)
		}
	}
	return nil
}

// LastSentVersion returns the highest version of the item delivered to the
// user on the given day, or 0 when nothing was sent.
func (s *Store) LastSentVersion(userID, itemID, sentOn string) (int, error) {
	query := `SELECT MAX(version) FROM send_records WHERE user_id = ? AND item_id = ? AND sent_on = ?`

	var version sql.NullInt64
	err := s.db.QueryRow(query, userID, itemID, sentOn).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to query send records: %w", err)
	}
	if !version.Valid {
		return 0, nil // Never sent today
	}
	return int(version.Int64), nil
}

// CountDigestsToday returns how many digests the user has received on the
// given day, for the per-tier frequency cap.
func (s *Store) CountDigestsToday(userID, sentOn string) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM digests WHERE user_id = ? AND sent_on = ?`, userID, sentOn).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count digests: %w", err)
	}
	return count, nil
}

// InsertDigest writes the audit row for a delivered digest.
func (s *Store) InsertDigest(record core.DigestRecord) error {
	query := `
	INSERT INTO digests (id, user_id, slot, mode, subject, item_count, sent_on, sent_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.Exec(query,
		record.ID, record.UserID, string(record.Slot), string(record.Mode),
		record.Subject, record.ItemCount, record.SentOn, record.SentAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert digest record: %w", err)
	}
	return nil
}

// SaveRecipient inserts or replaces a recipient.
func (s *Store) SaveRecipient(r core.Recipient) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	modules, _ := json.Marshal(r.Modules)

	query := `
	INSERT OR REPLACE INTO recipients (id, email, tier, timezone, modules, active)
	VALUES (?, ?, ?, ?, ?, ?)`

	_, err := s.db.Exec(query, r.ID, r.Email, string(r.Tier), r.Timezone, string(modules), r.Active)
	if err != nil {
		return fmt.Errorf("failed to save recipient: %w", err)
	}
	return nil
}

// ListActiveRecipients returns all active recipients.
func (s *Store) ListActiveRecipients() ([]core.Recipient, error) {
	rows, err := s.db.Query(`SELECT id, email, tier, timezone, modules, active FROM recipients WHERE active = 1 ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("failed to query recipients: %w", err)
	}
	defer rows.Close()

	var recipients []core.Recipient
	for rows.Next() {
		var r core.Recipient
		var tier, modules string
		if err := rows.Scan(&r.ID, &r.Email, &tier, &r.Timezone, &modules, &r.Active); err != nil {
			return nil, fmt.Errorf("failed to scan recipient: %w", err)
		}
		r.Tier = core.Tier(tier)
		if modules != "" {
			json.Unmarshal([]byte(modules), &r.Modules)
		}
		recipients = append(recipients, r)
	}
	return recipients, rows.Err()
}

// SaveFeed inserts or replaces a feed registration.
func (s *Store) SaveFeed(f core.Feed) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	if f.AddedAt.IsZero() {
		f.AddedAt = time.Now().UTC()
	}

	query := `
	INSERT OR REPLACE INTO feeds (id, name, url, content_type, module_id, trust_tier, active, added_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.Exec(query,
		f.ID, f.Name, f.URL, string(f.ContentType), string(f.ModuleID),
		f.TrustTier, f.Active, f.AddedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save feed: %w", err)
	}
	return nil
}

// ListFeeds returns registered feeds, optionally only active ones.
func (s *Store) ListFeeds(activeOnly bool) ([]core.Feed, error) {
	query := `SELECT id, name, url, content_type, module_id, trust_tier, active, added_at FROM feeds`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY name`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query feeds: %w", err)
	}
	defer rows.Close()

	var feeds []core.Feed
	for rows.Next() {
		var f core.Feed
		var contentType, moduleID string
		if err := rows.Scan(&f.ID, &f.Name, &f.URL, &contentType, &moduleID, &f.TrustTier, &f.Active, &f.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan feed: %w", err)
		}
		f.ContentType = core.ContentType(contentType)
		f.ModuleID = core.ModuleID(moduleID)
		feeds = append(feeds, f)
	}
	return feeds, rows.Err()
}

// SetFeedActive flips a feed's active flag by name.
func (s *Store) SetFeedActive(name string, active bool) error {
	res, err := s.db.Exec(`UPDATE feeds SET active = ? WHERE name = ?`, active, name)
	if err != nil {
		return fmt.Errorf("failed to update feed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("feed %q not found", name)
	}
	return nil
}

// TrustTiers returns the source-name to trust-tier map from the feed
// registry, for the cross-source resolver.
func (s *Store) TrustTiers() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT name, trust_tier FROM feeds`)
	if err != nil {
		return nil, fmt.Errorf("failed to query trust tiers: %w", err)
	}
	defer rows.Close()

	tiers := make(map[string]int)
	for rows.Next() {
		var name string
		var tier int
		if err := rows.Scan(&name, &tier); err != nil {
			return nil, fmt.Errorf("failed to scan trust tier: %w", err)
		}
		tiers[name] = tier
	}
	return tiers, rows.Err()
}

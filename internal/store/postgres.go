package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// --- users ---

const userColumns = `id, email, display_name, password_hash, role, is_email_verified, verification_token, verification_expires_at, created_at, updated_at`

func scanUser(row *sql.Row) (User, error) {
	var user User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.DisplayName,
		&user.PasswordHash,
		&user.Role,
		&user.IsEmailVerified,
		&user.VerificationToken,
		&user.VerificationExpiresAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email)=LOWER($1)`, email)
	return scanUser(row)
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
	return scanUser(row)
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, display_name, password_hash, role, verification_token, verification_expires_at)
		VALUES ($1, LOWER($2), $3, $4, $5, $6, $7)
	`, user.ID, user.Email, user.DisplayName, user.PasswordHash, user.Role, user.VerificationToken, user.VerificationExpiresAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET verification_token=$2, verification_expires_at=$3, updated_at=NOW() WHERE id=$1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("update verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) VerifyUserEmail(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET is_email_verified=TRUE, verification_token='', verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND verification_expires_at > NOW()
	`, token)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("verify email rows: %w", err)
	}
	if affected == 0 {
		return errors.New("invalid or expired verification token")
	}
	return nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at) VALUES ($1, $2, $3)
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM password_resets
		WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("mark reset used: %w", err)
	}
	return nil
}

// --- sessions ---

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.email, u.display_name, u.role
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.Email, &user.DisplayName, &user.Role)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_tokens (jti, expires_at) VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, expiresAt)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM revoked_tokens WHERE jti=$1 AND expires_at > NOW())
	`, jti).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return exists, nil
}

// --- devotions ---

const devotionColumns = `id, to_char(date, 'YYYY-MM-DD'), bible_text, sections, month_id, month, updated_at, updated_by`

func scanDevotion(scan func(...any) error) (Devotion, error) {
	var item Devotion
	var sectionsJSON []byte
	err := scan(
		&item.ID,
		&item.Date,
		&item.BibleText,
		&sectionsJSON,
		&item.MonthID,
		&item.Month,
		&item.UpdatedAt,
		&item.UpdatedBy,
	)
	if err != nil {
		return Devotion{}, err
	}
	if err := json.Unmarshal(sectionsJSON, &item.Sections); err != nil {
		return Devotion{}, fmt.Errorf("decode sections: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) GetDevotionByDate(ctx context.Context, date string) (Devotion, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+devotionColumns+` FROM devotions WHERE date=$1`, date)
	return scanDevotion(row.Scan)
}

func (s *PostgresStore) UpsertDevotion(ctx context.Context, item Devotion) error {
	sectionsJSON, err := json.Marshal(item.Sections)
	if err != nil {
		return fmt.Errorf("encode sections: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO devotions (id, date, bible_text, sections, month_id, month, updated_at, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), $7)
		ON CONFLICT (date) DO UPDATE SET
			bible_text=EXCLUDED.bible_text,
			sections=EXCLUDED.sections,
			month_id=EXCLUDED.month_id,
			month=EXCLUDED.month,
			updated_at=NOW(),
			updated_by=EXCLUDED.updated_by
	`, item.ID, item.Date, item.BibleText, sectionsJSON, item.MonthID, item.Month, item.UpdatedBy)
	if err != nil {
		return fmt.Errorf("upsert devotion: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListDevotionDates(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT to_char(date, 'YYYY-MM-DD') FROM devotions ORDER BY date`)
	if err != nil {
		return nil, fmt.Errorf("list devotion dates: %w", err)
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var date string
		if err := rows.Scan(&date); err != nil {
			return nil, fmt.Errorf("scan devotion date: %w", err)
		}
		dates = append(dates, date)
	}
	return dates, rows.Err()
}

func (s *PostgresStore) ListDevotionsByMonth(ctx context.Context, month string) ([]Devotion, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+devotionColumns+` FROM devotions WHERE month=$1 ORDER BY date`, month)
	if err != nil {
		return nil, fmt.Errorf("list devotions by month: %w", err)
	}
	defer rows.Close()

	var items []Devotion
	for rows.Next() {
		item, err := scanDevotion(rows.Scan)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) ListAllDevotions(ctx context.Context) ([]Devotion, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+devotionColumns+` FROM devotions ORDER BY date`)
	if err != nil {
		return nil, fmt.Errorf("list devotions: %w", err)
	}
	defer rows.Close()

	var items []Devotion
	for rows.Next() {
		item, err := scanDevotion(rows.Scan)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// SearchDevotions is the Postgres fallback used when Meilisearch is down.
func (s *PostgresStore) SearchDevotions(ctx context.Context, query string, limit int) ([]Devotion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+devotionColumns+` FROM devotions
		WHERE bible_text ILIKE '%' || $1 || '%' OR sections::text ILIKE '%' || $1 || '%'
		ORDER BY date DESC
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search devotions: %w", err)
	}
	defer rows.Close()

	var items []Devotion
	for rows.Next() {
		item, err := scanDevotion(rows.Scan)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// --- hymns ---

func (s *PostgresStore) GetHymnByMonth(ctx context.Context, month string) (Hymn, error) {
	var item Hymn
	var lyricsJSON []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, author, lyrics, month_id, month, updated_at, updated_by
		FROM hymns WHERE month=$1
	`, month).Scan(&item.ID, &item.Title, &item.Author, &lyricsJSON, &item.MonthID, &item.Month, &item.UpdatedAt, &item.UpdatedBy)
	if err != nil {
		return Hymn{}, err
	}
	if err := json.Unmarshal(lyricsJSON, &item.Lyrics); err != nil {
		return Hymn{}, fmt.Errorf("decode lyrics: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) UpsertHymn(ctx context.Context, item Hymn) error {
	lyricsJSON, err := json.Marshal(item.Lyrics)
	if err != nil {
		return fmt.Errorf("encode lyrics: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO hymns (id, month, title, author, lyrics, month_id, updated_at, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), $7)
		ON CONFLICT (month) DO UPDATE SET
			title=EXCLUDED.title,
			author=EXCLUDED.author,
			lyrics=EXCLUDED.lyrics,
			month_id=EXCLUDED.month_id,
			updated_at=NOW(),
			updated_by=EXCLUDED.updated_by
	`, item.ID, item.Month, item.Title, item.Author, lyricsJSON, item.MonthID, item.UpdatedBy)
	if err != nil {
		return fmt.Errorf("upsert hymn: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAllHymns(ctx context.Context) ([]Hymn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, author, lyrics, month_id, month, updated_at, updated_by
		FROM hymns ORDER BY month
	`)
	if err != nil {
		return nil, fmt.Errorf("list hymns: %w", err)
	}
	defer rows.Close()
	return scanHymns(rows)
}

// SearchHymns is the Postgres fallback used when Meilisearch is down.
func (s *PostgresStore) SearchHymns(ctx context.Context, query string, limit int) ([]Hymn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, author, lyrics, month_id, month, updated_at, updated_by
		FROM hymns
		WHERE title ILIKE '%' || $1 || '%' OR author ILIKE '%' || $1 || '%' OR lyrics::text ILIKE '%' || $1 || '%'
		ORDER BY month DESC
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search hymns: %w", err)
	}
	defer rows.Close()
	return scanHymns(rows)
}

func scanHymns(rows *sql.Rows) ([]Hymn, error) {
	var items []Hymn
	for rows.Next() {
		var item Hymn
		var lyricsJSON []byte
		if err := rows.Scan(&item.ID, &item.Title, &item.Author, &lyricsJSON, &item.MonthID, &item.Month, &item.UpdatedAt, &item.UpdatedBy); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(lyricsJSON, &item.Lyrics); err != nil {
			return nil, fmt.Errorf("decode lyrics: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// --- journal ---

func (s *PostgresStore) GetJournalEntry(ctx context.Context, userID, date string) (JournalEntry, error) {
	var item JournalEntry
	var entriesJSON []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, to_char(date, 'YYYY-MM-DD'), entries, updated_at
		FROM journal_entries WHERE user_id=$1 AND date=$2
	`, userID, date).Scan(&item.UserID, &item.Date, &entriesJSON, &item.UpdatedAt)
	if err != nil {
		return JournalEntry{}, err
	}
	if err := json.Unmarshal(entriesJSON, &item.Entries); err != nil {
		return JournalEntry{}, fmt.Errorf("decode journal entries: %w", err)
	}
	return item, nil
}

// UpsertJournalEntry is last-write-wins: whichever save lands last owns
// the row, no merging of individual answers.
func (s *PostgresStore) UpsertJournalEntry(ctx context.Context, item JournalEntry) error {
	entriesJSON, err := json.Marshal(item.Entries)
	if err != nil {
		return fmt.Errorf("encode journal entries: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO journal_entries (user_id, date, entries, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, date) DO UPDATE SET entries=EXCLUDED.entries, updated_at=NOW()
	`, item.UserID, item.Date, entriesJSON)
	if err != nil {
		return fmt.Errorf("upsert journal entry: %w", err)
	}
	return nil
}

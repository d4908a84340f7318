package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/org/docvault/pkg/models"
)

// PostgresBackend is a Backend backed by PostgreSQL.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// NewPostgresBackend opens a pgxpool connection and returns a ready backend.
func NewPostgresBackend(ctx context.Context, connStr string) (*PostgresBackend, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &PostgresBackend{pool: pool}, nil
}

func (p *PostgresBackend) Close() {
	p.pool.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// --- Items ---

const itemColumns = `id, owner_id, kind, name, description, tags, parent_id, path,
	size, mime_type, provider, storage_key, quarantine_key, encrypted, scan_status,
	download_url, download_url_expiry, upload_url, upload_url_expiry,
	shared_with, can_read, can_write, share_expiry,
	is_deleted, created_at, updated_at, deleted_at`

func (p *PostgresBackend) CreateItem(ctx context.Context, item *models.VaultItem) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO items (`+itemColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		         $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27)`,
		item.ID, item.OwnerID, item.Kind, item.Name, item.Description, item.Tags,
		item.ParentID, item.Path,
		item.Size, item.MimeType, item.Provider, item.StorageKey, item.QuarantineKey,
		item.Encrypted, item.ScanStatus,
		item.DownloadURL, nullableTime(item.DownloadURLExpiry),
		item.UploadURL, nullableTime(item.UploadURLExpiry),
		item.SharedWith, item.CanRead, item.CanWrite, item.ShareExpiry,
		item.IsDeleted, item.CreatedAt, item.UpdatedAt, item.DeletedAt,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (p *PostgresBackend) GetItem(ctx context.Context, id string) (*models.VaultItem, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id)
	return scanItem(row)
}

func (p *PostgresBackend) GetItemByPath(ctx context.Context, ownerID, path string) (*models.VaultItem, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM items WHERE owner_id = $1 AND path = $2 AND NOT is_deleted`,
		ownerID, path,
	)
	return scanItem(row)
}

func (p *PostgresBackend) GetChildByName(ctx context.Context, ownerID string, parentID *string, name string) (*models.VaultItem, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM items
		 WHERE owner_id = $1 AND parent_id IS NOT DISTINCT FROM $2 AND name = $3 AND NOT is_deleted`,
		ownerID, parentID, name,
	)
	return scanItem(row)
}

func (p *PostgresBackend) ListOwned(ctx context.Context, ownerID string, parentID *string) ([]*models.VaultItem, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+itemColumns+` FROM items
		 WHERE owner_id = $1 AND parent_id IS NOT DISTINCT FROM $2 AND NOT is_deleted
		 ORDER BY name`,
		ownerID, parentID,
	)
	if err != nil {
		return nil, err
	}
	return scanItems(rows)
}

func (p *PostgresBackend) ListSharedWith(ctx context.Context, principal string, parentID *string) ([]*models.VaultItem, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+itemColumns+` FROM items
		 WHERE $1 = ANY(shared_with) AND parent_id IS NOT DISTINCT FROM $2 AND NOT is_deleted
		 ORDER BY name`,
		principal, parentID,
	)
	if err != nil {
		return nil, err
	}
	return scanItems(rows)
}

func (p *PostgresBackend) ListChildren(ctx context.Context, parentID string) ([]*models.VaultItem, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+itemColumns+` FROM items WHERE parent_id = $1 AND NOT is_deleted ORDER BY name`,
		parentID,
	)
	if err != nil {
		return nil, err
	}
	return scanItems(rows)
}

func scanItems(rows pgx.Rows) ([]*models.VaultItem, error) {
	defer rows.Close()
	var items []*models.VaultItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanItem(row pgx.Row) (*models.VaultItem, error) {
	var it models.VaultItem
	var dlExpiry, ulExpiry *time.Time
	err := row.Scan(
		&it.ID, &it.OwnerID, &it.Kind, &it.Name, &it.Description, &it.Tags,
		&it.ParentID, &it.Path,
		&it.Size, &it.MimeType, &it.Provider, &it.StorageKey, &it.QuarantineKey,
		&it.Encrypted, &it.ScanStatus,
		&it.DownloadURL, &dlExpiry, &it.UploadURL, &ulExpiry,
		&it.SharedWith, &it.CanRead, &it.CanWrite, &it.ShareExpiry,
		&it.IsDeleted, &it.CreatedAt, &it.UpdatedAt, &it.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if dlExpiry != nil {
		it.DownloadURLExpiry = *dlExpiry
	}
	if ulExpiry != nil {
		it.UploadURLExpiry = *ulExpiry
	}
	return &it, nil
}

func (p *PostgresBackend) RenameItem(ctx context.Context, id, name, path string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE items SET name = $1, path = $2, updated_at = NOW() WHERE id = $3`,
		name, path, id,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return checkAffected(tag, err)
}

func (p *PostgresBackend) MoveItem(ctx context.Context, id string, parentID *string, path string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE items SET parent_id = $1, path = $2, updated_at = NOW() WHERE id = $3`,
		parentID, path, id,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return checkAffected(tag, err)
}

func (p *PostgresBackend) UpdateItemMeta(ctx context.Context, id string, description *string, tags []string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE items
		 SET description = COALESCE($1, description),
		     tags = COALESCE($2, tags),
		     updated_at = NOW()
		 WHERE id = $3`,
		description, tags, id,
	)
	return checkAffected(tag, err)
}

func (p *PostgresBackend) UpdateItemPath(ctx context.Context, id, path string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE items SET path = $1, updated_at = NOW() WHERE id = $2`,
		path, id,
	)
	return checkAffected(tag, err)
}

func (p *PostgresBackend) SetScanStatus(ctx context.Context, id string, status models.ScanStatus) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE items SET scan_status = $1, updated_at = NOW() WHERE id = $2`,
		status, id,
	)
	return checkAffected(tag, err)
}

func (p *PostgresBackend) PromoteItem(ctx context.Context, id, provider, storageKey string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE items
		 SET provider = $1, storage_key = $2, quarantine_key = NULL,
		     upload_url = '', upload_url_expiry = NULL, updated_at = NOW()
		 WHERE id = $3`,
		provider, storageKey, id,
	)
	return checkAffected(tag, err)
}

func (p *PostgresBackend) CacheDownloadURL(ctx context.Context, id, url string, expiry time.Time) error {
	// Deliberately no updated_at bump: cache refresh is not a mutation.
	tag, err := p.pool.Exec(ctx,
		`UPDATE items SET download_url = $1, download_url_expiry = $2 WHERE id = $3`,
		url, expiry, id,
	)
	return checkAffected(tag, err)
}

func (p *PostgresBackend) CacheUploadURL(ctx context.Context, id, url string, expiry time.Time) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE items SET upload_url = $1, upload_url_expiry = $2 WHERE id = $3`,
		url, expiry, id,
	)
	return checkAffected(tag, err)
}

func (p *PostgresBackend) SetACLs(ctx context.Context, id string, sharedWith, canRead, canWrite []string, shareExpiry *time.Time) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE items
		 SET shared_with = $1, can_read = $2, can_write = $3, share_expiry = $4, updated_at = NOW()
		 WHERE id = $5`,
		sharedWith, canRead, canWrite, shareExpiry, id,
	)
	return checkAffected(tag, err)
}

func (p *PostgresBackend) SoftDeleteItem(ctx context.Context, id string, at time.Time) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE items SET is_deleted = TRUE, deleted_at = $1, updated_at = NOW() WHERE id = $2`,
		at, id,
	)
	return checkAffected(tag, err)
}

func (p *PostgresBackend) RestoreItem(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE items SET is_deleted = FALSE, deleted_at = NULL, updated_at = NOW() WHERE id = $1`,
		id,
	)
	return checkAffected(tag, err)
}

func (p *PostgresBackend) HardDeleteItem(ctx context.Context, id string) error {
	// share_links rows go with the item via ON DELETE CASCADE.
	tag, err := p.pool.Exec(ctx, `DELETE FROM items WHERE id = $1`, id)
	return checkAffected(tag, err)
}

func (p *PostgresBackend) EnqueueReclamation(ctx context.Context, provider, storageKey string) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO reclamation_queue (provider, storage_key, enqueued_at) VALUES ($1, $2, NOW())`,
		provider, storageKey,
	)
	return err
}

func checkAffected(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Share links ---

func (p *PostgresBackend) CreateShareLink(ctx context.Context, link *models.ShareLink) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO share_links (id, item_id, created_by, password_hash, expires_at, max_access_count, access_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		link.ID, link.ItemID, link.CreatedBy, link.PasswordHash,
		link.ExpiresAt, link.MaxAccessCount, link.AccessCount, link.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

func (p *PostgresBackend) GetShareLink(ctx context.Context, id string) (*models.ShareLink, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT id, item_id, created_by, password_hash, expires_at, max_access_count, access_count, created_at
		 FROM share_links WHERE id = $1`,
		id,
	)
	return scanShareLink(row)
}

func (p *PostgresBackend) ListShareLinks(ctx context.Context, itemID string) ([]*models.ShareLink, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, item_id, created_by, password_hash, expires_at, max_access_count, access_count, created_at
		 FROM share_links WHERE item_id = $1 ORDER BY created_at`,
		itemID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var links []*models.ShareLink
	for rows.Next() {
		link, err := scanShareLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

func scanShareLink(row pgx.Row) (*models.ShareLink, error) {
	var l models.ShareLink
	err := row.Scan(&l.ID, &l.ItemID, &l.CreatedBy, &l.PasswordHash,
		&l.ExpiresAt, &l.MaxAccessCount, &l.AccessCount, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &l, nil
}

func (p *PostgresBackend) ConsumeShareLink(ctx context.Context, id string) (bool, error) {
	tag, err := p.pool.Exec(ctx,
		`UPDATE share_links
		 SET access_count = access_count + 1
		 WHERE id = $1 AND (max_access_count IS NULL OR access_count < max_access_count)`,
		id,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	// Distinguish exhausted from missing.
	var exists bool
	if err := p.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM share_links WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, ErrNotFound
	}
	return false, nil
}

// --- Principals ---

func (p *PostgresBackend) CreatePrincipal(ctx context.Context, pr *models.Principal) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO principals (id, display_name, email, created_at) VALUES ($1, $2, $3, $4)`,
		pr.ID, pr.DisplayName, pr.Email, pr.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

func (p *PostgresBackend) GetPrincipal(ctx context.Context, id string) (*models.Principal, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT id, display_name, email, created_at FROM principals WHERE id = $1`, id,
	)
	var pr models.Principal
	if err := row.Scan(&pr.ID, &pr.DisplayName, &pr.Email, &pr.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &pr, nil
}

func (p *PostgresBackend) LookupPrincipals(ctx context.Context, ids []string) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT id FROM principals WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var found []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		found = append(found, id)
	}
	return found, rows.Err()
}

// --- API tokens ---

func (p *PostgresBackend) WriteAPIToken(ctx context.Context, tokenHash, principalID string, createdAt time.Time) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO api_tokens (token_hash, principal_id, created_at) VALUES ($1, $2, $3)`,
		tokenHash, principalID, createdAt,
	)
	return err
}

func (p *PostgresBackend) GetAPITokenPrincipal(ctx context.Context, tokenHash string) (string, error) {
	var principalID string
	err := p.pool.QueryRow(ctx,
		`SELECT principal_id FROM api_tokens WHERE token_hash = $1`, tokenHash,
	).Scan(&principalID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return principalID, nil
}

// --- Audit ---

func (p *PostgresBackend) WriteAuditEntry(ctx context.Context, entry *models.AuditEntry) error {
	metaJSON, err := json.Marshal(entry.Metadata)
	if err != nil {
		metaJSON = []byte("{}")
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO audit_log (actor_id, action, item_id, metadata, suspicious, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ActorID, entry.Action, entry.ItemID, metaJSON, entry.Suspicious, entry.Timestamp,
	)
	return err
}

func (p *PostgresBackend) QueryAuditLog(ctx context.Context, filter AuditFilter) ([]*models.AuditEntry, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT id, actor_id, action, item_id, metadata, suspicious, timestamp FROM audit_log WHERE 1=1`)
	args := []any{}
	n := 1
	if filter.ActorID != "" {
		fmt.Fprintf(&query, ` AND actor_id = $%d`, n)
		args = append(args, filter.ActorID)
		n++
	}
	if filter.Action != "" {
		fmt.Fprintf(&query, ` AND action = $%d`, n)
		args = append(args, filter.Action)
		n++
	}
	if filter.Since != nil {
		fmt.Fprintf(&query, ` AND timestamp >= $%d`, n)
		args = append(args, filter.Since)
		n++
	}
	if filter.Until != nil {
		fmt.Fprintf(&query, ` AND timestamp < $%d`, n)
		args = append(args, filter.Until)
		n++
	}
	query.WriteString(` ORDER BY timestamp DESC`)
	if filter.Limit > 0 {
		fmt.Fprintf(&query, ` LIMIT $%d`, n)
		args = append(args, filter.Limit)
		n++
	}
	if filter.Offset > 0 {
		fmt.Fprintf(&query, ` OFFSET $%d`, n)
		args = append(args, filter.Offset)
	}

	rows, err := p.pool.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var metaJSON []byte
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.ItemID, &metaJSON, &e.Suspicious, &e.Timestamp); err != nil {
			return nil, err
		}
		json.Unmarshal(metaJSON, &e.Metadata) //nolint:errcheck
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// --- Metrics and quota helpers ---

func (p *PostgresBackend) CountItems(ctx context.Context) (int64, error) {
	var count int64
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM items WHERE NOT is_deleted`).Scan(&count)
	return count, err
}

func (p *PostgresBackend) CountShareLinks(ctx context.Context) (int64, error) {
	var count int64
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM share_links`).Scan(&count)
	return count, err
}

func (p *PostgresBackend) SumFileSizes(ctx context.Context, ownerID string) (int64, error) {
	var total int64
	err := p.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(size), 0) FROM items WHERE owner_id = $1 AND kind = 'file' AND NOT is_deleted`,
		ownerID,
	).Scan(&total)
	return total, err
}

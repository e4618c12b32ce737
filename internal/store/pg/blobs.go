package pg

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"strings"

	"meritlog.org/internal/tracker"
)

type blobs struct {
	db      *sql.DB
	bucket  string
	baseURL string
}

func (b blobs) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	if strings.TrimSpace(path) == "" {
		return tracker.ErrInvalidInput
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := b.db.ExecContext(ctx, `
		insert into blobs(bucket, path, data, content_type, size, updated_at)
		values ($1, $2, $3, $4, $5, now())
		on conflict (bucket, path) do update set
			data = excluded.data,
			content_type = excluded.content_type,
			size = excluded.size,
			updated_at = now()
	`, b.bucket, path, data, contentType, int64(len(data)))
	return mapErr(err)
}

func (b blobs) List(ctx context.Context, prefix string) ([]tracker.BlobObject, error) {
	rows, err := b.db.QueryContext(ctx, `
		select path, size, updated_at
		from blobs
		where bucket = $1 and starts_with(path, $2)
		order by path asc
	`, b.bucket, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []tracker.BlobObject
	for rows.Next() {
		var o tracker.BlobObject
		if err := rows.Scan(&o.Path, &o.Size, &o.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

func (b blobs) Remove(ctx context.Context, path string) error {
	res, err := b.db.ExecContext(ctx, `delete from blobs where bucket = $1 and path = $2`, b.bucket, path)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return tracker.ErrNotFound
	}
	return nil
}

func (b blobs) Download(ctx context.Context, path string) ([]byte, string, error) {
	var (
		data []byte
		ct   string
	)
	err := b.db.QueryRowContext(ctx, `select data, content_type from blobs where bucket = $1 and path = $2`, b.bucket, path).Scan(&data, &ct)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", tracker.ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}
	return data, ct, nil
}

// PublicURL escapes each path segment and keeps the separators.
func (b blobs) PublicURL(path string) string {
	segs := strings.Split(path, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return b.baseURL + "/storage/" + b.bucket + "/" + strings.Join(segs, "/")
}

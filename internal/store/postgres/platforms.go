package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"order-router/internal/model"
)

const platformColumns = `p.id, p.name, p.kind, p.app_key, p.app_secret, p.signature_header, p.capabilities`

func scanPlatform(row rowScanner, p *model.Platform, extra ...any) error {
	var caps []byte
	dest := append([]any{&p.ID, &p.Name, &p.Kind, &p.AppKey, &p.AppSecret, &p.SignatureHeader, &caps}, extra...)
	if err := row.Scan(dest...); err != nil {
		return err
	}
	p.Capabilities = map[model.Capability]string{}
	if len(caps) > 0 {
		if err := json.Unmarshal(caps, &p.Capabilities); err != nil {
			return fmt.Errorf("decoding capabilities of platform %s: %w", p.ID, err)
		}
	}
	return nil
}

func (s *Store) GetPlatform(ctx context.Context, id string) (*model.Platform, error) {
	query := `SELECT ` + platformColumns + ` FROM platforms p WHERE p.id = $1`

	var p model.Platform
	err := scanPlatform(s.db.QueryRowContext(ctx, query, id), &p)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("platform %s: %w", id, model.ErrPlatformNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading platform %s: %w", id, err)
	}
	return &p, nil
}

// getConnection loads a shop or channel row joined with its platform.
func (s *Store) getConnection(ctx context.Context, table, id string) (*model.Connection, error) {
	query := `SELECT ` + platformColumns + `,
			c.id, c.owner_id, c.name, c.domain, c.access_token, c.refresh_token, c.token_expires_at, c.platform_id
		FROM ` + table + ` c
		JOIN platforms p ON p.id = c.platform_id
		WHERE c.id = $1`

	var (
		conn    model.Connection
		p       model.Platform
		expires sql.NullTime
	)
	err := scanPlatform(s.db.QueryRowContext(ctx, query, id), &p,
		&conn.ID, &conn.OwnerID, &conn.Name, &conn.Domain,
		&conn.AccessToken, &conn.RefreshToken, &expires, &conn.PlatformID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %s: %w", table, id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s %s: %w", table, id, err)
	}
	if expires.Valid {
		t := expires.Time
		conn.TokenExpiresAt = &t
	}
	conn.Platform = &p
	return &conn, nil
}

func (s *Store) GetShop(ctx context.Context, id string) (*model.Shop, error) {
	conn, err := s.getConnection(ctx, "shops", id)
	if err != nil {
		return nil, err
	}
	return &model.Shop{Connection: *conn}, nil
}

func (s *Store) GetChannel(ctx context.Context, id string) (*model.Channel, error) {
	conn, err := s.getConnection(ctx, "channels", id)
	if err != nil {
		return nil, err
	}
	return &model.Channel{Connection: *conn}, nil
}

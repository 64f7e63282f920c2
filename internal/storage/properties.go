package storage

import (
	"context"
	"fmt"
)

const propertySchema = `
CREATE TABLE IF NOT EXISTS device_properties (
	device_name TEXT NOT NULL,
	name        TEXT NOT NULL,
	value       TEXT[] NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (device_name, name)
)`

// EnsureSchema creates the property table if it does not exist.
func (p *PostgresClient) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, propertySchema); err != nil {
		return fmt.Errorf("failed to create device_properties: %w", err)
	}
	return nil
}

// PutDeviceProperty upserts every property of device in one transaction.
func (p *PostgresClient) PutDeviceProperty(ctx context.Context, device string, props map[string][]string) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for name, values := range props {
		if values == nil {
			values = []string{}
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO device_properties (device_name, name, value)
			VALUES ($1, $2, $3)
			ON CONFLICT (device_name, name)
			DO UPDATE SET
				value = EXCLUDED.value,
				updated_at = NOW()
		`, device, name, values)
		if err != nil {
			return fmt.Errorf("failed to upsert property %s/%s: %w", device, name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (p *PostgresClient) GetDeviceProperty(ctx context.Context, device string) (map[string][]string, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT name, value
		FROM device_properties
		WHERE device_name = $1
	`, device)
	if err != nil {
		return nil, fmt.Errorf("failed to query properties: %w", err)
	}
	defer rows.Close()

	props := make(map[string][]string)
	for rows.Next() {
		var name string
		var values []string
		if err := rows.Scan(&name, &values); err != nil {
			return nil, fmt.Errorf("failed to scan property: %w", err)
		}
		props[name] = values
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read properties: %w", err)
	}
	return props, nil
}

func (p *PostgresClient) DeleteDevice(ctx context.Context, device string) error {
	if _, err := p.pool.Exec(ctx, `
		DELETE FROM device_properties
		WHERE device_name = $1
	`, device); err != nil {
		return fmt.Errorf("failed to delete device %s: %w", device, err)
	}
	return nil
}

// Devices lists device names that have stored properties.
func (p *PostgresClient) Devices(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT DISTINCT device_name
		FROM device_properties
		ORDER BY device_name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

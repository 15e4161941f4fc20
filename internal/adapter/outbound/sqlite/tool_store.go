package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mcpbridge/mcpbridge/internal/domain/tool"
)

// ToolSettingStore implements tool.SettingStore on top of the shared DB.
type ToolSettingStore struct {
	db *DB
}

// Compile-time interface check.
var _ tool.SettingStore = (*ToolSettingStore)(nil)

// NewToolSettingStore creates a tool setting store using the given database.
func NewToolSettingStore(db *DB) *ToolSettingStore {
	return &ToolSettingStore{db: db}
}

const settingColumns = `server_name, tool_name, enabled, custom_name, custom_description, updated_at`

// List returns all stored settings.
func (s *ToolSettingStore) List(ctx context.Context) ([]tool.Setting, error) {
	rows, err := s.db.db.QueryContext(ctx,
		`SELECT `+settingColumns+` FROM mcp_tool_settings ORDER BY server_name, tool_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var settings []tool.Setting
	for rows.Next() {
		st, err := scanSetting(rows.Scan)
		if err != nil {
			return nil, err
		}
		settings = append(settings, *st)
	}
	return settings, rows.Err()
}

// ListForServer returns the settings for one provider keyed by tool name.
func (s *ToolSettingStore) ListForServer(ctx context.Context, serverName string) (map[string]tool.Setting, error) {
	rows, err := s.db.db.QueryContext(ctx,
		`SELECT `+settingColumns+` FROM mcp_tool_settings WHERE server_name = ?`, serverName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make(map[string]tool.Setting)
	for rows.Next() {
		st, err := scanSetting(rows.Scan)
		if err != nil {
			return nil, err
		}
		settings[st.ToolName] = *st
	}
	return settings, rows.Err()
}

// Get returns the setting for one tool.
func (s *ToolSettingStore) Get(ctx context.Context, serverName, toolName string) (*tool.Setting, error) {
	row := s.db.db.QueryRowContext(ctx,
		`SELECT `+settingColumns+` FROM mcp_tool_settings WHERE server_name = ? AND tool_name = ?`,
		serverName, toolName)

	st, err := scanSetting(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tool.ErrSettingNotFound
	}
	return st, err
}

// SetEnabled upserts the enabled flag, preserving custom metadata.
func (s *ToolSettingStore) SetEnabled(ctx context.Context, serverName, toolName string, enabled bool) error {
	_, err := s.db.db.ExecContext(ctx, `
		INSERT INTO mcp_tool_settings (server_name, tool_name, enabled, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(server_name, tool_name) DO UPDATE SET
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`, serverName, toolName, boolToInt(enabled), time.Now().UTC().Format(time.RFC3339))
	return err
}

// SetMetadata upserts custom name/description, preserving the enabled flag.
func (s *ToolSettingStore) SetMetadata(ctx context.Context, serverName, toolName, customName, customDescription string) error {
	_, err := s.db.db.ExecContext(ctx, `
		INSERT INTO mcp_tool_settings (server_name, tool_name, enabled, custom_name, custom_description, updated_at)
		VALUES (?, ?, 1, ?, ?, ?)
		ON CONFLICT(server_name, tool_name) DO UPDATE SET
			custom_name = excluded.custom_name,
			custom_description = excluded.custom_description,
			updated_at = excluded.updated_at
	`, serverName, toolName, nullIfEmpty(customName), nullIfEmpty(customDescription),
		time.Now().UTC().Format(time.RFC3339))
	return err
}

// Reset removes the override for one tool.
func (s *ToolSettingStore) Reset(ctx context.Context, serverName, toolName string) error {
	_, err := s.db.db.ExecContext(ctx,
		`DELETE FROM mcp_tool_settings WHERE server_name = ? AND tool_name = ?`,
		serverName, toolName)
	return err
}

// ResetAll removes every stored override.
func (s *ToolSettingStore) ResetAll(ctx context.Context) error {
	_, err := s.db.db.ExecContext(ctx, `DELETE FROM mcp_tool_settings`)
	return err
}

// DeleteForServer removes all overrides for one provider.
func (s *ToolSettingStore) DeleteForServer(ctx context.Context, serverName string) error {
	_, err := s.db.db.ExecContext(ctx,
		`DELETE FROM mcp_tool_settings WHERE server_name = ?`, serverName)
	return err
}

func scanSetting(scan func(dest ...any) error) (*tool.Setting, error) {
	var (
		st      tool.Setting
		enabled int
		name    sql.NullString
		desc    sql.NullString
		updated string
	)
	if err := scan(&st.ServerName, &st.ToolName, &enabled, &name, &desc, &updated); err != nil {
		return nil, err
	}
	st.Enabled = enabled != 0
	st.CustomName = name.String
	st.CustomDescription = desc.String
	st.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return &st, nil
}

package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/tessellate/canvasd/errors"
)

// UpsertPresence writes the (user, canvas) presence row, refreshing the
// heartbeat. Written by both the realtime path and the HTTP sync sibling,
// serialized by the upsert.
func (s *Store) UpsertPresence(p *Presence) error {
	selected, err := json.Marshal(p.SelectedObjectIDs)
	if err != nil {
		return errors.Wrap(err, "marshal selected object ids")
	}
	if p.SelectedObjectIDs == nil {
		selected = []byte("[]")
	}
	heartbeat := p.LastHeartbeat
	if heartbeat.IsZero() {
		heartbeat = time.Now()
	}

	_, err = s.db.Exec(`
		INSERT INTO presence (
			user_id, canvas_id, cursor_x, cursor_y,
			viewport_x, viewport_y, viewport_zoom,
			selected_object_ids, color, connection_id, last_heartbeat, is_active
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, canvas_id) DO UPDATE SET
			cursor_x = excluded.cursor_x,
			cursor_y = excluded.cursor_y,
			viewport_x = COALESCE(excluded.viewport_x, presence.viewport_x),
			viewport_y = COALESCE(excluded.viewport_y, presence.viewport_y),
			viewport_zoom = COALESCE(excluded.viewport_zoom, presence.viewport_zoom),
			selected_object_ids = excluded.selected_object_ids,
			color = excluded.color,
			connection_id = excluded.connection_id,
			last_heartbeat = excluded.last_heartbeat,
			is_active = excluded.is_active
	`, p.UserID, p.CanvasID, p.CursorX, p.CursorY,
		nullFloat(p.ViewportX), nullFloat(p.ViewportY), nullFloat(p.ViewportZoom),
		string(selected), p.Color, p.ConnectionID, fmtTime(heartbeat), p.IsActive)
	if err != nil {
		return errors.Wrap(err, "upsert presence")
	}
	return nil
}

// TouchPresence is the hot cursor path's upsert: position, viewport and
// heartbeat. It recreates the row if the TTL sweep removed it, so a
// still-moving user reappears in the active roster without reconnecting.
// The selection is preserved on update and empty on a fresh insert.
func (s *Store) TouchPresence(p *Presence) error {
	_, err := s.db.Exec(`
		INSERT INTO presence (
			user_id, canvas_id, cursor_x, cursor_y,
			viewport_x, viewport_y, viewport_zoom,
			color, connection_id, last_heartbeat, is_active
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(user_id, canvas_id) DO UPDATE SET
			cursor_x = excluded.cursor_x,
			cursor_y = excluded.cursor_y,
			viewport_x = COALESCE(excluded.viewport_x, presence.viewport_x),
			viewport_y = COALESCE(excluded.viewport_y, presence.viewport_y),
			viewport_zoom = COALESCE(excluded.viewport_zoom, presence.viewport_zoom),
			color = excluded.color,
			connection_id = excluded.connection_id,
			last_heartbeat = excluded.last_heartbeat,
			is_active = 1
	`, p.UserID, p.CanvasID, p.CursorX, p.CursorY,
		nullFloat(p.ViewportX), nullFloat(p.ViewportY), nullFloat(p.ViewportZoom),
		p.Color, p.ConnectionID, fmtTime(time.Now()))
	if err != nil {
		return errors.Wrap(err, "touch presence")
	}
	return nil
}

// RefreshHeartbeat bumps only the heartbeat of the (user, canvas) row.
func (s *Store) RefreshHeartbeat(userID, canvasID string) error {
	_, err := s.db.Exec(`
		UPDATE presence SET last_heartbeat = ? WHERE user_id = ? AND canvas_id = ?
	`, fmtTime(time.Now()), userID, canvasID)
	if err != nil {
		return errors.Wrap(err, "refresh heartbeat")
	}
	return nil
}

// UpdatePresenceSelection writes the selection fields without disturbing
// the cursor position.
func (s *Store) UpdatePresenceSelection(userID, canvasID string, selectedObjectIDs []string, isActive bool) error {
	if selectedObjectIDs == nil {
		selectedObjectIDs = []string{}
	}
	selected, err := json.Marshal(selectedObjectIDs)
	if err != nil {
		return errors.Wrap(err, "marshal selected object ids")
	}
	_, err = s.db.Exec(`
		UPDATE presence SET selected_object_ids = ?, is_active = ?, last_heartbeat = ?
		WHERE user_id = ? AND canvas_id = ?
	`, string(selected), isActive, fmtTime(time.Now()), userID, canvasID)
	if err != nil {
		return errors.Wrap(err, "update presence selection")
	}
	return nil
}

// RemovePresenceByConnection deletes the presence row bound to a connection.
func (s *Store) RemovePresenceByConnection(connectionID string) error {
	_, err := s.db.Exec(`DELETE FROM presence WHERE connection_id = ?`, connectionID)
	if err != nil {
		return errors.Wrap(err, "remove presence by connection")
	}
	return nil
}

// GetActivePresence returns the canvas's presence rows with a heartbeat at
// or after since, joined with user display fields.
func (s *Store) GetActivePresence(canvasID string, since time.Time) ([]*ActiveUser, error) {
	rows, err := s.db.Query(`
		SELECT p.user_id, u.username, u.display_name, u.email, p.color,
		       p.cursor_x, p.cursor_y, p.selected_object_ids
		FROM presence p
		JOIN users u ON u.id = p.user_id
		WHERE p.canvas_id = ? AND p.last_heartbeat >= ? AND p.is_active = 1
		ORDER BY p.user_id
	`, canvasID, fmtTime(since))
	if err != nil {
		return nil, errors.Wrap(err, "get active presence")
	}
	defer rows.Close()

	var users []*ActiveUser
	for rows.Next() {
		var au ActiveUser
		var selected string
		if err := rows.Scan(&au.UserID, &au.Username, &au.DisplayName, &au.Email,
			&au.Color, &au.CursorX, &au.CursorY, &selected); err != nil {
			return nil, errors.Wrap(err, "scan active presence")
		}
		if err := json.Unmarshal([]byte(selected), &au.SelectedObjectIDs); err != nil {
			au.SelectedObjectIDs = nil
		}
		if au.SelectedObjectIDs == nil {
			au.SelectedObjectIDs = []string{}
		}
		users = append(users, &au)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate active presence")
	}
	return users, nil
}

// GetPresence returns the (user, canvas) presence row.
func (s *Store) GetPresence(userID, canvasID string) (*Presence, error) {
	var p Presence
	var viewportX, viewportY, viewportZoom sql.NullFloat64
	var selected, heartbeat string
	err := s.db.QueryRow(`
		SELECT user_id, canvas_id, cursor_x, cursor_y,
		       viewport_x, viewport_y, viewport_zoom,
		       selected_object_ids, color, connection_id, last_heartbeat, is_active
		FROM presence WHERE user_id = ? AND canvas_id = ?
	`, userID, canvasID).Scan(&p.UserID, &p.CanvasID, &p.CursorX, &p.CursorY,
		&viewportX, &viewportY, &viewportZoom,
		&selected, &p.Color, &p.ConnectionID, &heartbeat, &p.IsActive)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("presence %s/%s", userID, canvasID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get presence")
	}
	if viewportX.Valid {
		p.ViewportX = &viewportX.Float64
	}
	if viewportY.Valid {
		p.ViewportY = &viewportY.Float64
	}
	if viewportZoom.Valid {
		p.ViewportZoom = &viewportZoom.Float64
	}
	if err := json.Unmarshal([]byte(selected), &p.SelectedObjectIDs); err != nil {
		p.SelectedObjectIDs = nil
	}
	p.LastHeartbeat = parseTime(heartbeat)
	return &p, nil
}

// CleanupStalePresence deletes rows whose heartbeat predates olderThan and
// returns the canvas ids that lost rows so callers can refresh their
// active-user broadcasts.
func (s *Store) CleanupStalePresence(olderThan time.Time) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT DISTINCT canvas_id FROM presence WHERE last_heartbeat < ?
	`, fmtTime(olderThan))
	if err != nil {
		return nil, errors.Wrap(err, "find stale presence")
	}
	var canvasIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scan stale canvas id")
		}
		canvasIDs = append(canvasIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate stale presence")
	}

	if len(canvasIDs) == 0 {
		return nil, nil
	}

	if _, err := s.db.Exec(`DELETE FROM presence WHERE last_heartbeat < ?`, fmtTime(olderThan)); err != nil {
		return nil, errors.Wrap(err, "delete stale presence")
	}
	return canvasIDs, nil
}

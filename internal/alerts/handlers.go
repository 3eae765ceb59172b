package alerts

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/templhub/backend/internal/db"
)

// ListNotifications returns the caller's in-app notifications, newest
// first. ?unread=true limits to unread ones.
func ListNotifications(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	q := `SELECT id, type, title, COALESCE(body, ''), COALESCE(reference::text, ''), created_at, read_at
	      FROM notifications WHERE user_id=$1`
	if c.QueryParam("unread") == "true" {
		q += ` AND read_at IS NULL`
	}
	q += ` ORDER BY created_at DESC LIMIT 100`

	rows, err := db.Conn.Query(context.Background(), q, userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load notifications"})
	}
	defer rows.Close()

	type item struct {
		ID        string     `json:"id"`
		Type      string     `json:"type"`
		Title     string     `json:"title"`
		Body      string     `json:"body"`
		Reference string     `json:"reference,omitempty"`
		CreatedAt time.Time  `json:"created_at"`
		ReadAt    *time.Time `json:"read_at,omitempty"`
	}
	out := []item{}
	for rows.Next() {
		var it item
		if err := rows.Scan(&it.ID, &it.Type, &it.Title, &it.Body, &it.Reference, &it.CreatedAt, &it.ReadAt); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load notifications"})
		}
		out = append(out, it)
	}

	return c.JSON(http.StatusOK, echo.Map{"notifications": out})
}

// MarkNotificationRead marks one of the caller's notifications as read.
func MarkNotificationRead(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id := c.Param("id")

	tag, err := db.Conn.Exec(context.Background(),
		`UPDATE notifications SET read_at=NOW() WHERE id=$1 AND user_id=$2 AND read_at IS NULL`,
		id, userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update notification"})
	}
	if tag.RowsAffected() == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "notification not found"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "notification marked read"})
}

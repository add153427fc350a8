package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
)

// Pagination carries cursor paging parameters from the query string.
type Pagination struct {
	PageToken string `form:"page_token" json:"page_token"`
	PageSize  int    `form:"page_size" json:"page_size"`
}

// PageInfo describes the paging state of a list response.
type PageInfo struct {
	NextPageToken string `json:"next_page_token,omitempty"`
	HasMore       bool   `json:"has_more"`
}

// Cursor is the opaque token payload. Ordering is (created_at desc, id desc),
// so both fields are required to resume a page.
type Cursor struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
}

var ErrInvalidCursor = errors.New("invalid_cursor")

// EncodeCursor serializes a cursor into an opaque URL-safe token.
func EncodeCursor(c Cursor) (string, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// DecodeCursor parses a token produced by EncodeCursor.
func DecodeCursor(token string) (Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Cursor{}, ErrInvalidCursor
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, ErrInvalidCursor
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return Cursor{}, ErrInvalidCursor
	}
	if c.ID == "" || c.CreatedAt == "" {
		return Cursor{}, ErrInvalidCursor
	}
	return c, nil
}

// BuildCursorPageInfo derives PageInfo from a page fetched with pageSize+1
// items. The cursor function renders the token for the last visible item.
func BuildCursorPageInfo[T any](items []*T, pageSize int32, cursorFn func(*T) string) *PageInfo {
	if pageSize <= 0 {
		return nil
	}
	info := &PageInfo{}
	if len(items) > int(pageSize) {
		info.HasMore = true
		last := items[pageSize-1]
		if last != nil {
			info.NextPageToken = cursorFn(last)
		}
	}
	return info
}

package yclients

import (
	"context"
	"fmt"
	"net/http"

	"aquabot/internal/record"
	"aquabot/pkg/phone"
)

type ClientInfo struct {
	ID    record.ID   `json:"id"`
	Name  record.Text `json:"name"`
	Phone record.Text `json:"phone"`
}

type searchFilter struct {
	Type  string         `json:"type"`
	State map[string]any `json:"state"`
}

type searchRequest struct {
	Page      int            `json:"page"`
	PageSize  int            `json:"page_size"`
	Operation string         `json:"operation"`
	Fields    []string       `json:"fields"`
	Filters   []searchFilter `json:"filters"`
}

// FindClientByPhone returns the first client matching phone, or nil.
func (c *Client) FindClientByPhone(ctx context.Context, companyID int64, p string) (*ClientInfo, error) {
	digits := phone.Digits(p)
	if digits == "" {
		return nil, nil
	}
	req := searchRequest{
		Page:      1,
		PageSize:  10,
		Operation: "AND",
		Fields:    []string{"id", "name", "phone"},
		Filters:   []searchFilter{{Type: "quick_search", State: map[string]any{"value": digits}}},
	}
	var found []ClientInfo
	path := fmt.Sprintf("/company/%d/clients/search", companyID)
	if err := c.sendJSON(ctx, "find_client", http.MethodPost, path, req, &found); err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, nil
	}
	return &found[0], nil
}

package sheets

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"google.golang.org/api/option"
	sheetsv4 "google.golang.org/api/sheets/v4"
)

// Client is a store.Store over one spreadsheet. Writes that must be
// check-then-append are serialized per key inside this process, so run a
// single writer per spreadsheet.
//
// Tabs are shared by every event and rows are addressed by position, so a
// row number is only valid while the tab lock it was read under is held.
// Locks are taken event first, then at most one tab at a time.
type Client struct {
	srv           *sheetsv4.Service
	spreadsheetID string

	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	sheetIDs map[string]int64
}

// New builds a client from a service-account credentials file path or the
// credentials JSON itself.
func New(ctx context.Context, serviceAccountJSON, spreadsheetID string) (*Client, error) {
	var cred option.ClientOption
	if strings.HasPrefix(strings.TrimSpace(serviceAccountJSON), "{") {
		cred = option.WithCredentialsJSON([]byte(serviceAccountJSON))
	} else {
		if _, err := os.Stat(serviceAccountJSON); err != nil {
			return nil, fmt.Errorf("service account json: %w", err)
		}
		cred = option.WithCredentialsFile(serviceAccountJSON)
	}
	srv, err := sheetsv4.NewService(ctx, cred, option.WithScopes(sheetsv4.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("failed to create Sheets service: %w", err)
	}
	return newClient(srv, spreadsheetID), nil
}

func newClient(srv *sheetsv4.Service, spreadsheetID string) *Client {
	return &Client{
		srv:           srv,
		spreadsheetID: spreadsheetID,
		locks:         map[string]*sync.Mutex{},
		sheetIDs:      map[string]int64{},
	}
}

func (c *Client) SpreadsheetID() string { return c.spreadsheetID }

func (c *Client) Close() error { return nil }

// lock returns the mutex guarding key, creating it on first use.
func (c *Client) lock(key string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.locks[key]
	if !ok {
		m = &sync.Mutex{}
		c.locks[key] = m
	}
	return m
}

// tab returns the lock that pins row positions in sheet.
func (c *Client) tab(sheet string) *sync.Mutex {
	return c.lock("tab:" + sheet)
}

// sheetID resolves a tab title to the numeric id row deletion needs.
func (c *Client) sheetID(ctx context.Context, title string) (int64, error) {
	c.mu.Lock()
	id, ok := c.sheetIDs[title]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	ss, err := c.srv.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			c.sheetIDs[sh.Properties.Title] = sh.Properties.SheetId
		}
	}
	id, ok = c.sheetIDs[title]
	if !ok {
		return 0, fmt.Errorf("sheet %q not found", title)
	}
	return id, nil
}

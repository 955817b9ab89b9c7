package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/xbora/mio/internal/types"
)

// DefaultSearchLimit bounds vector searches.
const DefaultSearchLimit = 10

// Client calls the vault REST API directly. Every method takes the vault
// key of the user whose vault is addressed.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// APIError is a non-2xx answer from the vault API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("vault API error: %d - %s", e.Status, e.Body)
}

// Skill is one entry of a vault's skill catalog.
type Skill struct {
	TableName string `json:"tableName"`
	Type      string `json:"type"`
}

// SkillType maps the vault's type to a share skill type. Anything that is
// not a vector skill is tabular.
func (s Skill) SkillType() types.SkillType {
	if s.Type == "vector" {
		return types.SkillVector
	}
	return types.SkillTabular
}

// Skills lists the skills in the vault.
func (c *Client) Skills(ctx context.Context, key string) ([]Skill, error) {
	var out struct {
		Skills []Skill `json:"skills"`
	}
	if err := c.do(ctx, http.MethodGet, "/skills", key, nil, &out); err != nil {
		return nil, err
	}
	return out.Skills, nil
}

// VectorEntry is one text entry of a vector skill. Fields holds the
// metadata columns the vault returned alongside the text.
type VectorEntry struct {
	Text      string
	CreatedAt time.Time
	Fields    map[string]any
}

func (e *VectorEntry) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	e.Text, _ = raw["text"].(string)
	e.CreatedAt = parseTimestamp(raw["created_at"])
	e.Fields = raw
	return nil
}

type searchRequest struct {
	TableName string `json:"tableName"`
	Query     string `json:"query"`
	Limit     int    `json:"limit"`
}

// SearchVectors runs a similarity search and returns at most limit entries.
func (c *Client) SearchVectors(ctx context.Context, key, table, query string, limit int) ([]VectorEntry, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	var out struct {
		Success bool          `json:"success"`
		Results []VectorEntry `json:"results"`
		Error   string        `json:"error"`
	}
	err := c.do(ctx, http.MethodPost, "/vectors/search", key, searchRequest{TableName: table, Query: query, Limit: limit}, &out)
	if err != nil {
		return nil, err
	}
	if !out.Success {
		// An unsuccessful search is an empty skill as far as sync is concerned.
		return nil, nil
	}
	return out.Results, nil
}

type addVectorRequest struct {
	TableName string         `json:"tableName"`
	Text      string         `json:"text"`
	Metadata  map[string]any `json:"metadata"`
}

// AddVector inserts one text entry.
func (c *Client) AddVector(ctx context.Context, key, table, text string, metadata map[string]any) error {
	var out writeResult
	if err := c.do(ctx, http.MethodPost, "/vectors/add", key, addVectorRequest{TableName: table, Text: text, Metadata: metadata}, &out); err != nil {
		return err
	}
	return out.err("Add failed")
}

type updateRequest struct {
	TableName string         `json:"tableName"`
	Where     map[string]any `json:"where"`
	Data      map[string]any `json:"data"`
}

// UpdateRecord overwrites the fields in data of the row with the given id.
func (c *Client) UpdateRecord(ctx context.Context, key, table string, id any, data map[string]any) error {
	var out writeResult
	req := updateRequest{TableName: table, Where: map[string]any{"id": id}, Data: data}
	if err := c.do(ctx, http.MethodPost, "/tables/update", key, req, &out); err != nil {
		return err
	}
	return out.err("Update failed")
}

// TableSpec describes the table created by the first upsert into it.
type TableSpec struct {
	Description   string   `json:"description"`
	Examples      []string `json:"examples"`
	Relationships []string `json:"relationships"`
	Notes         string   `json:"notes"`
}

// Upsert inserts one row. Columns and Skill are set only when the row
// creates the table.
type Upsert struct {
	TableName string         `json:"tableName"`
	Columns   []Column       `json:"columns,omitempty"`
	Data      map[string]any `json:"data"`
	Skill     *TableSpec     `json:"skill,omitempty"`
}

func (c *Client) UpsertRecord(ctx context.Context, key string, u Upsert) error {
	var out writeResult
	if err := c.do(ctx, http.MethodPost, "/tables/upsert", key, u, &out); err != nil {
		return err
	}
	fallback := "Upsert failed"
	if u.Skill != nil {
		fallback = "Create failed"
	}
	return out.err(fallback)
}

type writeResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (w writeResult) err(fallback string) error {
	if w.Success {
		return nil
	}
	if w.Error != "" {
		return errors.New(w.Error)
	}
	return errors.New(fallback)
}

func (c *Client) do(ctx context.Context, method, path, key string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &types.UpstreamError{Service: "vault", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &types.UpstreamError{Service: "vault", Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &types.UpstreamError{Service: "vault", Err: &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}}
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &types.UpstreamError{Service: "vault", Err: fmt.Errorf("parse response: %w", err)}
	}
	return nil
}

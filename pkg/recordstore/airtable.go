package recordstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/synaptica-ai/provider-hub/pkg/common/logger"
)

const airtablePageSize = 100

// AirtableClient talks to the Airtable REST API for a single base.
type AirtableClient struct {
	baseURL string
	baseID  string
	token   string
	client  *http.Client
}

func NewAirtableClient(baseURL, baseID, token string, client *http.Client) *AirtableClient {
	return &AirtableClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		baseID:  baseID,
		token:   token,
		client:  client,
	}
}

type airtableList struct {
	Records []Record `json:"records"`
	Offset  string   `json:"offset"`
}

func (c *AirtableClient) Select(ctx context.Context, table string, opts SelectOptions) ([]Record, error) {
	params := url.Values{}
	if !opts.Filter.Empty() {
		formula, err := Formula(opts.Filter)
		if err != nil {
			return nil, err
		}
		params.Set("filterByFormula", formula)
	}
	if opts.MaxRecords > 0 {
		params.Set("maxRecords", strconv.Itoa(opts.MaxRecords))
	}
	if opts.View != "" {
		params.Set("view", opts.View)
	}
	params.Set("pageSize", strconv.Itoa(airtablePageSize))

	var records []Record
	for page := 1; ; page++ {
		var list airtableList
		if err := c.do(ctx, http.MethodGet, c.tableURL(table)+"?"+params.Encode(), nil, &list); err != nil {
			return nil, err
		}
		records = append(records, list.Records...)

		logger.Log.WithFields(map[string]interface{}{
			"table":   table,
			"page":    page,
			"fetched": len(list.Records),
		}).Debug("Fetched record page")

		if list.Offset == "" || (opts.MaxRecords > 0 && len(records) >= opts.MaxRecords) {
			break
		}
		params.Set("offset", list.Offset)
	}

	if opts.MaxRecords > 0 && len(records) > opts.MaxRecords {
		records = records[:opts.MaxRecords]
	}
	return records, nil
}

func (c *AirtableClient) Find(ctx context.Context, table, id string) (Record, error) {
	var rec Record
	err := c.do(ctx, http.MethodGet, c.tableURL(table)+"/"+url.PathEscape(id), nil, &rec)
	return rec, err
}

type airtableWrite struct {
	Records []airtableWriteRecord `json:"records"`
}

type airtableWriteRecord struct {
	ID     string                 `json:"id,omitempty"`
	Fields map[string]interface{} `json:"fields"`
}

func (c *AirtableClient) Create(ctx context.Context, table string, fields map[string]interface{}) (Record, error) {
	return c.write(ctx, http.MethodPost, table, airtableWriteRecord{Fields: fields})
}

func (c *AirtableClient) Update(ctx context.Context, table, id string, fields map[string]interface{}) (Record, error) {
	return c.write(ctx, http.MethodPatch, table, airtableWriteRecord{ID: id, Fields: fields})
}

func (c *AirtableClient) write(ctx context.Context, method, table string, rec airtableWriteRecord) (Record, error) {
	var out airtableList
	if err := c.do(ctx, method, c.tableURL(table), airtableWrite{Records: []airtableWriteRecord{rec}}, &out); err != nil {
		return Record{}, err
	}
	if len(out.Records) == 0 {
		return Record{}, fmt.Errorf("record store: %s %s returned no records", method, table)
	}
	return out.Records[0], nil
}

func (c *AirtableClient) tableURL(table string) string {
	return fmt.Sprintf("%s/%s/%s", c.baseURL, url.PathEscape(c.baseID), url.PathEscape(table))
}

func (c *AirtableClient) do(ctx context.Context, method, target string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal record payload: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("record store request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read record store response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAirtableError(resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode record store response: %w", err)
	}
	return nil
}

// decodeAirtableError handles both {"error":"NOT_FOUND"} and
// {"error":{"type":"...","message":"..."}} bodies.
func decodeAirtableError(status int, raw []byte) error {
	apiErr := &APIError{StatusCode: status, Type: http.StatusText(status)}

	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || len(envelope.Error) == 0 {
		return apiErr
	}

	var code string
	if err := json.Unmarshal(envelope.Error, &code); err == nil {
		apiErr.Type = code
		return apiErr
	}

	var detail struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(envelope.Error, &detail); err == nil {
		if detail.Type != "" {
			apiErr.Type = detail.Type
		}
		apiErr.Message = detail.Message
	}
	return apiErr
}

// Formula renders a filter as an Airtable filterByFormula expression.
func Formula(f *Filter) (string, error) {
	parts := make([]string, 0, len(f.Any))
	for _, cond := range f.Any {
		part, err := conditionFormula(cond)
		if err != nil {
			return "", err
		}
		parts = append(parts, part)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return "OR(" + strings.Join(parts, ",") + ")", nil
}

func conditionFormula(cond Condition) (string, error) {
	field := "{" + cond.Field + "}"
	switch cond.Op {
	case OpEquals:
		return fmt.Sprintf("%s = '%s'", field, escapeFormulaString(cond.Value)), nil
	case OpNumberEquals:
		n, err := strconv.ParseFloat(strings.TrimSpace(cond.Value), 64)
		if err != nil {
			return "", fmt.Errorf("%w: %q is not numeric", ErrInvalidFilter, cond.Value)
		}
		return fmt.Sprintf("%s = %s", field, strconv.FormatFloat(n, 'f', -1, 64)), nil
	case OpEqualsFold:
		return fmt.Sprintf("LOWER(%s) = '%s'", field, escapeFormulaString(strings.ToLower(cond.Value))), nil
	case OpDigitsEqual:
		return fmt.Sprintf(`REGEX_REPLACE(%s, "[^0-9]", "") = '%s'`, field, digitsOnly(cond.Value)), nil
	default:
		return "", fmt.Errorf("%w: unsupported operator %d", ErrInvalidFilter, cond.Op)
	}
}

func escapeFormulaString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

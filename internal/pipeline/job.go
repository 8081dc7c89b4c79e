package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ErlanBelekov/pipeline-scheduler/internal/domain"
)

const errorBodyLimit = 512

// Sink persists fetched records.
type Sink interface {
	Append(ctx context.Context, table string, records []json.RawMessage) (int64, error)
}

// HTTPJob fetches one JSON document from a source and optionally appends the
// records found at the source's data path to a table.
type HTTPJob struct {
	client *http.Client
	source *Source
	sink   Sink
	table  string
}

func NewHTTPJob(client *http.Client, source *Source, sink Sink, table string) *HTTPJob {
	return &HTTPJob{client: client, source: source, sink: sink, table: table}
}

func (j *HTTPJob) Run(ctx context.Context) (domain.Result, error) {
	if j.source.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.source.Timeout)
		defer cancel()
	}

	req, err := j.newRequest(ctx)
	if err != nil {
		return domain.Result{}, err
	}

	resp, err := j.client.Do(req)
	if err != nil {
		return domain.Result{}, fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		_, _ = io.Copy(io.Discard, resp.Body) // drain so the connection can be reused
		return domain.Result{}, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var doc json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return domain.Result{}, fmt.Errorf("decode response: %w", err)
	}

	records, err := extractRecords(doc, j.source.DataPath)
	if err != nil {
		return domain.Result{}, err
	}

	if j.sink == nil {
		return domain.Result{Records: int64(len(records))}, nil
	}
	n, err := j.sink.Append(ctx, j.table, records)
	if err != nil {
		return domain.Result{Records: n}, fmt.Errorf("append to %s: %w", j.table, err)
	}
	return domain.Result{Records: n}, nil
}

func (j *HTTPJob) newRequest(ctx context.Context) (*http.Request, error) {
	u, err := url.Parse(j.source.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if len(j.source.QueryParams) > 0 {
		q := u.Query()
		for _, p := range j.source.QueryParams {
			q.Set(p.Key, p.Value)
		}
		u.RawQuery = q.Encode()
	}

	method := j.source.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if j.source.Body != "" {
		body = strings.NewReader(j.source.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, h := range j.source.Headers {
		req.Header.Set(h.Key, h.Value)
	}
	return req, nil
}

// extractRecords walks a dot separated path of object keys and returns the
// array elements found there, or the object itself as a single record.
func extractRecords(doc json.RawMessage, path string) ([]json.RawMessage, error) {
	node := doc
	if path = strings.Trim(path, "./"); path != "" {
		for _, key := range strings.Split(path, ".") {
			var obj map[string]json.RawMessage
			if err := json.Unmarshal(node, &obj); err != nil {
				return nil, fmt.Errorf("data path %q: %q is not inside an object", path, key)
			}
			next, ok := obj[key]
			if !ok {
				return nil, fmt.Errorf("data path %q: key %q not found", path, key)
			}
			node = next
		}
	}

	switch firstByte(node) {
	case '[':
		var records []json.RawMessage
		if err := json.Unmarshal(node, &records); err != nil {
			return nil, fmt.Errorf("decode records: %w", err)
		}
		return records, nil
	case '{':
		return []json.RawMessage{node}, nil
	default:
		return nil, fmt.Errorf("data path %q: expected an array or object", path)
	}
}

func firstByte(b []byte) byte {
	b = bytes.TrimLeft(b, " \t\r\n")
	if len(b) == 0 {
		return 0
	}
	return b[0]
}

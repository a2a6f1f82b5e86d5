// Package client is a small REST client for the emulator wire protocol.
// It layers the caller-side concerns the engine itself refuses to own:
// transport retries and retry-on-conflict for transactions.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/avast/retry-go"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/firelite/firelite-backend/internal/document"
	"github.com/firelite/firelite-backend/internal/logging"
	"github.com/firelite/firelite-backend/internal/writes"
)

// Client talks to one emulated database.
type Client struct {
	baseURL   string
	projectID string
	http      *http.Client
}

// New creates a client for the emulator at baseURL serving projectID.
// Transport-level retries are handled by retryablehttp; conflict retries
// are RunTransaction's job.
func New(baseURL string, projectID string) *Client {
	inner := retryablehttp.NewClient()
	inner.RetryMax = 3
	inner.Logger = nil

	return &Client{
		baseURL:   baseURL,
		projectID: projectID,
		http:      inner.StandardClient(),
	}
}

// DocName builds a full document resource path from alternating
// collection and document id segments.
func (c *Client) DocName(segments ...string) string {
	name := fmt.Sprintf("projects/%s/databases/(default)/documents", c.projectID)
	for _, seg := range segments {
		name += "/" + seg
	}
	return name
}

//APIError Error body of a failed call.
type APIError struct {
	HTTPStatus int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Status, e.HTTPStatus, e.Message)
}

//IsAborted True for commit-time conflict errors, the only retryable kind.
func IsAborted(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.Status == "ABORTED"
}

func (c *Client) post(ctx context.Context, method string, request interface{}, response interface{}) error {
	body, err := json.Marshal(request)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/v1/projects/%s/databases/(default)/documents:%s", c.baseURL, c.projectID, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var failure struct {
			Error struct {
				Code    int    `json:"code"`
				Message string `json:"message"`
				Status  string `json:"status"`
			} `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&failure); err != nil {
			return &APIError{HTTPStatus: resp.StatusCode, Status: "UNKNOWN", Message: err.Error()}
		}
		return &APIError{HTTPStatus: resp.StatusCode, Status: failure.Error.Status, Message: failure.Error.Message}
	}

	if response == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(response)
}

//BatchGetResult One entry of a batchGet response.
type BatchGetResult struct {
	Found       *document.Document `json:"found,omitempty"`
	Missing     string             `json:"missing,omitempty"`
	ReadTime    string             `json:"readTime"`
	Transaction string             `json:"transaction,omitempty"`
}

//CommitResult Response of a commit call.
type CommitResult struct {
	WriteResults []writes.WriteResult `json:"writeResults"`
	CommitTime   string               `json:"commitTime"`
}

//BeginTransaction Starts a transaction and returns its id.
func (c *Client) BeginTransaction(ctx context.Context, readOnly bool) (string, error) {
	options := map[string]interface{}{}
	if readOnly {
		options["readOnly"] = map[string]interface{}{}
	} else {
		options["readWrite"] = map[string]interface{}{}
	}

	var response struct {
		Transaction string `json:"transaction"`
	}
	err := c.post(ctx, "beginTransaction", map[string]interface{}{"options": options}, &response)
	if err != nil {
		return "", err
	}
	return response.Transaction, nil
}

//BatchGet Reads the named documents, inside txn when txn is non-empty.
func (c *Client) BatchGet(ctx context.Context, txn string, names []string) ([]BatchGetResult, error) {
	request := map[string]interface{}{"documents": names}
	if txn != "" {
		request["transaction"] = txn
	}

	var response []BatchGetResult
	if err := c.post(ctx, "batchGet", request, &response); err != nil {
		return nil, err
	}
	return response, nil
}

//Commit Commits a batch of writes, inside txn when txn is non-empty.
func (c *Client) Commit(ctx context.Context, txn string, batch []writes.Write) (*CommitResult, error) {
	request := map[string]interface{}{"writes": batch}
	if txn != "" {
		request["transaction"] = txn
	}

	var response CommitResult
	if err := c.post(ctx, "commit", request, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

//Rollback Rolls a transaction back.
func (c *Client) Rollback(ctx context.Context, txn string) error {
	return c.post(ctx, "rollback", map[string]interface{}{"transaction": txn}, nil)
}

// Tx is the per-attempt view RunTransaction hands to its callback: reads
// go through the transaction snapshot, writes are buffered until commit.
type Tx struct {
	client *Client
	ctx    context.Context
	id     string
	writes []writes.Write
}

//Get Reads one document inside the transaction. nil means missing.
func (t *Tx) Get(name string) (*document.Document, error) {
	results, err := t.client.BatchGet(t.ctx, t.id, []string{name})
	if err != nil {
		return nil, err
	}
	return results[0].Found, nil
}

//Set Buffers a full-document write.
func (t *Tx) Set(doc *document.Document) {
	t.writes = append(t.writes, writes.Write{Update: doc})
}

//Delete Buffers a delete.
func (t *Tx) Delete(name string) {
	t.writes = append(t.writes, writes.Write{Delete: name})
}

// RunTransaction runs fn in a transaction and retries the whole attempt
// when the commit is aborted by a conflict. The engine never retries on
// its own; this is the caller-side layer that does.
func (c *Client) RunTransaction(ctx context.Context, fn func(tx *Tx) error) error {
	logger := logging.FromContext(ctx)

	return retry.Do(
		func() error {
			id, err := c.BeginTransaction(ctx, false)
			if err != nil {
				return err
			}

			tx := &Tx{client: c, ctx: ctx, id: id}
			if err := fn(tx); err != nil {
				if rollbackErr := c.Rollback(ctx, id); rollbackErr != nil {
					logger.Debugf("Rollback of %q failed: %v", id, rollbackErr)
				}
				return err
			}

			_, err = c.Commit(ctx, id, tx.writes)
			return err
		},
		retry.Attempts(5),
		retry.RetryIf(IsAborted),
		retry.LastErrorOnly(true),
	)
}

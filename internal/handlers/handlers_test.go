package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firelite/firelite-backend/internal/document"
	"github.com/firelite/firelite-backend/internal/events"
	"github.com/firelite/firelite-backend/internal/store"
)

const basePath = "/v1/projects/demo-project/databases/(default)"

func docName(id string) string {
	return "projects/demo-project/databases/(default)/documents/users/" + id
}

type world struct {
	server  *httptest.Server
	handler *Handler
	store   *store.MemoryStore
	bus     *events.Bus
}

func newWorld(t *testing.T) *world {
	t.Helper()

	st := store.NewMemoryStore()
	bus := events.NewBus()
	handler := NewHandler(st, bus)
	server := httptest.NewServer(NewRouter(handler))
	t.Cleanup(server.Close)

	return &world{server: server, handler: handler, store: st, bus: bus}
}

// call posts a JSON body to one of the documents:{method} endpoints and
// decodes the response body into a generic document.
func (w *world) call(t *testing.T, method string, body string) (int, map[string]interface{}) {
	t.Helper()

	url := w.server.URL + basePath + "/documents:" + method
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))

	// batchGet returns a JSON array; wrap it so callers get one shape.
	if arr, ok := decoded.([]interface{}); ok {
		return resp.StatusCode, map[string]interface{}{"entries": arr}
	}
	return resp.StatusCode, decoded.(map[string]interface{})
}

func (w *world) mustCommit(t *testing.T, body string) map[string]interface{} {
	t.Helper()
	status, response := w.call(t, "commit", body)
	require.Equal(t, http.StatusOK, status, "commit failed: %v", response)
	return response
}

func updateWrite(id string, field string, n int) string {
	return fmt.Sprintf(`{"update":{"name":%q,"fields":{%q:{"integerValue":"%d"}}}}`, docName(id), field, n)
}

func errorStatus(response map[string]interface{}) string {
	errBody, _ := response["error"].(map[string]interface{})
	status, _ := errBody["status"].(string)
	return status
}

func TestCommitAndBatchGetRoundTrip(t *testing.T) {
	w := newWorld(t)

	response := w.mustCommit(t, `{"writes":[`+updateWrite("u1", "n", 1)+`]}`)
	results := response["writeResults"].([]interface{})
	require.Len(t, results, 1)
	assert.NotEmpty(t, response["commitTime"])

	status, response := w.call(t, "batchGet", fmt.Sprintf(`{"documents":[%q]}`, docName("u1")))
	require.Equal(t, http.StatusOK, status)

	entries := response["entries"].([]interface{})
	require.Len(t, entries, 1)
	entry := entries[0].(map[string]interface{})
	found := entry["found"].(map[string]interface{})
	assert.Equal(t, docName("u1"), found["name"])
	assert.NotEmpty(t, entry["readTime"])
}

func TestBatchGetReportsMissing(t *testing.T) {
	w := newWorld(t)

	status, response := w.call(t, "batchGet", fmt.Sprintf(`{"documents":[%q]}`, docName("ghost")))
	require.Equal(t, http.StatusOK, status)

	entries := response["entries"].([]interface{})
	entry := entries[0].(map[string]interface{})
	assert.Equal(t, docName("ghost"), entry["missing"])
}

func TestBatchGetAppliesMask(t *testing.T) {
	w := newWorld(t)
	w.mustCommit(t, fmt.Sprintf(`{"writes":[{"update":{"name":%q,"fields":{"a":{"integerValue":"1"},"b":{"integerValue":"2"}}}}]}`, docName("u1")))

	status, response := w.call(t, "batchGet", fmt.Sprintf(`{"documents":[%q],"mask":{"fieldPaths":["a"]}}`, docName("u1")))
	require.Equal(t, http.StatusOK, status)

	entry := response["entries"].([]interface{})[0].(map[string]interface{})
	fields := entry["found"].(map[string]interface{})["fields"].(map[string]interface{})
	assert.Contains(t, fields, "a")
	assert.NotContains(t, fields, "b")
}

func TestBatchGetSizeLimit(t *testing.T) {
	w := newWorld(t)

	names := make([]string, 101)
	for i := range names {
		names[i] = fmt.Sprintf("%q", docName(fmt.Sprintf("u%d", i)))
	}

	status, response := w.call(t, "batchGet", `{"documents":[`+strings.Join(names, ",")+`]}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_ARGUMENT", errorStatus(response))
}

func TestCommitSizeLimit(t *testing.T) {
	w := newWorld(t)

	writes := make([]string, 501)
	for i := range writes {
		writes[i] = updateWrite(fmt.Sprintf("u%d", i), "n", i)
	}

	status, response := w.call(t, "commit", `{"writes":[`+strings.Join(writes, ",")+`]}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_ARGUMENT", errorStatus(response))
}

func TestUnknownDatabaseIs404(t *testing.T) {
	w := newWorld(t)

	url := w.server.URL + "/v1/projects/demo-project/databases/other/documents:batchGet"
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(fmt.Sprintf(`{"documents":[%q]}`, docName("u1"))))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBeginAndRollback(t *testing.T) {
	w := newWorld(t)

	status, response := w.call(t, "beginTransaction", `{"options":{"readWrite":{}}}`)
	require.Equal(t, http.StatusOK, status)
	txn := response["transaction"].(string)
	require.NotEmpty(t, txn)

	status, _ = w.call(t, "rollback", fmt.Sprintf(`{"transaction":%q}`, txn))
	require.Equal(t, http.StatusOK, status)

	// A second rollback of the same id fails: terminal states are final.
	status, response = w.call(t, "rollback", fmt.Sprintf(`{"transaction":%q}`, txn))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_ARGUMENT", errorStatus(response))
}

func TestEndToEndConflictScenario(t *testing.T) {
	w := newWorld(t)

	// T1 begins and reads users/u1 as missing.
	status, response := w.call(t, "beginTransaction", `{}`)
	require.Equal(t, http.StatusOK, status)
	txn := response["transaction"].(string)

	status, response = w.call(t, "batchGet", fmt.Sprintf(`{"documents":[%q],"transaction":%q}`, docName("u1"), txn))
	require.Equal(t, http.StatusOK, status)
	entry := response["entries"].([]interface{})[0].(map[string]interface{})
	require.Equal(t, docName("u1"), entry["missing"])

	// An external writer creates the document outside T1.
	w.mustCommit(t, `{"writes":[`+updateWrite("u1", "n", 1)+`]}`)

	// T1's commit must abort: its snapshot said missing, the live store
	// disagrees.
	status, response = w.call(t, "commit", fmt.Sprintf(`{"writes":[%s],"transaction":%q}`, updateWrite("u1", "n", 2), txn))
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "ABORTED", errorStatus(response))

	// The external write survives untouched.
	doc, ok := w.store.Get(docName("u1"))
	require.True(t, ok)
	v, _ := document.GetField(doc.Fields, "n")
	assert.Equal(t, int64(1), v.Int)

	// The aborted transaction is terminal.
	status, _ = w.call(t, "rollback", fmt.Sprintf(`{"transaction":%q}`, txn))
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestTransactionalCommitSucceedsWithoutConflict(t *testing.T) {
	w := newWorld(t)
	w.mustCommit(t, `{"writes":[`+updateWrite("u1", "n", 1)+`]}`)

	status, response := w.call(t, "beginTransaction", `{}`)
	require.Equal(t, http.StatusOK, status)
	txn := response["transaction"].(string)

	status, _ = w.call(t, "batchGet", fmt.Sprintf(`{"documents":[%q],"transaction":%q}`, docName("u1"), txn))
	require.Equal(t, http.StatusOK, status)

	status, response = w.call(t, "commit", fmt.Sprintf(`{"writes":[%s],"transaction":%q}`, updateWrite("u1", "n", 2), txn))
	require.Equal(t, http.StatusOK, status, "commit failed: %v", response)

	doc, _ := w.store.Get(docName("u1"))
	v, _ := document.GetField(doc.Fields, "n")
	assert.Equal(t, int64(2), v.Int)

	// Committed is terminal too.
	status, _ = w.call(t, "commit", fmt.Sprintf(`{"writes":[%s],"transaction":%q}`, updateWrite("u1", "n", 3), txn))
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestNewTransactionInBatchGet(t *testing.T) {
	w := newWorld(t)
	w.mustCommit(t, `{"writes":[`+updateWrite("u1", "n", 1)+`]}`)

	status, response := w.call(t, "batchGet", fmt.Sprintf(`{"documents":[%q],"newTransaction":{"readWrite":{}}}`, docName("u1")))
	require.Equal(t, http.StatusOK, status)

	entry := response["entries"].([]interface{})[0].(map[string]interface{})
	txn, _ := entry["transaction"].(string)
	require.NotEmpty(t, txn)

	// The returned id names a live transaction that can commit.
	status, _ = w.call(t, "commit", fmt.Sprintf(`{"writes":[],"transaction":%q}`, txn))
	assert.Equal(t, http.StatusOK, status)
}

func TestReadOnlyTransactionRejectsWrites(t *testing.T) {
	w := newWorld(t)

	status, response := w.call(t, "beginTransaction", `{"options":{"readOnly":{}}}`)
	require.Equal(t, http.StatusOK, status)
	txn := response["transaction"].(string)

	status, response = w.call(t, "commit", fmt.Sprintf(`{"writes":[%s],"transaction":%q}`, updateWrite("u1", "n", 1), txn))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_ARGUMENT", errorStatus(response))
}

func TestPreconditionFailureMapsTo400And409(t *testing.T) {
	w := newWorld(t)
	w.mustCommit(t, `{"writes":[`+updateWrite("u1", "n", 1)+`]}`)

	// exists=false against an existing document: 409 ALREADY_EXISTS.
	status, response := w.call(t, "commit", fmt.Sprintf(
		`{"writes":[{"update":{"name":%q,"fields":{}},"currentDocument":{"exists":false}}]}`, docName("u1")))
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "ALREADY_EXISTS", errorStatus(response))

	// exists=true against a missing document: 400 FAILED_PRECONDITION.
	status, response = w.call(t, "commit", fmt.Sprintf(
		`{"writes":[{"update":{"name":%q,"fields":{}},"currentDocument":{"exists":true}}]}`, docName("ghost")))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "FAILED_PRECONDITION", errorStatus(response))
}

func TestMultiTagValueRejected(t *testing.T) {
	w := newWorld(t)

	status, response := w.call(t, "commit", fmt.Sprintf(
		`{"writes":[{"update":{"name":%q,"fields":{"x":{"integerValue":"1","stringValue":"1"}}}}]}`, docName("u1")))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_ARGUMENT", errorStatus(response))
}

func TestCommitPublishesEvents(t *testing.T) {
	w := newWorld(t)

	type event struct {
		path    string
		deleted bool
	}
	var seen []event
	w.bus.Subscribe(func(path string, doc *document.Document) {
		seen = append(seen, event{path: path, deleted: doc == nil})
	})

	w.mustCommit(t, `{"writes":[`+updateWrite("u1", "n", 1)+`]}`)
	w.mustCommit(t, fmt.Sprintf(`{"writes":[{"delete":%q}]}`, docName("u1")))

	require.Len(t, seen, 2)
	assert.Equal(t, event{path: docName("u1"), deleted: false}, seen[0])
	assert.Equal(t, event{path: docName("u1"), deleted: true}, seen[1])
}

// gatedStore pauses after its first Set so a test can interleave other
// calls while a commit batch is mid-application.
type gatedStore struct {
	*store.MemoryStore
	firstSet chan struct{}
	release  chan struct{}
	once     sync.Once
}

func (s *gatedStore) Set(path string, doc *document.Document) {
	s.MemoryStore.Set(path, doc)
	s.once.Do(func() {
		close(s.firstSet)
		<-s.release
	})
}

func TestSnapshotNeverObservesHalfAppliedCommit(t *testing.T) {
	gated := &gatedStore{
		MemoryStore: store.NewMemoryStore(),
		firstSet:    make(chan struct{}),
		release:     make(chan struct{}),
	}
	handler := NewHandler(gated, events.NopPublisher{})
	server := httptest.NewServer(NewRouter(handler))
	t.Cleanup(server.Close)

	post := func(method string, body string) (int, interface{}) {
		resp, err := http.Post(server.URL+basePath+"/documents:"+method, "application/json", strings.NewReader(body))
		if err != nil {
			return 0, err.Error()
		}
		defer resp.Body.Close()
		var decoded interface{}
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return resp.StatusCode, err.Error()
		}
		return resp.StatusCode, decoded
	}

	commitDone := make(chan int, 1)
	go func() {
		status, _ := post("commit", `{"writes":[`+updateWrite("u1", "n", 1)+`,`+updateWrite("u2", "n", 2)+`]}`)
		commitDone <- status
	}()

	<-gated.firstSet

	// A transaction begun while the batch is half applied must not take its
	// snapshot until the commit has finished.
	snapshotCh := make(chan interface{}, 1)
	go func() {
		_, response := post("beginTransaction", `{}`)
		txn := response.(map[string]interface{})["transaction"].(string)
		_, entries := post("batchGet", fmt.Sprintf(`{"documents":[%q,%q],"transaction":%q}`, docName("u1"), docName("u2"), txn))
		snapshotCh <- entries
	}()

	// Give the snapshot goroutine time to reach the manager before the
	// commit is allowed to finish.
	time.Sleep(50 * time.Millisecond)
	close(gated.release)
	require.Equal(t, http.StatusOK, <-commitDone)

	entries, ok := (<-snapshotCh).([]interface{})
	require.True(t, ok)
	require.Len(t, entries, 2)
	for _, e := range entries {
		entry := e.(map[string]interface{})
		assert.Contains(t, entry, "found", "snapshot observed a half-applied batch: %v", entries)
	}
}

// aliasingStore hands out its stored documents without copying, the way a
// careless Storer implementation might.
type aliasingStore struct {
	docs map[string]*document.Document
}

func (s *aliasingStore) Get(path string) (*document.Document, bool) {
	doc, ok := s.docs[path]
	return doc, ok
}
func (s *aliasingStore) Set(path string, doc *document.Document) { s.docs[path] = doc }
func (s *aliasingStore) Delete(path string)                      { delete(s.docs, path) }
func (s *aliasingStore) Exists(path string) bool                 { _, ok := s.docs[path]; return ok }
func (s *aliasingStore) All() map[string]*document.Document     { return s.docs }

func TestBatchGetMaskLeavesStoredDocumentIntact(t *testing.T) {
	st := &aliasingStore{docs: map[string]*document.Document{}}
	handler := NewHandler(st, events.NopPublisher{})
	server := httptest.NewServer(NewRouter(handler))
	t.Cleanup(server.Close)
	w := &world{server: server, handler: handler}

	w.mustCommit(t, fmt.Sprintf(`{"writes":[{"update":{"name":%q,"fields":{"a":{"integerValue":"1"},"b":{"integerValue":"2"}}}}]}`, docName("u1")))

	status, response := w.call(t, "batchGet", fmt.Sprintf(`{"documents":[%q],"mask":{"fieldPaths":["a"]}}`, docName("u1")))
	require.Equal(t, http.StatusOK, status)
	entry := response["entries"].([]interface{})[0].(map[string]interface{})
	fields := entry["found"].(map[string]interface{})["fields"].(map[string]interface{})
	assert.NotContains(t, fields, "b")

	// The projection must not have written through to the stored document.
	stored := st.docs[docName("u1")]
	_, ok := document.GetField(stored.Fields, "b")
	assert.True(t, ok)
}

func TestSnapshotIsolationOverHTTP(t *testing.T) {
	w := newWorld(t)
	w.mustCommit(t, `{"writes":[`+updateWrite("u1", "n", 1)+`]}`)

	status, response := w.call(t, "beginTransaction", `{}`)
	require.Equal(t, http.StatusOK, status)
	txn := response["transaction"].(string)

	read := func() string {
		status, response := w.call(t, "batchGet", fmt.Sprintf(`{"documents":[%q],"transaction":%q}`, docName("u1"), txn))
		require.Equal(t, http.StatusOK, status)
		entry := response["entries"].([]interface{})[0].(map[string]interface{})
		fields := entry["found"].(map[string]interface{})["fields"].(map[string]interface{})
		n := fields["n"].(map[string]interface{})
		return n["integerValue"].(string)
	}

	first := read()
	w.mustCommit(t, `{"writes":[` + updateWrite("u1", "n", 42) + `]}`)
	second := read()

	assert.Equal(t, "1", first)
	assert.Equal(t, first, second)
}

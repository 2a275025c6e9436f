package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// recordedCall captures one request the fake service saw.
type recordedCall struct {
	method string
	body   map[string]any
	auth   string
}

func newStoreServer(t *testing.T, status int, response string) (*HTTPStore, *[]recordedCall) {
	t.Helper()
	calls := &[]recordedCall{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		*calls = append(*calls, recordedCall{
			method: r.URL.Path,
			body:   body,
			auth:   r.Header.Get("Authorization"),
		})
		w.WriteHeader(status)
		w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	store := NewHTTPStore(srv.URL, "secret-token")
	t.Cleanup(func() { store.Close() })
	return store, calls
}

func TestHTTPStoreCreate(t *testing.T) {
	store, calls := newStoreServer(t, http.StatusOK,
		`{"id":"ws/abc","alias":"r1","type":"model","staged":true}`)

	h, err := store.Create(context.Background(), CreateOptions{
		Alias:     "r1",
		Type:      "model",
		Manifest:  map[string]any{"type": "model"},
		ParentID:  "parent",
		Version:   "stage",
		Overwrite: true,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if h.ID != "ws/abc" || !h.Staged {
		t.Errorf("handle = %+v", h)
	}

	call := (*calls)[0]
	if call.method != "/create" {
		t.Errorf("method = %q", call.method)
	}
	if call.auth != "Bearer secret-token" {
		t.Errorf("auth = %q", call.auth)
	}
	if call.body["alias"] != "r1" || call.body["version"] != "stage" || call.body["overwrite"] != true {
		t.Errorf("body = %v", call.body)
	}
}

func TestHTTPStoreGetFileNotFound(t *testing.T) {
	store, _ := newStoreServer(t, http.StatusNotFound, `not found`)

	_, err := store.GetFile(context.Background(), "a1", "missing.txt")
	if !errors.Is(err, ErrFileNotFound) {
		t.Errorf("err = %v, want ErrFileNotFound", err)
	}
}

func TestHTTPStorePutFile(t *testing.T) {
	store, calls := newStoreServer(t, http.StatusOK,
		`{"url":"https://s3.example.org/presigned"}`)

	url, err := store.PutFile(context.Background(), "a1", "weights.pt", 1)
	if err != nil {
		t.Fatalf("PutFile: %v", err)
	}
	if url != "https://s3.example.org/presigned" {
		t.Errorf("url = %q", url)
	}

	call := (*calls)[0]
	if call.method != "/put_file" {
		t.Errorf("method = %q", call.method)
	}
	if call.body["file_path"] != "weights.pt" || call.body["download_weight"] != float64(1) {
		t.Errorf("body = %v", call.body)
	}
}

func TestHTTPStoreCommit(t *testing.T) {
	store, calls := newStoreServer(t, http.StatusOK,
		`{"id":"a1","file_count":12}`)

	h, err := store.Commit(context.Background(), "a1")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if h.FileCount != 12 {
		t.Errorf("file count = %d, want 12", h.FileCount)
	}
	if (*calls)[0].method != "/commit" {
		t.Errorf("method = %q", (*calls)[0].method)
	}
}

func TestHTTPStoreServerError(t *testing.T) {
	store, _ := newStoreServer(t, http.StatusInternalServerError, `backend exploded`)

	_, err := store.Read(context.Background(), "r1")
	if err == nil {
		t.Fatal("expected error for 500")
	}
	if errors.Is(err, ErrFileNotFound) {
		t.Error("500 must not map to ErrFileNotFound")
	}
}

func TestHTTPStoreRemoveFile(t *testing.T) {
	store, calls := newStoreServer(t, http.StatusOK, `{}`)

	if err := store.RemoveFile(context.Background(), "a1", "https://old.example.org/f.pt"); err != nil {
		t.Fatalf("RemoveFile: %v", err)
	}
	call := (*calls)[0]
	if call.method != "/remove_file" || call.body["file_path"] != "https://old.example.org/f.pt" {
		t.Errorf("call = %+v", call)
	}
}

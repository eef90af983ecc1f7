package blob

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// fakeS3 serves the path-style subset of the S3 API the uploader uses.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newFakeS3(t *testing.T) (*fakeS3, *httptest.Server) {
	t.Helper()
	f := &fakeS3{objects: make(map[string][]byte), types: make(map[string]string)}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Query().Get("list-type") == "2":
		prefix := r.URL.Query().Get("prefix")
		var keys []string
		for k := range f.objects {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult><IsTruncated>false</IsTruncated>`)
		for _, k := range keys {
			fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2026-01-01T00:00:00Z</LastModified></Contents>", k, len(f.objects[k]))
		}
		b.WriteString("</ListBucketResult>")
		w.Header().Set("Content-Type", "application/xml")
		io.WriteString(w, b.String())
	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(r.Header.Get("Content-Encoding"), "aws-chunked") {
			body = decodeChunked(body)
		}
		f.objects[key] = body
		f.types[key] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodGet:
		body, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.Write(body)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

// decodeChunked strips aws-chunked framing: "<hex>[;ext]\r\n<data>\r\n" until
// a zero-length chunk.
func decodeChunked(body []byte) []byte {
	var out bytes.Buffer
	r := bufio.NewReader(bytes.NewReader(body))
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return out.Bytes()
		}
		sizeField := strings.TrimSpace(strings.SplitN(line, ";", 2)[0])
		n, err := strconv.ParseInt(sizeField, 16, 64)
		if err != nil || n == 0 {
			return out.Bytes()
		}
		if _, err := io.CopyN(&out, r, n); err != nil {
			return out.Bytes()
		}
		r.ReadString('\n')
	}
}

func newTestUploader(t *testing.T, srv *httptest.Server, prefix string) *Uploader {
	t.Helper()
	u, err := New(context.Background(), Config{
		Bucket:          "archives",
		Region:          "us-east-1",
		Endpoint:        srv.URL,
		PathStyle:       true,
		Prefix:          prefix,
		AccessKeyID:     "AKIATEST",
		SecretAccessKey: "secret",
		HTTPClient:      srv.Client(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return u
}

func TestNew_RequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Error("expected error without bucket")
	}
}

func TestUploader_Key(t *testing.T) {
	_, srv := newFakeS3(t)

	if got := newTestUploader(t, srv, "simcore/").Key("a.json"); got != "simcore/a.json" {
		t.Errorf("Key = %q", got)
	}
	if got := newTestUploader(t, srv, "").Key("a.json"); got != "a.json" {
		t.Errorf("Key without prefix = %q", got)
	}
}

func TestUploader_PutGetList(t *testing.T) {
	fake, srv := newFakeS3(t)
	u := newTestUploader(t, srv, "simcore/")
	ctx := context.Background()

	key, err := u.Put(ctx, "doc.json", bytes.NewReader([]byte(`{"episodes":[]}`)), "application/json")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if key != "simcore/doc.json" {
		t.Errorf("key = %q", key)
	}
	if got := string(fake.objects[key]); got != `{"episodes":[]}` {
		t.Errorf("stored body = %q", got)
	}
	if fake.types[key] != "application/json" {
		t.Errorf("content type = %q", fake.types[key])
	}

	rc, err := u.Get(ctx, "doc.json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != `{"episodes":[]}` {
		t.Errorf("Get = %q", data)
	}

	objects, err := u.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(objects) != 1 || objects[0].Key != key || objects[0].Size != int64(len(data)) {
		t.Errorf("List = %+v", objects)
	}
}

func TestUploader_PutFile(t *testing.T) {
	fake, srv := newFakeS3(t)
	u := newTestUploader(t, srv, "backups")

	p := filepath.Join(t.TempDir(), "simcore-runs-20260101-000000.jsonl.gz")
	if err := os.WriteFile(p, []byte("archive-bytes"), 0600); err != nil {
		t.Fatal(err)
	}

	key, err := u.PutFile(context.Background(), p, "application/gzip")
	if err != nil {
		t.Fatalf("PutFile: %v", err)
	}
	if key != "backups/simcore-runs-20260101-000000.jsonl.gz" {
		t.Errorf("key = %q", key)
	}
	if string(fake.objects[key]) != "archive-bytes" {
		t.Errorf("stored body = %q", fake.objects[key])
	}
}

func TestUploader_GetMissing(t *testing.T) {
	_, srv := newFakeS3(t)
	u := newTestUploader(t, srv, "")
	if _, err := u.Get(context.Background(), "nope"); err == nil {
		t.Error("expected error for missing object")
	}
}

package upload

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

func sampleFile() File {
	return File{
		CustomerID: "cust-1",
		TestID:     "test-9",
		FileName:   "squats/actions.csv",
		FileType:   "events",
		CSVContent: "Timestamp,Action\n00:01,Full Squat\n",
	}
}

func TestValidate(t *testing.T) {
	f := sampleFile()
	if err := f.Validate(); err != nil {
		t.Fatal(err)
	}
	f.CustomerID = ""
	if err := f.Validate(); !errors.Is(err, ErrNoSubject) {
		t.Fatalf("got %v", err)
	}
	f = sampleFile()
	f.FileName = "../../etc/passwd"
	if f.Validate() == nil {
		t.Fatal("path escape accepted")
	}
	f = sampleFile()
	f.TestID = "a/b"
	if f.Validate() == nil {
		t.Fatal("slash in test id accepted")
	}
}

func TestDirUploader(t *testing.T) {
	base := t.TempDir()
	if err := (DirUploader{Base: base}).Upload(context.Background(), sampleFile()); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(filepath.Join(base, "cust-1", "test-9", "squats", "actions.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != sampleFile().CSVContent {
		t.Fatalf("content %q", b)
	}
}

func TestHTTPUploaderPostsContract(t *testing.T) {
	var got File
	var key string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key = r.Header.Get("Idempotency-Key")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	u := NewHTTPUploader(srv.URL, NewBreaker("test", 3, time.Minute))
	if err := u.Upload(context.Background(), sampleFile()); err != nil {
		t.Fatal(err)
	}
	if got != sampleFile() {
		t.Fatalf("server got %+v", got)
	}
	if len(key) != 36 {
		t.Fatalf("idempotency key %q", key)
	}
}

func TestHTTPUploaderBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "storage down", http.StatusBadGateway)
	}))
	defer srv.Close()

	u := NewHTTPUploader(srv.URL, NewBreaker("test", 2, time.Minute))
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := u.Upload(ctx, sampleFile()); err == nil || errors.Is(err, ErrBreakerOpen) {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	if err := u.Upload(ctx, sampleFile()); !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("expected fast fail, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("server called %d times", calls.Load())
	}
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker("test", 1, 10*time.Second)
	b.now = func() time.Time { return now }
	ctx := context.Background()
	boom := errors.New("boom")

	b.Execute(ctx, func(context.Context) error { return boom })
	if b.State() != Open {
		t.Fatalf("state %v", b.State())
	}
	now = now.Add(11 * time.Second)
	if err := b.Execute(ctx, func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("trial call should run: %v", err)
	}
	if b.State() != Open {
		t.Fatalf("failed trial call should reopen, got %v", b.State())
	}
	now = now.Add(11 * time.Second)
	if err := b.Execute(ctx, func(context.Context) error { return nil }); err != nil {
		t.Fatal(err)
	}
	if b.State() != Closed {
		t.Fatalf("state %v", b.State())
	}
}

type fakeWriter struct{ msgs []kafka.Message }

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func TestKafkaUploader(t *testing.T) {
	w := &fakeWriter{}
	u := &KafkaUploader{writer: w}
	if err := u.Upload(context.Background(), sampleFile()); err != nil {
		t.Fatal(err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d", len(w.msgs))
	}
	m := w.msgs[0]
	if string(m.Key) != "cust-1/test-9/squats/actions.csv" {
		t.Fatalf("key %s", m.Key)
	}
	headers := map[string]string{}
	for _, h := range m.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers["file-type"] != "events" || headers["upload-id"] == "" {
		t.Fatalf("headers %v", headers)
	}
}

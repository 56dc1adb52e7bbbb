package http_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/meigma/ziptoc/storage"
	ziphttp "github.com/meigma/ziptoc/storage/http"
)

func TestSource_ReadAt(t *testing.T) {
	t.Parallel()

	data := []byte("hello world")
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		nethttp.ServeContent(w, r, "data", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(server.Close)

	src, err := ziphttp.NewSource(context.Background(), server.URL, ziphttp.WithConditionalHeaders())
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}
	if src.Size() != int64(len(data)) {
		t.Fatalf("Size() = %d, want %d", src.Size(), len(data))
	}

	tests := []struct {
		name    string
		bufSize int
		offset  int64
		wantN   int
		wantErr error
		want    string
	}{
		{
			name:    "read from middle",
			bufSize: 5,
			offset:  6,
			wantN:   5,
			wantErr: nil,
			want:    "world",
		},
		{
			name:    "read past end returns EOF",
			bufSize: 10,
			offset:  int64(len(data) - 3),
			wantN:   3,
			wantErr: io.EOF,
			want:    "rld",
		},
		{
			name:    "offset beyond size",
			bufSize: 4,
			offset:  int64(len(data) + 1),
			wantN:   0,
			wantErr: io.EOF,
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			buf := make([]byte, tt.bufSize)
			n, err := src.ReadAt(buf, tt.offset)
			if err != tt.wantErr {
				t.Fatalf("ReadAt() error = %v, want %v", err, tt.wantErr)
			}
			if n != tt.wantN {
				t.Fatalf("ReadAt() n = %d, want %d", n, tt.wantN)
			}
			if got := string(buf[:n]); got != tt.want {
				t.Fatalf("ReadAt() got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewSource_RangeUnsupported(t *testing.T) {
	t.Parallel()

	data := []byte("range unsupported")
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method == nethttp.MethodHead {
			w.Header().Set("Content-Length", strconv.Itoa(len(data)))
			return
		}
		_, _ = w.Write(data)
	}))
	t.Cleanup(server.Close)

	_, err := ziphttp.NewSource(context.Background(), server.URL)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestSource_ReadAt_RetriesWithoutIfMatchOn412(t *testing.T) {
	t.Parallel()

	data := []byte("hello world")
	etag := `"retry-test"`
	var withIfMatchRange int32
	var withoutIfMatchRange int32

	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		switch r.Method {
		case nethttp.MethodHead:
			w.Header().Set("Content-Length", strconv.Itoa(len(data)))
			w.Header().Set("ETag", etag)
			return
		case nethttp.MethodGet:
			if r.Header.Get("Range") == "bytes=6-10" {
				if r.Header.Get("If-Match") != "" {
					atomic.AddInt32(&withIfMatchRange, 1)
					w.WriteHeader(nethttp.StatusPreconditionFailed)
					return
				}
				atomic.AddInt32(&withoutIfMatchRange, 1)
			}
			w.Header().Set("ETag", etag)
			nethttp.ServeContent(w, r, "data", time.Time{}, bytes.NewReader(data))
			return
		default:
			w.WriteHeader(nethttp.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(server.Close)

	src, err := ziphttp.NewSource(context.Background(), server.URL, ziphttp.WithConditionalHeaders())
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}

	buf := make([]byte, 5)
	n, err := src.ReadAt(buf, 6)
	if err != nil {
		t.Fatalf("ReadAt() error = %v", err)
	}
	if got := string(buf[:n]); got != "world" {
		t.Fatalf("ReadAt() got %q, want %q", got, "world")
	}
	if atomic.LoadInt32(&withIfMatchRange) != 1 {
		t.Fatalf("expected one range request with If-Match, got %d", withIfMatchRange)
	}
	if atomic.LoadInt32(&withoutIfMatchRange) != 1 {
		t.Fatalf("expected one range retry without If-Match, got %d", withoutIfMatchRange)
	}
}

func TestObject_OpenSeekRead(t *testing.T) {
	t.Parallel()

	data := []byte("0123456789abcdef")
	mux := nethttp.NewServeMux()
	mux.HandleFunc("/archives/a.zip", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		nethttp.ServeContent(w, r, "a.zip", time.Time{}, bytes.NewReader(data))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	backend, err := ziphttp.New(server.URL + "/archives")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	obj := backend.Object("a.zip")
	if obj.Key() != "a.zip" {
		t.Fatalf("Key() = %q", obj.Key())
	}

	stream, err := obj.Open(context.Background())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer stream.Close()

	size, err := storage.Size(stream)
	if err != nil {
		t.Fatalf("Size() error = %v", err)
	}
	if size != int64(len(data)) {
		t.Fatalf("Size() = %d, want %d", size, len(data))
	}
	if _, err := stream.Seek(10, io.SeekStart); err != nil {
		t.Fatalf("Seek() error = %v", err)
	}
	got, err := io.ReadAll(stream)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(got) != "abcdef" {
		t.Fatalf("ReadAll() = %q, want %q", got, "abcdef")
	}
}

func TestObject_OpenMissing(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(nethttp.NotFoundHandler())
	t.Cleanup(server.Close)

	backend, err := ziphttp.New(server.URL)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, err = backend.Object("missing.zip").Open(context.Background())
	if !errors.Is(err, storage.ErrNotExist) {
		t.Fatalf("Open() error = %v, want ErrNotExist", err)
	}
}

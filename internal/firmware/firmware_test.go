package firmware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

const sampleHex = ":020000040000FA\n:10000000000400204D0100005101000053010000B2\n:00000001FF\n"

func TestParseRef(t *testing.T) {
	cases := []struct {
		in   string
		want Ref
	}{
		{"firmware.hex", Ref{Path: "firmware.hex"}},
		{"/tmp/a/b.hex", Ref{Path: "/tmp/a/b.hex"}},
		{"s3://fw/bridge/v2.hex", Ref{Bucket: "fw", Key: "bridge/v2.hex"}},
	}
	for _, tc := range cases {
		got, err := ParseRef(tc.in)
		if err != nil {
			t.Fatalf("%s: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("%s: got %+v", tc.in, got)
		}
		if got.String() != tc.in {
			t.Fatalf("%s: String() = %s", tc.in, got.String())
		}
	}

	for _, bad := range []string{"", "s3://", "s3://bucket", "s3://bucket/", "s3:///key"} {
		if _, err := ParseRef(bad); !errors.Is(err, ErrBadRef) {
			t.Fatalf("%q: got %v", bad, err)
		}
	}
}

func TestValidate(t *testing.T) {
	if err := Validate([]byte(sampleHex)); err != nil {
		t.Fatalf("valid image: %v", err)
	}
	if err := Validate([]byte("\r\n" + sampleHex + "\r\n")); err != nil {
		t.Fatalf("blank lines: %v", err)
	}

	for _, bad := range []string{"", "\n\n", "hello\n", ":00000001FF\nnot a record\n"} {
		if err := Validate([]byte(bad)); !errors.Is(err, ErrNotHex) {
			t.Fatalf("%q: got %v", bad, err)
		}
	}
	if err := Validate(make([]byte, MaxImageSize+1)); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("oversized: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.hex")
	bad := filepath.Join(dir, "bad.hex")
	os.WriteFile(good, []byte(sampleHex), 0o644)
	os.WriteFile(bad, []byte("MZ\x90\x00"), 0o644)

	l := NewLoader(nil)
	image, err := l.Load(context.Background(), good)
	if err != nil || string(image) != sampleHex {
		t.Fatalf("load: %q %v", image, err)
	}

	if _, err := l.Load(context.Background(), bad); !errors.Is(err, ErrNotHex) {
		t.Fatalf("bad image: %v", err)
	}
	if _, err := l.Load(context.Background(), filepath.Join(dir, "missing.hex")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("missing file: %v", err)
	}
	if _, err := l.Load(context.Background(), "s3://fw/x.hex"); !errors.Is(err, ErrNoS3Storage) {
		t.Fatalf("no storage: %v", err)
	}
}

// objectServer answers path-style S3 GETs for a single object
func objectServer(t *testing.T, bucket, key, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/"+bucket+"/"+key {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>not found</Message></Error>`))
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.Header().Set("Last-Modified", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).Format(http.TimeFormat))
		w.Header().Set("ETag", `"0123456789abcdef"`)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLoadObject(t *testing.T) {
	srv := objectServer(t, "fw", "bridge/v2.hex", sampleHex)

	src, err := NewS3Source(S3Opts{
		Endpoint:        strings.TrimPrefix(srv.URL, "http://"),
		AccessKeyID:     "access",
		SecretAccessKey: "secret",
		Region:          "us-east-1",
	})
	if err != nil {
		t.Fatalf("new source: %v", err)
	}

	l := NewLoader(src)
	image, err := l.Load(context.Background(), "s3://fw/bridge/v2.hex")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(image) != sampleHex {
		t.Fatalf("image %q", image)
	}

	if _, err := l.Load(context.Background(), "s3://fw/missing.hex"); err == nil {
		t.Fatalf("expected missing object error")
	}
}

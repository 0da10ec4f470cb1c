package firmware

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
)

// MaxImageSize caps a firmware image; universal hex files for both board
// revisions stay well below it
const MaxImageSize = 8 << 20

var (
	ErrBadRef      = errors.New("invalid firmware reference")
	ErrNotHex      = errors.New("firmware image is not Intel HEX")
	ErrTooLarge    = errors.New("firmware image too large")
	ErrNoS3Storage = errors.New("s3 reference given but no object storage configured")
)

// Source fetches firmware images
type Source interface {
	Fetch(ctx context.Context, ref Ref) ([]byte, error)
}

// Ref names a firmware image: a local path, or an object in a bucket
type Ref struct {
	Path   string
	Bucket string
	Key    string
}

func (r Ref) IsObject() bool {
	return r.Bucket != ""
}

func (r Ref) String() string {
	if r.IsObject() {
		return "s3://" + r.Bucket + "/" + r.Key
	}
	return r.Path
}

// ParseRef accepts "s3://bucket/key" or a file path
func ParseRef(s string) (Ref, error) {
	if s == "" {
		return Ref{}, fmt.Errorf("%w: empty", ErrBadRef)
	}
	rest, ok := strings.CutPrefix(s, "s3://")
	if !ok {
		return Ref{Path: s}, nil
	}
	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return Ref{}, fmt.Errorf("%w: %q needs a bucket and key", ErrBadRef, s)
	}
	return Ref{Bucket: bucket, Key: key}, nil
}

// Validate checks image looks like an Intel HEX file: every non-blank line
// is a record starting with ':'
func Validate(image []byte) error {
	if len(image) > MaxImageSize {
		return ErrTooLarge
	}

	records, lineNo := 0, 0
	sc := bufio.NewScanner(bytes.NewReader(image))
	for sc.Scan() {
		lineNo++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if line[0] != ':' {
			return fmt.Errorf("%w: line %d", ErrNotHex, lineNo)
		}
		records++
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrNotHex, err)
	}
	if records == 0 {
		return fmt.Errorf("%w: no records", ErrNotHex)
	}
	return nil
}

// Loader picks the source for a reference
type Loader struct {
	Files   Source
	Objects Source
}

func NewLoader(objects Source) *Loader {
	return &Loader{Files: FileSource{}, Objects: objects}
}

// Load fetches and validates the image named by s
func (l *Loader) Load(ctx context.Context, s string) ([]byte, error) {
	ref, err := ParseRef(s)
	if err != nil {
		return nil, err
	}

	src := l.Files
	if ref.IsObject() {
		if l.Objects == nil {
			return nil, ErrNoS3Storage
		}
		src = l.Objects
	}

	image, err := src.Fetch(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", ref, err)
	}
	if err := Validate(image); err != nil {
		return nil, fmt.Errorf("%s: %w", ref, err)
	}
	return image, nil
}

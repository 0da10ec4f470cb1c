package firmware

import (
	"context"
	"fmt"
	"os"
)

// FileSource reads images from the local filesystem
type FileSource struct{}

func (FileSource) Fetch(_ context.Context, ref Ref) ([]byte, error) {
	info, err := os.Stat(ref.Path)
	if err != nil {
		return nil, err
	}
	if info.Size() > MaxImageSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, info.Size())
	}
	return os.ReadFile(ref.Path)
}

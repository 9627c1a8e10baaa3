package utils

import (
	"bytes"
	"context"
	"io"

	_ "github.com/beyondstorage/go-service-memory"
	"github.com/beyondstorage/go-storage/v4/services"
	"github.com/beyondstorage/go-storage/v4/types"
)

func NewStoragerFromString(connString string) (types.Storager, error) {
	return services.NewStoragerFromString(connString)
}

// StoragerWriter buffers an upload and persists it in one call, appending
// when the storager and the object allow it.
type StoragerWriter struct {
	path     string
	storager types.Storager
	object   *types.Object // append target, nil for a plain write
}

// NewStoragerWriter creates a writer replacing the object at path.
func NewStoragerWriter(path string, storager types.Storager) *StoragerWriter {
	return &StoragerWriter{path: path, storager: storager}
}

// NewStoragerAppender creates a writer appending to o.
func NewStoragerAppender(o *types.Object, storager types.Storager) *StoragerWriter {
	return &StoragerWriter{path: o.GetPath(), storager: storager, object: o}
}

// ReadFrom reads r to the end and persists what was read, even when r ends
// with an error. The error is returned afterwards.
func (x *StoragerWriter) ReadFrom(ctx context.Context, r io.Reader) (int64, error) {
	file := new(bytes.Buffer)
	size, readErr := io.Copy(file, r)

	if x.object != nil {
		appender := x.storager.(types.Appender)
		if _, err := appender.WriteAppendWithContext(ctx, x.object, file, size); err != nil {
			return 0, err
		}
		if err := appender.CommitAppendWithContext(ctx, x.object); err != nil {
			return 0, err
		}
		return size, readErr
	}

	if _, err := x.storager.WriteWithContext(ctx, x.path, file, size); err != nil {
		return 0, err
	}
	return size, readErr
}

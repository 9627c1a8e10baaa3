package utils

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoragerWriterPersistsPartialUpload(t *testing.T) {
	store, err := NewStoragerFromString("memory:///utils")
	require.NoError(t, err)

	aborted := errors.New("aborted")
	r := io.MultiReader(strings.NewReader("partial"), iotest.ErrReader(aborted))

	n, err := NewStoragerWriter("file", store).ReadFrom(context.Background(), r)
	assert.Equal(t, aborted, err)
	assert.Equal(t, int64(7), n)

	var buf bytes.Buffer
	_, err = store.Read("file", &buf)
	require.NoError(t, err)
	assert.Equal(t, "partial", buf.String())
}

func TestStoragerWriterReplaces(t *testing.T) {
	store, err := NewStoragerFromString("memory:///utils")
	require.NoError(t, err)

	for _, content := range []string{"first version", "second"} {
		_, err := NewStoragerWriter("file", store).ReadFrom(context.Background(), strings.NewReader(content))
		require.NoError(t, err)
	}

	var buf bytes.Buffer
	_, err = store.Read("file", &buf)
	require.NoError(t, err)
	assert.Equal(t, "second", buf.String())
}

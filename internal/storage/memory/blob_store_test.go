package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutObjectStoresContent(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	uri, err := store.PutObject(context.Background(), "snap-1/page-1.html", "text/html", strings.NewReader("<html></html>"))
	require.NoError(t, err)
	require.Equal(t, "memory://snap-1/page-1.html", uri)

	content, ok := store.Get("snap-1/page-1.html")
	require.True(t, ok)
	require.Equal(t, "<html></html>", string(content))

	_, ok = store.Get("missing")
	require.False(t, ok)
}

package upload

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveWritesIntoUniqueDirs(t *testing.T) {
	base := t.TempDir()

	dir1, path1, err := Save(base, strings.NewReader("first"))
	require.NoError(t, err)
	dir2, path2, err := Save(base, strings.NewReader("second"))
	require.NoError(t, err)

	assert.NotEqual(t, dir1, dir2, "concurrent uploads must not share a path")

	data, err := os.ReadFile(path1)
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))

	data, err = os.ReadFile(path2)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestSaveCreatesScratchRoot(t *testing.T) {
	base := t.TempDir() + "/nested/scratch"

	dir, _, err := Save(base, strings.NewReader("x"))
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

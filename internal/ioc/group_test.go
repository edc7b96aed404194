package ioc

import (
	"os"
	"path/filepath"
	"testing"

	"gitee.com/flycash/notification-tracker/internal/errs"
	"gitee.com/flycash/notification-tracker/internal/service/gate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadGroups(t *testing.T) {
	t.Parallel()

	r, err := loadGroups("")
	require.NoError(t, err)
	assert.Empty(t, r.Resolve(gate.Attributes{}))

	_, err = loadGroups(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(t.TempDir(), "groups.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("groups:\n  - {id: a, parentId: b}\n"), 0o600))
	_, err = loadGroups(bad)
	assert.ErrorIs(t, err, errs.ErrGroupNotFound)

	r, err = loadGroups(filepath.Join("..", "..", "config", "groups.yaml"))
	require.NoError(t, err)
	assert.Equal(t, []string{"cn", "everyone"}, r.Resolve(gate.Attributes{"country": "CN", "level": 1}))
}

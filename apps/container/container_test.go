package container

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/classdrive/core"
	"github.com/trezcool/classdrive/core/user"
	"github.com/trezcool/classdrive/testutil"
)

func testConfig(backend string) *core.Config {
	return &core.Config{
		AppName:   "ClassDrive",
		Debug:     true,
		TestMode:  true,
		SecretKey: "secret",
		Store:     core.StoreConfig{Backend: backend, RootFolder: "ROOT", DocumentName: "database.json"},
		Cache:     core.CacheConfig{TTL: time.Minute},
		Session:   core.SessionConfig{TTL: time.Hour},
		Auth: core.AuthConfig{
			BootstrapUsername: "teacher",
			BootstrapPassword: "Teacher2025@",
			BootstrapFullName: "Administrator",
		},
	}
}

func TestNew(t *testing.T) {
	user.HashCost = bcrypt.MinCost
	ctx := context.Background()

	sqlConf := testConfig(core.BackendSQL)
	sqlConf.Store.SQL = core.SQLConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "objects.db")}
	boltConf := testConfig(core.BackendMemory)
	boltConf.Cache.Path = filepath.Join(t.TempDir(), "cache.db")

	tests := []struct {
		name string
		conf *core.Config
	}{
		{"memory", testConfig(core.BackendMemory)},
		{"sql", sqlConf},
		{"bolt cache", boltConf},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, err := New(ctx, tc.conf, new(testutil.Logger))
			require.NoError(t, err)
			defer func() { assert.NoError(t, c.Close()) }()

			_, id, err := c.UserSvc.Login(ctx, "teacher", "Teacher2025@")
			require.NoError(t, err)
			assert.True(t, id.IsTeacher())

			require.NoError(t, c.ClassSvc.CreateClass(ctx, "Math"))
			classes, err := c.ClassSvc.ListClasses(ctx)
			require.NoError(t, err)
			assert.Len(t, classes, 1)
		})
	}
}

func TestNewObjectStore_UnknownBackend(t *testing.T) {
	_, _, err := NewObjectStore(context.Background(), testConfig("ftp"), new(testutil.Logger))
	assert.EqualError(t, err, `unknown store backend "ftp"`)
}

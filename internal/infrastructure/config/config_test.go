package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstanceID(t *testing.T) {
	c := &Config{App: AppConfig{Name: "orders", InstanceID: " orders-1 "}}
	assert.Equal(t, "orders-1", c.InstanceID())

	c = &Config{App: AppConfig{Name: "orders"}}
	assert.Equal(t, "orders", c.InstanceID())

	c = &Config{}
	id := c.InstanceID()
	require.NotEmpty(t, id)
	assert.Equal(t, id, c.InstanceID())
	assert.Empty(t, c.App.InstanceID, "reading the id leaves the config untouched")

	generated := (&Config{}).resolveInstanceID()
	assert.NotEqual(t, generated, (&Config{}).resolveInstanceID())
	assert.Equal(t, "orders", (&Config{App: AppConfig{Name: "orders"}}).resolveInstanceID())
}

func TestDatabaseURL(t *testing.T) {
	c := &Config{Database: DatabaseConfig{
		Driver: "Postgres", User: "u", Password: "p", Host: "db", Port: 5432, Name: "dicts", SSLMode: "disable",
	}}
	url, err := c.DatabaseURL()
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@db:5432/dicts?sslmode=disable", url)

	c = &Config{Database: DatabaseConfig{Driver: "sqlite", Path: "/tmp/d.db"}}
	url, err = c.DatabaseURL()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "file:/tmp/d.db"))

	c = &Config{Database: DatabaseConfig{Driver: "oracle"}}
	_, err = c.DatabaseURL()
	assert.Error(t, err)
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreAuto, cfg.Store.Backend)
	assert.Equal(t, BroadcastNone, cfg.Broadcast.Backend)
	assert.Equal(t, "dictsync", cfg.InstanceID())
	assert.Equal(t, 16, cfg.Store.MaxTreeDepth)
}

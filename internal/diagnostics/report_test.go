package diagnostics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/priyxstudio/fwauth/config"
	"github.com/priyxstudio/fwauth/firewall"
	"github.com/priyxstudio/fwauth/firewall/memfw"
	"github.com/priyxstudio/fwauth/internal/database"
	"github.com/priyxstudio/fwauth/internal/history"
)

func TestTail(t *testing.T) {
	p := filepath.Join(t.TempDir(), "fwauth.log")
	f, err := os.Create(p)
	require.NoError(t, err)
	for i := 1; i <= 10; i++ {
		fmt.Fprintf(f, "line %d\n", i)
	}
	require.NoError(t, f.Close())

	lines, err := tail(p, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"line 8", "line 9", "line 10"}, lines)

	lines, err = tail(p, 50)
	require.NoError(t, err)
	assert.Len(t, lines, 10)

	lines, err = tail(p, 0)
	require.NoError(t, err)
	assert.Empty(t, lines)

	_, err = tail(filepath.Join(t.TempDir(), "missing.log"), 3)
	assert.Error(t, err)
}

func TestGenerate(t *testing.T) {
	dir := t.TempDir()
	c, err := config.NewAtPath(filepath.Join(dir, "config.yml"))
	require.NoError(t, err)
	c.Rule.Name = "MyApp"
	c.Rule.Executable = filepath.Join(dir, "app")
	c.System.LogDirectory = dir
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fwauth.log"), []byte("first\nlast\n"), 0o600))

	db, err := database.Open(":memory:")
	require.NoError(t, err)
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()

	svc := memfw.New(firewall.InboundAllow("MyApp", c.Rule.Executable))
	res := firewall.NewAuthorizer(svc, "MyApp", c.Rule.Executable).Run(context.Background())
	_, err = history.NewRecorder(db, 0).Record(res)
	require.NoError(t, err)

	out := Generate(context.Background(), c, svc, db, Options{IncludeLogs: true, LogLines: 1, HistoryLimit: 5})
	assert.Contains(t, out, "| Versions")
	assert.Contains(t, out, "backend:\tmemory")
	assert.Contains(t, out, "registered:\ttrue")
	assert.Contains(t, out, "rule:\t\tMyApp")
	assert.Contains(t, out, "| History")
	assert.Contains(t, out, "memory\tMyApp\tdone\tok")
	assert.Contains(t, out, "last")
	assert.NotContains(t, out, "first")

	svc.FailOn(firewall.OpOpen, firewall.CodeAccessDenied)
	out = Generate(context.Background(), c, svc, nil, Options{})
	assert.Contains(t, out, "registered:\tunknown (OpenPolicy 0x80070005")
	assert.Contains(t, out, "local database unavailable")
	assert.NotContains(t, out, "| Logs")
}

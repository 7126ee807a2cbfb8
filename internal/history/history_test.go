package history

import (
	"context"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/discard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/priyxstudio/fwauth/firewall"
	"github.com/priyxstudio/fwauth/firewall/memfw"
	"github.com/priyxstudio/fwauth/internal/database"
)

func newRecorder(t *testing.T, retain int) *Recorder {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return NewRecorder(db, retain)
}

func TestRecordFailure(t *testing.T) {
	r := newRecorder(t, 0)
	res := &firewall.Result{
		Backend:         "memory",
		Name:            "MyApp",
		ApplicationPath: `C:\MyApp\app.exe`,
		Stage:           firewall.StageFailed,
		Reached:         firewall.StageNewRuleBuilt,
		Err:             firewall.Rejected(firewall.OpAdd, firewall.CodeAccessDenied, nil),
		Started:         time.Now(),
		Duration:        1500 * time.Millisecond,
	}

	a, err := r.Record(res)
	require.NoError(t, err)
	assert.Len(t, a.ID, 36)
	assert.False(t, a.Success)
	assert.Equal(t, "new_rule_built", a.Stage)
	assert.Equal(t, firewall.OpAdd, a.Step)
	assert.Equal(t, "0x80070005", a.Code)
	assert.EqualValues(t, 1500, a.DurationMs)
}

func TestObserveAuthorizer(t *testing.T) {
	r := newRecorder(t, 0)
	store := memfw.New()
	entry := log.NewEntry(&log.Logger{Handler: discard.New(), Level: log.DebugLevel})
	a := firewall.NewAuthorizer(store, "MyApp", `C:\MyApp\app.exe`,
		firewall.WithLogger(entry),
		firewall.WithObserver(r.Observe),
	)

	require.True(t, a.Authorize(context.Background()))
	require.True(t, a.Authorize(context.Background()))

	recent, err := r.Recent(10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	for _, rec := range recent {
		assert.True(t, rec.Success)
		assert.Equal(t, "memory", rec.Backend)
		assert.Equal(t, firewall.StageDone.String(), rec.Stage)
		assert.Empty(t, rec.Step)
	}
	assert.True(t, recent[0].Replaced)
	assert.False(t, recent[1].Replaced)
}

func TestPrune(t *testing.T) {
	r := newRecorder(t, 3)
	for i := 0; i < 5; i++ {
		_, err := r.Record(&firewall.Result{
			Backend:         "memory",
			Name:            "MyApp",
			ApplicationPath: "/opt/myapp",
			Stage:           firewall.StageDone,
			Reached:         firewall.StageSubmitted,
			Started:         time.Now(),
		})
		require.NoError(t, err)
	}

	recent, err := r.Recent(0)
	require.NoError(t, err)
	assert.Len(t, recent, 3)
}

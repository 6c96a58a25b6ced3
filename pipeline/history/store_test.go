package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlops-project/trainer/pkg/errors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sub", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_RecordAndList(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, name := range []string{"Linear Regression", "Random Forest", "CatBoost"} {
		r := &Run{
			StartedAt: base.Add(time.Duration(i) * time.Minute),
			Status:    StatusSucceeded,
			BestModel: name,
			BestScore: 0.9,
			Scores:    map[string]float64{name: 0.9},
		}
		require.NoError(t, s.Record(r))
		assert.NotEmpty(t, r.ID)
	}

	runs, err := s.List(0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "CatBoost", runs[0].BestModel, "most recent first")
	assert.Equal(t, "Linear Regression", runs[2].BestModel)

	limited, err := s.List(2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestStore_GetAndUpdate(t *testing.T) {
	s := openTestStore(t)
	r := &Run{ID: NewRunID(), StartedAt: time.Now().UTC(), Status: StatusFailed, Error: "no best model found"}
	require.NoError(t, s.Record(r))

	got, err := s.Get(r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "no best model found", got.Error)

	// re-recording the same id replaces the entry
	r.Status = StatusSucceeded
	r.Error = ""
	require.NoError(t, s.Record(r))
	runs, err := s.List(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, StatusSucceeded, runs[0].Status)
}

func TestStore_Errors(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Get(NewRunID())
	assert.True(t, errors.Is(err, ErrRunNotFound))

	var ve *errors.ValidationError
	assert.True(t, errors.As(s.Record(&Run{ID: "not-a-uuid"}), &ve))
}

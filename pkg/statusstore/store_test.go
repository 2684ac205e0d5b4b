package statusstore_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offload/pkg/protocol"
	"offload/pkg/statusstore"
)

func newStore(t *testing.T) *statusstore.Store {
	t.Helper()
	s, err := statusstore.New(filepath.Join(t.TempDir(), "status"))
	require.NoError(t, err)
	return s
}

func queued(id string, pos int) protocol.StatusRecord {
	return protocol.StatusRecord{
		PackageID:     id,
		Status:        protocol.StatusQueued,
		QueuePosition: pos,
		Message:       "queued",
		TaskType:      protocol.TaskFunctionImplementation,
	}
}

func TestStore_PutGet(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Put(queued("a", 1)))

	got, err := s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusQueued, got.Status)
	assert.Equal(t, 1, got.QueuePosition)
	assert.False(t, got.CreatedAt.IsZero())
	assert.False(t, got.UpdatedAt.IsZero())

	created := got.CreatedAt
	rec := queued("a", 2)
	require.NoError(t, s.Put(rec))
	got, err = s.Get("a")
	require.NoError(t, err)
	assert.True(t, created.Equal(got.CreatedAt))
	assert.Equal(t, 2, got.QueuePosition)

	_, err = os.Stat(filepath.Join(s.Dir(), "a.json"))
	require.NoError(t, err)
}

func TestStore_GetMissing(t *testing.T) {
	s := newStore(t)
	_, err := s.Get("nope")
	var nf *protocol.PackageNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "nope", nf.PackageID)
}

func TestStore_RejectsUnsafeIDs(t *testing.T) {
	s := newStore(t)
	for _, id := range []string{"", "../x", "a/b", ".."} {
		require.Error(t, s.Put(queued(id, 1)), id)
	}
}

func TestStore_UpdateTransitions(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Put(queued("a", 3)))

	rec, err := s.Update("a", func(r *protocol.StatusRecord) { r.QueuePosition = 1 })
	require.NoError(t, err)
	assert.Equal(t, 1, rec.QueuePosition)

	rec, err = s.Update("a", func(r *protocol.StatusRecord) {
		r.Status = protocol.StatusProcessing
		r.Message = "generating"
	})
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusProcessing, rec.Status)
	assert.Zero(t, rec.QueuePosition)

	_, err = s.Update("a", func(r *protocol.StatusRecord) { r.Status = protocol.StatusQueued })
	var te *protocol.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, protocol.StatusProcessing, te.From)

	_, err = s.Update("a", func(r *protocol.StatusRecord) {
		r.Status = protocol.StatusCompleted
		r.ArtifactPath = "/tmp/x.py"
	})
	require.NoError(t, err)

	// Terminal records are absorbing.
	_, err = s.Update("a", func(r *protocol.StatusRecord) { r.Message = "changed" })
	require.ErrorAs(t, err, &te)
	got, err := s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusCompleted, got.Status)
	assert.Equal(t, "/tmp/x.py", got.ArtifactPath)
}

func TestStore_UpdateMissing(t *testing.T) {
	s := newStore(t)
	_, err := s.Update("missing", func(*protocol.StatusRecord) {})
	var nf *protocol.PackageNotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestStore_ListAndActive(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Put(queued("first", 0)))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, s.Put(queued("second", 1)))
	time.Sleep(5 * time.Millisecond)
	done := queued("third", 0)
	done.Status = protocol.StatusError
	done.Error = "boom"
	require.NoError(t, s.Put(done))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "garbage.json"), []byte("{"), 0o600))

	all, err := s.List()
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "first", all[0].PackageID)
	assert.Equal(t, "third", all[2].PackageID)

	active, err := s.Active()
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "second", active[1].PackageID)
}

func TestStore_ConcurrentReadersSeeWholeRecords(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Put(queued("a", 1)))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 2; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			_ = s.Put(queued("a", i))
		}
	}()

	for range 200 {
		rec, err := s.Get("a")
		require.NoError(t, err)
		assert.Equal(t, "a", rec.PackageID)
	}
	close(stop)
	wg.Wait()
}

func TestStore_Watch(t *testing.T) {
	s := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := s.Watch(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Put(queued("a", 1)))
	require.NoError(t, s.Put(queued("b", 2)))

	select {
	case _, ok := <-ch:
		assert.True(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification")
	}

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
}

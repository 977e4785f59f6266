package state

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMirrorQueueRunsInOrder(t *testing.T) {
	q := newMirrorQueue(context.Background())

	var (
		mu  sync.Mutex
		got []int
	)
	for i := 0; i < 50; i++ {
		i := i
		q.push("job", func(context.Context) error {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			if i%7 == 0 {
				return errors.New("ignored")
			}
			return nil
		})
	}
	q.wait()

	want := make([]int, 50)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, got)
}

func TestMirrorQueueWaitOnEmptyReturns(t *testing.T) {
	q := newMirrorQueue(context.Background())
	q.wait()
}

package taskrunner_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heremaps/here-data-sdk-go/pkg/olpclient"
	"github.com/heremaps/here-data-sdk-go/pkg/taskrunner"
)

func TestCancelAllAndWaitBlocksUntilCompletion(t *testing.T) {
	p := taskrunner.NewPendingRequests()
	cc := olpclient.NewCancellationContext()

	completed := make(chan struct{})
	p.Add(cc)
	go func() {
		<-completed
		p.Remove(cc)
	}()

	done := make(chan struct{})
	go func() {
		p.CancelAllAndWait()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("CancelAllAndWait returned before the task signalled completion")
	case <-time.After(20 * time.Millisecond):
	}

	close(completed)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("CancelAllAndWait never returned")
	}
	assert.True(t, cc.IsCancelled())
}

func TestCancelAllDoesNotWait(t *testing.T) {
	p := taskrunner.NewPendingRequests()
	cc := olpclient.NewCancellationContext()
	p.Add(cc)

	p.CancelAll()
	assert.True(t, cc.IsCancelled())
	require.Equal(t, 1, p.Len(), "CancelAll does not remove entries; completion does")
}

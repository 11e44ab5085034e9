package shardmgr

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dreamware/accesscoordinator/internal/identity"
)

func TestHealthProber_MarksUnhealthyAfterMaxFailures(t *testing.T) {
	var built []*fakeClient
	mgr, err := New(twoShardSet("http://a", "http://b"), fakeFactory(&built))
	require.NoError(t, err)
	builtFor(built, "http://a").pingErr = errors.New("connection refused")

	prober := NewHealthProber(mgr, zaptest.NewLogger(t), 5*time.Millisecond, 2)
	prober.Start(context.Background())
	defer prober.Stop()

	descA, _ := mgr.GetClient(identity.ElementUser, identity.OpEvent, identity.User("zzzzzzz"))
	_ = descA

	assert.Eventually(t, func() bool {
		return !prober.IsHealthy(identity.ElementUser, identity.OpEvent, 0)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHealthProber_StaysHealthyWhenPingsSucceed(t *testing.T) {
	var built []*fakeClient
	mgr, err := New(twoShardSet("http://a", "http://b"), fakeFactory(&built))
	require.NoError(t, err)

	prober := NewHealthProber(mgr, zaptest.NewLogger(t), 5*time.Millisecond, 2)
	prober.Start(context.Background())
	defer prober.Stop()

	time.Sleep(50 * time.Millisecond)
	assert.True(t, prober.IsHealthy(identity.ElementUser, identity.OpEvent, 0))
	assert.True(t, prober.IsHealthy(identity.ElementUser, identity.OpEvent, 1<<31))
}

func TestHealthProber_UnprobedShardReportsHealthy(t *testing.T) {
	var built []*fakeClient
	mgr, err := New(twoShardSet("http://a", "http://b"), fakeFactory(&built))
	require.NoError(t, err)

	prober := NewHealthProber(mgr, zaptest.NewLogger(t), time.Hour, 2)
	assert.True(t, prober.IsHealthy(identity.ElementUser, identity.OpEvent, 0))
}

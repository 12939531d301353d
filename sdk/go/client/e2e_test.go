package client

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/useframi1/CloudP2P/internal/core/cluster"
	"github.com/useframi1/CloudP2P/internal/core/config"
	"github.com/useframi1/CloudP2P/internal/core/metrics"
	"github.com/useframi1/CloudP2P/internal/core/observability/log"
	"github.com/useframi1/CloudP2P/internal/core/stego"
)

type fixedProbe struct {
	cpu float64
}

func (p fixedProbe) CPUPercent() float64             { return p.cpu }
func (p fixedProbe) MemoryAvailablePercent() float64 { return 100 }

// TestSubmitTask_AgainstRealCluster drives the full stack: a three-server
// cluster elects a coordinator, the client discovers it through the
// assignment broadcast, and the task round-trips through the real
// steganography transform with verification.
func TestSubmitTask_AgainstRealCluster(t *testing.T) {
	if testing.Short() {
		t.Skip("cluster bootstrap takes several seconds")
	}

	addrs := make([]string, 3)
	for i := range addrs {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addrs[i] = l.Addr().String()
		require.NoError(t, l.Close())
	}

	logger := log.New(log.LevelError)
	cpus := []float64{50, 36, 84}
	for i := range addrs {
		cfg := &config.ServerConfig{}
		cfg.Server.ID = uint32(i + 1)
		cfg.Server.Address = addrs[i]
		for j, addr := range addrs {
			if j != i {
				cfg.Peers = append(cfg.Peers, config.PeerInfo{ID: uint32(j + 1), Address: addr})
			}
		}
		cfg.Election = config.ElectionConfig{
			HeartbeatIntervalSecs: 1,
			ElectionTimeoutSecs:   1,
			FailureTimeoutSecs:    2,
			MonitorIntervalSecs:   1,
		}
		cfg.Executor.MaxConcurrentTransforms = 2

		srv := cluster.NewServer(cfg, logger, metrics.NewSensor(fixedProbe{cpu: cpus[i]}), stego.Embed)
		ctx, cancel := context.WithCancel(context.Background())
		t.Cleanup(cancel)
		go func() { _ = srv.Run(ctx) }()
	}

	clientCfg := &config.ClientConfig{}
	clientCfg.Client.Name = "Client1"
	clientCfg.Client.ServerAddresses = addrs
	clientCfg.Requests = config.RequestConfig{
		RatePerSecond:   1,
		DurationSeconds: 1,
		ParameterText:   "username:alice,views:5",
	}
	clientCfg.Failover = config.FailoverConfig{PollIntervalSecs: 1, SameServerPollLimit: 10}

	c := New(clientCfg, logger, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, c.SubmitTask(ctx, 1, clientCfg.Requests.ParameterText))

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Succeeded)

	// The coordinator is discoverable once elected.
	id, err := c.DiscoverLeader(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), id, "the least loaded server should coordinate")
}

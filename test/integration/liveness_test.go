package integration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Tyrowin/pairchat/internal/relay"
	"github.com/Tyrowin/pairchat/internal/server"
	"github.com/Tyrowin/pairchat/test/testhelpers"
)

const probeInterval = 150 * time.Millisecond

func withFastProbes(cfg *server.Config) {
	cfg.PingInterval = probeInterval
}

// TestUnresponsivePeerReclaimed verifies a peer that stops answering pings
// is dropped after two sweeps and its partner is told it left.
func TestUnresponsivePeerReclaimed(t *testing.T) {
	srv := testhelpers.StartServer(t, withFastProbes)
	alice := srv.Dial(t)
	bob := srv.Dial(t)

	testhelpers.JoinAndWait(t, alice, "pair", "Alice")
	testhelpers.JoinAndWait(t, bob, "pair", "Bob")

	// Bob never reads again, so pings to Bob go unanswered. Alice keeps
	// reading, which answers the pings sent to Alice.
	assert.Equal(t, "Bob joined the room", testhelpers.ReadFrame(t, alice)["text"])

	notice := testhelpers.ReadFrame(t, alice)
	assert.Equal(t, relay.TypeSystem, notice["type"])
	assert.Equal(t, "Bob left the room", notice["text"])

	testhelpers.Eventually(t, func() bool { return srv.Hub.ClientCount() == 1 },
		"unresponsive client should be unregistered")
}

// TestResponsivePeerSurvivesSweeps verifies a quiet client that answers
// pings outlives several sweeps.
func TestResponsivePeerSurvivesSweeps(t *testing.T) {
	srv := testhelpers.StartServer(t, withFastProbes)
	alice := srv.Dial(t)

	testhelpers.JoinAndWait(t, alice, "solo", "Alice")
	testhelpers.ExpectNoFrame(t, alice, 5*probeInterval)

	assert.Equal(t, 1, srv.Hub.ClientCount())
	assert.Equal(t, []string{"solo"}, srv.GetRooms(t, "active").Rooms)
}

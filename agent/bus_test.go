package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kbflow/kbflow/types"
)

func TestBusSendAndReceive(t *testing.T) {
	bus := NewBus(4, zap.NewNop())
	defer bus.Close()

	inbox, err := bus.Register("worker")
	require.NoError(t, err)

	msg := types.NewRequest("client", "worker", "ping", nil)
	require.NoError(t, bus.Send(msg))

	got := <-inbox
	assert.Equal(t, "ping", got.Action)
	assert.Equal(t, "client", got.Source)
}

func TestBusSendUnknownAgent(t *testing.T) {
	bus := NewBus(4, zap.NewNop())
	defer bus.Close()

	err := bus.Send(types.NewRequest("client", "ghost", "ping", nil))
	assert.Equal(t, types.ErrAgentNotFound, types.GetErrorCode(err))
}

func TestBusDuplicateRegistration(t *testing.T) {
	bus := NewBus(4, zap.NewNop())
	defer bus.Close()

	_, err := bus.Register("a")
	require.NoError(t, err)
	_, err = bus.Register("a")
	assert.Error(t, err)
}

func TestBusInboxFull(t *testing.T) {
	bus := NewBus(1, zap.NewNop())
	defer bus.Close()

	_, err := bus.Register("slow")
	require.NoError(t, err)

	require.NoError(t, bus.Send(types.NewRequest("c", "slow", "x", nil)))
	err = bus.Send(types.NewRequest("c", "slow", "x", nil))
	assert.Equal(t, types.ErrAgentBusy, types.GetErrorCode(err))
}

func TestBusRequestResponse(t *testing.T) {
	bus := NewBus(4, zap.NewNop())
	defer bus.Close()

	inbox, err := bus.Register("echo")
	require.NoError(t, err)

	go func() {
		msg := <-inbox
		bus.Send(msg.Response(map[string]any{"echo": msg.PayloadString("text")}))
	}()

	resp, err := bus.Request(context.Background(),
		types.NewRequest("client", "echo", "say", map[string]any{"text": "hi"}),
		time.Second)
	require.NoError(t, err)

	assert.Equal(t, types.MessageResponse, resp.Type)
	assert.Equal(t, "hi", resp.PayloadString("echo"))
}

func TestBusRequestTimeout(t *testing.T) {
	bus := NewBus(4, zap.NewNop())
	defer bus.Close()

	_, err := bus.Register("mute")
	require.NoError(t, err)

	_, err = bus.Request(context.Background(),
		types.NewRequest("client", "mute", "say", nil),
		20*time.Millisecond)
	assert.Equal(t, types.ErrResponseTimeout, types.GetErrorCode(err))
}

func TestBusResponseCorrelation(t *testing.T) {
	bus := NewBus(4, zap.NewNop())
	defer bus.Close()

	inbox, err := bus.Register("worker")
	require.NoError(t, err)

	req := types.NewRequest("client", "worker", "work", nil)

	go func() {
		msg := <-inbox
		resp := msg.Response(map[string]any{"ok": true})
		bus.Send(resp)
	}()

	resp, err := bus.Request(context.Background(), req, time.Second)
	require.NoError(t, err)
	assert.Equal(t, req.ID, resp.ParentID)
}

func TestBusBroadcast(t *testing.T) {
	bus := NewBus(4, zap.NewNop())
	defer bus.Close()

	a, _ := bus.Register("a")
	b, _ := bus.Register("b")
	sender, _ := bus.Register("sender")

	bus.Broadcast(types.NewBroadcast("sender", "announce", nil))

	assert.Len(t, a, 1)
	assert.Len(t, b, 1)
	assert.Len(t, sender, 0, "sender must not receive its own broadcast")
}

func TestBusClosed(t *testing.T) {
	bus := NewBus(4, zap.NewNop())
	bus.Close()

	assert.Error(t, bus.Send(types.NewRequest("a", "b", "x", nil)))
	_, err := bus.Register("late")
	assert.Error(t, err)
}

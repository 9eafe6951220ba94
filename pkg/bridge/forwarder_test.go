package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veiloq/wallet-bridge/pkg/jsonrpc"
	"github.com/veiloq/wallet-bridge/pkg/logging"
	"github.com/veiloq/wallet-bridge/pkg/provider"
)

type capturingSink struct {
	messages []*jsonrpc.Message
	err      error
}

func (s *capturingSink) send(msg *jsonrpc.Message) error {
	if s.err != nil {
		return s.err
	}
	s.messages = append(s.messages, msg)
	return nil
}

func TestAttachRegistersForwardedEvents(t *testing.T) {
	sink := &capturingSink{}
	f := NewEventForwarder(sink.send, logging.NewLogger())
	mock := provider.NewMockProvider()

	f.Attach(mock)
	for _, event := range provider.ForwardedEvents {
		assert.Equal(t, 1, mock.ListenerCount(event), "event %s", event)
	}
}

func TestRepeatedAttachDoesNotAccumulateListeners(t *testing.T) {
	sink := &capturingSink{}
	f := NewEventForwarder(sink.send, logging.NewLogger())
	mock := provider.NewMockProvider()

	f.Attach(mock)
	f.Attach(mock)
	f.Attach(mock)
	for _, event := range provider.ForwardedEvents {
		assert.Equal(t, 1, mock.ListenerCount(event), "event %s", event)
	}

	// One emission produces one notification, not three.
	mock.Emit(provider.EventChainChanged, "0x1")
	assert.Len(t, sink.messages, 1)
}

func TestDetachRemovesExactlyAttachedListeners(t *testing.T) {
	sink := &capturingSink{}
	f := NewEventForwarder(sink.send, logging.NewLogger())
	mock := provider.NewMockProvider()

	// An unrelated listener on the same event must survive the detach.
	external := provider.NewListener(func(...interface{}) {})
	mock.On(provider.EventAccountsChanged, external)

	f.Attach(mock)
	f.Detach(mock)

	assert.Equal(t, 1, mock.ListenerCount(provider.EventAccountsChanged))
	for _, event := range provider.ForwardedEvents[1:] {
		assert.Zero(t, mock.ListenerCount(event), "event %s", event)
	}

	mock.Emit(provider.EventAccountsChanged, []string{"0xabc"})
	assert.Empty(t, sink.messages)
}

func TestDetachOfUnattachedProviderIsNoop(t *testing.T) {
	f := NewEventForwarder((&capturingSink{}).send, logging.NewLogger())
	attached := provider.NewMockProvider()
	other := provider.NewMockProvider()

	f.Attach(attached)
	f.Detach(other)

	assert.Equal(t, provider.Provider(attached), f.Attached())
	assert.Equal(t, 1, attached.ListenerCount(provider.EventConnect))
}

func TestAttachSwitchesProviders(t *testing.T) {
	sink := &capturingSink{}
	f := NewEventForwarder(sink.send, logging.NewLogger())
	first := provider.NewMockProvider()
	second := provider.NewMockProvider()

	f.Attach(first)
	f.Attach(second)

	for _, event := range provider.ForwardedEvents {
		assert.Zero(t, first.ListenerCount(event), "old provider event %s", event)
		assert.Equal(t, 1, second.ListenerCount(event), "new provider event %s", event)
	}

	// Events from the dropped provider no longer forward.
	first.Emit(provider.EventChainChanged, "0x1")
	assert.Empty(t, sink.messages)
	second.Emit(provider.EventChainChanged, "0x5")
	assert.Len(t, sink.messages, 1)
}

func TestSingleArgumentEventForwardsUnwrapped(t *testing.T) {
	sink := &capturingSink{}
	f := NewEventForwarder(sink.send, logging.NewLogger())
	mock := provider.NewMockProvider()
	f.Attach(mock)

	mock.Emit(provider.EventChainChanged, "0x1")

	require.Len(t, sink.messages, 1)
	msg := sink.messages[0]
	assert.Equal(t, jsonrpc.NotifyWalletEvent, msg.Type)
	assert.Equal(t, provider.EventChainChanged, msg.EventName)
	assert.Equal(t, "0x1", msg.EventData)
}

func TestMultiArgumentEventForwardsFullList(t *testing.T) {
	sink := &capturingSink{}
	f := NewEventForwarder(sink.send, logging.NewLogger())
	mock := provider.NewMockProvider()
	f.Attach(mock)

	mock.Emit(provider.EventConnect, "0x1", "extra")

	require.Len(t, sink.messages, 1)
	assert.Equal(t, []interface{}{"0x1", "extra"}, sink.messages[0].EventData)
}

func TestZeroArgumentEventForwardsEmptyList(t *testing.T) {
	sink := &capturingSink{}
	f := NewEventForwarder(sink.send, logging.NewLogger())
	mock := provider.NewMockProvider()
	f.Attach(mock)

	mock.Emit(provider.EventDisconnect)

	require.Len(t, sink.messages, 1)
	assert.Equal(t, []interface{}(nil), sink.messages[0].EventData)
}

func TestSinkFailureDoesNotPanic(t *testing.T) {
	sink := &capturingSink{err: assert.AnError}
	f := NewEventForwarder(sink.send, logging.NewLogger())
	mock := provider.NewMockProvider()
	f.Attach(mock)

	assert.NotPanics(t, func() {
		mock.Emit(provider.EventChainChanged, "0x1")
	})
}

func TestDetachAll(t *testing.T) {
	f := NewEventForwarder((&capturingSink{}).send, logging.NewLogger())
	mock := provider.NewMockProvider()

	f.Attach(mock)
	f.DetachAll()

	assert.Nil(t, f.Attached())
	for _, event := range provider.ForwardedEvents {
		assert.Zero(t, mock.ListenerCount(event))
	}
}

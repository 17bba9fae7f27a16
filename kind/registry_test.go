package kind

import (
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/tickwire/limits"
	"github.com/opd-ai/tickwire/packet"
)

type echo struct {
	Data []byte
}

func (echo) KindID() string { return "echo" }

type position struct {
	X, Y float64
}

func (position) KindID() string { return "position" }

var source = &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9001}

func TestRegisterKindDecodeAndProcess(t *testing.T) {
	registry := NewRegistry()

	var got echo
	require.NoError(t, RegisterKind(registry, func(e echo, from net.Addr, g packet.Guarantee) error {
		got = e
		assert.Equal(t, source, from)
		assert.Equal(t, packet.ReliableOrdered, g)
		return nil
	}))

	payload, err := packet.PayloadFrom(echo{Data: []byte{1, 2, 3}})
	require.NoError(t, err)

	value, err := registry.Decode(payload)
	require.NoError(t, err)

	reg, ok := registry.Resolve("echo")
	require.True(t, ok)
	require.NoError(t, reg.Process(value, source, packet.ReliableOrdered))
	assert.Equal(t, []byte{1, 2, 3}, got.Data)
}

func TestDuplicateRegistrationKeepsFirst(t *testing.T) {
	registry := NewRegistry()

	var calls []string
	require.NoError(t, RegisterKind(registry, func(echo, net.Addr, packet.Guarantee) error {
		calls = append(calls, "first")
		return nil
	}))

	err := RegisterKind(registry, func(echo, net.Addr, packet.Guarantee) error {
		calls = append(calls, "second")
		return nil
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateKind))
	assert.Equal(t, 1, registry.Len())

	reg, ok := registry.Resolve("echo")
	require.True(t, ok)
	require.NoError(t, reg.Process(echo{}, source, packet.UnreliableUnordered))
	assert.Equal(t, []string{"first"}, calls)
}

func TestDecodeUnregisteredKind(t *testing.T) {
	registry := NewRegistry()

	_, err := registry.Decode(packet.NewPayload("missing", []byte{0x01}))
	assert.ErrorIs(t, err, ErrUnregisteredKind)
	assert.Contains(t, err.Error(), `"missing"`)

	_, ok := registry.Resolve("missing")
	assert.False(t, ok)
}

func TestDecodeFailureIsWrapped(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, RegisterKind(registry, func(position, net.Addr, packet.Guarantee) error { return nil }))

	// a CBOR text string cannot decode into a struct
	data, err := packet.Marshal("not a position")
	require.NoError(t, err)

	_, err = registry.Decode(packet.NewPayload("position", data))
	assert.ErrorIs(t, err, ErrDecode)
}

func TestRegisterValidation(t *testing.T) {
	registry := NewRegistry()
	noop := Registration{
		Decode:  func([]byte) (any, error) { return nil, nil },
		Process: func(any, net.Addr, packet.Guarantee) error { return nil },
	}

	assert.ErrorIs(t, registry.Register("", noop), limits.ErrKindIDEmpty)
	assert.ErrorIs(t, registry.Register("half", Registration{Decode: noop.Decode}), ErrInvalidRegistration)
	assert.ErrorIs(t, RegisterKind[echo](registry, nil), ErrInvalidRegistration)
	assert.Equal(t, 0, registry.Len())
}

func TestFreeze(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, RegisterKind(registry, func(echo, net.Addr, packet.Guarantee) error { return nil }))

	registry.Freeze()
	assert.True(t, registry.Frozen())

	err := RegisterKind(registry, func(position, net.Addr, packet.Guarantee) error { return nil })
	assert.ErrorIs(t, err, ErrRegistryFrozen)

	_, ok := registry.Resolve("echo")
	assert.True(t, ok, "frozen registry still resolves")
}

func TestKindIDsSorted(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, RegisterKind(registry, func(position, net.Addr, packet.Guarantee) error { return nil }))
	require.NoError(t, RegisterKind(registry, func(echo, net.Addr, packet.Guarantee) error { return nil }))

	assert.Equal(t, []string{"echo", "position"}, registry.KindIDs())
}

func TestConcurrentResolve(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, RegisterKind(registry, func(echo, net.Addr, packet.Guarantee) error { return nil }))
	registry.Freeze()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				_, ok := registry.Resolve("echo")
				assert.True(t, ok)
			}
		}()
	}
	wg.Wait()
}

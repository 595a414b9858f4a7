package hkvac

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func vacuumAccessoryContext() accessoryContext {
	return accessoryContext{
		identifier: DeriveIdentifier(5),
		name:       defaultAccessoryName,
		localId:    2,
		aid:        5,
		on:         &CharacteristicAddress{Aid: 5, Iid: 8},
		battery:    &CharacteristicAddress{Aid: 5, Iid: 9},
	}
}

func TestProxyWrite(t *testing.T) {
	t.Run("write updates the cache optimistically and issues one remote set", func(t *testing.T) {
		client := &mockRemoteClient{}
		defer client.AssertExpectations(t)

		client.On("SetCharacteristics", mock.Anything, map[string]interface{}{"5.8": true}).Return(nil).Once()

		p := newProxy(client, vacuumAccessoryContext(), testLogger())

		p.Write(context.Background(), true)
		assert.True(t, p.ReadOn())
	})

	t.Run("write with no client still updates the cache", func(t *testing.T) {
		p := newProxy(nil, vacuumAccessoryContext(), testLogger())

		p.Write(context.Background(), true)
		assert.True(t, p.ReadOn())
	})

	t.Run("write with no resolved address still updates the cache", func(t *testing.T) {
		client := &mockRemoteClient{}
		defer client.AssertExpectations(t)

		c := vacuumAccessoryContext()
		c.on = nil

		p := newProxy(client, c, testLogger())

		p.Write(context.Background(), true)
		assert.True(t, p.ReadOn())
	})

	t.Run("failed remote set does not roll back the cache", func(t *testing.T) {
		client := &mockRemoteClient{}
		defer client.AssertExpectations(t)

		client.On("SetCharacteristics", mock.Anything, map[string]interface{}{"5.8": true}).Return(errors.New("unreachable")).Once()

		p := newProxy(client, vacuumAccessoryContext(), testLogger())

		p.Write(context.Background(), true)
		assert.True(t, p.ReadOn())
	})
}

func TestProxyReadOn(t *testing.T) {
	t.Run("defaults to off and never queries the remote side", func(t *testing.T) {
		client := &mockRemoteClient{}
		defer client.AssertExpectations(t)

		p := newProxy(client, vacuumAccessoryContext(), testLogger())

		assert.False(t, p.ReadOn())
	})
}

func TestProxyReadBattery(t *testing.T) {
	t.Run("successful read returns the remote level and caches it", func(t *testing.T) {
		client := &mockRemoteClient{}
		defer client.AssertExpectations(t)

		client.On("GetCharacteristics", mock.Anything, []string{"5.9"}).
			Return([]CharacteristicValue{{Address: CharacteristicAddress{Aid: 5, Iid: 9}, Value: float64(42)}}, nil).Once()

		p := newProxy(client, vacuumAccessoryContext(), testLogger())

		assert.Equal(t, 42, p.ReadBattery(context.Background()))
		assert.Equal(t, 42, p.cachedBatteryLevel())
	})

	t.Run("defaults to the full level before any successful read", func(t *testing.T) {
		p := newProxy(nil, vacuumAccessoryContext(), testLogger())
		assert.Equal(t, DefaultBatteryLevel, p.ReadBattery(context.Background()))
	})

	t.Run("failed read returns the last known good level", func(t *testing.T) {
		client := &mockRemoteClient{}
		defer client.AssertExpectations(t)

		client.On("GetCharacteristics", mock.Anything, []string{"5.9"}).
			Return([]CharacteristicValue{{Address: CharacteristicAddress{Aid: 5, Iid: 9}, Value: float64(42)}}, nil).Once()
		client.On("GetCharacteristics", mock.Anything, []string{"5.9"}).
			Return([]CharacteristicValue(nil), errors.New("unreachable")).Once()

		p := newProxy(client, vacuumAccessoryContext(), testLogger())

		assert.Equal(t, 42, p.ReadBattery(context.Background()))
		assert.Equal(t, 42, p.ReadBattery(context.Background()))
	})

	t.Run("empty response leaves the cache untouched", func(t *testing.T) {
		client := &mockRemoteClient{}
		defer client.AssertExpectations(t)

		client.On("GetCharacteristics", mock.Anything, []string{"5.9"}).
			Return([]CharacteristicValue{}, nil).Once()

		p := newProxy(client, vacuumAccessoryContext(), testLogger())

		assert.Equal(t, DefaultBatteryLevel, p.ReadBattery(context.Background()))
	})

	t.Run("non numeric response leaves the cache untouched", func(t *testing.T) {
		client := &mockRemoteClient{}
		defer client.AssertExpectations(t)

		client.On("GetCharacteristics", mock.Anything, []string{"5.9"}).
			Return([]CharacteristicValue{{Address: CharacteristicAddress{Aid: 5, Iid: 9}, Value: "charging"}}, nil).Once()

		p := newProxy(client, vacuumAccessoryContext(), testLogger())

		assert.Equal(t, DefaultBatteryLevel, p.ReadBattery(context.Background()))
	})

	t.Run("missing battery address degrades to the cached level", func(t *testing.T) {
		client := &mockRemoteClient{}
		defer client.AssertExpectations(t)

		c := vacuumAccessoryContext()
		c.battery = nil

		p := newProxy(client, c, testLogger())

		assert.Equal(t, DefaultBatteryLevel, p.ReadBattery(context.Background()))
	})
}

func TestCoerceBatteryLevel(t *testing.T) {
	t.Run("accepts the numeric forms a decoded json value can take", func(t *testing.T) {
		for _, v := range []interface{}{float64(42), float32(42), int(42), int64(42), uint64(42), json.Number("42")} {
			level, ok := coerceBatteryLevel(v)
			assert.True(t, ok)
			assert.Equal(t, 42, level)
		}
	})

	t.Run("rejects non numeric values", func(t *testing.T) {
		for _, v := range []interface{}{"42", true, nil, []interface{}{42}} {
			_, ok := coerceBatteryLevel(v)
			assert.False(t, ok)
		}
	})
}

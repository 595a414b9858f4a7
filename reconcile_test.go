package hkvac

import (
	"context"
	"testing"

	"github.com/shimmeringbee/callbacks"
	"github.com/shimmeringbee/persistence/impl/memory"
	"github.com/stretchr/testify/assert"
)

func TestDeriveIdentifier(t *testing.T) {
	t.Run("same aid always derives the same identifier", func(t *testing.T) {
		assert.Equal(t, DeriveIdentifier(5), DeriveIdentifier(5))
	})

	t.Run("different aids derive different identifiers", func(t *testing.T) {
		assert.NotEqual(t, DeriveIdentifier(5), DeriveIdentifier(6))
	})
}

func vacuumMatch() *Match {
	return &Match{
		Aid: 5,
		Characteristics: map[string]uint64{
			CharacteristicTypeOn:           8,
			CharacteristicTypeBatteryLevel: 9,
		},
	}
}

type eventCapture struct {
	added   []AccessoryAdded
	removed []AccessoryRemoved
}

func captureEvents(cb callbacks.AdderCaller) *eventCapture {
	c := &eventCapture{}

	cb.Add(func(ctx context.Context, e AccessoryAdded) error {
		c.added = append(c.added, e)
		return nil
	})
	cb.Add(func(ctx context.Context, e AccessoryRemoved) error {
		c.removed = append(c.removed, e)
		return nil
	})

	return c
}

func TestReconcile(t *testing.T) {
	t.Run("first match creates a persisted accessory with the first local id", func(t *testing.T) {
		section := memory.New()
		cb := callbacks.Create()
		events := captureEvents(cb)

		r := &reconciler{section: section, callbacks: cb, logger: testLogger()}

		contexts := r.reconcile(context.Background(), vacuumMatch())

		assert.Len(t, contexts, 1)
		assert.Equal(t, DeriveIdentifier(5), contexts[0].identifier)
		assert.Equal(t, defaultAccessoryName, contexts[0].name)
		assert.Equal(t, uint64(firstLocalAccessoryId), contexts[0].localId)
		assert.Equal(t, uint64(5), contexts[0].aid)
		assert.Equal(t, "5.8", contexts[0].on.String())
		assert.Equal(t, "5.9", contexts[0].battery.String())

		assert.Equal(t, []AccessoryAdded{{Identifier: DeriveIdentifier(5), Aid: 5}}, events.added)
		assert.Empty(t, events.removed)
	})

	t.Run("reconciling twice with the same match is idempotent", func(t *testing.T) {
		section := memory.New()
		cb := callbacks.Create()
		events := captureEvents(cb)

		r := &reconciler{section: section, callbacks: cb, logger: testLogger()}

		first := r.reconcile(context.Background(), vacuumMatch())
		second := r.reconcile(context.Background(), vacuumMatch())

		assert.Equal(t, first, second)
		assert.Len(t, second, 1)
		assert.Len(t, events.added, 1)
		assert.Empty(t, events.removed)
	})

	t.Run("renumbered iids are updated in place without a new registration", func(t *testing.T) {
		section := memory.New()
		cb := callbacks.Create()
		events := captureEvents(cb)

		r := &reconciler{section: section, callbacks: cb, logger: testLogger()}

		r.reconcile(context.Background(), vacuumMatch())

		shifted := vacuumMatch()
		shifted.Characteristics[CharacteristicTypeOn] = 18
		shifted.Characteristics[CharacteristicTypeBatteryLevel] = 19

		contexts := r.reconcile(context.Background(), shifted)

		assert.Len(t, contexts, 1)
		assert.Equal(t, uint64(firstLocalAccessoryId), contexts[0].localId)
		assert.Equal(t, "5.18", contexts[0].on.String())
		assert.Equal(t, "5.19", contexts[0].battery.String())
		assert.Len(t, events.added, 1)
	})

	t.Run("partial match stores no address for the missing characteristic", func(t *testing.T) {
		section := memory.New()
		cb := callbacks.Create()
		captureEvents(cb)

		r := &reconciler{section: section, callbacks: cb, logger: testLogger()}

		m := vacuumMatch()
		delete(m.Characteristics, CharacteristicTypeBatteryLevel)

		contexts := r.reconcile(context.Background(), m)

		assert.Len(t, contexts, 1)
		assert.Equal(t, "5.8", contexts[0].on.String())
		assert.Nil(t, contexts[0].battery)
	})

	t.Run("characteristic that disappears on a later pass has its stored address removed", func(t *testing.T) {
		section := memory.New()
		cb := callbacks.Create()
		captureEvents(cb)

		r := &reconciler{section: section, callbacks: cb, logger: testLogger()}

		r.reconcile(context.Background(), vacuumMatch())

		m := vacuumMatch()
		delete(m.Characteristics, CharacteristicTypeBatteryLevel)

		contexts := r.reconcile(context.Background(), m)

		assert.Len(t, contexts, 1)
		assert.Nil(t, contexts[0].battery)
	})

	t.Run("accessory with no remote counterpart is retired exactly once", func(t *testing.T) {
		section := memory.New()
		cb := callbacks.Create()
		events := captureEvents(cb)

		r := &reconciler{section: section, callbacks: cb, logger: testLogger()}

		r.reconcile(context.Background(), vacuumMatch())

		contexts := r.reconcile(context.Background(), nil)
		assert.Empty(t, contexts)

		contexts = r.reconcile(context.Background(), nil)
		assert.Empty(t, contexts)

		assert.Equal(t, []AccessoryRemoved{{Identifier: DeriveIdentifier(5)}}, events.removed)
	})

	t.Run("a remote accessory replacing a retired one is registered under its own identifier", func(t *testing.T) {
		section := memory.New()
		cb := callbacks.Create()
		captureEvents(cb)

		r := &reconciler{section: section, callbacks: cb, logger: testLogger()}

		r.reconcile(context.Background(), vacuumMatch())
		r.reconcile(context.Background(), nil)

		replacement := vacuumMatch()
		replacement.Aid = 6

		contexts := r.reconcile(context.Background(), replacement)

		assert.Len(t, contexts, 1)
		assert.Equal(t, DeriveIdentifier(6), contexts[0].identifier)
		assert.Equal(t, uint64(firstLocalAccessoryId), contexts[0].localId)
	})
}

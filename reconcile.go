package hkvac

import (
	"context"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"github.com/shimmeringbee/callbacks"
	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/persistence"
)

const (
	accessorySectionKey = "Accessory"

	remoteAidKey  = "RemoteAid"
	onIidKey      = "OnIid"
	batteryIidKey = "BatteryIid"
	localIdKey    = "LocalId"
	nameKey       = "Name"
)

// The hub side bridge accessory always takes id 1, bridged accessories are
// allocated ids from here on up, once, and keep them across restarts.
const firstLocalAccessoryId = 2

const defaultAccessoryName = "Vacuum"

// DeriveIdentifier computes the stable identifier a remote accessory is
// persisted under, from the string form of its aid. The same aid always
// yields the same identifier across restarts.
func DeriveIdentifier(aid uint64) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(strconv.FormatUint(aid, 10))).String()
}

// accessoryContext is the persisted record of one bridged accessory. The on
// and battery addresses are nil when the corresponding characteristic was
// not captured during matching; the proxy then runs that operation in
// degraded mode until a later pass resolves it.
type accessoryContext struct {
	identifier string
	name       string
	localId    uint64

	aid     uint64
	on      *CharacteristicAddress
	battery *CharacteristicAddress
}

type reconciler struct {
	section   persistence.Section
	callbacks callbacks.Caller
	logger    logwrap.Logger
}

// reconcile is the sole writer of the persisted registry's membership. It
// reuses, creates or retires contexts against the match produced by this
// cycle, and returns the surviving contexts in stable local id order. A nil
// match retires everything.
func (r *reconciler) reconcile(ctx context.Context, m *Match) []accessoryContext {
	section := r.section.Section(accessorySectionKey)
	seen := map[string]bool{}

	if m != nil {
		id := DeriveIdentifier(m.Aid)
		seen[id] = true

		existed := section.SectionExists(id)
		s := section.Section(id)

		s.Set(remoteAidKey, int(m.Aid))
		r.storeAddress(ctx, s, onIidKey, CharacteristicTypeOn, m)
		r.storeAddress(ctx, s, batteryIidKey, CharacteristicTypeBatteryLevel, m)

		if !existed {
			s.Set(localIdKey, r.nextLocalId(section))
			s.Set(nameKey, defaultAccessoryName)

			r.logger.LogInfo(ctx, "Created local accessory for remote match.", logwrap.Datum("identifier", id), logwrap.Datum("aid", m.Aid))
			r.callbacks.Call(ctx, AccessoryAdded{Identifier: id, Aid: m.Aid})
		} else {
			r.logger.LogInfo(ctx, "Refreshed local accessory from remote match.", logwrap.Datum("identifier", id), logwrap.Datum("aid", m.Aid))
		}
	}

	for _, id := range section.SectionKeys() {
		if seen[id] {
			continue
		}

		section.SectionDelete(id)

		r.logger.LogInfo(ctx, "Retired local accessory, no remote counterpart this cycle.", logwrap.Datum("identifier", id))
		r.callbacks.Call(ctx, AccessoryRemoved{Identifier: id})
	}

	var contexts []accessoryContext

	for _, id := range section.SectionKeys() {
		contexts = append(contexts, loadAccessoryContext(section.Section(id), id))
	}

	sort.Slice(contexts, func(i, j int) bool {
		return contexts[i].localId < contexts[j].localId
	})

	return contexts
}

// storeAddress overwrites the stored iid for a captured characteristic, or
// removes it when this cycle's match did not resolve it. Addresses may shift
// between passes if the remote bridge renumbers iids.
func (r *reconciler) storeAddress(ctx context.Context, s persistence.Section, key string, code string, m *Match) {
	if iid, found := m.Characteristics[code]; found {
		s.Set(key, int(iid))
		return
	}

	s.Delete(key)
	r.logger.LogWarn(ctx, "Matched accessory is missing a required characteristic, operations on it will degrade to cached state.", logwrap.Datum("characteristic", code), logwrap.Datum("aid", m.Aid))
}

func (r *reconciler) nextLocalId(section persistence.Section) int {
	next := firstLocalAccessoryId

	for _, id := range section.SectionKeys() {
		if localId, found := section.Section(id).Int(localIdKey); found && int(localId) >= next {
			next = int(localId) + 1
		}
	}

	return next
}

func loadAccessoryContext(s persistence.Section, id string) accessoryContext {
	c := accessoryContext{identifier: id, name: defaultAccessoryName}

	if name, found := s.String(nameKey); found {
		c.name = name
	}

	if localId, found := s.Int(localIdKey); found {
		c.localId = uint64(localId)
	}

	if aid, found := s.Int(remoteAidKey); found {
		c.aid = uint64(aid)
	}

	if iid, found := s.Int(onIidKey); found {
		c.on = &CharacteristicAddress{Aid: c.aid, Iid: uint64(iid)}
	}

	if iid, found := s.Int(batteryIidKey); found {
		c.battery = &CharacteristicAddress{Aid: c.aid, Iid: uint64(iid)}
	}

	return c
}

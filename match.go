package hkvac

import (
	"fmt"

	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
)

// Well known HomeKit type short codes used by the vacuum signature.
const (
	ServiceTypeSwitch         = "49"
	ServiceTypeBatteryService = "96"

	CharacteristicTypeOn           = "25"
	CharacteristicTypeBatteryLevel = "68"
)

// Signature describes the structural shape an accessory must have to be
// selected: every key is a required service type short code, and the value
// lists the characteristic type short codes whose instance ids should be
// captured from matching services.
type Signature struct {
	Services map[string][]string
}

// VacuumSignature matches the single accessory class this bridge targets: a
// switch style actuator with battery reporting.
func VacuumSignature() Signature {
	return Signature{
		Services: map[string][]string{
			ServiceTypeSwitch:         {CharacteristicTypeOn},
			ServiceTypeBatteryService: {CharacteristicTypeBatteryLevel},
		},
	}
}

// Match is the outcome of a successful signature search. Characteristics
// maps a requested characteristic short code to its iid; a code the matched
// accessory did not carry is simply absent, the caller decides whether to
// proceed degraded.
type Match struct {
	Aid             uint64
	Characteristics map[string]uint64
}

func (m Match) Address(code string) *CharacteristicAddress {
	iid, found := m.Characteristics[code]
	if !found {
		return nil
	}

	return &CharacteristicAddress{Aid: m.Aid, Iid: iid}
}

// MatchEnv is the environment an optional match filter expression is
// evaluated against, once per candidate accessory.
type MatchEnv struct {
	Aid      uint64
	Services []string
}

func CompileMatchFilter(src string) (*vm.Program, error) {
	p, err := expr.Compile(src, expr.Env(MatchEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("match filter compilation: %w", err)
	}

	return p, nil
}

// FindMatch walks the accessory graph in encounter order and selects the
// first accessory whose services cover every required code, first match
// wins. Within the selected accessory, each requested characteristic code
// captures the iid of the last characteristic matching it in service
// iteration order.
func FindMatch(graph []Accessory, sig Signature, filter *vm.Program) (Match, bool) {
	for _, acc := range graph {
		if filter != nil && !accessoryPassesFilter(acc, filter) {
			continue
		}

		if !servicesCover(acc, sig) {
			continue
		}

		return capture(acc, sig), true
	}

	return Match{}, false
}

func accessoryPassesFilter(acc Accessory, filter *vm.Program) bool {
	out, err := expr.Run(filter, MatchEnv{Aid: acc.Aid, Services: acc.serviceTypeCodes()})
	if err != nil {
		return false
	}

	pass, ok := out.(bool)
	return ok && pass
}

func servicesCover(acc Accessory, sig Signature) bool {
	for code := range sig.Services {
		if !hasServiceWithShortCode(acc, code) {
			return false
		}
	}

	return true
}

func hasServiceWithShortCode(acc Accessory, code string) bool {
	for _, s := range acc.Services {
		if typeHasShortCode(s.Type, code) {
			return true
		}
	}

	return false
}

func capture(acc Accessory, sig Signature) Match {
	m := Match{Aid: acc.Aid, Characteristics: map[string]uint64{}}

	for serviceCode, characteristicCodes := range sig.Services {
		for _, s := range acc.Services {
			if !typeHasShortCode(s.Type, serviceCode) {
				continue
			}

			for _, c := range s.Characteristics {
				for _, code := range characteristicCodes {
					if typeHasShortCode(c.Type, code) {
						m.Characteristics[code] = c.Iid
					}
				}
			}
		}
	}

	return m
}

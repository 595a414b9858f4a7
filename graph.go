package hkvac

import (
	"fmt"
	"strconv"
	"strings"
)

// Accessory, Service and Characteristic mirror the JSON body returned by a
// HomeKit bridge's /accessories endpoint. A snapshot is immutable once
// fetched; a fresh snapshot replaces it wholesale on the next connect.
type Accessory struct {
	Aid      uint64    `json:"aid"`
	Services []Service `json:"services"`
}

type Service struct {
	Iid             uint64           `json:"iid"`
	Type            string           `json:"type"`
	Characteristics []Characteristic `json:"characteristics"`
}

type Characteristic struct {
	Iid   uint64      `json:"iid"`
	Type  string      `json:"type"`
	Value interface{} `json:"value,omitempty"`
}

// CharacteristicAddress is the two level aid/iid addressing scheme used by
// the remote bridge protocol. String produces the "<aid>.<iid>" token the
// remote client's batch get/set operations require.
type CharacteristicAddress struct {
	Aid uint64
	Iid uint64
}

func (a CharacteristicAddress) String() string {
	return fmt.Sprintf("%d.%d", a.Aid, a.Iid)
}

func ParseCharacteristicAddress(s string) (CharacteristicAddress, error) {
	aidRaw, iidRaw, found := strings.Cut(s, ".")
	if !found {
		return CharacteristicAddress{}, fmt.Errorf("characteristic address missing separator: %s", s)
	}

	aid, err := strconv.ParseUint(aidRaw, 10, 64)
	if err != nil {
		return CharacteristicAddress{}, fmt.Errorf("characteristic address aid: %w", err)
	}

	iid, err := strconv.ParseUint(iidRaw, 10, 64)
	if err != nil {
		return CharacteristicAddress{}, fmt.Errorf("characteristic address iid: %w", err)
	}

	return CharacteristicAddress{Aid: aid, Iid: iid}, nil
}

// CharacteristicValue is one entry of a batch read, aligned with the
// requested address order.
type CharacteristicValue struct {
	Address CharacteristicAddress
	Value   interface{}
}

// Service and characteristic type UUIDs arrive in whatever form the remote
// bridge emits, from the two digit short form up to the full UUID. Category
// membership is decided by case insensitive suffix against the short code.
func typeHasShortCode(t string, code string) bool {
	return strings.HasSuffix(strings.ToUpper(t), strings.ToUpper(code))
}

func (a Accessory) serviceTypeCodes() []string {
	var codes []string

	for _, s := range a.Services {
		codes = append(codes, strings.ToUpper(s.Type))
	}

	return codes
}

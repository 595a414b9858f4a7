package hkvac

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type mockRemoteClient struct {
	mock.Mock
}

func (m *mockRemoteClient) GetAccessories(ctx context.Context) ([]Accessory, error) {
	args := m.Called(ctx)
	return args.Get(0).([]Accessory), args.Error(1)
}

func (m *mockRemoteClient) GetCharacteristics(ctx context.Context, addresses []string) ([]CharacteristicValue, error) {
	args := m.Called(ctx, addresses)
	return args.Get(0).([]CharacteristicValue), args.Error(1)
}

func (m *mockRemoteClient) SetCharacteristics(ctx context.Context, values map[string]interface{}) error {
	args := m.Called(ctx, values)
	return args.Error(0)
}

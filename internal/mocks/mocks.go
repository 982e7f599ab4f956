// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/relist-cli/api/schemas"
	"github.com/xkilldash9x/relist-cli/internal/config"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

var _ config.Interface = (*MockConfig)(nil)

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Browser() config.BrowserConfig {
	args := m.Called()
	return args.Get(0).(config.BrowserConfig)
}

func (m *MockConfig) Run() config.RunSettings {
	args := m.Called()
	return args.Get(0).(config.RunSettings)
}

func (m *MockConfig) Store() config.StoreConfig {
	args := m.Called()
	return args.Get(0).(config.StoreConfig)
}

func (m *MockConfig) Metrics() config.MetricsConfig {
	args := m.Called()
	return args.Get(0).(config.MetricsConfig)
}

func (m *MockConfig) RunConfig() schemas.RunConfig {
	args := m.Called()
	return args.Get(0).(schemas.RunConfig)
}

// -- Key-Value Store Mock --

// MockKeyValueStore mocks schemas.KeyValueStore.
type MockKeyValueStore struct {
	mock.Mock
}

var _ schemas.KeyValueStore = (*MockKeyValueStore)(nil)

func (m *MockKeyValueStore) GetValue(ctx context.Context, key string) ([]byte, bool, error) {
	args := m.Called(ctx, key)
	var value []byte
	if v := args.Get(0); v != nil {
		value = v.([]byte)
	}
	return value, args.Bool(1), args.Error(2)
}

func (m *MockKeyValueStore) SetValue(ctx context.Context, key string, value []byte, contentType string) error {
	args := m.Called(ctx, key, value, contentType)
	return args.Error(0)
}

func (m *MockKeyValueStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

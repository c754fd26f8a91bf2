package mocks

import (
	"context"
	"sync"

	"github.com/tjobarow/okta-fastpass-deployment-toolkit/okta"
)

// MockOktaClient - mock implementation of okta.ClientAPI for testing
type MockOktaClient struct {
	ListApplicationsFunc     func(ctx context.Context) ([]okta.Application, error)
	ListApplicationUsersFunc func(ctx context.Context, appID string) ([]okta.AppUser, error)
	ListUsersFunc            func(ctx context.Context) ([]okta.User, error)
	GetUserFunc              func(ctx context.Context, userID string) (*okta.User, error)
	GetUserByEmailFunc       func(ctx context.Context, email string) (*okta.User, error)
	ListDevicesFunc          func(ctx context.Context) ([]okta.Device, error)
	ListDeviceUsersFunc      func(ctx context.Context, deviceID string) ([]okta.DeviceUser, error)
	ListUserFactorsFunc      func(ctx context.Context, userID string) ([]okta.Factor, error)
	DeleteFactorFunc         func(ctx context.Context, userID, factorID string) error
	EnrollPushFactorFunc     func(ctx context.Context, userID string) (*okta.FactorEnrollment, error)

	// Call tracking. The scanner exercises the mock from worker
	// goroutines, so tracking is guarded by a mutex.
	mu                       sync.Mutex
	ListApplicationsCalls    int
	ListApplicationUserCalls []string
	ListUsersCalls           int
	GetUserCalls             []string
	GetUserByEmailCalls      []string
	ListDevicesCalls         int
	ListDeviceUserCalls      []string
	ListUserFactorCalls      []string
	DeleteFactorCalls        []DeleteFactorCall
	EnrollPushFactorCalls    []string
}

// DeleteFactorCall records the arguments passed to DeleteFactor
type DeleteFactorCall struct {
	UserID   string
	FactorID string
}

// Ensure MockOktaClient implements okta.ClientAPI
var _ okta.ClientAPI = (*MockOktaClient)(nil)

// ListApplications implements okta.ClientAPI.ListApplications
func (m *MockOktaClient) ListApplications(ctx context.Context) ([]okta.Application, error) {
	m.mu.Lock()
	m.ListApplicationsCalls++
	m.mu.Unlock()
	if m.ListApplicationsFunc != nil {
		return m.ListApplicationsFunc(ctx)
	}
	return nil, nil
}

// ListApplicationUsers implements okta.ClientAPI.ListApplicationUsers
func (m *MockOktaClient) ListApplicationUsers(ctx context.Context, appID string) ([]okta.AppUser, error) {
	m.mu.Lock()
	m.ListApplicationUserCalls = append(m.ListApplicationUserCalls, appID)
	m.mu.Unlock()
	if m.ListApplicationUsersFunc != nil {
		return m.ListApplicationUsersFunc(ctx, appID)
	}
	return nil, nil
}

// ListUsers implements okta.ClientAPI.ListUsers
func (m *MockOktaClient) ListUsers(ctx context.Context) ([]okta.User, error) {
	m.mu.Lock()
	m.ListUsersCalls++
	m.mu.Unlock()
	if m.ListUsersFunc != nil {
		return m.ListUsersFunc(ctx)
	}
	return nil, nil
}

// GetUser implements okta.ClientAPI.GetUser
func (m *MockOktaClient) GetUser(ctx context.Context, userID string) (*okta.User, error) {
	m.mu.Lock()
	m.GetUserCalls = append(m.GetUserCalls, userID)
	m.mu.Unlock()
	if m.GetUserFunc != nil {
		return m.GetUserFunc(ctx, userID)
	}
	return &okta.User{ID: userID}, nil
}

// GetUserByEmail implements okta.ClientAPI.GetUserByEmail
func (m *MockOktaClient) GetUserByEmail(ctx context.Context, email string) (*okta.User, error) {
	m.mu.Lock()
	m.GetUserByEmailCalls = append(m.GetUserByEmailCalls, email)
	m.mu.Unlock()
	if m.GetUserByEmailFunc != nil {
		return m.GetUserByEmailFunc(ctx, email)
	}
	return &okta.User{}, nil
}

// ListDevices implements okta.ClientAPI.ListDevices
func (m *MockOktaClient) ListDevices(ctx context.Context) ([]okta.Device, error) {
	m.mu.Lock()
	m.ListDevicesCalls++
	m.mu.Unlock()
	if m.ListDevicesFunc != nil {
		return m.ListDevicesFunc(ctx)
	}
	return nil, nil
}

// ListDeviceUsers implements okta.ClientAPI.ListDeviceUsers
func (m *MockOktaClient) ListDeviceUsers(ctx context.Context, deviceID string) ([]okta.DeviceUser, error) {
	m.mu.Lock()
	m.ListDeviceUserCalls = append(m.ListDeviceUserCalls, deviceID)
	m.mu.Unlock()
	if m.ListDeviceUsersFunc != nil {
		return m.ListDeviceUsersFunc(ctx, deviceID)
	}
	return nil, nil
}

// ListUserFactors implements okta.ClientAPI.ListUserFactors
func (m *MockOktaClient) ListUserFactors(ctx context.Context, userID string) ([]okta.Factor, error) {
	m.mu.Lock()
	m.ListUserFactorCalls = append(m.ListUserFactorCalls, userID)
	m.mu.Unlock()
	if m.ListUserFactorsFunc != nil {
		return m.ListUserFactorsFunc(ctx, userID)
	}
	return nil, nil
}

// DeleteFactor implements okta.ClientAPI.DeleteFactor
func (m *MockOktaClient) DeleteFactor(ctx context.Context, userID, factorID string) error {
	m.mu.Lock()
	m.DeleteFactorCalls = append(m.DeleteFactorCalls, DeleteFactorCall{UserID: userID, FactorID: factorID})
	m.mu.Unlock()
	if m.DeleteFactorFunc != nil {
		return m.DeleteFactorFunc(ctx, userID, factorID)
	}
	return nil
}

// EnrollPushFactor implements okta.ClientAPI.EnrollPushFactor
func (m *MockOktaClient) EnrollPushFactor(ctx context.Context, userID string) (*okta.FactorEnrollment, error) {
	m.mu.Lock()
	m.EnrollPushFactorCalls = append(m.EnrollPushFactorCalls, userID)
	m.mu.Unlock()
	if m.EnrollPushFactorFunc != nil {
		return m.EnrollPushFactorFunc(ctx, userID)
	}
	return &okta.FactorEnrollment{}, nil
}

// Reset clears all call tracking
func (m *MockOktaClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListApplicationsCalls = 0
	m.ListApplicationUserCalls = nil
	m.ListUsersCalls = 0
	m.GetUserCalls = nil
	m.GetUserByEmailCalls = nil
	m.ListDevicesCalls = 0
	m.ListDeviceUserCalls = nil
	m.ListUserFactorCalls = nil
	m.DeleteFactorCalls = nil
	m.EnrollPushFactorCalls = nil
}

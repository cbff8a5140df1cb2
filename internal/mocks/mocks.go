package mocks

import (
	"context"

	"fictures-server/internal/clients"
	"fictures-server/internal/interfaces"
	"fictures-server/internal/messaging"
	"fictures-server/internal/models"
	"fictures-server/internal/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type testingT interface {
	mock.TestingT
	Cleanup(func())
}

// MockRunStateStore is a mock type for the RunStateStore type
type MockRunStateStore struct {
	mock.Mock
}

// Save provides a mock function with given fields: ctx, record
func (_m *MockRunStateStore) Save(ctx context.Context, record models.RunRecord) error {
	ret := _m.Called(ctx, record)
	return errorAt(ret, 0)
}

// Get provides a mock function with given fields: ctx, runID
func (_m *MockRunStateStore) Get(ctx context.Context, runID uuid.UUID) (*models.RunRecord, error) {
	ret := _m.Called(ctx, runID)
	var r0 *models.RunRecord
	if v := ret.Get(0); v != nil {
		r0 = v.(*models.RunRecord)
	}
	return r0, errorAt(ret, 1)
}

func NewMockRunStateStore(t testingT) *MockRunStateStore {
	m := &MockRunStateStore{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ interfaces.RunStateStore = (*MockRunStateStore)(nil)

// MockNotificationPublisher is a mock type for the NotificationPublisher type
type MockNotificationPublisher struct {
	mock.Mock
}

// PublishNotification provides a mock function with given fields: ctx, n
func (_m *MockNotificationPublisher) PublishNotification(ctx context.Context, n models.RunNotification) error {
	ret := _m.Called(ctx, n)
	return errorAt(ret, 0)
}

func NewMockNotificationPublisher(t testingT) *MockNotificationPublisher {
	m := &MockNotificationPublisher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ messaging.NotificationPublisher = (*MockNotificationPublisher)(nil)

// MockBlobStore is a mock type for the BlobStore type
type MockBlobStore struct {
	mock.Mock
}

// Put provides a mock function with given fields: ctx, key, data, contentType
func (_m *MockBlobStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	ret := _m.Called(ctx, key, data, contentType)
	return ret.String(0), errorAt(ret, 1)
}

// ListPrefix provides a mock function with given fields: ctx, prefix
func (_m *MockBlobStore) ListPrefix(ctx context.Context, prefix string) ([]string, error) {
	ret := _m.Called(ctx, prefix)
	var r0 []string
	if v := ret.Get(0); v != nil {
		r0 = v.([]string)
	}
	return r0, errorAt(ret, 1)
}

// DeletePrefix provides a mock function with given fields: ctx, prefix
func (_m *MockBlobStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	ret := _m.Called(ctx, prefix)
	return ret.Int(0), errorAt(ret, 1)
}

// PublicURL provides a mock function with given fields: key
func (_m *MockBlobStore) PublicURL(key string) string {
	ret := _m.Called(key)
	return ret.String(0)
}

func NewMockBlobStore(t testingT) *MockBlobStore {
	m := &MockBlobStore{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ storage.BlobStore = (*MockBlobStore)(nil)

// MockAPIKeyRepository is a mock type for the APIKeyRepository type
type MockAPIKeyRepository struct {
	mock.Mock
}

// FindActiveByPrefix provides a mock function with given fields: ctx, prefix
func (_m *MockAPIKeyRepository) FindActiveByPrefix(ctx context.Context, prefix string) ([]models.APIKey, error) {
	ret := _m.Called(ctx, prefix)
	var r0 []models.APIKey
	if v := ret.Get(0); v != nil {
		r0 = v.([]models.APIKey)
	}
	return r0, errorAt(ret, 1)
}

// GetUser provides a mock function with given fields: ctx, userID
func (_m *MockAPIKeyRepository) GetUser(ctx context.Context, userID string) (*models.User, error) {
	ret := _m.Called(ctx, userID)
	var r0 *models.User
	if v := ret.Get(0); v != nil {
		r0 = v.(*models.User)
	}
	return r0, errorAt(ret, 1)
}

// TouchLastUsed provides a mock function with given fields: ctx, keyID
func (_m *MockAPIKeyRepository) TouchLastUsed(ctx context.Context, keyID uuid.UUID) error {
	ret := _m.Called(ctx, keyID)
	return errorAt(ret, 0)
}

// CreateUser provides a mock function with given fields: ctx, user
func (_m *MockAPIKeyRepository) CreateUser(ctx context.Context, user *models.User) error {
	ret := _m.Called(ctx, user)
	return errorAt(ret, 0)
}

// Create provides a mock function with given fields: ctx, key
func (_m *MockAPIKeyRepository) Create(ctx context.Context, key *models.APIKey) error {
	ret := _m.Called(ctx, key)
	return errorAt(ret, 0)
}

func NewMockAPIKeyRepository(t testingT) *MockAPIKeyRepository {
	m := &MockAPIKeyRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ interfaces.APIKeyRepository = (*MockAPIKeyRepository)(nil)

// MockTextGenerator is a mock type for the TextGenerator type
type MockTextGenerator struct {
	mock.Mock
}

// GenerateJSON provides a mock function with given fields: ctx, req
func (_m *MockTextGenerator) GenerateJSON(ctx context.Context, req clients.TextRequest) (clients.TextResult, error) {
	ret := _m.Called(ctx, req)
	if rf, ok := ret.Get(0).(func(context.Context, clients.TextRequest) (clients.TextResult, error)); ok {
		return rf(ctx, req)
	}
	var r0 clients.TextResult
	if v := ret.Get(0); v != nil {
		r0 = v.(clients.TextResult)
	}
	return r0, errorAt(ret, 1)
}

func NewMockTextGenerator(t testingT) *MockTextGenerator {
	m := &MockTextGenerator{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ clients.TextGenerator = (*MockTextGenerator)(nil)

// MockImageGenerator is a mock type for the ImageGenerator type
type MockImageGenerator struct {
	mock.Mock
}

// GenerateImage provides a mock function with given fields: ctx, req
func (_m *MockImageGenerator) GenerateImage(ctx context.Context, req clients.ImageRequest) (clients.ImageResult, error) {
	ret := _m.Called(ctx, req)
	if rf, ok := ret.Get(0).(func(context.Context, clients.ImageRequest) (clients.ImageResult, error)); ok {
		return rf(ctx, req)
	}
	var r0 clients.ImageResult
	if v := ret.Get(0); v != nil {
		r0 = v.(clients.ImageResult)
	}
	return r0, errorAt(ret, 1)
}

func NewMockImageGenerator(t testingT) *MockImageGenerator {
	m := &MockImageGenerator{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ clients.ImageGenerator = (*MockImageGenerator)(nil)

package services

import (
	"context"
	"io"
	"testing"
	"time"

	"stockroom/internal/models"
	"stockroom/testhelpers"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/mock"
)

type MockAuditRecorder struct {
	mock.Mock
}

func (m *MockAuditRecorder) Record(ctx context.Context, event models.AuditEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// events returns every event passed to Record, in call order
func (m *MockAuditRecorder) events() []models.AuditEvent {
	var out []models.AuditEvent
	for _, call := range m.Calls {
		if call.Method == "Record" {
			out = append(out, call.Arguments.Get(1).(models.AuditEvent))
		}
	}
	return out
}

func (m *MockAuditRecorder) eventTypes() []string {
	var out []string
	for _, e := range m.events() {
		out = append(out, e.EventType)
	}
	return out
}

type MockSummaryCache struct {
	mock.Mock
}

func (m *MockSummaryCache) GetSummary(ctx context.Context, skuID uuid.UUID) (*models.InventorySummary, error) {
	args := m.Called(ctx, skuID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.InventorySummary), args.Error(1)
}

func (m *MockSummaryCache) SetSummary(ctx context.Context, summary *models.InventorySummary, ttl time.Duration) error {
	args := m.Called(ctx, summary, ttl)
	return args.Error(0)
}

func (m *MockSummaryCache) DeleteSummary(ctx context.Context, skuID uuid.UUID) error {
	args := m.Called(ctx, skuID)
	return args.Error(0)
}

func (m *MockSummaryCache) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MockTagArchiver struct {
	mock.Mock
}

func (m *MockTagArchiver) Archive(ctx context.Context, tag *models.Tag) error {
	args := m.Called(ctx, tag)
	return args.Error(0)
}

func (m *MockTagArchiver) EnsureBucketExists(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockTagArchiver) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MockObjectStore struct {
	mock.Mock
}

func (m *MockObjectStore) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	args := m.Called(ctx, bucketName, objectName, reader, objectSize, opts)
	return args.Get(0).(minio.UploadInfo), args.Error(1)
}

func (m *MockObjectStore) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	args := m.Called(ctx, bucketName)
	return args.Bool(0), args.Error(1)
}

func (m *MockObjectStore) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	args := m.Called(ctx, bucketName, opts)
	return args.Error(0)
}

// engine wires every service around one in-memory fixture
type engine struct {
	fixture      *testhelpers.Fixture
	audit        *MockAuditRecorder
	availability AvailabilityService
	router       ConditionRouter
	tags         TagService
	allocations  AllocationService
	instances    InstanceService
}

func newEngine(t *testing.T) *engine {
	f := testhelpers.NewFixture(t)
	audit := &MockAuditRecorder{}
	audit.On("Record", mock.Anything, mock.Anything).Return(nil)

	availability := NewAvailabilityService(f.Store, nil, 0, nil)
	router := NewConditionRouter(f.Store, availability, audit, nil, nil)
	return &engine{
		fixture:      f,
		audit:        audit,
		availability: availability,
		router:       router,
		tags:         NewTagService(f.Store, router, availability, audit, nil, nil),
		allocations:  NewAllocationService(f.Store, availability, NewBundleExpander(), audit, nil, nil),
		instances:    NewInstanceService(f.Store, availability, audit, nil),
	}
}

func draft(tagType models.TagType, lines ...models.DraftLine) models.TagDraft {
	return models.TagDraft{
		Counterparty: "Site A",
		Type:         tagType,
		Lines:        lines,
	}
}

func line(skuID uuid.UUID, quantity int, instanceIDs ...uuid.UUID) models.DraftLine {
	return models.DraftLine{SkuID: skuID, Quantity: quantity, InstanceIDs: instanceIDs}
}

func conditionPtr(c models.Condition) *models.Condition {
	return &c
}

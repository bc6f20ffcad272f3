package services

import (
	"context"
	"testing"
	"time"

	"stockroom/internal/models"
	"stockroom/internal/repositories"
	"stockroom/testhelpers"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type InstanceServiceTestSuite struct {
	suite.Suite
	engine  *engine
	fixture *testhelpers.Fixture
	service InstanceService
	receipt models.InstanceReceipt
	ctx     context.Context
}

func (suite *InstanceServiceTestSuite) SetupTest() {
	suite.engine = newEngine(suite.T())
	suite.fixture = suite.engine.fixture
	suite.service = suite.engine.instances
	suite.receipt = models.InstanceReceipt{
		AcquisitionDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		AcquisitionCost: decimal.RequireFromString("19.99"),
		Supplier:        testhelpers.StringPtr("Acme Supply"),
		Reference:       testhelpers.StringPtr("PO-1042"),
	}
	suite.ctx = context.Background()
}

func TestInstanceServiceTestSuite(t *testing.T) {
	suite.Run(t, new(InstanceServiceTestSuite))
}

func (suite *InstanceServiceTestSuite) TestReceive_CreatesAvailableInstances() {
	// Arrange
	sku := suite.fixture.AddSKU("BOLT-M8")

	// Act
	created, err := suite.service.Receive(suite.ctx, sku.ID, 3, suite.receipt, "alice")

	// Assert
	require.NoError(suite.T(), err)
	require.Len(suite.T(), created, 3)
	for _, inst := range created {
		assert.NotEqual(suite.T(), uuid.Nil, inst.ID)
		assert.Equal(suite.T(), sku.ID, inst.SkuID)
		assert.Nil(suite.T(), inst.TagID)
		assert.Equal(suite.T(), 1, inst.Version)
		assert.Equal(suite.T(), models.ConditionFunctional, inst.Condition)
		assert.Equal(suite.T(), "PO-1042", *inst.Reference)
		assert.True(suite.T(), inst.AcquisitionCost.Equal(suite.receipt.AcquisitionCost))
	}
	assert.Len(suite.T(), suite.fixture.AvailableOf(sku.ID), 3)

	events := suite.engine.audit.events()
	require.Len(suite.T(), events, 1)
	assert.Equal(suite.T(), models.EventStockReceived, events[0].EventType)
	assert.Equal(suite.T(), models.EntitySKU, events[0].EntityType)
	assert.Equal(suite.T(), sku.ID, events[0].EntityID)
	assert.Len(suite.T(), events[0].Metadata["instance_ids"], 3)
}

func (suite *InstanceServiceTestSuite) TestReceive_Rejected() {
	product := suite.fixture.AddSKU("BOLT-M8")
	retired := suite.fixture.AddSKU("OLD", testhelpers.Discontinued())
	kit := suite.fixture.AddBundle("KIT", models.BundleItem{SkuID: product.ID, Quantity: 1})

	negative := suite.receipt
	negative.AcquisitionCost = decimal.NewFromInt(-1)
	undated := suite.receipt
	undated.AcquisitionDate = time.Time{}

	tests := []struct {
		name     string
		skuID    uuid.UUID
		quantity int
		receipt  models.InstanceReceipt
		check    func(err error)
	}{
		{name: "zero quantity", skuID: product.ID, quantity: 0, receipt: suite.receipt, check: func(err error) {
			var v *ValidationError
			assert.ErrorAs(suite.T(), err, &v)
		}},
		{name: "negative cost", skuID: product.ID, quantity: 1, receipt: negative, check: func(err error) {
			var v *ValidationError
			assert.ErrorAs(suite.T(), err, &v)
		}},
		{name: "missing date", skuID: product.ID, quantity: 1, receipt: undated, check: func(err error) {
			var v *ValidationError
			assert.ErrorAs(suite.T(), err, &v)
		}},
		{name: "bundle", skuID: kit.ID, quantity: 1, receipt: suite.receipt, check: func(err error) {
			var b *InvalidBundleError
			assert.ErrorAs(suite.T(), err, &b)
		}},
		{name: "discontinued", skuID: retired.ID, quantity: 1, receipt: suite.receipt, check: func(err error) {
			assert.ErrorIs(suite.T(), err, ErrSKUInactive)
		}},
		{name: "unknown sku", skuID: uuid.New(), quantity: 1, receipt: suite.receipt, check: func(err error) {
			assert.ErrorIs(suite.T(), err, repositories.ErrNotFound)
		}},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			// Act
			created, err := suite.service.Receive(suite.ctx, tt.skuID, tt.quantity, tt.receipt, "alice")

			// Assert
			assert.Nil(suite.T(), created)
			tt.check(err)
			assert.Empty(suite.T(), suite.fixture.Store.Instances())
		})
	}
}

func (suite *InstanceServiceTestSuite) TestDecrease_RemovesNewestAvailable() {
	// Arrange
	sku := suite.fixture.AddSKU("BOLT-M8")
	instances := suite.fixture.AddInstances(sku.ID, 5, "1")
	_, err := suite.engine.allocations.Allocate(suite.ctx, draft(models.TagTypeReserved, line(sku.ID, 1, instances[4].ID)), "alice")
	require.NoError(suite.T(), err)

	// Act
	removed, err := suite.service.Decrease(suite.ctx, sku.ID, 2, "alice")

	// Assert
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), []uuid.UUID{instances[3].ID, instances[2].ID}, removed)
	assert.Equal(suite.T(), testhelpers.IDs(instances[:2]), suite.fixture.AvailableOf(sku.ID))

	avail, err := suite.engine.availability.GetAvailability(suite.ctx, sku.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 3, avail.Total)
	assert.Equal(suite.T(), 1, avail.Reserved)
}

func (suite *InstanceServiceTestSuite) TestDecrease_NeverTouchesBoundInstances() {
	// Arrange
	sku := suite.fixture.AddSKU("BOLT-M8")
	suite.fixture.AddInstances(sku.ID, 3, "1")
	_, err := suite.engine.allocations.Allocate(suite.ctx, draft(models.TagTypeReserved, line(sku.ID, 2)), "alice")
	require.NoError(suite.T(), err)

	// Act
	removed, err := suite.service.Decrease(suite.ctx, sku.ID, 2, "alice")

	// Assert
	assert.Nil(suite.T(), removed)
	var stockErr *InsufficientStockError
	require.ErrorAs(suite.T(), err, &stockErr)
	assert.Equal(suite.T(), 1, stockErr.Available)
	assert.Len(suite.T(), suite.fixture.Store.Instances(), 3)
}

func (suite *InstanceServiceTestSuite) TestGetInstance_DerivesCondition() {
	// Arrange
	tool := suite.fixture.AddTool("DRILL-01")
	instances := suite.fixture.AddInstances(tool.ID, 3, "150")
	_, err := suite.engine.router.ChangeInstanceCondition(suite.ctx, instances[1].ID, models.ConditionNeedsMaintenance, nil, "carol")
	require.NoError(suite.T(), err)
	_, err = suite.engine.router.ChangeInstanceCondition(suite.ctx, instances[2].ID, models.ConditionBroken, nil, "carol")
	require.NoError(suite.T(), err)

	tests := []struct {
		id   uuid.UUID
		want models.Condition
	}{
		{id: instances[0].ID, want: models.ConditionFunctional},
		{id: instances[1].ID, want: models.ConditionNeedsMaintenance},
		{id: instances[2].ID, want: models.ConditionBroken},
	}

	for _, tt := range tests {
		// Act
		inst, err := suite.service.GetInstance(suite.ctx, tt.id)

		// Assert
		require.NoError(suite.T(), err)
		assert.Equal(suite.T(), tt.want, inst.Condition)
	}
}

func (suite *InstanceServiceTestSuite) TestGetInstance_NotFound() {
	// Act
	_, err := suite.service.GetInstance(suite.ctx, uuid.New())

	// Assert
	assert.ErrorIs(suite.T(), err, repositories.ErrNotFound)
}

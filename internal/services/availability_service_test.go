package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"stockroom/internal/metrics"
	"stockroom/internal/models"
	"stockroom/testhelpers"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type AvailabilityServiceTestSuite struct {
	suite.Suite
	engine   *engine
	fixture  *testhelpers.Fixture
	cache    *MockSummaryCache
	registry *prometheus.Registry
	cached   AvailabilityService
	ctx      context.Context
}

func (suite *AvailabilityServiceTestSuite) SetupTest() {
	suite.engine = newEngine(suite.T())
	suite.fixture = suite.engine.fixture
	suite.cache = &MockSummaryCache{}
	suite.registry = prometheus.NewRegistry()
	suite.cached = NewAvailabilityService(suite.fixture.Store, suite.cache, time.Minute, metrics.New(suite.registry))
	suite.ctx = context.Background()
}

func (suite *AvailabilityServiceTestSuite) TearDownTest() {
	suite.cache.AssertExpectations(suite.T())
}

func TestAvailabilityServiceTestSuite(t *testing.T) {
	suite.Run(t, new(AvailabilityServiceTestSuite))
}

func (suite *AvailabilityServiceTestSuite) allocate(tagType models.TagType, skuID uuid.UUID, quantity int) *models.Tag {
	tag, err := suite.engine.allocations.Allocate(suite.ctx, draft(tagType, line(skuID, quantity)), "tester")
	require.NoError(suite.T(), err)
	return tag
}

func (suite *AvailabilityServiceTestSuite) TestGetAvailability_BucketsByOwnerType() {
	// Arrange
	sku := suite.fixture.AddTool("DRILL-01")
	suite.fixture.AddInstances(sku.ID, 10, "100")
	suite.allocate(models.TagTypeReserved, sku.ID, 2)
	suite.allocate(models.TagTypeStock, sku.ID, 1)
	suite.allocate(models.TagTypeLoaned, sku.ID, 2)
	suite.allocate(models.TagTypeBroken, sku.ID, 1)
	suite.allocate(models.TagTypeImperfect, sku.ID, 1)

	// Act
	avail, err := suite.engine.availability.GetAvailability(suite.ctx, sku.ID)

	// Assert
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 10, avail.Total)
	assert.Equal(suite.T(), 3, avail.Available)
	assert.Equal(suite.T(), 3, avail.Reserved)
	assert.Equal(suite.T(), 2, avail.Loaned)
	assert.Equal(suite.T(), 2, avail.Broken)
	assert.Equal(suite.T(), avail.Total, avail.Available+avail.Reserved+avail.Broken+avail.Loaned)
	assert.Nil(suite.T(), avail.Buildable)
}

func (suite *AvailabilityServiceTestSuite) TestGetAvailability_NoInstances() {
	// Arrange
	sku := suite.fixture.AddSKU("EMPTY")

	// Act
	avail, err := suite.engine.availability.GetAvailability(suite.ctx, sku.ID)

	// Assert
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.Availability{SkuID: sku.ID}, *avail)
}

func (suite *AvailabilityServiceTestSuite) TestGetAvailability_UnknownSKU() {
	// Act
	_, err := suite.engine.availability.GetAvailability(suite.ctx, uuid.New())

	// Assert
	assert.Error(suite.T(), err)
}

func (suite *AvailabilityServiceTestSuite) TestGetAvailability_BundleBuildable() {
	// Arrange
	panel := suite.fixture.AddSKU("PANEL")
	frame := suite.fixture.AddSKU("FRAME")
	suite.fixture.AddInstances(panel.ID, 7, "5")
	suite.fixture.AddInstances(frame.ID, 5, "20")
	kit := suite.fixture.AddBundle("KIT",
		models.BundleItem{SkuID: panel.ID, Quantity: 3},
		models.BundleItem{SkuID: frame.ID, Quantity: 1},
	)

	// Act
	avail, err := suite.engine.availability.GetAvailability(suite.ctx, kit.ID)

	// Assert
	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), avail.Buildable)
	assert.Equal(suite.T(), 2, *avail.Buildable)
	assert.Equal(suite.T(), 0, avail.Total)
}

func (suite *AvailabilityServiceTestSuite) TestGetAvailability_BundleBuildableIgnoresBoundComponents() {
	// Arrange
	panel := suite.fixture.AddSKU("PANEL")
	suite.fixture.AddInstances(panel.ID, 4, "5")
	kit := suite.fixture.AddBundle("KIT", models.BundleItem{SkuID: panel.ID, Quantity: 2})
	suite.allocate(models.TagTypeReserved, panel.ID, 1)

	// Act
	avail, err := suite.engine.availability.GetAvailability(suite.ctx, kit.ID)

	// Assert
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 1, *avail.Buildable)
}

func (suite *AvailabilityServiceTestSuite) TestGetSummary_CacheMissBuildsAndStores() {
	// Arrange
	sku := suite.fixture.AddSKU("BOLT-M8")
	suite.fixture.AddInstances(sku.ID, 3, "12.50")
	suite.cache.On("GetSummary", suite.ctx, sku.ID).Return(nil, nil)
	suite.cache.On("SetSummary", suite.ctx, mock.AnythingOfType("*models.InventorySummary"), time.Minute).Return(nil)

	// Act
	summary, err := suite.cached.GetSummary(suite.ctx, sku.ID)

	// Assert
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 3, summary.Total)
	assert.Equal(suite.T(), 3, summary.Available)
	assert.True(suite.T(), summary.TotalValue.Equal(decimal.RequireFromString("37.50")), summary.TotalValue.String())
	assert.True(suite.T(), summary.AverageCost.Equal(decimal.RequireFromString("12.50")), summary.AverageCost.String())
	assert.False(suite.T(), summary.RefreshedAt.IsZero())

	expected := `
# HELP stockroom_summary_cache_lookups_total Inventory summary cache lookups by result.
# TYPE stockroom_summary_cache_lookups_total counter
stockroom_summary_cache_lookups_total{result="miss"} 1
`
	assert.NoError(suite.T(), testutil.GatherAndCompare(suite.registry, strings.NewReader(expected), "stockroom_summary_cache_lookups_total"))
}

func (suite *AvailabilityServiceTestSuite) TestGetSummary_CacheHit() {
	// Arrange
	skuID := uuid.New()
	cached := &models.InventorySummary{Availability: models.Availability{SkuID: skuID, Total: 9, Available: 9}}
	suite.cache.On("GetSummary", suite.ctx, skuID).Return(cached, nil)

	// Act
	summary, err := suite.cached.GetSummary(suite.ctx, skuID)

	// Assert
	require.NoError(suite.T(), err)
	assert.Same(suite.T(), cached, summary)

	expected := `
# HELP stockroom_summary_cache_lookups_total Inventory summary cache lookups by result.
# TYPE stockroom_summary_cache_lookups_total counter
stockroom_summary_cache_lookups_total{result="hit"} 1
`
	assert.NoError(suite.T(), testutil.GatherAndCompare(suite.registry, strings.NewReader(expected), "stockroom_summary_cache_lookups_total"))
}

func (suite *AvailabilityServiceTestSuite) TestGetSummary_CacheErrorFallsBackToStore() {
	// Arrange
	sku := suite.fixture.AddSKU("BOLT-M8")
	suite.fixture.AddInstances(sku.ID, 2, "1")
	suite.cache.On("GetSummary", suite.ctx, sku.ID).Return(nil, errors.New("connection refused"))
	suite.cache.On("SetSummary", suite.ctx, mock.AnythingOfType("*models.InventorySummary"), time.Minute).Return(errors.New("connection refused"))

	// Act
	summary, err := suite.cached.GetSummary(suite.ctx, sku.ID)

	// Assert
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 2, summary.Available)
}

func (suite *AvailabilityServiceTestSuite) TestRefreshSummaries_DeduplicatesSKUs() {
	// Arrange
	a := suite.fixture.AddSKU("A")
	b := suite.fixture.AddSKU("B")
	suite.fixture.AddInstances(a.ID, 1, "1")
	suite.fixture.AddInstances(b.ID, 1, "1")
	suite.cache.On("SetSummary", suite.ctx, mock.AnythingOfType("*models.InventorySummary"), time.Minute).Return(nil).Times(2)

	// Act
	suite.cached.RefreshSummaries(suite.ctx, []uuid.UUID{a.ID, b.ID, a.ID})

	// Assert
	suite.cache.AssertNumberOfCalls(suite.T(), "SetSummary", 2)
}

func (suite *AvailabilityServiceTestSuite) TestRefreshSummaries_NothingToRefresh() {
	// Act
	suite.cached.RefreshSummaries(suite.ctx, nil)

	// Assert
	suite.cache.AssertNotCalled(suite.T(), "SetSummary", mock.Anything, mock.Anything, mock.Anything)
}

func (suite *AvailabilityServiceTestSuite) TestReconcileAll_RebuildsEveryStockedSKU() {
	// Arrange
	a := suite.fixture.AddSKU("A")
	b := suite.fixture.AddSKU("B")
	suite.fixture.AddSKU("UNSTOCKED")
	suite.fixture.AddInstances(a.ID, 2, "1")
	suite.fixture.AddInstances(b.ID, 1, "1")
	suite.cache.On("SetSummary", suite.ctx, mock.AnythingOfType("*models.InventorySummary"), time.Minute).Return(nil)

	// Act
	count, err := suite.cached.ReconcileAll(suite.ctx)

	// Assert
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 2, count)
	suite.cache.AssertNumberOfCalls(suite.T(), "SetSummary", 2)
}

func (suite *AvailabilityServiceTestSuite) TestReconcileAll_WithoutCache() {
	// Arrange
	a := suite.fixture.AddSKU("A")
	suite.fixture.AddInstances(a.ID, 2, "1")

	// Act
	count, err := suite.engine.availability.ReconcileAll(suite.ctx)

	// Assert
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 1, count)
}

func (suite *AvailabilityServiceTestSuite) captureSummaries() map[uuid.UUID]*models.InventorySummary {
	cached := map[uuid.UUID]*models.InventorySummary{}
	suite.cache.On("SetSummary", suite.ctx, mock.AnythingOfType("*models.InventorySummary"), time.Minute).
		Run(func(args mock.Arguments) {
			summary := args.Get(1).(*models.InventorySummary)
			cached[summary.SkuID] = summary
		}).
		Return(nil)
	return cached
}

func (suite *AvailabilityServiceTestSuite) TestAllocate_RefreshesCachedBundleSummary() {
	// Arrange
	part := suite.fixture.AddSKU("A")
	kit := suite.fixture.AddBundle("KIT", models.BundleItem{SkuID: part.ID, Quantity: 2})
	suite.fixture.AddInstances(part.ID, 4, "1")
	cached := suite.captureSummaries()
	allocations := NewAllocationService(suite.fixture.Store, suite.cached, NewBundleExpander(), nil, nil, nil)

	// Act
	_, err := allocations.Allocate(suite.ctx, draft(models.TagTypeReserved, line(kit.ID, 2)), "tester")

	// Assert
	require.NoError(suite.T(), err)
	require.Contains(suite.T(), cached, kit.ID)
	require.NotNil(suite.T(), cached[kit.ID].Buildable)
	assert.Equal(suite.T(), 0, *cached[kit.ID].Buildable)
	require.Contains(suite.T(), cached, part.ID)
	assert.Equal(suite.T(), 0, cached[part.ID].Available)
}

func (suite *AvailabilityServiceTestSuite) TestRefreshSummaries_IncludesBundlesOfTouchedComponents() {
	// Arrange
	part := suite.fixture.AddSKU("A")
	other := suite.fixture.AddSKU("B")
	kit := suite.fixture.AddBundle("KIT", models.BundleItem{SkuID: part.ID, Quantity: 2})
	unrelated := suite.fixture.AddBundle("OTHER-KIT", models.BundleItem{SkuID: other.ID, Quantity: 1})
	suite.fixture.AddInstances(part.ID, 5, "1")
	cached := suite.captureSummaries()

	// Act
	suite.cached.RefreshSummaries(suite.ctx, []uuid.UUID{part.ID})

	// Assert
	assert.Len(suite.T(), cached, 2)
	require.Contains(suite.T(), cached, kit.ID)
	assert.Equal(suite.T(), 2, *cached[kit.ID].Buildable)
	assert.NotContains(suite.T(), cached, unrelated.ID)
}

func (suite *AvailabilityServiceTestSuite) TestReconcileAll_IncludesBundles() {
	// Arrange
	part := suite.fixture.AddSKU("A")
	kit := suite.fixture.AddBundle("KIT", models.BundleItem{SkuID: part.ID, Quantity: 2})
	suite.fixture.AddInstances(part.ID, 4, "1")
	_, err := suite.engine.allocations.Allocate(suite.ctx, draft(models.TagTypeReserved, line(kit.ID, 1)), "tester")
	require.NoError(suite.T(), err)
	cached := suite.captureSummaries()

	// Act
	count, err := suite.cached.ReconcileAll(suite.ctx)

	// Assert
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 2, count)
	require.Contains(suite.T(), cached, kit.ID)
	assert.Equal(suite.T(), 1, *cached[kit.ID].Buildable)
}

func (suite *AvailabilityServiceTestSuite) TestReconcileAll_SkipsMalformedBundle() {
	// Arrange
	part := suite.fixture.AddSKU("A")
	suite.fixture.AddInstances(part.ID, 1, "1")
	suite.fixture.AddBundle("BROKEN-KIT", models.BundleItem{SkuID: part.ID, Quantity: 0})
	cached := suite.captureSummaries()

	// Act
	count, err := suite.cached.ReconcileAll(suite.ctx)

	// Assert
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 1, count)
	assert.Contains(suite.T(), cached, part.ID)
}

package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"stockroom/internal/models"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type MinioTagArchiverTestSuite struct {
	suite.Suite
	client   *MockObjectStore
	archiver *minioTagArchiver
	ctx      context.Context
}

func (suite *MinioTagArchiverTestSuite) SetupTest() {
	suite.client = &MockObjectStore{}
	suite.archiver = &minioTagArchiver{client: suite.client, bucket: "tag-archive"}
	suite.ctx = context.Background()
}

func (suite *MinioTagArchiverTestSuite) TearDownTest() {
	suite.client.AssertExpectations(suite.T())
}

func TestMinioTagArchiverTestSuite(t *testing.T) {
	suite.Run(t, new(MinioTagArchiverTestSuite))
}

func closedTag(status models.TagStatus, at time.Time) *models.Tag {
	tag := &models.Tag{
		ID:           uuid.New(),
		Counterparty: "Site A",
		Type:         models.TagTypeReserved,
		Purpose:      models.TagPurposeReservation,
		Status:       status,
		Items:        []models.TagItem{},
	}
	switch status {
	case models.TagStatusFulfilled:
		tag.FulfilledAt = &at
	case models.TagStatusCancelled:
		tag.CancelledAt = &at
	}
	return tag
}

func (suite *MinioTagArchiverTestSuite) TestArchiveObjectName() {
	at := time.Date(2024, 2, 29, 23, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		tag  *models.Tag
		want string
	}{
		{name: "fulfilled", tag: closedTag(models.TagStatusFulfilled, at), want: "tags/2024/02/"},
		{name: "cancelled", tag: closedTag(models.TagStatusCancelled, at.AddDate(0, 0, 1)), want: "tags/2024/03/"},
		{name: "falls back to updated_at", tag: &models.Tag{ID: uuid.New(), UpdatedAt: time.Date(2023, 12, 5, 0, 0, 0, 0, time.UTC)}, want: "tags/2023/12/"},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			// Act
			name := ArchiveObjectName(tt.tag)

			// Assert
			assert.Equal(suite.T(), tt.want+tt.tag.ID.String()+".json", name)
		})
	}
}

func (suite *MinioTagArchiverTestSuite) TestArchive_WritesJSON() {
	// Arrange
	tag := closedTag(models.TagStatusFulfilled, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	var body []byte
	suite.client.On("PutObject", suite.ctx, "tag-archive", ArchiveObjectName(tag), mock.Anything, mock.AnythingOfType("int64"),
		minio.PutObjectOptions{ContentType: "application/json"}).
		Run(func(args mock.Arguments) {
			data, err := io.ReadAll(args.Get(3).(io.Reader))
			require.NoError(suite.T(), err)
			body = data
		}).
		Return(minio.UploadInfo{}, nil)

	// Act
	err := suite.archiver.Archive(suite.ctx, tag)

	// Assert
	require.NoError(suite.T(), err)
	var decoded models.Tag
	require.NoError(suite.T(), json.Unmarshal(body, &decoded))
	assert.Equal(suite.T(), tag.ID, decoded.ID)
	assert.Equal(suite.T(), models.TagStatusFulfilled, decoded.Status)
}

func (suite *MinioTagArchiverTestSuite) TestArchive_ActiveTagRejected() {
	// Arrange
	tag := &models.Tag{ID: uuid.New(), Status: models.TagStatusActive}

	// Act
	err := suite.archiver.Archive(suite.ctx, tag)

	// Assert
	assert.Error(suite.T(), err)
	suite.client.AssertNotCalled(suite.T(), "PutObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (suite *MinioTagArchiverTestSuite) TestArchive_UploadError() {
	// Arrange
	tag := closedTag(models.TagStatusCancelled, time.Now())
	suite.client.On("PutObject", suite.ctx, "tag-archive", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(minio.UploadInfo{}, errors.New("connection reset"))

	// Act
	err := suite.archiver.Archive(suite.ctx, tag)

	// Assert
	assert.EqualError(suite.T(), err, "connection reset")
}

func (suite *MinioTagArchiverTestSuite) TestEnsureBucketExists_Creates() {
	// Arrange
	suite.client.On("BucketExists", suite.ctx, "tag-archive").Return(false, nil)
	suite.client.On("MakeBucket", suite.ctx, "tag-archive", minio.MakeBucketOptions{}).Return(nil)

	// Act
	err := suite.archiver.EnsureBucketExists(suite.ctx)

	// Assert
	assert.NoError(suite.T(), err)
}

func (suite *MinioTagArchiverTestSuite) TestEnsureBucketExists_AlreadyThere() {
	// Arrange
	suite.client.On("BucketExists", suite.ctx, "tag-archive").Return(true, nil)

	// Act
	err := suite.archiver.EnsureBucketExists(suite.ctx)

	// Assert
	assert.NoError(suite.T(), err)
	suite.client.AssertNotCalled(suite.T(), "MakeBucket", mock.Anything, mock.Anything, mock.Anything)
}

func (suite *MinioTagArchiverTestSuite) TestPing() {
	tests := []struct {
		name    string
		exists  bool
		err     error
		wantErr bool
	}{
		{name: "bucket present", exists: true},
		{name: "bucket missing", exists: false, wantErr: true},
		{name: "unreachable", err: errors.New("dial tcp: connection refused"), wantErr: true},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			// Arrange
			client := &MockObjectStore{}
			client.On("BucketExists", suite.ctx, "tag-archive").Return(tt.exists, tt.err)
			archiver := &minioTagArchiver{client: client, bucket: "tag-archive"}

			// Act
			err := archiver.Ping(suite.ctx)

			// Assert
			if tt.wantErr {
				assert.Error(suite.T(), err)
			} else {
				assert.NoError(suite.T(), err)
			}
			client.AssertExpectations(suite.T())
		})
	}
}

package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/authmaker/internal/common"
	"github.com/dmitrijs2005/authmaker/internal/logging"
	sc "github.com/dmitrijs2005/authmaker/internal/server/config"
	"github.com/dmitrijs2005/authmaker/internal/server/models"
	"github.com/google/uuid"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
)

// AvatarUpload is a presigned PUT the client uses to upload an avatar
// straight to object storage.
type AvatarUpload struct {
	Key       string
	URL       string
	ExpiresAt time.Time
}

// AvatarService hands out presigned avatar uploads and records confirmed
// uploads on the user.
type AvatarService struct {
	users  *UserService
	config *sc.Config
	logger logging.Logger
}

func NewAvatarService(us *UserService, cfg *sc.Config, l logging.Logger) *AvatarService {
	return &AvatarService{
		users:  us,
		config: cfg,
		logger: l.With("module", "avatar_service"),
	}
}

func avatarPrefix(userID string) string {
	return fmt.Sprintf("avatars/%s/", userID)
}

func avatarKey(userID string) string {
	return avatarPrefix(userID) + uuid.NewString()
}

func (s *AvatarService) getPresignClient(ctx context.Context) (*s3.PresignClient, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(s.config.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,
			s.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
		o.UsePathStyle = true
	})

	return newS3PresignClient(client), nil
}

// PresignAvatarUpload returns a presigned PUT for a fresh object key under
// the user's avatar prefix. The user must exist.
func (s *AvatarService) PresignAvatarUpload(ctx context.Context, userID string) (*AvatarUpload, error) {
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	presignClient, err := s.getPresignClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("error creating presign client: %w", err)
	}

	bucket := s.config.S3Bucket
	key := avatarKey(userID)
	expires := s.config.AvatarUploadExpiry

	req, err := presignPutObject(presignClient, ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return nil, fmt.Errorf("error presigning upload: %w", err)
	}

	return &AvatarUpload{Key: key, URL: req.URL, ExpiresAt: time.Now().Add(expires)}, nil
}

// ConfirmAvatar points the user's AvatarURL at key once the client has
// finished the upload. Keys outside the user's prefix are rejected.
func (s *AvatarService) ConfirmAvatar(ctx context.Context, userID, key string) (*models.User, error) {
	if !strings.HasPrefix(key, avatarPrefix(userID)) || len(key) == len(avatarPrefix(userID)) {
		return nil, fmt.Errorf("%w: avatar key %q does not belong to user", common.ErrorValidation, key)
	}

	url := strings.TrimSuffix(s.config.S3BaseEndpoint, "/") + "/" + s.config.S3Bucket + "/" + key

	u, err := s.users.mutate(ctx, userID, func(u *models.User) error {
		u.AvatarURL = url
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "avatar updated", "user_id", u.ID, "key", key)
	return u, nil
}

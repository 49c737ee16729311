package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"kindred-backend/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const transcriptURLExpiry = 5 * time.Minute

// ObjectUploader is the subset of the S3 client used for uploads
type ObjectUploader interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ObjectPresigner is the subset of the S3 presign client used for downloads
type ObjectPresigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Options configures the transcript bucket
type S3Options struct {
	Region          string
	Bucket          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// TranscriptService exports retained chat history to S3
type TranscriptService struct {
	sessions  *SessionService
	uploader  ObjectUploader
	presigner ObjectPresigner
	bucket    string
	Now       func() time.Time
}

// NewS3TranscriptService creates a transcript service backed by a real S3 client
func NewS3TranscriptService(ctx context.Context, sessions *SessionService, opts S3Options) (*TranscriptService, error) {
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewTranscriptService(sessions, client, s3.NewPresignClient(client), opts.Bucket), nil
}

// NewTranscriptService creates a transcript service over the given S3 clients
func NewTranscriptService(sessions *SessionService, uploader ObjectUploader, presigner ObjectPresigner, bucket string) *TranscriptService {
	return &TranscriptService{
		sessions:  sessions,
		uploader:  uploader,
		presigner: presigner,
		bucket:    bucket,
		Now:       time.Now,
	}
}

// TranscriptExport is the response with a pre-signed download URL
type TranscriptExport struct {
	DownloadURL string `json:"download_url"`
	Key         string `json:"key"`
	ExpiresIn   int    `json:"expires_in"`
}

type transcriptDocument struct {
	SessionID  string            `json:"session_id"`
	StartedAt  time.Time         `json:"started_at"`
	EndedAt    *time.Time        `json:"ended_at,omitempty"`
	ExportedAt time.Time         `json:"exported_at"`
	Messages   []*models.Message `json:"messages"`
}

// Export uploads the history of a friend chat and returns a short-lived link.
// Anonymous history is never exported.
func (s *TranscriptService) Export(ctx context.Context, sessionID, userID string) (*TranscriptExport, error) {
	sess, err := s.sessions.Get(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if sess.Type != models.SessionTypeFriend {
		return nil, models.NewInvalidArgument("session_id", "only friend chats can be exported")
	}

	messages, err := s.sessions.Messages(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(transcriptDocument{
		SessionID:  sess.ID,
		StartedAt:  sess.StartedAt,
		EndedAt:    sess.EndedAt,
		ExportedAt: s.Now(),
		Messages:   messages,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode transcript: %w", err)
	}

	// S3 key: transcripts/{user_id}/{session_id}/{export_id}.json
	key := fmt.Sprintf("transcripts/%s/%s/%s.json", userID, sessionID, uuid.New().String())

	if _, err := s.uploader.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	}); err != nil {
		return nil, fmt.Errorf("failed to upload transcript: %w", err)
	}

	request, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = transcriptURLExpiry
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate pre-signed URL: %w", err)
	}

	log.Info().
		Str("session_id", sessionID).
		Str("user_id", userID).
		Int("messages", len(messages)).
		Msg("Transcript exported")

	return &TranscriptExport{
		DownloadURL: request.URL,
		Key:         key,
		ExpiresIn:   int(transcriptURLExpiry.Seconds()),
	}, nil
}

package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mlevkov/chatgate/internal/common"
	sc "github.com/mlevkov/chatgate/internal/server/config"
	"github.com/mlevkov/chatgate/internal/server/repositories/repomanager"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// presignedURLValidity bounds how long an exported transcript link works.
const presignedURLValidity = 15 * time.Minute

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in, optFns...)
	}

	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// transcript is the exported document layout.
type transcript struct {
	SessionID  string           `json:"session_id"`
	Name       string           `json:"name"`
	Kind       string           `json:"kind"`
	ExportedAt time.Time        `json:"exported_at"`
	Messages   []transcriptTurn `json:"messages"`
}

type transcriptTurn struct {
	Question  string    `json:"question"`
	Answer    *string   `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}

// ExportService uploads session transcripts to object storage and hands out
// short-lived download links.
type ExportService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	config      *sc.Config
}

func NewExportService(db *sql.DB, m repomanager.RepositoryManager, config *sc.Config) *ExportService {
	return &ExportService{db: db, repomanager: m, config: config}
}

// GetStorageKey returns a date-partitioned object key for a new export.
func GetStorageKey() string {
	d := time.Now()
	return fmt.Sprintf("transcripts/%d/%02d/%02d/%v.json", d.Year(), d.Month(), d.Day(), uuid.New())
}

func (s *ExportService) getClients() (*s3.Client, *s3.PresignClient, error) {
	cfg, err := loadDefaultAWSConfig(context.Background(),
		config.WithRegion(s.config.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,     // MINIO_ROOT_USER
			s.config.S3RootPassword, // MINIO_ROOT_PASSWORD
			"",
		)))
	if err != nil {
		return nil, nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
	})

	return client, newS3PresignClient(client), nil
}

// Export serializes the owned session's transcript, uploads it and returns
// the object key with a presigned download URL.
func (s *ExportService) Export(ctx context.Context, sessionID, ownerID string) (string, string, error) {

	session, err := s.repomanager.Sessions(s.db).Get(ctx, sessionID, ownerID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", "", err
		}
		return "", "", common.ErrorInternal
	}

	turns, err := s.repomanager.Messages(s.db).ListBySession(ctx, sessionID, ownerID)
	if err != nil {
		return "", "", common.ErrorInternal
	}

	doc := transcript{
		SessionID:  session.ID,
		Name:       session.Name,
		Kind:       string(session.Kind),
		ExportedAt: time.Now().UTC(),
		Messages:   make([]transcriptTurn, 0, len(turns)),
	}
	for _, m := range turns {
		turn := transcriptTurn{Question: m.Question, CreatedAt: m.CreatedAt}
		if m.Answer.Valid {
			answer := m.Answer.String
			turn.Answer = &answer
		}
		doc.Messages = append(doc.Messages, turn)
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return "", "", fmt.Errorf("error encoding transcript: %v", err)
	}

	client, presignClient, err := s.getClients()
	if err != nil {
		return "", "", err
	}

	bucket := s.config.S3Bucket
	key := GetStorageKey()
	contentType := "application/json"

	_, err = putObject(client, ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		Body:        bytes.NewReader(body),
		ContentType: &contentType,
	})
	if err != nil {
		return "", "", fmt.Errorf("error uploading transcript: %v", err)
	}

	req, err := presignGetObject(presignClient, ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(presignedURLValidity))
	if err != nil {
		return "", "", err
	}

	return key, req.URL, nil
}

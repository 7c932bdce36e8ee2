package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"med13-pipeline/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectPutter ist der Ausschnitt des S3-Clients, den der Coordinator benötigt.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewS3Client erstellt einen S3-Client für einen S3-kompatiblen Endpoint.
func NewS3Client(cfg *config.Config) (*s3.Client, error) {
	resolver := aws.EndpointResolverWithOptionsFunc(
		func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:               cfg.S3URL,
				SigningRegion:     cfg.S3Region,
				HostnameImmutable: true,
			}, nil
		},
	)
	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3Key, cfg.S3Secret, "")),
		awsconfig.WithEndpointResolverWithOptions(resolver),
	)
	if err != nil {
		return nil, err
	}

	return s3.NewFromConfig(awsCfg), nil
}

// S3Coordinator legt Objekte je Use-Case unter einem eigenen Präfix im Bucket ab.
type S3Coordinator struct {
	Client   ObjectPutter
	Bucket   string
	BaseURL  string
	Prefixes map[UseCase]string
}

// NewS3Coordinator baut den Coordinator aus der Konfiguration. Ohne Bucket wird nil geliefert.
func NewS3Coordinator(cfg *config.Config) (*S3Coordinator, error) {
	if !cfg.StorageEnabled() {
		return nil, nil
	}
	client, err := NewS3Client(cfg)
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return &S3Coordinator{
		Client:  client,
		Bucket:  cfg.S3Bucket,
		BaseURL: cfg.S3URL,
		Prefixes: map[UseCase]string{
			UseCaseRawSource:       cfg.S3RawSourcePrefix,
			UseCaseDocumentContent: cfg.S3DocumentPrefix,
		},
	}, nil
}

// StoreForUseCase lädt body hoch und gibt Schlüssel und Link zurück.
func (c *S3Coordinator) StoreForUseCase(ctx context.Context, useCase UseCase, key string, body []byte, contentType string, userID string, metadata map[string]string) (*Record, error) {
	if !useCase.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownUseCase, useCase)
	}
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return nil, ErrEmptyKey
	}
	if prefix := strings.Trim(c.Prefixes[useCase], "/"); prefix != "" {
		key = path.Join(prefix, key)
	}

	meta := map[string]string{"use-case": string(useCase)}
	if userID != "" {
		meta["user-id"] = userID
	}
	for k, v := range metadata {
		meta[k] = v
	}

	_, err := c.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
		Metadata:    meta,
	})
	if err != nil {
		return nil, fmt.Errorf("put object %s: %w", key, err)
	}
	return &Record{
		Key:     key,
		URL:     fmt.Sprintf("%s/%s/%s", strings.TrimRight(c.BaseURL, "/"), c.Bucket, key),
		UseCase: useCase,
		Size:    len(body),
	}, nil
}

package publish

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/sirupsen/logrus"
)

const (
	ContentTypeJSON     = "application/json"
	ContentTypeMarkdown = "text/markdown; charset=utf-8"
)

type ObjectStorage interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Artifact struct {
	Name        string
	Data        []byte
	ContentType string
}

type Publisher struct {
	log     *logrus.Logger
	storage ObjectStorage
	bucket  string
	keyFn   func(name string) string
}

func New(log *logrus.Logger, storage ObjectStorage, bucket string, keyFn func(name string) string) *Publisher {
	if keyFn == nil {
		keyFn = func(name string) string { return name }
	}
	return &Publisher{
		log:     log,
		storage: storage,
		bucket:  bucket,
		keyFn:   keyFn,
	}
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound"
}

// upToDate reports whether the stored object already carries the checksum.
func (p *Publisher) upToDate(ctx context.Context, key, sum string) (bool, error) {
	headRes, err := p.storage.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &p.bucket,
		Key:    &key,
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("could not check if %s exists: %w", key, err)
	}
	return headRes.Metadata["checksum"] == sum, nil
}

// Publish uploads every artifact whose content differs from the stored copy.
func (p *Publisher) Publish(ctx context.Context, artifacts ...Artifact) error {
	for _, a := range artifacts {
		key := p.keyFn(a.Name)
		sum := checksum(a.Data)
		found, err := p.upToDate(ctx, key, sum)
		if err != nil {
			return err
		}
		if found {
			p.log.Infof("%s is up to date, skipping upload", key)
			continue
		}
		p.log.Infof("uploading %s to bucket %s...", key, p.bucket)
		_, err = p.storage.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        &p.bucket,
			Key:           &key,
			Body:          bytes.NewReader(a.Data),
			ContentLength: aws.Int64(int64(len(a.Data))),
			ContentType:   aws.String(a.ContentType),
			Metadata: map[string]string{
				"checksum": sum,
			},
		})
		if err != nil {
			return fmt.Errorf("could not upload %s: %w", key, err)
		}
	}
	return nil
}

package cache

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const (
	storedAtMetaKey = "stored_at"
	statusMetaKey   = "status"
)

// S3Store keeps cache generations as key prefixes inside one bucket. The
// request URL is base64-encoded in the object key so Keys can recover it.
type S3Store struct {
	bucket   string
	client   *s3.Client
	uploader *manager.Uploader
}

func NewS3Store(bucket string, client *s3.Client) *S3Store {
	return &S3Store{
		bucket:   bucket,
		client:   client,
		uploader: manager.NewUploader(client),
	}
}

func objectKey(generation, key string) string {
	return generation + "/" + base64.RawURLEncoding.EncodeToString([]byte(key))
}

func (s *S3Store) Get(ctx context.Context, generation, key string) (Entry, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(generation, key)),
	})
	if err != nil {
		if isNotFound(err) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, err
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return Entry{}, err
	}

	return Entry{
		Body:        body,
		Status:      parseStatus(out.Metadata),
		ContentType: aws.ToString(out.ContentType),
		Encoding:    aws.ToString(out.ContentEncoding),
		StoredAt:    parseStoredAt(out.Metadata),
	}, nil
}

func (s *S3Store) Put(ctx context.Context, generation, key string, entry Entry) error {
	meta := map[string]string{
		statusMetaKey: strconv.Itoa(entry.Status),
	}
	if !entry.StoredAt.IsZero() {
		meta[storedAtMetaKey] = strconv.FormatInt(entry.StoredAt.Unix(), 10)
	}

	input := &s3.PutObjectInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(objectKey(generation, key)),
		Body:            bytes.NewReader(entry.Body),
		ContentType:     aws.String(entry.ContentType),
		ContentEncoding: aws.String(entry.Encoding),
		Metadata:        meta,
	}

	_, err := s.uploader.Upload(ctx, input)
	return err
}

func (s *S3Store) Delete(ctx context.Context, generation, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(generation, key)),
	})
	return err
}

func (s *S3Store) Keys(ctx context.Context, generation string) ([]string, error) {
	var keys []string
	prefix := generation + "/"
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			encoded := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			raw, err := base64.RawURLEncoding.DecodeString(encoded)
			if err != nil {
				continue
			}
			keys = append(keys, string(raw))
		}
	}
	return keys, nil
}

func (s *S3Store) Generations(ctx context.Context) ([]string, error) {
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Delimiter: aws.String("/"),
	})
	if err != nil {
		return nil, err
	}
	var generations []string
	for _, p := range out.CommonPrefixes {
		name := strings.TrimSuffix(aws.ToString(p.Prefix), "/")
		if name != "" {
			generations = append(generations, name)
		}
	}
	return generations, nil
}

func (s *S3Store) DeleteGeneration(ctx context.Context, generation string) error {
	prefix := generation + "/"
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return err
		}
		if len(page.Contents) == 0 {
			continue
		}
		objects := make([]types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			objects = append(objects, types.ObjectIdentifier{Key: obj.Key})
		}
		_, err = s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func parseStoredAt(meta map[string]string) time.Time {
	if meta == nil {
		return time.Time{}
	}
	val, ok := meta[storedAtMetaKey]
	if !ok {
		return time.Time{}
	}
	unix, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(unix, 0)
}

func parseStatus(meta map[string]string) int {
	if meta == nil {
		return 200
	}
	val, ok := meta[statusMetaKey]
	if !ok {
		return 200
	}
	status, err := strconv.Atoi(val)
	if err != nil {
		return 200
	}
	return status
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	return errors.As(err, &nsk)
}

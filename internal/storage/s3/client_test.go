package s3

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	cargoships3 "github.com/scttfrdmn/cargoship/pkg/aws/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capadapt/capadapt/pkg/errors"
)

type fakeAPI struct {
	mu      sync.Mutex
	objects map[string][]byte
	inputs  []*s3.PutObjectInput
	putErr  error
	headErr error
}

func (f *fakeAPI) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.putErr != nil {
		return nil, f.putErr
	}
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	f.objects[aws.ToString(params.Key)] = body
	f.inputs = append(f.inputs, params)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeAPI) HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	return &s3.HeadBucketOutput{}, nil
}

func newTestClient(api objectAPI, prefix string) *Client {
	cfg := NewDefaultConfig()
	cfg.Bucket = "backups"
	cfg.Prefix = prefix
	cfg.EnableCargoShipOptimization = false
	return newClient(api, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing bucket", func(c *Config) { c.Bucket = "" }, true},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }, true},
		{"negative concurrency", func(c *Config) { c.Concurrency = -2 }, true},
		{"tiny chunk", func(c *Config) { c.MultipartChunkSize = 1024 }, true},
		{"unknown tier", func(c *Config) { c.StorageTier = "COLD" }, true},
		{"empty tier", func(c *Config) { c.StorageTier = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			cfg.Bucket = "backups"
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewClient_RequiresBucket(t *testing.T) {
	_, err := NewClient(context.Background(), &Config{Region: "us-east-1"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.NewError(errors.ErrCodeMissingConfig, ""))
}

func TestClient_Store(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(api, "prod")

	location, err := c.Store(context.Background(), "hot/backup.jsonl", []byte("{}\n"))
	require.NoError(t, err)

	assert.Equal(t, "s3://backups/prod/hot/backup.jsonl", location)
	assert.Equal(t, []byte("{}\n"), api.objects["prod/hot/backup.jsonl"])

	require.Len(t, api.inputs, 1)
	in := api.inputs[0]
	assert.Equal(t, "backups", aws.ToString(in.Bucket))
	assert.Equal(t, "application/x-ndjson", aws.ToString(in.ContentType))
	assert.Equal(t, s3types.StorageClassStandardIa, in.StorageClass)
	assert.Equal(t, int64(3), aws.ToInt64(in.ContentLength))
}

func TestClient_Key(t *testing.T) {
	assert.Equal(t, "a/b", newTestClient(&fakeAPI{}, "").Key("/a/b"))
	assert.Equal(t, "p/a/b", newTestClient(&fakeAPI{}, "p/").Key("a/b"))
}

func TestClient_StoreEmptyName(t *testing.T) {
	_, err := newTestClient(&fakeAPI{}, "").Store(context.Background(), "", []byte("x"))
	assert.ErrorIs(t, err, errors.NewError(errors.ErrCodeInvalidConfig, ""))
}

func TestClient_CargoShipFallback(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(api, "")

	var archives []cargoships3.Archive
	c.upload = func(ctx context.Context, archive cargoships3.Archive) error {
		archives = append(archives, archive)
		return stderrors.New("transporter unavailable")
	}

	location, err := c.Store(context.Background(), "db/snap.badger", []byte("data"))
	require.NoError(t, err)
	assert.Equal(t, "s3://backups/db/snap.badger", location)

	require.Len(t, archives, 1)
	assert.Equal(t, "db/snap.badger", archives[0].Key)
	assert.Equal(t, int64(4), archives[0].Size)
	assert.Equal(t, "true", archives[0].Metadata["capadapt-backup"])
	assert.Len(t, api.inputs, 1, "falls back to PutObject")
}

func TestClient_CargoShipSuccessSkipsPutObject(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(api, "")
	c.upload = func(ctx context.Context, archive cargoships3.Archive) error { return nil }

	_, err := c.Store(context.Background(), "k", []byte("data"))
	require.NoError(t, err)
	assert.Empty(t, api.inputs)
}

func TestClient_StoreTimeout(t *testing.T) {
	c := newTestClient(&fakeAPI{}, "")
	c.config.RequestTimeout = time.Nanosecond
	c.upload = func(ctx context.Context, archive cargoships3.Archive) error {
		<-ctx.Done()
		return ctx.Err()
	}

	_, err := c.Store(context.Background(), "k", []byte("data"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.NewError(errors.ErrCodeOperationTimeout, ""))
}

func TestClient_TranslateError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		code      errors.ErrorCode
		retryable bool
	}{
		{"no such bucket", &s3types.NoSuchBucket{}, errors.ErrCodeBucketNotFound, false},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, errors.ErrCodeAccessDenied, false},
		{"throttled", &smithy.GenericAPIError{Code: "SlowDown"}, errors.ErrCodeNetworkError, true},
		{"not found", &smithy.GenericAPIError{Code: "NotFound"}, errors.ErrCodeBucketNotFound, false},
		{"canceled", context.Canceled, errors.ErrCodeOperationCanceled, false},
		{"other", stderrors.New("boom"), errors.ErrCodeStorageWrite, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(&fakeAPI{putErr: tt.err}, "")
			_, err := c.Store(context.Background(), "key", []byte("x"))
			require.Error(t, err)

			var capErr *errors.CapAdaptError
			require.True(t, stderrors.As(err, &capErr))
			assert.Equal(t, tt.code, capErr.Code)
			assert.Equal(t, tt.retryable, capErr.Retryable)
			assert.Equal(t, "s3", capErr.Component)
			assert.Equal(t, "key", capErr.Context["key"])
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestClient_HealthCheck(t *testing.T) {
	assert.NoError(t, newTestClient(&fakeAPI{}, "").HealthCheck(context.Background()))

	err := newTestClient(&fakeAPI{headErr: &smithy.GenericAPIError{Code: "Forbidden"}}, "").
		HealthCheck(context.Background())
	assert.ErrorIs(t, err, errors.NewError(errors.ErrCodeAccessDenied, ""))
}

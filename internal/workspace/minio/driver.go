// Package minio provides a MinIO implementation of workspace.Store.
//
// All workspaces share one bucket. A workspace is the key prefix
// "<workspace>/" and is considered created once its marker object exists.
//
// Usage:
//
//	store, err := minio.New(ctx, cfg)
//	if err != nil { ... }
//	defer store.Close()
package minio

import (
	"bytes"
	"context"
	"io"
	"path"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/koustreak/tablesmith/internal/errs"
	"github.com/koustreak/tablesmith/internal/workspace"
)

// markerObject is written under a workspace prefix when it is created.
const markerObject = ".workspace"

// Driver is a MinIO implementation of workspace.Store.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	client *miniogo.Client
	bucket string
}

var _ workspace.Store = (*Driver)(nil)

// New connects to MinIO using the provided Config, makes sure the configured
// bucket exists and returns a Driver.
func New(ctx context.Context, cfg *workspace.Config) (*Driver, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to create minio client", err)
	}

	d := &Driver{client: client, bucket: cfg.Bucket}
	if err := d.ensureBucket(ctx, cfg.Region); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Driver) ensureBucket(ctx context.Context, region string) error {
	ok, err := d.client.BucketExists(ctx, d.bucket)
	if err != nil {
		return mapError(err, "failed to check bucket "+d.bucket)
	}
	if ok {
		return nil
	}

	err = d.client.MakeBucket(ctx, d.bucket, miniogo.MakeBucketOptions{Region: region})
	if e := mapError(err, "failed to create bucket "+d.bucket); e != nil && !errs.IsAlreadyExists(e) {
		return e
	}
	return nil
}

// Ping verifies the bucket is reachable.
func (d *Driver) Ping(ctx context.Context) error {
	_, err := d.client.BucketExists(ctx, d.bucket)
	return mapErr(err, "ping failed")
}

// Close is a no-op: the SDK client holds no persistent connections.
func (d *Driver) Close() error {
	return nil
}

func (d *Driver) WorkspaceExists(ctx context.Context, ws string) (bool, error) {
	key, err := objectKey(ws, markerObject)
	if err != nil {
		return false, err
	}
	return d.exists(ctx, key)
}

func (d *Driver) CreateWorkspace(ctx context.Context, ws string) error {
	key, err := objectKey(ws, markerObject)
	if err != nil {
		return err
	}

	exists, err := d.exists(ctx, key)
	if err != nil {
		return err
	}
	if exists {
		return errs.Newf(errs.ErrKindAlreadyExists, "workspace %q already exists", ws)
	}
	return d.put(ctx, key, nil, "failed to create workspace "+ws)
}

func (d *Driver) WriteFile(ctx context.Context, ws, name string, content []byte) error {
	key, err := objectKey(ws, name)
	if err != nil {
		return err
	}
	return d.put(ctx, key, content, "failed to write "+key)
}

func (d *Driver) ReadFile(ctx context.Context, ws, name string) ([]byte, error) {
	key, err := objectKey(ws, name)
	if err != nil {
		return nil, err
	}

	obj, err := d.client.GetObject(ctx, d.bucket, key, miniogo.GetObjectOptions{})
	if err != nil {
		return nil, mapError(err, "failed to get "+key)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, mapError(err, "failed to read "+key)
	}
	return data, nil
}

func (d *Driver) FileExists(ctx context.Context, ws, name string) (bool, error) {
	key, err := objectKey(ws, name)
	if err != nil {
		return false, err
	}
	return d.exists(ctx, key)
}

// --- helpers ---

func (d *Driver) exists(ctx context.Context, key string) (bool, error) {
	_, err := d.client.StatObject(ctx, d.bucket, key, miniogo.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	e := mapError(err, "failed to stat "+key)
	if errs.IsNotFound(e) {
		return false, nil
	}
	return false, e
}

// put uploads content as a single object. S3 PUTs replace the whole object
// atomically, so readers see either the old or the new content.
func (d *Driver) put(ctx context.Context, key string, content []byte, msg string) error {
	_, err := d.client.PutObject(ctx, d.bucket, key, bytes.NewReader(content), int64(len(content)),
		miniogo.PutObjectOptions{ContentType: contentType(key)})
	return mapErr(err, msg)
}

func objectKey(ws, name string) (string, error) {
	cleanWS, err := workspace.CleanName(ws)
	if err != nil {
		return "", errs.Wrap(errs.ErrKindInvalidInput, "invalid workspace", err)
	}
	cleanName, err := workspace.CleanName(name)
	if err != nil {
		return "", errs.Wrap(errs.ErrKindInvalidInput, "invalid file name", err)
	}
	return path.Join(cleanWS, cleanName), nil
}

func contentType(key string) string {
	if path.Ext(key) == ".py" {
		return "text/x-python"
	}
	return "application/octet-stream"
}

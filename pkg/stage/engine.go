// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package stage implements the staged-file ingress/egress protocol: the
// server returns a signed-credential descriptor naming a cloud object store,
// and the client moves local files to or from it. Only AWS S3 stages are
// supported; Azure and GCS need server-behavior capture first.
package stage

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/stacklok/snowflake-client/pkg/errors"
	"github.com/stacklok/snowflake-client/pkg/logger"
	"github.com/stacklok/snowflake-client/pkg/protocol"
)

// Engine executes staged transfers described by PUT/GET responses.
//
// The server dictates src_locations, so a compromised server could name
// arbitrary local files. That trust boundary is inherent to the protocol and
// documented rather than repaired here.
type Engine struct {
	maxParallelUploads   int
	maxFileSizeThreshold int64
	newStore             StoreFactory
}

// Option configures an Engine.
type Option func(*Engine)

// WithStoreFactory replaces the object-store constructor. Tests use this to
// substitute an in-memory store.
func WithStoreFactory(f StoreFactory) Option {
	return func(e *Engine) {
		e.newStore = f
	}
}

// NewEngine creates a transfer engine. maxParallelUploads bounds the
// concurrent small-file uploads; files larger than maxFileSizeThreshold
// bytes are transferred sequentially.
func NewEngine(maxParallelUploads int, maxFileSizeThreshold int64, opts ...Option) *Engine {
	e := &Engine{
		maxParallelUploads:   maxParallelUploads,
		maxFileSizeThreshold: maxFileSizeThreshold,
		newStore:             newS3Store,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Put uploads the files named by the staging descriptor. Small files are
// uploaded with bounded parallelism, large files sequentially. The first
// failure aborts the batch; a cancelled batch may leave a subset of files
// uploaded.
func (e *Engine) Put(ctx context.Context, data *protocol.PutGetResponseData) error {
	info, err := awsOnly(data.StageInfo, "PUT")
	if err != nil {
		return err
	}

	store, bucketPath, err := e.openStore(info)
	if err != nil {
		return err
	}

	files, err := listFiles(data.SrcLocations, e.maxFileSizeThreshold)
	if err != nil {
		return err
	}
	logger.Debugw("uploading staged files",
		"small", len(files.small), "large", len(files.large), "bucketPath", bucketPath)

	if err := e.uploadParallel(ctx, store, files.small, bucketPath); err != nil {
		return err
	}
	return uploadSequential(ctx, store, files.large, bucketPath)
}

// Get downloads every object named by the staging descriptor into the
// descriptor's local location.
func (e *Engine) Get(ctx context.Context, data *protocol.PutGetResponseData) error {
	info, err := awsOnly(data.StageInfo, "GET")
	if err != nil {
		return err
	}

	if data.LocalLocation == nil || *data.LocalLocation == "" {
		return errors.NewInvalidLocalPathError("download target missing from staging descriptor")
	}
	localLocation := *data.LocalLocation

	store, bucketPath, err := e.openStore(info)
	if err != nil {
		return err
	}

	for _, name := range data.SrcLocations {
		body, err := store.Get(ctx, bucketPath+name)
		if err != nil {
			return errors.NewIOError("downloading staged file "+name, err)
		}
		dest := filepath.Join(localLocation, name)
		if err := os.WriteFile(dest, body, 0o600); err != nil {
			return errors.NewIOError("writing downloaded file "+dest, err)
		}
		logger.Debugw("downloaded staged file", "name", name, "dest", dest)
	}
	return nil
}

func awsOnly(info protocol.StageInfo, op string) (*protocol.AwsStageInfo, error) {
	switch {
	case info.Aws != nil:
		return info.Aws, nil
	case info.Azure != nil:
		return nil, errors.NewUnimplementedError(op + " local file requests for Azure")
	case info.Gcs != nil:
		return nil, errors.NewUnimplementedError(op + " local file requests for GCS")
	default:
		return nil, errors.NewUnexpectedResponseError("staging descriptor names no stage", nil)
	}
}

// openStore splits the stage location into bucket and path on the first
// slash and builds a store for the bucket. The server-supplied path ends in
// "/" when non-empty, so object keys are plain concatenations.
func (e *Engine) openStore(info *protocol.AwsStageInfo) (ObjectStore, string, error) {
	bucket, bucketPath, found := strings.Cut(info.Location, "/")
	if !found {
		return nil, "", errors.NewInvalidBucketPathError(info.Location)
	}

	store, err := e.newStore(info, bucket)
	if err != nil {
		return nil, "", err
	}
	return store, bucketPath, nil
}

func (e *Engine) uploadParallel(ctx context.Context, store ObjectStore, files []string, bucketPath string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxParallelUploads)
	for _, src := range files {
		g.Go(func() error {
			return uploadFile(ctx, store, src, bucketPath)
		})
	}
	return g.Wait()
}

func uploadSequential(ctx context.Context, store ObjectStore, files []string, bucketPath string) error {
	for _, src := range files {
		if err := uploadFile(ctx, store, src, bucketPath); err != nil {
			return err
		}
	}
	return nil
}

// uploadFile reads the whole file and writes it under the stage path keyed
// by its base name. File sizes may change between bucketing and upload; the
// read here wins.
func uploadFile(ctx context.Context, store ObjectStore, src, bucketPath string) error {
	filename := filepath.Base(src)
	if filename == "." || filename == string(filepath.Separator) {
		return errors.NewInvalidLocalPathError(src)
	}

	body, err := os.ReadFile(src)
	if err != nil {
		return errors.NewIOError("reading upload source "+src, err)
	}

	return store.Put(ctx, bucketPath+filename, body)
}

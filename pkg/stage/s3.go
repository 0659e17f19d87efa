// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package stage

import (
	"bytes"
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/stacklok/snowflake-client/pkg/protocol"
)

// ObjectStore is the slice of object-store behavior the engine needs. The
// default implementation talks to S3 with the server-issued temporary
// credentials; tests substitute an in-memory store.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// StoreFactory builds an ObjectStore for one staged transfer.
type StoreFactory func(info *protocol.AwsStageInfo, bucket string) (ObjectStore, error)

type s3Store struct {
	client *s3.Client
	bucket string
}

// newS3Store builds an S3 client from the staging descriptor's temporary
// credentials. Path-style addressing keeps bucket names out of DNS.
func newS3Store(info *protocol.AwsStageInfo, bucket string) (ObjectStore, error) {
	cfg := aws.Config{
		Region: info.Region,
		Credentials: credentials.NewStaticCredentialsProvider(
			info.Creds.AwsKeyID,
			info.Creds.AwsSecretKey,
			info.Creds.AwsToken,
		),
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
		if info.EndPoint != nil && *info.EndPoint != "" {
			o.BaseEndpoint = aws.String("https://" + *info.EndPoint)
		}
	})

	return &s3Store{client: client, bucket: bucket}, nil
}

func (s *s3Store) Put(ctx context.Context, key string, body []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	})
	return err
}

func (s *s3Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"encoding/json"
	"fmt"
)

// Command distinguishes the two directions of a staged transfer.
type Command string

// Staged-transfer directions.
const (
	CommandUpload   Command = "UPLOAD"
	CommandDownload Command = "DOWNLOAD"
)

// PutGetResponseData is the staging descriptor the server returns for PUT and
// GET statements. The client never chooses the stage; the server dictates
// bucket, credentials, parallelism, and thresholds.
type PutGetResponseData struct {
	Command Command `json:"command"`
	// LocalLocation is the download target directory for GET.
	LocalLocation *string `json:"localLocation"`
	// SrcLocations uses snake_case on the wire, unlike its siblings.
	SrcLocations []string `json:"src_locations"`
	// Parallel is the server-suggested upload parallelism for small files.
	Parallel int32 `json:"parallel"`
	// Threshold is the file size boundary between the parallel and the
	// sequential upload path.
	Threshold          int64              `json:"threshold"`
	AutoCompress       bool               `json:"autoCompress"`
	Overwrite          bool               `json:"overwrite"`
	SourceCompression  string             `json:"sourceCompression"`
	StageInfo          StageInfo          `json:"stageInfo"`
	EncryptionMaterial EncryptionMaterial `json:"encryptionMaterial"`
	// PresignedURLs is GCS-specific.
	PresignedURLs   []string             `json:"presignedUrls"`
	Parameters      []NameValueParameter `json:"parameters"`
	StatementTypeID *int64               `json:"statementTypeId"`
}

// StageInfo is the union of per-cloud stage descriptors. Exactly one of the
// variant fields is non-nil; discrimination is by the credential keys, with
// locationType as a fallback.
type StageInfo struct {
	Aws   *AwsStageInfo
	Azure *AzureStageInfo
	Gcs   *GcsStageInfo
}

// UnmarshalJSON resolves the stage kind from the creds object
// (AWS_KEY_ID / AZURE_SAS_TOKEN / GCS_ACCESS_TOKEN), falling back to
// locationType.
func (s *StageInfo) UnmarshalJSON(b []byte) error {
	var probe struct {
		LocationType string                     `json:"locationType"`
		Creds        map[string]json.RawMessage `json:"creds"`
	}
	if err := json.Unmarshal(b, &probe); err != nil {
		return err
	}

	switch {
	case hasField(probe.Creds, "AWS_KEY_ID") || probe.LocationType == "S3":
		s.Aws = new(AwsStageInfo)
		return json.Unmarshal(b, s.Aws)
	case hasField(probe.Creds, "AZURE_SAS_TOKEN") || probe.LocationType == "AZURE":
		s.Azure = new(AzureStageInfo)
		return json.Unmarshal(b, s.Azure)
	case hasField(probe.Creds, "GCS_ACCESS_TOKEN") || probe.LocationType == "GCS":
		s.Gcs = new(GcsStageInfo)
		return json.Unmarshal(b, s.Gcs)
	default:
		return fmt.Errorf("unknown stage location type %q", probe.LocationType)
	}
}

// AwsStageInfo describes an S3 stage.
type AwsStageInfo struct {
	LocationType string `json:"locationType"`
	// Location is "<bucket>/<path/>"; the path ends in "/" when non-empty.
	Location string         `json:"location"`
	Region   string         `json:"region"`
	Creds    AwsCredentials `json:"creds"`
	// EndPoint is set for FIPS deployments.
	EndPoint *string `json:"endPoint"`
}

// AwsCredentials are the temporary, session-scoped credentials issued by the
// server for a single staged transfer.
type AwsCredentials struct {
	AwsKeyID     string `json:"AWS_KEY_ID"`
	AwsSecretKey string `json:"AWS_SECRET_KEY"`
	AwsToken     string `json:"AWS_TOKEN"`
	AwsID        string `json:"AWS_ID"`
	AwsKey       string `json:"AWS_KEY"`
}

// AzureStageInfo describes an Azure blob stage.
type AzureStageInfo struct {
	LocationType   string           `json:"locationType"`
	Location       string           `json:"location"`
	StorageAccount string           `json:"storageAccount"`
	Creds          AzureCredentials `json:"creds"`
}

// AzureCredentials carry the SAS token for an Azure stage.
type AzureCredentials struct {
	AzureSasToken string `json:"AZURE_SAS_TOKEN"`
}

// GcsStageInfo describes a GCS stage.
type GcsStageInfo struct {
	LocationType   string         `json:"locationType"`
	Location       string         `json:"location"`
	StorageAccount string         `json:"storageAccount"`
	Creds          GcsCredentials `json:"creds"`
	PresignedURL   string         `json:"presignedUrl"`
}

// GcsCredentials carry the access token for a GCS stage.
type GcsCredentials struct {
	GcsAccessToken string `json:"GCS_ACCESS_TOKEN"`
}

// EncryptionMaterial is either a single object or a list, depending on how
// many files the statement names.
type EncryptionMaterial struct {
	Single   *PutGetEncryptionMaterial
	Multiple []PutGetEncryptionMaterial
}

// UnmarshalJSON accepts both the single-object and the list form.
func (m *EncryptionMaterial) UnmarshalJSON(b []byte) error {
	trimmed := string(b)
	if trimmed == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '[' {
		return json.Unmarshal(b, &m.Multiple)
	}
	m.Single = new(PutGetEncryptionMaterial)
	return json.Unmarshal(b, m.Single)
}

// PutGetEncryptionMaterial carries the per-query encryption keys. The client
// forwards them untouched; staged files rely on server-side encryption.
type PutGetEncryptionMaterial struct {
	// QueryStageMasterKey is base64 encoded.
	QueryStageMasterKey string `json:"queryStageMasterKey"`
	QueryID             string `json:"queryId"`
	SmkID               int64  `json:"smkId"`
}

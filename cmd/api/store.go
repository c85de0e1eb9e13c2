package main

import (
	"context"
	"strings"

	"github.com/sacrednumerology/sacred-backend/pkg/config"
	"github.com/sacrednumerology/sacred-backend/pkg/logger"
	"github.com/sacrednumerology/sacred-backend/pkg/storage"
	"github.com/sacrednumerology/sacred-backend/pkg/storage/gcs"
	"github.com/sacrednumerology/sacred-backend/pkg/storage/local"
)

const (
	localProofBucket = "proofs"
	localAssetBucket = "assets"
)

type buckets struct {
	proofs string
	assets string
}

// openObjectStore returns the store behind proofs and protected assets. Asset
// objects share the proof bucket when no asset bucket is configured.
func openObjectStore(ctx context.Context, cfg *config.Config, logg *logger.Logger) (storage.ObjectStore, buckets, error) {
	if strings.EqualFold(cfg.Storage.Driver, config.StorageDriverLocal) {
		store, err := local.New(cfg.Storage.LocalDir)
		if err != nil {
			return nil, buckets{}, err
		}
		b := buckets{proofs: localProofBucket, assets: localAssetBucket}
		if cfg.GCS.ProofBucket != "" {
			b.proofs = cfg.GCS.ProofBucket
		}
		if cfg.GCS.AssetBucket != "" {
			b.assets = cfg.GCS.AssetBucket
		}
		return store, b, nil
	}

	client, err := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
	if err != nil {
		return nil, buckets{}, err
	}
	b := buckets{proofs: cfg.GCS.ProofBucket, assets: cfg.GCS.AssetBucket}
	if b.assets == "" {
		b.assets = b.proofs
	}
	return client, b, nil
}

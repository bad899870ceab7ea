// Package backend opens the configured index backend.
package backend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ricesearch/rice-eval/internal/config"
	"github.com/ricesearch/rice-eval/internal/index"
	"github.com/ricesearch/rice-eval/internal/index/elastic"
	"github.com/ricesearch/rice-eval/internal/index/memory"
	"github.com/ricesearch/rice-eval/internal/index/sparse"
	"github.com/ricesearch/rice-eval/internal/pkg/errors"
	"github.com/ricesearch/rice-eval/internal/pkg/logger"
	"github.com/ricesearch/rice-eval/internal/qdrant"
)

// Backend names.
const (
	Memory        = "memory"
	Elasticsearch = "elasticsearch"
	Qdrant        = "qdrant"
)

// Open creates an empty index on the configured backend, serving every
// configured scoring model.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (index.Index, error) {
	models := index.ModelsFromConfig(cfg.Models)

	switch strings.ToLower(cfg.Index.Backend) {
	case Memory, "":
		return memory.New(models, log)

	case Elasticsearch:
		return elastic.New(ctx, elasticConfig(cfg.Elasticsearch), models, log)

	case Qdrant:
		if err := sparse.ValidateModels(models); err != nil {
			return nil, err
		}
		clientCfg, err := qdrant.ConfigFromURL(cfg.Qdrant.URL, cfg.Qdrant.APIKey,
			time.Duration(cfg.Qdrant.Timeout)*time.Second)
		if err != nil {
			return nil, errors.Wrap(errors.CodeValidation, "invalid qdrant configuration", err)
		}
		client, err := qdrant.NewClient(clientCfg)
		if err != nil {
			return nil, errors.Wrap(errors.CodeUnavailable, "connecting to qdrant", err)
		}
		x, err := sparse.New(client, sparse.Config{
			Collection: cfg.Qdrant.Collection,
			BatchSize:  cfg.Index.BatchSize,
		}, models, log)
		if err != nil {
			client.Close()
			return nil, err
		}
		return x, nil

	default:
		return nil, errors.New(errors.CodeValidation, fmt.Sprintf("unknown index backend: %s", cfg.Index.Backend))
	}
}

func elasticConfig(ec config.ElasticsearchConfig) elastic.Config {
	return elastic.Config{
		Addresses:  ec.Addresses,
		Username:   ec.Username,
		Password:   ec.Password,
		Index:      ec.Index,
		Workers:    ec.Workers,
		FlushBytes: ec.FlushBytes,
	}
}

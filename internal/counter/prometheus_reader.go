// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package counter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// PrometheusSumReader is a SumReader evaluating an instant query against a
// Prometheus-compatible API. The query must return the cumulative energy in
// joules; a vector result is summed over all its series.
type PrometheusSumReader struct {
	api    v1.API
	query  string
	logger *slog.Logger
}

var _ SumReader = (*PrometheusSumReader)(nil)

// NewPrometheusSumReader builds a reader for query on the API at address
func NewPrometheusSumReader(address, query string, logger *slog.Logger) (*PrometheusSumReader, error) {
	if query == "" {
		return nil, fmt.Errorf("sampler query must not be empty")
	}
	client, err := api.NewClient(api.Config{Address: address})
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus client for %q: %w", address, err)
	}
	return &PrometheusSumReader{
		api:    v1.NewAPI(client),
		query:  query,
		logger: logger.With("service", "sampler"),
	}, nil
}

func (p *PrometheusSumReader) Exists(ctx context.Context) (bool, error) {
	value, err := p.evaluate(ctx)
	if err != nil {
		return false, err
	}
	switch v := value.(type) {
	case model.Vector:
		return len(v) > 0, nil
	case *model.Scalar:
		return true, nil
	default:
		return false, nil
	}
}

func (p *PrometheusSumReader) ReadSum(ctx context.Context) (float64, error) {
	value, err := p.evaluate(ctx)
	if err != nil {
		return 0, err
	}

	switch v := value.(type) {
	case model.Vector:
		if len(v) == 0 {
			return 0, fmt.Errorf("query %q returned no samples", p.query)
		}
		sum := 0.0
		for _, sample := range v {
			sum += float64(sample.Value)
		}
		return sum, nil

	case *model.Scalar:
		return float64(v.Value), nil

	default:
		return 0, fmt.Errorf("unexpected result type %s for query %q", value.Type(), p.query)
	}
}

func (p *PrometheusSumReader) evaluate(ctx context.Context) (model.Value, error) {
	value, warnings, err := p.api.Query(ctx, p.query, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to execute query %q: %w", p.query, err)
	}
	for _, w := range warnings {
		p.logger.Warn("Query returned warning", "query", p.query, "warning", w)
	}
	return value, nil
}

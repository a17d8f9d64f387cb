// Copyright 2021 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package aggregateprocess runs the aggregation stage on sensitive microdata: it counts the attribute combos of
// the records, protects the counts, and persists the aggregates and the row indices.
package aggregateprocess

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	log "github.com/golang/glog"
	"github.com/google/synthetic-data-aggregation/pipeline/comboaggregator"
	"github.com/google/synthetic-data-aggregation/pipeline/protection"
	"github.com/google/synthetic-data-aggregation/pipeline/rowindex"
	"github.com/google/synthetic-data-aggregation/report/aggregatecodec"
	"github.com/google/synthetic-data-aggregation/report/reporttypes"
	"github.com/google/synthetic-data-aggregation/report/reportutils"
	"github.com/google/synthetic-data-aggregation/shared/utils"
)

// Config contains the options of the aggregation stage. It is read from and written to a JSON file.
type Config struct {
	SensitiveMicrodataPath      string   `json:"sensitive_microdata_path"`
	SensitiveMicrodataDelimiter string   `json:"sensitive_microdata_delimiter"`
	UseColumns                  []string `json:"use_columns"`
	RecordLimit                 int      `json:"record_limit"`
	SensitiveZeros              []string `json:"sensitive_zeros"`
	// Maximum combo length; -1 counts combos of any length.
	ReportingLength    int   `json:"reporting_length"`
	ReportingThreshold int64 `json:"reporting_threshold"`
	ReportingPrecision int64 `json:"reporting_precision"`
	ParallelJobs       int   `json:"parallel_jobs"`
	// Upper bound on the estimated combos of one length, ignored if not positive.
	MaxCombosPerLength float64 `json:"max_combos_per_length"`
	OutputDir          string  `json:"output_dir"`
	Prefix             string  `json:"prefix"`
}

// DefaultConfig returns the config with the default option values.
func DefaultConfig() *Config {
	return &Config{
		SensitiveMicrodataDelimiter: ",",
		UseColumns:                  []string{},
		RecordLimit:                 -1,
		SensitiveZeros:              []string{},
		ReportingLength:             3,
		ReportingThreshold:          10,
		ReportingPrecision:          10,
		ParallelJobs:                1,
		OutputDir:                   "./",
		Prefix:                      "my",
	}
}

// LoadConfig reads a JSON config file. Options missing in the file keep their default values.
func LoadConfig(ctx context.Context, filename string) (*Config, error) {
	b, err := utils.ReadBytes(ctx, filename)
	if err != nil {
		return nil, fmt.Errorf("reading config %q: %w", filename, err)
	}
	config := DefaultConfig()
	if err := json.Unmarshal(b, config); err != nil {
		return nil, fmt.Errorf("parsing config %q: %w", filename, err)
	}
	return config, nil
}

// SaveConfig writes the config in JSON format.
func SaveConfig(ctx context.Context, filename string, config *Config) error {
	b, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}
	return utils.WriteBytes(ctx, b, filename)
}

// Validate checks the option values.
func (c *Config) Validate() error {
	if c.SensitiveMicrodataPath == "" {
		return errors.New("sensitive_microdata_path is empty")
	}
	if c.ReportingLength < -1 {
		return fmt.Errorf("reporting_length should be -1 or non-negative, got %d", c.ReportingLength)
	}
	if c.ReportingThreshold < 0 {
		return fmt.Errorf("reporting_threshold should be non-negative, got %d", c.ReportingThreshold)
	}
	if c.Prefix == "" {
		return errors.New("prefix is empty")
	}
	return nil
}

func (c *Config) outputPath(suffix string) string {
	return utils.JoinPath(c.OutputDir, c.Prefix+suffix)
}

// SensitiveAggregatesPath returns the path of the raw counts.
func (c *Config) SensitiveAggregatesPath() string { return c.outputPath("_sensitive_aggregates.tsv") }

// ReportableAggregatesPath returns the path of the protected counts.
func (c *Config) ReportableAggregatesPath() string { return c.outputPath("_reportable_aggregates.tsv") }

// LengthStatsPath returns the path of the per-length summaries.
func (c *Config) LengthStatsPath() string { return c.outputPath("_reportable_length_stats.tsv") }

// IndicesPath returns the path of the row indices.
func (c *Config) IndicesPath() string { return c.outputPath("_indices.cbor") }

// ConfigPath returns the path where the effective config is saved.
func (c *Config) ConfigPath() string { return c.outputPath("_config.json") }

// Result holds the outcome of the aggregation stage.
type Result struct {
	// Number of normalized records, 0 if the aggregates were reloaded.
	RecordCount int
	// Protected number of records, as written in the reportable aggregates.
	ReportableRecordCount int64
	// Raw counts, nil if the aggregates were reloaded.
	Sensitive  reporttypes.CountTable
	Reportable reporttypes.CountTable
	Summaries  []protection.LengthSummary
	Indices    *rowindex.Indices
}

// Aggregate reads the sensitive microdata and writes the sensitive and reportable aggregates, the length
// summaries, the row indices and the effective config under the output directory.
func Aggregate(ctx context.Context, config *Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	data, err := reportutils.ReadMicrodata(ctx, config.SensitiveMicrodataPath, config.SensitiveMicrodataDelimiter, config.RecordLimit, config.UseColumns)
	if err != nil {
		return nil, err
	}
	records := reportutils.GenRecords(data, config.SensitiveZeros)
	log.Infof("normalized %d records with up to %d attributes", len(records), reportutils.MaxRecordLength(records))

	raw, err := comboaggregator.CountAll(records, &comboaggregator.CountParams{
		LengthLimit:        config.ReportingLength,
		Parallelism:        config.ParallelJobs,
		MaxCombosPerLength: config.MaxCombosPerLength,
	})
	if err != nil {
		return nil, fmt.Errorf("counting combos of %q: %w", config.SensitiveMicrodataPath, err)
	}
	recordCount := int64(len(records))
	if err := aggregatecodec.WriteAggregates(ctx, config.SensitiveAggregatesPath(), aggregatecodec.SensitiveHeader, raw, recordCount, false); err != nil {
		return nil, err
	}

	reportable := protection.ProtectTable(raw, config.ReportingThreshold, config.ReportingPrecision)
	protectedRecordCount := protection.Protect(recordCount, config.ReportingThreshold, config.ReportingPrecision)
	if err := aggregatecodec.WriteAggregates(ctx, config.ReportableAggregatesPath(), aggregatecodec.ReportableHeader, reportable, protectedRecordCount, true); err != nil {
		return nil, err
	}

	summaries := protection.SummarizeLengths(raw, reportable)
	if err := utils.WriteLines(ctx, protection.FormatLengthSummaries(summaries), config.LengthStatsPath()); err != nil {
		return nil, fmt.Errorf("writing length stats: %w", err)
	}

	indices := rowindex.BuildIndices(data, records, config.SensitiveZeros)
	if err := rowindex.SaveIndices(ctx, config.IndicesPath(), indices); err != nil {
		return nil, err
	}

	if err := SaveConfig(ctx, config.ConfigPath(), config); err != nil {
		return nil, fmt.Errorf("writing config: %w", err)
	}

	for _, s := range summaries {
		log.Infof("length %d: %d combos, %d reportable, %.2f%% suppressed", s.Length, s.Combos, s.Reportable, s.SuppressedPC)
	}
	return &Result{
		RecordCount:           len(records),
		ReportableRecordCount: protectedRecordCount,
		Sensitive:             raw,
		Reportable:            dropZeros(reportable),
		Summaries:             summaries,
		Indices:               indices,
	}, nil
}

// dropZeros returns the table without the suppressed combos, as it is read back from the reportable file.
func dropZeros(table reporttypes.CountTable) reporttypes.CountTable {
	result := make(reporttypes.CountTable)
	for length, counts := range table {
		for key, count := range counts {
			if count != 0 {
				result.Add(length, key, count)
			}
		}
	}
	return result
}

// LoadOrAggregate reloads the reportable aggregates if they exist, otherwise it runs Aggregate.
func LoadOrAggregate(ctx context.Context, config *Config) (*Result, error) {
	filename := config.ReportableAggregatesPath()
	exist, err := utils.IsFileExist(ctx, filename)
	if err != nil {
		return nil, err
	}
	if !exist {
		return Aggregate(ctx, config)
	}

	log.Infof("loading existing aggregates from %s", filename)
	lines, err := utils.ReadLines(ctx, filename)
	if err != nil {
		return nil, fmt.Errorf("reading aggregates %q: %w", filename, err)
	}
	result := &Result{Reportable: aggregatecodec.ParseAggregates(lines)}
	for _, line := range lines {
		if !strings.HasPrefix(line, "\t") {
			continue
		}
		if _, count, err := aggregatecodec.ParseAggregateLine(line); err == nil {
			result.ReportableRecordCount = count
		}
		break
	}

	if exist, err := utils.IsFileExist(ctx, config.IndicesPath()); err != nil {
		return nil, err
	} else if exist {
		if result.Indices, err = rowindex.LoadIndices(ctx, config.IndicesPath()); err != nil {
			return nil, err
		}
	}
	return result, nil
}

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

// This binary normalizes the sensitive microdata, counts and protects the attribute combos with a Beam
// pipeline, and consolidates the sharded output into aggregate files.
// The pipeline can be executed in two ways:
//
// 1. Directly on local
// /path/to/aggregate_microdata_pipeline \
// --sensitive_microdata_path=/path/to/microdata.csv \
// --output_dir=/path/to/output \
// --runner=direct
//
// 2. Dataflow on cloud
// /path/to/aggregate_microdata_pipeline \
// --sensitive_microdata_path=gs://<bucket>/microdata.csv \
// --output_dir=gs://<bucket>/output \
// --runner=dataflow \
// --project=<GCP project> \
// --temp_location=gs://<dataflow temp dir> \
// --staging_location=gs://<dataflow temp dir> \
// --worker_binary=/path/to/aggregate_microdata_pipeline
package main

import (
	"context"
	"flag"
	"strings"

	"github.com/apache/beam/sdks/v2/go/pkg/beam"
	"github.com/apache/beam/sdks/v2/go/pkg/beam/log"
	"github.com/apache/beam/sdks/v2/go/pkg/beam/x/beamx"
	"github.com/google/synthetic-data-aggregation/internal/aggregateprocess"
	"github.com/google/synthetic-data-aggregation/pipeline/beamaggregator"
	"github.com/google/synthetic-data-aggregation/report/aggregatecodec"
	"github.com/google/synthetic-data-aggregation/report/reportutils"
	"github.com/google/synthetic-data-aggregation/shared/utils"
)

var (
	sensitiveMicrodataPath      = flag.String("sensitive_microdata_path", "", "Input microdata file with a header line, local or on GCS.")
	sensitiveMicrodataDelimiter = flag.String("sensitive_microdata_delimiter", ",", "Delimiter of the microdata columns.")
	recordLimit                 = flag.Int("record_limit", -1, "Maximum number of rows to read, all rows if negative.")
	sensitiveZeros              = flag.String("sensitive_zeros", "", "Comma-separated columns where zero is a reportable value.")
	reportingLength             = flag.Int("reporting_length", 3, "Maximum combo length, -1 for any length.")
	reportingThreshold          = flag.Int64("reporting_threshold", 10, "Protected counts under the threshold are suppressed.")
	reportingPrecision          = flag.Int64("reporting_precision", 10, "Counts are rounded to multiples of the precision.")
	outputDir                   = flag.String("output_dir", "./", "Output directory, local or on GCS.")
	prefix                      = flag.String("prefix", "my", "Prefix of the output file names.")
	shards                      = flag.Int64("shards", 1, "Number of shards of the pipeline output.")
)

func main() {
	flag.Parse()

	beam.Init()

	ctx := context.Background()

	config := aggregateprocess.DefaultConfig()
	config.SensitiveMicrodataPath = *sensitiveMicrodataPath
	config.SensitiveMicrodataDelimiter = *sensitiveMicrodataDelimiter
	config.RecordLimit = *recordLimit
	if *sensitiveZeros != "" {
		config.SensitiveZeros = strings.Split(*sensitiveZeros, ",")
	}
	config.ReportingLength = *reportingLength
	config.ReportingThreshold = *reportingThreshold
	config.ReportingPrecision = *reportingPrecision
	config.OutputDir = *outputDir
	config.Prefix = *prefix
	if err := config.Validate(); err != nil {
		log.Exit(ctx, err)
	}

	data, err := reportutils.ReadMicrodata(ctx, config.SensitiveMicrodataPath, config.SensitiveMicrodataDelimiter, config.RecordLimit, config.UseColumns)
	if err != nil {
		log.Exit(ctx, err)
	}
	records := reportutils.GenRecords(data, config.SensitiveZeros)
	lines := make([]string, len(records))
	for i, r := range records {
		lines[i] = beamaggregator.FormatRecord(i, r)
	}
	recordURI := utils.JoinPath(config.OutputDir, config.Prefix+"_records.txt")
	if err := utils.WriteLines(ctx, lines, recordURI); err != nil {
		log.Exit(ctx, err)
	}

	params := &beamaggregator.AggregateParams{
		RecordURI:               recordURI,
		SensitiveAggregatesURI:  utils.JoinPath(config.OutputDir, config.Prefix+"_sensitive_shards.txt"),
		ReportableAggregatesURI: utils.JoinPath(config.OutputDir, config.Prefix+"_reportable_shards.txt"),
		LengthLimit:             config.ReportingLength,
		Threshold:               config.ReportingThreshold,
		Precision:               config.ReportingPrecision,
		Shards:                  *shards,
	}

	pipeline := beam.NewPipeline()
	scope := pipeline.Root()
	beamaggregator.AggregateRecords(scope, params)
	if err := beamx.Run(ctx, pipeline); err != nil {
		log.Exitf(ctx, "Failed to execute job: %s", err)
	}

	for _, output := range []struct{ uri, filename, header string }{
		{params.SensitiveAggregatesURI, config.SensitiveAggregatesPath(), aggregatecodec.SensitiveHeader},
		{params.ReportableAggregatesURI, config.ReportableAggregatesPath(), aggregatecodec.ReportableHeader},
	} {
		glob := beamaggregator.ShardGlob(output.uri, params.Shards)
		outputExist, err := utils.IsFileGlobExist(ctx, glob)
		if err != nil {
			log.Exit(ctx, err)
		} else if !outputExist {
			log.Exitf(ctx, "pipeline output not found: %q", glob)
		}
		if _, err := beamaggregator.ConsolidateAggregates(ctx, output.uri, params.Shards, output.filename, output.header); err != nil {
			log.Exit(ctx, err)
		}
	}
	if err := aggregateprocess.SaveConfig(ctx, config.ConfigPath(), config); err != nil {
		log.Exit(ctx, err)
	}
	log.Infof(ctx, "wrote %s and %s", config.SensitiveAggregatesPath(), config.ReportableAggregatesPath())
}

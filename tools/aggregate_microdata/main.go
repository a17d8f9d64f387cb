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

// This binary counts the attribute combos of sensitive microdata and writes the sensitive and reportable
// aggregates. The options can be set in a JSON config file, and the flags set explicitly override them:
//
// /path/to/aggregate_microdata \
// --config=/path/to/config.json \
// --sensitive_microdata_path=/path/to/microdata.csv \
// --reporting_length=3 \
// --output_dir=gs://<bucket>/output
//
// Existing reportable aggregates are reused unless --force is set.
package main

import (
	"context"
	"flag"
	"strings"

	"cloud.google.com/go/profiler"
	log "github.com/golang/glog"
	"github.com/google/synthetic-data-aggregation/internal/aggregateprocess"
)

var (
	configFile = flag.String("config", "", "JSON config file; options missing in the file take their default values.")

	sensitiveMicrodataPath      = flag.String("sensitive_microdata_path", "", "Input microdata file with a header line, local or on GCS.")
	sensitiveMicrodataDelimiter = flag.String("sensitive_microdata_delimiter", ",", "Delimiter of the microdata columns.")
	useColumns                  = flag.String("use_columns", "", "Comma-separated columns to aggregate, all columns if empty.")
	recordLimit                 = flag.Int("record_limit", -1, "Maximum number of rows to read, all rows if negative.")
	sensitiveZeros              = flag.String("sensitive_zeros", "", "Comma-separated columns where zero is a reportable value.")
	reportingLength             = flag.Int("reporting_length", 3, "Maximum combo length, -1 for any length.")
	reportingThreshold          = flag.Int64("reporting_threshold", 10, "Protected counts under the threshold are suppressed.")
	reportingPrecision          = flag.Int64("reporting_precision", 10, "Counts are rounded to multiples of the precision.")
	parallelJobs                = flag.Int("parallel_jobs", 1, "Number of workers counting the combos of one length.")
	maxCombosPerLength          = flag.Float64("max_combos_per_length", 0, "Fail if the estimated combos of a length exceed the limit, ignored if not positive.")
	outputDir                   = flag.String("output_dir", "./", "Output directory, local or on GCS.")
	prefix                      = flag.String("prefix", "my", "Prefix of the output file names.")

	force = flag.Bool("force", false, "Aggregate again even if the reportable aggregates exist.")

	enableProfiler  = flag.Bool("enable_profiler", false, "Enable Cloud Profiler.")
	profilerProject = flag.String("profiler_project", "", "GCP project for Cloud Profiler, detected from the environment if empty.")

	version string // set by linker -X
)

func splitList(s string) []string {
	if s == "" {
		return []string{}
	}
	var result []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			result = append(result, v)
		}
	}
	return result
}

func loadConfig(ctx context.Context) (*aggregateprocess.Config, error) {
	config := aggregateprocess.DefaultConfig()
	if *configFile != "" {
		var err error
		if config, err = aggregateprocess.LoadConfig(ctx, *configFile); err != nil {
			return nil, err
		}
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "sensitive_microdata_path":
			config.SensitiveMicrodataPath = *sensitiveMicrodataPath
		case "sensitive_microdata_delimiter":
			config.SensitiveMicrodataDelimiter = *sensitiveMicrodataDelimiter
		case "use_columns":
			config.UseColumns = splitList(*useColumns)
		case "record_limit":
			config.RecordLimit = *recordLimit
		case "sensitive_zeros":
			config.SensitiveZeros = splitList(*sensitiveZeros)
		case "reporting_length":
			config.ReportingLength = *reportingLength
		case "reporting_threshold":
			config.ReportingThreshold = *reportingThreshold
		case "reporting_precision":
			config.ReportingPrecision = *reportingPrecision
		case "parallel_jobs":
			config.ParallelJobs = *parallelJobs
		case "max_combos_per_length":
			config.MaxCombosPerLength = *maxCombosPerLength
		case "output_dir":
			config.OutputDir = *outputDir
		case "prefix":
			config.Prefix = *prefix
		}
	})
	return config, config.Validate()
}

func main() {
	flag.Parse()

	if *enableProfiler {
		if err := profiler.Start(profiler.Config{
			Service:        "aggregate-microdata",
			ServiceVersion: version,
			ProjectID:      *profilerProject,
		}); err != nil {
			log.Warningf("failed to start profiler: %v", err)
		}
	}

	ctx := context.Background()
	config, err := loadConfig(ctx)
	if err != nil {
		log.Exit(err)
	}

	var result *aggregateprocess.Result
	if *force {
		result, err = aggregateprocess.Aggregate(ctx, config)
	} else {
		result, err = aggregateprocess.LoadOrAggregate(ctx, config)
	}
	if err != nil {
		log.Exit(err)
	}

	combos := 0
	for _, counts := range result.Reportable {
		combos += len(counts)
	}
	log.Infof("%d reportable records, %d reportable combos in %s", result.ReportableRecordCount, combos, config.ReportableAggregatesPath())
}

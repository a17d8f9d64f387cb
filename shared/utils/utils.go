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

// Package utils contains basic utilities.
package utils

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/apache/beam/sdks/v2/go/pkg/beam/io/filesystem"
	log "github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/ugorji/go/codec"

	// The following packages are required to read files from GCS or local.
	_ "github.com/apache/beam/sdks/v2/go/pkg/beam/io/filesystem/gcs"
	_ "github.com/apache/beam/sdks/v2/go/pkg/beam/io/filesystem/local"
)

// ParseGCSPath gets the bucket and object names from the input filename.
func ParseGCSPath(filename string) (bucket, object string, err error) {
	parsed, err := url.Parse(filename)
	if err != nil {
		return
	}
	if parsed.Scheme != "gs" {
		err = fmt.Errorf("object %q must have 'gs' scheme", filename)
		return
	}
	if parsed.Host == "" {
		err = fmt.Errorf("object %q must have bucket", filename)
		return
	}

	bucket = parsed.Host
	if parsed.Path != "" {
		object = parsed.Path[1:]
	}
	return
}

func scanLines(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	// Rows of wide microdata files and long combos can exceed the default token size.
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)

	var result []string
	for scanner.Scan() {
		result = append(result, scanner.Text())
	}
	return result, scanner.Err()
}

// ReadLines reads the input file line by line and returns the content as a slice of strings.
//
// The file can be stored locally or in the GCS.
func ReadLines(ctx context.Context, filename string) ([]string, error) {
	if strings.HasPrefix(filename, "gs://") {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, err
		}
		defer client.Close()

		bucket, object, err := ParseGCSPath(filename)
		if err != nil {
			return nil, err
		}
		reader, err := client.Bucket(bucket).Object(object).NewReader(ctx)
		if err != nil {
			return nil, err
		}
		defer reader.Close()
		return scanLines(reader)
	}

	fs, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer fs.Close()
	return scanLines(fs)
}

func writeLinesTo(w io.Writer, lines []string) error {
	buf := bufio.NewWriter(w)
	for _, line := range lines {
		if _, err := buf.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	return buf.Flush()
}

// WriteLines writes the input string slice to the output file, one string per line.
//
// The file can be stored locally or in the GCS. Local files are written to a temporary file first and
// renamed, so readers never observe a partially written file.
func WriteLines(ctx context.Context, lines []string, filename string) error {
	if strings.HasPrefix(filename, "gs://") {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return err
		}
		defer client.Close()

		bucket, object, err := ParseGCSPath(filename)
		if err != nil {
			return err
		}
		cw := client.Bucket(bucket).Object(object).NewWriter(ctx)
		if err := writeLinesTo(cw, lines); err != nil {
			cw.Close()
			return err
		}
		return cw.Close()
	}

	// create all dirs if not existing, ignore errors
	if dir := filepath.Dir(filename); dir != "." {
		os.MkdirAll(dir, os.ModePerm)
	}

	tmpName := fmt.Sprintf("%s.%s.tmp", filename, uuid.New().String())
	fs, err := os.OpenFile(tmpName, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if err := writeLinesTo(fs, lines); err != nil {
		fs.Close()
		os.Remove(tmpName)
		return err
	}
	if err := fs.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, filename)
}

// TODO: Add a unit test for writing and reading files in GCS buckets
func writeGCSObject(ctx context.Context, data []byte, filename string) error {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	bucket, object, err := ParseGCSPath(filename)
	if err != nil {
		return err
	}
	writer := client.Bucket(bucket).Object(object).NewWriter(ctx)
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return err
	}

	return writer.Close()
}

func readGCSObject(ctx context.Context, filename string) ([]byte, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	bucket, object, err := ParseGCSPath(filename)
	if err != nil {
		return nil, err
	}
	reader, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return ioutil.ReadAll(reader)
}

// WriteBytes writes bytes into a local or GCS file.
func WriteBytes(ctx context.Context, data []byte, filename string) error {
	if strings.HasPrefix(filename, "gs://") {
		return writeGCSObject(ctx, data, filename)
	}
	if dir := filepath.Dir(filename); dir != "." {
		os.MkdirAll(dir, os.ModePerm)
	}
	return ioutil.WriteFile(filename, data, 0644)
}

// ReadBytes reads bytes from a local or GCS file.
func ReadBytes(ctx context.Context, filename string) ([]byte, error) {
	if strings.HasPrefix(filename, "gs://") {
		return readGCSObject(ctx, filename)
	}
	return ioutil.ReadFile(filename)
}

// MarshalCBOR serializes the input data in CBOR format.
func MarshalCBOR(v interface{}) ([]byte, error) {
	encBuf := new(bytes.Buffer)
	enc := codec.NewEncoder(encBuf, &codec.CborHandle{})
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return encBuf.Bytes(), nil
}

// UnmarshalCBOR parses the bytes in CBOR format.
func UnmarshalCBOR(b []byte, v interface{}) error {
	decBuf := bytes.NewBuffer(b)
	dec := codec.NewDecoder(decBuf, &codec.CborHandle{})
	return dec.Decode(v)
}

// JoinPath joins the directory and the filename to get the full path of a file.
func JoinPath(directory, filename string) string {
	// Function path.Join does not work for GCS files, for example:
	// path.Join("gs://foo", "bar") returns "gs:/foo/bar"
	if strings.HasPrefix(directory, "gs://") {
		if strings.HasSuffix(directory, "/") {
			return fmt.Sprintf("%s%s", directory, filename)
		}
		return fmt.Sprintf("%s/%s", directory, filename)
	}
	return path.Join(directory, filename)
}

// AddStrInPath adds a string in the file name before the file extension.
//
// For example: AddStrInPath("/foo/x.bar", "_baz") = "/foo/x_baz.bar"
func AddStrInPath(path, str string) string {
	ext := filepath.Ext(path)
	return path[:len(path)-len(ext)] + str + ext
}

// IsFileExist checks if a local or GCS file exists.
func IsFileExist(ctx context.Context, filename string) (bool, error) {
	if strings.HasPrefix(filename, "gs://") {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return false, err
		}
		defer client.Close()
		return IsGCSObjectExist(ctx, client, filename)
	}

	_, err := os.Stat(filename)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// IsGCSObjectExist checks if a GCS object exists.
func IsGCSObjectExist(ctx context.Context, client *storage.Client, filename string) (bool, error) {
	bucket, object, err := ParseGCSPath(filename)
	if err != nil {
		return false, err
	}
	_, err = client.Bucket(bucket).Object(object).Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	return false, err
}

// IsFileGlobExist checks if there is any file that matches the input pattern.
func IsFileGlobExist(ctx context.Context, glob string) (bool, error) {
	files, err := listGlob(ctx, glob)
	if err != nil {
		return false, err
	}
	return len(files) > 0, nil
}

func listGlob(ctx context.Context, glob string) ([]string, error) {
	if strings.TrimSpace(glob) == "" {
		return nil, nil
	}
	fs, err := filesystem.New(ctx, glob)
	if err != nil {
		return nil, err
	}
	defer fs.Close()

	files, err := fs.List(ctx, glob)
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// ReadGlobLines reads all the files matching the pattern, in file name order, and concatenates their lines.
//
// It is used for collecting the sharded outputs of the Beam pipelines, which can be stored locally or in the GCS.
func ReadGlobLines(ctx context.Context, glob string) ([]string, error) {
	files, err := listGlob(ctx, glob)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no file matches %q", glob)
	}

	fs, err := filesystem.New(ctx, glob)
	if err != nil {
		return nil, err
	}
	defer fs.Close()

	var lines []string
	for _, f := range files {
		reader, err := fs.OpenRead(ctx, f)
		if err != nil {
			return nil, err
		}
		got, err := scanLines(reader)
		reader.Close()
		if err != nil {
			return nil, fmt.Errorf("failed reading %q: %w", f, err)
		}
		log.V(1).Infof("read %d lines from %s", len(got), f)
		lines = append(lines, got...)
	}
	return lines, nil
}

/*
Copyright 2025 The phfit Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package bufferdb

import (
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"gopkg.in/yaml.v3"
)

// Load reads and parses a buffer database from a YAML file.
func Load(path string, log logr.Logger) (*Database, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read buffer database %s: %w", path, err)
	}
	db, err := Parse(data, log)
	if err != nil {
		return nil, fmt.Errorf("parse buffer database %s: %w", path, err)
	}
	return db, nil
}

// Parse decodes a buffer database from YAML.
//
// Structural problems (duplicate IDs, dangling sample references, invalid
// samples) fail the whole parse. An individually invalid buffer record is
// skipped with a logged reason so one bad entry does not take down the rest
// of the database.
func Parse(data []byte, log logr.Logger) (*Database, error) {
	var db Database
	if err := yaml.Unmarshal(data, &db); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	db.samplesByID = make(map[string]Sample, len(db.Samples))
	for i := range db.Samples {
		s := db.Samples[i]
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if _, dup := db.samplesByID[s.ID]; dup {
			return nil, fmt.Errorf("duplicate sample id %q", s.ID)
		}
		db.samplesByID[s.ID] = s
	}

	seen := make(map[string]bool, len(db.Buffers))
	kept := db.Buffers[:0]
	for _, b := range db.Buffers {
		if seen[b.ID] {
			return nil, fmt.Errorf("duplicate buffer id %q", b.ID)
		}
		if b.ID != "" {
			seen[b.ID] = true
		}
		if err := b.Validate(); err != nil {
			log.Info("Skipping invalid buffer record", "buffer", b.ID, "error", err.Error())
			continue
		}
		if _, ok := db.samplesByID[b.SampleID]; !ok {
			return nil, fmt.Errorf("buffer %s references unknown sample %q", b.ID, b.SampleID)
		}
		kept = append(kept, b)
	}
	db.Buffers = kept

	return &db, nil
}

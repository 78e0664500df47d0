/* Copyright 2019 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package sio

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/millrace/millrace/core"
)

// ReadRecords reads one JSON record per line:
//
//	{"identity":"user-1","time":"2016-02-10T00:00:00Z","data":{...}}
//
// Blank lines and lines starting with '#' are skipped.  A record
// without an identity or an event time is an error; we'd rather stop
// than silently aggregate under the wrong key.
func ReadRecords(rd io.Reader) ([]*core.Record, error) {
	scanner := bufio.NewScanner(rd)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	recs := make([]*core.Record, 0, 1024)
	line := 0
	for scanner.Scan() {
		line++
		s := strings.TrimSpace(scanner.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		var rec core.Record
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			return nil, fmt.Errorf("record at line %d: %w", line, err)
		}
		if rec.Identity == "" {
			return nil, fmt.Errorf("record at line %d has no identity", line)
		}
		if rec.Time.IsZero() {
			return nil, fmt.Errorf("record at line %d has no time", line)
		}
		recs = append(recs, &rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return recs, nil
}

// ReadRecordsFile reads records from the given file.
func ReadRecordsFile(filename string) ([]*core.Record, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadRecords(f)
}

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
	"os"

	"github.com/millrace/millrace/core"

	"github.com/jsccast/yaml"
)

// LoadSpec parses a YAML (or JSON) spec.
//
// We use a YAML parser that returns map[string]interface{} instead of
// map[interface{}]interface{}, so declared defaults arrive in the
// shape expressions and snapshots use.
//
// The caller still needs to Compile the spec.
func LoadSpec(bs []byte) (*core.Spec, error) {
	var spec core.Spec
	if err := yaml.Unmarshal(bs, &spec); err != nil {
		return nil, err
	}
	return &spec, nil
}

// LoadSpecFile reads and parses a spec file.
func LoadSpecFile(filename string) (*core.Spec, error) {
	bs, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return LoadSpec(bs)
}

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

package core

import "time"

// Record is one identity-scoped event.
//
// The producer is responsible for well-typed records delivered in
// non-decreasing Time order per identity.  Out-of-order delivery
// breaks window rollover and is not handled here.
type Record struct {
	// Identity names the entity this event belongs to.
	Identity string `json:"identity"`

	// Time is the event time, not the processing time.
	Time time.Time `json:"time"`

	// Data is the event's field mapping, exposed to expressions
	// as "source".
	Data map[string]interface{} `json:"data,omitempty"`
}

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

// mill runs a spec over a file of records and writes the resulting
// snapshots as JSON.
//
// Example:
//
//	mill -spec game.yaml -records events.jsonl -db state.db
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/millrace/millrace/core"
	gojaInterp "github.com/millrace/millrace/interpreters/goja"
	"github.com/millrace/millrace/sio"
	"github.com/millrace/millrace/store"
	"github.com/millrace/millrace/store/bolt"
	"github.com/millrace/millrace/tools"
	"github.com/millrace/millrace/util"
)

func main() {
	var (
		specFilename    = flag.String("spec", "", "spec filename (YAML)")
		recordsFilename = flag.String("records", "", "records filename (JSONL); '-' for stdin")
		dbFilename      = flag.String("db", "", "bbolt database filename; empty for in-memory state")
		htmlFilename    = flag.String("html", "", "also render the spec as HTML to this file")
		evict           = flag.Bool("evict", false, "evict snapshots from the store after export")
		workers         = flag.Int("workers", 0, "max identities processed concurrently")
		verbose         = flag.Bool("v", false, "verbosity")
	)

	flag.Parse()
	util.Logging = *verbose

	if err := run(*specFilename, *recordsFilename, *dbFilename, *htmlFilename, *evict, *workers); err != nil {
		log.Fatal(err)
	}
}

func run(specFilename, recordsFilename, dbFilename, htmlFilename string, evict bool, workers int) error {
	if specFilename == "" {
		return fmt.Errorf("-spec is required")
	}

	spec, err := sio.LoadSpecFile(specFilename)
	if err != nil {
		return err
	}

	ctx := context.Background()

	if err = spec.Compile(ctx, core.DefaultRegistry, gojaInterp.NewInterpreter()); err != nil {
		return err
	}

	if htmlFilename != "" {
		f, err := os.Create(htmlFilename)
		if err != nil {
			return err
		}
		if err = tools.RenderSpecPage(spec, f, nil); err != nil {
			f.Close()
			return err
		}
		if err = f.Close(); err != nil {
			return err
		}
	}

	if recordsFilename == "" {
		// Just spec work (say -html); nothing to run.
		return nil
	}

	var recs []*core.Record
	if recordsFilename == "-" {
		recs, err = sio.ReadRecords(os.Stdin)
	} else {
		recs, err = sio.ReadRecordsFile(recordsFilename)
	}
	if err != nil {
		return err
	}

	var st store.Store
	if dbFilename == "" {
		st = store.NewMem()
	} else {
		bs, err := bolt.NewStore(dbFilename)
		if err != nil {
			return err
		}
		if err = bs.Open(); err != nil {
			return err
		}
		defer bs.Close()
		bs.Debug = util.Logging
		st = bs
	}

	runner := sio.NewRunner(spec, st)
	runner.Workers = workers

	result, err := runner.Run(ctx, recs)
	if err != nil {
		return err
	}

	for identity, errs := range result.EvalErrors {
		for _, e := range errs {
			log.Printf("warning: identity %s: %v", identity, e)
		}
	}

	ids := result.Identities()
	if err = runner.WriteSnapshots(os.Stdout, ids); err != nil {
		return err
	}

	if evict {
		for _, identity := range ids {
			if err = runner.Evict(identity); err != nil {
				return err
			}
		}
	}

	return nil
}

// Command kprof converts a kernel counter dump — the text
// internal/stats.String formats, collected off the serial console by
// cmd/kmonitor during a run — into a pprof profile.Profile, written as
// a .pb.gz for `go tool pprof`. Ground: biscuit's stats package is the
// source of the counters themselves (see internal/stats); converting
// them into pprof's own format is this expansion's use of the
// teacher's direct github.com/google/pprof dependency, with
// github.com/ianlancetaylor/demangle riding along as pprof's own
// indirect dependency for symbol demangling.
package main

import (
	"bufio"
	"flag"
	"log"
	"os"
	"regexp"
	"strconv"

	"github.com/google/pprof/profile"
)

// lineRE matches one internal/stats.String line: "\t#Name: Value".
var lineRE = regexp.MustCompile(`^\s*#([A-Za-z0-9_]+):\s*(-?\d+)\s*$`)

func main() {
	in := flag.String("in", "-", "counter dump file, or - for stdin")
	out := flag.String("out", "kernel.pb.gz", "output pprof profile path")
	unit := flag.String("unit", "count", "sample value unit (count, cycles)")
	flag.Parse()

	samples, err := parseDump(*in)
	if err != nil {
		log.Fatal(err)
	}
	if len(samples) == 0 {
		log.Fatal("kprof: no counter lines found in input")
	}

	prof := buildProfile(samples, *unit)
	if err := prof.CheckValid(); err != nil {
		log.Fatalf("kprof: built an invalid profile: %v", err)
	}

	f, err := os.Create(*out)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	if err := prof.Write(f); err != nil {
		log.Fatalf("kprof: writing %s: %v", *out, err)
	}
	log.Printf("kprof: wrote %s (%d samples)", *out, len(samples))
}

type namedValue struct {
	name  string
	value int64
}

func parseDump(path string) ([]namedValue, error) {
	var r *os.File
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var out []namedValue
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		m := lineRE.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		v, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			continue
		}
		out = append(out, namedValue{name: m[1], value: v})
	}
	return out, sc.Err()
}

// buildProfile lays each counter out as its own Location/Function
// pair (there is no real call-stack symbolication to attach a counter
// to), matching the flat "one leaf sample per named event" shape
// internal/stats.Snapshot already produces.
func buildProfile(samples []namedValue, unit string) *profile.Profile {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "counter", Unit: unit}},
		TimeNanos:  0,
		Period:     1,
		PeriodType: &profile.ValueType{Type: "counter", Unit: unit},
	}

	var nextID uint64 = 1
	for _, s := range samples {
		fn := &profile.Function{ID: nextID, Name: s.name, SystemName: s.name}
		loc := &profile.Location{ID: nextID, Address: nextID, Line: []profile.Line{{Function: fn}}}
		p.Function = append(p.Function, fn)
		p.Location = append(p.Location, loc)
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{s.value},
		})
		nextID++
	}
	return p
}

// Package bench sweeps one load parameter over a range and collects the mean
// round trip latency of each run.
package bench

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"

	"github.com/multisocket/archbench/errs"
	"github.com/multisocket/archbench/stats"
)

// Criteria names the load parameter being varied.
type Criteria string

// Criteria values
const (
	CriteriaSize    Criteria = "size"
	CriteriaClients Criteria = "clients"
	CriteriaDelay   Criteria = "delay"
)

// ParseCriteria parses a criteria name.
func ParseCriteria(s string) (Criteria, error) {
	switch c := Criteria(strings.ToLower(s)); c {
	case CriteriaSize, CriteriaClients, CriteriaDelay:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", errs.ErrBadCriteria, s)
}

// Header is the column title of the criteria value.
func (c Criteria) Header() string {
	switch c {
	case CriteriaSize:
		return "ArraySize"
	case CriteriaClients:
		return "Clients"
	case CriteriaDelay:
		return "Delay(ms)"
	}
	return string(c)
}

// Range is an inclusive range of criteria values.
type Range struct {
	Start int
	End   int
	Step  int
}

// Validate checks the range is non-empty and advances.
func (r Range) Validate() error {
	if r.Step <= 0 {
		return fmt.Errorf("%w: step %d", errs.ErrBadRange, r.Step)
	}
	if r.Start < 0 || r.End < r.Start {
		return fmt.Errorf("%w: [%d, %d]", errs.ErrBadRange, r.Start, r.End)
	}
	return nil
}

// Values lists the range's values in ascending order.
func (r Range) Values() []int {
	var vals []int
	for v := r.Start; v <= r.End; v += r.Step {
		vals = append(vals, v)
	}
	return vals
}

// Params are the load parameters of a single run.
type Params struct {
	ArraySize int
	Requests  int
	Clients   int
	Delay     time.Duration
}

// With returns p with the parameter named by c set to v. Delay values are
// milliseconds.
func (p Params) With(c Criteria, v int) Params {
	switch c {
	case CriteriaSize:
		p.ArraySize = v
	case CriteriaClients:
		p.Clients = v
	case CriteriaDelay:
		p.Delay = time.Duration(v) * time.Millisecond
	}
	return p
}

// Runner executes one load run.
type Runner interface {
	Run(ctx context.Context) (*stats.Statistics, error)
}

// RunnerFactory creates the runner for a set of parameters.
type RunnerFactory func(Params) (Runner, error)

// Point is the outcome of one run.
type Point struct {
	Value   int
	Mean    float64
	Samples int64
}

// Result is a completed sweep, ordered by criteria value.
type Result struct {
	Criteria Criteria
	Fixed    Params
	Points   []Point
}

// RunSweep runs one load per value of rng, varying criteria over fixed. Runs
// are sequential. A failed run, or one without samples, aborts the sweep.
func RunSweep(ctx context.Context, factory RunnerFactory, criteria Criteria, rng Range, fixed Params) (*Result, error) {
	if _, err := ParseCriteria(string(criteria)); err != nil {
		return nil, err
	}
	if err := rng.Validate(); err != nil {
		return nil, err
	}

	res := &Result{Criteria: criteria, Fixed: fixed}
	for _, v := range rng.Values() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		params := fixed.With(criteria, v)
		r, err := factory(params)
		if err != nil {
			return nil, err
		}
		st, err := r.Run(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s=%d: %w", criteria, v, err)
		}
		mean, err := st.Mean()
		if err != nil {
			return nil, fmt.Errorf("%s=%d: %w", criteria, v, err)
		}

		log.WithField("domain", "bench").
			WithFields(log.Fields{string(criteria): v, "mean": mean, "samples": st.Count()}).
			Info("run done")
		res.Points = append(res.Points, Point{Value: v, Mean: mean, Samples: st.Count()})
	}

	slices.SortStableFunc(res.Points, func(a, b Point) int {
		return cmp.Compare(a.Value, b.Value)
	})
	return res, nil
}

// WriteTable renders the result as an aligned text table.
func (res *Result) WriteTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\tMean(ms)\tSamples\n", res.Criteria.Header())
	for _, p := range res.Points {
		fmt.Fprintf(tw, "%d\t%.3f\t%d\n", p.Value, p.Mean, p.Samples)
	}
	return tw.Flush()
}

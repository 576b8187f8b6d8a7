package client

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// BlastOptions configures a concurrent burst of /send_async calls.
type BlastOptions struct {
	Recipients    []string
	SubjectPrefix string
	BodyPrefix    string
	MessageType   string
	Count         int
	MaxWorkers    int
	// Rate caps requests per second. Zero means unlimited.
	Rate float64
}

// BlastResult is the outcome of one call, numbered from 1.
type BlastResult struct {
	Index    int
	Response Response
	Err      error
}

// BlastSummary aggregates a burst.
type BlastSummary struct {
	Results []BlastResult
	OK      int
	Failed  int
	Elapsed time.Duration
}

// BlastAsync fires opts.Count concurrent /send_async calls with at most
// opts.MaxWorkers in flight. Subject and body carry a #NNN suffix so each
// call can be found in logs and in the audit table. Results are sorted by
// index; individual failures never abort the burst.
func (c *Client) BlastAsync(ctx context.Context, opts BlastOptions) BlastSummary {
	if opts.Count <= 0 {
		return BlastSummary{}
	}
	workers := opts.MaxWorkers
	if workers <= 0 {
		workers = 5
	}
	var messageType *string
	if opts.MessageType != "" {
		mt := opts.MessageType
		messageType = &mt
	}

	var limiter *rate.Limiter
	if opts.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.Rate), 1)
	}

	start := time.Now()
	results := make([]BlastResult, opts.Count)
	var g errgroup.Group
	g.SetLimit(workers)
	for i := 1; i <= opts.Count; i++ {
		i := i
		g.Go(func() error {
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					results[i-1] = BlastResult{Index: i, Err: err}
					return nil
				}
			}
			resp, err := c.SendAsync(ctx, Request{
				Recipients:  opts.Recipients,
				Subject:     fmt.Sprintf("%s #%03d", opts.SubjectPrefix, i),
				Body:        fmt.Sprintf("%s [#%03d]", opts.BodyPrefix, i),
				MessageType: messageType,
			})
			results[i-1] = BlastResult{Index: i, Response: resp, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(results, func(a, b int) bool { return results[a].Index < results[b].Index })
	summary := BlastSummary{Results: results, Elapsed: time.Since(start)}
	for _, r := range results {
		if r.Err == nil {
			summary.OK++
		} else {
			summary.Failed++
		}
	}
	return summary
}

package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/cuongbtq/agent-jobs/internal/agent/marketplace"
	"golang.org/x/sync/errgroup"
)

// analyzeReviews fans out to sentiment, authenticity and summary when a
// product is given, and scores a single text otherwise.
func (o *Orchestrator) analyzeReviews(ctx context.Context, in marketplace.ReviewsInput) (any, error) {
	if in.ProductID == 0 {
		if strings.TrimSpace(in.ReviewText) == "" {
			return nil, marketplace.ErrReviewInputRequired
		}
		return o.market.AnalyzeSentiment(ctx, in)
	}

	product := marketplace.ProductInput{ProductID: in.ProductID}
	out := &marketplace.ReviewAnalysis{ProductID: in.ProductID}

	g, gctx := errgroup.WithContext(ctx)
	safeGo(g, "sentiment", func() error {
		var err error
		out.Sentiment, err = o.market.ProductSentiment(gctx, product)
		return err
	})
	safeGo(g, "authenticity", func() error {
		var err error
		out.Authenticity, err = o.market.DetectFakeReviews(gctx, product)
		return err
	})
	safeGo(g, "summary", func() error {
		var err error
		out.Summary, err = o.market.SummarizeReviews(gctx, product)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// safeGo runs fn on the group, turning a panic into the group's error.
// Execute only recovers panics raised on its own goroutine.
func safeGo(g *errgroup.Group, name string, fn func() error) {
	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("review %s panicked: %v", name, r)
			}
		}()
		return fn()
	})
}

package cmd

import (
	"fmt"

	"github.com/gaurav-prasanna/amppipe/config"
	"github.com/gaurav-prasanna/amppipe/core"
	"github.com/gaurav-prasanna/amppipe/core/amp"
	"github.com/gaurav-prasanna/amppipe/core/fetch"
	"github.com/gaurav-prasanna/amppipe/core/imagesize"
)

// newFetcher creates the HTTP fetcher shared by page, sitemap and image
// requests.
func newFetcher(cfg *config.Config) *fetch.HTTPFetcher {
	return fetch.New(
		fetch.WithTimeout(cfg.Fetch.Timeout),
		fetch.WithUserAgent(cfg.Fetch.UserAgent),
	)
}

// newPipeline builds the converter for pages located at pageURL. Relative
// image sources resolve against the configured base URL, or pageURL when
// none is set.
func newPipeline(cfg *config.Config, fetcher *fetch.HTTPFetcher, pageURL string) (*amp.Pipeline, error) {
	var images core.ImageResolver
	if cfg.Images.Enabled {
		base := cfg.Images.BaseURL
		if base == "" {
			base = pageURL
		}
		resolver, err := imagesize.New(imagesize.Config{
			Root:     cfg.Images.Root,
			BaseURL:  base,
			MaxBytes: cfg.Images.MaxBytes,
			Fetcher:  fetcher,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating image resolver: %w", err)
		}
		images = resolver
	}

	p, err := amp.New(amp.Options{
		Mode:     amp.Mode(cfg.Mode),
		Disabled: cfg.DisabledSteps,
		Images:   images,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating pipeline: %w", err)
	}
	return p, nil
}

// Convert command: reads or fetches one page or a whole site and runs
// parse → AMP steps → serialize → write.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/gaurav-prasanna/amppipe/core/amp"
	"github.com/gaurav-prasanna/amppipe/core/document"
	"github.com/gaurav-prasanna/amppipe/core/fetch"
	"github.com/gaurav-prasanna/amppipe/core/output"
	"github.com/gaurav-prasanna/amppipe/crawl"
)

// Flag variables.
var (
	flagURL        string
	flagAll        bool
	flagOutputDir  string
	flagPrintTree  bool
	flagImagesRoot string
	flagNoImages   bool
	flagMaxPages   int
)

var convertCmd = &cobra.Command{
	Use:   "convert <file|-|url>",
	Short: "Convert an HTML page to AMP HTML",
	Long: `Convert reads an HTML document from a file, stdin ("-") or a URL and
rewrites it into an AMP document.

The request URL is the address the AMP page is served under; its leading
/amp segment is removed to build the canonical link. It defaults to the
input URL with /amp added and is required for file and stdin input.

Examples:
  amppipe convert page.html --url https://example.com/amp/page
  cat page.html | amppipe convert - --url https://example.com/amp/page
  amppipe convert https://example.com/page --output_dir ./out
  amppipe convert https://example.com --all --output_dir ./site
  amppipe convert page.html --url https://example.com/amp/page --mode minimal --print-tree`,
	Args: cobra.ExactArgs(1),
	RunE: runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)

	f := convertCmd.Flags()
	f.StringVar(&flagURL, "url", "", "Request URL of the AMP page (required for file and stdin input)")
	f.BoolVar(&flagAll, "all", false, "Convert all discovered pages of the site")
	f.StringVar(&flagOutputDir, "output_dir", "", "Output directory (default: stdout, or the current directory with --all)")
	f.BoolVar(&flagPrintTree, "print-tree", false, "Print the converted node tree instead of HTML")
	f.StringVar(&flagImagesRoot, "images-root", "", "Directory that local <img> paths are read from")
	f.BoolVar(&flagNoImages, "no-images", false, "Do not look up <img> dimensions")
	f.IntVar(&flagMaxPages, "max-pages", 100, "Maximum number of pages converted with --all")

	bindFlag(f.Lookup("images-root"), "images.root")
	bindFlag(f.Lookup("max-pages"), "crawl.max_pages")
}

func runConvert(cmd *cobra.Command, args []string) error {
	input := args[0]

	if err := validateConvertFlags(input); err != nil {
		return err
	}
	if flagNoImages {
		appConfig.Images.Enabled = false
	}

	ctx := cmd.Context()
	fetcher := newFetcher(appConfig)
	out := cmd.OutOrStdout()

	if flagAll {
		writer, err := output.New(flagOutputDir)
		if err != nil {
			return fmt.Errorf("initializing output writer: %w", err)
		}
		return runAll(ctx, out, input, fetcher, writer)
	}
	return runOnly(ctx, cmd, input, fetcher)
}

// runOnly converts a single page.
func runOnly(ctx context.Context, cmd *cobra.Command, input string, fetcher *fetch.HTTPFetcher) error {
	src, requestURL, err := readInput(ctx, cmd.InOrStdin(), input, fetcher)
	if err != nil {
		return err
	}

	doc, err := convertPage(ctx, src, requestURL, fetcher)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if flagPrintTree {
		_, err := fmt.Fprintln(out, doc.Tree())
		return err
	}

	rendered, err := doc.HTML()
	if err != nil {
		return err
	}
	if flagOutputDir == "" {
		_, err := io.WriteString(out, rendered)
		return err
	}

	writer, err := output.New(flagOutputDir)
	if err != nil {
		return fmt.Errorf("initializing output writer: %w", err)
	}
	name := requestURL
	if name == "" {
		name = input
	}
	path, err := writer.WriteOnly(name, []byte(rendered), output.DefaultExt)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ Written: %s\n", path)
	return nil
}

// runAll discovers all internal pages and converts each one.
func runAll(ctx context.Context, out io.Writer, rawURL string, fetcher *fetch.HTTPFetcher, writer *output.Writer) error {
	fmt.Fprintf(out, "Discovering pages from %s...\n", rawURL)

	crawler := crawl.New(fetcher,
		crawl.WithMaxPages(appConfig.Crawl.MaxPages),
		crawl.WithLogger(logger),
	)
	urls, err := crawler.Discover(ctx, rawURL)
	if err != nil {
		return fmt.Errorf("discovering pages: %w", err)
	}

	fmt.Fprintf(out, "Found %d pages to convert\n", len(urls))

	var errCount int
	for i, pageURL := range urls {
		fmt.Fprintf(out, "[%d/%d] Converting %s\n", i+1, len(urls), pageURL)

		ampURL, data, err := convertURL(ctx, pageURL, fetcher)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  ✗ Error: %v\n", err)
			errCount++
			continue
		}

		path, err := writer.WriteAll(ampURL, data, output.DefaultExt)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  ✗ Write error: %v\n", err)
			errCount++
			continue
		}
		fmt.Fprintf(out, "  ✓ Written: %s\n", path)
	}

	if errCount > 0 {
		fmt.Fprintf(os.Stderr, "\n%d/%d pages failed\n", errCount, len(urls))
	}
	return nil
}

// convertURL fetches a canonical page and converts it under its AMP URL.
func convertURL(ctx context.Context, pageURL string, fetcher *fetch.HTTPFetcher) (string, []byte, error) {
	result, err := fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return "", nil, fmt.Errorf("fetch: %w", err)
	}

	ampURL, err := amp.AMPURL(pageURL)
	if err != nil {
		return "", nil, err
	}

	doc, err := convertPage(ctx, result.HTML, ampURL, fetcher)
	if err != nil {
		return "", nil, err
	}
	rendered, err := doc.HTML()
	if err != nil {
		return "", nil, err
	}
	return ampURL, []byte(rendered), nil
}

// convertPage runs the configured pipeline over src.
func convertPage(ctx context.Context, src, requestURL string, fetcher *fetch.HTTPFetcher) (*document.Document, error) {
	// Images on the page resolve against the canonical location the HTML
	// was served from.
	pageURL, err := amp.CanonicalURL(requestURL)
	if err != nil && !errors.Is(err, amp.ErrMissingURL) {
		return nil, err
	}

	pipeline, err := newPipeline(appConfig, fetcher, pageURL)
	if err != nil {
		return nil, err
	}

	doc := document.Parse(src)
	if err := pipeline.Run(ctx, doc, requestURL); err != nil {
		return nil, fmt.Errorf("converting: %w", err)
	}
	return doc, nil
}

// readInput returns the HTML source and request URL for input.
func readInput(ctx context.Context, stdin io.Reader, input string, fetcher *fetch.HTTPFetcher) (string, string, error) {
	if isHTTPURL(input) {
		result, err := fetcher.Fetch(ctx, input)
		if err != nil {
			return "", "", err
		}
		requestURL := flagURL
		if requestURL == "" {
			if requestURL, err = amp.AMPURL(input); err != nil {
				return "", "", err
			}
		}
		return result.HTML, requestURL, nil
	}

	var (
		data []byte
		err  error
	)
	if input == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(input)
	}
	if err != nil {
		return "", "", fmt.Errorf("reading input: %w", err)
	}
	return string(data), flagURL, nil
}

// validateConvertFlags checks flag combinations against the input kind.
func validateConvertFlags(input string) error {
	remote := isHTTPURL(input)

	if flagAll && !remote {
		return fmt.Errorf("--all requires an http(s) URL input")
	}
	if flagAll && flagPrintTree {
		return fmt.Errorf("--all and --print-tree are mutually exclusive")
	}
	if flagAll && flagURL != "" {
		return fmt.Errorf("--url cannot be combined with --all; AMP URLs are derived from each page")
	}

	if flagURL != "" && !isHTTPURL(flagURL) && !isRootedPath(flagURL) {
		return fmt.Errorf("invalid --url: %s (must be absolute, e.g. https://example.com/amp/page)", flagURL)
	}
	if !remote && flagURL == "" && !slices.Contains(appConfig.DisabledSteps, amp.StepCanonical) {
		return fmt.Errorf("--url is required for file and stdin input (or --disable %s)", amp.StepCanonical)
	}
	return nil
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func isRootedPath(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme == "" && u.Host == "" && len(u.Path) > 0 && u.Path[0] == '/'
}

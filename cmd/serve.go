package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/gaurav-prasanna/amppipe/config"
	"github.com/gaurav-prasanna/amppipe/middleware"
)

var (
	flagListen      string
	flagUpstream    string
	flagStripPrefix bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve AMP versions of an upstream site",
	Long: `Serve runs a reverse proxy in front of an upstream site. Requests under
/amp/ are forwarded upstream and the HTML responses are converted to AMP;
everything else is proxied unchanged.

Examples:
  amppipe serve --upstream http://localhost:3000
  amppipe serve --upstream https://example.com --listen :9000 --strip-prefix`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	f := serveCmd.Flags()
	f.StringVar(&flagListen, "listen", ":8080", "Address to listen on")
	f.StringVar(&flagUpstream, "upstream", "", "Upstream base URL (required)")
	f.BoolVar(&flagStripPrefix, "strip-prefix", false, "Forward /amp/x upstream as /x")

	bindFlag(f.Lookup("listen"), "serve.listen")
	bindFlag(f.Lookup("upstream"), "serve.upstream")
	bindFlag(f.Lookup("strip-prefix"), "serve.strip_prefix")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := appConfig
	if cfg.Serve.Upstream == "" {
		return fmt.Errorf("--upstream is required")
	}

	// maxprocs.Set only fails on an invalid GOMAXPROCS value, in which case
	// the runtime default stays in place.
	_, _ = maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		logger.Debug(fmt.Sprintf(format, args...))
	}))

	handler, err := newServeHandler(cfg, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Serve.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving AMP pages",
			"listen", cfg.Serve.Listen,
			"upstream", cfg.Serve.Upstream,
			"segment", cfg.Serve.Segment,
			"mode", cfg.Mode,
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving: %w", err)
	case <-cmd.Context().Done():
	}

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Serve.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}

// newServeHandler builds the gin engine: health check, request IDs and
// logging, and the AMP-converting reverse proxy for every other route.
func newServeHandler(cfg *config.Config, logger *slog.Logger) (http.Handler, error) {
	upstream, err := url.Parse(cfg.Serve.Upstream)
	if err != nil || upstream.Scheme == "" || upstream.Host == "" {
		return nil, fmt.Errorf("invalid upstream URL: %q", cfg.Serve.Upstream)
	}

	conv, err := newPipeline(cfg, newFetcher(cfg), upstream.String())
	if err != nil {
		return nil, err
	}

	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstream)
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error("upstream request failed", "path", r.URL.Path, "error", err)
			w.WriteHeader(http.StatusBadGateway)
		},
	}

	ampHandler := middleware.New(conv,
		middleware.WithSegment(cfg.Serve.Segment),
		middleware.WithStripPrefix(cfg.Serve.StripPrefix),
		middleware.WithLogger(logger),
	)(proxy)

	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestIDMiddleware(), loggingMiddleware(logger))
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version})
	})
	engine.NoRoute(gin.WrapH(ampHandler))
	return engine, nil
}

// requestIDMiddleware tags each request with an X-Request-ID, forwarded
// upstream and echoed to the client.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
			c.Request.Header.Set("X-Request-ID", requestID)
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func loggingMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"bytes", c.Writer.Size(),
			"latency", time.Since(start),
			"request_id", c.GetString("request_id"),
		)
	}
}

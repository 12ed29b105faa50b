// Package admin serves the device's HTTP inspection surface: status, metrics
// and presented frames.
package admin

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/microgpu/internal/capture"
	"github.com/danmuck/microgpu/internal/display"
	"github.com/danmuck/microgpu/internal/observability"
)

const (
	defaultFrameList = 20
	maxFrameList     = 500
)

type Options struct {
	Device string
	// Status returns a JSON-encodable view of the device.
	Status func() any
	Latest *display.Latest
	// Journal is optional; frame history routes answer 404 without it.
	Journal *capture.Journal
}

type Server struct {
	opts     Options
	router   *gin.Engine
	appeared time.Time
}

func New(opts Options) *Server {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.AdminRequests(opts.Device, log.Logger))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{opts: opts, router: r, appeared: time.Now()}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"uptime": time.Since(s.appeared).String(),
			"device": s.opts.Device,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/status", func(c *gin.Context) {
		if s.opts.Status == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "status unavailable"})
			return
		}
		c.JSON(http.StatusOK, s.opts.Status())
	})

	s.router.GET("/frame.png", func(c *gin.Context) {
		if s.opts.Latest != nil {
			if f, ok := s.opts.Latest.Get(); ok {
				writePNG(c, f)
				return
			}
		}
		if s.opts.Journal != nil {
			f, err := s.opts.Journal.Latest(c.Request.Context())
			if err == nil {
				writePNG(c, f)
				return
			}
			if !errors.Is(err, capture.ErrNoFrames) {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "no frame presented"})
	})

	s.router.GET("/frames", func(c *gin.Context) {
		if s.opts.Journal == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "capture disabled"})
			return
		}
		limit := defaultFrameList
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 || n > maxFrameList {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
				return
			}
			limit = n
		}
		entries, err := s.opts.Journal.List(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"frames": entries})
	})

	s.router.GET("/frames/:seq", func(c *gin.Context) {
		if s.opts.Journal == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "capture disabled"})
			return
		}
		seq, err := strconv.ParseUint(c.Param("seq"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid frame sequence"})
			return
		}
		f, err := s.opts.Journal.Get(c.Request.Context(), seq)
		if errors.Is(err, capture.ErrNoFrames) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		writePNG(c, f)
	})
}

func writePNG(c *gin.Context, f display.Frame) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, f.Image()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Header("X-Frame-Seq", strconv.FormatUint(f.Seq, 10))
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

// ListenAndServe serves until ctx ends.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("admin_listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

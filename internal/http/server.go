package http

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/aryandas079/Green-Innovators---Krishi-Mitra/internal/core"
	"github.com/aryandas079/Green-Innovators---Krishi-Mitra/internal/db"
	"github.com/aryandas079/Green-Innovators---Krishi-Mitra/pkg"
)

// Options tunes the middleware stack.
type Options struct {
	CORSOrigins []string
	// RateLimitRPS is the sustained per-client request rate; zero disables
	// rate limiting.
	RateLimitRPS   float64
	RateLimitBurst int
}

// Server bundles together the dependencies required by HTTP handlers.  It
// implements http.Handler so it can be passed to an http.Server.
type Server struct {
	Store db.Store
	Conv  *core.ConversationService
	log   *slog.Logger
	echo  *echo.Echo
}

// NewServer constructs a Server with every route registered under /api.
func NewServer(store db.Store, conv *core.ConversationService, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{
		Store: store,
		Conv:  conv,
		log:   logger.With("component", "http"),
		echo:  echo.New(),
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.HTTPErrorHandler = s.handleError
	s.middleware(opts)
	s.routes()
	return s
}

// ServeHTTP dispatches to the echo router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func (s *Server) middleware(opts Options) {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			if v.Status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("remote_ip", v.RemoteIP),
			}
			if v.Error != nil {
				attrs = append(attrs, slog.String("err", v.Error.Error()))
			}
			s.log.LogAttrs(c.Request().Context(), level, "request", attrs...)
			return nil
		},
	}))

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	// Browsers refuse credentials alongside a wildcard origin, so they are
	// only offered to an explicit origin list.
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     origins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"*"},
		AllowCredentials: !slices.Contains(origins, "*"),
	}))

	if opts.RateLimitRPS > 0 {
		burst := opts.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:  rate.Limit(opts.RateLimitRPS),
			Burst: burst,
		})
		s.echo.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Skipper: func(c echo.Context) bool { return c.Request().Method == http.MethodOptions },
			Store:   store,
			DenyHandler: func(echo.Context, string, error) error {
				return echo.NewHTTPError(http.StatusTooManyRequests, "Too many requests")
			},
			ErrorHandler: func(echo.Context, error) error {
				return echo.NewHTTPError(http.StatusForbidden, "Client could not be identified")
			},
		}))
	}
}

func (s *Server) routes() {
	api := s.echo.Group("/api")

	api.GET("", s.handleRoot)
	api.GET("/", s.handleRoot)
	api.GET("/health", s.handleHealth)

	api.POST("/farmers", s.handleCreateFarmer)
	api.GET("/farmers", s.handleListFarmers)
	api.GET("/farmers/:farmer_id", s.handleGetFarmer)

	api.POST("/chat", s.handleChat)
	api.GET("/chat/:farmer_id", s.handleChatHistory)

	api.POST("/detect-disease", s.handleDetectDisease)
	api.GET("/weather/:location", s.handleWeather)

	api.POST("/escalate", s.handleEscalate)
	api.GET("/escalations/:farmer_id", s.handleListEscalations)

	api.POST("/translate", s.handleTranslate)
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Detail string `json:"detail"`
}

// handleError renders errors as {"detail": ...}.  Validation failures map
// to 422 and anything unrecognised to a bare 500.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	detail := http.StatusText(code)

	var (
		verr *pkg.ValidationError
		herr *echo.HTTPError
	)
	switch {
	case errors.As(err, &verr):
		code, detail = http.StatusUnprocessableEntity, verr.Error()
	case errors.As(err, &herr):
		code = herr.Code
		if msg, ok := herr.Message.(string); ok {
			detail = msg
		} else {
			detail = http.StatusText(code)
		}
	default:
		s.log.Error("unhandled error", "path", c.Path(), "err", err)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, errorBody{Detail: detail})
	}
	if err != nil {
		s.log.Error("write error response", "err", err)
	}
}

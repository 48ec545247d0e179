package echoapi

import (
	"context"
	"net/http"
	"os"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/educonnect/backend/core"
	"github.com/educonnect/backend/core/donation"
	"github.com/educonnect/backend/core/notif"
	"github.com/educonnect/backend/core/payment"
	"github.com/educonnect/backend/core/request"
	"github.com/educonnect/backend/core/user"
)

type (
	Options struct {
		Address        string
		DisableReqLogs bool
		Logger         core.Logger

		UserSvc     user.Service
		DonationSvc donation.Service
		RequestSvc  request.Service
		PaymentSvc  payment.Service
		Broker      *notif.Broker
	}

	Server interface {
		http.Handler
		Start()
		Stop(context.Context) error
	}

	server struct {
		opts     *Options
		app      *echo.Echo
		shutdown chan os.Signal
	}
)

var _ Server = (*server)(nil)

// NewServer sets up the API server. shutdown receives a SIGTERM whenever an
// unrecoverable error is caught so main can stop gracefully.
func NewServer(opts *Options, shutdown chan os.Signal) Server {
	s := &server{
		opts:     opts,
		app:      echo.New(),
		shutdown: shutdown,
	}
	s.setup()
	return s
}

func (s *server) setup() {
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(core.Conf.Debug || core.Conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.signalShutdown)
	s.app.Debug = core.Conf.Debug

	s.app.GET("/", home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(appJWTConfig)

	registerUserAPI(v1, jwt, s.opts.UserSvc)
	registerDonationAPI(v1, jwt, s.opts.DonationSvc, s.opts.UserSvc)
	registerRequestAPI(v1, jwt, s.opts.RequestSvc, s.opts.UserSvc)
	registerPaymentAPI(v1, jwt, s.opts.PaymentSvc, s.opts.UserSvc)
	registerStreamAPI(v1, jwt, s.opts.Broker, s.opts.UserSvc, s.opts.Logger)
}

// signalShutdown is called by the error handler on unrecoverable errors.
func (s *server) signalShutdown() {
	s.shutdown <- syscall.SIGTERM
}

func (s *server) Start() {
	s.app.Logger.Fatal(s.app.Start(s.opts.Address))
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to EduConnect API!")
}

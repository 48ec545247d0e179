package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	echoapi "github.com/educonnect/backend/apps/api/echo"
	"github.com/educonnect/backend/core"
	"github.com/educonnect/backend/core/donation"
	"github.com/educonnect/backend/core/notif"
	"github.com/educonnect/backend/core/payment"
	"github.com/educonnect/backend/core/request"
	"github.com/educonnect/backend/core/user"
	emailsvc "github.com/educonnect/backend/services/email"
	logsvc "github.com/educonnect/backend/services/logger"
	"github.com/educonnect/backend/storage/database"
	sqlxrepos "github.com/educonnect/backend/storage/database/sqlx"
)

func main() {
	std := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(std, core.Conf)
	logger.Enable(!(core.Conf.Debug || core.Conf.TestMode))

	// set up DB
	db, err := database.Open(core.Conf)
	errAndDie(logger, err)
	defer db.Close()
	errAndDie(logger, database.Ping(db))
	errAndDie(logger, database.EnsureSchema(db))

	// set up services
	var mailSvc core.EmailService
	if core.Conf.Debug {
		mailSvc = emailsvc.NewConsoleService()
	} else {
		mailSvc = emailsvc.NewSendgridService(logger)
	}
	broker := notif.NewBroker()
	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db), mailSvc)
	reqSvc := request.NewService(sqlxrepos.NewRequestRepository(db), broker)
	pmtSvc := payment.NewService(sqlxrepos.NewPaymentRepository(db), usrSvc, broker, mailSvc)
	donSvc := donation.NewService(sqlxrepos.NewDonationRepository(db), reqSvc, usrSvc, broker, mailSvc)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// start API server
	app := echoapi.NewServer(
		&echoapi.Options{
			Address:     core.Conf.Server.Address(),
			Logger:      logger,
			UserSvc:     usrSvc,
			DonationSvc: donSvc,
			RequestSvc:  reqSvc,
			PaymentSvc:  pmtSvc,
			Broker:      broker,
		},
		shutdown,
	)
	go app.Start()

	// periodic expiry sweep; Claim also expires lazily so a missed tick only
	// delays notifications, never correctness
	sweepDone := make(chan struct{})
	go sweepOverdueDonations(donSvc, logger, sweepDone)

	<-shutdown
	close(sweepDone)

	ctx, cancel := context.WithTimeout(context.Background(), core.Conf.Server.ShutdownTimeout)
	defer cancel()
	if err := app.Stop(ctx); err != nil {
		logger.Error("graceful shutdown failed", err)
	}
}

func sweepOverdueDonations(svc donation.Service, logger core.Logger, done <-chan struct{}) {
	ticker := time.NewTicker(core.Conf.Donation.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := svc.ExpireOverdue(context.Background())
			if err != nil {
				logger.Error("donation expiry sweep failed", err)
			} else if n > 0 {
				logger.Info("donation expiry sweep", map[string]interface{}{"expired": n})
			}
		case <-done:
			return
		}
	}
}

func errAndDie(logger core.Logger, err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}

package main

import (
	"log"
	"os"

	"github.com/educonnect/backend/core"
	"github.com/educonnect/backend/core/user"
	emailsvc "github.com/educonnect/backend/services/email"
	"github.com/educonnect/backend/storage/database"
	sqlxrepos "github.com/educonnect/backend/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	// set up DB
	db, err := database.Open(core.Conf)
	errAndDie(err)
	defer db.Close()
	errAndDie(database.Ping(db))
	errAndDie(database.EnsureSchema(db))

	// start CLI
	cli := commandLine{
		usrSvc: user.NewService(sqlxrepos.NewUserRepository(db), emailsvc.NewConsoleService()),
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}

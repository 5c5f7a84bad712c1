package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	app := &cli.App{
		Name:  "mailintake",
		Usage: "turn inbound support email into tickets",
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Run database migrations",
				Action: migrateCommand,
			},
			{
				Name:   "server",
				Usage:  "Start the API server and the mailbox poll scheduler",
				Action: serverCommand,
			},
			{
				Name:  "poll",
				Usage: "Poll enabled mailboxes once and print the run summaries",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "mailbox", Usage: "poll only this mailbox"},
				},
				Action: pollCommand,
			},
			{
				Name:  "ledger",
				Usage: "List ingest ledger entries, newest first",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "mailbox"},
					&cli.StringFlag{Name: "status", Usage: "processed, skipped or failed"},
					&cli.StringFlag{Name: "reason"},
					&cli.IntFlag{Name: "limit", Value: 50},
				},
				Action: ledgerCommand,
			},
			{
				Name:  "watermark",
				Usage: "Inspect or override mailbox watermarks",
				Subcommands: []*cli.Command{
					{
						Name:  "reset",
						Usage: "Set last_seen_uid and clear the stored UIDVALIDITY",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "mailbox", Required: true},
							&cli.UintFlag{Name: "uid", Usage: "new last seen uid"},
						},
						Action: watermarkResetCommand,
					},
				},
			},
			{
				Name:  "allowed-senders",
				Usage: "Manage the sender allow-list",
				Subcommands: []*cli.Command{
					{
						Name:  "add",
						Usage: "Allow an email address or a whole domain",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "type", Required: true, Usage: "email or domain"},
							&cli.StringFlag{Name: "value", Required: true},
							&cli.StringFlag{Name: "user", Usage: "bind matching senders to this user id"},
						},
						Action: allowedSendersAddCommand,
					},
					{
						Name:   "list",
						Usage:  "List allow-list entries",
						Action: allowedSendersListCommand,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

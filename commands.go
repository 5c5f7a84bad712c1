package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"github.com/customeros/mailintake/config"
	"github.com/customeros/mailintake/dto"
	"github.com/customeros/mailintake/interfaces"
	"github.com/customeros/mailintake/internal/database"
	"github.com/customeros/mailintake/internal/enum"
	"github.com/customeros/mailintake/internal/logger"
	"github.com/customeros/mailintake/internal/models"
	"github.com/customeros/mailintake/internal/repository"
	"github.com/customeros/mailintake/internal/utils"
	"github.com/customeros/mailintake/server"
	"github.com/customeros/mailintake/services"
)

func setup() (*config.Config, *gorm.DB, error) {
	cfg, err := config.InitConfig()
	if err != nil {
		return nil, nil, errors.Wrap(err, "config initialization failed")
	}
	db, err := database.InitMailintakeDatabase(cfg.DatabaseConfig)
	if err != nil {
		return nil, nil, errors.Wrap(err, "database initialization failed")
	}
	return cfg, db, nil
}

func migrateCommand(_ *cli.Context) error {
	_, db, err := setup()
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return errors.Wrap(err, "database migration failed")
	}
	log.Println("Database migration completed successfully")
	return nil
}

func serverCommand(_ *cli.Context) error {
	cfg, db, err := setup()
	if err != nil {
		return err
	}
	log.Println("Mailintake starting up...")

	srv, err := server.NewServer(cfg, db)
	if err != nil {
		return errors.Wrap(err, "server setup failed")
	}
	if err := srv.Run(); err != nil {
		return errors.Wrap(err, "server startup failed")
	}
	log.Println("Shutdown complete")
	return nil
}

func pollCommand(c *cli.Context) error {
	cfg, db, err := setup()
	if err != nil {
		return err
	}
	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()

	repos := repository.InitRepositories(db)
	svcs, err := services.InitServices(cfg, appLogger, repos, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer svcs.Close()

	// SIGTERM stops the run between messages.
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var summaries []*dto.RunSummary
	if name := c.String("mailbox"); name != "" {
		mailbox, err := repos.MailboxRepository.GetMailbox(ctx, name)
		if err != nil {
			return err
		}
		summary, runErr := svcs.Poller.RunMailbox(ctx, mailbox)
		if summary != nil {
			summaries = append(summaries, summary)
		}
		err = runErr
		printJSON(summaries)
		return err
	}

	summaries, err = svcs.Runner.RunAll(ctx)
	printJSON(summaries)
	return err
}

func ledgerCommand(c *cli.Context) error {
	_, db, err := setup()
	if err != nil {
		return err
	}
	status := enum.IngestStatus(c.String("status"))
	if status != "" && !status.IsValid() {
		return errors.Errorf("invalid status %q", status)
	}

	entries, err := repository.NewIngestLogRepository(db).List(context.Background(), interfaces.IngestLogFilter{
		Mailbox: c.String("mailbox"),
		Status:  status,
		Reason:  enum.IngestReason(c.String("reason")),
		Limit:   c.Int("limit"),
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CREATED\tMAILBOX\tUID\tSTATUS\tREASON\tTICKET\tMESSAGE-ID\tDETAIL")
	for _, entry := range entries {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			entry.CreatedAt.Format("2006-01-02 15:04:05"), entry.Mailbox, entry.UID, entry.Status, entry.Reason,
			utils.GetOrDefault(entry.TicketID, "-"), utils.GetOrDefault(entry.MessageID, "-"), utils.GetOrDefault(entry.ErrorDetail, "-"))
	}
	return w.Flush()
}

func watermarkResetCommand(c *cli.Context) error {
	_, db, err := setup()
	if err != nil {
		return err
	}
	ctx := context.Background()
	name := c.String("mailbox")

	if _, err := repository.NewMailboxRepository(db).GetMailbox(ctx, name); err != nil {
		return err
	}
	state, err := repository.NewMailboxStateRepository(db).Reset(ctx, name, uint32(c.Uint("uid")))
	if err != nil {
		return err
	}
	log.Printf("Watermark of %s reset to %d (version %d)", state.Mailbox, state.LastSeenUID, state.Version)
	return nil
}

func allowedSendersAddCommand(c *cli.Context) error {
	_, db, err := setup()
	if err != nil {
		return err
	}
	sender := &models.AllowedSender{
		Type:   enum.AllowedSenderType(c.String("type")),
		Value:  c.String("value"),
		Active: true,
	}
	if user := c.String("user"); user != "" {
		sender.UserID = &user
	}
	if !sender.Type.IsValid() {
		return errors.Errorf("invalid type %q, expected email or domain", sender.Type)
	}

	if err := repository.NewAllowedSenderRepository(db).Create(context.Background(), sender); err != nil {
		return err
	}
	log.Printf("Allowed %s %s (%s)", sender.Type, sender.Value, sender.ID)
	return nil
}

func allowedSendersListCommand(_ *cli.Context) error {
	_, db, err := setup()
	if err != nil {
		return err
	}
	senders, err := repository.NewAllowedSenderRepository(db).List(context.Background())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tVALUE\tUSER\tACTIVE")
	for _, sender := range senders {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", sender.ID, sender.Type, sender.Value, utils.GetOrDefault(sender.UserID, "-"), sender.Active)
	}
	return w.Flush()
}

func printJSON(v interface{}) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		log.Printf("could not encode output: %v", err)
	}
}


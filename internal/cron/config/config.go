package cron_config

type Config struct {
	// Heartbeat check, every five minutes
	CronScheduleHeartbeat string `env:"CRON_SCHEDULE_HEARTBEAT" envDefault:"0 */5 * * * *"`
	// Poll every enabled mailbox, every minute
	CronScheduleMailboxPoll string `env:"CRON_SCHEDULE_MAILBOX_POLL" envDefault:"0 * * * * *"`
}

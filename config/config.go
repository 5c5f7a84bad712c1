package config

import (
	"strings"
	"time"

	"github.com/customeros/mailintake/internal/enum"
)

type AppConfig struct {
	APIPort     string `env:"PORT,required" envDefault:"12222"`
	APIKey      string `env:"MAILINTAKE_API_KEY"`
	RabbitMQURL string `env:"RABBITMQ_URL"`
	InstanceID  string `env:"POD_NAME"`
	Namespace   string `env:"POD_NAMESPACE" envDefault:"default"`
}

type IngestConfig struct {
	MaxMessagesPerRun      int               `env:"MAILINTAKE_MAX_MESSAGES_PER_RUN" envDefault:"200"`
	RunTimeBudget          time.Duration     `env:"MAILINTAKE_RUN_TIME_BUDGET" envDefault:"5m"`
	MaxAttachmentBytes     int64             `env:"MAILINTAKE_MAX_ATTACHMENT_BYTES" envDefault:"10485760"`
	MarkSeenOnSkip         bool              `env:"MAILINTAKE_MARK_SEEN_ON_SKIP" envDefault:"true"`
	AllowUnknownSenders    bool              `env:"MAILINTAKE_ALLOW_UNKNOWN_SENDERS" envDefault:"false"`
	DenylistedExtensions   []string          `env:"MAILINTAKE_DENYLISTED_EXTENSIONS" envSeparator:"," envDefault:"exe,bat,cmd,com,scr,pif,js,jse,vbs,vbe,ps1,msi,jar,sh,dll,hta,cpl,lnk,reg,php,phtml,asp,aspx,jsp,cgi,pl,py"`
	LeaseMaxAge            time.Duration     `env:"MAILINTAKE_LEASE_MAX_AGE" envDefault:"10m"`
	LeaseBackend           enum.LeaseBackend `env:"MAILINTAKE_LEASE_BACKEND" envDefault:"db"`
	MaxConcurrentMailboxes int               `env:"MAILINTAKE_MAX_CONCURRENT_MAILBOXES" envDefault:"4"`
	TicketCodePrefix       string            `env:"MAILINTAKE_TICKET_CODE_PREFIX" envDefault:"TCK"`
	IMAPDialTimeout        time.Duration     `env:"MAILINTAKE_IMAP_DIAL_TIMEOUT" envDefault:"30s"`
	NotificationTimeout    time.Duration     `env:"MAILINTAKE_NOTIFICATION_TIMEOUT" envDefault:"10s"`
}

// DefaultDenylistedExtensions mirrors the MAILINTAKE_DENYLISTED_EXTENSIONS default.
var DefaultDenylistedExtensions = []string{
	"exe", "bat", "cmd", "com", "scr", "pif", "js", "jse", "vbs", "vbe", "ps1", "msi", "jar", "sh",
	"dll", "hta", "cpl", "lnk", "reg", "php", "phtml", "asp", "aspx", "jsp", "cgi", "pl", "py",
}

// Normalize fills zero values with usable defaults so a hand-built config
// (tests, CLI overrides) behaves like one parsed from the environment.
func (c *IngestConfig) Normalize() {
	if c.MaxMessagesPerRun <= 0 {
		c.MaxMessagesPerRun = 200
	}
	if c.RunTimeBudget <= 0 {
		c.RunTimeBudget = 5 * time.Minute
	}
	if c.MaxAttachmentBytes <= 0 {
		c.MaxAttachmentBytes = 10 << 20
	}
	if c.LeaseMaxAge <= 0 {
		c.LeaseMaxAge = 10 * time.Minute
	}
	if c.LeaseBackend == "" {
		c.LeaseBackend = enum.LeaseDatabase
	}
	if c.MaxConcurrentMailboxes <= 0 {
		c.MaxConcurrentMailboxes = 4
	}
	if c.TicketCodePrefix == "" {
		c.TicketCodePrefix = "TCK"
	}
	if c.IMAPDialTimeout <= 0 {
		c.IMAPDialTimeout = 30 * time.Second
	}
	if c.NotificationTimeout <= 0 {
		c.NotificationTimeout = 10 * time.Second
	}
	if c.DenylistedExtensions == nil {
		c.DenylistedExtensions = append([]string(nil), DefaultDenylistedExtensions...)
	}
	for i, ext := range c.DenylistedExtensions {
		c.DenylistedExtensions[i] = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
	}
}

type StorageConfig struct {
	Backend               enum.StorageBackend `env:"MAILINTAKE_STORAGE_BACKEND" envDefault:"filesystem"`
	Root                  string              `env:"MAILINTAKE_ATTACHMENT_STORAGE_ROOT" envDefault:"./data/attachments"`
	EmailAttachmentBucket string              `env:"BUCKET_NAME_EMAIL_ATTACHMENT" envDefault:"attachments"`
	S3Region              string              `env:"AWS_REGION" envDefault:"eu-west-1"`
	S3Endpoint            string              `env:"AWS_S3_ENDPOINT"`
	S3AccessKeyID         string              `env:"AWS_ACCESS_KEY_ID"`
	S3SecretAccessKey     string              `env:"AWS_SECRET_ACCESS_KEY"`
	R2AccountID           string              `env:"CLOUDFLARE_R2_ACCOUNT_ID"`
	R2AccessKeyID         string              `env:"CLOUDFLARE_R2_ACCESS_KEY_ID"`
	R2AccessKeySecret     string              `env:"CLOUDFLARE_R2_ACCESS_KEY_SECRET"`
}

type RedisConfig struct {
	Addr     string `env:"MAILINTAKE_REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"MAILINTAKE_REDIS_PASSWORD"`
	DB       int    `env:"MAILINTAKE_REDIS_DB" envDefault:"0"`
}

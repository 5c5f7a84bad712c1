package dto

type MailboxRequest struct {
	Name               string `json:"name" binding:"required"`
	Host               string `json:"host" binding:"required"`
	Port               int    `json:"port" binding:"required"`
	TLS                bool   `json:"tls"`
	StartTLS           bool   `json:"starttls"`
	InsecureSkipVerify bool   `json:"insecureSkipVerify"`
	Username           string `json:"username" binding:"required"`
	Password           string `json:"password" binding:"required"`
	Folder             string `json:"folder"`
	Enabled            *bool  `json:"enabled"`
}

type MailboxEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

type WatermarkResetRequest struct {
	LastSeenUID uint32 `json:"lastSeenUid"`
}

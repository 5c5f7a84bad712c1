package interfaces

import "github.com/customeros/mailintake/dto"

type MessageParser interface {
	Parse(raw []byte) (*dto.ParsedEmail, error)
}

package utils

import (
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// GenerateNanoIDWithPrefix returns ids shaped like "tckt_3k9x...".
func GenerateNanoIDWithPrefix(prefix string, size int) string {
	id, err := gonanoid.Generate(idAlphabet, size)
	if err != nil {
		panic(err)
	}
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}

// GenerateTicketCode returns a human facing ticket code such as TCK-7K3M9Q2P.
func GenerateTicketCode(prefix string) string {
	id, err := gonanoid.Generate("23456789ABCDEFGHJKMNPQRSTUVWXYZ", 8)
	if err != nil {
		panic(err)
	}
	return strings.ToUpper(prefix) + "-" + id
}

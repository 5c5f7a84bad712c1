package interfaces

import (
	"context"

	"github.com/customeros/mailintake/dto"
	"github.com/customeros/mailintake/internal/enum"
)

type EmailFilterService interface {
	// Classify returns the classification and a short reason for it.
	Classify(ctx context.Context, email *dto.ParsedEmail) (enum.EmailClassification, string)
}

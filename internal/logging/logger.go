package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
)

// New builds the process logger. LOG_ENV=development switches to zap's
// console development config; everything else gets JSON for CloudWatch.
func New() (*zap.Logger, error) {
	if strings.EqualFold(strings.TrimSpace(os.Getenv("LOG_ENV")), "development") {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

package utils

import (
	"go.uber.org/zap"
)

// NewLogger returns a development logger for APP_ENV=development and a JSON production logger otherwise.
func NewLogger(env string) (*zap.Logger, error) {
	if env == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

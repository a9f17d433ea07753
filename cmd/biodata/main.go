package main

import (
	"os"

	"github.com/sirupsen/logrus"
)

// @title           Biodata API
// @version         1.0
// @description     Matrimonial biodata intake and moderation.
// @BasePath        /api
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := newRootCmd().Execute(); err != nil {
		logrus.WithError(err).Error("[cli] failed")
		os.Exit(1)
	}
}

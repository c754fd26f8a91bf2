package director

import (
	log "github.com/sirupsen/logrus"
)

type LogHolder struct {
	RunID     string
	Wave      string
	AppID     string
	AppLabel  string
	UserID    string
	UserEmail string
	DeviceID  string
	FactorID  string
	Message   string
	Metric    string
}

func processFields(logholder LogHolder) *log.Entry {
	logger := log.WithFields(log.Fields{})
	if logholder.RunID != "" {
		logger = logger.WithFields(
			log.Fields{
				"run_id": logholder.RunID,
			})
	}

	if logholder.Wave != "" {
		logger = logger.WithFields(
			log.Fields{
				"wave": logholder.Wave,
			})
	}

	if logholder.AppID != "" {
		logger = logger.WithFields(
			log.Fields{
				"app_id": logholder.AppID,
			})
	}

	if logholder.AppLabel != "" {
		logger = logger.WithFields(
			log.Fields{
				"app_label": logholder.AppLabel,
			})
	}

	if logholder.UserID != "" {
		logger = logger.WithFields(
			log.Fields{
				"user_id": logholder.UserID,
			})
	}

	if logholder.UserEmail != "" {
		logger = logger.WithFields(
			log.Fields{
				"user_email": logholder.UserEmail,
			})
	}

	if logholder.DeviceID != "" {
		logger = logger.WithFields(
			log.Fields{
				"device_id": logholder.DeviceID,
			})
	}

	if logholder.FactorID != "" {
		logger = logger.WithFields(
			log.Fields{
				"factor_id": logholder.FactorID,
			})
	}

	if logholder.Metric != "" {
		logger = logger.WithFields(
			log.Fields{
				"metric": logholder.Metric,
			})
	}

	return logger
}

func DebugLogger(logholder LogHolder) {
	logger := processFields(logholder)
	logger.Debug(logholder.Message)
}

func InfoLogger(logholder LogHolder) {
	logger := processFields(logholder)
	logger.Info(logholder.Message)
}

func WarnLogger(logholder LogHolder) {
	logger := processFields(logholder)

	logger.Warn(logholder.Message)
}

func ErrorLogger(logholder LogHolder) {
	logger := processFields(logholder)

	logger.Error(logholder.Message)
}

func FatalLogger(logholder LogHolder) {
	logger := processFields(logholder)

	logger.Fatal(logholder.Message)
}

package backend

import (
	"errors"
	"fmt"
	"time"

	"cloudledger/internal/config"
	gsheet "cloudledger/internal/sheets/google"
)

// FromAppConfig converts the application config to backend config.
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, errors.New("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type: backendType,

		SQLiteDBPath: appConfig.SQLiteDBPath,
		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,
		AMQPMaxWait:  30 * time.Second,

		RedisURL: appConfig.RedisURL,
		RedisKey: appConfig.RedisKey,

		GoogleSpreadsheetID: appConfig.GoogleSpreadsheetID,
		GoogleSheetName:     appConfig.GoogleSheetName,
		GoogleCredentials: gsheet.Credentials{
			ServiceAccountJSON: appConfig.GoogleServiceAccountJSON,
			ServiceAccountFile: appConfig.GoogleServiceAccountFile,
			OAuthClientJSON:    appConfig.GoogleOAuthClientJSON,
			OAuthClientFile:    appConfig.GoogleOAuthClientFile,
			OAuthTokenJSON:     appConfig.GoogleOAuthTokenJSON,
			OAuthTokenFile:     appConfig.GoogleOAuthTokenFile,
		},
		SheetsCacheTTL: appConfig.SheetsCacheTTL,

		DataDirectory: appConfig.DataDir,
	}, nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{SQLiteBackend, SheetsBackend, RedisBackend, MemoryBackend}
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.String()
	}
	return out
}

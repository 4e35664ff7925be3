package mongostore

import (
	"encoding/json"

	"github.com/fleetward/fleetward/internal/models"
)

// wrapStorage collapses a raw mongo-driver error into the closed StorageError kind; a nil
// error stays nil.
func wrapStorage(err error) error {
	if err == nil {
		return nil
	}
	return models.WrapAPIError(models.KindStorageError, "storage operation failed", err)
}

// extractOsType pulls the "os" field out of a grains JSON blob (§9 open question:
// absence leaves osType unchanged rather than clearing it, so the caller only applies
// the second return value when it is true).
func extractOsType(grainsJSON string) (string, bool) {
	var grains map[string]interface{}
	if err := json.Unmarshal([]byte(grainsJSON), &grains); err != nil {
		return "", false
	}
	if os, ok := grains["os"].(string); ok && os != "" {
		return os, true
	}
	return "", false
}

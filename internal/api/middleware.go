package api

import (
	"net/http"
	"time"

	"grading-assistant-core/internal/config"
	"grading-assistant-core/internal/license"
	"grading-assistant-core/internal/logger"
	"grading-assistant-core/internal/model"
	"grading-assistant-core/internal/sync"

	"github.com/gin-gonic/gin"
)

const identityContextKey = "identity"

func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, "+
			sync.HeaderIdempotencyKey+", "+license.HeaderDeviceID+", "+license.HeaderActivationID)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func LoggingMiddleware() gin.HandlerFunc {
	log := logger.Component("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		event := log.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			event = log.Error()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("device_id", c.GetHeader(license.HeaderDeviceID)).
			Msg("Request handled")
	}
}

func RecoveryMiddleware() gin.HandlerFunc {
	log := logger.Component("http")
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		log.Error().Interface("panic", recovered).Str("path", c.FullPath()).Msg("Recovered from panic")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	})
}

// IdentityMiddleware rejects callers without a device id (401) and callers
// that are not entitled (403).
func IdentityMiddleware(licenses config.LicenseConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := license.IdentityFromRequest(c.Request)
		if id.DeviceID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing " + license.HeaderDeviceID + " header"})
			return
		}
		if status := licenseStatus(licenses, id); !status.Entitled {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": status.Message})
			return
		}
		c.Set(identityContextKey, id)
		c.Next()
	}
}

func identity(c *gin.Context) model.Identity {
	if v, ok := c.Get(identityContextKey); ok {
		if id, ok := v.(model.Identity); ok {
			return id
		}
	}
	return license.IdentityFromRequest(c.Request)
}

// licenseStatus decides entitlement from the configured activation ids.
func licenseStatus(licenses config.LicenseConfig, id model.Identity) model.LicenseStatus {
	if !licenses.RequireLicense {
		return model.LicenseStatus{Entitled: true, RemainingQuota: licenses.DefaultQuota}
	}
	if id.ActivationID == "" {
		return model.LicenseStatus{Message: "No activation code on this device"}
	}
	for _, a := range licenses.ActivationIDs {
		if a == id.ActivationID {
			return model.LicenseStatus{Entitled: true, RemainingQuota: licenses.DefaultQuota}
		}
	}
	return model.LicenseStatus{Message: "Activation code is not recognized"}
}

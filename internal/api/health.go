package api

import (
	"net/http"
	"time"

	"gorm.io/gorm"
)

// ServiceStatus is one dependency's health entry.
type ServiceStatus struct {
	Status  string `json:"status"`
	Details string `json:"details"`
}

// HealthCheckResponse is the /healthz payload.
type HealthCheckResponse struct {
	Status   string                   `json:"status"`
	Uptime   string                   `json:"uptime"`
	Services map[string]ServiceStatus `json:"services"`
}

// RadioStatus is the radio surface the health check needs.
type RadioStatus interface {
	IsConnected() bool
}

// HealthCheckHandler handles GET /healthz. The radio being down degrades the
// status but the process keeps serving; only a dead store is fatal.
func HealthCheckHandler(gdb *gorm.DB, radio RadioStatus, upSince time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services := make(map[string]ServiceStatus)

		dbStatus := "ok"
		dbDetails := "store reachable"
		sqlDB, err := gdb.DB()
		if err == nil {
			err = sqlDB.PingContext(r.Context())
		}
		if err != nil {
			dbStatus = "down"
			dbDetails = err.Error()
		}
		services["store"] = ServiceStatus{Status: dbStatus, Details: dbDetails}

		radioStatus := "ok"
		radioDetails := "serial link up"
		if !radio.IsConnected() {
			radioStatus = "down"
			radioDetails = "serial link down, reconnecting"
		}
		services["radio"] = ServiceStatus{Status: radioStatus, Details: radioDetails}

		overallStatus := "ok"
		if dbStatus != "ok" {
			overallStatus = "down"
		} else if radioStatus != "ok" {
			overallStatus = "degraded"
		}

		uptime := time.Since(upSince).Round(time.Second).String()

		resp := HealthCheckResponse{
			Status:   overallStatus,
			Uptime:   uptime,
			Services: services,
		}

		code := http.StatusOK
		if overallStatus == "down" {
			code = http.StatusServiceUnavailable
		}
		respondWithSuccess(w, code, &resp)
	}
}

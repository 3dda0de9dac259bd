// internal/handler/discovery_handler.go
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"device-session/internal/discovery"
	"device-session/internal/utils"
)

const (
	defaultScanTimeout = 10 * time.Second
	maxScanTimeout     = 60 * time.Second
)

// DiscoveryHandler lists candidate ports and devices the session could connect to
type DiscoveryHandler struct {
	scanners *discovery.ScannerManager
	logger   *utils.ServiceLogger
}

// NewDiscoveryHandler creates a new discovery handler
func NewDiscoveryHandler(scanners *discovery.ScannerManager, logger *zap.Logger) *DiscoveryHandler {
	return &DiscoveryHandler{
		scanners: scanners,
		logger:   utils.NewServiceLogger(logger, "discovery-handler"),
	}
}

// RegisterRoutes registers discovery routes
func (h *DiscoveryHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/ports", h.ListPorts)

	discovery := router.Group("/discovery")
	{
		discovery.GET("/scan", h.ScanDevices)
		discovery.GET("/scanners", h.GetScanners)
	}
}

// ListPorts lists serial ports, ESP32 USB bridges first
// @Summary List serial ports
// @Description List serial ports with USB bridge detection. The first entry is what serial.port "auto" would pick.
// @Tags Discovery
// @Produce json
// @Success 200 {object} utils.APIResponse{data=object{devices_found=int,devices=[]discovery.DiscoveredDevice}} "Ports listed"
// @Failure 500 {object} utils.APIResponse "Listing failed"
// @Router /ports [get]
func (h *DiscoveryHandler) ListPorts(c *gin.Context) {
	h.scan(c, "serial")
}

// ScanDevices scans for candidate devices
// @Summary Scan for devices
// @Description Scan serial ports, USB bridges and TCP bridges for an ESP32. Results are ordered by confidence.
// @Tags Discovery
// @Produce json
// @Param type query string false "Scan type" Enums(all, serial, usb, tcp) default(all)
// @Param timeout query string false "Scan timeout" default(10s)
// @Success 200 {object} utils.APIResponse{data=object{devices_found=int,devices=[]discovery.DiscoveredDevice}} "Device scan completed"
// @Failure 400 {object} utils.APIResponse "Invalid request"
// @Failure 500 {object} utils.APIResponse "Scan failed"
// @Router /discovery/scan [get]
func (h *DiscoveryHandler) ScanDevices(c *gin.Context) {
	h.scan(c, c.DefaultQuery("type", "all"))
}

func (h *DiscoveryHandler) scan(c *gin.Context, scanType string) {
	timeout := defaultScanTimeout
	if value := c.Query("timeout"); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil || parsed <= 0 {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid timeout", err)
			return
		}
		timeout = min(parsed, maxScanTimeout)
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	var (
		devices []*discovery.DiscoveredDevice
		err     error
	)
	if scanType == "all" {
		devices, err = h.scanners.ScanAll(ctx)
	} else {
		devices, err = h.scanners.ScanByType(ctx, scanType)
	}
	switch {
	case errors.Is(err, discovery.ErrScannerNotFound):
		utils.ErrorResponse(c, http.StatusBadRequest, "Unknown scan type", err)
		return
	case errors.Is(err, context.DeadlineExceeded) && devices != nil:
		h.logger.Warn("Scan timed out, returning partial results", zap.Duration("timeout", timeout))
	case err != nil:
		h.logger.Error("Failed to scan devices", zap.String("type", scanType), zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to scan devices", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Device scan completed", gin.H{
		"devices_found": len(devices),
		"devices":       devices,
	})
}

// GetScanners lists the scanners usable on this host
// @Summary List available scanners
// @Tags Discovery
// @Produce json
// @Success 200 {object} utils.APIResponse{data=object{scanners=[]string}} "Scanners retrieved"
// @Router /discovery/scanners [get]
func (h *DiscoveryHandler) GetScanners(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Scanners retrieved", gin.H{
		"scanners": h.scanners.GetAvailableScanners(),
	})
}

package serialport

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/rtgs-lab/sdlink/pkg/errors"
	"go.bug.st/serial/enumerator"
)

// ParticleVID is the USB vendor ID shared by all Particle devices
// (Photon, Electron, Boron, Argon, Xenon).
const ParticleVID = "2B04"

// particleKeywords match product descriptions on platforms where the VID is
// not reported.
var particleKeywords = []string{"particle", "photon", "electron", "boron", "argon", "xenon"}

// PortInfo describes one serial port found on the host.
type PortInfo struct {
	Device      string
	Description string
	IsParticle  bool
}

// ListPorts enumerates serial ports with Particle device detection.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		slog.Error("port_enumeration_failed", "error", err)
		return nil, errors.Wrap(err, "failed to enumerate serial ports")
	}

	var ports []PortInfo
	for _, d := range details {
		ports = append(ports, PortInfo{
			Device:      d.Name,
			Description: portDescription(d),
			IsParticle:  isParticle(d),
		})
	}

	slog.Info("port_enumeration_complete", "port_count", len(ports))
	return ports, nil
}

// FindDevice returns the port of the first connected Particle device.
func FindDevice() (string, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return "", errors.Wrap(err, "failed to enumerate serial ports")
	}

	for _, d := range details {
		if isParticle(d) {
			slog.Info("device_detected", "device", d.Name, "vid", d.VID, "pid", d.PID)
			return d.Name, nil
		}
	}

	return "", fmt.Errorf("no Particle device found, specify --port manually")
}

func isParticle(d *enumerator.PortDetails) bool {
	if d.IsUSB && strings.EqualFold(d.VID, ParticleVID) {
		return true
	}
	product := strings.ToLower(d.Product)
	for _, kw := range particleKeywords {
		if strings.Contains(product, kw) {
			return true
		}
	}
	return false
}

func portDescription(d *enumerator.PortDetails) string {
	if d.Product != "" {
		return d.Product
	}
	if d.IsUSB {
		return fmt.Sprintf("USB %s:%s", d.VID, d.PID)
	}
	return "Unknown"
}

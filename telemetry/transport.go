// Package telemetry pushes per junction traffic state to a remote endpoint on
// a fixed reporting interval.  Delivery is best effort.
package telemetry

import (
	"context"
	"errors"

	"github.com/swdee/go-trafficvision/postprocess"
)

// ErrDelivery is returned when a report could not be delivered
var ErrDelivery = errors.New("telemetry delivery failed")

// Report is the state of one junction as sent to the endpoint
type Report struct {
	JunctionID        string             `json:"junction_id"`
	VehicleCount      postprocess.Counts `json:"vehicle_count"`
	AmbulanceDetected bool               `json:"ambulance_detected"`
}

// NewReport builds the report for a junction result
func NewReport(id string, res *postprocess.JunctionResult) Report {
	return Report{
		JunctionID:        id,
		VehicleCount:      res.Counts,
		AmbulanceDetected: res.Emergency,
	}
}

// Transport delivers reports to the remote endpoint
type Transport interface {
	Send(ctx context.Context, r Report) error
	Close() error
}

// NopTransport discards every report
type NopTransport struct{}

// Send does nothing
func (NopTransport) Send(ctx context.Context, r Report) error {
	return nil
}

// Close does nothing
func (NopTransport) Close() error {
	return nil
}

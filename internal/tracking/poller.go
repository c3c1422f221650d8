package tracking

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/zeebo/xxh3"

	"github.com/fleetdesk/fleetdesk/internal/backend"
)

const dateTimeLayout = "2006-01-02 15:04:05"

// Source fetches list endpoints from the backend.
type Source interface {
	FetchNamed(ctx context.Context, name string) backend.Result
}

// Broadcaster receives encoded messages for live clients.
type Broadcaster interface {
	Broadcast(msg []byte)
}

// Location is one vehicle position as sent to browsers.
type Location struct {
	VehicleID   string  `json:"vehicleId,omitempty"`
	PlateNumber string  `json:"plateNumber"`
	DriverName  string  `json:"driverName"`
	Status      string  `json:"status"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Speed       float64 `json:"speed"`
	UpdatedAt   string  `json:"updatedAt"`
}

// Message is the envelope written to websocket clients.
type Message struct {
	Type     string     `json:"type"`
	Vehicles []Location `json:"vehicles,omitempty"`
	Message  string     `json:"message,omitempty"`
}

// LocationFromRecord maps a vehicle-tracking record. Records without
// coordinates are reported as ok=false.
func LocationFromRecord(rec backend.Record) (Location, bool) {
	lat, okLat := rec.Number("latitude")
	lng, okLng := rec.Number("longitude")
	if !okLat || !okLng {
		return Location{}, false
	}
	loc := Location{
		VehicleID:   rec.Text("vehicleId"),
		PlateNumber: rec.Text("plateNumber"),
		DriverName:  rec.Text("driverName"),
		Status:      rec.Text("vehicleStatus"),
		Latitude:    lat,
		Longitude:   lng,
	}
	if loc.Status == "" {
		loc.Status = rec.Text("status")
	}
	loc.Speed, _ = rec.Number("speed")
	if ts, ok := rec.Date("timestamp"); ok {
		loc.UpdatedAt = ts.Format(dateTimeLayout)
	}
	return loc, true
}

// Poller fetches vehicle locations on an interval and broadcasts them when
// they change.
type Poller struct {
	source   Source
	out      Broadcaster
	interval time.Duration
	logger   *slog.Logger
	lastSum  uint64
	sent     bool
}

// NewPoller constructs a poller.
func NewPoller(source Source, out Broadcaster, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{source: source, out: out, interval: interval, logger: logger}
}

// Poll runs one fetch. It reports whether a message was broadcast.
func (p *Poller) Poll(ctx context.Context) bool {
	res := p.source.FetchNamed(ctx, backend.EndpointVehicleLocations)
	var msg Message
	if !res.Success {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Warn("vehicle locations fetch failed", slog.String("message", res.Message))
		msg = Message{Type: "error", Message: res.Message}
	} else {
		vehicles := make([]Location, 0, len(res.Data))
		for _, rec := range res.Data {
			if loc, ok := LocationFromRecord(rec); ok {
				vehicles = append(vehicles, loc)
			}
		}
		msg = Message{Type: "locations", Vehicles: vehicles}
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		p.logger.Error("encode locations", slog.Any("error", err))
		return false
	}
	sum := xxh3.Hash(payload)
	if p.sent && sum == p.lastSum {
		return false
	}
	p.lastSum, p.sent = sum, true
	p.out.Broadcast(payload)
	return true
}

// Run polls immediately and then every interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	p.Poll(ctx)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

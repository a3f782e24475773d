// Package router resolves platform service calls onto the coordinators that
// own the targeted mowers. Coordinators are injected explicitly; there is no
// ambient registry.
package router

import (
	"context"
	"fmt"
	"sync"

	"zcsmower/internal/coordinator"

	"go.uber.org/zap"
)

// Service names accepted on the platform surface.
const (
	ServiceSetProfile    = "set_profile"
	ServiceWorkNow       = "work_now"
	ServiceWorkFor       = "work_for"
	ServiceWorkUntil     = "work_until"
	ServiceBorderCut     = "border_cut"
	ServiceChargeNow     = "charge_now"
	ServiceChargeUntil   = "charge_until"
	ServiceTracePosition = "trace_position"
	ServiceKeepOut       = "keep_out"
)

// Location carries the keep_out geofence center and radius.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Radius    int     `json:"radius"`
}

// Params carries the optional service-call fields. Absent fields fall back
// to device defaults instead of erroring.
type Params struct {
	Profile  *int      `json:"profile,omitempty"`
	Area     *int      `json:"area,omitempty"`
	Duration *int      `json:"duration,omitempty"`
	Hours    *int      `json:"hours,omitempty"`
	Minutes  *int      `json:"minutes,omitempty"`
	Weekday  *int      `json:"weekday,omitempty"`
	Location *Location `json:"location,omitempty"`
	Index    *int      `json:"index,omitempty"`
}

// Target pairs a device identifier with the coordinator that owns it.
type Target struct {
	IMEI        string
	Coordinator *coordinator.Coordinator
}

// Router maps accounts to coordinators and device identifiers to their
// owning coordinator.
type Router struct {
	logger *zap.Logger

	mu           sync.RWMutex
	coordinators map[string]*coordinator.Coordinator
	owners       map[string]*coordinator.Coordinator
}

// New creates an empty router.
func New(logger *zap.Logger) *Router {
	return &Router{
		logger:       logger,
		coordinators: make(map[string]*coordinator.Coordinator),
		owners:       make(map[string]*coordinator.Coordinator),
	}
}

// Register adds one account's coordinator and indexes its mowers.
func (r *Router) Register(c *coordinator.Coordinator) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.coordinators[c.Name()] = c
	for _, reg := range c.Registrations() {
		r.owners[reg.IMEI] = c
	}
}

// Coordinators returns the registered coordinators keyed by account name.
func (r *Router) Coordinators() map[string]*coordinator.Coordinator {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*coordinator.Coordinator, len(r.coordinators))
	for name, c := range r.coordinators {
		out[name] = c
	}
	return out
}

// Resolve maps opaque device targets to their owning coordinators. Unknown
// targets are skipped, not errors.
func (r *Router) Resolve(deviceIDs []string) []Target {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool, len(deviceIDs))
	targets := make([]Target, 0, len(deviceIDs))
	for _, id := range deviceIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		owner, ok := r.owners[id]
		if !ok {
			r.logger.Debug("Skipping unknown service target",
				zap.String("device_id", id))
			continue
		}
		targets = append(targets, Target{IMEI: id, Coordinator: owner})
	}
	return targets
}

// Dispatch fires the matching command for every resolved target and returns
// how many targets it launched. Commands run as background tasks; completion
// is not awaited. Unknown services and missing required parameters are
// errors surfaced to the caller before anything is dispatched.
func (r *Router) Dispatch(ctx context.Context, service string, deviceIDs []string, p Params) (int, error) {
	op, err := r.operation(service, p)
	if err != nil {
		return 0, err
	}

	targets := r.Resolve(deviceIDs)
	for _, target := range targets {
		go op(ctx, target)
	}
	return len(targets), nil
}

func (r *Router) operation(service string, p Params) (func(context.Context, Target), error) {
	switch service {
	case ServiceSetProfile:
		if p.Profile == nil {
			return nil, fmt.Errorf("service %s requires a profile", service)
		}
		profile := *p.Profile
		return func(ctx context.Context, t Target) {
			t.Coordinator.SetProfile(ctx, t.IMEI, profile)
		}, nil

	case ServiceWorkNow:
		area := intOrDefault(p.Area, 1)
		return func(ctx context.Context, t Target) {
			t.Coordinator.WorkNow(ctx, t.IMEI, area)
		}, nil

	case ServiceWorkFor:
		if p.Duration == nil {
			return nil, fmt.Errorf("service %s requires a duration", service)
		}
		duration := *p.Duration
		area := intOrDefault(p.Area, 1)
		return func(ctx context.Context, t Target) {
			t.Coordinator.WorkFor(ctx, t.IMEI, duration, area)
		}, nil

	case ServiceWorkUntil:
		area := intOrDefault(p.Area, 1)
		hours := intOrDefault(p.Hours, 23)
		minutes := intOrDefault(p.Minutes, 59)
		return func(ctx context.Context, t Target) {
			t.Coordinator.WorkUntil(ctx, t.IMEI, area, hours, minutes)
		}, nil

	case ServiceBorderCut:
		return func(ctx context.Context, t Target) {
			t.Coordinator.BorderCut(ctx, t.IMEI)
		}, nil

	case ServiceChargeNow:
		return func(ctx context.Context, t Target) {
			t.Coordinator.ChargeNow(ctx, t.IMEI)
		}, nil

	case ServiceChargeUntil:
		if p.Hours == nil || p.Minutes == nil || p.Weekday == nil {
			return nil, fmt.Errorf("service %s requires hours, minutes and weekday", service)
		}
		hours, minutes, weekday := *p.Hours, *p.Minutes, *p.Weekday
		return func(ctx context.Context, t Target) {
			t.Coordinator.ChargeUntil(ctx, t.IMEI, hours, minutes, weekday)
		}, nil

	case ServiceTracePosition:
		return func(ctx context.Context, t Target) {
			t.Coordinator.TracePosition(ctx, t.IMEI)
		}, nil

	case ServiceKeepOut:
		if p.Location == nil {
			return nil, fmt.Errorf("service %s requires a location", service)
		}
		location := *p.Location
		hours, minutes, index := p.Hours, p.Minutes, p.Index
		return func(ctx context.Context, t Target) {
			t.Coordinator.KeepOut(ctx, t.IMEI,
				location.Latitude, location.Longitude, location.Radius,
				hours, minutes, index)
		}, nil
	}

	return nil, fmt.Errorf("unknown service %q", service)
}

func intOrDefault(value *int, fallback int) int {
	if value == nil {
		return fallback
	}
	return *value
}

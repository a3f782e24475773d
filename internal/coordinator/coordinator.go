// Package coordinator maintains one authoritative, periodically refreshed
// snapshot per vendor account and dispatches remote commands to the mowers
// it tracks. All consumers share the coordinator's snapshot; a refresh
// performs exactly one batched cloud call regardless of how many mowers are
// registered.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"zcsmower/internal/mower"
	"zcsmower/internal/zcs"

	"go.uber.org/zap"
)

// DefaultUpdateInterval is the scheduled refresh period.
const DefaultUpdateInterval = 5 * time.Minute

var (
	// ErrReauthRequired marks a refresh failure caused by rejected
	// credentials. The refresh cycle stops until credentials are fixed.
	ErrReauthRequired = errors.New("reauthentication required")
	// ErrUpdateFailed marks a recoverable refresh failure. The previous
	// snapshot stays visible and the next cycle retries.
	ErrUpdateFailed = errors.New("update failed")
)

// Field selection for the batched thing.list request.
var listFields = []string{
	"id",
	"key",
	"name",
	"connected",
	"lastSeen",
	"lastCommunication",
	"loc",
	"properties",
	"alarms",
	"attrs",
	"createdOn",
	"storage",
	"varBillingPlanCode",
}

// Listener receives the new snapshot after each successful refresh.
type Listener func(snapshot map[string]mower.Device)

// Coordinator owns the refresh cycle and the current snapshot for a fixed
// set of mower registrations, and exposes the outbound command operations
// keyed by IMEI.
type Coordinator struct {
	name          string
	registrations []mower.Registration
	api           zcs.API
	logger        *zap.Logger
	metrics       *Metrics
	interval      time.Duration
	onReauth      func(error)

	mu       sync.RWMutex
	snapshot map[string]mower.Device

	listenersMu sync.Mutex
	listeners   []Listener
}

// New creates a coordinator for one vendor account. A placeholder snapshot
// row exists for every registration from construction on, before the first
// refresh.
func New(name string, registrations []mower.Registration, api zcs.API, logger *zap.Logger, metrics *Metrics) *Coordinator {
	snapshot := make(map[string]mower.Device, len(registrations))
	for _, reg := range registrations {
		snapshot[reg.IMEI] = mower.NewDevice(reg)
	}
	return &Coordinator{
		name:          name,
		registrations: registrations,
		api:           api,
		logger:        logger,
		metrics:       metrics,
		interval:      DefaultUpdateInterval,
		snapshot:      snapshot,
	}
}

// Name returns the account name this coordinator serves.
func (c *Coordinator) Name() string {
	return c.name
}

// Registrations returns the fixed set of tracked mowers.
func (c *Coordinator) Registrations() []mower.Registration {
	return append([]mower.Registration(nil), c.registrations...)
}

// SetUpdateInterval overrides the scheduled refresh period. Must be called
// before Run.
func (c *Coordinator) SetUpdateInterval(interval time.Duration) {
	if interval > 0 {
		c.interval = interval
	}
}

// SetReauthHandler registers a callback fired when the refresh cycle stops
// because credentials were rejected.
func (c *Coordinator) SetReauthHandler(handler func(error)) {
	c.onReauth = handler
}

// Subscribe registers a listener notified after every successful refresh.
// Listeners receive their own copy of the snapshot.
func (c *Coordinator) Subscribe(listener Listener) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, listener)
}

// Snapshot returns a copy of the current snapshot: one row per registered
// IMEI, always.
func (c *Coordinator) Snapshot() map[string]mower.Device {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneSnapshot(c.snapshot)
}

// Refresh fetches the state of all registered mowers in one batched cloud
// call and atomically replaces the snapshot. On failure the previous
// snapshot is left untouched and the error wraps ErrReauthRequired for
// rejected credentials or ErrUpdateFailed for anything else.
func (c *Coordinator) Refresh(ctx context.Context) (map[string]mower.Device, error) {
	rows := make(map[string]mower.Device, len(c.registrations))
	imeis := make([]string, 0, len(c.registrations))

	c.mu.RLock()
	for _, reg := range c.registrations {
		imeis = append(imeis, reg.IMEI)
		if prev, ok := c.snapshot[reg.IMEI]; ok {
			rows[reg.IMEI] = prev.Clone()
		} else {
			rows[reg.IMEI] = mower.NewDevice(reg)
		}
	}
	c.mu.RUnlock()

	err := c.api.Execute(ctx, "thing.list", map[string]any{
		"show":       listFields,
		"hideFields": true,
		"keys":       imeis,
	})
	if err != nil {
		c.metrics.recordRefreshFailure()
		var authErr *zcs.AuthError
		if errors.As(err, &authErr) {
			return nil, fmt.Errorf("%w: %v", ErrReauthRequired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrUpdateFailed, err)
	}

	// Absence of "result" is not an error: rows keep their previous values.
	response := c.api.Response()
	if result, ok := response["result"].([]any); ok {
		for _, entry := range result {
			thing, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			key, ok := thing["key"].(string)
			if !ok {
				continue
			}
			row, registered := rows[key]
			if !registered {
				// Response entries for unregistered things never
				// create snapshot rows.
				continue
			}
			mergeThing(&row, thing)
			rows[key] = row
		}
	}

	c.mu.Lock()
	c.snapshot = rows
	c.mu.Unlock()

	c.metrics.recordRefreshSuccess(connectedCount(rows))
	c.logger.Debug("Snapshot refreshed",
		zap.String("account", c.name),
		zap.Int("mowers", len(rows)))

	c.notify(rows)
	return cloneSnapshot(rows), nil
}

// Run drives the scheduled refresh cycle until the context is cancelled or
// the vendor rejects the credentials.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Refresh(ctx); err != nil {
				if errors.Is(err, ErrReauthRequired) {
					c.logger.Error("Credentials rejected, stopping refresh cycle",
						zap.String("account", c.name),
						zap.Error(err))
					if c.onReauth != nil {
						c.onReauth(err)
					}
					return
				}
				c.logger.Warn("Refresh failed, keeping previous snapshot",
					zap.String("account", c.name),
					zap.Error(err))
			}
		}
	}
}

func (c *Coordinator) notify(snapshot map[string]mower.Device) {
	c.listenersMu.Lock()
	listeners := append([]Listener(nil), c.listeners...)
	c.listenersMu.Unlock()

	for _, listener := range listeners {
		listener(cloneSnapshot(snapshot))
	}
}

// mergeThing applies one thing.list response entry onto a snapshot row.
// Absent fields leave the row's previous values in place.
func mergeThing(row *mower.Device, thing map[string]any) {
	if alarms, ok := thing["alarms"].(map[string]any); ok {
		if robotState, ok := alarms["robot_state"].(map[string]any); ok {
			if state, ok := asFloat(robotState["state"]); ok {
				row.State = mower.RobotState(int(state))
			}
			// Latitude and longitude are not always reported.
			lat, okLat := asFloat(robotState["lat"])
			lng, okLng := asFloat(robotState["lng"])
			if okLat && okLng {
				row.Location = &mower.Location{Latitude: lat, Longitude: lng}
			}
		}
	}
	if attrs, ok := thing["attrs"].(map[string]any); ok {
		if serial, ok := attrValue(attrs, "robot_serial"); ok {
			row.Serial = &serial
		}
		if version, ok := attrValue(attrs, "program_version"); ok {
			row.SWVersion = &version
		}
	}
	if connected, ok := thing["connected"].(bool); ok {
		row.Connected = connected
	}
	if lastComm, ok := asTime(thing["lastCommunication"]); ok {
		row.LastCommunication = lastComm
	}
	if lastSeen, ok := asTime(thing["lastSeen"]); ok {
		row.LastSeen = lastSeen
	}
}

func attrValue(attrs map[string]any, key string) (string, bool) {
	attr, ok := attrs[key].(map[string]any)
	if !ok {
		return "", false
	}
	switch value := attr["value"].(type) {
	case string:
		return value, true
	case float64:
		return fmt.Sprintf("%v", value), true
	default:
		return "", false
	}
}

func asFloat(value any) (float64, bool) {
	switch typed := value.(type) {
	case float64:
		return typed, true
	case int:
		return float64(typed), true
	}
	return 0, false
}

func asTime(value any) (*time.Time, bool) {
	raw, ok := value.(string)
	if !ok {
		return nil, false
	}
	parsed, err := time.Parse(mower.APITimeLayout, raw)
	if err != nil {
		return nil, false
	}
	return &parsed, true
}

func cloneSnapshot(snapshot map[string]mower.Device) map[string]mower.Device {
	out := make(map[string]mower.Device, len(snapshot))
	for imei, device := range snapshot {
		out[imei] = device.Clone()
	}
	return out
}

func connectedCount(snapshot map[string]mower.Device) int {
	count := 0
	for _, device := range snapshot {
		if device.Connected {
			count++
		}
	}
	return count
}

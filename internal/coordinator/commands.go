package coordinator

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	// ackTimeout is the acknowledgement window, in seconds, the vendor
	// waits for the device to confirm a method call.
	ackTimeout = 30
	// wakeUpMessage is the out-of-band payload that brings a mower online.
	wakeUpMessage = "UP"
)

// wakeUp sends the out-of-band wake-up message. Best effort: a mower that
// is already online acknowledges it as a no-op, so failures never block the
// method call that follows.
func (c *Coordinator) wakeUp(ctx context.Context, imei string) bool {
	err := c.api.Execute(ctx, "sms.send", map[string]any{
		"coding":  "SEVEN_BIT",
		"imei":    imei,
		"message": wakeUpMessage,
	})
	if err != nil {
		c.logger.Warn("Wake-up failed",
			zap.String("imei", imei),
			zap.Error(err))
		return false
	}
	return true
}

// execMethod runs the wake-up-then-execute sequence for one device method.
// Never returns an error: command failures are logged and reported as false,
// per the fire-and-forget contract of remote commands.
func (c *Coordinator) execMethod(ctx context.Context, method, imei string, params map[string]any) bool {
	// Wake-up must complete (or fail) before the method call; the vendor
	// channel requires online state to accept it.
	c.wakeUp(ctx, imei)

	payload := map[string]any{
		"method":     method,
		"imei":       imei,
		"ackTimeout": ackTimeout,
		"singleton":  true,
	}
	if params != nil {
		payload["params"] = params
	}
	if err := c.api.Execute(ctx, "method.exec", payload); err != nil {
		c.logger.Error("Command failed",
			zap.String("method", method),
			zap.String("imei", imei),
			zap.Error(err))
		c.metrics.recordCommand(method, false)
		return false
	}

	c.metrics.recordCommand(method, true)
	c.logger.Debug("Command dispatched",
		zap.String("method", method),
		zap.String("imei", imei))
	return true
}

// SetProfile selects the mowing profile. The profile index is 1-based as
// presented to users and transmitted 0-based.
func (c *Coordinator) SetProfile(ctx context.Context, imei string, profile int) bool {
	return c.execMethod(ctx, "set_profile", imei, map[string]any{
		"profile": profile - 1,
	})
}

// WorkUntil starts mowing the given area (1-based) until the given time of
// day.
func (c *Coordinator) WorkUntil(ctx context.Context, imei string, area, hours, minutes int) bool {
	return c.execMethod(ctx, "work_until", imei, map[string]any{
		"area": area - 1,
		"hh":   hours,
		"mm":   minutes,
	})
}

// WorkNow starts mowing the given area until the end of the day.
func (c *Coordinator) WorkNow(ctx context.Context, imei string, area int) bool {
	return c.WorkUntil(ctx, imei, area, 23, 59)
}

// WorkFor starts mowing the given area for a duration in minutes.
func (c *Coordinator) WorkFor(ctx context.Context, imei string, duration, area int) bool {
	until := time.Now().Add(time.Duration(duration) * time.Minute)
	return c.WorkUntil(ctx, imei, area, until.Hour(), until.Minute())
}

// BorderCut starts a border cut.
func (c *Coordinator) BorderCut(ctx context.Context, imei string) bool {
	return c.execMethod(ctx, "border_cut", imei, nil)
}

// ChargeUntil sends the mower to charge until the given time on the given
// weekday. The weekday is transmitted as received.
func (c *Coordinator) ChargeUntil(ctx context.Context, imei string, hours, minutes, weekday int) bool {
	return c.execMethod(ctx, "charge_until", imei, map[string]any{
		"hh":      hours,
		"mm":      minutes,
		"weekday": weekday,
	})
}

// ChargeNow sends the mower to charge until the end of the current day.
func (c *Coordinator) ChargeNow(ctx context.Context, imei string) bool {
	return c.ChargeUntil(ctx, imei, 23, 59, int(time.Now().Weekday()))
}

// TracePosition requests a position report from the mower.
func (c *Coordinator) TracePosition(ctx context.Context, imei string) bool {
	return c.execMethod(ctx, "trace_position", imei, nil)
}

// KeepOut places a temporary no-go circle at the given coordinates. Hours,
// minutes and index are optional; when nil the device default applies and
// the field is omitted from the call.
func (c *Coordinator) KeepOut(ctx context.Context, imei string, latitude, longitude float64, radius int, hours, minutes, index *int) bool {
	params := map[string]any{
		"lat":    latitude,
		"lng":    longitude,
		"radius": radius,
	}
	if hours != nil {
		params["hh"] = *hours
	}
	if minutes != nil {
		params["mm"] = *minutes
	}
	if index != nil {
		params["index"] = *index
	}
	return c.execMethod(ctx, "keep_out", imei, params)
}

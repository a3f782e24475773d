// Package provision implements the one-shot account setup helpers: client
// key negotiation, client thing registration and robot_client attribute slot
// management. Unlike remote commands, provisioning errors are always raised
// to the caller so the operator sees the precise cause.
package provision

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"zcsmower/internal/mower"
	"zcsmower/internal/zcs"
)

const (
	clientKeyLength  = 8
	maxKeyAttempts   = 10
	robotClientSlots = 5
)

var (
	// ErrMowerNotFound means the IMEI is well-formed but the vendor cloud
	// has no thing for it.
	ErrMowerNotFound = errors.New("lawn mower not found")
	// ErrNoFreeSlot means all robot_client attribute slots are taken by
	// other client keys.
	ErrNoFreeSlot = errors.New("no available robot_client attribute slot")
)

const keyAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// GenerateClientKey returns a random lowercase alphanumeric client key.
func GenerateClientKey() string {
	key := make([]byte, clientKeyLength)
	for i := range key {
		key[i] = keyAlphabet[rand.Intn(len(keyAlphabet))]
	}
	return string(key)
}

// Authenticator validates a candidate client key against the vendor cloud.
type Authenticator func(ctx context.Context, clientKey string) error

// NegotiateClientKey generates candidate keys until one authenticates.
// Rejected keys are retried with fresh candidates up to a fixed attempt
// budget; non-auth failures abort immediately.
func NegotiateClientKey(ctx context.Context, authenticate Authenticator) (string, error) {
	var lastErr error
	for attempt := 0; attempt < maxKeyAttempts; attempt++ {
		key := GenerateClientKey()
		err := authenticate(ctx, key)
		if err == nil {
			return key, nil
		}
		var authErr *zcs.AuthError
		if !errors.As(err, &authErr) {
			return "", fmt.Errorf("validate client key: %w", err)
		}
		lastErr = err
	}
	return "", fmt.Errorf("no client key accepted after %d attempts: %w", maxKeyAttempts, lastErr)
}

// PublishClientThing registers the client thing under its key, or renames it
// when it already exists.
func PublishClientThing(ctx context.Context, api zcs.API, clientKey, clientName string) error {
	err := api.Execute(ctx, "thing.find", map[string]any{"key": clientKey})
	if err == nil {
		return api.Execute(ctx, "thing.update", map[string]any{
			"key":  clientKey,
			"name": clientName,
		})
	}

	var apiErr *zcs.APIError
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("find client thing: %w", err)
	}
	return api.Execute(ctx, "thing.create", map[string]any{
		"defKey": "client",
		"key":    clientKey,
		"name":   clientName,
	})
}

// ValidateMower checks the IMEI format and looks the mower up in the vendor
// cloud, returning its thing payload.
func ValidateMower(ctx context.Context, api zcs.API, imei string) (map[string]any, error) {
	if err := mower.ValidateIMEI(imei); err != nil {
		return nil, err
	}

	if err := api.Execute(ctx, "thing.find", map[string]any{"imei": imei}); err != nil {
		var apiErr *zcs.APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("%w: %s", ErrMowerNotFound, imei)
		}
		return nil, fmt.Errorf("find lawn mower: %w", err)
	}
	return api.Response(), nil
}

// FirstEmptyRobotClientSlot returns the first unset robot_client attribute
// slot on the thing, or the slot already bound to clientKey.
func FirstEmptyRobotClientSlot(thing map[string]any, clientKey string) (string, error) {
	attrs, ok := thing["attrs"].(map[string]any)
	if !ok {
		return "", errors.New("lawn mower has no attributes")
	}

	for i := 1; i <= robotClientSlots; i++ {
		slot := fmt.Sprintf("robot_client%d", i)
		attr, ok := attrs[slot].(map[string]any)
		if !ok {
			return slot, nil
		}
		if value, _ := attr["value"].(string); clientKey != "" && value == clientKey {
			return slot, nil
		}
	}
	return "", ErrNoFreeSlot
}

// ReplaceRobotClient rebinds the robot_client attribute from oldKey to
// newKey on every given mower, using one batched lookup.
func ReplaceRobotClient(ctx context.Context, api zcs.API, imeis []string, oldKey, newKey string) error {
	err := api.Execute(ctx, "thing.list", map[string]any{
		"show":       []string{"id", "key", "attrs"},
		"hideFields": true,
		"keys":       imeis,
	})
	if err != nil {
		return fmt.Errorf("list lawn mowers: %w", err)
	}

	registered := make(map[string]bool, len(imeis))
	for _, imei := range imeis {
		registered[imei] = true
	}

	response := api.Response()
	result, ok := response["result"].([]any)
	if !ok {
		return nil
	}
	for _, entry := range result {
		thing, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		key, ok := thing["key"].(string)
		if !ok || !registered[key] {
			continue
		}
		slot, err := FirstEmptyRobotClientSlot(thing, oldKey)
		if err != nil {
			return fmt.Errorf("mower %s: %w", key, err)
		}
		err = api.Execute(ctx, "attribute.publish", map[string]any{
			"imei":  key,
			"key":   slot,
			"value": newKey,
		})
		if err != nil {
			return fmt.Errorf("publish robot_client for %s: %w", key, err)
		}
	}
	return nil
}

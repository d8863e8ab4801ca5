// Package registry tracks known devices in Redis.
//
// Each device is stored as a hash under gridpulse:device:<id>, with a set of
// all known IDs under gridpulse:devices for enumeration. Ingestion touches the
// device on every sample, so the registry doubles as a last-seen tracker.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	deviceKeyPrefix = "gridpulse:device:"
	deviceSetKey    = "gridpulse:devices"
)

// ErrDeviceNotFound is returned when a device ID is not registered.
var ErrDeviceNotFound = errors.New("registry: device not found")

// Device describes one telemetry source.
type Device struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Location    string    `json:"location"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	SampleCount int64     `json:"sample_count"`
}

// Registry is the Redis-backed device registry.
type Registry struct {
	client *redis.Client
}

// New creates a registry backed by the given Redis instance.
func New(addr, password string, db int) *Registry {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Registry{client: client}
}

// Ping verifies the Redis connection.
func (r *Registry) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the Redis connection pool.
func (r *Registry) Close() error {
	return r.client.Close()
}

// Touch records that a sample arrived from the device, registering it on
// first contact.
func (r *Registry) Touch(ctx context.Context, deviceID string, at time.Time) error {
	key := deviceKeyPrefix + deviceID

	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, deviceSetKey, deviceID)
	pipe.HSetNX(ctx, key, "id", deviceID)
	pipe.HSetNX(ctx, key, "first_seen", at.UTC().Format(time.RFC3339Nano))
	pipe.HSet(ctx, key, "last_seen", at.UTC().Format(time.RFC3339Nano))
	pipe.HIncrBy(ctx, key, "sample_count", 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("touch device %s: %w", deviceID, err)
	}
	return nil
}

// Update sets the operator-editable fields of a device.
func (r *Registry) Update(ctx context.Context, deviceID, name, location string) error {
	exists, err := r.client.SIsMember(ctx, deviceSetKey, deviceID).Result()
	if err != nil {
		return fmt.Errorf("check device %s: %w", deviceID, err)
	}
	if !exists {
		return ErrDeviceNotFound
	}

	key := deviceKeyPrefix + deviceID
	fields := map[string]any{}
	if name != "" {
		fields["name"] = name
	}
	if location != "" {
		fields["location"] = location
	}
	if len(fields) == 0 {
		return nil
	}
	if err := r.client.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("update device %s: %w", deviceID, err)
	}
	return nil
}

// Get retrieves one device.
func (r *Registry) Get(ctx context.Context, deviceID string) (*Device, error) {
	fields, err := r.client.HGetAll(ctx, deviceKeyPrefix+deviceID).Result()
	if err != nil {
		return nil, fmt.Errorf("get device %s: %w", deviceID, err)
	}
	if len(fields) == 0 {
		return nil, ErrDeviceNotFound
	}
	return deviceFromHash(deviceID, fields), nil
}

// List returns all registered devices.
func (r *Registry) List(ctx context.Context) ([]*Device, error) {
	ids, err := r.client.SMembers(ctx, deviceSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}

	devices := make([]*Device, 0, len(ids))
	for _, id := range ids {
		dev, err := r.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrDeviceNotFound) {
				continue
			}
			return nil, err
		}
		devices = append(devices, dev)
	}
	return devices, nil
}

// Remove deletes a device from the registry.
func (r *Registry) Remove(ctx context.Context, deviceID string) error {
	pipe := r.client.TxPipeline()
	pipe.SRem(ctx, deviceSetKey, deviceID)
	pipe.Del(ctx, deviceKeyPrefix+deviceID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("remove device %s: %w", deviceID, err)
	}
	return nil
}

func deviceFromHash(id string, fields map[string]string) *Device {
	dev := &Device{ID: id}
	dev.Name = fields["name"]
	dev.Location = fields["location"]
	if v, err := time.Parse(time.RFC3339Nano, fields["first_seen"]); err == nil {
		dev.FirstSeen = v
	}
	if v, err := time.Parse(time.RFC3339Nano, fields["last_seen"]); err == nil {
		dev.LastSeen = v
	}
	if v, err := strconv.ParseInt(fields["sample_count"], 10, 64); err == nil {
		dev.SampleCount = v
	}
	return dev
}

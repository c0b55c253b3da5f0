package service

import (
	"testing"
	"time"

	"xcenter2mqtt/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func catalogAttr(t *testing.T, key string) domain.AttributeDefinition {
	t.Helper()
	reg, err := domain.NewAttributeRegistry(domain.XCenterAttributes(60 * time.Second))
	require.NoError(t, err)
	attr, ok := reg.ByKey(key)
	require.True(t, ok, "attribute %s not in catalog", key)
	return attr
}

func TestRangeRuleBounds(t *testing.T) {
	v := NewSafetyValidator(zap.NewNop())
	attr := catalogAttr(t, "dhw_setpoint")
	now := time.Now()

	assert.NoError(t, v.Validate(attr, domain.NumberValue(40.0), now))
	assert.NoError(t, v.Validate(attr, domain.NumberValue(60.0), now.Add(2*time.Minute)))
	assert.NoError(t, v.Validate(attr, domain.NumberValue(50.0), now.Add(4*time.Minute)))

	err := v.Validate(attr, domain.NumberValue(70.0), now.Add(6*time.Minute))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside safe range [40.0, 60.0]")

	err = v.Validate(attr, domain.NumberValue(39.9), now.Add(8*time.Minute))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside safe range")
}

func TestBlockedRule(t *testing.T) {
	v := NewSafetyValidator(zap.NewNop())
	attr := catalogAttr(t, "factory_heating_curve")

	err := v.Validate(attr, domain.NumberValue(1.2), time.Now())
	require.Error(t, err)
	assert.Equal(t, domain.BlockedReason, err.Error())
}

func TestEnumerationRule(t *testing.T) {
	v := NewSafetyValidator(zap.NewNop())
	attr := catalogAttr(t, "season_mode")
	now := time.Now()

	assert.NoError(t, v.Validate(attr, domain.EnumValue("heat"), now))

	err := v.Validate(attr, domain.EnumValue("turbo"), now.Add(2*time.Minute))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed")
}

func TestTypeMismatch(t *testing.T) {
	v := NewSafetyValidator(zap.NewNop())
	attr := catalogAttr(t, "dhw_setpoint")

	err := v.Validate(attr, domain.BoolValue(true), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "type mismatch")
}

func TestRateLimit(t *testing.T) {
	v := NewSafetyValidator(zap.NewNop())
	attr := catalogAttr(t, "dhw_setpoint")
	now := time.Now()

	require.NoError(t, v.Validate(attr, domain.NumberValue(50.0), now))

	// second write inside the window is rejected, reporting the wait left
	err := v.Validate(attr, domain.NumberValue(51.0), now.Add(10*time.Second))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
	assert.Contains(t, err.Error(), "wait 50s")

	// after the window it passes again
	assert.NoError(t, v.Validate(attr, domain.NumberValue(51.0), now.Add(61*time.Second)))
}

func TestRejectionDoesNotArmRateLimit(t *testing.T) {
	v := NewSafetyValidator(zap.NewNop())
	attr := catalogAttr(t, "dhw_setpoint")
	now := time.Now()

	// out-of-range command must not delay the next valid one
	require.Error(t, v.Validate(attr, domain.NumberValue(70.0), now))
	assert.NoError(t, v.Validate(attr, domain.NumberValue(50.0), now.Add(time.Second)))
}

func TestRateLimitIsPerAttribute(t *testing.T) {
	v := NewSafetyValidator(zap.NewNop())
	setpoint := catalogAttr(t, "dhw_setpoint")
	mode := catalogAttr(t, "season_mode")
	now := time.Now()

	require.NoError(t, v.Validate(setpoint, domain.NumberValue(50.0), now))
	assert.NoError(t, v.Validate(mode, domain.EnumValue("auto"), now.Add(time.Second)))
}

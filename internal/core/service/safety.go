package service

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"xcenter2mqtt/internal/core/domain"
	"xcenter2mqtt/internal/core/port"

	"go.uber.org/zap"
)

// SafetyValidator gates every device write. Checks run in a fixed order and
// the first failure wins: blocked, type, range, enumeration, rate limit.
// The rate limiter is armed only when every check passes, so a rejected
// command never delays a later valid one.
type SafetyValidator struct {
	logger *zap.Logger

	mu        sync.Mutex
	lastWrite map[string]time.Time
}

func NewSafetyValidator(logger *zap.Logger) *SafetyValidator {
	return &SafetyValidator{
		logger:    logger.With(zap.String("service", "safety")),
		lastWrite: make(map[string]time.Time),
	}
}

func (v *SafetyValidator) Validate(attr domain.AttributeDefinition, value domain.Value, now time.Time) error {
	rule := attr.Safety
	if rule == nil {
		// registry validation guarantees a rule for every writable attribute
		return errors.New("no safety rule configured")
	}
	if rule.Kind == domain.RuleBlocked {
		return errors.New(domain.BlockedReason)
	}
	if value.Kind != attr.Type {
		return fmt.Errorf("type mismatch: got %s, expected %s", kindName(value.Kind), kindName(attr.Type))
	}
	switch rule.Kind {
	case domain.RuleRange:
		if value.Number < rule.Min || value.Number > rule.Max {
			return fmt.Errorf("value %s outside safe range [%s, %s]",
				attr.FormatNumber(value.Number), attr.FormatNumber(rule.Min), attr.FormatNumber(rule.Max))
		}
	case domain.RuleEnumeration:
		if !slices.Contains(rule.Allowed, value.Payload(attr.Decimals)) {
			return fmt.Errorf("value %s not allowed (allowed: %s)",
				value.Payload(attr.Decimals), strings.Join(rule.Allowed, ", "))
		}
	}
	return v.checkAndArmRateLimit(attr.Key, rule.MinWriteInterval, now)
}

func (v *SafetyValidator) checkAndArmRateLimit(key string, minInterval time.Duration, now time.Time) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if last, ok := v.lastWrite[key]; ok && minInterval > 0 {
		elapsed := now.Sub(last)
		if elapsed < minInterval {
			remaining := minInterval - elapsed
			v.logger.Warn("command rate limited",
				zap.String("attribute", key),
				zap.Duration("elapsed", elapsed),
				zap.Duration("remaining", remaining))
			return fmt.Errorf("rate limited: wait %.0fs before writing again",
				remaining.Seconds())
		}
	}
	v.lastWrite[key] = now
	return nil
}

func kindName(kind domain.ValueKind) string {
	switch kind {
	case domain.ValueBool:
		return "boolean"
	case domain.ValueEnum:
		return "option"
	default:
		return "number"
	}
}

// ensure interface compliance
var _ port.CommandGate = (*SafetyValidator)(nil)

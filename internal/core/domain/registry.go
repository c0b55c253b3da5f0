package domain

import (
	"fmt"
)

// AttributeRegistry is the validated, immutable attribute catalog built once
// at startup. Safe for concurrent reads.
type AttributeRegistry struct {
	attributes []AttributeDefinition
	byKey      map[string]int
	bySuffix   map[string]int
}

// NewAttributeRegistry validates the catalog and builds lookup indexes. Any
// inconsistency is a configuration error and should abort startup.
func NewAttributeRegistry(attributes []AttributeDefinition) (*AttributeRegistry, error) {
	reg := &AttributeRegistry{
		attributes: attributes,
		byKey:      make(map[string]int, len(attributes)),
		bySuffix:   make(map[string]int, len(attributes)),
	}
	for i, attr := range attributes {
		if attr.Key == "" {
			return nil, fmt.Errorf("attribute #%d: empty key", i)
		}
		if _, dup := reg.byKey[attr.Key]; dup {
			return nil, fmt.Errorf("attribute %q: duplicate key", attr.Key)
		}
		if attr.TopicSuffix == "" {
			return nil, fmt.Errorf("attribute %q: empty topic suffix", attr.Key)
		}
		if _, dup := reg.bySuffix[attr.TopicSuffix]; dup {
			return nil, fmt.Errorf("attribute %q: duplicate topic suffix %q", attr.Key, attr.TopicSuffix)
		}
		if !attr.Readable() && !attr.Writable() {
			return nil, fmt.Errorf("attribute %q: neither readable nor writable", attr.Key)
		}
		if attr.Type == ValueEnum && len(attr.EnumLabels) == 0 {
			return nil, fmt.Errorf("attribute %q: enum attribute without labels", attr.Key)
		}
		if attr.Writable() {
			if err := checkSafetyRule(attr); err != nil {
				return nil, err
			}
		}
		reg.byKey[attr.Key] = i
		reg.bySuffix[attr.TopicSuffix] = i
	}
	return reg, nil
}

func checkSafetyRule(attr AttributeDefinition) error {
	rule := attr.Safety
	if rule == nil {
		return fmt.Errorf("attribute %q: writable attribute without a safety rule", attr.Key)
	}
	switch rule.Kind {
	case RuleRange:
		if rule.Min > rule.Max {
			return fmt.Errorf("attribute %q: range rule with min %f > max %f", attr.Key, rule.Min, rule.Max)
		}
	case RuleEnumeration:
		if len(rule.Allowed) == 0 {
			return fmt.Errorf("attribute %q: enumeration rule with no allowed values", attr.Key)
		}
	case RuleBlocked:
	default:
		return fmt.Errorf("attribute %q: unknown safety rule kind %d", attr.Key, rule.Kind)
	}
	return nil
}

func (r *AttributeRegistry) ByKey(key string) (AttributeDefinition, bool) {
	i, ok := r.byKey[key]
	if !ok {
		return AttributeDefinition{}, false
	}
	return r.attributes[i], true
}

func (r *AttributeRegistry) ByTopicSuffix(suffix string) (AttributeDefinition, bool) {
	i, ok := r.bySuffix[suffix]
	if !ok {
		return AttributeDefinition{}, false
	}
	return r.attributes[i], true
}

func (r *AttributeRegistry) All() []AttributeDefinition {
	return r.attributes
}

func (r *AttributeRegistry) AllReadable() []AttributeDefinition {
	var attrs []AttributeDefinition
	for _, attr := range r.attributes {
		if attr.Readable() {
			attrs = append(attrs, attr)
		}
	}
	return attrs
}

func (r *AttributeRegistry) AllWritable() []AttributeDefinition {
	var attrs []AttributeDefinition
	for _, attr := range r.attributes {
		if attr.Writable() {
			attrs = append(attrs, attr)
		}
	}
	return attrs
}

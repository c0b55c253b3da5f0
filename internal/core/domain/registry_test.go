package domain

import (
	"testing"
	"time"

	"xcenter2mqtt/pkg/xcenter_modbus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempAttr(key, suffix string) AttributeDefinition {
	return AttributeDefinition{
		Key: key, Name: key, Type: ValueNumber, Decimals: 1,
		ReadRegister: &xcenter_modbus.Register{Unit: 40, Addr: 100, Kind: xcenter_modbus.KindInt16, Scale: 0.1},
		TopicSuffix:  suffix,
		Component:    COMPONENT_SENSOR,
	}
}

func TestCatalogIsValid(t *testing.T) {
	reg, err := NewAttributeRegistry(XCenterAttributes(60 * time.Second))
	require.NoError(t, err)

	attr, ok := reg.ByKey("dhw_setpoint")
	require.True(t, ok)
	assert.True(t, attr.Writable())
	assert.Equal(t, "controls/dhw_setpoint", attr.TopicSuffix)

	attr, ok = reg.ByTopicSuffix("sensors/outdoor_temp")
	require.True(t, ok)
	assert.Equal(t, "outdoor_temp", attr.Key)

	assert.NotEmpty(t, reg.AllReadable())
	assert.NotEmpty(t, reg.AllWritable())
	assert.Less(t, len(reg.AllWritable()), len(reg.All()))
}

func TestRegistryRejectsWritableWithoutRule(t *testing.T) {
	attr := tempAttr("setpoint", "controls/setpoint")
	attr.WriteRegister = attr.ReadRegister

	_, err := NewAttributeRegistry([]AttributeDefinition{attr})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "without a safety rule")
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewAttributeRegistry([]AttributeDefinition{
		tempAttr("a", "sensors/a"),
		tempAttr("a", "sensors/b"),
	})
	assert.Error(t, err)

	_, err = NewAttributeRegistry([]AttributeDefinition{
		tempAttr("a", "sensors/a"),
		tempAttr("b", "sensors/a"),
	})
	assert.Error(t, err)
}

func TestRegistryRejectsInvalidRules(t *testing.T) {
	attr := tempAttr("setpoint", "controls/setpoint")
	attr.WriteRegister = attr.ReadRegister
	attr.Safety = &SafetyRule{Kind: RuleRange, Min: 10, Max: 5}
	_, err := NewAttributeRegistry([]AttributeDefinition{attr})
	assert.Error(t, err)

	attr.Safety = &SafetyRule{Kind: RuleEnumeration}
	_, err = NewAttributeRegistry([]AttributeDefinition{attr})
	assert.Error(t, err)
}

func TestRegistryRejectsNoRegisters(t *testing.T) {
	attr := tempAttr("ghost", "sensors/ghost")
	attr.ReadRegister = nil

	_, err := NewAttributeRegistry([]AttributeDefinition{attr})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "neither readable nor writable")
}

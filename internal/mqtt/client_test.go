package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommandExtract(t *testing.T) {

	assert := assert.New(t)

	r := commandExtractor("xcenter", "heatpump_basement")
	matches := r.FindAllStringSubmatch("xcenter/heatpump_basement/controls/dhw_setpoint/set", 1)

	assert.Equal("controls/dhw_setpoint", matches[0][1], "suffix extract")
}

func TestCommandExtractIgnoresStateAndError(t *testing.T) {

	assert := assert.New(t)

	r := commandExtractor("xcenter", "heatpump_basement")

	for _, topic := range []string{
		"xcenter/heatpump_basement/sensors/outdoor_temp",
		"xcenter/heatpump_basement/controls/dhw_setpoint/set/error",
		"xcenter/heatpump_basement/availability",
		"xcenter/other_device/controls/dhw_setpoint/set",
	} {
		matches := r.FindAllStringSubmatch(topic, 1)
		assert.Equal(0, len(matches), topic)
	}
}

func TestTopicGrammar(t *testing.T) {

	assert := assert.New(t)

	client := &MQTTClient{deviceId: "heatpump_basement"}
	client.cfg.BaseTopic = "xcenter"

	assert.Equal("xcenter/heatpump_basement/sensors/outdoor_temp", client.StateTopic("sensors/outdoor_temp"))
	assert.Equal("xcenter/heatpump_basement/controls/dhw_setpoint/set", client.CommandTopic("controls/dhw_setpoint"))
	assert.Equal("xcenter/heatpump_basement/controls/dhw_setpoint/set/error", client.CommandErrorTopic("controls/dhw_setpoint"))
	assert.Equal("xcenter/heatpump_basement/availability", client.AvailabilityTopic())
	assert.Equal("xcenter/heatpump_basement/#", client.deviceTopicFilter())
}

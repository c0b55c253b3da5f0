package domain

// Device is the MQTT-facing identity of the bridged controller. Every
// discovery entity shares one device block built from it.
type Device struct {
	Id           string
	Name         string
	Version      string
	Model        string
	Manufacturer string
	Serial       string
}

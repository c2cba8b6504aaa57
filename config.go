package main

import (
	"vestiar/audit"
	"vestiar/door"
	"vestiar/mqtt"
	"vestiar/wiegand"
)

// Config is the main configuration structure for vestiar.
type Config struct {
	// MQTT connection settings
	MQTT mqtt.Config `yaml:"mqtt"`

	// Wiegand bus wiring and optional alternate credential source
	Wiegand wiegand.Config `yaml:"wiegand"`

	// Door actuator and sensor configuration
	Door door.Config `yaml:"door"`

	// Local audit log settings
	Audit audit.Config `yaml:"audit"`

	// General settings
	ClientID     string `yaml:"client_id"`
	RegistryFile string `yaml:"registry_file"`
	RulesFile    string `yaml:"rules_file"`
	CodeFile     string `yaml:"code_file"`
	MasterCode   string `yaml:"master_code"` // seed when no code file exists
	EnrollPin    *int   `yaml:"enroll_pin"`  // enrollment pushbutton GPIO
}

package server

import "github.com/autopeer-io/robofleet/pkg/options"

type Config struct {
	HttpOptions *options.HttpOptions
	MqttOptions *options.MqttOptions
}

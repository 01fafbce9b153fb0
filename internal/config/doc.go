// Package config manages the iotctl YAML configuration file.
//
// The file remembers devices by address (nickname, mDNS hostname, last
// username that authenticated, last observed session state) and holds
// preferences that tune device sessions: request timeout, readiness poll
// interval, discovery timeout and User-Agent.
//
// # Configuration File Location
//
//   - Linux: $XDG_CONFIG_HOME/iotctl/config.yaml or $HOME/.config/iotctl/config.yaml
//   - macOS: $HOME/.config/iotctl/config.yaml
//   - Windows: %LOCALAPPDATA%\iotctl\config.yaml
//
// # Security
//
// Device passwords are never written to the file. The CLI prompts for them
// or reads IOTCTL_PASSWORD.
//
// # Usage Example
//
//	registry, err := config.LoadRegistry()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	address := registry.ResolveAddress("kitchen-pi")
//	s := device.New(address, registry.Preferences.SessionOptions()...)
//	<-s.Ready()
//	registry.RecordState(s.State(), "")
//	_ = registry.Save()
package config

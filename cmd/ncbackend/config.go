// Package main implements the backend daemon binary, wiring the Datastore
// Facade, Validator, Commit Engine, Confirmed-Commit State Machine, NACM
// Authorizer, RPC Dispatcher, SNMP Façade, RESTCONF Façade and metrics
// registry into one running process.
package main

import "time"

// Config mirrors the daemon's CLI option table, plus the XML config file
// the same options can be supplied through. Field names follow the
// corresponding short flag for traceability.
type Config struct {
	DebugLevel       int    `xml:"debug"`
	ConfigFile       string `xml:"-"`
	LogDestination   string `xml:"log"`
	PluginDir        string `xml:"plugin-dir"`
	YangPath         string `xml:"yang-path"`
	DatastoreDir     string `xml:"datastore-dir"`
	Foreground       bool   `xml:"foreground"`
	KillRunning      bool   `xml:"-"`
	SocketFamily     string `xml:"socket-family"`
	SocketAddress    string `xml:"socket-address"`
	PidFile          string `xml:"pid-file"`
	OneShot          bool   `xml:"one-shot"`
	StartupMode      string `xml:"startup-mode"`
	ExtraXMLFile     string `xml:"extra-xml"`
	RequiredGroup    string `xml:"socket-group"`
	YangOverrideFile string `xml:"yang-override"`
	DatastorePlugin  string `xml:"datastore-plugin"`
	OptionOverrides  map[string]string `xml:"-"`

	MetricsListen  string `xml:"metrics-listen"`
	RestconfListen string `xml:"restconf-listen"`
	NacmMode       string `xml:"nacm-mode"`
	NacmFile       string `xml:"nacm-file"`

	SessionHelloTimeout time.Duration `xml:"-"`
}

// DefaultConfig is a package-level struct of sane defaults, merged with
// caller overrides via mergo, layering flags over a config file over these
// defaults.
var DefaultConfig = &Config{
	LogDestination:      "stderr",
	DatastoreDir:        "/var/lib/ncbackend",
	SocketFamily:        "IPv4",
	SocketAddress:       "127.0.0.1:830",
	PidFile:             "/var/run/ncbackend.pid",
	StartupMode:         "startup",
	NacmMode:            "internal",
	MetricsListen:       "127.0.0.1:9100",
	RestconfListen:      "127.0.0.1:8080",
	SessionHelloTimeout: 5 * time.Second,
}

package snmp

import (
	"encoding/hex"
	"log"
	"time"
)

// ManagerTrace defines a structure for handling trace events
type ManagerTrace struct {
	// ConnectStart is called before establishing a network connection to an agent.
	ConnectStart func(config *SessionConfig)

	// ConnectDone is called when the network connection attempt completes, with err indicating
	// whether it was successful.
	ConnectDone func(config *SessionConfig, err error, took time.Duration)

	// Error is called after an error condition has been detected.
	Error func(location string, config *SessionConfig, err error)

	// WriteComplete is called after a packet has been written
	WriteComplete func(config *SessionConfig, output []byte, err error)

	// ReadComplete is called after a read has completed
	ReadComplete func(config *SessionConfig, input []byte, err error)

	// TODO Define other hooks
}

// DefaultLoggingHooks provides a default logging hook to report errors.
var DefaultLoggingHooks = &ManagerTrace{
	Error: func(location string, config *SessionConfig, err error) {
		log.Printf("Error context:%s target:%s err:%v\n", location, config.address, err)
	},
}

// DiagnosticLoggingHooks provides a set of default diagnostic hooks
var DiagnosticLoggingHooks = &ManagerTrace{
	ConnectStart: func(config *SessionConfig) {
		log.Printf("ConnectStart target:%s\n", config.address)
	},
	ConnectDone: func(config *SessionConfig, err error, took time.Duration) {
		log.Printf("ConnectDone target:%s err:%v took:%s\n", config.address, err, took)
	},
	Error: func(location string, config *SessionConfig, err error) {
		log.Printf("Error context:%s target:%s err:%v\n", location, config.address, err)
	},
	WriteComplete: func(config *SessionConfig, output []byte, err error) {
		log.Printf("WriteComplete target:%s err:%v data:%s\n", config.address, err, hex.EncodeToString(output))
	},
	ReadComplete: func(config *SessionConfig, input []byte, err error) {
		log.Printf("ReadComplete target:%s err:%v data:%s\n", config.address, err, hex.EncodeToString(input))
	},
}

// MetricLoggingHooks records request/response sizes without the full hex dump DiagnosticLoggingHooks emits.
var MetricLoggingHooks = &ManagerTrace{
	WriteComplete: func(config *SessionConfig, output []byte, err error) {
		log.Printf("bytesWritten target:%s n:%d err:%v\n", config.address, len(output), err)
	},
	ReadComplete: func(config *SessionConfig, input []byte, err error) {
		log.Printf("bytesRead target:%s n:%d err:%v\n", config.address, len(input), err)
	},
}

// NoOpLoggingHooks provides set of hooks that do nothing.
var NoOpLoggingHooks = &ManagerTrace{
	ConnectStart:  func(config *SessionConfig) {},
	ConnectDone:   func(config *SessionConfig, err error, took time.Duration) {},
	Error:         func(location string, config *SessionConfig, err error) {},
	WriteComplete: func(config *SessionConfig, output []byte, err error) {},
	ReadComplete:  func(config *SessionConfig, input []byte, err error) {},
}

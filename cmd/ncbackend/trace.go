package main

import (
	"log"

	"github.com/imdario/mergo"
)

// Trace collects the backend's own lifecycle logging hooks: struct of
// optional func fields, one per daemon-level event, following the same
// shape as the netconf/client package's ClientTrace and the snmp package's
// ManagerTrace. A nil
// hook is filled in with NoOpHooks' no-op before use, never called
// directly.
type Trace struct {
	Starting     func(cfg *Config)
	Listening    func(family, address string)
	SessionOpen  func(id uint64, user string)
	SessionClose func(id uint64, err error)
	Committed    func(persist string, confirmed bool)
	Reverted     func(reason error)
	Stopping     func(sig string)
}

// DefaultHooks logs every event through the standard log package's default
// logger (-l does not change where these lines go): the teacher's own choice of logging
// tool for daemon-level events, never a structured-logging library.
var DefaultHooks = &Trace{
	Starting: func(cfg *Config) {
		log.Printf("starting: socket=%s:%s datastore=%s", cfg.SocketFamily, cfg.SocketAddress, cfg.DatastoreDir)
	},
	Listening: func(family, address string) {
		log.Printf("listening: family=%s address=%s", family, address)
	},
	SessionOpen: func(id uint64, user string) {
		log.Printf("session-open id:%d user:%s", id, user)
	},
	SessionClose: func(id uint64, err error) {
		if err != nil {
			log.Printf("session-close id:%d error:%v", id, err)
			return
		}
		log.Printf("session-close id:%d", id)
	},
	Committed: func(persist string, confirmed bool) {
		log.Printf("committed persist:%q confirmed:%v", persist, confirmed)
	},
	Reverted: func(reason error) {
		log.Printf("reverted reason:%v", reason)
	},
	Stopping: func(sig string) {
		log.Printf("stopping signal:%s", sig)
	},
}

// NoOpHooks does nothing for every event, used to fill nil fields of a
// caller-supplied Trace via mergo.Merge.
var NoOpHooks = &Trace{
	Starting:     func(cfg *Config) {},
	Listening:    func(family, address string) {},
	SessionOpen:  func(id uint64, user string) {},
	SessionClose: func(id uint64, err error) {},
	Committed:    func(persist string, confirmed bool) {},
	Reverted:     func(reason error) {},
	Stopping:     func(sig string) {},
}

func resolveHooks(t *Trace) *Trace {
	if t == nil {
		return DefaultHooks
	}
	merged := *t
	_ = mergo.Merge(&merged, NoOpHooks)
	return &merged
}

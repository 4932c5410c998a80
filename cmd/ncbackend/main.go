package main

import (
	"bytes"
	"context"
	"encoding/asn1"
	"encoding/xml"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/imdario/mergo"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	xssh "golang.org/x/crypto/ssh"

	"github.com/yangwire/ncbackend/commit"
	"github.com/yangwire/ncbackend/confirmed"
	"github.com/yangwire/ncbackend/datastore"
	"github.com/yangwire/ncbackend/internal/dispatch"
	"github.com/yangwire/ncbackend/internal/metrics"
	"github.com/yangwire/ncbackend/internal/restconf"
	"github.com/yangwire/ncbackend/internal/rpcops"
	"github.com/yangwire/ncbackend/internal/snmpfacade"
	"github.com/yangwire/ncbackend/internal/transport/ssh"
	"github.com/yangwire/ncbackend/nacm"
	"github.com/yangwire/ncbackend/schema"
	"github.com/yangwire/ncbackend/validate"
	"github.com/yangwire/ncbackend/xtree"
)

// parseFlags registers the daemon's POSIX short flags with pflag (not a
// cobra command tree: this is one long-running process, not a verb-based
// tool) and returns the resulting override set plus the parsed -f/-P/-1
// values main needs before the three-tier merge.
func parseFlags(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("ncbackend", pflag.ContinueOnError)
	cfg := &Config{}

	help := fs.BoolP("help", "h", false, "print usage and exit")
	fs.IntVarP(&cfg.DebugLevel, "debug", "D", 0, "debug level")
	fs.StringVarP(&cfg.ConfigFile, "config", "f", "", "path to XML config file")
	fs.StringVarP(&cfg.LogDestination, "log", "l", "", "log destination: s(yslog), e(stderr), o(stdout) or f<file>")
	fs.StringVarP(&cfg.PluginDir, "plugin-dir", "d", "", "plugin directory")
	fs.StringVarP(&cfg.YangPath, "yang-path", "p", "", "YANG search path")
	fs.StringVarP(&cfg.DatastoreDir, "datastore-dir", "b", "", "datastore directory")
	fs.BoolVarP(&cfg.Foreground, "foreground", "F", false, "run in the foreground")
	fs.BoolVarP(&cfg.KillRunning, "kill-running", "z", false, "kill a backend already listening on the configured socket")
	fs.StringVarP(&cfg.SocketFamily, "socket-family", "a", "", "socket family (IPv4, IPv6 or UNIX)")
	fs.StringVarP(&cfg.SocketAddress, "socket-address", "u", "", "socket address (host:port, or a path for UNIX)")
	fs.StringVarP(&cfg.PidFile, "pid-file", "P", "", "pidfile path")
	fs.BoolVarP(&cfg.OneShot, "one-shot", "1", false, "load startup config, commit once, and exit")
	fs.StringVarP(&cfg.StartupMode, "startup-mode", "s", "", "startup mode (none, startup, running or init)")
	fs.StringVarP(&cfg.ExtraXMLFile, "extra-xml", "c", "", "extra XML file merged into running at startup")
	fs.StringVarP(&cfg.RequiredGroup, "socket-group", "g", "", "required group ownership for a UNIX socket")
	fs.StringVarP(&cfg.YangOverrideFile, "yang-override", "y", "", "YANG module override file")
	fs.StringVarP(&cfg.DatastorePlugin, "datastore-plugin", "x", "", "external datastore plugin name")
	fs.StringToStringVarP(&cfg.OptionOverrides, "option", "o", nil, "datastore option override, key=val")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *help {
		fmt.Fprintln(os.Stderr, fs.FlagUsages())
		os.Exit(0)
	}
	return cfg, nil
}

// resolveConfig layers flags over an optional XML config file over
// DefaultConfig, each tier only overriding the previous where its own
// fields are non-zero, following rpcsessionfactory.go's
// mergo.Merge(&resolvedConfig, DefaultConfig) idiom extended to three
// tiers with mergo.WithOverride at each step.
func resolveConfig(flags *Config) (*Config, error) {
	resolved := &Config{}

	if flags.ConfigFile != "" {
		fileCfg, err := loadConfigFile(flags.ConfigFile)
		if err != nil {
			return nil, errors.Wrap(err, "ncbackend: load config file")
		}
		if err := mergo.Merge(resolved, fileCfg, mergo.WithOverride); err != nil {
			return nil, errors.Wrap(err, "ncbackend: merge config file")
		}
	}
	if err := mergo.Merge(resolved, flags, mergo.WithOverride); err != nil {
		return nil, errors.Wrap(err, "ncbackend: merge flags")
	}
	if err := mergo.Merge(resolved, DefaultConfig); err != nil {
		return nil, errors.Wrap(err, "ncbackend: merge defaults")
	}
	return resolved, nil
}

func loadConfigFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var cfg Config
	if err := xml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func withSignalCancel(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(signals)
	}()
	return ctx
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}
	cfg, err := resolveConfig(flags)
	if err != nil {
		return err
	}

	trace := resolveHooks(nil)
	trace.Starting(cfg)

	if cfg.KillRunning {
		return killRunning(cfg)
	}

	if running, pid := stalePidFileHolder(cfg.PidFile); running {
		return fmt.Errorf("ncbackend: already running (pid %d); use -z to take over", pid)
	}
	if err := writePidFile(cfg); err != nil {
		return err
	}
	defer os.Remove(cfg.PidFile)

	backing, err := backingFor(cfg)
	if err != nil {
		return err
	}
	store := datastore.New(backing, datastore.Options{NacmMode: cfg.NacmMode})
	for k, v := range cfg.OptionOverrides {
		store.SetOpt(k, v)
	}
	if err := seedStartupDatastores(store); err != nil {
		return err
	}

	sch := schema.New() // YANG parsing is out of scope; a real deployment adds modules here via -y.
	validator := validate.New(sch)
	engine := commit.New(store, validator)
	sm := confirmed.New(engine, store)
	sm.OnRollback(func(failure confirmed.RollbackFailure) {
		if failure != 0 {
			log.Printf("ncbackend: automatic rollback completed with failures (%d)", failure)
			return
		}
		log.Print("Commit was not confirmed; automatic rollback complete.")
	})

	if cfg.ExtraXMLFile != "" {
		if err := mergeExtraXML(store, cfg.ExtraXMLFile); err != nil {
			return errors.Wrap(err, "ncbackend: merge extra XML")
		}
	}

	authorizer, err := authorizerFor(cfg)
	if err != nil {
		return err
	}

	metricsReg := metrics.New()
	engine.Metrics = metricsReg
	sm.SetMetrics(metricsReg)
	authorizer.SetMetrics(metricsReg)

	d := dispatch.New(store)
	d.SetAuthorizer(authorizer)
	d.SetMetrics(metricsReg)
	d.OnSessionClosed(sm.SessionTerminated)
	rpcops.Register(d, &rpcops.Bindings{Store: store, Engine: engine, Confirmed: sm, Authorizer: authorizer})

	snmpFacade := snmpfacade.New(store, unmappedOIDResolver, nil)
	snmpFacade.Metrics = metricsReg
	_ = snmpFacade // wired for callers that inject SNMP bindings out-of-band; no SNMP listener of its own.

	ctx := withSignalCancel(context.Background())

	if cfg.OneShot {
		status := engine.LoadStartup(ctx, commit.StartupMode(cfg.StartupMode))
		if status == commit.StartupErr {
			return fmt.Errorf("ncbackend: one-shot startup load failed")
		}
		return nil
	}

	metricsSrv, err := metrics.StartServer(cfg.MetricsListen, metricsReg)
	if err != nil {
		return err
	}
	defer metricsSrv.Shutdown(context.Background())

	restconfSrv := restconf.New(store, engine, authorizer)
	go func() {
		if err := restconfSrv.ListenAndServe(cfg.RestconfListen); err != nil {
			trace.Stopping("restconf:" + err.Error())
		}
	}()

	sshCfg, err := sshServerConfig()
	if err != nil {
		return err
	}
	sshSrv, err := startSSHServer(ctx, cfg, sshCfg, sessionStarter(d, trace))
	if err != nil {
		return err
	}
	defer sshSrv.Close()
	trace.Listening(cfg.SocketFamily, cfg.SocketAddress)

	<-ctx.Done()
	trace.Stopping("shutdown")
	return nil
}

func sessionStarter(d *dispatch.Dispatcher, trace *Trace) ssh.SessionStarter {
	return func(user string, ch xssh.Channel) {
		s := d.NewSession(ch, user)
		trace.SessionOpen(uint64(s.ID()), user)
		err := s.Serve(context.Background())
		trace.SessionClose(uint64(s.ID()), err)
	}
}

func startSSHServer(ctx context.Context, cfg *Config, sshCfg *xssh.ServerConfig, start ssh.SessionStarter) (*ssh.Server, error) {
	if cfg.SocketFamily == "UNIX" {
		return ssh.NewUnixServer(ctx, cfg.SocketAddress, sshCfg, start)
	}
	host, portStr, err := splitHostPort(cfg.SocketAddress)
	if err != nil {
		return nil, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, errors.Wrap(err, "ncbackend: parse socket-address port")
	}
	return ssh.NewServer(ctx, host, port, sshCfg, start)
}

func splitHostPort(addr string) (host, port string, err error) {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i], addr[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("ncbackend: %q is not a host:port address", addr)
}

func backingFor(cfg *Config) (datastore.Backing, error) {
	if cfg.DatastoreDir == "" {
		return datastore.NewMemBacking(), nil
	}
	return datastore.NewFileBacking(cfg.DatastoreDir)
}

// mergeExtraXML loads the -c file and merges each of its top-level
// elements into running, ahead of any client connecting.
func mergeExtraXML(store *datastore.Facade, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	el, err := xtree.Parse(f)
	if err != nil {
		return err
	}
	for _, child := range el.Children {
		if res := store.Put(datastore.Running, child, datastore.OpMerge); res != datastore.OK {
			return fmt.Errorf("ncbackend: merge %s into running: %s", child.Name, res)
		}
	}
	return nil
}

func seedStartupDatastores(store *datastore.Facade) error {
	for _, name := range []datastore.Name{datastore.Candidate, datastore.Running, datastore.Startup} {
		if !store.Exists(name) {
			store.Create(name)
		}
	}
	return nil
}

func authorizerFor(cfg *Config) (*nacm.Authorizer, error) {
	if cfg.NacmMode == "external" && cfg.NacmFile != "" {
		return nacm.NewExternal(cfg.NacmFile)
	}
	return nacm.NewInternal(nacm.Policy{Enabled: true, Defaults: nacm.DefaultDefaults}), nil
}

// sshServerConfig builds a throwaway development host key and credential
// set; a production deployment overrides this with PublicKeyConfig and a
// persistent host key loaded from disk.
func sshServerConfig() (*xssh.ServerConfig, error) {
	return ssh.PasswordConfig("admin", "admin")
}

// unmappedOIDResolver is the default PathResolver until a deployment
// supplies the OID-to-YANG table mapping its loaded MIB modules describe;
// it resolves nothing, so every applied binding is counted as skipped
// rather than panicking on a nil resolver.
func unmappedOIDResolver(oid asn1.ObjectIdentifier) (path string, indexLeaves map[string]string, ok bool) {
	return "", nil, false
}

func writePidFile(cfg *Config) error {
	if cfg.PidFile == "" {
		return nil
	}
	return os.WriteFile(cfg.PidFile, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// stalePidFileHolder reports whether PidFile names a pid that is still
// alive, so a stale pidfile left by a crashed daemon is never mistaken
// for one still running. Sending signal 0 checks liveness and permission
// without affecting the target process.
func stalePidFileHolder(pidFile string) (running bool, pid int) {
	if pidFile == "" {
		return false, 0
	}
	data, err := os.ReadFile(pidFile)
	if err != nil {
		return false, 0
	}
	pid, err = strconv.Atoi(string(bytes.TrimSpace(data)))
	if err != nil {
		return false, 0
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false, pid
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return false, pid
	}
	return true, pid
}

// killRunning implements -z: it signals the process named by the
// configured pidfile to terminate, removes the pidfile, and returns,
// letting main exit without starting a second daemon instance.
func killRunning(cfg *Config) error {
	running, pid := stalePidFileHolder(cfg.PidFile)
	if !running {
		os.Remove(cfg.PidFile)
		return nil
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return errors.Wrap(err, "ncbackend: signal running daemon")
	}
	return os.Remove(cfg.PidFile)
}

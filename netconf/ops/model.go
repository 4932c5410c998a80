package ops

const (
	// Configuration datastore names.
	RunningCfg   = "running"
	CandidateCfg = "candidate"
	StartupCfg   = "startup"

	// Edit-config error options.
	StopOnErrorErrOpt     = "stop-on-error"
	ContinueOnErrorErrOpt = "continue-on-error"
	RollbackOnErrorErrOpt = "rollback-on-error"

	// Edit-config operation types.
	MergeOp   = "merge"
	ReplaceOp = "replace"
	NoneOp    = "none"

	// Edit-config test options.
	TestThenSetOpt = "test-then-set"
	SetOpt         = "set"
	TestOnlyOpt    = "test-only"
)

package protocol

// Defaults are the request fields Builder fills in when a call leaves
// them unset.
type Defaults struct {
	SecurityLevel string
	OutputFormat  string
	Env           map[string]string
	WorkingDir    string
}

// StandardDefaults returns the defaults the test tools assume: Standard
// security, plain output, one deterministic environment variable to
// assert against, and a scratch working directory.
func StandardDefaults() Defaults {
	return Defaults{
		SecurityLevel: string(SecurityStandard),
		OutputFormat:  string(FormatPlain),
		Env:           map[string]string{"TEST_VAR": "test_value_123"},
		WorkingDir:    "/tmp",
	}
}

// Options carries the per-call request fields. Empty strings mean "use
// the builder default"; a nil SessionID requests no session affinity.
type Options struct {
	SecurityLevel string
	OutputFormat  string
	SessionID     *string
	Env           map[string]string
	WorkingDir    string
}

// Builder turns script bodies into well-formed requests.
type Builder struct {
	defaults Defaults
}

// NewBuilder creates a Builder. Unset default fields fall back to the
// standard defaults so a zero Defaults value still yields valid
// requests.
func NewBuilder(defaults Defaults) *Builder {
	standard := StandardDefaults()
	if defaults.SecurityLevel == "" {
		defaults.SecurityLevel = standard.SecurityLevel
	}
	if defaults.OutputFormat == "" {
		defaults.OutputFormat = standard.OutputFormat
	}
	if defaults.Env == nil {
		defaults.Env = standard.Env
	}
	if defaults.WorkingDir == "" {
		defaults.WorkingDir = standard.WorkingDir
	}
	return &Builder{defaults: defaults}
}

// Build validates opts against the values the service accepts and fills
// unset fields from the builder defaults. Pure; no I/O.
func (b *Builder) Build(script string, opts Options) (Request, error) {
	if script == "" {
		return Request{}, &InvalidConfigError{Field: "script", Value: script}
	}

	levelName := opts.SecurityLevel
	if levelName == "" {
		levelName = b.defaults.SecurityLevel
	}
	level, err := ParseSecurityLevel(levelName)
	if err != nil {
		return Request{}, err
	}

	formatName := opts.OutputFormat
	if formatName == "" {
		formatName = b.defaults.OutputFormat
	}
	format, err := ParseOutputFormat(formatName)
	if err != nil {
		return Request{}, err
	}

	workingDir := opts.WorkingDir
	if workingDir == "" {
		workingDir = b.defaults.WorkingDir
	}

	return Request{
		Script:        script,
		SecurityLevel: level,
		OutputFormat:  format,
		SessionID:     opts.SessionID,
		Env:           mergeEnv(b.defaults.Env, opts.Env),
		WorkingDir:    workingDir,
	}, nil
}

// mergeEnv copies the default mapping and lays caller entries over it.
// Caller values win on key collisions.
func mergeEnv(defaults, overrides map[string]string) map[string]string {
	merged := make(map[string]string, len(defaults)+len(overrides))
	for key, value := range defaults {
		merged[key] = value
	}
	for key, value := range overrides {
		merged[key] = value
	}
	return merged
}

package config

const (
	defaultConfigPath          = "~/.config/guernika/config.toml"
	defaultPreferencesFile     = "~/.config/guernika/preferences.toml"
	defaultLogDir              = "~/.local/share/guernika/logs"
	defaultHistoryDB           = "~/.local/share/guernika/history.db"
	defaultLockFile            = "~/.local/share/guernika/convert.lock"
	defaultPythonBinary        = "python3"
	defaultConverterModule     = "python_coreml_stable_diffusion.torch2coreml"
	defaultCompanionAppPath    = "/Applications/Guernika.app"
	defaultCompanionAppURL     = "https://apps.apple.com/app/id1660407508"
	defaultToolchainBinary     = "xcrun"
	defaultCompilerSubcommand  = "coremlcompiler"
	defaultProbeTimeoutSeconds = 30
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			PreferencesFile: defaultPreferencesFile,
			LogDir:          defaultLogDir,
			HistoryDB:       defaultHistoryDB,
			LockFile:        defaultLockFile,
		},
		Converter: Converter{
			PythonBinary: defaultPythonBinary,
			Module:       defaultConverterModule,
		},
		Capabilities: Capabilities{
			CompanionAppPath:    defaultCompanionAppPath,
			CompanionAppURL:     defaultCompanionAppURL,
			ToolchainBinary:     defaultToolchainBinary,
			CompilerSubcommand:  defaultCompilerSubcommand,
			ProbeTimeoutSeconds: defaultProbeTimeoutSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

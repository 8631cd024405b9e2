package config

// Default is the process wide manager every commune.* option registers on.
// CoreInit adds the env and redis sources to it and loads it once.
var Default = NewConfigManager()

func AddSource(source ConfigSource) {
	Default.AddSource(source)
}

func RegisterOption(name, desc string, defaultValue interface{}) *ConfigOption {
	return Default.RegisterOption(name, desc, defaultValue)
}

func Load() {
	Default.Load()
}

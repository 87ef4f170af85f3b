package logger

// ComponentLevels is implemented by the logging section of the configuration.
// It is an interface to keep this package free of config imports.
type ComponentLevels interface {
	GetComponentLevel(component string) string
	IsDevelopment() bool
}

// NewComponentLoggerFromConfig builds a logger for a component, honoring the
// per-component level overrides from the logging configuration. A nil config
// falls back to the process default logger.
func NewComponentLoggerFromConfig(component string, cfg ComponentLevels) *Logger {
	if cfg == nil {
		return GetDefaultLogger().WithComponent(component)
	}

	l, err := NewLogger(cfg.GetComponentLevel(component), cfg.IsDevelopment())
	if err != nil {
		// Invalid levels are caught by config validation; this is a safety net.
		return GetDefaultLogger().WithComponent(component)
	}

	return l.WithComponent(component)
}

package driven

// ConfigStore provides persistent key-value configuration.
type ConfigStore interface {
	// Get retrieves a configuration value by key.
	Get(key string) (any, bool)

	// Set stores a configuration value.
	Set(key string, value any) error

	// GetString retrieves a string value, with a default.
	GetString(key, defaultValue string) string

	// GetInt retrieves an integer value, with a default.
	GetInt(key string, defaultValue int) int

	// GetFloat retrieves a float value, with a default.
	GetFloat(key string, defaultValue float64) float64
}

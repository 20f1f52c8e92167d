package config

const (
	DefaultServerURL       = "http://localhost:9100"
	DefaultServerTimeoutMS = 30000

	DefaultStorageBaseDir = "~/.agi"
	DefaultLogMaxMB       = 20

	DefaultTheme = "dark"
)

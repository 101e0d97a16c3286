package cfg

type Cfg struct {
	// Database configuration
	DBPath string

	// Application configuration
	Port         string
	WorkerCount  int
	TickInterval int
	RunTimeout   int
	APIAccessKey string
	JobsFile     string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}

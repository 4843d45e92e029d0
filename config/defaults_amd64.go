package config

var (
	archReadableFiles = []string{
		"/lib/x86_64-linux-gnu/",
		"/usr/lib/x86_64-linux-gnu/",
	}

	archSafeSyscalls = []string{
		"dup2",
		"time",
		"arch_prctl",
	}
)

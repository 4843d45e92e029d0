//go:build !amd64

package config

var (
	archReadableFiles = []string{}

	archSafeSyscalls = []string{}
)

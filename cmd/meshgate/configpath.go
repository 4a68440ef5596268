package main

import (
	"os"
	"path/filepath"
)

// resolveConfigPath returns --config when set, otherwise the first existing
// default location.
func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}
	return findConfigInWithHome(wd, home)
}

// findConfigIn looks for the config file in dir only.
func findConfigIn(dir string) string {
	return findConfigInWithHome(dir, "")
}

// findConfigInWithHome checks dir, then ~/.config/meshgate. When neither has
// the file the bare default name is returned so the load error names it.
func findConfigInWithHome(dir, home string) string {
	p := filepath.Join(dir, defaultConfigFile)
	if _, err := os.Stat(p); err == nil {
		return p
	}
	if home != "" {
		p = filepath.Join(home, ".config", appName, defaultConfigFile)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return defaultConfigFile
}

// Package main is the entry point for meshgate.
package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"
)

const (
	defaultConfigFile = "meshgate.yaml"
	appName           = "meshgate"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "API gateway for the healthcare service mesh",
	Long: `meshgate fronts the healthcare microservices (lab, medication, billing and
friends) with versioned routing, response envelopes, field stripping, circuit
breakers and a health-checked service registry.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file path (default: ./"+defaultConfigFile+" or ~/.config/"+appName+"/"+defaultConfigFile+")")
}

func main() {
	if err := fang.Execute(context.Background(), rootCmd); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
)

const VERSION = "1.0.0"

const usageText = `factory - static service scanner and server generator

Usage:
  factory scan <root> -profile <name> [flags]
  factory generate <profile> [flags]
  factory merge -name <merged> -sources <profile,profile,...> [flags]
  factory tools <profile> [flags]

Run 'factory <command> -h' for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(2)
	}

	switch os.Args[1] {
	case "scan":
		os.Exit(runScan(os.Args[2:]))
	case "generate":
		os.Exit(runGenerate(os.Args[2:]))
	case "merge":
		os.Exit(runMerge(os.Args[2:]))
	case "tools":
		os.Exit(runTools(os.Args[2:]))
	case "version", "-version", "--version":
		fmt.Printf("factory v%s\n", VERSION)
	case "-h", "-help", "--help", "help":
		fmt.Print(usageText)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usageText)
		os.Exit(2)
	}
}

// commonFlags registers the flags every subcommand shares.
func commonFlags(fs *flag.FlagSet) (configPath *string, verbose *bool) {
	configPath = fs.String("config", "./factory.toml", "Path to config file")
	verbose = fs.Bool("verbose", false, "Enable verbose logging")
	return configPath, verbose
}

func setupLogging(verbose bool) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)
}

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/veridianhq/facelive/pkg/config"
	"github.com/veridianhq/facelive/pkg/logging"
)

const version = "0.1.0"

// Command represents a CLI command.
type Command struct {
	Name        string
	Description string
	Usage       string
	Run         func(args []string) error
}

var (
	cfg      *config.Config
	commands map[string]*Command
)

func init() {
	commands = map[string]*Command{
		"run": {
			Name:        "run",
			Description: "Run a liveness session over a captured frame sequence",
			Usage:       "facelive run <frames-dir> [motion-samples.json]",
			Run:         cmdRun,
		},
		"reports": {
			Name:        "reports",
			Description: "List stored liveness verdict reports",
			Usage:       "facelive reports",
			Run:         cmdReports,
		},
		"show": {
			Name:        "show",
			Description: "Show a stored verdict report",
			Usage:       "facelive show <session-id>",
			Run:         cmdShow,
		},
		"download-models": {
			Name:        "download-models",
			Description: "Download dlib face detection models",
			Usage:       "facelive download-models [dir]",
			Run:         cmdDownloadModels,
		},
		"config": {
			Name:        "config",
			Description: "Show current configuration",
			Usage:       "facelive config",
			Run:         cmdConfig,
		},
		"version": {
			Name:        "version",
			Description: "Show version information",
			Usage:       "facelive version",
			Run:         cmdVersion,
		},
		"help": {
			Name:        "help",
			Description: "Show help information",
			Usage:       "facelive help [command]",
			Run:         cmdHelp,
		},
	}
}

func main() {
	configFile := flag.String("config", "", "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	args := flag.Args()

	var err error
	if *configFile != "" {
		cfg, err = config.Load(*configFile)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not load config: %v\n", err)
		cfg = config.DefaultConfig()
	}

	cfg.ExpandPaths()

	logLevel := cfg.Logging.Level
	if *debug {
		logLevel = "debug"
	}
	if err := logging.Init(logLevel, cfg.Logging.File); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not initialize file logging: %v\n", err)
	}

	logging.Debugf("FaceLive v%s starting", version)

	if len(args) < 1 {
		printUsage()
		os.Exit(0)
	}

	cmdName := args[0]
	cmd, ok := commands[cmdName]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmdName)
		printUsage()
		os.Exit(1)
	}

	if err := cmd.Run(args[1:]); err != nil {
		logging.WithError(err).Errorf("Command '%s' failed", cmdName)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("FaceLive - Liveness Verification with Motion Correlation")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Usage: facelive [options] <command> [arguments]")
	fmt.Println("\nOptions:")
	fmt.Println("  -config <file>   Path to configuration file")
	fmt.Println("  -debug           Enable debug logging")
	fmt.Println("\nCommands:")
	for _, name := range []string{"run", "reports", "show", "download-models", "config", "version", "help"} {
		cmd := commands[name]
		fmt.Printf("  %-16s %s\n", cmd.Name, cmd.Description)
	}
	fmt.Println("\nExamples:")
	fmt.Println("  facelive run ./capture motion.json    # Verify a captured session")
	fmt.Println("  facelive reports                      # List stored verdicts")
	fmt.Println("\nRun 'facelive help <command>' for more information on a command.")
}

func cmdConfig(args []string) error {
	fmt.Println("Current configuration:")
	fmt.Printf("  Camera device:         %s (%dx%d @ %d fps)\n",
		cfg.Camera.Device, cfg.Camera.Width, cfg.Camera.Height, cfg.Camera.FPS)
	fmt.Printf("  Model path:            %s\n", cfg.Detection.ModelPath)
	fmt.Printf("  Session max duration:  %ds\n", cfg.Session.MaxDuration)
	fmt.Printf("  Challenges:            %d of %v\n", cfg.Session.ChallengeCount, cfg.Session.ChallengeSet)
	fmt.Printf("  Correlation threshold: %.2f\n", cfg.Motion.CorrelationThreshold)
	fmt.Printf("  Reports dir:           %s (encrypted: %v)\n",
		cfg.Reports.DataDir, cfg.Reports.EncryptionEnabled)
	fmt.Printf("  Log level:             %s\n", cfg.Logging.Level)
	return cfg.Validate()
}

func cmdVersion(args []string) error {
	fmt.Printf("facelive version %s\n", version)
	return nil
}

func cmdHelp(args []string) error {
	if len(args) > 0 {
		if cmd, ok := commands[args[0]]; ok {
			fmt.Printf("%s - %s\n\nUsage: %s\n", cmd.Name, cmd.Description, cmd.Usage)
			return nil
		}
		return fmt.Errorf("unknown command: %s", args[0])
	}
	printUsage()
	return nil
}

package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Commands understood by the CLI
var commands = []string{"compare", "batch", "serve", "history"}

// ParseArguments converts command-line arguments (without the program name)
// into a map of flags and values. The command, if any, is stored under "command".
func ParseArguments(argv []string) map[string]string {
	args := make(map[string]string)

	// First, identify the command
	commandIndex := -1
	for i, arg := range argv {
		if isCommand(arg) {
			args["command"] = arg
			commandIndex = i
			break
		}
	}

	// Process all arguments, skipping the command
	for i := 0; i < len(argv); i++ {
		if i == commandIndex {
			continue
		}

		arg := argv[i]

		// Handle flags with equals sign (--key=value)
		if strings.HasPrefix(arg, "--") && strings.Contains(arg, "=") {
			parts := strings.SplitN(arg, "=", 2)
			flagName := strings.TrimPrefix(parts[0], "--")
			args[flagName] = parts[1]
			continue
		}

		// Handle flags without equals sign (--key value)
		if strings.HasPrefix(arg, "--") {
			flagName := strings.TrimPrefix(arg, "--")

			// Check if this is a boolean flag (no value)
			if i+1 >= len(argv) || strings.HasPrefix(argv[i+1], "--") || i+1 == commandIndex {
				args[flagName] = "true"
			} else {
				// The next argument is the value
				args[flagName] = argv[i+1]
				i++ // Skip the value in the next iteration
			}
		}
	}

	return args
}

func isCommand(arg string) bool {
	for _, c := range commands {
		if arg == c {
			return true
		}
	}
	return false
}

// GetDefaultDatabasePath returns the default path for the database file
func GetDefaultDatabasePath() string {
	// Get the executable path
	exePath, err := os.Executable()
	if err != nil {
		// Fallback to current directory if executable path can't be determined
		return "comparisons.db"
	}

	// Return the default database path in the same directory
	return filepath.Join(filepath.Dir(exePath), "comparisons.db")
}

// PrintUsage outputs the command-line usage instructions
func PrintUsage() {
	prog := filepath.Base(os.Args[0])
	fmt.Printf("Usage:\n")
	fmt.Printf("  %s compare --original=PATH --uploaded=PATH [--output=DIR] [--width=N] [--height=N] [--database=PATH] [--config=PATH] [--debug] [--logfile=PATH]\n", prog)
	fmt.Printf("  %s batch --folder=PATH --original=PATH [--output=DIR] [--workers=N] [--database=PATH] [--config=PATH] [--debug]\n", prog)
	fmt.Printf("  %s serve [--config=PATH] [--debug] [--logfile=PATH]\n", prog)
	fmt.Printf("  %s history [--database=PATH] [--limit=N] [--config=PATH]\n", prog)
	fmt.Printf("\nParameters:\n")
	fmt.Printf("  --original    : Path to the reference card image\n")
	fmt.Printf("  --uploaded    : Path to the card image to check\n")
	fmt.Printf("  --folder      : Folder of card images to compare against --original\n")
	fmt.Printf("  --workers     : Parallel comparisons for batch (default: 3/4 of CPUs)\n")
	fmt.Printf("  --output      : Directory for the four result images (default: generated/<id>)\n")
	fmt.Printf("  --width       : Canonical width both images are resized to (default: 250)\n")
	fmt.Printf("  --height      : Canonical height both images are resized to (default: 160)\n")
	fmt.Printf("  --database    : Path to comparison history database (default: %s)\n", GetDefaultDatabasePath())
	fmt.Printf("  --limit       : Number of history entries to show (default: 20)\n")
	fmt.Printf("  --config      : TOML configuration file\n")
	fmt.Printf("  --debug       : Enable debug mode (logs detailed information)\n")
	fmt.Printf("  --logfile     : Specify custom log file path (default: cardcheck.log)\n")
	fmt.Printf("\nExamples:\n")
	fmt.Printf("  %s compare --original=sample_data/image/original.png --uploaded=/tmp/card.jpg --debug\n", prog)
	fmt.Printf("  %s batch --folder=/data/uploads --original=sample_data/image/original.png\n", prog)
	fmt.Printf("  %s serve --config=cardcheck.toml\n", prog)
	fmt.Printf("  %s history --limit=5\n", prog)
}

// ParsePositiveInt parses a strictly positive integer flag value
func ParsePositiveInt(name, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s value '%s', must be a positive integer", name, value)
	}
	return n, nil
}

// ParseLimit parses the history limit, falling back to def on bad input
func ParseLimit(value string, def int) (int, error) {
	if value == "" {
		return def, nil
	}
	n, err := ParsePositiveInt("limit", value)
	if err != nil {
		return def, fmt.Errorf("%v, using default (%d)", err, def)
	}
	return n, nil
}

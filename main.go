package main

import (
	"flag"
	"fmt"
	"os"

	"pylon/internal/config"
	"pylon/internal/server"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

// Version will be set during the build process using ldflags
var Version = "(dev) v0.0.0"

func main() {
	versionFlag := flag.Bool("version", false, "Print the version of the program")
	logfileFlag := flag.String("logfile", "", "Path to log file")
	verboseFlag := flag.Int("verbose", 0, "Log verbosity (0 errors only, 1 info, 2 debug)")
	configFlag := flag.String("config", "", "Path to a TOML config file")
	tokensFlag := flag.String("tokens", "", "Print the semantic tokens of a Python file and exit")
	flag.Parse()

	// Version tag
	if *versionFlag {
		fmt.Printf("pylon LSP server version %s\n", Version)
		return
	}

	// Logging; glsp logs through commonlog as well.
	var logfile *string
	if *logfileFlag != "" {
		logfile = logfileFlag
	}
	commonlog.Configure(*verboseFlag, logfile)
	log := commonlog.GetLogger("pylon")

	cfg := config.Default()
	if *configFlag != "" {
		var err error
		if cfg, err = config.LoadFile(*configFlag); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	if *tokensFlag != "" {
		if err := runTokens(cfg, *tokensFlag); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	log.Infof("starting pylon %s", Version)
	server.Version = Version
	s := server.NewServer(cfg)
	if err := s.RunStdio(); err != nil {
		log.Errorf("server error: %v", err)
		os.Exit(1)
	}
}

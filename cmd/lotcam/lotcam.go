package main

import (
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/akamensky/argparse"
	"github.com/coreos/go-systemd/daemon"
	"github.com/cyclopcam/logs"
	"github.com/joho/godotenv"
	"github.com/lotcam/lotcam/server"
	"github.com/lotcam/lotcam/server/configdb"
)

func check(err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	// This is purely for documentation of the cmd-line args
	nominalDefaultDB := "$HOME/lotcam/config.sqlite"

	// A .env file is convenient during development, eg for LOTCAM_ADMIN_PASSWORD
	godotenv.Load()

	parser := argparse.NewParser("lotcam", "Parking lot occupancy monitor")
	configFile := parser.String("c", "config", &argparse.Options{Help: "Configuration database file", Default: nominalDefaultDB})
	sourceURL := parser.String("s", "source", &argparse.Options{Help: "Frame source: dir://path, mjpeg://host/stream, or synth://WxH", Default: "synth://"})
	referenceFile := parser.String("r", "ref", &argparse.Options{Help: "JPEG of the empty lot, for the heuristic detector", Default: ""})
	detector := parser.String("", "detector", &argparse.Options{Help: "Occupancy detector: 'heuristic' or 'objects'", Default: ""})
	nnServiceURL := parser.String("", "nn", &argparse.Options{Help: "Object detection service URL, for the 'objects' detector", Default: ""})
	port := parser.Int("p", "port", &argparse.Options{Help: "HTTP listen port", Default: 8080})
	ownIPStr := parser.String("", "ip", &argparse.Options{Help: "IP address of this machine (printed in the startup banner)", Default: ""}) // eg for dev time, when the server runs inside a NAT'ed VM such as WSL.
	fps := parser.Int("", "fps", &argparse.Options{Help: "Analysis frame rate (0 = default)", Default: 0})
	entrance := parser.String("", "entrance", &argparse.Options{Help: "Entrance point 'x,y' in frame pixels, for ranking open zones", Default: ""})
	zonesFile := parser.String("z", "zones", &argparse.Options{Help: "Zone definition JSON file, imported on first run", Default: ""})
	username := parser.String("", "username", &argparse.Options{Help: "With --password: reset (or create) this user's password, then exit", Default: ""})
	password := parser.String("", "password", &argparse.Options{Help: "New password for --username", Default: ""})
	noAnnotate := parser.Flag("", "no-annotate", &argparse.Options{Help: "Disable the annotated video feed", Default: false})
	hotReloadWWW := parser.Flag("", "hot", &argparse.Options{Help: "Hot reload www instead of embedding into binary", Default: false})
	verbose := parser.Flag("", "vv", &argparse.Options{Help: "Verbose logging", Default: false})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	home, _ := os.UserHomeDir()
	if home == "" {
		// Some kind of system account. It's usual for this to be overridden
		// with the --config option, so this default is not very important.
		home = "/var/lib"
	}
	actualDefaultConfigDB := filepath.Join(home, "lotcam", "config.sqlite")
	if *configFile == nominalDefaultDB {
		*configFile = actualDefaultConfigDB
	}

	var ownIP net.IP
	if *ownIPStr != "" {
		ownIP = net.ParseIP(*ownIPStr)
		if ownIP == nil {
			logger.Errorf("Invalid IP address: %v", *ownIPStr)
			os.Exit(1)
		}
	}

	// Load/create the configuration database
	configDB, err := configdb.NewConfigDB(logger, *configFile)
	if err != nil {
		logger.Errorf("Failed to open config database: %v", err)
		os.Exit(1)
	}

	if *username != "" {
		// Password recovery mode. Useful when you've locked yourself out.
		if err := configDB.SetUserPassword(*username, *password); err != nil {
			logger.Errorf("Failed to set password of '%v': %v", *username, err)
			os.Exit(1)
		}
		logger.Infof("Password of user '%v' set", *username)
		return
	}

	options := &server.Options{
		Source:            *sourceURL,
		HistoryFile:       filepath.Join(filepath.Dir(*configFile), "history.sqlite"),
		ReferenceFile:     *referenceFile,
		Detector:          *detector,
		NNServiceURL:      *nnServiceURL,
		ZonesFile:         *zonesFile,
		Entrance:          *entrance,
		FPS:               *fps,
		DisableAnnotation: *noAnnotate,
		Verbose:           *verbose,
	}

	// Run in a continuous loop, so that the server can restart itself
	// due to major configuration changes.
	for {
		flags := 0
		if *hotReloadWWW {
			flags |= server.ServerFlagHotReloadWWW
		}
		srv, err := server.NewServer(logger, configDB, flags, options)
		if err != nil {
			logger.Errorf("%v", err)
			os.Exit(1)
		}
		if ownIP != nil {
			srv.OwnIP = ownIP
		}
		srv.ListenForKillSignals()

		// Tell systemd that we're alive.
		daemon.SdNotify(false, daemon.SdNotifyReady)

		// SYNC-SERVER-PORT
		err = srv.ListenHTTP(fmt.Sprintf(":%v", *port))
		if err != nil {
			logger.Infof("ListenHTTP returned: %v", err)
			if !srv.MustRestart {
				break
			}
		}

		err = <-srv.ShutdownComplete
		if !srv.MustRestart {
			break
		}
	}
}

// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	flags "github.com/jessevdk/go-flags"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/zcoldwallet/zcoldwallet/internal/cfgutil"
	"github.com/zcoldwallet/zcoldwallet/pkg/unit"
	"github.com/zcoldwallet/zcoldwallet/shielded"
	"github.com/zcoldwallet/zcoldwallet/wallet"
	"github.com/zcoldwallet/zcoldwallet/walletdb"
)

const (
	defaultConfigFilename = "zcoldwallet.conf"
	defaultLogLevel       = "info"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "zcoldwallet.log"
	defaultCoinSelect     = "largest"

	walletDbName = "zcoldwallet.sqlite"

	// birthdayLayout is the format of --birthday.
	birthdayLayout = "2006-01-02"
)

var (
	zcoldwalletHomeDir = btcutil.AppDataDir("zcoldwallet", false)
	defaultConfigFile  = filepath.Join(zcoldwalletHomeDir, defaultConfigFilename)
	defaultDataDir     = zcoldwalletHomeDir
	defaultLogDir      = filepath.Join(zcoldwalletHomeDir, defaultLogDirname)
)

type config struct {
	// General application behavior
	ConfigFile  *cfgutil.ExplicitString `short:"C" long:"configfile" description:"Path to configuration file"`
	ShowVersion bool                    `short:"V" long:"version" description:"Display version information and exit"`
	DataDir     string                  `short:"b" long:"datadir" description:"Directory to store the block cache and note index"`
	TestNet     bool                    `long:"testnet" description:"Use the test network (default mainnet)"`
	SimNet      bool                    `long:"simnet" description:"Use the simulation test network (default mainnet)"`
	DebugLevel  string                  `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`
	LogDir      string                  `long:"logdir" description:"Directory to log output."`

	// Chain options
	Lightnode   *cfgutil.ExplicitString `long:"lightnode" description:"URL of the lightwalletd server to sync from and submit to (default depends on the network)"`
	ReorgMargin uint32                  `long:"reorgmargin" description:"Number of blocks below the chain tip that are not synced"`
	MaxBlocks   uint32                  `long:"maxblocks" description:"Maximum number of blocks fetched by one sync"`

	// Database options
	DBDriver string `long:"dbdriver" description:"Database driver" choice:"sqlite" choice:"postgres"`
	DBDSN    string `long:"dbdsn" description:"Data source name of the database (default: zcoldwallet.sqlite in the network data directory)"`

	// Wallet options
	Unit       unit.Unit           `long:"unit" description:"Unit amounts are entered and displayed in {Zat, MilliZec, Zec}"`
	Fee        *cfgutil.AmountFlag `long:"fee" description:"Fee of every transaction in ZEC"`
	CoinSelect string              `long:"coinselect" description:"Order notes are selected in" choice:"largest" choice:"oldest"`
	ParamsDir  string              `long:"paramsdir" description:"Directory holding the sapling proving parameters"`
	KeyFile    string              `long:"keyfile" description:"Read the spending key from this file instead of prompting for it"`

	// Command options
	Birthday string  `long:"birthday" description:"init-account: seed the account at the first block of this date (YYYY-MM-DD)"`
	Height   *uint32 `long:"height" description:"init-account: seed the account at this height"`
	Start    *uint32 `long:"start" description:"sync: fetch blocks from this height instead of resuming"`
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(zcoldwalletHomeDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows cmd.exe-style
	// %VARIABLE%, but they variables can still be expanded via POSIX-style
	// $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}

// validLogLevel returns whether or not logLevel is a valid debug log level.
func validLogLevel(logLevel string) bool {
	switch logLevel {
	case "trace":
		fallthrough
	case "debug":
		fallthrough
	case "info":
		fallthrough
	case "warn":
		fallthrough
	case "error":
		fallthrough
	case "critical":
		return true
	}
	return false
}

// supportedSubsystems returns a sorted slice of the supported subsystems for
// logging purposes.
func supportedSubsystems() []string {
	// Convert the subsystemLoggers map keys to a slice.
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsysID := range subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}

	// Sort the subsytems for stable display.
	sort.Strings(subsystems)
	return subsystems
}

// parseAndSetDebugLevels attempts to parse the specified debug level and set
// the levels accordingly.  An appropriate error is returned if anything is
// invalid.
func parseAndSetDebugLevels(debugLevel string) error {
	// When the specified string doesn't have any delimters, treat it as
	// the log level for all subsystems.
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		// Validate debug log level.
		if !validLogLevel(debugLevel) {
			str := "the specified debug level [%v] is invalid"
			return fmt.Errorf(str, debugLevel)
		}

		// Change the logging level for all subsystems.
		setLogLevels(debugLevel)

		return nil
	}

	// Split the specified string into subsystem/level pairs while detecting
	// issues and update the log levels accordingly.
	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		if !strings.Contains(logLevelPair, "=") {
			str := "the specified debug level contains an invalid " +
				"subsystem/level pair [%v]"
			return fmt.Errorf(str, logLevelPair)
		}

		// Extract the specified subsystem and log level.
		fields := strings.Split(logLevelPair, "=")
		subsysID, logLevel := fields[0], fields[1]

		// Validate subsystem.
		if _, exists := subsystemLoggers[subsysID]; !exists {
			str := "the specified subsystem [%v] is invalid -- " +
				"supported subsytems %v"
			return fmt.Errorf(str, subsysID, supportedSubsystems())
		}

		// Validate log level.
		if !validLogLevel(logLevel) {
			str := "the specified debug level [%v] is invalid"
			return fmt.Errorf(str, logLevel)
		}

		setLogLevel(subsysID, logLevel)
	}

	return nil
}

// defaultConfig returns a config with sane settings.
func defaultConfig() config {
	return config{
		ConfigFile:  cfgutil.NewExplicitString(defaultConfigFile),
		DebugLevel:  defaultLogLevel,
		DataDir:     defaultDataDir,
		LogDir:      defaultLogDir,
		Lightnode:   cfgutil.NewExplicitString(""),
		ReorgMargin: wallet.DefaultReorgMargin,
		MaxBlocks:   wallet.DefaultMaxBlocks,
		DBDriver:    walletdb.DriverSQLite,
		Unit:        unit.Zec,
		Fee:         cfgutil.NewAmountFlag(shielded.DefaultFee),
		CoinSelect:  defaultCoinSelect,
		ParamsDir:   shielded.DefaultParamsDir(),
	}
}

// loadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// The above results in zcoldwallet functioning properly without any config
// settings while still allowing the user to override settings with config files
// and command line options.  Command line options always take precedence.
// The remaining arguments name the command and its arguments.
func loadConfig(args []string) (*config, []string, error) {
	cfg := defaultConfig()

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.
	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.HelpFlag|flags.PassDoubleDash)
	_, err := preParser.ParseArgs(args)
	if err != nil {
		var e *flags.Error
		if errors.As(err, &e) && e.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, err)
			printCommands(os.Stdout)
			os.Exit(0)
		}
		preParser.WriteHelp(os.Stderr)
		return nil, nil, err
	}

	// Show the version and exit if the version flag was specified.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	if preCfg.ShowVersion {
		fmt.Println(appName, "version", version())
		os.Exit(0)
	}

	// Load additional config from file. A missing default config file is
	// not an error.
	var configFileError error
	parser := flags.NewParser(&cfg, flags.HelpFlag|flags.PassDoubleDash)
	configFile := cleanAndExpandPath(preCfg.ConfigFile.Value)
	err = flags.NewIniParser(parser).ParseFile(configFile)
	if err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) || preCfg.ConfigFile.ExplicitlySet() {
			fmt.Fprintln(os.Stderr, err)
			return nil, nil, err
		}
		configFileError = err
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.ParseArgs(args)
	if err != nil {
		parser.WriteHelp(os.Stderr)
		return nil, nil, err
	}

	// Choose the active network params based on the selected network.
	// Multiple networks can't be selected simultaneously.
	numNets := 0
	if cfg.TestNet {
		activeNet = &testNetParams
		numNets++
	}
	if cfg.SimNet {
		activeNet = &simNetParams
		numNets++
	}
	if numNets > 1 {
		return nil, nil, errors.New("the testnet and simnet params " +
			"can't be used together -- choose one")
	}

	// Append the network type to the log directory so it is "namespaced"
	// per network.
	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)
	cfg.LogDir = filepath.Join(cfg.LogDir, activeNet.Name)
	cfg.ParamsDir = cleanAndExpandPath(cfg.ParamsDir)

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", supportedSubsystems())
		os.Exit(0)
	}

	// Initialize log rotation. After log rotation has been initialized,
	// the logger variables may be used.
	err = initLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename))
	if err != nil {
		return nil, nil, err
	}
	setLogLevels(defaultLogLevel)

	// Parse, validate, and set debug log level(s).
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		return nil, nil, err
	}

	// Warn about missing config file after the final command line parse
	// succeeds.  This prevents the warning on help messages and invalid
	// options.
	if configFileError != nil {
		log.Debugf("%v", configFileError)
	}

	if cfg.ReorgMargin == 0 {
		return nil, nil, wallet.ErrZeroReorgMargin
	}
	if cfg.Height != nil && cfg.Birthday != "" {
		return nil, nil, errors.New("--height and --birthday can't " +
			"be used together -- choose one")
	}
	if cfg.Birthday != "" {
		if _, err := cfg.birthday().Unpack(); err != nil {
			return nil, nil, err
		}
	}

	if !cfg.Lightnode.ExplicitlySet() {
		cfg.Lightnode.Value = activeNet.DefaultLightnodeURL
	}
	cfg.Lightnode.Value, err = cfgutil.NormalizeURL(cfg.Lightnode.Value,
		activeNet.lightnodePort)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid lightnode address: %w",
			err)
	}

	if cfg.DBDriver == walletdb.DriverPostgres && cfg.DBDSN == "" {
		return nil, nil, errors.New("the postgres driver needs --dbdsn")
	}
	if cfg.DBDSN == "" {
		cfg.DBDSN = filepath.Join(networkDir(cfg.DataDir, activeNet),
			walletDbName)
	}

	return &cfg, remainingArgs, nil
}

// networkDir returns the directory name of a network directory to hold
// the note index.
func networkDir(dataDir string, net *params) string {
	return filepath.Join(dataDir, net.Name)
}

// birthday parses --birthday as a UTC date.
func (c *config) birthday() fn.Result[fn.Option[time.Time]] {
	if c.Birthday == "" {
		return fn.Ok(fn.None[time.Time]())
	}
	t, err := time.ParseInLocation(birthdayLayout, c.Birthday, time.UTC)
	if err != nil {
		return fn.Err[fn.Option[time.Time]](
			fmt.Errorf("invalid birthday %q: %w", c.Birthday, err),
		)
	}
	return fn.Ok(fn.Some(t))
}

// walletConfig returns the engine configuration.
func (c *config) walletConfig() *wallet.Config {
	wcfg := wallet.DefaultConfig(activeNet.Params)
	wcfg.Unit = c.Unit
	wcfg.Fee = c.Fee.Amount
	wcfg.ReorgMargin = c.ReorgMargin
	wcfg.MaxBlocks = c.MaxBlocks
	wcfg.ParamsDir = c.ParamsDir
	if c.CoinSelect == "oldest" {
		wcfg.CoinSelection = walletdb.SelectOldest
	}
	return wcfg
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/camden-git/photodb/config"
	"github.com/camden-git/photodb/database"
	"github.com/camden-git/photodb/geocode"
	"github.com/camden-git/photodb/journal"
	"github.com/camden-git/photodb/logging"
	"github.com/camden-git/photodb/repository"
	"github.com/camden-git/photodb/workers"
)

const Version = "0.1.1"

type options struct {
	version    bool
	scanDir    string
	picture    string
	replay     string
	extract    string
	save       string
	configPath string
	initDB     bool
	logLevel   string
	errorLog   string
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("photodb", flag.ContinueOnError)

	fs.BoolVar(&opts.version, "version", false, "print version and exit")
	fs.BoolVar(&opts.version, "v", false, "print version and exit (short for --version)")
	fs.StringVar(&opts.scanDir, "scan-dir", "", "recursively scan DIR and add the pictures to the database")
	fs.StringVar(&opts.scanDir, "d", "", "short for --scan-dir")
	fs.StringVar(&opts.picture, "picture", "", "add a single picture FILE to the database")
	fs.StringVar(&opts.picture, "p", "", "short for --picture")
	fs.StringVar(&opts.replay, "replay", "", "insert the journal records in FILE into the database")
	fs.StringVar(&opts.replay, "r", "", "short for --replay")
	fs.StringVar(&opts.extract, "extract", "", "dump all records into FILE (journal format, or CSV when FILE ends in .csv)")
	fs.StringVar(&opts.extract, "x", "", "short for --extract")
	fs.StringVar(&opts.save, "save", "", "journal FILE (default from configuration, "+config.DefaultJournalPath+")")
	fs.StringVar(&opts.save, "s", "", "short for --save")
	fs.StringVar(&opts.configPath, "config", config.DefaultConfigPath, "read configuration from this file")
	fs.StringVar(&opts.configPath, "c", config.DefaultConfigPath, "short for --config")
	fs.BoolVar(&opts.initDB, "initdb", false, "initialise the database. WARNING: this wipes out existing records")
	fs.BoolVar(&opts.initDB, "i", false, "short for --initdb")
	fs.StringVar(&opts.logLevel, "loglevel", "", "logging level (default from configuration, "+config.DefaultLogLevel+")")
	fs.StringVar(&opts.logLevel, "l", "", "short for --loglevel")
	fs.StringVar(&opts.errorLog, "errorlog", "", "error log file (default from configuration, "+config.DefaultErrorLogPath+"); /dev/null disables it")
	fs.StringVar(&opts.errorLog, "e", "", "short for --errorlog")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	ops := 0
	for _, set := range []bool{opts.scanDir != "", opts.picture != "", opts.replay != "", opts.extract != "", opts.initDB} {
		if set {
			ops++
		}
	}
	if ops > 1 {
		return opts, errors.New("--scan-dir, --picture, --replay, --extract and --initdb are mutually exclusive")
	}
	return opts, nil
}

// checkExtractTarget refuses an extract into the journal file, which is
// rewritten at the end of every run.
func checkExtractTarget(target, journalPath string) error {
	target = config.ExpandHome(target)
	same := false
	a, errA := filepath.Abs(target)
	b, errB := filepath.Abs(journalPath)
	if errA == nil && errB == nil && a == b {
		same = true
	} else if ta, err := os.Stat(target); err == nil {
		if tb, err := os.Stat(journalPath); err == nil {
			same = os.SameFile(ta, tb)
		}
	}
	if same {
		return fmt.Errorf("extract target %s is the journal file; choose another file or pass --save", target)
	}
	return nil
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	opts, err := parseFlags(args)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "photodb: %v\n", err)
		return 2
	}
	if opts.version {
		fmt.Println(Version)
		return 0
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "photodb: failed to load .env: %v\n", err)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "photodb: failed to load configuration: %v\n", err)
		return 1
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.errorLog != "" {
		cfg.Log.ErrorLog = config.ExpandHome(opts.errorLog)
	}
	if opts.save != "" {
		cfg.Journal.Path = config.ExpandHome(opts.save)
	}

	if opts.extract != "" {
		if err := checkExtractTarget(opts.extract, cfg.Journal.Path); err != nil {
			fmt.Fprintf(os.Stderr, "photodb: %v\n", err)
			return 2
		}
	}

	log, closeLog, err := logging.New(cfg.Log.Level, cfg.Log.ErrorLog)
	if err != nil {
		fmt.Fprintf(os.Stderr, "photodb: %v\n", err)
		return 1
	}
	defer closeLog()

	if cfg.Source != "" {
		log.Info("configuration loaded", zap.String("path", cfg.Source))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, dialect, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		log.Error("failed to connect to database", zap.Error(err))
		return 1
	}
	defer db.Close()

	gdb, err := database.OpenGorm(db, dialect, log)
	if err != nil {
		log.Error("failed to initialize schema manager", zap.Error(err))
		return 1
	}

	if opts.initDB {
		log.Info("setting up database", zap.String("driver", cfg.Database.Driver))
		if err := database.ResetSchema(gdb); err != nil {
			log.Error("failed to initialize database", zap.Error(err))
			return 1
		}
		log.Info("database ready")
		return 0
	}

	created, err := database.EnsureSchema(gdb)
	if err != nil {
		log.Error("failed to prepare database schema", zap.Error(err))
		return 1
	}
	if created {
		log.Info("database schema created")
	}

	j, err := journal.Load(cfg.Journal.Path, log)
	if err != nil {
		log.Error("failed to load journal", zap.Error(err))
		return 1
	}

	store := repository.NewPictureRepository(db, dialect)

	var enricher workers.Enricher
	if cfg.OpenCage.APIKey != "" {
		quota := geocode.NewQuotaLimiter(cfg.OpenCage.APIKey, geocode.DefaultAllowance)
		enricher = geocode.NewEnricher(cfg.OpenCage.BaseURL, quota, cfg.OpenCage.Timeout, log)
	} else if opts.scanDir != "" || opts.picture != "" {
		log.Warn("no OpenCage API key configured, place names will be left empty")
	}
	ingester := workers.NewIngester(store, enricher, j, log)

	code := 0
	switch {
	case opts.picture != "":
		pic := opts.picture
		_, err := ingester.IngestFile(ctx, pic, filepath.Dir(pic))
		if errors.Is(err, geocode.ErrQuotaExceeded) {
			log.Warn("too many requests, stopping", zap.String("path", pic))
		} else if err != nil {
			log.Error("failed to ingest file", zap.String("path", pic), zap.Error(err))
		}

	case opts.scanDir != "":
		if _, err := ingester.ScanDirectory(ctx, opts.scanDir); err != nil {
			log.Error("scan aborted", zap.String("dir", opts.scanDir), zap.Error(err))
			code = 1
		}

	case opts.replay != "":
		if _, err := journal.Replay(ctx, opts.replay, store, j, log); err != nil {
			log.Error("replay aborted", zap.String("path", opts.replay), zap.Error(err))
			code = 1
		}

	case opts.extract != "":
		if _, err := journal.Extract(ctx, store, opts.extract, log); err != nil {
			log.Error("extract failed", zap.String("path", opts.extract), zap.Error(err))
			code = 1
		}
	}

	if err := j.Save(cfg.Journal.Path); err != nil {
		log.Error("failed to save journal", zap.Error(err))
		return 1
	}
	log.Info("journal saved", zap.String("path", cfg.Journal.Path), zap.Int("records", j.Len()))
	return code
}

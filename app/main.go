package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/notify"
	"github.com/umputun/go-flags"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/umputun/jobtrack/app/backup"
	"github.com/umputun/jobtrack/app/digest"
	"github.com/umputun/jobtrack/app/persistence"
	"github.com/umputun/jobtrack/app/tracker"
	"github.com/umputun/jobtrack/app/web"
)

// memoryDB is the --db value selecting the in-memory store
const memoryDB = ":memory:"

var opts struct {
	DB     string `long:"db" env:"JOBTRACK_DB" default:"jobtrack.db" description:"sqlite database file, :memory: for ephemeral run"`
	Import string `long:"import" env:"JOBTRACK_IMPORT" description:"import applications from json or yaml file and exit"`
	Export string `long:"export" env:"JOBTRACK_EXPORT" description:"export applications to json or yaml file and exit"`

	DropCorrupt bool `long:"drop-corrupt" env:"JOBTRACK_DROP_CORRUPT" description:"remove saved copies of corrupt collections and exit"`

	Web struct {
		Address   string  `long:"address" env:"ADDRESS" default:":8080" description:"web server listen address"`
		BaseURL   string  `long:"base-url" env:"BASE_URL" description:"base URL path for reverse proxy (e.g., /jobs)"`
		HostName  string  `long:"hostname" env:"HOSTNAME" description:"host name shown in the ui"`
		RateLimit float64 `long:"rate-limit" env:"RATE_LIMIT" default:"10" description:"max changes per second per client"`
	} `group:"web" namespace:"web" env-namespace:"JOBTRACK_WEB"`

	Digest struct {
		Enabled      bool          `long:"enabled" env:"ENABLED" description:"enable weekly digest"`
		Schedule     string        `long:"schedule" env:"SCHEDULE" default:"0 9 * * 1" description:"digest crontab schedule"`
		Webhooks     []string      `long:"webhook" env:"WEBHOOKS" env-delim:"," description:"webhook url(s) receiving the digest"`
		Emails       []string      `long:"to" env:"TO" env-delim:"," description:"email recipient(s)"`
		From         string        `long:"from" env:"FROM" description:"sender email, jobtrack@<host> if not set"`
		BaseURL      string        `long:"link" env:"LINK" description:"public url of the ui added to the digest"`
		SendEmpty    bool          `long:"send-empty" env:"SEND_EMPTY" description:"send digest for weeks without applications"`
		Attempts     int           `long:"attempts" env:"ATTEMPTS" default:"3" description:"delivery attempts per destination"`
		Timeout      time.Duration `long:"timeout" env:"TIMEOUT" default:"30s" description:"delivery timeout per attempt"`
		SMTPHost     string        `long:"smtp-host" env:"SMTP_HOST" description:"SMTP host"`
		SMTPPort     int           `long:"smtp-port" env:"SMTP_PORT" default:"25" description:"SMTP port"`
		SMTPUsername string        `long:"smtp-username" env:"SMTP_USERNAME" description:"SMTP user name"`
		SMTPPassword string        `long:"smtp-password" env:"SMTP_PASSWORD" description:"SMTP password"`
		SMTPTLS      bool          `long:"smtp-tls" env:"SMTP_TLS" description:"enable SMTP TLS"`
		SMTPStartTLS bool          `long:"smtp-starttls" env:"SMTP_STARTTLS" description:"enable SMTP StartTLS"`
		SMTPTimeOut  time.Duration `long:"smtp-timeout" env:"SMTP_TIMEOUT" default:"10s" description:"SMTP TCP connection timeout"`
	} `group:"digest" namespace:"digest" env-namespace:"JOBTRACK_DIGEST"`

	Log struct {
		Enabled         bool   `long:"enabled" env:"ENABLED" description:"enable logging to file"`
		Filename        string `long:"filename" env:"FILENAME" default:"jobtrack.log" description:"file to write logs to"`
		MaxSize         int    `long:"max-size" env:"MAX_SIZE" default:"100" description:"maximum size in megabytes before rotation"`
		MaxBackups      int    `long:"max-backups" env:"MAX_BACKUPS" default:"7" description:"maximum number of old log files to retain"`
		MaxAge          int    `long:"max-age" env:"MAX_AGE" default:"0" description:"maximum number of days to retain old log files"`
		EnabledCompress bool   `long:"enabled-compress" env:"ENABLED_COMPRESS" description:"compress rotated log files"`
	} `group:"log" namespace:"log" env-namespace:"JOBTRACK_LOG"`

	Dbg bool `long:"dbg" env:"JOBTRACK_DEBUG" description:"debug mode"`
}

var revision = "unknown"

func main() {
	fmt.Printf("jobtrack %s\n", revision)

	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(2)
	}
	logOut := setupLogs()
	if closer, ok := logOut.(io.Closer); ok {
		defer closer.Close()
	}

	defer func() {
		if x := recover(); x != nil {
			log.Printf("[WARN] run time panic:\n%v", x)
			panic(x)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	signals(cancel) // handle SIGQUIT and SIGTERM

	if err := run(ctx); err != nil {
		log.Printf("[ERROR] %v", err)
		os.Exit(1)
	}
}

// run opens the store and either performs a one-shot import/export or serves the ui until ctx is canceled
func run(ctx context.Context) error {
	store, err := openStore(opts.DB)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("[WARN] failed to close store: %v", err)
		}
	}()

	trk, err := tracker.New(store)
	if err != nil {
		return err
	}
	if w := trk.Warning(); w != "" {
		log.Printf("[WARN] %s", w)
	}
	if err := corruptBackups(store, opts.DropCorrupt); err != nil {
		return err
	}

	switch {
	case opts.DropCorrupt:
		return nil
	case opts.Import != "":
		return importFile(trk, opts.Import)
	case opts.Export != "":
		return exportFile(trk, opts.Export)
	}

	if opts.Digest.Enabled {
		svc, err := makeDigest(trk)
		if err != nil {
			return fmt.Errorf("failed to make digest service: %w", err)
		}
		go func() {
			if err := svc.Run(ctx); err != nil {
				log.Printf("[WARN] digest service failed: %v", err)
			}
		}()
	}

	srv, err := web.New(web.Config{
		Tracker:   trk,
		BaseURL:   validateBaseURL(opts.Web.BaseURL),
		Hostname:  makeHostName(),
		Version:   revision,
		RateLimit: opts.Web.RateLimit,
	})
	if err != nil {
		return err
	}
	return srv.Run(ctx, opts.Web.Address)
}

// kvStore is the tracker's store, listed for corrupt copies and closed on exit
type kvStore interface {
	tracker.KV
	Delete(key string) error
	Keys() ([]string, error)
	Close() error
}

func openStore(db string) (kvStore, error) {
	if db == memoryDB {
		log.Printf("[INFO] using in-memory store, nothing will be kept after exit")
		return persistence.NewMemoryStore(), nil
	}
	store, err := persistence.NewSQLiteStore(db)
	if err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", db, err)
	}
	return store, nil
}

// corruptBackups reports copies of corrupt collections left in the store, removing them if drop is set
func corruptBackups(store kvStore, drop bool) error {
	keys, err := store.Keys()
	if err != nil {
		return fmt.Errorf("failed to list store keys: %w", err)
	}
	var found []string
	for _, k := range keys {
		if strings.HasPrefix(k, tracker.CorruptKeyPrefix) {
			found = append(found, k)
		}
	}
	if len(found) == 0 {
		return nil
	}

	if !drop {
		log.Printf("[WARN] %d corrupt collection copies kept in the store: %s, remove with --drop-corrupt",
			len(found), strings.Join(found, ", "))
		return nil
	}
	for _, k := range found {
		if err := store.Delete(k); err != nil {
			return fmt.Errorf("failed to remove %s: %w", k, err)
		}
		log.Printf("[INFO] removed %s", k)
	}
	return nil
}

func importFile(trk *tracker.Tracker, path string) error {
	format, err := backup.FormatFromPath(path)
	if err != nil {
		return err
	}
	fh, err := os.Open(path) //nolint:gosec // path from cli
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer fh.Close()

	apps, err := backup.Import(fh, format)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	added, replaced, err := trk.Import(apps)
	if err != nil {
		return err
	}
	log.Printf("[INFO] imported %s, %d added, %d replaced", path, added, replaced)
	return nil
}

func exportFile(trk *tracker.Tracker, path string) (err error) {
	format, err := backup.FormatFromPath(path)
	if err != nil {
		return err
	}
	fh, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) //nolint:gosec // path from cli
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if closeErr := fh.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}()

	apps := trk.All()
	if err := backup.Export(fh, apps, format); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	log.Printf("[INFO] exported %d applications to %s", len(apps), path)
	return nil
}

func makeDigest(trk *tracker.Tracker) (*digest.Service, error) {
	from := opts.Digest.From
	if from == "" && len(opts.Digest.Emails) > 0 {
		from = "jobtrack@" + makeHostName()
	}

	p := digest.Params{
		Schedule:  opts.Digest.Schedule,
		Webhooks:  opts.Digest.Webhooks,
		Emails:    opts.Digest.Emails,
		From:      from,
		BaseURL:   opts.Digest.BaseURL,
		SendEmpty: opts.Digest.SendEmpty,
		Timeout:   opts.Digest.Timeout,
		SMTP: notify.SMTPParams{
			Host:     opts.Digest.SMTPHost,
			Port:     opts.Digest.SMTPPort,
			TLS:      opts.Digest.SMTPTLS,
			StartTLS: opts.Digest.SMTPStartTLS,
			Username: opts.Digest.SMTPUsername,
			Password: opts.Digest.SMTPPassword,
			TimeOut:  opts.Digest.SMTPTimeOut,
		},
	}
	p.Retry.Attempts = opts.Digest.Attempts
	return digest.New(p, trk)
}

func makeHostName() string {
	if opts.Web.HostName != "" {
		return opts.Web.HostName
	}
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return host
}

// validateBaseURL normalizes base URL, drops trailing slash, root becomes empty
func validateBaseURL(baseURL string) string {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL != "" && !strings.HasPrefix(baseURL, "/") {
		baseURL = "/" + baseURL
	}
	return baseURL
}

// setupLogs configures lgr, with file logging enabled the output goes to rotated file
func setupLogs() io.Writer {
	var out io.Writer = os.Stdout
	if opts.Log.Enabled {
		out = &lumberjack.Logger{
			Filename:   opts.Log.Filename,
			MaxSize:    opts.Log.MaxSize,
			MaxBackups: opts.Log.MaxBackups,
			MaxAge:     opts.Log.MaxAge,
			Compress:   opts.Log.EnabledCompress,
		}
	}

	if opts.Dbg {
		log.Setup(log.Out(out), log.Err(out), log.Debug, log.Msec, log.CallerFunc, log.CallerPkg, log.CallerFile)
		return out
	}
	log.Setup(log.Out(out), log.Err(out), log.Msec)
	return out
}

func signals(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	go func() {
		stacktrace := make([]byte, 8192)
		for sig := range sigChan {
			if sig == syscall.SIGQUIT { // catch SIGQUIT and print stack traces
				length := runtime.Stack(stacktrace, true)
				fmt.Println(string(stacktrace[:length]))
				continue
			}
			log.Printf("[INFO] %s received, shutting down", sig)
			cancel()
		}
	}()
	signal.Notify(sigChan, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGINT)
}

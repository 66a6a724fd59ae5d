// Command marcaje is the employee-facing attendance CLI: it logs in, captures
// check-in/check-out events and syncs the offline backlog.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/juju/clock"
	"go.uber.org/zap"

	"github.com/cechriza/marcaje/internal/api"
	"github.com/cechriza/marcaje/internal/device"
	"github.com/cechriza/marcaje/internal/errs"
	"github.com/cechriza/marcaje/internal/geocode"
	"github.com/cechriza/marcaje/internal/liveness"
	"github.com/cechriza/marcaje/internal/location"
	"github.com/cechriza/marcaje/internal/model"
	"github.com/cechriza/marcaje/internal/photostore"
	"github.com/cechriza/marcaje/internal/pipeline"
	"github.com/cechriza/marcaje/internal/repository/sqlite"
	"github.com/cechriza/marcaje/internal/session"
)

// ---- data dir ----

func dataDir() string {
	if v := os.Getenv("MARCAJE_DATA"); v != "" {
		return v
	}
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return filepath.Join(v, "marcaje")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "marcaje")
}

// ---- location source ----

// flagProvider feeds the acquisition tiers from command-line coordinates.
// Hosts without a positioning service supply the fix themselves; records
// still flow through the same verification, caching and fallback logic.
type flagProvider struct {
	lat, lon float64
	accuracy float64
	mock     bool
	have     bool
	clk      clock.Clock
}

func (p *flagProvider) PermissionGranted() bool { return true }
func (p *flagProvider) Enabled() bool           { return p.have }

func (p *flagProvider) Current(ctx context.Context) (model.Fix, error) {
	if !p.have {
		return model.Fix{}, errs.ErrNotFound
	}
	return model.Fix{
		Latitude:  p.lat,
		Longitude: p.lon,
		Accuracy:  p.accuracy,
		Time:      p.clk.Now(),
		Mock:      p.mock,
	}, nil
}

func (p *flagProvider) LastKnown(context.Context) (model.Fix, error) {
	return model.Fix{}, errs.ErrNotFound
}

// ---- face check ----

// execFinder shells out to an external detector: the JPEG arrives on stdin
// and bounding boxes come back as a JSON array of {left,top,right,bottom}.
type execFinder struct {
	command string
}

func (e execFinder) Detect(f liveness.Frame) ([]liveness.Box, error) {
	cmd := exec.Command("sh", "-c", e.command)
	cmd.Stdin = bytes.NewReader(f.Data)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("face command: %w", err)
	}
	var boxes []liveness.Box
	if err := json.Unmarshal(out, &boxes); err != nil {
		return nil, fmt.Errorf("face command output: %w", err)
	}
	return boxes, nil
}

// checkFace rejects a photo whose dominant face is too small or clipped.
func checkFace(command string, photo []byte) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(photo))
	if err != nil {
		return fmt.Errorf("decode photo: %w", err)
	}
	det := liveness.NewDetector(execFinder{command: command}, liveness.DefaultConfig(), zap.NewNop())
	frame := liveness.NewFrame(cfg.Width, cfg.Height, 0, photo, nil)
	ok, err := det.CheckFrame(frame)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("no usable face in photo (too small, clipped or absent)")
	}
	return nil
}

// ---- utils ----

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

func usage() {
	fmt.Fprintf(os.Stderr, `marcaje CLI
Usage:
  marcaje [-server URL] [-data DIR] [-v] <cmd> [args]

Commands:
  version
  login      -u <emp_code> -p <password>              (saves session)
  logout
  whoami
  checkin    -lat <deg> -lon <deg> [-acc m] [-note s] [-photo f] [-face-cmd c] [-mock -allow-mock]
  checkout   same flags as checkin
  sync                                                (push unsynced backlog)
  history    [-all | -from YYYY-MM-DD -to YYYY-MM-DD]
  banners
`)
	os.Exit(2)
}

var (
	version   = "dev"
	buildDate = "unknown"
)

// main dispatches subcommands over a locally wired pipeline.
func main() {
	server := flag.String("server", "https://api.cechrizaoperaciones.com/api", "server base URL")
	dir := flag.String("data", dataDir(), "local data directory")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)

	logger := zap.NewNop()
	if *verbose {
		logger, _ = zap.NewDevelopment()
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if cmd == "version" {
		fmt.Printf("marcaje %s (%s)\n", version, buildDate)
		return
	}

	db, err := sqlite.Open(*dir)
	if err != nil {
		fail(err)
	}
	defer db.Close()

	photos, err := photostore.New(filepath.Join(*dir, "photos"))
	if err != nil {
		fail(err)
	}

	sessions := session.NewContext(session.NewFileStore(filepath.Join(*dir, "session.json")))
	client := api.NewClient(*server)
	store := sqlite.NewAttendanceStore(db)
	locCache := sqlite.NewLocationCache(db)
	probe := device.NewHostProbe()

	pipe := pipeline.NewService(sessions, store, photos, probe, geocode.Noop{}, client, clock.WallClock, logger)

	switch cmd {

	case "login":
		fs := flag.NewFlagSet("login", flag.ExitOnError)
		u := fs.String("u", "", "employee code")
		p := fs.String("p", "", "password")
		_ = fs.Parse(flag.Args()[1:])
		if *u == "" || *p == "" {
			fmt.Fprintln(os.Stderr, "need -u and -p")
			os.Exit(1)
		}
		sess, err := client.Login(ctx, *u, *p)
		if err != nil {
			fail(err)
		}
		if err := sessions.Set(ctx, sess); err != nil {
			fail(err)
		}
		fmt.Printf("logged in as %s (%s)\n", sess.Name, sess.EmpCode)

	case "logout":
		if err := sessions.Clear(ctx); err != nil {
			fail(err)
		}
		fmt.Println("logged out")

	case "whoami":
		sess, err := sessions.Current(ctx)
		if err != nil {
			fail(err)
		}
		printJSON(map[string]any{
			"user_id":  sess.UserID,
			"name":     sess.Name,
			"email":    sess.Email,
			"emp_code": sess.EmpCode,
			"roles":    sess.Roles,
		})

	case "checkin", "checkout":
		kind := model.KindEntry
		if cmd == "checkout" {
			kind = model.KindExit
		}
		capture(ctx, pipe, locCache, kind, flag.Args()[1:], logger)

	case "sync":
		if !probe.Snapshot(ctx).Online {
			fail(errs.ErrNetworkUnavailable)
		}
		results, err := pipe.ReconcileBacklog(ctx)
		if err != nil {
			fail(err)
		}
		if len(results) == 0 {
			fmt.Println("nothing to sync")
			return
		}
		synced := 0
		for _, r := range results {
			if r.OK {
				synced++
			}
		}
		fmt.Printf("synced %d of %d pending records\n", synced, len(results))

	case "history":
		fs := flag.NewFlagSet("history", flag.ExitOnError)
		all := fs.Bool("all", false, "show every record")
		from := fs.String("from", "", "start date YYYY-MM-DD")
		to := fs.String("to", "", "end date YYYY-MM-DD")
		_ = fs.Parse(flag.Args()[1:])

		hist := pipeline.NewHistory(store)
		switch {
		case *all:
			recs, err := hist.All(ctx)
			if err != nil {
				fail(err)
			}
			printJSON(recs)
		case *from != "" && *to != "":
			start, err := time.ParseInLocation("2006-01-02", *from, time.Local)
			if err != nil {
				fail(err)
			}
			end, err := time.ParseInLocation("2006-01-02", *to, time.Local)
			if err != nil {
				fail(err)
			}
			recs, err := hist.Between(ctx, start, end.Add(24*time.Hour))
			if err != nil {
				fail(err)
			}
			printJSON(recs)
		default:
			rec, err := hist.Last(ctx)
			if errors.Is(err, errs.ErrNotFound) {
				fmt.Println("no records yet")
				return
			}
			if err != nil {
				fail(err)
			}
			printJSON(rec)
		}

	case "banners":
		sess, err := sessions.Current(ctx)
		if err != nil {
			fail(err)
		}
		banners, err := client.Banners(ctx, sess.Token)
		if err != nil {
			fail(err)
		}
		printJSON(banners)

	default:
		usage()
	}
}

// capture runs one check-in/check-out: acquire a fix, gate the photo, submit.
func capture(ctx context.Context, pipe *pipeline.Service, cache *sqlite.LocationCache, kind model.Kind, args []string, logger *zap.Logger) {
	fs := flag.NewFlagSet(kind.WireType(), flag.ExitOnError)
	lat := fs.Float64("lat", 0, "latitude")
	lon := fs.Float64("lon", 0, "longitude")
	acc := fs.Float64("acc", 10, "accuracy (meters)")
	note := fs.String("note", "", "note (defaults per event type)")
	photoPath := fs.String("photo", "", "JPEG photo file")
	faceCmd := fs.String("face-cmd", "", "external face detector command")
	mock := fs.Bool("mock", false, "mark the supplied fix as mocked")
	allowMock := fs.Bool("allow-mock", false, "accept a mocked fix")
	timeout := fs.Duration("timeout", 10*time.Second, "fix acquisition timeout")
	_ = fs.Parse(args)

	haveCoords := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "lat" || f.Name == "lon" {
			haveCoords = true
		}
	})

	provider := &flagProvider{
		lat: *lat, lon: *lon, accuracy: *acc,
		mock: *mock, have: haveCoords, clk: clock.WallClock,
	}
	loc := location.NewService(provider, cache, clock.WallClock, logger)

	fix, err := loc.AcquireWithRetry(ctx, *timeout, *timeout)
	if err != nil {
		var le *location.Error
		if errors.As(err, &le) {
			fmt.Fprintln(os.Stderr, "location:", le.Reason.Remediation())
		}
		fail(err)
	}
	if fix.Mock && !*allowMock {
		fail(errors.New("fix is marked as mocked; pass -allow-mock to submit anyway"))
	}

	var photo []byte
	if *photoPath != "" {
		photo, err = os.ReadFile(*photoPath)
		if err != nil {
			fail(err)
		}
		if *faceCmd != "" {
			if err := checkFace(*faceCmd, photo); err != nil {
				fail(err)
			}
		}
	}

	ack, err := pipe.Submit(ctx, fix, kind, photo, *note)
	if err != nil && !ack.Queued {
		fail(err)
	}
	if ack.Queued {
		fmt.Println(ack.Message)
		return
	}
	if ack.ServerID != nil {
		fmt.Printf("%s (server id %d)\n", ack.Message, *ack.ServerID)
		return
	}
	fmt.Println(ack.Message)
}

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ghalamif/CamFlow"
	"github.com/ghalamif/CamFlow/internal/adapters/wal"
	"github.com/ghalamif/CamFlow/internal/deployment"
)

const banner = `  ___              ___ _
 / __|__ _ _ __   | __| |_____ __ __
| (__/ _' | '  \  | _|| / _ \ V  V /
 \___\__,_|_|_|_| |_| |_\___/\_/\_/
`

func main() {
	if os.Getenv("CAMFLOW_NO_BANNER") == "" {
		fmt.Print(banner)
		fmt.Println()
	}
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "stats":
		err = statsCommand(os.Args[2:])
	case "wal":
		err = walCommand(os.Args[2:])
	case "next-number":
		err = nextNumberCommand(os.Args[2:])
	case "ctl":
		err = ctlCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		log.Fatalf("camflow %s: %v", cmd, err)
	}
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to acquisition configuration file")
	start := fs.Bool("start", false, "Begin triggering immediately (overrides always_trigger_at_start)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	flow, err := camflow.Conf(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *start {
		flow.Config().Application.AlwaysTriggerAtStart = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return flow.Run(ctx)
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := camflow.LoadConfig(*cfgPath)
	if err != nil {
		return err
	}
	fmt.Printf("config %s looks good ✅\n", *cfgPath)
	for _, cc := range cfg.Cameras.Resolved {
		p := cc.Profile
		steps := 0
		if p.HDREnabled {
			steps = len(p.HDRSettings)
		}
		fmt.Printf("  camera %-12s driver=%s exposure=%gus gain=%g hdr_steps=%d dividers=%d/%d/%d/%d\n",
			p.ID(), p.Driver, p.Exposure, p.Gain, steps,
			p.TriggerDivider, p.SaveImageDivider, p.StillImageDivider, p.VideoFrameDivider)
	}
	for _, sc := range cfg.Sensors.Installed {
		fmt.Printf("  sensor %-12s transport=%s type=%s\n", sc.Name, sc.Transport, sc.Type)
	}
	return nil
}

func statsCommand(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	url := fs.String("url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	interval := fs.Duration("interval", 2*time.Second, "Refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	fmt.Printf("Streaming metrics from %s (Ctrl+C to stop)\n", *url)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := printMetricsSnapshot(*url); err != nil {
				fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
			}
		}
	}
}

func printMetricsSnapshot(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	targets := map[string]float64{
		"camflow_triggers_total":          0,
		"camflow_images_saved_total":      0,
		"camflow_camera_faults_total":     0,
		"camflow_records_persisted_total": 0,
		"camflow_queue_length":            0,
		"camflow_wal_size_bytes":          0,
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		for key := range targets {
			if strings.HasPrefix(line, key+" ") {
				var value float64
				if _, err := fmt.Sscanf(line, key+" %f", &value); err == nil {
					targets[key] = value
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	fmt.Printf("[%s] triggers=%.0f images=%.0f faults=%.0f persisted=%.0f queue=%.0f wal_bytes=%.0f\n",
		time.Now().Format(time.RFC3339),
		targets["camflow_triggers_total"],
		targets["camflow_images_saved_total"],
		targets["camflow_camera_faults_total"],
		targets["camflow_records_persisted_total"],
		targets["camflow_queue_length"],
		targets["camflow_wal_size_bytes"],
	)
	return nil
}

// walCommand inspects a record journal while the runtime is stopped.
func walCommand(args []string) error {
	fs := flag.NewFlagSet("wal", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Configuration whose wal.dir is inspected")
	dir := fs.String("dir", "", "WAL directory (overrides -config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := *dir
	if path == "" {
		cfg, err := camflow.LoadConfig(*cfgPath)
		if err != nil {
			return err
		}
		path = cfg.WAL.Dir
	}

	w, err := wal.NewFileWAL(path)
	if err != nil {
		return err
	}
	defer w.Close()

	st := w.Stats()
	pending := 0
	kinds := map[camflow.RecordKind]int{}
	err = w.Iterate(st.OldestUncommitted, func(_ camflow.WALEntryID, r *camflow.Record) error {
		pending++
		kinds[r.Kind]++
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Printf("wal %s: latest=%d oldest_uncommitted=%d size=%dB pending=%d\n",
		path, st.LatestAppended, st.OldestUncommitted, st.SizeBytes, pending)
	for k, n := range kinds {
		fmt.Printf("  %-10s %d\n", k, n)
	}
	return nil
}

func nextNumberCommand(args []string) error {
	fs := flag.NewFlagSet("next-number", flag.ExitOnError)
	root := fs.String("path", "", "Output root whose images/ and frames/ folders are scanned")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *root == "" {
		return fmt.Errorf("-path is required")
	}

	highest, found, err := deployment.HighestNumber(*root)
	if err != nil {
		return err
	}
	next := uint64(0)
	if found {
		next = highest + 1
	}
	fmt.Println(strconv.FormatUint(next, 10))
	return nil
}

// ctlCommand sends one control command to a running runtime over HTTP.
func ctlCommand(args []string) error {
	fs := flag.NewFlagSet("ctl", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:9100", "Base URL serving /control")
	rate := fs.Float64("rate", 0, "Trigger rate for set_trigger_rate")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("expected one command (status, start, stop, set_trigger_rate)")
	}

	cmd := camflow.Command{Command: fs.Arg(0)}
	if *rate > 0 {
		cmd.Params = map[string]any{"rate_hz": *rate}
	}
	body, err := json.Marshal(cmd)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Post(strings.TrimSuffix(*addr, "/")+"/control", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if json.Indent(&pretty, out, "", "  ") == nil {
		out = pretty.Bytes()
	}
	fmt.Println(string(out))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("control returned %s", resp.Status)
	}
	return nil
}

func printUsage() {
	fmt.Printf(`CamFlow CLI

Usage:
  camflow <command> [flags]

Commands:
  run          Start acquisition using the provided config
  validate     Load and validate a config file and print the resolved cameras and sensors
  stats        Poll the Prometheus metrics endpoint and print live counters
  wal          Print journal statistics of a stopped runtime
  next-number  Print the image number a combined-mode deployment would resume at
  ctl          Send a control command (status, start, stop, set_trigger_rate)

Examples:
  camflow run -config ./data/config.yaml -start
  camflow validate -config ./data/config.yaml
  camflow stats -url http://localhost:9100/metrics -interval 1s
  camflow wal -config ./data/config.yaml
  camflow next-number -path /data/survey
  camflow ctl -addr http://localhost:9100 -rate 2 set_trigger_rate
`)
}

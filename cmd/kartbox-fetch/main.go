// Command kartbox-fetch copies session logs from the datalogger's Wi-Fi file
// server into a local directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kartbox/telemetry/internal/device"
	"github.com/kartbox/telemetry/internal/fsutil"
	"github.com/kartbox/telemetry/internal/httputil"
	"github.com/kartbox/telemetry/internal/version"
)

var (
	baseURL     = flag.String("device", device.DefaultBaseURL, "Datalogger base URL")
	outDir      = flag.String("dir", ".", "Directory to store session files in")
	overwrite   = flag.Bool("overwrite", false, "Download files that already exist locally")
	listOnly    = flag.Bool("list", false, "List files on the device and exit")
	timeout     = flag.Duration("timeout", httputil.DefaultTimeout, "Per-request timeout")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("kartbox-fetch"))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := device.NewClient(*baseURL, httputil.NewStandardClient(&http.Client{Timeout: *timeout}))

	if *listOnly {
		files, err := client.List(ctx)
		if err != nil {
			log.Fatalf("failed to list device files: %v", err)
		}
		for _, f := range files {
			fmt.Println(f.Name)
		}
		return
	}

	start := time.Now()
	res, err := client.Sync(ctx, fsutil.OSFileSystem{}, *outDir, *overwrite)
	log.Printf("fetched %d files (%d bytes), skipped %d, in %s",
		len(res.Downloaded), res.Bytes, len(res.Skipped), time.Since(start).Round(time.Millisecond))
	if err != nil {
		log.Printf("some files could not be fetched: %v", err)
		os.Exit(1)
	}
}

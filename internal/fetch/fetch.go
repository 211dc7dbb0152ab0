// Package fetch downloads point-cloud archives for a list of tiles, one
// request at a time.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	pb "gopkg.in/cheggaaa/pb.v1"

	"windtiler/internal/tileid"
)

// ApproxArchiveSize is the typical size of one archive, used for the
// estimate shown before a batch starts.
const ApproxArchiveSize = 50 << 20

// HTTPClient is the subset of *http.Client the fetcher needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type Config struct {
	BaseURL   string
	OutputDir string
	Naming    Naming
	// Timeout bounds a whole request including the body.
	Timeout time.Duration
	// Delay is inserted between consecutive requests of a batch.
	Delay        time.Duration
	ShowProgress bool
	// ProgressOutput receives the progress bars; stdout when nil.
	ProgressOutput io.Writer
}

// Result describes one finished fetch.
type Result struct {
	Tile     tileid.ID
	FileName string
	Path     string
	Bytes    int64
	Skipped  bool
}

type Fetcher struct {
	cfg    Config
	client HTTPClient
	log    logrus.FieldLogger
}

// New returns a Fetcher. A nil client gets an *http.Client with cfg.Timeout.
func New(cfg Config, client HTTPClient, log logrus.FieldLogger) *Fetcher {
	if cfg.Naming == nil {
		cfg.Naming = ZIPNaming
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Fetcher{cfg: cfg, client: client, log: log}
}

// URL returns the remote location of the archive for id.
func (f *Fetcher) URL(id tileid.ID) string {
	return strings.TrimRight(f.cfg.BaseURL, "/") + "/" + f.cfg.Naming(id)
}

// Fetch downloads the archive for id unless it is already present.
// The body is streamed to a .part file that is renamed once complete.
func (f *Fetcher) Fetch(ctx context.Context, id tileid.ID) (Result, error) {
	name := f.cfg.Naming(id)
	res := Result{
		Tile:     id,
		FileName: name,
		Path:     filepath.Join(f.cfg.OutputDir, name),
	}

	fi, err := os.Stat(res.Path)
	switch {
	case err == nil:
		res.Skipped = true
		res.Bytes = fi.Size()
		return res, nil
	case !errors.Is(err, fs.ErrNotExist):
		return res, fmt.Errorf("check existing %s: %w", res.Path, err)
	}

	url := f.URL(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return res, &TransportError{URL: url, Err: err}
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return res, &TransportError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return res, &NotFoundError{URL: url}
	case resp.StatusCode != http.StatusOK:
		return res, &TransportError{URL: url, StatusCode: resp.StatusCode}
	}

	n, err := f.save(res.Path, name, resp)
	if err != nil {
		return res, &TransportError{URL: url, Err: err}
	}
	res.Bytes = n
	return res, nil
}

func (f *Fetcher) save(path, name string, resp *http.Response) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return 0, err
	}
	part := path + ".part"
	out, err := os.Create(part)
	if err != nil {
		return 0, err
	}

	var body io.Reader = resp.Body
	var bar *pb.ProgressBar
	if f.cfg.ShowProgress {
		bar = pb.New64(resp.ContentLength).SetUnits(pb.U_BYTES).Prefix(name + " ")
		if f.cfg.ProgressOutput != nil {
			bar.Output = f.cfg.ProgressOutput
		}
		bar.Start()
		body = bar.NewProxyReader(resp.Body)
	}

	n, err := io.Copy(out, body)
	if bar != nil {
		bar.Finish()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(part)
		return n, err
	}
	return n, os.Rename(part, path)
}

// Failure is one archive that could not be fetched.
type Failure struct {
	Tile     tileid.ID
	FileName string
	Err      error
}

// Report is the outcome of a batch.
type Report struct {
	Total     int
	Succeeded int
	Skipped   int
	Bytes     int64
	Failures  []Failure
}

// FetchAll fetches ids in order, sleeping cfg.Delay between requests.
// Failures are collected, never retried. It stops early only when ctx ends.
func (f *Fetcher) FetchAll(ctx context.Context, ids []tileid.ID) Report {
	rep := Report{Total: len(ids)}
	for i, id := range ids {
		if ctx.Err() != nil {
			break
		}
		log := f.log.WithField("archive", f.cfg.Naming(id))

		res, err := f.Fetch(ctx, id)
		switch {
		case err != nil:
			var nf *NotFoundError
			if errors.As(err, &nf) {
				log.Warnf("[%d/%d] %s not found on server", i+1, len(ids), res.FileName)
			} else {
				log.Warnf("[%d/%d] %s failed: %v", i+1, len(ids), res.FileName, err)
			}
			rep.Failures = append(rep.Failures, Failure{Tile: id, FileName: res.FileName, Err: err})
		case res.Skipped:
			log.Infof("[%d/%d] %s already present", i+1, len(ids), res.FileName)
			rep.Succeeded++
			rep.Skipped++
		default:
			log.Infof("[%d/%d] %s (%s)", i+1, len(ids), res.FileName, humanize.IBytes(uint64(res.Bytes)))
			rep.Succeeded++
			rep.Bytes += res.Bytes
		}

		if i < len(ids)-1 && f.cfg.Delay > 0 {
			select {
			case <-time.After(f.cfg.Delay):
			case <-ctx.Done():
			}
		}
	}
	return rep
}

// maxListedFailures bounds the failure list printed by Summary.
const maxListedFailures = 10

// Summary prints the tally and the first failures with likely causes.
func (r Report) Summary(w io.Writer) {
	fmt.Fprintf(w, "Succeeded: %d/%d (%d already present, %s downloaded)\n",
		r.Succeeded, r.Total, r.Skipped, humanize.IBytes(uint64(r.Bytes)))
	if len(r.Failures) == 0 {
		return
	}

	fmt.Fprintf(w, "\n%d archives could not be fetched:\n", len(r.Failures))
	for i, fl := range r.Failures {
		if i == maxListedFailures {
			fmt.Fprintf(w, "  ... and %d more\n", len(r.Failures)-maxListedFailures)
			break
		}
		fmt.Fprintf(w, "  - %s (%v)\n", fl.FileName, fl.Err)
	}
	fmt.Fprintln(w, "\nLikely causes:")
	fmt.Fprintln(w, "  - the archive does not exist on the server")
	fmt.Fprintln(w, "  - the base URL or naming convention is wrong for this dataset")
	fmt.Fprintln(w, "  - a network problem")
}

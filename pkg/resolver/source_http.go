package resolver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/mese79/spec-bioimage-io/pkg/errors"
	"github.com/mese79/spec-bioimage-io/pkg/version"
)

var UserAgent = "bioimageio/" + version.Get().GitVersion

type HTTPSource struct {
	Client   *http.Client
	Retries  int
	Interval time.Duration
}

var _ Source = &HTTPSource{}

// Fetch downloads location into the spool. Transport errors and 5xx responses are
// retried up to Retries times; a 404 is reported as a missing file.
func (s *HTTPSource) Fetch(ctx context.Context, location *url.URL, into *Spool) error {
	log := logr.FromContextOrDiscard(ctx).WithValues("url", location.String())

	attempts, retries := 0, s.Retries
	if retries <= 0 {
		retries = 1
	}
	interval := s.Interval
	if interval <= 0 {
		interval = time.Second
	}
	var lasterr error
	err := wait.PollImmediateUntilWithContext(ctx, interval, func(ctx context.Context) (bool, error) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		attempts++
		if err := into.Reset(); err != nil {
			return false, err
		}
		retryable, err := s.download(ctx, location, into)
		if err == nil {
			return true, nil
		}
		if !retryable || attempts >= retries {
			return false, err
		}
		log.V(1).Info("retry download", "attempt", attempts, "error", err.Error())
		lasterr = err
		return false, nil
	})
	if err != nil {
		if ctxerr := ctx.Err(); ctxerr != nil {
			if lasterr != nil {
				return fmt.Errorf("%w: %v", ctxerr, lasterr)
			}
			return ctxerr
		}
		return err
	}
	return nil
}

func (s *HTTPSource) download(ctx context.Context, location *url.URL, into *Spool) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location.String(), nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("User-Agent", UserAgent)

	cli := s.Client
	if cli == nil {
		cli = http.DefaultClient
	}
	resp, err := cli.Do(req)
	if err != nil {
		return ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return false, errors.NewMissingFileError(location.String())
	case resp.StatusCode >= http.StatusInternalServerError:
		return true, fmt.Errorf("unexpected status: %s", resp.Status)
	default:
		return false, fmt.Errorf("unexpected status: %s", resp.Status)
	}
	into.SetTotal(resp.ContentLength)
	if _, err := io.Copy(into, resp.Body); err != nil {
		return ctx.Err() == nil, err
	}
	return false, nil
}

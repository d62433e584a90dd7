package resolver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/opencontainers/go-digest"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"

	"github.com/mese79/spec-bioimage-io/pkg/errors"
	"github.com/mese79/spec-bioimage-io/pkg/types"
)

// Source fetches artifacts of a remote URL scheme into a spool file.
type Source interface {
	Fetch(ctx context.Context, location *url.URL, into *Spool) error
}

// Artifact is a file referenced by a manifest, SHA256 is empty when the manifest
// does not pin its content.
type Artifact struct {
	Ref       string
	SHA256    string
	MediaType string
}

// Artifacts lists every file a manifest references: weights first, in priority
// order, then fixtures, samples, covers, documentation and attachments.
func Artifacts(desc *types.ResourceDescriptor) []Artifact {
	artifacts := []Artifact{}
	seen := map[string]bool{}
	add := func(ref, sha256, mediatype string) {
		if ref == "" || seen[ref] {
			return
		}
		seen[ref] = true
		artifacts = append(artifacts, Artifact{Ref: ref, SHA256: sha256, MediaType: mediatype})
	}
	for _, format := range desc.Weights.Formats() {
		entry, _ := desc.Weights.Entry(format)
		add(entry.Source, entry.SHA256, types.MediaTypeWeights)
		if entry.Attachments != nil {
			for _, f := range entry.Attachments.Files {
				add(f, "", types.MediaTypeFile)
			}
		}
	}
	if sd := desc.Weights.PytorchStateDict; sd != nil {
		if file, _, ok := strings.Cut(sd.Architecture, ":"); ok && strings.HasSuffix(file, ".py") {
			add(file, sd.ArchitectureSHA256, types.MediaTypeFile)
		}
	}
	for _, f := range desc.Files() {
		mediatype := types.MediaTypeFile
		if strings.HasSuffix(strings.ToLower(f), ".npy") {
			mediatype = types.MediaTypeTensorNpy
		}
		add(f, "", mediatype)
	}
	return artifacts
}

// Resolver resolves artifact references against the root of a manifest, a local
// directory or a remote base URL.
type Resolver struct {
	root    string
	base    *url.URL
	options *Options
	sources map[string]Source
}

func New(root string, options *Options) *Resolver {
	if options == nil {
		options = DefaultOptions()
	}
	r := &Resolver{root: root, options: options}
	if u, err := url.Parse(root); err == nil && u.Scheme != "" && u.Scheme != "file" && len(u.Scheme) > 1 {
		if !strings.HasSuffix(u.Path, "/") {
			u.Path += "/"
		}
		r.base = u
	} else if err == nil && u.Scheme == "file" {
		r.root = filepath.FromSlash(u.Path)
	}
	httpsource := &HTTPSource{Client: http.DefaultClient, Retries: options.Retries, Interval: options.RetryInterval}
	r.sources = map[string]Source{
		"http":  httpsource,
		"https": httpsource,
		"s3":    NewS3Source(options.S3),
	}
	return r
}

// Register sets the source used for a URL scheme.
func (r *Resolver) Register(scheme string, source Source) {
	r.sources[scheme] = source
}

// Location turns a reference into an absolute URL. Relative references must stay
// within the root.
func (r *Resolver) Location(ref string) (*url.URL, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, errors.NewSchemaError(errors.FieldError{Path: ref, Message: err.Error()})
	}
	// single letters are windows drive names
	if len(u.Scheme) > 1 {
		return u, nil
	}
	if r.base != nil {
		if u.Host != "" || strings.HasPrefix(u.Path, "/") {
			return nil, errors.NewSchemaError(errors.FieldError{Path: ref, Message: "reference escapes the manifest root"})
		}
		resolved := r.base.ResolveReference(u)
		// encoded dots survive ResolveReference, so compare the cleaned path
		cleaned := path.Clean(resolved.Path) + "/"
		if resolved.Host != r.base.Host || !strings.HasPrefix(cleaned, r.base.Path) {
			return nil, errors.NewSchemaError(errors.FieldError{Path: ref, Message: "reference escapes the manifest root"})
		}
		return resolved, nil
	}
	root, err := filepath.Abs(r.root)
	if err != nil {
		return nil, err
	}
	if filepath.IsAbs(ref) {
		return nil, errors.NewSchemaError(errors.FieldError{Path: ref, Message: "absolute paths are not allowed"})
	}
	local := filepath.Join(root, filepath.FromSlash(ref))
	rel, err := filepath.Rel(root, local)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, errors.NewSchemaError(errors.FieldError{Path: ref, Message: "reference escapes the manifest root"})
	}
	return &url.URL{Scheme: "file", Path: filepath.ToSlash(local)}, nil
}

type handle struct {
	io.ReadSeeker
	location *url.URL
	size     int64
	modified time.Time
	remote   bool
	release  func() error
}

func (r *Resolver) acquire(ctx context.Context, ref string, progress ProgressFunc) (*handle, error) {
	location, err := r.Location(ref)
	if err != nil {
		return nil, err
	}
	if location.Scheme == "file" {
		name := filepath.FromSlash(location.Path)
		f, err := os.Open(name)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, errors.NewMissingFileError(ref)
			}
			return nil, err
		}
		fi, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, err
		}
		if fi.IsDir() {
			f.Close()
			return nil, errors.NewMissingFileError(ref)
		}
		return &handle{ReadSeeker: f, location: location, size: fi.Size(), modified: fi.ModTime(), release: f.Close}, nil
	}

	source, ok := r.sources[location.Scheme]
	if !ok {
		return nil, errors.NewUnsupportedError(fmt.Sprintf("%s: unsupported scheme %q", ref, location.Scheme))
	}
	spool, err := newSpool(r.options.CacheDir, progress)
	if err != nil {
		return nil, err
	}
	if err := source.Fetch(ctx, location, spool); err != nil {
		_ = spool.release()
		return nil, err
	}
	fi, err := spool.f.Stat()
	if err != nil {
		_ = spool.release()
		return nil, err
	}
	if _, err := spool.f.Seek(0, io.SeekStart); err != nil {
		_ = spool.release()
		return nil, err
	}
	return &handle{ReadSeeker: spool.f, location: location, size: fi.Size(), remote: true, release: spool.release}, nil
}

func (r *Resolver) verify(ctx context.Context, artifact Artifact, h *handle, progress ProgressFunc) (types.Descriptor, error) {
	var reader io.Reader = contextReader{ctx: ctx, r: h}
	if !h.remote {
		reader = &progressReader{r: reader, total: h.size, progress: progress}
	}
	digester := digest.Canonical.Digester()
	n, err := io.Copy(digester.Hash(), reader)
	if err != nil {
		return types.Descriptor{}, fmt.Errorf("read %s: %w", artifact.Ref, err)
	}
	got := digester.Digest()
	if artifact.SHA256 != "" {
		expected := digest.NewDigestFromEncoded(digest.SHA256, strings.ToLower(artifact.SHA256))
		if got != expected {
			return types.Descriptor{}, errors.NewIntegrityError(artifact.Ref, expected, got)
		}
	}
	mediatype := artifact.MediaType
	if mediatype == "" {
		mediatype = types.MediaTypeFile
	}
	return types.Descriptor{
		Name:      artifact.Ref,
		MediaType: mediatype,
		Digest:    got,
		Size:      n,
		URLs:      []string{h.location.String()},
		Modified:  h.modified,
	}, nil
}

func (r *Resolver) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.options.Timeout > 0 {
		return context.WithTimeout(ctx, r.options.Timeout)
	}
	return context.WithCancel(ctx)
}

// Resolve fetches and verifies a single artifact, reporting progress when given.
func (r *Resolver) Resolve(ctx context.Context, artifact Artifact, progress ProgressFunc) (types.Descriptor, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	h, err := r.acquire(ctx, artifact.Ref, progress)
	if err != nil {
		return types.Descriptor{}, err
	}
	defer h.release()

	desc, err := r.verify(ctx, artifact, h, progress)
	if err != nil {
		return types.Descriptor{}, err
	}
	logr.FromContextOrDiscard(ctx).V(1).Info("artifact resolved", "name", desc.Name, "digest", desc.Digest.String(), "size", desc.Size)
	return desc, nil
}

// Verify checks that ref exists and that its content matches sha256, an empty
// sha256 skips the comparison.
func (r *Resolver) Verify(ctx context.Context, ref string, sha256 string) (types.Descriptor, error) {
	return r.Resolve(ctx, Artifact{Ref: ref, SHA256: sha256}, nil)
}

// With verifies ref and hands the rewound content to fn. The content is released
// when fn returns, whatever the outcome.
func (r *Resolver) With(ctx context.Context, ref string, sha256 string, fn func(r io.ReadSeeker) error) error {
	acquirectx, cancel := r.withTimeout(ctx)
	defer cancel()

	h, err := r.acquire(acquirectx, ref, nil)
	if err != nil {
		return err
	}
	defer h.release()

	if _, err := r.verify(acquirectx, Artifact{Ref: ref, SHA256: sha256}, h, nil); err != nil {
		return err
	}
	if _, err := h.Seek(0, io.SeekStart); err != nil {
		return err
	}
	return fn(h)
}

// WithWeights runs fn on the verified weights of the given format, or of the first
// present format in priority order when format is empty.
func (r *Resolver) WithWeights(ctx context.Context, desc *types.ResourceDescriptor, format types.WeightsFormat, fn func(r io.ReadSeeker) error) error {
	if format == "" {
		formats := desc.Weights.Formats()
		if len(formats) == 0 {
			return errors.NewMissingFileError("weights")
		}
		format = formats[0]
	}
	entry, ok := desc.Weights.Entry(format)
	if !ok {
		return errors.NewUnsupportedError(fmt.Sprintf("weights format %s not present", format))
	}
	return r.With(ctx, entry.Source, entry.SHA256, fn)
}

// ResolveAll resolves every artifact of desc concurrently. The first failure
// cancels the remaining resolutions.
func (r *Resolver) ResolveAll(ctx context.Context, desc *types.ResourceDescriptor) ([]types.Descriptor, error) {
	artifacts := Artifacts(desc)
	results := make([]types.Descriptor, len(artifacts))

	eg, ctx := errgroup.WithContext(ctx)
	if r.options.Concurrency > 0 {
		eg.SetLimit(r.options.Concurrency)
	}
	for i := range artifacts {
		i := i
		eg.Go(func() error {
			d, err := r.Resolve(ctx, artifacts[i], nil)
			if err != nil {
				return err
			}
			results[i] = d
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	slices.SortFunc(results, types.SortDescriptorName)
	return results, nil
}

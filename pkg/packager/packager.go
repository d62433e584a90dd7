package packager

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/mholt/archiver/v4"
	"github.com/opencontainers/go-digest"
	"golang.org/x/exp/slices"

	"github.com/mese79/spec-bioimage-io/pkg/errors"
	"github.com/mese79/spec-bioimage-io/pkg/resolver"
	"github.com/mese79/spec-bioimage-io/pkg/spec"
	"github.com/mese79/spec-bioimage-io/pkg/types"
)

const (
	FormatZip   = "zip"
	FormatTarGz = "tar.gz"
)

type Options struct {
	// WeightsPriorityOrder keeps only the first listed format present in the manifest.
	// Empty keeps every format.
	WeightsPriorityOrder []types.WeightsFormat
	Format               string
	Resolver             *resolver.Options
}

func DefaultOptions() *Options {
	return &Options{
		Format:   FormatZip,
		Resolver: resolver.DefaultOptions(),
	}
}

var tgz = archiver.CompressedArchive{
	Archival:    archiver.Tar{},
	Compression: archiver.Gz{},
}

func archiverFor(format string) (archiver.Archiver, error) {
	switch format {
	case "", FormatZip:
		return archiver.Zip{Compression: zip.Deflate}, nil
	case FormatTarGz, "tgz":
		return tgz, nil
	default:
		return nil, errors.NewUnsupportedError(fmt.Sprintf("unsupported package format %q", format))
	}
}

// Pack writes desc and every file it references into a single archive with the
// manifest at rdf.yaml and all files at the archive root. Weights are verified
// before they are written. It returns the packaged files sorted by name.
func Pack(ctx context.Context, desc *types.ResourceDescriptor, out io.Writer, options *Options) ([]types.Descriptor, error) {
	if options == nil {
		options = DefaultOptions()
	}
	log := logr.FromContextOrDiscard(ctx).WithValues("model", desc.Name)

	ar, err := archiverFor(options.Format)
	if err != nil {
		return nil, err
	}
	packed, err := clone(desc)
	if err != nil {
		return nil, err
	}
	if len(options.WeightsPriorityOrder) > 0 {
		format, ok := firstPresent(packed.Weights, options.WeightsPriorityOrder)
		if !ok {
			return nil, errors.NewUnsupportedError(fmt.Sprintf("none of the weights formats %v is present", options.WeightsPriorityOrder))
		}
		packed.Weights = packed.Weights.Only(format)
	}

	staging, err := os.MkdirTemp(options.Resolver.CacheDir, "bioimageio-package-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(staging)

	r := resolver.New(desc.Root, options.Resolver)
	artifacts := resolver.Artifacts(packed)
	names := archiveNames(artifacts)
	ondisk := map[string]string{}
	descriptors := []types.Descriptor{}
	for _, a := range artifacts {
		name := names[a.Ref]
		location, err := r.Location(a.Ref)
		if err != nil {
			return nil, err
		}
		var d types.Descriptor
		if location.Scheme == "file" {
			if d, err = r.Resolve(ctx, a, nil); err != nil {
				return nil, err
			}
			ondisk[filepath.FromSlash(location.Path)] = name
		} else {
			staged := filepath.Join(staging, name)
			if d, err = stage(ctx, r, a, staged); err != nil {
				return nil, err
			}
			ondisk[staged] = name
		}
		d.Name, d.URLs = name, nil
		descriptors = append(descriptors, d)
		log.V(1).Info("packaging file", "ref", a.Ref, "name", name, "size", d.Size)
	}

	rewrite(packed, names)
	manifest, err := spec.Marshal(packed)
	if err != nil {
		return nil, err
	}
	modified := time.Now()
	if packed.Timestamp != nil {
		modified = *packed.Timestamp
	}
	descriptors = append(descriptors, types.Descriptor{
		Name:      spec.ManifestFileName,
		MediaType: types.MediaTypeManifestYaml,
		Digest:    digest.FromBytes(manifest),
		Size:      int64(len(manifest)),
		Modified:  modified,
	})

	files, err := archiver.FilesFromDisk(&archiver.FromDiskOptions{ClearAttributes: true}, ondisk)
	if err != nil {
		return nil, err
	}
	files = append(files, archiver.File{
		FileInfo:      memFileInfo{name: spec.ManifestFileName, size: int64(len(manifest)), modified: modified},
		NameInArchive: spec.ManifestFileName,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(manifest)), nil
		},
	})
	if err := ar.Archive(ctx, out, files); err != nil {
		return nil, fmt.Errorf("write package: %w", err)
	}
	slices.SortFunc(descriptors, types.SortDescriptorName)
	log.Info("packaged", "files", len(descriptors), "format", options.Format)
	return descriptors, nil
}

func stage(ctx context.Context, r *resolver.Resolver, a resolver.Artifact, into string) (types.Descriptor, error) {
	d := types.Descriptor{Name: a.Ref, MediaType: a.MediaType}
	err := r.With(ctx, a.Ref, a.SHA256, func(rs io.ReadSeeker) error {
		f, err := os.Create(into)
		if err != nil {
			return err
		}
		defer f.Close()
		digester := digest.Canonical.Digester()
		n, err := io.Copy(io.MultiWriter(f, digester.Hash()), rs)
		if err != nil {
			return err
		}
		d.Digest, d.Size = digester.Digest(), n
		return nil
	})
	return d, err
}

func clone(desc *types.ResourceDescriptor) (*types.ResourceDescriptor, error) {
	content, err := spec.Marshal(desc)
	if err != nil {
		return nil, err
	}
	packed, err := spec.Parse(content)
	if err != nil {
		return nil, err
	}
	packed.Root = desc.Root
	return packed, nil
}

func firstPresent(w types.Weights, order []types.WeightsFormat) (types.WeightsFormat, bool) {
	for _, f := range order {
		if _, ok := w.Entry(f); ok {
			return f, true
		}
	}
	return "", false
}

// archiveNames assigns every reference a unique file name at the archive root.
func archiveNames(artifacts []resolver.Artifact) map[string]string {
	names := map[string]string{}
	taken := map[string]bool{spec.ManifestFileName: true}
	for _, a := range artifacts {
		base := baseName(a.Ref)
		name := base
		for i := 1; taken[name]; i++ {
			name = fmt.Sprintf("%d_%s", i, base)
		}
		taken[name] = true
		names[a.Ref] = name
	}
	return names
}

func baseName(ref string) string {
	if u, err := url.Parse(ref); err == nil && len(u.Scheme) > 1 {
		return path.Base(u.Path)
	}
	return path.Base(filepath.ToSlash(ref))
}

func rewrite(desc *types.ResourceDescriptor, names map[string]string) {
	rename := func(refs []string) []string {
		for i, ref := range refs {
			if name, ok := names[ref]; ok {
				refs[i] = name
			}
		}
		return refs
	}
	for _, format := range desc.Weights.Formats() {
		entry, _ := desc.Weights.Entry(format)
		if name, ok := names[entry.Source]; ok {
			entry.Source = name
		}
		if entry.Attachments != nil {
			rename(entry.Attachments.Files)
		}
	}
	if sd := desc.Weights.PytorchStateDict; sd != nil {
		if file, class, ok := strings.Cut(sd.Architecture, ":"); ok {
			if name, ok := names[file]; ok {
				sd.Architecture = name + ":" + class
			}
		}
	}
	rename(desc.TestInputs)
	rename(desc.TestOutputs)
	rename(desc.SampleInputs)
	rename(desc.SampleOutputs)
	rename(desc.Covers)
	if name, ok := names[desc.Documentation]; ok {
		desc.Documentation = name
	}
	if desc.Attachments != nil {
		rename(desc.Attachments.Files)
	}
}

type memFileInfo struct {
	name     string
	size     int64
	modified time.Time
}

func (m memFileInfo) Name() string       { return m.name }
func (m memFileInfo) Size() int64        { return m.size }
func (m memFileInfo) Mode() fs.FileMode  { return 0o644 }
func (m memFileInfo) ModTime() time.Time { return m.modified }
func (m memFileInfo) IsDir() bool        { return false }
func (m memFileInfo) Sys() any           { return nil }

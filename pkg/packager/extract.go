package packager

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"
	"github.com/mholt/archiver/v4"

	"github.com/mese79/spec-bioimage-io/pkg/errors"
	"github.com/mese79/spec-bioimage-io/pkg/spec"
	"github.com/mese79/spec-bioimage-io/pkg/types"
)

// Extract unpacks a zip or tar.gz package into dir and loads the manifest it holds.
// Entries resolving outside dir are rejected.
func Extract(ctx context.Context, archivePath string, into string, opts ...spec.Option) (*types.ResourceDescriptor, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewMissingFileError(archivePath)
		}
		return nil, err
	}
	defer f.Close()

	format, _, err := archiver.Identify(filepath.Base(archivePath), f)
	if err != nil {
		return nil, errors.NewUnsupportedError(fmt.Sprintf("%s: %v", archivePath, err))
	}
	extractor, ok := format.(archiver.Extractor)
	if !ok {
		return nil, errors.NewUnsupportedError(fmt.Sprintf("%s: %s is not an archive", archivePath, format.Name()))
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(into, 0o755); err != nil {
		return nil, err
	}
	root, err := filepath.Abs(into)
	if err != nil {
		return nil, err
	}
	log := logr.FromContextOrDiscard(ctx).WithValues("package", archivePath)
	if err := extractor.Extract(ctx, f, nil, func(ctx context.Context, af archiver.File) error {
		return extractFile(root, af)
	}); err != nil {
		return nil, err
	}
	log.V(1).Info("package extracted", "into", root)
	return spec.Load(ctx, root, opts...)
}

func extractFile(root string, f archiver.File) error {
	nameinlocal := filepath.Join(root, filepath.FromSlash(f.NameInArchive))
	rel, err := filepath.Rel(root, nameinlocal)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return errors.NewSchemaError(errors.FieldError{Path: f.NameInArchive, Message: "archive entry escapes the target directory"})
	}
	if f.LinkTarget != "" {
		return errors.NewUnsupportedError(fmt.Sprintf("%s: links are not supported in packages", f.NameInArchive))
	}
	if f.IsDir() {
		return os.MkdirAll(nameinlocal, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(nameinlocal), 0o755); err != nil {
		return err
	}
	srcfile, err := f.Open()
	if err != nil {
		return err
	}
	defer srcfile.Close()

	intofile, err := os.OpenFile(nameinlocal, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer intofile.Close()

	_, err = io.Copy(intofile, srcfile)
	return err
}

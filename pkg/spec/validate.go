package spec

import (
	"regexp"
	"time"

	"github.com/mese79/spec-bioimage-io/pkg/types"
)

const (
	ResourceTypeModel = "model"
	maxNameLength     = 64
)

// keys of the wider resource description format that models may carry but this
// package does not interpret
var passthroughKeys = []string{
	"id", "icon", "badges", "download_url", "source", "sha256", "rdf_source", "uploader",
	"packaged_by", "parent", "run_mode", "framework", "language", "dependencies", "kwargs",
	"training_data", "id_emoji",
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks a decoded manifest and returns the typed descriptor. It never
// modifies raw. Unknown keys are ignored unless WithRejectUnknownFields is given.
//
// Failures are ErrorInfo values: SHAPE_MISMATCH when axes and shape lengths disagree,
// SCHEMA_INVALID for any other field problem, UNKNOWN_STEP or INVALID_ARGUMENT for
// processing steps.
func Validate(raw map[string]any, opts ...Option) (*types.ResourceDescriptor, error) {
	v := &validator{opts: newOptions(opts)}
	desc := v.validateRoot(raw)
	if err := v.err(); err != nil {
		return nil, err
	}
	desc.Root = v.opts.root
	return desc, nil
}

func (v *validator) validateRoot(raw map[string]any) *types.ResourceDescriptor {
	desc := &types.ResourceDescriptor{}
	o, ok := v.object("", any(raw))
	if !ok {
		return desc
	}
	o.allow(passthroughKeys...)

	desc.FormatVersion = o.str("format_version", true)
	if desc.FormatVersion != "" && !IsSupportedFormatVersion(desc.FormatVersion) {
		v.errorf("format_version", "unsupported format version %q (supported %s-%s)",
			desc.FormatVersion, MinSupportedFormatVersion, MaxTestedFormatVersion)
	}
	desc.Type = o.str("type", true)
	if desc.Type != "" && desc.Type != ResourceTypeModel {
		v.errorf("type", "must be %q, got %q", ResourceTypeModel, desc.Type)
	}
	desc.Name = o.str("name", true)
	if len([]rune(desc.Name)) > maxNameLength {
		v.warnf("name", "longer than %d characters", maxNameLength)
	}
	desc.Version = o.version("version", true)
	desc.Description = o.str("description", false)
	desc.License = o.str("license", true)
	desc.Documentation = o.str("documentation", false)
	desc.GitRepo = o.str("git_repo", false)
	desc.Covers = o.strList("covers")
	desc.Links = o.strList("links")
	desc.Tags = uniqueTags(o.strList("tags"))
	desc.TestInputs = o.strList("test_inputs")
	desc.TestOutputs = o.strList("test_outputs")
	desc.SampleInputs = o.strList("sample_inputs")
	desc.SampleOutputs = o.strList("sample_outputs")
	desc.Config = o.mapping("config")

	desc.Authors = v.authors(o, "authors")
	desc.Maintainers = v.maintainers(o)
	desc.Cite = v.cite(o)
	desc.Attachments = v.attachments(o, "attachments")
	desc.Timestamp = v.timestamp(o)

	if l, ok := o.list("inputs", true); ok {
		if len(l) == 0 {
			v.errorf("inputs", "at least one input tensor is required")
		}
		for i, item := range l {
			desc.Inputs = append(desc.Inputs, v.tensor(indexPath("inputs", i), item, true))
		}
	}
	if l, ok := o.list("outputs", true); ok {
		if len(l) == 0 {
			v.errorf("outputs", "at least one output tensor is required")
		}
		for i, item := range l {
			desc.Outputs = append(desc.Outputs, v.tensor(indexPath("outputs", i), item, false))
		}
	}
	if val, ok := o.value("weights", true); ok {
		desc.Weights = v.weights("weights", val)
	}
	o.finish()

	v.crossCheck(desc)
	return desc
}

func uniqueTags(tags []string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, t := range tags {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return nilIfEmpty(out)
}

func (v *validator) timestamp(o *object) *time.Time {
	s := o.str("timestamp", false)
	if s == "" {
		if _, present := o.m["timestamp"]; !present {
			v.warnf("timestamp", "missing")
		}
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	v.errorf("timestamp", "invalid ISO 8601 timestamp %q", s)
	return nil
}

func (v *validator) authors(o *object, key string) []types.Author {
	l, ok := o.list(key, false)
	if !ok {
		return nil
	}
	authors := []types.Author{}
	for i, item := range l {
		a, ok := v.object(indexPath(o.at(key), i), item)
		if !ok {
			continue
		}
		authors = append(authors, types.Author{
			Name:        a.str("name", true),
			Affiliation: a.str("affiliation", false),
			Email:       a.str("email", false),
			GithubUser:  a.str("github_user", false),
			Orcid:       a.str("orcid", false),
		})
		a.finish()
	}
	return nilIfEmpty(authors)
}

func (v *validator) maintainers(o *object) []types.Maintainer {
	l, ok := o.list("maintainers", false)
	if !ok {
		return nil
	}
	maintainers := []types.Maintainer{}
	for i, item := range l {
		m, ok := v.object(indexPath("maintainers", i), item)
		if !ok {
			continue
		}
		maintainers = append(maintainers, types.Maintainer{
			GithubUser:  m.str("github_user", true),
			Name:        m.str("name", false),
			Affiliation: m.str("affiliation", false),
			Email:       m.str("email", false),
			Orcid:       m.str("orcid", false),
		})
		m.finish()
	}
	return nilIfEmpty(maintainers)
}

func (v *validator) cite(o *object) []types.CiteEntry {
	l, ok := o.list("cite", false)
	if !ok {
		return nil
	}
	entries := []types.CiteEntry{}
	for i, item := range l {
		path := indexPath("cite", i)
		c, ok := v.object(path, item)
		if !ok {
			continue
		}
		entry := types.CiteEntry{
			Text: c.str("text", true),
			DOI:  c.str("doi", false),
			URL:  c.str("url", false),
		}
		if entry.DOI == "" && entry.URL == "" {
			v.errorf(path, "one of doi or url is required")
		}
		c.finish()
		entries = append(entries, entry)
	}
	return nilIfEmpty(entries)
}

func (v *validator) attachments(o *object, key string) *types.Attachments {
	val, ok := o.value(key, false)
	if !ok {
		return nil
	}
	a, ok := v.object(o.at(key), val)
	if !ok {
		return nil
	}
	files := a.strList("files")
	// other attachment kinds are free-form
	for k := range a.m {
		a.known[k] = true
	}
	if files == nil {
		return nil
	}
	return &types.Attachments{Files: files}
}

// crossCheck validates relations between fields.
func (v *validator) crossCheck(desc *types.ResourceDescriptor) {
	names := map[string]string{}
	check := func(path string, t types.TensorSpec) {
		if t.Name == "" {
			return
		}
		if !identifier.MatchString(t.Name) {
			v.errorf(keyPath(path, "name"), "tensor name %q is not a valid identifier", t.Name)
		}
		if prev, ok := names[t.Name]; ok {
			v.errorf(keyPath(path, "name"), "duplicate tensor name %q (also %s)", t.Name, prev)
			return
		}
		names[t.Name] = path
	}
	for i, t := range desc.Inputs {
		check(indexPath("inputs", i), t)
	}
	for i, t := range desc.Outputs {
		check(indexPath("outputs", i), t)
	}

	for i, t := range desc.Outputs {
		if ref := t.Shape.ReferenceTensor; ref != "" {
			if _, ok := desc.InputTensor(ref); !ok {
				v.errorf(indexPath("outputs", i)+".shape.reference_tensor", "%q is not an input tensor", ref)
			}
		}
	}

	if desc.TestInputs != nil && len(desc.TestInputs) != len(desc.Inputs) {
		v.errorf("test_inputs", "%d test inputs for %d input tensors", len(desc.TestInputs), len(desc.Inputs))
	}
	if desc.TestOutputs != nil && len(desc.TestOutputs) != len(desc.Outputs) {
		v.errorf("test_outputs", "%d test outputs for %d output tensors", len(desc.TestOutputs), len(desc.Outputs))
	}
	v.checkProcessing(desc)
}

package types

import (
	"strings"
	"time"

	"github.com/opencontainers/go-digest"
)

const (
	MediaTypeManifestYaml = "application/vnd.bioimageio.rdf.v1+yaml"
	MediaTypeWeights      = "application/vnd.bioimageio.weights"
	MediaTypeTensorNpy    = "application/vnd.bioimageio.tensor.npy"
	MediaTypeFile         = "application/octet-stream"
)

// Descriptor describes a single resolved or packaged file.
type Descriptor struct {
	Name        string            `json:"name"`
	MediaType   string            `json:"mediaType,omitempty"`
	Digest      digest.Digest     `json:"digest,omitempty"`
	Size        int64             `json:"size,omitempty"`
	URLs        []string          `json:"urls,omitempty"`
	Modified    time.Time         `json:"modified,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

func SortDescriptorName(a, b Descriptor) bool {
	return strings.Compare(a.Name, b.Name) < 0
}

// ResourceDescriptor is a validated model manifest. It is never mutated after validation.
type ResourceDescriptor struct {
	FormatVersion string         `json:"format_version"`
	Type          string         `json:"type"`
	Name          string         `json:"name"`
	Version       string         `json:"version"`
	Description   string         `json:"description,omitempty"`
	License       string         `json:"license"`
	Authors       []Author       `json:"authors,omitempty"`
	Maintainers   []Maintainer   `json:"maintainers,omitempty"`
	Cite          []CiteEntry    `json:"cite,omitempty"`
	Covers        []string       `json:"covers,omitempty"`
	Tags          []string       `json:"tags,omitempty"`
	Documentation string         `json:"documentation,omitempty"`
	GitRepo       string         `json:"git_repo,omitempty"`
	Timestamp     *time.Time     `json:"timestamp,omitempty"`
	Links         []string       `json:"links,omitempty"`
	Attachments   *Attachments   `json:"attachments,omitempty"`
	Inputs        []TensorSpec   `json:"inputs"`
	Outputs       []TensorSpec   `json:"outputs"`
	Weights       Weights        `json:"weights"`
	TestInputs    []string       `json:"test_inputs,omitempty"`
	TestOutputs   []string       `json:"test_outputs,omitempty"`
	SampleInputs  []string       `json:"sample_inputs,omitempty"`
	SampleOutputs []string       `json:"sample_outputs,omitempty"`
	Config        map[string]any `json:"config,omitempty"`

	// Root is the directory or base URL relative references are resolved against.
	Root string `json:"-"`
}

type Author struct {
	Name        string `json:"name"`
	Affiliation string `json:"affiliation,omitempty"`
	Email       string `json:"email,omitempty"`
	GithubUser  string `json:"github_user,omitempty"`
	Orcid       string `json:"orcid,omitempty"`
}

type Maintainer struct {
	GithubUser  string `json:"github_user"`
	Name        string `json:"name,omitempty"`
	Affiliation string `json:"affiliation,omitempty"`
	Email       string `json:"email,omitempty"`
	Orcid       string `json:"orcid,omitempty"`
}

type CiteEntry struct {
	Text string `json:"text"`
	DOI  string `json:"doi,omitempty"`
	URL  string `json:"url,omitempty"`
}

type Attachments struct {
	Files []string `json:"files,omitempty"`
}

// InputTensor returns the input tensor spec with the given name.
func (r *ResourceDescriptor) InputTensor(name string) (TensorSpec, bool) {
	for _, t := range r.Inputs {
		if t.Name == name {
			return t, true
		}
	}
	return TensorSpec{}, false
}

// Files lists every file reference of the manifest, except weights, in a stable order.
func (r *ResourceDescriptor) Files() []string {
	files := []string{}
	files = append(files, r.TestInputs...)
	files = append(files, r.TestOutputs...)
	files = append(files, r.SampleInputs...)
	files = append(files, r.SampleOutputs...)
	files = append(files, r.Covers...)
	if r.Documentation != "" {
		files = append(files, r.Documentation)
	}
	if r.Attachments != nil {
		files = append(files, r.Attachments.Files...)
	}
	return files
}

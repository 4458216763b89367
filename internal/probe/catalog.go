package probe

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrInvalidCatalog = errors.New("invalid catalog")

// TestDef is an endpoint test declared in the catalog.
type TestDef struct {
	Name         string `yaml:"name"`
	Method       string `yaml:"method"`
	Path         string `yaml:"path"`
	Body         string `yaml:"body"`
	ExpectStatus []int  `yaml:"expectStatus"`
	JSON         bool   `yaml:"json"`
	Placeholder  bool   `yaml:"placeholder"`
}

// Catalog is the ordered list of monitored services plus the endpoint tests
// declared for them.
type Catalog struct {
	Specs []ProbeSpec
	Tests map[string][]TestDef
}

type catalogDefaults struct {
	Ready   bool          `yaml:"ready"`
	Live    bool          `yaml:"live"`
	Timeout time.Duration `yaml:"timeout"`
}

type catalogEntry struct {
	Service    string        `yaml:"service"`
	BasePath   string        `yaml:"basePath"`
	SourceFile string        `yaml:"sourceFile"`
	Group      string        `yaml:"group"`
	Owner      string        `yaml:"owner"`
	Ready      *bool         `yaml:"ready"`
	Live       *bool         `yaml:"live"`
	Timeout    time.Duration `yaml:"timeout"`
	Tests      []TestDef     `yaml:"tests"`
}

type catalogFile struct {
	Defaults catalogDefaults `yaml:"defaults"`
	Services []catalogEntry  `yaml:"services"`
}

// LoadCatalog reads and validates a catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()

	c, err := ParseCatalog(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for i := range c.Specs {
		if c.Specs[i].SourceFile == "" {
			c.Specs[i].SourceFile = path
		}
	}
	return c, nil
}

// ParseCatalog decodes a YAML catalog. Unknown keys are rejected so typos do
// not silently disable a check.
func ParseCatalog(r io.Reader) (*Catalog, error) {
	var file catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidCatalog)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}
	if len(file.Services) == 0 {
		return nil, fmt.Errorf("%w: no services", ErrInvalidCatalog)
	}

	c := &Catalog{Tests: make(map[string][]TestDef)}
	seen := make(map[string]bool, len(file.Services))
	for i, e := range file.Services {
		spec, err := e.spec(file.Defaults)
		if err != nil {
			return nil, fmt.Errorf("%w: services[%d]: %w", ErrInvalidCatalog, i, err)
		}
		if seen[spec.ServiceName] {
			return nil, fmt.Errorf("%w: duplicate service %q", ErrInvalidCatalog, spec.ServiceName)
		}
		seen[spec.ServiceName] = true

		for j, t := range e.Tests {
			if err := t.validate(); err != nil {
				return nil, fmt.Errorf("%w: %s tests[%d]: %w", ErrInvalidCatalog, spec.ServiceName, j, err)
			}
		}
		c.Specs = append(c.Specs, spec)
		if len(e.Tests) > 0 {
			c.Tests[spec.ServiceName] = e.Tests
		}
	}
	return c, nil
}

func (e catalogEntry) spec(d catalogDefaults) (ProbeSpec, error) {
	name := strings.TrimSpace(e.Service)
	if name == "" {
		return ProbeSpec{}, errors.New("service name is required")
	}
	if err := validateBasePath(e.BasePath); err != nil {
		return ProbeSpec{}, fmt.Errorf("%s: %w", name, err)
	}

	spec := ProbeSpec{
		ServiceName: name,
		BasePath:    strings.TrimRight(e.BasePath, "/"),
		SourceFile:  e.SourceFile,
		Group:       e.Group,
		Owner:       e.Owner,
		CheckReady:  d.Ready,
		CheckLive:   d.Live,
		Timeout:     d.Timeout,
	}
	if e.Ready != nil {
		spec.CheckReady = *e.Ready
	}
	if e.Live != nil {
		spec.CheckLive = *e.Live
	}
	if e.Timeout > 0 {
		spec.Timeout = e.Timeout
	}
	return spec, nil
}

func validateBasePath(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("basePath: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("basePath %q must be an http(s) URL", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("basePath %q has no host", raw)
	}
	return nil
}

func (t TestDef) validate() error {
	switch t.Name {
	case "":
		return errors.New("test name is required")
	case CheckHealth, CheckReady, CheckLive:
		return fmt.Errorf("%q is a built-in check", t.Name)
	}
	if t.Placeholder {
		return nil
	}
	if t.Path == "" {
		return fmt.Errorf("test %q has no path", t.Name)
	}
	if len(t.ExpectStatus) == 0 {
		return fmt.Errorf("test %q has no expectStatus", t.Name)
	}
	for _, code := range t.ExpectStatus {
		if code < 100 || code > 599 {
			return fmt.Errorf("test %q expects invalid status %d", t.Name, code)
		}
	}
	return nil
}

// TestFunc builds the runnable test for a declared test.
func (t TestDef) TestFunc() TestFunc {
	method := strings.ToUpper(t.Method)
	if method == "" {
		method = http.MethodGet
	}
	var body []byte
	if t.Body != "" {
		body = []byte(t.Body)
	}
	if t.JSON {
		return ExpectJSON(method, t.Path, body, t.ExpectStatus...)
	}
	return Expect(method, t.Path, body, t.ExpectStatus...)
}

// Names returns the service names in catalog order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.Specs))
	for i, s := range c.Specs {
		names[i] = s.ServiceName
	}
	return names
}

// Register installs the catalog's declared tests on h.
func (c *Catalog) Register(h *Harness) error {
	for _, spec := range c.Specs {
		for _, t := range c.Tests[spec.ServiceName] {
			var err error
			if t.Placeholder {
				err = h.RegisterPlaceholder(spec.ServiceName, t.Name)
			} else {
				err = h.RegisterEndpointTests(spec.ServiceName, t.Name, t.TestFunc())
			}
			if err != nil {
				return fmt.Errorf("register %s/%s: %w", spec.ServiceName, t.Name, err)
			}
		}
	}
	return nil
}

// Package objectdef loads OMA LwM2M object definitions from their XML
// registry format. The definitions are display-only: the CLI uses them
// for human-friendly names, units, and path completion. Nothing in the
// command path consults them.
package objectdef

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Penlect/emqxlwm2m/errors"
	"github.com/Penlect/emqxlwm2m/lwm2m"
)

// Resource is one resource definition within an object.
type Resource struct {
	ID          int
	Name        string
	Operations  string // "R", "W", "RW", "E", or "BS_RW"
	Multiple    bool
	Mandatory   bool
	Type        string
	Range       string
	Units       string
	Description string
}

// Readable reports whether the resource supports the read operation.
func (r Resource) Readable() bool { return strings.Contains(r.Operations, "R") }

// Writable reports whether the resource supports the write operation.
func (r Resource) Writable() bool { return strings.Contains(r.Operations, "W") }

// Executable reports whether the resource supports the execute operation.
func (r Resource) Executable() bool { return strings.Contains(r.Operations, "E") }

// Object is one LwM2M object definition.
type Object struct {
	ID          int
	Name        string
	Description string
	URN         string
	Multiple    bool
	Mandatory   bool
	Resources   []Resource // sorted by ID
}

// Resource looks up a resource definition by ID.
func (o *Object) Resource(id int) (Resource, bool) {
	i := sort.Search(len(o.Resources), func(i int) bool { return o.Resources[i].ID >= id })
	if i < len(o.Resources) && o.Resources[i].ID == id {
		return o.Resources[i], true
	}
	return Resource{}, false
}

// XML shapes of the OMA registry files.
type xmlFile struct {
	Object xmlObject `xml:"Object"`
}

type xmlObject struct {
	Name              string        `xml:"Name"`
	Description       string        `xml:"Description1"`
	ObjectID          int           `xml:"ObjectID"`
	ObjectURN         string        `xml:"ObjectURN"`
	MultipleInstances string        `xml:"MultipleInstances"`
	Mandatory         string        `xml:"Mandatory"`
	Items             []xmlResource `xml:"Resources>Item"`
}

type xmlResource struct {
	ID                int    `xml:"ID,attr"`
	Name              string `xml:"Name"`
	Operations        string `xml:"Operations"`
	MultipleInstances string `xml:"MultipleInstances"`
	Mandatory         string `xml:"Mandatory"`
	Type              string `xml:"Type"`
	RangeEnumeration  string `xml:"RangeEnumeration"`
	Units             string `xml:"Units"`
	Description       string `xml:"Description"`
}

// Load parses one object definition XML document.
func Load(r io.Reader) (*Object, error) {
	var file xmlFile
	if err := xml.NewDecoder(r).Decode(&file); err != nil {
		return nil, errors.WrapInvalid(err, "objectdef", "Load", "decode XML")
	}

	xo := file.Object
	obj := &Object{
		ID:          xo.ObjectID,
		Name:        strings.TrimSpace(xo.Name),
		Description: strings.TrimSpace(xo.Description),
		URN:         strings.TrimSpace(xo.ObjectURN),
		Multiple:    strings.TrimSpace(xo.MultipleInstances) == "Multiple",
		Mandatory:   strings.TrimSpace(xo.Mandatory) == "Mandatory",
	}
	for _, item := range xo.Items {
		ops := strings.ToUpper(strings.TrimSpace(item.Operations))
		if ops == "" {
			// No operations means the resource is modifiable by the
			// bootstrap server only.
			ops = "BS_RW"
		}
		obj.Resources = append(obj.Resources, Resource{
			ID:          item.ID,
			Name:        strings.TrimSpace(item.Name),
			Operations:  ops,
			Multiple:    strings.TrimSpace(item.MultipleInstances) == "Multiple",
			Mandatory:   strings.TrimSpace(item.Mandatory) == "Mandatory",
			Type:        strings.ToLower(strings.TrimSpace(item.Type)),
			Range:       strings.TrimSpace(item.RangeEnumeration),
			Units:       strings.TrimSpace(item.Units),
			Description: strings.TrimSpace(item.Description),
		})
	}
	sort.Slice(obj.Resources, func(i, j int) bool {
		return obj.Resources[i].ID < obj.Resources[j].ID
	})
	return obj, nil
}

// LoadFile parses one object definition XML file.
func LoadFile(path string) (*Object, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WrapTransient(err, "objectdef", "LoadFile", "open XML file")
	}
	defer f.Close()
	obj, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return obj, nil
}

// Registry indexes object definitions by object ID.
type Registry struct {
	objects map[int]*Object
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{objects: make(map[int]*Object)}
}

// Add inserts or replaces one object definition.
func (reg *Registry) Add(obj *Object) {
	reg.objects[obj.ID] = obj
}

// LoadPaths loads XML files and directories of XML files into the
// registry. Later definitions replace earlier ones with the same ID.
func (reg *Registry) LoadPaths(paths ...string) error {
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return errors.WrapTransient(err, "objectdef", "LoadPaths", "stat path")
		}
		if !info.IsDir() {
			obj, err := LoadFile(path)
			if err != nil {
				return err
			}
			reg.Add(obj)
			continue
		}
		entries, err := os.ReadDir(path)
		if err != nil {
			return errors.WrapTransient(err, "objectdef", "LoadPaths", "read directory")
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".xml") {
				continue
			}
			obj, err := LoadFile(filepath.Join(path, entry.Name()))
			if err != nil {
				return err
			}
			reg.Add(obj)
		}
	}
	return nil
}

// Object looks up a definition by object ID.
func (reg *Registry) Object(oid int) (*Object, bool) {
	obj, ok := reg.objects[oid]
	return obj, ok
}

// Objects returns all definitions sorted by object ID.
func (reg *Registry) Objects() []*Object {
	out := make([]*Object, 0, len(reg.objects))
	for _, obj := range reg.objects {
		out = append(out, obj)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Lookup resolves a path against the registry: the object definition and,
// when the path reaches resource depth, the resource definition.
func (reg *Registry) Lookup(path lwm2m.Path) (*Object, *Resource, error) {
	oid, err := path.ObjectID()
	if err != nil {
		return nil, nil, err
	}
	obj, ok := reg.objects[oid]
	if !ok {
		return nil, nil, errors.WrapInvalid(
			fmt.Errorf("%w: object %d", errors.ErrNotFound, oid),
			"objectdef", "Lookup", "object lookup")
	}
	if path.Level() < lwm2m.LevelResource {
		return obj, nil, nil
	}
	rid, err := path.ResourceID()
	if err != nil {
		return nil, nil, err
	}
	res, ok := obj.Resource(rid)
	if !ok {
		return obj, nil, errors.WrapInvalid(
			fmt.Errorf("%w: resource %d in object %d", errors.ErrNotFound, rid, oid),
			"objectdef", "Lookup", "resource lookup")
	}
	return obj, &res, nil
}

// Describe renders a one-line human description of a path, e.g.
// "/3/0/9 Device.Battery Level (r, integer, %)". Unknown paths come back
// unchanged.
func (reg *Registry) Describe(path lwm2m.Path) string {
	obj, res, err := reg.Lookup(path)
	if err != nil || obj == nil {
		return path.String()
	}
	if res == nil {
		return fmt.Sprintf("%s %s", path, obj.Name)
	}
	detail := strings.ToLower(res.Operations)
	if res.Type != "" {
		detail += ", " + res.Type
	}
	if res.Units != "" {
		detail += ", " + res.Units
	}
	return fmt.Sprintf("%s %s.%s (%s)", path, obj.Name, res.Name, detail)
}

package lwm2m

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Penlect/emqxlwm2m/errors"
)

// PathLevel identifies how deep into the object tree a path points.
type PathLevel int

// Path levels, from object down to resource instance.
const (
	LevelRoot PathLevel = iota
	LevelObject
	LevelObjectInstance
	LevelResource
	LevelResourceInstance
)

// String returns the string representation of PathLevel
func (l PathLevel) String() string {
	switch l {
	case LevelRoot:
		return "root"
	case LevelObject:
		return "object"
	case LevelObjectInstance:
		return "object_instance"
	case LevelResource:
		return "resource"
	case LevelResourceInstance:
		return "resource_instance"
	default:
		return "unknown"
	}
}

var multiSlash = regexp.MustCompile(`/+`)

// Path is a slash-delimited object/instance/resource address within an
// endpoint's data model, e.g. "/3/0/9".
type Path string

// NewPath normalizes a raw path string: duplicate slashes are collapsed
// and a leading slash is ensured.
func NewPath(s string) Path {
	s = multiSlash.ReplaceAllString(s, "/")
	if !strings.HasPrefix(s, "/") {
		s = "/" + s
	}
	return Path(s)
}

// String returns the canonical slash-prefixed form.
func (p Path) String() string {
	return string(NewPath(string(p)))
}

// Parts returns the non-empty path segments.
func (p Path) Parts() []string {
	var parts []string
	for _, part := range strings.Split(strings.TrimPrefix(string(p), "/"), "/") {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

// Level classifies the path by its depth.
func (p Path) Level() PathLevel {
	n := len(p.Parts())
	if n > int(LevelResourceInstance) {
		return LevelRoot
	}
	return PathLevel(n)
}

func (p Path) part(i int, what string) (int, error) {
	parts := p.Parts()
	if i >= len(parts) {
		return 0, errors.WrapInvalid(errors.New("no "+what), "Path", "part", "parse "+p.String())
	}
	id, err := strconv.Atoi(parts[i])
	if err != nil {
		return 0, errors.WrapInvalid(err, "Path", "part", what+" is not an integer")
	}
	return id, nil
}

// ObjectID returns the object identifier.
func (p Path) ObjectID() (int, error) { return p.part(0, "object id") }

// InstanceID returns the object instance identifier.
func (p Path) InstanceID() (int, error) { return p.part(1, "object instance id") }

// ResourceID returns the resource identifier.
func (p Path) ResourceID() (int, error) { return p.part(2, "resource id") }

// ResourceInstanceID returns the resource instance identifier.
func (p Path) ResourceInstanceID() (int, error) { return p.part(3, "resource instance id") }

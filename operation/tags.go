package operation

import (
	"slices"
	"strings"
)

// Tags is an ordered set of tags. Methods never modify the receiver.
type Tags []string

// NewTags builds a tag set, dropping blanks and repeats while keeping the
// first occurrence's position.
func NewTags(tags ...string) Tags {
	return Tags(nil).Add(tags...)
}

// Has reports whether tag is in the set.
func (t Tags) Has(tag string) bool {
	return slices.Contains(t, tag)
}

// Add returns the union of t and tags; new tags are appended in order.
func (t Tags) Add(tags ...string) Tags {
	out := make(Tags, 0, len(t)+len(tags))
	for _, tag := range append(slices.Clone([]string(t)), tags...) {
		tag = strings.TrimSpace(tag)
		if tag == "" || slices.Contains(out, tag) {
			continue
		}
		out = append(out, tag)
	}
	return out
}

// Union returns the tags of t followed by the tags of other not in t.
func (t Tags) Union(other Tags) Tags {
	return t.Add(other...)
}

// HasAll reports whether every tag is present. It is true for no tags.
func (t Tags) HasAll(tags ...string) bool {
	for _, tag := range tags {
		if !t.Has(tag) {
			return false
		}
	}
	return true
}

// HasAny reports whether at least one tag is present.
func (t Tags) HasAny(tags ...string) bool {
	return slices.ContainsFunc(tags, t.Has)
}

// Equal reports whether both sets hold the same tags in the same order.
func (t Tags) Equal(other Tags) bool {
	return slices.Equal(t, other)
}

func (t Tags) String() string {
	return strings.Join(t, ", ")
}

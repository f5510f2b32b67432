package history

import (
	"fmt"
	"slices"
)

// AnnotatedLine attributes one source line to the revision that last touched it.
type AnnotatedLine struct {
	Revision string
	Author   string
	// Enabled is false when the backend could not resolve the attribution.
	Enabled bool
}

// Annotation is the per-line attribution of a file. Build it with an
// AnnotationBuilder; a built Annotation is never modified.
type Annotation struct {
	FileName string
	lines    []AnnotatedLine
}

func (a *Annotation) Size() int {
	if a == nil {
		return 0
	}
	return len(a.lines)
}

// Line returns the attribution of line n (1-based).
func (a *Annotation) Line(n int) (AnnotatedLine, bool) {
	if a == nil || n < 1 || n > len(a.lines) {
		return AnnotatedLine{}, false
	}
	return a.lines[n-1], true
}

// Lines returns a copy of all attributions in line order.
func (a *Annotation) Lines() []AnnotatedLine {
	if a == nil {
		return nil
	}
	return slices.Clone(a.lines)
}

// Revisions returns the distinct revisions referenced, sorted.
func (a *Annotation) Revisions() []string {
	return a.distinct(func(l AnnotatedLine) string { return l.Revision })
}

// Authors returns the distinct authors referenced, sorted.
func (a *Annotation) Authors() []string {
	return a.distinct(func(l AnnotatedLine) string { return l.Author })
}

func (a *Annotation) distinct(field func(AnnotatedLine) string) []string {
	if a == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(a.lines))
	var out []string
	for _, l := range a.lines {
		v := field(l)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

func (a *Annotation) String() string {
	if a == nil {
		return ""
	}
	return fmt.Sprintf("%s (%d lines)", a.FileName, len(a.lines))
}

// AnnotationBuilder accumulates lines while tool output is streamed.
type AnnotationBuilder struct {
	fileName string
	lines    []AnnotatedLine
}

func NewAnnotationBuilder(fileName string) *AnnotationBuilder {
	return &AnnotationBuilder{fileName: fileName}
}

func (b *AnnotationBuilder) Add(revision, author string, enabled bool) {
	b.lines = append(b.lines, AnnotatedLine{Revision: revision, Author: author, Enabled: enabled})
}

// Build returns the finished annotation. The builder must not be reused.
func (b *AnnotationBuilder) Build() *Annotation {
	a := &Annotation{FileName: b.fileName, lines: b.lines}
	b.lines = nil
	return a
}

package vault

import (
	"bytes"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// splitFrontmatter separates a note into its raw YAML frontmatter block
// and the remaining body. ok is false when the note carries no
// frontmatter, in which case body is the whole content. Both delimiters
// must be lines that are exactly "---": a "----" horizontal rule or a
// "---" embedded mid-line never terminates the block.
func splitFrontmatter(content []byte) (block, body []byte, ok bool) {
	if !bytes.HasPrefix(content, []byte("---")) || !bareDelimiterTail(content[3:]) {
		return nil, content, false
	}

	rest := content[3:]

	idx := bytes.IndexByte(rest, '\n')
	if idx < 0 {
		return nil, content, false
	}
	rest = rest[idx+1:]

	for off := 0; ; {
		end := bytes.Index(rest[off:], []byte("\n---"))
		if end < 0 {
			return nil, content, false
		}
		end += off

		after := rest[end+len("\n---"):]
		if !bareDelimiterTail(after) {
			// A line merely starting with "---" (e.g. "----"); keep
			// looking for a real closing delimiter.
			off = end + 1
			continue
		}

		block = rest[:end]

		if nl := bytes.IndexByte(after, '\n'); nl >= 0 {
			body = after[nl+1:]
		} else {
			body = nil
		}

		return block, body, true
	}
}

// bareDelimiterTail reports whether b begins at the end of a bare "---"
// line: end of input, a newline, or a \r\n.
func bareDelimiterTail(b []byte) bool {
	if len(b) == 0 || b[0] == '\n' {
		return true
	}

	return b[0] == '\r' && (len(b) == 1 || b[1] == '\n')
}

// NoteBody returns the note content with its frontmatter block removed,
// or the content unchanged when it has none.
func NoteBody(content []byte) []byte {
	_, body, _ := splitFrontmatter(content)
	return body
}

// ParseFrontmatterFields returns the scalar top-level fields of a note's
// frontmatter as raw strings. It returns nil when the note has no
// frontmatter or the block is not valid YAML; malformed metadata is
// indistinguishable from absent metadata to callers. Non-scalar values
// (lists, nested maps) are skipped, not errors.
func ParseFrontmatterFields(content []byte) map[string]string {
	block, _, ok := splitFrontmatter(content)
	if !ok {
		return nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(block, &doc); err != nil {
		return nil
	}

	fields := make(map[string]string)

	if len(doc.Content) == 0 {
		return fields
	}

	m := doc.Content[0]
	if m.Kind != yaml.MappingNode {
		return nil
	}

	for i := 0; i+1 < len(m.Content); i += 2 {
		k, v := m.Content[i], m.Content[i+1]
		if k.Kind == yaml.ScalarNode && v.Kind == yaml.ScalarNode {
			fields[k.Value] = v.Value
		}
	}

	return fields
}

// UpsertFrontmatterFields sets the given fields in a note's frontmatter
// and returns the rewritten note. All unrelated keys, their order, and
// any comments survive via a yaml.Node round-trip; the note body is
// carried over byte-for-byte. A note without frontmatter gains a fresh
// block. A note whose existing block is unparseable keeps it untouched
// inside the body rather than having it overwritten.
func UpsertFrontmatterFields(content []byte, fields map[string]string) ([]byte, error) {
	block, body, ok := splitFrontmatter(content)

	doc := &yaml.Node{}
	if ok {
		if err := yaml.Unmarshal(block, doc); err != nil {
			// Malformed frontmatter: never destroy user data.
			ok = false
			body = content
		}
	}

	var m *yaml.Node
	if ok && len(doc.Content) > 0 && doc.Content[0].Kind == yaml.MappingNode {
		m = doc.Content[0]
	} else {
		if ok && len(doc.Content) > 0 && doc.Content[0].Kind != yaml.MappingNode {
			// Frontmatter that parses but is not a mapping (e.g. a bare
			// list) gets the same keep-in-body treatment.
			body = content
		}

		m = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	}

	// Sort new keys so repeated writes produce identical output.
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		upsertMappingKey(m, k, fields[k])
	}

	var buf bytes.Buffer

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)

	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("encoding frontmatter: %w", err)
	}

	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("closing frontmatter encoder: %w", err)
	}

	out := make([]byte, 0, len(content)+buf.Len()+8)
	out = append(out, "---\n"...)
	out = append(out, buf.Bytes()...)
	out = append(out, "---\n"...)
	out = append(out, body...)

	return out, nil
}

// upsertMappingKey replaces the value of key in the mapping node, or
// appends the pair when absent.
func upsertMappingKey(m *yaml.Node, key, value string) {
	val := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}

	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Kind == yaml.ScalarNode && m.Content[i].Value == key {
			m.Content[i+1] = val
			return
		}
	}

	m.Content = append(m.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		val,
	)
}

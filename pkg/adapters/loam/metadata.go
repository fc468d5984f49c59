package loam

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// ServiceMetadata is the frontmatter of a service document.
// It uses "mapstructure" tags to match standard Frontmatter/YAML keys.
type ServiceMetadata struct {
	ID          string `json:"id" mapstructure:"id"`
	Title       string `json:"title" mapstructure:"title"`
	Icon        string `json:"icon" mapstructure:"icon"`
	Description string `json:"description" mapstructure:"description"`

	// Groups places the service under nested groups, outermost first.
	// When empty, the document's directory is used.
	Groups  []string `json:"groups" mapstructure:"groups"`
	Actions []string `json:"actions" mapstructure:"actions"`

	// General Metadata
	Metadata map[string]any `json:"metadata" mapstructure:"metadata"`
}

// Document is a service backed by a Loam document.
type Document struct {
	Key         string
	Path        string
	Title       string
	Icon        string
	Description string
	Groups      []string
	Actions     []string
	Labels      map[string]string
	Body        string
}

// ID implements domain.Value.
func (d *Document) ID() string { return d.Key }

// Text returns the title, or the key when the document has none.
func (d *Document) Text() string {
	if d.Title != "" {
		return d.Title
	}
	return d.Key
}

func newDocument(docID string, meta ServiceMetadata, body string) *Document {
	p := trimExtension(docID)
	key := meta.ID
	if key == "" {
		key = path.Base(p)
	}
	return &Document{
		Key:         trimExtension(key),
		Path:        docID,
		Title:       meta.Title,
		Icon:        meta.Icon,
		Description: meta.Description,
		Groups:      groupsOf(meta, p),
		Actions:     meta.Actions,
		Labels:      flattenMetadata(meta.Metadata),
		Body:        body,
	}
}

func groupsOf(meta ServiceMetadata, p string) []string {
	if len(meta.Groups) > 0 {
		return meta.Groups
	}
	dir := path.Dir(p)
	if dir == "." || dir == "/" {
		return nil
	}
	return strings.Split(dir, "/")
}

func trimExtension(id string) string {
	return filepath.ToSlash(strings.TrimSuffix(id, filepath.Ext(id)))
}

// flattenMetadata converts a nested map into a flat map using dash separated
// keys, e.g. {"x": {"port": 80}} becomes {"x-port": "80"}.
func flattenMetadata(src map[string]any) map[string]string {
	if len(src) == 0 {
		return nil
	}
	res := make(map[string]string)
	var visit func(prefix string, v any)

	visit = func(prefix string, v any) {
		join := func(k string) string {
			if prefix == "" {
				return k
			}
			return prefix + "-" + k
		}
		switch val := v.(type) {
		case map[string]any:
			for k, sub := range val {
				visit(join(k), sub)
			}
		case map[any]any: // YAML often decodes to this
			for k, sub := range val {
				visit(join(fmt.Sprintf("%v", k)), sub)
			}
		case []any:
			parts := make([]string, 0, len(val))
			for _, item := range val {
				parts = append(parts, fmt.Sprintf("%v", item))
			}
			res[prefix] = strings.Join(parts, " ")
		default:
			if prefix != "" {
				res[prefix] = fmt.Sprintf("%v", val)
			}
		}
	}

	for k, v := range src {
		visit(k, v)
	}
	return res
}

package process

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrOutput is returned when the command output cannot be read as services.
var ErrOutput = errors.New("unreadable command output")

// Service is one entry of the command output.
type Service struct {
	Key     string   `json:"id"`
	Text    string   `json:"text,omitempty"`
	Icon    string   `json:"icon,omitempty"`
	Tooltip string   `json:"tooltip,omitempty"`
	Groups  []string `json:"groups,omitempty"`
}

// ID implements domain.Value.
func (s *Service) ID() string { return s.Key }

func (s *Service) text() string {
	if s.Text != "" {
		return s.Text
	}
	return s.Key
}

// parseOutput reads services from stdout. Three shapes are accepted:
// a JSON array of objects, a JSON array of IDs, or one ID per line.
// In the line form, slashes split the group path from the ID.
func parseOutput(out []byte) ([]*Service, error) {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) == 0 {
		return nil, nil
	}

	// Try to parse as JSON (Auto-Detection)
	if trimmed[0] == '[' {
		var services []*Service
		if err := json.Unmarshal(trimmed, &services); err == nil {
			for i, s := range services {
				if s == nil || s.Key == "" {
					return nil, fmt.Errorf("%w: entry %d has no id", ErrOutput, i)
				}
			}
			return services, nil
		}
		var ids []string
		if err := json.Unmarshal(trimmed, &ids); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrOutput, err)
		}
		services = make([]*Service, 0, len(ids))
		for _, id := range ids {
			if s := fromLine(id); s != nil {
				services = append(services, s)
			}
		}
		return services, nil
	}

	var services []*Service
	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	for scanner.Scan() {
		if s := fromLine(scanner.Text()); s != nil {
			services = append(services, s)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOutput, err)
	}
	return services, nil
}

func fromLine(line string) *Service {
	var segments []string
	for _, seg := range strings.Split(strings.TrimSpace(line), "/") {
		if seg = strings.TrimSpace(seg); seg != "" {
			segments = append(segments, seg)
		}
	}
	if len(segments) == 0 {
		return nil
	}
	last := len(segments) - 1
	s := &Service{Key: segments[last]}
	if last > 0 {
		s.Groups = segments[:last]
	}
	return s
}

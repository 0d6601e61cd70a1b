package clients

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidResponse marks a 2xx body that does not match the endpoint schema.
var ErrInvalidResponse = errors.New("invalid analysis response")

type Resource struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url,omitempty"`
}

func require(endpoint string, fields map[string]*int) error {
	var missing []string
	for name, v := range fields {
		if v == nil {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("%s: missing %s: %w", endpoint, strings.Join(missing, ", "), ErrInvalidResponse)
}

// Int dereferences an optional score, falling back to def.
func Int(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

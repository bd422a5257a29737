package streamreplay

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/axelofwar/be-community-gamification/pkg/logger"
)

const maxLineBytes = 1 << 20

// ReadObservations parses NDJSON observations from r. Blank lines and lines
// starting with '#' are ignored; malformed lines are logged and counted but
// do not stop the read. Observations without an id get a random one.
func ReadObservations(ctx context.Context, r io.Reader, log logger.Logger) ([]Observation, *Stats, error) {
	stats := &Stats{}
	var out []Observation

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 || raw[0] == '#' {
			continue
		}
		stats.Lines++

		var o Observation
		if err := json.Unmarshal(raw, &o); err != nil || strings.TrimSpace(o.Key) == "" {
			stats.Malformed++
			if err == nil {
				err = errMissingKey
			}
			log.Warn(ctx, "skipping malformed observation", logger.Int("line", line), logger.Error(err))
			continue
		}
		if strings.TrimSpace(o.ID) == "" {
			o.ID = uuid.NewString()
		}
		out = append(out, o)
	}
	if err := sc.Err(); err != nil {
		return out, stats, fmt.Errorf("read observations: line %d: %w", line+1, err)
	}
	return out, stats, nil
}

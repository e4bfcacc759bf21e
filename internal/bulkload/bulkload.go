// Package bulkload streams key\tvalue lines into a running nosqld over
// the wire protocol. Every line is sent as a PUT, which the core already
// resolves as delete-then-insert, so repeated keys in a batch never leak
// heap space; a Bloom filter over keys seen so far flags those repeats in
// Stats.Duplicate without having to hold every key in memory.
package bulkload

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/nosqld/nosqld/internal/repl"
)

// Stats summarizes a completed load.
type Stats struct {
	Lines     int
	Loaded    int
	Duplicate int
	Failed    int
}

// Load reads tab-separated "key\tvalue" lines from r and PUTs every one to
// client in order, so a repeated key's last line wins. A Bloom filter
// recognizes repeats within this batch for Stats.Duplicate without
// keeping every key seen so far in memory.
func Load(client repl.Client, r io.Reader, errOut io.Writer) (Stats, error) {
	var stats Stats

	// Sized for a few million distinct keys at ~1% false-positive rate;
	// a false positive here only overcounts Stats.Duplicate, since every
	// line is PUT regardless.
	seen := bloom.NewWithEstimates(4_000_000, 0.01)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		stats.Lines++

		key, value, ok := splitLine(line)
		if !ok {
			stats.Failed++
			fmt.Fprintf(errOut, "bulkload: skipping malformed line %d\n", stats.Lines)
			continue
		}

		keyBytes := []byte(key)
		if seen.Test(keyBytes) {
			stats.Duplicate++
		}
		seen.Add(keyBytes)

		code, body, err := client.Do("PUT", "nosql/"+key, value)
		if err != nil {
			stats.Failed++
			fmt.Fprintf(errOut, "bulkload: line %d: %v\n", stats.Lines, err)
			continue
		}
		if code != 200 {
			stats.Failed++
			fmt.Fprintf(errOut, "bulkload: line %d: server returned %d %s\n", stats.Lines, code, body)
			continue
		}
		stats.Loaded++
	}

	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("bulkload: scanning input: %w", err)
	}
	return stats, nil
}

func splitLine(line string) (key, value string, ok bool) {
	idx := strings.IndexByte(line, '\t')
	if idx < 0 {
		return "", "", false
	}
	return line[:idx], line[idx+1:], true
}

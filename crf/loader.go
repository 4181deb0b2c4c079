package crf

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrStoreFull indicates the weight store evicted imported weights because
// it is smaller than the weight file.
var ErrStoreFull = errors.New("crf: weight store full, raise cache_bytes")

// LoadWeights imports a text weight file into the store and returns the
// number of weights set. Line formats:
//
//	U feature label weight
//	T prev cur weight
//	S label weight
//	E label weight
//
// Labels are names from the config. Blank lines and lines starting with '#'
// are skipped. A later line for the same key overwrites an earlier one.
//
// The store is a bounded cache, so once the file is read every imported key
// is looked up again; if any was evicted the import fails with ErrStoreFull.
func (model *LinearCRF) LoadWeights(r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	lineNo, loaded := 0, 0

	// imported keys, back to back; ends[i] is the end offset of key i
	var keys []byte
	var ends []int

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		start := len(keys)
		var weight float64
		var err error
		keys, weight, err = model.parseLine(keys, strings.Fields(line))
		if err != nil {
			return loaded, errors.Wrapf(err, "line %d", lineNo)
		}
		SetCache(keys[start:], weight, model.Weights)
		ends = append(ends, len(keys))
		loaded++
	}
	if err := scanner.Err(); err != nil {
		return loaded, errors.Wrapf(err, "line %d", lineNo)
	}

	evicted, start := 0, 0
	for _, end := range ends {
		if !model.Weights.Has(keys[start:end]) {
			evicted++
		}
		start = end
	}
	if evicted > 0 {
		return loaded, errors.Wrapf(ErrStoreFull, "%d of %d weights evicted with cache_bytes=%d",
			evicted, loaded, model.Config.CacheBytes)
	}

	model.logger.Info("loaded weights", zap.Int("count", loaded))
	return loaded, nil
}

// fieldCount is the number of fields per weight kind, weight included.
var fieldCount = map[string]int{"U": 4, "T": 4, "S": 3, "E": 3}

// parseLine appends the store key of one weight line to dst and returns it
// with the weight.
func (model *LinearCRF) parseLine(dst []byte, parts []string) ([]byte, float64, error) {
	n, ok := fieldCount[parts[0]]
	if !ok {
		return dst, 0, errors.Errorf("unknown weight kind %q", parts[0])
	}
	if len(parts) != n {
		return dst, 0, errors.Errorf("%s weight needs %d fields, got %d", parts[0], n, len(parts))
	}
	weight, err := strconv.ParseFloat(parts[n-1], 64)
	if err != nil {
		return dst, 0, errors.Wrap(err, "parse weight")
	}

	// the U feature key is not a label
	names := parts[1 : n-1]
	if parts[0] == "U" {
		names = parts[2 : n-1]
	}
	labels := make([]int, len(names))
	for i, name := range names {
		idx, ok := model.Config.LabelIndex(name)
		if !ok {
			return dst, 0, errors.Errorf("unknown label %q", name)
		}
		labels[i] = idx
	}

	var key []byte
	switch parts[0] {
	case "U":
		key = emissionKey(nil, parts[1], labels[0])
	case "T":
		key = transitionKey(nil, labels[0], labels[1])
	case "S":
		key = startKey(nil, labels[0])
	case "E":
		key = endKey(nil, labels[0])
	}
	return append(dst, key...), weight, nil
}

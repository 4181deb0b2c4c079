// Package dataset reads and writes CoNLL-style tagged text: one token per
// line, followed by an optional gold label and an optional predicted label,
// sentences separated by blank lines.
package dataset

import (
	"bufio"
	"io"
	"math"
	"math/rand"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// NoLabel marks a token without a gold or predicted label.
const NoLabel = -1

// Blank is the column value written for NoLabel.
const Blank = "_"

// Alphabet maps label names to indices and back.
type Alphabet interface {
	LabelIndex(label string) (int, bool)
	LabelName(idx int) string
}

// Pair is one token of a sentence.
type Pair struct {
	Word string
	Tag  int // gold label, NoLabel if the file had none
	Pred int // predicted label, NoLabel until tagged
}

// Sentence is a non-empty run of tokens.
type Sentence []Pair

// Words returns the tokens of the sentence.
func (s Sentence) Words() []string {
	words := make([]string, len(s))
	for i := range s {
		words[i] = s[i].Word
	}
	return words
}

// SetPredictions writes one predicted label per token.
func (s Sentence) SetPredictions(labels []int) error {
	if len(labels) != len(s) {
		return errors.Errorf("dataset: %d predictions for %d tokens", len(labels), len(s))
	}
	for i, label := range labels {
		s[i].Pred = label
	}
	return nil
}

type Dataset struct {
	Data []Sentence
}

// Load reads the CoNLL file at fname.
func Load(fname string, labels Alphabet) (*Dataset, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, errors.Wrap(err, "open dataset")
	}
	defer f.Close()

	dataset, err := Read(f, labels)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", fname)
	}
	return dataset, nil
}

// Read parses CoNLL text. Each line is "token", "token gold" or
// "token gold pred", where "_" stands for no label; any further columns are
// ignored. Blank lines close a sentence and empty sentences are dropped. A
// label missing from the alphabet is an error.
func Read(r io.Reader, labels Alphabet) (*Dataset, error) {
	dataset := &Dataset{}
	var sentence Sentence

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			if len(sentence) != 0 {
				dataset.Data = append(dataset.Data, sentence)
				sentence = nil
			}
			continue
		}

		pair := Pair{Word: fields[0], Tag: NoLabel, Pred: NoLabel}
		for col, dst := range []*int{&pair.Tag, &pair.Pred} {
			if len(fields) <= col+1 || fields[col+1] == Blank {
				continue
			}
			idx, ok := labels.LabelIndex(fields[col+1])
			if !ok {
				return nil, errors.Errorf("line %d: unknown label %q", lineNo, fields[col+1])
			}
			*dst = idx
		}
		sentence = append(sentence, pair)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "line %d", lineNo)
	}
	if len(sentence) != 0 {
		dataset.Data = append(dataset.Data, sentence)
	}
	return dataset, nil
}

// Write emits "token gold pred" for tagged tokens and "token gold" for
// untagged ones, with "_" for a missing label and a blank line after every
// sentence. The output reads back with Read unchanged.
func (dataset *Dataset) Write(w io.Writer, labels Alphabet) error {
	bw := bufio.NewWriter(w)

	name := func(idx int) string {
		if idx == NoLabel {
			return Blank
		}
		return labels.LabelName(idx)
	}
	genLine := func(pair Pair) string {
		parts := []string{pair.Word, name(pair.Tag)}
		if pair.Pred != NoLabel {
			parts = append(parts, name(pair.Pred))
		}
		return strings.Join(parts, " ") + "\n"
	}

	for _, sentence := range dataset.Data {
		for _, pair := range sentence {
			if _, err := bw.WriteString(genLine(pair)); err != nil {
				return errors.Wrap(err, "write dataset")
			}
		}
		if err := bw.WriteByte('\n'); err != nil {
			return errors.Wrap(err, "write dataset")
		}
	}
	return errors.Wrap(bw.Flush(), "flush dataset")
}

// Store writes the dataset to fname, truncating any existing file.
func (dataset *Dataset) Store(fname string, labels Alphabet) error {
	f, err := os.Create(fname)
	if err != nil {
		return errors.Wrap(err, "create output")
	}
	if err := dataset.Write(f, labels); err != nil {
		f.Close()
		return err
	}
	return errors.Wrap(f.Close(), "close output")
}

// Shuffle permutes the sentences with rng.
func (dataset *Dataset) Shuffle(rng *rand.Rand) {
	rng.Shuffle(len(dataset.Data), func(i, j int) {
		dataset.Data[i], dataset.Data[j] = dataset.Data[j], dataset.Data[i]
	})
}

// Split shuffles the sentences with rng and moves the first devProp share of
// them into dev; the rest go to train. Both results share sentences with
// dataset.
func (dataset *Dataset) Split(rng *rand.Rand, devProp float64) (train, dev *Dataset, err error) {
	if !(devProp >= 0 && devProp <= 1) {
		return nil, nil, errors.Errorf("dataset: dev proportion %v outside [0, 1]", devProp)
	}
	dataset.Shuffle(rng)
	cut := int(math.Round(devProp * float64(len(dataset.Data))))
	dev = &Dataset{Data: dataset.Data[:cut:cut]}
	train = &Dataset{Data: dataset.Data[cut:]}
	return train, dev, nil
}

func (dataset *Dataset) GetSentence(idx int) Sentence {
	return dataset.Data[idx]
}

func (dataset *Dataset) Len() int {
	return len(dataset.Data)
}

// NumTokens counts tokens across all sentences.
func (dataset *Dataset) NumTokens() int {
	total := 0
	for _, sentence := range dataset.Data {
		total += len(sentence)
	}
	return total
}

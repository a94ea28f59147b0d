package del

import (
	"bufio"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

// Config is one record of the run-configuration file. Its fields fill in
// command-line values left unset.
type Config struct {
	FastqGlob      string
	ReverseCycles  bool
	TagFiles       string
	HeadPieces     string
	Overhangs      string
	ClosingPrimers string
	ValidTags      string
	InvalidTags    string
}

// LoadConfig scans the configuration file for the first record whose glob
// matches the input FASTQ path (or its base name). Lines starting with '#'
// or ';' are comments; records are tab-separated:
//
//	fastqGlob reverseCycles tagFile headPieces overhangs closingPrimers validTags invalidTags
//
// The boolean second return reports whether a record matched.
func LoadConfig(ctx context.Context, path, fastqPath string) (*Config, bool, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, false, err
	}
	defer in.Close(ctx) // nolint: errcheck

	sc := bufio.NewScanner(in.Reader(ctx))
	nLine := 0
	for sc.Scan() {
		nLine++
		line := strings.TrimRight(sc.Text(), "\r\n")
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 6 {
			return nil, false, errors.E(fmt.Sprintf("%s:%d: malformed config line %q", path, nLine, line))
		}
		ok, err := filepath.Match(fields[0], fastqPath)
		if err != nil {
			return nil, false, errors.E(err, fmt.Sprintf("%s:%d", path, nLine))
		}
		if !ok {
			ok, _ = filepath.Match(fields[0], filepath.Base(fastqPath))
		}
		if !ok {
			continue
		}
		cfg := &Config{
			FastqGlob:      fields[0],
			ReverseCycles:  fields[1] == "1" || strings.EqualFold(fields[1], "true"),
			TagFiles:       fields[2],
			HeadPieces:     fields[3],
			Overhangs:      fields[4],
			ClosingPrimers: fields[5],
		}
		if len(fields) > 6 {
			cfg.ValidTags = fields[6]
		}
		if len(fields) > 7 {
			cfg.InvalidTags = fields[7]
		}
		return cfg, true, nil
	}
	return nil, false, sc.Err()
}

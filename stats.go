package omicsdash

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// ErrStatsNotReady signals that the pipeline has not published variant
// statistics yet. This is the "not yet available" state, distinct from a run
// failure.
var ErrStatsNotReady = errors.New("variant stats not ready")

// VariantStats is the aggregate QC result of a completed run. Produced once
// at completion, immutable afterwards.
type VariantStats struct {
	TotalVariants int     `json:"totalVariants"`
	Transitions   int     `json:"transitions"`
	Transversions int     `json:"transversions"`
	TiTvRatio     float64 `json:"tiTvRatio"`
}

// Validate checks the internal consistency of the stats: counts are
// non-negative, transitions+transversions do not exceed the total, and the
// reported Ti/Tv ratio matches the counts within rounding tolerance.
func (v VariantStats) Validate() error {
	if v.TotalVariants < 0 || v.Transitions < 0 || v.Transversions < 0 || v.TiTvRatio < 0 {
		return fmt.Errorf("variant stats contain negative values: %+v", v)
	}
	if v.Transitions+v.Transversions > v.TotalVariants {
		return fmt.Errorf("transitions (%d) + transversions (%d) exceed total variants (%d)",
			v.Transitions, v.Transversions, v.TotalVariants)
	}
	if v.Transversions > 0 {
		want := float64(v.Transitions) / float64(v.Transversions)
		if math.Abs(want-v.TiTvRatio) > 0.05 {
			return fmt.Errorf("ti/tv ratio %.3f does not match counts (%.3f)", v.TiTvRatio, want)
		}
	}
	return nil
}

// ParseVCFStats extracts VariantStats from `bcftools stats` text output.
// It needs the "number of SNPs" summary row and the TSTV row; a missing row
// or field is an error, never silently zero.
func ParseVCFStats(r io.Reader) (*VariantStats, error) {
	var (
		stats   VariantStats
		sawSNPs bool
		sawTSTV bool
		lineNum int
	)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		switch fields[0] {
		case "SN":
			// SN <id> <key>: <value>
			if len(fields) < 4 {
				return nil, fmt.Errorf("line %d: malformed SN row: %q", lineNum, line)
			}
			if strings.TrimSpace(fields[2]) != "number of SNPs:" {
				continue
			}
			n, err := strconv.Atoi(strings.TrimSpace(fields[3]))
			if err != nil {
				return nil, fmt.Errorf("line %d: bad SNP count: %w", lineNum, err)
			}
			stats.TotalVariants = n
			sawSNPs = true
		case "TSTV":
			// TSTV <id> <ts> <tv> <ts/tv> ...
			if len(fields) < 5 {
				return nil, fmt.Errorf("line %d: malformed TSTV row: %q", lineNum, line)
			}
			ts, err := strconv.Atoi(strings.TrimSpace(fields[2]))
			if err != nil {
				return nil, fmt.Errorf("line %d: bad transition count: %w", lineNum, err)
			}
			tv, err := strconv.Atoi(strings.TrimSpace(fields[3]))
			if err != nil {
				return nil, fmt.Errorf("line %d: bad transversion count: %w", lineNum, err)
			}
			ratio, err := strconv.ParseFloat(strings.TrimSpace(fields[4]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad ts/tv ratio: %w", lineNum, err)
			}
			stats.Transitions = ts
			stats.Transversions = tv
			stats.TiTvRatio = ratio
			sawTSTV = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stats: %w", err)
	}
	if !sawSNPs {
		return nil, errors.New("stats output missing \"number of SNPs\" summary row")
	}
	if !sawTSTV {
		return nil, errors.New("stats output missing TSTV row")
	}
	if err := stats.Validate(); err != nil {
		return nil, err
	}
	return &stats, nil
}

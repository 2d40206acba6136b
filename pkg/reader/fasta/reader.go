// Package fasta reads protein accessions from FASTA reference files such as the cRAP
// contaminant database.
package fasta

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ReadAccessions returns the set of accessions named in the FASTA headers of r.
// UniProt style headers (">sp|P00761|TRYP_PIG ...") yield the second field, other
// headers their first whitespace separated token.
func ReadAccessions(r io.Reader) (map[string]struct{}, error) {
	accessions := make(map[string]struct{})
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, ">") {
			continue
		}

		acc := HeaderAccession(line)
		if acc == "" {
			return nil, fmt.Errorf("line %d: empty FASTA header", lineNum)
		}
		accessions[acc] = struct{}{}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading FASTA: %w", err)
	}

	return accessions, nil
}

// HeaderAccession extracts the accession from a single FASTA header line
func HeaderAccession(header string) string {
	header = strings.TrimSpace(strings.TrimPrefix(header, ">"))
	fields := strings.Fields(header)
	if len(fields) == 0 {
		return ""
	}

	id := fields[0]
	if parts := strings.Split(id, "|"); len(parts) >= 3 {
		return parts[1]
	}
	return id
}

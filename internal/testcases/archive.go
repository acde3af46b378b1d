package testcases

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/codearena/judge/types"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

const maxEntryBytes = 64 << 20

var (
	txtEntryPattern = regexp.MustCompile(`(?i)^(input|output)(.*)\.txt$`)
	ioEntryPattern  = regexp.MustCompile(`(?i)^(.*?)\.(in|out)$`)
	caseNumber      = regexp.MustCompile(`(\d+)$`)
)

type archiveEntry struct {
	name string
	data []byte
}

// Parse reads an archive and pairs its input/output entries by the case
// number embedded in their names. The result is sorted by case number.
func Parse(filename string, data []byte) ([]types.TestCase, error) {
	entries, err := readEntries(filename, data)
	if err != nil {
		return nil, err
	}

	type pair struct {
		in  *string
		out *string
	}

	pairs := make(map[int]*pair)
	inputs, outputs := 0, 0
	for _, entry := range entries {
		number, isInput, ok, err := classifyEntry(entry.name)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		p := pairs[number]
		if p == nil {
			p = &pair{}
			pairs[number] = p
		}
		content := string(entry.data)
		if isInput {
			if p.in != nil {
				return nil, fmt.Errorf("%w: duplicate input for case %d", ErrMalformed, number)
			}
			p.in = &content
			inputs++
		} else {
			if p.out != nil {
				return nil, fmt.Errorf("%w: duplicate output for case %d", ErrMalformed, number)
			}
			p.out = &content
			outputs++
		}
	}

	if inputs != outputs {
		return nil, fmt.Errorf("%w: %d input entries but %d output entries", ErrMalformed, inputs, outputs)
	}

	numbers := make([]int, 0, len(pairs))
	for number, p := range pairs {
		if p.in == nil || p.out == nil {
			return nil, fmt.Errorf("%w: case %d must have both input and output", ErrMalformed, number)
		}
		numbers = append(numbers, number)
	}
	if len(numbers) == 0 {
		return nil, ErrNoTestCases
	}
	sort.Ints(numbers)

	cases := make([]types.TestCase, 0, len(numbers))
	for i, number := range numbers {
		p := pairs[number]
		cases = append(cases, types.TestCase{
			Index:          i,
			CaseNumber:     number,
			Input:          *p.in,
			ExpectedOutput: strings.TrimSpace(*p.out),
		})
	}
	return cases, nil
}

// classifyEntry extracts the case number and side from an entry name.
// Names that are not test-case files are reported with ok=false. An input
// or output entry without a case number is malformed.
func classifyEntry(name string) (number int, isInput bool, ok bool, err error) {
	clean := path.Clean(strings.ReplaceAll(name, `\`, "/"))
	if strings.Contains(clean, "__MACOSX") {
		return 0, false, false, nil
	}
	base := path.Base(clean)
	if strings.HasPrefix(base, ".") {
		return 0, false, false, nil
	}

	var digits string
	if m := txtEntryPattern.FindStringSubmatch(base); m != nil {
		isInput = strings.EqualFold(m[1], "input")
		if n := caseNumber.FindStringSubmatch(m[2]); n != nil {
			digits = n[1]
		}
	} else if m := ioEntryPattern.FindStringSubmatch(base); m != nil {
		isInput = strings.EqualFold(m[2], "in")
		if n := caseNumber.FindStringSubmatch(m[1]); n != nil {
			digits = n[1]
		}
	} else {
		return 0, false, false, nil
	}

	if digits == "" {
		return 0, false, false, fmt.Errorf("%w: entry %s has no case number", ErrMalformed, name)
	}
	number, err = strconv.Atoi(digits)
	if err != nil {
		return 0, false, false, fmt.Errorf("%w: entry %s: bad case number", ErrMalformed, name)
	}
	return number, isInput, true, nil
}

func archiveFormat(filename string) (string, error) {
	lower := strings.ToLower(strings.TrimSpace(filename))
	for _, suffix := range archiveSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return suffix, nil
		}
	}
	return "", fmt.Errorf("%w: unsupported archive format %q", ErrMalformed, filename)
}

func readEntries(filename string, data []byte) ([]archiveEntry, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty archive", ErrMalformed)
	}

	format, err := archiveFormat(filename)
	if err != nil {
		return nil, err
	}

	switch format {
	case ".zip":
		return readZip(data)
	case ".tar.gz", ".tgz":
		gr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: invalid tar.gz archive", ErrMalformed)
		}
		defer gr.Close()
		return readTar(tar.NewReader(gr))
	case ".tar.zst":
		zr, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: invalid tar.zst archive", ErrMalformed)
		}
		defer zr.Close()
		return readTar(tar.NewReader(zr))
	}
	return nil, fmt.Errorf("%w: unsupported archive format %q", ErrMalformed, filename)
}

func readZip(data []byte) ([]archiveEntry, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid zip archive", ErrMalformed)
	}

	entries := make([]archiveEntry, 0, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: unreadable entry %s", ErrMalformed, f.Name)
		}
		content, err := readLimited(rc)
		_ = rc.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: entry %s: %v", ErrMalformed, f.Name, err)
		}
		entries = append(entries, archiveEntry{name: f.Name, data: content})
	}
	return entries, nil
}

func readTar(tr *tar.Reader) ([]archiveEntry, error) {
	var entries []archiveEntry
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: invalid tar archive", ErrMalformed)
		}
		if header.FileInfo().IsDir() {
			continue
		}
		if !header.FileInfo().Mode().IsRegular() {
			return nil, fmt.Errorf("%w: archive contains unsupported entry %s", ErrMalformed, header.Name)
		}
		content, err := readLimited(tr)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %s: %v", ErrMalformed, header.Name, err)
		}
		entries = append(entries, archiveEntry{name: header.Name, data: content})
	}
	return entries, nil
}

func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxEntryBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxEntryBytes {
		return nil, errors.New("entry too large")
	}
	return data, nil
}

package feedsim

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// TLE is a named two-line element set.
type TLE struct {
	Name  string
	Line1 string
	Line2 string
}

// DefaultConstellation is a nine-satellite, three-plane shell derived from
// an ISS element set, used when no TLE file is given.
var DefaultConstellation = []TLE{
	{Name: "sim-01", Line1: "1 90001U 98067A   21275.59097222  .00000204  00000-0  10270-4 0  9993", Line2: "2 90001  51.6459 115.9059 0001817  61.3028  35.9198 15.49370953257767"},
	{Name: "sim-02", Line1: "1 90002U 98067A   21275.59097222  .00000204  00000-0  10270-4 0  9994", Line2: "2 90002  51.6459 115.9059 0001817  61.3028 155.9198 15.49370953257761"},
	{Name: "sim-03", Line1: "1 90003U 98067A   21275.59097222  .00000204  00000-0  10270-4 0  9995", Line2: "2 90003  51.6459 115.9059 0001817  61.3028 275.9198 15.49370953257765"},
	{Name: "sim-04", Line1: "1 90004U 98067A   21275.59097222  .00000204  00000-0  10270-4 0  9996", Line2: "2 90004  51.6459 235.9059 0001817  61.3028  35.9198 15.49370953257763"},
	{Name: "sim-05", Line1: "1 90005U 98067A   21275.59097222  .00000204  00000-0  10270-4 0  9997", Line2: "2 90005  51.6459 235.9059 0001817  61.3028 155.9198 15.49370953257767"},
	{Name: "sim-06", Line1: "1 90006U 98067A   21275.59097222  .00000204  00000-0  10270-4 0  9998", Line2: "2 90006  51.6459 235.9059 0001817  61.3028 275.9198 15.49370953257761"},
	{Name: "sim-07", Line1: "1 90007U 98067A   21275.59097222  .00000204  00000-0  10270-4 0  9999", Line2: "2 90007  51.6459 355.9059 0001817  61.3028  35.9198 15.49370953257769"},
	{Name: "sim-08", Line1: "1 90008U 98067A   21275.59097222  .00000204  00000-0  10270-4 0  9990", Line2: "2 90008  51.6459 355.9059 0001817  61.3028 155.9198 15.49370953257763"},
	{Name: "sim-09", Line1: "1 90009U 98067A   21275.59097222  .00000204  00000-0  10270-4 0  9991", Line2: "2 90009  51.6459 355.9059 0001817  61.3028 275.9198 15.49370953257767"},
}

// ParseTLE reads element sets in either the three-line (name, line 1,
// line 2) or the bare two-line form. Blank lines are ignored. Unnamed
// sets are named after their catalogue number.
func ParseTLE(r io.Reader) ([]TLE, error) {
	var (
		out  []TLE
		name string
		l1   string
	)
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), " \r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "1 ") && l1 == "":
			l1 = line
		case strings.HasPrefix(line, "2 ") && l1 != "":
			if len(l1) < 69 || len(line) < 69 {
				return nil, fmt.Errorf("tle: short element set ending at line %d", lineNo)
			}
			if l1[2:7] != line[2:7] {
				return nil, fmt.Errorf("tle: catalogue number mismatch at line %d", lineNo)
			}
			if name == "" {
				name = strings.TrimSpace(l1[2:7])
			}
			out = append(out, TLE{Name: name, Line1: l1, Line2: line})
			name, l1 = "", ""
		case l1 != "":
			return nil, fmt.Errorf("tle: expected line 2 at line %d", lineNo)
		default:
			name = strings.TrimSpace(strings.TrimPrefix(line, "0 "))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("tle: %w", err)
	}
	if l1 != "" {
		return nil, fmt.Errorf("tle: dangling line 1 at end of input")
	}
	return out, nil
}
